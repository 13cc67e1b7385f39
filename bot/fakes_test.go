package bot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"hbdbot/config"
	"hbdbot/internal/clocktest"
	"hbdbot/misskey"
	"hbdbot/pkg/hbd"
	"hbdbot/ratelimit"
	"hbdbot/storage"
)

type reaction struct {
	noteID   string
	reaction string
}

// fakeClient serves scripted feed responses and records outbound actions.
type fakeClient struct {
	mu sync.Mutex

	antenna   []feedResponse[*hbd.Note]
	timeline  []feedResponse[*hbd.Note]
	notifs    []feedResponse[*hbd.Notification]
	users     map[string]hbd.User
	noteErrs  []error
	reactErr  error
	panicOnTL bool

	since     map[string][]string
	notes     []misskey.NewNote
	noteCalls int
	reactions []reaction
	lookups   []string
}

type feedResponse[T any] struct {
	items []T
	err   error
}

func next[T any](queue *[]feedResponse[T]) ([]T, error) {
	if len(*queue) == 0 {
		return nil, nil
	}
	r := (*queue)[0]
	*queue = (*queue)[1:]
	return r.items, r.err
}

func (f *fakeClient) recordSince(feed, since string) {
	if f.since == nil {
		f.since = make(map[string][]string)
	}
	f.since[feed] = append(f.since[feed], since)
}

func (f *fakeClient) AntennaNotes(_ context.Context, since string, _ int) ([]*hbd.Note, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recordSince(FeedAntenna, since)
	return next(&f.antenna)
}

func (f *fakeClient) Timeline(_ context.Context, since string, _ int) ([]*hbd.Note, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicOnTL {
		panic("timeline exploded")
	}
	f.recordSince(FeedTimeline, since)
	return next(&f.timeline)
}

func (f *fakeClient) Notifications(_ context.Context, since string, _ int, _ []hbd.NotificationKind) ([]*hbd.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recordSince(FeedNotifications, since)
	return next(&f.notifs)
}

func (f *fakeClient) CreateNote(_ context.Context, n misskey.NewNote) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.noteCalls++
	if len(f.noteErrs) > 0 {
		err := f.noteErrs[0]
		f.noteErrs = f.noteErrs[1:]
		if err != nil {
			return "", err
		}
	}
	f.notes = append(f.notes, n)
	return "created", nil
}

func (f *fakeClient) CreateReaction(_ context.Context, noteID, r string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reactErr != nil {
		return f.reactErr
	}
	f.reactions = append(f.reactions, reaction{noteID: noteID, reaction: r})
	return nil
}

func (f *fakeClient) LookupUser(_ context.Context, username, host string) (hbd.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	handle := username
	if host != "" {
		handle += "@" + host
	}
	f.lookups = append(f.lookups, handle)
	if u, ok := f.users[handle]; ok {
		return u, nil
	}
	return hbd.User{Username: username, Host: host}, nil
}

func (f *fakeClient) sentNotes() []misskey.NewNote {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]misskey.NewNote(nil), f.notes...)
}

func (f *fakeClient) sentReactions() []reaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]reaction(nil), f.reactions...)
}

// fakeStore keeps saved documents in memory.
type fakeStore struct {
	mu    sync.Mutex
	saves []*storage.Document
	err   error
}

func (s *fakeStore) Load(context.Context) (*storage.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.saves) == 0 {
		return storage.NewDocument(), nil
	}
	return s.saves[len(s.saves)-1], nil
}

func (s *fakeStore) Save(_ context.Context, doc *storage.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.saves = append(s.saves, doc)
	return nil
}

func (s *fakeStore) last() *storage.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.saves) == 0 {
		return nil
	}
	return s.saves[len(s.saves)-1]
}

type fakeAlerter struct {
	mu     sync.Mutex
	causes []error
}

func (a *fakeAlerter) Alert(_ context.Context, cause error) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.causes = append(a.causes, cause)
	return nil
}

var jst = mustZone("Asia/Tokyo")

func mustZone(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

func testConfig() *config.Config {
	return &config.Config{
		Token:            "tok",
		Host:             "misskey.example",
		AntennaID:        "ant",
		Admin:            "owner",
		TargetReaction:   ":tada:",
		ConfusedReaction: ":_question_mark:",
		TimeZone:         "Asia/Tokyo",
		Threshold:        1,
		BatchSize:        10,
		LimitPerHour:     60,
		LimitPerMinute:   5,
		PostAttempts:     3,
		RefreshRate:      20 * time.Second,
		PollRefresh:      time.Second,
		PostRetryDelay:   time.Millisecond,
		AutosaveInterval: time.Hour,
		RolloverDelay:    time.Minute,
	}
}

type harness struct {
	bot    *Bot
	client *fakeClient
	store  *fakeStore
	alert  *fakeAlerter
	clock  *clocktest.Jump
}

func newHarness(t *testing.T, start time.Time, client *fakeClient, mutate func(*config.Config)) *harness {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(cfg)
	}
	logger := discardLogger()
	clock := clocktest.NewJump(start)
	h := &harness{
		client: client,
		store:  &fakeStore{},
		alert:  &fakeAlerter{},
		clock:  clock,
	}
	h.bot = New(cfg, Deps{
		Client: client,
		Store:  h.store,
		Alert:  h.alert,
		Gate:   ratelimit.New(clock, cfg.Limits(), logger),
		Clock:  clock,
		Logger: logger,
		Self:   hbd.User{ID: "bot-id", Username: "hbd"},
		Pick:   func(int) int { return 0 },
	})
	return h
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func errContains(err error, sub string) bool {
	return err != nil && strings.Contains(err.Error(), sub)
}

var errBoom = errors.New("boom")
