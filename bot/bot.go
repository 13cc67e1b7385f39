// Package bot runs the birthday bot's main loop.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"hbdbot/calendar"
	"hbdbot/celebrate"
	"hbdbot/config"
	"hbdbot/conversation"
	"hbdbot/misskey"
	"hbdbot/pkg/hbd"
	"hbdbot/poll"
	"hbdbot/ratelimit"
	"hbdbot/storage"
)

// Version is reported in the help text and the status page.
const Version = "1.0.0"

// RespondedKeep is how many handled notification IDs survive an autosave.
const RespondedKeep = 100

// Feed names, used for logs, metrics and the status page.
const (
	FeedAntenna       = "antenna"
	FeedTimeline      = "timeline"
	FeedNotifications = "notifications"
)

var (
	// ErrNoCredentials is returned by Snapshot when no access token is set.
	// Saving then would overwrite a good document with one from a failed load.
	ErrNoCredentials = errors.New("no access token, refusing to save state")

	errShutdownRequested = errors.New("shutdown requested by admin")
)

// Client is the Misskey API surface the bot uses.
type Client interface {
	AntennaNotes(ctx context.Context, sinceID string, limit int) ([]*hbd.Note, error)
	Timeline(ctx context.Context, sinceID string, limit int) ([]*hbd.Note, error)
	Notifications(ctx context.Context, sinceID string, limit int, kinds []hbd.NotificationKind) ([]*hbd.Notification, error)
	CreateNote(ctx context.Context, n misskey.NewNote) (string, error)
	CreateReaction(ctx context.Context, noteID, reaction string) error
	LookupUser(ctx context.Context, username, host string) (hbd.User, error)
}

// Store persists the state document.
type Store interface {
	Load(ctx context.Context) (*storage.Document, error)
	Save(ctx context.Context, doc *storage.Document) error
}

// Alerter reports fatal errors to the administrator.
type Alerter interface {
	Alert(ctx context.Context, cause error) error
}

// Deps are the collaborators of a bot.
type Deps struct {
	Client Client
	Store  Store
	Alert  Alerter
	Gate   *ratelimit.Gate
	Clock  clockwork.Clock
	Logger *slog.Logger
	Self   hbd.User        // The bot's own account; its notes are skipped
	Pick   func(n int) int // Randomness for message templates; nil uses math/rand
}

// Bot owns the bot state. Run drives it from a single goroutine; the status
// server reads it through Status and Snapshot.
type Bot struct {
	cfg        *config.Config
	client     Client
	store      Store
	alert      Alerter
	gate       *ratelimit.Gate
	clock      clockwork.Clock
	logger     *slog.Logger
	self       hbd.User
	loc        *time.Location
	engine     celebrate.Engine
	dispatcher *conversation.Dispatcher

	antenna       *poll.Poller[*hbd.Note]
	timeline      *poll.Poller[*hbd.Note]
	notifications *poll.Poller[*hbd.Notification]

	// Owned by the loop goroutine.
	dayMark      time.Time // Civil day of the last rollover or restored save
	autosaveMark time.Time

	saveMu sync.Mutex // Serializes snapshots

	mu           sync.Mutex // Guards the fields below
	celebrations *celebrate.Record
	subscribers  map[string]string
	responded    []string
	seen         map[string]struct{}
	cursors      map[string]string
	startedAt    time.Time
	lastSaved    time.Time
}

// New creates a bot with empty state.
func New(cfg *config.Config, deps Deps) *Bot {
	loc := cfg.Location()
	now := deps.Clock.Now()

	b := &Bot{
		cfg:    cfg,
		client: deps.Client,
		store:  deps.Store,
		alert:  deps.Alert,
		gate:   deps.Gate,
		clock:  deps.Clock,
		logger: deps.Logger,
		self:   deps.Self,
		loc:    loc,
		engine: celebrate.Engine{
			Location:       loc,
			TargetReaction: cfg.TargetReaction,
			Threshold:      cfg.Threshold,
		},
		dispatcher: conversation.New(conversation.Options{
			Location: loc,
			Pick:     deps.Pick,
			Admin:    cfg.Admin,
			Version:  Version,
			Reaction: cfg.TargetReaction,
		}),
		dayMark:      now,
		autosaveMark: now,
		celebrations: celebrate.NewRecord(),
		subscribers:  make(map[string]string),
		seen:         make(map[string]struct{}),
		cursors:      make(map[string]string),
		startedAt:    now,
	}

	opts := poll.Options{
		Clock:     deps.Clock,
		Logger:    deps.Logger,
		BatchSize: cfg.BatchSize,
		Order:     poll.NewestFirst,
		Refresh:   cfg.PollRefresh,
	}
	b.antenna = poll.New(FeedAntenna, deps.Client.AntennaNotes, opts)
	b.timeline = poll.New(FeedTimeline, deps.Client.Timeline, opts)
	b.notifications = poll.New(FeedNotifications, func(ctx context.Context, since string, limit int) ([]*hbd.Notification, error) {
		return deps.Client.Notifications(ctx, since, limit, hbd.PolledKinds)
	}, opts)

	return b
}

// Run polls the feeds until ctx is cancelled, the admin requests shutdown or
// an unrecoverable error occurs. A final snapshot is always attempted, and
// unrecoverable errors and panics are reported to the admin first.
func (b *Bot) Run(ctx context.Context) (err error) {
	b.logger.Info("Bot started",
		"version", Version,
		"host", b.cfg.Host,
		"antenna", b.cfg.AntennaID,
		"timezone", b.loc.String(),
		"silent", b.cfg.Silent)

	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Panic in main loop", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
		b.shutdown(ctx, err)
	}()

	for {
		if ctx.Err() != nil {
			b.logger.Info("Shutdown signal received")
			return nil
		}

		if err := b.cycle(ctx); err != nil {
			switch {
			case errors.Is(err, errShutdownRequested):
				b.logger.Info("Shutdown requested by admin")
				return nil
			case ctx.Err() != nil:
				b.logger.Info("Shutdown signal received")
				return nil
			default:
				return err
			}
		}

		if b.cfg.Silent {
			b.logger.Warn("Silent mode: stopping after one cycle")
			return nil
		}

		if err := sleep(ctx, b.clock, b.cfg.RefreshRate); err != nil {
			b.logger.Info("Shutdown signal received")
			return nil
		}
	}
}

// cycle runs one pass of the state machine: rollover and autosave when due,
// then the three feeds in order.
func (b *Bot) cycle(ctx context.Context) error {
	now := b.clock.Now()
	if !calendar.SameDay(b.dayMark, now, b.loc) {
		if err := b.rollover(ctx); err != nil {
			return err
		}
	}
	if b.clock.Since(b.autosaveMark) >= b.cfg.AutosaveInterval {
		b.autosave(ctx)
	}

	if b.cfg.AntennaID != "" {
		if err := b.pollNotes(ctx, b.antenna); err != nil {
			return err
		}
	}
	if err := b.pollNotes(ctx, b.timeline); err != nil {
		return err
	}

	items, err := b.notifications.Poll(ctx)
	b.recordCursor(b.notifications.Name(), b.notifications.Cursor())
	if err != nil {
		return fmt.Errorf("poll %s: %w", FeedNotifications, err)
	}
	for _, n := range items {
		if err := b.handleNotification(ctx, n); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bot) pollNotes(ctx context.Context, p *poll.Poller[*hbd.Note]) error {
	notes, err := p.Poll(ctx)
	b.recordCursor(p.Name(), p.Cursor())
	if err != nil {
		return fmt.Errorf("poll %s: %w", p.Name(), err)
	}
	for _, n := range notes {
		if err := b.handleNote(ctx, n); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bot) recordCursor(feed, cursor string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cursors[feed] = cursor
}

// shutdown reports cause to the admin, unless the stop was orderly, and
// takes the final snapshot.
func (b *Bot) shutdown(ctx context.Context, cause error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	if cause != nil {
		b.logger.Error("Bot stopping after unrecoverable error", "error", cause)
		if b.alert != nil {
			if err := b.alert.Alert(ctx, cause); err != nil {
				b.logger.Error("Failed to alert admin", "error", err)
			}
		}
	}

	if err := b.save(ctx, "shutdown"); err != nil {
		b.logger.Error("Final snapshot failed", "error", err)
		return
	}
	b.logger.Info("Bot stopped")
}

// sleep waits for d on clock, returning ctx.Err() if cancelled first.
func sleep(ctx context.Context, clock clockwork.Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.Chan():
		return nil
	}
}
