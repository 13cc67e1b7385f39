package bot

import (
	"context"
	"errors"
	"maps"
	"slices"
	"strings"
	"time"

	"hbdbot/calendar"
	"hbdbot/celebrate"
	"hbdbot/metrics"
	"hbdbot/misskey"
	"hbdbot/pkg/hbd"
	"hbdbot/storage"
)

// Status is a point-in-time view of the bot for the status page.
type Status struct {
	StartedAt    time.Time         `json:"started_at"`
	LastSaved    time.Time         `json:"last_saved,omitzero"`
	Cursors      map[string]string `json:"cursors"`
	Version      string            `json:"version"`
	Celebrations int               `json:"celebrations"`
	Subscribers  int               `json:"subscribers"`
	Responded    int               `json:"responded"`
	RateGateLog  int               `json:"rate_gate_log"`
	Silent       bool              `json:"silent"`
}

// Status returns the current state summary. Safe for concurrent use.
func (b *Bot) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Status{
		StartedAt:    b.startedAt,
		LastSaved:    b.lastSaved,
		Cursors:      maps.Clone(b.cursors),
		Version:      Version,
		Celebrations: b.celebrations.Len(),
		Subscribers:  len(b.subscribers),
		Responded:    len(b.responded),
		RateGateLog:  b.gate.Len(),
		Silent:       b.cfg.Silent,
	}
}

// Snapshot persists the current state. Safe for concurrent use.
func (b *Bot) Snapshot(ctx context.Context) error {
	return b.save(ctx, "manual")
}

func (b *Bot) save(ctx context.Context, trigger string) error {
	if b.cfg.Token == "" {
		b.logger.Warn("No access token, snapshot skipped", "trigger", trigger)
		metrics.SnapshotsTotal.WithLabelValues(trigger, "refused").Inc()
		return ErrNoCredentials
	}

	b.saveMu.Lock()
	defer b.saveMu.Unlock()

	now := b.clock.Now()
	doc := b.document(now)
	if err := b.store.Save(ctx, doc); err != nil {
		metrics.SnapshotsTotal.WithLabelValues(trigger, "error").Inc()
		return err
	}

	b.mu.Lock()
	b.lastSaved = now
	b.mu.Unlock()
	metrics.SnapshotsTotal.WithLabelValues(trigger, "ok").Inc()
	b.logger.Info("Snapshot saved", "trigger", trigger)
	return nil
}

// document builds the persisted form of the current state.
func (b *Bot) document(now time.Time) *storage.Document {
	b.mu.Lock()
	defer b.mu.Unlock()

	doc := storage.NewDocument()
	b.cfg.StoreDocument(doc)
	doc.SavedAt = now
	doc.SetCelebrations(b.celebrations.Entries())
	doc.BdList = maps.Clone(b.subscribers)
	doc.Responded = slices.Clone(b.responded)
	doc.NotificationSinceID = b.cursors[FeedNotifications]
	return doc
}

// Restore replaces the state with a loaded document. The notification
// cursor is restored; the antenna and timeline cursors are not, so those
// feeds resume from their live head. Must be called before Run.
func (b *Bot) Restore(doc *storage.Document) {
	celebrations, bad := doc.Celebrations(b.loc)
	if len(bad) > 0 {
		b.logger.Warn("Dropping unreadable celebration entries", "users", bad)
	}

	b.mu.Lock()
	b.celebrations = celebrate.RecordFrom(celebrations)
	b.subscribers = doc.Subscribers()
	b.responded = slices.Clone(doc.Responded)
	b.seen = make(map[string]struct{}, len(b.responded))
	for _, id := range b.responded {
		b.seen[id] = struct{}{}
	}
	b.cursors[FeedNotifications] = doc.NotificationSinceID
	metrics.Subscribers.Set(float64(len(b.subscribers)))
	b.mu.Unlock()

	b.notifications.SetCursor(doc.NotificationSinceID)

	// A restart across midnight still owes that day's rollover.
	if !doc.SavedAt.IsZero() {
		b.dayMark = doc.SavedAt
	}

	b.logger.Info("State restored",
		"celebrations", len(celebrations),
		"subscribers", len(doc.BdList),
		"responded", len(doc.Responded),
		"notification_cursor", doc.NotificationSinceID)
}

// autosave trims the handled-notification list, rewinds the note feeds to
// their live head and saves.
func (b *Bot) autosave(ctx context.Context) {
	b.logger.Info("Autosave")

	b.mu.Lock()
	if extra := len(b.responded) - RespondedKeep; extra > 0 {
		for _, id := range b.responded[:extra] {
			delete(b.seen, id)
		}
		b.responded = slices.Clone(b.responded[extra:])
	}
	b.mu.Unlock()

	b.antenna.Reset()
	b.timeline.Reset()
	b.recordCursor(FeedAntenna, "")
	b.recordCursor(FeedTimeline, "")

	if err := b.save(ctx, "autosave"); err != nil && !errors.Is(err, ErrNoCredentials) {
		b.logger.Error("Autosave failed", "error", err)
	}
	b.autosaveMark = b.clock.Now()
}

// rollover runs once per civil day: it saves, purges stale celebrations and
// greets subscribers whose birthday is today.
func (b *Bot) rollover(ctx context.Context) error {
	b.logger.Info("Civil day changed", "day", calendar.Today(b.clock.Now(), b.loc).Format(time.DateOnly))

	// Let the server's clock pass midnight too.
	if err := sleep(ctx, b.clock, b.cfg.RolloverDelay); err != nil {
		return err
	}
	now := b.clock.Now()
	b.dayMark = now

	if err := b.save(ctx, "rollover"); err != nil && !errors.Is(err, ErrNoCredentials) {
		b.logger.Error("Rollover snapshot failed", "error", err)
	}

	b.mu.Lock()
	removed := b.celebrations.Purge(now, celebrate.PurgeAge)
	remaining := b.celebrations.Len()
	candidates := b.birthdaySubscribers(now)
	b.mu.Unlock()
	b.logger.Info("Celebrations purged", "removed", removed, "remaining", remaining)

	for _, handle := range candidates {
		if err := b.greet(ctx, handle, now); err != nil {
			return err
		}
	}
	return nil
}

// birthdaySubscribers lists, in a stable order, subscribers whose stored
// birthday is today and who have not been celebrated today. The caller must
// hold b.mu.
func (b *Bot) birthdaySubscribers(now time.Time) []string {
	today := now.In(b.loc)
	var out []string
	for _, handle := range slices.Sorted(maps.Keys(b.subscribers)) {
		bd, err := hbd.ParseBirthday(b.subscribers[handle])
		if err != nil || !calendar.IsToday(today, bd) {
			continue
		}
		if b.celebrations.CelebratedOn(handle, now, b.loc) {
			continue
		}
		out = append(out, handle)
	}
	return out
}

// greet posts a birthday message for a subscriber after confirming the
// birthday against their current profile.
func (b *Bot) greet(ctx context.Context, handle string, now time.Time) error {
	username, host, _ := strings.Cut(handle, "@")
	user, err := b.profile(ctx, hbd.User{Username: username, Host: host})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b.logger.Warn("Failed to read subscriber profile", "user", handle, "error", err)
		return nil
	}
	if !calendar.IsToday(now.In(b.loc), user.Birthday) {
		b.logger.Info("Subscriber birthday moved, not greeting", "user", handle, "birthday", user.Birthday.String())
		return nil
	}

	if err := b.post(ctx, "greeting", misskey.NewNote{Text: b.dispatcher.Congratulate(user, now)}); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b.logger.Warn("Birthday greeting failed", "user", handle, "error", err)
		return nil
	}
	b.logger.Info("Subscriber greeted", "user", handle)
	return nil
}
