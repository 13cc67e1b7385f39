package bot

import (
	"context"
	"errors"
	"time"

	"github.com/codeGROOVE-dev/retry"

	"hbdbot/metrics"
	"hbdbot/misskey"
	"hbdbot/pkg/hbd"
)

// post creates a note through the rate gate. Timeouts and server rate limits
// are retried a bounded number of times; any other failure abandons the note.
func (b *Bot) post(ctx context.Context, kind string, n misskey.NewNote) error {
	if b.cfg.Silent {
		b.logger.Info("Silent mode: note not sent", "kind", kind, "reply_id", n.ReplyID, "renote_id", n.RenoteID, "text_length", len(n.Text))
		metrics.ActionsTotal.WithLabelValues(kind, "silent").Inc()
		return nil
	}

	var lastErr error
	err := retry.Do(
		func() error {
			lastErr = b.gate.Do(ctx, func(ctx context.Context) error {
				_, err := b.client.CreateNote(ctx, n)
				return err
			})
			return lastErr
		},
		retry.Attempts(b.cfg.PostAttempts),
		retry.Delay(b.cfg.PostRetryDelay),
		retry.MaxDelay(b.cfg.PostRetryDelay),
		retry.MaxJitter(b.cfg.PostRetryDelay/10+time.Millisecond),
		retry.Context(ctx),
		retry.OnRetry(func(attempt uint, err error) {
			b.logger.Warn("Retrying note after error", "kind", kind, "attempt", attempt, "error", err)
		}),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, hbd.ErrTimeout) || errors.Is(err, hbd.ErrRateLimited)
		}),
	)
	if err != nil {
		metrics.ActionsTotal.WithLabelValues(kind, "error").Inc()
		if lastErr != nil && ctx.Err() == nil {
			return lastErr
		}
		return err
	}
	metrics.ActionsTotal.WithLabelValues(kind, "ok").Inc()
	return nil
}

// react adds a reaction through the rate gate. A reaction that is already
// present counts as success.
func (b *Bot) react(ctx context.Context, noteID, reaction string) error {
	if b.cfg.Silent {
		b.logger.Info("Silent mode: reaction not sent", "note_id", noteID, "reaction", reaction)
		metrics.ActionsTotal.WithLabelValues("reaction", "silent").Inc()
		return nil
	}

	err := b.gate.Do(ctx, func(ctx context.Context) error {
		return b.client.CreateReaction(ctx, noteID, reaction)
	})
	switch {
	case err == nil:
		metrics.ActionsTotal.WithLabelValues("reaction", "ok").Inc()
		return nil
	case errors.Is(err, hbd.ErrAlreadyReacted):
		b.logger.Debug("Reaction already present", "note_id", noteID)
		metrics.ActionsTotal.WithLabelValues("reaction", "duplicate").Inc()
		return nil
	default:
		metrics.ActionsTotal.WithLabelValues("reaction", "error").Inc()
		return err
	}
}

// profile refreshes a user from their profile to read the birthday. The
// identity seen on this instance is kept.
func (b *Bot) profile(ctx context.Context, u hbd.User) (hbd.User, error) {
	fresh, err := b.client.LookupUser(ctx, u.Username, u.Host)
	if err != nil {
		return u, err
	}
	fresh.ID = u.ID
	fresh.Username = u.Username
	fresh.Host = u.Host
	fresh.Software = u.Software
	if fresh.Name == "" {
		fresh.Name = u.Name
	}
	return fresh, nil
}
