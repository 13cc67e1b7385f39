package bot

import (
	"context"

	"hbdbot/conversation"
	"hbdbot/metrics"
	"hbdbot/misskey"
	"hbdbot/pkg/hbd"
)

// handleNote reshares and reacts to a note when it qualifies as a birthday
// celebration. Failures of a single note's actions are logged and skipped.
func (b *Bot) handleNote(ctx context.Context, note *hbd.Note) error {
	if b.isSelf(note.User) {
		return nil
	}

	target := note
	if note.IsPureRenote() {
		target = note.Renote
	}
	author := target.User
	if !author.Supported() {
		b.logger.Debug("Skipping note from unsupported software", "user", author.Handle(), "software", author.Software)
		return nil
	}

	user, err := b.profile(ctx, author)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b.logger.Warn("Failed to read profile, skipping note", "user", author.Handle(), "note_id", target.ID, "error", err)
		return nil
	}

	now := b.clock.Now()
	b.mu.Lock()
	decision := b.engine.Decide(target, user, b.celebrations, now)
	b.mu.Unlock()

	b.logger.Debug("Note checked",
		"note_id", target.ID,
		"user", user.Handle(),
		"reactions", target.Reactions[b.cfg.TargetReaction],
		"rule", decision.Rule,
		"reshare", decision.Reshare)
	if !decision.Reshare {
		return nil
	}

	if err := b.post(ctx, "renote", misskey.NewNote{RenoteID: target.ID}); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b.logger.Warn("Reshare failed", "note_id", target.ID, "user", user.Handle(), "error", err)
		return nil
	}
	if err := b.react(ctx, target.ID, b.cfg.TargetReaction); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b.logger.Warn("Reaction failed", "note_id", target.ID, "error", err)
	}

	b.mu.Lock()
	b.celebrations.Mark(user.Handle(), b.clock.Now())
	b.mu.Unlock()

	metrics.ResharesTotal.WithLabelValues(string(decision.Rule)).Inc()
	b.logger.Info("Birthday note reshared", "note_id", target.ID, "user", user.Handle(), "rule", decision.Rule)
	return nil
}

// handleNotification answers mentions, replies and follows. Each
// notification is handled at most once.
func (b *Bot) handleNotification(ctx context.Context, n *hbd.Notification) error {
	if b.hasResponded(n.ID) {
		b.logger.Debug("Notification already handled", "id", n.ID)
		return nil
	}
	if n.User == nil {
		return nil
	}
	b.markResponded(n.ID)

	switch n.Kind {
	case hbd.KindMention, hbd.KindReply, hbd.KindFollow:
	default:
		return nil
	}

	sender := *n.User
	if !sender.Supported() {
		b.logger.Debug("Skipping notification from unsupported software", "user", sender.Handle(), "software", sender.Software)
		return nil
	}
	if user, err := b.profile(ctx, sender); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b.logger.Warn("Failed to read profile, answering without birthday", "user", sender.Handle(), "error", err)
	} else {
		sender = user
	}

	b.logger.Info("Notification received", "id", n.ID, "kind", n.Kind, "user", sender.Handle(), "text", summarize(n.Text()))

	action, ok := b.dispatcher.Respond(n.Kind, n.Text(), sender, b.clock.Now())
	if !ok {
		if n.Note == nil {
			return nil
		}
		if err := b.react(ctx, n.Note.ID, b.cfg.ConfusedReaction); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.logger.Warn("Confused reaction failed", "note_id", n.Note.ID, "error", err)
		}
		return nil
	}

	note := misskey.NewNote{Text: action.Text}
	if n.Kind != hbd.KindFollow {
		note.Visibility = misskey.VisibilityFollowers
		// Replies to notes on other instances are rejected, so those get a plain mention.
		if n.Note != nil && !sender.IsRemote() {
			note.ReplyID = n.Note.ID
		}
	}
	if err := b.post(ctx, action.Kind.String(), note); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b.logger.Warn("Reply failed", "kind", action.Kind, "user", sender.Handle(), "error", err)
	} else {
		metrics.RepliesTotal.WithLabelValues(action.Kind.String()).Inc()
	}

	if action.Subscribe {
		b.subscribe(sender.Handle(), action.Birthday)
	}
	if action.Kind == conversation.ActionShutdown {
		return errShutdownRequested
	}
	return nil
}

func (b *Bot) isSelf(u hbd.User) bool {
	if b.self.ID != "" && u.ID == b.self.ID {
		return true
	}
	return b.self.Username != "" && !u.IsRemote() && u.Username == b.self.Username
}

func (b *Bot) hasResponded(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.seen[id]
	return ok
}

func (b *Bot) markResponded(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.responded = append(b.responded, id)
	b.seen[id] = struct{}{}
}

func (b *Bot) subscribe(handle, birthday string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[handle] = birthday
	metrics.Subscribers.Set(float64(len(b.subscribers)))
	b.logger.Info("Subscriber registered", "user", handle, "birthday", birthday)
}

func summarize(s string) string {
	r := []rune(s)
	if len(r) > 30 {
		return string(r[:30]) + "…"
	}
	return string(r)
}
