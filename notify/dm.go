package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"hbdbot/misskey"
	"hbdbot/pkg/hbd"
)

// Poster is the part of the Misskey client a direct message needs.
type Poster interface {
	LookupUser(ctx context.Context, username, host string) (hbd.User, error)
	CreateNote(ctx context.Context, n misskey.NewNote) (string, error)
}

// DMProvider sends alerts as local-only notes visible to the recipient alone.
type DMProvider struct {
	poster Poster
	logger *slog.Logger
	mu     sync.Mutex
	ids    map[string]string // Handle to user ID
}

// NewDMProvider creates a direct message provider.
func NewDMProvider(poster Poster, logger *slog.Logger) *DMProvider {
	return &DMProvider{
		poster: poster,
		logger: logger,
		ids:    make(map[string]string),
	}
}

// Send posts message with specified visibility to handle.
func (p *DMProvider) Send(ctx context.Context, handle, message string) error {
	id, err := p.userID(ctx, handle)
	if err != nil {
		return err
	}

	noteID, err := p.poster.CreateNote(ctx, misskey.NewNote{
		Text:           message,
		Visibility:     misskey.VisibilitySpecified,
		VisibleUserIDs: []string{id},
		LocalOnly:      true,
	})
	if err != nil {
		return fmt.Errorf("post direct message: %w", err)
	}

	p.logger.Info("Direct message sent", "to", handle, "note_id", noteID, "length", len(message))
	return nil
}

func (p *DMProvider) userID(ctx context.Context, handle string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if id, ok := p.ids[handle]; ok {
		return id, nil
	}

	username, host, _ := strings.Cut(strings.TrimPrefix(handle, "@"), "@")
	u, err := p.poster.LookupUser(ctx, username, host)
	if err != nil {
		return "", fmt.Errorf("look up %s: %w", handle, err)
	}
	if u.ID == "" {
		return "", fmt.Errorf("look up %s: user has no id", handle)
	}
	p.ids[handle] = u.ID
	return u.ID, nil
}
