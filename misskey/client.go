// Package misskey is a small client for the Misskey HTTP API covering the
// feeds the bot polls and the actions it takes.
package misskey

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"

	"hbdbot/pkg/hbd"
)

// DefaultTimelineEndpoint is the timeline polled besides the antenna.
const DefaultTimelineEndpoint = "notes/timeline"

// Visibility controls who can see a note.
type Visibility string

const (
	VisibilityPublic    Visibility = "public"
	VisibilityHome      Visibility = "home"
	VisibilityFollowers Visibility = "followers"
	VisibilitySpecified Visibility = "specified"
)

// NewNote describes a note to create. A note with only RenoteID set is a pure renote.
type NewNote struct {
	Text           string
	ReplyID        string
	RenoteID       string
	Visibility     Visibility
	VisibleUserIDs []string
	LocalOnly      bool
}

// Options configures a client.
type Options struct {
	// RemoteURL builds the base URL of another instance for anonymous user
	// lookups. Defaults to https://<host>.
	RemoteURL        func(host string) string
	BaseURL          string // Defaults to https://<Host>
	Host             string
	Token            string
	AntennaID        string
	TimelineEndpoint string
	RetryAttempts    uint
	RetryDelay       time.Duration
}

// Client talks to one Misskey instance as the bot account.
type Client struct {
	client    *http.Client
	logger    *slog.Logger
	remoteURL func(host string) string
	baseURL   string
	token     string
	antennaID string
	timeline  string
	attempts  uint
	delay     time.Duration
}

// New creates a new client.
func New(httpClient *http.Client, opts Options, logger *slog.Logger) *Client {
	c := &Client{
		client:    httpClient,
		logger:    logger,
		remoteURL: opts.RemoteURL,
		baseURL:   strings.TrimSuffix(opts.BaseURL, "/"),
		token:     opts.Token,
		antennaID: opts.AntennaID,
		timeline:  opts.TimelineEndpoint,
		attempts:  opts.RetryAttempts,
		delay:     opts.RetryDelay,
	}
	if c.baseURL == "" {
		c.baseURL = "https://" + opts.Host
	}
	if c.remoteURL == nil {
		c.remoteURL = func(host string) string { return "https://" + host }
	}
	if c.timeline == "" {
		c.timeline = DefaultTimelineEndpoint
	}
	if c.attempts == 0 {
		c.attempts = 3
	}
	if c.delay == 0 {
		c.delay = time.Second
	}
	return c
}

// AntennaNotes returns notes of the configured antenna, newest first.
func (c *Client) AntennaNotes(ctx context.Context, sinceID string, limit int) ([]*hbd.Note, error) {
	body := map[string]any{"antennaId": c.antennaID, "limit": limit}
	if sinceID != "" {
		body["sinceId"] = sinceID
	}
	return c.notes(ctx, "antennas/notes", body)
}

// Timeline returns notes of the configured timeline, newest first.
func (c *Client) Timeline(ctx context.Context, sinceID string, limit int) ([]*hbd.Note, error) {
	body := map[string]any{"limit": limit}
	if sinceID != "" {
		body["sinceId"] = sinceID
	}
	return c.notes(ctx, c.timeline, body)
}

func (c *Client) notes(ctx context.Context, endpoint string, body map[string]any) ([]*hbd.Note, error) {
	var raw []apiNote
	if err := c.read(ctx, c.baseURL, endpoint, body, &raw, true); err != nil {
		return nil, err
	}
	notes := make([]*hbd.Note, 0, len(raw))
	for i := range raw {
		notes = append(notes, raw[i].toNote())
	}
	return notes, nil
}

// Notifications returns the bot's notifications of the given kinds, newest first.
func (c *Client) Notifications(ctx context.Context, sinceID string, limit int, kinds []hbd.NotificationKind) ([]*hbd.Notification, error) {
	types := make([]string, 0, len(kinds))
	for _, k := range kinds {
		types = append(types, k.String())
	}
	body := map[string]any{"limit": limit, "includeTypes": types}
	if sinceID != "" {
		body["sinceId"] = sinceID
	}

	var raw []apiNotification
	if err := c.read(ctx, c.baseURL, "i/notifications", body, &raw, true); err != nil {
		return nil, err
	}
	out := make([]*hbd.Notification, 0, len(raw))
	for i := range raw {
		out = append(out, raw[i].toNotification())
	}
	return out, nil
}

// LookupUser fetches a profile. Remote users are looked up anonymously on
// their own instance, which is the only place their birthday is published.
func (c *Client) LookupUser(ctx context.Context, username, host string) (hbd.User, error) {
	base, authed := c.baseURL, true
	if host != "" {
		base, authed = strings.TrimSuffix(c.remoteURL(host), "/"), false
	}

	var raw apiUser
	if err := c.read(ctx, base, "users/show", map[string]any{"username": username}, &raw, authed); err != nil {
		return hbd.User{}, err
	}
	u := raw.toUser()
	if host != "" {
		// On its own instance the user is local; keep the identity we were asked about.
		u.Host = host
	}
	return u, nil
}

// Me returns the bot account.
func (c *Client) Me(ctx context.Context) (hbd.User, error) {
	var raw apiUser
	if err := c.read(ctx, c.baseURL, "i", map[string]any{}, &raw, true); err != nil {
		return hbd.User{}, err
	}
	return raw.toUser(), nil
}

// CreateNote posts a note. It is not retried; callers decide how to back off.
func (c *Client) CreateNote(ctx context.Context, n NewNote) (string, error) {
	body := map[string]any{}
	if n.Text != "" {
		body["text"] = n.Text
	}
	if n.ReplyID != "" {
		body["replyId"] = n.ReplyID
	}
	if n.RenoteID != "" {
		body["renoteId"] = n.RenoteID
	}
	if n.Visibility != "" {
		body["visibility"] = string(n.Visibility)
	}
	if len(n.VisibleUserIDs) > 0 {
		body["visibleUserIds"] = n.VisibleUserIDs
	}
	if n.LocalOnly {
		body["localOnly"] = true
	}

	var resp struct {
		CreatedNote apiNote `json:"createdNote"`
	}
	if err := c.call(ctx, c.baseURL, "notes/create", body, &resp, true); err != nil {
		return "", err
	}
	c.logger.Info("Note created", "note_id", resp.CreatedNote.ID, "reply_id", n.ReplyID, "renote_id", n.RenoteID, "visibility", n.Visibility)
	return resp.CreatedNote.ID, nil
}

// CreateReaction adds a reaction. A duplicate reaction yields an error
// matching hbd.ErrAlreadyReacted.
func (c *Client) CreateReaction(ctx context.Context, noteID, reaction string) error {
	body := map[string]any{"noteId": noteID, "reaction": reaction}
	if err := c.call(ctx, c.baseURL, "notes/reactions/create", body, nil, true); err != nil {
		return err
	}
	c.logger.Info("Reaction created", "note_id", noteID, "reaction", reaction)
	return nil
}

// read performs an idempotent call with retries on network and server errors.
// The error of the last attempt is returned unwrapped so callers can match it.
func (c *Client) read(ctx context.Context, base, endpoint string, body map[string]any, out any, authed bool) error {
	var lastErr error
	err := retry.Do(
		func() error {
			lastErr = c.call(ctx, base, endpoint, body, out, authed)
			return lastErr
		},
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.MaxDelay(30*time.Second),
		retry.MaxJitter(c.delay),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Info("Retrying API call after error", "endpoint", endpoint, "attempt", n, "error", err)
		}),
		retry.RetryIf(retryable),
	)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil || lastErr == nil {
		return fmt.Errorf("%s after retries: %w", endpoint, err)
	}
	return lastErr
}

// call performs a single API request.
func (c *Client) call(ctx context.Context, base, endpoint string, body map[string]any, out any, authed bool) error {
	payload := make(map[string]any, len(body)+1)
	for k, v := range body {
		payload[k] = v
	}
	if authed {
		payload["i"] = c.token
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", endpoint, err)
	}

	url := base + "/api/" + endpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "hbdbot")

	start := time.Now()
	resp, err := c.client.Do(req)
	duration := time.Since(start)
	if err != nil {
		c.logger.Warn("API request failed", "endpoint", endpoint, "duration_ms", duration.Milliseconds(), "error", err)
		return classify(ctx, endpoint, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn("Failed to close response body", "error", closeErr)
		}
	}()

	c.logger.Debug("API request completed", "endpoint", endpoint, "status_code", resp.StatusCode, "duration_ms", duration.Milliseconds())

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return classify(ctx, endpoint, err)
	}

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Endpoint: endpoint, Status: resp.StatusCode}
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
				ID      string `json:"id"`
			} `json:"error"`
		}
		if json.Unmarshal(respBody, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
			apiErr.ID = envelope.Error.ID
		}
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode %s response: %w: %w", endpoint, errMalformed, err)
	}
	return nil
}
