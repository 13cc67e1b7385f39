package poll

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"hbdbot/internal/clocktest"
	"hbdbot/pkg/hbd"
)

type item string

func (i item) ItemID() string { return string(i) }

type call struct {
	since string
	limit int
}

// scripted returns one response per call, in order.
type scripted struct {
	responses []response
	calls     []call
}

type response struct {
	items []item
	err   error
}

func (s *scripted) fetch(_ context.Context, since string, limit int) ([]item, error) {
	s.calls = append(s.calls, call{since: since, limit: limit})
	if len(s.calls) > len(s.responses) {
		return nil, nil
	}
	r := s.responses[len(s.calls)-1]
	return r.items, r.err
}

func newTestPoller(order Order, s *scripted) (*Poller[item], *clocktest.Jump) {
	clock := clocktest.NewJump(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	p := New("test", s.fetch, Options{
		Clock:     clock,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		BatchSize: 10,
		Order:     order,
		Refresh:   5 * time.Second,
	})
	return p, clock
}

func TestPollAdvancesCursor(t *testing.T) {
	tests := []struct {
		name       string
		order      Order
		items      []item
		wantCursor string
	}{
		{
			name:       "newest first takes first item",
			order:      NewestFirst,
			items:      []item{"c", "b", "a"},
			wantCursor: "c",
		},
		{
			name:       "oldest first takes last item",
			order:      OldestFirst,
			items:      []item{"a", "b", "c"},
			wantCursor: "c",
		},
		{
			name:       "single item",
			order:      NewestFirst,
			items:      []item{"x"},
			wantCursor: "x",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &scripted{responses: []response{{items: tt.items}}}
			p, _ := newTestPoller(tt.order, s)

			got, err := p.Poll(context.Background())
			if err != nil {
				t.Fatalf("Poll() error = %v", err)
			}
			if len(got) != len(tt.items) {
				t.Errorf("Poll() returned %d items, want %d", len(got), len(tt.items))
			}
			if p.Cursor() != tt.wantCursor {
				t.Errorf("Cursor() = %q, want %q", p.Cursor(), tt.wantCursor)
			}
		})
	}
}

func TestPollPassesCursorAndBatch(t *testing.T) {
	s := &scripted{responses: []response{
		{items: []item{"b", "a"}},
		{items: []item{"d", "c"}},
	}}
	p, _ := newTestPoller(NewestFirst, s)

	for range 2 {
		if _, err := p.Poll(context.Background()); err != nil {
			t.Fatalf("Poll() error = %v", err)
		}
	}

	want := []call{{since: "", limit: 10}, {since: "b", limit: 10}}
	if len(s.calls) != len(want) {
		t.Fatalf("got %d calls, want %d", len(s.calls), len(want))
	}
	for i := range want {
		if s.calls[i] != want[i] {
			t.Errorf("call %d = %+v, want %+v", i, s.calls[i], want[i])
		}
	}
	if p.Cursor() != "d" {
		t.Errorf("Cursor() = %q, want %q", p.Cursor(), "d")
	}
}

func TestPollEmptyKeepsCursor(t *testing.T) {
	s := &scripted{responses: []response{{items: nil}}}
	p, _ := newTestPoller(NewestFirst, s)
	p.SetCursor("n1")

	got, err := p.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Poll() returned %d items, want 0", len(got))
	}
	if p.Cursor() != "n1" {
		t.Errorf("Cursor() = %q, want %q", p.Cursor(), "n1")
	}
}

func TestPollDropsItemAtCursor(t *testing.T) {
	s := &scripted{responses: []response{{items: []item{"n3", "n2", "n1"}}}}
	p, _ := newTestPoller(OldestFirst, s)
	p.SetCursor("n3")

	got, err := p.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Poll() returned %d items, want 2", len(got))
	}
	for _, it := range got {
		if it == "n3" {
			t.Error("item equal to the cursor was not dropped")
		}
	}
	if p.Cursor() != "n1" {
		t.Errorf("Cursor() = %q, want %q", p.Cursor(), "n1")
	}
}

func TestPollOnlyCursorItemIsEmpty(t *testing.T) {
	s := &scripted{responses: []response{{items: []item{"n1"}}}}
	p, _ := newTestPoller(OldestFirst, s)
	p.SetCursor("n1")

	got, err := p.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Poll() returned %d items, want 0", len(got))
	}
	if p.Cursor() != "n1" {
		t.Errorf("Cursor() = %q, want %q", p.Cursor(), "n1")
	}
}

func TestPollTimeoutIsEmpty(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "sentinel", err: fmt.Errorf("fetch antenna: %w", hbd.ErrTimeout)},
		{name: "deadline", err: fmt.Errorf("post: %w", context.DeadlineExceeded)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &scripted{responses: []response{{err: tt.err}}}
			p, _ := newTestPoller(NewestFirst, s)
			p.SetCursor("keep")

			got, err := p.Poll(context.Background())
			if err != nil {
				t.Fatalf("Poll() error = %v, want nil", err)
			}
			if got != nil {
				t.Errorf("Poll() = %v, want nil", got)
			}
			if p.Cursor() != "keep" {
				t.Errorf("Cursor() = %q, want %q", p.Cursor(), "keep")
			}
		})
	}
}

func TestPollReturnsOtherErrors(t *testing.T) {
	boom := errors.New("boom")
	s := &scripted{responses: []response{{err: boom}}}
	p, _ := newTestPoller(NewestFirst, s)
	p.SetCursor("keep")

	_, err := p.Poll(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("Poll() error = %v, want %v", err, boom)
	}
	if p.Cursor() != "keep" {
		t.Errorf("Cursor() = %q, want %q", p.Cursor(), "keep")
	}
}

func TestPollSleepsAfterEveryCall(t *testing.T) {
	s := &scripted{responses: []response{
		{items: []item{"a"}},
		{items: nil},
		{err: hbd.ErrTimeout},
		{err: errors.New("boom")},
	}}
	p, clock := newTestPoller(NewestFirst, s)
	start := clock.Now()

	for range 4 {
		_, _ = p.Poll(context.Background())
	}

	if got, want := clock.Since(start), 20*time.Second; got != want {
		t.Errorf("elapsed = %v, want %v", got, want)
	}
}

func TestPollReset(t *testing.T) {
	s := &scripted{responses: []response{{items: []item{"a"}}, {items: []item{"b"}}}}
	p, _ := newTestPoller(NewestFirst, s)

	if _, err := p.Poll(context.Background()); err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	p.Reset()
	if p.Cursor() != "" {
		t.Fatalf("Cursor() after Reset = %q, want empty", p.Cursor())
	}
	if _, err := p.Poll(context.Background()); err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if s.calls[1].since != "" {
		t.Errorf("since after Reset = %q, want empty", s.calls[1].since)
	}
}
