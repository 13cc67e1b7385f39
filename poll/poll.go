// Package poll fetches new feed items since a stored watermark.
package poll

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"hbdbot/metrics"
	"hbdbot/pkg/hbd"
)

// Item is anything a feed returns that carries a stable identifier.
type Item interface {
	ItemID() string
}

// FetchFunc requests at most limit items newer than sinceID.
// An empty sinceID requests the latest items.
type FetchFunc[T Item] func(ctx context.Context, sinceID string, limit int) ([]T, error)

// Order is the direction in which a feed returns items.
type Order int

const (
	NewestFirst Order = iota
	OldestFirst
)

// Options configures a poller.
type Options struct {
	Clock     clockwork.Clock
	Logger    *slog.Logger
	BatchSize int
	Order     Order
	Refresh   time.Duration // Pause after every fetch
}

// Poller tracks one feed's watermark.
type Poller[T Item] struct {
	fetch  FetchFunc[T]
	clock  clockwork.Clock
	logger *slog.Logger
	name   string
	cursor string
	batch  int
	order  Order
	pause  time.Duration
}

// New creates a poller for the named feed.
func New[T Item](name string, fetch FetchFunc[T], opts Options) *Poller[T] {
	return &Poller[T]{
		name:   name,
		fetch:  fetch,
		clock:  opts.Clock,
		logger: opts.Logger,
		batch:  opts.BatchSize,
		order:  opts.Order,
		pause:  opts.Refresh,
	}
}

// Poll returns the items published since the last successful poll.
//
// A timeout yields no items and no error and leaves the watermark alone.
// Other fetch errors are returned. The poller pauses for the refresh
// interval after every fetch, whatever its outcome.
func (p *Poller[T]) Poll(ctx context.Context) ([]T, error) {
	items, err := p.fetch(ctx, p.cursor, p.batch)
	p.rest(ctx)

	if err != nil {
		if isTimeout(err) && ctx.Err() == nil {
			p.logger.Warn("Feed fetch timed out, treating as empty", "feed", p.name, "cursor", p.cursor, "error", err)
			metrics.PollTimeoutsTotal.WithLabelValues(p.name).Inc()
			return nil, nil
		}
		return nil, err
	}

	// Some servers include the item named by sinceId in the response.
	fresh := items[:0:0]
	for _, it := range items {
		if p.cursor != "" && it.ItemID() == p.cursor {
			continue
		}
		fresh = append(fresh, it)
	}

	if len(fresh) == 0 {
		p.logger.Debug("No new items", "feed", p.name, "cursor", p.cursor)
		return nil, nil
	}

	previous := p.cursor
	if p.order == NewestFirst {
		p.cursor = fresh[0].ItemID()
	} else {
		p.cursor = fresh[len(fresh)-1].ItemID()
	}
	metrics.PollItemsTotal.WithLabelValues(p.name).Add(float64(len(fresh)))

	p.logger.Info("Feed items fetched",
		"feed", p.name,
		"count", len(fresh),
		"batch_size", p.batch,
		"previous_cursor", previous,
		"cursor", p.cursor)

	return fresh, nil
}

// Name returns the feed name.
func (p *Poller[T]) Name() string {
	return p.name
}

// Cursor returns the current watermark; empty means "from now".
func (p *Poller[T]) Cursor() string {
	return p.cursor
}

// SetCursor restores a persisted watermark.
func (p *Poller[T]) SetCursor(id string) {
	p.cursor = id
}

// Reset clears the watermark so the next poll re-reads the live feed head.
func (p *Poller[T]) Reset() {
	p.cursor = ""
}

func (p *Poller[T]) rest(ctx context.Context) {
	if p.pause <= 0 {
		return
	}
	timer := p.clock.NewTimer(p.pause)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.Chan():
	}
}

func isTimeout(err error) bool {
	return errors.Is(err, hbd.ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}
