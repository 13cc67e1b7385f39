// Package ratelimit throttles the bot's outbound calls so it never trips the
// server's own rate limits.
package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"hbdbot/metrics"
)

// Limits configures the gate.
type Limits struct {
	PerHour   int           // Admissions allowed in any trailing hour
	PerMinute int           // Admissions allowed in any trailing minute
	Spacing   time.Duration // Pause after every admitted action
	Margin    time.Duration // Added to every window wait
}

// DefaultLimits mirrors the budget the bot has always run with.
func DefaultLimits() Limits {
	return Limits{
		PerHour:   60,
		PerMinute: 5,
		Spacing:   time.Second,
		Margin:    time.Second,
	}
}

// Gate admits outbound actions against a sliding log of past admissions.
// All actions share one budget and run one at a time.
type Gate struct {
	clock  clockwork.Clock
	logger *slog.Logger
	limits Limits

	turn sync.Mutex  // Held for the whole of Do so actions run one at a time
	mu   sync.Mutex  // Guards log
	log  []time.Time // Admission times, oldest first, never older than an hour
}

// New creates a gate.
func New(clock clockwork.Clock, limits Limits, logger *slog.Logger) *Gate {
	return &Gate{
		clock:  clock,
		limits: limits,
		logger: logger,
	}
}

// Do waits until the action is admitted, runs it, records the admission and
// sleeps the configured spacing. It returns the action's error, or the
// context error if ctx is cancelled while waiting.
func (g *Gate) Do(ctx context.Context, action func(context.Context) error) error {
	g.turn.Lock()
	defer g.turn.Unlock()

	for {
		now := g.clock.Now()
		g.mu.Lock()
		g.prune(now)
		wait, reason := g.delay(now)
		size := len(g.log)
		g.mu.Unlock()

		if wait <= 0 {
			break
		}

		g.logger.Info("Rate gate holding outbound action",
			"reason", reason,
			"wait", wait.String(),
			"resume_at", now.Add(wait).Format(time.RFC3339),
			"last_hour", size)
		metrics.RateGateWaitSeconds.Add(wait.Seconds())
		if err := sleep(ctx, g.clock, wait); err != nil {
			return err
		}
	}

	err := action(ctx)
	g.mu.Lock()
	g.log = append(g.log, g.clock.Now())
	metrics.RateGateLogSize.Set(float64(len(g.log)))
	g.mu.Unlock()

	if sleepErr := sleep(ctx, g.clock, g.limits.Spacing); sleepErr != nil && err == nil {
		return sleepErr
	}
	return err
}

// Len returns the number of admissions inside the trailing hour. It does not
// wait for an action in progress.
func (g *Gate) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prune(g.clock.Now())
	return len(g.log)
}

// prune drops admissions that left the hour window. The caller must hold g.mu.
func (g *Gate) prune(now time.Time) {
	cut := 0
	for cut < len(g.log) && !g.log[cut].Add(time.Hour).After(now) {
		cut++
	}
	if cut > 0 {
		g.log = append(g.log[:0], g.log[cut:]...)
	}
}

// delay returns how long the next admission must wait. The caller must hold
// g.mu and have pruned the log.
func (g *Gate) delay(now time.Time) (time.Duration, string) {
	if g.limits.PerHour > 0 && len(g.log) >= g.limits.PerHour {
		// The oldest entries must leave the hour until one slot is free.
		oldest := g.log[len(g.log)-g.limits.PerHour]
		return oldest.Add(time.Hour).Sub(now) + g.limits.Margin, "hour"
	}

	if g.limits.PerMinute > 0 {
		inMinute := 0
		for _, t := range g.log {
			if t.Add(time.Minute).After(now) {
				inMinute++
			}
		}
		if inMinute >= g.limits.PerMinute {
			oldest := g.log[len(g.log)-g.limits.PerMinute]
			return oldest.Add(time.Minute).Sub(now) + g.limits.Margin, "minute"
		}
	}

	return 0, ""
}

// sleep waits for d on clock, returning early with ctx.Err() on cancellation.
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
