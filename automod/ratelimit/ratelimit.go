package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/horizon-devs/warden/automod/event"
	"github.com/horizon-devs/warden/pkg/clock"

	"github.com/puzpuzpuz/xsync/v3"
)

var ErrInvalidConfig = errors.New("invalid rate limiter config")

var (
	// defaults match the original anti-spam behavior: 5 messages within 5 seconds
	DefaultWindow    = 5 * time.Second
	DefaultThreshold = 5
)

type Config struct {
	// Length of the trailing window (W).
	Window time.Duration
	// Number of events within the window at which an actor counts as bursting (N).
	Threshold int
	Logger    *slog.Logger
}

// Limiter answers "has this actor had at least N events in the trailing W?".
//
// Safe for concurrent use. Mutation of a single actor's window is atomic with respect to other calls for the same actor.
type Limiter struct {
	window    time.Duration
	threshold int
	logger    *slog.Logger
	windows   *xsync.MapOf[event.ActorKey, *actorWindow]
}

type actorWindow struct {
	// ordered oldest-first; every entry is within the window of the most recent insert, after pruning
	times []time.Time
}

func NewLimiter(config Config) (*Limiter, error) {
	if config.Window <= 0 {
		return nil, fmt.Errorf("%w: window must be positive, got %s", ErrInvalidConfig, config.Window)
	}
	if config.Threshold <= 0 {
		return nil, fmt.Errorf("%w: threshold must be positive, got %d", ErrInvalidConfig, config.Threshold)
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{
		window:    config.Window,
		threshold: config.Threshold,
		logger:    logger.With("component", "ratelimit"),
		windows:   xsync.NewMapOf[event.ActorKey, *actorWindow](),
	}, nil
}

func (l *Limiter) Window() time.Duration {
	return l.window
}

func (l *Limiter) Threshold() int {
	return l.threshold
}

// Appends `now` to the actor's window, prunes everything older than `now - W`, and returns true iff the remaining count is at least the threshold.
//
// Does not reset the window when returning true: a sustained burst keeps returning true until pruning brings the count back under the threshold.
func (l *Limiter) RecordEvent(actor event.ActorKey, now time.Time) bool {
	count := 0
	l.windows.Compute(actor, func(w *actorWindow, loaded bool) (*actorWindow, bool) {
		if !loaded || w == nil {
			w = &actorWindow{}
		}
		w.times = append(w.times, now)
		w.prune(now, l.window)
		count = len(w.times)
		return w, false
	})
	return count >= l.threshold
}

// Returns the number of events for the actor within the window ending at `now`. Does not mutate state.
func (l *Limiter) Count(actor event.ActorKey, now time.Time) int {
	count := 0
	l.windows.Compute(actor, func(w *actorWindow, loaded bool) (*actorWindow, bool) {
		if !loaded || w == nil {
			// don't create an entry for a read
			return nil, true
		}
		for _, t := range w.times {
			if now.Sub(t) < l.window {
				count++
			}
		}
		return w, false
	})
	return count
}

// Drops all tracked activity for the actor.
func (l *Limiter) Reset(actor event.ActorKey) {
	l.windows.Delete(actor)
}

// Number of actors currently tracked.
func (l *Limiter) Size() int {
	return l.windows.Size()
}

// Removes windows which no longer hold any event within the window ending at `now`. Returns the number of windows removed.
func (l *Limiter) Prune(now time.Time) int {
	var stale []event.ActorKey
	l.windows.Range(func(k event.ActorKey, _ *actorWindow) bool {
		stale = append(stale, k)
		return true
	})

	removed := 0
	for _, k := range stale {
		l.windows.Compute(k, func(w *actorWindow, loaded bool) (*actorWindow, bool) {
			if !loaded || w == nil {
				return nil, true
			}
			if len(w.times) == 0 || now.Sub(w.times[len(w.times)-1]) >= l.window {
				removed++
				return nil, true
			}
			return w, false
		})
	}
	trackedWindows.Set(float64(l.windows.Size()))
	return removed
}

// Periodically prunes quiet windows until the context is cancelled. Expects to be run in a goroutine.
func (l *Limiter) RunJanitor(ctx context.Context, clk clock.Clock, every time.Duration) error {
	if every <= 0 {
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-clk.After(every):
			n := l.Prune(clk.Now())
			if n > 0 {
				l.logger.Debug("pruned idle rate windows", "removed", n, "remaining", l.Size())
			}
		}
	}
}

// drops leading timestamps which have aged out, reusing the backing array
func (w *actorWindow) prune(now time.Time, window time.Duration) {
	idx := 0
	for idx < len(w.times) && now.Sub(w.times[idx]) >= window {
		idx++
	}
	if idx == 0 {
		return
	}
	n := copy(w.times, w.times[idx:])
	clear(w.times[n:])
	w.times = w.times[:n]
}
