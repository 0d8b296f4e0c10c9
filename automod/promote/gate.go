package promote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/horizon-devs/warden/automod/event"

	"github.com/puzpuzpuz/xsync/v3"
)

var ErrInvalidConfig = errors.New("invalid promotion gate config")

// number of distinct up-voters at which content gets promoted
var DefaultThreshold = 6

type Tally struct {
	Up   int
	Down int
}

// Republishes content which crossed the threshold (eg, posting it to a starboard channel).
type Promoter interface {
	PromoteContent(ctx context.Context, content event.ContentID, tally Tally) error
}

type PromoterFunc func(ctx context.Context, content event.ContentID, tally Tally) error

func (f PromoterFunc) PromoteContent(ctx context.Context, content event.ContentID, tally Tally) error {
	return f(ctx, content, tally)
}

type Config struct {
	Threshold int
	// Optional. When nil, crossing the threshold only sets the promoted flag.
	Promoter Promoter
	Logger   *slog.Logger
}

type VoteResult struct {
	// Counts after this vote was applied.
	Tally Tally
	// True only for the single call which crossed the threshold and triggered promotion.
	Promoted bool
	// False if the vote was a no-op (eg, a repeated vote in the same direction).
	Changed bool
}

type Gate struct {
	threshold int
	promoter  Promoter
	logger    *slog.Logger
	records   *xsync.MapOf[event.ContentID, *record]
}

type record struct {
	mu       sync.Mutex
	up       map[string]struct{}
	down     map[string]struct{}
	promoted bool
}

func newRecord() *record {
	return &record{
		up:   make(map[string]struct{}),
		down: make(map[string]struct{}),
	}
}

func (r *record) tally() Tally {
	return Tally{Up: len(r.up), Down: len(r.down)}
}

func NewGate(config Config) (*Gate, error) {
	if config.Threshold < 1 {
		return nil, fmt.Errorf("%w: threshold must be at least 1, got %d", ErrInvalidConfig, config.Threshold)
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		threshold: config.Threshold,
		promoter:  config.Promoter,
		logger:    logger.With("component", "promote"),
		records:   xsync.NewMapOf[event.ContentID, *record](),
	}, nil
}

func (g *Gate) Threshold() int {
	return g.threshold
}

// Records a vote, moving the voter out of the opposite direction if needed. A voter holds at most one vote per content.
//
// The promoted flag is set while the record is locked, and the Promoter is invoked after the lock is released, so exactly one caller ever promotes a given piece of content. A Promoter failure is logged and does not clear the flag.
func (g *Gate) Vote(ctx context.Context, content event.ContentID, voter string, dir event.Direction) (VoteResult, error) {
	if err := checkVote(content, voter, dir); err != nil {
		return VoteResult{}, err
	}

	rec, _ := g.records.LoadOrCompute(content, newRecord)

	rec.mu.Lock()
	mine, other := rec.up, rec.down
	if dir == event.Down {
		mine, other = rec.down, rec.up
	}
	_, already := mine[voter]
	if !already {
		mine[voter] = struct{}{}
		delete(other, voter)
	}
	res := VoteResult{Tally: rec.tally(), Changed: !already}
	if !rec.promoted && res.Tally.Up >= g.threshold {
		rec.promoted = true
		res.Promoted = true
	}
	rec.mu.Unlock()

	votesProcessed.WithLabelValues("vote", dir.String()).Inc()
	if res.Promoted {
		g.promote(ctx, content, res.Tally)
	}
	return res, nil
}

// Removes the voter's vote in the given direction, if present. Never reverses a promotion.
func (g *Gate) Retract(ctx context.Context, content event.ContentID, voter string, dir event.Direction) (Tally, error) {
	if err := checkVote(content, voter, dir); err != nil {
		return Tally{}, err
	}
	rec, ok := g.records.Load(content)
	if !ok {
		return Tally{}, nil
	}

	rec.mu.Lock()
	if dir == event.Up {
		delete(rec.up, voter)
	} else {
		delete(rec.down, voter)
	}
	t := rec.tally()
	rec.mu.Unlock()

	votesProcessed.WithLabelValues("retract", dir.String()).Inc()
	return t, nil
}

// Current counts. Unknown content has a zero tally.
func (g *Gate) Tally(content event.ContentID) Tally {
	rec, ok := g.records.Load(content)
	if !ok {
		return Tally{}
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.tally()
}

func (g *Gate) Promoted(content event.ContentID) bool {
	rec, ok := g.records.Load(content)
	if !ok {
		return false
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.promoted
}

func (g *Gate) promote(ctx context.Context, content event.ContentID, tally Tally) {
	logger := g.logger.With("content", content, "up", tally.Up, "down", tally.Down)
	if g.promoter == nil {
		promotions.WithLabelValues("skipped").Inc()
		logger.Info("content crossed promotion threshold (no promoter configured)")
		return
	}

	defer func() {
		if r := recover(); r != nil {
			promotions.WithLabelValues("panic").Inc()
			logger.Error("promoter panic", "err", r)
		}
	}()

	if err := g.promoter.PromoteContent(ctx, content, tally); err != nil {
		promotions.WithLabelValues("error").Inc()
		logger.Error("failed to promote content", "err", err)
		return
	}
	promotions.WithLabelValues("ok").Inc()
	logger.Info("promoted content")
}

func checkVote(content event.ContentID, voter string, dir event.Direction) error {
	if content == "" {
		return fmt.Errorf("vote: content id required")
	}
	if voter == "" {
		return fmt.Errorf("vote: voter required")
	}
	if dir != event.Up && dir != event.Down {
		return fmt.Errorf("vote: invalid direction %s", dir)
	}
	return nil
}
