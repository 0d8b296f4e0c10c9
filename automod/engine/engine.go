package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/horizon-devs/warden/automod/cachestore"
	"github.com/horizon-devs/warden/automod/event"
	"github.com/horizon-devs/warden/automod/keyword"
	"github.com/horizon-devs/warden/automod/promote"
	"github.com/horizon-devs/warden/automod/ratelimit"
	"github.com/horizon-devs/warden/automod/schedule"
	"github.com/horizon-devs/warden/pkg/clock"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("warden/engine")

// Returned when a synchronous request required an outbound action (eg, applying a restriction) and that action failed.
var ErrActionFailed = errors.New("moderation action failed")

type Config struct {
	// Rate limiter window (W) and burst threshold (N).
	Window         time.Duration
	BurstThreshold int
	// Distinct up-voters needed to promote content.
	PromotionThreshold int
	// Scheduler sweep interval.
	TickInterval     time.Duration
	MaxReminderDelay time.Duration
	// Length of the restriction applied automatically on a burst. Zero disables automatic restrictions.
	BurstRestriction     time.Duration
	BurstRestrictionKind schedule.RestrictionType
	// Max automatic restrictions per community per hour. Zero disables the circuit breaker.
	RestrictionQuota int64
	// Phrases for the content filter. Nil means keyword.DefaultBlocklist.
	Blocklist []string
	// How often idle rate windows are garbage-collected.
	JanitorInterval time.Duration

	Clock  clock.Clock
	Logger *slog.Logger
}

func DefaultConfig() Config {
	return Config{
		Window:               ratelimit.DefaultWindow,
		BurstThreshold:       ratelimit.DefaultThreshold,
		PromotionThreshold:   promote.DefaultThreshold,
		TickInterval:         schedule.DefaultTickInterval,
		MaxReminderDelay:     schedule.DefaultMaxReminderDelay,
		BurstRestriction:     5 * time.Minute,
		BurstRestrictionKind: schedule.RestrictionMute,
		RestrictionQuota:     30,
		JanitorInterval:      time.Minute,
	}
}

// Outbound implementations. Any may be nil, in which case the corresponding actions are skipped (or fail, for scheduled actions).
type Capabilities struct {
	Moderator Moderator
	Flagger   Flagger
	Notifier  Notifier
	Promoter  promote.Promoter
	// Enables the flag cooldown: repeat flags for the same actor and flag are suppressed for the store's TTL.
	Cache cachestore.CacheStore
}

// Connects inbound events to the rate limiter, content filter, scheduler, and promotion gate, and their results to the outbound capabilities.
type Engine struct {
	Logger    *slog.Logger
	Clock     clock.Clock
	Limiter   *ratelimit.Limiter
	Scheduler *schedule.Scheduler
	Gate      *promote.Gate
	Filter    *keyword.Filter
	Moderator Moderator
	Flagger   Flagger
	Notifier  Notifier
	// optional
	FlagCooldown *cachestore.Cooldown

	burstRestriction time.Duration
	burstKind        schedule.RestrictionType
	breaker          *restrictionBreaker
	janitorInterval  time.Duration
}

func NewEngine(config Config, caps Capabilities) (*Engine, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}
	if config.BurstRestriction < 0 {
		return nil, fmt.Errorf("burst restriction length must not be negative: %s", config.BurstRestriction)
	}
	kind := config.BurstRestrictionKind
	if kind == "" {
		kind = schedule.RestrictionMute
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown burst restriction type: %q", kind)
	}

	limiter, err := ratelimit.NewLimiter(ratelimit.Config{
		Window:    config.Window,
		Threshold: config.BurstThreshold,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	gate, err := promote.NewGate(promote.Config{
		Threshold: config.PromotionThreshold,
		Promoter:  caps.Promoter,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	sched := schedule.NewScheduler(schedule.Config{
		Clock:            clk,
		TickInterval:     config.TickInterval,
		MaxReminderDelay: config.MaxReminderDelay,
		Logger:           logger,
	})
	blocklist := config.Blocklist
	if blocklist == nil {
		blocklist = keyword.DefaultBlocklist
	}

	eng := &Engine{
		Logger:           logger.With("component", "engine"),
		Clock:            clk,
		Limiter:          limiter,
		Scheduler:        sched,
		Gate:             gate,
		Filter:           keyword.NewFilter(blocklist),
		Moderator:        caps.Moderator,
		Flagger:          caps.Flagger,
		Notifier:         caps.Notifier,
		burstRestriction: config.BurstRestriction,
		burstKind:        kind,
		breaker:          newRestrictionBreaker(config.RestrictionQuota),
		janitorInterval:  config.JanitorInterval,
	}
	if caps.Cache != nil {
		eng.FlagCooldown = &cachestore.Cooldown{Store: caps.Cache, Name: "flag-cooldown"}
	}
	sched.SetExecutor(schedule.RestrictionExpiry, schedule.ExecutorFunc(eng.expireRestriction))
	sched.SetExecutor(schedule.ReminderDelivery, schedule.ExecutorFunc(eng.deliverReminder))
	return eng, nil
}

// Runs the scheduler sweep loop and the rate limiter janitor until the context is cancelled.
func (eng *Engine) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return eng.Scheduler.Run(ctx)
	})
	g.Go(func() error {
		return eng.Limiter.RunJanitor(ctx, eng.Clock, eng.janitorInterval)
	})
	return g.Wait()
}

type ActivityResult struct {
	// The actor was at or over the burst threshold after this event.
	Burst bool
	// Flags recorded for this event (skipped or failed flags are not included).
	Flagged []string
	// An automatic restriction was applied, and ExpiryID is the pending action which will lift it.
	Restricted bool
	ExpiryID   string
	// Blocklist phrase matched by the event text, if any.
	BlockedPhrase string
	Removed       bool
}

// Processes one unit of actor activity: burst detection, then content filtering.
//
// Outbound failures are logged and counted, never returned. Errors are only returned for malformed events.
func (eng *Engine) OnActivityEvent(ctx context.Context, evt event.ActivityEvent) (res ActivityResult, err error) {
	// similar to an HTTP server, we want to recover any panics from capability code
	defer func() {
		if r := recover(); r != nil {
			eng.Logger.Error("activity event processing exception", "err", r, "actor", evt.Actor.String())
			eventErrorCount.WithLabelValues("activity").Inc()
			err = fmt.Errorf("activity event processing panic: %v", r)
		}
	}()

	if evt.Actor.Community == "" || evt.Actor.User == "" {
		eventErrorCount.WithLabelValues("activity").Inc()
		return res, fmt.Errorf("activity event missing actor")
	}

	ctx, span := tracer.Start(ctx, "OnActivityEvent", trace.WithAttributes(attribute.String("actor", evt.Actor.String())))
	defer span.End()
	start := time.Now()
	defer func() {
		eventProcessDuration.WithLabelValues("activity").Observe(time.Since(start).Seconds())
	}()
	eventProcessCount.WithLabelValues("activity").Inc()

	now := evt.Time
	if now.IsZero() {
		now = eng.Clock.Now()
	}
	logger := eng.Logger.With("actor", evt.Actor.String())

	if eng.Limiter.RecordEvent(evt.Actor, now) {
		res.Burst = true
		burstCount.Inc()
		eng.handleBurst(ctx, logger, evt, &res)
	}

	if phrase, ok := eng.Filter.Match(evt.Text); ok {
		res.BlockedPhrase = phrase
		blockedPhraseCount.Inc()
		eng.handleBlockedPhrase(ctx, logger, evt, &res)
	}

	span.SetAttributes(attribute.Bool("burst", res.Burst), attribute.Bool("blocked", res.BlockedPhrase != ""))
	return res, nil
}

func (eng *Engine) handleBurst(ctx context.Context, logger *slog.Logger, evt event.ActivityEvent, res *ActivityResult) {
	logger.Info("activity burst detected", "threshold", eng.Limiter.Threshold(), "window", eng.Limiter.Window())
	if eng.flagActor(ctx, logger, evt.Actor, FlagBurst) {
		res.Flagged = append(res.Flagged, FlagBurst)
	}

	if eng.burstRestriction <= 0 || eng.Moderator == nil {
		return
	}
	if eng.hasPendingExpiry(evt.Actor, eng.burstKind) {
		logger.Debug("actor already restricted, skipping automatic restriction")
		return
	}
	now := eng.Clock.Now()
	if !eng.breaker.Allow(evt.Actor.Community, now) {
		breakerTrips.Inc()
		logger.Warn("automatic restriction circuit breaker tripped", "community", evt.Actor.Community)
		return
	}

	until := now.Add(eng.burstRestriction)
	if err := eng.Moderator.ApplyTemporaryRestriction(ctx, evt.Actor, eng.burstKind, "burst of activity", until); err != nil {
		capabilityErrors.WithLabelValues("apply-restriction").Inc()
		logger.Error("failed to apply automatic restriction", "kind", eng.burstKind, "err", err)
		return
	}
	res.Restricted = true
	restrictionsApplied.WithLabelValues(string(eng.burstKind), "auto").Inc()

	id, err := eng.Scheduler.ScheduleAfter(schedule.RestrictionExpiry, eng.burstRestriction, schedule.Payload{
		Actor:       evt.Actor,
		Restriction: eng.burstKind,
	})
	if err != nil {
		logger.Error("failed to schedule restriction expiry", "err", err)
		return
	}
	res.ExpiryID = id
	logger.Info("applied automatic restriction", "kind", eng.burstKind, "until", until, "expiry", id)

	if evt.Message != nil {
		eng.postNotice(ctx, logger, evt.Message.Channel, evt.Actor, fmt.Sprintf("restricted (%s) for %s: too many messages", eng.burstKind, eng.burstRestriction))
	}
}

func (eng *Engine) handleBlockedPhrase(ctx context.Context, logger *slog.Logger, evt event.ActivityEvent, res *ActivityResult) {
	logger.Info("blocked phrase detected", "phrase", res.BlockedPhrase)
	if evt.Message != nil && eng.Moderator != nil {
		if err := eng.Moderator.RemoveContent(ctx, *evt.Message); err != nil {
			capabilityErrors.WithLabelValues("remove-content").Inc()
			logger.Error("failed to remove content", "channel", evt.Message.Channel, "message", evt.Message.Message, "err", err)
		} else {
			res.Removed = true
			contentRemovedCount.Inc()
		}
	}
	if eng.flagActor(ctx, logger, evt.Actor, FlagBlockedPhrase) {
		res.Flagged = append(res.Flagged, FlagBlockedPhrase)
	}
	if evt.Message != nil {
		eng.postNotice(ctx, logger, evt.Message.Channel, evt.Actor, "message removed: contained a blocked phrase")
	}
}

// Returns true if the flag was recorded.
func (eng *Engine) flagActor(ctx context.Context, logger *slog.Logger, actor event.ActorKey, flag string) bool {
	if eng.Flagger == nil {
		return false
	}
	if eng.FlagCooldown != nil {
		ok, err := eng.FlagCooldown.Allow(ctx, flagCooldownKey(actor, flag), eng.Clock.Now())
		if err != nil {
			// flag anyway; the cooldown is best-effort
			logger.Warn("flag cooldown check failed", "flag", flag, "err", err)
		} else if !ok {
			flagsSuppressed.WithLabelValues(flag).Inc()
			return false
		}
	}
	if err := eng.Flagger.FlagActor(ctx, actor, flag); err != nil {
		capabilityErrors.WithLabelValues("flag").Inc()
		logger.Error("failed to flag actor", "flag", flag, "err", err)
		return false
	}
	actionNewFlagCount.WithLabelValues(flag).Inc()
	return true
}

func flagCooldownKey(actor event.ActorKey, flag string) string {
	return actor.String() + "/" + flag
}

// Ends any flag cooldown for the actor and flag, so the next offence is flagged again. No-op without a cooldown.
func (eng *Engine) ResetFlagCooldown(ctx context.Context, actor event.ActorKey, flag string) error {
	if eng.FlagCooldown == nil {
		return nil
	}
	return eng.FlagCooldown.Reset(ctx, flagCooldownKey(actor, flag))
}

// Reports when the actor's cooldown for the flag started, if one is active.
func (eng *Engine) FlagCooldownSince(ctx context.Context, actor event.ActorKey, flag string) (time.Time, bool, error) {
	if eng.FlagCooldown == nil {
		return time.Time{}, false, nil
	}
	return eng.FlagCooldown.Since(ctx, flagCooldownKey(actor, flag))
}

// Number of the actor's events inside the current rate window.
func (eng *Engine) RecentActivity(actor event.ActorKey) int {
	return eng.Limiter.Count(actor, eng.Clock.Now())
}

func (eng *Engine) postNotice(ctx context.Context, logger *slog.Logger, destination string, subject event.ActorKey, text string) {
	if eng.Notifier == nil || destination == "" {
		return
	}
	if err := eng.Notifier.PostNotice(ctx, destination, subject, text); err != nil {
		capabilityErrors.WithLabelValues("post-notice").Inc()
		logger.Warn("failed to post notice", "destination", destination, "err", err)
	}
}

func (eng *Engine) hasPendingExpiry(actor event.ActorKey, kind schedule.RestrictionType) bool {
	return len(eng.Scheduler.Find(expiryMatcher(actor, kind))) > 0
}

func (eng *Engine) cancelExpiries(actor event.ActorKey, kind schedule.RestrictionType) int {
	return eng.Scheduler.CancelWhere(expiryMatcher(actor, kind))
}

func expiryMatcher(actor event.ActorKey, kind schedule.RestrictionType) func(schedule.Action) bool {
	return func(act schedule.Action) bool {
		return act.Kind == schedule.RestrictionExpiry && act.Payload.Actor == actor && act.Payload.Restriction == kind
	}
}

func (eng *Engine) OnVote(ctx context.Context, evt event.VoteEvent) (res promote.VoteResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			eng.Logger.Error("vote processing exception", "err", r, "content", evt.Content)
			eventErrorCount.WithLabelValues("vote").Inc()
			err = fmt.Errorf("vote processing panic: %v", r)
		}
	}()

	ctx, span := tracer.Start(ctx, "OnVote", trace.WithAttributes(
		attribute.String("content", string(evt.Content)),
		attribute.String("direction", evt.Direction.String()),
	))
	defer span.End()
	eventProcessCount.WithLabelValues("vote").Inc()

	res, err = eng.Gate.Vote(ctx, evt.Content, evt.Voter, evt.Direction)
	if err != nil {
		eventErrorCount.WithLabelValues("vote").Inc()
		return res, err
	}
	span.SetAttributes(attribute.Bool("promoted", res.Promoted))
	return res, nil
}

// Withdraws a vote (eg, a reaction was removed).
func (eng *Engine) OnVoteRetract(ctx context.Context, evt event.VoteEvent) (tally promote.Tally, err error) {
	defer func() {
		if r := recover(); r != nil {
			eng.Logger.Error("vote retraction exception", "err", r, "content", evt.Content)
			eventErrorCount.WithLabelValues("vote-retract").Inc()
			err = fmt.Errorf("vote retraction panic: %v", r)
		}
	}()

	ctx, span := tracer.Start(ctx, "OnVoteRetract", trace.WithAttributes(attribute.String("content", string(evt.Content))))
	defer span.End()
	eventProcessCount.WithLabelValues("vote-retract").Inc()

	tally, err = eng.Gate.Retract(ctx, evt.Content, evt.Voter, evt.Direction)
	if err != nil {
		eventErrorCount.WithLabelValues("vote-retract").Inc()
	}
	return tally, err
}

// A request to restrict someone temporarily, or to be reminded of something later.
type ScheduleRequest struct {
	Kind  schedule.Kind
	Delay time.Duration
	// Restriction target, or the user asking for a reminder.
	Actor event.ActorKey
	// Only for restrictions.
	Restriction schedule.RestrictionType
	Reason      string
	// Only for reminders.
	Destination string
	Text        string
}

// Registers a deferred action, returning its ID.
//
// For restrictions, the restriction is applied immediately and the expiry is only scheduled if that succeeds; a newer restriction of the same type replaces any pending expiry for the actor. Malformed requests return a *schedule.ValidationError.
func (eng *Engine) OnScheduleRequest(ctx context.Context, req ScheduleRequest) (id string, err error) {
	defer func() {
		if r := recover(); r != nil {
			eng.Logger.Error("schedule request exception", "err", r, "kind", req.Kind, "actor", req.Actor.String())
			eventErrorCount.WithLabelValues("schedule").Inc()
			err = fmt.Errorf("schedule request panic: %v", r)
		}
	}()

	ctx, span := tracer.Start(ctx, "OnScheduleRequest", trace.WithAttributes(
		attribute.String("kind", string(req.Kind)),
		attribute.String("actor", req.Actor.String()),
	))
	defer span.End()
	eventProcessCount.WithLabelValues("schedule").Inc()

	payload := schedule.Payload{
		Actor:       req.Actor,
		Restriction: req.Restriction,
		Destination: req.Destination,
		Text:        req.Text,
	}
	if err := eng.Scheduler.Check(req.Kind, req.Delay, payload); err != nil {
		eventErrorCount.WithLabelValues("schedule").Inc()
		return "", err
	}
	logger := eng.Logger.With("kind", req.Kind, "actor", req.Actor.String())

	if req.Kind == schedule.RestrictionExpiry {
		if eng.Moderator == nil {
			return "", fmt.Errorf("%w: no moderator configured", ErrActionFailed)
		}
		until := eng.Clock.Now().Add(req.Delay)
		if err := eng.Moderator.ApplyTemporaryRestriction(ctx, req.Actor, req.Restriction, req.Reason, until); err != nil {
			capabilityErrors.WithLabelValues("apply-restriction").Inc()
			logger.Error("failed to apply restriction", "restriction", req.Restriction, "err", err)
			return "", fmt.Errorf("%w: applying %s: %w", ErrActionFailed, req.Restriction, err)
		}
		restrictionsApplied.WithLabelValues(string(req.Restriction), "manual").Inc()

		// the new expiry supersedes any pending one for the same restriction
		var n int
		id, n, err = eng.Scheduler.Replace(expiryMatcher(req.Actor, req.Restriction), req.Kind, req.Delay, payload)
		if err != nil {
			eventErrorCount.WithLabelValues("schedule").Inc()
			return "", err
		}
		if n > 0 {
			logger.Info("replaced pending restriction expiry", "restriction", req.Restriction, "cancelled", n)
		}
		logger.Info("scheduled action", "id", id, "delay", req.Delay)
		return id, nil
	}

	id, err = eng.Scheduler.ScheduleAfter(req.Kind, req.Delay, payload)
	if err != nil {
		eventErrorCount.WithLabelValues("schedule").Inc()
		return "", err
	}
	logger.Info("scheduled action", "id", id, "delay", req.Delay)
	return id, nil
}

// Cancels a pending action. Returns false if it is unknown, already executed, or executing.
func (eng *Engine) OnCancelRequest(ctx context.Context, id string) bool {
	ok := eng.Scheduler.Cancel(id)
	eng.Logger.Info("cancel request", "id", id, "cancelled", ok)
	return ok
}

// Lifts a restriction on the platform ahead of its expiry. Only once that succeeds are pending expiries of that type cancelled and the actor's rate window cleared.
//
// Returns the number of pending expiries cancelled.
func (eng *Engine) LiftRestriction(ctx context.Context, actor event.ActorKey, kind schedule.RestrictionType) (int, error) {
	if actor.Community == "" || actor.User == "" {
		return 0, fmt.Errorf("lift restriction: actor required")
	}
	if !kind.Valid() {
		return 0, fmt.Errorf("lift restriction: unknown restriction type %q", kind)
	}
	ctx, span := tracer.Start(ctx, "LiftRestriction", trace.WithAttributes(attribute.String("actor", actor.String())))
	defer span.End()

	if eng.Moderator == nil {
		return 0, fmt.Errorf("%w: no moderator configured", ErrActionFailed)
	}
	// pending expiries stay scheduled unless the platform lift succeeds
	if err := eng.Moderator.LiftRestriction(ctx, actor, kind); err != nil {
		capabilityErrors.WithLabelValues("lift-restriction").Inc()
		return 0, fmt.Errorf("%w: lifting %s: %w", ErrActionFailed, kind, err)
	}
	n := eng.cancelExpiries(actor, kind)
	eng.Limiter.Reset(actor)
	restrictionsLifted.WithLabelValues(string(kind), "manual").Inc()
	eng.Logger.Info("lifted restriction", "actor", actor.String(), "kind", kind, "cancelled", n)
	return n, nil
}
