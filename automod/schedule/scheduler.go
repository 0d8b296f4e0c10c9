package schedule

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/horizon-devs/warden/pkg/clock"

	"github.com/google/uuid"
)

var (
	DefaultTickInterval = 10 * time.Second
	// reminders further out than this are rejected at registration
	DefaultMaxReminderDelay = 24 * time.Hour
)

// Performs the external side of an action when it comes due. A returned error is logged and the action is dropped.
type Executor interface {
	Execute(ctx context.Context, act Action) error
}

type ExecutorFunc func(ctx context.Context, act Action) error

func (f ExecutorFunc) Execute(ctx context.Context, act Action) error {
	return f(ctx, act)
}

type Config struct {
	Clock clock.Clock
	// How often Run sweeps. Bounds how late an action may execute.
	TickInterval time.Duration
	// Upper bound for reminder delays accepted by ScheduleAfter. Zero disables the bound.
	MaxReminderDelay time.Duration
	Logger           *slog.Logger
}

// Outcome counts for a single sweep.
type SweepResult struct {
	Executed int
	Failed   int
}

type Scheduler struct {
	clock            clock.Clock
	tickInterval     time.Duration
	maxReminderDelay time.Duration
	logger           *slog.Logger

	mu        sync.Mutex
	pending   map[string]*entry
	queue     actionQueue
	seq       uint64
	executors map[Kind]Executor
}

func NewScheduler(config Config) *Scheduler {
	clk := config.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}
	tick := config.TickInterval
	if tick <= 0 {
		tick = DefaultTickInterval
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		clock:            clk,
		tickInterval:     tick,
		maxReminderDelay: config.MaxReminderDelay,
		logger:           logger.With("component", "scheduler"),
		pending:          make(map[string]*entry),
		executors:        make(map[Kind]Executor),
	}
}

// Registers the executor for an action kind, replacing any earlier one.
func (s *Scheduler) SetExecutor(kind Kind, exec Executor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executors[kind] = exec
}

// Registers a pending action. `due` may be in the past, in which case the action runs on the next sweep.
func (s *Scheduler) Schedule(kind Kind, due time.Time, payload Payload) (string, error) {
	if err := validate(kind, payload); err != nil {
		return "", err
	}
	if due.IsZero() {
		return "", invalid("due", "required")
	}

	act := s.newAction(kind, due, payload)

	s.mu.Lock()
	s.pushLocked(act)
	size := len(s.pending)
	s.mu.Unlock()

	actionsScheduled.WithLabelValues(string(kind)).Inc()
	pendingActions.Set(float64(size))
	s.logger.Debug("scheduled action", "id", act.ID, "kind", kind, "due", due)
	return act.ID, nil
}

// Atomically cancels every pending action matching the predicate and registers a new one `delay` from now, validated as in ScheduleAfter.
//
// Returns the new action's id and how many actions were replaced. On a validation error nothing is cancelled. The predicate runs with the scheduler lock held.
func (s *Scheduler) Replace(match func(Action) bool, kind Kind, delay time.Duration, payload Payload) (string, int, error) {
	if err := s.Check(kind, delay, payload); err != nil {
		return "", 0, err
	}
	act := s.newAction(kind, s.clock.Now().Add(delay), payload)

	s.mu.Lock()
	var matched []*entry
	for _, ent := range s.pending {
		if match(ent.act) {
			matched = append(matched, ent)
		}
	}
	for _, ent := range matched {
		s.removeLocked(ent)
	}
	s.pushLocked(act)
	size := len(s.pending)
	s.mu.Unlock()

	for _, ent := range matched {
		actionsCancelled.WithLabelValues(string(ent.act.Kind)).Inc()
	}
	actionsScheduled.WithLabelValues(string(kind)).Inc()
	pendingActions.Set(float64(size))
	s.logger.Debug("replaced actions", "id", act.ID, "kind", kind, "due", act.Due, "replaced", len(matched))
	return act.ID, len(matched), nil
}

func (s *Scheduler) newAction(kind Kind, due time.Time, payload Payload) Action {
	return Action{
		ID:      uuid.NewString(),
		Kind:    kind,
		Due:     due,
		Created: s.clock.Now(),
		Payload: payload,
	}
}

func (s *Scheduler) pushLocked(act Action) {
	s.seq++
	ent := &entry{act: act, seq: s.seq}
	heap.Push(&s.queue, ent)
	s.pending[act.ID] = ent
}

// Registers an action to run `delay` from now. Non-positive delays, and reminders beyond the configured maximum, are rejected.
func (s *Scheduler) ScheduleAfter(kind Kind, delay time.Duration, payload Payload) (string, error) {
	if err := s.Check(kind, delay, payload); err != nil {
		return "", err
	}
	return s.Schedule(kind, s.clock.Now().Add(delay), payload)
}

// Runs the same validation as ScheduleAfter without registering anything.
func (s *Scheduler) Check(kind Kind, delay time.Duration, payload Payload) error {
	if err := validate(kind, payload); err != nil {
		return err
	}
	if delay <= 0 {
		return invalid("delay", "must be positive, got %s", delay)
	}
	if kind == ReminderDelivery && s.maxReminderDelay > 0 && delay > s.maxReminderDelay {
		return invalid("delay", "reminders can be at most %s out", s.maxReminderDelay)
	}
	return nil
}

// Removes a pending action. Returns false if the action is unknown, already executed, or currently executing.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	ent, ok := s.pending[id]
	if ok {
		s.removeLocked(ent)
	}
	size := len(s.pending)
	s.mu.Unlock()

	if !ok {
		return false
	}
	actionsCancelled.WithLabelValues(string(ent.act.Kind)).Inc()
	pendingActions.Set(float64(size))
	s.logger.Debug("cancelled action", "id", id, "kind", ent.act.Kind)
	return true
}

// Cancels every pending action matching the predicate, returning how many were removed.
//
// The predicate runs with the scheduler lock held and must not call back in to the scheduler.
func (s *Scheduler) CancelWhere(match func(Action) bool) int {
	s.mu.Lock()
	var matched []*entry
	for _, ent := range s.pending {
		if match(ent.act) {
			matched = append(matched, ent)
		}
	}
	for _, ent := range matched {
		s.removeLocked(ent)
	}
	size := len(s.pending)
	s.mu.Unlock()

	for _, ent := range matched {
		actionsCancelled.WithLabelValues(string(ent.act.Kind)).Inc()
	}
	pendingActions.Set(float64(size))
	return len(matched)
}

// Returns a copy of a pending action.
func (s *Scheduler) Get(id string) (Action, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ent, ok := s.pending[id]
	if !ok {
		return Action{}, false
	}
	return ent.act, true
}

// Returns copies of the pending actions matching the predicate, ordered by due time.
//
// The predicate runs with the scheduler lock held and must not call back in to the scheduler.
func (s *Scheduler) Find(match func(Action) bool) []Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Action
	for _, ent := range s.pending {
		if match(ent.act) {
			out = append(out, ent.act)
		}
	}
	slices.SortFunc(out, func(a, b Action) int {
		return a.Due.Compare(b.Due)
	})
	return out
}

func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Executes every action due at or before `now`.
//
// Due actions are removed from the pending set before any executor is invoked, so an action can never run twice, even if sweeps overlap or an executor calls back in to the scheduler. Failures are isolated per action.
func (s *Scheduler) Sweep(ctx context.Context, now time.Time) SweepResult {
	s.mu.Lock()
	var due []Action
	for s.queue.Len() > 0 && !s.queue[0].act.Due.After(now) {
		ent := heap.Pop(&s.queue).(*entry)
		delete(s.pending, ent.act.ID)
		due = append(due, ent.act)
	}
	size := len(s.pending)
	s.mu.Unlock()

	pendingActions.Set(float64(size))
	if len(due) == 0 {
		return SweepResult{}
	}

	var res SweepResult
	for _, act := range due {
		if err := s.execute(ctx, now, act); err != nil {
			res.Failed++
			s.logger.Error("scheduled action failed", "id", act.ID, "kind", act.Kind, "actor", act.Payload.Actor.String(), "err", err)
			continue
		}
		res.Executed++
	}
	s.logger.Info("sweep complete", "executed", res.Executed, "failed", res.Failed, "pending", size)
	return res
}

// Sweeps once per tick until the context is cancelled. Expects to be run in a goroutine.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("starting scheduler sweep loop", "tick", s.tickInterval)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("stopping scheduler sweep loop", "pending", s.Pending())
			return nil
		case <-s.clock.After(s.tickInterval):
			s.Sweep(ctx, s.clock.Now())
		}
	}
}

func (s *Scheduler) removeLocked(ent *entry) {
	delete(s.pending, ent.act.ID)
	if ent.index >= 0 {
		heap.Remove(&s.queue, ent.index)
	}
}

func (s *Scheduler) execute(ctx context.Context, now time.Time, act Action) (err error) {
	s.mu.Lock()
	exec, ok := s.executors[act.Kind]
	s.mu.Unlock()
	if !ok {
		actionsExecuted.WithLabelValues(string(act.Kind), "no-executor").Inc()
		return fmt.Errorf("no executor registered for kind %s", act.Kind)
	}

	// an executor panic must not take down the sweep loop
	defer func() {
		if r := recover(); r != nil {
			actionsExecuted.WithLabelValues(string(act.Kind), "panic").Inc()
			err = fmt.Errorf("executor panic: %v", r)
		}
	}()

	actionLateness.WithLabelValues(string(act.Kind)).Observe(now.Sub(act.Due).Seconds())
	start := time.Now()
	err = exec.Execute(ctx, act)
	executionDuration.WithLabelValues(string(act.Kind)).Observe(time.Since(start).Seconds())
	if err != nil {
		actionsExecuted.WithLabelValues(string(act.Kind), "error").Inc()
		return err
	}
	actionsExecuted.WithLabelValues(string(act.Kind), "ok").Inc()
	return nil
}
