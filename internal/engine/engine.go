package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/roach88/correlate/internal/bus"
	"github.com/roach88/correlate/internal/filter"
	"github.com/roach88/correlate/internal/ir"
)

// TriggerRepository is the engine's view of trigger storage.
// The engine never creates or deletes triggers; it only re-persists their
// status. Update must fail with an error wrapping ir.ErrConflict when the
// stored resource version differs from t.ResourceVersion.
type TriggerRepository interface {
	ListAll(ctx context.Context) ([]ir.Trigger, error)
	Update(ctx context.Context, t ir.Trigger) (ir.Trigger, error)
}

// InstanceRepository creates workflow instances for fired outcomes.
// Create must be idempotent for a repeated (workflow, context) pair.
type InstanceRepository interface {
	Create(ctx context.Context, wf ir.WorkflowRef, cc ir.CorrelationContext, namespace string) (ir.InstanceRef, error)
}

// Engine is the single-writer correlation loop.
//
// Events arrive through Enqueue (or a bus.Source given with WithSource) and
// are processed strictly one at a time in arrival order. All trigger and
// context mutation happens on the Run goroutine.
//
// Thread-safety model:
//   - Enqueue(), Stop(), QueueLen(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
//   - Process(): must not run concurrently with Run or itself
type Engine struct {
	triggers  TriggerRepository
	instances InstanceRepository
	source    bus.Source

	queue    *eventQueue
	clock    *Clock
	matcher  *Matcher
	contexts *contextStore
	outcomes *outcomeExecutor

	ids             IDGenerator
	now             func() time.Time
	logger          *slog.Logger
	accessor        filter.Accessor
	observer        Observer
	meterProvider   metric.MeterProvider
	metrics         *engineMetrics
	contextTTL      time.Duration
	conflictRetries int
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithIDGenerator sets the correlation context id generator.
// Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) EngineOption {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithClock sets the wall clock used for context timestamps and expiry.
// Ordering never depends on it. Default: time.Now.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// WithContextTTL enables eviction of contexts not updated within ttl.
// Stale contexts are dropped when their trigger is next correlated.
// Default: 0 (contexts never expire).
func WithContextTTL(ttl time.Duration) EngineOption {
	return func(e *Engine) {
		e.contextTTL = ttl
	}
}

// WithConflictRetries retries a trigger's correlation step up to n times
// after an optimistic concurrency conflict, re-reading the trigger each
// time. Default: 0 (conflicts are logged and the contribution is dropped).
func WithConflictRetries(n int) EngineOption {
	return func(e *Engine) {
		e.conflictRetries = n
	}
}

// WithMeterProvider sets the OpenTelemetry meter provider.
// Default: the global provider.
func WithMeterProvider(mp metric.MeterProvider) EngineOption {
	return func(e *Engine) {
		e.meterProvider = mp
	}
}

// WithObserver registers an observer for correlation transitions.
func WithObserver(o Observer) EngineOption {
	return func(e *Engine) {
		e.observer = o
	}
}

// WithAccessor sets the event attribute accessor.
// Default: filter.DefaultAccessor.
func WithAccessor(a filter.Accessor) EngineOption {
	return func(e *Engine) {
		e.accessor = a
	}
}

// WithSource sets the event source subscribed to for the lifetime of Run.
// Without a source, events reach the engine only through Enqueue.
func WithSource(s bus.Source) EngineOption {
	return func(e *Engine) {
		e.source = s
	}
}

// New creates an Engine over the given repositories.
func New(triggers TriggerRepository, instances InstanceRepository, opts ...EngineOption) (*Engine, error) {
	if triggers == nil {
		return nil, errors.New("engine: trigger repository is required")
	}
	if instances == nil {
		return nil, errors.New("engine: instance repository is required")
	}

	e := &Engine{
		triggers:  triggers,
		instances: instances,
		queue:     newEventQueue(),
		clock:     NewClock(),
		ids:       UUIDv7Generator{},
		now:       time.Now,
		logger:    slog.Default(),
		observer:  noopObserver{},
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.conflictRetries < 0 {
		return nil, fmt.Errorf("engine: conflict retries must be >= 0, got %d", e.conflictRetries)
	}
	if e.contextTTL < 0 {
		return nil, fmt.Errorf("engine: context TTL must be >= 0, got %s", e.contextTTL)
	}

	eval, err := filter.NewEvaluator()
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	metrics, err := newEngineMetrics(e.meterProvider)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	e.metrics = metrics
	e.matcher = NewMatcher(e.accessor, eval, e.logger)
	e.contexts = &contextStore{ids: e.ids, now: e.now}
	e.outcomes = &outcomeExecutor{instances: e.instances}

	return e, nil
}

// Enqueue submits an event for processing by the Run loop.
// Never blocks. Returns false if the engine has been stopped.
func (e *Engine) Enqueue(ev ir.Event) bool {
	return e.queue.Enqueue(ev)
}

// Run subscribes to the configured source and processes events until ctx
// is cancelled or Stop is called. The subscription is disposed on return.
//
// CRITICAL: Must be called from exactly ONE goroutine.
//
// An event that has been dequeued always completes its cycle, even if ctx
// is cancelled meanwhile. On failure the error is logged with full event
// context and processing continues; failed contributions are not retried.
// Returns ctx.Err() on cancellation and nil when the queue is closed.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine starting",
		"engine_version", ir.EngineVersion,
		"context_ttl", e.contextTTL,
		"conflict_retries", e.conflictRetries,
	)

	if e.source != nil {
		sub, err := e.source.Subscribe(func(ev ir.Event) {
			if !e.queue.Enqueue(ev) {
				e.logger.Warn("engine stopped, event dropped", "event_id", ev.ID)
			}
		})
		if err != nil {
			return fmt.Errorf("subscribe to event source: %w", err)
		}
		defer func() {
			if err := sub.Dispose(); err != nil {
				e.logger.Warn("dispose event subscription", "error", err)
			}
		}()
	}

	for {
		ev, err := e.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, ErrQueueClosed) {
				e.logger.Info("engine stopping: queue closed")
				return nil
			}
			e.logger.Info("engine stopping: context cancelled")
			e.queue.Close()
			return err
		}

		if err := e.Process(context.WithoutCancel(ctx), ev); err != nil {
			e.logEventError(ev, err)
		}
	}
}

// Stop closes the event queue. Run drains queued events and returns.
func (e *Engine) Stop() {
	e.queue.Close()
}

// QueueLen returns the number of events waiting to be processed.
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}

// Processed returns the number of events processed so far.
func (e *Engine) Processed() int64 {
	return e.clock.Current()
}

// Process runs one correlation cycle for ev: a fresh trigger snapshot is
// matched, and every matching (trigger, condition) pair is correlated,
// persisted and, when complete, fired.
//
// Failures are isolated per trigger. Exclusive conflicts and unsupported
// outcomes are logged and skipped; other failures are joined into the
// returned error after the remaining triggers have been processed.
//
// CRITICAL: Called only from the Run goroutine, or directly by callers
// that do not run the loop.
func (e *Engine) Process(ctx context.Context, ev ir.Event) error {
	seq := e.clock.Next()
	e.metrics.events.Add(ctx, 1)

	triggers, err := e.triggers.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("list triggers: %w", err)
	}

	matches := e.matcher.Match(ev, triggers)
	if len(matches) == 0 {
		e.logger.Debug("event matched no trigger",
			"event_id", ev.ID,
			"type", ev.Type,
			"seq", seq,
		)
		return nil
	}

	var errs []error
	for _, group := range groupByTrigger(matches) {
		t := triggers[group[0].Trigger]
		if err := e.correlateTrigger(ctx, seq, ev, t, group); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// correlateTrigger applies every match of one trigger in condition order,
// threading the persisted trigger from one match to the next.
func (e *Engine) correlateTrigger(ctx context.Context, seq int64, ev ir.Event, t ir.Trigger, group []Match) error {
	for _, m := range group {
		e.metrics.matches.Add(ctx, 1, triggerAttr(t))

		updated, err := e.correlateWithRetry(ctx, seq, ev, t, m)
		t = updated
		if err == nil {
			continue
		}

		switch {
		case IsExclusiveConflict(err):
			e.metrics.exclusiveConflicts.Add(ctx, 1, triggerAttr(t))
			e.logger.Warn("exclusive trigger busy, event not correlated",
				"trigger", t.Key(),
				"condition", m.Condition,
				"event_id", ev.ID,
				"error", err,
			)
		case IsUnsupportedOutcome(err):
			e.metrics.recordError(ctx, t, ErrCodeUnsupportedOutcome)
			e.logger.Error("outcome not supported, context left open",
				"trigger", t.Key(),
				"event_id", ev.ID,
				"error", err,
			)
		default:
			var re *RuntimeError
			var code RuntimeErrorCode
			if errors.As(err, &re) {
				code = re.Code
			}
			e.metrics.recordError(ctx, t, code)
			return err
		}
	}
	return nil
}

// correlateWithRetry runs one correlation step, retrying on persistence
// conflicts when configured. Each retry re-reads the trigger and re-matches
// the event against the fresh definition.
func (e *Engine) correlateWithRetry(ctx context.Context, seq int64, ev ir.Event, t ir.Trigger, m Match) (ir.Trigger, error) {
	for attempt := 0; ; attempt++ {
		updated, err := e.correlateOnce(ctx, seq, ev, t, m)
		if err == nil || !IsPersistConflict(err) || attempt >= e.conflictRetries {
			return updated, err
		}

		fresh, found, ferr := e.refetch(ctx, t.Key())
		if ferr != nil {
			return updated, fmt.Errorf("re-read trigger after conflict: %w", ferr)
		}
		if !found {
			e.logger.Warn("trigger removed during correlation",
				"trigger", t.Key(),
				"event_id", ev.ID,
			)
			return updated, nil
		}

		rematched, ok := e.rematch(ev, fresh, m.Condition)
		if !ok {
			e.logger.Debug("event no longer matches trigger after conflict",
				"trigger", t.Key(),
				"condition", m.Condition,
				"event_id", ev.ID,
			)
			return fresh, nil
		}

		e.logger.Debug("retrying after persistence conflict",
			"trigger", t.Key(),
			"attempt", attempt+1,
			"event_id", ev.ID,
		)
		t, m = fresh, rematched
	}
}

// correlateOnce performs resolve, apply, persist, fire and persist for a
// single match. It works on a copy of t and returns the latest persisted
// version of the trigger, which is t itself if nothing was persisted.
// Transitions are reported only once their state is persisted.
func (e *Engine) correlateOnce(ctx context.Context, seq int64, ev ir.Event, t ir.Trigger, m Match) (ir.Trigger, error) {
	st := &step{base: Transition{Seq: seq, Trigger: t.Key(), EventID: ev.ID}}
	st.add(Transition{Kind: TransitionMatched, Condition: m.Condition, Filter: m.Filter, Keys: m.Keys})

	work := cloneTrigger(t)
	dirty := false

	for _, id := range e.contexts.Expire(&work, e.contextTTL) {
		st.add(Transition{Kind: TransitionExpired, Context: id})
		dirty = true
	}

	res, err := e.contexts.Resolve(&work, m.Keys, ev.ID)
	if err != nil {
		if dirty {
			persisted, perr := e.persist(ctx, ev, work)
			if perr != nil {
				return t, perr
			}
			t = persisted
		}
		st.add(Transition{Kind: TransitionExclusiveConflict, Condition: m.Condition, Keys: m.Keys, Reason: string(ErrCodeExclusiveConflict)})
		e.flush(st)
		return t, err
	}

	if res.Created {
		st.add(Transition{Kind: TransitionContextCreated, Context: res.ContextID, Keys: m.Keys})
	}

	cc := work.Status.Context(res.ContextID)
	if e.contexts.Apply(cc, m.Condition, ev.ID) {
		st.add(Transition{Kind: TransitionConditionSatisfied, Condition: m.Condition, Context: res.ContextID})
		dirty = true
	}
	dirty = dirty || res.Created || res.Bound

	if dirty {
		persisted, err := e.persist(ctx, ev, work)
		if err != nil {
			return t, err
		}
		t = persisted
	}
	e.flush(st)
	if res.Created {
		e.metrics.contextsCreated.Add(ctx, 1, triggerAttr(t))
	}

	work = cloneTrigger(t)
	fired, ref, err := e.outcomes.TryFire(ctx, &work, res.ContextID)
	if err != nil {
		var re *RuntimeError
		if errors.As(err, &re) {
			e.observer.Observe(Transition{
				Kind:    TransitionOutcomeRejected,
				Seq:     seq,
				Trigger: t.Key(),
				EventID: ev.ID,
				Context: res.ContextID,
				Reason:  string(re.Code),
			})
			re.EventID = ev.ID
		}
		return t, err
	}
	if !fired {
		return t, nil
	}

	persisted, err := e.persist(ctx, ev, work)
	if err != nil {
		// The instance exists; the next event for this context fires
		// again and lands on the same instance name.
		e.logger.Warn("outcome fired but context release not persisted",
			"trigger", t.Key(),
			"context", res.ContextID,
			"instance", ref.String(),
			"event_id", ev.ID,
		)
		return t, err
	}

	e.metrics.fired.Add(ctx, 1, triggerAttr(t))
	e.observer.Observe(Transition{
		Kind:     TransitionFired,
		Seq:      seq,
		Trigger:  t.Key(),
		EventID:  ev.ID,
		Context:  res.ContextID,
		Instance: &ref,
	})
	e.logger.Info("outcome fired",
		"trigger", t.Key(),
		"context", res.ContextID,
		"instance", ref.String(),
		"event_id", ev.ID,
		"seq", seq,
	)
	return persisted, nil
}

// persist writes t through the repository, converting version conflicts
// into PERSIST_CONFLICT runtime errors.
func (e *Engine) persist(ctx context.Context, ev ir.Event, t ir.Trigger) (ir.Trigger, error) {
	updated, err := e.triggers.Update(ctx, t)
	if err != nil {
		if errors.Is(err, ir.ErrConflict) {
			e.metrics.persistConflicts.Add(ctx, 1, triggerAttr(t))
			return ir.Trigger{}, NewPersistConflictError(t.Key(), ev.ID, t.ResourceVersion, err)
		}
		return ir.Trigger{}, fmt.Errorf("update trigger %s: %w", t.Key(), err)
	}
	return updated, nil
}

// refetch reads the current version of a trigger by key.
func (e *Engine) refetch(ctx context.Context, key string) (ir.Trigger, bool, error) {
	triggers, err := e.triggers.ListAll(ctx)
	if err != nil {
		return ir.Trigger{}, false, err
	}
	for _, t := range triggers {
		if t.Key() == key {
			return t, true, nil
		}
	}
	return ir.Trigger{}, false, nil
}

// rematch re-evaluates one condition of a freshly read trigger.
func (e *Engine) rematch(ev ir.Event, t ir.Trigger, condition int) (Match, bool) {
	for _, m := range e.matcher.Match(ev, []ir.Trigger{t}) {
		if m.Condition == condition {
			return m, true
		}
	}
	return Match{}, false
}

func (e *Engine) flush(st *step) {
	for _, tr := range st.pending {
		e.observer.Observe(tr)
	}
	st.pending = nil
}

// step accumulates the transitions of one correlation attempt.
type step struct {
	base    Transition
	pending []Transition
}

func (s *step) add(tr Transition) {
	tr.Seq = s.base.Seq
	tr.Trigger = s.base.Trigger
	tr.EventID = s.base.EventID
	s.pending = append(s.pending, tr)
}

// groupByTrigger splits matches into runs sharing a trigger index.
// Matches arrive ordered by trigger, so runs are contiguous.
func groupByTrigger(matches []Match) [][]Match {
	var groups [][]Match
	start := 0
	for i := 1; i <= len(matches); i++ {
		if i == len(matches) || matches[i].Trigger != matches[start].Trigger {
			groups = append(groups, matches[start:i])
			start = i
		}
	}
	return groups
}

// cloneTrigger copies the mutable status so a failed attempt leaves the
// caller's trigger untouched. Spec is shared read-only.
func cloneTrigger(t ir.Trigger) ir.Trigger {
	if t.Status == nil {
		return t
	}
	status := &ir.TriggerStatus{Contexts: make([]ir.CorrelationContext, len(t.Status.Contexts))}
	for i, cc := range t.Status.Contexts {
		cc.Keys = copyKeys(cc.Keys)
		cc.Satisfied = append([]int{}, cc.Satisfied...)
		cc.Events = append([]string(nil), cc.Events...)
		status.Contexts[i] = cc
	}
	t.Status = status
	return t
}

// logEventError logs an event processing failure with full context.
// This enables manual investigation and redelivery of failed events.
func (e *Engine) logEventError(ev ir.Event, err error) {
	e.logger.Error("event processing failed",
		"error", err,
		"event_id", ev.ID,
		"type", ev.Type,
		"source", ev.Source,
		"subject", ev.Subject,
	)
}
