package engine

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/correlate/internal/ir"
	"github.com/roach88/correlate/internal/testutil"
)

var testWorkflow = ir.WorkflowRef{Namespace: "default", Name: "fulfil", Version: "1.0.0"}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// typeFilter matches events of type typ and correlates the given keys.
func typeFilter(typ string, correlate map[string]string) ir.EventFilter {
	return ir.EventFilter{
		Attributes: map[string]string{"type": typ},
		Correlate:  correlate,
	}
}

func cond(filters ...ir.EventFilter) ir.TriggerCondition {
	return ir.TriggerCondition{Filters: filters}
}

func trigger(name string, mode ir.CorrelationMode, conds ...ir.TriggerCondition) ir.Trigger {
	return ir.Trigger{
		Namespace: "default",
		Name:      name,
		Spec: ir.TriggerSpec{
			Conditions:  conds,
			Correlation: mode,
			Outcome:     ir.RunWorkflow{Workflow: testWorkflow},
		},
	}
}

// orderTrigger is the two-step A-then-B trigger correlated on subject.
func orderTrigger(name string, mode ir.CorrelationMode) ir.Trigger {
	byOrder := map[string]string{"orderId": "subject"}
	return trigger(name, mode,
		cond(typeFilter("A", byOrder)),
		cond(typeFilter("B", byOrder)),
	)
}

func event(id, typ, subject string) ir.Event {
	return ir.Event{ID: id, Type: typ, Source: "test", Subject: subject}
}

type fixture struct {
	engine    *Engine
	triggers  *testutil.MemoryTriggers
	instances *testutil.MemoryInstances
	clock     *testutil.ManualClock
	trace     []Transition
}

func newFixture(t *testing.T, triggers []ir.Trigger, opts ...EngineOption) *fixture {
	t.Helper()

	f := &fixture{
		triggers:  testutil.NewMemoryTriggers(triggers...),
		instances: testutil.NewMemoryInstances(),
		clock:     testutil.NewManualClock(),
	}

	base := []EngineOption{
		WithLogger(discardLogger()),
		WithIDGenerator(testutil.NewSequenceGenerator("ctx")),
		WithClock(f.clock.Now),
		WithObserver(ObserverFunc(func(tr Transition) { f.trace = append(f.trace, tr) })),
	}
	e, err := New(f.triggers, f.instances, append(base, opts...)...)
	require.NoError(t, err)
	f.engine = e
	return f
}

func (f *fixture) stored(t *testing.T, name string) ir.Trigger {
	t.Helper()
	tr, ok := f.triggers.Get("default", name)
	require.True(t, ok, "trigger %s not stored", name)
	return tr
}

func (f *fixture) contexts(t *testing.T, name string) []ir.CorrelationContext {
	t.Helper()
	tr := f.stored(t, name)
	if tr.Status == nil {
		return nil
	}
	return tr.Status.Contexts
}

func (f *fixture) kinds() []TransitionKind {
	out := make([]TransitionKind, len(f.trace))
	for i, tr := range f.trace {
		out[i] = tr.Kind
	}
	return out
}
