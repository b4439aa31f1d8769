package engine

import (
	"context"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/roach88/correlate/internal/ir"
	"github.com/roach88/correlate/internal/testutil"
)

// decodeEvents turns generated integers into a small alphabet of events:
// even values are type A, odd values type B, and value/2 picks one of
// three subjects. The narrow alphabet makes correlation collisions common.
func decodeEvents(codes []int) []ir.Event {
	events := make([]ir.Event, len(codes))
	for i, c := range codes {
		typ := "A"
		if c%2 == 1 {
			typ = "B"
		}
		events[i] = event(fmt.Sprintf("e%d", i), typ, fmt.Sprintf("order-%d", c/2))
	}
	return events
}

func propertyEngine(mode ir.CorrelationMode) (*Engine, *testutil.MemoryTriggers, *[]Transition, error) {
	triggers := testutil.NewMemoryTriggers(orderTrigger("T", mode))
	var trace []Transition
	e, err := New(triggers, testutil.NewMemoryInstances(),
		WithLogger(discardLogger()),
		WithIDGenerator(testutil.NewSequenceGenerator("ctx")),
		WithObserver(ObserverFunc(func(tr Transition) { trace = append(trace, tr) })),
	)
	return e, triggers, &trace, err
}

func openContexts(repo *testutil.MemoryTriggers) []ir.CorrelationContext {
	t, ok := repo.Get("default", "T")
	if !ok || t.Status == nil {
		return nil
	}
	return t.Status.Contexts
}

var eventCodes = gen.SliceOf(gen.IntRange(0, 5))

// An exclusive trigger never holds more than one open context.
func TestProperty_ExclusiveHoldsAtMostOneContext(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("exclusive trigger has at most one open context", prop.ForAll(
		func(codes []int) bool {
			e, repo, _, err := propertyEngine(ir.CorrelationExclusive)
			if err != nil {
				return false
			}
			for _, ev := range decodeEvents(codes) {
				if err := e.Process(context.Background(), ev); err != nil {
					return false
				}
				if len(openContexts(repo)) > 1 {
					return false
				}
			}
			return true
		},
		eventCodes,
	))

	properties.TestingRun(t)
}

// Once bound, a correlation key keeps its value for the life of the context.
func TestProperty_BoundKeysNeverChange(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("bound keys are immutable", prop.ForAll(
		func(codes []int) bool {
			e, repo, _, err := propertyEngine(ir.CorrelationParallel)
			if err != nil {
				return false
			}
			bound := make(map[string]map[string]string) // context id -> keys
			for _, ev := range decodeEvents(codes) {
				if err := e.Process(context.Background(), ev); err != nil {
					return false
				}
				for _, cc := range openContexts(repo) {
					prev, seen := bound[cc.ID]
					if !seen {
						bound[cc.ID] = cc.Keys
						continue
					}
					for k, v := range prev {
						if cc.Keys[k] != v {
							return false
						}
					}
					bound[cc.ID] = cc.Keys
				}
			}
			return true
		},
		eventCodes,
	))

	properties.TestingRun(t)
}

// A context fires at most once and is gone immediately afterwards.
func TestProperty_ContextsFireOnce(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("fired contexts are released and never fire again", prop.ForAll(
		func(codes []int, parallel bool) bool {
			mode := ir.CorrelationExclusive
			if parallel {
				mode = ir.CorrelationParallel
			}
			e, repo, trace, err := propertyEngine(mode)
			if err != nil {
				return false
			}

			fired := make(map[string]bool)
			for _, ev := range decodeEvents(codes) {
				before := len(*trace)
				if err := e.Process(context.Background(), ev); err != nil {
					return false
				}
				for _, tr := range (*trace)[before:] {
					if tr.Kind != TransitionFired {
						continue
					}
					if fired[tr.Context] {
						return false
					}
					fired[tr.Context] = true
				}
				for _, cc := range openContexts(repo) {
					if fired[cc.ID] {
						return false
					}
				}
			}
			return true
		},
		eventCodes,
		gen.Bool(),
	))

	properties.TestingRun(t)
}
