package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/correlate/internal/engine"
	"github.com/roach88/correlate/internal/ir"
	"github.com/roach88/correlate/internal/store"
)

func sampleResult() *Result {
	r := NewResult()
	r.Trace = []engine.Transition{
		{Kind: engine.TransitionMatched, Seq: 1, Trigger: "default/a"},
		{Kind: engine.TransitionContextCreated, Seq: 1, Trigger: "default/a", Context: "ctx-1"},
		{Kind: engine.TransitionMatched, Seq: 2, Trigger: "default/b"},
		{Kind: engine.TransitionFired, Seq: 2, Trigger: "default/a", Context: "ctx-1"},
	}
	r.Instances = []store.Instance{
		{
			Ref:         ir.InstanceRef{Namespace: "default", Name: "fulfil-abc"},
			Workflow:    ir.WorkflowRef{Namespace: "default", Name: "fulfil", Version: "1.0.0"},
			ContextID:   "ctx-1",
			Correlation: ir.CorrelationContext{ID: "ctx-1", Keys: map[string]string{"order_id": "42", "region": "eu"}},
		},
	}
	r.Triggers = []ir.Trigger{
		{
			Namespace: "default",
			Name:      "a",
			Status:    &ir.TriggerStatus{Contexts: []ir.CorrelationContext{{ID: "ctx-2"}}},
		},
		{Namespace: "default", Name: "b"},
	}
	return r
}

func TestEvaluateAssertions(t *testing.T) {
	tests := []struct {
		name      string
		assertion Assertion
		wantFail  string
	}{
		{"count all triggers", Assertion{Type: AssertTransitionCount, Kind: "matched", Count: 2}, ""},
		{"count one trigger", Assertion{Type: AssertTransitionCount, Kind: "matched", Trigger: "default/b", Count: 1}, ""},
		{"count mismatch", Assertion{Type: AssertTransitionCount, Kind: "fired", Count: 2}, "2 fired transition(s)"},
		{"count zero", Assertion{Type: AssertTransitionCount, Kind: "expired"}, ""},
		{"order holds", Assertion{Type: AssertTransitionOrder, Kinds: []string{"matched", "context_created", "fired"}}, ""},
		{"order broken", Assertion{Type: AssertTransitionOrder, Kinds: []string{"fired", "context_created"}}, "no context_created after fired"},
		{"instances", Assertion{Type: AssertInstanceCount, Count: 1}, ""},
		{"instances of workflow", Assertion{Type: AssertInstanceCount, Workflow: "deploy", Count: 0}, ""},
		{"instances mismatch", Assertion{Type: AssertInstanceCount, Count: 2}, "2 instance(s)"},
		{"keys subset", Assertion{Type: AssertInstanceKeys, Keys: map[string]string{"order_id": "42"}}, ""},
		{"keys wrong value", Assertion{Type: AssertInstanceKeys, Keys: map[string]string{"order_id": "43"}}, "instance with keys"},
		{"keys wrong workflow", Assertion{Type: AssertInstanceKeys, Workflow: "deploy", Keys: map[string]string{"order_id": "42"}}, "instance with keys"},
		{"open contexts", Assertion{Type: AssertOpenContexts, Trigger: "default/a", Count: 1}, ""},
		{"open contexts nil status", Assertion{Type: AssertOpenContexts, Trigger: "default/b", Count: 0}, ""},
		{"open contexts mismatch", Assertion{Type: AssertOpenContexts, Trigger: "default/a", Count: 0}, "0 open context(s)"},
		{"open contexts unknown trigger", Assertion{Type: AssertOpenContexts, Trigger: "default/z"}, "not found"},
		{"event errors", Assertion{Type: AssertEventErrors, Count: 0}, ""},
		{"event errors mismatch", Assertion{Type: AssertEventErrors, Count: 1}, "1 event error(s)"},
		{"unknown type", Assertion{Type: "trace_contains"}, "unknown assertion type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			failures := EvaluateAssertions(sampleResult(), []Assertion{tt.assertion})
			if tt.wantFail == "" {
				assert.Empty(t, failures)
				return
			}
			require.Len(t, failures, 1)
			assert.Contains(t, failures[0], tt.wantFail)
		})
	}
}

func TestAssertionError_IncludesTrace(t *testing.T) {
	err := &AssertionError{
		Type:     AssertTransitionCount,
		Expected: "1 fired transition(s)",
		Actual:   "0",
		Trace: []engine.Transition{
			{Kind: engine.TransitionContextCreated, Seq: 3, Trigger: "default/a", Context: "ctx-1"},
		},
	}

	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: transition_count")
	assert.Contains(t, msg, "Expected: 1 fired transition(s)")
	assert.Contains(t, msg, "[1] seq=3 context_created default/a context=ctx-1")
}

func TestMatchKeys(t *testing.T) {
	actual := map[string]string{"a": "1", "b": "2"}
	assert.True(t, matchKeys(actual, map[string]string{"a": "1"}))
	assert.True(t, matchKeys(actual, nil))
	assert.False(t, matchKeys(actual, map[string]string{"c": "3"}))
	assert.False(t, matchKeys(nil, map[string]string{"a": "1"}))
}
