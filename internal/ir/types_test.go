package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONFieldNaming(t *testing.T) {
	trig := Trigger{
		Namespace:       "default",
		Name:            "orders",
		ResourceVersion: 3,
		Status: &TriggerStatus{
			Contexts: []CorrelationContext{{ID: "ctx-1", Satisfied: []int{0}}},
		},
	}
	data, err := json.Marshal(trig)
	require.NoError(t, err)

	assert.Contains(t, string(data), `"resource_version"`)
	assert.Contains(t, string(data), `"created_at"`)
	assert.Contains(t, string(data), `"updated_at"`)
	assert.NotContains(t, string(data), `"resourceVersion"`)
}

func TestEvent_Validate(t *testing.T) {
	tests := []struct {
		name    string
		event   Event
		wantErr string
	}{
		{"valid", Event{ID: "e1", Type: "t", Source: "s"}, ""},
		{"missing id", Event{Type: "t", Source: "s"}, "event id is required"},
		{"missing type", Event{ID: "e1", Source: "s"}, "event type is required"},
		{"missing source", Event{ID: "e1", Type: "t"}, "event source is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.EqualError(t, err, tt.wantErr)
		})
	}
}

func TestCorrelationMode_Normalize(t *testing.T) {
	assert.Equal(t, CorrelationExclusive, CorrelationMode("").Normalize())
	assert.Equal(t, CorrelationParallel, CorrelationParallel.Normalize())
	assert.True(t, CorrelationMode("").Valid())
	assert.True(t, CorrelationParallel.Valid())
	assert.False(t, CorrelationMode("broadcast").Valid())
}

func TestTriggerStatus_ContextAndRelease(t *testing.T) {
	status := &TriggerStatus{Contexts: []CorrelationContext{
		{ID: "a"}, {ID: "b"}, {ID: "c"},
	}}

	ctx := status.Context("b")
	require.NotNil(t, ctx)
	ctx.Keys = map[string]string{"k": "v"}
	assert.Equal(t, "v", status.Contexts[1].Keys["k"], "Context must alias the status slice")

	assert.True(t, status.Release("b"))
	assert.False(t, status.Release("b"), "second release is a no-op")
	assert.Nil(t, status.Context("b"))
	assert.Equal(t, []string{"a", "c"}, []string{status.Contexts[0].ID, status.Contexts[1].ID})
}

func TestTriggerStatus_NilSafe(t *testing.T) {
	var status *TriggerStatus
	assert.Nil(t, status.Context("x"))
	assert.False(t, status.Release("x"))
}

func TestCorrelationContext_IsSatisfied(t *testing.T) {
	c := CorrelationContext{Satisfied: []int{0, 2}}
	assert.True(t, c.IsSatisfied(0))
	assert.False(t, c.IsSatisfied(1))
	assert.True(t, c.IsSatisfied(2))
}

func TestTrigger_Key(t *testing.T) {
	assert.Equal(t, "ops/deploy", Trigger{Namespace: "ops", Name: "deploy"}.Key())
	assert.Equal(t, "ops/run-1", InstanceRef{Namespace: "ops", Name: "run-1"}.String())
}
