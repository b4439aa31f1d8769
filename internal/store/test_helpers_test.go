package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/correlate/internal/ir"
)

// createTestStore creates a new on-disk store in a temp dir for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var testWorkflow = ir.WorkflowRef{Namespace: "default", Name: "fulfil", Version: "1.0.0"}

// createTestTrigger creates a two-condition parallel trigger.
func createTestTrigger(namespace, name string) ir.Trigger {
	return ir.Trigger{
		Namespace: namespace,
		Name:      name,
		Spec: ir.TriggerSpec{
			Conditions: []ir.TriggerCondition{
				{Filters: []ir.EventFilter{{
					Attributes: map[string]string{"type": "order.created"},
					Correlate:  map[string]string{"order_id": "subject"},
				}}},
				{Filters: []ir.EventFilter{{
					Attributes: map[string]string{"type": "payment.received"},
					Expression: `event.data.amount > 0`,
					Correlate:  map[string]string{"order_id": "data.order_id"},
				}}},
			},
			Correlation: ir.CorrelationParallel,
			Outcome:     ir.RunWorkflow{Workflow: testWorkflow},
		},
	}
}

// createTestContext creates a context bound to a single order.
func createTestContext(id, orderID string) ir.CorrelationContext {
	ts := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return ir.CorrelationContext{
		ID:        id,
		Keys:      map[string]string{"order_id": orderID},
		Satisfied: []int{0},
		Events:    []string{"evt-1"},
		CreatedAt: ts,
		UpdatedAt: ts,
	}
}
