package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/correlate/internal/ir"
)

func validTrigger() ir.Trigger {
	return ir.Trigger{
		Namespace: "default",
		Name:      "orders",
		Spec: ir.TriggerSpec{
			Conditions: []ir.TriggerCondition{
				{Filters: []ir.EventFilter{{
					Attributes: map[string]string{"type": "order.created"},
					Correlate:  map[string]string{"order_id": "subject"},
				}}},
				{Filters: []ir.EventFilter{{
					Expression: `event.type == "payment.received"`,
					Correlate:  map[string]string{"order_id": "data.order_id"},
				}}},
			},
			Correlation: ir.CorrelationParallel,
			Outcome: ir.RunWorkflow{Workflow: ir.WorkflowRef{
				Namespace: "default", Name: "fulfil", Version: "1.2.0",
			}},
		},
	}
}

func codes(errs []ValidationError) []string {
	var out []string
	for _, e := range errs {
		out = append(out, e.Code)
	}
	return out
}

func TestValidateTriggerValid(t *testing.T) {
	tr := validTrigger()
	assert.Empty(t, Validate(tr))
	assert.Empty(t, Validate(&tr))
}

func TestValidateTriggerResumeAccepted(t *testing.T) {
	tr := validTrigger()
	tr.Spec.Outcome = ir.ResumeWorkflow{Instance: ir.InstanceRef{Namespace: "default", Name: "fulfil-1"}}
	assert.Empty(t, Validate(tr))
}

func TestValidateTriggerErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ir.Trigger)
		code   string
	}{
		{"bad name", func(t *ir.Trigger) { t.Name = "Orders_1" }, ErrInvalidName},
		{"empty namespace", func(t *ir.Trigger) { t.Namespace = "" }, ErrInvalidName},
		{"bad mode", func(t *ir.Trigger) { t.Spec.Correlation = "sometimes" }, ErrInvalidMode},
		{"no conditions", func(t *ir.Trigger) { t.Spec.Conditions = nil }, ErrNoConditions},
		{"no filters", func(t *ir.Trigger) { t.Spec.Conditions[0].Filters = nil }, ErrNoFilters},
		{"empty filter", func(t *ir.Trigger) {
			t.Spec.Conditions[0].Filters[0].Attributes = nil
		}, ErrEmptyFilter},
		{"expression does not compile", func(t *ir.Trigger) {
			t.Spec.Conditions[1].Filters[0].Expression = "event.type =="
		}, ErrInvalidExpression},
		{"expression not bool", func(t *ir.Trigger) {
			t.Spec.Conditions[1].Filters[0].Expression = `"yes"`
		}, ErrInvalidExpression},
		{"empty correlate attribute", func(t *ir.Trigger) {
			t.Spec.Conditions[0].Filters[0].Correlate = map[string]string{"order_id": ""}
		}, ErrInvalidCorrelate},
		{"missing outcome", func(t *ir.Trigger) { t.Spec.Outcome = nil }, ErrMissingOutcome},
		{"workflow without name", func(t *ir.Trigger) {
			t.Spec.Outcome = ir.RunWorkflow{Workflow: ir.WorkflowRef{Namespace: "default", Version: "1.0.0"}}
		}, ErrInvalidWorkflow},
		{"non-semver version", func(t *ir.Trigger) {
			t.Spec.Outcome = ir.RunWorkflow{Workflow: ir.WorkflowRef{Namespace: "default", Name: "w", Version: "latest"}}
		}, ErrInvalidVersion},
		{"resume without instance", func(t *ir.Trigger) {
			t.Spec.Outcome = ir.ResumeWorkflow{Instance: ir.InstanceRef{Namespace: "default"}}
		}, ErrInvalidInstance},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := validTrigger()
			tt.mutate(&tr)

			errs := Validate(tr)
			require.NotEmpty(t, errs)
			assert.Contains(t, codes(errs), tt.code)
		})
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	tr := validTrigger()
	tr.Name = "Bad Name"
	tr.Spec.Conditions = nil
	tr.Spec.Outcome = nil

	errs := Validate(tr)
	assert.ElementsMatch(t, []string{ErrInvalidName, ErrNoConditions, ErrMissingOutcome}, codes(errs))
}

func TestValidateTriggersDuplicate(t *testing.T) {
	errs := Validate([]ir.Trigger{validTrigger(), validTrigger()})
	require.Len(t, errs, 1)
	assert.Equal(t, ErrDuplicateTrigger, errs[0].Code)
}

func TestValidateTriggersPrefixesField(t *testing.T) {
	bad := validTrigger()
	bad.Spec.Conditions = nil

	errs := Validate([]ir.Trigger{bad})
	require.Len(t, errs, 1)
	assert.Equal(t, "default/orders: conditions", errs[0].Field)
}

func TestValidateUnsupportedType(t *testing.T) {
	errs := Validate("not a trigger")
	require.Len(t, errs, 1)
	assert.Equal(t, ErrUnsupportedIRType, errs[0].Code)
}

func TestValidationErrorFormat(t *testing.T) {
	err := ValidationError{Field: "conditions", Message: "at least one condition is required", Code: ErrNoConditions}
	assert.Equal(t, "[E110] conditions: at least one condition is required", err.Error())

	err.Line = 4
	assert.Equal(t, "[E110] line 4: conditions: at least one condition is required", err.Error())
}
