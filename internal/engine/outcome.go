package engine

import (
	"context"
	"fmt"

	"github.com/roach88/correlate/internal/ir"
)

// outcomeExecutor performs a trigger's outcome once a context is complete.
type outcomeExecutor struct {
	instances InstanceRepository
}

// TryFire fires the trigger's outcome for the context if every declared
// condition is satisfied, then releases the context from t.Status.
// The caller persists t.
//
// A context that is not complete, or no longer open, returns fired=false
// and no error. On error the context stays open.
func (x *outcomeExecutor) TryFire(ctx context.Context, t *ir.Trigger, contextID string) (bool, ir.InstanceRef, error) {
	cc := t.Status.Context(contextID)
	if cc == nil || !complete(t.Spec, *cc) {
		return false, ir.InstanceRef{}, nil
	}

	var ref ir.InstanceRef
	switch o := t.Spec.Outcome.(type) {
	case ir.RunWorkflow:
		created, err := x.instances.Create(ctx, o.Workflow, *cc, t.Namespace)
		if err != nil {
			return false, ir.InstanceRef{}, fmt.Errorf("create workflow instance for %s: %w", t.Key(), err)
		}
		ref = created

	case ir.ResumeWorkflow:
		return false, ir.InstanceRef{}, &RuntimeError{
			Code:    ErrCodeUnsupportedOutcome,
			Message: "resuming a workflow instance is not supported",
			Trigger: t.Key(),
			Details: map[string]string{
				"instance": o.Instance.String(),
				"context":  contextID,
			},
		}

	default:
		return false, ir.InstanceRef{}, &RuntimeError{
			Code:    ErrCodeUnknownOutcome,
			Message: fmt.Sprintf("unknown outcome type %T", o),
			Trigger: t.Key(),
			Details: map[string]string{"context": contextID},
		}
	}

	t.Status.Release(contextID)
	return true, ref, nil
}

// complete reports whether every declared condition index is satisfied.
func complete(spec ir.TriggerSpec, cc ir.CorrelationContext) bool {
	if len(spec.Conditions) == 0 {
		return false
	}
	for i := range spec.Conditions {
		if !cc.IsSatisfied(i) {
			return false
		}
	}
	return true
}
