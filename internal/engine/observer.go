package engine

import "github.com/roach88/correlate/internal/ir"

// TransitionKind names a correlation state transition.
type TransitionKind string

const (
	TransitionMatched            TransitionKind = "matched"
	TransitionContextCreated     TransitionKind = "context_created"
	TransitionConditionSatisfied TransitionKind = "condition_satisfied"
	TransitionExclusiveConflict  TransitionKind = "exclusive_conflict"
	TransitionFired              TransitionKind = "fired"
	TransitionOutcomeRejected    TransitionKind = "outcome_rejected"
	TransitionExpired            TransitionKind = "expired"
)

// Transition describes one step of correlation for one trigger.
// Fields that do not apply to the kind are zero.
type Transition struct {
	Kind      TransitionKind    `json:"kind"`
	Seq       int64             `json:"seq"`
	Trigger   string            `json:"trigger"`
	EventID   string            `json:"event_id,omitempty"`
	Condition int               `json:"condition"`
	Filter    int               `json:"filter"`
	Context   string            `json:"context,omitempty"`
	Keys      map[string]string `json:"keys,omitempty"`
	Instance  *ir.InstanceRef   `json:"instance,omitempty"`
	Reason    string            `json:"reason,omitempty"`
}

// Observer receives transitions as they happen, on the Run goroutine.
// Implementations must not block.
type Observer interface {
	Observe(Transition)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Transition)

// Observe implements Observer.
func (f ObserverFunc) Observe(t Transition) { f(t) }

type noopObserver struct{}

func (noopObserver) Observe(Transition) {}
