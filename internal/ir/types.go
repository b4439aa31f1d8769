package ir

import (
	"errors"
	"slices"
	"time"
)

// Event is an external notification delivered by the event bus.
// Events are never mutated after they are received.
type Event struct {
	ID      string         `json:"id"`
	Type    string         `json:"type"`
	Source  string         `json:"source"`
	Subject string         `json:"subject,omitempty"`
	Data    map[string]any `json:"data,omitempty"` // Structured payload, addressed as data.<path>
}

// Validate enforces the baseline attributes every event must carry.
func (e Event) Validate() error {
	if e.ID == "" {
		return errors.New("event id is required")
	}
	if e.Type == "" {
		return errors.New("event type is required")
	}
	if e.Source == "" {
		return errors.New("event source is required")
	}
	return nil
}

// CorrelationMode controls how many correlation contexts a trigger may
// hold open at once.
type CorrelationMode string

const (
	// CorrelationExclusive allows at most one open context per trigger.
	// Events that would start a second context are not correlated.
	CorrelationExclusive CorrelationMode = "exclusive"

	// CorrelationParallel allows any number of independent open contexts.
	CorrelationParallel CorrelationMode = "parallel"
)

// Valid reports whether m is a known mode. The empty mode is valid and
// normalizes to exclusive.
func (m CorrelationMode) Valid() bool {
	switch m {
	case CorrelationExclusive, CorrelationParallel, "":
		return true
	default:
		return false
	}
}

// Normalize returns the effective mode, defaulting to exclusive.
func (m CorrelationMode) Normalize() CorrelationMode {
	if m == "" {
		return CorrelationExclusive
	}
	return m
}

// Trigger is a persisted correlation rule.
type Trigger struct {
	Namespace       string         `json:"namespace"`
	Name            string         `json:"name"`
	ResourceVersion int64          `json:"resource_version"` // Optimistic concurrency token
	Spec            TriggerSpec    `json:"spec"`
	Status          *TriggerStatus `json:"status,omitempty"` // Nil until the first matching event
}

// Key returns the namespaced identity "namespace/name".
func (t Trigger) Key() string {
	return t.Namespace + "/" + t.Name
}

// TriggerCondition is satisfied when any one of its filters matches an event.
type TriggerCondition struct {
	Filters []EventFilter `json:"filters"`
}

// EventFilter is a set of predicates over event attributes plus the
// correlation mapping applied when those predicates hold.
type EventFilter struct {
	// Attributes maps attribute names to the exact value they must have.
	Attributes map[string]string `json:"attributes,omitempty"`

	// Expression is an optional CEL predicate evaluated against the event.
	Expression string `json:"expression,omitempty"`

	// Correlate maps correlation key names to the event attribute that
	// supplies their value, e.g. {"order_id": "subject"}.
	Correlate map[string]string `json:"correlate,omitempty"`
}

// TriggerStatus holds the engine-owned runtime state of a trigger.
type TriggerStatus struct {
	Contexts []CorrelationContext `json:"contexts"`
}

// Context returns the open context with the given id, or nil.
// The returned pointer aliases the status slice.
func (s *TriggerStatus) Context(id string) *CorrelationContext {
	if s == nil {
		return nil
	}
	for i := range s.Contexts {
		if s.Contexts[i].ID == id {
			return &s.Contexts[i]
		}
	}
	return nil
}

// Release removes the context with the given id.
// Returns false if no such context was open.
func (s *TriggerStatus) Release(id string) bool {
	if s == nil {
		return false
	}
	for i := range s.Contexts {
		if s.Contexts[i].ID == id {
			s.Contexts = slices.Delete(s.Contexts, i, i+1)
			return true
		}
	}
	return false
}

// CorrelationContext is the working memory of one in-progress correlation.
type CorrelationContext struct {
	ID        string            `json:"id"`
	Keys      map[string]string `json:"keys,omitempty"` // Bound once, never rebound
	Satisfied []int             `json:"satisfied"`      // Sorted condition indices
	Events    []string          `json:"events,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// IsSatisfied reports whether the condition index has been matched.
func (c CorrelationContext) IsSatisfied(condition int) bool {
	_, found := slices.BinarySearch(c.Satisfied, condition)
	return found
}

// WorkflowRef identifies a workflow definition to run.
type WorkflowRef struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
	Version   string `json:"version"`
}

// InstanceRef identifies a workflow instance.
type InstanceRef struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
}

// String returns "namespace/name".
func (r InstanceRef) String() string {
	return r.Namespace + "/" + r.Name
}
