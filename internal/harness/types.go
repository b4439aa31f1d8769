package harness

import (
	"github.com/roach88/correlate/internal/engine"
	"github.com/roach88/correlate/internal/ir"
	"github.com/roach88/correlate/internal/store"
)

// EventError records an event whose processing returned an error.
type EventError struct {
	EventID string `json:"event_id"`
	Error   string `json:"error"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every assertion holds.
	Pass bool `json:"pass"`

	// Trace contains every transition in the order it was observed.
	Trace []engine.Transition `json:"trace"`

	// Errors contains assertion failure messages.
	Errors []string `json:"errors,omitempty"`

	// EventErrors lists events whose processing failed.
	EventErrors []EventError `json:"event_errors,omitempty"`

	// Instances are the workflow instances started, ordered by name.
	Instances []store.Instance `json:"instances"`

	// Triggers is the final stored state of every trigger.
	Triggers []ir.Trigger `json:"triggers"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []engine.Transition{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Observe implements engine.Observer by appending to the trace.
func (r *Result) Observe(t engine.Transition) {
	r.Trace = append(r.Trace, t)
}

// Trigger returns the final state of the trigger with the given key.
func (r *Result) Trigger(key string) (ir.Trigger, bool) {
	for _, t := range r.Triggers {
		if t.Key() == key {
			return t, true
		}
	}
	return ir.Trigger{}, false
}
