package engine

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/correlate/internal/filter"
	"github.com/roach88/correlate/internal/ir"
)

// Match records that an event satisfies one condition of one trigger.
type Match struct {
	Trigger   int               // Index into the trigger snapshot
	Condition int               // Index into the trigger's conditions
	Filter    int               // First matching filter of the condition
	Keys      map[string]string // Correlation keys extracted by the filter
}

// Matcher decides which trigger conditions an event satisfies.
//
// Matching never fails: evaluation errors and anomalies are logged and
// treated as "filter does not match".
type Matcher struct {
	accessor filter.Accessor
	eval     *filter.Evaluator
	logger   *slog.Logger
}

// NewMatcher creates a matcher. A nil accessor means filter.DefaultAccessor.
func NewMatcher(accessor filter.Accessor, eval *filter.Evaluator, logger *slog.Logger) *Matcher {
	if accessor == nil {
		accessor = filter.DefaultAccessor{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{accessor: accessor, eval: eval, logger: logger}
}

// filterResult is the outcome of testing one filter against an event.
type filterResult int

const (
	filterNoMatch    filterResult = iota
	filterMatched                 // predicates hold and every key resolved
	filterUnresolved              // predicates hold but a correlation attribute is missing
)

// Match returns at most one Match per (trigger, condition) pair, in
// trigger then condition declaration order.
//
// A trigger is skipped as a whole for the event when its definition
// cannot be correlated: no conditions, a condition without filters, or a
// condition whose predicates hold but whose keys resolve through no filter.
func (m *Matcher) Match(ev ir.Event, triggers []ir.Trigger) []Match {
	var matches []Match

	for ti, t := range triggers {
		found, ok := m.matchTrigger(ev, ti, t)
		if !ok {
			continue
		}
		matches = append(matches, found...)
	}

	return matches
}

// matchTrigger matches every condition of one trigger. It reports false
// when the trigger must be skipped for this event.
func (m *Matcher) matchTrigger(ev ir.Event, ti int, t ir.Trigger) ([]Match, bool) {
	if len(t.Spec.Conditions) == 0 {
		m.anomaly("trigger has no conditions, skipping", ev, t)
		return nil, false
	}
	for ci, cond := range t.Spec.Conditions {
		if len(cond.Filters) == 0 {
			m.anomaly("condition has no filters, skipping trigger", ev, t, "condition", ci)
			return nil, false
		}
	}

	var matches []Match
	for ci, cond := range t.Spec.Conditions {
		unresolved := false
		matched := false

		for fi, f := range cond.Filters {
			keys, res := m.matchFilter(ev, t, ci, fi, f)
			if res == filterUnresolved {
				unresolved = true
			}
			if res != filterMatched {
				continue
			}
			m.logger.Debug("filter matched",
				"trigger", t.Key(),
				"condition", ci,
				"filter", fi,
				"event_id", ev.ID,
			)
			matches = append(matches, Match{
				Trigger:   ti,
				Condition: ci,
				Filter:    fi,
				Keys:      keys,
			})
			matched = true
			break
		}

		if !matched && unresolved {
			m.anomaly("no filter resolves correlation keys, skipping trigger", ev, t, "condition", ci)
			return nil, false
		}
	}

	return matches, true
}

func (m *Matcher) anomaly(msg string, ev ir.Event, t ir.Trigger, args ...any) {
	attrs := append([]any{
		"code", ErrCodeMatchAnomaly,
		"trigger", t.Key(),
		"event_id", ev.ID,
	}, args...)
	m.logger.Warn(msg, attrs...)
}

// matchFilter evaluates one filter's predicates and, when they hold,
// extracts its correlation keys. All-or-nothing: a filter whose mapped
// attribute is missing does not match and is reported as unresolved.
func (m *Matcher) matchFilter(ev ir.Event, t ir.Trigger, ci, fi int, f ir.EventFilter) (map[string]string, filterResult) {
	// Sorted for deterministic evaluation order
	for _, name := range sortedKeys(f.Attributes) {
		got, ok := m.accessor.Attribute(ev, name)
		if !ok || got != f.Attributes[name] {
			return nil, filterNoMatch
		}
	}

	if f.Expression != "" {
		ok, err := m.evaluate(f.Expression, ev)
		if err != nil {
			m.logger.Warn("filter expression failed, treating as no match",
				"trigger", t.Key(),
				"condition", ci,
				"filter", fi,
				"event_id", ev.ID,
				"error", err,
			)
			return nil, filterNoMatch
		}
		if !ok {
			return nil, filterNoMatch
		}
	}

	keys := make(map[string]string, len(f.Correlate))
	for _, key := range sortedKeys(f.Correlate) {
		attr := f.Correlate[key]
		value, ok := m.accessor.Attribute(ev, attr)
		if !ok {
			m.logger.Debug("correlation attribute missing, trying next filter",
				"trigger", t.Key(),
				"condition", ci,
				"filter", fi,
				"key", key,
				"attribute", attr,
				"event_id", ev.ID,
			)
			return nil, filterUnresolved
		}
		keys[key] = value
	}

	return keys, filterMatched
}

func (m *Matcher) evaluate(expr string, ev ir.Event) (bool, error) {
	if m.eval == nil {
		return false, fmt.Errorf("no expression evaluator configured")
	}
	return m.eval.Evaluate(expr, ev)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
