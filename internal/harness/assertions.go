package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/correlate/internal/engine"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string              // Assertion type for categorization
	Expected string              // Human-readable expected outcome
	Actual   string              // Human-readable actual outcome
	Trace    []engine.Transition // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, tr := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] seq=%d %s %s", i+1, tr.Seq, tr.Kind, tr.Trigger)
			if tr.Context != "" {
				fmt.Fprintf(&buf, " context=%s", tr.Context)
			}
			fmt.Fprintln(&buf)
		}
	}

	return buf.String()
}

// EvaluateAssertions checks every assertion and returns failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var failures []string
	for _, a := range assertions {
		if err := evaluateAssertion(result, a); err != nil {
			failures = append(failures, err.Error())
		}
	}
	return failures
}

func evaluateAssertion(result *Result, a Assertion) error {
	switch a.Type {
	case AssertTransitionCount:
		return assertTransitionCount(result.Trace, a)
	case AssertTransitionOrder:
		return assertTransitionOrder(result.Trace, a)
	case AssertInstanceCount:
		return assertInstanceCount(result, a)
	case AssertInstanceKeys:
		return assertInstanceKeys(result, a)
	case AssertOpenContexts:
		return assertOpenContexts(result, a)
	case AssertEventErrors:
		return assertEventErrors(result, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertTransitionCount checks a transition kind occurs exactly Count times,
// optionally restricted to one trigger.
func assertTransitionCount(trace []engine.Transition, a Assertion) error {
	count := 0
	for _, tr := range trace {
		if string(tr.Kind) != a.Kind {
			continue
		}
		if a.Trigger != "" && tr.Trigger != a.Trigger {
			continue
		}
		count++
	}
	if count == a.Count {
		return nil
	}

	what := a.Kind
	if a.Trigger != "" {
		what += " for " + a.Trigger
	}
	return &AssertionError{
		Type:     AssertTransitionCount,
		Expected: fmt.Sprintf("%d %s transition(s)", a.Count, what),
		Actual:   fmt.Sprintf("%d", count),
		Trace:    trace,
	}
}

// assertTransitionOrder checks the kinds appear in order. Other transitions
// may appear in between.
func assertTransitionOrder(trace []engine.Transition, a Assertion) error {
	next := 0
	for _, tr := range trace {
		if next < len(a.Kinds) && string(tr.Kind) == a.Kinds[next] {
			next++
		}
	}
	if next == len(a.Kinds) {
		return nil
	}

	return &AssertionError{
		Type:     AssertTransitionOrder,
		Expected: strings.Join(a.Kinds, " → "),
		Actual:   fmt.Sprintf("no %s after %s", a.Kinds[next], strings.Join(a.Kinds[:next], " → ")),
		Trace:    trace,
	}
}

// assertInstanceCount checks how many instances were started.
func assertInstanceCount(result *Result, a Assertion) error {
	count := 0
	for _, inst := range result.Instances {
		if a.Workflow == "" || inst.Workflow.Name == a.Workflow {
			count++
		}
	}
	if count == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertInstanceCount,
		Expected: fmt.Sprintf("%d instance(s)", a.Count),
		Actual:   fmt.Sprintf("%d", count),
	}
}

// assertInstanceKeys checks some instance was started from a context
// whose keys include a.Keys.
func assertInstanceKeys(result *Result, a Assertion) error {
	for _, inst := range result.Instances {
		if a.Workflow != "" && inst.Workflow.Name != a.Workflow {
			continue
		}
		if matchKeys(inst.Correlation.Keys, a.Keys) {
			return nil
		}
	}

	var seen []string
	for _, inst := range result.Instances {
		seen = append(seen, fmt.Sprintf("%s%v", inst.Ref.Name, inst.Correlation.Keys))
	}
	return &AssertionError{
		Type:     AssertInstanceKeys,
		Expected: fmt.Sprintf("instance with keys %v", a.Keys),
		Actual:   fmt.Sprintf("instances %v", seen),
	}
}

// assertOpenContexts checks the number of contexts a trigger holds.
func assertOpenContexts(result *Result, a Assertion) error {
	t, ok := result.Trigger(a.Trigger)
	if !ok {
		return &AssertionError{
			Type:     AssertOpenContexts,
			Expected: fmt.Sprintf("trigger %s", a.Trigger),
			Actual:   "not found",
		}
	}

	open := 0
	if t.Status != nil {
		open = len(t.Status.Contexts)
	}
	if open == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertOpenContexts,
		Expected: fmt.Sprintf("%d open context(s) on %s", a.Count, a.Trigger),
		Actual:   fmt.Sprintf("%d", open),
	}
}

// assertEventErrors checks how many events failed processing.
func assertEventErrors(result *Result, a Assertion) error {
	if len(result.EventErrors) == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertEventErrors,
		Expected: fmt.Sprintf("%d event error(s)", a.Count),
		Actual:   fmt.Sprintf("%d: %v", len(result.EventErrors), result.EventErrors),
	}
}

// matchKeys reports whether actual contains every expected key with the
// same value (subset semantics).
func matchKeys(actual, expected map[string]string) bool {
	for k, v := range expected {
		if actual[k] != v {
			return false
		}
	}
	return true
}
