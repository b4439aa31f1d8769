package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/correlate/internal/filter"
	"github.com/roach88/correlate/internal/ir"
)

func newTestMatcher(t *testing.T) *Matcher {
	t.Helper()
	eval, err := filter.NewEvaluator()
	require.NoError(t, err)
	return NewMatcher(nil, eval, discardLogger())
}

func TestMatcher_AttributePredicates(t *testing.T) {
	m := newTestMatcher(t)
	triggers := []ir.Trigger{
		trigger("t", "", cond(ir.EventFilter{
			Attributes: map[string]string{"type": "A", "source": "test"},
		})),
	}

	assert.Len(t, m.Match(event("1", "A", ""), triggers), 1)
	assert.Empty(t, m.Match(event("2", "B", ""), triggers))

	other := event("3", "A", "")
	other.Source = "elsewhere"
	assert.Empty(t, m.Match(other, triggers), "all predicates must hold")
}

func TestMatcher_OneMatchPerCondition(t *testing.T) {
	m := newTestMatcher(t)
	triggers := []ir.Trigger{
		trigger("t", "",
			cond(
				typeFilter("A", map[string]string{"first": "subject"}),
				typeFilter("A", map[string]string{"second": "subject"}),
			),
			cond(typeFilter("A", nil)),
		),
	}

	matches := m.Match(event("1", "A", "s"), triggers)
	require.Len(t, matches, 2)

	assert.Equal(t, 0, matches[0].Condition)
	assert.Equal(t, 0, matches[0].Filter, "first matching filter wins")
	assert.Equal(t, map[string]string{"first": "s"}, matches[0].Keys)

	assert.Equal(t, 1, matches[1].Condition)
	assert.Empty(t, matches[1].Keys)
}

func TestMatcher_DeclarationOrder(t *testing.T) {
	m := newTestMatcher(t)
	triggers := []ir.Trigger{
		trigger("t1", "", cond(typeFilter("X", nil))),
		trigger("t2", "", cond(typeFilter("A", nil))),
		trigger("t3", "", cond(typeFilter("A", nil))),
	}

	matches := m.Match(event("1", "A", ""), triggers)
	require.Len(t, matches, 2)
	assert.Equal(t, 1, matches[0].Trigger)
	assert.Equal(t, 2, matches[1].Trigger)
}

func TestMatcher_MissingCorrelationAttributeTriesNextFilter(t *testing.T) {
	m := newTestMatcher(t)
	triggers := []ir.Trigger{
		trigger("t", "", cond(
			typeFilter("A", map[string]string{"order": "data.order.id"}),
			typeFilter("A", map[string]string{"order": "subject"}),
		)),
	}

	matches := m.Match(event("1", "A", "s-1"), triggers)
	require.Len(t, matches, 1)
	assert.Equal(t, 1, matches[0].Filter)
	assert.Equal(t, map[string]string{"order": "s-1"}, matches[0].Keys)

	// No subject either: the condition does not match at all.
	assert.Empty(t, m.Match(event("2", "A", ""), triggers))
}

func TestMatcher_Expression(t *testing.T) {
	m := newTestMatcher(t)
	triggers := []ir.Trigger{
		trigger("t", "", cond(ir.EventFilter{
			Attributes: map[string]string{"type": "order.paid"},
			Expression: `event.data.amount >= 100`,
		})),
	}

	big := event("1", "order.paid", "")
	big.Data = map[string]any{"amount": float64(250)}
	small := event("2", "order.paid", "")
	small.Data = map[string]any{"amount": float64(5)}
	missing := event("3", "order.paid", "")

	assert.Len(t, m.Match(big, triggers), 1)
	assert.Empty(t, m.Match(small, triggers))
	assert.Empty(t, m.Match(missing, triggers), "evaluation errors count as no match")
}

func TestMatcher_SkipsEmptyDefinitions(t *testing.T) {
	m := newTestMatcher(t)
	triggers := []ir.Trigger{
		trigger("no-conditions", ""),
		trigger("no-filters", "", cond()),
		trigger("ok", "", cond(typeFilter("A", nil))),
	}

	matches := m.Match(event("1", "A", ""), triggers)
	require.Len(t, matches, 1)
	assert.Equal(t, 2, matches[0].Trigger)
}

func TestMatcher_FilterlessConditionSkipsWholeTrigger(t *testing.T) {
	m := newTestMatcher(t)
	triggers := []ir.Trigger{
		trigger("broken", "", cond(), cond(typeFilter("A", nil))),
		trigger("ok", "", cond(typeFilter("A", nil))),
	}

	matches := m.Match(event("1", "A", ""), triggers)
	require.Len(t, matches, 1, "no match from the broken trigger")
	assert.Equal(t, 1, matches[0].Trigger)
}

func TestMatcher_UnresolvableKeysSkipWholeTrigger(t *testing.T) {
	m := newTestMatcher(t)
	triggers := []ir.Trigger{
		trigger("t", "",
			cond(typeFilter("A", nil)),
			cond(typeFilter("A", map[string]string{"order": "data.order.id"})),
		),
	}

	// Condition 0 matches, condition 1 holds but cannot bind its key.
	assert.Empty(t, m.Match(event("1", "A", ""), triggers))

	ev := event("2", "A", "")
	ev.Data = map[string]any{"order": map[string]any{"id": "42"}}
	matches := m.Match(ev, triggers)
	require.Len(t, matches, 2)
	assert.Equal(t, map[string]string{"order": "42"}, matches[1].Keys)
}

func TestMatcher_UnmatchedConditionDoesNotSkipTrigger(t *testing.T) {
	m := newTestMatcher(t)
	triggers := []ir.Trigger{
		trigger("t", "",
			cond(typeFilter("A", nil)),
			cond(typeFilter("B", map[string]string{"order": "data.order.id"})),
		),
	}

	matches := m.Match(event("1", "A", ""), triggers)
	require.Len(t, matches, 1)
	assert.Equal(t, 0, matches[0].Condition)
}

func TestMatcher_CustomAccessor(t *testing.T) {
	eval, err := filter.NewEvaluator()
	require.NoError(t, err)

	upper := filter.AccessorFunc(func(ev ir.Event, name string) (string, bool) {
		if name == "tenant" {
			return "ACME", true
		}
		return filter.DefaultAccessor{}.Attribute(ev, name)
	})
	m := NewMatcher(upper, eval, discardLogger())

	triggers := []ir.Trigger{
		trigger("t", "", cond(ir.EventFilter{
			Attributes: map[string]string{"tenant": "ACME"},
			Correlate:  map[string]string{"tenant": "tenant"},
		})),
	}

	matches := m.Match(event("1", "A", ""), triggers)
	require.Len(t, matches, 1)
	assert.Equal(t, map[string]string{"tenant": "ACME"}, matches[0].Keys)
}
