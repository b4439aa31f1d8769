package engine

import (
	"slices"
	"time"

	"github.com/roach88/correlate/internal/ir"
)

// contextStore resolves and mutates the correlation contexts held in a
// trigger's status. It works on the engine's private copy of the trigger;
// nothing here is visible until the trigger is persisted.
type contextStore struct {
	ids IDGenerator
	now func() time.Time
}

// resolution is the result of contextStore.Resolve.
type resolution struct {
	ContextID string
	Created   bool // A new context was opened
	Bound     bool // Previously unbound keys were filled in
}

// Resolve finds the first open context agreeing with keys, or opens a new
// one. A context agrees when every key it has bound that the event also
// supplies carries the same value; keys the event does not supply do not
// constrain. Bound keys are never rebound.
//
// On an exclusive trigger that already has an open context and no
// agreeing one, Resolve returns an EXCLUSIVE_CONFLICT error and leaves the
// trigger untouched.
func (s *contextStore) Resolve(t *ir.Trigger, keys map[string]string, eventID string) (resolution, error) {
	if t.Status == nil {
		t.Status = &ir.TriggerStatus{}
	}

	for i := range t.Status.Contexts {
		cc := &t.Status.Contexts[i]
		if !agrees(cc.Keys, keys) {
			continue
		}
		return resolution{ContextID: cc.ID, Bound: bindMissing(cc, keys)}, nil
	}

	if t.Spec.Correlation.Normalize() == ir.CorrelationExclusive && len(t.Status.Contexts) > 0 {
		return resolution{}, NewExclusiveConflictError(t.Key(), eventID, t.Status.Contexts[0].ID)
	}

	now := s.now()
	cc := ir.CorrelationContext{
		ID:        s.ids.Generate(),
		Keys:      copyKeys(keys),
		Satisfied: []int{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	t.Status.Contexts = append(t.Status.Contexts, cc)

	return resolution{ContextID: cc.ID, Created: true}, nil
}

// Apply marks condition as satisfied by eventID. Returns true if the
// context changed. A new event on an already satisfied condition is
// recorded and touches the context; re-applying the same event id is a
// no-op so at-least-once redelivery does not bump the resource version.
func (s *contextStore) Apply(cc *ir.CorrelationContext, condition int, eventID string) bool {
	changed := false

	if i, found := slices.BinarySearch(cc.Satisfied, condition); !found {
		cc.Satisfied = slices.Insert(cc.Satisfied, i, condition)
		changed = true
	}
	if eventID != "" && !slices.Contains(cc.Events, eventID) {
		cc.Events = append(cc.Events, eventID)
		changed = true
	}

	if changed {
		cc.UpdatedAt = s.now()
	}
	return changed
}

// Expire drops contexts whose last update is older than ttl and returns
// their ids. A non-positive ttl disables expiry.
func (s *contextStore) Expire(t *ir.Trigger, ttl time.Duration) []string {
	if ttl <= 0 || t.Status == nil || len(t.Status.Contexts) == 0 {
		return nil
	}

	cutoff := s.now().Add(-ttl)
	var expired []string
	t.Status.Contexts = slices.DeleteFunc(t.Status.Contexts, func(cc ir.CorrelationContext) bool {
		if cc.UpdatedAt.Before(cutoff) {
			expired = append(expired, cc.ID)
			return true
		}
		return false
	})
	return expired
}

func agrees(bound, keys map[string]string) bool {
	for k, v := range keys {
		if existing, ok := bound[k]; ok && existing != v {
			return false
		}
	}
	return true
}

// bindMissing fills keys the context has not bound yet.
func bindMissing(cc *ir.CorrelationContext, keys map[string]string) bool {
	changed := false
	for k, v := range keys {
		if _, ok := cc.Keys[k]; ok {
			continue
		}
		if cc.Keys == nil {
			cc.Keys = make(map[string]string, len(keys))
		}
		cc.Keys[k] = v
		changed = true
	}
	return changed
}

func copyKeys(keys map[string]string) map[string]string {
	if len(keys) == 0 {
		return nil
	}
	out := make(map[string]string, len(keys))
	for k, v := range keys {
		out[k] = v
	}
	return out
}
