package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/roach88/correlate/internal/ir"
)

// MemoryTriggers is an in-memory trigger repository with the same
// optimistic concurrency contract as the SQLite store. ListAll returns
// triggers in insertion order.
//
// Values are deep-copied on the way in and out, so callers can never
// mutate stored state without going through Update.
type MemoryTriggers struct {
	mu        sync.Mutex
	order     []string
	triggers  map[string]ir.Trigger
	conflicts int
	updateErr error
	updates   int
}

// NewMemoryTriggers creates a repository holding the given triggers at
// resource version 1.
func NewMemoryTriggers(triggers ...ir.Trigger) *MemoryTriggers {
	r := &MemoryTriggers{triggers: make(map[string]ir.Trigger)}
	for _, t := range triggers {
		r.Put(t)
	}
	return r
}

// Put stores t, replacing any existing trigger with the same key.
// The resource version is set to 1, or bumped when replacing.
func (r *MemoryTriggers) Put(t ir.Trigger) ir.Trigger {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := t.Key()
	if existing, ok := r.triggers[key]; ok {
		t.ResourceVersion = existing.ResourceVersion + 1
	} else {
		t.ResourceVersion = 1
		r.order = append(r.order, key)
	}
	r.triggers[key] = mustClone(t)
	return mustClone(t)
}

// Get returns the stored trigger.
func (r *MemoryTriggers) Get(namespace, name string) (ir.Trigger, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.triggers[namespace+"/"+name]
	if !ok {
		return ir.Trigger{}, false
	}
	return mustClone(t), true
}

// ListAll implements engine.TriggerRepository.
func (r *MemoryTriggers) ListAll(ctx context.Context) ([]ir.Trigger, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]ir.Trigger, 0, len(r.order))
	for _, key := range r.order {
		if t, ok := r.triggers[key]; ok {
			out = append(out, mustClone(t))
		}
	}
	return out, nil
}

// Update implements engine.TriggerRepository.
func (r *MemoryTriggers) Update(ctx context.Context, t ir.Trigger) (ir.Trigger, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.updates++

	if r.updateErr != nil {
		return ir.Trigger{}, r.updateErr
	}

	key := t.Key()
	stored, ok := r.triggers[key]
	if !ok {
		return ir.Trigger{}, fmt.Errorf("update trigger %s: %w", key, ir.ErrNotFound)
	}

	if r.conflicts > 0 {
		// Simulate a concurrent writer that got there first.
		r.conflicts--
		stored.ResourceVersion++
		r.triggers[key] = stored
		return ir.Trigger{}, fmt.Errorf("update trigger %s: %w", key, ir.ErrConflict)
	}

	if stored.ResourceVersion != t.ResourceVersion {
		return ir.Trigger{}, fmt.Errorf("update trigger %s at version %d (stored %d): %w",
			key, t.ResourceVersion, stored.ResourceVersion, ir.ErrConflict)
	}

	t.ResourceVersion++
	r.triggers[key] = mustClone(t)
	return mustClone(t), nil
}

// Delete removes a trigger.
func (r *MemoryTriggers) Delete(namespace, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.triggers, namespace+"/"+name)
}

// InjectConflicts makes the next n Update calls fail with ir.ErrConflict,
// bumping the stored version each time as a concurrent writer would.
func (r *MemoryTriggers) InjectConflicts(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conflicts = n
}

// FailUpdates makes every Update fail with err until called with nil.
func (r *MemoryTriggers) FailUpdates(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updateErr = err
}

// Updates returns the number of Update calls so far.
func (r *MemoryTriggers) Updates() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updates
}

// Instance is a workflow instance recorded by MemoryInstances.
type Instance struct {
	Ref      ir.InstanceRef
	Workflow ir.WorkflowRef
	Context  ir.CorrelationContext
}

// MemoryInstances is an in-memory workflow instance repository. Create is
// idempotent on the deterministic instance name.
type MemoryInstances struct {
	mu        sync.Mutex
	instances []Instance
	byName    map[string]int
	creates   int
	createErr error
}

// NewMemoryInstances creates an empty repository.
func NewMemoryInstances() *MemoryInstances {
	return &MemoryInstances{byName: make(map[string]int)}
}

// Create implements engine.InstanceRepository.
func (r *MemoryInstances) Create(ctx context.Context, wf ir.WorkflowRef, cc ir.CorrelationContext, namespace string) (ir.InstanceRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.creates++
	if r.createErr != nil {
		return ir.InstanceRef{}, r.createErr
	}

	name, err := ir.InstanceName(wf, cc.ID)
	if err != nil {
		return ir.InstanceRef{}, err
	}
	ref := ir.InstanceRef{Namespace: namespace, Name: name}

	if _, ok := r.byName[ref.String()]; ok {
		return ref, nil
	}
	r.byName[ref.String()] = len(r.instances)
	r.instances = append(r.instances, Instance{Ref: ref, Workflow: wf, Context: cc})
	return ref, nil
}

// Instances returns the distinct instances created, in creation order.
func (r *MemoryInstances) Instances() []Instance {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Instance(nil), r.instances...)
}

// Creates returns the number of Create calls, including repeats.
func (r *MemoryInstances) Creates() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.creates
}

// FailCreates makes every Create fail with err until called with nil.
func (r *MemoryInstances) FailCreates(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.createErr = err
}

// mustClone deep-copies a trigger through its JSON form.
func mustClone(t ir.Trigger) ir.Trigger {
	data, err := json.Marshal(t)
	if err != nil {
		panic(fmt.Sprintf("clone trigger %s: %v", t.Key(), err))
	}
	var out ir.Trigger
	if err := json.Unmarshal(data, &out); err != nil {
		panic(fmt.Sprintf("clone trigger %s: %v", t.Key(), err))
	}
	return out
}
