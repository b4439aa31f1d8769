// Package engine implements the correlation engine.
//
// The engine consumes external events, matches them against trigger
// definitions, accumulates per-trigger correlation contexts across events
// and fires each trigger's outcome exactly once per completed context.
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// The bus callback only enqueues. Engine.Run dequeues events one at a time
// and processes each to completion before taking the next, so trigger and
// context state needs no locks:
//  1. Events enqueued to an unbounded FIFO queue
//  2. Run dequeues the next event (the only blocking point)
//  3. A fresh trigger snapshot is read from the repository
//  4. Matcher finds every (trigger, condition) the event satisfies
//  5. For each match: resolve or create the context, mark the condition,
//     persist, and fire the outcome once all conditions hold
//
// Correlation Modes:
// An exclusive trigger holds at most one open context; an event that would
// open a second one is skipped. A parallel trigger holds any number.
//
// Persistence:
// Triggers are written back through optimistic concurrency on their
// resource version. Instance names are derived from the workflow and the
// context id, so re-firing a context whose release was lost lands on the
// same instance.
//
// Ordering:
// Events are processed strictly in arrival order. Triggers and conditions
// are evaluated in declaration order.
package engine
