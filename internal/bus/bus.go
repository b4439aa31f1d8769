// Package bus provides event sources feeding the correlation engine.
//
// A Source delivers events to a Handler from its own goroutine until the
// Subscription is disposed. Handlers must not block; the engine's handler
// only enqueues.
package bus

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/correlate/internal/ir"
)

// Handler receives one event.
type Handler func(ir.Event)

// Subscription is a live registration with a Source.
type Subscription interface {
	// Dispose stops delivery. The handler is not called after Dispose
	// returns.
	Dispose() error
}

// Source delivers events to subscribers.
type Source interface {
	Subscribe(h Handler) (Subscription, error)
}

// SubscriptionFunc adapts a function to the Subscription interface.
type SubscriptionFunc func() error

// Dispose implements Subscription.
func (f SubscriptionFunc) Dispose() error { return f() }

// DecodeEvent parses a JSON event and checks its required attributes.
func DecodeEvent(data []byte) (ir.Event, error) {
	var ev ir.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return ir.Event{}, fmt.Errorf("decode event: %w", err)
	}
	if err := ev.Validate(); err != nil {
		return ir.Event{}, fmt.Errorf("invalid event: %w", err)
	}
	return ev, nil
}
