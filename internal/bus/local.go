package bus

import (
	"slices"
	"sync"

	"github.com/roach88/correlate/internal/ir"
)

// Local is an in-process Source. Publish delivers synchronously to every
// subscriber in subscription order. Handlers must not subscribe or dispose
// from within a delivery.
type Local struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[int]Handler
	order    []int
}

// NewLocal creates an empty in-process bus.
func NewLocal() *Local {
	return &Local{handlers: make(map[int]Handler)}
}

// Subscribe implements Source.
func (l *Local) Subscribe(h Handler) (Subscription, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.nextID
	l.nextID++
	l.handlers[id] = h
	l.order = append(l.order, id)

	return SubscriptionFunc(func() error {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.handlers, id)
		if i := slices.Index(l.order, id); i >= 0 {
			l.order = slices.Delete(l.order, i, i+1)
		}
		return nil
	}), nil
}

// Publish delivers ev to all current subscribers and returns how many
// received it.
func (l *Local) Publish(ev ir.Event) int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := 0
	for _, id := range l.order {
		if h, ok := l.handlers[id]; ok {
			h(ev)
			n++
		}
	}
	return n
}
