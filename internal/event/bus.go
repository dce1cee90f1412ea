package event

import (
	"fmt"
	"runtime/debug"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/jzrake/gridflow/internal/logging"
)

// Wildcard subscribes a handler to every event type.
const Wildcard = "*"

// Handler is a function that handles an event.
type Handler func(Event)

type subscription struct {
	id      string
	handler Handler
}

// Bus is a synchronous pub-sub event bus.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string][]subscription
	nextID atomic.Uint64
	logger *logging.Logger
}

// NewBus creates an event bus. Handler panics are reported through logger,
// or dropped when logger is nil.
func NewBus(logger *logging.Logger) *Bus {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Bus{
		subs:   make(map[string][]subscription),
		logger: logger,
	}
}

// Subscribe registers a handler for one event type and returns an ID for
// Unsubscribe.
func (b *Bus) Subscribe(eventType string, handler Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := "sub-" + strconv.FormatUint(b.nextID.Add(1), 10)
	b.subs[eventType] = append(b.subs[eventType], subscription{id: id, handler: handler})
	return id
}

// SubscribeAll registers a handler for every event type.
func (b *Bus) SubscribeAll(handler Handler) string {
	return b.Subscribe(Wildcard, handler)
}

// Unsubscribe removes a subscription, reporting whether it existed.
func (b *Bus) Unsubscribe(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for eventType, subs := range b.subs {
		i := slices.IndexFunc(subs, func(s subscription) bool { return s.id == id })
		if i >= 0 {
			b.subs[eventType] = slices.Delete(slices.Clone(subs), i, i+1)
			return true
		}
	}
	return false
}

// Publish calls the handlers subscribed to the event's type, then the
// wildcard handlers, each group in registration order.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[e.EventType()])+len(b.subs[Wildcard]))
	for _, s := range b.subs[e.EventType()] {
		handlers = append(handlers, s.handler)
	}
	for _, s := range b.subs[Wildcard] {
		handlers = append(handlers, s.handler)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		b.call(h, e)
	}
}

func (b *Bus) call(h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"event", e.EventType(),
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()))
		}
	}()
	h(e)
}

// Clear removes all subscriptions.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = make(map[string][]subscription)
}

// SubscriptionCount returns the number of active subscriptions.
func (b *Bus) SubscriptionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for _, subs := range b.subs {
		n += len(subs)
	}
	return n
}
