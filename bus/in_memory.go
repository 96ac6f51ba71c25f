// Package bus contains core.EventBus implementations.
package bus

import (
	"context"
	"sync"

	"github.com/hupe1980/agentrelay/core"
)

// Handler receives published events. Handlers run synchronously on the
// publishing goroutine and must not block.
type Handler func(ctx context.Context, event core.Event)

// InMemoryBusOptions configure an InMemoryBus.
type InMemoryBusOptions struct {
	// MaxHistory caps the retained events; the oldest are dropped first.
	// Zero or less keeps every event.
	MaxHistory int
}

// InMemoryBus delivers events to subscribers in process and keeps a history.
type InMemoryBus struct {
	opts     InMemoryBusOptions
	mu       sync.RWMutex
	handlers map[string][]Handler // event type -> handlers; "" receives everything
	history  []core.Event
}

// NewInMemoryBus creates an empty bus.
func NewInMemoryBus(optFns ...func(o *InMemoryBusOptions)) *InMemoryBus {
	var opts InMemoryBusOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	return &InMemoryBus{opts: opts, handlers: make(map[string][]Handler)}
}

// Subscribe registers h for eventType. An empty eventType subscribes to every
// event.
func (b *InMemoryBus) Subscribe(eventType string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], h)
}

// Publish records event and fans it out to matching subscribers.
func (b *InMemoryBus) Publish(ctx context.Context, event core.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	b.history = append(b.history, event.Clone())
	if limit := b.opts.MaxHistory; limit > 0 && len(b.history) > limit {
		n := copy(b.history, b.history[len(b.history)-limit:])
		b.history = b.history[:n]
	}
	handlers := make([]Handler, 0, len(b.handlers[event.Type])+len(b.handlers[""]))
	handlers = append(handlers, b.handlers[event.Type]...)
	if event.Type != "" {
		handlers = append(handlers, b.handlers[""]...)
	}
	b.mu.Unlock()

	for _, h := range handlers {
		h(ctx, event.Clone())
	}
	return nil
}

// Events returns the retained events in publish order.
func (b *InMemoryBus) Events() []core.Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]core.Event, len(b.history))
	for i, ev := range b.history {
		out[i] = ev.Clone()
	}
	return out
}
