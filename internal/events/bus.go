package events

import (
	"context"
	"log/slog"
	"sync"
)

// Handler reacts to one event. Handlers must tolerate redelivery.
type Handler func(ctx context.Context, ev Event)

// Bus is an in-process publish/subscribe hub. Handlers run on their own goroutines.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Type][]Handler
	inflight sync.WaitGroup
	log      *slog.Logger
}

func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{handlers: make(map[Type][]Handler), log: logger}
}

// Subscribe registers handler for one event type.
func (b *Bus) Subscribe(t Type, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[t] = append(b.handlers[t], handler)
	b.log.Debug("subscribed", slog.String("type", string(t)))
}

// SubscribeAll registers handler for every event type.
func (b *Bus) SubscribeAll(handler Handler) {
	for _, t := range AllTypes {
		b.Subscribe(t, handler)
	}
}

// Publish dispatches ev to its subscribers without waiting for them. Handlers get a
// context detached from the caller's cancellation.
func (b *Bus) Publish(ctx context.Context, ev Event) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[ev.Type]...)
	b.mu.RUnlock()

	hctx := context.WithoutCancel(ctx)
	for _, h := range handlers {
		b.inflight.Add(1)
		go func(h Handler) {
			defer b.inflight.Done()
			defer func() {
				if r := recover(); r != nil {
					b.log.Error("event handler panic", slog.String("type", string(ev.Type)), slog.String("event_id", ev.ID), slog.Any("panic", r))
				}
			}()
			h(hctx, ev)
		}(h)
	}
}

// Drain blocks until every dispatched handler has returned.
func (b *Bus) Drain() {
	b.inflight.Wait()
}
