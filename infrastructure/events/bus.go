// Package events provides the in-process event bus that fans domain
// events out to subscribers. It is a single-instance implementation:
// handlers run on their own goroutines and publishing never blocks,
// because services publish while still holding their store locks.
package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/PRicaldone/atelier-sub003/application/ports"
	domainevents "github.com/PRicaldone/atelier-sub003/domain/events"
	"go.uber.org/zap"
)

// WildcardEventType subscribes a handler to every event regardless of
// type. The SSE stream and the metrics listener use it.
const WildcardEventType = "*"

// Bus is an in-memory event bus keyed by event type
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]ports.EventHandler
	closed   bool
	wg       sync.WaitGroup
	logger   *zap.Logger
}

// NewBus creates an empty event bus
func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		handlers: make(map[string][]ports.EventHandler),
		logger:   logger,
	}
}

var _ ports.EventBus = (*Bus)(nil)

// Subscribe registers a handler for an event type, or for every event
// when the type is the wildcard
func (b *Bus) Subscribe(eventType string, handler ports.EventHandler) error {
	if eventType == "" {
		return fmt.Errorf("event type is required")
	}
	if handler == nil {
		return fmt.Errorf("handler is required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("event bus is closed")
	}
	b.handlers[eventType] = append(b.handlers[eventType], handler)
	b.logger.Debug("Event handler subscribed",
		zap.String("event_type", eventType),
		zap.Int("total_handlers", len(b.handlers[eventType])),
	)
	return nil
}

// Unsubscribe removes a previously registered handler by identity
func (b *Bus) Unsubscribe(eventType string, handler ports.EventHandler) error {
	if eventType == "" {
		return fmt.Errorf("event type is required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	registered := b.handlers[eventType]
	for i, h := range registered {
		if h == handler {
			b.handlers[eventType] = append(registered[:i], registered[i+1:]...)
			if len(b.handlers[eventType]) == 0 {
				delete(b.handlers, eventType)
			}
			return nil
		}
	}
	return fmt.Errorf("handler not subscribed to %s", eventType)
}

// Publish dispatches an event to every matching handler. Each handler
// runs on its own goroutine: callers publish from inside critical
// sections, so this method must return without waiting on anyone.
func (b *Bus) Publish(ctx context.Context, event domainevents.DomainEvent) error {
	if event == nil {
		return nil
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		b.logger.Debug("Event dropped after close",
			zap.String("event_type", event.GetEventType()),
		)
		return nil
	}

	eventType := event.GetEventType()
	matched := make([]ports.EventHandler, 0, len(b.handlers[eventType])+len(b.handlers[WildcardEventType]))
	matched = append(matched, b.handlers[eventType]...)
	matched = append(matched, b.handlers[WildcardEventType]...)

	for _, handler := range matched {
		if !handler.CanHandle(eventType) {
			continue
		}
		b.wg.Add(1)
		go b.dispatch(handler, event)
	}
	b.mu.RUnlock()

	return nil
}

// PublishBatch dispatches several events in order
func (b *Bus) PublishBatch(ctx context.Context, batch []domainevents.DomainEvent) error {
	for _, event := range batch {
		if err := b.Publish(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

// dispatch runs one handler, logging failures instead of surfacing
// them. The publisher has already moved on.
func (b *Bus) dispatch(handler ports.EventHandler, event domainevents.DomainEvent) {
	defer b.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Event handler panicked",
				zap.String("event_type", event.GetEventType()),
				zap.Any("panic", r),
			)
		}
	}()

	if err := handler.Handle(context.Background(), event); err != nil {
		b.logger.Error("Event handler failed",
			zap.String("event_type", event.GetEventType()),
			zap.String("aggregate_id", event.GetAggregateID()),
			zap.Error(err),
		)
	}
}

// HandlerCount reports how many handlers listen for an event type
func (b *Bus) HandlerCount(eventType string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[eventType])
}

// Close stops accepting events and waits for in-flight handlers
func (b *Bus) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}
