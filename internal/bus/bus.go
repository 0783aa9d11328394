// Package bus provides the in-process message and event bus connecting
// connectors, the turn engine, and observers.
package bus

import (
	"context"
	"log/slog"
	"sync"
)

const queueDepth = 256

// MessageBus is the single-process implementation of MessageRouter and
// EventPublisher. Inbound and outbound messages flow through buffered
// channels; events fan out to registered handlers.
type MessageBus struct {
	inbound  chan InboundMessage
	outbound chan OutboundMessage

	mu       sync.RWMutex
	handlers map[string]EventHandler
}

func New() *MessageBus {
	return &MessageBus{
		inbound:  make(chan InboundMessage, queueDepth),
		outbound: make(chan OutboundMessage, queueDepth),
		handlers: make(map[string]EventHandler),
	}
}

// PublishInbound enqueues a message from a connector. Drops with a warning
// when the queue is full rather than blocking the connector's poll loop.
func (b *MessageBus) PublishInbound(msg InboundMessage) {
	select {
	case b.inbound <- msg:
	default:
		slog.Warn("inbound queue full, dropping message", "connector", msg.Connector, "target", msg.TargetID)
	}
}

// ConsumeInbound blocks until a message arrives or ctx is cancelled.
func (b *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	select {
	case <-ctx.Done():
		return InboundMessage{}, false
	case msg := <-b.inbound:
		return msg, true
	}
}

// PublishOutbound enqueues a reply for delivery.
func (b *MessageBus) PublishOutbound(msg OutboundMessage) {
	select {
	case b.outbound <- msg:
	default:
		slog.Warn("outbound queue full, dropping message", "connector", msg.Connector, "target", msg.TargetID)
	}
}

// SubscribeOutbound blocks until an outbound message is available or ctx is cancelled.
func (b *MessageBus) SubscribeOutbound(ctx context.Context) (OutboundMessage, bool) {
	select {
	case <-ctx.Done():
		return OutboundMessage{}, false
	case msg := <-b.outbound:
		return msg, true
	}
}

// Subscribe registers an event handler under an id. Re-registering the same
// id replaces the previous handler.
func (b *MessageBus) Subscribe(id string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[id] = handler
}

// Unsubscribe removes a handler.
func (b *MessageBus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, id)
}

// Broadcast delivers an event to every subscriber. Handlers run synchronously
// on the caller's goroutine and must be non-blocking.
func (b *MessageBus) Broadcast(event Event) {
	b.mu.RLock()
	snapshot := make([]EventHandler, 0, len(b.handlers))
	for _, h := range b.handlers {
		snapshot = append(snapshot, h)
	}
	b.mu.RUnlock()

	for _, h := range snapshot {
		h(event)
	}
}
