package bus

import "context"

// InboundMessage represents a message received from a connector (Telegram, Discord, CLI).
type InboundMessage struct {
	Connector string            `json:"connector"`
	SenderID  string            `json:"sender_id"`
	TargetID  string            `json:"target_id"` // chat/channel id on the connector
	Content   string            `json:"content"`
	Media     []string          `json:"media,omitempty"`
	AgentID   string            `json:"agent_id,omitempty"` // target agent (multi-agent routing)
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// OutboundMessage represents a reply to be delivered through a connector.
type OutboundMessage struct {
	Connector string            `json:"connector"`
	TargetID  string            `json:"target_id"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Event is a typed lifecycle event broadcast to subscribers.
// Name is one of the protocol.Event* constants; unknown names are allowed
// for custom-domain publishers.
type Event struct {
	Name    string      `json:"name"`
	Payload interface{} `json:"payload,omitempty"`
}

// EditAppliedPayload accompanies protocol.EventEditApplied.
type EditAppliedPayload struct {
	Path          string `json:"path"`
	BeforeContent string `json:"before_content"`
	AfterContent  string `json:"after_content"`
}

// ConnectorPayload accompanies connector lifecycle events.
type ConnectorPayload struct {
	Connector string `json:"connector"`
	Error     string `json:"error,omitempty"`
}

// EventHandler handles a broadcast event.
type EventHandler func(Event)

// EventPublisher abstracts event broadcast + subscription. Used by the turn
// engine, connectors, and the gateway server to decouple from the concrete bus.
type EventPublisher interface {
	Subscribe(id string, handler EventHandler)
	Unsubscribe(id string)
	Broadcast(event Event)
}

// MessageRouter abstracts inbound/outbound message routing between connectors
// and the agent runtime.
type MessageRouter interface {
	PublishInbound(msg InboundMessage)
	ConsumeInbound(ctx context.Context) (InboundMessage, bool)
	PublishOutbound(msg OutboundMessage)
	SubscribeOutbound(ctx context.Context) (OutboundMessage, bool)
}
