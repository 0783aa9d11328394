package connectors

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/slashbot/slashbot/internal/bus"
	"github.com/slashbot/slashbot/internal/sessions"
	"github.com/slashbot/slashbot/pkg/protocol"
)

// TurnFactory builds the agent turn for one inbound message. The returned
// Turn runs under the session router's single-writer discipline.
type TurnFactory func(msg bus.InboundMessage) sessions.Turn

// TranscriptLogger records connector traffic. Nil disables logging.
type TranscriptLogger interface {
	LogIn(msg bus.InboundMessage)
	LogOut(msg bus.OutboundMessage)
}

// Manager owns connector lifecycles: lock acquisition, start/stop, the
// inbound routing loop, and outbound chunked delivery.
type Manager struct {
	locks      *LockManager
	bus        *bus.MessageBus
	router     *sessions.Router
	turnFor    TurnFactory
	transcript TranscriptLogger

	mu         sync.RWMutex
	connectors map[string]Connector
	started    []string // connectors we hold locks for
}

func NewManager(locks *LockManager, msgBus *bus.MessageBus, turnFor TurnFactory, transcript TranscriptLogger) *Manager {
	m := &Manager{
		locks:      locks,
		bus:        msgBus,
		turnFor:    turnFor,
		transcript: transcript,
		connectors: map[string]Connector{},
	}
	m.router = sessions.NewRouter(m.deliverReply)
	return m
}

// Register adds a connector. Call before Start.
func (m *Manager) Register(c Connector) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectors[c.ID()] = c
}

// Get returns a registered connector.
func (m *Manager) Get(id string) (Connector, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.connectors[id]
	return c, ok
}

// Start acquires each connector's cross-process lock and starts it, then
// runs the inbound and outbound pumps until ctx is cancelled. A connector
// whose lock is held elsewhere is skipped with a warning; a start failure
// fails the whole manager.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.RLock()
	conns := make([]Connector, 0, len(m.connectors))
	for _, c := range m.connectors {
		conns = append(conns, c)
	}
	m.mu.RUnlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range conns {
		res, err := m.locks.Acquire(c.ID())
		if err != nil {
			return fmt.Errorf("acquire %s lock: %w", c.ID(), err)
		}
		if !res.Acquired {
			slog.Warn("connector already running in another process",
				"connector", c.ID(), "pid", res.ExistingPID, "workDir", res.ExistingWorkDir)
			continue
		}
		m.mu.Lock()
		m.started = append(m.started, c.ID())
		m.mu.Unlock()

		if err := c.Start(gctx); err != nil {
			m.locks.Release(c.ID())
			m.bus.Broadcast(bus.Event{Name: protocol.EventConnectorDisconnected,
				Payload: bus.ConnectorPayload{Connector: c.ID(), Error: err.Error()}})
			return fmt.Errorf("start %s: %w", c.ID(), err)
		}
		m.bus.Broadcast(bus.Event{Name: protocol.EventConnectorConnected,
			Payload: bus.ConnectorPayload{Connector: c.ID()}})
	}

	g.Go(func() error { m.inboundPump(gctx); return nil })
	g.Go(func() error { m.outboundPump(gctx); return nil })

	err := g.Wait()
	m.shutdown()
	return err
}

// inboundPump routes bus messages into per-session agent turns.
func (m *Manager) inboundPump(ctx context.Context) {
	for {
		msg, ok := m.bus.ConsumeInbound(ctx)
		if !ok {
			return
		}
		if !m.authorized(msg) {
			slog.Warn("unauthorized message dropped", "connector", msg.Connector, "target", msg.TargetID)
			continue
		}
		if m.transcript != nil {
			m.transcript.LogIn(msg)
		}

		key := sessions.Key(msg.Connector, msg.TargetID)
		m.router.Enqueue(ctx, key, m.turnFor(msg))
	}
}

// outboundPump splits and delivers replies through their connector.
func (m *Manager) outboundPump(ctx context.Context) {
	for {
		msg, ok := m.bus.SubscribeOutbound(ctx)
		if !ok {
			return
		}
		m.deliver(ctx, msg)
	}
}

// deliverReply feeds completed session turns back through the bus.
func (m *Manager) deliverReply(sessionKey, reply string, err error) {
	connectorID, targetID := sessions.SplitKey(sessionKey)
	if err != nil {
		slog.Error("turn failed", "session", sessionKey, "error", err)
		reply = "Something went wrong processing that message."
	}
	if reply == "" {
		return
	}
	m.bus.PublishOutbound(bus.OutboundMessage{Connector: connectorID, TargetID: targetID, Content: reply})
}

func (m *Manager) deliver(ctx context.Context, msg bus.OutboundMessage) {
	c, ok := m.Get(msg.Connector)
	if !ok {
		slog.Warn("outbound message for unknown connector", "connector", msg.Connector)
		return
	}
	if m.transcript != nil {
		m.transcript.LogOut(msg)
	}
	for _, chunk := range Split(msg.Content, protocol.MaxChunkFor(msg.Connector)) {
		if chunk == "" {
			continue
		}
		out := msg
		out.Content = chunk
		if err := c.Send(ctx, out); err != nil {
			slog.Error("send failed", "connector", msg.Connector, "target", msg.TargetID, "error", err)
			return
		}
	}
}

func (m *Manager) authorized(msg bus.InboundMessage) bool {
	// CLI input is always trusted; platform targets must be whitelisted
	// by the connector's own config.
	if msg.Connector == "cli" {
		return true
	}
	c, ok := m.Get(msg.Connector)
	if !ok {
		return false
	}
	snap := c.Snapshot()
	for _, t := range snap.AuthorizedTargets {
		if t == msg.TargetID {
			return true
		}
	}
	return false
}

// Configure applies settings to a connector at runtime. Implements the
// executor surface behind telegram-config / discord-config.
func (m *Manager) Configure(connector string, settings map[string]string) error {
	c, ok := m.Get(connector)
	if !ok {
		return fmt.Errorf("unknown connector %q", connector)
	}
	return c.Configure(settings)
}

// Snapshots returns the status of every registered connector.
func (m *Manager) Snapshots() []Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Snapshot, 0, len(m.connectors))
	for _, c := range m.connectors {
		out = append(out, c.Snapshot())
	}
	return out
}

// shutdown stops connectors and releases only the locks this process
// acquired.
func (m *Manager) shutdown() {
	m.router.Wait()
	m.mu.Lock()
	started := m.started
	m.started = nil
	m.mu.Unlock()

	for _, id := range started {
		if c, ok := m.Get(id); ok {
			if err := c.Stop(); err != nil {
				slog.Warn("connector stop failed", "connector", id, "error", err)
			}
			m.bus.Broadcast(bus.Event{Name: protocol.EventConnectorDisconnected,
				Payload: bus.ConnectorPayload{Connector: id}})
		}
		if err := m.locks.Release(id); err != nil {
			slog.Warn("lock release failed", "connector", id, "error", err)
		}
	}
}
