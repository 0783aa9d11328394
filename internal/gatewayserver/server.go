// Package gatewayserver exposes runtime events to external observers over
// a websocket endpoint, plus plugin-contributed HTTP routes.
package gatewayserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/slashbot/slashbot/internal/bus"
	"github.com/slashbot/slashbot/internal/kernel"
	"github.com/slashbot/slashbot/pkg/protocol"
)

const clientSendDepth = 64

// Config controls the listen address and origin policy.
type Config struct {
	Host           string
	Port           int
	AllowedOrigins []string
}

// Server upgrades /ws connections and fans bus events out to every
// connected observer.
type Server struct {
	cfg      Config
	events   bus.EventPublisher
	k        *kernel.Kernel
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*client

	httpServer *http.Server
	listener   net.Listener
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan bus.Event
	once sync.Once
	done chan struct{}
}

func NewServer(cfg Config, events bus.EventPublisher, k *kernel.Kernel) *Server {
	s := &Server{
		cfg:     cfg,
		events:  events,
		k:       k,
		clients: make(map[string]*client),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// checkOrigin allows everything when no whitelist is configured. Empty
// Origin headers (non-browser clients) always pass.
func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, a := range s.cfg.AllowedOrigins {
		if origin == a || a == "*" {
			return true
		}
	}
	slog.Warn("websocket origin rejected", "origin", origin)
	return false
}

func (s *Server) buildMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	for _, route := range s.k.Routes() {
		mux.HandleFunc(route.Pattern, route.Handler)
	}
	return mux
}

// Start listens until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("gateway listen %s: %w", addr, err)
	}
	s.listener = ln
	s.httpServer = &http.Server{Handler: s.buildMux()}

	slog.Info("gateway server listening", "addr", ln.Addr().String())

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.Serve(ln); err != http.ErrServerClosed {
		return fmt.Errorf("gateway server: %w", err)
	}
	return nil
}

// Addr returns the bound address, valid after Start's Listen succeeds.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan bus.Event, clientSendDepth),
		done: make(chan struct{}),
	}
	s.register(c)
	defer func() {
		s.unregister(c)
		c.close()
	}()

	go c.writePump()

	// Observers only listen; reads just detect disconnect.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"ok","protocol":%d}`, protocol.ProtocolVersion)
}

// handleStatus serves the kernel's indicator snapshots.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.k.Indicators())
}

func (s *Server) register(c *client) {
	s.mu.Lock()
	s.clients[c.id] = c
	s.mu.Unlock()

	s.events.Subscribe(c.id, func(event bus.Event) {
		select {
		case c.send <- event:
		default:
			// Slow observer: drop rather than stall the bus.
		}
	})
	slog.Info("observer connected", "id", c.id)
}

func (s *Server) unregister(c *client) {
	s.events.Unsubscribe(c.id)
	s.mu.Lock()
	delete(s.clients, c.id)
	s.mu.Unlock()
	slog.Info("observer disconnected", "id", c.id)
}

// ClientCount reports connected observers.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func (c *client) writePump() {
	for {
		select {
		case <-c.done:
			return
		case event := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(event); err != nil {
				return
			}
		}
	}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}
