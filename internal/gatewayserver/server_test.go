package gatewayserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/slashbot/slashbot/internal/bus"
	"github.com/slashbot/slashbot/internal/kernel"
	"github.com/slashbot/slashbot/pkg/protocol"
)

func startTestServer(t *testing.T) (*Server, context.CancelFunc) {
	t.Helper()
	s := NewServer(Config{Host: "127.0.0.1", Port: 0}, bus.New(), kernel.New())
	ctx, cancel := context.WithCancel(context.Background())
	go s.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for s.Addr() == "" {
		if time.Now().After(deadline) {
			cancel()
			t.Fatalf("server never bound")
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Cleanup(cancel)
	return s, cancel
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := startTestServer(t)

	resp, err := http.Get(fmt.Sprintf("http://%s/health", s.Addr()))
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	var health struct {
		Status   string `json:"status"`
		Protocol int    `json:"protocol"`
	}
	if err := json.Unmarshal(body, &health); err != nil {
		t.Fatalf("health body %q: %v", body, err)
	}
	if health.Status != "ok" || health.Protocol != protocol.ProtocolVersion {
		t.Errorf("health = %+v", health)
	}
}

func TestWebSocket_ReceivesBroadcastEvents(t *testing.T) {
	msgBus := bus.New()
	s := NewServer(Config{Host: "127.0.0.1", Port: 0}, msgBus, kernel.New())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Start(ctx)
	deadline := time.Now().Add(2 * time.Second)
	for s.Addr() == "" {
		if time.Now().After(deadline) {
			t.Fatalf("server never bound")
		}
		time.Sleep(5 * time.Millisecond)
	}

	conn, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("ws://%s/ws", s.Addr()), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// The subscription registers during the upgrade handler; give it a beat.
	waitClients := time.Now().Add(2 * time.Second)
	for s.ClientCount() == 0 {
		if time.Now().After(waitClients) {
			t.Fatalf("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	msgBus.Broadcast(bus.Event{
		Name:    protocol.EventTurnCompleted,
		Payload: map[string]interface{}{"agent": "main"},
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event bus.Event
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if event.Name != protocol.EventTurnCompleted {
		t.Errorf("event = %+v", event)
	}
}

func TestStatus_ServesIndicators(t *testing.T) {
	k := kernel.New()
	k.RegisterIndicator(kernel.Indicator{
		ID:       "connectors",
		PluginID: "test",
		Snapshot: func() map[string]interface{} {
			return map[string]interface{}{"telegram": "running"}
		},
	})
	s := NewServer(Config{Host: "127.0.0.1", Port: 0}, bus.New(), k)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Start(ctx)
	deadline := time.Now().Add(2 * time.Second)
	for s.Addr() == "" {
		if time.Now().After(deadline) {
			t.Fatalf("server never bound")
		}
		time.Sleep(5 * time.Millisecond)
	}

	resp, err := http.Get(fmt.Sprintf("http://%s/status", s.Addr()))
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	defer resp.Body.Close()

	var status map[string]map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status["connectors"]["telegram"] != "running" {
		t.Errorf("status = %v", status)
	}
}
