package transcript

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/slashbot/slashbot/internal/bus"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "transcript.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLogAndRecent(t *testing.T) {
	s := openTest(t)

	s.LogIn(bus.InboundMessage{Connector: "telegram", SenderID: "42", TargetID: "chat1", Content: "hello"})
	s.LogOut(bus.OutboundMessage{Connector: "telegram", TargetID: "chat1", Content: "hi there"})
	s.LogIn(bus.InboundMessage{Connector: "discord", SenderID: "7", TargetID: "chan9", Content: "other"})

	entries, err := s.Recent("telegram", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Recent = %d entries, want 2", len(entries))
	}
	// Newest first.
	if entries[0].Direction != "out" || entries[0].Content != "hi there" {
		t.Errorf("entries[0] = %+v", entries[0])
	}
	if entries[1].Direction != "in" || entries[1].Sender != "42" {
		t.Errorf("entries[1] = %+v", entries[1])
	}
}

func TestRecent_LimitAndIsolation(t *testing.T) {
	s := openTest(t)
	for i := 0; i < 5; i++ {
		s.LogIn(bus.InboundMessage{Connector: "cli", SenderID: "me", TargetID: "cli", Content: "msg"})
	}

	entries, err := s.Recent("cli", 3)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("limit not applied: %d entries", len(entries))
	}

	other, err := s.Recent("telegram", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("cross-connector leak: %d entries", len(other))
	}
}

func TestLogAction_RunActions(t *testing.T) {
	s := openTest(t)

	s.LogAction("run-1", "cli:me", "read", true, 12*time.Millisecond)
	s.LogAction("run-1", "cli:me", "edit", false, 3*time.Millisecond)
	s.LogAction("run-2", "cli:me", "bash", true, 40*time.Millisecond)

	entries, err := s.RunActions("run-1")
	if err != nil {
		t.Fatalf("RunActions: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("RunActions = %d entries, want 2", len(entries))
	}
	if entries[0].Tag != "read" || !entries[0].OK || entries[0].Duration != 12*time.Millisecond {
		t.Errorf("entries[0] = %+v", entries[0])
	}
	if entries[1].Tag != "edit" || entries[1].OK {
		t.Errorf("entries[1] = %+v", entries[1])
	}
}

func TestOpen_Reopens(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "t.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s.LogOut(bus.OutboundMessage{Connector: "cli", TargetID: "cli", Content: "persisted"})
	s.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	entries, err := s2.Recent("cli", 1)
	if err != nil || len(entries) != 1 || entries[0].Content != "persisted" {
		t.Errorf("entries = %+v, err = %v", entries, err)
	}
}
