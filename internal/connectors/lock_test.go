package connectors

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAcquire_ReleaseCycle(t *testing.T) {
	m := NewLockManager(t.TempDir())

	res, err := m.Acquire("telegram")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if !res.Acquired {
		t.Fatalf("first Acquire not granted")
	}

	locked, info := m.IsLocked("telegram")
	if !locked || info.PID != os.Getpid() {
		t.Errorf("IsLocked = %v, pid %d", locked, info.PID)
	}

	if err := m.Release("telegram"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if locked, _ := m.IsLocked("telegram"); locked {
		t.Errorf("still locked after Release")
	}
}

func TestAcquire_LiveOwnerBlocks(t *testing.T) {
	dir := t.TempDir()
	m := NewLockManager(dir)

	// Simulate another live process: pid 1 is always alive.
	other := LockInfo{PID: 1, StartedAt: time.Now(), WorkDir: "/somewhere"}
	data, _ := json.Marshal(other)
	os.WriteFile(filepath.Join(dir, "telegram.lock"), data, 0o644)

	res, err := m.Acquire("telegram")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if res.Acquired {
		t.Fatalf("acquired a lock held by a live process")
	}
	if res.ExistingPID != 1 || res.ExistingWorkDir != "/somewhere" {
		t.Errorf("existing owner = %d %q", res.ExistingPID, res.ExistingWorkDir)
	}
}

func TestAcquire_StaleLockReclaimed(t *testing.T) {
	dir := t.TempDir()
	m := NewLockManager(dir)

	// A pid far beyond pid_max cannot be alive.
	stale := LockInfo{PID: 1 << 30, StartedAt: time.Now().Add(-time.Hour), WorkDir: "/old"}
	data, _ := json.Marshal(stale)
	os.WriteFile(filepath.Join(dir, "discord.lock"), data, 0o644)

	res, err := m.Acquire("discord")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if !res.Acquired {
		t.Errorf("stale lock not reclaimed")
	}
}

func TestAcquire_CorruptLockReclaimed(t *testing.T) {
	dir := t.TempDir()
	m := NewLockManager(dir)
	os.WriteFile(filepath.Join(dir, "telegram.lock"), []byte("not json"), 0o644)

	res, err := m.Acquire("telegram")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if !res.Acquired {
		t.Errorf("corrupt lock not reclaimed")
	}
}

func TestRelease_ForeignLockNotStolen(t *testing.T) {
	dir := t.TempDir()
	m := NewLockManager(dir)

	other := LockInfo{PID: 1, StartedAt: time.Now(), WorkDir: "/x"}
	data, _ := json.Marshal(other)
	path := filepath.Join(dir, "telegram.lock")
	os.WriteFile(path, data, 0o644)

	if err := m.Release("telegram"); err == nil {
		t.Errorf("released a foreign lock")
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("foreign lockfile was deleted")
	}
}
