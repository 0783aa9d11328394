// Package connectors hosts the external chat platform runtimes: the
// cross-process lock manager, message splitting, and the connector
// manager that routes sessions into agent turns.
package connectors

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// LockInfo is the lockfile payload. One file per connector type under the
// locks directory guarantees at most one owning process system-wide.
type LockInfo struct {
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"startedAt"`
	WorkDir   string    `json:"workDir"`
}

// AcquireResult reports a lock attempt. When not acquired, the existing
// owner's coordinates are included for the error message.
type AcquireResult struct {
	Acquired        bool
	ExistingPID     int
	ExistingWorkDir string
}

// LockManager owns the lockfile directory.
type LockManager struct {
	dir string
	pid int
}

func NewLockManager(dir string) *LockManager {
	return &LockManager{dir: dir, pid: os.Getpid()}
}

func (m *LockManager) path(connector string) string {
	return filepath.Join(m.dir, connector+".lock")
}

// Acquire attempts to take the connector lock. A lockfile whose pid is
// alive blocks acquisition; a stale or unparseable lockfile is reclaimed.
func (m *LockManager) Acquire(connector string) (AcquireResult, error) {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return AcquireResult{}, err
	}

	if info, ok := m.read(connector); ok {
		if pidAlive(info.PID) && info.PID != m.pid {
			return AcquireResult{Acquired: false, ExistingPID: info.PID, ExistingWorkDir: info.WorkDir}, nil
		}
		// Stale owner: reclaim.
		slog.Info("reclaiming stale connector lock", "connector", connector, "pid", info.PID)
		os.Remove(m.path(connector))
	}

	wd, _ := os.Getwd()
	data, err := json.Marshal(LockInfo{PID: m.pid, StartedAt: time.Now().UTC(), WorkDir: wd})
	if err != nil {
		return AcquireResult{}, err
	}
	if err := os.WriteFile(m.path(connector), data, 0o644); err != nil {
		return AcquireResult{}, err
	}
	return AcquireResult{Acquired: true}, nil
}

// Release removes the lockfile iff it still belongs to this process.
// Ownership is checked by pid before deletion so a restarted owner never
// steals another process's lock.
func (m *LockManager) Release(connector string) error {
	info, ok := m.read(connector)
	if !ok {
		return nil
	}
	if info.PID != m.pid {
		return fmt.Errorf("lock %s is owned by pid %d, not releasing", connector, info.PID)
	}
	err := os.Remove(m.path(connector))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// IsLocked reports whether a live process holds the connector lock.
func (m *LockManager) IsLocked(connector string) (bool, LockInfo) {
	info, ok := m.read(connector)
	if !ok {
		return false, LockInfo{}
	}
	if !pidAlive(info.PID) {
		return false, info
	}
	return true, info
}

// read parses the lockfile; corrupt files read as absent so they can be
// reclaimed.
func (m *LockManager) read(connector string) (LockInfo, bool) {
	data, err := os.ReadFile(m.path(connector))
	if err != nil {
		return LockInfo{}, false
	}
	var info LockInfo
	if err := json.Unmarshal(data, &info); err != nil || info.PID <= 0 {
		return LockInfo{}, false
	}
	return info, true
}

// pidAlive does a signal-0 liveness probe.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	// EPERM means the process exists but belongs to another user.
	return errors.Is(err, syscall.EPERM)
}
