// Package scheduler runs cron-scheduled tasks: shell bodies through the
// bash executor, prompt bodies as fresh agent turns. One coordination
// loop wakes on the minimum next-fire across all tasks.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/google/uuid"
)

// BodyKind selects how a fired task's body executes.
type BodyKind string

const (
	BodyShell  BodyKind = "shell"
	BodyPrompt BodyKind = "prompt"
)

// Task is one persistent cron entry.
type Task struct {
	ID        string     `json:"id"`
	Cron      string     `json:"cron"`
	Name      string     `json:"name"`
	Body      string     `json:"body"`
	BodyKind  BodyKind   `json:"bodyKind"`
	Enabled   bool       `json:"enabled"`
	LastRunAt *time.Time `json:"lastRunAt,omitempty"`
}

// RunFunc executes a fired task body.
type RunFunc func(ctx context.Context, task Task)

// idleWake bounds how long the loop sleeps with no scheduled work.
const idleWake = time.Minute

// Scheduler owns the task set and the coordination loop. Overlapping
// fires of one task are coalesced: while a run is in flight, extra ticks
// are dropped and LastRunAt is untouched.
type Scheduler struct {
	mu       sync.Mutex
	tasks    map[string]*Task
	inflight map[string]bool

	file      string
	gron      *gronx.Gronx
	wake      chan struct{}
	runShell  RunFunc
	runPrompt RunFunc
	// now is swappable for tests.
	now func() time.Time
}

// New loads persisted tasks from file. A missing or corrupt file starts
// empty; tasks.json is best-effort state, not a source of truth worth
// crashing over.
func New(file string, runShell, runPrompt RunFunc) *Scheduler {
	s := &Scheduler{
		tasks:     map[string]*Task{},
		inflight:  map[string]bool{},
		file:      file,
		gron:      gronx.New(),
		wake:      make(chan struct{}, 1),
		runShell:  runShell,
		runPrompt: runPrompt,
		now:       time.Now,
	}
	s.load()
	return s
}

// Add registers a task and persists. Implements the schedule executor's
// scheduler surface.
func (s *Scheduler) Add(cron, name, body string, prompt bool) (string, error) {
	if !s.gron.IsValid(cron) {
		return "", fmt.Errorf("invalid cron expression %q", cron)
	}
	kind := BodyShell
	if prompt {
		kind = BodyPrompt
	}
	task := &Task{
		ID:       uuid.NewString(),
		Cron:     cron,
		Name:     name,
		Body:     body,
		BodyKind: kind,
		Enabled:  true,
	}
	s.mu.Lock()
	s.tasks[task.ID] = task
	s.mu.Unlock()
	s.persist()
	s.kick()
	return task.ID, nil
}

// Remove deletes a task and persists.
func (s *Scheduler) Remove(id string) bool {
	s.mu.Lock()
	_, ok := s.tasks[id]
	delete(s.tasks, id)
	s.mu.Unlock()
	if ok {
		s.persist()
		s.kick()
	}
	return ok
}

// SetEnabled toggles a task and persists.
func (s *Scheduler) SetEnabled(id string, enabled bool) bool {
	s.mu.Lock()
	task, ok := s.tasks[id]
	if ok {
		task.Enabled = enabled
	}
	s.mu.Unlock()
	if ok {
		s.persist()
		s.kick()
	}
	return ok
}

// List returns tasks ordered by name.
func (s *Scheduler) List() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Run is the coordination loop. It blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		next := s.nextWake()
		timer := time.NewTimer(next)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.wake:
			timer.Stop()
		case <-timer.C:
			s.fireDue(ctx)
		}
	}
}

// nextWake computes the sleep until the earliest enabled next-fire.
func (s *Scheduler) nextWake() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	min := time.Duration(-1)
	for _, t := range s.tasks {
		if !t.Enabled {
			continue
		}
		tick, err := gronx.NextTickAfter(t.Cron, now, false)
		if err != nil {
			continue
		}
		d := tick.Sub(now)
		if min < 0 || d < min {
			min = d
		}
	}
	if min < 0 || min > idleWake {
		return idleWake
	}
	if min < time.Second {
		min = time.Second
	}
	return min
}

// fireDue starts every due task that is not already in flight.
func (s *Scheduler) fireDue(ctx context.Context) {
	s.mu.Lock()
	due := make([]*Task, 0)
	for _, t := range s.tasks {
		if !t.Enabled {
			continue
		}
		ok, err := s.gron.IsDue(t.Cron, s.now())
		if err != nil || !ok {
			continue
		}
		if s.inflight[t.ID] {
			// Coalesced: the dropped tick leaves LastRunAt unchanged.
			slog.Debug("schedule tick dropped, run in flight", "task", t.Name)
			continue
		}
		s.inflight[t.ID] = true
		due = append(due, t)
	}
	s.mu.Unlock()

	for _, t := range due {
		go s.runOne(ctx, *t)
	}
}

func (s *Scheduler) runOne(ctx context.Context, task Task) {
	slog.Info("schedule fired", "task", task.Name, "kind", task.BodyKind)
	switch task.BodyKind {
	case BodyPrompt:
		if s.runPrompt != nil {
			s.runPrompt(ctx, task)
		}
	default:
		if s.runShell != nil {
			s.runShell(ctx, task)
		}
	}

	now := s.now().UTC()
	s.mu.Lock()
	delete(s.inflight, task.ID)
	if t, ok := s.tasks[task.ID]; ok {
		t.LastRunAt = &now
	}
	s.mu.Unlock()
	s.persist()
}

// Inflight reports whether a task currently runs. Exposed for coalescing
// checks from the task CLI.
func (s *Scheduler) Inflight(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight[id]
}

func (s *Scheduler) kick() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) load() {
	data, err := os.ReadFile(s.file)
	if err != nil {
		return
	}
	var tasks []*Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		slog.Warn("tasks file corrupt, starting empty", "file", s.file, "error", err)
		return
	}
	for _, t := range tasks {
		if t.ID != "" {
			s.tasks[t.ID] = t
		}
	}
}

// persist writes tasks.json atomically. A write failure logs and moves
// on; the scheduler keeps running from memory.
func (s *Scheduler) persist() {
	s.mu.Lock()
	tasks := make([]*Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, t)
	}
	s.mu.Unlock()
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Name < tasks[j].Name })

	data, err := json.MarshalIndent(tasks, "", "  ")
	if err != nil {
		slog.Warn("tasks marshal failed", "error", err)
		return
	}
	tmp := s.file + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		slog.Warn("tasks persist failed", "file", s.file, "error", err)
		return
	}
	if err := os.Rename(tmp, s.file); err != nil {
		slog.Warn("tasks persist failed", "file", s.file, "error", err)
	}
}
