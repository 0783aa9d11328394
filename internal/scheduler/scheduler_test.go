package scheduler

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func tasksFile(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "tasks.json")
}

func TestAdd_RejectsBadCron(t *testing.T) {
	s := New(tasksFile(t), nil, nil)
	if _, err := s.Add("not a cron", "bad", "echo hi", false); err == nil {
		t.Fatalf("invalid cron accepted")
	}
}

func TestAdd_PersistsAndLists(t *testing.T) {
	file := tasksFile(t)
	s := New(file, nil, nil)

	id, err := s.Add("0 9 * * *", "standup", "echo standup", false)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := s.Add("*/5 * * * *", "check", "summarize inbox", true); err != nil {
		t.Fatalf("Add: %v", err)
	}

	tasks := s.List()
	if len(tasks) != 2 {
		t.Fatalf("List = %d tasks, want 2", len(tasks))
	}
	// Sorted by name: check before standup.
	if tasks[0].Name != "check" || tasks[0].BodyKind != BodyPrompt {
		t.Errorf("tasks[0] = %+v", tasks[0])
	}
	if tasks[1].ID != id || tasks[1].BodyKind != BodyShell || !tasks[1].Enabled {
		t.Errorf("tasks[1] = %+v", tasks[1])
	}

	// A fresh scheduler sees the persisted set.
	reloaded := New(file, nil, nil)
	if got := len(reloaded.List()); got != 2 {
		t.Errorf("reloaded List = %d tasks, want 2", got)
	}
}

func TestLoad_CorruptFileStartsEmpty(t *testing.T) {
	file := tasksFile(t)
	os.WriteFile(file, []byte("{{{"), 0o644)
	s := New(file, nil, nil)
	if got := len(s.List()); got != 0 {
		t.Errorf("List = %d tasks, want 0", got)
	}
}

func TestRemove_And_SetEnabled(t *testing.T) {
	s := New(tasksFile(t), nil, nil)
	id, _ := s.Add("0 * * * *", "hourly", "echo tick", false)

	if !s.SetEnabled(id, false) {
		t.Fatalf("SetEnabled returned false")
	}
	if s.List()[0].Enabled {
		t.Errorf("task still enabled")
	}
	if !s.Remove(id) {
		t.Fatalf("Remove returned false")
	}
	if s.Remove(id) {
		t.Errorf("Remove of missing task returned true")
	}
}

func TestFireDue_RoutesByBodyKind(t *testing.T) {
	shellRan := make(chan Task, 1)
	promptRan := make(chan Task, 1)
	s := New(tasksFile(t),
		func(ctx context.Context, task Task) { shellRan <- task },
		func(ctx context.Context, task Task) { promptRan <- task },
	)
	s.Add("* * * * *", "sh", "echo hi", false)
	s.Add("* * * * *", "pr", "do the thing", true)

	s.fireDue(context.Background())

	select {
	case task := <-shellRan:
		if task.Body != "echo hi" {
			t.Errorf("shell body = %q", task.Body)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("shell task never ran")
	}
	select {
	case task := <-promptRan:
		if task.Body != "do the thing" {
			t.Errorf("prompt body = %q", task.Body)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("prompt task never ran")
	}
}

func TestFireDue_SkipsDisabled(t *testing.T) {
	ran := make(chan Task, 1)
	s := New(tasksFile(t), func(ctx context.Context, task Task) { ran <- task }, nil)
	id, _ := s.Add("* * * * *", "off", "echo no", false)
	s.SetEnabled(id, false)

	s.fireDue(context.Background())

	select {
	case <-ran:
		t.Fatalf("disabled task ran")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestFireDue_CoalescesOverlappingRuns(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 2)
	s := New(tasksFile(t), func(ctx context.Context, task Task) {
		started <- struct{}{}
		<-release
	}, nil)
	id, _ := s.Add("* * * * *", "slow", "sleep", false)

	s.fireDue(context.Background())
	<-started

	// Second tick while the first run is in flight: dropped.
	s.fireDue(context.Background())
	select {
	case <-started:
		t.Fatalf("overlapping run started")
	case <-time.After(100 * time.Millisecond):
	}
	if s.List()[0].LastRunAt != nil {
		t.Errorf("dropped tick moved LastRunAt")
	}
	if !s.Inflight(id) {
		t.Errorf("task not reported in flight")
	}

	close(release)
	deadline := time.After(2 * time.Second)
	for s.Inflight(id) {
		select {
		case <-deadline:
			t.Fatalf("run never finished")
		case <-time.After(10 * time.Millisecond):
		}
	}
	if s.List()[0].LastRunAt == nil {
		t.Errorf("completed run did not set LastRunAt")
	}
}

func TestPersist_WritesValidJSON(t *testing.T) {
	file := tasksFile(t)
	s := New(file, nil, nil)
	s.Add("0 0 * * 0", "weekly", "echo weekly", false)

	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatalf("tasks file not written: %v", err)
	}
	var tasks []Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		t.Fatalf("tasks file not valid JSON: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Cron != "0 0 * * 0" {
		t.Errorf("persisted tasks = %+v", tasks)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	s := New(tasksFile(t), nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not stop on cancel")
	}
}
