package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/slashbot/slashbot/internal/executors"
)

// TaskOutcome is what a delegated turn reports back to the sender.
type TaskOutcome struct {
	Summary   string
	EndedTask bool
}

// TaskRunner executes one delegated prompt on a named agent.
type TaskRunner func(ctx context.Context, agentName, prompt string) (TaskOutcome, error)

// Mailbox routes agent-send delegations: it wraps the task body in the
// delegation preamble and runs it as a fresh turn on the target agent.
type Mailbox struct {
	profiles *ProfileStore
	run      TaskRunner

	mu       sync.Mutex
	inflight map[string]bool
}

func NewMailbox(profiles *ProfileStore, run TaskRunner) *Mailbox {
	return &Mailbox{
		profiles: profiles,
		run:      run,
		inflight: make(map[string]bool),
	}
}

// Send delegates a task and returns the target's end-task summary. A
// turn that finishes without end-task is an error the executor maps to
// MISSING_END_TASK. Self-delegation and delegation cycles are refused.
func (m *Mailbox) Send(ctx context.Context, from, to, title, body string) (string, error) {
	if from == to {
		return "", fmt.Errorf("agent %s cannot delegate to itself", from)
	}
	target, ok := m.profiles.ByName(to)
	if !ok {
		return "", fmt.Errorf("unknown agent %q", to)
	}

	m.mu.Lock()
	if m.inflight[target.Name] {
		m.mu.Unlock()
		return "", fmt.Errorf("agent %s is already working on a delegated task", to)
	}
	m.inflight[target.Name] = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.inflight, target.Name)
		m.mu.Unlock()
	}()

	outcome, err := m.run(ctx, target.Name, taskPrompt(from, title, body, target.Lane))
	if err != nil {
		return "", err
	}
	if !outcome.EndedTask {
		return "", fmt.Errorf("agent %s: %w", to, executors.ErrNoEndTask)
	}
	return outcome.Summary, nil
}

// taskPrompt wraps a delegated body with the preamble every worker turn
// starts from: who asked, what lane policy applies, and the end-task
// requirement.
func taskPrompt(from, title, body, lane string) string {
	var b strings.Builder
	b.WriteString("[Task from agent ")
	b.WriteString(from)
	if title != "" {
		b.WriteString(": ")
		b.WriteString(title)
	}
	b.WriteString("]\n")

	if lane == "orchestrator" {
		b.WriteString("You coordinate other agents: break the task down and delegate subtasks with agent-send rather than doing everything yourself.\n")
	} else {
		b.WriteString("You are a worker agent: complete this task yourself and do not delegate further.\n")
	}
	b.WriteString("When the task is complete, finish with an end-task action whose body summarises the outcome. That summary is all the sender sees.\n\n")
	b.WriteString(body)
	return b.String()
}
