package agent

import (
	"fmt"
	"strings"
	"sync"

	"github.com/slashbot/slashbot/internal/contextpipe"
	"github.com/slashbot/slashbot/internal/providers"
)

// History is one agent's conversation. Index 0 is always the system
// message; appended messages are immutable. Mutation happens only from
// the owning turn; other readers take snapshots.
type History struct {
	mu       sync.RWMutex
	messages []providers.Message
	max      int
}

func NewHistory(systemPrompt string, maxContextMessages int) *History {
	if maxContextMessages <= 0 {
		maxContextMessages = defaultMaxContextMessages
	}
	return &History{
		messages: []providers.Message{{Role: "system", Content: systemPrompt}},
		max:      maxContextMessages,
	}
}

// RebuildSystem replaces message 0. Called when project context,
// personality, or work directory changes.
func (h *History) RebuildSystem(systemPrompt string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages[0] = providers.Message{Role: "system", Content: systemPrompt}
}

// Append adds messages and compresses to the configured bound.
func (h *History) Append(msgs ...providers.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, msgs...)
	h.messages = contextpipe.Compress(h.messages, h.max)
}

// Snapshot returns a copy safe to extend without affecting the history.
func (h *History) Snapshot() []providers.Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]providers.Message, len(h.messages))
	copy(out, h.messages)
	return out
}

// Len returns the message count including the system message.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.messages)
}

// Clear drops everything but the system message.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = h.messages[:1]
}

// hasImages reports whether any message carries an image reference, which
// forces the next call onto a vision-capable model.
func hasImages(msgs []providers.Message) bool {
	for _, m := range msgs {
		if m.HasImages() {
			return true
		}
	}
	return false
}

// occupancy estimates current context usage in characters.
func occupancy(msgs []providers.Message) int {
	total := 0
	for _, m := range msgs {
		total += len(m.Content)
	}
	return total
}

// BuildSystemPrompt renders an agent's system message: identity,
// workspace, personality, and the action tag reference.
func BuildSystemPrompt(p *Profile, projectContext string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, an autonomous coding and operations agent.\n", p.Name)
	if p.WorkDir != "" {
		fmt.Fprintf(&b, "Working directory: %s\n", p.WorkDir)
	}
	if p.Personality != "" {
		b.WriteString("\n" + strings.TrimSpace(p.Personality) + "\n")
	}
	if p.Lane == "orchestrator" {
		b.WriteString("\nYou are an orchestrator: never implement directly; only delegate with <agent-send> and verify results.\n")
	}
	b.WriteString(actionReference)
	if projectContext != "" {
		b.WriteString("\n## Project context\n\n" + strings.TrimSpace(projectContext) + "\n")
	}
	return b.String()
}

// actionReference documents the tag protocol for the model. Tags shown in
// fenced examples here are never executed by the parser.
const actionReference = `
## Actions

Act by emitting action tags directly in your reply, outside any code fence:

    <read path="file.go" offset="0" limit="200"/>
    <write path="file.go">full content</write>
    <edit path="file.go"><search>exact old text</search><replace>new text</replace></edit>
    <multi-edit path="file.go"><edit><search>a</search><replace>b</replace></edit></multi-edit>
    <bash>shell command</bash>  (attributes: timeoutMs, background)
    <grep pattern="regexp" include="*.go"/>  <glob pattern="**/*.go"/>  <ls path="dir"/>
    <git>status</git>  <fetch url="https://..."/>  <search query="..."/>
    <format/>  <typecheck/>
    <schedule cron="*/5 * * * *" name="job">body</schedule>
    <notify to="connector:target">text</notify>  <say-message to="connector:target">text</say-message>
    <agent-send to="agentId" title="task">task body</agent-send>
    <skill name="x"/>  <skill-install name="x" url="https://..."/>

Finish a task with <end-task>summary for the user</end-task>.
Results of your actions come back in the next user message. Never wrap
action tags in triple backticks unless you mean them as documentation.
`
