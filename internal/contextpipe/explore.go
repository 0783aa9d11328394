package contextpipe

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// DefaultExploreDelay is the minimum inter-frame delay when draining
// queued explore events into the UI.
const DefaultExploreDelay = 80 * time.Millisecond

// ExploreAggregator collects grep/glob/ls/read output per agent tab so the
// UI can render one live, updating Explore block instead of a burst of
// separate panels. Events queue up and are drained at a minimum inter-frame
// delay; the preview shows the most recent lines with older ones collapsed
// into a "+K older updates" header.
type ExploreAggregator struct {
	mu    sync.Mutex
	tabs  map[string]*exploreTab
	Delay time.Duration
}

type exploreTab struct {
	lines   []string // drained, display-ready
	queue   [][]string
	lastFed time.Time
}

func NewExploreAggregator() *ExploreAggregator {
	return &ExploreAggregator{tabs: map[string]*exploreTab{}, Delay: DefaultExploreDelay}
}

// Clear drops all explore state for a tab. Called on each new user turn.
func (e *ExploreAggregator) Clear(tab string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.tabs, tab)
}

// Push enqueues one event's output lines for a tab.
func (e *ExploreAggregator) Push(tab, output string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t := e.tabs[tab]
	if t == nil {
		t = &exploreTab{}
		e.tabs[tab] = t
	}
	t.queue = append(t.queue, strings.Split(strings.TrimRight(output, "\n"), "\n"))
}

// Drain moves at most one queued event into the visible lines, honouring
// the inter-frame delay. It returns true when a frame was consumed so the
// caller knows to redraw.
func (e *ExploreAggregator) Drain(tab string, now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	t := e.tabs[tab]
	if t == nil || len(t.queue) == 0 {
		return false
	}
	if !t.lastFed.IsZero() && now.Sub(t.lastFed) < e.Delay {
		return false
	}
	t.lines = append(t.lines, t.queue[0]...)
	t.queue = t.queue[1:]
	t.lastFed = now
	return true
}

// Pending returns the queued event count for a tab.
func (e *ExploreAggregator) Pending(tab string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if t := e.tabs[tab]; t != nil {
		return len(t.queue)
	}
	return 0
}

// Preview renders the most recent max lines for a tab, prefixed with a
// "+K older updates" header when lines were collapsed.
func (e *ExploreAggregator) Preview(tab string, max int) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	t := e.tabs[tab]
	if t == nil || len(t.lines) == 0 {
		return ""
	}
	lines := t.lines
	var header string
	if len(lines) > max {
		header = fmt.Sprintf("+%d older updates\n", len(lines)-max)
		lines = lines[len(lines)-max:]
	}
	return header + strings.Join(lines, "\n")
}
