// Package buffers holds process-scoped staging for large pasted text and
// attached images. Entries get monotonic integer ids and are consumed
// destructively when the turn engine expands the user input.
package buffers

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// PasteBuffer stages pasted text behind short placeholders so the input
// line stays readable. Placeholder forms accepted on expansion:
//
//	[pasted:<id>:<desc>]
//	[pasted content N lines]
type PasteBuffer struct {
	mu      sync.Mutex
	next    int
	entries map[int]string
}

func NewPasteBuffer() *PasteBuffer {
	return &PasteBuffer{next: 1, entries: map[int]string{}}
}

// Put stores content and returns its placeholder.
func (p *PasteBuffer) Put(content string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.next
	p.next++
	p.entries[id] = content
	lines := strings.Count(content, "\n") + 1
	return fmt.Sprintf("[pasted:%d:%d lines]", id, lines)
}

// Take removes and returns the entry for id.
func (p *PasteBuffer) Take(id int) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	content, ok := p.entries[id]
	if ok {
		delete(p.entries, id)
	}
	return content, ok
}

// Len reports how many entries are staged.
func (p *PasteBuffer) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

var pastePlaceholder = regexp.MustCompile(`\[pasted:(\d+):[^\]]*\]|\[pasted content \d+ lines\]`)

// Expand replaces every paste placeholder in input with its stored
// content, consuming the entries. The legacy "[pasted content N lines]"
// form has no id and expands the oldest remaining entry.
func (p *PasteBuffer) Expand(input string) string {
	return pastePlaceholder.ReplaceAllStringFunc(input, func(m string) string {
		var id int
		if _, err := fmt.Sscanf(m, "[pasted:%d:", &id); err != nil {
			id = p.oldestID()
		}
		if content, ok := p.Take(id); ok {
			return content
		}
		return m
	})
}

func (p *PasteBuffer) oldestID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	oldest := 0
	for id := range p.entries {
		if oldest == 0 || id < oldest {
			oldest = id
		}
	}
	return oldest
}
