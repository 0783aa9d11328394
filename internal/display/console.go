// Package display renders agent output on the terminal: streamed text,
// action results, approval prompts, and the connector status line.
package display

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// Console is the terminal implementation of the agent's display port.
// Output from non-default tabs carries a [tab] prefix so interleaved
// agents stay readable.
type Console struct {
	mu  sync.Mutex
	out io.Writer

	// streaming holds the tab currently mid-stream so prefixes are only
	// printed at line starts.
	streaming string
	atLineEnd bool
}

func NewConsole() *Console {
	return &Console{out: os.Stdout, atLineEnd: true}
}

// NewConsoleTo writes to w instead of stdout.
func NewConsoleTo(w io.Writer) *Console {
	return &Console{out: w, atLineEnd: true}
}

// StreamText prints a streamed delta as it arrives.
func (c *Console) StreamText(tab, delta string) {
	if delta == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.streaming != tab && !c.atLineEnd {
		fmt.Fprintln(c.out)
		c.atLineEnd = true
	}
	c.streaming = tab

	if c.atLineEnd && tab != "" && tab != "main" {
		fmt.Fprintf(c.out, "[%s] ", tab)
	}
	fmt.Fprint(c.out, delta)
	c.atLineEnd = strings.HasSuffix(delta, "\n")
}

// ShowResult prints an action's user-facing output on its own lines.
func (c *Console) ShowResult(tab, text string) {
	if text == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.atLineEnd {
		fmt.Fprintln(c.out)
	}
	prefix := ""
	if tab != "" && tab != "main" {
		prefix = "[" + tab + "] "
	}
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		fmt.Fprintf(c.out, "%s%s\n", prefix, line)
	}
	c.atLineEnd = true
}

// Println writes a runtime message outside any stream.
func (c *Console) Println(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.atLineEnd {
		fmt.Fprintln(c.out)
	}
	fmt.Fprintln(c.out, text)
	c.atLineEnd = true
}
