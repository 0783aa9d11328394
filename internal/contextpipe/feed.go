package contextpipe

import "strings"

// Feed suffixes; directive framing is part of the engine contract.
const (
	FeedContinue = "Continue with the next step."
	FeedFixError = "Fix the error and continue."
)

// FeedBuilder assembles the context-feed user message appended after a
// round of action execution: one "[✓|✗] summary\noutput" block per action,
// blank-line separated, closed with a directive suffix.
type FeedBuilder struct {
	blocks []string
	failed bool
}

// Add records one executed action's outcome. output is the already
// truncated LLM-facing text.
func (f *FeedBuilder) Add(summary string, ok bool, output string) {
	mark := "✓"
	if !ok {
		mark = "✗"
		f.failed = true
	}
	block := "[" + mark + "] " + summary
	if output != "" {
		block += "\n" + output
	}
	f.blocks = append(f.blocks, block)
}

// Empty reports whether no actions were recorded.
func (f *FeedBuilder) Empty() bool { return len(f.blocks) == 0 }

// String renders the feed message.
func (f *FeedBuilder) String() string {
	suffix := FeedContinue
	if f.failed {
		suffix = FeedFixError
	}
	return strings.Join(f.blocks, "\n\n") + "\n\n" + suffix
}
