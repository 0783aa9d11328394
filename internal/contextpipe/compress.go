package contextpipe

import "github.com/slashbot/slashbot/internal/providers"

// Compress bounds a conversation history to the system message plus the
// most recent max entries. Deterministic and idempotent; no summarisation.
// Message 0 is never evicted.
func Compress(history []providers.Message, max int) []providers.Message {
	if max <= 0 || len(history) <= 1 {
		return history
	}
	rest := history[1:]
	if len(rest) <= max {
		return history
	}
	out := make([]providers.Message, 0, max+1)
	out = append(out, history[0])
	out = append(out, rest[len(rest)-max:]...)
	return out
}
