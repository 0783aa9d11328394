package actions

import "strings"

// StreamScrubber filters assistant text deltas so action tags never reach
// the display mid-stream. Prose passes through as it arrives; once a known
// tag opens, its text is withheld until the tag closes and is then dropped
// entirely. Tags inside backtick fences are documentation and pass through.
type StreamScrubber struct {
	pending string
	inFence bool
}

// Feed consumes one streamed delta and returns the displayable portion.
func (s *StreamScrubber) Feed(delta string) string {
	s.pending += delta
	var out strings.Builder

	for s.pending != "" {
		if s.inFence {
			idx := strings.Index(s.pending, "```")
			if idx < 0 {
				s.emitAllButPartialFence(&out)
				break
			}
			out.WriteString(s.pending[:idx+3])
			s.pending = s.pending[idx+3:]
			s.inFence = false
			continue
		}

		lt := strings.IndexByte(s.pending, '<')
		fence := strings.Index(s.pending, "```")
		if fence >= 0 && (lt < 0 || fence < lt) {
			out.WriteString(s.pending[:fence+3])
			s.pending = s.pending[fence+3:]
			s.inFence = true
			continue
		}
		if lt < 0 {
			s.emitAllButPartialFence(&out)
			break
		}

		out.WriteString(s.pending[:lt])
		s.pending = s.pending[lt:]

		state, end := classifyTag(s.pending, 0)
		switch state {
		case tagNotAction:
			out.WriteByte('<')
			s.pending = s.pending[1:]
		case tagComplete:
			// Scrubbed: the action never reaches the display.
			s.pending = s.pending[end:]
		case tagIncomplete:
			// Withhold until more input arrives.
			return out.String()
		}
	}
	return out.String()
}

// emitAllButPartialFence emits pending text, holding back a trailing run of
// one or two backticks that might grow into a fence marker.
func (s *StreamScrubber) emitAllButPartialFence(out *strings.Builder) {
	n := trailingBackticks(s.pending)
	if n >= 3 {
		n = 0
	}
	cut := len(s.pending) - n
	out.WriteString(s.pending[:cut])
	s.pending = s.pending[cut:]
}

// Flush returns any withheld text at stream end. An unterminated tag at
// end of stream is returned as-is so nothing is silently lost.
func (s *StreamScrubber) Flush() string {
	rest := s.pending
	s.pending = ""
	s.inFence = false
	return rest
}

type tagState int

const (
	tagNotAction tagState = iota
	tagComplete
	tagIncomplete
)

// classifyTag inspects text[at] == '<' and decides whether a known action
// tag starts there, and if so whether it is fully present. end is the index
// just past the complete tag.
func classifyTag(text string, at int) (tagState, int) {
	i := at + 1
	start := i
	for i < len(text) && isNameChar(text[i]) {
		i++
	}
	name := strings.ReplaceAll(text[start:i], "_", "-")

	if i >= len(text) {
		// Truncated at buffer end: hold when it could still become a tag.
		if i == start || couldBeKnownTag(name) {
			return tagIncomplete, 0
		}
		return tagNotAction, 0
	}
	if i == start || !IsKnownTag(name) {
		return tagNotAction, 0
	}

	openEnd := scanOpenTagEnd(text, i)
	if openEnd < 0 {
		return tagIncomplete, 0
	}
	if text[openEnd-1] == '/' {
		return tagComplete, openEnd + 1
	}
	rawName := text[start : start+len(name)]
	closeTag := "</" + rawName + ">"
	rel := strings.Index(text[openEnd:], closeTag)
	if rel < 0 {
		return tagIncomplete, 0
	}
	return tagComplete, openEnd + rel + len(closeTag)
}

// scanOpenTagEnd finds the '>' that closes the open tag starting at
// text[from:], skipping any '>' inside a double-quoted attribute value.
// Returns -1 when the open tag is still incomplete.
func scanOpenTagEnd(text string, from int) int {
	inQuote := false
	for i := from; i < len(text); i++ {
		switch c := text[i]; {
		case inQuote && c == '\\':
			i++ // escaped byte never closes the quote
		case c == '"':
			inQuote = !inQuote
		case !inQuote && c == '>':
			return i
		}
	}
	return -1
}

// HoldsActionPrefix reports whether text contains the start of an action
// tag, complete or truncated. The turn engine uses it to tell a flushed
// stream tail that is prose with a bare '<' from one holding a withheld
// action.
func HoldsActionPrefix(text string) bool {
	for i := 0; i < len(text); i++ {
		if text[i] != '<' {
			continue
		}
		if state, _ := classifyTag(text, i); state != tagNotAction {
			return true
		}
	}
	return false
}

// couldBeKnownTag reports whether name is a prefix of any known tag.
func couldBeKnownTag(name string) bool {
	for tag := range knownTags {
		if strings.HasPrefix(tag, name) {
			return true
		}
	}
	return false
}

func trailingBackticks(s string) int {
	n := 0
	for i := len(s) - 1; i >= 0 && s[i] == '`'; i-- {
		n++
	}
	return n
}
