package connectors

import "strings"

// Split cuts text into chunks no longer than max runes for platforms with
// message length limits. Within each window it prefers the last line
// break, then the last word boundary, then a hard cut. Continuation
// chunks are left-trimmed so no piece starts with whitespace.
// max <= 0 means unbounded.
func Split(text string, max int) []string {
	if max <= 0 || len([]rune(text)) <= max {
		return []string{text}
	}

	var chunks []string
	runes := []rune(text)
	for len(runes) > 0 {
		if len(runes) <= max {
			chunks = append(chunks, string(runes))
			break
		}
		window := runes[:max]
		cut := lastBoundary(window)
		chunks = append(chunks, strings.TrimRight(string(runes[:cut]), " \t"))
		rest := string(runes[cut:])
		runes = []rune(strings.TrimLeft(rest, " \t\n"))
	}
	return chunks
}

// lastBoundary picks the cut position inside one full window: the last
// newline if any, else the last space, else the full window.
func lastBoundary(window []rune) int {
	for i := len(window) - 1; i > 0; i-- {
		if window[i] == '\n' {
			return i
		}
	}
	for i := len(window) - 1; i > 0; i-- {
		if window[i] == ' ' || window[i] == '\t' {
			return i
		}
	}
	return len(window)
}
