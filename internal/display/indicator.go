package display

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/slashbot/slashbot/internal/connectors"
)

// RenderStatus formats connector snapshots as an aligned status block
// for /help and the status indicator. Widths are rune-aware so CJK
// targets do not break the columns.
func RenderStatus(snapshots []connectors.Snapshot) string {
	if len(snapshots) == 0 {
		return "no connectors configured"
	}

	nameWidth := 0
	for _, s := range snapshots {
		if w := runewidth.StringWidth(s.ID); w > nameWidth {
			nameWidth = w
		}
	}

	var b strings.Builder
	for i, s := range snapshots {
		if i > 0 {
			b.WriteByte('\n')
		}
		state := "stopped"
		if s.Running {
			state = "running"
		}
		b.WriteString(pad(s.ID, nameWidth))
		fmt.Fprintf(&b, "  %s", pad(state, 7))
		if s.PrimaryTarget != "" {
			fmt.Fprintf(&b, "  primary=%s", s.PrimaryTarget)
		}
		if s.ActiveTarget != "" && s.ActiveTarget != s.PrimaryTarget {
			fmt.Fprintf(&b, "  active=%s", s.ActiveTarget)
		}
		if s.Running && s.Latency > 0 {
			fmt.Fprintf(&b, "  %dms", s.Latency.Milliseconds())
		}
		if s.LastError != "" {
			fmt.Fprintf(&b, "  error=%s", s.LastError)
		}
	}
	return b.String()
}

// pad right-pads s to the given display width.
func pad(s string, width int) string {
	gap := width - runewidth.StringWidth(s)
	if gap <= 0 {
		return s
	}
	return s + strings.Repeat(" ", gap)
}
