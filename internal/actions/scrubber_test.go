package actions

import (
	"strings"
	"testing"
)

// feedAll streams text through the scrubber in chunks of n bytes and
// returns everything the display would have shown.
func feedAll(t *testing.T, text string, n int) string {
	t.Helper()
	var s StreamScrubber
	var out strings.Builder
	for i := 0; i < len(text); i += n {
		end := i + n
		if end > len(text) {
			end = len(text)
		}
		out.WriteString(s.Feed(text[i:end]))
	}
	out.WriteString(s.Flush())
	return out.String()
}

func TestScrubber_TagRemovedAtEveryChunkSize(t *testing.T) {
	text := `Checking the file now.
<read path="main.go"/>
Done looking.`
	want := "Checking the file now.\n\nDone looking."
	for _, n := range []int{1, 2, 3, 7, len(text)} {
		if got := feedAll(t, text, n); got != want {
			t.Errorf("chunk size %d: got %q, want %q", n, got, want)
		}
	}
}

func TestScrubber_PairedTagWithheldUntilClose(t *testing.T) {
	var s StreamScrubber
	if got := s.Feed("before <bash>rm "); !strings.HasSuffix(got, "before ") {
		t.Fatalf("Feed leaked tag interior: %q", got)
	}
	if got := s.Feed("-rf tmp</bash> after"); got != " after" {
		t.Errorf("Feed after close = %q, want %q", got, " after")
	}
}

func TestScrubber_FencedTagPassesThrough(t *testing.T) {
	text := "Example:\n```\n<bash>echo hi</bash>\n```\n"
	for _, n := range []int{1, 4, len(text)} {
		if got := feedAll(t, text, n); got != text {
			t.Errorf("chunk size %d: got %q, want unchanged", n, got)
		}
	}
}

func TestScrubber_ProseAngleBracketsKept(t *testing.T) {
	text := "compare a < b, then <em>note</em> and chan <-done"
	if got := feedAll(t, text, 3); got != text {
		t.Errorf("got %q, want unchanged prose", got)
	}
}

func TestScrubber_FlushReturnsUnterminatedTag(t *testing.T) {
	var s StreamScrubber
	s.Feed("text <bash>never closed")
	if got := s.Flush(); !strings.Contains(got, "<bash>never closed") {
		t.Errorf("Flush = %q, unterminated tag lost", got)
	}
}

func TestScrubber_QuotedAngleInAttribute(t *testing.T) {
	text := `running <bash cmd="awk '$3 > 5' data.txt"/> now`
	want := "running  now"
	for _, n := range []int{1, 5, len(text)} {
		if got := feedAll(t, text, n); got != want {
			t.Errorf("chunk size %d: got %q, want %q", n, got, want)
		}
	}
}

func TestScrubber_QuotedAngleInPairedTag(t *testing.T) {
	text := `<grep pattern="x -> y" path="."/>checked. <bash cmd="a > b">fallback body</bash>done`
	want := "checked. done"
	for _, n := range []int{1, 3, len(text)} {
		if got := feedAll(t, text, n); got != want {
			t.Errorf("chunk size %d: got %q, want %q", n, got, want)
		}
	}
}

func TestHoldsActionPrefix(t *testing.T) {
	cases := []struct {
		text string
		want bool
	}{
		{"compare a < b in the loop", false},
		{"generics like <T any> are prose", false},
		{"see <em>note</em> for details", false},
		{"", false},
		{"trailing <bash>echo never closed", true},
		{"cut off mid-name <rea", true},
		{`held <write path="x.txt">partial`, true},
	}
	for _, tc := range cases {
		if got := HoldsActionPrefix(tc.text); got != tc.want {
			t.Errorf("HoldsActionPrefix(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}

func TestScrubber_InlineBackticksNotAFence(t *testing.T) {
	text := "use `go vet` before committing"
	if got := feedAll(t, text, 2); got != text {
		t.Errorf("got %q, want unchanged", got)
	}
}
