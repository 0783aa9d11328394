package connectors

import (
	"strings"
	"testing"

	"github.com/slashbot/slashbot/pkg/protocol"
)

func TestSplit_ShortTextSingleChunk(t *testing.T) {
	chunks := Split("hello world", protocol.TelegramMaxChunk)
	if len(chunks) != 1 || chunks[0] != "hello world" {
		t.Errorf("chunks = %q", chunks)
	}
}

func TestSplit_UnboundedWhenMaxZero(t *testing.T) {
	long := strings.Repeat("x", 100_000)
	chunks := Split(long, 0)
	if len(chunks) != 1 {
		t.Errorf("len = %d, want 1", len(chunks))
	}
}

func TestSplit_HardCutWithoutBoundaries(t *testing.T) {
	text := strings.Repeat("a", 5000)
	chunks := Split(text, protocol.TelegramMaxChunk)
	if len(chunks) != 2 {
		t.Fatalf("len = %d, want 2", len(chunks))
	}
	if len(chunks[0]) != 4000 || len(chunks[1]) != 1000 {
		t.Errorf("chunk lengths = %d, %d", len(chunks[0]), len(chunks[1]))
	}
}

func TestSplit_PrefersLineBreak(t *testing.T) {
	// A newline sits inside the window; the cut must land on it.
	text := strings.Repeat("a", 50) + "\n" + strings.Repeat("b", 60)
	chunks := Split(text, 80)
	if len(chunks) != 2 {
		t.Fatalf("chunks = %d, want 2", len(chunks))
	}
	if chunks[0] != strings.Repeat("a", 50) {
		t.Errorf("first chunk = %q", chunks[0])
	}
	if chunks[1] != strings.Repeat("b", 60) {
		t.Errorf("second chunk = %q", chunks[1])
	}
}

func TestSplit_WordBoundaryFallback(t *testing.T) {
	text := strings.Repeat("word ", 30) // 150 chars, no newlines
	chunks := Split(text, 70)
	for i, c := range chunks {
		if len([]rune(c)) > 70 {
			t.Errorf("chunk %d length %d exceeds max", i, len([]rune(c)))
		}
		if strings.Contains(c, "wo rd") || strings.HasPrefix(c, " ") {
			t.Errorf("chunk %d broke a word or kept leading space: %q", i, c)
		}
	}
	rejoined := strings.Join(chunks, " ")
	if strings.ReplaceAll(rejoined, " ", "") != strings.ReplaceAll(text, " ", "") {
		t.Errorf("content lost in split")
	}
}

func TestSplit_ContinuationLeftTrimmed(t *testing.T) {
	text := strings.Repeat("a", 79) + " " + strings.Repeat("b", 40)
	chunks := Split(text, 80)
	if len(chunks) != 2 {
		t.Fatalf("chunks = %d, want 2", len(chunks))
	}
	if strings.HasPrefix(chunks[1], " ") {
		t.Errorf("continuation starts with whitespace: %q", chunks[1])
	}
	if strings.HasSuffix(chunks[0], " ") {
		t.Errorf("chunk has trailing whitespace: %q", chunks[0])
	}
}

func TestSplit_DiscordLimit(t *testing.T) {
	text := strings.Repeat("line of text\n", 500)
	chunks := Split(text, protocol.DiscordMaxChunk)
	for i, c := range chunks {
		if len([]rune(c)) > protocol.DiscordMaxChunk {
			t.Errorf("chunk %d length %d exceeds discord limit", i, len([]rune(c)))
		}
	}
	if len(chunks) < 2 {
		t.Errorf("expected multiple chunks, got %d", len(chunks))
	}
}
