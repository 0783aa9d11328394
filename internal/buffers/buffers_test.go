package buffers

import (
	"strings"
	"testing"
)

func TestPasteBuffer_PutExpandConsumes(t *testing.T) {
	p := NewPasteBuffer()
	ph := p.Put("line one\nline two")
	if ph != "[pasted:1:2 lines]" {
		t.Fatalf("placeholder = %q", ph)
	}
	input := "please review " + ph + " carefully"
	got := p.Expand(input)
	if got != "please review line one\nline two carefully" {
		t.Errorf("Expand = %q", got)
	}
	if p.Len() != 0 {
		t.Errorf("entry not consumed, Len = %d", p.Len())
	}
	// Second expansion finds nothing and leaves the placeholder alone.
	if again := p.Expand(input); again != input {
		t.Errorf("re-expand = %q, want unchanged", again)
	}
}

func TestPasteBuffer_MonotonicIDs(t *testing.T) {
	p := NewPasteBuffer()
	p.Put("a")
	ph2 := p.Put("b")
	p.Take(2)
	ph3 := p.Put("c")
	if ph2 != "[pasted:2:1 lines]" || ph3 != "[pasted:3:1 lines]" {
		t.Errorf("ids not monotonic: %q %q", ph2, ph3)
	}
}

func TestPasteBuffer_LegacyPlaceholder(t *testing.T) {
	p := NewPasteBuffer()
	p.Put("legacy text")
	got := p.Expand("see [pasted content 1 lines] here")
	if got != "see legacy text here" {
		t.Errorf("Expand = %q", got)
	}
}

func TestImageBuffer_DrainCapsAndConsumes(t *testing.T) {
	b := NewImageBuffer()
	for i := 0; i < MaxImages+2; i++ {
		// Not decodable as an image; stored verbatim.
		if _, err := b.Put([]byte("not-an-image"), "image/png"); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	first := b.Drain()
	if len(first) != MaxImages {
		t.Fatalf("Drain = %d images, want %d", len(first), MaxImages)
	}
	rest := b.Drain()
	if len(rest) != 2 {
		t.Errorf("second Drain = %d, want 2", len(rest))
	}
	if b.Len() != 0 {
		t.Errorf("Len = %d after draining all", b.Len())
	}
}

func TestImageBuffer_PlaceholderForm(t *testing.T) {
	b := NewImageBuffer()
	ph, err := b.Put([]byte("x"), "image/jpeg")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !strings.HasPrefix(ph, "[image:") || !strings.HasSuffix(ph, "]") {
		t.Errorf("placeholder = %q", ph)
	}
}
