package buffers

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/disintegration/imaging"

	"github.com/slashbot/slashbot/internal/providers"
)

// MaxImages bounds how many staged images attach to one user message.
const MaxImages = 4

// maxImageDim is the longest edge kept when downscaling attachments.
const maxImageDim = 1568

// ImageBuffer stages attached images behind [image:N] placeholders until
// the turn engine drains them into the next user message.
type ImageBuffer struct {
	mu      sync.Mutex
	next    int
	entries []imageEntry
}

type imageEntry struct {
	id  int
	img providers.ImageContent
}

func NewImageBuffer() *ImageBuffer {
	return &ImageBuffer{next: 1}
}

// Put stages raw image bytes, downscaling anything larger than the model
// input limit, and returns the placeholder for the input line.
func (b *ImageBuffer) Put(data []byte, mime string) (string, error) {
	encoded, outMime, err := normalise(data, mime)
	if err != nil {
		return "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	b.entries = append(b.entries, imageEntry{id: id, img: providers.ImageContent{
		MimeType: outMime,
		Data:     encoded,
	}})
	return fmt.Sprintf("[image:%d]", id), nil
}

// Drain removes and returns up to MaxImages staged images, oldest first.
// Anything beyond the cap stays staged for the next message.
func (b *ImageBuffer) Drain() []providers.ImageContent {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(b.entries)
	if n > MaxImages {
		n = MaxImages
	}
	out := make([]providers.ImageContent, 0, n)
	for _, e := range b.entries[:n] {
		out = append(out, e.img)
	}
	b.entries = b.entries[n:]
	return out
}

// Len reports how many images are staged.
func (b *ImageBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// normalise decodes, downscales oversized images, and re-encodes to PNG.
// Undecodable data passes through unchanged with its declared mime type.
func normalise(data []byte, mime string) (string, string, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return base64.StdEncoding.EncodeToString(data), mime, nil
	}
	bounds := img.Bounds()
	if bounds.Dx() > maxImageDim || bounds.Dy() > maxImageDim {
		img = imaging.Fit(img, maxImageDim, maxImageDim, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return "", "", fmt.Errorf("encode image: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), "image/png", nil
}
