// Package thumbnail renders a preview image for a deck's first slide.
//
// Only a placeholder strategy is implemented (§9 Open Questions: "ship the
// simplest thing that satisfies the contract, swap the renderer later
// without touching callers"). The Renderer interface is the seam a real
// rasterizer would plug into; deckapi only ever talks to that interface, the
// same way the teacher's registry/storage package talks to the narrow
// storagedriver.StorageDriver interface rather than a concrete backend.
package thumbnail

import (
	"bytes"
	"context"
	"fmt"

	"github.com/opendeck/deckstore/deckdoc"
)

// Renderer produces thumbnail bytes for a slide.
type Renderer interface {
	// Render returns the encoded thumbnail image for slide, and its mime
	// type.
	Render(ctx context.Context, deck deckdoc.Manifest, slide deckdoc.Slide) ([]byte, string, error)
}

// PlaceholderRenderer renders a flat-color placeholder sized to a fixed
// canvas, ignoring slide content. It never fails.
type PlaceholderRenderer struct {
	Width, Height int
}

// NewPlaceholderRenderer returns a PlaceholderRenderer at a sensible default
// canvas size.
func NewPlaceholderRenderer() *PlaceholderRenderer {
	return &PlaceholderRenderer{Width: 320, Height: 180}
}

// Render implements Renderer. The "image" is a minimal, valid single-color
// BMP: small enough to generate without a codec dependency, real enough
// that a browser <img> tag renders it.
func (r *PlaceholderRenderer) Render(_ context.Context, _ deckdoc.Manifest, slide deckdoc.Slide) ([]byte, string, error) {
	color := backgroundColor(slide)
	return encodeSolidBMP(r.Width, r.Height, color), "image/bmp", nil
}

func backgroundColor(slide deckdoc.Slide) [3]byte {
	if slide.Background != nil && slide.Background.Type == "color" && len(slide.Background.Value) == 7 {
		if c, ok := parseHexColor(slide.Background.Value); ok {
			return c
		}
	}
	return [3]byte{0xe8, 0xe8, 0xe8}
}

func parseHexColor(s string) ([3]byte, bool) {
	var c [3]byte
	if s[0] != '#' {
		return c, false
	}
	n, err := fmt.Sscanf(s[1:], "%02x%02x%02x", &c[0], &c[1], &c[2])
	return c, err == nil && n == 3
}

// encodeSolidBMP writes a minimal uncompressed 24-bit BMP of the given size
// filled with rgb.
func encodeSolidBMP(width, height int, rgb [3]byte) []byte {
	rowSize := (width*3 + 3) &^ 3
	pixelDataSize := rowSize * height
	fileSize := 54 + pixelDataSize

	buf := new(bytes.Buffer)
	buf.WriteString("BM")
	writeLE32(buf, uint32(fileSize))
	writeLE32(buf, 0)
	writeLE32(buf, 54)

	writeLE32(buf, 40)
	writeLE32(buf, uint32(width))
	writeLE32(buf, uint32(height))
	writeLE16(buf, 1)
	writeLE16(buf, 24)
	writeLE32(buf, 0)
	writeLE32(buf, uint32(pixelDataSize))
	writeLE32(buf, 2835)
	writeLE32(buf, 2835)
	writeLE32(buf, 0)
	writeLE32(buf, 0)

	row := make([]byte, rowSize)
	for x := 0; x < width; x++ {
		row[x*3] = rgb[2]
		row[x*3+1] = rgb[1]
		row[x*3+2] = rgb[0]
	}
	for y := 0; y < height; y++ {
		buf.Write(row)
	}

	return buf.Bytes()
}

func writeLE32(buf *bytes.Buffer, v uint32) {
	buf.WriteByte(byte(v))
	buf.WriteByte(byte(v >> 8))
	buf.WriteByte(byte(v >> 16))
	buf.WriteByte(byte(v >> 24))
}

func writeLE16(buf *bytes.Buffer, v uint16) {
	buf.WriteByte(byte(v))
	buf.WriteByte(byte(v >> 8))
}

// FirstSlideStrategy picks the slide to thumbnail: the deck's first slide,
// or ok=false for an empty deck.
func FirstSlideStrategy(m deckdoc.Manifest) (deckdoc.Slide, bool) {
	if len(m.Slides) == 0 {
		return deckdoc.Slide{}, false
	}
	return m.Slides[0], true
}
