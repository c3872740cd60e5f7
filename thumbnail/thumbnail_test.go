package thumbnail

import (
	"bytes"
	"context"
	"testing"

	"github.com/opendeck/deckstore/deckdoc"
)

func TestPlaceholderRendererProducesValidBMPHeader(t *testing.T) {
	r := NewPlaceholderRenderer()
	m := deckdoc.Manifest{Slides: []deckdoc.Slide{{ID: "s1"}}}

	data, mimeType, err := r.Render(context.Background(), m, m.Slides[0])
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if mimeType != "image/bmp" {
		t.Fatalf("mimeType = %q, want image/bmp", mimeType)
	}
	if !bytes.HasPrefix(data, []byte("BM")) {
		t.Fatalf("expected BMP magic header, got %v", data[:2])
	}
	if len(data) <= 54 {
		t.Fatalf("expected pixel data beyond the 54-byte header, got %d bytes", len(data))
	}
}

func TestPlaceholderRendererUsesSlideBackgroundColor(t *testing.T) {
	r := NewPlaceholderRenderer()
	slide := deckdoc.Slide{ID: "s1", Background: &deckdoc.Background{Type: "color", Value: "#ff0000"}}

	data, _, err := r.Render(context.Background(), deckdoc.Manifest{}, slide)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	// First pixel row starts right after the 54-byte header, stored BGR.
	px := data[54:57]
	if px[0] != 0x00 || px[1] != 0x00 || px[2] != 0xff {
		t.Fatalf("expected red pixel (BGR 00,00,ff), got %v", px)
	}
}

func TestFirstSlideStrategy(t *testing.T) {
	empty := deckdoc.Manifest{}
	if _, ok := FirstSlideStrategy(empty); ok {
		t.Fatalf("expected ok=false for an empty deck")
	}

	m := deckdoc.Manifest{Slides: []deckdoc.Slide{{ID: "s1"}, {ID: "s2"}}}
	slide, ok := FirstSlideStrategy(m)
	if !ok || slide.ID != "s1" {
		t.Fatalf("expected first slide s1, got %+v ok=%v", slide, ok)
	}
}
