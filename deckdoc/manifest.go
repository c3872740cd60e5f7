// Package deckdoc is the shared data model for a presentation document: the
// split, reference-bearing Manifest form and the self-contained legacy
// form, plus the binary AssetInfo sidecar attached to every stored asset.
//
// Both forms share the same Go types (LegacyDeck is a type alias for
// Manifest) because they are structurally identical; they differ only in
// what occupies the asset-bearing positions the converter package knows
// about — an embedded data URI in the legacy form, an asset:// reference in
// the manifest form.
package deckdoc

import "encoding/json"

// Schema identifies the manifest format version and, once converted from a
// legacy deck, when that migration happened.
type Schema struct {
	Version    string `json:"version"`
	EngineMin  string `json:"engineMin,omitempty"`
	MigratedAt string `json:"migratedAt,omitempty"`
}

// CurrentSchemaVersion is stamped onto every manifest produced by the
// converter.
const CurrentSchemaVersion = "v1.0"

// AssetInfo is the immutable record attached to every stored asset.
type AssetInfo struct {
	SHA256           string `json:"sha256"`
	ByteSize         uint64 `json:"byteSize"`
	MimeType         string `json:"mimeType"`
	OriginalFilename string `json:"originalFilename,omitempty"`
	CreatedAt        string `json:"createdAt"`
	Width            *uint  `json:"width,omitempty"`
	Height           *uint  `json:"height,omitempty"`
}

// DefaultMimeType is used whenever an asset is stored without an explicit
// media type.
const DefaultMimeType = "application/octet-stream"

// Background describes a slide or deck-wide background. Value holds an
// AssetReference when Type is "image" or "video"; for any other type
// (e.g. "color", "gradient") Value is opaque to the converter.
type Background struct {
	Type  string `json:"type,omitempty"`
	Value string `json:"value,omitempty"`
}

// IsAssetBearing reports whether this background's Value slot is subject to
// asset promotion during conversion (§4.3.1 step 3).
func (b *Background) IsAssetBearing() bool {
	return b != nil && (b.Type == "image" || b.Type == "video")
}

// Layer is a z-ordered group of elements painted after a slide's own
// elements, in ascending Order.
type Layer struct {
	ID       string    `json:"id"`
	Order    float64   `json:"order"`
	Elements []Element `json:"elements,omitempty"`
}

// Slide is one entry in a Manifest's ordered slide sequence.
type Slide struct {
	ID          string          `json:"id"`
	Title       string          `json:"title,omitempty"`
	Layout      string          `json:"layout,omitempty"`
	Elements    []Element       `json:"elements,omitempty"`
	Layers      []Layer         `json:"layers,omitempty"`
	Background  *Background     `json:"background,omitempty"`
	Transitions json.RawMessage `json:"transitions,omitempty"`
	Notes       json.RawMessage `json:"notes,omitempty"`
	Timeline    json.RawMessage `json:"timeline,omitempty"`
	Thumbnail   string          `json:"thumbnail,omitempty"`
}

// BrandingLogo holds the asset-bearing logo slot under DeckSettings.
type BrandingLogo struct {
	Src string `json:"src,omitempty"`
}

// Branding groups presentation-wide branding settings.
type Branding struct {
	Logo BrandingLogo `json:"logo,omitempty"`
}

// DeckSettings holds presentation-wide configuration that is not part of
// the content tree itself.
type DeckSettings struct {
	DefaultBackground *Background     `json:"defaultBackground,omitempty"`
	Branding          *Branding       `json:"branding,omitempty"`
	SlideSize         json.RawMessage `json:"slideSize,omitempty"`
	Behavior          json.RawMessage `json:"behavior,omitempty"`
	Grid              json.RawMessage `json:"grid,omitempty"`
}

// Manifest is the root document. Assets is a registry (keys equal values)
// of every AssetReference used anywhere in the document; its value side
// carries no additional meaning beyond round-trip preservation (see
// DESIGN.md Open Questions).
type Manifest struct {
	Schema     Schema            `json:"schema"`
	Meta       ManifestMeta      `json:"meta"`
	Slides     []Slide           `json:"slides"`
	Assets     map[string]string `json:"assets"`
	Settings   *DeckSettings     `json:"settings,omitempty"`
	Theme      json.RawMessage   `json:"theme,omitempty"`
	Provenance json.RawMessage   `json:"provenance,omitempty"`
}

// LegacyDeck is structurally identical to Manifest; only the content of its
// asset-bearing slots differs (embedded data URIs instead of references).
type LegacyDeck = Manifest

// DeepClone returns an independent copy of m so callers of the converter
// never observe their input mutated (§4.3.1 step 1). JSON round-tripping is
// sufficient here because every field in the tree is itself
// JSON-marshalable, including the Extra passthrough maps on Element.
func (m Manifest) DeepClone() (Manifest, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return Manifest{}, err
	}
	var clone Manifest
	if err := json.Unmarshal(b, &clone); err != nil {
		return Manifest{}, err
	}
	return clone, nil
}
