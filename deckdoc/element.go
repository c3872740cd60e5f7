package deckdoc

import (
	"encoding/json"
	"sort"
)

// Element is the heterogeneous node type of a slide's content tree. Concrete
// kinds (text, richtext, codeblock, table, chart, shape, image, media,
// group) are distinguished by Type; fields not recognized by any kind are
// preserved verbatim in Extra so an unknown future kind round-trips
// unchanged (forward compatibility: the converter package never rejects an
// element because of its Type).
type Element struct {
	ID        string          `json:"-"`
	Type      string          `json:"-"`
	Bounds    json.RawMessage `json:"-"`
	Style     json.RawMessage `json:"-"`
	Animation json.RawMessage `json:"-"`
	Metadata  json.RawMessage `json:"-"`
	Name      string          `json:"-"`

	// Src is the asset-bearing slot on "image" and "media" elements.
	Src string `json:"-"`
	// Alt and ObjectFit are "image"-specific passthrough fields kept as
	// typed slots only because Src needs them as siblings during encode.
	Alt       string `json:"-"`
	ObjectFit string `json:"-"`
	MediaType string `json:"-"`

	// Children holds nested elements for a "group" element, recursed into
	// by the converter to unbounded depth.
	Children []Element `json:"-"`

	// Extra carries every remaining field (codeblock.code, table.headers,
	// chart.data, and anything belonging to a kind this package does not
	// model explicitly) verbatim across a save/load cycle.
	Extra map[string]json.RawMessage `json:"-"`
}

var knownElementFields = map[string]bool{
	"id": true, "type": true, "bounds": true, "style": true,
	"animation": true, "metadata": true, "name": true,
	"src": true, "alt": true, "objectFit": true, "mediaType": true,
	"children": true,
}

// MarshalJSON flattens the typed slots and Extra back into one JSON object,
// matching the source format where every element kind shares one namespace.
func (e Element) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(e.Extra)+len(knownElementFields))
	for k, v := range e.Extra {
		out[k] = v
	}

	putString := func(key, value string) {
		if value == "" {
			return
		}
		b, _ := json.Marshal(value)
		out[key] = b
	}

	putString("id", e.ID)
	putString("type", e.Type)
	putString("name", e.Name)
	putString("src", e.Src)
	putString("alt", e.Alt)
	putString("objectFit", e.ObjectFit)
	putString("mediaType", e.MediaType)
	if len(e.Bounds) > 0 {
		out["bounds"] = e.Bounds
	}
	if len(e.Style) > 0 {
		out["style"] = e.Style
	}
	if len(e.Animation) > 0 {
		out["animation"] = e.Animation
	}
	if len(e.Metadata) > 0 {
		out["metadata"] = e.Metadata
	}
	if e.Children != nil {
		b, err := json.Marshal(e.Children)
		if err != nil {
			return nil, err
		}
		out["children"] = b
	}

	// Deterministic key order keeps byte-for-byte comparisons in tests
	// stable; encoding/json on a map would otherwise sort anyway, but we
	// build through a slice of pairs for clarity.
	keys := make([]string, 0, len(out))
	for k := range out {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf := []byte{'{'}
	for i, k := range keys {
		if i > 0 {
			buf = append(buf, ',')
		}
		kb, _ := json.Marshal(k)
		buf = append(buf, kb...)
		buf = append(buf, ':')
		buf = append(buf, out[k]...)
	}
	buf = append(buf, '}')
	return buf, nil
}

// UnmarshalJSON splits the flat JSON object into the typed slots this
// package cares about (principally so the converter can find asset-bearing
// positions without re-parsing JSON) and stashes everything else in Extra.
func (e *Element) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	get := func(key string) string {
		v, ok := raw[key]
		if !ok {
			return ""
		}
		var s string
		_ = json.Unmarshal(v, &s)
		return s
	}

	e.ID = get("id")
	e.Type = get("type")
	e.Name = get("name")
	e.Src = get("src")
	e.Alt = get("alt")
	e.ObjectFit = get("objectFit")
	e.MediaType = get("mediaType")
	e.Bounds = raw["bounds"]
	e.Style = raw["style"]
	e.Animation = raw["animation"]
	e.Metadata = raw["metadata"]

	if childrenRaw, ok := raw["children"]; ok {
		var children []Element
		if err := json.Unmarshal(childrenRaw, &children); err != nil {
			return err
		}
		e.Children = children
	}

	e.Extra = make(map[string]json.RawMessage, len(raw))
	for k, v := range raw {
		if knownElementFields[k] {
			continue
		}
		e.Extra[k] = v
	}

	return nil
}
