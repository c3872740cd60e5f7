package deckdoc

import "fmt"

// ErrCyclicGroup is returned when a group element's Children recurse back
// into an ancestor group, identified by id. The walk never proceeds far
// enough to overflow the stack; it fails fast on the first repeat instead.
type ErrCyclicGroup struct {
	GroupID string
}

func (e ErrCyclicGroup) Error() string {
	return fmt.Sprintf("deckdoc: cyclic group %q", e.GroupID)
}

// Visitor is called once per asset-bearing slot found by Walk, in the fixed
// order from spec §4.3.1 step 3: meta.coverImage; each slide's
// background.value (when image/video); each slide's thumbnail; each
// slide's elements and layer elements (recursing into groups); finally the
// deck-wide branding logo and default background.
//
// pos addresses the slot in place: reading *pos inspects the current value,
// writing through pos rewrites it. The same traversal backs both the
// converter (which rewrites slots) and the document repository's reference
// closure walk (which only reads).
type Visitor func(pos *string) error

// Walk visits every asset-bearing slot in m. It returns ErrCyclicGroup if a
// group element nests, by id, inside itself.
func Walk(m *Manifest, visit Visitor) error {
	if err := visit(&m.Meta.CoverImage); err != nil {
		return err
	}

	for si := range m.Slides {
		s := &m.Slides[si]

		if s.Background.IsAssetBearing() {
			if err := visit(&s.Background.Value); err != nil {
				return err
			}
		}

		if err := visit(&s.Thumbnail); err != nil {
			return err
		}

		if err := walkElements(s.Elements, nil, visit); err != nil {
			return err
		}
		for li := range s.Layers {
			if err := walkElements(s.Layers[li].Elements, nil, visit); err != nil {
				return err
			}
		}
	}

	if m.Settings != nil {
		if m.Settings.Branding != nil {
			if err := visit(&m.Settings.Branding.Logo.Src); err != nil {
				return err
			}
		}
		if m.Settings.DefaultBackground.IsAssetBearing() {
			if err := visit(&m.Settings.DefaultBackground.Value); err != nil {
				return err
			}
		}
	}

	return nil
}

func walkElements(elements []Element, ancestry map[string]bool, visit Visitor) error {
	for i := range elements {
		e := &elements[i]

		if e.Type == "image" || e.Type == "media" {
			if err := visit(&e.Src); err != nil {
				return err
			}
		}

		if e.Type == "group" && len(e.Children) > 0 {
			if ancestry[e.ID] {
				return ErrCyclicGroup{GroupID: e.ID}
			}
			next := make(map[string]bool, len(ancestry)+1)
			for k := range ancestry {
				next[k] = true
			}
			next[e.ID] = true

			if err := walkElements(e.Children, next, visit); err != nil {
				return err
			}
		}
	}
	return nil
}

// CollectReferences returns every value among m's asset-bearing slots that
// already matches the AssetReference grammar, keyed by the reference
// string. It never mutates m. isReference is injected so this package does
// not need to import hashref.
func CollectReferences(m *Manifest, isReference func(string) bool) (map[string]bool, error) {
	refs := make(map[string]bool)
	err := Walk(m, func(pos *string) error {
		if *pos != "" && isReference(*pos) {
			refs[*pos] = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return refs, nil
}
