// Package deckapi is the facade (§4.6) that the HTTP surface and the CLI
// both sit on top of: it composes the asset store, converter, document
// repository, search index, and thumbnail renderer into the operations a
// deck-authoring client actually calls, and owns the dual-format precedence
// rule (a saved manifest always wins over a legacy deck of the same id).
//
// It is grounded on the teacher registry/handlers package, which is the
// same kind of seam: a thin composition layer over storage/manifest/blob
// services that the HTTP router calls into, with request-scoped logging
// threaded through via dcontext and best-effort side work (notifications,
// there; thumbnail generation, here) dispatched on a detached context so it
// outlives the request.
package deckapi

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/opendeck/deckstore/assetstore"
	"github.com/opendeck/deckstore/convert"
	"github.com/opendeck/deckstore/deckdoc"
	"github.com/opendeck/deckstore/docstore"
	"github.com/opendeck/deckstore/internal/dcontext"
	"github.com/opendeck/deckstore/legacystore"
	"github.com/opendeck/deckstore/search"
	"github.com/opendeck/deckstore/thumbnail"
)

// ErrNotFound is returned by GetDeck, GetDeckMetadata, GetDeckThumbnail and
// DeleteDeck when nothing is stored for the document id.
var ErrNotFound = errors.New("deckapi: deck not found")

// ErrInvalidDeck is returned when a deck fails conversion (e.g. a cyclic
// group) before it is ever persisted.
var ErrInvalidDeck = errors.New("deckapi: deck failed conversion")

// API composes the storage components into deck-level operations.
type API struct {
	Assets    *assetstore.Store
	Docs      *docstore.Repository
	Legacy    *legacystore.Store
	Search    *search.Index
	Converter *convert.Converter
	Renderer  thumbnail.Renderer

	// ThumbnailsDisabled skips best-effort thumbnail generation on save,
	// per §9's configuration open question.
	ThumbnailsDisabled bool
}

// New wires together an API from its components. renderer may be nil only
// when thumbnailsDisabled is true. legacy may be nil, in which case every
// dual-format fallback behaves as if no legacy blob ever exists (useful for
// a deployment that has already completed migration).
func New(assets *assetstore.Store, docs *docstore.Repository, legacy *legacystore.Store, idx *search.Index, conv *convert.Converter, renderer thumbnail.Renderer, thumbnailsDisabled bool) *API {
	return &API{
		Assets:             assets,
		Docs:               docs,
		Legacy:             legacy,
		Search:             idx,
		Converter:          conv,
		Renderer:           renderer,
		ThumbnailsDisabled: thumbnailsDisabled,
	}
}

// SaveOptions controls SaveDeck's input interpretation.
type SaveOptions struct {
	// Legacy indicates deck is in the self-contained legacy shape and must
	// be converted before being persisted. When false, deck is already a
	// manifest with asset:// references.
	Legacy bool
}

// SaveDeck persists deck under its meta.id, converting it from the legacy
// shape first if necessary (§4.6 "write path"), then updates the search
// index and, unless disabled, renders a thumbnail on a context detached
// from the caller's, so a request cancellation after the manifest is
// committed cannot abort the thumbnail write (§4.6).
func (a *API) SaveDeck(ctx context.Context, deck deckdoc.Manifest, opts SaveOptions) (deckdoc.Manifest, error) {
	manifest := deck
	if opts.Legacy {
		converted, err := a.Converter.DeckToManifest(ctx, deck)
		if err != nil {
			var cyc deckdoc.ErrCyclicGroup
			if errors.As(err, &cyc) {
				return deckdoc.Manifest{}, fmt.Errorf("%w: %v", ErrInvalidDeck, err)
			}
			return deckdoc.Manifest{}, err
		}
		manifest = converted
	}

	if err := a.Docs.SaveManifest(ctx, manifest); err != nil {
		var cyc deckdoc.ErrCyclicGroup
		if errors.As(err, &cyc) {
			return deckdoc.Manifest{}, fmt.Errorf("%w: %v", ErrInvalidDeck, err)
		}
		return deckdoc.Manifest{}, err
	}

	if err := a.Search.Index(ctx, manifest.Meta); err != nil {
		dcontext.GetLogger(ctx).Errorf("deckapi: failed to index deck %s: %v", manifest.Meta.ID, err)
	}

	if !a.ThumbnailsDisabled && a.Renderer != nil {
		a.generateThumbnailBestEffort(ctx, manifest)
	}

	return manifest, nil
}

func (a *API) generateThumbnailBestEffort(ctx context.Context, manifest deckdoc.Manifest) {
	slide, ok := thumbnail.FirstSlideStrategy(manifest)
	if !ok {
		return
	}
	detached := dcontext.DetachedContext(ctx)
	data, _, err := a.Renderer.Render(detached, manifest, slide)
	if err != nil {
		dcontext.GetLogger(ctx).Errorf("deckapi: thumbnail render failed for %s: %v", manifest.Meta.ID, err)
		return
	}
	if err := a.Docs.SaveThumbnail(detached, manifest.Meta.ID, data); err != nil {
		dcontext.GetLogger(ctx).Errorf("deckapi: thumbnail save failed for %s: %v", manifest.Meta.ID, err)
	}
}

// GetDeck returns the deck for id, in whichever format it is stored in
// (§4.6 "read path"): a saved manifest always wins over a legacy blob of
// the same id. If inline is true and the document came from a manifest,
// every asset:// reference is resolved back into an embedded data URI for
// a legacy client; a legacy blob is already in that shape and is returned
// as-is regardless of inline.
func (a *API) GetDeck(ctx context.Context, id string, inline bool) (deckdoc.Manifest, error) {
	m, ok, err := a.Docs.GetManifest(ctx, id)
	if err != nil {
		return deckdoc.Manifest{}, err
	}
	if ok {
		if !inline {
			return m, nil
		}
		return a.Converter.ManifestToDeck(ctx, m, convert.ManifestOptions{Inline: true})
	}

	if a.Legacy != nil {
		legacy, ok, err := a.Legacy.Get(ctx, id)
		if err != nil {
			return deckdoc.Manifest{}, err
		}
		if ok {
			return legacy, nil
		}
	}

	return deckdoc.Manifest{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// GetDeckMetadata returns only id's metadata projection, preferring the
// cheap doc:<id>:meta read and falling back to parsing a legacy blob's
// embedded meta field (§4.6).
func (a *API) GetDeckMetadata(ctx context.Context, id string) (deckdoc.ManifestMeta, error) {
	meta, ok, err := a.Docs.GetMeta(ctx, id)
	if err != nil {
		return deckdoc.ManifestMeta{}, err
	}
	if ok {
		return meta, nil
	}

	if a.Legacy != nil {
		legacy, ok, err := a.Legacy.Get(ctx, id)
		if err != nil {
			return deckdoc.ManifestMeta{}, err
		}
		if ok {
			return legacy.Meta, nil
		}
	}

	return deckdoc.ManifestMeta{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// GetDeckThumbnail returns the rendered thumbnail bytes for id.
func (a *API) GetDeckThumbnail(ctx context.Context, id string) ([]byte, error) {
	data, ok, err := a.Docs.GetThumbnail(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return data, nil
}

// DeckExists reports whether id has a saved manifest or a legacy blob
// (§4.6 "true if either form is present").
func (a *API) DeckExists(ctx context.Context, id string) (bool, error) {
	if ok, err := a.Docs.Exists(ctx, id); err != nil || ok {
		return ok, err
	}
	if a.Legacy == nil {
		return false, nil
	}
	return a.Legacy.Exists(ctx, id)
}

// DeleteDeck removes every new-format key for id (manifest, meta, assets,
// thumbnail) and every legacy companion key (deck:<id>:data, :history,
// :meta), and drops id from the search index (§4.6). It is ErrNotFound
// only when neither form was present.
func (a *API) DeleteDeck(ctx context.Context, id string) error {
	removedNew, err := a.Docs.Delete(ctx, id)
	if err != nil {
		return err
	}

	removedLegacy := false
	if a.Legacy != nil {
		removedLegacy, err = a.Legacy.Delete(ctx, id)
		if err != nil {
			return err
		}
	}

	if !removedNew && !removedLegacy {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if err := a.Search.Remove(ctx, id); err != nil {
		dcontext.GetLogger(ctx).Errorf("deckapi: failed to unindex deck %s: %v", id, err)
	}
	return nil
}

// SearchDecks runs a filtered, paginated query against the search index
// (§4.5): new-format documents only, the same corpus SearchIndex is
// specified over.
func (a *API) SearchDecks(ctx context.Context, q search.Query) (search.Result, error) {
	return a.Search.Search(ctx, q)
}

// ListDecks enumerates every document in either format (§4.6): new-format
// manifests and legacy blobs are both walked, merged into a single map
// keyed by id with the new-format entry winning a collision (P9), and
// corrupted entries are skipped rather than failing the whole listing.
func (a *API) ListDecks(ctx context.Context) ([]deckdoc.Brief, error) {
	briefs := make(map[string]deckdoc.Brief)

	if a.Legacy != nil {
		err := a.Docs.ScanMeta(ctx, a.Legacy.DataListPattern(), func(key string) error {
			id := legacystore.IDFromDataKey(key)
			if id == "" {
				return nil
			}
			deck, ok, err := a.Legacy.Get(ctx, id)
			if err != nil {
				dcontext.GetLogger(ctx).Errorf("deckapi: skipping corrupt legacy deck %s: %v", id, err)
				return nil
			}
			if ok {
				briefs[id] = deck.Meta.ToBrief()
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	err := a.Docs.ScanMeta(ctx, a.Docs.MetaListPattern(), func(key string) error {
		id := docstore.IDFromMetaKey(key)
		if id == "" {
			return nil
		}
		meta, ok, err := a.Docs.GetMeta(ctx, id)
		if err != nil {
			dcontext.GetLogger(ctx).Errorf("deckapi: skipping corrupt document meta %s: %v", id, err)
			return nil
		}
		if ok {
			briefs[id] = meta.ToBrief() // new format wins a same-id collision
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]deckdoc.Brief, 0, len(briefs))
	for _, b := range briefs {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt > out[j].UpdatedAt })
	return out, nil
}
