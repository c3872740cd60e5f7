package deckapi

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/opendeck/deckstore/assetstore"
	"github.com/opendeck/deckstore/convert"
	"github.com/opendeck/deckstore/deckdoc"
	"github.com/opendeck/deckstore/docstore"
	"github.com/opendeck/deckstore/kvstore"
	"github.com/opendeck/deckstore/legacystore"
	"github.com/opendeck/deckstore/search"
	"github.com/opendeck/deckstore/thumbnail"
)

const redPixelDataURI = "data:image/png;base64,cmVkIHBpeGVsIGJ5dGVz"

func newTestAPI(t *testing.T) (*API, func()) {
	api, _, done := newTestAPIWithClient(t)
	return api, done
}

func newTestAPIWithClient(t *testing.T) (*API, *redis.Client, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ns := kvstore.New(client, "test:")
	frozen := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return frozen }

	assets := assetstore.New(ns, clock)
	docs := docstore.New(ns, clock)
	legacy := legacystore.New(ns)
	idx := search.New(ns)
	conv := convert.New(assets, clock)
	renderer := thumbnail.NewPlaceholderRenderer()

	api := New(assets, docs, legacy, idx, conv, renderer, false)
	return api, client, mr.Close
}

func sampleLegacy(id string) deckdoc.LegacyDeck {
	return deckdoc.Manifest{
		Meta: deckdoc.ManifestMeta{ID: id, Title: "Demo"},
		Slides: []deckdoc.Slide{
			{ID: "s1", Elements: []deckdoc.Element{
				{ID: "e1", Type: "image", Src: redPixelDataURI},
			}},
		},
	}
}

func TestSaveAndGetDeckLinkedMode(t *testing.T) {
	api, done := newTestAPI(t)
	defer done()
	ctx := context.Background()

	saved, err := api.SaveDeck(ctx, sampleLegacy("d1"), SaveOptions{Legacy: true})
	if err != nil {
		t.Fatalf("SaveDeck: %v", err)
	}
	if saved.Schema.Version != deckdoc.CurrentSchemaVersion {
		t.Fatalf("expected schema version stamped, got %q", saved.Schema.Version)
	}

	got, err := api.GetDeck(ctx, "d1", false)
	if err != nil {
		t.Fatalf("GetDeck: %v", err)
	}
	if got.Slides[0].Elements[0].Src == redPixelDataURI {
		t.Fatalf("expected linked mode to keep asset:// reference, got embedded bytes")
	}
}

func TestGetDeckInlineRecoversLegacyShape(t *testing.T) {
	api, done := newTestAPI(t)
	defer done()
	ctx := context.Background()

	if _, err := api.SaveDeck(ctx, sampleLegacy("d2"), SaveOptions{Legacy: true}); err != nil {
		t.Fatalf("SaveDeck: %v", err)
	}

	got, err := api.GetDeck(ctx, "d2", true)
	if err != nil {
		t.Fatalf("GetDeck inline: %v", err)
	}
	if got.Slides[0].Elements[0].Src != redPixelDataURI {
		t.Fatalf("expected inline mode to recover original data URI, got %q", got.Slides[0].Elements[0].Src)
	}
}

func TestGetDeckNotFound(t *testing.T) {
	api, done := newTestAPI(t)
	defer done()

	_, err := api.GetDeck(context.Background(), "missing", false)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveDeckRejectsCyclicGroup(t *testing.T) {
	api, done := newTestAPI(t)
	defer done()
	ctx := context.Background()

	inner := deckdoc.Element{ID: "g1", Type: "group", Children: []deckdoc.Element{{ID: "leaf", Type: "text"}}}
	outer := deckdoc.Element{ID: "g1", Type: "group", Children: []deckdoc.Element{inner}}
	deck := deckdoc.Manifest{
		Meta:   deckdoc.ManifestMeta{ID: "d3"},
		Slides: []deckdoc.Slide{{ID: "s1", Elements: []deckdoc.Element{outer}}},
	}

	_, err := api.SaveDeck(ctx, deck, SaveOptions{Legacy: true})
	if !errors.Is(err, ErrInvalidDeck) {
		t.Fatalf("expected ErrInvalidDeck, got %v", err)
	}
}

func TestDeleteDeckRemovesFromListing(t *testing.T) {
	api, done := newTestAPI(t)
	defer done()
	ctx := context.Background()

	if _, err := api.SaveDeck(ctx, sampleLegacy("d4"), SaveOptions{Legacy: true}); err != nil {
		t.Fatalf("SaveDeck: %v", err)
	}

	res, err := api.SearchDecks(ctx, search.Query{})
	if err != nil {
		t.Fatalf("SearchDecks: %v", err)
	}
	if res.Total != 1 {
		t.Fatalf("expected 1 deck before delete, got %d", res.Total)
	}

	briefs, err := api.ListDecks(ctx)
	if err != nil {
		t.Fatalf("ListDecks: %v", err)
	}
	if len(briefs) != 1 {
		t.Fatalf("expected 1 brief before delete, got %d", len(briefs))
	}

	if err := api.DeleteDeck(ctx, "d4"); err != nil {
		t.Fatalf("DeleteDeck: %v", err)
	}

	if exists, _ := api.DeckExists(ctx, "d4"); exists {
		t.Fatalf("expected deck gone after delete")
	}
	res, err = api.SearchDecks(ctx, search.Query{})
	if err != nil {
		t.Fatalf("SearchDecks after delete: %v", err)
	}
	if res.Total != 0 {
		t.Fatalf("expected 0 decks after delete, got %d", res.Total)
	}
}

func rawLegacyManifest(t *testing.T, deck deckdoc.LegacyDeck) []byte {
	t.Helper()
	b, err := json.Marshal(deck)
	if err != nil {
		t.Fatalf("marshal legacy deck: %v", err)
	}
	return b
}

// TestGetDeckReadsLegacyBlob covers spec.md §8 scenario 3: a raw legacy
// blob with no corresponding manifest is served as-is.
func TestGetDeckReadsLegacyBlob(t *testing.T) {
	api, client, done := newTestAPIWithClient(t)
	defer done()
	ctx := context.Background()

	deck := deckdoc.LegacyDeck{
		Meta:   deckdoc.ManifestMeta{ID: "legacy-1", Title: "Minimal"},
		Slides: []deckdoc.Slide{},
	}
	if err := client.Set(ctx, "test:deck:legacy-1:data", rawLegacyManifest(t, deck), 0).Err(); err != nil {
		t.Fatalf("seed legacy blob: %v", err)
	}

	got, err := api.GetDeck(ctx, "legacy-1", false)
	if err != nil {
		t.Fatalf("GetDeck: %v", err)
	}
	if got.Meta.ID != "legacy-1" || got.Meta.Title != "Minimal" || len(got.Slides) != 0 {
		t.Fatalf("unexpected deck: %+v", got)
	}

	if exists, err := api.DeckExists(ctx, "legacy-1"); err != nil || !exists {
		t.Fatalf("DeckExists: exists=%v err=%v", exists, err)
	}

	briefs, err := api.ListDecks(ctx)
	if err != nil {
		t.Fatalf("ListDecks: %v", err)
	}
	if len(briefs) != 1 || briefs[0].ID != "legacy-1" {
		t.Fatalf("expected exactly one legacy-1 brief, got %+v", briefs)
	}
}

// TestGetDeckPrefersManifestOverLegacy covers spec.md §8 scenario 4:
// when both a legacy blob and a manifest exist for the same id, the
// manifest wins.
func TestGetDeckPrefersManifestOverLegacy(t *testing.T) {
	api, client, done := newTestAPIWithClient(t)
	defer done()
	ctx := context.Background()

	oldDeck := deckdoc.LegacyDeck{Meta: deckdoc.ManifestMeta{ID: "dual-1", Title: "Old Version"}}
	if err := client.Set(ctx, "test:deck:dual-1:data", rawLegacyManifest(t, oldDeck), 0).Err(); err != nil {
		t.Fatalf("seed legacy blob: %v", err)
	}

	newDeck := deckdoc.Manifest{Meta: deckdoc.ManifestMeta{ID: "dual-1", Title: "New Version"}}
	if _, err := api.SaveDeck(ctx, newDeck, SaveOptions{Legacy: false}); err != nil {
		t.Fatalf("SaveDeck: %v", err)
	}

	got, err := api.GetDeck(ctx, "dual-1", false)
	if err != nil {
		t.Fatalf("GetDeck: %v", err)
	}
	if got.Meta.Title != "New Version" {
		t.Fatalf("Title = %q, want New Version", got.Meta.Title)
	}

	briefs, err := api.ListDecks(ctx)
	if err != nil {
		t.Fatalf("ListDecks: %v", err)
	}
	if len(briefs) != 1 || briefs[0].Title != "New Version" {
		t.Fatalf("expected single New Version brief, got %+v", briefs)
	}
}

func TestSaveDeckGeneratesThumbnail(t *testing.T) {
	api, done := newTestAPI(t)
	defer done()
	ctx := context.Background()

	if _, err := api.SaveDeck(ctx, sampleLegacy("d5"), SaveOptions{Legacy: true}); err != nil {
		t.Fatalf("SaveDeck: %v", err)
	}

	thumb, err := api.GetDeckThumbnail(ctx, "d5")
	if err != nil {
		t.Fatalf("GetDeckThumbnail: %v", err)
	}
	if len(thumb) == 0 {
		t.Fatalf("expected non-empty thumbnail bytes")
	}
}

func TestSaveDeckSkipsThumbnailWhenDisabled(t *testing.T) {
	api, done := newTestAPI(t)
	defer done()
	api.ThumbnailsDisabled = true
	ctx := context.Background()

	if _, err := api.SaveDeck(ctx, sampleLegacy("d6"), SaveOptions{Legacy: true}); err != nil {
		t.Fatalf("SaveDeck: %v", err)
	}

	_, err := api.GetDeckThumbnail(ctx, "d6")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for thumbnail when disabled, got %v", err)
	}
}
