package main

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/opendeck/deckstore/assetstore"
	"github.com/opendeck/deckstore/convert"
	"github.com/opendeck/deckstore/deckapi"
	"github.com/opendeck/deckstore/deckdoc"
	"github.com/opendeck/deckstore/docstore"
	"github.com/opendeck/deckstore/kvstore"
	"github.com/opendeck/deckstore/legacystore"
	"github.com/opendeck/deckstore/search"
	"github.com/opendeck/deckstore/thumbnail"
)

func newTestAPI(t *testing.T) (*deckapi.API, *redis.Client, func()) {
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

	api := deckapi.New(assets, docs, legacy, idx, conv, renderer, false)
	return api, client, mr.Close
}

func seedLegacyBlob(t *testing.T, client *redis.Client, id string) {
	t.Helper()
	deck := deckdoc.Manifest{
		Meta: deckdoc.ManifestMeta{ID: id, Title: "Demo " + id},
		Slides: []deckdoc.Slide{
			{ID: "s1", Elements: []deckdoc.Element{{ID: "e1", Type: "text"}}},
		},
	}
	raw, err := json.Marshal(deck)
	if err != nil {
		t.Fatalf("json.Marshal: %v", err)
	}
	if err := client.Set(context.Background(), "test:deck:"+id+":data", raw, 0).Err(); err != nil {
		t.Fatalf("seed legacy blob: %v", err)
	}
}

func TestRunMigrationConvertsLegacyBlobs(t *testing.T) {
	api, client, done := newTestAPI(t)
	defer done()
	ctx := context.Background()

	seedLegacyBlob(t, client, "d1")
	seedLegacyBlob(t, client, "d2")

	converted, failed, err := runMigration(ctx, api, false)
	if err != nil {
		t.Fatalf("runMigration: %v", err)
	}
	if converted != 2 || failed != 0 {
		t.Fatalf("converted=%d failed=%d, want 2/0", converted, failed)
	}

	if _, ok, err := api.Docs.GetManifest(ctx, "d1"); err != nil || !ok {
		t.Fatalf("expected d1 to have a saved manifest: ok=%v err=%v", ok, err)
	}

	stillLegacy, err := api.Legacy.Exists(ctx, "d1")
	if err != nil {
		t.Fatalf("Legacy.Exists: %v", err)
	}
	if !stillLegacy {
		t.Fatalf("non-destructive migration must leave the legacy blob in place")
	}
}

func TestRunMigrationDeletesLegacyWhenRequested(t *testing.T) {
	api, client, done := newTestAPI(t)
	defer done()
	ctx := context.Background()

	seedLegacyBlob(t, client, "d1")

	converted, failed, err := runMigration(ctx, api, true)
	if err != nil {
		t.Fatalf("runMigration: %v", err)
	}
	if converted != 1 || failed != 0 {
		t.Fatalf("converted=%d failed=%d, want 1/0", converted, failed)
	}

	stillLegacy, err := api.Legacy.Exists(ctx, "d1")
	if err != nil {
		t.Fatalf("Legacy.Exists: %v", err)
	}
	if stillLegacy {
		t.Fatalf("expected legacy blob to be removed after --delete-legacy migration")
	}
}

func TestRunMigrationNoLegacyStoreIsNoop(t *testing.T) {
	api, _, done := newTestAPI(t)
	defer done()
	api.Legacy = nil

	converted, failed, err := runMigration(context.Background(), api, false)
	if err != nil {
		t.Fatalf("runMigration: %v", err)
	}
	if converted != 0 || failed != 0 {
		t.Fatalf("converted=%d failed=%d, want 0/0", converted, failed)
	}
}
