package docstore

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/opendeck/deckstore/deckdoc"
	"github.com/opendeck/deckstore/kvstore"
)

func newTestRepo(t *testing.T) (*Repository, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ns := kvstore.New(client, "test:")
	frozen := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return New(ns, func() time.Time { return frozen }), mr.Close
}

func sampleManifest(id string) deckdoc.Manifest {
	return deckdoc.Manifest{
		Schema: deckdoc.Schema{Version: deckdoc.CurrentSchemaVersion},
		Meta:   deckdoc.ManifestMeta{ID: id, Title: "Demo"},
		Slides: []deckdoc.Slide{
			{ID: "s1", Elements: []deckdoc.Element{
				{ID: "e1", Type: "image", Src: "asset://sha256:" + sampleHash()},
			}},
		},
	}
}

func sampleHash() string {
	return "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
}

func TestSaveAndGetManifestRoundTrip(t *testing.T) {
	repo, done := newTestRepo(t)
	defer done()
	ctx := context.Background()

	m := sampleManifest("d1")
	if err := repo.SaveManifest(ctx, m); err != nil {
		t.Fatalf("SaveManifest: %v", err)
	}

	got, ok, err := repo.GetManifest(ctx, "d1")
	if err != nil || !ok {
		t.Fatalf("GetManifest: ok=%v err=%v", ok, err)
	}
	if got.Meta.Title != "Demo" {
		t.Fatalf("Title = %q, want Demo", got.Meta.Title)
	}
	if got.Meta.CreatedAt == "" || got.Meta.UpdatedAt == "" {
		t.Fatalf("expected createdAt/updatedAt to be stamped, got %+v", got.Meta)
	}

	meta, ok, err := repo.GetMeta(ctx, "d1")
	if err != nil || !ok {
		t.Fatalf("GetMeta: ok=%v err=%v", ok, err)
	}
	if meta.Title != "Demo" {
		t.Fatalf("meta Title = %q, want Demo", meta.Title)
	}

	assets, ok, err := repo.GetAssets(ctx, "d1")
	if err != nil || !ok {
		t.Fatalf("GetAssets: ok=%v err=%v", ok, err)
	}
	if len(assets) != 1 {
		t.Fatalf("expected 1 asset reference, got %+v", assets)
	}
}

func TestSaveManifestRequiresID(t *testing.T) {
	repo, done := newTestRepo(t)
	defer done()

	err := repo.SaveManifest(context.Background(), deckdoc.Manifest{})
	if err != ErrMissingID {
		t.Fatalf("expected ErrMissingID, got %v", err)
	}
}

func TestSaveManifestPreservesCreatedAt(t *testing.T) {
	repo, done := newTestRepo(t)
	defer done()
	ctx := context.Background()

	m := sampleManifest("d2")
	if err := repo.SaveManifest(ctx, m); err != nil {
		t.Fatalf("first SaveManifest: %v", err)
	}
	first, _, _ := repo.GetMeta(ctx, "d2")

	m.Meta.Title = "Renamed"
	if err := repo.SaveManifest(ctx, m); err != nil {
		t.Fatalf("second SaveManifest: %v", err)
	}
	second, _, _ := repo.GetMeta(ctx, "d2")

	if second.CreatedAt != first.CreatedAt {
		t.Fatalf("createdAt changed across updates: %q != %q", first.CreatedAt, second.CreatedAt)
	}
	if second.Title != "Renamed" {
		t.Fatalf("Title = %q, want Renamed", second.Title)
	}
}

func TestGetManifestUnknownID(t *testing.T) {
	repo, done := newTestRepo(t)
	defer done()

	_, ok, err := repo.GetManifest(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetManifest: %v", err)
	}
	if ok {
		t.Fatalf("expected miss for unknown id")
	}
}

func TestDeleteRemovesAllKeys(t *testing.T) {
	repo, done := newTestRepo(t)
	defer done()
	ctx := context.Background()

	m := sampleManifest("d3")
	if err := repo.SaveManifest(ctx, m); err != nil {
		t.Fatalf("SaveManifest: %v", err)
	}
	if err := repo.SaveThumbnail(ctx, "d3", []byte("thumb bytes")); err != nil {
		t.Fatalf("SaveThumbnail: %v", err)
	}

	removed, err := repo.Delete(ctx, "d3")
	if err != nil || !removed {
		t.Fatalf("Delete: removed=%v err=%v", removed, err)
	}

	if exists, _ := repo.Exists(ctx, "d3"); exists {
		t.Fatalf("expected document gone after Delete")
	}
	if _, ok, _ := repo.GetThumbnail(ctx, "d3"); ok {
		t.Fatalf("expected thumbnail gone after Delete")
	}
}

func TestThumbnailLifecycle(t *testing.T) {
	repo, done := newTestRepo(t)
	defer done()
	ctx := context.Background()

	if _, ok, err := repo.GetThumbnail(ctx, "d4"); err != nil || ok {
		t.Fatalf("expected no thumbnail yet: ok=%v err=%v", ok, err)
	}

	if err := repo.SaveThumbnail(ctx, "d4", []byte("png bytes")); err != nil {
		t.Fatalf("SaveThumbnail: %v", err)
	}
	got, ok, err := repo.GetThumbnail(ctx, "d4")
	if err != nil || !ok {
		t.Fatalf("GetThumbnail: ok=%v err=%v", ok, err)
	}
	if string(got) != "png bytes" {
		t.Fatalf("GetThumbnail = %q, want %q", got, "png bytes")
	}
}

func TestMetaListPatternAndIDFromMetaKey(t *testing.T) {
	repo, done := newTestRepo(t)
	defer done()
	ctx := context.Background()

	ids := []string{"d5", "d6", "d7"}
	for _, id := range ids {
		if err := repo.SaveManifest(ctx, sampleManifest(id)); err != nil {
			t.Fatalf("SaveManifest(%s): %v", id, err)
		}
	}

	var found []string
	err := repo.ns.ScanKeys(ctx, repo.MetaListPattern(), func(key string) error {
		if id := IDFromMetaKey(key); id != "" {
			found = append(found, id)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ScanKeys: %v", err)
	}
	sort.Strings(found)
	sort.Strings(ids)
	if len(found) != len(ids) {
		t.Fatalf("found %v, want %v", found, ids)
	}
	for i := range ids {
		if found[i] != ids[i] {
			t.Fatalf("found %v, want %v", found, ids)
		}
	}
}
