// Package docstore implements the document repository (§4.4): durable,
// atomic storage of a deck's manifest, projected metadata, and referenced
// asset set, keyed by document id.
//
// It is grounded on the teacher registry's manifeststore.go (Put/Get over a
// single logical document, metadata split from content so a list view never
// has to pay for the full payload) and on the same redis transaction idiom
// assetstore uses for its own multi-key writes: every SaveManifest commits
// manifest, meta, and assets together in one MULTI/EXEC so a reader never
// observes a manifest without its matching metadata.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/opendeck/deckstore/deckdoc"
	"github.com/opendeck/deckstore/hashref"
	"github.com/opendeck/deckstore/kvstore"
)

// ErrStorage wraps any transport failure from the underlying redis client.
var ErrStorage = kvstore.ErrStorage

// ErrMissingID is returned by SaveManifest when meta.id is empty.
var ErrMissingID = errors.New("docstore: manifest meta.id is required")

// ErrCorruptData is returned when a stored record fails to parse as JSON.
var ErrCorruptData = errors.New("docstore: corrupt document record")

// Clock supplies the wall-clock source used to stamp meta.createdAt and
// meta.updatedAt.
type Clock func() time.Time

// Repository stores decks keyed by document id.
type Repository struct {
	ns    *kvstore.Namespace
	clock Clock

	saves   *expvar.Int
	reads   *expvar.Int
	deletes *expvar.Int
}

// New returns a Repository scoped to ns. If clock is nil, time.Now is used.
func New(ns *kvstore.Namespace, clock Clock) *Repository {
	if clock == nil {
		clock = time.Now
	}
	return &Repository{
		ns:      ns,
		clock:   clock,
		saves:   new(expvar.Int),
		reads:   new(expvar.Int),
		deletes: new(expvar.Int),
	}
}

// Stats exposes the save/read/delete counters named in §4.4's observability
// hooks.
func (r *Repository) Stats() map[string]int64 {
	return map[string]int64{
		"saves":   r.saves.Value(),
		"reads":   r.reads.Value(),
		"deletes": r.deletes.Value(),
	}
}

func (r *Repository) manifestKey(id string) string { return r.ns.Key("doc", id, "manifest") }
func (r *Repository) metaKey(id string) string     { return r.ns.Key("doc", id, "meta") }
func (r *Repository) assetsKey(id string) string   { return r.ns.Key("doc", id, "assets") }
func (r *Repository) thumbKey(id string) string    { return r.ns.Key("doc", id, "thumb") }

// MetaListPattern matches every document's meta key, for the SCAN that
// deckapi's ListDecks runs over new-format documents.
func (r *Repository) MetaListPattern() string { return r.ns.Pattern("doc:*:meta") }

// ScanMeta enumerates every key matching pattern (already namespace-scoped,
// e.g. via MetaListPattern or legacystore.Store.DataListPattern) and invokes
// fn with the namespace-stripped key. Exposed so DeckAPI's dual-format
// ListDecks can share the same cursor-based SCAN the search index uses,
// without either package reaching into the other's redis client directly.
func (r *Repository) ScanMeta(ctx context.Context, pattern string, fn func(key string) error) error {
	return r.ns.ScanKeys(ctx, pattern, fn)
}

// IDFromMetaKey recovers a document id from an unprefixed key matched by
// MetaListPattern.
func IDFromMetaKey(key string) string {
	// key is "doc:<id>:meta"; id is never empty (SaveManifest rejects it),
	// and a straight slice between the two fixed delimiters keeps any ':'
	// inside the id intact.
	const prefix = "doc:"
	const suffix = ":meta"
	if len(key) <= len(prefix)+len(suffix) {
		return ""
	}
	return key[len(prefix) : len(key)-len(suffix)]
}

// SaveManifest persists m atomically: manifest, meta, and assets are
// written together in one transaction, so GetManifest never observes a
// manifest whose meta or assets lag behind (§4.4 step 2, P5).
//
// meta.createdAt is stamped only the first time a document is saved;
// meta.updatedAt is stamped on every save.
func (r *Repository) SaveManifest(ctx context.Context, m deckdoc.Manifest) error {
	id := m.Meta.ID
	if id == "" {
		return ErrMissingID
	}

	now := r.clock().UTC().Format(time.RFC3339Nano)
	existing, found, err := r.GetMeta(ctx, id)
	if err != nil {
		return err
	}
	if found && existing.CreatedAt != "" {
		m.Meta.CreatedAt = existing.CreatedAt
	} else if m.Meta.CreatedAt == "" {
		m.Meta.CreatedAt = now
	}
	m.Meta.UpdatedAt = now

	refs, err := deckdoc.CollectReferences(&m, hashref.IsReference)
	if err != nil {
		var cyc deckdoc.ErrCyclicGroup
		if errors.As(err, &cyc) {
			return cyc
		}
		return err
	}
	hashes := make([]interface{}, 0, len(refs))
	for ref := range refs {
		h, err := hashref.ExtractHash(ref)
		if err != nil {
			return err
		}
		hashes = append(hashes, string(h))
	}

	manifestJSON, err := json.Marshal(m)
	if err != nil {
		return err
	}
	metaJSON, err := json.Marshal(m.Meta)
	if err != nil {
		return err
	}

	// doc:<id>:assets is a redis SET of bare hashes (§4.4, §6 key layout),
	// not the manifest's own ref->ref registry; it is rebuilt on every save
	// by deleting then re-adding, same as the teacher's tag-index idiom of
	// dropping and repopulating a set key under one transaction.
	_, err = r.ns.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.manifestKey(id), manifestJSON, 0)
		pipe.Set(ctx, r.metaKey(id), metaJSON, 0)
		pipe.Del(ctx, r.assetsKey(id))
		if len(hashes) > 0 {
			pipe.SAdd(ctx, r.assetsKey(id), hashes...)
		}
		return nil
	})
	if err != nil {
		return errors.Join(ErrStorage, err)
	}

	r.saves.Add(1)
	return nil
}

// GetManifest returns the full manifest for id, or (zero, false, nil) if it
// does not exist.
func (r *Repository) GetManifest(ctx context.Context, id string) (deckdoc.Manifest, bool, error) {
	raw, err := r.ns.Client.Get(ctx, r.manifestKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return deckdoc.Manifest{}, false, nil
	}
	if err != nil {
		return deckdoc.Manifest{}, false, errors.Join(ErrStorage, err)
	}
	var m deckdoc.Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return deckdoc.Manifest{}, false, errors.Join(ErrCorruptData, err)
	}
	r.reads.Add(1)
	return m, true, nil
}

// GetMeta returns only the metadata projection for id, avoiding the cost of
// loading the full manifest (§4.4 "list views read meta only").
func (r *Repository) GetMeta(ctx context.Context, id string) (deckdoc.ManifestMeta, bool, error) {
	raw, err := r.ns.Client.Get(ctx, r.metaKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return deckdoc.ManifestMeta{}, false, nil
	}
	if err != nil {
		return deckdoc.ManifestMeta{}, false, errors.Join(ErrStorage, err)
	}
	var meta deckdoc.ManifestMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return deckdoc.ManifestMeta{}, false, errors.Join(ErrCorruptData, err)
	}
	return meta, true, nil
}

// GetAssets returns the set of bare content hashes referenced by id's
// manifest, as stamped by the most recent SaveManifest.
func (r *Repository) GetAssets(ctx context.Context, id string) (map[string]bool, bool, error) {
	members, err := r.ns.Client.SMembers(ctx, r.assetsKey(id)).Result()
	if err != nil {
		return nil, false, errors.Join(ErrStorage, err)
	}
	exists, err := r.Exists(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if !exists {
		return nil, false, nil
	}
	set := make(map[string]bool, len(members))
	for _, h := range members {
		set[h] = true
	}
	return set, true, nil
}

// Exists reports whether a document with this id has a saved manifest.
func (r *Repository) Exists(ctx context.Context, id string) (bool, error) {
	n, err := r.ns.Client.Exists(ctx, r.manifestKey(id)).Result()
	if err != nil {
		return false, errors.Join(ErrStorage, err)
	}
	return n > 0, nil
}

// Delete removes a document's manifest, meta, assets, and thumbnail
// together. It returns true if the document existed.
func (r *Repository) Delete(ctx context.Context, id string) (bool, error) {
	n, err := r.ns.Client.Del(ctx,
		r.manifestKey(id), r.metaKey(id), r.assetsKey(id), r.thumbKey(id),
	).Result()
	if err != nil {
		return false, errors.Join(ErrStorage, err)
	}
	if n > 0 {
		r.deletes.Add(1)
	}
	return n > 0, nil
}

// SaveThumbnail stores the rendered thumbnail bytes for id, independent of
// SaveManifest (§9 "thumbnails are derived, not part of the atomic write").
func (r *Repository) SaveThumbnail(ctx context.Context, id string, data []byte) error {
	if err := r.ns.Client.Set(ctx, r.thumbKey(id), data, 0).Err(); err != nil {
		return errors.Join(ErrStorage, err)
	}
	return nil
}

// GetThumbnail returns the stored thumbnail for id, or (nil, false, nil) if
// none has been rendered yet.
func (r *Repository) GetThumbnail(ctx context.Context, id string) ([]byte, bool, error) {
	b, err := r.ns.Client.Get(ctx, r.thumbKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Join(ErrStorage, err)
	}
	return b, true, nil
}
