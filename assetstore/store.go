// Package assetstore implements the content-addressed, deduplicating
// binary store (§4.2 of the specification): raw asset bytes and their
// AssetInfo sidecar, keyed by SHA-256 hash.
//
// It is grounded on the teacher registry's blob store (put() in
// blobstore.go: "If the content already exists, just return the digest")
// and its redis cache provider (registry/storage/cache/redis), which
// already stores descriptor fields in a redis hash and membership in a
// redis set using exactly the set-if-absent idiom this store needs for
// dedupe.
package assetstore

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

// AssetInfo is the record attached to every stored asset.
type AssetInfo = deckdoc.AssetInfo

// ErrStorage wraps any transport failure from the underlying redis client.
var ErrStorage = kvstore.ErrStorage

// Clock supplies the wall-clock source used to stamp AssetInfo.CreatedAt,
// injected so tests can freeze time (spec §9 "Timestamps").
type Clock func() time.Time

// Store is a content-addressed binary store with first-writer-wins dedupe.
type Store struct {
	ns    *kvstore.Namespace
	clock Clock

	puts    *expvar.Int
	dedupes *expvar.Int
}

// New returns a Store scoped to ns. If clock is nil, time.Now is used.
func New(ns *kvstore.Namespace, clock Clock) *Store {
	if clock == nil {
		clock = time.Now
	}
	return &Store{
		ns:      ns,
		clock:   clock,
		puts:    new(expvar.Int),
		dedupes: new(expvar.Int),
	}
}

// Stats exposes the dedupe/put counters named in §4.4's "Latency and count
// observability hooks". The counters are expvar.Int values owned by this
// Store and are not published to the global expvar registry; Stats is the
// only way to read them. No latency is measured.
func (s *Store) Stats() map[string]int64 {
	return map[string]int64{
		"puts":    s.puts.Value(),
		"dedupes": s.dedupes.Value(),
	}
}

func (s *Store) bytesKey(h hashref.Hash) string { return s.ns.Key("asset", string(h)) }
func (s *Store) infoKey(h hashref.Hash) string  { return s.ns.Key("asset", string(h), "info") }

// PartialInfo is the caller-supplied subset of AssetInfo used to seed a new
// asset's metadata: only MimeType and OriginalFilename are honored; the
// rest is derived by the store.
type PartialInfo struct {
	MimeType         string
	OriginalFilename string
}

// Put stores b under its content hash, returning the hash either way. If an
// asset with this hash already exists, Put returns immediately without
// touching the bytes or info keys (first-writer-wins, §4.2 step 2): a
// second Put of identical bytes with a different filename keeps the
// original filename.
func (s *Store) Put(ctx context.Context, b []byte, info PartialInfo) (hashref.Hash, error) {
	h := hashref.HashBytes(b)

	exists, err := s.ns.Client.Exists(ctx, s.bytesKey(h)).Result()
	if err != nil {
		return "", errors.Join(ErrStorage, err)
	}
	if exists > 0 {
		s.dedupes.Add(1)
		return h, nil
	}

	mimeType := info.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	record := AssetInfo{
		SHA256:           string(h),
		ByteSize:         uint64(len(b)),
		MimeType:         mimeType,
		OriginalFilename: info.OriginalFilename,
		CreatedAt:        s.clock().UTC().Format(time.RFC3339Nano),
	}
	recordJSON, err := json.Marshal(record)
	if err != nil {
		return "", err
	}

	// Both keys are written set-if-absent in one atomic pipeline, so a
	// concurrent Put of the same bytes converges on identical content
	// without a named lock (§4.2 "Concurrency contract").
	var bytesSet, infoSet *redis.BoolCmd
	_, err = s.ns.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		bytesSet = pipe.SetNX(ctx, s.bytesKey(h), b, 0)
		infoSet = pipe.SetNX(ctx, s.infoKey(h), recordJSON, 0)
		return nil
	})
	if err != nil {
		return "", errors.Join(ErrStorage, err)
	}

	if bytesSet.Val() {
		s.puts.Add(1)
	} else {
		// Another writer won the race between our Exists check and the
		// pipeline; that's fine, dedupe still applies.
		s.dedupes.Add(1)
	}
	// A lone-bytes-key-no-info situation (this writer set bytes but lost
	// the info race to nobody, since both are in the same pipeline) cannot
	// happen here; it is only a concern for non-atomic backends, per
	// §4.2's failure model, which a future non-pipelined backend would
	// need to repair on next Put of the same hash.
	_ = infoSet

	return h, nil
}

// Get returns the raw bytes for h, or (nil, false, nil) if unknown.
func (s *Store) Get(ctx context.Context, h hashref.Hash) ([]byte, bool, error) {
	b, err := s.ns.Client.Get(ctx, s.bytesKey(h)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Join(ErrStorage, err)
	}
	return b, true, nil
}

// Info returns the AssetInfo for h, or (zero, false, nil) if unknown.
func (s *Store) Info(ctx context.Context, h hashref.Hash) (AssetInfo, bool, error) {
	raw, err := s.ns.Client.Get(ctx, s.infoKey(h)).Bytes()
	if errors.Is(err, redis.Nil) {
		return AssetInfo{}, false, nil
	}
	if err != nil {
		return AssetInfo{}, false, errors.Join(ErrStorage, err)
	}
	var rec AssetInfo
	if err := json.Unmarshal(raw, &rec); err != nil {
		return AssetInfo{}, false, errors.Join(ErrCorruptData, err)
	}
	return rec, true, nil
}

// Exists reports whether h's bytes are present.
func (s *Store) Exists(ctx context.Context, h hashref.Hash) (bool, error) {
	n, err := s.ns.Client.Exists(ctx, s.bytesKey(h)).Result()
	if err != nil {
		return false, errors.Join(ErrStorage, err)
	}
	return n > 0, nil
}

// Delete atomically removes h's bytes and info. It returns true if either
// key existed. Intended only for explicit cleanup tools; the save pipeline
// never calls it (§3 "Lifecycles").
func (s *Store) Delete(ctx context.Context, h hashref.Hash) (bool, error) {
	n, err := s.ns.Client.Del(ctx, s.bytesKey(h), s.infoKey(h)).Result()
	if err != nil {
		return false, errors.Join(ErrStorage, err)
	}
	return n > 0, nil
}

// ErrCorruptData is returned when a stored info record fails to parse as
// JSON.
var ErrCorruptData = errors.New("assetstore: corrupt asset info")
