// Package legacystore provides read and delete access to the pre-split
// "legacy deck" blobs at deck:<id>:data: the self-contained document form
// every deck was stored as before the asset-splitting manifest format
// existed (spec.md §3 "Legacy deck"). SaveDeck never writes this form
// again; it exists purely so DeckAPI's dual-format read path (§4.6) can
// keep serving documents nobody has migrated yet, and so DeleteDeck can
// clean up its companion keys.
//
// It is grounded on the teacher's manifeststore.go read path generalized
// the same way docstore is, minus the write half: legacy is a read-only
// migration source, not a second place new data ever lands.
package legacystore

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/opendeck/deckstore/deckdoc"
	"github.com/opendeck/deckstore/kvstore"
)

// ErrStorage wraps any transport failure from the underlying redis client.
var ErrStorage = kvstore.ErrStorage

// ErrCorruptData is returned when a stored legacy blob fails to parse as
// JSON (§4.6 "ErrCorruptData ... when the legacy blob fails to parse").
var ErrCorruptData = errors.New("legacystore: corrupt legacy deck blob")

// Store reads and removes legacy deck blobs.
type Store struct {
	ns *kvstore.Namespace
}

// New returns a Store scoped to ns.
func New(ns *kvstore.Namespace) *Store {
	return &Store{ns: ns}
}

func (s *Store) dataKey(id string) string    { return s.ns.Key("deck", id, "data") }
func (s *Store) historyKey(id string) string { return s.ns.Key("deck", id, "history") }
func (s *Store) metaKey(id string) string    { return s.ns.Key("deck", id, "meta") }

// DataListPattern matches every legacy blob's key, for enumeration
// alongside docstore's MetaListPattern (§4.6 ListDecks).
func (s *Store) DataListPattern() string { return s.ns.Pattern("deck:*:data") }

// IDFromDataKey recovers a document id from an unprefixed key matched by
// DataListPattern.
func IDFromDataKey(key string) string {
	const prefix = "deck:"
	const suffix = ":data"
	if len(key) <= len(prefix)+len(suffix) {
		return ""
	}
	return key[len(prefix) : len(key)-len(suffix)]
}

// Get returns the parsed legacy deck for id, or (zero, false, nil) if no
// legacy blob exists. A present-but-unparseable blob is reported as
// ErrCorruptData (§7), not as "not found".
func (s *Store) Get(ctx context.Context, id string) (deckdoc.LegacyDeck, bool, error) {
	raw, err := s.ns.Client.Get(ctx, s.dataKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return deckdoc.LegacyDeck{}, false, nil
	}
	if err != nil {
		return deckdoc.LegacyDeck{}, false, errors.Join(ErrStorage, err)
	}
	var deck deckdoc.LegacyDeck
	if err := json.Unmarshal(raw, &deck); err != nil {
		return deckdoc.LegacyDeck{}, false, errors.Join(ErrCorruptData, err)
	}
	return deck, true, nil
}

// Exists reports whether a legacy blob is present for id.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	n, err := s.ns.Client.Exists(ctx, s.dataKey(id)).Result()
	if err != nil {
		return false, errors.Join(ErrStorage, err)
	}
	return n > 0, nil
}

// Delete removes id's legacy blob and its companion keys (§4.6 DeleteDeck:
// "deck:<D>:data, deck:<D>:history, deck:<D>:meta (legacy companions)").
// The deprecated history key is deleted outright, never migrated (§9 Open
// Questions). It returns true if any of the three keys existed.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	n, err := s.ns.Client.Del(ctx, s.dataKey(id), s.historyKey(id), s.metaKey(id)).Result()
	if err != nil {
		return false, errors.Join(ErrStorage, err)
	}
	return n > 0, nil
}
