// Package search implements the deck search index (§4.5): a query over
// document metadata (tags, owner, visibress, date range, free-text title)
// that transparently uses a server-side secondary index when available and
// falls back to a client-side SCAN-and-filter otherwise.
//
// It is grounded on the teacher registry's catalog.go (Repositories/
// Enumerate: a deterministic, paginated walk used to build up a listing)
// generalized from a filesystem path walk to a redis SCAN, and on
// kvstore.ProbeCommand's probe-once-and-pin pattern for telling a genuinely
// unsupported server command apart from a transient error.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/opendeck/deckstore/deckdoc"
	"github.com/opendeck/deckstore/kvstore"
)

// ErrStorage wraps any transport failure from the underlying redis client.
var ErrStorage = kvstore.ErrStorage

// ErrIndexUnavailable is returned by CreateIndex/DropIndex/IndexInfo when
// the server has no secondary-index module loaded. Search itself never
// returns this error: it silently falls back to SCAN instead (§4.5
// "degraded mode is not a failure").
var ErrIndexUnavailable = errors.New("search: secondary index module not available")

// record is the flattened, searchable projection of a document's metadata,
// stored as a redis hash under recordKey so it can be indexed by a
// server-side module or scanned and filtered by this package directly.
type record struct {
	ID        string
	Title     string
	Tags      []string
	OwnerID   string
	Public    bool
	Slug      string
	CreatedAt string
	UpdatedAt string
}

// Index maintains the searchable projection for a document repository's
// metadata and answers Query against it.
type Index struct {
	ns *kvstore.Namespace

	probeOnce sync.Once
	indexed   bool
	probeErr  error
}

// New returns an Index scoped to ns.
func New(ns *kvstore.Namespace) *Index {
	return &Index{ns: ns}
}

func (ix *Index) recordKey(id string) string { return ix.ns.Key("search", "doc", id) }
func (ix *Index) scanPattern() string        { return ix.ns.Pattern("search:doc:*") }

const indexName = "deckstore-meta-idx"

// capability probes the server once for the FT.* secondary-index command
// family (RediSearch), caching the result for the lifetime of the Index
// (§4.5 "probe once, pin the mode"). A transient probe failure is not
// cached, so the next call retries rather than wrongly pinning to SCAN
// forever.
func (ix *Index) capability(ctx context.Context) (bool, error) {
	ix.probeOnce.Do(func() {
		ix.indexed, ix.probeErr = kvstore.ProbeCommand(ctx, ix.ns.Client, "FT._LIST")
	})
	if ix.probeErr != nil {
		ix.probeOnce = sync.Once{}
		return false, ix.probeErr
	}
	return ix.indexed, nil
}

// Index writes (or overwrites) the searchable projection of meta. Callers
// invoke this after every docstore.SaveManifest so the index never lags a
// save by more than the two calls' own ordering (§4.5 "index is
// best-effort fresh, not transactional with the manifest write").
func (ix *Index) Index(ctx context.Context, meta deckdoc.ManifestMeta) error {
	if meta.ID == "" {
		return errors.New("search: meta.id is required")
	}
	rec := record{
		ID:        meta.ID,
		Title:     meta.Title,
		Tags:      meta.Tags,
		OwnerID:   meta.OwnerID,
		Public:    meta.Public,
		Slug:      meta.Slug,
		CreatedAt: meta.CreatedAt,
		UpdatedAt: meta.UpdatedAt,
	}
	fields, err := rec.hashFields()
	if err != nil {
		return err
	}
	if err := ix.ns.Client.HSet(ctx, ix.recordKey(meta.ID), fields).Err(); err != nil {
		return errors.Join(ErrStorage, err)
	}
	return nil
}

// Remove deletes id's searchable projection. Callers invoke this alongside
// docstore.Delete.
func (ix *Index) Remove(ctx context.Context, id string) error {
	if err := ix.ns.Client.Del(ctx, ix.recordKey(id)).Err(); err != nil {
		return errors.Join(ErrStorage, err)
	}
	return nil
}

func (r record) hashFields() (map[string]interface{}, error) {
	tagsJSON, err := json.Marshal(r.Tags)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"id":        r.ID,
		"title":     r.Title,
		"tags":      string(tagsJSON),
		"ownerId":   r.OwnerID,
		"public":    r.Public,
		"slug":      r.Slug,
		"createdAt": r.CreatedAt,
		"updatedAt": r.UpdatedAt,
	}, nil
}

func recordFromHash(h map[string]string) record {
	var tags []string
	_ = json.Unmarshal([]byte(h["tags"]), &tags)
	return record{
		ID:        h["id"],
		Title:     h["title"],
		Tags:      tags,
		OwnerID:   h["ownerId"],
		Public:    h["public"] == "1" || h["public"] == "true",
		Slug:      h["slug"],
		CreatedAt: h["createdAt"],
		UpdatedAt: h["updatedAt"],
	}
}

// Query describes a search over the index (§4.5 step 1). Tags are matched
// with AND semantics: a document must carry every listed tag. Date bounds
// are inclusive on both ends. An empty SortBy defaults to "updatedAt"
// descending.
type Query struct {
	Tags          []string
	OwnerID       string
	PublicOnly    bool
	TitleContains string
	CreatedAfter  string
	CreatedBefore string
	UpdatedAfter  string
	UpdatedBefore string

	SortBy  string // "updatedAt" (default), "createdAt", "title"
	SortAsc bool

	Offset int
	Limit  int
}

// Result is a page of matching documents plus the total match count before
// pagination, so callers can render "n of m" without a second round trip.
type Result struct {
	Briefs []deckdoc.Brief
	Total  int
}

// Search runs q. It transparently uses the server-side index when the
// capability probe pins it available; otherwise it scans every record in
// the namespace and filters client-side (§4.5 step 4, P11). The scan path
// applies every field of q. The indexed path applies only the tag, owner,
// public and title filters plus the offset and limit: it ignores the
// created/updated date bounds and SortBy/SortAsc, and matches the title
// by term prefix rather than by substring, so the two paths can return
// different results for a query that uses those fields.
func (ix *Index) Search(ctx context.Context, q Query) (Result, error) {
	indexed, err := ix.capability(ctx)
	if err != nil {
		return Result{}, err
	}
	if indexed {
		res, ftErr := ix.searchIndexed(ctx, q)
		if ftErr == nil {
			return res, nil
		}
		// The probe said FT.* exists but the query itself failed (e.g. the
		// index was dropped out from under us): fall back for this call
		// without re-pinning the capability to false.
	}
	return ix.searchScan(ctx, q)
}

// searchIndexed issues FT.SEARCH against indexName. Parsing RediSearch's
// reply shape is intentionally minimal: on any unexpected reply this
// returns an error so Search falls back to the scan path rather than
// guessing.
func (ix *Index) searchIndexed(ctx context.Context, q Query) (Result, error) {
	args := []interface{}{"FT.SEARCH", indexName, ftQueryString(q), "LIMIT", q.Offset, ftLimit(q)}
	reply, err := ix.ns.Client.Do(ctx, args...).Result()
	if err != nil {
		return Result{}, err
	}
	items, ok := reply.([]interface{})
	if !ok || len(items) == 0 {
		return Result{}, errors.New("search: unexpected FT.SEARCH reply")
	}
	total, ok := items[0].(int64)
	if !ok {
		return Result{}, errors.New("search: unexpected FT.SEARCH total count")
	}

	var recs []record
	for i := 1; i+1 < len(items); i += 2 {
		fieldsRaw, ok := items[i+1].([]interface{})
		if !ok {
			return Result{}, errors.New("search: unexpected FT.SEARCH fields reply")
		}
		h := make(map[string]string, len(fieldsRaw)/2)
		for j := 0; j+1 < len(fieldsRaw); j += 2 {
			k, _ := fieldsRaw[j].(string)
			v, _ := fieldsRaw[j+1].(string)
			h[k] = v
		}
		recs = append(recs, recordFromHash(h))
	}

	return Result{Briefs: toBriefs(recs), Total: int(total)}, nil
}

func ftQueryString(q Query) string {
	var parts []string
	for _, tag := range q.Tags {
		parts = append(parts, "@tags:{"+escapeTag(tag)+"}")
	}
	if q.OwnerID != "" {
		parts = append(parts, "@ownerId:{"+escapeTag(q.OwnerID)+"}")
	}
	if q.PublicOnly {
		parts = append(parts, "@public:{true}")
	}
	if q.TitleContains != "" {
		parts = append(parts, "@title:"+q.TitleContains+"*")
	}
	if len(parts) == 0 {
		return "*"
	}
	return strings.Join(parts, " ")
}

func escapeTag(s string) string {
	replacer := strings.NewReplacer(" ", "\\ ", ",", "\\,", "{", "\\{", "}", "\\}")
	return replacer.Replace(s)
}

// ftLimit applies §4.5's SearchQuery.limit contract: default 20, and a
// value over 100 is coerced down rather than rejected (§7 ErrInvalidQuery:
// "search with limit>100 is coerced to 100, not rejected").
func ftLimit(q Query) int {
	switch {
	case q.Limit <= 0:
		return 20
	case q.Limit > 100:
		return 100
	default:
		return q.Limit
	}
}

// searchScan enumerates every indexed record in the namespace (never KEYS)
// and applies q client-side (§4.5 "degraded mode").
func (ix *Index) searchScan(ctx context.Context, q Query) (Result, error) {
	var matched []record

	err := ix.ns.ScanKeys(ctx, ix.scanPattern(), func(key string) error {
		h, err := ix.ns.Client.HGetAll(ctx, ix.ns.Prefix+key).Result()
		if err != nil {
			return errors.Join(ErrStorage, err)
		}
		rec := recordFromHash(h)
		if matches(rec, q) {
			matched = append(matched, rec)
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	sortRecords(matched, q)

	total := len(matched)
	limit := ftLimit(q)
	start := q.Offset
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	return Result{Briefs: toBriefs(matched[start:end]), Total: total}, nil
}

func matches(rec record, q Query) bool {
	for _, tag := range q.Tags {
		if !containsString(rec.Tags, tag) {
			return false
		}
	}
	if q.OwnerID != "" && rec.OwnerID != q.OwnerID {
		return false
	}
	if q.PublicOnly && !rec.Public {
		return false
	}
	if q.TitleContains != "" && !strings.Contains(strings.ToLower(rec.Title), strings.ToLower(q.TitleContains)) {
		return false
	}
	if q.CreatedAfter != "" && rec.CreatedAt < q.CreatedAfter {
		return false
	}
	if q.CreatedBefore != "" && rec.CreatedAt > q.CreatedBefore {
		return false
	}
	if q.UpdatedAfter != "" && rec.UpdatedAt < q.UpdatedAfter {
		return false
	}
	if q.UpdatedBefore != "" && rec.UpdatedAt > q.UpdatedBefore {
		return false
	}
	return true
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func sortRecords(recs []record, q Query) {
	sortBy := q.SortBy
	if sortBy == "" {
		sortBy = "updatedAt"
	}
	less := func(i, j int) bool {
		switch sortBy {
		case "createdAt":
			return recs[i].CreatedAt < recs[j].CreatedAt
		case "title":
			return recs[i].Title < recs[j].Title
		default:
			return recs[i].UpdatedAt < recs[j].UpdatedAt
		}
	}
	if q.SortAsc {
		sort.SliceStable(recs, less)
	} else {
		sort.SliceStable(recs, func(i, j int) bool { return less(j, i) })
	}
}

func toBriefs(recs []record) []deckdoc.Brief {
	briefs := make([]deckdoc.Brief, 0, len(recs))
	for _, r := range recs {
		briefs = append(briefs, deckdoc.Brief{
			ID:        r.ID,
			Title:     r.Title,
			UpdatedAt: r.UpdatedAt,
			OwnerID:   r.OwnerID,
			Slug:      r.Slug,
			CreatedAt: r.CreatedAt,
		})
	}
	return briefs
}

// CreateIndex creates the server-side FT index over the hash records this
// package maintains. It returns ErrIndexUnavailable when the server has no
// secondary-index module; Search still works via SCAN.
func (ix *Index) CreateIndex(ctx context.Context) error {
	indexed, err := ix.capability(ctx)
	if err != nil {
		return err
	}
	if !indexed {
		return ErrIndexUnavailable
	}
	args := []interface{}{
		"FT.CREATE", indexName, "ON", "HASH", "PREFIX", "1", ix.ns.Pattern("search:doc:"),
		"SCHEMA",
		"title", "TEXT",
		"tags", "TAG",
		"ownerId", "TAG",
		"public", "TAG",
		"slug", "TAG",
		"createdAt", "TEXT", "SORTABLE",
		"updatedAt", "TEXT", "SORTABLE",
	}
	if err := ix.ns.Client.Do(ctx, args...).Err(); err != nil {
		return errors.Join(ErrStorage, err)
	}
	return nil
}

// DropIndex removes the server-side FT index, if any.
func (ix *Index) DropIndex(ctx context.Context) error {
	indexed, err := ix.capability(ctx)
	if err != nil {
		return err
	}
	if !indexed {
		return ErrIndexUnavailable
	}
	if err := ix.ns.Client.Do(ctx, "FT.DROPINDEX", indexName).Err(); err != nil {
		return errors.Join(ErrStorage, err)
	}
	return nil
}

// IndexInfo returns the raw FT.INFO reply for diagnostics and tests.
func (ix *Index) IndexInfo(ctx context.Context) (map[string]string, error) {
	indexed, err := ix.capability(ctx)
	if err != nil {
		return nil, err
	}
	if !indexed {
		return nil, ErrIndexUnavailable
	}
	reply, err := ix.ns.Client.Do(ctx, "FT.INFO", indexName).Result()
	if err != nil {
		return nil, errors.Join(ErrStorage, err)
	}
	items, ok := reply.([]interface{})
	if !ok {
		return nil, errors.New("search: unexpected FT.INFO reply")
	}
	info := make(map[string]string, len(items)/2)
	for i := 0; i+1 < len(items); i += 2 {
		k, _ := items[i].(string)
		switch v := items[i+1].(type) {
		case string:
			info[k] = v
		case int64:
			info[k] = strconv.FormatInt(v, 10)
		}
	}
	return info, nil
}

// ReindexAll rebuilds every document's searchable projection from source,
// for use after a bulk migration or a suspected index/document drift
// (§4.5 "repair path"). list yields every document's current metadata.
// ReindexAll is idempotent and returns the number of documents it
// (re)indexed, per §4.5's "ReindexAll() → int".
func (ix *Index) ReindexAll(ctx context.Context, list func(func(deckdoc.ManifestMeta) error) error) (int, error) {
	n := 0
	err := list(func(meta deckdoc.ManifestMeta) error {
		if err := ix.Index(ctx, meta); err != nil {
			return err
		}
		n++
		return nil
	})
	return n, err
}
