// Package convert is the heart of the system (§4.3): the bidirectional
// transform between a legacy, self-contained deck and a manifest whose
// binaries have been externalized into the asset store and replaced by
// asset:// references.
//
// It is grounded on the teacher registry's schema migration idiom — an old
// self-describing manifest (schema1, embedded image history) converted on
// read into the new, reference-based form (schema2, layers addressed by
// digest) — generalized here from container layers to arbitrary
// asset-bearing slots in a presentation document, and on registry/storage's
// blobwriter commit-then-link sequence for "hash the bytes, store once,
// rewrite the reference in place".
package convert

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/opendeck/deckstore/assetstore"
	"github.com/opendeck/deckstore/deckdoc"
	"github.com/opendeck/deckstore/hashref"
	"github.com/opendeck/deckstore/internal/uuid"
)

// maxConcurrentAssetPuts bounds how many embedded binaries a single
// DeckToManifest call ingests at once, the same way the teacher's manifest
// put handler bounds concurrent blob writes rather than firing one
// goroutine per layer unconditionally.
const maxConcurrentAssetPuts = 8

// Re-exported so callers only need to import this package for the
// conversion failure taxonomy in spec §4.3.3.
var (
	ErrBadReference   = hashref.ErrBadReference
	ErrAssetPutFailed = errors.New("convert: asset ingestion failed")
)

// ErrCyclicGroup is returned, with the offending group id, when a group
// element nests inside itself.
type ErrCyclicGroup = deckdoc.ErrCyclicGroup

// Clock supplies the wall-clock source stamped onto schema.migratedAt.
type Clock func() time.Time

// Converter holds the asset store used to ingest embedded binaries
// encountered during a legacy-to-manifest conversion.
type Converter struct {
	assets *assetstore.Store
	clock  Clock
}

// New returns a Converter that uploads embedded binaries to assets.
func New(assets *assetstore.Store, clock Clock) *Converter {
	if clock == nil {
		clock = time.Now
	}
	return &Converter{assets: assets, clock: clock}
}

// DeckToManifest implements §4.3.1: it deep-clones legacy, stamps the
// schema, walks every asset-bearing position promoting embedded data URIs
// to asset:// references (leaving existing references and external
// URLs/identifiers untouched), and populates the root assets registry.
//
// The traversal order and hashing are fixed, so DeckToManifest is
// deterministic for a given input: the same legacy deck always yields the
// same manifest, aside from schema.migratedAt and the ids backfillIDs
// assigns to slides and elements that arrived without one (P7, P8 in
// spec §8).
func (c *Converter) DeckToManifest(ctx context.Context, legacy deckdoc.LegacyDeck) (deckdoc.Manifest, error) {
	clone, err := legacy.DeepClone()
	if err != nil {
		return deckdoc.Manifest{}, err
	}

	clone.Schema.Version = deckdoc.CurrentSchemaVersion
	clone.Schema.MigratedAt = c.clock().UTC().Format(time.RFC3339Nano)

	backfillIDs(&clone)

	collected := make(map[string]bool)
	var toIngest []ingestTarget

	walkErr := deckdoc.Walk(&clone, func(pos *string) error {
		value := *pos
		switch {
		case value == "":
		case hashref.IsReference(value):
			collected[value] = true
		case strings.HasPrefix(value, "asset://"):
			return fmt.Errorf("%w: %q", ErrBadReference, value)
		default:
			if mimeType, payload, ok := parseDataURI(value); ok {
				toIngest = append(toIngest, ingestTarget{pos: pos, mimeType: mimeType, payload: payload})
			}
			// HTTP(S) URL, stock identifier, or any other external string:
			// a legitimate external reference, left untouched (§4.3.1 step 4).
		}
		return nil
	})
	if walkErr != nil {
		var cyc deckdoc.ErrCyclicGroup
		if errors.As(walkErr, &cyc) {
			return deckdoc.Manifest{}, cyc
		}
		return deckdoc.Manifest{}, walkErr
	}

	if err := c.ingestAll(ctx, toIngest, collected); err != nil {
		return deckdoc.Manifest{}, err
	}

	assets := make(map[string]string, len(collected))
	for ref := range collected {
		assets[ref] = ref
	}
	clone.Assets = assets

	return clone, nil
}

// ingestTarget is one embedded-data-URI slot queued for upload to the asset
// store; pos is rewritten in place once the upload completes.
type ingestTarget struct {
	pos      *string
	mimeType string
	payload  []byte
}

// ingestAll uploads every queued embedded binary, up to
// maxConcurrentAssetPuts at a time. Each target owns its own *string slot,
// so writing the resulting reference back needs no synchronization; only
// the shared collected set does.
func (c *Converter) ingestAll(ctx context.Context, targets []ingestTarget, collected map[string]bool) error {
	if len(targets) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, maxConcurrentAssetPuts)
	var mu sync.Mutex

	for _, t := range targets {
		t := t
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
			case <-gctx.Done():
				return gctx.Err()
			}
			defer func() { <-sem }()

			h, err := c.assets.Put(gctx, t.payload, assetstore.PartialInfo{MimeType: t.mimeType})
			if err != nil {
				return fmt.Errorf("%w: %v", ErrAssetPutFailed, err)
			}
			ref := hashref.MakeReference(h)
			*t.pos = ref

			mu.Lock()
			collected[ref] = true
			mu.Unlock()
			return nil
		})
	}

	return g.Wait()
}

// backfillIDs assigns a time-ordered id to every slide and element that
// arrived without one, so a legacy deck authored by an older client still
// converts into a manifest whose tree is fully addressable.
func backfillIDs(m *deckdoc.Manifest) {
	for si := range m.Slides {
		s := &m.Slides[si]
		if s.ID == "" {
			s.ID = uuid.NewString()
		}
		backfillElementIDs(s.Elements)
		for li := range s.Layers {
			backfillElementIDs(s.Layers[li].Elements)
		}
	}
}

func backfillElementIDs(elements []deckdoc.Element) {
	for i := range elements {
		e := &elements[i]
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if len(e.Children) > 0 {
			backfillElementIDs(e.Children)
		}
	}
}

// ManifestOptions controls ManifestToDeck's output shape.
type ManifestOptions struct {
	// Inline, when true, expands every asset:// reference back into an
	// embedded data URI by reading the referenced bytes from the asset
	// store (§4.3.2, "inline" mode). When false, references are left as
	// asset:// strings (the "linked" mode a live server normally serves).
	Inline bool
}

// ErrAssetMissing is returned by ManifestToDeck in inline mode when a
// manifest references a hash that the asset store no longer has.
var ErrAssetMissing = errors.New("convert: referenced asset not found")

// ManifestToDeck implements §4.3.2: the inverse of DeckToManifest. In linked
// mode (the default) it is a structural deep-clone with schema untouched;
// in inline mode every asset:// reference is resolved back to a data URI,
// so the result is fit for an old client expecting the legacy, self
// contained shape.
func (c *Converter) ManifestToDeck(ctx context.Context, m deckdoc.Manifest, opts ManifestOptions) (deckdoc.LegacyDeck, error) {
	clone, err := m.DeepClone()
	if err != nil {
		return deckdoc.Manifest{}, err
	}

	if !opts.Inline {
		return clone, nil
	}

	walkErr := deckdoc.Walk(&clone, func(pos *string) error {
		return c.inlineSlot(ctx, pos)
	})
	if walkErr != nil {
		var cyc deckdoc.ErrCyclicGroup
		if errors.As(walkErr, &cyc) {
			return deckdoc.Manifest{}, cyc
		}
		return deckdoc.Manifest{}, walkErr
	}

	return clone, nil
}

func (c *Converter) inlineSlot(ctx context.Context, pos *string) error {
	value := *pos
	if value == "" || !hashref.IsReference(value) {
		return nil
	}

	h, err := hashref.ExtractHash(value)
	if err != nil {
		return err
	}

	b, ok, err := c.assets.Get(ctx, h)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrAssetMissing, value)
	}

	info, ok, err := c.assets.Info(ctx, h)
	if err != nil {
		return err
	}
	mimeType := deckdoc.DefaultMimeType
	if ok && info.MimeType != "" {
		mimeType = info.MimeType
	}

	*pos = buildDataURI(mimeType, b)
	return nil
}

func buildDataURI(mimeType string, payload []byte) string {
	return dataURIPrefix + mimeType + ";base64," + base64.StdEncoding.EncodeToString(payload)
}

const dataURIPrefix = "data:"

// parseDataURI decodes a "data:<mime>;base64,<payload>" string. It returns
// ok=false for anything else, including malformed data URIs, which are
// simply left alone by DeckToManifest rather than treated as an error — only
// a string that looks like an AssetReference but fails the grammar is an
// error (ErrBadReference), which DeckToManifest raises itself, never this
// parser.
func parseDataURI(s string) (mimeType string, payload []byte, ok bool) {
	if !strings.HasPrefix(s, dataURIPrefix) {
		return "", nil, false
	}
	rest := s[len(dataURIPrefix):]

	comma := strings.IndexByte(rest, ',')
	if comma < 0 {
		return "", nil, false
	}
	header, encoded := rest[:comma], rest[comma+1:]

	if !strings.HasSuffix(header, ";base64") {
		return "", nil, false
	}
	mimeType = strings.TrimSuffix(header, ";base64")
	if mimeType == "" {
		mimeType = deckdoc.DefaultMimeType
	}

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", nil, false
	}
	return mimeType, decoded, true
}
