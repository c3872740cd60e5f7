// Package hashref provides the reference grammar used to point at assets
// from inside a manifest: content hashes and the asset://sha256:<hex> URI
// that wraps them.
//
// The hash itself is computed through opencontainers/go-digest rather than
// calling crypto/sha256 directly, the same library the teacher's
// manifest/* packages and registry/storage/cache/redis use to identify
// content by its digest — asset references are the same idea (an algorithm
// tag plus a hex-encoded sum) applied to arbitrary binary payloads instead
// of image layers.
package hashref

import (
	"errors"
	"regexp"

	"github.com/opencontainers/go-digest"
)

// ErrBadReference is returned when a string claims to be an AssetReference
// but fails the grammar in referencePattern.
var ErrBadReference = errors.New("hashref: malformed asset reference")

const refPrefix = "asset://sha256:"

var referencePattern = regexp.MustCompile(`^asset://sha256:[0-9a-f]{64}$`)

// Hash is a 32-byte SHA-256 digest, presented as 64 lowercase hex
// characters everywhere outside this package.
type Hash string

// HashBytes returns the SHA-256 digest of b as a lowercase hex Hash.
func HashBytes(b []byte) Hash {
	d := digest.FromBytes(b)
	return Hash(d.Encoded())
}

// String implements fmt.Stringer.
func (h Hash) String() string {
	return string(h)
}

// IsReference reports whether s matches the AssetReference grammar
// asset://sha256:<64 lowercase hex characters>.
func IsReference(s string) bool {
	return referencePattern.MatchString(s)
}

// MakeReference formats h as an AssetReference.
func MakeReference(h Hash) string {
	return refPrefix + string(h)
}

// ExtractHash parses an AssetReference back into its Hash. It returns
// ErrBadReference if ref does not match the grammar.
func ExtractHash(ref string) (Hash, error) {
	if !IsReference(ref) {
		return "", ErrBadReference
	}
	return Hash(ref[len(refPrefix):]), nil
}
