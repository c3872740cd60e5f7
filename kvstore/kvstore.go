// Package kvstore provides the redis-backed key-space conventions shared by
// the asset store, document repository and search index: a namespace
// prefix, a cursor-based key enumerator, and a probe helper used to detect
// optional server-side capabilities (such as a secondary-index module)
// without pinning a mode on a transient error.
//
// Components in this module talk to *redis.Client directly rather than
// through an abstraction layer, the same way the teacher registry's own
// redis cache provider does: the backend is a concrete design decision, not
// a pluggable driver, so there is nothing to gain by hiding it.
package kvstore

import (
	"context"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"
)

// ErrStorage wraps any transport or transactional failure surfaced by the
// underlying redis client.
var ErrStorage = errors.New("kvstore: storage error")

// Namespace scopes a redis client under an optional key prefix so that
// multiple deckstore deployments, or a test and a production instance, can
// share a single redis database without colliding.
type Namespace struct {
	Client *redis.Client
	Prefix string
}

// New returns a Namespace over client. prefix may be empty.
func New(client *redis.Client, prefix string) *Namespace {
	return &Namespace{Client: client, Prefix: prefix}
}

// Key joins parts with ':' and prepends the namespace prefix, e.g.
// Key("doc", id, "manifest") -> "<prefix>doc:<id>:manifest".
func (n *Namespace) Key(parts ...string) string {
	return n.Prefix + strings.Join(parts, ":")
}

// Pattern prefixes a SCAN match pattern with the namespace prefix.
func (n *Namespace) Pattern(pattern string) string {
	return n.Prefix + pattern
}

// Unprefix strips the namespace prefix from a key returned by SCAN, leaving
// the caller-facing key shape.
func (n *Namespace) Unprefix(key string) string {
	return strings.TrimPrefix(key, n.Prefix)
}

// ScanKeys iterates every key matching pattern (already namespace-scoped via
// Pattern) and invokes fn with the namespace-stripped key. It is the
// fallback enumeration strategy used by both the search index and deck
// listing: a plain SCAN cursor loop, never KEYS, so it never blocks the
// server on a large keyspace.
func (n *Namespace) ScanKeys(ctx context.Context, pattern string, fn func(key string) error) error {
	var cursor uint64
	for {
		keys, next, err := n.Client.Scan(ctx, cursor, pattern, 256).Result()
		if err != nil {
			return errors.Join(ErrStorage, err)
		}
		for _, k := range keys {
			if err := fn(n.Unprefix(k)); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return nil
}

// ProbeCommand issues a benign, side-effect-free command and reports whether
// the server supports it. An "unknown command"-class error pins the result
// to false (the optional capability is absent); any other error is
// transient and is returned unmodified so the caller does not pin on it.
func ProbeCommand(ctx context.Context, client *redis.Client, args ...interface{}) (bool, error) {
	err := client.Do(ctx, args...).Err()
	if err == nil || err == redis.Nil {
		return true, nil
	}
	if isUnknownCommand(err) {
		return false, nil
	}
	return false, err
}

func isUnknownCommand(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "unknown command") || strings.Contains(msg, "ERR unknown")
}
