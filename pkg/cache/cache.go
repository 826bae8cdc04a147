// Package cache provides the response cache shared by registry clients.
//
// A [Cache] stores opaque byte payloads under string keys with an optional
// TTL. Four backends are available:
//
//   - [FileCache]: one file per key below a directory (the CLI default)
//   - [NullCache]: stores nothing; used by --no-cache and in tests
//   - [RedisCache]: a shared redis instance, for CI fleets
//   - [MongoCache]: a shared MongoDB collection with a TTL index
//
// Keys are built by a [Keyer] so that every backend sees the same layout.
//
// # Scoped keys
//
// When several projects share one redis or mongo backend, a [ScopedKeyer]
// puts the cache_namespace setting in front of every key so their entries
// never collide:
//
//	keyer := cache.NewScopedKeyer(nil, "acme-monorepo:")
//	key := keyer.InfoKey("https://rubygems.org/", "rack")
//	data, hit, err := c.Get(ctx, key)
//
// File caches normally need no prefix since each project may use its own
// directory.
package cache

import (
	"context"
	"time"
)

// Cache is a byte-oriented key/value store with expiry.
//
// Get returns hit=false with a nil error on a miss. Implementations must be
// safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) (data []byte, hit bool, err error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Keyer builds cache keys.
type Keyer interface {
	// HTTPKey keys a raw registry response.
	HTTPKey(namespace, key string) string

	// InfoKey keys the parsed version list of a gem on one source.
	InfoKey(sourceID, gem string) string
}

// DefaultKeyer is the standard key layout.
type DefaultKeyer struct{}

// NewDefaultKeyer returns the standard keyer.
func NewDefaultKeyer() Keyer {
	return DefaultKeyer{}
}

// HTTPKey returns "http:<namespace>:<key>".
func (DefaultKeyer) HTTPKey(namespace, key string) string {
	return "http:" + namespace + ":" + key
}

// InfoKey hashes the source identity so arbitrary URLs and paths are safe
// to use in any backend.
func (DefaultKeyer) InfoKey(sourceID, gem string) string {
	return hashKey("info", sourceID, gem)
}
