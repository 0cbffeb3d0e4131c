package cache

import (
	"context"
	"time"

	"github.com/goliatone/go-gamestate/internal/cacheinfra"
)

// Entry is a cached copy of a record. It is advisory and never authoritative.
type Entry = cacheinfra.Entry

// Adapter is the contract the coordinator needs from a cache backend.
// Implementations give no transactional guarantees: a Set racing a Delete may
// leave a stale entry until the next miss or until its TTL runs out.
type Adapter interface {
	// Get returns the entry for key. The bool is false on a miss or when the
	// entry has expired.
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, payload []byte, version int64, ttl time.Duration) error
	// Delete is idempotent: deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

var (
	_ Adapter = (*cacheinfra.SturdycAdapter)(nil)
	_ Adapter = (*cacheinfra.RedisAdapter)(nil)
)

// KeySerializer builds a cache key from a namespace and its key parts.
type KeySerializer interface {
	SerializeKey(namespace string, parts ...any) string
}
