// Package cache defines the cache adapter contract and key construction used
// by the coordinator.
//
// # Overview
//
// This package exports two interfaces and their default implementations:
//
//   - Adapter: get, set and delete of versioned entries with a per-entry TTL
//   - KeySerializer: builds stable record keys from a namespace and key parts
//
// Backends live in internal/cacheinfra and are selected with Config.Backend:
//
//   - "memory": an in-process sturdyc client, one per replica
//   - "redis": go-redis/cache over Redis, with an optional TinyLFU local tier
//     kept coherent across replicas through a pub/sub invalidation channel
//
// # Basic Usage
//
//	adapter, closeCache, err := cache.NewAdapter(cache.DefaultConfig(), logger)
//	if err != nil {
//		return err
//	}
//	defer closeCache()
//
//	key := cache.NewDefaultKeySerializer().SerializeKey("match", 42) // "match:42"
//	_ = adapter.Set(ctx, key, payload, version, time.Minute)
//	entry, ok, err := adapter.Get(ctx, key)
//
// # Entries Are Advisory
//
// An Entry is never authoritative. Get reports a miss once ExpiresAt has
// passed, and Delete of a missing key is not an error. Adapters give no
// transactional guarantees: a Set racing a Delete may leave a stale entry
// until its TTL runs out. Callers treat every adapter error as a miss.
//
// # Key Serialization Strategy
//
// The default key serializer joins the snake_cased namespace and each part
// with ":". Parts are rendered as follows:
//
//   - fmt.Stringer values: their String output
//   - Basic types: direct string representation
//   - []byte: lowercase hex
//   - Slices and arrays: "[a,b]"
//   - Maps: sorted "{k=v}" pairs for deterministic output
//   - Structs: exported fields as snake_cased "{field=value}" pairs
//   - Functions and channels: "unsupported(type)"
//   - Anything else: JSON
//
// Keys longer than MaxKeyLength are replaced by the namespace and an
// xxhash digest of the full key, so they stay valid on every backend.
package cache
