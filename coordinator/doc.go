// Package coordinator serves versioned game state through a cache while
// keeping it consistent with the system of record.
//
// # Reads
//
// Read tries the cache first and returns an unexpired entry without touching
// the store. On a miss it reads the store and, for keys in a remote namespace
// that the store does not hold, the peer service. The result is cached with
// the configured TTL. Not-found results are never cached.
//
// Concurrent misses for one key share a single backend fetch. The fetch runs
// detached from any one caller, so a caller that gives up gets ctx.Err()
// while the others still receive the result. Every caller gets its own copy
// of the payload.
//
// # Writes
//
// Write commits through the store's version check and then removes the cache
// entry. It never writes the new payload into the cache; the next read
// repopulates it. Pass record.CreateIfAbsent as the expected version to
// create a key.
//
// # Invalidation
//
// Invalidate and InvalidateKeys remove entries unconditionally. Inside one
// process an invalidation also forgets any in-flight fetch for the key and
// prevents that fetch from populating the cache, so a read that starts after
// Invalidate returns never sees data older than the last commit before it.
// Across processes the guarantee is bounded by the cache TTL.
//
// # Failures
//
// Cache errors are logged, counted and treated as misses. Store failures
// surface as record.CodeStoreUnavailable and peer failures as
// record.CodeUpstreamUnavailable. Nothing is retried internally.
package coordinator
