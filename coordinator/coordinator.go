package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/puzpuzpuz/xsync/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/goliatone/go-gamestate/cache"
	"github.com/goliatone/go-gamestate/internal/telemetry"
	"github.com/goliatone/go-gamestate/record"
	"github.com/goliatone/go-gamestate/remote"
	"github.com/goliatone/go-gamestate/store"
)

const generationStripes = 256

// Coordinator serves reads through the cache and keeps the cache consistent
// with committed writes.
type Coordinator struct {
	cache    cache.Adapter
	store    store.Store
	remote   remote.Fetcher
	resolver SourceResolver

	ttl          time.Duration
	cacheTimeout time.Duration

	group   singleflight.Group
	stripes [generationStripes]stripe

	logger *slog.Logger
	now    func() time.Time
	stats  counters
}

// stripe guards the invalidation generation of the keys hashed onto it.
// Population holds the read lock across the generation check and the cache
// Set, so an invalidation either sees the entry to delete or the populating
// fetch sees the new generation.
type stripe struct {
	mu  sync.RWMutex
	gen uint64
}

type counters struct {
	hits          *xsync.Counter
	misses        *xsync.Counter
	coalesced     *xsync.Counter
	cacheErrors   *xsync.Counter
	invalidations *xsync.Counter
}

// Stats is a point in time snapshot of the coordinator counters.
type Stats struct {
	Hits          int64
	Misses        int64
	Coalesced     int64
	CacheErrors   int64
	Invalidations int64
}

// Option customises a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger. A "subsystem" attribute is added.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRemote sets the fetcher used for keys owned by a peer service.
func WithRemote(f remote.Fetcher) Option {
	return func(c *Coordinator) {
		c.remote = f
	}
}

// WithSourceResolver replaces the prefix resolver built from Config.RemoteNamespaces.
func WithSourceResolver(r SourceResolver) Option {
	return func(c *Coordinator) {
		if r != nil {
			c.resolver = r
		}
	}
}

// New builds a Coordinator over the given cache and store.
func New(cfg Config, cacheAdapter cache.Adapter, st store.Store, opts ...Option) (*Coordinator, error) {
	if cacheAdapter == nil {
		return nil, errors.New("coordinator: cache adapter is required")
	}
	if st == nil {
		return nil, errors.New("coordinator: store is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("coordinator config: %w", err)
	}

	c := &Coordinator{
		cache:        cacheAdapter,
		store:        st,
		resolver:     PrefixResolver(cfg.RemoteNamespaces...),
		ttl:          cfg.TTL,
		cacheTimeout: cfg.CacheTimeout,
		logger:       slog.Default(),
		now:          time.Now,
		stats: counters{
			hits:          xsync.NewCounter(),
			misses:        xsync.NewCounter(),
			coalesced:     xsync.NewCounter(),
			cacheErrors:   xsync.NewCounter(),
			invalidations: xsync.NewCounter(),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("subsystem", "coordinator")
	return c, nil
}

// Read returns the current record for key. A fresh cache entry is returned
// without touching the store. On a miss, concurrent callers for the same key
// share one backend fetch and each receives its own copy of the payload.
func (c *Coordinator) Read(ctx context.Context, key string) (record.Record, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "coordinator.Read",
		trace.WithAttributes(attribute.String("gamestate.key", key)))
	defer span.End()

	if err := record.ValidateKey(key); err != nil {
		return record.Record{}, err
	}
	if err := ctx.Err(); err != nil {
		return record.Record{}, err
	}

	if rec, ok := c.lookup(ctx, key); ok {
		c.stats.hits.Inc()
		telemetry.CacheHits.Inc()
		span.SetAttributes(attribute.Bool("gamestate.cache_hit", true))
		return rec, nil
	}
	c.stats.misses.Inc()
	telemetry.CacheMisses.Inc()
	span.SetAttributes(attribute.Bool("gamestate.cache_hit", false))

	// The shared fetch must outlive any single caller.
	fetchCtx := context.WithoutCancel(ctx)
	leader := false
	ch := c.group.DoChan(key, func() (any, error) {
		leader = true
		return c.fetch(fetchCtx, key)
	})

	select {
	case <-ctx.Done():
		return record.Record{}, ctx.Err()
	case res := <-ch:
		if !leader {
			c.stats.coalesced.Inc()
			telemetry.RequestsCoalesced.Inc()
		}
		if res.Err != nil {
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, string(record.CodeOf(res.Err)))
			return record.Record{}, res.Err
		}
		return res.Val.(record.Record).Clone(), nil
	}
}

// Write commits payload for key if the stored version equals expectedVersion
// and returns the new version. Pass record.CreateIfAbsent to create a key.
// After a commit the cache entry is removed, never repopulated.
func (c *Coordinator) Write(ctx context.Context, key string, payload []byte, expectedVersion int64) (int64, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "coordinator.Write",
		trace.WithAttributes(
			attribute.String("gamestate.key", key),
			attribute.Int64("gamestate.expected_version", expectedVersion),
		))
	defer span.End()

	intent, err := record.NewWriteIntent(key, payload, expectedVersion, c.resolver.Resolve(key))
	if err != nil {
		return 0, err
	}
	log := c.logger.With("intent_id", intent.ID.String(), "key", key)
	span.SetAttributes(attribute.String("gamestate.intent_id", intent.ID.String()))

	version, err := c.store.WriteIfVersionMatches(ctx, intent)
	if err != nil {
		err = c.storeFailure(ctx, log, "write", key, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(record.CodeOf(err)))
		return 0, err
	}

	c.invalidate(ctx, key)
	log.DebugContext(ctx, "write committed", "version", version)
	return version, nil
}

// Invalidate removes any cached entry for key. It is idempotent and fails
// only on an invalid key.
func (c *Coordinator) Invalidate(ctx context.Context, key string) error {
	ctx, span := telemetry.Tracer().Start(ctx, "coordinator.Invalidate",
		trace.WithAttributes(attribute.String("gamestate.key", key)))
	defer span.End()

	if err := record.ValidateKey(key); err != nil {
		return err
	}
	c.invalidate(ctx, key)
	return nil
}

// InvalidateKeys invalidates every key. No key is touched if any is invalid.
func (c *Coordinator) InvalidateKeys(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		if err := record.ValidateKey(key); err != nil {
			return err
		}
	}
	for _, key := range keys {
		if err := c.Invalidate(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// Stats returns the current counter values.
func (c *Coordinator) Stats() Stats {
	return Stats{
		Hits:          c.stats.hits.Value(),
		Misses:        c.stats.misses.Value(),
		Coalesced:     c.stats.coalesced.Value(),
		CacheErrors:   c.stats.cacheErrors.Value(),
		Invalidations: c.stats.invalidations.Value(),
	}
}

// Source reports which system owns key.
func (c *Coordinator) Source(key string) record.SourceOfTruth {
	return c.resolver.Resolve(key)
}

func (c *Coordinator) stripeFor(key string) *stripe {
	return &c.stripes[xxhash.Sum64String(key)%generationStripes]
}

// fetch loads key from the store, or from the peer for remote keys, and
// populates the cache unless key was invalidated while the fetch ran.
func (c *Coordinator) fetch(ctx context.Context, key string) (record.Record, error) {
	s := c.stripeFor(key)
	s.mu.RLock()
	gen := s.gen
	s.mu.RUnlock()

	rec, err := c.load(ctx, key)
	if err != nil {
		return record.Record{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.gen != gen {
		c.logger.DebugContext(ctx, "skipping cache population after invalidation", "key", key)
		return rec, nil
	}
	c.populate(ctx, rec)
	return rec, nil
}

func (c *Coordinator) load(ctx context.Context, key string) (record.Record, error) {
	rec, err := c.store.ReadCurrent(ctx, key)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, record.ErrNotFound) {
		return record.Record{}, c.storeFailure(ctx, c.logger, "read", key, err)
	}
	if c.remote == nil || c.resolver.Resolve(key) != record.SourceRemoteService {
		return record.Record{}, err
	}

	res, err := c.remote.Fetch(ctx, key)
	switch {
	case err == nil:
		telemetry.UpstreamFetches.WithLabelValues("ok").Inc()
	case errors.Is(err, record.ErrNotFound):
		telemetry.UpstreamFetches.WithLabelValues("not_found").Inc()
		return record.Record{}, err
	default:
		telemetry.UpstreamFetches.WithLabelValues("error").Inc()
		c.logger.WarnContext(ctx, "remote fetch failed", "key", key, "error", err)
		if record.CodeOf(err) != record.CodeUpstreamUnavailable {
			err = record.Wrap(record.CodeUpstreamUnavailable, key, "remote fetch failed", err)
		}
		return record.Record{}, err
	}

	return record.Record{
		Key:       key,
		Payload:   res.Payload,
		Version:   res.Version,
		Source:    record.SourceRemoteService,
		UpdatedAt: c.now(),
	}, nil
}

// lookup reads the cache. Any cache failure counts as a miss.
func (c *Coordinator) lookup(ctx context.Context, key string) (record.Record, bool) {
	cctx, cancel := c.cacheContext(ctx)
	defer cancel()

	entry, ok, err := c.cache.Get(cctx, key)
	if err != nil {
		c.cacheFailure(ctx, "get", key, err)
		return record.Record{}, false
	}
	if !ok || entry.Expired(c.now()) {
		return record.Record{}, false
	}
	return record.Record{
		Key:     key,
		Payload: entry.Payload,
		Version: entry.Version,
		Source:  c.resolver.Resolve(key),
	}, true
}

func (c *Coordinator) populate(ctx context.Context, rec record.Record) {
	cctx, cancel := c.cacheContext(ctx)
	defer cancel()

	if err := c.cache.Set(cctx, rec.Key, rec.Payload, rec.Version, c.ttl); err != nil {
		c.cacheFailure(ctx, "set", rec.Key, err)
	}
}

// invalidate bumps the key's generation and forgets any in-flight fetch
// before deleting the entry, so no later read can observe older data from
// this process.
func (c *Coordinator) invalidate(ctx context.Context, key string) {
	s := c.stripeFor(key)
	s.mu.Lock()
	s.gen++
	s.mu.Unlock()
	c.group.Forget(key)
	c.stats.invalidations.Inc()
	telemetry.Invalidations.Inc()

	cctx, cancel := c.cacheContext(context.WithoutCancel(ctx))
	defer cancel()
	if err := c.cache.Delete(cctx, key); err != nil {
		c.cacheFailure(ctx, "delete", key, err)
	}
}

// cacheContext applies the cache timeout when one is configured.
func (c *Coordinator) cacheContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cacheTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.cacheTimeout)
}

func (c *Coordinator) cacheFailure(ctx context.Context, op, key string, err error) {
	c.stats.cacheErrors.Inc()
	telemetry.CacheErrors.WithLabelValues(op).Inc()
	level := slog.LevelWarn
	if op == "delete" {
		level = slog.LevelError
	}
	c.logger.Log(ctx, level, "cache operation failed", "op", op, "key", key, "error", err)
}

// storeFailure classifies a store error, counting and logging unexpected ones.
// Errors without a record code are reported as record.CodeStoreUnavailable.
func (c *Coordinator) storeFailure(ctx context.Context, log *slog.Logger, op, key string, err error) error {
	switch record.CodeOf(err) {
	case record.CodeVersionConflict:
		telemetry.WriteConflicts.Inc()
		log.DebugContext(ctx, "write rejected", "error", err)
		return err
	case record.CodeNotFound, record.CodeInvalidInput:
		return err
	case "":
		err = record.Wrap(record.CodeStoreUnavailable, key, "store "+op+" failed", err)
	}
	telemetry.StoreErrors.WithLabelValues(op).Inc()
	log.ErrorContext(ctx, "store operation failed", "op", op, "key", key, "error", err)
	return err
}
