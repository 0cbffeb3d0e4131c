package cacheinfra

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	rediscache "github.com/go-redis/cache/v9"
	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

// redisEntry is the wire form of an Entry. Short msgpack field names keep
// values small; the key is implied by the Redis key.
type redisEntry struct {
	Payload   []byte `msgpack:"p"`
	Version   int64  `msgpack:"v"`
	ExpiresAt int64  `msgpack:"e"`
}

// RedisAdapter uses Redis as the distributed cache, with an optional
// in-process TinyLFU tier for hot keys.
type RedisAdapter struct {
	rdb     *redis.Client
	cache   *rediscache.Cache
	prefix  string
	channel string
	local   bool
	maxTTL  time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// NewRedisAdapter connects to cfg.RedisURL and verifies the connection.
func NewRedisAdapter(cfg Config, logger *slog.Logger) (*RedisAdapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("could not configure redis cache: %w", err)
	}
	rdb := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("could not connect to redis cache: %w", err)
	}

	return NewRedisAdapterWithClient(rdb, cfg, logger), nil
}

// NewRedisAdapterWithClient wraps an existing client. The adapter takes
// ownership of rdb and closes it in Close.
func NewRedisAdapterWithClient(rdb *redis.Client, cfg Config, logger *slog.Logger) *RedisAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	opts := &rediscache.Options{
		Redis:     rdb,
		Marshal:   msgpack.Marshal,
		Unmarshal: msgpack.Unmarshal,
	}
	if cfg.LocalCacheSize > 0 {
		opts.LocalCache = rediscache.NewTinyLFU(cfg.LocalCacheSize, cfg.TTL)
	}
	return &RedisAdapter{
		rdb:     rdb,
		cache:   rediscache.New(opts),
		prefix:  cfg.KeyPrefix,
		channel: cfg.InvalidationChannel,
		local:   cfg.LocalCacheSize > 0,
		maxTTL:  cfg.TTL,
		logger:  logger.With("subsystem", "cache.redis"),
		now:     time.Now,
	}
}

func (r *RedisAdapter) redisKey(key string) string {
	return r.prefix + key
}

// Get implements the cache adapter lookup.
func (r *RedisAdapter) Get(ctx context.Context, key string) (Entry, bool, error) {
	var re redisEntry
	err := r.cache.Get(ctx, r.redisKey(key), &re)
	if errors.Is(err, rediscache.ErrCacheMiss) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("redis cache get: %w", err)
	}

	entry := Entry{
		Key:     key,
		Payload: re.Payload,
		Version: re.Version,
	}
	if re.ExpiresAt != 0 {
		entry.ExpiresAt = time.Unix(0, re.ExpiresAt)
	}
	if entry.Expired(r.now()) {
		return Entry{}, false, nil
	}
	return entry, true, nil
}

// Set writes the entry to Redis (and the local tier) with the given TTL.
// A ttl above the configured TTL is capped.
func (r *RedisAdapter) Set(ctx context.Context, key string, payload []byte, version int64, ttl time.Duration) error {
	if ttl <= 0 || ttl > r.maxTTL {
		ttl = r.maxTTL
	}
	entry := newEntry(key, payload, version, ttl, r.now())
	// Redis keeps the key for at least a second; Get enforces ExpiresAt.
	keyTTL := ttl
	if keyTTL < time.Second {
		keyTTL = time.Second
	}
	err := r.cache.Set(&rediscache.Item{
		Ctx: ctx,
		Key: r.redisKey(key),
		Value: &redisEntry{
			Payload:   entry.Payload,
			Version:   entry.Version,
			ExpiresAt: entry.ExpiresAt.UnixNano(),
		},
		TTL: keyTTL,
	})
	if err != nil {
		return fmt.Errorf("redis cache set: %w", err)
	}
	return nil
}

// Delete removes the entry and announces the key to peers so they can drop
// their local tier. A missing key is not an error.
func (r *RedisAdapter) Delete(ctx context.Context, key string) error {
	err := r.cache.Delete(ctx, r.redisKey(key))
	if err != nil && !errors.Is(err, rediscache.ErrCacheMiss) {
		return fmt.Errorf("redis cache delete: %w", err)
	}
	if r.channel == "" {
		return nil
	}
	if err := r.rdb.Publish(ctx, r.channel, key).Err(); err != nil {
		return fmt.Errorf("redis invalidation publish: %w", err)
	}
	return nil
}

// Close releases the Redis connection pool.
func (r *RedisAdapter) Close() error {
	return r.rdb.Close()
}
