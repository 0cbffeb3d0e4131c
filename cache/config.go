package cache

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/goliatone/go-gamestate/internal/cacheinfra"
)

// Backend names accepted in Config.Backend.
const (
	BackendMemory = cacheinfra.BackendMemory
	BackendRedis  = cacheinfra.BackendRedis
)

// Config exposes cache configuration options for consumers of the cache package.
type Config struct {
	Backend             string        `env:"BACKEND" envDefault:"memory"`
	Capacity            int           `env:"CAPACITY" envDefault:"10000"`
	NumShards           int           `env:"NUM_SHARDS" envDefault:"256"`
	TTL                 time.Duration `env:"TTL" envDefault:"5m"`
	EvictionPercentage  int           `env:"EVICTION_PERCENTAGE" envDefault:"10"`
	EvictionInterval    time.Duration `env:"EVICTION_INTERVAL"`
	RedisURL            string        `env:"REDIS_URL"`
	LocalCacheSize      int           `env:"LOCAL_CACHE_SIZE" envDefault:"0"`
	KeyPrefix           string        `env:"KEY_PREFIX" envDefault:"gamestate/"`
	InvalidationChannel string        `env:"INVALIDATION_CHANNEL" envDefault:"gamestate:invalidations"`
	OperationTimeout    time.Duration `env:"OPERATION_TIMEOUT" envDefault:"250ms"`
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() Config {
	return convertFromInternal(cacheinfra.DefaultConfig())
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	return c.toInternal().Validate()
}

// NewAdapter constructs the backend selected by cfg.Backend. The returned
// closer releases backend connections and must be called at shutdown.
func NewAdapter(cfg Config, logger *slog.Logger) (Adapter, func() error, error) {
	internal := cfg.toInternal()
	switch internal.Backend {
	case BackendMemory:
		a, err := cacheinfra.NewSturdycAdapter(internal)
		if err != nil {
			return nil, nil, err
		}
		return a, func() error { return nil }, nil
	case BackendRedis:
		a, err := cacheinfra.NewRedisAdapter(internal, logger)
		if err != nil {
			return nil, nil, err
		}
		return a, a.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", internal.Backend)
	}
}

func (c Config) toInternal() cacheinfra.Config {
	return cacheinfra.Config{
		Backend:             c.Backend,
		Capacity:            c.Capacity,
		NumShards:           c.NumShards,
		TTL:                 c.TTL,
		EvictionPercentage:  c.EvictionPercentage,
		EvictionInterval:    c.EvictionInterval,
		RedisURL:            c.RedisURL,
		LocalCacheSize:      c.LocalCacheSize,
		KeyPrefix:           c.KeyPrefix,
		InvalidationChannel: c.InvalidationChannel,
		OperationTimeout:    c.OperationTimeout,
	}
}

func convertFromInternal(cfg cacheinfra.Config) Config {
	return Config{
		Backend:             cfg.Backend,
		Capacity:            cfg.Capacity,
		NumShards:           cfg.NumShards,
		TTL:                 cfg.TTL,
		EvictionPercentage:  cfg.EvictionPercentage,
		EvictionInterval:    cfg.EvictionInterval,
		RedisURL:            cfg.RedisURL,
		LocalCacheSize:      cfg.LocalCacheSize,
		KeyPrefix:           cfg.KeyPrefix,
		InvalidationChannel: cfg.InvalidationChannel,
		OperationTimeout:    cfg.OperationTimeout,
	}
}
