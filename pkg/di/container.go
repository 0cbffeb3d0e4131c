package di

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/caarlos0/env/v11"

	"github.com/goliatone/go-gamestate/cache"
	"github.com/goliatone/go-gamestate/coordinator"
	"github.com/goliatone/go-gamestate/remote"
	"github.com/goliatone/go-gamestate/store"
)

// EnvPrefix prefixes every environment variable read by LoadConfig.
const EnvPrefix = "GAMESTATE_"

// Config groups the configuration of every wired component.
type Config struct {
	Cache       cache.Config       `envPrefix:"CACHE_"`
	Store       store.Config       `envPrefix:"STORE_"`
	Remote      remote.Config      `envPrefix:"REMOTE_"`
	Coordinator coordinator.Config `envPrefix:"COORDINATOR_"`
}

// DefaultConfig returns an in-memory cache over a file-backed sqlite store
// with no peer service. Coordinator timings are left zero so they follow
// the cache TTL and operation timeout.
func DefaultConfig() Config {
	return Config{
		Cache:  cache.DefaultConfig(),
		Store:  store.DefaultConfig(),
		Remote: remote.DefaultConfig(),
	}
}

// LoadConfig reads GAMESTATE_* variables from the process environment on top
// of DefaultConfig and validates the result.
func LoadConfig() (Config, error) {
	return loadConfig(env.Options{Prefix: EnvPrefix})
}

// LoadConfigFrom is LoadConfig over an explicit environment.
func LoadConfigFrom(environ map[string]string) (Config, error) {
	return loadConfig(env.Options{Prefix: EnvPrefix, Environment: environ})
}

func loadConfig(opts env.Options) (Config, error) {
	cfg := DefaultConfig()
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every component configuration. The remote configuration is
// only checked when a base URL is set.
func (c Config) Validate() error {
	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("cache config: %w", err)
	}
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store config: %w", err)
	}
	if c.Remote.Enabled() {
		if err := c.Remote.Validate(); err != nil {
			return fmt.Errorf("remote config: %w", err)
		}
	}
	if err := c.coordinatorConfig().Validate(); err != nil {
		return fmt.Errorf("coordinator config: %w", err)
	}
	return nil
}

// coordinatorConfig takes the coordinator timings from the cache config. The
// coordinator never populates with a TTL longer than the cache allows.
func (c Config) coordinatorConfig() coordinator.Config {
	cfg := c.Coordinator
	if cfg.TTL == 0 || cfg.TTL > c.Cache.TTL {
		cfg.TTL = c.Cache.TTL
	}
	if cfg.CacheTimeout == 0 {
		cfg.CacheTimeout = c.Cache.OperationTimeout
	}
	return cfg
}

type invalidationListener interface {
	ListenForInvalidations(ctx context.Context) error
}

// Container owns the lifetime of every component and the coordinator built
// over them.
type Container struct {
	config        Config
	cache         cache.Adapter
	store         store.Store
	remote        remote.Fetcher
	keySerializer cache.KeySerializer
	coordinator   *coordinator.Coordinator
	logger        *slog.Logger

	closers  []func() error
	stop     context.CancelFunc
	wg       sync.WaitGroup
	closeErr error
	once     sync.Once
}

// NewContainer opens the store, connects the cache, builds the remote client
// when configured and wires them into a coordinator. For the redis backend it
// also starts the peer invalidation listener, which runs until Close.
func NewContainer(ctx context.Context, config Config, logger *slog.Logger) (*Container, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	c := &Container{
		config:        config,
		keySerializer: cache.NewDefaultKeySerializer(),
		logger:        logger,
	}

	st, err := store.Open(ctx, config.Store)
	if err != nil {
		return nil, err
	}
	c.store = st
	c.closers = append(c.closers, st.Close)

	adapter, closeCache, err := cache.NewAdapter(config.Cache, logger)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("cache: %w", err)
	}
	c.cache = adapter
	c.closers = append(c.closers, closeCache)

	opts := []coordinator.Option{coordinator.WithLogger(logger)}
	if config.Remote.Enabled() {
		client, err := remote.NewHTTPClient(config.Remote)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.remote = client
		opts = append(opts, coordinator.WithRemote(client))
	}

	c.coordinator, err = coordinator.New(config.coordinatorConfig(), adapter, st, opts...)
	if err != nil {
		c.Close()
		return nil, err
	}

	if l, ok := adapter.(invalidationListener); ok && config.Cache.InvalidationChannel != "" {
		c.startListener(l)
	}
	return c, nil
}

// NewContainerWithDefaults creates a container from DefaultConfig.
func NewContainerWithDefaults(ctx context.Context) (*Container, error) {
	return NewContainer(ctx, DefaultConfig(), nil)
}

func (c *Container) startListener(l invalidationListener) {
	ctx, cancel := context.WithCancel(context.Background())
	c.stop = cancel
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := l.ListenForInvalidations(ctx); err != nil {
			c.logger.Error("invalidation listener stopped", "error", err)
		}
	}()
}

// Coordinator returns the coordinator singleton.
func (c *Container) Coordinator() *coordinator.Coordinator {
	return c.coordinator
}

// Cache returns the cache adapter singleton.
func (c *Container) Cache() cache.Adapter {
	return c.cache
}

// Store returns the store singleton.
func (c *Container) Store() store.Store {
	return c.store
}

// Remote returns the remote fetch client, or nil when no peer is configured.
func (c *Container) Remote() remote.Fetcher {
	return c.remote
}

// KeySerializer returns the key serializer singleton.
func (c *Container) KeySerializer() cache.KeySerializer {
	return c.keySerializer
}

// Config returns a copy of the configuration used by this container.
func (c *Container) Config() Config {
	return c.config
}

// Close stops the invalidation listener and releases every component in
// reverse construction order. It is safe to call more than once.
func (c *Container) Close() error {
	c.once.Do(func() {
		if c.stop != nil {
			c.stop()
		}
		c.wg.Wait()

		var errs []error
		for i := len(c.closers) - 1; i >= 0; i-- {
			if err := c.closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
		c.closeErr = errors.Join(errs...)
	})
	return c.closeErr
}
