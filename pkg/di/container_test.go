package di

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-gamestate/cache"
	"github.com/goliatone/go-gamestate/pkg/testsupport"
	"github.com/goliatone/go-gamestate/record"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Store.DSN = testsupport.SQLiteDSN(t)
	return cfg
}

func newTestContainer(t *testing.T, cfg Config) *Container {
	t.Helper()
	container, err := NewContainer(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("NewContainer() failed: %v", err)
	}
	t.Cleanup(func() { container.Close() })
	return container
}

func TestNewContainer(t *testing.T) {
	cfg := testConfig(t)
	cfg.Cache.Capacity = 1000
	cfg.Cache.TTL = time.Minute

	container := newTestContainer(t, cfg)

	if container.Coordinator() == nil {
		t.Fatal("Container should have a non-nil coordinator")
	}
	if container.Cache() == nil {
		t.Error("Container should have a non-nil cache adapter")
	}
	if container.Store() == nil {
		t.Error("Container should have a non-nil store")
	}
	if container.KeySerializer() == nil {
		t.Error("Container should have a non-nil key serializer")
	}
	if container.Remote() != nil {
		t.Error("Remote should be nil when no base URL is configured")
	}

	stored := container.Config()
	if stored.Cache.Capacity != 1000 {
		t.Errorf("Expected capacity 1000, got %d", stored.Cache.Capacity)
	}
	if stored.Cache.TTL != time.Minute {
		t.Errorf("Expected TTL %v, got %v", time.Minute, stored.Cache.TTL)
	}
}

func TestNewContainer_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "zero capacity", mutate: func(c *Config) { c.Cache.Capacity = 0 }},
		{name: "unknown backend", mutate: func(c *Config) { c.Cache.Backend = "memcached" }},
		{name: "unknown driver", mutate: func(c *Config) { c.Store.Driver = "oracle" }},
		{name: "bad remote url", mutate: func(c *Config) { c.Remote.BaseURL = "not a url" }},
		{name: "empty namespace", mutate: func(c *Config) { c.Coordinator.RemoteNamespaces = []string{""} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(&cfg)
			if _, err := NewContainer(context.Background(), cfg, nil); err == nil {
				t.Error("NewContainer() should fail with invalid config")
			}
		})
	}
}

func TestLoadConfigFrom(t *testing.T) {
	cfg, err := LoadConfigFrom(map[string]string{
		"GAMESTATE_CACHE_TTL":                     "30s",
		"GAMESTATE_CACHE_CAPACITY":                "500",
		"GAMESTATE_STORE_DSN":                     "file:test.db?mode=memory",
		"GAMESTATE_STORE_TX_TIMEOUT":              "750ms",
		"GAMESTATE_REMOTE_BASE_URL":               "http://profiles.internal:8080",
		"GAMESTATE_COORDINATOR_REMOTE_NAMESPACES": "profile,catalog",
	})
	if err != nil {
		t.Fatalf("LoadConfigFrom() failed: %v", err)
	}

	if cfg.Cache.TTL != 30*time.Second {
		t.Errorf("Expected TTL 30s, got %v", cfg.Cache.TTL)
	}
	if cfg.Cache.Capacity != 500 {
		t.Errorf("Expected capacity 500, got %d", cfg.Cache.Capacity)
	}
	if cfg.Cache.Backend != cache.BackendMemory {
		t.Errorf("Expected default backend %q, got %q", cache.BackendMemory, cfg.Cache.Backend)
	}
	if cfg.Store.TxTimeout != 750*time.Millisecond {
		t.Errorf("Expected tx timeout 750ms, got %v", cfg.Store.TxTimeout)
	}
	if cfg.Remote.Timeout != time.Second {
		t.Errorf("Expected default remote timeout 1s, got %v", cfg.Remote.Timeout)
	}
	if got := cfg.Coordinator.RemoteNamespaces; len(got) != 2 || got[0] != "profile" || got[1] != "catalog" {
		t.Errorf("Unexpected remote namespaces %v", got)
	}

	coord := cfg.coordinatorConfig()
	if coord.TTL != 30*time.Second {
		t.Errorf("Coordinator TTL should follow cache TTL, got %v", coord.TTL)
	}
}

func TestCoordinatorTimingsFollowCacheConfig(t *testing.T) {
	cfg, err := LoadConfigFrom(map[string]string{
		"GAMESTATE_CACHE_TTL":               "45s",
		"GAMESTATE_CACHE_OPERATION_TIMEOUT": "2s",
	})
	if err != nil {
		t.Fatalf("LoadConfigFrom() failed: %v", err)
	}

	coord := cfg.coordinatorConfig()
	if coord.TTL != 45*time.Second {
		t.Errorf("Expected coordinator TTL 45s, got %v", coord.TTL)
	}
	if coord.CacheTimeout != 2*time.Second {
		t.Errorf("Expected coordinator cache timeout 2s, got %v", coord.CacheTimeout)
	}

	cfg.Coordinator.TTL = time.Hour
	if got := cfg.coordinatorConfig().TTL; got != 45*time.Second {
		t.Errorf("Coordinator TTL must not exceed cache TTL, got %v", got)
	}
}

func TestLoadConfigFrom_Invalid(t *testing.T) {
	_, err := LoadConfigFrom(map[string]string{"GAMESTATE_CACHE_CAPACITY": "not-a-number"})
	if err == nil {
		t.Error("expected parse error")
	}

	_, err = LoadConfigFrom(map[string]string{"GAMESTATE_CACHE_BACKEND": "memcached"})
	if err == nil {
		t.Error("expected validation error")
	}
}

func TestContainerSingletonBehavior(t *testing.T) {
	container := newTestContainer(t, testConfig(t))

	if container.Coordinator() != container.Coordinator() {
		t.Error("Coordinator() should return the same instance")
	}
	if container.Cache() != container.Cache() {
		t.Error("Cache() should return the same instance")
	}
	if container.KeySerializer() != container.KeySerializer() {
		t.Error("KeySerializer() should return the same instance")
	}
}

func TestContainerCloseIsIdempotent(t *testing.T) {
	container, err := NewContainer(context.Background(), testConfig(t), nil)
	if err != nil {
		t.Fatalf("NewContainer() failed: %v", err)
	}

	if err := container.Close(); err != nil {
		t.Fatalf("first Close() failed: %v", err)
	}
	if err := container.Close(); err != nil {
		t.Fatalf("second Close() failed: %v", err)
	}

	_, err = container.Store().ReadCurrent(context.Background(), "match:1")
	if !errors.Is(err, record.ErrStoreUnavailable) {
		t.Errorf("expected store unavailable after Close, got %v", err)
	}
}

func TestKeySerializerIntegration(t *testing.T) {
	container := newTestContainer(t, testConfig(t))
	keySerializer := container.KeySerializer()

	testCases := []struct {
		name      string
		namespace string
		args      []any
		expected  string
	}{
		{name: "no args", namespace: "catalog", args: []any{}, expected: "catalog"},
		{name: "match id", namespace: "match", args: []any{42}, expected: "match:42"},
		{name: "multiple args", namespace: "leaderboard", args: []any{"weekly", 3, true}, expected: "leaderboard:weekly:3:true"},
		{name: "camel namespace", namespace: "playerProfile", args: []any{"u1"}, expected: "player_profile:u1"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := keySerializer.SerializeKey(tc.namespace, tc.args...)
			if result != tc.expected {
				t.Errorf("Expected key %q, got %q", tc.expected, result)
			}
		})
	}
}
