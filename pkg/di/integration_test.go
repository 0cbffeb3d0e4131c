package di

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goliatone/go-gamestate/cache"
	"github.com/goliatone/go-gamestate/pkg/testsupport"
	"github.com/goliatone/go-gamestate/record"
)

func TestEndToEndMatchFlow(t *testing.T) {
	container := newTestContainer(t, testConfig(t))
	coord := container.Coordinator()
	ctx := context.Background()

	key := container.KeySerializer().SerializeKey("match", 42)

	v, err := coord.Write(ctx, key, []byte(`{"score":10}`), record.CreateIfAbsent)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if v != 1 {
		t.Fatalf("expected version 1, got %d", v)
	}

	rec, err := coord.Read(ctx, key)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(rec.Payload) != `{"score":10}` {
		t.Errorf("unexpected payload %s", rec.Payload)
	}

	// Second read is served by the cache.
	if _, err := coord.Read(ctx, key); err != nil {
		t.Fatalf("cached read failed: %v", err)
	}
	if hits := coord.Stats().Hits; hits != 1 {
		t.Errorf("expected 1 cache hit, got %d", hits)
	}

	_, err = coord.Write(ctx, key, []byte(`{"score":20}`), record.CreateIfAbsent)
	if !errors.Is(err, record.ErrVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}

	v, err = coord.Write(ctx, key, []byte(`{"score":20}`), 1)
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if v != 2 {
		t.Fatalf("expected version 2, got %d", v)
	}

	rec, err = coord.Read(ctx, key)
	if err != nil {
		t.Fatalf("read after update failed: %v", err)
	}
	if string(rec.Payload) != `{"score":20}` || rec.Version != 2 {
		t.Errorf("expected score 20 at version 2, got %s at %d", rec.Payload, rec.Version)
	}
}

func TestRedisBackendAcrossReplicas(t *testing.T) {
	mr, url := testsupport.StartRedis(t)
	ctx := context.Background()

	cfg := testConfig(t)
	cfg.Cache.Backend = cache.BackendRedis
	cfg.Cache.RedisURL = url
	cfg.Cache.LocalCacheSize = 100
	cfg.Cache.TTL = time.Minute

	replicaA := newTestContainer(t, cfg)
	replicaB := newTestContainer(t, cfg)

	channel := cfg.Cache.InvalidationChannel
	deadline := time.Now().Add(2 * time.Second)
	for mr.PubSubNumSub(channel)[channel] < 2 {
		if time.Now().After(deadline) {
			t.Fatal("invalidation listeners did not subscribe")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if _, err := replicaA.Coordinator().Write(ctx, "leaderboard:weekly", []byte(`["ada"]`), record.CreateIfAbsent); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	// Replica B warms both its local tier and redis.
	rec, err := replicaB.Coordinator().Read(ctx, "leaderboard:weekly")
	if err != nil {
		t.Fatalf("read on B failed: %v", err)
	}
	if string(rec.Payload) != `["ada"]` {
		t.Fatalf("unexpected payload %s", rec.Payload)
	}
	if !mr.Exists(cfg.Cache.KeyPrefix + "leaderboard:weekly") {
		t.Error("expected entry in redis after read")
	}

	if _, err := replicaA.Coordinator().Write(ctx, "leaderboard:weekly", []byte(`["ada","lin"]`), 1); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	deadline = time.Now().Add(2 * time.Second)
	for {
		rec, err = replicaB.Coordinator().Read(ctx, "leaderboard:weekly")
		if err != nil {
			t.Fatalf("read on B failed: %v", err)
		}
		if rec.Version == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("replica B still serves version %d", rec.Version)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if string(rec.Payload) != `["ada","lin"]` {
		t.Errorf("unexpected payload %s", rec.Payload)
	}
}

func TestRedisEntryHonoursConfiguredTTL(t *testing.T) {
	mr, url := testsupport.StartRedis(t)
	ctx := context.Background()

	cfg := testConfig(t)
	cfg.Cache.Backend = cache.BackendRedis
	cfg.Cache.RedisURL = url
	cfg.Cache.TTL = 30 * time.Second
	cfg.Cache.InvalidationChannel = ""

	coord := newTestContainer(t, cfg).Coordinator()

	if _, err := coord.Write(ctx, "match:1", []byte(`{"score":1}`), record.CreateIfAbsent); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := coord.Read(ctx, "match:1"); err != nil {
		t.Fatalf("read failed: %v", err)
	}

	redisKey := cfg.Cache.KeyPrefix + "match:1"
	if !mr.Exists(redisKey) {
		t.Fatalf("expected %s in redis, have %v", redisKey, mr.Keys())
	}
	if ttl := mr.TTL(redisKey); ttl <= 0 || ttl > cfg.Cache.TTL {
		t.Errorf("redis TTL %v should be within the configured %v", ttl, cfg.Cache.TTL)
	}
}

func TestRedisOutageDegradesToStore(t *testing.T) {
	mr, url := testsupport.StartRedis(t)
	ctx := context.Background()

	cfg := testConfig(t)
	cfg.Cache.Backend = cache.BackendRedis
	cfg.Cache.RedisURL = url
	cfg.Cache.InvalidationChannel = ""

	container := newTestContainer(t, cfg)
	coord := container.Coordinator()

	if _, err := coord.Write(ctx, "match:77", []byte(`{"score":5}`), record.CreateIfAbsent); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	mr.Close()

	rec, err := coord.Read(ctx, "match:77")
	if err != nil {
		t.Fatalf("read with redis down should degrade, got %v", err)
	}
	if string(rec.Payload) != `{"score":5}` {
		t.Errorf("unexpected payload %s", rec.Payload)
	}
	if coord.Stats().CacheErrors == 0 {
		t.Error("expected cache errors to be counted")
	}
}

func TestRemoteProfilesThroughContainer(t *testing.T) {
	var calls atomic.Int32
	peer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/records/profile:u1" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"key":"profile:u1","version":3,"payload":{"name":"ada","rank":12}}`))
	}))
	defer peer.Close()

	cfg := testConfig(t)
	cfg.Remote.BaseURL = peer.URL
	cfg.Remote.ServiceName = "profiles"
	cfg.Coordinator.RemoteNamespaces = []string{"profile"}

	container := newTestContainer(t, cfg)
	if container.Remote() == nil {
		t.Fatal("expected remote client to be wired")
	}
	coord := container.Coordinator()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		rec, err := coord.Read(ctx, "profile:u1")
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		if rec.Version != 3 || rec.Source != record.SourceRemoteService {
			t.Errorf("unexpected record %+v", rec)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("expected 1 peer call, got %d", got)
	}

	if _, err := coord.Read(ctx, "profile:ghost"); !errors.Is(err, record.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	if _, err := coord.Read(ctx, "match:1"); !errors.Is(err, record.ErrNotFound) {
		t.Errorf("expected not found for local key, got %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("local keys must not reach the peer, got %d calls", got)
	}
}
