package coordinator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goliatone/go-gamestate/cache"
	"github.com/goliatone/go-gamestate/record"
	"github.com/goliatone/go-gamestate/remote"
)

// memStore is an in-memory Store that counts reads and can hold them on a gate.
type memStore struct {
	mu      sync.Mutex
	records map[string]record.Record

	reads   atomic.Int32
	writes  atomic.Int32
	gate    chan struct{}
	readErr error
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]record.Record)}
}

func (s *memStore) ReadCurrent(ctx context.Context, key string) (record.Record, error) {
	s.reads.Add(1)
	s.mu.Lock()
	rec, ok := s.records[key]
	rec = rec.Clone()
	s.mu.Unlock()

	// The snapshot is taken before blocking so tests can change the store
	// while a fetch is in flight.
	if s.gate != nil {
		<-s.gate
	}
	if s.readErr != nil {
		return record.Record{}, s.readErr
	}
	if !ok {
		return record.Record{}, record.NewError(record.CodeNotFound, key, "record not found")
	}
	return rec, nil
}

func (s *memStore) WriteIfVersionMatches(ctx context.Context, intent record.WriteIntent) (int64, error) {
	s.writes.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.records[intent.Key]
	switch {
	case !ok && intent.IsCreate():
	case !ok:
		return 0, record.NewError(record.CodeNotFound, intent.Key, "record not found")
	case cur.Version != intent.ExpectedVersion:
		return 0, record.NewError(record.CodeVersionConflict, intent.Key, "version conflict")
	}

	next := cur.Version + 1
	s.records[intent.Key] = record.Record{
		Key:       intent.Key,
		Payload:   append([]byte(nil), intent.NewPayload...),
		Version:   next,
		Source:    intent.Source,
		UpdatedAt: time.Now(),
	}
	return next, nil
}

func (s *memStore) Close() error { return nil }

// brokenCache fails every call.
type brokenCache struct {
	calls atomic.Int32
}

var errCacheDown = errors.New("cache: connection refused")

func (c *brokenCache) Get(ctx context.Context, key string) (cache.Entry, bool, error) {
	c.calls.Add(1)
	return cache.Entry{}, false, errCacheDown
}

func (c *brokenCache) Set(ctx context.Context, key string, payload []byte, version int64, ttl time.Duration) error {
	c.calls.Add(1)
	return errCacheDown
}

func (c *brokenCache) Delete(ctx context.Context, key string) error {
	c.calls.Add(1)
	return errCacheDown
}

// stubFetcher serves fixed results for remote keys.
type stubFetcher struct {
	calls   atomic.Int32
	results map[string]remote.Result
	err     error
}

func (f *stubFetcher) Fetch(ctx context.Context, key string) (remote.Result, error) {
	f.calls.Add(1)
	if f.err != nil {
		return remote.Result{}, f.err
	}
	res, ok := f.results[key]
	if !ok {
		return remote.Result{}, record.NewError(record.CodeNotFound, key, "unknown")
	}
	return res, nil
}
