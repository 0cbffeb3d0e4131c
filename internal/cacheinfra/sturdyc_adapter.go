package cacheinfra

import (
	"context"
	"time"

	"github.com/viccon/sturdyc"
)

// SturdycAdapter is the in-process cache backend. It suits single-replica
// deployments and tests; entries are not shared between processes.
type SturdycAdapter struct {
	client *sturdyc.Client[Entry]
	maxTTL time.Duration
	now    func() time.Time
}

// NewSturdycAdapter creates a new sturdyc cache adapter.
// It validates the configuration and initializes a sturdyc client with the provided settings.
//
// sturdyc applies a single TTL to the whole client, so cfg.TTL acts as the
// upper bound while each entry carries its own deadline.
func NewSturdycAdapter(cfg Config) (*SturdycAdapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := sturdyc.New[Entry](
		cfg.Capacity,
		cfg.NumShards,
		cfg.TTL,
		cfg.EvictionPercentage,
		cfg.ToSturdycOptions()...,
	)

	return &SturdycAdapter{client: client, maxTTL: cfg.TTL, now: time.Now}, nil
}

// Get returns the entry stored under key. Expired entries are removed and
// reported as a miss.
func (s *SturdycAdapter) Get(ctx context.Context, key string) (Entry, bool, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, false, err
	}

	entry, ok := s.client.Get(key)
	if !ok {
		return Entry{}, false, nil
	}

	if entry.Expired(s.now()) {
		s.client.Delete(key)
		return Entry{}, false, nil
	}

	entry.Payload = append([]byte(nil), entry.Payload...)
	return entry, true, nil
}

// Set stores a copy of payload. A ttl above the client TTL is capped.
func (s *SturdycAdapter) Set(ctx context.Context, key string, payload []byte, version int64, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ttl <= 0 || ttl > s.maxTTL {
		ttl = s.maxTTL
	}
	s.client.Set(key, newEntry(key, payload, version, ttl, s.now()))
	return nil
}

// Delete removes a single entry from the cache.
func (s *SturdycAdapter) Delete(ctx context.Context, key string) error {
	s.client.Delete(key)
	return nil
}

// Size returns the number of entries currently held.
func (s *SturdycAdapter) Size() int {
	return s.client.Size()
}
