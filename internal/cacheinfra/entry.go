package cacheinfra

import "time"

// Entry is a cached copy of a record.
type Entry struct {
	Key       string
	Payload   []byte
	Version   int64
	ExpiresAt time.Time
}

// Expired reports whether the entry must no longer be served.
func (e Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

func newEntry(key string, payload []byte, version int64, ttl time.Duration, now time.Time) Entry {
	return Entry{
		Key:       key,
		Payload:   append([]byte(nil), payload...),
		Version:   version,
		ExpiresAt: now.Add(ttl),
	}
}
