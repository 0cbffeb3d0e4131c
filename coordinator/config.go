package coordinator

import (
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/goliatone/go-gamestate/record"
)

// Config tunes the coordinator. TTL and CacheTimeout normally mirror the cache
// configuration and are filled in by the container.
type Config struct {
	// TTL bounds how long a populated cache entry may be served.
	TTL time.Duration
	// CacheTimeout bounds every individual cache call. Zero leaves it to the
	// caller's context.
	CacheTimeout time.Duration
	// RemoteNamespaces lists key namespaces owned by a peer service, e.g.
	// "profile" routes "profile:u1" to the remote fetch client on a store miss.
	RemoteNamespaces []string `env:"REMOTE_NAMESPACES" envSeparator:","`
}

// DefaultConfig returns a Config with a five minute TTL and no remote namespaces.
func DefaultConfig() Config {
	return Config{
		TTL:          5 * time.Minute,
		CacheTimeout: 250 * time.Millisecond,
	}
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.TTL, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.CacheTimeout, validation.Min(time.Duration(0))),
		validation.Field(&c.RemoteNamespaces, validation.Each(validation.Required)),
	)
}

// SourceResolver decides which system owns the authoritative copy of a key.
type SourceResolver interface {
	Resolve(key string) record.SourceOfTruth
}

// SourceResolverFunc adapts a function to SourceResolver.
type SourceResolverFunc func(key string) record.SourceOfTruth

func (f SourceResolverFunc) Resolve(key string) record.SourceOfTruth {
	return f(key)
}

// PrefixResolver maps keys in any of the given namespaces to
// record.SourceRemoteService and every other key to record.SourceLocalStore.
func PrefixResolver(namespaces ...string) SourceResolverFunc {
	prefixes := make([]string, 0, len(namespaces))
	for _, ns := range namespaces {
		ns = strings.TrimSpace(ns)
		if ns == "" {
			continue
		}
		if !strings.HasSuffix(ns, ":") {
			ns += ":"
		}
		prefixes = append(prefixes, ns)
	}

	return func(key string) record.SourceOfTruth {
		for _, p := range prefixes {
			if strings.HasPrefix(key, p) {
				return record.SourceRemoteService
			}
		}
		return record.SourceLocalStore
	}
}
