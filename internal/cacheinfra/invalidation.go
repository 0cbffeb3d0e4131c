package cacheinfra

import (
	"context"
	"fmt"

	"github.com/goliatone/go-gamestate/internal/telemetry"
)

// ListenForInvalidations subscribes to the invalidation channel and drops
// announced keys from the local tier. It blocks until ctx is done or the
// subscription fails, so callers run it in its own goroutine. Redis itself
// is already consistent once the publisher's delete has returned.
func (r *RedisAdapter) ListenForInvalidations(ctx context.Context) error {
	if r.channel == "" {
		<-ctx.Done()
		return nil
	}

	sub := r.rdb.Subscribe(ctx, r.channel)
	defer sub.Close()

	// wait for the subscription to be confirmed before reporting readiness
	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("redis invalidation subscribe: %w", err)
	}
	r.logger.Debug("listening for peer invalidations", "channel", r.channel)

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			telemetry.PeerInvalidations.Inc()
			if r.local {
				r.cache.DeleteFromLocalCache(r.redisKey(msg.Payload))
			}
		}
	}
}
