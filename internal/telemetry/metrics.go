package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var CacheHits = promauto.NewCounter(prometheus.CounterOpts{
	Name: "gamestate_cache_hits_total",
	Help: "Number of reads served from the cache",
})

var CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
	Name: "gamestate_cache_misses_total",
	Help: "Number of reads that missed the cache",
})

var RequestsCoalesced = promauto.NewCounter(prometheus.CounterOpts{
	Name: "gamestate_requests_coalesced_total",
	Help: "Number of reads that shared an in-flight backend fetch",
})

var CacheErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "gamestate_cache_errors_total",
	Help: "Number of cache operations that failed and were degraded to a miss",
}, []string{"op"})

var StoreErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "gamestate_store_errors_total",
	Help: "Number of store operations that failed",
}, []string{"op"})

var UpstreamFetches = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "gamestate_upstream_fetches_total",
	Help: "Number of fetches issued to peer services, by outcome",
}, []string{"outcome"})

var WriteConflicts = promauto.NewCounter(prometheus.CounterOpts{
	Name: "gamestate_write_conflicts_total",
	Help: "Number of writes rejected by the optimistic version check",
})

var Invalidations = promauto.NewCounter(prometheus.CounterOpts{
	Name: "gamestate_invalidations_total",
	Help: "Number of cache invalidations issued by this process",
})

var PeerInvalidations = promauto.NewCounter(prometheus.CounterOpts{
	Name: "gamestate_peer_invalidations_total",
	Help: "Number of invalidation messages received from peers",
})
