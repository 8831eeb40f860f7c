package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TileRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tiles_requests_total",
		Help: "Total number of tile requests by response status",
	}, []string{"status"})

	TileCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tiles_cache_hits_total",
		Help: "Total number of tiles served from cache",
	})

	TileCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tiles_cache_misses_total",
		Help: "Total number of tile cache misses",
	})

	TileRenders = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tiles_renders_total",
		Help: "Total number of tile rasterizations by layer",
	}, []string{"layer"})

	TileRenderErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tiles_render_errors_total",
		Help: "Total number of failed tile renders by reason",
	}, []string{"reason"})

	TileRenderLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tiles_render_latency_seconds",
		Help:    "Latency of tile rasterization and encoding in seconds",
		Buckets: prometheus.DefBuckets,
	})

	TileBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tiles_encoded_bytes",
		Help:    "Size of encoded tiles in bytes",
		Buckets: prometheus.ExponentialBuckets(128, 2, 10),
	})
)
