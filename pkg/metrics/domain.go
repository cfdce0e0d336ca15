package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Domain metrics for the download and watermark pipelines. Registered on the
// default registry, exposed through the same /metrics listener as the HTTP
// metrics.
var (
	DownloadsServed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "downloads_served_total",
		Help: "Downloads that passed authorization and were streamed.",
	})

	DownloadsDenied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "downloads_denied_total",
		Help: "Download requests denied, partitioned by reason.",
	}, []string{"reason"})

	QuotasExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quotas_expired_total",
		Help: "Quota rows transitioned to expired by the overdue sweep.",
	})

	WatermarkCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "watermark_cache_hits_total",
		Help: "Watermark requests served from the cache.",
	})

	WatermarkCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "watermark_cache_misses_total",
		Help: "Watermark requests that triggered a render.",
	})

	WatermarkFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "watermark_failures_total",
		Help: "Renders that failed and fell back to the original image.",
	})
)
