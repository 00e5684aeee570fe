package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registered once through promauto; every component writes into these.
var (
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptcanvas_http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "path", "status"},
	)

	HttpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "promptcanvas_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"method", "path"},
	)

	// CanvasNodes and CanvasEdges track the graph store size after every mutation.
	CanvasNodes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "promptcanvas_canvas_nodes",
		Help: "Number of nodes on the canvas",
	})

	CanvasEdges = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "promptcanvas_canvas_edges",
		Help: "Number of edges on the canvas",
	})

	CacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "promptcanvas_cache_entries",
			Help: "Entries held by each auxiliary store",
		},
		[]string{"store"},
	)

	// OperationsTotal counts orchestrated AI actions by kind and terminal status.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptcanvas_operations_total",
			Help: "AI operations by kind and terminal status",
		},
		[]string{"kind", "status"},
	)

	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "promptcanvas_operation_duration_seconds",
			Help:    "Duration of AI collaborator calls",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"kind"},
	)

	EvictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptcanvas_evictions_total",
			Help: "Entities removed by the retention manager",
		},
		[]string{"resource", "strategy"},
	)

	AggressiveMode = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "promptcanvas_retention_aggressive",
		Help: "1 while the retention manager runs at the shortened interval",
	})
)
