// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// History fetch metrics
	SignaturePagesFetched prometheus.Counter
	TransactionsFetched   prometheus.Counter
	TransactionsDecoded   prometheus.Counter
	FetchErrors           prometheus.Counter
	DecodeErrors          prometheus.Counter
	CacheHits             prometheus.Counter
	CacheMisses           prometheus.Counter

	// Replay metrics
	EventsClassified *prometheus.CounterVec
	AttributionDrops prometheus.Counter
	ReplaysTotal     *prometheus.CounterVec
	ReplayDuration   prometheus.Histogram

	// RPC metrics
	RPCCallLatency *prometheus.HistogramVec

	// Live tail metrics
	LogNotifications prometheus.Counter
	WSReconnects     prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "deriverse_analytics"
	}

	return &Metrics{
		SignaturePagesFetched: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "signature_pages_fetched_total",
			Help:      "Total number of getSignaturesForAddress pages fetched",
		}),
		TransactionsFetched: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "transactions_fetched_total",
			Help:      "Total number of transactions fetched from RPC",
		}),
		TransactionsDecoded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "transactions_decoded_total",
			Help:      "Total number of transactions with successfully decoded program logs",
		}),
		FetchErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "fetch_errors_total",
			Help:      "Total number of transactions skipped because the RPC fetch kept failing",
		}),
		DecodeErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "decode_errors_total",
			Help:      "Total number of transactions skipped due to log decode failures",
		}),
		CacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "cache_hits_total",
			Help:      "Total number of wallet fetches served at least partially from cache",
		}),
		CacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "cache_misses_total",
			Help:      "Total number of wallet fetches with no cached transactions",
		}),
		EventsClassified: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "replay",
			Name:      "events_classified_total",
			Help:      "Total number of timeline events classified, by kind",
		}, []string{"kind"}),
		AttributionDrops: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "replay",
			Name:      "attribution_drops_total",
			Help:      "Total number of records dropped because no instrument could be attributed",
		}),
		ReplaysTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "replay",
			Name:      "replays_total",
			Help:      "Total number of wallet replays, by status",
		}, []string{"status"}),
		ReplayDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "replay",
			Name:      "duration_seconds",
			Help:      "Wallet replay duration in seconds, fetch included",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "call_duration_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		LogNotifications: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tail",
			Name:      "log_notifications_total",
			Help:      "Total number of live log notifications received",
		}),
		WSReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tail",
			Name:      "ws_reconnects_total",
			Help:      "Total number of WebSocket reconnects",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordEventClassified increments the classified events counter for a kind.
func RecordEventClassified(kind string) {
	DefaultMetrics.EventsClassified.WithLabelValues(kind).Inc()
}

// RecordAttributionDrop increments the attribution drop counter.
func RecordAttributionDrop() {
	DefaultMetrics.AttributionDrops.Inc()
}

// RecordReplay records a completed wallet replay.
func RecordReplay(status string, durationSeconds float64) {
	DefaultMetrics.ReplaysTotal.WithLabelValues(status).Inc()
	DefaultMetrics.ReplayDuration.Observe(durationSeconds)
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}
