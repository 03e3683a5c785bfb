// Package obs is the ambient observability layer: structured logging
// construction and the Prometheus metrics exposed on the dashboard's
// /metrics endpoint.
package obs

import (
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
)

// NewLogger builds the process-wide structured logger. Components
// receive it through explicit constructor injection rather than
// reaching for a package-level global.
func NewLogger(level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

// Metrics holds every Prometheus collector this service registers.
type Metrics struct {
	PagesCrawled     prometheus.Counter
	ChunksProduced   prometheus.Counter
	EmbedderLatency  prometheus.Histogram
	RetrievalLatency prometheus.Histogram
	IndexModeInUse   *prometheus.GaugeVec
}

// NewMetrics constructs and registers all collectors against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PagesCrawled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docufind_pages_crawled_total",
			Help: "Total pages successfully fetched and processed.",
		}),
		ChunksProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docufind_chunks_produced_total",
			Help: "Total chunks written to the store.",
		}),
		EmbedderLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "docufind_embedder_latency_seconds",
			Help:    "Latency of embedding calls.",
			Buckets: prometheus.DefBuckets,
		}),
		RetrievalLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "docufind_retrieval_latency_seconds",
			Help:    "Latency of perform_rag_query end to end.",
			Buckets: prometheus.DefBuckets,
		}),
		IndexModeInUse: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "docufind_index_mode",
			Help: "1 for the active nearest-neighbor index mode (brute_force or hnsw), 0 otherwise.",
		}, []string{"mode"}),
	}

	reg.MustRegister(m.PagesCrawled, m.ChunksProduced, m.EmbedderLatency, m.RetrievalLatency, m.IndexModeInUse)
	return m
}
