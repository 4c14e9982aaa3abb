// Package metrics defines the Prometheus collectors for catalog ingestion and
// search. All recording methods are safe on a nil receiver so pipelines can
// run without metrics wired.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "catalog"

// Ingest tracks ingestion runs.
type Ingest struct {
	runs           *prometheus.CounterVec
	records        prometheus.Counter
	batches        prometheus.Counter
	failures       *prometheus.CounterVec
	embedDuration  prometheus.Histogram
	upsertDuration prometheus.Histogram
	batchSize      prometheus.Histogram
}

// NewIngest registers the ingestion collectors with reg.
func NewIngest(reg prometheus.Registerer) *Ingest {
	f := promauto.With(reg)
	return &Ingest{
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_runs_total",
			Help:      "Ingestion runs by outcome.",
		}, []string{"status"}),
		records: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_records_total",
			Help:      "Products upserted into the vector store.",
		}),
		batches: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_batches_total",
			Help:      "Batches embedded and upserted.",
		}),
		failures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_failures_total",
			Help:      "Ingestion failures by stage.",
		}, []string{"stage"}),
		embedDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_embed_duration_seconds",
			Help:      "Latency of one batched embedding call.",
			Buckets:   prometheus.DefBuckets,
		}),
		upsertDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_upsert_duration_seconds",
			Help:      "Latency of one vector store upsert.",
			Buckets:   prometheus.DefBuckets,
		}),
		batchSize: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_batch_size",
			Help:      "Records per embedding batch.",
			Buckets:   []float64{1, 5, 10, 20, 50, 100, 250, 500},
		}),
	}
}

// Run records the outcome of a whole ingestion run.
func (m *Ingest) Run(status string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(status).Inc()
}

// Batch records one committed batch of n records.
func (m *Ingest) Batch(n int) {
	if m == nil {
		return
	}
	m.batches.Inc()
	m.records.Add(float64(n))
	m.batchSize.Observe(float64(n))
}

// Failure counts a failure in the named stage.
func (m *Ingest) Failure(stage string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(stage).Inc()
}

func (m *Ingest) EmbedSince(start time.Time) {
	if m == nil {
		return
	}
	m.embedDuration.Observe(time.Since(start).Seconds())
}

func (m *Ingest) UpsertSince(start time.Time) {
	if m == nil {
		return
	}
	m.upsertDuration.Observe(time.Since(start).Seconds())
}

// Search tracks search requests.
type Search struct {
	requests *prometheus.CounterVec
	duration prometheus.Histogram
	matches  prometheus.Histogram
}

// NewSearch registers the search collectors with reg.
func NewSearch(reg prometheus.Registerer) *Search {
	f := promauto.With(reg)
	return &Search{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_requests_total",
			Help:      "Search requests by outcome.",
		}, []string{"outcome"}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "End-to-end search latency.",
			Buckets:   prometheus.DefBuckets,
		}),
		matches: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_matches",
			Help:      "Matches returned per search.",
			Buckets:   []float64{0, 1, 2, 3, 5, 10, 20},
		}),
	}
}

// Done records a finished search.
func (m *Search) Done(outcome string, matches int, start time.Time) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(outcome).Inc()
	m.duration.Observe(time.Since(start).Seconds())
	m.matches.Observe(float64(matches))
}

// Handler exposes g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
