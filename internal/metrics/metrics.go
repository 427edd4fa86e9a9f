package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Ingest outcomes.
const (
	OutcomeCreated  = "created"
	OutcomeExisting = "existing"
	OutcomeFailed   = "failed"
)

var HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "docoutline_http_requests_total",
	Help: "Total number of requests labelled by route and status",
}, []string{"route", "status"})

var documentsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "docoutline_documents_ingested_total",
	Help: "Ingest calls by outcome",
}, []string{"outcome"})

var ingestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "docoutline_ingest_duration_seconds",
	Help:    "Time spent in Ingest, by outcome.",
	Buckets: []float64{.01, .05, .1, .25, .5, 1, 2, 5, 10},
}, []string{"outcome"})

var sectionsPerDocument = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "docoutline_sections_per_document",
	Help:    "Number of sections produced per parsed document.",
	Buckets: prometheus.ExponentialBuckets(1, 4, 7),
})

var parseWarnings = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "docoutline_parse_warnings_total",
	Help: "Non-fatal extraction warnings by code",
}, []string{"code"})

var treeCache = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "docoutline_tree_cache_total",
	Help: "Section tree cache lookups by result",
}, []string{"result"})

var countJobsInQueue = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "docoutline_jobs_in_queue",
	Help: "Number of batch jobs waiting for a worker",
})

var activeWorkerCount = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "docoutline_active_workers",
	Help: "Number of workers currently ingesting a document",
})

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

func CaptureIngest(outcome string, elapsed time.Duration) {
	documentsIngested.WithLabelValues(outcome).Inc()
	ingestDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func ObserveSections(n int) {
	sectionsPerDocument.Observe(float64(n))
}

func IncrementWarning(code string) {
	parseWarnings.WithLabelValues(code).Inc()
}

func CaptureCacheLookup(hit bool) {
	if hit {
		treeCache.WithLabelValues("hit").Inc()
		return
	}
	treeCache.WithLabelValues("miss").Inc()
}

func IncrementJobsInQueue() {
	countJobsInQueue.Inc()
}

func DecrementJobsInQueue() {
	countJobsInQueue.Dec()
}

func IncrementActiveWorkerCount() {
	activeWorkerCount.Inc()
}

func DecrementActiveWorkerCount() {
	activeWorkerCount.Dec()
}
