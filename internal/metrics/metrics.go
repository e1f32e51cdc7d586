package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/STRATINT/eventcatalog/internal/ingestion"
	"github.com/STRATINT/eventcatalog/internal/models"
)

const namespace = "eventcatalog"

// Collector exposes Prometheus metrics for HTTP traffic, ingestion and
// enrichment. It implements ingestion.UpsertObserver and
// enrichment.Observer.
type Collector struct {
	registry           *prometheus.Registry
	requestDuration    *prometheus.HistogramVec
	requestTotal       *prometheus.CounterVec
	upsertTotal        *prometheus.CounterVec
	enrichmentTotal    *prometheus.CounterVec
	enrichmentDuration *prometheus.HistogramVec
	enqueueTotal       *prometheus.CounterVec
}

// NewCollector constructs a collector on its own registry.
func NewCollector() (*Collector, error) {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency distribution for inbound HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of inbound HTTP requests.",
		}, []string{"method", "path", "status"}),
		upsertTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "upserts_total",
			Help:      "Scraped records by upsert outcome and duplicate match tier.",
		}, []string{"source", "outcome", "tier"}),
		enrichmentTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "enrichment",
			Name:      "runs_total",
			Help:      "Enrichment provider runs by mode and final log status.",
		}, []string{"mode", "status"}),
		enrichmentDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "enrichment",
			Name:      "run_duration_seconds",
			Help:      "Latency distribution of enrichment provider runs.",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 2.5, 5, 10, 20, 45},
		}, []string{"mode"}),
		enqueueTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "enrichment",
			Name:      "enqueued_total",
			Help:      "Enrichment tasks handed to the queue, by result.",
		}, []string{"result"}),
	}

	for _, collector := range []prometheus.Collector{
		c.requestDuration,
		c.requestTotal,
		c.upsertTotal,
		c.enrichmentTotal,
		c.enrichmentDuration,
		c.enqueueTotal,
		collectors.NewGoCollector(),
	} {
		if err := registry.Register(collector); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// RegisterQueueDepth exposes the enrichment queue length as a gauge read
// at scrape time.
func (c *Collector) RegisterQueueDepth(depth func() float64) error {
	return c.registry.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "enrichment",
		Name:      "queue_depth",
		Help:      "Enrichment jobs waiting in the queue.",
	}, depth))
}

// ObserveUpsert counts one upsert outcome.
func (c *Collector) ObserveUpsert(source string, outcome ingestion.UpsertOutcome, tier ingestion.MatchTier) {
	label := string(tier)
	if label == "" {
		label = "none"
	}
	c.upsertTotal.WithLabelValues(source, string(outcome), label).Inc()
}

// ObserveEnrichment counts one provider run.
func (c *Collector) ObserveEnrichment(mode models.EnrichmentMode, status models.LogStatus, elapsed time.Duration) {
	c.enrichmentTotal.WithLabelValues(string(mode), string(status)).Inc()
	c.enrichmentDuration.WithLabelValues(string(mode)).Observe(elapsed.Seconds())
}

// CountEnqueues wraps a dispatcher so every enqueue is counted.
func (c *Collector) CountEnqueues(next ingestion.EnrichmentDispatcher) ingestion.EnrichmentDispatcher {
	return &countingDispatcher{next: next, total: c.enqueueTotal}
}

type countingDispatcher struct {
	next  ingestion.EnrichmentDispatcher
	total *prometheus.CounterVec
}

func (d *countingDispatcher) Enqueue(ctx context.Context, eventID int64, delay time.Duration) error {
	if err := d.next.Enqueue(ctx, eventID, delay); err != nil {
		d.total.WithLabelValues("error").Inc()
		return err
	}
	d.total.WithLabelValues("ok").Inc()
	return nil
}

// Handler returns an HTTP handler for exposing Prometheus metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler to record HTTP metrics.
// Requests routed by chi are labelled with their route pattern so path
// parameters do not explode label cardinality.
func (c *Collector) InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(rw.status)
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}

		c.requestTotal.WithLabelValues(r.Method, path, status).Inc()
		c.requestDuration.WithLabelValues(r.Method, path, status).Observe(duration)
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
