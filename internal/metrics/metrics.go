// Package metrics exports engine metrics in Prometheus format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exporter holds every collector the engine records into. All methods are
// nil-receiver safe so unit tests can pass a nil exporter.
type Exporter struct {
	registry *prometheus.Registry

	// Ingest metrics
	messagesReceived  *prometheus.CounterVec
	processingSeconds *prometheus.HistogramVec
	webhookRejected   prometheus.Counter

	// Queue metrics
	queueDepth  *prometheus.GaugeVec
	jobsHandled *prometheus.CounterVec

	// Classifier metrics
	classifierRequests *prometheus.CounterVec
	classifierSeconds  *prometheus.HistogramVec
	classifierErrors   *prometheus.CounterVec
	cacheHits          prometheus.Counter
	cacheMisses        prometheus.Counter

	// Circuit breaker metrics
	breakerState       prometheus.Gauge
	breakerTransitions *prometheus.CounterVec

	// Delivery metrics
	alertDeliveries *prometheus.CounterVec
}

// Config configures the exporter.
type Config struct {
	// Registry to register into. A nil registry creates a private one.
	Registry *prometheus.Registry

	// Buckets for latency histograms, in seconds.
	LatencyBuckets []float64
}

// DefaultConfig returns the default exporter configuration.
func DefaultConfig() Config {
	return Config{
		LatencyBuckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	}
}

// NewExporter creates an Exporter with all collectors registered.
func NewExporter(cfg Config) *Exporter {
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = DefaultConfig().LatencyBuckets
	}
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector())
		registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	e := &Exporter{registry: registry}

	e.messagesReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "slawatch_messages_received_total",
		Help: "Inbound chat messages by chat type and sender class.",
	}, []string{"chat_type", "sender"})

	e.processingSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "slawatch_message_processing_seconds",
		Help:    "End-to-end processing duration of an inbound message.",
		Buckets: cfg.LatencyBuckets,
	}, []string{"outcome"})

	e.webhookRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "slawatch_webhook_signature_failures_total",
		Help: "Webhook updates rejected for a bad or missing secret token.",
	})

	e.queueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "slawatch_queue_depth",
		Help: "Pending jobs per named queue.",
	}, []string{"queue"})

	e.jobsHandled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "slawatch_queue_jobs_total",
		Help: "Handled jobs per queue and outcome (completed, retried, failed).",
	}, []string{"queue", "outcome"})

	e.classifierRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "slawatch_classifier_requests_total",
		Help: "Classification requests by model and resulting category.",
	}, []string{"model", "category"})

	e.classifierSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "slawatch_classifier_seconds",
		Help:    "Classification latency by model.",
		Buckets: cfg.LatencyBuckets,
	}, []string{"model"})

	e.classifierErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "slawatch_classifier_errors_total",
		Help: "Classifier errors by model and error kind.",
	}, []string{"model", "kind"})

	e.cacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "slawatch_classification_cache_hits_total",
		Help: "Classification cache hits.",
	})

	e.cacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "slawatch_classification_cache_misses_total",
		Help: "Classification cache misses.",
	})

	e.breakerState = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "slawatch_ai_breaker_state",
		Help: "Circuit breaker state: 0 closed, 1 open, 2 half-open.",
	})

	e.breakerTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "slawatch_ai_breaker_transitions_total",
		Help: "Circuit breaker transitions by target state.",
	}, []string{"to"})

	e.alertDeliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "slawatch_alert_deliveries_total",
		Help: "Alert delivery attempts by alert type and outcome.",
	}, []string{"type", "outcome"})

	registry.MustRegister(
		e.messagesReceived, e.processingSeconds, e.webhookRejected,
		e.queueDepth, e.jobsHandled,
		e.classifierRequests, e.classifierSeconds, e.classifierErrors,
		e.cacheHits, e.cacheMisses,
		e.breakerState, e.breakerTransitions,
		e.alertDeliveries,
	)

	return e
}

// Handler returns the /metrics HTTP handler.
func (e *Exporter) Handler() http.Handler {
	if e == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

func (e *Exporter) RecordMessageReceived(chatType, sender string) {
	if e == nil {
		return
	}
	e.messagesReceived.WithLabelValues(chatType, sender).Inc()
}

func (e *Exporter) ObserveProcessing(outcome string, seconds float64) {
	if e == nil {
		return
	}
	e.processingSeconds.WithLabelValues(outcome).Observe(seconds)
}

func (e *Exporter) RecordWebhookRejected() {
	if e == nil {
		return
	}
	e.webhookRejected.Inc()
}

func (e *Exporter) SetQueueDepth(queue string, depth float64) {
	if e == nil {
		return
	}
	e.queueDepth.WithLabelValues(queue).Set(depth)
}

func (e *Exporter) RecordJob(queue, outcome string) {
	if e == nil {
		return
	}
	e.jobsHandled.WithLabelValues(queue, outcome).Inc()
}

func (e *Exporter) RecordClassification(model, category string, seconds float64) {
	if e == nil {
		return
	}
	e.classifierRequests.WithLabelValues(model, category).Inc()
	e.classifierSeconds.WithLabelValues(model).Observe(seconds)
}

func (e *Exporter) RecordClassifierError(model, kind string) {
	if e == nil {
		return
	}
	e.classifierErrors.WithLabelValues(model, kind).Inc()
}

func (e *Exporter) RecordCacheHit() {
	if e == nil {
		return
	}
	e.cacheHits.Inc()
}

func (e *Exporter) RecordCacheMiss() {
	if e == nil {
		return
	}
	e.cacheMisses.Inc()
}

func (e *Exporter) SetBreakerState(state float64) {
	if e == nil {
		return
	}
	e.breakerState.Set(state)
}

func (e *Exporter) RecordBreakerTransition(to string) {
	if e == nil {
		return
	}
	e.breakerTransitions.WithLabelValues(to).Inc()
}

func (e *Exporter) RecordDelivery(alertType, outcome string) {
	if e == nil {
		return
	}
	e.alertDeliveries.WithLabelValues(alertType, outcome).Inc()
}
