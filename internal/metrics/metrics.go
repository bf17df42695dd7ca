package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "storefront"

type ServerMetrics struct {
	Requests  *prometheus.CounterVec
	LatencyMS *prometheus.HistogramVec

	registry *prometheus.Registry
}

func NewServerMetrics(service string) *ServerMetrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: service,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"handler", "status"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: service,
		Name:      "http_request_duration_ms",
		Help:      "HTTP request latency in milliseconds.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"handler"})

	registry.MustRegister(requests, latency)
	return &ServerMetrics{Requests: requests, LatencyMS: latency, registry: registry}
}

// Observe records one served request.
func (m *ServerMetrics) Observe(handler string, status int, ms float64) {
	m.Requests.WithLabelValues(handler, strconv.Itoa(status)).Inc()
	m.LatencyMS.WithLabelValues(handler).Observe(ms)
}

func (m *ServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Reconciliation registers the payment reconciliation counters on the same registry.
func (m *ServerMetrics) Reconciliation() *Reconciliation {
	r := &Reconciliation{
		applied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_applied_total",
			Help:      "Payments that won the reconciliation gate, by entry point.",
		}, []string{"source"}),
		duplicates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_duplicate_total",
			Help:      "Payment confirmations that found the order already paid.",
		}, []string{"source"}),
		shortfalls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credential_shortfalls_total",
			Help:      "Credential lines left undelivered for lack of pool records.",
		}),
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhooks_total",
			Help:      "Gateway webhooks received, by outcome.",
		}, []string{"result"}),
	}
	m.registry.MustRegister(r.applied, r.duplicates, r.shortfalls, r.webhooks)
	return r
}

// Reconciliation counters. A nil *Reconciliation records nothing.
type Reconciliation struct {
	applied    *prometheus.CounterVec
	duplicates *prometheus.CounterVec
	shortfalls prometheus.Counter
	webhooks   *prometheus.CounterVec
}

func (r *Reconciliation) PaymentApplied(source string) {
	if r == nil {
		return
	}
	r.applied.WithLabelValues(source).Inc()
}

func (r *Reconciliation) PaymentDuplicate(source string) {
	if r == nil {
		return
	}
	r.duplicates.WithLabelValues(source).Inc()
}

func (r *Reconciliation) CredentialShortfall() {
	if r == nil {
		return
	}
	r.shortfalls.Inc()
}

func (r *Reconciliation) Webhook(result string) {
	if r == nil {
		return
	}
	r.webhooks.WithLabelValues(result).Inc()
}
