package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics defines counters for the acquisition pipeline and imports.
type Metrics interface {
	IncFetchAttempt(strategy, outcome string)
	IncAcquisition(kind, outcome string)
	ObserveStage(stage string, durationSeconds float64)
	IncImport(source, status string)
	ObserveRequest(method, route, status string, durationSeconds float64)
}

// Noop implements Metrics without emitting anything.
type Noop struct{}

func (Noop) IncFetchAttempt(string, string)                 {}
func (Noop) IncAcquisition(string, string)                  {}
func (Noop) ObserveStage(string, float64)                   {}
func (Noop) IncImport(string, string)                       {}
func (Noop) ObserveRequest(string, string, string, float64) {}

// Prom implements Metrics backed by Prometheus collectors.
type Prom struct {
	fetchAttempts *prometheus.CounterVec
	acquisitions  *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	imports       *prometheus.CounterVec
	requests      *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	gatherer      prometheus.Gatherer
}

// NewProm registers collectors on reg, or on the default registry when reg
// is nil.
func NewProm(namespace string, reg *prometheus.Registry) *Prom {
	p := &Prom{
		fetchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_attempts_total",
			Help:      "Media fetch attempts by strategy and outcome",
		}, []string{"strategy", "outcome"}),
		acquisitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "acquisitions_total",
			Help:      "Acquisitions by media kind and outcome",
		}, []string{"kind", "outcome"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage latency",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"stage"}),
		imports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "imports_total",
			Help:      "Recipe imports by source and status",
		}, []string{"source", "status"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method/route/status",
		}, []string{"method", "route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method/route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	var registerer prometheus.Registerer = prometheus.DefaultRegisterer
	p.gatherer = prometheus.DefaultGatherer
	if reg != nil {
		registerer = reg
		p.gatherer = reg
	}
	registerer.MustRegister(p.fetchAttempts, p.acquisitions, p.stageDuration, p.imports, p.requests, p.latency)
	return p
}

func (p *Prom) IncFetchAttempt(strategy, outcome string) {
	p.fetchAttempts.WithLabelValues(strategy, outcome).Inc()
}

func (p *Prom) IncAcquisition(kind, outcome string) {
	p.acquisitions.WithLabelValues(kind, outcome).Inc()
}

func (p *Prom) ObserveStage(stage string, durationSeconds float64) {
	p.stageDuration.WithLabelValues(stage).Observe(durationSeconds)
}

func (p *Prom) IncImport(source, status string) {
	p.imports.WithLabelValues(source, status).Inc()
}

func (p *Prom) ObserveRequest(method, route, status string, durationSeconds float64) {
	p.requests.WithLabelValues(method, route, status).Inc()
	p.latency.WithLabelValues(method, route).Observe(durationSeconds)
}

// Handler returns an HTTP handler for /metrics serving this instance's
// registry.
func (p *Prom) Handler() http.Handler {
	return promhttp.HandlerFor(p.gatherer, promhttp.HandlerOpts{})
}
