// Package metrics exposes agentgate's Prometheus collectors. Each Collector
// owns its registry so tests and embedded servers do not collide on the
// global default registerer.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "agentgate"

// Default is the process-wide collector used by the serve command.
var Default = New()

// Collector groups every metric the gateway records. All methods are safe
// on a nil receiver so components can run without metrics.
type Collector struct {
	registry  *prometheus.Registry
	startTime time.Time

	envelopes      *prometheus.CounterVec
	responses      *prometheus.CounterVec
	rateLimited    *prometheus.CounterVec
	dispatchErrors *prometheus.CounterVec
	stages         *prometheus.CounterVec
	brainLatency   prometheus.Histogram
	socketClients  prometheus.Gauge
}

// New creates a collector with a fresh registry.
func New() *Collector {
	c := &Collector{
		registry:  prometheus.NewRegistry(),
		startTime: time.Now(),
		envelopes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "envelopes_total",
			Help:      "Normalized envelopes produced, by source.",
		}, []string{"source"}),
		responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_responses_total",
			Help:      "Webhook responses, by source and HTTP status.",
		}, []string{"source", "status"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Webhook requests rejected by the per-agent limiter.",
		}, []string{"source"}),
		dispatchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_errors_total",
			Help:      "Failed forwards to Agent Dispatch, by backend.",
		}, []string{"backend"}),
		stages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "brain_stage_total",
			Help:      "Brain pipeline stage outcomes.",
		}, []string{"stage", "outcome"}),
		brainLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "brain_duration_seconds",
			Help:      "End-to-end brain pipeline latency in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 20},
		}),
		socketClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "socket_clients",
			Help:      "Currently connected socket clients.",
		}),
	}

	uptime := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "uptime_seconds",
		Help:      "Time since start in seconds.",
	}, func() float64 { return c.Uptime().Seconds() })

	c.registry.MustRegister(
		c.envelopes, c.responses, c.rateLimited, c.dispatchErrors,
		c.stages, c.brainLatency, c.socketClients, uptime,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry exposes the underlying registry, mainly for tests.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Uptime returns how long the collector has been running.
func (c *Collector) Uptime() time.Duration {
	if c == nil {
		return 0
	}
	return time.Since(c.startTime)
}

// Handler renders the registry in Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) Envelope(source string) {
	if c == nil {
		return
	}
	c.envelopes.WithLabelValues(source).Inc()
}

func (c *Collector) WebhookResponse(source string, status int) {
	if c == nil {
		return
	}
	c.responses.WithLabelValues(source, strconv.Itoa(status)).Inc()
}

func (c *Collector) RateLimited(source string) {
	if c == nil {
		return
	}
	c.rateLimited.WithLabelValues(source).Inc()
}

func (c *Collector) DispatchError(backend string) {
	if c == nil {
		return
	}
	c.dispatchErrors.WithLabelValues(backend).Inc()
}

// Stage records one pipeline stage outcome, e.g. ("cache", "hit").
func (c *Collector) Stage(stage, outcome string) {
	if c == nil {
		return
	}
	c.stages.WithLabelValues(stage, outcome).Inc()
}

func (c *Collector) BrainDuration(d time.Duration) {
	if c == nil {
		return
	}
	c.brainLatency.Observe(d.Seconds())
}

func (c *Collector) SocketClients(n int) {
	if c == nil {
		return
	}
	c.socketClients.Set(float64(n))
}
