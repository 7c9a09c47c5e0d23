package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusCollector implements Recorder backed by Prometheus.
type PrometheusCollector struct {
	gatherer prometheus.Gatherer

	created       *prometheus.CounterVec
	rejected      *prometheus.CounterVec
	updated       prometheus.Counter
	deleted       prometheus.Counter
	notifications *prometheus.CounterVec
	requests      *prometheus.CounterVec
	latency       *prometheus.HistogramVec
}

var _ Recorder = (*PrometheusCollector)(nil)

// NewPrometheus registers the collectors on reg. A nil reg gets a private
// registry, which keeps tests isolated from the global one.
func NewPrometheus(reg *prometheus.Registry, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	if namespace == "" {
		namespace = "rotations"
	}

	p := &PrometheusCollector{
		gatherer: reg,
		created: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "assignments",
			Name:      "created_total",
			Help:      "Assignments accepted, by whether they override a conflict.",
		}, []string{"exceptional"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "assignments",
			Name:      "rejected_total",
			Help:      "Assignment writes rejected, by error kind.",
		}, []string{"kind"}),
		updated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "assignments",
			Name:      "updated_total",
			Help:      "Assignments updated.",
		}),
		deleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "assignments",
			Name:      "deleted_total",
			Help:      "Assignments permanently deleted.",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "deliveries_total",
			Help:      "Exceptional-assignment alert deliveries, by channel and result.",
		}, []string{"channel", "result"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms .. ~10s
		}, []string{"method", "route"}),
	}

	reg.MustRegister(p.created, p.rejected, p.updated, p.deleted, p.notifications, p.requests, p.latency)
	return p
}

// Handler serves the registry in the Prometheus exposition format.
func (p *PrometheusCollector) Handler() http.Handler {
	return promhttp.HandlerFor(p.gatherer, promhttp.HandlerOpts{})
}

func (p *PrometheusCollector) RecordAssignmentCreated(exceptional bool) {
	p.created.WithLabelValues(strconv.FormatBool(exceptional)).Inc()
}

func (p *PrometheusCollector) RecordAssignmentRejected(kind string) {
	p.rejected.WithLabelValues(kind).Inc()
}

func (p *PrometheusCollector) RecordAssignmentUpdated() { p.updated.Inc() }

func (p *PrometheusCollector) RecordAssignmentDeleted() { p.deleted.Inc() }

func (p *PrometheusCollector) RecordNotification(channel string, ok bool) {
	result := "success"
	if !ok {
		result = "failure"
	}
	p.notifications.WithLabelValues(channel, result).Inc()
}

func (p *PrometheusCollector) ObserveRequest(method, route string, status int, duration time.Duration) {
	p.requests.WithLabelValues(method, route, statusLabel(status)).Inc()
	p.latency.WithLabelValues(method, route).Observe(duration.Seconds())
}
