package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Booking outcomes recorded by the transactor.
const (
	OutcomeSuccess   = "success"
	OutcomeConflict  = "conflict"
	OutcomeTransient = "transient"
	OutcomeRejected  = "rejected"
	OutcomeError     = "error"
)

// Metrics holds the Prometheus collectors of one process. A nil *Metrics is a no-op.
type Metrics struct {
	registry        *prometheus.Registry
	httpReqCnt      *prometheus.CounterVec
	httpDur         *prometheus.HistogramVec
	bookingAttempts *prometheus.CounterVec
	bookingDur      *prometheus.HistogramVec
	gatewayDenials  *prometheus.CounterVec
	relayJobs       *prometheus.CounterVec
}

// New registers all collectors under namespace on a private registry.
func New(namespace string) *Metrics {
	r := prometheus.NewRegistry()
	r.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	r.MustRegister(collectors.NewGoCollector())

	httpReqCnt := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total"}, []string{"method", "route", "status"})
	httpDur := prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: namespace, Name: "http_request_duration_seconds", Buckets: prometheus.DefBuckets}, []string{"method", "route"})
	bookingAttempts := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "booking_attempts_total"}, []string{"operation", "outcome"})
	bookingDur := prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: namespace, Name: "booking_duration_seconds", Buckets: prometheus.DefBuckets}, []string{"operation"})
	gatewayDenials := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "gateway_denials_total"}, []string{"entity", "reason"})
	relayJobs := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "notification_jobs_total"}, []string{"type", "status"})
	r.MustRegister(httpReqCnt, httpDur, bookingAttempts, bookingDur, gatewayDenials, relayJobs)

	return &Metrics{
		registry:        r,
		httpReqCnt:      httpReqCnt,
		httpDur:         httpDur,
		bookingAttempts: bookingAttempts,
		bookingDur:      bookingDur,
		gatewayDenials:  gatewayDenials,
		relayJobs:       relayJobs,
	}
}

// BookingDone records the outcome of one transactor operation.
func (m *Metrics) BookingDone(operation, outcome string, since time.Time) {
	if m == nil {
		return
	}
	m.bookingAttempts.WithLabelValues(operation, outcome).Inc()
	m.bookingDur.WithLabelValues(operation).Observe(time.Since(since).Seconds())
}

// GatewayDenied records a rejected gateway call.
func (m *Metrics) GatewayDenied(entity, reason string) {
	if m == nil {
		return
	}
	m.gatewayDenials.WithLabelValues(entity, reason).Inc()
}

// RelayJob records a processed notification job.
func (m *Metrics) RelayJob(jobType, status string) {
	if m == nil {
		return
	}
	m.relayJobs.WithLabelValues(jobType, status).Inc()
}

// Middleware records request counts and latencies per route template.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpReqCnt.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDur.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
