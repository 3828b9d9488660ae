package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds the prometheus metrics of the service.
// A nil *Collector is valid and records nothing.
type Collector struct {
	transitionsTotal    *prometheus.CounterVec
	slaBreachesTotal    *prometheus.CounterVec
	slaScanDuration     prometheus.Histogram
	slaScanFailures     prometheus.Counter
	allocationsTotal    *prometheus.CounterVec
	complaintsCreated   *prometheus.CounterVec
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewCollector registers the metrics with reg
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		transitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "complaint_transitions_total",
				Help: "Workflow transitions by action and result",
			},
			[]string{"action", "result"},
		),
		slaBreachesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "complaint_sla_breaches_total",
				Help: "SLA breaches by outcome (escalated, flagged, exhausted)",
			},
			[]string{"outcome"},
		),
		slaScanDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "complaint_sla_scan_duration_seconds",
				Help:    "Duration of SLA breach scans",
				Buckets: prometheus.DefBuckets,
			},
		),
		slaScanFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "complaint_sla_scan_item_failures_total",
				Help: "Complaints the SLA scan failed to handle",
			},
		),
		allocationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "complaint_allocations_total",
				Help: "Allocation and assignment attempts by operation and result",
			},
			[]string{"operation", "result"},
		),
		complaintsCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "complaints_created_total",
				Help: "Complaints created by category",
			},
			[]string{"category"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "complaint_http_requests_total",
				Help: "HTTP requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "complaint_http_request_duration_seconds",
				Help:    "HTTP request latency by route",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordTransition counts a transition attempt
func (c *Collector) RecordTransition(action string, err error) {
	if c == nil {
		return
	}
	c.transitionsTotal.WithLabelValues(action, result(err)).Inc()
}

// RecordSLABreach counts a handled breach
func (c *Collector) RecordSLABreach(outcome string) {
	if c == nil {
		return
	}
	c.slaBreachesTotal.WithLabelValues(outcome).Inc()
}

// ObserveSLAScan records one scan run
func (c *Collector) ObserveSLAScan(d time.Duration, failures int) {
	if c == nil {
		return
	}
	c.slaScanDuration.Observe(d.Seconds())
	c.slaScanFailures.Add(float64(failures))
}

// RecordAllocation counts allocate and confirm calls
func (c *Collector) RecordAllocation(operation string, err error) {
	if c == nil {
		return
	}
	c.allocationsTotal.WithLabelValues(operation, result(err)).Inc()
}

// RecordComplaintCreated counts a new complaint
func (c *Collector) RecordComplaintCreated(category string) {
	if c == nil {
		return
	}
	c.complaintsCreated.WithLabelValues(category).Inc()
}

// GinMiddleware records request counts and latency per route template
func (c *Collector) GinMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()
		if c == nil {
			return
		}

		route := ctx.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := ctx.Request.Method
		c.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(ctx.Writer.Status())).Inc()
		c.httpRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}
