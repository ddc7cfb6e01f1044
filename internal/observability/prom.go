package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "parcelhub"

var (
	httpBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5}
	dbBuckets   = []float64{0.002, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2}
	jobBuckets  = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 3, 10, 30}
)

// Prom holds every collector the api and the worker export.
type Prom struct {
	RequestsTotal    *prometheus.CounterVec
	RequestsDuration *prometheus.HistogramVec
	InFlight         *prometheus.GaugeVec

	DbQueryDuration *prometheus.HistogramVec
	DbErrorsTotal   *prometheus.CounterVec

	// result is done, retry or failed
	JobDuration  *prometheus.HistogramVec
	JobResults   *prometheus.CounterVec
	JobsInFlight prometheus.Gauge

	ParcelTransitions  *prometheus.CounterVec
	PaymentTransitions *prometheus.CounterVec
	NotificationsSent  *prometheus.CounterVec
}

func counter(subsystem, name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, labels)
}

func histogram(subsystem, name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
		Buckets:   buckets,
	}, labels)
}

func NewProm(reg prometheus.Registerer) *Prom {
	p := &Prom{
		RequestsTotal:    counter("http", "requests_total", "HTTP requests by route and status.", "method", "route", "status"),
		RequestsDuration: histogram("http", "request_duration_seconds", "HTTP request latency.", httpBuckets, "method", "route", "status"),
		InFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "HTTP requests currently being served.",
		}, []string{"method", "route"}),

		DbQueryDuration: histogram("db", "query_duration_seconds", "Repository operation latency by logical op.", dbBuckets, "op", "status"),
		DbErrorsTotal:   counter("db", "errors_total", "Repository errors by logical op and class.", "op", "class"),

		JobDuration: histogram("jobs", "duration_seconds", "Job execution time by type and result.", jobBuckets, "job_type", "result"),
		JobResults:  counter("jobs", "results_total", "Job outcomes by type and result.", "job_type", "result"),
		JobsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "in_flight",
			Help:      "Jobs executing in this process.",
		}),

		ParcelTransitions:  counter("parcels", "transitions_total", "Committed parcel status changes.", "from", "to"),
		PaymentTransitions: counter("payments", "transitions_total", "Committed payment status changes.", "from", "to"),
		NotificationsSent:  counter("notifications", "sent_total", "Notifications handed to the notifier by kind and outcome.", "kind", "outcome"),
	}

	reg.MustRegister(
		p.RequestsTotal, p.RequestsDuration, p.InFlight,
		p.DbQueryDuration, p.DbErrorsTotal,
		p.JobDuration, p.JobResults, p.JobsInFlight,
		p.ParcelTransitions, p.PaymentTransitions, p.NotificationsSent,
	)
	return p
}

// GinHandleMiddleware records request counts and latency under the matched
// route template, so /parcels/:id/ is one series rather than one per parcel.
func (p *Prom) GinHandleMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method

		inflight := p.InFlight.WithLabelValues(method, route)
		inflight.Inc()
		defer inflight.Dec()

		start := time.Now()
		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		p.RequestsTotal.WithLabelValues(method, route, status).Inc()
		p.RequestsDuration.WithLabelValues(method, route, status).Observe(time.Since(start).Seconds())
	}
}
