package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AssignmentsTotal   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "smartcabb_dispatch", Name: "assignments_total", Help: "Total ride assignments"})
	AcceptsTotal       = promauto.NewCounter(prometheus.CounterOpts{Namespace: "smartcabb_dispatch", Name: "accepts_total", Help: "Total accepted assignments"})
	DeclinesTotal      = promauto.NewCounter(prometheus.CounterOpts{Namespace: "smartcabb_dispatch", Name: "declines_total", Help: "Total declined assignments, explicit and via timeout"})
	TimeoutsTotal      = promauto.NewCounter(prometheus.CounterOpts{Namespace: "smartcabb_dispatch", Name: "timeouts_total", Help: "Total offers expired without an answer"})
	DispatchEmptyTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "smartcabb_dispatch", Name: "dispatch_empty_total", Help: "Dispatch attempts that found no eligible driver"})
	CancellationsTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "smartcabb_dispatch", Name: "cancellations_total", Help: "Rides cancelled after exhausting dispatch attempts"})
	DriversOnline      = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "smartcabb_dispatch", Name: "drivers_online", Help: "Driver presence updates seen"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "smartcabb_dispatch", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "smartcabb_dispatch",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
