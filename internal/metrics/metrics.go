package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Claim Engine

	ClaimsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "claims_total",
		Help:      "Total claim attempts, by outcome (won, lost).",
	}, []string{"outcome"})

	PermitsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "scheduler",
		Name:      "permits_in_flight",
		Help:      "Permits currently held by a worker across all jobs on this node.",
	})

	HandlerDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "scheduler",
		Name:      "handler_duration_seconds",
		Help:      "Duration of a registered handler invocation, by job type and outcome.",
		Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 300},
	}, []string{"type", "outcome"})

	RescheduleTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "reschedule_total",
		Help:      "Total reschedule outcomes, by action (rescheduled, removed, stale).",
	}, []string{"action"})

	ExpiredReclaimsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "expired_reclaims_total",
		Help:      "Total jobs claimed via the expired-candidate path (a prior worker's lease lapsed).",
	})

	// Scan Scheduler

	ScanDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "scheduler",
		Name:      "scan_duration_seconds",
		Help:      "Wall time of one claim session, whether or not it found a candidate.",
		Buckets:   prometheus.DefBuckets,
	})

	ScanRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "scan_requests_total",
		Help:      "Total scan requests consumed, by kind (initial, rearm, targeted).",
	}, []string{"kind"})

	// HTTP control plane

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "scheduler",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests.",
	}, []string{"method", "path", "status"})
)

func Register() {
	prometheus.MustRegister(
		ClaimsTotal,
		PermitsInFlight,
		HandlerDuration,
		RescheduleTotal,
		ExpiredReclaimsTotal,
		ScanDuration,
		ScanRequestsTotal,
		HTTPRequestDuration,
		HTTPRequestsTotal,
	)
}

func NewServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &http.Server{Addr: addr, Handler: mux}
}
