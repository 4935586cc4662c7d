package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcomes recorded for finished report jobs.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
)

var (
	// Report pipeline
	ReportJobsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adsb_report_jobs_submitted_total",
			Help: "Total number of report jobs submitted",
		},
		[]string{"type"},
	)

	ReportJobsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adsb_report_jobs_finished_total",
			Help: "Total number of report jobs whose data generation finished",
		},
		[]string{"type", "outcome"},
	)

	ReportGenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adsb_report_generation_duration_seconds",
			Help:    "Duration of report data generation in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"type"},
	)

	ReportQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "adsb_report_queue_depth",
			Help: "Number of report jobs waiting for a worker",
		},
	)

	// Access control
	OwnershipChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adsb_ownership_checks_total",
			Help: "Total number of ownership checks by operation and result",
		},
		[]string{"operation", "result"}, // allowed, denied, skipped, expired
	)

	// HTTP
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adsb_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adsb_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

func RecordReportSubmitted(reportType string) {
	ReportJobsSubmitted.WithLabelValues(reportType).Inc()
}

// RecordReportFinished records the outcome and duration of one generation run.
func RecordReportFinished(reportType string, succeeded bool, duration time.Duration) {
	outcome := OutcomeSucceeded
	if !succeeded {
		outcome = OutcomeFailed
	}
	ReportJobsFinished.WithLabelValues(reportType, outcome).Inc()
	ReportGenerationDuration.WithLabelValues(reportType).Observe(duration.Seconds())
}

func RecordOwnershipCheck(operation, result string) {
	OwnershipChecks.WithLabelValues(operation, result).Inc()
}

func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
