package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tourdesk/booking-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for the booking
// engine and the HTTP layer.
type MetricsService struct {
	registry *prometheus.Registry
	handler  http.Handler

	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter

	submissionsTotal     prometheus.Counter
	seatRejectionsTotal  *prometheus.CounterVec
	transitionsTotal     *prometheus.CounterVec
	notifyFailuresTotal  prometheus.Counter
	reconciledEnrollment prometheus.Counter
}

// Stages at which a capacity rejection can occur.
const (
	SeatRejectionStageSubmit  = "submit"
	SeatRejectionStageConfirm = "confirm"
)

// NewMetricsService registers the core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	submissionsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tour_applications_submitted_total",
		Help: "Total tour applications accepted at submission",
	})

	seatRejectionsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tour_seat_rejections_total",
		Help: "Requests rejected because a tour had no remaining seats",
	}, []string{"stage"})

	transitionsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tour_status_transitions_total",
		Help: "Accepted application status transitions",
	}, []string{"from", "to"})

	notifyFailuresTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notification_dispatch_failures_total",
		Help: "Status-change notification deliveries that failed",
	})

	reconciledEnrollment := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "enrollments_reconciled_total",
		Help: "Enrollments moved to COMPLETED by lazy reconciliation",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheHits, cacheMisses,
		submissionsTotal, seatRejectionsTotal, transitionsTotal, notifyFailuresTotal,
		reconciledEnrollment, goroutines)

	return &MetricsService{
		registry:             registry,
		handler:              promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:      requestDuration,
		requestTotal:         requestTotal,
		cacheHits:            cacheHits,
		cacheMisses:          cacheMisses,
		submissionsTotal:     submissionsTotal,
		seatRejectionsTotal:  seatRejectionsTotal,
		transitionsTotal:     transitionsTotal,
		notifyFailuresTotal:  notifyFailuresTotal,
		reconciledEnrollment: reconciledEnrollment,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records a cache hit or miss.
func (m *MetricsService) RecordCacheOperation(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// RecordSubmission counts an accepted application submission.
func (m *MetricsService) RecordSubmission() {
	if m == nil {
		return
	}
	m.submissionsTotal.Inc()
}

// RecordSeatRejection counts a capacity rejection at the given stage.
func (m *MetricsService) RecordSeatRejection(stage string) {
	if m == nil {
		return
	}
	m.seatRejectionsTotal.WithLabelValues(stage).Inc()
}

// RecordTransition counts an accepted status transition.
func (m *MetricsService) RecordTransition(from, to models.ApplicationStatus) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(string(from), string(to)).Inc()
}

// RecordNotificationFailure counts a failed notification delivery attempt.
func (m *MetricsService) RecordNotificationFailure() {
	if m == nil {
		return
	}
	m.notifyFailuresTotal.Inc()
}

// RecordReconciledEnrollments counts enrollments completed by reconciliation.
func (m *MetricsService) RecordReconciledEnrollments(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.reconciledEnrollment.Add(float64(n))
}
