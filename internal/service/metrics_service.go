package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/tutoring-booking-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for HTTP traffic and the lesson lifecycle.
type MetricsService struct {
	registry             *prometheus.Registry
	handler              http.Handler
	requestDuration      *prometheus.HistogramVec
	requestTotal         *prometheus.CounterVec
	cacheLatency         prometheus.Observer
	cacheWrite           prometheus.Observer
	cacheLookups         *prometheus.CounterVec
	bookings             *prometheus.CounterVec
	transitions          *prometheus.CounterVec
	sweepLessons         *prometheus.CounterVec
	sweepRuns            *prometheus.CounterVec
	notificationFailures *prometheus.CounterVec
	reportRenders        *prometheus.CounterVec
}

// NewMetricsService registers the collectors on a private registry.
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

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_lookups_total",
		Help: "Cache lookups by result",
	}, []string{"result"})

	bookings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lesson_bookings_total",
		Help: "Booking attempts by path and outcome",
	}, []string{"path", "outcome"})

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lesson_transitions_total",
		Help: "Committed lesson lifecycle transitions",
	}, []string{"event", "to"})

	sweepLessons := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lesson_sweep_lessons_total",
		Help: "Lessons visited by the expiry sweep by outcome",
	}, []string{"outcome"})

	sweepRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lesson_sweep_runs_total",
		Help: "Expiry sweep invocations by result",
	}, []string{"result"})

	notificationFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notification_failures_total",
		Help: "Swallowed notification collaborator failures",
	}, []string{"kind"})

	reportRenders := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lesson_report_renders_total",
		Help: "Lesson summary PDF renders by outcome",
	}, []string{"outcome"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheLookups, bookings, transitions,
		sweepLessons, sweepRuns, notificationFailures, reportRenders, goroutines)

	return &MetricsService{
		registry:             registry,
		handler:              promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:      requestDuration,
		requestTotal:         requestTotal,
		cacheLatency:         cacheLatency,
		cacheWrite:           cacheWrite,
		cacheLookups:         cacheLookups,
		bookings:             bookings,
		transitions:          transitions,
		sweepLessons:         sweepLessons,
		sweepRuns:            sweepRuns,
		notificationFailures: notificationFailures,
		reportRenders:        reportRenders,
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

// Registry exposes the registry for tests and additional collectors.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
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

// RecordCacheOperation records a cache lookup.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheLookups.WithLabelValues("hit").Inc()
	} else {
		m.cacheLookups.WithLabelValues("miss").Inc()
	}
}

// ObserveCacheWrite tracks the duration of cache writes.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordBooking counts a booking attempt.
func (m *MetricsService) RecordBooking(path, outcome string) {
	if m == nil {
		return
	}
	m.bookings.WithLabelValues(path, outcome).Inc()
}

// RecordTransition counts a committed lifecycle transition.
func (m *MetricsService) RecordTransition(event models.LessonEvent, to models.LessonStatus) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(string(event), string(to)).Inc()
}

// RecordSweep adds one sweep invocation and its per-lesson outcomes.
func (m *MetricsService) RecordSweep(result models.SweepResult) {
	if m == nil {
		return
	}
	if result.SkippedRun {
		m.sweepRuns.WithLabelValues("coalesced").Inc()
		return
	}
	m.sweepRuns.WithLabelValues("completed").Inc()
	m.sweepLessons.WithLabelValues("expired").Add(float64(result.Expired))
	m.sweepLessons.WithLabelValues("skipped").Add(float64(result.Skipped))
	m.sweepLessons.WithLabelValues("failed").Add(float64(result.Failed))
}

// RecordNotificationFailure counts a swallowed collaborator failure.
func (m *MetricsService) RecordNotificationFailure(kind string) {
	if m == nil {
		return
	}
	m.notificationFailures.WithLabelValues(kind).Inc()
}

// RecordReportRender counts a PDF render attempt.
func (m *MetricsService) RecordReportRender(outcome string) {
	if m == nil {
		return
	}
	m.reportRenders.WithLabelValues(outcome).Inc()
}
