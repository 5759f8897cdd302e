package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP surface, ingestion and generation.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	ingestionDuration *prometheus.HistogramVec
	ingestionTotal    *prometheus.CounterVec
	coursesUpserted   *prometheus.CounterVec

	generationDuration prometheus.Histogram
	combinations       prometheus.Histogram
	jobsInFlight       prometheus.Gauge
}

// NewMetricsService registers core Prometheus collectors.
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

	ingestionDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ingestion_duration_seconds",
		Help:    "Duration of adapter runs",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 900},
	}, []string{"institution", "mode"})

	ingestionTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingestion_runs_total",
		Help: "Adapter runs by outcome",
	}, []string{"institution", "mode", "outcome"})

	coursesUpserted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "courses_upserted_total",
		Help: "Courses written by ingestion, split into inserted and updated",
	}, []string{"institution", "result"})

	generationDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "generation_duration_seconds",
		Help:    "Duration of schedule generation",
		Buckets: prometheus.DefBuckets,
	})

	combinations := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "generation_combinations",
		Help:    "Feasible combinations found per generation request",
		Buckets: []float64{0, 1, 5, 10, 50, 100, 250, 500},
	})

	jobsInFlight := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ingestion_jobs_in_flight",
		Help: "Asynchronous ingestion jobs queued or running",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, ingestionDuration, ingestionTotal, coursesUpserted, generationDuration, combinations, jobsInFlight, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:           registry,
		handler:            handler,
		requestDuration:    requestDuration,
		requestTotal:       requestTotal,
		ingestionDuration:  ingestionDuration,
		ingestionTotal:     ingestionTotal,
		coursesUpserted:    coursesUpserted,
		generationDuration: generationDuration,
		combinations:       combinations,
		jobsInFlight:       jobsInFlight,
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

// ObserveIngestion records one adapter run. outcome is "ok" or an error stage.
func (m *MetricsService) ObserveIngestion(institution, mode, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ingestionDuration.WithLabelValues(institution, mode).Observe(duration.Seconds())
	m.ingestionTotal.WithLabelValues(institution, mode, outcome).Inc()
}

// ObserveUpsert records the counts of a saved batch.
func (m *MetricsService) ObserveUpsert(institution string, inserted, updated int) {
	if m == nil {
		return
	}
	m.coursesUpserted.WithLabelValues(institution, "inserted").Add(float64(inserted))
	m.coursesUpserted.WithLabelValues(institution, "updated").Add(float64(updated))
}

// ObserveGeneration records the search time and the number of feasible combinations.
func (m *MetricsService) ObserveGeneration(found int, duration time.Duration) {
	if m == nil {
		return
	}
	m.generationDuration.Observe(duration.Seconds())
	m.combinations.Observe(float64(found))
}

// JobStarted and JobFinished track the asynchronous ingestion backlog.
func (m *MetricsService) JobStarted() {
	if m == nil {
		return
	}
	m.jobsInFlight.Inc()
}

// JobFinished is the counterpart of JobStarted.
func (m *MetricsService) JobFinished() {
	if m == nil {
		return
	}
	m.jobsInFlight.Dec()
}
