package service

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetricsServiceExposesDomainCollectors(t *testing.T) {
	m := NewMetricsService()
	m.ObserveHTTPRequest(http.MethodGet, "/api/v1/courses", 200, 5*time.Millisecond)
	m.ObserveIngestion("eulji-general", "markup", "ok", 2*time.Second)
	m.ObserveUpsert("eulji-general", 3, 1)
	m.ObserveGeneration(4, 20*time.Millisecond)
	m.JobStarted()
	m.JobFinished()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, body, `ingestion_runs_total{institution="eulji-general",mode="markup",outcome="ok"} 1`)
	assert.Contains(t, body, `courses_upserted_total{institution="eulji-general",result="inserted"} 3`)
	assert.Contains(t, body, "generation_combinations_count 1")
	assert.Contains(t, body, "ingestion_jobs_in_flight 0")
}

func TestNilMetricsServiceIsSafe(t *testing.T) {
	var m *MetricsService
	m.ObserveIngestion("x", "markup", "ok", time.Second)
	m.ObserveGeneration(0, time.Second)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
