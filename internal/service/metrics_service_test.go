package service

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsServiceMatchingCounters(t *testing.T) {
	metrics := NewMetricsService()

	metrics.RecordEscalationWave(OutcomeDispatched, 10)
	metrics.RecordEscalationWave(OutcomeDispatched, 5)
	metrics.RecordEscalationWave(OutcomeExhausted, 0)
	metrics.RecordAcceptAttempt(OutcomeAssigned)
	metrics.RecordAcceptAttempt(OutcomeRaceLost)
	metrics.RecordAcceptAttempt(OutcomeRaceLost)
	metrics.RecordDeliveryFailure()

	assert.Equal(t, 15.0, testutil.ToFloat64(metrics.invitationsDispatched))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.escalationWaves.WithLabelValues(OutcomeDispatched)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.escalationWaves.WithLabelValues(OutcomeExhausted)))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.acceptAttempts.WithLabelValues(OutcomeRaceLost)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.deliveryFailures))
}

func TestMetricsServiceNilSafe(t *testing.T) {
	var metrics *MetricsService
	assert.NotPanics(t, func() {
		metrics.RecordEscalationWave(OutcomeStale, 0)
		metrics.RecordAcceptAttempt(OutcomeError)
		metrics.RecordDeliveryFailure()
		metrics.ObserveHTTPRequest(http.MethodGet, "/health", http.StatusOK, time.Millisecond)
	})
}

func TestMetricsServiceHandlerExposesCollectors(t *testing.T) {
	metrics := NewMetricsService()
	metrics.ObserveHTTPRequest(http.MethodPost, "/api/v1/substitute-requests", http.StatusCreated, 20*time.Millisecond)
	metrics.RecordAcceptAttempt(OutcomeAssigned)

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "http_requests_total")
	assert.Contains(t, body, `accept_attempts_total{outcome="assigned"} 1`)
}
