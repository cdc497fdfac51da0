package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_WithContextAddsRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "info", Format: "json", Output: &buf, ServiceName: "catalog-test"})

	ctx := ContextWithRequestID(context.Background(), "req-42")
	logger.WithContext(ctx).WithOperation("search").Info().Int("results", 3).Msg("done")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "req-42", entry["request_id"])
	assert.Equal(t, "search", entry["operation"])
	assert.Equal(t, "catalog-test", entry["service"])
	assert.Equal(t, float64(3), entry["results"])
}

func TestLogger_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "warn", Output: &buf})

	logger.Info().Msg("hidden")
	assert.Zero(t, buf.Len())

	logger.Warn().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestLogger_EventFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "debug", Output: &buf})

	logger.Error().
		Err(errors.New("redis down")).
		Strs("product_ids", []string{"a", "b"}).
		Dur("elapsed", 1500*time.Millisecond).
		Str("cache", "redis").
		Msg("comparison cache write failed")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "redis down", entry["error"])
	assert.Equal(t, []interface{}{"a", "b"}, entry["product_ids"])
	assert.Equal(t, 1500.0, entry["elapsed"])
	assert.Equal(t, "redis", entry["cache"])
}

func TestRequestIDFromContext_Empty(t *testing.T) {
	assert.Empty(t, RequestIDFromContext(context.Background()))
}

func TestClassifyStatus(t *testing.T) {
	tests := map[int]string{200: "2xx", 304: "3xx", 404: "4xx", 503: "5xx", 99: "unknown"}
	for code, want := range tests {
		assert.Equal(t, want, classifyStatus(code), code)
	}
}

func TestMetrics_Exposition(t *testing.T) {
	m := NewMetrics()
	m.RecordRequest(http.MethodGet, "/api/v1/search", 200, 20*time.Millisecond)
	m.ObserveSearch(12)
	m.CountComparison(true)
	m.CountComparison(false)
	m.AddSessionsSwept(2)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()
	assert.Contains(t, body, `http_requests_total{endpoint="/api/v1/search",method="GET",status="2xx"} 1`)
	assert.Contains(t, body, `catalog_comparisons_total{cache="hit"} 1`)
	assert.Contains(t, body, "catalog_search_candidates_count 1")
	assert.Contains(t, body, "catalog_sessions_swept_total 2")
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRequest("GET", "/", 200, time.Millisecond)
		m.ObserveSearch(1)
		m.CountComparison(false)
		m.AddSessionsSwept(1)
	})
}
