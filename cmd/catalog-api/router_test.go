package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/catalog-engine/cmd/catalog-api/middleware"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/cache"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/catalog"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/storage"
)

func newTestRouter(t *testing.T, cfg RouterConfig) (http.Handler, map[string]string) {
	t.Helper()
	fx, err := storage.LoadFixturesFile("../../internal/storage/testdata/catalog.json")
	require.NoError(t, err)

	store := storage.NewMemoryStore()
	res, err := storage.Import(context.Background(), store, fx, nil)
	require.NoError(t, err)

	c := cache.NewMemoryClient(100)
	t.Cleanup(func() { c.Close() })

	metrics := observability.NewMetrics()
	service := catalog.NewService(store, catalog.Options{Cache: c, Metrics: metrics})
	return NewRouter(observability.NopLogger(), metrics, service, cfg), res.IDs
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func productIDs(t *testing.T, body map[string]any) []string {
	t.Helper()
	items, ok := body["products"].([]any)
	require.True(t, ok)
	out := make([]string, 0, len(items))
	for _, it := range items {
		m := it.(map[string]any)
		id, ok := m["product_id"].(string)
		if !ok {
			id = m["id"].(string)
		}
		out = append(out, id)
	}
	return out
}

func TestRouter_Health(t *testing.T) {
	h, _ := newTestRouter(t, RouterConfig{})

	rec := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode(t, rec)["status"])

	rec = do(t, h, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", decode(t, rec)["status"])
}

func TestRouter_Search(t *testing.T) {
	h, ids := newTestRouter(t, RouterConfig{})

	tests := []struct {
		name     string
		target   string
		status   int
		expected []string
	}{
		{
			name:     "budget",
			target:   "/api/v1/search?category=smartphones&budget_max=800",
			status:   http.StatusOK,
			expected: []string{ids["p-pixel8"], ids["p-iphone15"], ids["p-fairphone"]},
		},
		{
			name:     "ram alias",
			target:   "/api/v1/search?category=smartphones&sort=popularity&min_ram=8",
			status:   http.StatusOK,
			expected: []string{ids["p-galaxy-s24"], ids["p-pixel8"], ids["p-fairphone"]},
		},
		{
			name:     "os filter",
			target:   "/api/v1/search?os=android&sort=popularity",
			status:   http.StatusOK,
			expected: []string{ids["p-galaxy-s24"], ids["p-pixel8"]},
		},
		{name: "unknown sort", target: "/api/v1/search?sort=newest", status: http.StatusBadRequest},
		{name: "malformed budget", target: "/api/v1/search?budget_max=cheap", status: http.StatusBadRequest},
		{name: "malformed spec filter", target: "/api/v1/search?min_ram=lots", status: http.StatusBadRequest},
		{name: "infinite budget", target: "/api/v1/search?category=smartphones&budget_max=Inf", status: http.StatusBadRequest},
		{name: "NaN budget", target: "/api/v1/search?category=smartphones&budget_max=NaN", status: http.StatusBadRequest},
		{name: "infinite min rating", target: "/api/v1/search?min_rating=-Infinity", status: http.StatusBadRequest},
		{name: "NaN spec filter", target: "/api/v1/search?min_ram=NaN", status: http.StatusBadRequest},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, tc.target, "")
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
			body := decode(t, rec)
			if tc.status != http.StatusOK {
				assert.NotEmpty(t, body["error"])
				return
			}
			assert.Equal(t, tc.expected, productIDs(t, body))
		})
	}
}

func TestRouter_Products(t *testing.T) {
	h, ids := newTestRouter(t, RouterConfig{})
	pixel := ids["p-pixel8"]

	rec := do(t, h, http.MethodGet, "/api/v1/products/"+pixel, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decode(t, rec), "variants")

	rec = do(t, h, http.MethodGet, "/api/v1/products/"+pixel+"/price-range?budget_max=680", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, 650.0, body["min"])
	assert.Equal(t, true, body["in_budget"])

	for _, budget := range []string{"Inf", "NaN", "0"} {
		rec = do(t, h, http.MethodGet, "/api/v1/products/"+pixel+"/price-range?budget_max="+budget, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, budget)
		assert.NotEmpty(t, decode(t, rec)["error"])
	}

	rec = do(t, h, http.MethodGet, "/api/v1/products/"+pixel+"/specs/os/provenance", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Android 14", decode(t, rec)["value"])

	rec = do(t, h, http.MethodGet, "/api/v1/products/does-not-exist", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/products?category=smartphones&limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 2)

	rec = do(t, h, http.MethodGet, "/api/v1/products?limit=500", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_Categories(t *testing.T) {
	h, _ := newTestRouter(t, RouterConfig{})

	rec := do(t, h, http.MethodGet, "/api/v1/categories", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotZero(t, decode(t, rec)["total"])

	rec = do(t, h, http.MethodGet, "/api/v1/categories/smartphones/brands", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 4.0, decode(t, rec)["total"])

	rec = do(t, h, http.MethodGet, "/api/v1/categories/toasters/top", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_Compare(t *testing.T) {
	h, ids := newTestRouter(t, RouterConfig{})
	target := "/api/v1/compare?product_ids=" + ids["p-iphone15"] + "," + ids["p-galaxy-s24"]

	rec := do(t, h, http.MethodGet, target, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, false, decode(t, rec)["cached"])

	rec = do(t, h, http.MethodGet, target, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["cached"])

	rec = do(t, h, http.MethodGet, "/api/v1/compare?product_ids=a,b,c,d,e", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	pixel := ids["p-pixel8"]
	rec = do(t, h, http.MethodGet, "/api/v1/compare?product_ids="+strings.Join([]string{pixel, pixel, ids["p-iphone15"], ids["p-galaxy-s24"], ids["p-fairphone"]}, ","), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/compare", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_SessionLifecycle(t *testing.T) {
	h, ids := newTestRouter(t, RouterConfig{})

	rec := do(t, h, http.MethodPost, "/api/v1/compare/sessions", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	sessionID := decode(t, rec)["session_id"].(string)
	base := "/api/v1/compare/sessions/" + sessionID

	rec = do(t, h, http.MethodPost, base+"/products", `{"product_id":"`+ids["p-pixel8"]+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1.0, decode(t, rec)["count"])

	rec = do(t, h, http.MethodGet, base, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{ids["p-pixel8"]}, productIDs(t, decode(t, rec)))

	rec = do(t, h, http.MethodDelete, base+"/products/"+ids["p-pixel8"], "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0.0, decode(t, rec)["count"])

	rec = do(t, h, http.MethodPost, base+"/products", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodDelete, base, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/compare/sessions/unknown", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_Offers(t *testing.T) {
	h, _ := newTestRouter(t, RouterConfig{})

	rec := do(t, h, http.MethodPost, "/api/v1/offers/batch", `{"variant_ids":[""]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	results := decode(t, rec)["results"].([]any)
	require.Len(t, results, 1)
	assert.NotEmpty(t, results[0].(map[string]any)["error"])

	rec = do(t, h, http.MethodPost, "/api/v1/offers/batch", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_MetricsAndCORS(t *testing.T) {
	h, _ := newTestRouter(t, RouterConfig{CORSOrigins: []string{"https://shop.example"}})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/search", nil)
	req.Header.Set("Origin", "https://shop.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://shop.example", rec.Header().Get("Access-Control-Allow-Origin"))

	do(t, h, http.MethodGet, "/api/v1/search?category=smartphones", "")
	rec = do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `endpoint="/api/v1/search"`)
}

func TestRouter_RateLimit(t *testing.T) {
	h, _ := newTestRouter(t, RouterConfig{RateLimit: &middleware.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1}})

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/v1/categories", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(t, h, http.MethodGet, "/api/v1/categories", "").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health", "").Code)
}

type downReader struct {
	storage.Reader
}

func (downReader) Ping(context.Context) error {
	return errors.New("connection refused")
}

func (downReader) FindProducts(context.Context, storage.Filter) ([]storage.Product, error) {
	return nil, errors.New("connection refused")
}

func TestRouter_StorageOutage(t *testing.T) {
	service := catalog.NewService(downReader{}, catalog.Options{})
	h := NewRouter(observability.NopLogger(), nil, service, RouterConfig{})

	rec := do(t, h, http.MethodGet, "/api/v1/search", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")

	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/ready", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/metrics", "").Code)
}
