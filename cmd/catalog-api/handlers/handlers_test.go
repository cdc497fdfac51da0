package handlers

import (
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/catalog"
)

func TestParseSearchRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet,
		"/search?category=smartphones&brand=sony&os=android&min_rating=4.5&budget_max=800&sort=price&limit=5&min_ram=8&min_storage=128&min_battery.capacity_mah=4000", nil)

	req, err := parseSearchRequest(r)
	require.NoError(t, err)
	assert.Equal(t, "smartphones", req.Category)
	assert.Equal(t, "sony", req.Brand)
	assert.Equal(t, "android", req.OS)
	assert.Equal(t, "price", req.Sort)
	assert.Equal(t, 5, req.Limit)
	require.NotNil(t, req.MinRating)
	assert.Equal(t, 4.5, *req.MinRating)
	require.NotNil(t, req.BudgetMax)
	assert.Equal(t, 800.0, *req.BudgetMax)
	assert.Equal(t, map[string]float64{
		"ram_gb":               8,
		"storage_gb":           128,
		"battery.capacity_mah": 4000,
	}, req.SpecFilters)
}

func TestParseSearchRequest_Errors(t *testing.T) {
	for _, target := range []string{
		"/search?min_rating=high",
		"/search?budget_max=1e",
		"/search?limit=ten",
		"/search?min_ram=",
		"/search?budget_max=Inf",
		"/search?budget_max=NaN",
		"/search?min_rating=-Inf",
		"/search?min_storage=Infinity",
	} {
		t.Run(target, func(t *testing.T) {
			_, err := parseSearchRequest(httptest.NewRequest(http.MethodGet, target, nil))
			assert.Error(t, err)
		})
	}
}

func TestParseSearchRequest_Empty(t *testing.T) {
	req, err := parseSearchRequest(httptest.NewRequest(http.MethodGet, "/search", nil))
	require.NoError(t, err)
	assert.Nil(t, req.BudgetMax)
	assert.Nil(t, req.SpecFilters)
	assert.Zero(t, req.Limit)
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err      error
		expected int
	}{
		{catalog.NotFound("missing", nil), http.StatusNotFound},
		{catalog.InvalidInput("bad", nil), http.StatusBadRequest},
		{catalog.UpstreamUnavailable("down", nil), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.err.Error(), func(t *testing.T) {
			assert.Equal(t, tc.expected, statusOf(tc.err))
		})
	}
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitList(" a, ,b,"))
	assert.Nil(t, splitList(""))
}

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusCreated, map[string]float64{"score": 1.5})
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"score":1.5}`, rec.Body.String())

	rec = httptest.NewRecorder()
	writeJSON(rec, http.StatusOK, map[string]float64{"score": math.NaN()})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "encoding failed")
}
