package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/cache"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/comparison"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/reviews"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/storage"
)

func ptr[T any](v T) *T { return &v }

func newTestService(t *testing.T) (*Service, map[string]string) {
	t.Helper()
	fx, err := storage.LoadFixturesFile("../storage/testdata/catalog.json")
	require.NoError(t, err)

	store := storage.NewMemoryStore()
	res, err := storage.Import(context.Background(), store, fx, nil)
	require.NoError(t, err)

	c := cache.NewMemoryClient(100)
	t.Cleanup(func() { c.Close() })

	return NewService(store, Options{Cache: c}), res.IDs
}

func TestService_Search(t *testing.T) {
	svc, ids := newTestService(t)

	res, err := svc.Search(context.Background(), SearchRequest{Category: "smartphones", BudgetMax: ptr(800.0)})
	require.NoError(t, err)

	assert.Equal(t, 3, res.TotalResults)
	require.Len(t, res.Products, 3)
	assert.Equal(t, "score", res.Query.Sort)
	assert.Equal(t, 20, res.Query.Limit)

	top := res.Products[0]
	assert.Equal(t, ids["p-pixel8"], top.ProductID)
	assert.Equal(t, 144.6, top.Score)
	assert.Equal(t, 5.6, top.ScoreBreakdown.Price)
	assert.Equal(t, 650.0, top.PriceRange.Min)
	assert.True(t, top.PriceRange.InBudget)
	assert.Equal(t, "Within budget", top.Explanation)
	assert.Equal(t, []string{"storage_gb", "ram_gb", "battery", "os", "ip_rating", "weight_g"}, top.Specs.Keys())

	last := res.Products[2]
	assert.Equal(t, ids["p-fairphone"], last.ProductID)
	assert.False(t, last.PriceRange.Known)
	assert.Equal(t, "Price unknown", last.Explanation)
}

func TestService_SearchValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  SearchRequest
	}{
		{"unknown sort", SearchRequest{Sort: "newest"}},
		{"zero budget", SearchRequest{BudgetMax: ptr(0.0)}},
		{"infinite budget", SearchRequest{BudgetMax: ptr(math.Inf(1))}},
		{"NaN budget", SearchRequest{BudgetMax: ptr(math.NaN())}},
		{"NaN min rating", SearchRequest{MinRating: ptr(math.NaN())}},
		{"infinite spec filter", SearchRequest{SpecFilters: map[string]float64{"ram_gb": math.Inf(-1)}}},
		{"negative limit", SearchRequest{Limit: -1}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Search(ctx, tc.req)
			assert.True(t, IsInvalidInput(err), "got %v", err)
		})
	}

	res, err := svc.Search(ctx, SearchRequest{Limit: 1000})
	require.NoError(t, err)
	assert.Equal(t, MaxListLimit, res.Query.Limit)
}

func TestService_PriceRange(t *testing.T) {
	svc, ids := newTestService(t)
	ctx := context.Background()

	res, err := svc.PriceRange(ctx, ids["p-pixel8"], ptr(680.0))
	require.NoError(t, err)
	assert.Equal(t, 650.0, res.Min)
	assert.Equal(t, 700.0, res.Max)
	assert.True(t, res.InBudget)
	assert.Equal(t, 2, res.OfferCount)

	res, err = svc.PriceRange(ctx, ids["p-fairphone"], ptr(680.0))
	require.NoError(t, err)
	assert.Zero(t, res.Min)
	assert.Zero(t, res.Max)
	assert.False(t, res.InBudget)
	assert.False(t, res.Known)

	_, err = svc.PriceRange(ctx, "nope", nil)
	assert.True(t, IsNotFound(err))
	_, err = svc.PriceRange(ctx, "", nil)
	assert.True(t, IsInvalidInput(err))

	for _, budget := range []float64{0, -5, math.Inf(1), math.NaN()} {
		_, err = svc.PriceRange(ctx, ids["p-pixel8"], ptr(budget))
		assert.True(t, IsInvalidInput(err), "budget %v: got %v", budget, err)
	}
}

func TestService_Compare(t *testing.T) {
	svc, ids := newTestService(t)
	ctx := context.Background()

	res, err := svc.Compare(ctx, []string{ids["p-pixel8"], " " + ids["p-iphone15"], ids["p-pixel8"]})
	require.NoError(t, err)
	assert.False(t, res.Cached)
	require.Len(t, res.Products, 2)
	assert.Equal(t, []string{ids["p-pixel8"], ids["p-iphone15"]}, res.Comparison.ProductIDs)

	again, err := svc.Compare(ctx, []string{ids["p-pixel8"], ids["p-iphone15"]})
	require.NoError(t, err)
	assert.True(t, again.Cached)

	data, err := json.Marshal(again.Comparison)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"spec_labels"`)

	_, err = svc.Compare(ctx, []string{"a", "b", "c", "d", "e"})
	assert.True(t, IsInvalidInput(err))
	assert.ErrorIs(t, err, comparison.ErrTooManyProducts)

	// Five ids are too many even when two of them repeat.
	p := ids["p-pixel8"]
	_, err = svc.Compare(ctx, []string{p, p, ids["p-iphone15"], ids["p-galaxy-s24"], ids["p-fairphone"]})
	assert.ErrorIs(t, err, comparison.ErrTooManyProducts)

	_, err = svc.Compare(ctx, []string{" ", ""})
	assert.True(t, IsInvalidInput(err))

	res, err = svc.Compare(ctx, []string{"unknown"})
	require.NoError(t, err)
	assert.Empty(t, res.Products)
	assert.Empty(t, res.Comparison.ProductIDs)
}

func TestService_ProductDetail(t *testing.T) {
	svc, ids := newTestService(t)
	ctx := context.Background()

	res, err := svc.GetProduct(ctx, ids["p-iphone15"])
	require.NoError(t, err)
	assert.Equal(t, 2, res.TotalVariants)
	assert.Equal(t, "Apple", res.Product.Brand)

	list, err := svc.ListProducts(ctx, ProductListRequest{Brand: "SONY"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, ids["p-bravia"], list[0].ID)

	_, err = svc.ListProducts(ctx, ProductListRequest{Limit: 101})
	assert.True(t, IsInvalidInput(err))
}

func TestService_SpecProvenance(t *testing.T) {
	svc, ids := newTestService(t)
	ctx := context.Background()

	res, err := svc.SpecProvenance(ctx, ids["p-pixel8"], "os")
	require.NoError(t, err)
	assert.Equal(t, "Android 14", res.Value)
	assert.Equal(t, 0.9, res.Confidence)
	assert.Equal(t, []string{"store.google.com"}, res.Sources)

	res, err = svc.SpecProvenance(ctx, ids["p-pixel8"], "battery.capacity_mah")
	require.NoError(t, err)
	assert.Equal(t, json.Number("4575"), res.Value)
	assert.Equal(t, []string{"manufacturer"}, res.Sources)

	_, err = svc.SpecProvenance(ctx, ids["p-pixel8"], "battery.solar")
	assert.True(t, IsNotFound(err))
}

func TestService_VariantOffers(t *testing.T) {
	svc, ids := newTestService(t)
	ctx := context.Background()

	res, err := svc.VariantOffers(ctx, ids["v-iphone15-128"])
	require.NoError(t, err)
	assert.Equal(t, 3, res.TotalOffers)
	assert.Equal(t, 649.0, res.Offers[0].PriceAmount)
	require.NotNil(t, res.BestNew)
	assert.Equal(t, "amazon", res.BestNew.Retailer)
	require.NotNil(t, res.BestRefurbished)
	assert.Equal(t, "backmarket", res.BestRefurbished.Retailer)

	batch, err := svc.BatchCheapest(ctx, []string{ids["v-s24-256"], "", ids["v-iphone15-256"]})
	require.NoError(t, err)
	require.Len(t, batch.Results, 3)
	assert.Equal(t, 859.99, batch.Results[0].CheapestOffer.PriceAmount)
	assert.Equal(t, "invalid variant id", batch.Results[1].Error)
	assert.Equal(t, 899.0, batch.Results[2].CheapestOffer.PriceAmount)
}

func TestService_ReviewSummary(t *testing.T) {
	svc, ids := newTestService(t)
	ctx := context.Background()

	res, err := svc.ReviewSummary(ctx, ids["p-iphone15"])
	require.NoError(t, err)
	assert.Equal(t, reviews.CoverageLow, res.CoverageLevel)
	assert.Equal(t, 8.5, res.AverageRating)
	assert.Equal(t, 0.72, res.AverageCredibility)
	require.Len(t, res.Reviews, 3)
	assert.Equal(t, "The Verge", res.Reviews[0].Source)
	assert.Equal(t, "A solid upgrade", res.Reviews[0].Title)

	none, err := svc.ReviewSummary(ctx, ids["p-bravia"])
	require.NoError(t, err)
	assert.Equal(t, reviews.CoverageNone, none.CoverageLevel)
	assert.Equal(t, reviews.NoReviewsMessage, none.Summary)
	assert.Empty(t, none.Reviews)
}

func TestService_Sessions(t *testing.T) {
	svc, ids := newTestService(t)
	ctx := context.Background()

	sess, err := svc.CreateSession(ctx)
	require.NoError(t, err)
	assert.Zero(t, sess.Count)

	detail, err := svc.GetSession(ctx, sess.SessionID)
	require.NoError(t, err)
	assert.Empty(t, detail.Products)
	assert.Nil(t, detail.Comparison)

	_, err = svc.AddToSession(ctx, sess.SessionID, ids["p-pixel8"])
	require.NoError(t, err)
	updated, err := svc.AddToSession(ctx, sess.SessionID, ids["p-bravia"])
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Count)

	detail, err = svc.GetSession(ctx, sess.SessionID)
	require.NoError(t, err)
	require.Len(t, detail.Products, 2)
	assert.Contains(t, detail.Comparison.BasicInfo, ids["p-bravia"])

	updated, err = svc.RemoveFromSession(ctx, sess.SessionID, ids["p-pixel8"])
	require.NoError(t, err)
	assert.Equal(t, []string{ids["p-bravia"]}, updated.ProductIDs)

	updated, err = svc.ClearSession(ctx, sess.SessionID)
	require.NoError(t, err)
	assert.Zero(t, updated.Count)

	_, err = svc.AddToSession(ctx, sess.SessionID, "missing")
	assert.True(t, IsNotFound(err))
	_, err = svc.GetSession(ctx, "no-such-session")
	assert.True(t, IsNotFound(err))
}

type downReader struct{ storage.Reader }

func (downReader) ValidID(string) bool { return true }

func (downReader) GetProduct(context.Context, string) (*storage.Product, error) {
	return nil, errors.New("dial tcp: connection refused")
}

func (downReader) FindProducts(context.Context, storage.Filter) ([]storage.Product, error) {
	return nil, errors.New("dial tcp: connection refused")
}

func (downReader) Ping(context.Context) error {
	return errors.New("dial tcp: connection refused")
}

func TestService_StorageOutage(t *testing.T) {
	svc := NewService(downReader{}, Options{})
	ctx := context.Background()

	_, err := svc.GetProduct(ctx, "p")
	assert.Equal(t, KindUpstreamUnavailable, KindOf(err))

	_, err = svc.Search(ctx, SearchRequest{})
	assert.Equal(t, KindUpstreamUnavailable, KindOf(err))

	assert.Equal(t, KindUpstreamUnavailable, KindOf(svc.Ping(ctx)))
}
