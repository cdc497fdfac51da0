package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixturePath = "testdata/catalog.json"

// seedStore imports the shared fixture catalog and returns label -> id.
func seedStore(t *testing.T, s Store) map[string]string {
	t.Helper()
	fx, err := LoadFixturesFile(fixturePath)
	require.NoError(t, err)

	res, err := Import(context.Background(), s, fx, nil)
	require.NoError(t, err)
	return res.IDs
}

func productIDs(products []Product) []string {
	out := make([]string, len(products))
	for i, p := range products {
		out[i] = p.ID
	}
	return out
}

// runStoreSuite exercises the Reader contract every backend must honour.
func runStoreSuite(t *testing.T, s Store) {
	ctx := context.Background()
	ids := seedStore(t, s)

	t.Run("ids are store native", func(t *testing.T) {
		for label, id := range ids {
			assert.True(t, s.ValidID(id), label)
		}
	})

	t.Run("find products", func(t *testing.T) {
		minRating := 4.5
		tests := []struct {
			name     string
			filter   Filter
			expected []string
		}{
			{"category keeps insertion order", Filter{Category: "smartphones"},
				[]string{ids["p-iphone15"], ids["p-pixel8"], ids["p-galaxy-s24"], ids["p-fairphone"]}},
			{"brand is case insensitive", Filter{Brand: "SAMSUNG"}, []string{ids["p-galaxy-s24"]}},
			{"brand substring", Filter{Brand: "oog"}, []string{ids["p-pixel8"]}},
			{"min rating is inclusive", Filter{Category: "smartphones", MinRating: &minRating},
				[]string{ids["p-iphone15"], ids["p-galaxy-s24"]}},
			{"limit", Filter{Category: "smartphones", Limit: 2}, []string{ids["p-iphone15"], ids["p-pixel8"]}},
			{"popularity order puts unranked last", Filter{Category: "smartphones", Sort: SortPopularity},
				[]string{ids["p-galaxy-s24"], ids["p-iphone15"], ids["p-pixel8"], ids["p-fairphone"]}},
			{"popularity with limit", Filter{Category: "smartphones", Sort: SortPopularity, Limit: 1},
				[]string{ids["p-galaxy-s24"]}},
			{"no match", Filter{Category: "laptops"}, []string{}},
		}

		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				got, err := s.FindProducts(ctx, tc.filter)
				require.NoError(t, err)
				assert.Equal(t, tc.expected, productIDs(got))
			})
		}
	})

	t.Run("get product keeps spec order", func(t *testing.T) {
		p, err := s.GetProduct(ctx, ids["p-iphone15"])
		require.NoError(t, err)

		assert.Equal(t, "Apple", p.Brand)
		assert.Equal(t, []string{"display", "storage_gb", "ram_gb", "battery", "os", "ip_rating", "weight_g"}, p.Specs.Keys())
		require.NotNil(t, p.DefaultVariantID)
		assert.Equal(t, ids["v-iphone15-128"], *p.DefaultVariantID)
		require.NotNil(t, p.PriceRange)
		assert.InDelta(t, 799, p.PriceRange.Min, 0.001)
		require.NotNil(t, p.PopularityRank)
		assert.Equal(t, 3, *p.PopularityRank)
		require.NotNil(t, p.ReleaseDate)
		assert.Equal(t, 2023, p.ReleaseDate.Year())
		assert.Equal(t, []string{"flagship"}, p.Tags)
	})

	t.Run("get product not found", func(t *testing.T) {
		_, err := s.GetProduct(ctx, s.NewID())
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("get products keeps request order", func(t *testing.T) {
		got, err := s.GetProducts(ctx, []string{ids["p-pixel8"], s.NewID(), ids["p-iphone15"]})
		require.NoError(t, err)
		assert.Equal(t, []string{ids["p-pixel8"], ids["p-iphone15"]}, productIDs(got))
	})

	t.Run("variants", func(t *testing.T) {
		variants, err := s.FindVariantsByProduct(ctx, ids["p-iphone15"])
		require.NoError(t, err)
		require.Len(t, variants, 2)
		require.NotNil(t, variants[0].StorageGB)
		assert.Equal(t, 128, *variants[0].StorageGB)

		none, err := s.FindVariantsByProduct(ctx, ids["p-fairphone"])
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("offers by price", func(t *testing.T) {
		all, err := s.FindOffersByVariant(ctx, ids["v-pixel8-128"], nil)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.InDelta(t, 500, all[0].PriceAmount, 0.001)
		assert.InDelta(t, 700, all[2].PriceAmount, 0.001)
		assert.Equal(t, []Fulfillment{FulfillmentShip}, all[0].Fulfillment)

		fresh, err := s.FindOffersByVariant(ctx, ids["v-pixel8-128"], ConditionPtr(ConditionNew))
		require.NoError(t, err)
		require.Len(t, fresh, 2)
		assert.Equal(t, "bestbuy", fresh[0].Retailer)
		assert.Equal(t, ConditionNew, fresh[1].Condition)
		assert.Equal(t, "USD", fresh[1].PriceCurrency)
	})

	t.Run("reviews", func(t *testing.T) {
		n, err := s.CountReviews(ctx, ids["p-iphone15"])
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		reviews, err := s.FindReviews(ctx, ids["p-iphone15"])
		require.NoError(t, err)
		require.Len(t, reviews, 3)
		assert.Equal(t, "The Verge", reviews[0].Source)
		assert.Equal(t, "reddit", reviews[2].Source)
		assert.Equal(t, []string{"Dynamic Island", "USB-C", "Great camera"}, reviews[0].Pros)

		n, err = s.CountReviews(ctx, ids["p-bravia"])
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("category stats", func(t *testing.T) {
		stats, err := s.CategoryStats(ctx)
		require.NoError(t, err)
		require.Len(t, stats, 2)

		phones := stats[0]
		assert.Equal(t, "smartphones", phones.Category)
		assert.Equal(t, 4, phones.ProductCount)
		require.NotNil(t, phones.AvgRating)
		assert.InDelta(t, 4.5, *phones.AvgRating, 0.001)
		require.NotNil(t, phones.PriceRange)
		assert.InDelta(t, 699, phones.PriceRange.Min, 0.001)
		assert.InDelta(t, 1159, phones.PriceRange.Max, 0.001)
		assert.Equal(t, []string{"Apple", "Fairphone", "Google", "Samsung"}, phones.Brands)

		assert.Equal(t, "tvs", stats[1].Category)
		assert.Equal(t, 1, stats[1].ProductCount)
	})

	t.Run("category brands", func(t *testing.T) {
		brands, err := s.CategoryBrands(ctx, "smartphones")
		require.NoError(t, err)
		require.Len(t, brands, 4)
		assert.Equal(t, BrandCount{Brand: "Apple", ProductCount: 1}, brands[0])

		empty, err := s.CategoryBrands(ctx, "laptops")
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, s.Ping(ctx))
	})
}
