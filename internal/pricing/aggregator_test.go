package pricing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/storage"
)

func offer(cond storage.Condition, price float64) storage.Offer {
	return storage.Offer{Condition: cond, PriceAmount: price, PriceCurrency: "USD"}
}

func budget(v float64) *float64 { return &v }

func TestCompute(t *testing.T) {
	tests := []struct {
		name     string
		offers   []storage.Offer
		fallback *storage.PriceRange
		budget   *float64
		expected Range
	}{
		{
			name: "refurbished excluded",
			offers: []storage.Offer{
				offer(storage.ConditionNew, 700),
				offer(storage.ConditionNew, 650),
				offer(storage.ConditionRefurbished, 500),
			},
			budget:   budget(680),
			expected: Range{Min: 650, Max: 700, InBudget: true, Source: SourceOffers, Currency: "USD", OfferCount: 2},
		},
		{
			name:     "all offers over budget",
			offers:   []storage.Offer{offer(storage.ConditionNew, 700)},
			budget:   budget(600),
			expected: Range{Min: 700, Max: 700, Source: SourceOffers, Currency: "USD", OfferCount: 1},
		},
		{
			name:     "budget equal to price is in budget",
			offers:   []storage.Offer{offer(storage.ConditionNew, 600)},
			budget:   budget(600),
			expected: Range{Min: 600, Max: 600, InBudget: true, Source: SourceOffers, Currency: "USD", OfferCount: 1},
		},
		{
			name:     "no budget never in budget",
			offers:   []storage.Offer{offer(storage.ConditionNew, 10)},
			expected: Range{Min: 10, Max: 10, Source: SourceOffers, Currency: "USD", OfferCount: 1},
		},
		{
			name:     "fallback when only open box",
			offers:   []storage.Offer{offer(storage.ConditionOpenBox, 400)},
			fallback: &storage.PriceRange{Min: 450, Max: 900},
			budget:   budget(500),
			expected: Range{Min: 450, Max: 900, InBudget: true, Source: SourceFallback, Currency: "USD"},
		},
		{
			name:     "fallback over budget",
			fallback: &storage.PriceRange{Min: 1299, Max: 1299},
			budget:   budget(1000),
			expected: Range{Min: 1299, Max: 1299, Source: SourceFallback, Currency: "USD"},
		},
		{
			name:     "nothing known",
			budget:   budget(1000),
			expected: Range{Min: 0, Max: 0, Source: SourceNone, Currency: "USD"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Compute(tc.offers, tc.fallback, tc.budget))
		})
	}
}

func TestCompute_CurrencyFromCheapest(t *testing.T) {
	offers := []storage.Offer{
		{Condition: storage.ConditionNew, PriceAmount: 900, PriceCurrency: "USD"},
		{Condition: storage.ConditionNew, PriceAmount: 850, PriceCurrency: "EUR"},
	}
	assert.Equal(t, "EUR", Compute(offers, nil, nil).Currency)
}

func TestRange_Known(t *testing.T) {
	assert.False(t, Compute(nil, nil, nil).Known())
	assert.True(t, Compute(nil, &storage.PriceRange{Min: 0, Max: 0}, nil).Known())
}

func TestCheapest(t *testing.T) {
	offers := []storage.Offer{
		offer(storage.ConditionRefurbished, 500),
		offer(storage.ConditionNew, 700),
		offer(storage.ConditionNew, 650),
	}

	best := Cheapest(offers, storage.ConditionNew)
	require.NotNil(t, best)
	assert.Equal(t, 650.0, best.PriceAmount)
	assert.Nil(t, Cheapest(offers, storage.ConditionOpenBox))
}

func seed(t *testing.T) (*storage.MemoryStore, *storage.Product, string) {
	t.Helper()
	ctx := context.Background()
	s := storage.NewMemoryStore()

	p := &storage.Product{Category: "smartphones", Brand: "Google", ModelName: "Pixel 8"}
	require.NoError(t, s.InsertProduct(ctx, p))
	v := &storage.Variant{ProductID: p.ID}
	require.NoError(t, s.InsertVariant(ctx, v))
	for _, o := range []storage.Offer{
		{VariantID: v.ID, Retailer: "amazon", Condition: storage.ConditionNew, PriceAmount: 700},
		{VariantID: v.ID, Retailer: "bestbuy", Condition: storage.ConditionNew, PriceAmount: 650},
		{VariantID: v.ID, Retailer: "backmarket", Condition: storage.ConditionRefurbished, PriceAmount: 500},
	} {
		o := o
		require.NoError(t, s.InsertOffer(ctx, &o))
	}
	return s, p, v.ID
}

func TestAggregator_PriceRange(t *testing.T) {
	s, p, _ := seed(t)
	a := NewAggregator(s)

	r, err := a.PriceRange(context.Background(), p, budget(680))
	require.NoError(t, err)
	assert.Equal(t, 650.0, r.Min)
	assert.Equal(t, 700.0, r.Max)
	assert.True(t, r.InBudget)
	assert.Equal(t, SourceOffers, r.Source)
}

func TestAggregator_NoVariants(t *testing.T) {
	s := storage.NewMemoryStore()
	p := &storage.Product{Category: "tvs"}
	require.NoError(t, s.InsertProduct(context.Background(), p))

	r, err := NewAggregator(s).PriceRange(context.Background(), p, budget(100))
	require.NoError(t, err)
	assert.Equal(t, Range{Source: SourceNone, Currency: "USD"}, r)
}

func TestAggregator_Listing(t *testing.T) {
	s, p, _ := seed(t)

	l, err := NewAggregator(s).Listing(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Len(t, l.Variants, 1)
	assert.Len(t, l.Offers, 3)
	assert.True(t, l.InStock())

	r := l.Range(nil, nil)
	assert.Equal(t, 650.0, r.Min)
	assert.Equal(t, 2, r.OfferCount)
}

func TestAggregator_VariantOffers(t *testing.T) {
	s, _, variantID := seed(t)

	vo, err := NewAggregator(s).VariantOffers(context.Background(), variantID)
	require.NoError(t, err)
	require.Len(t, vo.Offers, 3)
	assert.Equal(t, 500.0, vo.Offers[0].PriceAmount)
	require.NotNil(t, vo.BestNew)
	assert.Equal(t, "bestbuy", vo.BestNew.Retailer)
	require.NotNil(t, vo.BestRefurbished)
	assert.Equal(t, "backmarket", vo.BestRefurbished.Retailer)
}

type failingReader struct {
	storage.Reader
}

func (failingReader) FindVariantsByProduct(context.Context, string) ([]storage.Variant, error) {
	return nil, errors.New("connection reset")
}

func TestAggregator_PropagatesStorageErrors(t *testing.T) {
	_, err := NewAggregator(failingReader{}).PriceRange(context.Background(), &storage.Product{ID: "p"}, nil)
	assert.ErrorContains(t, err, "connection reset")
}
