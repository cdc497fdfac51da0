// Package ranking scores catalog products and orders search results.
package ranking

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/pricing"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/specs"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/storage"
)

// ErrUnknownSortKey is returned for sort keys outside the supported set.
var ErrUnknownSortKey = errors.New("unknown sort key")

// SortKey selects the result order.
type SortKey string

const (
	SortScore      SortKey = "score"
	SortPrice      SortKey = "price"
	SortPopularity SortKey = "popularity"
)

// ParseSortKey maps a request value to a SortKey. Empty means score.
func ParseSortKey(s string) (SortKey, error) {
	switch k := SortKey(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return SortScore, nil
	case SortScore, SortPrice, SortPopularity:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownSortKey, s)
	}
}

const (
	ratingWeight   = 10
	priceWeight    = 30
	popularityBase = 100
	// unrankedPopularity sorts products without a rank after ranked ones.
	unrankedPopularity = 999
)

// Query holds the search filters and scoring inputs.
type Query struct {
	Category string
	Brand    string
	// OS matches the normalized "os" spec case-insensitively as a substring.
	OS        string
	MinRating *float64
	BudgetMax *float64
	Sort      SortKey
	Limit     int
	// SpecFilters are inclusive numeric lower bounds keyed by spec path.
	SpecFilters map[string]float64
}

// Terms is the per-signal breakdown of a score.
type Terms struct {
	Rating     float64 `json:"rating"`
	Price      float64 `json:"price"`
	Popularity float64 `json:"popularity"`
}

// Total sums the terms.
func (t Terms) Total() float64 {
	return t.Rating + t.Price + t.Popularity
}

// ScoreTerms computes each signal independently. Absent inputs contribute 0.
// Ratings are used as stored; sources on a 0-5 and a 0-10 scale are not
// reconciled.
func ScoreTerms(p *storage.Product, price pricing.Range, q Query) Terms {
	var t Terms
	if p.Rating != nil {
		t.Rating = *p.Rating * ratingWeight
	}
	if q.BudgetMax != nil && *q.BudgetMax > 0 && price.Known() {
		b := *q.BudgetMax
		t.Price = math.Max(0, (b-price.Min)/b*priceWeight)
	}
	if p.PopularityRank != nil {
		t.Popularity = math.Max(0, float64(popularityBase-*p.PopularityRank))
	}
	return t
}

// Score is the unbounded relative score of a product for a query. No current
// term reads the normalized specs.
func Score(p *storage.Product, _ specs.Normalized, price pricing.Range, q Query) float64 {
	return ScoreTerms(p, price, q).Total()
}

func popularityOf(p *storage.Product) int {
	if p.PopularityRank == nil {
		return unrankedPopularity
	}
	return *p.PopularityRank
}
