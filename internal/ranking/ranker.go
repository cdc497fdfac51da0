package ranking

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/pricing"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/specs"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/storage"
)

const (
	// DefaultLimit applies when a query sets no limit.
	DefaultLimit = 20
	// DefaultOverfetch compensates for candidates dropped by the budget and
	// spec filters after the storage query.
	DefaultOverfetch = 2
)

// Explanations attached to ranked products.
const (
	ExplainWithinBudget = "Within budget"
	ExplainPriceUnknown = "Price unknown"
	ExplainBestValue    = "Best value"
)

// RankedProduct is a scored search hit.
type RankedProduct struct {
	Product     storage.Product
	Specs       specs.Normalized
	Price       pricing.Range
	Terms       Terms
	Score       float64
	Explanation string
}

// Result is an ordered, truncated result page.
type Result struct {
	Results []RankedProduct
	// Total counts candidates that survived filtering, before truncation.
	Total int
	// Candidates is the number of products fetched from storage.
	Candidates int
}

// Ranker runs searches against a storage reader.
type Ranker struct {
	store     storage.Reader
	prices    *pricing.Aggregator
	overfetch int
}

// Option configures a Ranker.
type Option func(*Ranker)

// WithOverfetch sets the candidate over-fetch factor.
func WithOverfetch(factor int) Option {
	return func(r *Ranker) {
		if factor >= 1 {
			r.overfetch = factor
		}
	}
}

// NewRanker creates a ranker.
func NewRanker(store storage.Reader, prices *pricing.Aggregator, opts ...Option) *Ranker {
	r := &Ranker{store: store, prices: prices, overfetch: DefaultOverfetch}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Search fetches candidates, prices and scores them, then sorts and
// truncates. Candidates whose price is unknown are kept under a budget.
func (r *Ranker) Search(ctx context.Context, q Query) (*Result, error) {
	if q.Sort == "" {
		q.Sort = SortScore
	}
	if _, err := ParseSortKey(string(q.Sort)); err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	candidates, err := r.store.FindProducts(ctx, storage.Filter{
		Category:  q.Category,
		Brand:     q.Brand,
		MinRating: q.MinRating,
		Limit:     limit * r.overfetch,
	})
	if err != nil {
		return nil, fmt.Errorf("find candidates: %w", err)
	}

	ranked := make([]RankedProduct, 0, len(candidates))
	for i := range candidates {
		p := &candidates[i]
		if !matchesSpecFilters(p, q.SpecFilters) {
			continue
		}

		normalized := specs.Normalize(p.Specs)
		if q.OS != "" && !matchesOS(normalized, q.OS) {
			continue
		}

		price, err := r.prices.PriceRange(ctx, p, q.BudgetMax)
		if err != nil {
			return nil, err
		}
		if q.BudgetMax != nil && price.Known() && !price.InBudget {
			continue
		}

		terms := ScoreTerms(p, price, q)
		ranked = append(ranked, RankedProduct{
			Product:     *p,
			Specs:       normalized,
			Price:       price,
			Terms:       terms,
			Score:       terms.Total(),
			Explanation: explain(price, q),
		})
	}

	Sort(ranked, q.Sort)

	res := &Result{Total: len(ranked), Candidates: len(candidates)}
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	res.Results = ranked
	return res, nil
}

// Sort orders results in place. The sort is stable so equal keys keep their
// candidate order.
func Sort(results []RankedProduct, key SortKey) {
	var less func(a, b *RankedProduct) bool
	switch key {
	case SortPrice:
		less = func(a, b *RankedProduct) bool { return sortablePrice(a.Price) < sortablePrice(b.Price) }
	case SortPopularity:
		less = func(a, b *RankedProduct) bool { return popularityOf(&a.Product) < popularityOf(&b.Product) }
	default:
		less = func(a, b *RankedProduct) bool { return a.Score > b.Score }
	}
	sort.SliceStable(results, func(i, j int) bool { return less(&results[i], &results[j]) })
}

// sortablePrice puts unknown prices after every known one.
func sortablePrice(r pricing.Range) float64 {
	if !r.Known() {
		return math.Inf(1)
	}
	return r.Min
}

func matchesSpecFilters(p *storage.Product, filters map[string]float64) bool {
	for path, floor := range filters {
		raw, ok := specs.Lookup(p.Specs, path)
		if !ok {
			return false
		}
		n, ok := specs.Numeric(raw)
		if !ok || n < floor {
			return false
		}
	}
	return true
}

func matchesOS(normalized specs.Normalized, needle string) bool {
	os, ok := normalized.Get("os").(string)
	return ok && storage.MatchesBrand(os, needle)
}

func explain(price pricing.Range, q Query) string {
	switch {
	case q.BudgetMax == nil:
		return ExplainBestValue
	case !price.Known():
		return ExplainPriceUnknown
	case price.InBudget:
		return ExplainWithinBudget
	default:
		return ExplainBestValue
	}
}
