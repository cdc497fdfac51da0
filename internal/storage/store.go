package storage

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"

	"golang.org/x/text/cases"
)

// Common errors
var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidID    = errors.New("invalid id")
	ErrUnsupported  = errors.New("unsupported database driver")
	ErrDuplicateKey = errors.New("duplicate key")
)

// ProductSort selects the order FindProducts returns candidates in.
type ProductSort string

const (
	// SortNatural keeps the store's insertion order.
	SortNatural ProductSort = ""
	// SortPopularity orders by popularity rank (unranked last), then rating.
	SortPopularity ProductSort = "popularity"
)

// Filter selects products. Zero values mean "no constraint".
type Filter struct {
	Category  string
	Brand     string
	MinRating *float64
	Limit     int
	Sort      ProductSort
}

// Matches reports whether p satisfies the filter. Stores use it for the
// constraints their query language cannot express exactly.
func (f Filter) Matches(p *Product) bool {
	if f.Category != "" && p.Category != f.Category {
		return false
	}
	if f.Brand != "" && !MatchesBrand(p.Brand, f.Brand) {
		return false
	}
	if f.MinRating != nil && (p.Rating == nil || *p.Rating < *f.MinRating) {
		return false
	}
	return true
}

// MatchesBrand is a case-insensitive substring match using Unicode case
// folding, so "SAMSUNG", "samsung" and "Samsung" all match.
func MatchesBrand(brand, needle string) bool {
	if needle == "" {
		return true
	}
	return strings.Contains(cases.Fold().String(brand), cases.Fold().String(needle))
}

// Reader is the read capability the catalog core depends on.
type Reader interface {
	// FindProducts returns products matching the filter, at most Limit when set.
	FindProducts(ctx context.Context, f Filter) ([]Product, error)
	// GetProduct returns ErrNotFound for unknown ids.
	GetProduct(ctx context.Context, id string) (*Product, error)
	// GetProducts returns the known products among ids, in the order of ids.
	GetProducts(ctx context.Context, ids []string) ([]Product, error)
	FindVariantsByProduct(ctx context.Context, productID string) ([]Variant, error)
	// FindOffersByVariant returns offers ordered by price, optionally
	// restricted to one condition.
	FindOffersByVariant(ctx context.Context, variantID string, condition *Condition) ([]Offer, error)
	CountReviews(ctx context.Context, productID string) (int, error)
	// FindReviews returns reviews ordered by credibility, highest first.
	FindReviews(ctx context.Context, productID string) ([]Review, error)
	CategoryStats(ctx context.Context) ([]CategoryStats, error)
	CategoryBrands(ctx context.Context, category string) ([]BrandCount, error)
	// ValidID reports whether id has the store's native id format.
	ValidID(id string) bool
	Ping(ctx context.Context) error
}

// Writer is used by ingestion and seeding only; the catalog core never writes.
type Writer interface {
	NewID() string
	InsertProduct(ctx context.Context, p *Product) error
	InsertVariant(ctx context.Context, v *Variant) error
	InsertOffer(ctx context.Context, o *Offer) error
	InsertReview(ctx context.Context, r *Review) error
}

// Store combines both capabilities with a lifecycle.
type Store interface {
	Reader
	Writer
	Close() error
}

// ConditionPtr is a convenience for FindOffersByVariant.
func ConditionPtr(c Condition) *Condition {
	return &c
}

// maxBrandsPerCategory caps CategoryStats.Brands, which lists brands
// alphabetically.
const maxBrandsPerCategory = 5

// sortProducts applies the requested order in place. Popularity sorts ranked
// products first by ascending rank, then by descending rating.
func sortProducts(products []Product, order ProductSort) {
	if order != SortPopularity {
		return
	}
	sort.SliceStable(products, func(i, j int) bool {
		a, b := products[i], products[j]
		if (a.PopularityRank == nil) != (b.PopularityRank == nil) {
			return a.PopularityRank != nil
		}
		if a.PopularityRank != nil && *a.PopularityRank != *b.PopularityRank {
			return *a.PopularityRank < *b.PopularityRank
		}
		if (a.Rating == nil) != (b.Rating == nil) {
			return a.Rating != nil
		}
		return a.Rating != nil && *a.Rating > *b.Rating
	})
}

func truncate[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

// summarizeCategories builds per-category stats from a product listing.
// Stores whose query language lacks a grouping primitive use it directly.
func summarizeCategories(products []Product) []CategoryStats {
	type acc struct {
		stats     CategoryStats
		ratingSum float64
		rated     int
		seen      map[string]struct{}
	}

	var order []string
	groups := make(map[string]*acc)
	for i := range products {
		p := &products[i]
		g, ok := groups[p.Category]
		if !ok {
			g = &acc{stats: CategoryStats{Category: p.Category, Brands: []string{}}, seen: map[string]struct{}{}}
			groups[p.Category] = g
			order = append(order, p.Category)
		}
		g.stats.ProductCount++
		if p.Rating != nil {
			g.ratingSum += *p.Rating
			g.rated++
		}
		if p.PriceRange != nil {
			if g.stats.PriceRange == nil {
				pr := *p.PriceRange
				g.stats.PriceRange = &pr
			} else {
				g.stats.PriceRange.Min = math.Min(g.stats.PriceRange.Min, p.PriceRange.Min)
				g.stats.PriceRange.Max = math.Max(g.stats.PriceRange.Max, p.PriceRange.Max)
			}
		}
		if _, dup := g.seen[p.Brand]; !dup && p.Brand != "" {
			g.seen[p.Brand] = struct{}{}
			g.stats.Brands = append(g.stats.Brands, p.Brand)
		}
	}

	out := make([]CategoryStats, 0, len(order))
	for _, name := range order {
		g := groups[name]
		if g.rated > 0 {
			avg := g.ratingSum / float64(g.rated)
			g.stats.AvgRating = &avg
		}
		sort.Strings(g.stats.Brands)
		g.stats.Brands = truncate(g.stats.Brands, maxBrandsPerCategory)
		out = append(out, g.stats)
	}
	sortCategoryStats(out)
	return out
}

func sortCategoryStats(stats []CategoryStats) {
	sort.SliceStable(stats, func(i, j int) bool {
		if stats[i].ProductCount != stats[j].ProductCount {
			return stats[i].ProductCount > stats[j].ProductCount
		}
		return stats[i].Category < stats[j].Category
	})
}

func countBrands(products []Product, category string) []BrandCount {
	counts := make(map[string]int)
	for i := range products {
		if products[i].Category == category {
			counts[products[i].Brand]++
		}
	}
	out := make([]BrandCount, 0, len(counts))
	for brand, n := range counts {
		out = append(out, BrandCount{Brand: brand, ProductCount: n})
	}
	sortBrandCounts(out)
	return out
}

func sortBrandCounts(brands []BrandCount) {
	sort.Slice(brands, func(i, j int) bool {
		if brands[i].ProductCount != brands[j].ProductCount {
			return brands[i].ProductCount > brands[j].ProductCount
		}
		return brands[i].Brand < brands[j].Brand
	})
}
