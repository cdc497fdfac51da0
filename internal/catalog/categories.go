package catalog

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/storage"
)

// DefaultTopLimit is the number of top products returned by default.
const DefaultTopLimit = 10

var categoryNames = map[string]string{
	"tvs":             "Smart TVs",
	"gaming_consoles": "Gaming Consoles",
	"smart_home":      "Smart Home Devices",
}

// CategoryName returns the display name of a category id.
func CategoryName(id string) string {
	if name, ok := categoryNames[id]; ok {
		return name
	}
	return cases.Title(language.English).String(strings.ReplaceAll(id, "_", " "))
}

// Categories lists every category with its aggregates.
func (s *Service) Categories(ctx context.Context) (*CategoriesResponse, error) {
	stats, err := s.store.CategoryStats(ctx)
	if err != nil {
		return nil, classify("load categories", err)
	}

	out := &CategoriesResponse{Categories: make([]CategoryInfo, 0, len(stats)), Total: len(stats)}
	for _, c := range stats {
		info := CategoryInfo{
			CategoryID:   c.Category,
			Name:         CategoryName(c.Category),
			ProductCount: c.ProductCount,
			AvgRating:    roundPtr(c.AvgRating, reviewPlaces),
			TopBrands:    c.Brands,
		}
		if c.PriceRange != nil {
			info.PriceRange = &storage.PriceRange{
				Min: round(c.PriceRange.Min, pricePlaces),
				Max: round(c.PriceRange.Max, pricePlaces),
			}
		}
		if info.TopBrands == nil {
			info.TopBrands = []string{}
		}
		out.Categories = append(out.Categories, info)
	}
	return out, nil
}

// TopProducts returns a category's products by popularity rank, then rating.
func (s *Service) TopProducts(ctx context.Context, category string, limit int) (*TopProductsResponse, error) {
	switch {
	case limit <= 0:
		limit = DefaultTopLimit
	case limit > MaxListLimit:
		return nil, InvalidInput(fmt.Sprintf("limit must be at most %d", MaxListLimit), nil)
	}

	products, err := s.store.FindProducts(ctx, storage.Filter{
		Category: category,
		Sort:     storage.SortPopularity,
		Limit:    limit,
	})
	if err != nil {
		return nil, classify("load top products", err)
	}
	if len(products) == 0 {
		return nil, NotFound(fmt.Sprintf("category %q not found", category), storage.ErrNotFound)
	}

	return &TopProductsResponse{
		Category: CategoryRef{ID: category, Name: CategoryName(category)},
		Products: roundProducts(products),
		Count:    len(products),
	}, nil
}

// CategoryBrands lists the brands of a category by product count.
func (s *Service) CategoryBrands(ctx context.Context, category string) (*BrandsResponse, error) {
	brands, err := s.store.CategoryBrands(ctx, category)
	if err != nil {
		return nil, classify("load brands", err)
	}
	if len(brands) == 0 {
		return nil, NotFound(fmt.Sprintf("category %q not found or has no brands", category), storage.ErrNotFound)
	}
	return &BrandsResponse{Category: category, Brands: brands, Total: len(brands)}, nil
}
