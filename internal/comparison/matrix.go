// Package comparison builds side-by-side comparison matrices and manages
// comparison sessions.
package comparison

import (
	"context"
	"errors"
	"fmt"

	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/pricing"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/specs"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/storage"
)

// MaxProducts is the largest number of products a matrix can hold.
const MaxProducts = 4

// ErrTooManyProducts is returned when more than MaxProducts are compared.
var ErrTooManyProducts = errors.New("too many products to compare")

// SpecLabels are display names for well-known spec keys.
var SpecLabels = map[string]string{
	"display":      "Display",
	"storage":      "Storage",
	"ram":          "RAM",
	"chip":         "Processor",
	"battery":      "Battery",
	"camera":       "Camera",
	"os":           "Operating System",
	"connectivity": "Connectivity",
	"weight":       "Weight",
	"dimensions":   "Dimensions",
}

// BasicInfo is the identity row of a product.
type BasicInfo struct {
	Brand    string `json:"brand"`
	Model    string `json:"model"`
	Category string `json:"category"`
}

// Pricing is the price row of a product.
type Pricing struct {
	Min       float64        `json:"min"`
	Max       float64        `json:"max"`
	Known     bool           `json:"known"`
	Source    pricing.Source `json:"source"`
	Currency  string         `json:"currency"`
	BestPrice *float64       `json:"best_price,omitempty"`
	Retailer  *string        `json:"retailer,omitempty"`
}

// Ratings is the rating row of a product.
type Ratings struct {
	Average        *float64 `json:"average"`
	PopularityRank *int     `json:"popularity_rank"`
	ReviewCount    int      `json:"review_count"`
}

// Availability is the stock row of a product.
type Availability struct {
	Variants int  `json:"variants"`
	Offers   int  `json:"offers"`
	InStock  bool `json:"in_stock"`
}

// Matrix holds five sub-tables keyed by the same product ids.
type Matrix struct {
	ProductIDs   []string                 `json:"product_ids"`
	SpecKeys     []string                 `json:"spec_keys"`
	BasicInfo    map[string]BasicInfo     `json:"basic_info"`
	Pricing      map[string]Pricing       `json:"pricing"`
	Specs        map[string]*specs.Object `json:"specs"`
	Ratings      map[string]Ratings       `json:"ratings"`
	Availability map[string]Availability  `json:"availability"`
	SpecLabels   map[string]string        `json:"spec_labels"`
}

func newMatrix(n int) *Matrix {
	return &Matrix{
		ProductIDs:   make([]string, 0, n),
		SpecKeys:     []string{},
		BasicInfo:    make(map[string]BasicInfo, n),
		Pricing:      make(map[string]Pricing, n),
		Specs:        make(map[string]*specs.Object, n),
		Ratings:      make(map[string]Ratings, n),
		Availability: make(map[string]Availability, n),
		SpecLabels:   SpecLabels,
	}
}

// Builder assembles matrices from storage.
type Builder struct {
	store  storage.Reader
	prices *pricing.Aggregator
}

// NewBuilder creates a matrix builder.
func NewBuilder(store storage.Reader, prices *pricing.Aggregator) *Builder {
	return &Builder{store: store, prices: prices}
}

// Build compares up to MaxProducts products. Specs are compared over the
// union of every product's keys; a product lacking a key gets specs.Missing.
func (b *Builder) Build(ctx context.Context, products []storage.Product) (*Matrix, error) {
	if len(products) > MaxProducts {
		return nil, fmt.Errorf("%w: got %d, max %d", ErrTooManyProducts, len(products), MaxProducts)
	}

	m := newMatrix(len(products))
	m.SpecKeys = SpecKeys(products)

	for i := range products {
		p := &products[i]
		if err := b.addProduct(ctx, m, p); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (b *Builder) addProduct(ctx context.Context, m *Matrix, p *storage.Product) error {
	listing, err := b.prices.Listing(ctx, p.ID)
	if err != nil {
		return err
	}
	reviews, err := b.store.CountReviews(ctx, p.ID)
	if err != nil {
		return fmt.Errorf("count reviews of %s: %w", p.ID, err)
	}

	m.ProductIDs = append(m.ProductIDs, p.ID)
	m.BasicInfo[p.ID] = BasicInfo{Brand: p.Brand, Model: p.ModelName, Category: p.Category}
	m.Pricing[p.ID] = pricingRow(p, listing)

	normalized := specs.Normalize(p.Specs)
	row := specs.NewObject()
	for _, key := range m.SpecKeys {
		row.Set(key, normalized.Get(key))
	}
	m.Specs[p.ID] = row

	m.Ratings[p.ID] = Ratings{Average: p.Rating, PopularityRank: p.PopularityRank, ReviewCount: reviews}
	m.Availability[p.ID] = Availability{
		Variants: len(listing.Variants),
		Offers:   len(listing.Offers),
		InStock:  listing.InStock(),
	}
	return nil
}

func pricingRow(p *storage.Product, listing *pricing.Listing) Pricing {
	r := listing.Range(p.PriceRange, nil)
	row := Pricing{Min: r.Min, Max: r.Max, Known: r.Known(), Source: r.Source, Currency: r.Currency}
	if best := bestOffer(p, listing); best != nil {
		price, retailer := best.PriceAmount, best.Retailer
		row.BestPrice, row.Retailer = &price, &retailer
	}
	return row
}

// bestOffer is the cheapest new offer of the default variant, or of any
// variant when the product has no default or the default has no new offer.
func bestOffer(p *storage.Product, listing *pricing.Listing) *storage.Offer {
	if p.DefaultVariantID != nil {
		var own []storage.Offer
		for _, o := range listing.Offers {
			if o.VariantID == *p.DefaultVariantID {
				own = append(own, o)
			}
		}
		if best := pricing.Cheapest(own, storage.ConditionNew); best != nil {
			return best
		}
	}
	return pricing.Cheapest(listing.Offers, storage.ConditionNew)
}

// SpecKeys returns the union of the products' spec keys in first-seen order.
func SpecKeys(products []storage.Product) []string {
	seen := make(map[string]struct{})
	keys := []string{}
	for i := range products {
		for _, k := range products[i].Specs.Keys() {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	return keys
}
