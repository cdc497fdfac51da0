// Package pricing derives a product's effective price range from the offers
// listed for its variants.
package pricing

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/storage"
)

// Source tells where a Range came from.
type Source string

const (
	// SourceOffers means the range was computed from new-condition offers.
	SourceOffers Source = "offers"
	// SourceFallback means no offers matched and the product's precomputed
	// range was used.
	SourceFallback Source = "fallback"
	// SourceNone means the price is unknown. Min and Max are zero.
	SourceNone Source = "none"
)

// Range is an aggregated price range.
type Range struct {
	Min        float64
	Max        float64
	InBudget   bool
	Source     Source
	Currency   string
	OfferCount int
}

// Known reports whether the range carries a real price.
func (r Range) Known() bool {
	return r.Source != SourceNone && !math.IsInf(r.Min, 0) && !math.IsNaN(r.Min)
}

// Compute aggregates the new-condition offers among offers. Other conditions
// are ignored so refurbished stock cannot drag the range down. With no such
// offers the fallback range is used; with neither the range is {0, 0} and
// unknown.
func Compute(offers []storage.Offer, fallback *storage.PriceRange, budget *float64) Range {
	r := Range{Min: math.Inf(1), Max: math.Inf(-1), Source: SourceOffers, Currency: storage.DefaultCurrency}

	var cheapest *storage.Offer
	for i := range offers {
		o := &offers[i]
		if o.Condition != storage.ConditionNew {
			continue
		}
		r.OfferCount++
		r.Min = math.Min(r.Min, o.PriceAmount)
		r.Max = math.Max(r.Max, o.PriceAmount)
		if budget != nil && o.PriceAmount <= *budget {
			r.InBudget = true
		}
		if cheapest == nil || o.PriceAmount < cheapest.PriceAmount {
			cheapest = o
		}
	}

	switch {
	case r.OfferCount > 0:
		if cheapest.PriceCurrency != "" {
			r.Currency = cheapest.PriceCurrency
		}
	case fallback != nil:
		r.Min, r.Max, r.Source = fallback.Min, fallback.Max, SourceFallback
		r.InBudget = budget != nil && fallback.Min <= *budget
	default:
		r.Min, r.Max, r.Source = 0, 0, SourceNone
	}
	return r
}

// Cheapest returns the lowest-priced offer with the given condition, or nil.
func Cheapest(offers []storage.Offer, condition storage.Condition) *storage.Offer {
	var best *storage.Offer
	for i := range offers {
		o := &offers[i]
		if o.Condition != condition {
			continue
		}
		if best == nil || o.PriceAmount < best.PriceAmount {
			best = o
		}
	}
	if best == nil {
		return nil
	}
	out := *best
	return &out
}

// Aggregator loads offers through a storage reader.
type Aggregator struct {
	store storage.Reader
}

// NewAggregator creates an aggregator.
func NewAggregator(store storage.Reader) *Aggregator {
	return &Aggregator{store: store}
}

// PriceRange computes the product's range from its variants' new offers.
func (a *Aggregator) PriceRange(ctx context.Context, p *storage.Product, budget *float64) (Range, error) {
	variants, err := a.store.FindVariantsByProduct(ctx, p.ID)
	if err != nil {
		return Range{}, fmt.Errorf("load variants of %s: %w", p.ID, err)
	}

	var offers []storage.Offer
	for _, v := range variants {
		found, err := a.store.FindOffersByVariant(ctx, v.ID, storage.ConditionPtr(storage.ConditionNew))
		if err != nil {
			return Range{}, fmt.Errorf("load offers of variant %s: %w", v.ID, err)
		}
		offers = append(offers, found...)
	}
	return Compute(offers, p.PriceRange, budget), nil
}

// Listing is every variant of a product with all of their offers, whatever
// the condition.
type Listing struct {
	Variants []storage.Variant
	Offers   []storage.Offer
}

// Range aggregates the listing's new offers.
func (l *Listing) Range(fallback *storage.PriceRange, budget *float64) Range {
	return Compute(l.Offers, fallback, budget)
}

// InStock reports whether any offer exists.
func (l *Listing) InStock() bool {
	return len(l.Offers) > 0
}

// Listing loads variants and all of their offers in one pass.
func (a *Aggregator) Listing(ctx context.Context, productID string) (*Listing, error) {
	variants, err := a.store.FindVariantsByProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("load variants of %s: %w", productID, err)
	}

	l := &Listing{Variants: variants, Offers: []storage.Offer{}}
	for _, v := range variants {
		offers, err := a.store.FindOffersByVariant(ctx, v.ID, nil)
		if err != nil {
			return nil, fmt.Errorf("load offers of variant %s: %w", v.ID, err)
		}
		l.Offers = append(l.Offers, offers...)
	}
	return l, nil
}

// VariantOffers is the detail view of one variant's offers.
type VariantOffers struct {
	VariantID       string
	Offers          []storage.Offer
	BestNew         *storage.Offer
	BestRefurbished *storage.Offer
}

// VariantOffers lists a variant's offers by price with the best new and best
// refurbished offer picked out.
func (a *Aggregator) VariantOffers(ctx context.Context, variantID string) (*VariantOffers, error) {
	offers, err := a.store.FindOffersByVariant(ctx, variantID, nil)
	if err != nil {
		return nil, fmt.Errorf("load offers of variant %s: %w", variantID, err)
	}
	sort.SliceStable(offers, func(i, j int) bool { return offers[i].PriceAmount < offers[j].PriceAmount })

	return &VariantOffers{
		VariantID:       variantID,
		Offers:          offers,
		BestNew:         Cheapest(offers, storage.ConditionNew),
		BestRefurbished: Cheapest(offers, storage.ConditionRefurbished),
	}, nil
}
