// Package storage provides catalog models and the read/write capabilities the
// catalog engine uses against its document store.
package storage

import (
	"time"

	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/specs"
)

// Condition is the physical condition an offer is sold in.
type Condition string

const (
	ConditionNew         Condition = "new"
	ConditionRefurbished Condition = "refurbished"
	ConditionOpenBox     Condition = "open-box"
)

// DefaultCurrency is assumed for offers that do not state a currency.
const DefaultCurrency = "USD"

// Availability is the stock state reported by a retailer.
type Availability string

const (
	AvailabilityInStock    Availability = "in-stock"
	AvailabilityOutOfStock Availability = "out-of-stock"
	AvailabilityLimited    Availability = "limited"
	AvailabilityPreorder   Availability = "preorder"
)

// Fulfillment is a way the retailer can hand over the product.
type Fulfillment string

const (
	FulfillmentShip   Fulfillment = "ship"
	FulfillmentPickup Fulfillment = "pickup"
)

// SourceType distinguishes professional reviews from user reviews.
type SourceType string

const (
	SourceTypePro  SourceType = "pro-review"
	SourceTypeUser SourceType = "user-review"
)

// PriceRange is a min/max pair of prices.
type PriceRange struct {
	Min float64 `json:"min" bson:"min"`
	Max float64 `json:"max" bson:"max"`
}

// Product is a catalog entry. Category never changes after creation and the
// keys of Specs differ between categories.
type Product struct {
	ID               string        `json:"id"`
	Category         string        `json:"category"`
	Brand            string        `json:"brand"`
	Series           *string       `json:"series,omitempty"`
	ModelName        string        `json:"model_name"`
	Name             string        `json:"name,omitempty"`
	Description      *string       `json:"description,omitempty"`
	ImageURL         *string       `json:"image_url,omitempty"`
	ReleaseDate      *time.Time    `json:"release_date,omitempty"`
	Specs            *specs.Object `json:"specs"`
	DefaultVariantID *string       `json:"default_variant_id,omitempty"`
	PriceRange       *PriceRange   `json:"price_range,omitempty"`
	Rating           *float64      `json:"rating,omitempty"`
	PopularityRank   *int          `json:"popularity_rank,omitempty"`
	Tags             []string      `json:"tags,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// DisplayName returns Name, falling back to brand and model.
func (p *Product) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	if p.Brand == "" {
		return p.ModelName
	}
	return p.Brand + " " + p.ModelName
}

// Variant is a purchasable configuration of a product.
type Variant struct {
	ID         string         `json:"id"`
	ProductID  string         `json:"product_id"`
	SKU        *string        `json:"sku,omitempty"`
	Color      string         `json:"color,omitempty"`
	StorageGB  *int           `json:"storage_gb,omitempty"`
	RAMGB      *int           `json:"ram_gb,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Offer is one retailer's listing of a variant.
type Offer struct {
	ID              string        `json:"id"`
	VariantID       string        `json:"variant_id"`
	Retailer        string        `json:"retailer"`
	RetailerSKU     *string       `json:"retailer_sku,omitempty"`
	Condition       Condition     `json:"condition"`
	PriceAmount     float64       `json:"price_amount"`
	PriceCurrency   string        `json:"price_currency"`
	ListPriceAmount *float64      `json:"list_price_amount,omitempty"`
	Availability    Availability  `json:"availability"`
	Fulfillment     []Fulfillment `json:"fulfillment,omitempty"`
	URL             *string       `json:"url,omitempty"`
	LastSeenAt      time.Time     `json:"last_seen_at"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// Review is a professional or user review of a product.
type Review struct {
	ID               string     `json:"id"`
	ProductID        string     `json:"product_id"`
	Source           string     `json:"source"`
	SourceType       SourceType `json:"source_type"`
	Rating           float64    `json:"rating"`
	Title            *string    `json:"title,omitempty"`
	Summary          *string    `json:"summary,omitempty"`
	Pros             []string   `json:"pros,omitempty"`
	Cons             []string   `json:"cons,omitempty"`
	URL              *string    `json:"url,omitempty"`
	CredibilityScore float64    `json:"credibility_score"`
	PublishedAt      *time.Time `json:"published_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// CategoryStats aggregates the products of one category.
type CategoryStats struct {
	Category     string      `json:"category"`
	ProductCount int         `json:"product_count"`
	AvgRating    *float64    `json:"avg_rating,omitempty"`
	PriceRange   *PriceRange `json:"price_range,omitempty"`
	Brands       []string    `json:"brands"`
}

// BrandCount is the number of products a brand has in a category.
type BrandCount struct {
	Brand        string `json:"brand"`
	ProductCount int    `json:"product_count"`
}
