package catalog

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/comparison"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/pricing"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/ranking"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/reviews"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/specs"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/storage"
)

// Decimal places applied when values leave the service.
const (
	pricePlaces       = 2
	scorePlaces       = 1
	ratingPlaces      = 2
	reviewPlaces      = 1
	credibilityPlaces = 2
)

// SearchRequest holds search filters as received from a caller.
type SearchRequest struct {
	Category    string             `json:"category,omitempty"`
	Brand       string             `json:"brand,omitempty"`
	OS          string             `json:"os,omitempty"`
	MinRating   *float64           `json:"min_rating,omitempty"`
	BudgetMax   *float64           `json:"budget_max,omitempty"`
	Sort        string             `json:"sort,omitempty"`
	Limit       int                `json:"limit,omitempty"`
	SpecFilters map[string]float64 `json:"spec_filters,omitempty"`
}

// Price is a rounded price range.
type Price struct {
	Min        float64        `json:"min"`
	Max        float64        `json:"max"`
	Currency   string         `json:"currency"`
	Known      bool           `json:"known"`
	InBudget   bool           `json:"in_budget"`
	Source     pricing.Source `json:"source"`
	OfferCount int            `json:"offer_count"`
}

func newPrice(r pricing.Range) Price {
	return Price{
		Min:        round(r.Min, pricePlaces),
		Max:        round(r.Max, pricePlaces),
		Currency:   r.Currency,
		Known:      r.Known(),
		InBudget:   r.InBudget,
		Source:     r.Source,
		OfferCount: r.OfferCount,
	}
}

// SearchResult is one ranked product.
type SearchResult struct {
	ProductID      string        `json:"product_id"`
	Name           string        `json:"name"`
	Brand          string        `json:"brand"`
	ModelName      string        `json:"model_name"`
	Category       string        `json:"category"`
	Specs          *specs.Object `json:"specs"`
	PriceRange     Price         `json:"price_range"`
	Rating         *float64      `json:"rating,omitempty"`
	PopularityRank *int          `json:"popularity_rank,omitempty"`
	Score          float64       `json:"score"`
	ScoreBreakdown ranking.Terms `json:"score_breakdown"`
	Explanation    string        `json:"explanation"`
}

// SearchResponse is a page of ranked products.
type SearchResponse struct {
	Query        SearchRequest  `json:"query"`
	TotalResults int            `json:"total_results"`
	Products     []SearchResult `json:"products"`
}

func newSearchResult(r *ranking.RankedProduct) SearchResult {
	p := &r.Product
	return SearchResult{
		ProductID:      p.ID,
		Name:           p.DisplayName(),
		Brand:          p.Brand,
		ModelName:      p.ModelName,
		Category:       p.Category,
		Specs:          orderedSpecs(p.Specs, r.Specs),
		PriceRange:     newPrice(r.Price),
		Rating:         roundPtr(p.Rating, ratingPlaces),
		PopularityRank: p.PopularityRank,
		Score:          round(r.Score, scorePlaces),
		ScoreBreakdown: ranking.Terms{
			Rating:     round(r.Terms.Rating, scorePlaces),
			Price:      round(r.Terms.Price, scorePlaces),
			Popularity: round(r.Terms.Popularity, scorePlaces),
		},
		Explanation: r.Explanation,
	}
}

// orderedSpecs lays normalized values out in the raw specs' key order.
func orderedSpecs(raw *specs.Object, normalized specs.Normalized) *specs.Object {
	out := specs.NewObject()
	for _, k := range raw.Keys() {
		out.Set(k, normalized.Get(k))
	}
	return out
}

// PriceRangeResponse is the aggregated price of one product.
type PriceRangeResponse struct {
	ProductID string   `json:"product_id"`
	BudgetMax *float64 `json:"budget_max,omitempty"`
	Price
}

// ProductResponse is a product with its variants.
type ProductResponse struct {
	Product       storage.Product   `json:"product"`
	Variants      []storage.Variant `json:"variants"`
	TotalVariants int               `json:"total_variants"`
}

// ProductListRequest filters a plain product listing.
type ProductListRequest struct {
	Category string
	Brand    string
	Limit    int
}

// ProvenanceResponse tells where a spec value came from.
type ProvenanceResponse struct {
	Field       string    `json:"field"`
	Value       any       `json:"value"`
	Confidence  float64   `json:"confidence"`
	Sources     []string  `json:"sources"`
	LastUpdated time.Time `json:"last_updated"`
}

// VariantOffersResponse lists a variant's offers, cheapest first.
type VariantOffersResponse struct {
	VariantID       string          `json:"variant_id"`
	Offers          []storage.Offer `json:"offers"`
	BestNew         *storage.Offer  `json:"best_new"`
	BestRefurbished *storage.Offer  `json:"best_refurbished"`
	TotalOffers     int             `json:"total_offers"`
}

// CheapestOffer is one entry of a batch price check.
type CheapestOffer struct {
	VariantID     string         `json:"variant_id"`
	CheapestOffer *storage.Offer `json:"cheapest_offer"`
	Error         string         `json:"error,omitempty"`
}

// BatchPriceResponse answers a batch price check.
type BatchPriceResponse struct {
	Results []CheapestOffer `json:"results"`
}

func roundOffer(o *storage.Offer) *storage.Offer {
	if o == nil {
		return nil
	}
	out := *o
	out.PriceAmount = round(o.PriceAmount, pricePlaces)
	out.ListPriceAmount = roundPtr(o.ListPriceAmount, pricePlaces)
	return &out
}

// ReviewItem is one review in a summary.
type ReviewItem struct {
	Source      string             `json:"source"`
	Type        storage.SourceType `json:"type"`
	Rating      float64            `json:"rating"`
	Credibility float64            `json:"credibility"`
	Title       string             `json:"title,omitempty"`
	Summary     string             `json:"summary"`
	URL         string             `json:"url"`
}

// CredibilityBreakdown splits reviews by source type.
type CredibilityBreakdown struct {
	ProReviews     int     `json:"pro_reviews"`
	UserReviews    int     `json:"user_reviews"`
	AvgCredibility float64 `json:"avg_credibility"`
}

// ReviewSummaryResponse condenses a product's reviews.
type ReviewSummaryResponse struct {
	ProductID            string               `json:"product_id"`
	ModelName            string               `json:"model_name"`
	CoverageLevel        reviews.Coverage     `json:"coverage_level"`
	ReviewCount          int                  `json:"review_count"`
	AverageRating        float64              `json:"average_rating"`
	AverageCredibility   float64              `json:"average_credibility"`
	ProConsensus         []string             `json:"pro_consensus"`
	ConConsensus         []string             `json:"con_consensus"`
	Summary              string               `json:"summary"`
	CredibilityBreakdown CredibilityBreakdown `json:"credibility_breakdown"`
	Reviews              []ReviewItem         `json:"reviews"`
}

func newReviewSummary(p *storage.Product, s reviews.Summary) *ReviewSummaryResponse {
	items := make([]ReviewItem, 0, len(s.Top))
	for _, r := range s.Top {
		items = append(items, ReviewItem{
			Source:      r.Source,
			Type:        sourceTypeOf(r),
			Rating:      round(r.Rating, ratingPlaces),
			Credibility: round(r.CredibilityScore, credibilityPlaces),
			Title:       deref(r.Title),
			Summary:     deref(r.Summary),
			URL:         deref(r.URL),
		})
	}

	return &ReviewSummaryResponse{
		ProductID:          p.ID,
		ModelName:          p.ModelName,
		CoverageLevel:      s.Coverage,
		ReviewCount:        s.Count,
		AverageRating:      round(s.AverageRating, reviewPlaces),
		AverageCredibility: round(s.AverageCredibility, credibilityPlaces),
		ProConsensus:       s.ProConsensus,
		ConConsensus:       s.ConConsensus,
		Summary:            s.Text,
		CredibilityBreakdown: CredibilityBreakdown{
			ProReviews:     s.Breakdown.ProReviews,
			UserReviews:    s.Breakdown.UserReviews,
			AvgCredibility: round(s.Breakdown.AvgCredibility, credibilityPlaces),
		},
		Reviews: items,
	}
}

func sourceTypeOf(r storage.Review) storage.SourceType {
	if r.SourceType == "" {
		return storage.SourceTypeUser
	}
	return r.SourceType
}

// CategoryInfo describes one category.
type CategoryInfo struct {
	CategoryID   string              `json:"category_id"`
	Name         string              `json:"name"`
	ProductCount int                 `json:"product_count"`
	AvgRating    *float64            `json:"avg_rating"`
	PriceRange   *storage.PriceRange `json:"price_range"`
	TopBrands    []string            `json:"top_brands"`
}

// CategoriesResponse lists every category.
type CategoriesResponse struct {
	Categories []CategoryInfo `json:"categories"`
	Total      int            `json:"total"`
}

// CategoryRef names a category.
type CategoryRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// TopProductsResponse lists a category's most popular products.
type TopProductsResponse struct {
	Category CategoryRef       `json:"category"`
	Products []storage.Product `json:"products"`
	Count    int               `json:"count"`
}

// BrandsResponse lists a category's brands by product count.
type BrandsResponse struct {
	Category string               `json:"category"`
	Brands   []storage.BrandCount `json:"brands"`
	Total    int                  `json:"total"`
}

// ComparisonResponse holds compared products and their matrix.
type ComparisonResponse struct {
	Products   []storage.Product  `json:"products"`
	Comparison *comparison.Matrix `json:"comparison"`
	Cached     bool               `json:"cached"`
}

// SessionResponse is the state of a comparison session.
type SessionResponse struct {
	SessionID  string    `json:"session_id"`
	ProductIDs []string  `json:"product_ids"`
	Count      int       `json:"count"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

func newSessionResponse(s *comparison.Session) *SessionResponse {
	return &SessionResponse{
		SessionID:  s.ID,
		ProductIDs: s.ProductIDs,
		Count:      len(s.ProductIDs),
		CreatedAt:  s.CreatedAt,
		UpdatedAt:  s.UpdatedAt,
		ExpiresAt:  s.ExpiresAt,
	}
}

// SessionDetailResponse is a session with its products compared.
type SessionDetailResponse struct {
	SessionResponse
	Products   []storage.Product  `json:"products"`
	Comparison *comparison.Matrix `json:"comparison"`
}

func roundProduct(p storage.Product) storage.Product {
	p.Rating = roundPtr(p.Rating, ratingPlaces)
	if p.PriceRange != nil {
		p.PriceRange = &storage.PriceRange{
			Min: round(p.PriceRange.Min, pricePlaces),
			Max: round(p.PriceRange.Max, pricePlaces),
		}
	}
	return p
}

func roundProducts(products []storage.Product) []storage.Product {
	out := make([]storage.Product, len(products))
	for i, p := range products {
		out[i] = roundProduct(p)
	}
	return out
}

func roundMatrix(m *comparison.Matrix) {
	for id, row := range m.Pricing {
		row.Min = round(row.Min, pricePlaces)
		row.Max = round(row.Max, pricePlaces)
		row.BestPrice = roundPtr(row.BestPrice, pricePlaces)
		m.Pricing[id] = row
	}
	for id, row := range m.Ratings {
		row.Average = roundPtr(row.Average, ratingPlaces)
		m.Ratings[id] = row
	}
}

// round rounds half away from zero. Non-finite values pass through.
func round(v float64, places int32) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

func roundPtr(v *float64, places int32) *float64 {
	if v == nil {
		return nil
	}
	r := round(*v, places)
	return &r
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
