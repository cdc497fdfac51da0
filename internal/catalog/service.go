// Package catalog exposes the catalog engine's operations: search, pricing,
// comparison, product detail, reviews, categories and comparison sessions.
package catalog

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/cache"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/comparison"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/pricing"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/ranking"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/reviews"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/specs"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/storage"
)

// Listing limits.
const (
	DefaultListLimit = 10
	MaxListLimit     = 100
	MaxBatchVariants = 50
)

// SearchConfig bounds search requests.
type SearchConfig struct {
	DefaultLimit int
	MaxLimit     int
	Overfetch    int
}

// Options wires the service's collaborators. Zero values fall back to an
// in-memory session store, no matrix cache and a silent logger.
type Options struct {
	Logger             *observability.Logger
	Metrics            *observability.Metrics
	Cache              cache.Client
	Sessions           comparison.SessionStore
	Search             SearchConfig
	ComparisonCacheTTL time.Duration
	Session            comparison.SessionConfig
}

// Service implements the catalog operations over a storage reader.
type Service struct {
	store    storage.Reader
	prices   *pricing.Aggregator
	ranker   *ranking.Ranker
	matrices *comparison.Materializer
	sessions *comparison.SessionService
	logger   *observability.Logger
	metrics  *observability.Metrics
	search   SearchConfig
}

// NewService creates the service.
func NewService(store storage.Reader, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}
	search := opts.Search
	if search.DefaultLimit <= 0 {
		search.DefaultLimit = ranking.DefaultLimit
	}
	if search.MaxLimit < search.DefaultLimit {
		search.MaxLimit = MaxListLimit
	}
	sessionStore := opts.Sessions
	if sessionStore == nil {
		sessionStore = comparison.NewMemorySessionStore()
	}

	prices := pricing.NewAggregator(store)
	builder := comparison.NewBuilder(store, prices)

	return &Service{
		store:    store,
		prices:   prices,
		ranker:   ranking.NewRanker(store, prices, ranking.WithOverfetch(search.Overfetch)),
		matrices: comparison.NewMaterializer(logger, builder, opts.Cache, comparison.MaterializerConfig{CacheTTL: opts.ComparisonCacheTTL}),
		sessions: comparison.NewSessionService(sessionStore, store, opts.Session),
		logger:   logger,
		metrics:  opts.Metrics,
		search:   search,
	}
}

// Ping checks the storage backend.
func (s *Service) Ping(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return UpstreamUnavailable("storage unreachable", err)
	}
	return nil
}

// Search ranks products matching req.
func (s *Service) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	sortKey, err := ranking.ParseSortKey(req.Sort)
	if err != nil {
		return nil, InvalidInput("invalid sort", err)
	}
	if err := checkBudget(req.BudgetMax); err != nil {
		return nil, err
	}
	if req.MinRating != nil && !finite(*req.MinRating) {
		return nil, InvalidInput("min_rating must be a finite number", nil)
	}
	for key, v := range req.SpecFilters {
		if !finite(v) {
			return nil, InvalidInput(fmt.Sprintf("min_%s must be a finite number", key), nil)
		}
	}
	if req.Limit < 0 {
		return nil, InvalidInput("limit must not be negative", nil)
	}
	limit := req.Limit
	if limit == 0 {
		limit = s.search.DefaultLimit
	}
	if limit > s.search.MaxLimit {
		limit = s.search.MaxLimit
	}

	start := time.Now()
	res, err := s.ranker.Search(ctx, ranking.Query{
		Category:    req.Category,
		Brand:       req.Brand,
		OS:          req.OS,
		MinRating:   req.MinRating,
		BudgetMax:   req.BudgetMax,
		Sort:        sortKey,
		Limit:       limit,
		SpecFilters: req.SpecFilters,
	})
	if err != nil {
		return nil, classify("search failed", err)
	}
	s.metrics.ObserveSearch(res.Candidates)

	s.logger.WithContext(ctx).WithOperation("search").Debug().
		Str("category", req.Category).
		Int("candidates", res.Candidates).
		Int("total", res.Total).
		Dur("elapsed", time.Since(start)).
		Msg("Search completed")

	req.Sort = string(sortKey)
	req.Limit = limit
	out := &SearchResponse{Query: req, TotalResults: res.Total, Products: make([]SearchResult, 0, len(res.Results))}
	for i := range res.Results {
		out.Products = append(out.Products, newSearchResult(&res.Results[i]))
	}
	return out, nil
}

// PriceRange aggregates a product's new offers against an optional budget.
func (s *Service) PriceRange(ctx context.Context, productID string, budgetMax *float64) (*PriceRangeResponse, error) {
	if err := checkBudget(budgetMax); err != nil {
		return nil, err
	}
	p, err := s.product(ctx, productID)
	if err != nil {
		return nil, err
	}
	r, err := s.prices.PriceRange(ctx, p, budgetMax)
	if err != nil {
		return nil, classify("price range failed", err)
	}
	return &PriceRangeResponse{ProductID: p.ID, BudgetMax: budgetMax, Price: newPrice(r)}, nil
}

// Compare builds the comparison matrix for up to comparison.MaxProducts
// products. The limit applies to the ids as given; unknown ids are skipped
// and repeated ids are compared once.
func (s *Service) Compare(ctx context.Context, productIDs []string) (*ComparisonResponse, error) {
	ids := dedupe(productIDs)
	if len(ids) == 0 {
		return nil, InvalidInput("at least one product id is required", nil)
	}
	if nonBlank(productIDs) > comparison.MaxProducts {
		return nil, InvalidInput(fmt.Sprintf("maximum %d products can be compared", comparison.MaxProducts), comparison.ErrTooManyProducts)
	}
	for _, id := range ids {
		if !s.store.ValidID(id) {
			return nil, InvalidInput(fmt.Sprintf("invalid product id %q", id), storage.ErrInvalidID)
		}
	}

	products, err := s.store.GetProducts(ctx, ids)
	if err != nil {
		return nil, classify("load products", err)
	}
	return s.compare(ctx, products)
}

func (s *Service) compare(ctx context.Context, products []storage.Product) (*ComparisonResponse, error) {
	matrix, cached, err := s.matrices.Compare(ctx, products)
	if err != nil {
		return nil, classify("comparison failed", err)
	}
	s.metrics.CountComparison(cached)
	roundMatrix(matrix)

	return &ComparisonResponse{Products: roundProducts(products), Comparison: matrix, Cached: cached}, nil
}

// ListProducts lists products without ranking.
func (s *Service) ListProducts(ctx context.Context, req ProductListRequest) ([]storage.Product, error) {
	limit := req.Limit
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		return nil, InvalidInput(fmt.Sprintf("limit must be at most %d", MaxListLimit), nil)
	}

	products, err := s.store.FindProducts(ctx, storage.Filter{Category: req.Category, Brand: req.Brand, Limit: limit})
	if err != nil {
		return nil, classify("list products", err)
	}
	return roundProducts(products), nil
}

// GetProduct returns a product with its variants.
func (s *Service) GetProduct(ctx context.Context, productID string) (*ProductResponse, error) {
	p, err := s.product(ctx, productID)
	if err != nil {
		return nil, err
	}
	variants, err := s.store.FindVariantsByProduct(ctx, p.ID)
	if err != nil {
		return nil, classify("load variants", err)
	}
	return &ProductResponse{Product: roundProduct(*p), Variants: variants, TotalVariants: len(variants)}, nil
}

// SpecProvenance resolves a dotted spec path on a product.
func (s *Service) SpecProvenance(ctx context.Context, productID, path string) (*ProvenanceResponse, error) {
	p, err := s.product(ctx, productID)
	if err != nil {
		return nil, err
	}
	raw, ok := specs.Lookup(p.Specs, path)
	if !ok {
		return nil, NotFound(fmt.Sprintf("spec %q not found", path), storage.ErrNotFound)
	}

	prov := specs.ProvenanceOf(raw)
	return &ProvenanceResponse{
		Field:       path,
		Value:       prov.Value,
		Confidence:  prov.Confidence,
		Sources:     prov.Sources,
		LastUpdated: p.UpdatedAt,
	}, nil
}

// VariantOffers lists one variant's offers by price.
func (s *Service) VariantOffers(ctx context.Context, variantID string) (*VariantOffersResponse, error) {
	if !s.store.ValidID(variantID) {
		return nil, InvalidInput(fmt.Sprintf("invalid variant id %q", variantID), storage.ErrInvalidID)
	}
	vo, err := s.prices.VariantOffers(ctx, variantID)
	if err != nil {
		return nil, classify("load offers", err)
	}

	offers := make([]storage.Offer, len(vo.Offers))
	for i := range vo.Offers {
		offers[i] = *roundOffer(&vo.Offers[i])
	}
	return &VariantOffersResponse{
		VariantID:       variantID,
		Offers:          offers,
		BestNew:         roundOffer(vo.BestNew),
		BestRefurbished: roundOffer(vo.BestRefurbished),
		TotalOffers:     len(offers),
	}, nil
}

// BatchCheapest returns the cheapest new offer of each variant. Invalid ids
// are reported per entry instead of failing the batch.
func (s *Service) BatchCheapest(ctx context.Context, variantIDs []string) (*BatchPriceResponse, error) {
	if len(variantIDs) > MaxBatchVariants {
		return nil, InvalidInput(fmt.Sprintf("at most %d variants per batch", MaxBatchVariants), nil)
	}

	out := &BatchPriceResponse{Results: make([]CheapestOffer, 0, len(variantIDs))}
	for _, id := range variantIDs {
		if !s.store.ValidID(id) {
			out.Results = append(out.Results, CheapestOffer{VariantID: id, Error: "invalid variant id"})
			continue
		}
		offers, err := s.store.FindOffersByVariant(ctx, id, storage.ConditionPtr(storage.ConditionNew))
		if err != nil {
			return nil, classify("load offers", err)
		}
		out.Results = append(out.Results, CheapestOffer{
			VariantID:     id,
			CheapestOffer: roundOffer(pricing.Cheapest(offers, storage.ConditionNew)),
		})
	}
	return out, nil
}

// ReviewSummary condenses a product's reviews.
func (s *Service) ReviewSummary(ctx context.Context, productID string) (*ReviewSummaryResponse, error) {
	p, err := s.product(ctx, productID)
	if err != nil {
		return nil, err
	}
	found, err := s.store.FindReviews(ctx, p.ID)
	if err != nil {
		return nil, classify("load reviews", err)
	}
	return newReviewSummary(p, reviews.Summarize(found)), nil
}

// product validates id and loads the product.
func (s *Service) product(ctx context.Context, id string) (*storage.Product, error) {
	if !s.store.ValidID(id) {
		return nil, InvalidInput(fmt.Sprintf("invalid product id %q", id), storage.ErrInvalidID)
	}
	p, err := s.store.GetProduct(ctx, id)
	if err != nil {
		return nil, classify(fmt.Sprintf("product %s", id), err)
	}
	return p, nil
}

func checkBudget(budget *float64) error {
	if budget == nil {
		return nil
	}
	if !finite(*budget) {
		return InvalidInput("budget_max must be a finite number", nil)
	}
	if *budget <= 0 {
		return InvalidInput("budget_max must be positive", nil)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func nonBlank(ids []string) int {
	n := 0
	for _, id := range ids {
		if strings.TrimSpace(id) != "" {
			n++
		}
	}
	return n
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
