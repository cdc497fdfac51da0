package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps the catalog in process. It backs unit tests and the
// "memory" database driver used for demos.
type MemoryStore struct {
	mu       sync.RWMutex
	products []Product
	variants []Variant
	offers   []Offer
	reviews  []Review
	index    map[string]int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{index: make(map[string]int)}
}

// NewID returns a random UUID string.
func (s *MemoryStore) NewID() string {
	return uuid.NewString()
}

// ValidID accepts any non-empty id.
func (s *MemoryStore) ValidID(id string) bool {
	return id != ""
}

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) claim(id *string) error {
	if *id == "" {
		*id = s.NewID()
	}
	if _, exists := s.index[*id]; exists {
		return ErrDuplicateKey
	}
	return nil
}

func stamp(created, updated *time.Time) {
	now := time.Now().UTC()
	if created.IsZero() {
		*created = now
	}
	if updated != nil && updated.IsZero() {
		*updated = *created
	}
}

// InsertProduct stores p, assigning an id when empty.
func (s *MemoryStore) InsertProduct(ctx context.Context, p *Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.claim(&p.ID); err != nil {
		return err
	}
	stamp(&p.CreatedAt, &p.UpdatedAt)
	s.index[p.ID] = len(s.products)
	s.products = append(s.products, *p)
	return nil
}

// InsertVariant stores v, assigning an id when empty.
func (s *MemoryStore) InsertVariant(ctx context.Context, v *Variant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.claim(&v.ID); err != nil {
		return err
	}
	stamp(&v.CreatedAt, &v.UpdatedAt)
	s.index[v.ID] = len(s.variants)
	s.variants = append(s.variants, *v)
	return nil
}

// InsertOffer stores o, assigning an id when empty.
func (s *MemoryStore) InsertOffer(ctx context.Context, o *Offer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.claim(&o.ID); err != nil {
		return err
	}
	if o.PriceCurrency == "" {
		o.PriceCurrency = DefaultCurrency
	}
	stamp(&o.CreatedAt, &o.UpdatedAt)
	if o.LastSeenAt.IsZero() {
		o.LastSeenAt = o.CreatedAt
	}
	s.index[o.ID] = len(s.offers)
	s.offers = append(s.offers, *o)
	return nil
}

// InsertReview stores r, assigning an id when empty.
func (s *MemoryStore) InsertReview(ctx context.Context, r *Review) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.claim(&r.ID); err != nil {
		return err
	}
	stamp(&r.CreatedAt, nil)
	s.index[r.ID] = len(s.reviews)
	s.reviews = append(s.reviews, *r)
	return nil
}

// FindProducts returns matching products in insertion order unless f.Sort
// asks otherwise.
func (s *MemoryStore) FindProducts(ctx context.Context, f Filter) ([]Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []Product{}
	for i := range s.products {
		if f.Matches(&s.products[i]) {
			out = append(out, s.products[i])
		}
	}
	sortProducts(out, f.Sort)
	return truncate(out, f.Limit), nil
}

// GetProduct returns the product with the given id.
func (s *MemoryStore) GetProduct(ctx context.Context, id string) (*Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.product(id)
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (s *MemoryStore) product(id string) (Product, bool) {
	i, ok := s.index[id]
	if !ok || i >= len(s.products) || s.products[i].ID != id {
		return Product{}, false
	}
	return s.products[i], true
}

// GetProducts returns the known products among ids, keeping the order of ids.
func (s *MemoryStore) GetProducts(ctx context.Context, ids []string) ([]Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := s.product(id); ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// FindVariantsByProduct returns the variants owned by productID.
func (s *MemoryStore) FindVariantsByProduct(ctx context.Context, productID string) ([]Variant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []Variant{}
	for _, v := range s.variants {
		if v.ProductID == productID {
			out = append(out, v)
		}
	}
	return out, nil
}

// FindOffersByVariant returns the variant's offers by ascending price.
func (s *MemoryStore) FindOffersByVariant(ctx context.Context, variantID string, condition *Condition) ([]Offer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []Offer{}
	for _, o := range s.offers {
		if o.VariantID != variantID {
			continue
		}
		if condition != nil && o.Condition != *condition {
			continue
		}
		out = append(out, o)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PriceAmount < out[j].PriceAmount })
	return out, nil
}

// CountReviews counts the reviews of a product.
func (s *MemoryStore) CountReviews(ctx context.Context, productID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, r := range s.reviews {
		if r.ProductID == productID {
			n++
		}
	}
	return n, nil
}

// FindReviews returns the product's reviews, most credible first.
func (s *MemoryStore) FindReviews(ctx context.Context, productID string) ([]Review, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []Review{}
	for _, r := range s.reviews {
		if r.ProductID == productID {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CredibilityScore > out[j].CredibilityScore })
	return out, nil
}

// CategoryStats summarizes every category, largest first.
func (s *MemoryStore) CategoryStats(ctx context.Context) ([]CategoryStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return summarizeCategories(s.products), nil
}

// CategoryBrands counts products per brand within a category.
func (s *MemoryStore) CategoryBrands(ctx context.Context, category string) ([]BrandCount, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return countBrands(s.products, category), nil
}

var _ Store = (*MemoryStore)(nil)
