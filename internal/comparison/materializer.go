package comparison

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/cache"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/specs"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/storage"
)

const matrixKeyPrefix = "matrix:"

// MaterializerConfig configures matrix caching.
type MaterializerConfig struct {
	CacheTTL time.Duration
}

// Materializer serves matrices from the cache and builds them on a miss.
type Materializer struct {
	logger  *observability.Logger
	builder *Builder
	cache   cache.Client
	ttl     time.Duration
}

// NewMaterializer creates a materializer. A nil cache disables caching.
func NewMaterializer(logger *observability.Logger, builder *Builder, c cache.Client, cfg MaterializerConfig) *Materializer {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Materializer{logger: logger, builder: builder, cache: c, ttl: cfg.CacheTTL}
}

// Compare returns the matrix for products and whether it was served from
// the cache. Cache failures are logged and fall through to a fresh build.
func (m *Materializer) Compare(ctx context.Context, products []storage.Product) (*Matrix, bool, error) {
	if len(products) > MaxProducts {
		return nil, false, ErrTooManyProducts
	}
	key := m.matrixKey(products)
	log := m.logger.WithContext(ctx).WithOperation("compare")

	if m.cache != nil {
		var cached Matrix
		err := cache.GetJSON(ctx, m.cache, key, &cached)
		switch {
		case err == nil:
			restoreMissing(&cached)
			return &cached, true, nil
		case !errors.Is(err, cache.ErrCacheMiss):
			log.Warn().Err(err).Str("key", key).Msg("Matrix cache read failed")
		}
	}

	matrix, err := m.builder.Build(ctx, products)
	if err != nil {
		return nil, false, err
	}

	if m.cache != nil {
		if err := cache.SetJSON(ctx, m.cache, key, matrix, m.ttl); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Matrix cache write failed")
		}
	}

	log.Debug().
		Strs("product_ids", matrix.ProductIDs).
		Int("spec_keys", len(matrix.SpecKeys)).
		Msg("Built comparison matrix")

	return matrix, false, nil
}

// Invalidate drops every cached matrix.
func (m *Materializer) Invalidate(ctx context.Context) error {
	if m.cache == nil {
		return nil
	}
	return m.cache.DeleteByPrefix(ctx, matrixKeyPrefix)
}

// matrixKey hashes the product ids in order, so the same set in another
// order is a different matrix.
func (m *Materializer) matrixKey(products []storage.Product) string {
	h := sha256.New()
	for i := range products {
		h.Write([]byte(products[i].ID))
		h.Write([]byte{0})
	}
	return matrixKeyPrefix + hex.EncodeToString(h.Sum(nil))[:16]
}

// restoreMissing turns decoded placeholders back into the Missing sentinel.
func restoreMissing(m *Matrix) {
	for _, row := range m.Specs {
		for _, key := range row.Keys() {
			if v, _ := row.Get(key); v == specs.Placeholder {
				row.Set(key, specs.Missing)
			}
		}
	}
}
