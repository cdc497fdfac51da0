package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/specs"
)

// DB represents a database connection interface.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// SQLStore implements Store on SQLite or PostgreSQL.
type SQLStore struct {
	conn   *sql.DB
	db     DB
	driver string
}

// OpenSQL opens a SQL database for the given driver ("sqlite" or "postgres").
func OpenSQL(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	var driverName string
	switch driver {
	case DriverSQLite:
		driverName = "sqlite3"
	case DriverPostgres:
		driverName = "postgres"
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, driver)
	}

	conn, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// A single connection keeps ":memory:" databases alive across queries.
		conn.SetMaxOpenConns(1)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return NewSQLStore(conn, driver), nil
}

func (s *SQLStore) configurePool(maxOpen, maxIdle int, lifetime time.Duration) {
	if maxOpen > 0 {
		s.conn.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		s.conn.SetMaxIdleConns(maxIdle)
	}
	if lifetime > 0 {
		s.conn.SetConnMaxLifetime(lifetime)
	}
}

// NewSQLStore wraps an open connection.
func NewSQLStore(conn *sql.DB, driver string) *SQLStore {
	return &SQLStore{conn: conn, db: conn, driver: driver}
}

// Migrate applies pending schema migrations.
func (s *SQLStore) Migrate(ctx context.Context) ([]string, error) {
	return NewMigrationManager(s.conn, s.driver).Migrate(ctx)
}

// NewID returns a random UUID string.
func (s *SQLStore) NewID() string {
	return uuid.NewString()
}

// ValidID reports whether id is a UUID.
func (s *SQLStore) ValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// Ping checks the connection.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

// Close closes the connection pool.
func (s *SQLStore) Close() error {
	return s.conn.Close()
}

const productColumns = `id, category, brand, series, model_name, name, description, image_url,
	release_date, specs, default_variant_id, price_min, price_max, rating, popularity_rank,
	tags, created_at, updated_at`

// InsertProduct stores p, assigning an id when empty.
func (s *SQLStore) InsertProduct(ctx context.Context, p *Product) error {
	if p.ID == "" {
		p.ID = s.NewID()
	}
	stamp(&p.CreatedAt, &p.UpdatedAt)

	specsJSON, err := encodeJSON(p.Specs, "{}")
	if err != nil {
		return fmt.Errorf("encode specs: %w", err)
	}
	tagsJSON, err := encodeJSON(p.Tags, "[]")
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}

	var priceMin, priceMax sql.NullFloat64
	if p.PriceRange != nil {
		priceMin = sql.NullFloat64{Float64: p.PriceRange.Min, Valid: true}
		priceMax = sql.NullFloat64{Float64: p.PriceRange.Max, Valid: true}
	}

	query := `INSERT INTO products (` + productColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, s.rebind(query),
		p.ID, p.Category, p.Brand, p.Series, p.ModelName, p.Name, p.Description, p.ImageURL,
		p.ReleaseDate, specsJSON, p.DefaultVariantID, priceMin, priceMax, p.Rating, p.PopularityRank,
		tagsJSON, p.CreatedAt, p.UpdatedAt,
	)
	return s.mapError(err)
}

// InsertVariant stores v, assigning an id when empty.
func (s *SQLStore) InsertVariant(ctx context.Context, v *Variant) error {
	if v.ID == "" {
		v.ID = s.NewID()
	}
	stamp(&v.CreatedAt, &v.UpdatedAt)

	attrs, err := encodeJSON(v.Attributes, "{}")
	if err != nil {
		return fmt.Errorf("encode attributes: %w", err)
	}

	query := `INSERT INTO variants (id, product_id, sku, color, storage_gb, ram_gb, attributes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, s.rebind(query),
		v.ID, v.ProductID, v.SKU, v.Color, v.StorageGB, v.RAMGB, attrs, v.CreatedAt, v.UpdatedAt,
	)
	return s.mapError(err)
}

// InsertOffer stores o, assigning an id when empty.
func (s *SQLStore) InsertOffer(ctx context.Context, o *Offer) error {
	if o.ID == "" {
		o.ID = s.NewID()
	}
	if o.PriceCurrency == "" {
		o.PriceCurrency = DefaultCurrency
	}
	stamp(&o.CreatedAt, &o.UpdatedAt)
	if o.LastSeenAt.IsZero() {
		o.LastSeenAt = o.CreatedAt
	}

	fulfillment, err := encodeJSON(o.Fulfillment, "[]")
	if err != nil {
		return fmt.Errorf("encode fulfillment: %w", err)
	}

	query := `INSERT INTO offers (id, variant_id, retailer, retailer_sku, condition, price_amount,
			price_currency, list_price_amount, availability, fulfillment, url, last_seen_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, s.rebind(query),
		o.ID, o.VariantID, o.Retailer, o.RetailerSKU, string(o.Condition), o.PriceAmount,
		o.PriceCurrency, o.ListPriceAmount, string(o.Availability), fulfillment, o.URL,
		o.LastSeenAt, o.CreatedAt, o.UpdatedAt,
	)
	return s.mapError(err)
}

// InsertReview stores r, assigning an id when empty.
func (s *SQLStore) InsertReview(ctx context.Context, r *Review) error {
	if r.ID == "" {
		r.ID = s.NewID()
	}
	stamp(&r.CreatedAt, nil)

	pros, err := encodeJSON(r.Pros, "[]")
	if err != nil {
		return fmt.Errorf("encode pros: %w", err)
	}
	cons, err := encodeJSON(r.Cons, "[]")
	if err != nil {
		return fmt.Errorf("encode cons: %w", err)
	}

	query := `INSERT INTO reviews (id, product_id, source, source_type, rating, title, summary, pros, cons,
			url, credibility_score, published_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, s.rebind(query),
		r.ID, r.ProductID, r.Source, string(r.SourceType), r.Rating, r.Title, r.Summary, pros, cons,
		r.URL, r.CredibilityScore, r.PublishedAt, r.CreatedAt,
	)
	return s.mapError(err)
}

// FindProducts returns products matching f. Category and rating are pushed
// into SQL; brand matching needs Unicode folding and runs in Go.
func (s *SQLStore) FindProducts(ctx context.Context, f Filter) ([]Product, error) {
	var (
		where []string
		args  []interface{}
	)
	if f.Category != "" {
		where = append(where, "category = ?")
		args = append(args, f.Category)
	}
	if f.MinRating != nil {
		where = append(where, "rating >= ?")
		args = append(args, *f.MinRating)
	}

	query := `SELECT ` + productColumns + ` FROM products`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	if f.Sort == SortPopularity {
		query += ` ORDER BY (popularity_rank IS NULL), popularity_rank, (rating IS NULL), rating DESC, ` + s.seq()
	} else {
		query += ` ORDER BY ` + s.seq()
	}
	if f.Limit > 0 && f.Brand == "" {
		query += ` LIMIT ` + strconv.Itoa(f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := []Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		if f.Matches(p) {
			products = append(products, *p)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return truncate(products, f.Limit), nil
}

// GetProduct retrieves a product by ID.
func (s *SQLStore) GetProduct(ctx context.Context, id string) (*Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = ?`
	p, err := scanProduct(s.db.QueryRowContext(ctx, s.rebind(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

// GetProducts retrieves the known products among ids, in the order of ids.
func (s *SQLStore) GetProducts(ctx context.Context, ids []string) ([]Product, error) {
	if len(ids) == 0 {
		return []Product{}, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	query := `SELECT ` + productColumns + ` FROM products WHERE id IN (` + placeholders + `)`
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[string]Product, len(ids))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		byID[p.ID] = *p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]Product, 0, len(byID))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// FindVariantsByProduct lists the variants of a product.
func (s *SQLStore) FindVariantsByProduct(ctx context.Context, productID string) ([]Variant, error) {
	query := `
		SELECT id, product_id, sku, color, storage_gb, ram_gb, attributes, created_at, updated_at
		FROM variants WHERE product_id = ?
		ORDER BY ` + s.seq() + `
	`
	rows, err := s.db.QueryContext(ctx, s.rebind(query), productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	variants := []Variant{}
	for rows.Next() {
		var (
			v                Variant
			storageGB, ramGB sql.NullInt64
			attrs            string
		)
		if err := rows.Scan(&v.ID, &v.ProductID, &v.SKU, &v.Color, &storageGB, &ramGB, &attrs,
			&v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, err
		}
		v.StorageGB = intPtr(storageGB)
		v.RAMGB = intPtr(ramGB)
		if err := decodeJSON(attrs, &v.Attributes); err != nil {
			return nil, fmt.Errorf("decode attributes of variant %s: %w", v.ID, err)
		}
		variants = append(variants, v)
	}
	return variants, rows.Err()
}

// FindOffersByVariant lists a variant's offers by ascending price.
func (s *SQLStore) FindOffersByVariant(ctx context.Context, variantID string, condition *Condition) ([]Offer, error) {
	query := `
		SELECT id, variant_id, retailer, retailer_sku, condition, price_amount, price_currency,
			list_price_amount, availability, fulfillment, url, last_seen_at, created_at, updated_at
		FROM offers WHERE variant_id = ?`
	args := []interface{}{variantID}
	if condition != nil {
		query += ` AND condition = ?`
		args = append(args, string(*condition))
	}
	query += ` ORDER BY price_amount, ` + s.seq()

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	offers := []Offer{}
	for rows.Next() {
		var (
			o                          Offer
			cond, availability, fulfil string
		)
		if err := rows.Scan(&o.ID, &o.VariantID, &o.Retailer, &o.RetailerSKU, &cond, &o.PriceAmount,
			&o.PriceCurrency, &o.ListPriceAmount, &availability, &fulfil, &o.URL,
			&o.LastSeenAt, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		o.Condition = Condition(cond)
		o.Availability = Availability(availability)
		if err := decodeJSON(fulfil, &o.Fulfillment); err != nil {
			return nil, fmt.Errorf("decode fulfillment of offer %s: %w", o.ID, err)
		}
		offers = append(offers, o)
	}
	return offers, rows.Err()
}

// CountReviews counts the reviews of a product.
func (s *SQLStore) CountReviews(ctx context.Context, productID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM reviews WHERE product_id = ?`), productID).Scan(&n)
	return n, err
}

// FindReviews lists a product's reviews, most credible first.
func (s *SQLStore) FindReviews(ctx context.Context, productID string) ([]Review, error) {
	query := `
		SELECT id, product_id, source, source_type, rating, title, summary, pros, cons, url,
			credibility_score, published_at, created_at
		FROM reviews WHERE product_id = ?
		ORDER BY credibility_score DESC, ` + s.seq() + `
	`
	rows, err := s.db.QueryContext(ctx, s.rebind(query), productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reviews := []Review{}
	for rows.Next() {
		var (
			r                      Review
			sourceType, pros, cons string
			published              sql.NullTime
		)
		if err := rows.Scan(&r.ID, &r.ProductID, &r.Source, &sourceType, &r.Rating, &r.Title, &r.Summary,
			&pros, &cons, &r.URL, &r.CredibilityScore, &published, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.SourceType = SourceType(sourceType)
		r.PublishedAt = timePtr(published)
		if err := decodeJSON(pros, &r.Pros); err != nil {
			return nil, fmt.Errorf("decode pros of review %s: %w", r.ID, err)
		}
		if err := decodeJSON(cons, &r.Cons); err != nil {
			return nil, fmt.Errorf("decode cons of review %s: %w", r.ID, err)
		}
		reviews = append(reviews, r)
	}
	return reviews, rows.Err()
}

// CategoryStats aggregates products per category, largest first.
func (s *SQLStore) CategoryStats(ctx context.Context) ([]CategoryStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT category, COUNT(*), AVG(rating), MIN(price_min), MAX(price_max)
		FROM products
		GROUP BY category
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		stats []CategoryStats
		index = make(map[string]int)
	)
	for rows.Next() {
		var (
			cs                      CategoryStats
			avg, priceMin, priceMax sql.NullFloat64
		)
		if err := rows.Scan(&cs.Category, &cs.ProductCount, &avg, &priceMin, &priceMax); err != nil {
			return nil, err
		}
		if avg.Valid {
			cs.AvgRating = &avg.Float64
		}
		if priceMin.Valid && priceMax.Valid {
			cs.PriceRange = &PriceRange{Min: priceMin.Float64, Max: priceMax.Float64}
		}
		cs.Brands = []string{}
		index[cs.Category] = len(stats)
		stats = append(stats, cs)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	brandRows, err := s.db.QueryContext(ctx, `SELECT DISTINCT category, brand FROM products ORDER BY category, brand`)
	if err != nil {
		return nil, err
	}
	defer brandRows.Close()
	for brandRows.Next() {
		var category, brand string
		if err := brandRows.Scan(&category, &brand); err != nil {
			return nil, err
		}
		i, ok := index[category]
		if ok && brand != "" && len(stats[i].Brands) < maxBrandsPerCategory {
			stats[i].Brands = append(stats[i].Brands, brand)
		}
	}
	if err := brandRows.Err(); err != nil {
		return nil, err
	}

	sortCategoryStats(stats)
	return stats, nil
}

// CategoryBrands counts products per brand within a category.
func (s *SQLStore) CategoryBrands(ctx context.Context, category string) ([]BrandCount, error) {
	query := `
		SELECT brand, COUNT(*) FROM products
		WHERE category = ?
		GROUP BY brand
	`
	rows, err := s.db.QueryContext(ctx, s.rebind(query), category)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	brands := []BrandCount{}
	for rows.Next() {
		var bc BrandCount
		if err := rows.Scan(&bc.Brand, &bc.ProductCount); err != nil {
			return nil, err
		}
		brands = append(brands, bc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortBrandCounts(brands)
	return brands, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProduct(row rowScanner) (*Product, error) {
	var (
		p                  Product
		release            sql.NullTime
		specsJSON, tags    string
		priceMin, priceMax sql.NullFloat64
		rating             sql.NullFloat64
		rank               sql.NullInt64
	)
	if err := row.Scan(&p.ID, &p.Category, &p.Brand, &p.Series, &p.ModelName, &p.Name, &p.Description,
		&p.ImageURL, &release, &specsJSON, &p.DefaultVariantID, &priceMin, &priceMax, &rating, &rank,
		&tags, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}

	p.ReleaseDate = timePtr(release)
	if priceMin.Valid && priceMax.Valid {
		p.PriceRange = &PriceRange{Min: priceMin.Float64, Max: priceMax.Float64}
	}
	if rating.Valid {
		p.Rating = &rating.Float64
	}
	p.PopularityRank = intPtr(rank)

	p.Specs = &specs.Object{}
	if err := json.Unmarshal([]byte(specsJSON), p.Specs); err != nil {
		return nil, fmt.Errorf("decode specs of product %s: %w", p.ID, err)
	}
	if err := decodeJSON(tags, &p.Tags); err != nil {
		return nil, fmt.Errorf("decode tags of product %s: %w", p.ID, err)
	}
	return &p, nil
}

// seq is the column that records insertion order.
func (s *SQLStore) seq() string {
	if s.driver == DriverPostgres {
		return "seq"
	}
	return "rowid"
}

// rebind rewrites "?" placeholders into the driver's style.
func (s *SQLStore) rebind(query string) string {
	return rebind(s.driver, query)
}

func rebind(driver, query string) string {
	if driver != DriverPostgres {
		return query
	}
	var (
		b strings.Builder
		n int
	)
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) mapError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrDuplicateKey, pqErr.Message)
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %v", ErrDuplicateKey, err)
	}
	return err
}

func encodeJSON(v interface{}, empty string) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(data) == "null" {
		return empty, nil
	}
	return string(data), nil
}

func decodeJSON(raw string, dst interface{}) error {
	if raw == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), dst)
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

var _ Store = (*SQLStore)(nil)
