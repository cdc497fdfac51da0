package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/specs"
)

// Collection names.
const (
	productsCollection = "products"
	variantsCollection = "variants"
	offersCollection   = "offers"
	reviewsCollection  = "reviews"
)

// MongoStore implements Store on MongoDB. Ids are ObjectID hex strings.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// OpenMongo connects to MongoDB and pings the primary.
func OpenMongo(ctx context.Context, uri, database string) (*MongoStore, error) {
	if database == "" {
		database = "catalog"
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return NewMongoStore(client, database), nil
}

// NewMongoStore wraps a connected client.
func NewMongoStore(client *mongo.Client, database string) *MongoStore {
	return &MongoStore{client: client, db: client.Database(database)}
}

// EnsureIndexes creates the lookup indexes the read paths rely on.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		productsCollection: {
			{Keys: bson.D{{Key: "category", Value: 1}}},
			{Keys: bson.D{{Key: "category", Value: 1}, {Key: "popularity_rank", Value: 1}}},
		},
		variantsCollection: {{Keys: bson.D{{Key: "product_id", Value: 1}}}},
		offersCollection:   {{Keys: bson.D{{Key: "variant_id", Value: 1}, {Key: "condition", Value: 1}}}},
		reviewsCollection:  {{Keys: bson.D{{Key: "product_id", Value: 1}}}},
	}
	for name, models := range indexes {
		if _, err := s.db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", name, err)
		}
	}
	return nil
}

// NewID returns a fresh ObjectID in hex.
func (s *MongoStore) NewID() string {
	return primitive.NewObjectID().Hex()
}

// ValidID reports whether id is an ObjectID hex string.
func (s *MongoStore) ValidID(id string) bool {
	return primitive.IsValidObjectID(id)
}

// Ping checks the primary.
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

type productDoc struct {
	ID               primitive.ObjectID  `bson:"_id"`
	Category         string              `bson:"category"`
	Brand            string              `bson:"brand"`
	Series           *string             `bson:"series,omitempty"`
	ModelName        string              `bson:"model_name"`
	Name             string              `bson:"name,omitempty"`
	Description      *string             `bson:"description,omitempty"`
	ImageURL         *string             `bson:"image_url,omitempty"`
	ReleaseDate      *time.Time          `bson:"release_date,omitempty"`
	Specs            bson.D              `bson:"specs"`
	DefaultVariantID *primitive.ObjectID `bson:"default_variant_id,omitempty"`
	PriceRange       *PriceRange         `bson:"price_range,omitempty"`
	Rating           *float64            `bson:"rating,omitempty"`
	PopularityRank   *int                `bson:"popularity_rank,omitempty"`
	Tags             []string            `bson:"tags,omitempty"`
	CreatedAt        time.Time           `bson:"created_at"`
	UpdatedAt        time.Time           `bson:"updated_at"`
}

type variantDoc struct {
	ID         primitive.ObjectID `bson:"_id"`
	ProductID  primitive.ObjectID `bson:"product_id"`
	SKU        *string            `bson:"sku,omitempty"`
	Color      string             `bson:"color,omitempty"`
	StorageGB  *int               `bson:"storage_gb,omitempty"`
	RAMGB      *int               `bson:"ram_gb,omitempty"`
	Attributes bson.M             `bson:"attributes,omitempty"`
	CreatedAt  time.Time          `bson:"created_at"`
	UpdatedAt  time.Time          `bson:"updated_at"`
}

type offerDoc struct {
	ID              primitive.ObjectID `bson:"_id"`
	VariantID       primitive.ObjectID `bson:"variant_id"`
	Retailer        string             `bson:"retailer"`
	RetailerSKU     *string            `bson:"retailer_sku,omitempty"`
	Condition       Condition          `bson:"condition"`
	PriceAmount     float64            `bson:"price_amount"`
	PriceCurrency   string             `bson:"price_currency"`
	ListPriceAmount *float64           `bson:"list_price_amount,omitempty"`
	Availability    Availability       `bson:"availability"`
	Fulfillment     []Fulfillment      `bson:"fulfillment,omitempty"`
	URL             *string            `bson:"url,omitempty"`
	LastSeenAt      time.Time          `bson:"last_seen_at"`
	CreatedAt       time.Time          `bson:"created_at"`
	UpdatedAt       time.Time          `bson:"updated_at"`
}

type reviewDoc struct {
	ID               primitive.ObjectID `bson:"_id"`
	ProductID        primitive.ObjectID `bson:"product_id"`
	Source           string             `bson:"source"`
	SourceType       SourceType         `bson:"source_type"`
	Rating           float64            `bson:"rating"`
	Title            *string            `bson:"title,omitempty"`
	Summary          *string            `bson:"summary,omitempty"`
	Pros             []string           `bson:"pros,omitempty"`
	Cons             []string           `bson:"cons,omitempty"`
	URL              *string            `bson:"url,omitempty"`
	CredibilityScore float64            `bson:"credibility_score"`
	PublishedAt      *time.Time         `bson:"published_at,omitempty"`
	CreatedAt        time.Time          `bson:"created_at"`
}

// objectID parses id, assigning a fresh one when empty.
func (s *MongoStore) objectID(id *string) (primitive.ObjectID, error) {
	if *id == "" {
		oid := primitive.NewObjectID()
		*id = oid.Hex()
		return oid, nil
	}
	oid, err := primitive.ObjectIDFromHex(*id)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: %q", ErrInvalidID, *id)
	}
	return oid, nil
}

func (s *MongoStore) insert(ctx context.Context, collection string, doc interface{}) error {
	_, err := s.db.Collection(collection).InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %v", ErrDuplicateKey, err)
	}
	return err
}

// InsertProduct stores p, assigning an id when empty.
func (s *MongoStore) InsertProduct(ctx context.Context, p *Product) error {
	oid, err := s.objectID(&p.ID)
	if err != nil {
		return err
	}
	stamp(&p.CreatedAt, &p.UpdatedAt)

	doc := productDoc{
		ID: oid, Category: p.Category, Brand: p.Brand, Series: p.Series, ModelName: p.ModelName,
		Name: p.Name, Description: p.Description, ImageURL: p.ImageURL, ReleaseDate: p.ReleaseDate,
		Specs: objectToBSON(p.Specs), PriceRange: p.PriceRange, Rating: p.Rating,
		PopularityRank: p.PopularityRank, Tags: p.Tags, CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt,
	}
	if p.DefaultVariantID != nil {
		vid, err := primitive.ObjectIDFromHex(*p.DefaultVariantID)
		if err != nil {
			return fmt.Errorf("%w: default variant %q", ErrInvalidID, *p.DefaultVariantID)
		}
		doc.DefaultVariantID = &vid
	}
	return s.insert(ctx, productsCollection, doc)
}

// InsertVariant stores v, assigning an id when empty.
func (s *MongoStore) InsertVariant(ctx context.Context, v *Variant) error {
	oid, err := s.objectID(&v.ID)
	if err != nil {
		return err
	}
	pid, err := primitive.ObjectIDFromHex(v.ProductID)
	if err != nil {
		return fmt.Errorf("%w: product %q", ErrInvalidID, v.ProductID)
	}
	stamp(&v.CreatedAt, &v.UpdatedAt)

	return s.insert(ctx, variantsCollection, variantDoc{
		ID: oid, ProductID: pid, SKU: v.SKU, Color: v.Color, StorageGB: v.StorageGB, RAMGB: v.RAMGB,
		Attributes: v.Attributes, CreatedAt: v.CreatedAt, UpdatedAt: v.UpdatedAt,
	})
}

// InsertOffer stores o, assigning an id when empty.
func (s *MongoStore) InsertOffer(ctx context.Context, o *Offer) error {
	oid, err := s.objectID(&o.ID)
	if err != nil {
		return err
	}
	vid, err := primitive.ObjectIDFromHex(o.VariantID)
	if err != nil {
		return fmt.Errorf("%w: variant %q", ErrInvalidID, o.VariantID)
	}
	if o.PriceCurrency == "" {
		o.PriceCurrency = DefaultCurrency
	}
	stamp(&o.CreatedAt, &o.UpdatedAt)
	if o.LastSeenAt.IsZero() {
		o.LastSeenAt = o.CreatedAt
	}

	return s.insert(ctx, offersCollection, offerDoc{
		ID: oid, VariantID: vid, Retailer: o.Retailer, RetailerSKU: o.RetailerSKU, Condition: o.Condition,
		PriceAmount: o.PriceAmount, PriceCurrency: o.PriceCurrency, ListPriceAmount: o.ListPriceAmount,
		Availability: o.Availability, Fulfillment: o.Fulfillment, URL: o.URL, LastSeenAt: o.LastSeenAt,
		CreatedAt: o.CreatedAt, UpdatedAt: o.UpdatedAt,
	})
}

// InsertReview stores r, assigning an id when empty.
func (s *MongoStore) InsertReview(ctx context.Context, r *Review) error {
	oid, err := s.objectID(&r.ID)
	if err != nil {
		return err
	}
	pid, err := primitive.ObjectIDFromHex(r.ProductID)
	if err != nil {
		return fmt.Errorf("%w: product %q", ErrInvalidID, r.ProductID)
	}
	stamp(&r.CreatedAt, nil)

	return s.insert(ctx, reviewsCollection, reviewDoc{
		ID: oid, ProductID: pid, Source: r.Source, SourceType: r.SourceType, Rating: r.Rating,
		Title: r.Title, Summary: r.Summary, Pros: r.Pros, Cons: r.Cons, URL: r.URL,
		CredibilityScore: r.CredibilityScore, PublishedAt: r.PublishedAt, CreatedAt: r.CreatedAt,
	})
}

// FindProducts queries products. Brand is prefiltered with a case-insensitive
// regex and confirmed with Unicode folding, so limits and popularity order
// are applied after decoding.
func (s *MongoStore) FindProducts(ctx context.Context, f Filter) ([]Product, error) {
	query := bson.M{}
	if f.Category != "" {
		query["category"] = f.Category
	}
	if f.MinRating != nil {
		query["rating"] = bson.M{"$gte": *f.MinRating}
	}
	if f.Brand != "" {
		query["brand"] = primitive.Regex{Pattern: regexp.QuoteMeta(f.Brand), Options: "i"}
	}

	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if f.Limit > 0 && f.Brand == "" && f.Sort == SortNatural {
		opts.SetLimit(int64(f.Limit))
	}

	cursor, err := s.db.Collection(productsCollection).Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	products := []Product{}
	for cursor.Next(ctx) {
		var doc productDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode product: %w", err)
		}
		p := doc.toProduct()
		if f.Matches(&p) {
			products = append(products, p)
		}
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}

	sortProducts(products, f.Sort)
	return truncate(products, f.Limit), nil
}

// GetProduct retrieves a product by id.
func (s *MongoStore) GetProduct(ctx context.Context, id string) (*Product, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}

	var doc productDoc
	err = s.db.Collection(productsCollection).FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p := doc.toProduct()
	return &p, nil
}

// GetProducts retrieves the known products among ids, in the order of ids.
func (s *MongoStore) GetProducts(ctx context.Context, ids []string) ([]Product, error) {
	oids := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		if oid, err := primitive.ObjectIDFromHex(id); err == nil {
			oids = append(oids, oid)
		}
	}
	if len(oids) == 0 {
		return []Product{}, nil
	}

	cursor, err := s.db.Collection(productsCollection).Find(ctx, bson.M{"_id": bson.M{"$in": oids}})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	byID := make(map[string]Product, len(oids))
	for cursor.Next(ctx) {
		var doc productDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode product: %w", err)
		}
		byID[doc.ID.Hex()] = doc.toProduct()
	}
	if err := cursor.Err(); err != nil {
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
func (s *MongoStore) FindVariantsByProduct(ctx context.Context, productID string) ([]Variant, error) {
	pid, err := primitive.ObjectIDFromHex(productID)
	if err != nil {
		return []Variant{}, nil
	}

	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cursor, err := s.db.Collection(variantsCollection).Find(ctx, bson.M{"product_id": pid}, opts)
	if err != nil {
		return nil, err
	}

	var docs []variantDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode variants: %w", err)
	}

	variants := make([]Variant, 0, len(docs))
	for _, d := range docs {
		variants = append(variants, Variant{
			ID: d.ID.Hex(), ProductID: d.ProductID.Hex(), SKU: d.SKU, Color: d.Color,
			StorageGB: d.StorageGB, RAMGB: d.RAMGB, Attributes: d.Attributes,
			CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt,
		})
	}
	return variants, nil
}

// FindOffersByVariant lists a variant's offers by ascending price.
func (s *MongoStore) FindOffersByVariant(ctx context.Context, variantID string, condition *Condition) ([]Offer, error) {
	vid, err := primitive.ObjectIDFromHex(variantID)
	if err != nil {
		return []Offer{}, nil
	}

	query := bson.M{"variant_id": vid}
	if condition != nil {
		query["condition"] = *condition
	}
	opts := options.Find().SetSort(bson.D{{Key: "price_amount", Value: 1}, {Key: "_id", Value: 1}})

	cursor, err := s.db.Collection(offersCollection).Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}

	var docs []offerDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode offers: %w", err)
	}

	offers := make([]Offer, 0, len(docs))
	for _, d := range docs {
		offers = append(offers, Offer{
			ID: d.ID.Hex(), VariantID: d.VariantID.Hex(), Retailer: d.Retailer, RetailerSKU: d.RetailerSKU,
			Condition: d.Condition, PriceAmount: d.PriceAmount, PriceCurrency: d.PriceCurrency,
			ListPriceAmount: d.ListPriceAmount, Availability: d.Availability, Fulfillment: d.Fulfillment,
			URL: d.URL, LastSeenAt: d.LastSeenAt, CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt,
		})
	}
	return offers, nil
}

// CountReviews counts the reviews of a product.
func (s *MongoStore) CountReviews(ctx context.Context, productID string) (int, error) {
	pid, err := primitive.ObjectIDFromHex(productID)
	if err != nil {
		return 0, nil
	}
	n, err := s.db.Collection(reviewsCollection).CountDocuments(ctx, bson.M{"product_id": pid})
	return int(n), err
}

// FindReviews lists a product's reviews, most credible first.
func (s *MongoStore) FindReviews(ctx context.Context, productID string) ([]Review, error) {
	pid, err := primitive.ObjectIDFromHex(productID)
	if err != nil {
		return []Review{}, nil
	}

	opts := options.Find().SetSort(bson.D{{Key: "credibility_score", Value: -1}, {Key: "_id", Value: 1}})
	cursor, err := s.db.Collection(reviewsCollection).Find(ctx, bson.M{"product_id": pid}, opts)
	if err != nil {
		return nil, err
	}

	var docs []reviewDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode reviews: %w", err)
	}

	reviews := make([]Review, 0, len(docs))
	for _, d := range docs {
		reviews = append(reviews, Review{
			ID: d.ID.Hex(), ProductID: d.ProductID.Hex(), Source: d.Source, SourceType: d.SourceType,
			Rating: d.Rating, Title: d.Title, Summary: d.Summary, Pros: d.Pros, Cons: d.Cons, URL: d.URL,
			CredibilityScore: d.CredibilityScore, PublishedAt: d.PublishedAt, CreatedAt: d.CreatedAt,
		})
	}
	return reviews, nil
}

// CategoryStats groups products by category with an aggregation pipeline.
func (s *MongoStore) CategoryStats(ctx context.Context) ([]CategoryStats, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$category"},
			{Key: "product_count", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "avg_rating", Value: bson.D{{Key: "$avg", Value: "$rating"}}},
			{Key: "min_price", Value: bson.D{{Key: "$min", Value: "$price_range.min"}}},
			{Key: "max_price", Value: bson.D{{Key: "$max", Value: "$price_range.max"}}},
			{Key: "brands", Value: bson.D{{Key: "$addToSet", Value: "$brand"}}},
		}}},
	}

	cursor, err := s.db.Collection(productsCollection).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}

	var groups []struct {
		Category     string   `bson:"_id"`
		ProductCount int      `bson:"product_count"`
		AvgRating    *float64 `bson:"avg_rating"`
		MinPrice     *float64 `bson:"min_price"`
		MaxPrice     *float64 `bson:"max_price"`
		Brands       []string `bson:"brands"`
	}
	if err := cursor.All(ctx, &groups); err != nil {
		return nil, fmt.Errorf("decode category stats: %w", err)
	}

	stats := make([]CategoryStats, 0, len(groups))
	for _, g := range groups {
		cs := CategoryStats{Category: g.Category, ProductCount: g.ProductCount, AvgRating: g.AvgRating}
		if g.MinPrice != nil && g.MaxPrice != nil {
			cs.PriceRange = &PriceRange{Min: *g.MinPrice, Max: *g.MaxPrice}
		}
		sort.Strings(g.Brands)
		cs.Brands = truncate(append([]string{}, g.Brands...), maxBrandsPerCategory)
		stats = append(stats, cs)
	}
	sortCategoryStats(stats)
	return stats, nil
}

// CategoryBrands counts products per brand within a category.
func (s *MongoStore) CategoryBrands(ctx context.Context, category string) ([]BrandCount, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "category", Value: category}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$brand"},
			{Key: "product_count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}

	cursor, err := s.db.Collection(productsCollection).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}

	var groups []struct {
		Brand        string `bson:"_id"`
		ProductCount int    `bson:"product_count"`
	}
	if err := cursor.All(ctx, &groups); err != nil {
		return nil, fmt.Errorf("decode brand counts: %w", err)
	}

	brands := make([]BrandCount, 0, len(groups))
	for _, g := range groups {
		brands = append(brands, BrandCount{Brand: g.Brand, ProductCount: g.ProductCount})
	}
	sortBrandCounts(brands)
	return brands, nil
}

func (d *productDoc) toProduct() Product {
	p := Product{
		ID: d.ID.Hex(), Category: d.Category, Brand: d.Brand, Series: d.Series, ModelName: d.ModelName,
		Name: d.Name, Description: d.Description, ImageURL: d.ImageURL, ReleaseDate: d.ReleaseDate,
		Specs: bsonToObject(d.Specs), PriceRange: d.PriceRange, Rating: d.Rating,
		PopularityRank: d.PopularityRank, Tags: d.Tags, CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt,
	}
	if d.DefaultVariantID != nil {
		hex := d.DefaultVariantID.Hex()
		p.DefaultVariantID = &hex
	}
	return p
}

// bsonToObject converts an ordered BSON document into a spec Object,
// keeping field order at every level.
func bsonToObject(d bson.D) *specs.Object {
	obj := specs.NewObject()
	for _, e := range d {
		obj.Set(e.Key, fromBSON(e.Value))
	}
	return obj
}

func fromBSON(v interface{}) interface{} {
	switch t := v.(type) {
	case bson.D:
		return bsonToObject(t)
	case bson.M:
		return specs.FromMap(t)
	case bson.A:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = fromBSON(item)
		}
		return out
	case int32:
		return int64(t)
	default:
		return v
	}
}

// objectToBSON converts a spec Object into an ordered BSON document.
func objectToBSON(o *specs.Object) bson.D {
	d := bson.D{}
	o.Range(func(key string, value any) bool {
		d = append(d, bson.E{Key: key, Value: toBSON(value)})
		return true
	})
	return d
}

func toBSON(v interface{}) interface{} {
	switch t := v.(type) {
	case *specs.Object:
		return objectToBSON(t)
	case []interface{}:
		out := make(bson.A, len(t))
		for i, item := range t {
			out[i] = toBSON(item)
		}
		return out
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	default:
		return v
	}
}

var _ Store = (*MongoStore)(nil)
