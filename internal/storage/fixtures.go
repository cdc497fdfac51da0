package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Fixtures is a JSON catalog dump used for seeding. Ids inside a fixture file
// are local labels; Import maps them to store-native ids.
type Fixtures struct {
	Products []Product `json:"products"`
	Variants []Variant `json:"variants"`
	Offers   []Offer   `json:"offers"`
	Reviews  []Review  `json:"reviews"`
}

// Total is the number of records in the fixture set.
func (f *Fixtures) Total() int {
	return len(f.Products) + len(f.Variants) + len(f.Offers) + len(f.Reviews)
}

// LoadFixtures decodes a fixture document.
func LoadFixtures(r io.Reader) (*Fixtures, error) {
	var fx Fixtures
	if err := json.NewDecoder(r).Decode(&fx); err != nil {
		return nil, fmt.Errorf("decode fixtures: %w", err)
	}
	return &fx, nil
}

// LoadFixturesFile reads fixtures from a file.
func LoadFixturesFile(path string) (*Fixtures, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fixtures: %w", err)
	}
	defer f.Close()
	return LoadFixtures(f)
}

// ImportResult maps fixture labels to the ids the store assigned.
type ImportResult struct {
	IDs      map[string]string
	Products int
	Variants int
	Offers   int
	Reviews  int
}

// Import writes the fixtures through w. References between records are
// rewritten to the new ids. progress, when non-nil, is called after every
// record.
func Import(ctx context.Context, w Writer, fx *Fixtures, progress func(done, total int)) (*ImportResult, error) {
	res := &ImportResult{IDs: make(map[string]string, fx.Total())}
	assign := func(label string) string {
		id := w.NewID()
		if label != "" {
			res.IDs[label] = id
		}
		return id
	}
	resolve := func(kind, label string) (string, error) {
		id, ok := res.IDs[label]
		if !ok {
			return "", fmt.Errorf("%s %q is not defined in fixtures", kind, label)
		}
		return id, nil
	}

	// Variant ids are assigned first so products can point at their default.
	variantIDs := make([]string, len(fx.Variants))
	for i := range fx.Variants {
		variantIDs[i] = assign(fx.Variants[i].ID)
	}

	total, done := fx.Total(), 0
	tick := func() {
		done++
		if progress != nil {
			progress(done, total)
		}
	}

	for i := range fx.Products {
		p := fx.Products[i]
		p.ID = assign(p.ID)
		if p.DefaultVariantID != nil {
			vid, err := resolve("variant", *p.DefaultVariantID)
			if err != nil {
				return res, err
			}
			p.DefaultVariantID = &vid
		}
		if err := w.InsertProduct(ctx, &p); err != nil {
			return res, fmt.Errorf("insert product %q: %w", fx.Products[i].ID, err)
		}
		res.Products++
		tick()
	}

	for i := range fx.Variants {
		v := fx.Variants[i]
		v.ID = variantIDs[i]
		pid, err := resolve("product", v.ProductID)
		if err != nil {
			return res, err
		}
		v.ProductID = pid
		if err := w.InsertVariant(ctx, &v); err != nil {
			return res, fmt.Errorf("insert variant %q: %w", fx.Variants[i].ID, err)
		}
		res.Variants++
		tick()
	}

	for i := range fx.Offers {
		o := fx.Offers[i]
		o.ID = assign(o.ID)
		vid, err := resolve("variant", o.VariantID)
		if err != nil {
			return res, err
		}
		o.VariantID = vid
		if err := w.InsertOffer(ctx, &o); err != nil {
			return res, fmt.Errorf("insert offer %q: %w", fx.Offers[i].ID, err)
		}
		res.Offers++
		tick()
	}

	for i := range fx.Reviews {
		r := fx.Reviews[i]
		r.ID = assign(r.ID)
		pid, err := resolve("product", r.ProductID)
		if err != nil {
			return res, err
		}
		r.ProductID = pid
		if err := w.InsertReview(ctx, &r); err != nil {
			return res, fmt.Errorf("insert review %q: %w", fx.Reviews[i].ID, err)
		}
		res.Reviews++
		tick()
	}

	return res, nil
}
