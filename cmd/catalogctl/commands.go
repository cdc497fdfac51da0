package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/catalog"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/comparison"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/specs"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/storage"
)

// newMigrateCmd creates the migrate subcommand.
func newMigrateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Long: `Apply pending schema migrations for SQLite or Postgres, or create the
lookup indexes for MongoDB. The memory driver needs no migration.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			opts := c.cfg.StorageOptions()
			opts.AutoMigrate = false
			store, err := storage.Open(ctx, opts)
			if err != nil {
				return fmt.Errorf("open storage: %w", err)
			}
			defer store.Close()

			c.logger.Info().Str("driver", opts.Driver).Msg("Running migrations")

			var applied []string
			switch s := store.(type) {
			case *storage.SQLStore:
				applied, err = s.Migrate(ctx)
				if err != nil {
					return fmt.Errorf("migrate: %w", err)
				}
			case *storage.MongoStore:
				if err := s.EnsureIndexes(ctx); err != nil {
					return fmt.Errorf("ensure indexes: %w", err)
				}
				applied = []string{"indexes"}
			}

			if c.outputJSON {
				if applied == nil {
					applied = []string{}
				}
				return c.writeJSON(cmd, map[string]interface{}{"driver": opts.Driver, "applied": applied})
			}
			if len(applied) == 0 {
				c.ui.Success("Schema is up to date (%s)", opts.Driver)
				return nil
			}
			c.ui.Success("Applied %d migration(s) on %s: %s", len(applied), opts.Driver, strings.Join(applied, ", "))
			return nil
		},
	}
}

// newSeedCmd creates the seed subcommand.
func newSeedCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <fixtures.json>",
		Short: "Load catalog fixtures into storage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
			defer cancel()

			fx, err := storage.LoadFixturesFile(args[0])
			if err != nil {
				return err
			}

			opts := c.cfg.StorageOptions()
			opts.AutoMigrate = true
			store, err := storage.Open(ctx, opts)
			if err != nil {
				return fmt.Errorf("open storage: %w", err)
			}
			defer store.Close()

			start := time.Now()
			var progress func(done, total int)
			if bar := c.ui.ProgressBar(fx.Total(), "Seeding"); bar != nil {
				progress = func(done, _ int) {
					_ = bar.Set(done)
				}
				defer bar.Finish()
			}

			res, err := storage.Import(ctx, store, fx, progress)
			if err != nil {
				return fmt.Errorf("seed: %w", err)
			}

			c.logger.Info().
				Str("file", args[0]).
				Int("products", res.Products).
				Dur("elapsed", time.Since(start)).
				Msg("Seed complete")

			if c.outputJSON {
				return c.writeJSON(cmd, map[string]interface{}{
					"products": res.Products,
					"variants": res.Variants,
					"offers":   res.Offers,
					"reviews":  res.Reviews,
					"ids":      res.IDs,
				})
			}
			c.ui.Success("Seeded %d products, %d variants, %d offers, %d reviews in %s",
				res.Products, res.Variants, res.Offers, res.Reviews, FormatDuration(time.Since(start)))
			return nil
		},
	}
}

// newSearchCmd creates the search subcommand.
func newSearchCmd(c *cli) *cobra.Command {
	var (
		req       catalog.SearchRequest
		minRating float64
		budget    float64
		specMins  map[string]string
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Rank products by rating, budget headroom and popularity",
		Example: `  catalogctl search --category smartphones --budget 800
  catalogctl search --os android --spec ram_gb=8 --sort popularity`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			if cmd.Flags().Changed("min-rating") {
				req.MinRating = &minRating
			}
			if cmd.Flags().Changed("budget") {
				req.BudgetMax = &budget
			}
			filters, err := parseSpecMins(specMins)
			if err != nil {
				return err
			}
			req.SpecFilters = filters

			store, err := c.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()
			svc, closeSvc := c.newService(store)
			defer closeSvc()

			stop := c.ui.Spinner("Searching catalog")
			resp, err := svc.Search(ctx, req)
			stop()
			if err != nil {
				return err
			}

			if c.outputJSON {
				return c.writeJSON(cmd, resp)
			}

			c.ui.Section(fmt.Sprintf("%d result(s)", resp.TotalResults))
			rows := make([][]string, 0, len(resp.Products))
			for i, p := range resp.Products {
				rows = append(rows, []string{
					strconv.Itoa(i + 1),
					p.Name,
					formatPrice(p.PriceRange),
					formatRating(p.Rating),
					strconv.FormatFloat(p.Score, 'f', 1, 64),
					p.Explanation,
					p.ProductID,
				})
			}
			c.ui.Table([]string{"#", "Product", "Price", "Rating", "Score", "Why", "ID"}, rows)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Category, "category", "", "category id, e.g. smartphones")
	cmd.Flags().StringVar(&req.Brand, "brand", "", "brand (case-insensitive substring)")
	cmd.Flags().StringVar(&req.OS, "os", "", "operating system (case-insensitive substring)")
	cmd.Flags().Float64Var(&minRating, "min-rating", 0, "minimum rating")
	cmd.Flags().Float64Var(&budget, "budget", 0, "maximum budget")
	cmd.Flags().StringVar(&req.Sort, "sort", "score", "sort key: score, price or popularity")
	cmd.Flags().IntVar(&req.Limit, "limit", 0, "maximum results (default from config)")
	cmd.Flags().StringToStringVar(&specMins, "spec", nil, "numeric spec lower bound, e.g. ram_gb=8 (repeatable)")

	return cmd
}

func parseSpecMins(raw map[string]string) (map[string]float64, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]float64, len(raw))
	for k, v := range raw {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid --spec %s=%s: %w", k, v, err)
		}
		out[strings.TrimSpace(k)] = f
	}
	return out, nil
}

// newCompareCmd creates the compare subcommand.
func newCompareCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "compare <product-id>...",
		Short: "Build a side-by-side comparison matrix",
		Args:  cobra.RangeArgs(1, comparison.MaxProducts),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			store, err := c.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()
			svc, closeSvc := c.newService(store)
			defer closeSvc()

			stop := c.ui.Spinner("Building comparison")
			resp, err := svc.Compare(ctx, args)
			stop()
			if err != nil {
				return err
			}

			if c.outputJSON {
				return c.writeJSON(cmd, resp)
			}
			renderMatrix(c.ui, resp.Comparison)
			return nil
		},
	}
}

func renderMatrix(ui *UI, m *comparison.Matrix) {
	if m == nil || len(m.ProductIDs) == 0 {
		ui.Warning("No products to compare")
		return
	}

	headers := []string{""}
	for _, id := range m.ProductIDs {
		info := m.BasicInfo[id]
		headers = append(headers, strings.TrimSpace(info.Brand+" "+info.Model))
	}

	row := func(label string, cell func(id string) string) []string {
		r := []string{label}
		for _, id := range m.ProductIDs {
			r = append(r, cell(id))
		}
		return r
	}

	rows := [][]string{
		row("Price", func(id string) string {
			p := m.Pricing[id]
			if !p.Known {
				return "unknown"
			}
			return formatRange(p.Min, p.Max, p.Currency)
		}),
		row("Best offer", func(id string) string {
			p := m.Pricing[id]
			if p.BestPrice == nil {
				return specs.Placeholder
			}
			s := strconv.FormatFloat(*p.BestPrice, 'f', 2, 64)
			if p.Retailer != nil {
				s += " @ " + *p.Retailer
			}
			return s
		}),
		row("Rating", func(id string) string { return formatRating(m.Ratings[id].Average) }),
		row("In stock", func(id string) string {
			a := m.Availability[id]
			return fmt.Sprintf("%t (%d offers)", a.InStock, a.Offers)
		}),
	}
	for _, key := range m.SpecKeys {
		label := m.SpecLabels[key]
		if label == "" {
			label = key
		}
		rows = append(rows, row(label, func(id string) string {
			if obj := m.Specs[id]; obj != nil {
				if v, ok := obj.Get(key); ok {
					return fmt.Sprint(v)
				}
			}
			return specs.Placeholder
		}))
	}

	ui.Section("Comparison")
	ui.Table(headers, rows)
}

// newPriceCmd creates the price subcommand.
func newPriceCmd(c *cli) *cobra.Command {
	var budget float64

	cmd := &cobra.Command{
		Use:   "price <product-id>",
		Short: "Aggregate a product's price range from its new offers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			var budgetMax *float64
			if cmd.Flags().Changed("budget") {
				budgetMax = &budget
			}

			store, err := c.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()
			svc, closeSvc := c.newService(store)
			defer closeSvc()

			resp, err := svc.PriceRange(ctx, args[0], budgetMax)
			if err != nil {
				return err
			}

			if c.outputJSON {
				return c.writeJSON(cmd, resp)
			}
			c.ui.Section("Price range")
			c.ui.KeyValue("Product", resp.ProductID)
			c.ui.KeyValue("Range", formatPrice(resp.Price))
			c.ui.KeyValue("Source", resp.Source)
			c.ui.KeyValue("Offers", resp.OfferCount)
			if budgetMax != nil {
				c.ui.KeyValue("In budget", resp.InBudget)
			}
			return nil
		},
	}

	cmd.Flags().Float64Var(&budget, "budget", 0, "budget to check against")
	return cmd
}

// newCategoriesCmd creates the categories subcommand.
func newCategoriesCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List categories with product counts, ratings and price spans",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			store, err := c.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()
			svc, closeSvc := c.newService(store)
			defer closeSvc()

			resp, err := svc.Categories(ctx)
			if err != nil {
				return err
			}

			if c.outputJSON {
				return c.writeJSON(cmd, resp)
			}
			rows := make([][]string, 0, len(resp.Categories))
			for _, cat := range resp.Categories {
				span := specs.Placeholder
				if cat.PriceRange != nil {
					span = formatRange(cat.PriceRange.Min, cat.PriceRange.Max, "")
				}
				rows = append(rows, []string{
					cat.CategoryID,
					cat.Name,
					strconv.Itoa(cat.ProductCount),
					formatRating(cat.AvgRating),
					span,
					strings.Join(cat.TopBrands, ", "),
				})
			}
			c.ui.Table([]string{"ID", "Name", "Products", "Avg rating", "Prices", "Brands"}, rows)
			return nil
		},
	}
}

func formatPrice(p catalog.Price) string {
	if !p.Known {
		return "unknown"
	}
	return formatRange(p.Min, p.Max, p.Currency)
}

func formatRange(lo, hi float64, currency string) string {
	s := strconv.FormatFloat(lo, 'f', 2, 64)
	if hi != lo {
		s += "-" + strconv.FormatFloat(hi, 'f', 2, 64)
	}
	if currency != "" {
		s += " " + currency
	}
	return s
}

func formatRating(r *float64) string {
	if r == nil {
		return specs.Placeholder
	}
	return strconv.FormatFloat(*r, 'f', 1, 64)
}
