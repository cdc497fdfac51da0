// Package main provides the catalog engine CLI entrypoint.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/cache"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/catalog"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/config"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/storage"
)

// cli carries global flags and what PersistentPreRunE derives from them.
type cli struct {
	cfgFile    string
	outputJSON bool
	noColor    bool
	verbose    bool

	cfg    *config.Config
	logger *observability.Logger
	ui     *UI
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "catalogctl",
		Short: "Catalog engine CLI for seeding, search and comparison",
		Long: `catalogctl manages and queries the product catalog.

Use this tool to:
- Apply database migrations and seed fixture data
- Run ranked searches with budget and spec filters
- Aggregate prices and build comparison matrices

All commands support --json for automation.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			c.cfg, err = config.Load(c.cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			level := "warn"
			if c.verbose {
				level = c.cfg.Observability.LogLevel
			}
			c.logger = observability.NewLogger(observability.LogConfig{
				Level:       level,
				Format:      "console",
				Output:      cmd.ErrOrStderr(),
				ServiceName: "catalogctl",
			})

			if c.noColor {
				color.NoColor = true
			}
			c.ui = NewUI(cmd.OutOrStdout(), cmd.ErrOrStderr(), c.outputJSON, c.noColor)
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&c.cfgFile, "config", "c", "", "config file path (default: uses env vars)")
	root.PersistentFlags().BoolVar(&c.outputJSON, "json", false, "output in JSON format")
	root.PersistentFlags().BoolVar(&c.noColor, "no-color", false, "disable colored output")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable verbose output")

	root.AddCommand(
		newMigrateCmd(c),
		newSeedCmd(c),
		newSearchCmd(c),
		newCompareCmd(c),
		newPriceCmd(c),
		newCategoriesCmd(c),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openStore opens the configured store. Migrations run only when the
// config asks for them.
func (c *cli) openStore(ctx context.Context) (storage.Store, error) {
	store, err := storage.Open(ctx, c.cfg.StorageOptions())
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	return store, nil
}

// newService builds a catalog service with a process-local cache.
func (c *cli) newService(store storage.Reader) (*catalog.Service, func()) {
	mem := cache.NewMemoryClient(c.cfg.Cache.MaxEntries)
	svc := catalog.NewService(store, catalog.Options{
		Logger: c.logger,
		Cache:  mem,
		Search: catalog.SearchConfig{
			DefaultLimit: c.cfg.Search.DefaultLimit,
			MaxLimit:     c.cfg.Search.MaxLimit,
			Overfetch:    c.cfg.Search.Overfetch,
		},
		ComparisonCacheTTL: c.cfg.Comparison.CacheTTL,
	})
	return svc, func() { mem.Close() }
}

// writeJSON prints v as indented JSON on stdout.
func (c *cli) writeJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
