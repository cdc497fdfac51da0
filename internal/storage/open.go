package storage

import (
	"context"
	"fmt"
	"time"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

// Options selects and configures a store.
type Options struct {
	Driver         string
	DSN            string
	Database       string // mongo only
	ConnectTimeout time.Duration
	AutoMigrate    bool

	// Pool settings apply to postgres only.
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open connects to the configured store. With AutoMigrate set, SQL stores
// are migrated and mongo indexes are created.
func Open(ctx context.Context, opts Options) (Store, error) {
	if opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.ConnectTimeout)
		defer cancel()
	}

	switch opts.Driver {
	case DriverMemory:
		return NewMemoryStore(), nil
	case DriverMongo:
		store, err := OpenMongo(ctx, opts.DSN, opts.Database)
		if err != nil {
			return nil, err
		}
		if opts.AutoMigrate {
			if err := store.EnsureIndexes(ctx); err != nil {
				store.Close()
				return nil, err
			}
		}
		return store, nil
	case DriverSQLite, DriverPostgres:
		store, err := OpenSQL(ctx, opts.Driver, opts.DSN)
		if err != nil {
			return nil, err
		}
		if opts.Driver == DriverPostgres {
			store.configurePool(opts.MaxOpenConns, opts.MaxIdleConns, opts.ConnMaxLifetime)
		}
		if opts.AutoMigrate {
			if _, err := store.Migrate(ctx); err != nil {
				store.Close()
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		return store, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, opts.Driver)
	}
}
