package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// MigrationManager applies the embedded schema migrations.
type MigrationManager struct {
	db     *sql.DB
	files  fs.FS
	driver string // "sqlite" or "postgres"
}

// NewMigrationManager creates a migration manager for the embedded migrations.
func NewMigrationManager(db *sql.DB, driver string) *MigrationManager {
	sub, _ := fs.Sub(migrationFiles, "migrations")
	return &MigrationManager{db: db, files: sub, driver: driver}
}

// MigrationStatus represents the status of migrations.
type MigrationStatus struct {
	UpToDate bool
	Pending  []string
	Applied  []string
	Total    int
}

// CheckMigrations reports which migrations have not been applied yet.
func (m *MigrationManager) CheckMigrations(ctx context.Context) (*MigrationStatus, error) {
	if err := m.ensureSchemaMigrationsTable(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema_migrations table: %w", err)
	}

	migrations, err := m.listMigrationFiles()
	if err != nil {
		return nil, fmt.Errorf("list migration files: %w", err)
	}

	applied, err := m.appliedVersions(ctx)
	if err != nil {
		return nil, fmt.Errorf("read applied migrations: %w", err)
	}

	status := &MigrationStatus{Pending: []string{}, Total: len(migrations)}
	for _, name := range migrations {
		if applied[name] {
			status.Applied = append(status.Applied, name)
			continue
		}
		status.Pending = append(status.Pending, name)
	}
	status.UpToDate = len(status.Pending) == 0
	return status, nil
}

// RunMigrations runs all pending migrations in order.
func (m *MigrationManager) RunMigrations(ctx context.Context, status *MigrationStatus) error {
	sort.Strings(status.Pending)
	for _, name := range status.Pending {
		if err := m.runMigration(ctx, name); err != nil {
			return fmt.Errorf("run migration %s: %w", name, err)
		}
	}
	return nil
}

// Migrate checks and applies pending migrations, returning what ran.
func (m *MigrationManager) Migrate(ctx context.Context) ([]string, error) {
	status, err := m.CheckMigrations(ctx)
	if err != nil {
		return nil, err
	}
	if status.UpToDate {
		return nil, nil
	}
	if err := m.RunMigrations(ctx, status); err != nil {
		return nil, err
	}
	return status.Pending, nil
}

func (m *MigrationManager) ensureSchemaMigrationsTable(ctx context.Context) error {
	var query string
	switch m.driver {
	case DriverSQLite:
		query = `
			CREATE TABLE IF NOT EXISTS schema_migrations (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				version TEXT UNIQUE NOT NULL,
				applied_at TEXT NOT NULL DEFAULT (datetime('now'))
			);
		`
	default:
		query = `
			CREATE TABLE IF NOT EXISTS schema_migrations (
				id SERIAL PRIMARY KEY,
				version TEXT UNIQUE NOT NULL,
				applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
		`
	}
	_, err := m.db.ExecContext(ctx, query)
	return err
}

// listMigrationFiles picks the driver's flavour of every migration. SQLite
// prefers a "_sqlite.sql" variant and falls back to the plain file.
func (m *MigrationManager) listMigrationFiles() ([]string, error) {
	entries, err := fs.ReadDir(m.files, ".")
	if err != nil {
		return nil, err
	}

	sqliteMigrations := make(map[string]string)
	regularMigrations := make(map[string]string)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		if strings.HasSuffix(name, "_sqlite.sql") {
			sqliteMigrations[strings.TrimSuffix(name, "_sqlite.sql")] = name
		} else {
			regularMigrations[strings.TrimSuffix(name, ".sql")] = name
		}
	}

	var migrations []string
	for base, regular := range regularMigrations {
		if m.driver == DriverSQLite {
			if lite, ok := sqliteMigrations[base]; ok {
				migrations = append(migrations, lite)
				continue
			}
		}
		migrations = append(migrations, regular)
	}
	if m.driver == DriverSQLite {
		for base, lite := range sqliteMigrations {
			if _, ok := regularMigrations[base]; !ok {
				migrations = append(migrations, lite)
			}
		}
	}
	sort.Strings(migrations)
	return migrations, nil
}

func (m *MigrationManager) appliedVersions(ctx context.Context) (map[string]bool, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func (m *MigrationManager) runMigration(ctx context.Context, name string) error {
	data, err := fs.ReadFile(m.files, name)
	if err != nil {
		return fmt.Errorf("read migration file: %w", err)
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, string(data)); err != nil {
		return fmt.Errorf("execute migration: %w", err)
	}
	if _, err := tx.ExecContext(ctx, rebind(m.driver, `INSERT INTO schema_migrations (version) VALUES (?)`), name); err != nil {
		return fmt.Errorf("record migration: %w", err)
	}
	return tx.Commit()
}
