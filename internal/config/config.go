// Package config provides unified configuration loading for the catalog
// engine. Supports YAML files, .env files and environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/cache"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/storage"
)

// Config holds all configuration for the catalog engine.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Cache         CacheConfig         `yaml:"cache"`
	Search        SearchConfig        `yaml:"search"`
	Comparison    ComparisonConfig    `yaml:"comparison"`
	Sessions      SessionsConfig      `yaml:"sessions"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
	CORSOrigins      []string      `yaml:"cors_origins"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Driver         string         `yaml:"driver"` // sqlite, postgres, mongo or memory
	ConnectTimeout time.Duration  `yaml:"connect_timeout"`
	AutoMigrate    bool           `yaml:"auto_migrate"`
	SQLite         SQLiteConfig   `yaml:"sqlite"`
	Postgres       PostgresConfig `yaml:"postgres"`
	Mongo          MongoConfig    `yaml:"mongo"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// PostgresConfig holds Postgres-specific settings.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// MongoConfig holds MongoDB settings.
type MongoConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

// CacheConfig holds cache settings.
type CacheConfig struct {
	Driver     string      `yaml:"driver"` // memory or redis
	MaxEntries int         `yaml:"max_entries"`
	Redis      RedisConfig `yaml:"redis"`
}

// RedisConfig holds Redis-specific settings. URL wins over Addr.
type RedisConfig struct {
	URL      string `yaml:"url"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
	Prefix   string `yaml:"prefix"`
}

// SearchConfig holds search settings.
type SearchConfig struct {
	DefaultLimit int `yaml:"default_limit"`
	MaxLimit     int `yaml:"max_limit"`
	Overfetch    int `yaml:"overfetch"`
}

// ComparisonConfig holds comparison matrix settings.
type ComparisonConfig struct {
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// SessionsConfig holds comparison session settings.
type SessionsConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	SweepSchedule string        `yaml:"sweep_schedule"`
	MaxProducts   int           `yaml:"max_products"`
}

// RateLimitConfig holds per-client API rate limits.
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled"`
	RPS     float64 `yaml:"rps"`
	Burst   int     `yaml:"burst"`
}

// ObservabilityConfig holds logging and metrics settings.
type ObservabilityConfig struct {
	LogLevel       string `yaml:"log_level"`
	LogFormat      string `yaml:"log_format"`
	ServiceName    string `yaml:"service_name"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`
}

// Load reads configuration from a YAML file, then a .env file in the working
// directory, then the environment.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}

		if p := cfg.Database.SQLite.Path; p != "" && cfg.Database.Driver == "sqlite" {
			cfg.Database.SQLite.Path = ResolveRelativePath(path, p)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults for development.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8090,
			ReadTimeout:      15 * time.Second,
			WriteTimeout:     30 * time.Second,
			IdleTimeout:      120 * time.Second,
			RequestTimeout:   20 * time.Second,
			GracefulShutdown: 10 * time.Second,
			CORSOrigins:      []string{"*"},
		},
		Database: DatabaseConfig{
			Driver:         "sqlite",
			ConnectTimeout: 10 * time.Second,
			AutoMigrate:    true,
			SQLite: SQLiteConfig{
				Path: "/tmp/catalog-engine.db",
			},
			Postgres: PostgresConfig{
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: 5 * time.Minute,
			},
			Mongo: MongoConfig{
				URI:      "mongodb://localhost:27017",
				Database: "catalog",
			},
		},
		Cache: CacheConfig{
			Driver:     "memory",
			MaxEntries: 10000,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				PoolSize: 10,
				Prefix:   "catalog:",
			},
		},
		Search: SearchConfig{
			DefaultLimit: 20,
			MaxLimit:     100,
			Overfetch:    2,
		},
		Comparison: ComparisonConfig{
			CacheTTL: 10 * time.Minute,
		},
		Sessions: SessionsConfig{
			TTL:           24 * time.Hour,
			SweepSchedule: "@every 10m",
			MaxProducts:   4,
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			RPS:     20,
			Burst:   40,
		},
		Observability: ObservabilityConfig{
			LogLevel:       "debug",
			LogFormat:      "json",
			ServiceName:    "catalog-engine",
			MetricsEnabled: true,
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.Database.Driver {
	case "sqlite", "postgres", "mongo", "memory":
	default:
		return fmt.Errorf("invalid database driver: %s", c.Database.Driver)
	}
	if c.Database.Driver == "postgres" && c.Database.Postgres.DSN == "" {
		return fmt.Errorf("postgres driver requires database.postgres.dsn")
	}

	if c.Cache.Driver != "memory" && c.Cache.Driver != "redis" {
		return fmt.Errorf("invalid cache driver: %s", c.Cache.Driver)
	}

	if c.Search.DefaultLimit < 1 || c.Search.DefaultLimit > c.Search.MaxLimit {
		return fmt.Errorf("search.default_limit must be between 1 and max_limit (%d)", c.Search.MaxLimit)
	}
	if c.Search.Overfetch < 1 {
		return fmt.Errorf("search.overfetch must be at least 1")
	}

	if c.Sessions.MaxProducts < 1 || c.Sessions.MaxProducts > 4 {
		return fmt.Errorf("sessions.max_products must be between 1 and 4")
	}
	if c.Sessions.TTL <= 0 {
		return fmt.Errorf("sessions.ttl must be positive")
	}
	if _, err := cron.ParseStandard(c.Sessions.SweepSchedule); err != nil {
		return fmt.Errorf("invalid sessions.sweep_schedule %q: %w", c.Sessions.SweepSchedule, err)
	}

	if c.RateLimit.Enabled && (c.RateLimit.RPS <= 0 || c.RateLimit.Burst < 1) {
		return fmt.Errorf("rate_limit requires positive rps and burst")
	}

	return nil
}

// DatabaseDSN returns the connection string of the selected driver.
func (c *Config) DatabaseDSN() string {
	switch c.Database.Driver {
	case "sqlite":
		return c.Database.SQLite.Path
	case "mongo":
		return c.Database.Mongo.URI
	case "postgres":
		return c.Database.Postgres.DSN
	default:
		return ""
	}
}

// StorageOptions maps the database section onto storage.Options.
func (c *Config) StorageOptions() storage.Options {
	opts := storage.Options{
		Driver:         c.Database.Driver,
		DSN:            c.DatabaseDSN(),
		ConnectTimeout: c.Database.ConnectTimeout,
		AutoMigrate:    c.Database.AutoMigrate,
	}
	switch c.Database.Driver {
	case "mongo":
		opts.Database = c.Database.Mongo.Database
	case "postgres":
		opts.MaxOpenConns = c.Database.Postgres.MaxOpenConns
		opts.MaxIdleConns = c.Database.Postgres.MaxIdleConns
		opts.ConnMaxLifetime = c.Database.Postgres.ConnMaxLifetime
	}
	return opts
}

// RedisOptions maps the cache section onto cache.RedisConfig.
func (c *Config) RedisOptions() cache.RedisConfig {
	r := c.Cache.Redis
	return cache.RedisConfig{
		URL:      r.URL,
		Addr:     r.Addr,
		Password: r.Password,
		DB:       r.DB,
		PoolSize: r.PoolSize,
		Prefix:   r.Prefix,
	}
}

// Addr returns the listen address of the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// ResolveRelativePath resolves a path relative to the config file location.
func ResolveRelativePath(configPath, targetPath string) string {
	if filepath.IsAbs(targetPath) {
		return targetPath
	}
	return filepath.Join(filepath.Dir(configPath), targetPath)
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid SERVER_PORT %q: %w", v, err)
		}
		cfg.Server.Port = port
	}

	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		switch {
		case strings.HasPrefix(v, "sqlite:"):
			cfg.Database.Driver = "sqlite"
			cfg.Database.SQLite.Path = strings.TrimPrefix(v, "sqlite:")
		case strings.HasPrefix(v, "postgres"):
			cfg.Database.Driver = "postgres"
			cfg.Database.Postgres.DSN = v
		case strings.HasPrefix(v, "mongodb"):
			cfg.Database.Driver = "mongo"
			cfg.Database.Mongo.URI = v
		case v == "memory":
			cfg.Database.Driver = "memory"
		default:
			return fmt.Errorf("unrecognised DATABASE_URL scheme: %q", v)
		}
	}

	if v := os.Getenv("MONGODB_URI"); v != "" {
		cfg.Database.Driver = "mongo"
		cfg.Database.Mongo.URI = v
	}

	if v := os.Getenv("MONGODB_DATABASE"); v != "" {
		cfg.Database.Mongo.Database = v
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Cache.Driver = "redis"
		cfg.Cache.Redis.URL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}

	if v := os.Getenv("SESSION_TTL"); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid SESSION_TTL %q: %w", v, err)
		}
		cfg.Sessions.TTL = ttl
	}

	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid RATE_LIMIT_RPS %q: %w", v, err)
		}
		cfg.RateLimit.RPS = rps
		cfg.RateLimit.Enabled = rps > 0
	}

	return nil
}
