// Package cache provides the key/value cache used for comparison matrices
// and comparison sessions.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrCacheMiss indicates a cache miss.
	ErrCacheMiss = errors.New("cache miss")
	// ErrUpdateConflict means an Update kept losing to concurrent writers.
	ErrUpdateConflict = errors.New("cache update conflict")
)

// UpdateFunc computes a key's next value from its current one, which is nil
// on a miss. A nil next value deletes the key. An error aborts the update and
// is returned unchanged. The function may run more than once.
type UpdateFunc func(current []byte) (next []byte, ttl time.Duration, err error)

// Client defines the cache interface.
type Client interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeleteByPrefix(ctx context.Context, prefix string) error
	// Update applies fn to key atomically with respect to other writers.
	Update(ctx context.Context, key string, fn UpdateFunc) error
	Close() error
}

// GetJSON loads key and decodes it into dst.
func GetJSON(ctx context.Context, c Client, key string, dst interface{}) error {
	data, err := c.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode cached %s: %w", key, err)
	}
	return nil
}

// SetJSON encodes value and stores it under key.
func SetJSON(ctx context.Context, c Client, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return c.Set(ctx, key, data, ttl)
}

// Key joins key components with ":".
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}
