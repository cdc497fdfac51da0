package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryClient implements an in-memory cache for development and tests.
type MemoryClient struct {
	mu      sync.RWMutex
	data    map[string]cacheEntry
	maxSize int
	now     func() time.Time
	stop    chan struct{}
	once    sync.Once
}

type cacheEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryClient creates a new in-memory cache client. Expired entries are
// purged every minute until Close.
func NewMemoryClient(maxSize int) *MemoryClient {
	if maxSize <= 0 {
		maxSize = 10000
	}

	c := &MemoryClient{
		data:    make(map[string]cacheEntry),
		maxSize: maxSize,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go c.cleanup(time.Minute)
	return c
}

// Get retrieves a value from cache.
func (c *MemoryClient) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.data[key]
	if !ok || c.expired(entry) {
		return nil, ErrCacheMiss
	}
	return entry.value, nil
}

// Set stores a value in cache with TTL. A zero TTL never expires.
func (c *MemoryClient) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(key, value, ttl)
	return nil
}

func (c *MemoryClient) setLocked(key string, value []byte, ttl time.Duration) {
	if _, exists := c.data[key]; !exists && len(c.data) >= c.maxSize {
		c.evictOldest()
	}

	entry := cacheEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}
	c.data[key] = entry
}

// Update runs fn under the write lock.
func (c *MemoryClient) Update(ctx context.Context, key string, fn UpdateFunc) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var current []byte
	if entry, ok := c.data[key]; ok && !c.expired(entry) {
		current = append([]byte(nil), entry.value...)
	}
	next, ttl, err := fn(current)
	if err != nil {
		return err
	}
	if next == nil {
		delete(c.data, key)
		return nil
	}
	c.setLocked(key, next, ttl)
	return nil
}

// Delete removes a value from cache.
func (c *MemoryClient) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

// DeleteByPrefix removes all keys with the given prefix.
func (c *MemoryClient) DeleteByPrefix(ctx context.Context, prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.data {
		if strings.HasPrefix(key, prefix) {
			delete(c.data, key)
		}
	}
	return nil
}

// Len returns the number of stored entries, including expired ones not yet
// purged.
func (c *MemoryClient) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// Close stops the purge loop.
func (c *MemoryClient) Close() error {
	c.once.Do(func() { close(c.stop) })
	return nil
}

func (c *MemoryClient) expired(e cacheEntry) bool {
	return !e.expiresAt.IsZero() && c.now().After(e.expiresAt)
}

// evictOldest removes the entry closest to expiry.
func (c *MemoryClient) evictOldest() {
	var (
		oldestKey  string
		oldestTime time.Time
	)
	for key, entry := range c.data {
		if entry.expiresAt.IsZero() {
			continue
		}
		if oldestKey == "" || entry.expiresAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.expiresAt
		}
	}
	if oldestKey == "" {
		for key := range c.data {
			oldestKey = key
			break
		}
	}
	delete(c.data, oldestKey)
}

func (c *MemoryClient) purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, entry := range c.data {
		if c.expired(entry) {
			delete(c.data, key)
		}
	}
}

func (c *MemoryClient) cleanup(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.purge()
		}
	}
}
