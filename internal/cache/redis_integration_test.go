//go:build integration

package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestRedisClient(t *testing.T) {
	ctx := context.Background()

	container, err := tcredis.Run(ctx,
		"redis:7.4-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections").
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	c, err := NewRedisClient(ctx, RedisConfig{URL: uri, Prefix: "test:"})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	require.NoError(t, c.Ping(ctx))

	_, err = c.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "matrix:1", []byte("one"), time.Minute))
	require.NoError(t, c.Set(ctx, "matrix:2", []byte("two"), time.Minute))
	require.NoError(t, c.Set(ctx, "session:1", []byte("s"), time.Minute))

	got, err := c.Get(ctx, "matrix:1")
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), got)

	require.NoError(t, c.DeleteByPrefix(ctx, "matrix:"))
	_, err = c.Get(ctx, "matrix:2")
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = c.Get(ctx, "session:1")
	assert.NoError(t, err)

	require.NoError(t, c.Delete(ctx, "session:1"))
	_, err = c.Get(ctx, "session:1")
	assert.ErrorIs(t, err, ErrCacheMiss)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				for {
					err := c.Update(ctx, "counter", incr)
					if !errors.Is(err, ErrUpdateConflict) {
						assert.NoError(t, err)
						break
					}
				}
			}
		}()
	}
	wg.Wait()

	got, err = c.Get(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, "40", string(got))

	require.NoError(t, c.Update(ctx, "counter", func([]byte) ([]byte, time.Duration, error) {
		return nil, 0, nil
	}))
	_, err = c.Get(ctx, "counter")
	assert.ErrorIs(t, err, ErrCacheMiss)
}
