package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs the compare-and-set script against a real server.
func TestStateCache_RedisKeepsNewestRevision(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Del(ctx, StateKey).Err())

	c := NewStateCache(client, time.Minute)
	newer := sampleState()
	older := sampleState()
	older.Revision = newer.Revision - 1
	older.CurrentNumber = newer.CurrentNumber - 1

	written, err := c.Set(ctx, newer)
	require.NoError(t, err)
	assert.True(t, written)

	written, err = c.Set(ctx, older)
	require.NoError(t, err)
	assert.False(t, written)

	got, ok, err := c.Get(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, newer.Revision, got.Revision)
	assert.Equal(t, newer.CurrentNumber, got.CurrentNumber)

	written, err = c.Set(ctx, newer)
	require.NoError(t, err)
	assert.True(t, written, "same revision refreshes the TTL")
}
