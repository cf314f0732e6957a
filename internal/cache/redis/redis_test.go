package redis

import (
	"context"
	"math/big"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/profitharness/internal/domain"
)

// newTestClient connects to HARNESS_TEST_REDIS_ADDR or skips.
func newTestClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("HARNESS_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("HARNESS_TEST_REDIS_ADDR not set")
	}
	c, err := New(context.Background(), ClientConfig{Addr: addr, PoolSize: 4})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestLockIsFailFast(t *testing.T) {
	c := newTestClient(t)
	lm := NewLockManager(c)
	ctx := context.Background()
	key := "test:" + uuid.NewString()

	unlock, err := lm.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)

	_, err = lm.Acquire(ctx, key, time.Minute)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	unlock()
	unlock()
	again, err := lm.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	again()
}

func TestResultCache(t *testing.T) {
	c := newTestClient(t)
	rc := NewResultCache(c, time.Minute)
	ctx := context.Background()
	name := "test-" + uuid.NewString()

	_, err := rc.GetLatest(ctx, name)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, rc.SetLatest(ctx, domain.ExecutionResult{ID: "a", Strategy: name, Success: true, Profit: big.NewInt(-5)}))
	got, err := rc.GetLatest(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, "a", got.ID)
	assert.Equal(t, int64(-5), got.Profit.Int64())
}

func TestSignalBusStream(t *testing.T) {
	c := newTestClient(t)
	sb := NewSignalBus(c, 100)
	ctx := context.Background()
	stream := "test:stream:" + uuid.NewString()

	require.NoError(t, sb.StreamAppend(ctx, stream, []byte("one")))
	require.NoError(t, sb.StreamAppend(ctx, stream, []byte("two")))
	msgs, err := sb.StreamRead(ctx, stream, "0", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, []byte("two"), msgs[1].Payload)
}

func TestRateLimiter(t *testing.T) {
	c := newTestClient(t)
	rl := NewRateLimiter(c)
	ctx := context.Background()
	key := "test:" + uuid.NewString()

	for i := 0; i < 2; i++ {
		ok, err := rl.Allow(ctx, key, 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := rl.Allow(ctx, key, 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHasPattern(t *testing.T) {
	assert.True(t, hasPattern("ch:harness:*"))
	assert.False(t, hasPattern("ch:harness:swap_failed"))
}
