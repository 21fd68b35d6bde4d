package counter

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCounter(t *testing.T) *Counter {
	t.Helper()
	s, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(s.Close)

	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb)
}

func TestIncrAndRead(t *testing.T) {
	c := newTestCounter(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

	n, err := c.EmailsToday(ctx, "u1", now)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	n, err = c.IncrEmail(ctx, "u1", now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = c.IncrEmail(ctx, "u1", now)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = c.EmailsToday(ctx, "u1", now)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	// Different day, different counter.
	n, err = c.EmailsToday(ctx, "u1", now.Add(24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
}

func TestResetAll(t *testing.T) {
	c := newTestCounter(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

	_, err := c.IncrEmail(ctx, "u1", now)
	require.NoError(t, err)
	_, err = c.IncrEmail(ctx, "u2", now)
	require.NoError(t, err)

	removed, err := c.ResetAll(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, removed)

	n, err := c.EmailsToday(ctx, "u1", now)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
}
