package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/buildermatch/internal/cache"
	"github.com/oggyb/buildermatch/internal/config"
)

func setupCache(t *testing.T) (*cache.RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cfg := config.New()
	cfg.Redis.Addr = mr.Addr()
	c := cache.NewRedisCache(cfg)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func seeded(n int64) func(context.Context) (int64, error) {
	return func(context.Context) (int64, error) { return n, nil }
}

func TestReserveSuperConnect_EnforcesLimit(t *testing.T) {
	ctx := context.Background()
	c, _ := setupCache(t)
	now := time.Date(2026, 5, 1, 23, 0, 0, 0, time.UTC)

	for i := 1; i <= 3; i++ {
		used, release, err := c.ReserveSuperConnect(ctx, "a", now, 3, seeded(0))
		require.NoError(t, err)
		require.NotNil(t, release)
		assert.Equal(t, int64(i), used)
	}

	used, _, err := c.ReserveSuperConnect(ctx, "a", now, 3, seeded(0))
	assert.ErrorIs(t, err, cache.ErrQuotaExceeded)
	assert.Equal(t, int64(3), used)

	n, found, err := c.SuperConnectsUsed(ctx, "a", now)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(3), n, "rejected attempt gives its unit back")
}

func TestReserveSuperConnect_SeedsFromLedgerAndReleases(t *testing.T) {
	ctx := context.Background()
	c, mr := setupCache(t)
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	used, release, err := c.ReserveSuperConnect(ctx, "a", now, 3, seeded(2))
	require.NoError(t, err)
	assert.Equal(t, int64(3), used)

	release(ctx)
	n, _, _ := c.SuperConnectsUsed(ctx, "a", now)
	assert.Equal(t, int64(2), n)

	ttl := mr.TTL(c.KeyForSuperConnects("a", now))
	assert.Equal(t, 15*time.Hour, ttl)
}

func TestReserveSuperConnect_NewDayNewWindow(t *testing.T) {
	ctx := context.Background()
	c, _ := setupCache(t)
	day1 := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	_, _, err := c.ReserveSuperConnect(ctx, "a", day1, 1, seeded(0))
	require.NoError(t, err)
	_, _, err = c.ReserveSuperConnect(ctx, "a", day1, 1, seeded(0))
	require.ErrorIs(t, err, cache.ErrQuotaExceeded)

	_, _, err = c.ReserveSuperConnect(ctx, "a", day1.Add(24*time.Hour), 1, seeded(0))
	assert.NoError(t, err)
}

func TestUnreadCache(t *testing.T) {
	ctx := context.Background()
	c, mr := setupCache(t)

	_, found, err := c.GetUnread(ctx, "m", "b")
	require.NoError(t, err)
	assert.False(t, found)

	gen, err := c.UnreadGeneration(ctx, "m", "b")
	require.NoError(t, err)
	stored, err := c.FillUnread(ctx, "m", "b", gen, 4)
	require.NoError(t, err)
	assert.True(t, stored)

	mr.FastForward(5 * time.Minute)
	n, found, err := c.GetUnread(ctx, "m", "b")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(4), n)
	assert.Equal(t, 5*time.Minute, mr.TTL(c.KeyForUnread("m", "b")), "reads do not extend the TTL")

	require.NoError(t, c.InvalidateUnread(ctx, "m", "b"))
	_, found, _ = c.GetUnread(ctx, "m", "b")
	assert.False(t, found)
}

func TestFillUnread_LosesToInvalidation(t *testing.T) {
	ctx := context.Background()
	c, _ := setupCache(t)

	gen, err := c.UnreadGeneration(ctx, "m", "b")
	require.NoError(t, err)
	require.NoError(t, c.InvalidateUnread(ctx, "m", "b"))

	stored, err := c.FillUnread(ctx, "m", "b", gen, 0)
	require.NoError(t, err)
	assert.False(t, stored)
	_, found, _ := c.GetUnread(ctx, "m", "b")
	assert.False(t, found)

	gen, err = c.UnreadGeneration(ctx, "m", "b")
	require.NoError(t, err)
	stored, err = c.FillUnread(ctx, "m", "b", gen, 1)
	require.NoError(t, err)
	assert.True(t, stored)
}

func TestStartOfDay(t *testing.T) {
	ts := time.Date(2026, 5, 1, 22, 30, 0, 0, time.FixedZone("x", -3*3600))
	assert.Equal(t, time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC), cache.StartOfDay(ts))
}
