package cache

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Joffythetrophy/Casino-savings/internal/treasury"
)

var t0 = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func newTestCache(t *testing.T, ttl time.Duration) (*TreasuryCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return New(client, ttl), mr
}

func TestGetSet(t *testing.T) {
	t.Parallel()

	c, mr := newTestCache(t, time.Minute)
	ctx := context.Background()

	_, ok, err := c.Get(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	tr := treasury.New("operator", "vault", 5000, 100, t0)
	tr.TotalDeposits = math.MaxUint64
	tr.TotalWithdrawals = 42
	tr.IsActive = false
	tr.Version = 7

	require.NoError(t, c.Set(ctx, tr))
	assert.Equal(t, time.Minute, mr.TTL(SnapshotKey))
	assert.Equal(t, "7", mr.HGet(SnapshotKey, fieldVersion))

	got, ok, err := c.Get(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, tr, got)
}

func TestSetKeepsNewerSnapshot(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache(t, time.Minute)
	ctx := context.Background()

	stale := treasury.New("operator", "vault", 5000, 100, t0)
	paused := stale
	paused.SetActive(false, t0.Add(time.Second))

	require.NoError(t, c.Set(ctx, paused))
	require.NoError(t, c.Set(ctx, stale))

	got, ok, err := c.Get(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, got.IsActive)
	assert.Equal(t, paused.Version, got.Version)

	resumed := paused
	resumed.SetActive(true, t0.Add(2*time.Second))
	require.NoError(t, c.Set(ctx, resumed))

	got, _, err = c.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, resumed, got)
}

func TestSnapshotExpires(t *testing.T) {
	t.Parallel()

	c, mr := newTestCache(t, 0)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, treasury.New("operator", "vault", 0, 0, t0)))
	mr.FastForward(DefaultTTL + time.Second)

	_, ok, err := c.Get(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCorruptSnapshot(t *testing.T) {
	t.Parallel()

	c, mr := newTestCache(t, time.Minute)
	mr.HSet(SnapshotKey, fieldData, "{not json")

	_, _, err := c.Get(context.Background())
	assert.Error(t, err)
}

func TestUnavailableRedis(t *testing.T) {
	t.Parallel()

	c, mr := newTestCache(t, time.Minute)
	mr.Close()

	_, _, err := c.Get(context.Background())
	assert.Error(t, err)
	assert.Error(t, c.Set(context.Background(), treasury.New("operator", "vault", 0, 0, t0)))
}
