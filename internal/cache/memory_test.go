package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nareda9819/easymart-v2-sub000/internal/domain"
)

func TestMemoryCache_RoundTrip(t *testing.T) {
	c := NewMemoryCache(5 * time.Minute)
	ctx := context.Background()

	_, err := c.Get(ctx, "01tAB0000004C9ZYAU")
	assert.ErrorIs(t, err, ErrCacheMiss)

	snap := &domain.ProductSnapshot{ID: "01tAB0000004C9ZYAU", Name: "Ergo Chair", Price: "199.00"}
	require.NoError(t, c.Set(ctx, snap.ID, snap))

	got, err := c.Get(ctx, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, snap, got)
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := NewMemoryCache(5 * time.Minute)
	ctx := context.Background()

	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }

	snap := &domain.ProductSnapshot{ID: "01tAB0000004C9ZYAU", Name: "Ergo Chair"}
	require.NoError(t, c.Set(ctx, snap.ID, snap))

	clock = clock.Add(5*time.Minute - time.Second)
	_, err := c.Get(ctx, snap.ID)
	assert.NoError(t, err, "entry must survive until the TTL elapses")

	clock = clock.Add(2 * time.Second)
	_, err = c.Get(ctx, snap.ID)
	assert.ErrorIs(t, err, ErrCacheMiss, "entry must expire after the TTL")
}

func TestMemoryCache_OverwriteRefreshesTTL(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	ctx := context.Background()

	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }

	old := &domain.ProductSnapshot{ID: "01tAB0000004C9ZYAU", Price: "10.00"}
	require.NoError(t, c.Set(ctx, old.ID, old))

	clock = clock.Add(50 * time.Second)
	fresh := &domain.ProductSnapshot{ID: "01tAB0000004C9ZYAU", Price: "12.00"}
	require.NoError(t, c.Set(ctx, fresh.ID, fresh))

	clock = clock.Add(30 * time.Second)
	got, err := c.Get(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, "12.00", got.Price)
}
