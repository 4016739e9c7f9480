package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookingcore/internal/domain"
	"bookingcore/internal/domain/models"
)

func newViews(t *testing.T) (*BookingViews, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewBookingViews(rdb, 5*time.Minute), mr
}

func view(version int64, status domain.BookingStatus) models.BookingView {
	return models.NewBookingView(models.Booking{
		ID:            7,
		BookingNumber: "BK-7",
		Status:        status,
		Version:       version,
		Pricing:       models.PricingSnapshot{TotalAmount: 1000, Category: models.Car{}},
	})
}

func TestBookingViews_OlderVersionNeverReplacesNewer(t *testing.T) {
	c, mr := newViews(t)
	ctx := context.Background()

	stored, err := c.Set(ctx, view(2, domain.StatusAccepted))
	require.NoError(t, err)
	assert.True(t, stored)
	assert.Greater(t, mr.TTL(key(7)), time.Duration(0))

	// A reader that loaded version 1 before the write finishes late.
	stored, err = c.Set(ctx, view(1, domain.StatusPending))
	require.NoError(t, err)
	assert.False(t, stored)

	got, ok, err := c.Get(ctx, 7)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(2), got.Version)
	assert.Equal(t, domain.StatusAccepted, got.Status)

	stored, err = c.Set(ctx, view(3, domain.StatusStarted))
	require.NoError(t, err)
	assert.True(t, stored)
	got, _, err = c.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Version)
}

func TestBookingViews_MissAndInvalidate(t *testing.T) {
	c, _ := newViews(t)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, 7)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = c.Set(ctx, view(1, domain.StatusPending))
	require.NoError(t, err)
	require.NoError(t, c.Invalidate(ctx, 7))

	_, ok, err = c.Get(ctx, 7)
	require.NoError(t, err)
	assert.False(t, ok)
}
