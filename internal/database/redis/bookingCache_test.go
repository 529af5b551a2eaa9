package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ds124wfegd/travel-booking/internal/entity"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, ttl time.Duration) (*BookingCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewBookingCache(client, ttl), mr
}

func testDetails() *entity.BookingDetails {
	return &entity.BookingDetails{
		Booking: entity.Booking{
			ID:            "b-1",
			UserID:        "u-1",
			TourID:        "t-1",
			StartDate:     entity.NewDate(2026, 6, 10),
			Adults:        2,
			Children:      1,
			TotalPrice:    decimal.RequireFromString("2700000.50"),
			Status:        entity.BookingStatusPending,
			PaymentStatus: entity.PaymentStatusUnpaid,
		},
		Tour:     &entity.Tour{ID: "t-1", Title: "Ha Long Bay", Price: decimal.NewFromInt(1_000_000), DurationDays: 3},
		Payments: []*entity.Payment{},
	}
}

func TestBookingCache_RoundTrip(t *testing.T) {
	c, mr := newTestCache(t, time.Minute)
	ctx := context.Background()

	_, ok := c.Get(ctx, "b-1")
	assert.False(t, ok)

	c.Set(ctx, testDetails())
	assert.True(t, mr.Exists("booking:details:b-1"))
	assert.Equal(t, time.Minute, mr.TTL("booking:details:b-1"))

	got, ok := c.Get(ctx, "b-1")
	require.True(t, ok)
	assert.Equal(t, "2026-06-10", got.StartDate.String())
	assert.True(t, decimal.RequireFromString("2700000.50").Equal(got.TotalPrice))
	require.NotNil(t, got.Tour)
	assert.Equal(t, 3, got.Tour.DurationDays)

	c.Invalidate(ctx, "b-1")
	_, ok = c.Get(ctx, "b-1")
	assert.False(t, ok)
}

func TestBookingCache_Expiry(t *testing.T) {
	c, mr := newTestCache(t, time.Minute)
	ctx := context.Background()

	c.Set(ctx, testDetails())
	mr.FastForward(2 * time.Minute)

	_, ok := c.Get(ctx, "b-1")
	assert.False(t, ok)
}

func TestBookingCache_UnreadableEntryIsDropped(t *testing.T) {
	c, mr := newTestCache(t, 0)
	ctx := context.Background()

	require.NoError(t, mr.Set("booking:details:b-1", "{broken"))

	_, ok := c.Get(ctx, "b-1")
	assert.False(t, ok)
	assert.False(t, mr.Exists("booking:details:b-1"))
}

func TestBookingCache_RedisDown(t *testing.T) {
	c, mr := newTestCache(t, time.Minute)
	ctx := context.Background()
	mr.Close()

	// ошибки Redis не должны ломать запрос
	c.Set(ctx, testDetails())
	_, ok := c.Get(ctx, "b-1")
	assert.False(t, ok)
	c.Invalidate(ctx, "b-1")
}
