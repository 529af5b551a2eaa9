package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ds124wfegd/travel-booking/internal/entity"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const bookingKeyPrefix = "booking:details:"

// BookingCache keeps assembled booking details as JSON. Redis failures are
// logged and treated as misses.
type BookingCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewBookingCache(client *redis.Client, ttl time.Duration) *BookingCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &BookingCache{client: client, ttl: ttl}
}

func bookingKey(id string) string {
	return bookingKeyPrefix + id
}

func (c *BookingCache) Get(ctx context.Context, bookingID string) (*entity.BookingDetails, bool) {
	data, err := c.client.Get(ctx, bookingKey(bookingID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		logrus.WithError(err).WithField("booking_id", bookingID).Warn("booking cache read failed")
		return nil, false
	}

	var details entity.BookingDetails
	if err := json.Unmarshal(data, &details); err != nil {
		logrus.WithError(err).WithField("booking_id", bookingID).Warn("dropping unreadable cache entry")
		c.Invalidate(ctx, bookingID)
		return nil, false
	}
	return &details, true
}

func (c *BookingCache) Set(ctx context.Context, details *entity.BookingDetails) {
	data, err := json.Marshal(details)
	if err != nil {
		logrus.WithError(err).Warn("failed to marshal booking details")
		return
	}
	if err := c.client.Set(ctx, bookingKey(details.ID), data, c.ttl).Err(); err != nil {
		logrus.WithError(err).WithField("booking_id", details.ID).Warn("booking cache write failed")
	}
}

func (c *BookingCache) Invalidate(ctx context.Context, bookingID string) {
	if err := c.client.Del(ctx, bookingKey(bookingID)).Err(); err != nil {
		logrus.WithError(err).WithField("booking_id", bookingID).Warn("booking cache invalidation failed")
	}
}
