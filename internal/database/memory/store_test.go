package memory

import (
	"context"
	"testing"
	"time"

	"github.com/ds124wfegd/travel-booking/internal/entity"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookingList_Paging(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	base := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Bookings().Create(ctx, &entity.Booking{
			ID:            uuid.NewString(),
			UserID:        DemoUserID,
			TourID:        DemoTourID,
			Adults:        1,
			TotalPrice:    decimal.NewFromInt(100),
			Status:        entity.BookingStatusPending,
			PaymentStatus: entity.PaymentStatusUnpaid,
			CreatedAt:     base.Add(time.Duration(i) * time.Minute),
		}))
	}

	tests := []struct {
		name   string
		filter entity.BookingFilter
		want   int
	}{
		{"default limit", entity.BookingFilter{}, 3},
		{"all", entity.BookingFilter{Limit: -1}, 3},
		{"first page", entity.BookingFilter{Limit: 2}, 2},
		{"last page", entity.BookingFilter{Limit: 2, Offset: 2}, 1},
		{"past the end", entity.BookingFilter{Limit: 2, Offset: 10}, 0},
		{"negative offset", entity.BookingFilter{Limit: 2, Offset: -3}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, total, err := s.Bookings().List(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, 3, total)
			assert.Len(t, page, tt.want)
		})
	}
}

func TestBookingSetPaymentStatus_Unless(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	at := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	id := uuid.NewString()

	require.NoError(t, s.Bookings().Create(ctx, &entity.Booking{
		ID:            id,
		UserID:        DemoUserID,
		TourID:        DemoTourID,
		Adults:        1,
		Status:        entity.BookingStatusCancelled,
		PaymentStatus: entity.PaymentStatusUnpaid,
		CreatedAt:     at,
	}))

	err := s.Bookings().SetPaymentStatus(ctx, id, entity.PaymentStatusPaid, at, entity.BookingStatusCancelled)
	assert.ErrorIs(t, err, entity.ErrConcurrentUpdate)

	b, err := s.Bookings().GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, entity.PaymentStatusUnpaid, b.PaymentStatus)

	// без условия обновление проходит
	require.NoError(t, s.Bookings().SetPaymentStatus(ctx, id, entity.PaymentStatusRefunded, at))
	b, err = s.Bookings().GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, entity.PaymentStatusRefunded, b.PaymentStatus)
}
