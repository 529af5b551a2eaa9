package service_test

import (
	"testing"

	"github.com/ds124wfegd/travel-booking/internal/entity"
	"github.com/ds124wfegd/travel-booking/internal/service"
	"github.com/stretchr/testify/assert"
)

func booking(status entity.BookingStatus, payment entity.BookingPaymentStatus) *entity.Booking {
	return &entity.Booking{
		UserID:        ownerID,
		StartDate:     entity.NewDate(2026, 6, 10),
		Status:        status,
		PaymentStatus: payment,
	}
}

func TestGuard_CanCancelBooking(t *testing.T) {
	var g service.ConsistencyGuard

	tests := []struct {
		name    string
		booking *entity.Booking
		wantErr error
	}{
		{"pending unpaid", booking(entity.BookingStatusPending, entity.PaymentStatusUnpaid), nil},
		{"confirmed refunded", booking(entity.BookingStatusConfirmed, entity.PaymentStatusRefunded), nil},
		{"paid", booking(entity.BookingStatusConfirmed, entity.PaymentStatusPaid), entity.ErrBookingPaid},
		{"paid and completed reports paid first", booking(entity.BookingStatusCompleted, entity.PaymentStatusPaid), entity.ErrBookingPaid},
		{"already cancelled", booking(entity.BookingStatusCancelled, entity.PaymentStatusUnpaid), entity.ErrInvalidState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := g.CanCancelBooking(tt.booking)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestGuard_CanCompleteBooking(t *testing.T) {
	var g service.ConsistencyGuard
	tour := &entity.Tour{DurationDays: 3}

	tests := []struct {
		name    string
		booking *entity.Booking
		today   entity.Date
		wantErr error
	}{
		{"on end date", booking(entity.BookingStatusConfirmed, entity.PaymentStatusPaid), entity.NewDate(2026, 6, 13), nil},
		{"after end date", booking(entity.BookingStatusConfirmed, entity.PaymentStatusPaid), entity.NewDate(2026, 7, 1), nil},
		{"day before end", booking(entity.BookingStatusConfirmed, entity.PaymentStatusPaid), entity.NewDate(2026, 6, 12), entity.ErrTourNotFinished},
		{"unpaid", booking(entity.BookingStatusConfirmed, entity.PaymentStatusUnpaid), entity.NewDate(2026, 7, 1), entity.ErrInvalidState},
		{"still pending", booking(entity.BookingStatusPending, entity.PaymentStatusPaid), entity.NewDate(2026, 7, 1), entity.ErrInvalidState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := g.CanCompleteBooking(tt.booking, tour, tt.today)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestGuard_CanCreatePayment(t *testing.T) {
	var g service.ConsistencyGuard

	assert.NoError(t, g.CanCreatePayment(booking(entity.BookingStatusPending, entity.PaymentStatusUnpaid), 0))
	assert.NoError(t, g.CanCreatePayment(booking(entity.BookingStatusConfirmed, entity.PaymentStatusRefunded), 0))
	assert.ErrorIs(t, g.CanCreatePayment(booking(entity.BookingStatusPending, entity.PaymentStatusPaid), 0), entity.ErrBookingPaid)
	assert.ErrorIs(t, g.CanCreatePayment(booking(entity.BookingStatusCancelled, entity.PaymentStatusUnpaid), 0), entity.ErrInvalidState)
	assert.ErrorIs(t, g.CanCreatePayment(booking(entity.BookingStatusPending, entity.PaymentStatusUnpaid), 1), entity.ErrPaymentInFlight)
}

func TestGuard_PaymentTransitions(t *testing.T) {
	var g service.ConsistencyGuard
	open := booking(entity.BookingStatusPending, entity.PaymentStatusUnpaid)

	pending := &entity.Payment{Status: entity.PaymentPending}
	success := &entity.Payment{Status: entity.PaymentSuccess}
	failed := &entity.Payment{Status: entity.PaymentFailed}
	refunded := &entity.Payment{Status: entity.PaymentRefunded}

	assert.NoError(t, g.CanConfirmPayment(pending, open))
	assert.ErrorIs(t, g.CanConfirmPayment(success, open), entity.ErrPaymentNotPending)
	assert.ErrorIs(t, g.CanConfirmPayment(pending, booking(entity.BookingStatusCancelled, entity.PaymentStatusUnpaid)), entity.ErrInvalidState)

	assert.NoError(t, g.CanCancelPayment(pending))
	assert.ErrorIs(t, g.CanCancelPayment(failed), entity.ErrPaymentNotPending)

	assert.NoError(t, g.CanRefundPayment(success))
	for _, p := range []*entity.Payment{pending, failed, refunded} {
		assert.ErrorIs(t, g.CanRefundPayment(p), entity.ErrPaymentNotSuccess, string(p.Status))
	}
}

func TestGuard_Access(t *testing.T) {
	var g service.ConsistencyGuard
	b := booking(entity.BookingStatusPending, entity.PaymentStatusUnpaid)

	assert.NoError(t, g.CanAccessBooking(owner, b))
	assert.NoError(t, g.CanAccessBooking(admin, b))
	assert.ErrorIs(t, g.CanAccessBooking(other, b), entity.ErrForbidden)

	assert.NoError(t, g.RequireAdmin(admin))
	assert.ErrorIs(t, g.RequireAdmin(owner), entity.ErrAdminOnly)
}
