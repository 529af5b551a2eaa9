package service

import (
	"github.com/ds124wfegd/travel-booking/internal/entity"
)

// ConsistencyGuard holds the cross-entity rules both lifecycle managers
// consult before a mutation. Every method is pure; the same checks are
// re-run after a conditional update loses a race to explain the failure.
type ConsistencyGuard struct{}

// CanAccessBooking allows the owner and admins.
func (ConsistencyGuard) CanAccessBooking(actor entity.Actor, b *entity.Booking) error {
	if actor.IsAdmin() || actor.UserID == b.UserID {
		return nil
	}
	return entity.ErrNotOwner
}

func (ConsistencyGuard) RequireAdmin(actor entity.Actor) error {
	if !actor.IsAdmin() {
		return entity.ErrAdminOnly
	}
	return nil
}

func (ConsistencyGuard) CanConfirmBooking(b *entity.Booking) error {
	if !b.Status.CanTransitionTo(entity.BookingStatusConfirmed) {
		return entity.InvalidStatef("cannot confirm booking in status %s", b.Status)
	}
	return nil
}

// CanCancelBooking rejects paid bookings before looking at the status: a
// paid booking must be refunded first.
func (ConsistencyGuard) CanCancelBooking(b *entity.Booking) error {
	if b.PaymentStatus == entity.PaymentStatusPaid {
		return entity.ErrBookingPaid
	}
	if !b.Status.CanTransitionTo(entity.BookingStatusCancelled) {
		return entity.InvalidStatef("cannot cancel booking in status %s", b.Status)
	}
	return nil
}

// CanCompleteBooking requires CONFIRMED, PAID and a finished tour. today is
// the current calendar day in the booking timezone.
func (ConsistencyGuard) CanCompleteBooking(b *entity.Booking, tour *entity.Tour, today entity.Date) error {
	if !b.Status.CanTransitionTo(entity.BookingStatusCompleted) {
		return entity.InvalidStatef("cannot complete booking in status %s", b.Status)
	}
	if b.PaymentStatus != entity.PaymentStatusPaid {
		return entity.InvalidStatef("cannot complete booking with payment status %s", b.PaymentStatus)
	}
	if today.Before(entity.DateOf(b.EndDate(tour.DurationDays))) {
		return entity.ErrTourNotFinished
	}
	return nil
}

func (ConsistencyGuard) CanDeleteBooking(b *entity.Booking, pendingPayments int) error {
	if b.PaymentStatus == entity.PaymentStatusPaid {
		return entity.ErrBookingPaid
	}
	if pendingPayments > 0 {
		return entity.ErrPaymentInFlight
	}
	return nil
}

func (ConsistencyGuard) CanCreatePayment(b *entity.Booking, pendingPayments int) error {
	if b.PaymentStatus == entity.PaymentStatusPaid {
		return entity.ErrBookingPaid
	}
	if b.Status.IsTerminal() {
		return entity.InvalidStatef("cannot pay for booking in status %s", b.Status)
	}
	if pendingPayments > 0 {
		return entity.ErrPaymentInFlight
	}
	return nil
}

func (ConsistencyGuard) CanConfirmPayment(p *entity.Payment, b *entity.Booking) error {
	if !p.Status.CanTransitionTo(entity.PaymentSuccess) {
		return entity.ErrPaymentNotPending
	}
	if b.Status == entity.BookingStatusCancelled {
		return entity.InvalidStatef("cannot confirm payment for a cancelled booking")
	}
	return nil
}

func (ConsistencyGuard) CanCancelPayment(p *entity.Payment) error {
	if !p.Status.CanTransitionTo(entity.PaymentFailed) {
		return entity.ErrPaymentNotPending
	}
	return nil
}

func (ConsistencyGuard) CanRefundPayment(p *entity.Payment) error {
	if !p.Status.CanTransitionTo(entity.PaymentRefunded) {
		return entity.ErrPaymentNotSuccess
	}
	return nil
}
