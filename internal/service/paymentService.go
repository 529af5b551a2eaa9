package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ds124wfegd/travel-booking/internal/entity"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type paymentService struct {
	core
}

func NewPaymentService(d Deps) PaymentService {
	return &paymentService{core: newCore(d)}
}

// newTransactionID returns an opaque unique reference, e.g. TXN-3F2A...
func newTransactionID() string {
	return "TXN-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
}

// CreatePayment opens a PENDING payment for the booking's current total.
func (s *paymentService) CreatePayment(ctx context.Context, actor entity.Actor, bookingID string, method entity.PaymentMethod) (*entity.Payment, error) {
	if !method.IsValid() {
		return nil, rejected("create_payment", entity.Validationf("invalid payment method: %q", method))
	}
	if err := validID(bookingID, entity.ErrBookingNotFound); err != nil {
		return nil, err
	}

	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := s.guard.CanAccessBooking(actor, booking); err != nil {
		return nil, rejected("create_payment", err)
	}

	pending, err := s.payments.CountByStatus(ctx, bookingID, entity.PaymentPending)
	if err != nil {
		return nil, fmt.Errorf("count pending payments: %w", err)
	}
	if err := s.guard.CanCreatePayment(booking, pending); err != nil {
		return nil, rejected("create_payment", err)
	}

	now := s.now()
	payment := &entity.Payment{
		ID:            uuid.NewString(),
		BookingID:     bookingID,
		Amount:        booking.TotalPrice,
		Method:        method,
		TransactionID: newTransactionID(),
		Status:        entity.PaymentPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	// the unique pending index catches a concurrent second checkout
	if err := s.payments.Create(ctx, payment); err != nil {
		if entity.KindOf(err) != "" {
			return nil, rejected("create_payment", err)
		}
		return nil, fmt.Errorf("create payment: %w", err)
	}

	s.invalidate(ctx, bookingID)
	s.emit(ctx, paymentEvent(entity.EventPaymentCreated, payment, booking, actor, now))
	return payment, nil
}

// ConfirmPayment marks the payment SUCCESS and the booking PAID in one
// transaction.
func (s *paymentService) ConfirmPayment(ctx context.Context, actor entity.Actor, id string) (*entity.Payment, error) {
	payment, booking, err := s.loadForActor(ctx, actor, id, "confirm_payment")
	if err != nil {
		return nil, err
	}

	if err := s.guard.CanConfirmPayment(payment, booking); err != nil {
		return nil, rejected("confirm_payment", err)
	}

	now := s.now()
	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.payments.Transition(ctx, entity.PaymentTransition{
			PaymentID: id,
			From:      entity.PaymentPending,
			To:        entity.PaymentSuccess,
			At:        now,
		}); err != nil {
			return err
		}
		// бронь могли отменить после чтения выше
		return s.bookings.SetPaymentStatus(ctx, booking.ID, entity.PaymentStatusPaid, now, entity.BookingStatusCancelled)
	})
	if isRace(err) {
		return nil, rejected("confirm_payment", s.explainPaymentRace(ctx, id, func(p *entity.Payment) error {
			current, err := s.bookings.GetByID(ctx, booking.ID)
			if err != nil {
				return err
			}
			return s.guard.CanConfirmPayment(p, current)
		}))
	}
	if err != nil {
		return nil, fmt.Errorf("confirm payment: %w", err)
	}

	payment.Status = entity.PaymentSuccess
	payment.PaidAt = &now
	payment.UpdatedAt = now
	booking.PaymentStatus = entity.PaymentStatusPaid

	s.invalidate(ctx, booking.ID)
	s.emit(ctx, paymentEvent(entity.EventPaymentConfirmed, payment, booking, actor, now))
	return payment, nil
}

// CancelPayment fails a PENDING payment. The booking keeps its payment status.
func (s *paymentService) CancelPayment(ctx context.Context, actor entity.Actor, id string) (*entity.Payment, error) {
	payment, booking, err := s.loadForActor(ctx, actor, id, "cancel_payment")
	if err != nil {
		return nil, err
	}
	if err := s.guard.CanCancelPayment(payment); err != nil {
		return nil, rejected("cancel_payment", err)
	}

	now, err := s.fail(ctx, id)
	if err != nil {
		return nil, rejected("cancel_payment", err)
	}

	payment.Status = entity.PaymentFailed
	payment.UpdatedAt = now

	s.invalidate(ctx, booking.ID)
	s.emit(ctx, paymentEvent(entity.EventPaymentCancelled, payment, booking, actor, now))
	return payment, nil
}

func (s *paymentService) fail(ctx context.Context, id string) (time.Time, error) {
	now := s.now()
	err := s.payments.Transition(ctx, entity.PaymentTransition{
		PaymentID: id,
		From:      entity.PaymentPending,
		To:        entity.PaymentFailed,
		At:        now,
	})
	if isRace(err) {
		return now, s.explainPaymentRace(ctx, id, s.guard.CanCancelPayment)
	}
	if err != nil {
		return now, fmt.Errorf("cancel payment: %w", err)
	}
	return now, nil
}

// RefundPayment moves SUCCESS -> REFUNDED and the booking to REFUNDED.
func (s *paymentService) RefundPayment(ctx context.Context, actor entity.Actor, id string) (*entity.Payment, error) {
	if err := s.guard.RequireAdmin(actor); err != nil {
		return nil, rejected("refund_payment", err)
	}

	payment, booking, err := s.loadForActor(ctx, actor, id, "refund_payment")
	if err != nil {
		return nil, err
	}
	if err := s.guard.CanRefundPayment(payment); err != nil {
		return nil, rejected("refund_payment", err)
	}

	now := s.now()
	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.payments.Transition(ctx, entity.PaymentTransition{
			PaymentID: id,
			From:      entity.PaymentSuccess,
			To:        entity.PaymentRefunded,
			At:        now,
		}); err != nil {
			return err
		}
		return s.bookings.SetPaymentStatus(ctx, booking.ID, entity.PaymentStatusRefunded, now)
	})
	if isRace(err) {
		return nil, rejected("refund_payment", s.explainPaymentRace(ctx, id, s.guard.CanRefundPayment))
	}
	if err != nil {
		return nil, fmt.Errorf("refund payment: %w", err)
	}

	payment.Status = entity.PaymentRefunded
	payment.RefundedAt = &now
	payment.UpdatedAt = now
	booking.PaymentStatus = entity.PaymentStatusRefunded

	s.invalidate(ctx, booking.ID)
	s.emit(ctx, paymentEvent(entity.EventPaymentRefunded, payment, booking, actor, now))
	return payment, nil
}

func (s *paymentService) GetPayment(ctx context.Context, actor entity.Actor, id string) (*entity.Payment, error) {
	payment, _, err := s.loadForActor(ctx, actor, id, "get_payment")
	return payment, err
}

func (s *paymentService) GetBookingPayments(ctx context.Context, actor entity.Actor, bookingID string) ([]*entity.Payment, error) {
	if err := validID(bookingID, entity.ErrBookingNotFound); err != nil {
		return nil, err
	}

	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := s.guard.CanAccessBooking(actor, booking); err != nil {
		return nil, rejected("get_booking_payments", err)
	}

	payments, err := s.payments.ListByBooking(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return payments, nil
}

// ExpireStalePayments fails abandoned checkouts through the same conditional
// update as CancelPayment. A payment confirmed in the meantime is skipped.
func (s *paymentService) ExpireStalePayments(ctx context.Context, before time.Time, limit int) (int, error) {
	stale, err := s.payments.ListStalePending(ctx, before, limit)
	if err != nil {
		return 0, fmt.Errorf("list stale payments: %w", err)
	}

	expired := 0
	for _, payment := range stale {
		if ctx.Err() != nil {
			return expired, ctx.Err()
		}

		now, err := s.fail(ctx, payment.ID)
		if err != nil {
			if entity.KindOf(err) != "" {
				logrus.WithFields(logrus.Fields{
					"payment_id": payment.ID,
					"reason":     err.Error(),
				}).Debug("stale payment skipped")
				continue
			}
			return expired, err
		}
		expired++

		payment.Status = entity.PaymentFailed
		payment.UpdatedAt = now

		booking, err := s.bookings.GetByID(ctx, payment.BookingID)
		if err != nil {
			logrus.WithError(err).WithField("payment_id", payment.ID).Warn("booking of expired payment not found")
			continue
		}
		s.invalidate(ctx, booking.ID)

		ev := paymentEvent(entity.EventPaymentCancelled, payment, booking, entity.SystemActor, now)
		ev.Reason = "payment expired"
		s.emit(ctx, ev)
	}
	return expired, nil
}

// loadForActor fetches the payment and its booking and checks
// owner-or-admin access on the booking.
func (s *paymentService) loadForActor(ctx context.Context, actor entity.Actor, id, operation string) (*entity.Payment, *entity.Booking, error) {
	if err := validID(id, entity.ErrPaymentNotFound); err != nil {
		return nil, nil, err
	}

	payment, err := s.payments.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	booking, err := s.bookings.GetByID(ctx, payment.BookingID)
	if err != nil {
		return nil, nil, fmt.Errorf("load booking of payment %s: %w", id, err)
	}
	if err := s.guard.CanAccessBooking(actor, booking); err != nil {
		return nil, nil, rejected(operation, err)
	}
	return payment, booking, nil
}

func paymentEvent(name entity.EventName, p *entity.Payment, b *entity.Booking, actor entity.Actor, at time.Time) entity.LifecycleEvent {
	return entity.LifecycleEvent{
		Name:          name,
		BookingID:     b.ID,
		PaymentID:     p.ID,
		UserID:        b.UserID,
		ActorID:       actor.UserID,
		Status:        b.Status,
		PaymentStatus: b.PaymentStatus,
		Amount:        p.Amount.String(),
		OccurredAt:    at.UTC(),
	}
}
