package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ds124wfegd/travel-booking/internal/entity"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type bookingService struct {
	core
}

// NewBookingService создает новый экземпляр BookingService
func NewBookingService(d Deps) BookingService {
	return &bookingService{core: newCore(d)}
}

// CreateBooking validates the party and date, snapshots the price and stores
// a PENDING/UNPAID booking.
func (s *bookingService) CreateBooking(ctx context.Context, actor entity.Actor, req *CreateBookingRequest) (*entity.Booking, error) {
	if req.StartDate.IsZero() {
		return nil, rejected("create_booking", entity.Validationf("startDate is required"))
	}
	if req.StartDate.Before(s.today()) {
		return nil, rejected("create_booking", entity.ErrStartDatePast)
	}
	if req.Adults < 1 {
		return nil, rejected("create_booking", entity.ErrInvalidAdults)
	}
	if req.Children < 0 {
		return nil, rejected("create_booking", entity.ErrInvalidChildren)
	}
	if err := validID(req.TourID, entity.ErrTourNotFound); err != nil {
		return nil, rejected("create_booking", err)
	}

	tour, err := s.tours.GetByID(ctx, req.TourID)
	if err != nil {
		return nil, rejected("create_booking", err)
	}
	if _, err := s.users.GetByID(ctx, actor.UserID); err != nil {
		return nil, rejected("create_booking", err)
	}

	total, err := ComputeTotalPrice(tour.Price, req.Adults, req.Children)
	if err != nil {
		return nil, rejected("create_booking", err)
	}

	now := s.now()
	booking := &entity.Booking{
		ID:              uuid.NewString(),
		UserID:          actor.UserID,
		TourID:          tour.ID,
		StartDate:       req.StartDate,
		Adults:          req.Adults,
		Children:        req.Children,
		TotalPrice:      total,
		Status:          entity.BookingStatusPending,
		PaymentStatus:   entity.PaymentStatusUnpaid,
		SpecialRequests: req.SpecialRequests,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.bookings.Create(ctx, booking); err != nil {
		return nil, fmt.Errorf("create booking: %w", err)
	}

	s.emit(ctx, bookingEvent(entity.EventBookingCreated, booking, actor, now))
	return booking, nil
}

// GetBooking returns the booking with its tour, owner and payment history
func (s *bookingService) GetBooking(ctx context.Context, actor entity.Actor, id string) (*entity.BookingDetails, error) {
	if err := validID(id, entity.ErrBookingNotFound); err != nil {
		return nil, err
	}

	if s.cache != nil {
		if details, ok := s.cache.Get(ctx, id); ok {
			if err := s.guard.CanAccessBooking(actor, &details.Booking); err != nil {
				return nil, rejected("get_booking", err)
			}
			return details, nil
		}
	}

	booking, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.guard.CanAccessBooking(actor, booking); err != nil {
		return nil, rejected("get_booking", err)
	}

	details, err := s.details(ctx, booking)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Set(ctx, details)
	}
	return details, nil
}

func (s *bookingService) GetMyBookings(ctx context.Context, actor entity.Actor) ([]*entity.BookingDetails, error) {
	bookings, err := s.bookings.GetByUserID(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("get user bookings: %w", err)
	}

	result := make([]*entity.BookingDetails, 0, len(bookings))
	for _, b := range bookings {
		details, err := s.details(ctx, b)
		if err != nil {
			return nil, err
		}
		result = append(result, details)
	}
	return result, nil
}

func (s *bookingService) details(ctx context.Context, b *entity.Booking) (*entity.BookingDetails, error) {
	details := &entity.BookingDetails{Booking: *b}

	tour, err := s.tours.GetByID(ctx, b.TourID)
	if err != nil {
		return nil, fmt.Errorf("load tour %s: %w", b.TourID, err)
	}
	details.Tour = tour

	user, err := s.users.GetByID(ctx, b.UserID)
	if err != nil {
		return nil, fmt.Errorf("load user %s: %w", b.UserID, err)
	}
	details.User = user

	payments, err := s.payments.ListByBooking(ctx, b.ID)
	if err != nil {
		return nil, fmt.Errorf("load payments: %w", err)
	}
	details.Payments = payments

	return details, nil
}

// ConfirmBooking moves PENDING -> CONFIRMED
func (s *bookingService) ConfirmBooking(ctx context.Context, actor entity.Actor, id string) (*entity.Booking, error) {
	booking, err := s.loadForActor(ctx, actor, id, "confirm_booking")
	if err != nil {
		return nil, err
	}
	if err := s.guard.CanConfirmBooking(booking); err != nil {
		return nil, rejected("confirm_booking", err)
	}

	now := s.now()
	err = s.bookings.Transition(ctx, entity.BookingTransition{
		BookingID: id,
		From:      []entity.BookingStatus{entity.BookingStatusPending},
		To:        entity.BookingStatusConfirmed,
		At:        now,
	})
	if isRace(err) {
		return nil, rejected("confirm_booking", s.explainBookingRace(ctx, id, s.guard.CanConfirmBooking))
	}
	if err != nil {
		return nil, fmt.Errorf("confirm booking: %w", err)
	}

	booking.Status = entity.BookingStatusConfirmed
	booking.UpdatedAt = now
	s.invalidate(ctx, id)
	s.emit(ctx, bookingEvent(entity.EventBookingConfirmed, booking, actor, now))
	return booking, nil
}

// CancelBooking moves PENDING|CONFIRMED -> CANCELLED unless the booking is paid
func (s *bookingService) CancelBooking(ctx context.Context, actor entity.Actor, id, reason string) (*entity.Booking, error) {
	booking, err := s.loadForActor(ctx, actor, id, "cancel_booking")
	if err != nil {
		return nil, err
	}
	if err := s.guard.CanCancelBooking(booking); err != nil {
		return nil, rejected("cancel_booking", err)
	}

	now := s.now()
	err = s.bookings.Transition(ctx, entity.BookingTransition{
		BookingID:    id,
		From:         []entity.BookingStatus{entity.BookingStatusPending, entity.BookingStatusConfirmed},
		To:           entity.BookingStatusCancelled,
		PaymentIsNot: entity.PaymentStatusPaid,
		CancelReason: reason,
		At:           now,
	})
	if isRace(err) {
		return nil, rejected("cancel_booking", s.explainBookingRace(ctx, id, s.guard.CanCancelBooking))
	}
	if err != nil {
		return nil, fmt.Errorf("cancel booking: %w", err)
	}

	booking.Status = entity.BookingStatusCancelled
	if reason != "" {
		booking.CancelReason = reason
	}
	booking.UpdatedAt = now
	s.invalidate(ctx, id)

	ev := bookingEvent(entity.EventBookingCancelled, booking, actor, now)
	ev.Reason = reason
	s.emit(ctx, ev)
	return booking, nil
}

// CompleteBooking moves CONFIRMED -> COMPLETED once the paid tour has ended
func (s *bookingService) CompleteBooking(ctx context.Context, actor entity.Actor, id string) (*entity.Booking, error) {
	booking, err := s.loadForActor(ctx, actor, id, "complete_booking")
	if err != nil {
		return nil, err
	}

	tour, err := s.tours.GetByID(ctx, booking.TourID)
	if err != nil {
		return nil, fmt.Errorf("load tour: %w", err)
	}

	today := s.today()
	check := func(b *entity.Booking) error {
		return s.guard.CanCompleteBooking(b, tour, today)
	}
	if err := check(booking); err != nil {
		return nil, rejected("complete_booking", err)
	}

	now := s.now()
	err = s.bookings.Transition(ctx, entity.BookingTransition{
		BookingID: id,
		From:      []entity.BookingStatus{entity.BookingStatusConfirmed},
		To:        entity.BookingStatusCompleted,
		PaymentIs: entity.PaymentStatusPaid,
		At:        now,
	})
	if isRace(err) {
		return nil, rejected("complete_booking", s.explainBookingRace(ctx, id, check))
	}
	if err != nil {
		return nil, fmt.Errorf("complete booking: %w", err)
	}

	booking.Status = entity.BookingStatusCompleted
	booking.UpdatedAt = now
	s.invalidate(ctx, id)
	s.emit(ctx, bookingEvent(entity.EventBookingCompleted, booking, actor, now))
	return booking, nil
}

func (s *bookingService) ListBookings(ctx context.Context, actor entity.Actor, filter entity.BookingFilter) ([]*entity.Booking, int, error) {
	if err := s.guard.RequireAdmin(actor); err != nil {
		return nil, 0, rejected("list_bookings", err)
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, 0, entity.Validationf("invalid booking status: %q", filter.Status)
	}
	if filter.PaymentStatus != "" && !filter.PaymentStatus.IsValid() {
		return nil, 0, entity.Validationf("invalid payment status: %q", filter.PaymentStatus)
	}

	if filter.Offset < 0 {
		filter.Offset = 0
	}

	bookings, total, err := s.bookings.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list bookings: %w", err)
	}
	return bookings, total, nil
}

// DeleteBooking removes an unpaid booking and its payment history in one
// transaction. A booking with a payment still in flight is kept.
func (s *bookingService) DeleteBooking(ctx context.Context, actor entity.Actor, id string) error {
	if err := s.guard.RequireAdmin(actor); err != nil {
		return rejected("delete_booking", err)
	}
	if err := validID(id, entity.ErrBookingNotFound); err != nil {
		return err
	}

	var (
		booking *entity.Booking
		removed int64
	)
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		booking, err = s.bookings.GetByID(ctx, id)
		if err != nil {
			return err
		}

		pending, err := s.payments.CountByStatus(ctx, id, entity.PaymentPending)
		if err != nil {
			return err
		}
		if err := s.guard.CanDeleteBooking(booking, pending); err != nil {
			return err
		}

		if removed, err = s.payments.DeleteByBooking(ctx, id); err != nil {
			return err
		}
		return s.bookings.DeleteUnpaid(ctx, id)
	})
	if isRace(err) {
		return rejected("delete_booking", s.explainBookingRace(ctx, id, func(b *entity.Booking) error {
			return s.guard.CanDeleteBooking(b, 0)
		}))
	}
	if err != nil {
		if entity.KindOf(err) != "" {
			return rejected("delete_booking", err)
		}
		return fmt.Errorf("delete booking: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"booking_id":       id,
		"payments_removed": removed,
	}).Info("booking deleted")

	s.invalidate(ctx, id)
	s.emit(ctx, bookingEvent(entity.EventBookingDeleted, booking, actor, s.now()))
	return nil
}

func (s *bookingService) UpdateBookingStatus(ctx context.Context, actor entity.Actor, id string, status entity.BookingStatus) (*entity.Booking, error) {
	if err := s.guard.RequireAdmin(actor); err != nil {
		return nil, rejected("override_status", err)
	}
	if !status.IsValid() {
		return nil, entity.Validationf("invalid booking status: %q", status)
	}
	if err := validID(id, entity.ErrBookingNotFound); err != nil {
		return nil, err
	}

	now := s.now()
	err := s.bookings.Transition(ctx, entity.BookingTransition{
		BookingID: id,
		To:        status,
		At:        now,
	})
	if isRace(err) {
		// unconditional update: no row means no booking
		return nil, entity.ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("override booking status: %w", err)
	}

	booking, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"booking_id": id,
		"actor_id":   actor.UserID,
		"status":     status,
	}).Warn("booking status overridden by admin")

	s.invalidate(ctx, id)
	s.emit(ctx, bookingEvent(entity.EventBookingStatusOverridden, booking, actor, now))
	return booking, nil
}

func (s *bookingService) UpdateBookingPaymentStatus(ctx context.Context, actor entity.Actor, id string, status entity.BookingPaymentStatus) (*entity.Booking, error) {
	if err := s.guard.RequireAdmin(actor); err != nil {
		return nil, rejected("override_payment_status", err)
	}
	if !status.IsValid() {
		return nil, entity.Validationf("invalid payment status: %q", status)
	}
	if err := validID(id, entity.ErrBookingNotFound); err != nil {
		return nil, err
	}

	now := s.now()
	err := s.bookings.SetPaymentStatus(ctx, id, status, now)
	if isRace(err) {
		return nil, entity.ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("override booking payment status: %w", err)
	}

	booking, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"booking_id":     id,
		"actor_id":       actor.UserID,
		"payment_status": status,
	}).Warn("booking payment status overridden by admin")

	s.invalidate(ctx, id)
	s.emit(ctx, bookingEvent(entity.EventBookingPaymentStatusOverridden, booking, actor, now))
	return booking, nil
}

// loadForActor fetches the booking and checks owner-or-admin access
func (s *bookingService) loadForActor(ctx context.Context, actor entity.Actor, id, operation string) (*entity.Booking, error) {
	if err := validID(id, entity.ErrBookingNotFound); err != nil {
		return nil, err
	}

	booking, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.guard.CanAccessBooking(actor, booking); err != nil {
		return nil, rejected(operation, err)
	}
	return booking, nil
}

func bookingEvent(name entity.EventName, b *entity.Booking, actor entity.Actor, at time.Time) entity.LifecycleEvent {
	return entity.LifecycleEvent{
		Name:          name,
		BookingID:     b.ID,
		UserID:        b.UserID,
		ActorID:       actor.UserID,
		Status:        b.Status,
		PaymentStatus: b.PaymentStatus,
		Amount:        b.TotalPrice.String(),
		OccurredAt:    at.UTC(),
	}
}
