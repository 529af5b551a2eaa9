package repository

import (
	"context"
	"time"

	"github.com/ds124wfegd/travel-booking/internal/entity"
)

// Transactor runs fn in one storage transaction. Repositories called with
// the ctx passed to fn join that transaction.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type BookingRepository interface {
	Create(ctx context.Context, booking *entity.Booking) error
	GetByID(ctx context.Context, id string) (*entity.Booking, error)
	GetByUserID(ctx context.Context, userID string) ([]*entity.Booking, error)
	List(ctx context.Context, filter entity.BookingFilter) ([]*entity.Booking, int, error)

	// Conditional writes. A write that matches no row returns
	// entity.ErrConcurrentUpdate; callers re-read to classify.
	Transition(ctx context.Context, t entity.BookingTransition) error
	// SetPaymentStatus skips bookings whose status is in unless
	SetPaymentStatus(ctx context.Context, id string, status entity.BookingPaymentStatus, at time.Time, unless ...entity.BookingStatus) error
	DeleteUnpaid(ctx context.Context, id string) error
}

type PaymentRepository interface {
	Create(ctx context.Context, payment *entity.Payment) error
	GetByID(ctx context.Context, id string) (*entity.Payment, error)
	ListByBooking(ctx context.Context, bookingID string) ([]*entity.Payment, error)
	CountByStatus(ctx context.Context, bookingID string, status entity.PaymentStatus) (int, error)
	Transition(ctx context.Context, t entity.PaymentTransition) error
	DeleteByBooking(ctx context.Context, bookingID string) (int64, error)

	// ListStalePending returns PENDING payments created before the cutoff,
	// oldest first.
	ListStalePending(ctx context.Context, before time.Time, limit int) ([]*entity.Payment, error)
}

type TourRepository interface {
	GetByID(ctx context.Context, id string) (*entity.Tour, error)
}

type UserRepository interface {
	GetByID(ctx context.Context, id string) (*entity.User, error)
}
