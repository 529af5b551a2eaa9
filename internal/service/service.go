package service

import (
	"context"
	"errors"
	"time"

	repository "github.com/ds124wfegd/travel-booking/internal/database/postgres"
	"github.com/ds124wfegd/travel-booking/internal/entity"
	"github.com/ds124wfegd/travel-booking/internal/metrics"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// BookingService is the booking lifecycle manager
type BookingService interface {
	CreateBooking(ctx context.Context, actor entity.Actor, req *CreateBookingRequest) (*entity.Booking, error)
	GetBooking(ctx context.Context, actor entity.Actor, id string) (*entity.BookingDetails, error)
	GetMyBookings(ctx context.Context, actor entity.Actor) ([]*entity.BookingDetails, error)

	ConfirmBooking(ctx context.Context, actor entity.Actor, id string) (*entity.Booking, error)
	CancelBooking(ctx context.Context, actor entity.Actor, id, reason string) (*entity.Booking, error)
	CompleteBooking(ctx context.Context, actor entity.Actor, id string) (*entity.Booking, error)

	// Административные операции
	ListBookings(ctx context.Context, actor entity.Actor, filter entity.BookingFilter) ([]*entity.Booking, int, error)
	DeleteBooking(ctx context.Context, actor entity.Actor, id string) error

	// UpdateBookingStatus and UpdateBookingPaymentStatus are privileged
	// overrides: they validate the enum and skip every transition rule.
	UpdateBookingStatus(ctx context.Context, actor entity.Actor, id string, status entity.BookingStatus) (*entity.Booking, error)
	UpdateBookingPaymentStatus(ctx context.Context, actor entity.Actor, id string, status entity.BookingPaymentStatus) (*entity.Booking, error)
}

// PaymentService is the payment lifecycle manager
type PaymentService interface {
	CreatePayment(ctx context.Context, actor entity.Actor, bookingID string, method entity.PaymentMethod) (*entity.Payment, error)
	ConfirmPayment(ctx context.Context, actor entity.Actor, id string) (*entity.Payment, error)
	CancelPayment(ctx context.Context, actor entity.Actor, id string) (*entity.Payment, error)
	RefundPayment(ctx context.Context, actor entity.Actor, id string) (*entity.Payment, error)

	GetPayment(ctx context.Context, actor entity.Actor, id string) (*entity.Payment, error)
	GetBookingPayments(ctx context.Context, actor entity.Actor, bookingID string) ([]*entity.Payment, error)

	// ExpireStalePayments fails PENDING payments created before the cutoff
	// and returns how many it moved.
	ExpireStalePayments(ctx context.Context, before time.Time, limit int) (int, error)
}

// CreateBookingRequest представляет данные для создания бронирования
type CreateBookingRequest struct {
	TourID          string      `json:"tourId" binding:"required"`
	StartDate       entity.Date `json:"startDate"`
	Adults          int         `json:"adults"`
	Children        int         `json:"children"`
	SpecialRequests string      `json:"specialRequests" binding:"max=1000"`
}

// BookingCache stores assembled booking details. Implementations must treat
// every error as a miss.
type BookingCache interface {
	Get(ctx context.Context, bookingID string) (*entity.BookingDetails, bool)
	Set(ctx context.Context, details *entity.BookingDetails)
	Invalidate(ctx context.Context, bookingID string)
}

// TaskPublisher интерфейс для публикации задач в очередь
type TaskPublisher interface {
	Publish(ctx context.Context, task *Task) error
}

// Task представляет задачу для очереди
type Task struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	Data       map[string]interface{} `json:"data"`
	ExecuteAt  time.Time              `json:"execute_at"`
	MaxRetries int                    `json:"max_retries"`
	Attempts   int                    `json:"attempts"`
}

// Константы типов задач
const (
	TaskTypeLifecycleEvent   = "lifecycle_event"
	TaskTypeSendNotification = "send_notification"
)

// Deps wires storage and side channels into the services. Queue and Cache
// are optional.
type Deps struct {
	Bookings repository.BookingRepository
	Payments repository.PaymentRepository
	Tours    repository.TourRepository
	Users    repository.UserRepository
	Tx       repository.Transactor

	Queue TaskPublisher
	Cache BookingCache

	Clock    func() time.Time
	Location *time.Location
}

// core is shared by both managers.
type core struct {
	bookings repository.BookingRepository
	payments repository.PaymentRepository
	tours    repository.TourRepository
	users    repository.UserRepository
	tx       repository.Transactor
	queue    TaskPublisher
	cache    BookingCache
	guard    ConsistencyGuard
	clock    func() time.Time
	loc      *time.Location
}

func newCore(d Deps) core {
	c := core{
		bookings: d.Bookings,
		payments: d.Payments,
		tours:    d.Tours,
		users:    d.Users,
		tx:       d.Tx,
		queue:    d.Queue,
		cache:    d.Cache,
		clock:    d.Clock,
		loc:      d.Location,
	}
	if c.clock == nil {
		c.clock = time.Now
	}
	if c.loc == nil {
		c.loc = time.UTC
	}
	return c
}

func (c *core) now() time.Time {
	return c.clock().UTC()
}

// today is the current calendar day in the booking timezone
func (c *core) today() entity.Date {
	return entity.DateOf(c.clock().In(c.loc))
}

// emit publishes a lifecycle event after commit. Publishing is best effort:
// failures are logged and never surface to the caller.
func (c *core) emit(ctx context.Context, ev entity.LifecycleEvent) {
	metrics.LifecycleTransitions.WithLabelValues(string(ev.Name)).Inc()

	logrus.WithFields(logrus.Fields{
		"event":      ev.Name,
		"booking_id": ev.BookingID,
		"payment_id": ev.PaymentID,
		"actor_id":   ev.ActorID,
	}).Info("lifecycle transition committed")

	if c.queue == nil {
		return
	}

	task := &Task{
		ID:   uuid.NewString(),
		Type: TaskTypeLifecycleEvent,
		Data: map[string]interface{}{
			"event":          string(ev.Name),
			"booking_id":     ev.BookingID,
			"payment_id":     ev.PaymentID,
			"user_id":        ev.UserID,
			"actor_id":       ev.ActorID,
			"status":         string(ev.Status),
			"payment_status": string(ev.PaymentStatus),
			"amount":         ev.Amount,
			"reason":         ev.Reason,
			"occurred_at":    ev.OccurredAt.Format(time.RFC3339Nano),
		},
		MaxRetries: 3,
	}

	// the request context may already be cancelled after the response
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()

	if err := c.queue.Publish(pubCtx, task); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"event":      ev.Name,
			"booking_id": ev.BookingID,
		}).Error("failed to publish lifecycle event")
	}
}

func (c *core) invalidate(ctx context.Context, bookingID string) {
	if c.cache != nil {
		c.cache.Invalidate(ctx, bookingID)
	}
}

// explainBookingRace is called when a conditional update matched no row.
// It re-reads the booking and returns the rule that now fails, or
// ErrConcurrentUpdate if the rule passes again.
func (c *core) explainBookingRace(ctx context.Context, id string, check func(*entity.Booking) error) error {
	b, err := c.bookings.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := check(b); err != nil {
		return err
	}
	return entity.ErrConcurrentUpdate
}

func (c *core) explainPaymentRace(ctx context.Context, id string, check func(*entity.Payment) error) error {
	p, err := c.payments.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := check(p); err != nil {
		return err
	}
	return entity.ErrConcurrentUpdate
}

// rejected counts a domain refusal by kind and passes err through
func rejected(operation string, err error) error {
	if kind := entity.KindOf(err); kind != "" {
		metrics.LifecycleRejections.WithLabelValues(operation, string(kind)).Inc()
	}
	return err
}

// validID turns malformed identifiers into not-found instead of letting
// the database reject them.
func validID(id string, notFound error) error {
	if _, err := uuid.Parse(id); err != nil {
		return notFound
	}
	return nil
}

func isRace(err error) bool {
	return errors.Is(err, entity.ErrConcurrentUpdate)
}
