// Package memory is an in-process implementation of the repositories used
// by the services in development mode and in tests. It enforces the same
// conditional-update and uniqueness rules as the postgres schema.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	repository "github.com/ds124wfegd/travel-booking/internal/database/postgres"
	"github.com/ds124wfegd/travel-booking/internal/entity"
)

type txKey struct{}

type bookingRow struct {
	entity.Booking
	seq int64
}

type paymentRow struct {
	entity.Payment
	seq int64
}

type tables struct {
	tours    map[string]entity.Tour
	users    map[string]entity.User
	bookings map[string]bookingRow
	payments map[string]paymentRow
}

func (t tables) clone() tables {
	c := tables{
		tours:    make(map[string]entity.Tour, len(t.tours)),
		users:    make(map[string]entity.User, len(t.users)),
		bookings: make(map[string]bookingRow, len(t.bookings)),
		payments: make(map[string]paymentRow, len(t.payments)),
	}
	for k, v := range t.tours {
		c.tours[k] = v
	}
	for k, v := range t.users {
		c.users[k] = v
	}
	for k, v := range t.bookings {
		c.bookings[k] = v
	}
	for k, v := range t.payments {
		c.payments[k] = v
	}
	return c
}

// Store serializes every operation behind one mutex. A transaction holds
// the mutex for its whole duration and restores a snapshot on error.
type Store struct {
	mu  sync.Mutex
	seq int64
	t   tables
}

func NewStore() *Store {
	return &Store{
		t: tables{
			tours:    make(map[string]entity.Tour),
			users:    make(map[string]entity.User),
			bookings: make(map[string]bookingRow),
			payments: make(map[string]paymentRow),
		},
	}
}

var _ repository.Transactor = (*Store)(nil)

func (s *Store) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) == s {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.t.clone()
	seq := s.seq

	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		s.t = snapshot
		s.seq = seq
		return err
	}
	return nil
}

// lock acquires the mutex unless ctx already runs inside this store's
// transaction.
func (s *Store) lock(ctx context.Context) func() {
	if ctx.Value(txKey{}) == s {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) nextSeq() int64 {
	s.seq++
	return s.seq
}

// PutTour seeds the catalog.
func (s *Store) PutTour(tour entity.Tour) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.t.tours[tour.ID] = tour
}

// PutUser seeds the user directory.
func (s *Store) PutUser(user entity.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.t.users[user.ID] = user
}

func (s *Store) Bookings() repository.BookingRepository { return &bookingRepo{s} }
func (s *Store) Payments() repository.PaymentRepository { return &paymentRepo{s} }
func (s *Store) Tours() repository.TourRepository       { return &tourRepo{s} }
func (s *Store) Users() repository.UserRepository       { return &userRepo{s} }

type tourRepo struct{ s *Store }

func (r *tourRepo) GetByID(ctx context.Context, id string) (*entity.Tour, error) {
	defer r.s.lock(ctx)()

	tour, ok := r.s.t.tours[id]
	if !ok {
		return nil, entity.ErrTourNotFound
	}
	return &tour, nil
}

type userRepo struct{ s *Store }

func (r *userRepo) GetByID(ctx context.Context, id string) (*entity.User, error) {
	defer r.s.lock(ctx)()

	user, ok := r.s.t.users[id]
	if !ok {
		return nil, entity.ErrUserNotFound
	}
	return &user, nil
}

type bookingRepo struct{ s *Store }

func (r *bookingRepo) Create(ctx context.Context, booking *entity.Booking) error {
	defer r.s.lock(ctx)()

	if _, ok := r.s.t.bookings[booking.ID]; ok {
		return entity.Conflictf("booking %s already exists", booking.ID)
	}
	r.s.t.bookings[booking.ID] = bookingRow{Booking: *booking, seq: r.s.nextSeq()}
	return nil
}

func (r *bookingRepo) GetByID(ctx context.Context, id string) (*entity.Booking, error) {
	defer r.s.lock(ctx)()

	row, ok := r.s.t.bookings[id]
	if !ok {
		return nil, entity.ErrBookingNotFound
	}
	b := row.Booking
	return &b, nil
}

func (r *bookingRepo) GetByUserID(ctx context.Context, userID string) ([]*entity.Booking, error) {
	bookings, _, err := r.List(ctx, entity.BookingFilter{UserID: userID, Limit: -1})
	return bookings, err
}

// List pages newest first. A negative Limit returns every match.
func (r *bookingRepo) List(ctx context.Context, filter entity.BookingFilter) ([]*entity.Booking, int, error) {
	defer r.s.lock(ctx)()

	rows := make([]bookingRow, 0)
	for _, row := range r.s.t.bookings {
		if filter.UserID != "" && row.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && row.Status != filter.Status {
			continue
		}
		if filter.PaymentStatus != "" && row.PaymentStatus != filter.PaymentStatus {
			continue
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.After(rows[j].CreatedAt)
		}
		return rows[i].seq > rows[j].seq
	})

	total := len(rows)
	start := filter.Offset
	if start < 0 {
		start = 0
	}
	if start > total {
		start = total
	}
	end := total
	limit := filter.Limit
	if limit == 0 {
		limit = 50
	}
	if limit > 0 && start+limit < total {
		end = start + limit
	}

	bookings := make([]*entity.Booking, 0, end-start)
	for _, row := range rows[start:end] {
		b := row.Booking
		bookings = append(bookings, &b)
	}
	return bookings, total, nil
}

func (r *bookingRepo) Transition(ctx context.Context, t entity.BookingTransition) error {
	defer r.s.lock(ctx)()

	row, ok := r.s.t.bookings[t.BookingID]
	if !ok || !statusIn(row.Status, t.From) {
		return entity.ErrConcurrentUpdate
	}
	if t.PaymentIs != "" && row.PaymentStatus != t.PaymentIs {
		return entity.ErrConcurrentUpdate
	}
	if t.PaymentIsNot != "" && row.PaymentStatus == t.PaymentIsNot {
		return entity.ErrConcurrentUpdate
	}

	row.Status = t.To
	row.UpdatedAt = t.At
	if t.CancelReason != "" {
		row.CancelReason = t.CancelReason
	}
	r.s.t.bookings[t.BookingID] = row
	return nil
}

func (r *bookingRepo) SetPaymentStatus(ctx context.Context, id string, status entity.BookingPaymentStatus, at time.Time, unless ...entity.BookingStatus) error {
	defer r.s.lock(ctx)()

	row, ok := r.s.t.bookings[id]
	if !ok || (len(unless) > 0 && statusIn(row.Status, unless)) {
		return entity.ErrConcurrentUpdate
	}
	row.PaymentStatus = status
	row.UpdatedAt = at
	r.s.t.bookings[id] = row
	return nil
}

func (r *bookingRepo) DeleteUnpaid(ctx context.Context, id string) error {
	defer r.s.lock(ctx)()

	row, ok := r.s.t.bookings[id]
	if !ok || row.PaymentStatus == entity.PaymentStatusPaid {
		return entity.ErrConcurrentUpdate
	}
	for _, p := range r.s.t.payments {
		if p.BookingID == id {
			// same as the foreign key on payments.booking_id
			return entity.Conflictf("booking %s still has payments", id)
		}
	}
	delete(r.s.t.bookings, id)
	return nil
}

func statusIn(s entity.BookingStatus, set []entity.BookingStatus) bool {
	if len(set) == 0 {
		return true
	}
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

type paymentRepo struct{ s *Store }

func (r *paymentRepo) Create(ctx context.Context, payment *entity.Payment) error {
	defer r.s.lock(ctx)()

	if _, ok := r.s.t.bookings[payment.BookingID]; !ok {
		return entity.ErrBookingNotFound
	}
	for _, p := range r.s.t.payments {
		if p.TransactionID == payment.TransactionID {
			return entity.Conflictf("payment already exists: transaction %s", payment.TransactionID)
		}
		if payment.Status == entity.PaymentPending && p.BookingID == payment.BookingID && p.Status == entity.PaymentPending {
			return entity.ErrPaymentInFlight
		}
	}
	r.s.t.payments[payment.ID] = paymentRow{Payment: *payment, seq: r.s.nextSeq()}
	return nil
}

func (r *paymentRepo) GetByID(ctx context.Context, id string) (*entity.Payment, error) {
	defer r.s.lock(ctx)()

	row, ok := r.s.t.payments[id]
	if !ok {
		return nil, entity.ErrPaymentNotFound
	}
	p := row.Payment
	return &p, nil
}

func (r *paymentRepo) ListByBooking(ctx context.Context, bookingID string) ([]*entity.Payment, error) {
	defer r.s.lock(ctx)()

	rows := r.s.paymentsWhere(func(p paymentRow) bool { return p.BookingID == bookingID })
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.After(rows[j].CreatedAt)
		}
		return rows[i].seq > rows[j].seq
	})
	return toPayments(rows), nil
}

func (r *paymentRepo) CountByStatus(ctx context.Context, bookingID string, status entity.PaymentStatus) (int, error) {
	defer r.s.lock(ctx)()

	rows := r.s.paymentsWhere(func(p paymentRow) bool {
		return p.BookingID == bookingID && p.Status == status
	})
	return len(rows), nil
}

func (r *paymentRepo) Transition(ctx context.Context, t entity.PaymentTransition) error {
	defer r.s.lock(ctx)()

	row, ok := r.s.t.payments[t.PaymentID]
	if !ok || row.Status != t.From {
		return entity.ErrConcurrentUpdate
	}

	at := t.At
	row.Status = t.To
	row.UpdatedAt = at
	switch t.To {
	case entity.PaymentSuccess:
		row.PaidAt = &at
	case entity.PaymentRefunded:
		row.RefundedAt = &at
	}
	r.s.t.payments[t.PaymentID] = row
	return nil
}

func (r *paymentRepo) DeleteByBooking(ctx context.Context, bookingID string) (int64, error) {
	defer r.s.lock(ctx)()

	var n int64
	for id, p := range r.s.t.payments {
		if p.BookingID == bookingID {
			delete(r.s.t.payments, id)
			n++
		}
	}
	return n, nil
}

func (r *paymentRepo) ListStalePending(ctx context.Context, before time.Time, limit int) ([]*entity.Payment, error) {
	defer r.s.lock(ctx)()

	rows := r.s.paymentsWhere(func(p paymentRow) bool {
		return p.Status == entity.PaymentPending && p.CreatedAt.Before(before)
	})
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.Before(rows[j].CreatedAt)
		}
		return rows[i].seq < rows[j].seq
	})
	if limit <= 0 {
		limit = 100
	}
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return toPayments(rows), nil
}

func (s *Store) paymentsWhere(match func(paymentRow) bool) []paymentRow {
	rows := make([]paymentRow, 0)
	for _, p := range s.t.payments {
		if match(p) {
			rows = append(rows, p)
		}
	}
	return rows
}

func toPayments(rows []paymentRow) []*entity.Payment {
	payments := make([]*entity.Payment, 0, len(rows))
	for _, row := range rows {
		p := row.Payment
		payments = append(payments, &p)
	}
	return payments
}
