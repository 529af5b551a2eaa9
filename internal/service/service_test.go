package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ds124wfegd/travel-booking/internal/database/memory"
	"github.com/ds124wfegd/travel-booking/internal/entity"
	"github.com/ds124wfegd/travel-booking/internal/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const (
	tourID  = "0f8b6f2e-1c2d-4e5f-8a9b-0c1d2e3f4a5b"
	ownerID = "11111111-1111-4111-8111-111111111111"
	otherID = "22222222-2222-4222-8222-222222222222"
	adminID = "33333333-3333-4333-8333-333333333333"
)

var (
	owner = entity.Actor{UserID: ownerID, Role: entity.RoleUser}
	other = entity.Actor{UserID: otherID, Role: entity.RoleUser}
	admin = entity.Actor{UserID: adminID, Role: entity.RoleAdmin}
)

// recordingQueue collects published tasks.
type recordingQueue struct {
	mu    sync.Mutex
	tasks []*service.Task
}

func (q *recordingQueue) Publish(_ context.Context, task *service.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, task)
	return nil
}

func (q *recordingQueue) events() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	names := make([]string, 0, len(q.tasks))
	for _, t := range q.tasks {
		names = append(names, t.Data["event"].(string))
	}
	return names
}

// mapCache is an in-process BookingCache.
type mapCache struct {
	mu      sync.Mutex
	entries map[string]*entity.BookingDetails
	hits    int
}

func (c *mapCache) Get(_ context.Context, id string) (*entity.BookingDetails, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.entries[id]
	if ok {
		c.hits++
	}
	return d, ok
}

func (c *mapCache) Set(_ context.Context, d *entity.BookingDetails) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[d.ID] = d
}

func (c *mapCache) Invalidate(_ context.Context, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
}

type fixture struct {
	store    *memory.Store
	bookings service.BookingService
	payments service.PaymentService
	queue    *recordingQueue
	cache    *mapCache
	deps     service.Deps

	mu  sync.Mutex
	now time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store: memory.NewStore(),
		queue: &recordingQueue{},
		cache: &mapCache{entries: map[string]*entity.BookingDetails{}},
		now:   time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC),
	}

	f.store.PutTour(entity.Tour{
		ID:           tourID,
		Title:        "Sa Pa trekking",
		Price:        decimal.NewFromInt(1_000_000),
		DurationDays: 3,
	})
	for _, u := range []entity.User{
		{ID: ownerID, Email: "owner@example.com", Role: entity.RoleUser},
		{ID: otherID, Email: "other@example.com", Role: entity.RoleUser},
		{ID: adminID, Email: "admin@example.com", Role: entity.RoleAdmin},
	} {
		f.store.PutUser(u)
	}

	deps := service.Deps{
		Bookings: f.store.Bookings(),
		Payments: f.store.Payments(),
		Tours:    f.store.Tours(),
		Users:    f.store.Users(),
		Tx:       f.store,
		Queue:    f.queue,
		Cache:    f.cache,
		Clock:    f.clock,
		Location: time.UTC,
	}
	f.deps = deps
	f.bookings = service.NewBookingService(deps)
	f.payments = service.NewPaymentService(deps)
	return f
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) setNow(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = t
}

func (f *fixture) advance(d time.Duration) {
	f.setNow(f.clock().Add(d))
}

// createBooking books the tour for 2 adults and 1 child starting 2026-06-10.
func (f *fixture) createBooking(t *testing.T) *entity.Booking {
	t.Helper()
	b, err := f.bookings.CreateBooking(context.Background(), owner, &service.CreateBookingRequest{
		TourID:    tourID,
		StartDate: entity.NewDate(2026, 6, 10),
		Adults:    2,
		Children:  1,
	})
	require.NoError(t, err)
	return b
}

func (f *fixture) createPayment(t *testing.T, bookingID string) *entity.Payment {
	t.Helper()
	p, err := f.payments.CreatePayment(context.Background(), owner, bookingID, entity.MethodBankTransfer)
	require.NoError(t, err)
	return p
}

// paidBooking returns a booking whose payment has been confirmed.
func (f *fixture) paidBooking(t *testing.T) (*entity.Booking, *entity.Payment) {
	t.Helper()
	b := f.createBooking(t)
	p := f.createPayment(t, b.ID)
	_, err := f.payments.ConfirmPayment(context.Background(), owner, p.ID)
	require.NoError(t, err)
	return b, p
}

func (f *fixture) reload(t *testing.T, id string) *entity.Booking {
	t.Helper()
	b, err := f.store.Bookings().GetByID(context.Background(), id)
	require.NoError(t, err)
	return b
}

func (f *fixture) reloadPayment(t *testing.T, id string) *entity.Payment {
	t.Helper()
	p, err := f.store.Payments().GetByID(context.Background(), id)
	require.NoError(t, err)
	return p
}
