package service_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	repository "github.com/ds124wfegd/travel-booking/internal/database/postgres"
	"github.com/ds124wfegd/travel-booking/internal/entity"
	"github.com/ds124wfegd/travel-booking/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreatePayment(t *testing.T) {
	f := newFixture(t)
	b := f.createBooking(t)

	p := f.createPayment(t, b.ID)

	assert.Equal(t, b.ID, p.BookingID)
	assert.Equal(t, entity.PaymentPending, p.Status)
	assert.Equal(t, entity.MethodBankTransfer, p.Method)
	assert.True(t, b.TotalPrice.Equal(p.Amount), "amount is a snapshot of the booking total")
	assert.True(t, strings.HasPrefix(p.TransactionID, "TXN-"), p.TransactionID)
	assert.Nil(t, p.PaidAt)

	// бронирование не меняется
	stored := f.reload(t, b.ID)
	assert.Equal(t, entity.PaymentStatusUnpaid, stored.PaymentStatus)
	assert.Equal(t, entity.BookingStatusPending, stored.Status)
}

func TestCreatePayment_Rejections(t *testing.T) {
	ctx := context.Background()

	t.Run("second pending payment", func(t *testing.T) {
		f := newFixture(t)
		b := f.createBooking(t)
		f.createPayment(t, b.ID)

		_, err := f.payments.CreatePayment(ctx, owner, b.ID, entity.MethodCash)
		assert.ErrorIs(t, err, entity.ErrPaymentInFlight)
	})

	t.Run("already paid", func(t *testing.T) {
		f := newFixture(t)
		b, _ := f.paidBooking(t)

		_, err := f.payments.CreatePayment(ctx, owner, b.ID, entity.MethodCash)
		assert.ErrorIs(t, err, entity.ErrBookingPaid)
		assert.ErrorIs(t, err, entity.ErrConflict)
	})

	t.Run("cancelled booking", func(t *testing.T) {
		f := newFixture(t)
		b := f.createBooking(t)
		_, err := f.bookings.CancelBooking(ctx, owner, b.ID, "no")
		require.NoError(t, err)

		_, err = f.payments.CreatePayment(ctx, owner, b.ID, entity.MethodCash)
		assert.ErrorIs(t, err, entity.ErrInvalidState)
	})

	t.Run("invalid method", func(t *testing.T) {
		f := newFixture(t)
		b := f.createBooking(t)

		_, err := f.payments.CreatePayment(ctx, owner, b.ID, "BARTER")
		assert.ErrorIs(t, err, entity.ErrValidation)
	})

	t.Run("foreign booking", func(t *testing.T) {
		f := newFixture(t)
		b := f.createBooking(t)

		_, err := f.payments.CreatePayment(ctx, other, b.ID, entity.MethodCash)
		assert.ErrorIs(t, err, entity.ErrForbidden)
	})

	t.Run("unknown booking", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.payments.CreatePayment(ctx, owner, "99999999-9999-4999-8999-999999999999", entity.MethodCash)
		assert.ErrorIs(t, err, entity.ErrBookingNotFound)
	})
}

func TestCreatePayment_AfterFailedAttempt(t *testing.T) {
	f := newFixture(t)
	b := f.createBooking(t)
	first := f.createPayment(t, b.ID)

	_, err := f.payments.CancelPayment(context.Background(), owner, first.ID)
	require.NoError(t, err)

	second := f.createPayment(t, b.ID)
	assert.NotEqual(t, first.ID, second.ID)
	assert.NotEqual(t, first.TransactionID, second.TransactionID)
}

func TestConfirmPayment(t *testing.T) {
	f := newFixture(t)
	b := f.createBooking(t)
	p := f.createPayment(t, b.ID)
	ctx := context.Background()

	confirmed, err := f.payments.ConfirmPayment(ctx, owner, p.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.PaymentSuccess, confirmed.Status)
	require.NotNil(t, confirmed.PaidAt)

	stored := f.reload(t, b.ID)
	assert.Equal(t, entity.PaymentStatusPaid, stored.PaymentStatus)
	// подтверждение оплаты не подтверждает бронирование
	assert.Equal(t, entity.BookingStatusPending, stored.Status)

	paidAt := *f.reloadPayment(t, p.ID).PaidAt
	f.advance(time.Hour)

	_, err = f.payments.ConfirmPayment(ctx, owner, p.ID)
	assert.ErrorIs(t, err, entity.ErrPaymentNotPending)
	assert.ErrorIs(t, err, entity.ErrInvalidState)

	again := f.reloadPayment(t, p.ID)
	assert.Equal(t, entity.PaymentSuccess, again.Status)
	assert.True(t, paidAt.Equal(*again.PaidAt), "paidAt is written once")
}

func TestConfirmPayment_CancelledBooking(t *testing.T) {
	f := newFixture(t)
	b := f.createBooking(t)
	p := f.createPayment(t, b.ID)
	ctx := context.Background()

	_, err := f.bookings.CancelBooking(ctx, owner, b.ID, "changed mind")
	require.NoError(t, err)

	_, err = f.payments.ConfirmPayment(ctx, owner, p.ID)
	assert.ErrorIs(t, err, entity.ErrInvalidState)
	assert.Equal(t, entity.PaymentPending, f.reloadPayment(t, p.ID).Status)
	assert.Equal(t, entity.PaymentStatusUnpaid, f.reload(t, b.ID).PaymentStatus)
}

// cancelAfterRead cancels the booking right after the first booking read,
// so the cancel commits between the checks and the confirm transaction.
type cancelAfterRead struct {
	repository.BookingRepository
	once   sync.Once
	cancel func(id string)
}

func (r *cancelAfterRead) GetByID(ctx context.Context, id string) (*entity.Booking, error) {
	b, err := r.BookingRepository.GetByID(ctx, id)
	r.once.Do(func() { r.cancel(id) })
	return b, err
}

func TestConfirmPayment_BookingCancelledMeanwhile(t *testing.T) {
	f := newFixture(t)
	b := f.createBooking(t)
	p := f.createPayment(t, b.ID)
	ctx := context.Background()

	deps := f.deps
	deps.Bookings = &cancelAfterRead{
		BookingRepository: f.store.Bookings(),
		cancel: func(id string) {
			_, err := f.bookings.CancelBooking(ctx, owner, id, "changed mind")
			require.NoError(t, err)
		},
	}
	payments := service.NewPaymentService(deps)

	_, err := payments.ConfirmPayment(ctx, owner, p.ID)
	assert.ErrorIs(t, err, entity.ErrInvalidState)

	booking := f.reload(t, b.ID)
	assert.Equal(t, entity.BookingStatusCancelled, booking.Status)
	assert.Equal(t, entity.PaymentStatusUnpaid, booking.PaymentStatus)
	assert.Equal(t, entity.PaymentPending, f.reloadPayment(t, p.ID).Status)
	assert.NotContains(t, f.queue.events(), string(entity.EventPaymentConfirmed))
}

// TestConfirmPayment_Concurrent проверяет, что из параллельных
// подтверждений успешно ровно одно
func TestConfirmPayment_Concurrent(t *testing.T) {
	f := newFixture(t)
	b := f.createBooking(t)
	p := f.createPayment(t, b.ID)

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		failures  []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.payments.ConfirmPayment(context.Background(), owner, p.ID)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
				return
			}
			failures = append(failures, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	require.Len(t, failures, workers-1)
	for _, err := range failures {
		assert.True(t, errors.Is(err, entity.ErrInvalidState), err.Error())
	}
	assert.Equal(t, entity.PaymentStatusPaid, f.reload(t, b.ID).PaymentStatus)
}

func TestCancelPayment(t *testing.T) {
	f := newFixture(t)
	b := f.createBooking(t)
	p := f.createPayment(t, b.ID)
	ctx := context.Background()

	_, err := f.payments.CancelPayment(ctx, other, p.ID)
	assert.ErrorIs(t, err, entity.ErrForbidden)

	cancelled, err := f.payments.CancelPayment(ctx, owner, p.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.PaymentFailed, cancelled.Status)
	assert.Equal(t, entity.PaymentStatusUnpaid, f.reload(t, b.ID).PaymentStatus)

	_, err = f.payments.CancelPayment(ctx, owner, p.ID)
	assert.ErrorIs(t, err, entity.ErrPaymentNotPending)

	_, err = f.payments.ConfirmPayment(ctx, owner, p.ID)
	assert.ErrorIs(t, err, entity.ErrPaymentNotPending)
}

func TestRefundPayment(t *testing.T) {
	t.Run("successful payment", func(t *testing.T) {
		f := newFixture(t)
		b, p := f.paidBooking(t)

		refunded, err := f.payments.RefundPayment(context.Background(), admin, p.ID)
		require.NoError(t, err)
		assert.Equal(t, entity.PaymentRefunded, refunded.Status)
		require.NotNil(t, refunded.RefundedAt)

		assert.Equal(t, entity.PaymentStatusRefunded, f.reload(t, b.ID).PaymentStatus)
		assert.Equal(t, entity.PaymentRefunded, f.reloadPayment(t, p.ID).Status)
	})

	t.Run("twice", func(t *testing.T) {
		f := newFixture(t)
		_, p := f.paidBooking(t)
		_, err := f.payments.RefundPayment(context.Background(), admin, p.ID)
		require.NoError(t, err)

		_, err = f.payments.RefundPayment(context.Background(), admin, p.ID)
		assert.ErrorIs(t, err, entity.ErrPaymentNotSuccess)
	})

	t.Run("pending payment", func(t *testing.T) {
		f := newFixture(t)
		b := f.createBooking(t)
		p := f.createPayment(t, b.ID)

		_, err := f.payments.RefundPayment(context.Background(), admin, p.ID)
		assert.ErrorIs(t, err, entity.ErrPaymentNotSuccess)
		assert.Equal(t, entity.PaymentStatusUnpaid, f.reload(t, b.ID).PaymentStatus)
	})

	t.Run("failed payment", func(t *testing.T) {
		f := newFixture(t)
		b := f.createBooking(t)
		p := f.createPayment(t, b.ID)
		_, err := f.payments.CancelPayment(context.Background(), owner, p.ID)
		require.NoError(t, err)

		_, err = f.payments.RefundPayment(context.Background(), admin, p.ID)
		assert.ErrorIs(t, err, entity.ErrPaymentNotSuccess)
	})

	t.Run("owner cannot refund", func(t *testing.T) {
		f := newFixture(t)
		b, p := f.paidBooking(t)

		_, err := f.payments.RefundPayment(context.Background(), owner, p.ID)
		assert.ErrorIs(t, err, entity.ErrAdminOnly)
		assert.Equal(t, entity.PaymentStatusPaid, f.reload(t, b.ID).PaymentStatus)
	})
}

func TestGetPayments(t *testing.T) {
	f := newFixture(t)
	b := f.createBooking(t)
	p := f.createPayment(t, b.ID)
	ctx := context.Background()

	got, err := f.payments.GetPayment(ctx, owner, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	_, err = f.payments.GetPayment(ctx, other, p.ID)
	assert.ErrorIs(t, err, entity.ErrForbidden)

	_, err = f.payments.GetPayment(ctx, owner, "nope")
	assert.ErrorIs(t, err, entity.ErrPaymentNotFound)

	list, err := f.payments.GetBookingPayments(ctx, admin, b.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, p.ID, list[0].ID)

	_, err = f.payments.GetBookingPayments(ctx, other, b.ID)
	assert.ErrorIs(t, err, entity.ErrForbidden)
}

func TestExpireStalePayments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stale := f.createPayment(t, f.createBooking(t).ID)
	paidBooking, paid := f.paidBooking(t)

	f.advance(40 * time.Minute)
	fresh := f.createPayment(t, f.createBooking(t).ID)

	cutoff := f.clock().Add(-30 * time.Minute)
	n, err := f.payments.ExpireStalePayments(ctx, cutoff, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, entity.PaymentFailed, f.reloadPayment(t, stale.ID).Status)
	assert.Equal(t, entity.PaymentPending, f.reloadPayment(t, fresh.ID).Status)
	assert.Equal(t, entity.PaymentSuccess, f.reloadPayment(t, paid.ID).Status)
	assert.Equal(t, entity.PaymentStatusPaid, f.reload(t, paidBooking.ID).PaymentStatus)

	events := f.queue.events()
	assert.Equal(t, "payment.cancelled", events[len(events)-1])

	// повторный проход ничего не находит
	n, err = f.payments.ExpireStalePayments(ctx, cutoff, 10)
	require.NoError(t, err)
	assert.Zero(t, n)
}

// TestPaymentScenario проходит весь путь: бронирование, оплата,
// подтверждение, завершение тура
func TestPaymentScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b := f.createBooking(t)
	p := f.createPayment(t, b.ID)

	_, err := f.payments.ConfirmPayment(ctx, owner, p.ID)
	require.NoError(t, err)

	details, err := f.bookings.GetBooking(ctx, owner, b.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.BookingStatusPending, details.Status)
	assert.Equal(t, entity.PaymentStatusPaid, details.PaymentStatus)
	require.Len(t, details.Payments, 1)
	assert.Equal(t, entity.PaymentSuccess, details.Payments[0].Status)

	_, err = f.bookings.ConfirmBooking(ctx, admin, b.ID)
	require.NoError(t, err)

	f.setNow(time.Date(2026, 6, 14, 9, 0, 0, 0, time.UTC))
	_, err = f.bookings.CompleteBooking(ctx, owner, b.ID)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"booking.created",
		"payment.created",
		"payment.confirmed",
		"booking.confirmed",
		"booking.completed",
	}, f.queue.events())
}
