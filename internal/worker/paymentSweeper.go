package worker

import (
	"context"
	"time"

	"github.com/ds124wfegd/travel-booking/internal/metrics"
	"github.com/sirupsen/logrus"
)

// StalePaymentExpirer is the slice of PaymentService the sweeper needs.
type StalePaymentExpirer interface {
	ExpireStalePayments(ctx context.Context, before time.Time, limit int) (int, error)
}

// PaymentSweeper periodically fails PENDING payments older than ttl so an
// abandoned checkout stops blocking a new payment for the booking.
type PaymentSweeper struct {
	payments  StalePaymentExpirer
	interval  time.Duration
	ttl       time.Duration
	batchSize int
	now       func() time.Time
}

func NewPaymentSweeper(payments StalePaymentExpirer, interval, ttl time.Duration, batchSize int) *PaymentSweeper {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &PaymentSweeper{
		payments:  payments,
		interval:  interval,
		ttl:       ttl,
		batchSize: batchSize,
		now:       time.Now,
	}
}

func (w *PaymentSweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	logrus.WithFields(logrus.Fields{
		"interval": w.interval.String(),
		"ttl":      w.ttl.String(),
	}).Info("Payment sweeper started")

	for {
		select {
		case <-ctx.Done():
			logrus.Info("Payment sweeper stopped")
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep runs batches until a short batch shows nothing stale is left.
// It returns the number of payments expired.
func (w *PaymentSweeper) Sweep(ctx context.Context) int {
	cutoff := w.now().Add(-w.ttl)
	total := 0

	for {
		if ctx.Err() != nil {
			return total
		}

		n, err := w.payments.ExpireStalePayments(ctx, cutoff, w.batchSize)
		total += n
		metrics.StalePaymentsExpired.Add(float64(n))
		if err != nil {
			logrus.WithError(err).Error("Failed to expire stale payments")
			return total
		}
		// пропущенные платежи не уменьшают выборку, поэтому выходим на неполной пачке
		if n < w.batchSize {
			break
		}
	}

	if total > 0 {
		logrus.WithField("expired", total).Info("Stale payments expired")
	}
	return total
}
