package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ds124wfegd/travel-booking/internal/entity"
	"github.com/lib/pq"
)

const (
	paymentColumns = `id, booking_id, amount, method, transaction_id, status,
			paid_at, refunded_at, created_at, updated_at`

	// partial unique index, see pkg/postgres migrations
	onePendingPaymentIndex = "payments_one_pending_per_booking"
	uniqueViolation        = "23505"
)

type paymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

func scanPayment(row rowScanner) (*entity.Payment, error) {
	var (
		payment    entity.Payment
		paidAt     sql.NullTime
		refundedAt sql.NullTime
	)
	err := row.Scan(
		&payment.ID,
		&payment.BookingID,
		&payment.Amount,
		&payment.Method,
		&payment.TransactionID,
		&payment.Status,
		&paidAt,
		&refundedAt,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if paidAt.Valid {
		payment.PaidAt = &paidAt.Time
	}
	if refundedAt.Valid {
		payment.RefundedAt = &refundedAt.Time
	}
	return &payment, nil
}

func scanPayments(rows *sql.Rows) ([]*entity.Payment, error) {
	defer rows.Close()

	payments := make([]*entity.Payment, 0)
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, payment)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payments: %w", err)
	}
	return payments, nil
}

func (r *paymentRepository) Create(ctx context.Context, payment *entity.Payment) error {
	query := `
		INSERT INTO payments (` + paymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := conn(ctx, r.db).ExecContext(ctx, query,
		payment.ID,
		payment.BookingID,
		payment.Amount,
		payment.Method,
		payment.TransactionID,
		payment.Status,
		payment.PaidAt,
		payment.RefundedAt,
		payment.CreatedAt,
		payment.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			if pqErr.Constraint == onePendingPaymentIndex {
				return entity.ErrPaymentInFlight
			}
			return entity.Conflictf("payment already exists: %s", pqErr.Constraint)
		}
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

func (r *paymentRepository) GetByID(ctx context.Context, id string) (*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`

	payment, err := scanPayment(conn(ctx, r.db).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return payment, nil
}

// ListByBooking returns the payment history, newest first
func (r *paymentRepository) ListByBooking(ctx context.Context, bookingID string) ([]*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + `
		FROM payments
		WHERE booking_id = $1
		ORDER BY created_at DESC, id DESC`

	rows, err := conn(ctx, r.db).QueryContext(ctx, query, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments by booking: %w", err)
	}
	return scanPayments(rows)
}

func (r *paymentRepository) CountByStatus(ctx context.Context, bookingID string, status entity.PaymentStatus) (int, error) {
	query := `SELECT COUNT(*) FROM payments WHERE booking_id = $1 AND status = $2`

	var count int
	if err := conn(ctx, r.db).QueryRowContext(ctx, query, bookingID, status).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count payments: %w", err)
	}
	return count, nil
}

// Transition moves a payment From -> To only if it is still in From
func (r *paymentRepository) Transition(ctx context.Context, t entity.PaymentTransition) error {
	var query string
	switch t.To {
	case entity.PaymentSuccess:
		query = `UPDATE payments SET status = $1, updated_at = $2, paid_at = $2 WHERE id = $3 AND status = $4`
	case entity.PaymentRefunded:
		query = `UPDATE payments SET status = $1, updated_at = $2, refunded_at = $2 WHERE id = $3 AND status = $4`
	default:
		query = `UPDATE payments SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`
	}

	result, err := conn(ctx, r.db).ExecContext(ctx, query, t.To, t.At, t.PaymentID, t.From)
	if err != nil {
		return fmt.Errorf("failed to update payment status: %w", err)
	}
	return expectOneRow(result)
}

func (r *paymentRepository) DeleteByBooking(ctx context.Context, bookingID string) (int64, error) {
	result, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM payments WHERE booking_id = $1`, bookingID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete payments: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

func (r *paymentRepository) ListStalePending(ctx context.Context, before time.Time, limit int) ([]*entity.Payment, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT ` + paymentColumns + `
		FROM payments
		WHERE status = 'PENDING' AND created_at < $1
		ORDER BY created_at ASC
		LIMIT $2`

	rows, err := conn(ctx, r.db).QueryContext(ctx, query, before, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale payments: %w", err)
	}
	return scanPayments(rows)
}
