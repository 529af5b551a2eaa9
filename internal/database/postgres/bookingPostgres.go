package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ds124wfegd/travel-booking/internal/entity"
	"github.com/lib/pq"
)

const bookingColumns = `id, user_id, tour_id, start_date, adults, children, total_price,
			status, payment_status, special_requests, cancel_reason, created_at, updated_at`

type bookingRepository struct {
	db *sql.DB
}

func NewBookingRepository(db *sql.DB) BookingRepository {
	return &bookingRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBooking(row rowScanner) (*entity.Booking, error) {
	var booking entity.Booking
	err := row.Scan(
		&booking.ID,
		&booking.UserID,
		&booking.TourID,
		&booking.StartDate,
		&booking.Adults,
		&booking.Children,
		&booking.TotalPrice,
		&booking.Status,
		&booking.PaymentStatus,
		&booking.SpecialRequests,
		&booking.CancelReason,
		&booking.CreatedAt,
		&booking.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

func scanBookings(rows *sql.Rows) ([]*entity.Booking, error) {
	defer rows.Close()

	bookings := make([]*entity.Booking, 0)
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, booking)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bookings: %w", err)
	}
	return bookings, nil
}

// Create inserts a booking whose id and timestamps are already set
func (r *bookingRepository) Create(ctx context.Context, booking *entity.Booking) error {
	query := `
		INSERT INTO bookings (` + bookingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := conn(ctx, r.db).ExecContext(ctx, query,
		booking.ID,
		booking.UserID,
		booking.TourID,
		booking.StartDate,
		booking.Adults,
		booking.Children,
		booking.TotalPrice,
		booking.Status,
		booking.PaymentStatus,
		booking.SpecialRequests,
		booking.CancelReason,
		booking.CreatedAt,
		booking.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

func (r *bookingRepository) GetByID(ctx context.Context, id string) (*entity.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`

	booking, err := scanBooking(conn(ctx, r.db).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return booking, nil
}

func (r *bookingRepository) GetByUserID(ctx context.Context, userID string) ([]*entity.Booking, error) {
	query := `SELECT ` + bookingColumns + `
		FROM bookings
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC`

	rows, err := conn(ctx, r.db).QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings by user: %w", err)
	}
	return scanBookings(rows)
}

// List returns one page of bookings and the total number matching the filter
func (r *bookingRepository) List(ctx context.Context, filter entity.BookingFilter) ([]*entity.Booking, int, error) {
	var (
		conds []string
		args  []interface{}
	)
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		conds = append(conds, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.PaymentStatus != "" {
		args = append(args, filter.PaymentStatus)
		conds = append(conds, fmt.Sprintf("payment_status = $%d", len(args)))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	err := conn(ctx, r.db).QueryRowContext(ctx, `SELECT COUNT(*) FROM bookings`+where, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count bookings: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM bookings%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		bookingColumns, where, len(args)-1, len(args))

	rows, err := conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list bookings: %w", err)
	}
	bookings, err := scanBookings(rows)
	if err != nil {
		return nil, 0, err
	}
	return bookings, total, nil
}

// Transition applies a conditional status change in a single statement
func (r *bookingRepository) Transition(ctx context.Context, t entity.BookingTransition) error {
	args := []interface{}{t.To, t.At}
	query := `UPDATE bookings SET status = $1, updated_at = $2`

	if t.CancelReason != "" {
		args = append(args, t.CancelReason)
		query += fmt.Sprintf(", cancel_reason = $%d", len(args))
	}

	args = append(args, t.BookingID)
	query += fmt.Sprintf(" WHERE id = $%d", len(args))

	if len(t.From) > 0 {
		from := make([]string, len(t.From))
		for i, s := range t.From {
			from[i] = string(s)
		}
		args = append(args, pq.Array(from))
		query += fmt.Sprintf(" AND status = ANY($%d)", len(args))
	}
	if t.PaymentIs != "" {
		args = append(args, t.PaymentIs)
		query += fmt.Sprintf(" AND payment_status = $%d", len(args))
	}
	if t.PaymentIsNot != "" {
		args = append(args, t.PaymentIsNot)
		query += fmt.Sprintf(" AND payment_status <> $%d", len(args))
	}

	result, err := conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update booking status: %w", err)
	}
	return expectOneRow(result)
}

func (r *bookingRepository) SetPaymentStatus(ctx context.Context, id string, status entity.BookingPaymentStatus, at time.Time, unless ...entity.BookingStatus) error {
	args := []interface{}{status, at, id}
	query := `UPDATE bookings SET payment_status = $1, updated_at = $2 WHERE id = $3`

	if len(unless) > 0 {
		skip := make([]string, len(unless))
		for i, s := range unless {
			skip[i] = string(s)
		}
		args = append(args, pq.Array(skip))
		query += ` AND status <> ALL($4)`
	}

	result, err := conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update booking payment status: %w", err)
	}
	return expectOneRow(result)
}

// DeleteUnpaid removes the booking unless it is PAID at the moment of deletion
func (r *bookingRepository) DeleteUnpaid(ctx context.Context, id string) error {
	query := `DELETE FROM bookings WHERE id = $1 AND payment_status <> 'PAID'`

	result, err := conn(ctx, r.db).ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete booking: %w", err)
	}
	return expectOneRow(result)
}

func expectOneRow(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return entity.ErrConcurrentUpdate
	}
	return nil
}
