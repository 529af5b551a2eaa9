package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ds124wfegd/travel-booking/config"
	"github.com/sirupsen/logrus"

	_ "github.com/lib/pq"
)

func NewPostgresDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logrus.WithFields(logrus.Fields{"host": cfg.Host, "dbname": cfg.DBName}).Info("Successfully connected to PostgreSQL")
	return db, nil
}

// Migrations are idempotent and applied in order on startup
var Migrations = []string{
	`CREATE TABLE IF NOT EXISTS tours (
		id UUID PRIMARY KEY,
		title VARCHAR(255) NOT NULL,
		price NUMERIC(14, 2) NOT NULL CHECK (price >= 0),
		duration_days INTEGER NOT NULL CHECK (duration_days > 0),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		email VARCHAR(255) UNIQUE NOT NULL,
		full_name VARCHAR(255) NOT NULL,
		role VARCHAR(10) NOT NULL DEFAULT 'USER' CHECK (role IN ('USER', 'ADMIN')),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS bookings (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL REFERENCES users(id),
		tour_id UUID NOT NULL REFERENCES tours(id),
		start_date DATE NOT NULL,
		adults INTEGER NOT NULL CHECK (adults >= 1),
		children INTEGER NOT NULL DEFAULT 0 CHECK (children >= 0),
		total_price NUMERIC(17, 3) NOT NULL CHECK (total_price >= 0),
		status VARCHAR(20) NOT NULL DEFAULT 'PENDING'
			CHECK (status IN ('PENDING', 'CONFIRMED', 'CANCELLED', 'COMPLETED')),
		payment_status VARCHAR(20) NOT NULL DEFAULT 'UNPAID'
			CHECK (payment_status IN ('UNPAID', 'PAID', 'REFUNDED')),
		special_requests TEXT NOT NULL DEFAULT '',
		cancel_reason TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	// payments are removed explicitly before their booking, no cascade
	`CREATE TABLE IF NOT EXISTS payments (
		id UUID PRIMARY KEY,
		booking_id UUID NOT NULL REFERENCES bookings(id),
		amount NUMERIC(17, 3) NOT NULL CHECK (amount >= 0),
		method VARCHAR(20) NOT NULL
			CHECK (method IN ('BANK_TRANSFER', 'CREDIT_CARD', 'CASH', 'E_WALLET')),
		transaction_id VARCHAR(64) UNIQUE NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'PENDING'
			CHECK (status IN ('PENDING', 'SUCCESS', 'FAILED', 'REFUNDED')),
		paid_at TIMESTAMPTZ,
		refunded_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	// 2-decimal price * 0.7 gives 3 decimals; older schemas stored 2 and rounded
	`ALTER TABLE bookings ALTER COLUMN total_price TYPE NUMERIC(17, 3)`,
	`ALTER TABLE payments ALTER COLUMN amount TYPE NUMERIC(17, 3)`,

	// Indexes
	`CREATE INDEX IF NOT EXISTS idx_bookings_user_id ON bookings(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings(status, payment_status)`,
	`CREATE INDEX IF NOT EXISTS idx_payments_booking_id ON payments(booking_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_payments_pending_created ON payments(created_at) WHERE status = 'PENDING'`,
	`CREATE UNIQUE INDEX IF NOT EXISTS payments_one_pending_per_booking ON payments(booking_id) WHERE status = 'PENDING'`,
}

func RunMigrations(db *sql.DB) error {
	for i, migration := range Migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("failed to execute migration %d: %w", i, err)
		}
	}

	logrus.WithField("count", len(Migrations)).Info("Database migrations completed successfully")
	return nil
}
