package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tour is owned by the catalog; bookings only read price and duration.
type Tour struct {
	ID           string          `json:"id" db:"id"`
	Title        string          `json:"title" db:"title"`
	Price        decimal.Decimal `json:"price" db:"price"`
	DurationDays int             `json:"durationDays" db:"duration_days"`
	CreatedAt    time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time       `json:"updatedAt" db:"updated_at"`
}
