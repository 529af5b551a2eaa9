package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "PENDING"
	BookingStatusConfirmed BookingStatus = "CONFIRMED"
	BookingStatusCancelled BookingStatus = "CANCELLED"
	BookingStatusCompleted BookingStatus = "COMPLETED"
)

// bookingTransitions is the natural booking state machine. Admin overrides
// do not consult it.
var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusPending:   {BookingStatusConfirmed, BookingStatusCancelled},
	BookingStatusConfirmed: {BookingStatusCompleted, BookingStatusCancelled},
	BookingStatusCancelled: {},
	BookingStatusCompleted: {},
}

func (s BookingStatus) IsValid() bool {
	_, ok := bookingTransitions[s]
	return ok
}

func (s BookingStatus) CanTransitionTo(target BookingStatus) bool {
	for _, t := range bookingTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

func (s BookingStatus) IsTerminal() bool {
	return len(bookingTransitions[s]) == 0
}

// ParseBookingStatus validates a wire value.
func ParseBookingStatus(s string) (BookingStatus, error) {
	status := BookingStatus(s)
	if !status.IsValid() {
		return "", Validationf("invalid booking status: %q", s)
	}
	return status, nil
}

type BookingPaymentStatus string

const (
	PaymentStatusUnpaid   BookingPaymentStatus = "UNPAID"
	PaymentStatusPaid     BookingPaymentStatus = "PAID"
	PaymentStatusRefunded BookingPaymentStatus = "REFUNDED"
)

func (s BookingPaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusUnpaid, PaymentStatusPaid, PaymentStatusRefunded:
		return true
	}
	return false
}

func ParseBookingPaymentStatus(s string) (BookingPaymentStatus, error) {
	status := BookingPaymentStatus(s)
	if !status.IsValid() {
		return "", Validationf("invalid payment status: %q", s)
	}
	return status, nil
}

type Booking struct {
	ID              string               `json:"id" db:"id"`
	UserID          string               `json:"userId" db:"user_id"`
	TourID          string               `json:"tourId" db:"tour_id"`
	StartDate       Date                 `json:"startDate" db:"start_date"`
	Adults          int                  `json:"adults" db:"adults"`
	Children        int                  `json:"children" db:"children"`
	TotalPrice      decimal.Decimal      `json:"totalPrice" db:"total_price"`
	Status          BookingStatus        `json:"status" db:"status"`
	PaymentStatus   BookingPaymentStatus `json:"paymentStatus" db:"payment_status"`
	SpecialRequests string               `json:"specialRequests,omitempty" db:"special_requests"`
	CancelReason    string               `json:"cancelReason,omitempty" db:"cancel_reason"`
	CreatedAt       time.Time            `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time            `json:"updatedAt" db:"updated_at"`
}

// EndDate is the last day of the tour, startDate + durationDays.
func (b *Booking) EndDate(durationDays int) time.Time {
	return b.StartDate.AddDate(0, 0, durationDays)
}

// BookingDetails is a booking with its nested tour, owner and payment
// history, newest payment first.
type BookingDetails struct {
	Booking
	Tour     *Tour      `json:"tour,omitempty"`
	User     *User      `json:"user,omitempty"`
	Payments []*Payment `json:"payments"`
}

// BookingFilter narrows admin listings. Zero values mean "any".
type BookingFilter struct {
	UserID        string
	Status        BookingStatus
	PaymentStatus BookingPaymentStatus
	Limit         int
	Offset        int
}

// BookingTransition is one conditional status change. Empty From means any
// current status; PaymentIs / PaymentIsNot add predicates on paymentStatus.
type BookingTransition struct {
	BookingID    string
	From         []BookingStatus
	To           BookingStatus
	PaymentIs    BookingPaymentStatus
	PaymentIsNot BookingPaymentStatus
	CancelReason string
	At           time.Time
}
