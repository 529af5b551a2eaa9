package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "PENDING"
	PaymentSuccess  PaymentStatus = "SUCCESS"
	PaymentFailed   PaymentStatus = "FAILED"
	PaymentRefunded PaymentStatus = "REFUNDED"
)

// SUCCESS is not terminal: a refund may follow it.
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending:  {PaymentSuccess, PaymentFailed},
	PaymentSuccess:  {PaymentRefunded},
	PaymentFailed:   {},
	PaymentRefunded: {},
}

func (s PaymentStatus) IsValid() bool {
	_, ok := paymentTransitions[s]
	return ok
}

func (s PaymentStatus) CanTransitionTo(target PaymentStatus) bool {
	for _, t := range paymentTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

func (s PaymentStatus) IsTerminal() bool {
	return len(paymentTransitions[s]) == 0
}

type PaymentMethod string

const (
	MethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	MethodCreditCard   PaymentMethod = "CREDIT_CARD"
	MethodCash         PaymentMethod = "CASH"
	MethodEWallet      PaymentMethod = "E_WALLET"
)

func (m PaymentMethod) IsValid() bool {
	switch m {
	case MethodBankTransfer, MethodCreditCard, MethodCash, MethodEWallet:
		return true
	}
	return false
}

func ParsePaymentMethod(s string) (PaymentMethod, error) {
	m := PaymentMethod(s)
	if !m.IsValid() {
		return "", Validationf("invalid payment method: %q", s)
	}
	return m, nil
}

type Payment struct {
	ID            string          `json:"id" db:"id"`
	BookingID     string          `json:"bookingId" db:"booking_id"`
	Amount        decimal.Decimal `json:"amount" db:"amount"`
	Method        PaymentMethod   `json:"method" db:"method"`
	TransactionID string          `json:"transactionId" db:"transaction_id"`
	Status        PaymentStatus   `json:"status" db:"status"`
	PaidAt        *time.Time      `json:"paidAt" db:"paid_at"`
	RefundedAt    *time.Time      `json:"refundedAt,omitempty" db:"refunded_at"`
	CreatedAt     time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time       `json:"updatedAt" db:"updated_at"`
}

// PaymentTransition describes one conditional status change. At is written
// to paid_at for SUCCESS and to refunded_at for REFUNDED.
type PaymentTransition struct {
	PaymentID string
	From      PaymentStatus
	To        PaymentStatus
	At        time.Time
}
