package entity

import "time"

type EventName string

const (
	EventBookingCreated                 EventName = "booking.created"
	EventBookingConfirmed               EventName = "booking.confirmed"
	EventBookingCancelled               EventName = "booking.cancelled"
	EventBookingCompleted               EventName = "booking.completed"
	EventBookingDeleted                 EventName = "booking.deleted"
	EventBookingStatusOverridden        EventName = "booking.status_overridden"
	EventBookingPaymentStatusOverridden EventName = "booking.payment_status_overridden"
	EventPaymentCreated                 EventName = "payment.created"
	EventPaymentConfirmed               EventName = "payment.confirmed"
	EventPaymentCancelled               EventName = "payment.cancelled"
	EventPaymentRefunded                EventName = "payment.refunded"
)

// LifecycleEvent is emitted after a transition has been committed.
type LifecycleEvent struct {
	Name          EventName            `json:"event"`
	BookingID     string               `json:"booking_id"`
	PaymentID     string               `json:"payment_id,omitempty"`
	UserID        string               `json:"user_id"`
	ActorID       string               `json:"actor_id"`
	Status        BookingStatus        `json:"status,omitempty"`
	PaymentStatus BookingPaymentStatus `json:"payment_status,omitempty"`
	Amount        string               `json:"amount,omitempty"`
	Reason        string               `json:"reason,omitempty"`
	OccurredAt    time.Time            `json:"occurred_at"`
}

// Notifiable reports whether ops should be told about the event.
func (e EventName) Notifiable() bool {
	switch e {
	case EventPaymentConfirmed, EventPaymentRefunded, EventBookingCancelled:
		return true
	}
	return false
}
