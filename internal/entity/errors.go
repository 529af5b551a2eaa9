package entity

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindValidation   ErrorKind = "VALIDATION"
	KindNotFound     ErrorKind = "NOT_FOUND"
	KindForbidden    ErrorKind = "FORBIDDEN"
	KindInvalidState ErrorKind = "INVALID_STATE"
	KindConflict     ErrorKind = "CONFLICT"
)

// Error is a lifecycle failure the serving layer can classify. A kind-only
// Error (empty Message) matches every Error of that kind under errors.Is.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Message == "" {
		return t.Kind == e.Kind
	}
	return t.Kind == e.Kind && t.Message == e.Message
}

var (
	ErrValidation   = &Error{Kind: KindValidation}
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrForbidden    = &Error{Kind: KindForbidden}
	ErrInvalidState = &Error{Kind: KindInvalidState}
	ErrConflict     = &Error{Kind: KindConflict}
)

var (
	// Lookup errors
	ErrBookingNotFound = &Error{Kind: KindNotFound, Message: "booking not found"}
	ErrPaymentNotFound = &Error{Kind: KindNotFound, Message: "payment not found"}
	ErrTourNotFound    = &Error{Kind: KindNotFound, Message: "tour not found"}
	ErrUserNotFound    = &Error{Kind: KindNotFound, Message: "user not found"}

	// Booking errors
	ErrStartDatePast   = &Error{Kind: KindValidation, Message: "start date cannot be in the past"}
	ErrInvalidAdults   = &Error{Kind: KindValidation, Message: "adults must be at least 1"}
	ErrInvalidChildren = &Error{Kind: KindValidation, Message: "children cannot be negative"}
	ErrInvalidPrice    = &Error{Kind: KindValidation, Message: "tour price cannot be negative"}
	ErrBookingPaid     = &Error{Kind: KindConflict, Message: "booking is already paid"}
	ErrTourNotFinished = &Error{Kind: KindInvalidState, Message: "tour has not finished yet"}

	// ErrConcurrentUpdate is returned by storage when a conditional update
	// matched no row.
	ErrConcurrentUpdate = &Error{Kind: KindInvalidState, Message: "record was modified concurrently"}

	// Payment errors
	ErrPaymentInFlight   = &Error{Kind: KindConflict, Message: "booking already has a pending payment"}
	ErrPaymentNotPending = &Error{Kind: KindInvalidState, Message: "payment is not pending"}
	ErrPaymentNotSuccess = &Error{Kind: KindInvalidState, Message: "only a successful payment can be refunded"}

	// Access errors
	ErrNotOwner  = &Error{Kind: KindForbidden, Message: "booking belongs to another user"}
	ErrAdminOnly = &Error{Kind: KindForbidden, Message: "admin role required"}
)

func Validationf(format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func InvalidStatef(format string, args ...interface{}) error {
	return &Error{Kind: KindInvalidState, Message: fmt.Sprintf(format, args...)}
}

func Conflictf(format string, args ...interface{}) error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first Error in err's chain, or "" for
// infrastructure failures.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
