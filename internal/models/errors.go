package models

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors for the booking core. Services return these (possibly
// wrapped); handlers translate them to HTTP status codes with errors.Is /
// errors.As. Each one represents a caller-fixable condition and is only
// returned when no state was mutated.
var (
	ErrTripNotBookable        = errors.New("trip is not available for booking")
	ErrTripDeparted           = errors.New("trip has already departed")
	ErrSeatUnavailable        = errors.New("some seats are not available")
	ErrInsufficientCapacity   = errors.New("not enough seats available on this trip")
	ErrPromoInvalid           = errors.New("invalid promo code")
	ErrPromoIneligible        = errors.New("promo code usage limit reached for this user")
	ErrPromoMinimumNotMet     = errors.New("minimum purchase amount not met for this promo code")
	ErrAlreadyCancelled       = errors.New("booking is already cancelled")
	ErrAlreadyCompleted       = errors.New("cannot cancel a completed booking")
	ErrBookingCancelled       = errors.New("cannot update payment for a cancelled booking")
	ErrSeatsNoLongerAvailable = errors.New("some seats are no longer available")
	ErrSeatInUse              = errors.New("seat is held by a live booking")
	ErrTripHasBookings        = errors.New("cannot delete trip with active bookings")
	ErrPromoInUse             = errors.New("cannot delete promo code that has been used")
)

// Not-found and conflict errors. Kept separate from the booking-core block
// above so handlers can map them to 404/409 without string matching.
var (
	ErrTripNotFound    = errors.New("trip not found")
	ErrSeatNotFound    = errors.New("seat not found")
	ErrBookingNotFound = errors.New("booking not found")
	ErrPromoNotFound   = errors.New("promo code not found")
	ErrPaymentNotFound = errors.New("payment not found")
	ErrUserNotFound    = errors.New("user not found")

	ErrTripNumberExists = errors.New("trip number already exists")
	ErrSeatNumberExists = errors.New("some seats already exist for this trip")
	ErrPromoCodeExists  = errors.New("promo code already exists")
	ErrEmailExists      = errors.New("email is already registered")

	ErrBookingAlreadyPaid      = errors.New("booking is already paid")
	ErrPaymentAlreadyProcessed = errors.New("payment attempt already processed")
	ErrPaymentNotRefundable    = errors.New("only successful payments can be refunded")
	ErrInvalidRefundAmount     = errors.New("invalid refund amount")
)

// Authentication errors. ErrInvalidCredentials deliberately covers both the
// unknown-email and wrong-password cases so responses do not reveal which
// accounts exist.
var (
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrAccountDisabled     = errors.New("account has been disabled")
	ErrInvalidRefreshToken = errors.New("invalid or expired refresh token")
	ErrPasswordMismatch    = errors.New("current password is incorrect")
	ErrSamePassword        = errors.New("new password must be different from the current password")
)

// ValidationError marks a caller-fixable request problem discovered inside
// a service operation. Transports report it as a bad request instead of a
// server failure.
type ValidationError struct {
	msg string
}

// NewValidationError formats a caller-facing validation error.
func NewValidationError(format string, args ...interface{}) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	return e.msg
}

// SeatUnavailableError carries the seat numbers that blocked a reservation
// so callers can surface them. Matches ErrSeatUnavailable via errors.Is.
type SeatUnavailableError struct {
	SeatNumbers []string
}

func (e *SeatUnavailableError) Error() string {
	if len(e.SeatNumbers) == 0 {
		return ErrSeatUnavailable.Error()
	}
	return fmt.Sprintf("%s: %s", ErrSeatUnavailable.Error(), strings.Join(e.SeatNumbers, ", "))
}

func (e *SeatUnavailableError) Unwrap() error {
	return ErrSeatUnavailable
}

// PromoFailureReason classifies why a promo code failed validation.
type PromoFailureReason string

const (
	PromoReasonInactive          PromoFailureReason = "inactive"
	PromoReasonNotYetValid       PromoFailureReason = "not_yet_valid"
	PromoReasonExpired           PromoFailureReason = "expired"
	PromoReasonUsageLimitReached PromoFailureReason = "usage_limit_reached"
)

// Message returns the caller-facing description for the reason.
func (r PromoFailureReason) Message() string {
	switch r {
	case PromoReasonInactive:
		return "Promo code is inactive"
	case PromoReasonNotYetValid:
		return "Promo code is not yet valid"
	case PromoReasonExpired:
		return "Promo code has expired"
	case PromoReasonUsageLimitReached:
		return "Promo code usage limit reached"
	default:
		return "Promo code is not valid"
	}
}

// PromoInvalidError reports a failed promo validation with its reason.
// Matches ErrPromoInvalid via errors.Is.
type PromoInvalidError struct {
	Reason PromoFailureReason
}

func (e *PromoInvalidError) Error() string {
	return e.Reason.Message()
}

func (e *PromoInvalidError) Unwrap() error {
	return ErrPromoInvalid
}
