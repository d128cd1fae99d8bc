package models

import (
	"strings"
	"time"
)

// BookingStatus represents the lifecycle status of a booking
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
	BookingStatusCompleted BookingStatus = "completed"
)

// ParseBookingStatus rejects unknown status values at the boundary.
func ParseBookingStatus(s string) (BookingStatus, error) {
	switch BookingStatus(strings.ToLower(s)) {
	case BookingStatusPending:
		return BookingStatusPending, nil
	case BookingStatusConfirmed:
		return BookingStatusConfirmed, nil
	case BookingStatusCancelled:
		return BookingStatusCancelled, nil
	case BookingStatusCompleted:
		return BookingStatusCompleted, nil
	default:
		return "", NewValidationError("invalid booking status: %q", s)
	}
}

// PaymentStatus represents the payment status of a booking
type PaymentStatus string

const (
	PaymentStatusUnpaid   PaymentStatus = "unpaid"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusRefunded PaymentStatus = "refunded"
	PaymentStatusFailed   PaymentStatus = "failed"
)

// ParsePaymentStatus rejects unknown payment states at the boundary.
func ParsePaymentStatus(s string) (PaymentStatus, error) {
	switch PaymentStatus(strings.ToLower(s)) {
	case PaymentStatusUnpaid:
		return PaymentStatusUnpaid, nil
	case PaymentStatusPaid:
		return PaymentStatusPaid, nil
	case PaymentStatusRefunded:
		return PaymentStatusRefunded, nil
	case PaymentStatusFailed:
		return PaymentStatusFailed, nil
	default:
		return "", NewValidationError("invalid payment status: %q", s)
	}
}

// Booking represents a reservation of seats on one trip for one customer
type Booking struct {
	ID               string        `json:"id" db:"id"`
	BookingReference string        `json:"booking_reference" db:"booking_reference"`
	UserID           string        `json:"user_id" db:"user_id"`
	TripID           string        `json:"trip_id" db:"trip_id"`
	PromoCodeID      *string       `json:"promo_code_id,omitempty" db:"promo_code_id"`
	PassengerName    string        `json:"passenger_name" db:"passenger_name"`
	PassengerEmail   string        `json:"passenger_email" db:"passenger_email"`
	PassengerPhone   string        `json:"passenger_phone" db:"passenger_phone"`
	NumSeats         int           `json:"num_seats" db:"num_seats"`
	SubtotalCents    int64         `json:"subtotal_cents" db:"subtotal_cents"`
	DiscountCents    int64         `json:"discount_cents" db:"discount_cents"`
	TotalCents       int64         `json:"total_cents" db:"total_cents"`
	Status           BookingStatus `json:"status" db:"status"`
	PaymentStatus    PaymentStatus `json:"payment_status" db:"payment_status"`
	SpecialRequests  *string       `json:"special_requests,omitempty" db:"special_requests"`
	CreatedAt        time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at" db:"updated_at"`
}

// CanBeCancelled checks if the booking can be cancelled
func (b *Booking) CanBeCancelled() bool {
	return b.Status == BookingStatusPending || b.Status == BookingStatusConfirmed
}

// IsActive reports whether the booking currently holds its seats
func (b *Booking) IsActive() bool {
	return b.Status != BookingStatusCancelled
}

// IsPaid checks if the booking has been paid for
func (b *Booking) IsPaid() bool {
	return b.PaymentStatus == PaymentStatusPaid
}

// CanTransitionTo reports whether a status change is allowed. Leaving
// cancelled is a re-activation and carries extra validation in the
// booking service.
func (b *Booking) CanTransitionTo(next BookingStatus) bool {
	if b.Status == next {
		return false
	}
	switch b.Status {
	case BookingStatusPending:
		return next == BookingStatusConfirmed || next == BookingStatusCancelled
	case BookingStatusConfirmed:
		return next == BookingStatusCancelled || next == BookingStatusCompleted
	case BookingStatusCancelled:
		return next == BookingStatusPending || next == BookingStatusConfirmed
	default:
		return false
	}
}

// BookingSeat pairs a booked seat with the price charged for it
type BookingSeat struct {
	ID             string    `json:"id" db:"id"`
	BookingID      string    `json:"booking_id" db:"booking_id"`
	SeatID         string    `json:"seat_id" db:"seat_id"`
	SeatNumber     string    `json:"seat_number" db:"seat_number"`
	SeatClass      SeatClass `json:"seat_class" db:"seat_class"`
	SeatPriceCents int64     `json:"seat_price_cents" db:"seat_price_cents"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// CreateBookingRequest represents the request to create a booking
type CreateBookingRequest struct {
	TripID          string   `json:"trip_id" binding:"required"`
	SeatIDs         []string `json:"seat_ids" binding:"required,min=1"`
	PassengerName   string   `json:"passenger_name" binding:"required"`
	PassengerEmail  string   `json:"passenger_email" binding:"required"`
	PassengerPhone  string   `json:"passenger_phone" binding:"required"`
	PromoCode       *string  `json:"promo_code,omitempty"`
	SpecialRequests *string  `json:"special_requests,omitempty"`
}

// Validate validates the booking request fields gin bindings cannot cover
func (r *CreateBookingRequest) Validate() error {
	seen := make(map[string]bool, len(r.SeatIDs))
	for _, id := range r.SeatIDs {
		if seen[id] {
			return NewValidationError("duplicate seat IDs are not allowed")
		}
		seen[id] = true
	}

	r.PassengerName = strings.TrimSpace(r.PassengerName)
	if len(r.PassengerName) < 2 || len(r.PassengerName) > 200 {
		return NewValidationError("passenger name must be between 2 and 200 characters")
	}
	if r.PromoCode != nil {
		code := strings.ToUpper(strings.TrimSpace(*r.PromoCode))
		if code == "" {
			r.PromoCode = nil
		} else {
			r.PromoCode = &code
		}
	}
	return nil
}

// UpdateBookingStatusRequest represents an administrative status change
type UpdateBookingStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdatePaymentStatusRequest represents a payment status change
type UpdatePaymentStatusRequest struct {
	PaymentStatus string `json:"payment_status" binding:"required"`
}

// BookingFilter holds the admin booking list filters
type BookingFilter struct {
	Status        *BookingStatus
	PaymentStatus *PaymentStatus
	UserID        *string
	TripID        *string
	Limit         int
	Offset        int
}

// FareQuoteRequest represents a read-only fare calculation request
type FareQuoteRequest struct {
	TripID    string   `json:"trip_id" binding:"required"`
	SeatIDs   []string `json:"seat_ids" binding:"required,min=1"`
	PromoCode *string  `json:"promo_code,omitempty"`
}

// Validate normalizes the quote request the same way a booking request is
func (r *FareQuoteRequest) Validate() error {
	seen := make(map[string]bool, len(r.SeatIDs))
	for _, id := range r.SeatIDs {
		if seen[id] {
			return NewValidationError("duplicate seat IDs are not allowed")
		}
		seen[id] = true
	}
	if r.PromoCode != nil {
		code := strings.ToUpper(strings.TrimSpace(*r.PromoCode))
		if code == "" {
			r.PromoCode = nil
		} else {
			r.PromoCode = &code
		}
	}
	return nil
}

// FareQuote is the breakdown returned by the fare calculator
type FareQuote struct {
	Trip          *Trip           `json:"trip"`
	Seats         []SeatQuoteLine `json:"seats"`
	NumSeats      int             `json:"num_seats"`
	SubtotalCents int64           `json:"subtotal_cents"`
	DiscountCents int64           `json:"discount_cents"`
	TotalCents    int64           `json:"total_cents"`
	PromoCode     *PromoCode      `json:"promo_code,omitempty"`
}

// SeatQuoteLine is one seat's contribution to a fare quote
type SeatQuoteLine struct {
	SeatID     string    `json:"seat_id"`
	SeatNumber string    `json:"seat_number"`
	SeatClass  SeatClass `json:"seat_class"`
	PriceCents int64     `json:"price_cents"`
}
