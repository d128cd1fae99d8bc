package events

import "time"

// Event types published to the booking events topic.
const (
	TypeBookingConfirmed   = "booking.confirmed"
	TypeBookingCancelled   = "booking.cancelled"
	TypeBookingReactivated = "booking.reactivated"
	TypePaymentCaptured    = "payment.captured"
	TypePaymentRefunded    = "payment.refunded"
)

// BookingEvent is the payload published for every booking and payment
// state change. The worker consumes these to send passenger notifications.
type BookingEvent struct {
	Type             string    `json:"type"`
	BookingID        string    `json:"booking_id"`
	BookingReference string    `json:"booking_reference"`
	UserID           string    `json:"user_id"`
	TripID           string    `json:"trip_id,omitempty"`
	PassengerName    string    `json:"passenger_name,omitempty"`
	PassengerPhone   string    `json:"passenger_phone,omitempty"`
	PassengerEmail   string    `json:"passenger_email,omitempty"`
	SeatNumbers      []string  `json:"seat_numbers,omitempty"`
	TotalCents       int64     `json:"total_cents,omitempty"`
	AmountCents      int64     `json:"amount_cents,omitempty"`
	TransactionID    string    `json:"transaction_id,omitempty"`
	OccurredAt       time.Time `json:"occurred_at"`
}
