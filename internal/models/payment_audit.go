package models

import "time"

// PaymentEventType represents the type of payment event being audited
type PaymentEventType string

const (
	PaymentEventInitiated       PaymentEventType = "payment_initiated"
	PaymentEventProcessing      PaymentEventType = "payment_processing"
	PaymentEventSuccess         PaymentEventType = "payment_success"
	PaymentEventFailed          PaymentEventType = "payment_failed"
	PaymentEventCancelled       PaymentEventType = "payment_cancelled"
	PaymentEventExpired         PaymentEventType = "payment_expired"
	PaymentEventRefundInitiated PaymentEventType = "refund_initiated"
	PaymentEventRefundCompleted PaymentEventType = "refund_completed"
)

// PaymentEventSource identifies where the event originated
type PaymentEventSource string

const (
	PaymentSourceUser    PaymentEventSource = "user"
	PaymentSourceGateway PaymentEventSource = "gateway"
	PaymentSourceSystem  PaymentEventSource = "system"
)

// PaymentAudit is an immutable log entry recording a payment transition.
// Rows are only ever inserted.
type PaymentAudit struct {
	ID            string             `json:"id" db:"id"`
	PaymentID     *string            `json:"payment_id,omitempty" db:"payment_id"`
	TransactionID *string            `json:"transaction_id,omitempty" db:"transaction_id"`
	BookingID     *string            `json:"booking_id,omitempty" db:"booking_id"`
	EventType     PaymentEventType   `json:"event_type" db:"event_type"`
	EventSource   PaymentEventSource `json:"event_source" db:"event_source"`
	AmountCents   *int64             `json:"amount_cents,omitempty" db:"amount_cents"`
	Currency      *string            `json:"currency,omitempty" db:"currency"`
	Details       JSONMap            `json:"details,omitempty" db:"details"`
	CreatedAt     time.Time          `json:"created_at" db:"created_at"`
}
