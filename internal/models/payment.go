package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// PaymentMethod represents the instrument used for a payment attempt
type PaymentMethod string

const (
	PaymentMethodCreditCard    PaymentMethod = "credit_card"
	PaymentMethodDebitCard     PaymentMethod = "debit_card"
	PaymentMethodDigitalWallet PaymentMethod = "digital_wallet"
	PaymentMethodNetBanking    PaymentMethod = "net_banking"
	PaymentMethodUPI           PaymentMethod = "upi"
)

// ParsePaymentMethod rejects unknown payment methods at the boundary.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch PaymentMethod(strings.ToLower(s)) {
	case PaymentMethodCreditCard:
		return PaymentMethodCreditCard, nil
	case PaymentMethodDebitCard:
		return PaymentMethodDebitCard, nil
	case PaymentMethodDigitalWallet:
		return PaymentMethodDigitalWallet, nil
	case PaymentMethodNetBanking:
		return PaymentMethodNetBanking, nil
	case PaymentMethodUPI:
		return PaymentMethodUPI, nil
	default:
		return "", NewValidationError("invalid payment method: %q", s)
	}
}

// TransactionStatus represents the state of one payment attempt
type TransactionStatus string

const (
	TransactionInitiated  TransactionStatus = "initiated"
	TransactionProcessing TransactionStatus = "processing"
	TransactionSuccess    TransactionStatus = "success"
	TransactionFailed     TransactionStatus = "failed"
	TransactionCancelled  TransactionStatus = "cancelled"
	TransactionRefunded   TransactionStatus = "refunded"
)

// ParseTransactionStatus rejects unknown transaction statuses at the boundary.
func ParseTransactionStatus(s string) (TransactionStatus, error) {
	switch TransactionStatus(strings.ToLower(s)) {
	case TransactionInitiated:
		return TransactionInitiated, nil
	case TransactionProcessing:
		return TransactionProcessing, nil
	case TransactionSuccess:
		return TransactionSuccess, nil
	case TransactionFailed:
		return TransactionFailed, nil
	case TransactionCancelled:
		return TransactionCancelled, nil
	case TransactionRefunded:
		return TransactionRefunded, nil
	default:
		return "", NewValidationError("invalid transaction status: %q", s)
	}
}

// IsTerminal reports whether the attempt can no longer be processed
func (s TransactionStatus) IsTerminal() bool {
	return s == TransactionSuccess || s == TransactionFailed ||
		s == TransactionCancelled || s == TransactionRefunded
}

// JSONMap stores loosely structured gateway payloads as JSONB
type JSONMap map[string]interface{}

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, m)
}

// Payment represents one attempt to settle a booking's total through the
// payment gateway. A booking may accumulate several attempts; only a
// success attempt advances the booking to paid.
type Payment struct {
	ID                  string            `json:"id" db:"id"`
	TransactionID       string            `json:"transaction_id" db:"transaction_id"`
	BookingID           string            `json:"booking_id" db:"booking_id"`
	UserID              string            `json:"user_id" db:"user_id"`
	AmountCents         int64             `json:"amount_cents" db:"amount_cents"`
	Currency            string            `json:"currency" db:"currency"`
	Method              PaymentMethod     `json:"payment_method" db:"payment_method"`
	Status              TransactionStatus `json:"status" db:"status"`
	PaymentDetails      JSONMap           `json:"payment_details,omitempty" db:"payment_details"`
	GatewayName         string            `json:"gateway_name" db:"gateway_name"`
	GatewayResponse     JSONMap           `json:"gateway_response,omitempty" db:"gateway_response"`
	FailureReason       *string           `json:"failure_reason,omitempty" db:"failure_reason"`
	FailureCode         *string           `json:"failure_code,omitempty" db:"failure_code"`
	RefundAmountCents   *int64            `json:"refund_amount_cents,omitempty" db:"refund_amount_cents"`
	RefundTransactionID *string           `json:"refund_transaction_id,omitempty" db:"refund_transaction_id"`
	RefundedAt          *time.Time        `json:"refunded_at,omitempty" db:"refunded_at"`
	InitiatedAt         time.Time         `json:"initiated_at" db:"initiated_at"`
	CompletedAt         *time.Time        `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt           time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at" db:"updated_at"`
}

// MaskCardNumber keeps only the last four digits of a card number
func MaskCardNumber(number string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, number)
	if len(digits) < 4 {
		return "****"
	}
	return "****-****-****-" + digits[len(digits)-4:]
}

// MaskAccountNumber keeps only the last four characters of an account
// identifier
func MaskAccountNumber(number string) string {
	if len(number) < 4 {
		return "****"
	}
	return "****" + number[len(number)-4:]
}

// InitiatePaymentRequest represents the request to start a payment attempt
type InitiatePaymentRequest struct {
	BookingID     string  `json:"booking_id" binding:"required"`
	PaymentMethod string  `json:"payment_method" binding:"required"`
	CardNumber    *string `json:"card_number,omitempty"`
	AccountNumber *string `json:"account_number,omitempty"`
	WalletID      *string `json:"wallet_id,omitempty"`
}

// ProcessPaymentRequest carries the optional demo gateway scenario
type ProcessPaymentRequest struct {
	TestScenario *string `json:"test_scenario,omitempty"`
}

// RefundPaymentRequest represents a refund of a successful payment.
// A nil amount refunds the full payment.
type RefundPaymentRequest struct {
	AmountCents *int64  `json:"amount_cents,omitempty"`
	Reason      *string `json:"reason,omitempty"`
}

// GatewayResult is the outcome the payment gateway returns for one charge
type GatewayResult struct {
	Success              bool      `json:"success"`
	GatewayTransactionID string    `json:"gateway_transaction_id"`
	AuthorizationCode    string    `json:"authorization_code,omitempty"`
	ErrorCode            string    `json:"error_code,omitempty"`
	ErrorMessage         string    `json:"error_message,omitempty"`
	ProcessedAt          time.Time `json:"processed_at"`
}
