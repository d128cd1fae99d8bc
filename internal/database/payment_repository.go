package database

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/busline/ticketing-backend/internal/models"
)

// PaymentRepository handles payments database operations
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository creates a new PaymentRepository
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

const paymentColumns = `
	id, transaction_id, booking_id, user_id, amount_cents, currency,
	payment_method, status, payment_details, gateway_name, gateway_response,
	failure_reason, failure_code, refund_amount_cents, refund_transaction_id,
	refunded_at, initiated_at, completed_at, created_at, updated_at`

// GenerateTransactionID generates a unique payment transaction ID
// Format: TXN-YYYYMMDDHHMMSS-XXXXXXXX (8 char alphanumeric)
// Example: TXN-20260815143022-A1B2C3D4
func (r *PaymentRepository) GenerateTransactionID() (string, error) {
	for attempts := 0; attempts < 10; attempts++ {
		randomBytes := make([]byte, 4)
		if _, err := rand.Read(randomBytes); err != nil {
			return "", fmt.Errorf("failed to generate random bytes: %w", err)
		}
		randomStr := strings.ToUpper(hex.EncodeToString(randomBytes))

		timestampStr := time.Now().Format("20060102150405")
		txnID := fmt.Sprintf("TXN-%s-%s", timestampStr, randomStr)

		var count int
		err := r.db.Get(&count, `SELECT COUNT(*) FROM payments WHERE transaction_id = $1`, txnID)
		if err != nil {
			return "", fmt.Errorf("failed to check transaction ID uniqueness: %w", err)
		}

		if count == 0 {
			return txnID, nil
		}
	}

	return "", fmt.Errorf("failed to generate unique transaction ID after 10 attempts")
}

// Create inserts a new payment attempt in initiated state
func (r *PaymentRepository) Create(payment *models.Payment) error {
	query := `
		INSERT INTO payments (
			transaction_id, booking_id, user_id, amount_cents, currency,
			payment_method, status, payment_details, gateway_name, initiated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		RETURNING id, initiated_at, created_at, updated_at`

	err := r.db.QueryRow(query,
		payment.TransactionID, payment.BookingID, payment.UserID,
		payment.AmountCents, payment.Currency, payment.Method,
		payment.Status, payment.PaymentDetails, payment.GatewayName,
	).Scan(&payment.ID, &payment.InitiatedAt, &payment.CreatedAt, &payment.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}

	return nil
}

// GetByID retrieves a payment by ID. Returns (nil, nil) when not found.
func (r *PaymentRepository) GetByID(paymentID string) (*models.Payment, error) {
	payment := &models.Payment{}
	query := `SELECT` + paymentColumns + ` FROM payments WHERE id = $1`

	err := r.db.Get(payment, query, paymentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get payment by ID: %w", err)
	}

	return payment, nil
}

// GetByTransactionID retrieves a payment by its transaction ID. Returns
// (nil, nil) when not found.
func (r *PaymentRepository) GetByTransactionID(transactionID string) (*models.Payment, error) {
	payment := &models.Payment{}
	query := `SELECT` + paymentColumns + ` FROM payments WHERE transaction_id = $1`

	err := r.db.Get(payment, query, transactionID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get payment by transaction ID: %w", err)
	}

	return payment, nil
}

// GetByBookingID retrieves all payment attempts for a booking, newest
// first.
func (r *PaymentRepository) GetByBookingID(bookingID string) ([]models.Payment, error) {
	query := `SELECT` + paymentColumns + ` FROM payments WHERE booking_id = $1 ORDER BY initiated_at DESC`

	var payments []models.Payment
	if err := r.db.Select(&payments, query, bookingID); err != nil {
		return nil, fmt.Errorf("failed to get payments for booking: %w", err)
	}

	return payments, nil
}

// ListByUser retrieves a user's payment attempts, newest first,
// optionally filtered by status.
func (r *PaymentRepository) ListByUser(userID string, status *models.TransactionStatus, limit, offset int) ([]models.Payment, error) {
	query := `SELECT` + paymentColumns + ` FROM payments WHERE user_id = $1`
	args := []interface{}{userID}

	if status != nil {
		args = append(args, *status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}

	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY initiated_at DESC LIMIT $%d", len(args))
	args = append(args, offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	var payments []models.Payment
	if err := r.db.Select(&payments, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list payments for user: %w", err)
	}

	return payments, nil
}

// CountByUser counts a user's payment attempts, optionally filtered by
// status.
func (r *PaymentRepository) CountByUser(userID string, status *models.TransactionStatus) (int, error) {
	query := `SELECT COUNT(*) FROM payments WHERE user_id = $1`
	args := []interface{}{userID}

	if status != nil {
		args = append(args, *status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}

	var count int
	if err := r.db.Get(&count, query, args...); err != nil {
		return 0, fmt.Errorf("failed to count payments for user: %w", err)
	}

	return count, nil
}

// GetSuccessfulByBookingID retrieves the successful payment attempt for a
// booking, if any. Returns (nil, nil) when the booking has none.
func (r *PaymentRepository) GetSuccessfulByBookingID(bookingID string) (*models.Payment, error) {
	payment := &models.Payment{}
	query := `SELECT` + paymentColumns + `
		FROM payments
		WHERE booking_id = $1 AND status = 'success'
		ORDER BY completed_at DESC
		LIMIT 1`

	err := r.db.Get(payment, query, bookingID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get successful payment: %w", err)
	}

	return payment, nil
}

// MarkProcessing moves an initiated attempt to processing. Zero rows
// means the attempt is no longer in a processable state.
func (r *PaymentRepository) MarkProcessing(paymentID string) (bool, error) {
	result, err := r.db.Exec(`
		UPDATE payments
		SET status = 'processing', updated_at = NOW()
		WHERE id = $1 AND status = 'initiated'`,
		paymentID)
	if err != nil {
		return false, fmt.Errorf("failed to mark payment processing: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// MarkSuccess records a successful gateway charge on an attempt that is
// still in flight.
func (r *PaymentRepository) MarkSuccess(paymentID string, gatewayResponse models.JSONMap) (bool, error) {
	result, err := r.db.Exec(`
		UPDATE payments
		SET status = 'success',
			gateway_response = $2,
			completed_at = NOW(),
			updated_at = NOW()
		WHERE id = $1 AND status IN ('initiated', 'processing')`,
		paymentID, gatewayResponse)
	if err != nil {
		return false, fmt.Errorf("failed to mark payment success: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// MarkFailed records a failed gateway charge on an attempt that is still
// in flight. The booking itself is left to the caller.
func (r *PaymentRepository) MarkFailed(paymentID, failureReason, failureCode string, gatewayResponse models.JSONMap) (bool, error) {
	result, err := r.db.Exec(`
		UPDATE payments
		SET status = 'failed',
			failure_reason = $2,
			failure_code = $3,
			gateway_response = $4,
			completed_at = NOW(),
			updated_at = NOW()
		WHERE id = $1 AND status IN ('initiated', 'processing')`,
		paymentID, failureReason, failureCode, gatewayResponse)
	if err != nil {
		return false, fmt.Errorf("failed to mark payment failed: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// MarkRefunded records a refund against a successful attempt. Zero rows
// means the attempt was not refundable.
func (r *PaymentRepository) MarkRefunded(paymentID string, refundAmountCents int64, refundTransactionID string) (bool, error) {
	result, err := r.db.Exec(`
		UPDATE payments
		SET status = 'refunded',
			refund_amount_cents = $2,
			refund_transaction_id = $3,
			refunded_at = NOW(),
			updated_at = NOW()
		WHERE id = $1 AND status = 'success'`,
		paymentID, refundAmountCents, refundTransactionID)
	if err != nil {
		return false, fmt.Errorf("failed to mark payment refunded: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// ExpireStaleBefore cancels attempts that were initiated before the
// cutoff and never reached a terminal state. Returns how many expired.
func (r *PaymentRepository) ExpireStaleBefore(cutoff time.Time) (int64, error) {
	result, err := r.db.Exec(`
		UPDATE payments
		SET status = 'cancelled',
			failure_reason = 'Payment attempt expired',
			completed_at = NOW(),
			updated_at = NOW()
		WHERE status IN ('initiated', 'processing') AND initiated_at < $1`,
		cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to expire stale payments: %w", err)
	}

	return result.RowsAffected()
}
