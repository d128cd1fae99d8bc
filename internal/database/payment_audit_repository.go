package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/busline/ticketing-backend/internal/models"
)

// PaymentAuditRepository persists the append-only money trail. Every gateway
// interaction lands here whether it succeeded or not.
type PaymentAuditRepository struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewPaymentAuditRepository creates a new payment audit repository
func NewPaymentAuditRepository(db *sqlx.DB, logger *logrus.Logger) *PaymentAuditRepository {
	return &PaymentAuditRepository{db: db, logger: logger}
}

// Log creates a new payment audit entry
// This should NEVER fail silently - payment events must be logged
func (r *PaymentAuditRepository) Log(ctx context.Context, audit *models.PaymentAudit) error {
	if audit == nil {
		return fmt.Errorf("audit entry cannot be nil")
	}
	if audit.ID == "" {
		audit.ID = uuid.New().String()
	}
	if audit.CreatedAt.IsZero() {
		audit.CreatedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payment_audits (
			id, payment_id, transaction_id, booking_id, event_type,
			event_source, amount_cents, currency, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		audit.ID, audit.PaymentID, audit.TransactionID, audit.BookingID, audit.EventType,
		audit.EventSource, audit.AmountCents, audit.Currency, audit.Details, audit.CreatedAt,
	)
	if err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{
			"event_type":     audit.EventType,
			"transaction_id": audit.TransactionID,
		}).Error("CRITICAL: Failed to log payment audit - THIS SHOULD NEVER HAPPEN")
		return fmt.Errorf("failed to log payment audit: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"audit_id":       audit.ID,
		"event_type":     audit.EventType,
		"transaction_id": audit.TransactionID,
	}).Debug("Payment audit logged")

	return nil
}

// GetByPaymentID returns a payment's audit entries in the order they
// happened.
func (r *PaymentAuditRepository) GetByPaymentID(ctx context.Context, paymentID string) ([]*models.PaymentAudit, error) {
	var audits []*models.PaymentAudit
	err := r.db.SelectContext(ctx, &audits, `
		SELECT * FROM payment_audits
		WHERE payment_id = $1
		ORDER BY created_at ASC`,
		paymentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get audits by payment ID: %w", err)
	}
	return audits, nil
}
