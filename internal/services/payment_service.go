package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/busline/ticketing-backend/internal/config"
	"github.com/busline/ticketing-backend/internal/database"
	"github.com/busline/ticketing-backend/internal/events"
	"github.com/busline/ticketing-backend/internal/models"
)

// PaymentService owns the payment attempt lifecycle: initiation, demo
// gateway processing, refunds, and the bridge that projects gateway
// outcomes onto the booking's payment status. A booking may accumulate
// any number of failed attempts; only a success attempt marks it paid.
type PaymentService struct {
	payments *database.PaymentRepository
	bookings *database.BookingRepository
	audit    *database.PaymentAuditRepository
	gateway  *DemoGateway
	producer *events.Producer
	config   *config.PaymentConfig
	logger   *logrus.Logger
}

// NewPaymentService creates a new PaymentService
func NewPaymentService(
	payments *database.PaymentRepository,
	bookings *database.BookingRepository,
	audit *database.PaymentAuditRepository,
	gateway *DemoGateway,
	producer *events.Producer,
	cfg *config.PaymentConfig,
	logger *logrus.Logger,
) *PaymentService {
	return &PaymentService{
		payments: payments,
		bookings: bookings,
		audit:    audit,
		gateway:  gateway,
		producer: producer,
		config:   cfg,
		logger:   logger,
	}
}

// ============================================================================
// INITIATION
// ============================================================================

// InitiatePayment opens a payment attempt for a booking. The booking
// must belong to the caller, must not be cancelled, and must not already
// be paid. Instrument details are masked before they are stored.
func (s *PaymentService) InitiatePayment(ctx context.Context, userID string, req *models.InitiatePaymentRequest) (*models.Payment, error) {
	method, err := models.ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		return nil, err
	}

	// 1. Load the booking and check it can take a payment
	booking, err := s.bookings.GetByID(req.BookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, models.ErrBookingNotFound
	}
	if booking.UserID != userID {
		return nil, ErrForbidden
	}
	if booking.Status == models.BookingStatusCancelled {
		return nil, models.ErrBookingCancelled
	}
	if booking.PaymentStatus == models.PaymentStatusPaid {
		return nil, models.ErrBookingAlreadyPaid
	}

	// 2. Create the attempt in initiated state
	transactionID, err := s.payments.GenerateTransactionID()
	if err != nil {
		return nil, err
	}

	payment := &models.Payment{
		TransactionID:  transactionID,
		BookingID:      booking.ID,
		UserID:         userID,
		AmountCents:    booking.TotalCents,
		Currency:       s.config.Currency,
		Method:         method,
		Status:         models.TransactionInitiated,
		PaymentDetails: maskedDetails(method, req),
		GatewayName:    s.config.GatewayName,
	}

	if err := s.payments.Create(payment); err != nil {
		return nil, err
	}

	s.logPaymentEvent(ctx, payment, models.PaymentEventInitiated, models.PaymentSourceUser, models.JSONMap{
		"booking_reference": booking.BookingReference,
		"payment_method":    string(method),
	})

	s.logger.WithFields(logrus.Fields{
		"transaction_id":    payment.TransactionID,
		"booking_reference": booking.BookingReference,
		"amount_cents":      payment.AmountCents,
		"payment_method":    method,
	}).Info("Payment initiated")

	return payment, nil
}

// maskedDetails keeps only safe identifiers of the instrument. Raw card
// and account numbers never reach the database.
func maskedDetails(method models.PaymentMethod, req *models.InitiatePaymentRequest) models.JSONMap {
	details := models.JSONMap{"payment_method": string(method)}

	if req.CardNumber != nil && *req.CardNumber != "" {
		details["card_number"] = models.MaskCardNumber(*req.CardNumber)
	}
	if req.AccountNumber != nil && *req.AccountNumber != "" {
		details["account_number"] = models.MaskAccountNumber(*req.AccountNumber)
	}
	if req.WalletID != nil && *req.WalletID != "" {
		details["wallet_id"] = *req.WalletID
	}

	return details
}

// ============================================================================
// PROCESSING
// ============================================================================

// ProcessPayment runs an initiated attempt through the demo gateway and
// applies the outcome. Success marks the attempt and flips the booking
// to paid; failure is recorded on the attempt only and the booking is
// left untouched. The booking flip is idempotent, but a booking that was
// cancelled in the meantime refuses the money.
func (s *PaymentService) ProcessPayment(ctx context.Context, userID, paymentID string, req *models.ProcessPaymentRequest) (*models.Payment, *models.GatewayResult, error) {
	payment, err := s.payments.GetByID(paymentID)
	if err != nil {
		return nil, nil, err
	}
	if payment == nil {
		return nil, nil, models.ErrPaymentNotFound
	}
	if payment.UserID != userID {
		return nil, nil, ErrForbidden
	}
	if payment.Status.IsTerminal() {
		return nil, nil, fmt.Errorf("%w: attempt is %s", models.ErrPaymentAlreadyProcessed, payment.Status)
	}

	// 1. Claim the attempt. An initiated attempt must flip to processing;
	// losing that race reads the same as an already-processed attempt. An
	// attempt found in processing is picked back up as a retry.
	if payment.Status == models.TransactionInitiated {
		ok, err := s.payments.MarkProcessing(payment.ID)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			current, getErr := s.payments.GetByID(paymentID)
			if getErr != nil {
				return nil, nil, getErr
			}
			if current == nil || current.Status.IsTerminal() {
				return nil, nil, fmt.Errorf("%w: attempt is no longer processable", models.ErrPaymentAlreadyProcessed)
			}
			payment = current
		}
	}

	s.logPaymentEvent(ctx, payment, models.PaymentEventProcessing, models.PaymentSourceUser, nil)

	// 2. Charge through the gateway
	var scenario *string
	if req != nil {
		scenario = req.TestScenario
	}
	result := s.gateway.Charge(payment, scenario)
	response := gatewayResponseMap(s.gateway.Name(), payment, result)

	// 3. Record the verdict on the attempt
	if !result.Success {
		if _, err := s.payments.MarkFailed(payment.ID, result.ErrorMessage, result.ErrorCode, response); err != nil {
			return nil, nil, err
		}
		s.logPaymentEvent(ctx, payment, models.PaymentEventFailed, models.PaymentSourceGateway, models.JSONMap{
			"error_code":    result.ErrorCode,
			"error_message": result.ErrorMessage,
		})

		s.logger.WithFields(logrus.Fields{
			"transaction_id": payment.TransactionID,
			"booking_id":     payment.BookingID,
			"error_code":     result.ErrorCode,
		}).Warn("Payment failed at gateway")

		return s.reload(paymentID, payment), result, nil
	}

	marked, err := s.payments.MarkSuccess(payment.ID, response)
	if err != nil {
		return nil, nil, err
	}
	if !marked {
		return nil, nil, fmt.Errorf("%w: attempt settled concurrently", models.ErrPaymentAlreadyProcessed)
	}

	s.logPaymentEvent(ctx, payment, models.PaymentEventSuccess, models.PaymentSourceGateway, models.JSONMap{
		"authorization_code":     result.AuthorizationCode,
		"gateway_transaction_id": result.GatewayTransactionID,
	})

	// 4. Bridge the success onto the booking. Re-confirming an already
	// paid booking is a no-op; a cancelled booking fails the operation
	// even though the gateway took the money, so the caller can refund.
	if err := s.bookings.MarkPaid(payment.BookingID); err != nil {
		if errors.Is(err, models.ErrBookingCancelled) {
			s.logger.WithFields(logrus.Fields{
				"transaction_id": payment.TransactionID,
				"booking_id":     payment.BookingID,
			}).Error("Gateway charge succeeded for a cancelled booking")
			return s.reload(paymentID, payment), result, err
		}
		return nil, nil, err
	}

	s.publishPaymentEvent(ctx, events.TypePaymentCaptured, payment)

	s.logger.WithFields(logrus.Fields{
		"transaction_id": payment.TransactionID,
		"booking_id":     payment.BookingID,
		"amount_cents":   payment.AmountCents,
	}).Info("Payment captured and booking marked paid")

	return s.reload(paymentID, payment), result, nil
}

// gatewayResponseMap renders the gateway verdict in the shape stored on
// the attempt record.
func gatewayResponseMap(gatewayName string, payment *models.Payment, result *models.GatewayResult) models.JSONMap {
	response := models.JSONMap{
		"gateway":                gatewayName,
		"gateway_transaction_id": result.GatewayTransactionID,
		"amount_cents":           payment.AmountCents,
		"currency":               payment.Currency,
		"payment_method":         string(payment.Method),
		"processed_at":           result.ProcessedAt.Format(time.RFC3339),
		"demo_notice":            "This is a simulated transaction. No real money was processed.",
	}

	if result.Success {
		response["status"] = "success"
		response["authorization_code"] = result.AuthorizationCode
		response["message"] = "Payment processed successfully (DEMO)"
	} else {
		response["status"] = "failed"
		response["error_code"] = result.ErrorCode
		response["message"] = result.ErrorMessage
	}

	return response
}

// ============================================================================
// REFUNDS
// ============================================================================

// RefundPayment refunds a successful attempt, partially or in full, and
// flips the booking's payment status to refunded. Refunds are independent
// of booking status: a still-confirmed booking can be refunded without
// being cancelled.
func (s *PaymentService) RefundPayment(ctx context.Context, userID, paymentID string, req *models.RefundPaymentRequest) (*models.Payment, error) {
	payment, err := s.payments.GetByID(paymentID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, models.ErrPaymentNotFound
	}
	if payment.UserID != userID {
		return nil, ErrForbidden
	}
	if payment.Status != models.TransactionSuccess {
		return nil, fmt.Errorf("%w: attempt is %s", models.ErrPaymentNotRefundable, payment.Status)
	}

	// 1. Resolve and validate the amount. Nil means a full refund.
	amount := payment.AmountCents
	if req != nil && req.AmountCents != nil {
		amount = *req.AmountCents
	}
	if amount <= 0 || amount > payment.AmountCents {
		return nil, models.ErrInvalidRefundAmount
	}

	reason := "Customer requested refund"
	if req != nil && req.Reason != nil && *req.Reason != "" {
		reason = *req.Reason
	}

	s.logPaymentEvent(ctx, payment, models.PaymentEventRefundInitiated, models.PaymentSourceUser, models.JSONMap{
		"refund_amount_cents": amount,
		"reason":              reason,
	})

	// 2. Run the refund through the gateway
	refundTransactionID, err := s.gateway.Refund(payment, amount)
	if err != nil {
		return nil, err
	}

	// 3. Record it on the attempt. Zero rows means a concurrent refund
	// won, which reads the same as refunding a non-success attempt.
	marked, err := s.payments.MarkRefunded(payment.ID, amount, refundTransactionID)
	if err != nil {
		return nil, err
	}
	if !marked {
		return nil, fmt.Errorf("%w: attempt settled concurrently", models.ErrPaymentNotRefundable)
	}

	// 4. Project onto the booking
	if err := s.bookings.MarkRefunded(payment.BookingID); err != nil {
		return nil, err
	}

	s.logPaymentEvent(ctx, payment, models.PaymentEventRefundCompleted, models.PaymentSourceGateway, models.JSONMap{
		"refund_transaction_id": refundTransactionID,
		"refund_amount_cents":   amount,
		"reason":                reason,
	})

	event := events.BookingEvent{
		Type:          events.TypePaymentRefunded,
		BookingID:     payment.BookingID,
		UserID:        payment.UserID,
		AmountCents:   amount,
		TransactionID: refundTransactionID,
	}
	if err := s.producer.Publish(ctx, event); err != nil {
		s.logger.WithError(err).Warn("Failed to publish payment refunded event")
	}

	s.logger.WithFields(logrus.Fields{
		"transaction_id":        payment.TransactionID,
		"refund_transaction_id": refundTransactionID,
		"refund_amount_cents":   amount,
	}).Info("Payment refunded")

	return s.reload(paymentID, payment), nil
}

// ============================================================================
// QUERIES
// ============================================================================

// GetPayment retrieves one payment attempt owned by the caller.
func (s *PaymentService) GetPayment(userID, paymentID string) (*models.Payment, error) {
	payment, err := s.payments.GetByID(paymentID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, models.ErrPaymentNotFound
	}
	if payment.UserID != userID {
		return nil, ErrForbidden
	}
	return payment, nil
}

// GetByTransactionID retrieves one payment attempt by its transaction ID.
// Intended for operator tooling; no ownership check.
func (s *PaymentService) GetByTransactionID(transactionID string) (*models.Payment, error) {
	payment, err := s.payments.GetByTransactionID(transactionID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, models.ErrPaymentNotFound
	}
	return payment, nil
}

// ListBookingPayments retrieves every payment attempt for a booking the
// caller owns, newest first.
func (s *PaymentService) ListBookingPayments(userID, bookingID string) (*models.Booking, []models.Payment, error) {
	booking, err := s.bookings.GetByID(bookingID)
	if err != nil {
		return nil, nil, err
	}
	if booking == nil {
		return nil, nil, models.ErrBookingNotFound
	}
	if booking.UserID != userID {
		return nil, nil, ErrForbidden
	}

	payments, err := s.payments.GetByBookingID(bookingID)
	if err != nil {
		return nil, nil, err
	}
	return booking, payments, nil
}

// History retrieves the caller's payment attempts with the total count
// for pagination.
func (s *PaymentService) History(userID string, status *models.TransactionStatus, limit, offset int) ([]models.Payment, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	total, err := s.payments.CountByUser(userID, status)
	if err != nil {
		return nil, 0, err
	}

	payments, err := s.payments.ListByUser(userID, status, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return payments, total, nil
}

// AuditTrail retrieves the audit entries recorded for one payment the
// caller owns.
func (s *PaymentService) AuditTrail(ctx context.Context, userID, paymentID string) ([]*models.PaymentAudit, error) {
	payment, err := s.GetPayment(userID, paymentID)
	if err != nil {
		return nil, err
	}
	return s.audit.GetByPaymentID(ctx, payment.ID)
}

// ============================================================================
// MAINTENANCE
// ============================================================================

// ExpireStaleAttempts cancels attempts that never finished within the
// configured lifetime. Run from cron.
func (s *PaymentService) ExpireStaleAttempts(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-s.config.AttemptLifetime)

	expired, err := s.payments.ExpireStaleBefore(cutoff)
	if err != nil {
		return 0, err
	}

	if expired > 0 {
		s.logPaymentEvent(ctx, nil, models.PaymentEventExpired, models.PaymentSourceSystem, models.JSONMap{
			"expired_count": expired,
			"cutoff":        cutoff.Format(time.RFC3339),
		})
		s.logger.WithField("count", expired).Info("Expired stale payment attempts")
	}

	return expired, nil
}

// ============================================================================
// HELPERS
// ============================================================================

// logPaymentEvent writes an audit entry. Audit failures are logged inside
// the repository and never fail the payment operation.
func (s *PaymentService) logPaymentEvent(ctx context.Context, payment *models.Payment, eventType models.PaymentEventType, source models.PaymentEventSource, details models.JSONMap) {
	entry := &models.PaymentAudit{
		EventType:   eventType,
		EventSource: source,
		Details:     details,
	}
	if payment != nil {
		entry.PaymentID = &payment.ID
		entry.TransactionID = &payment.TransactionID
		entry.BookingID = &payment.BookingID
		entry.AmountCents = &payment.AmountCents
		entry.Currency = &payment.Currency
	}

	_ = s.audit.Log(ctx, entry)
}

// publishPaymentEvent emits a payment event keyed by the booking. Event
// delivery is best effort and never fails the payment.
func (s *PaymentService) publishPaymentEvent(ctx context.Context, eventType string, payment *models.Payment) {
	booking, err := s.bookings.GetByID(payment.BookingID)
	if err != nil || booking == nil {
		s.logger.WithField("booking_id", payment.BookingID).Warn("Skipping payment event, booking unavailable")
		return
	}

	event := events.BookingEvent{
		Type:             eventType,
		BookingID:        booking.ID,
		BookingReference: booking.BookingReference,
		UserID:           payment.UserID,
		TripID:           booking.TripID,
		AmountCents:      payment.AmountCents,
		TransactionID:    payment.TransactionID,
	}
	if err := s.producer.Publish(ctx, event); err != nil {
		s.logger.WithError(err).Warn("Failed to publish payment event")
	}
}

// reload refreshes the attempt after a write, falling back to the copy in
// hand when the read fails.
func (s *PaymentService) reload(paymentID string, fallback *models.Payment) *models.Payment {
	current, err := s.payments.GetByID(paymentID)
	if err != nil || current == nil {
		return fallback
	}
	return current
}
