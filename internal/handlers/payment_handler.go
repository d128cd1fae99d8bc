package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/busline/ticketing-backend/internal/middleware"
	"github.com/busline/ticketing-backend/internal/models"
	"github.com/busline/ticketing-backend/internal/services"
)

// PaymentHandler exposes the payment attempt lifecycle: initiate an
// attempt against a booking, push it through the gateway, refund it,
// and read back attempts and their audit trail.
type PaymentHandler struct {
	paymentService *services.PaymentService
	logger         *logrus.Logger
}

func NewPaymentHandler(paymentService *services.PaymentService, logger *logrus.Logger) *PaymentHandler {
	return &PaymentHandler{paymentService: paymentService, logger: logger}
}

// InitiatePayment creates a pending payment attempt for one of the
// caller's bookings.
// POST /api/v1/payments
func (h *PaymentHandler) InitiatePayment(c *gin.Context) {
	userCtx, ok := middleware.GetUserContext(c)
	if !ok {
		respondUnauthorized(c)
		return
	}

	var req models.InitiatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, "Invalid request body")
		return
	}

	payment, err := h.paymentService.InitiatePayment(c.Request.Context(), userCtx.UserID, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Payment initiated",
		"payment": payment,
	})
}

// ProcessPayment runs a pending attempt through the gateway. A gateway
// decline is a successful request: the verdict comes back in the
// gateway_result payload, not as an HTTP error.
// POST /api/v1/payments/:id/process
func (h *PaymentHandler) ProcessPayment(c *gin.Context) {
	userCtx, ok := middleware.GetUserContext(c)
	if !ok {
		respondUnauthorized(c)
		return
	}

	var req models.ProcessPaymentRequest
	// An empty body processes the attempt with the gateway defaults.
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, "Invalid request body")
			return
		}
	}

	payment, result, err := h.paymentService.ProcessPayment(c.Request.Context(), userCtx.UserID, c.Param("id"), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	message := "Payment successful"
	if !result.Success {
		message = "Payment declined by gateway"
	}

	c.JSON(http.StatusOK, gin.H{
		"message":        message,
		"payment":        payment,
		"gateway_result": result,
	})
}

// RefundPayment refunds a successful attempt. An empty body refunds the
// full captured amount.
// POST /api/v1/payments/:id/refund
func (h *PaymentHandler) RefundPayment(c *gin.Context) {
	userCtx, ok := middleware.GetUserContext(c)
	if !ok {
		respondUnauthorized(c)
		return
	}

	var req models.RefundPaymentRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, "Invalid request body")
			return
		}
	}

	payment, err := h.paymentService.RefundPayment(c.Request.Context(), userCtx.UserID, c.Param("id"), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Refund processed",
		"payment": payment,
	})
}

// GetPayment returns one of the caller's payment attempts.
// GET /api/v1/payments/:id
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	userCtx, ok := middleware.GetUserContext(c)
	if !ok {
		respondUnauthorized(c)
		return
	}

	payment, err := h.paymentService.GetPayment(userCtx.UserID, c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payment": payment})
}

// History lists the caller's payment attempts, newest first, optionally
// filtered by transaction status.
// GET /api/v1/payments
func (h *PaymentHandler) History(c *gin.Context) {
	userCtx, ok := middleware.GetUserContext(c)
	if !ok {
		respondUnauthorized(c)
		return
	}

	var status *models.TransactionStatus
	if raw := c.Query("status"); raw != "" {
		parsed, err := models.ParseTransactionStatus(raw)
		if err != nil {
			respondValidationError(c, err.Error())
			return
		}
		status = &parsed
	}

	limit, offset := parsePagination(c, 20, 100)

	payments, total, err := h.paymentService.History(userCtx.UserID, status, limit, offset)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"payments": payments,
		"total":    total,
		"count":    len(payments),
	})
}

// AuditTrail returns the event log of one of the caller's attempts.
// GET /api/v1/payments/:id/audit
func (h *PaymentHandler) AuditTrail(c *gin.Context) {
	userCtx, ok := middleware.GetUserContext(c)
	if !ok {
		respondUnauthorized(c)
		return
	}

	events, err := h.paymentService.AuditTrail(c.Request.Context(), userCtx.UserID, c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"count":  len(events),
	})
}

// BookingPayments lists every attempt made against one of the caller's
// bookings, alongside the booking itself.
// GET /api/v1/bookings/:id/payments
func (h *PaymentHandler) BookingPayments(c *gin.Context) {
	userCtx, ok := middleware.GetUserContext(c)
	if !ok {
		respondUnauthorized(c)
		return
	}

	booking, payments, err := h.paymentService.ListBookingPayments(userCtx.UserID, c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"booking":  booking,
		"payments": payments,
		"count":    len(payments),
	})
}

// ============================================================================
// ADMIN
// ============================================================================

// GetByTransactionID looks up an attempt by its gateway-facing
// transaction reference.
// GET /api/v1/admin/payments/transaction/:transactionId
func (h *PaymentHandler) GetByTransactionID(c *gin.Context) {
	payment, err := h.paymentService.GetByTransactionID(c.Param("transactionId"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payment": payment})
}
