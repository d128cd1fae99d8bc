package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/busline/ticketing-backend/internal/middleware"
	"github.com/busline/ticketing-backend/internal/models"
	"github.com/busline/ticketing-backend/internal/services"
)

// BookingHandler serves booking creation and lifecycle endpoints for
// customers plus the admin booking views.
type BookingHandler struct {
	bookingService *services.BookingService
	logger         *logrus.Logger
}

// NewBookingHandler creates a new booking handler.
func NewBookingHandler(bookingService *services.BookingService, logger *logrus.Logger) *BookingHandler {
	return &BookingHandler{
		bookingService: bookingService,
		logger:         logger,
	}
}

// QuoteFare handles POST /api/v1/bookings/quote
func (h *BookingHandler) QuoteFare(c *gin.Context) {
	// Quotes are open to anonymous shoppers; a signed-in caller gets the
	// per-user promo checks applied on top.
	var userID string
	if userCtx, ok := middleware.GetUserContext(c); ok {
		userID = userCtx.UserID
	}

	var req models.FareQuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, "Invalid request body")
		return
	}

	quote, err := h.bookingService.QuoteFare(userID, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"quote": quote})
}

// CreateBooking handles POST /api/v1/bookings
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	userCtx, ok := middleware.GetUserContext(c)
	if !ok {
		respondUnauthorized(c)
		return
	}

	var req models.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, "Invalid request body")
		return
	}

	booking, seats, err := h.bookingService.CreateBooking(c.Request.Context(), userCtx.UserID, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Booking confirmed",
		"booking": booking,
		"seats":   seats,
	})
}

// ListBookings handles GET /api/v1/bookings
func (h *BookingHandler) ListBookings(c *gin.Context) {
	userCtx, ok := middleware.GetUserContext(c)
	if !ok {
		respondUnauthorized(c)
		return
	}

	var status *models.BookingStatus
	if raw := c.Query("status"); raw != "" {
		parsed, err := models.ParseBookingStatus(raw)
		if err != nil {
			respondValidationError(c, err.Error())
			return
		}
		status = &parsed
	}
	limit, offset := parsePagination(c, 20, 100)

	bookings, err := h.bookingService.ListUserBookings(userCtx.UserID, status, limit, offset)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"bookings": bookings,
		"count":    len(bookings),
	})
}

// GetBooking handles GET /api/v1/bookings/:id
func (h *BookingHandler) GetBooking(c *gin.Context) {
	userCtx, ok := middleware.GetUserContext(c)
	if !ok {
		respondUnauthorized(c)
		return
	}

	booking, seats, err := h.bookingService.GetBooking(userCtx.UserID, c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"booking": booking,
		"seats":   seats,
	})
}

// GetBookingByReference handles GET /api/v1/bookings/reference/:reference
func (h *BookingHandler) GetBookingByReference(c *gin.Context) {
	userCtx, ok := middleware.GetUserContext(c)
	if !ok {
		respondUnauthorized(c)
		return
	}

	booking, seats, err := h.bookingService.GetByReference(userCtx.UserID, c.Param("reference"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"booking": booking,
		"seats":   seats,
	})
}

// CancelBooking handles POST /api/v1/bookings/:id/cancel
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	userCtx, ok := middleware.GetUserContext(c)
	if !ok {
		respondUnauthorized(c)
		return
	}

	booking, err := h.bookingService.CancelBooking(c.Request.Context(), userCtx.UserID, c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Booking cancelled",
		"booking": booking,
	})
}

// ReactivateBooking handles POST /api/v1/bookings/:id/reactivate
func (h *BookingHandler) ReactivateBooking(c *gin.Context) {
	userCtx, ok := middleware.GetUserContext(c)
	if !ok {
		respondUnauthorized(c)
		return
	}

	booking, err := h.bookingService.ReactivateBooking(c.Request.Context(), userCtx.UserID, c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Booking reactivated",
		"booking": booking,
	})
}

// UpdatePaymentStatusRequest sets a booking's payment state.
type UpdatePaymentStatusRequest struct {
	PaymentStatus string `json:"payment_status" binding:"required"`
}

// SetPaymentStatus handles PATCH /api/v1/bookings/:id/payment-status
func (h *BookingHandler) SetPaymentStatus(c *gin.Context) {
	userCtx, ok := middleware.GetUserContext(c)
	if !ok {
		respondUnauthorized(c)
		return
	}

	var req UpdatePaymentStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, "Invalid request body")
		return
	}
	status, err := models.ParsePaymentStatus(req.PaymentStatus)
	if err != nil {
		respondValidationError(c, err.Error())
		return
	}

	booking, err := h.bookingService.SetOwnPaymentStatus(userCtx.UserID, c.Param("id"), status)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Payment status updated",
		"booking": booking,
	})
}

// ============================================================================
// ADMIN
// ============================================================================

// AdminListBookings handles GET /api/v1/admin/bookings
func (h *BookingHandler) AdminListBookings(c *gin.Context) {
	filter := models.BookingFilter{}
	if raw := c.Query("status"); raw != "" {
		parsed, err := models.ParseBookingStatus(raw)
		if err != nil {
			respondValidationError(c, err.Error())
			return
		}
		filter.Status = &parsed
	}
	if raw := c.Query("payment_status"); raw != "" {
		parsed, err := models.ParsePaymentStatus(raw)
		if err != nil {
			respondValidationError(c, err.Error())
			return
		}
		filter.PaymentStatus = &parsed
	}
	if raw := c.Query("user_id"); raw != "" {
		filter.UserID = &raw
	}
	if raw := c.Query("trip_id"); raw != "" {
		filter.TripID = &raw
	}
	filter.Limit, filter.Offset = parsePagination(c, 50, 200)

	bookings, err := h.bookingService.AdminListBookings(filter)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"bookings": bookings,
		"count":    len(bookings),
	})
}

// AdminGetBooking handles GET /api/v1/admin/bookings/:id
func (h *BookingHandler) AdminGetBooking(c *gin.Context) {
	booking, seats, err := h.bookingService.AdminGetBooking(c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"booking": booking,
		"seats":   seats,
	})
}

// UpdateBookingStatusRequest moves a booking along its lifecycle.
type UpdateBookingStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// AdminUpdateStatus handles PATCH /api/v1/admin/bookings/:id/status
func (h *BookingHandler) AdminUpdateStatus(c *gin.Context) {
	var req UpdateBookingStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, "Invalid request body")
		return
	}
	status, err := models.ParseBookingStatus(req.Status)
	if err != nil {
		respondValidationError(c, err.Error())
		return
	}

	booking, err := h.bookingService.AdminUpdateStatus(c.Request.Context(), c.Param("id"), status)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Booking status updated",
		"booking": booking,
	})
}

// AdminSetPaymentStatus handles PATCH /api/v1/admin/bookings/:id/payment-status
func (h *BookingHandler) AdminSetPaymentStatus(c *gin.Context) {
	var req UpdatePaymentStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, "Invalid request body")
		return
	}
	status, err := models.ParsePaymentStatus(req.PaymentStatus)
	if err != nil {
		respondValidationError(c, err.Error())
		return
	}

	booking, err := h.bookingService.AdminSetPaymentStatus(c.Param("id"), status)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Payment status updated",
		"booking": booking,
	})
}
