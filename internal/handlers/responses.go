package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/busline/ticketing-backend/internal/models"
	"github.com/busline/ticketing-backend/internal/services"
	"github.com/busline/ticketing-backend/pkg/validator"
)

// ErrorResponse is the JSON error body returned by all handlers.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// MessageResponse is the JSON body for operations that return no payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// errorMapping binds one domain sentinel to its HTTP translation. Matched
// in order with errors.Is, so wrapped errors resolve too.
type errorMapping struct {
	sentinel   error
	status     int
	identifier string
}

var errorMappings = []errorMapping{
	// Auth failures.
	{models.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
	{models.ErrInvalidRefreshToken, http.StatusUnauthorized, "invalid_refresh_token"},
	{models.ErrAccountDisabled, http.StatusForbidden, "account_disabled"},
	{models.ErrPasswordMismatch, http.StatusBadRequest, "password_mismatch"},
	{models.ErrSamePassword, http.StatusBadRequest, "same_password"},
	{services.ErrForbidden, http.StatusForbidden, "forbidden"},

	// Phone validation, surfaced from profile and registration updates.
	{validator.ErrEmptyPhone, http.StatusBadRequest, "invalid_phone"},
	{validator.ErrInvalidFormat, http.StatusBadRequest, "invalid_phone"},
	{validator.ErrInvalidLength, http.StatusBadRequest, "invalid_phone"},
	{validator.ErrInvalidPrefix, http.StatusBadRequest, "invalid_phone"},

	// Missing resources.
	{models.ErrTripNotFound, http.StatusNotFound, "trip_not_found"},
	{models.ErrSeatNotFound, http.StatusNotFound, "seat_not_found"},
	{models.ErrBookingNotFound, http.StatusNotFound, "booking_not_found"},
	{models.ErrPromoNotFound, http.StatusNotFound, "promo_not_found"},
	{models.ErrPaymentNotFound, http.StatusNotFound, "payment_not_found"},
	{models.ErrUserNotFound, http.StatusNotFound, "user_not_found"},

	// Uniqueness conflicts.
	{models.ErrTripNumberExists, http.StatusConflict, "trip_number_exists"},
	{models.ErrSeatNumberExists, http.StatusConflict, "seat_number_exists"},
	{models.ErrPromoCodeExists, http.StatusConflict, "promo_code_exists"},
	{models.ErrEmailExists, http.StatusConflict, "email_exists"},

	// Seat contention. Losing a concurrent race reads the same as asking
	// for a seat that was never free.
	{models.ErrSeatUnavailable, http.StatusConflict, "seats_unavailable"},
	{models.ErrSeatsNoLongerAvailable, http.StatusConflict, "seats_unavailable"},
	{models.ErrInsufficientCapacity, http.StatusConflict, "insufficient_capacity"},
	{models.ErrSeatInUse, http.StatusConflict, "seat_in_use"},

	// Lifecycle conflicts.
	{models.ErrAlreadyCancelled, http.StatusConflict, "booking_already_cancelled"},
	{models.ErrAlreadyCompleted, http.StatusConflict, "booking_completed"},
	{models.ErrBookingCancelled, http.StatusConflict, "booking_cancelled"},
	{models.ErrBookingAlreadyPaid, http.StatusConflict, "booking_already_paid"},
	{models.ErrPaymentAlreadyProcessed, http.StatusConflict, "payment_already_processed"},
	{models.ErrPaymentNotRefundable, http.StatusConflict, "payment_not_refundable"},
	{models.ErrTripHasBookings, http.StatusConflict, "trip_has_bookings"},
	{models.ErrPromoInUse, http.StatusConflict, "promo_in_use"},

	// Caller mistakes.
	{models.ErrTripNotBookable, http.StatusBadRequest, "trip_not_bookable"},
	{models.ErrTripDeparted, http.StatusBadRequest, "trip_departed"},
	{models.ErrPromoInvalid, http.StatusBadRequest, "promo_invalid"},
	{models.ErrPromoIneligible, http.StatusBadRequest, "promo_ineligible"},
	{models.ErrPromoMinimumNotMet, http.StatusBadRequest, "promo_minimum_not_met"},
	{models.ErrInvalidRefundAmount, http.StatusBadRequest, "invalid_refund_amount"},
}

// respondError translates a service error into the HTTP response. Unknown
// errors become a 500 with a generic body and are logged with the request
// path; domain errors keep their own message.
func respondError(c *gin.Context, logger *logrus.Logger, err error) {
	var rateLimitErr *services.RateLimitError
	if errors.As(err, &rateLimitErr) {
		retryAfter := int(time.Until(rateLimitErr.RetryAfter).Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		c.Header("Retry-After", strconv.Itoa(retryAfter))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":       "rate_limit_exceeded",
			"message":     rateLimitErr.Message,
			"retry_after": rateLimitErr.RetryAfter,
			"type":        rateLimitErr.Type,
		})
		return
	}

	var validationErr *models.ValidationError
	if errors.As(err, &validationErr) {
		respondValidationError(c, validationErr.Error())
		return
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.sentinel) {
			c.JSON(m.status, ErrorResponse{
				Error:   m.identifier,
				Message: err.Error(),
			})
			return
		}
	}

	logger.WithError(err).WithFields(logrus.Fields{
		"path":   c.FullPath(),
		"method": c.Request.Method,
	}).Error("Unhandled error in request")
	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "Something went wrong. Please try again later.",
	})
}

// respondValidationError reports a 400 for request bodies that failed
// binding or domain validation.
func respondValidationError(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   "validation_error",
		Message: message,
	})
}

// respondUnauthorized reports a request that reached a handler without an
// authenticated user context.
func respondUnauthorized(c *gin.Context) {
	c.JSON(http.StatusUnauthorized, ErrorResponse{
		Error:   "unauthorized",
		Message: "Authentication required",
	})
}

// parsePagination reads limit and offset query parameters, falling back to
// the given default limit. Out-of-range values are clamped, not rejected.
func parsePagination(c *gin.Context, defaultLimit, maxLimit int) (limit, offset int) {
	limit = defaultLimit
	if raw := c.Query("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			limit = v
		}
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if raw := c.Query("offset"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			offset = v
		}
	}
	return limit, offset
}
