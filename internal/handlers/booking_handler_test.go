package handlers

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/busline/ticketing-backend/internal/config"
	"github.com/busline/ticketing-backend/internal/database"
	"github.com/busline/ticketing-backend/internal/middleware"
	"github.com/busline/ticketing-backend/internal/models"
	"github.com/busline/ticketing-backend/internal/services"
)

func setupBookingTestDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	return sqlx.NewDb(mockDB, "sqlmock"), mock
}

func setupBookingTestHandler(db *sqlx.DB) *BookingHandler {
	logger := newTestLogger()
	bookings := database.NewBookingRepository(db)
	trips := database.NewTripRepository(db)
	seats := database.NewTripSeatRepository(db)
	promos := database.NewPromoRepository(db)
	users := database.NewUserRepository(db)
	rateLimit := services.NewRateLimitService(db, config.RateLimitConfig{})

	service := services.NewBookingService(bookings, trips, seats, promos, users, nil, rateLimit, nil, logger)
	return NewBookingHandler(service, logger)
}

func newBookingTestContext(t *testing.T, method, path string, body interface{}) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	c.Request, _ = http.NewRequest(method, path, &buf)
	c.Request.Header.Set("Content-Type", "application/json")
	return c, w
}

func setCustomerContext(c *gin.Context, userID string) {
	c.Set(middleware.UserContextKey, middleware.UserContext{
		UserID: userID,
		Email:  "jane@example.com",
		Role:   string(models.UserRoleCustomer),
	})
}

func bookingRow(bookingID, userID string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "booking_reference", "user_id", "trip_id", "promo_code_id",
		"passenger_name", "passenger_email", "passenger_phone", "num_seats",
		"subtotal_cents", "discount_cents", "total_cents", "status", "payment_status",
		"special_requests", "created_at", "updated_at",
	}).AddRow(
		bookingID, "BL-2A4F6C", userID, "trip-1", nil,
		"Jane Perera", "jane@example.com", "+94771234567", 2,
		360000, 0, 360000, "confirmed", "unpaid",
		nil, now, now,
	)
}

func TestCreateBooking_NoUserContext(t *testing.T) {
	db, _ := setupBookingTestDB(t)
	defer db.Close()
	handler := setupBookingTestHandler(db)

	c, w := newBookingTestContext(t, http.MethodPost, "/api/v1/bookings", gin.H{})

	handler.CreateBooking(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	response := decodeErrorResponse(t, w)
	assert.Equal(t, "unauthorized", response.Error)
}

func TestCreateBooking_MissingSeats(t *testing.T) {
	db, _ := setupBookingTestDB(t)
	defer db.Close()
	handler := setupBookingTestHandler(db)

	c, w := newBookingTestContext(t, http.MethodPost, "/api/v1/bookings", gin.H{
		"trip_id":         "trip-1",
		"passenger_name":  "Jane Perera",
		"passenger_email": "jane@example.com",
		"passenger_phone": "+94771234567",
	})
	setCustomerContext(c, "user-1")

	handler.CreateBooking(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	response := decodeErrorResponse(t, w)
	assert.Equal(t, "validation_error", response.Error)
}

func TestGetBooking_Success(t *testing.T) {
	db, mock := setupBookingTestDB(t)
	defer db.Close()
	handler := setupBookingTestHandler(db)

	mock.ExpectQuery(`SELECT (.+) FROM bookings WHERE id`).
		WithArgs("booking-1").
		WillReturnRows(bookingRow("booking-1", "user-1"))
	mock.ExpectQuery(`SELECT (.+) FROM booking_seats WHERE booking_id`).
		WithArgs("booking-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "booking_id", "seat_id", "seat_number", "seat_class", "seat_price_cents", "created_at",
		}).AddRow("bs-1", "booking-1", "seat-1", "12A", "standard", 180000, time.Now()).
			AddRow("bs-2", "booking-1", "seat-2", "12B", "standard", 180000, time.Now()))

	c, w := newBookingTestContext(t, http.MethodGet, "/api/v1/bookings/booking-1", nil)
	c.Params = gin.Params{{Key: "id", Value: "booking-1"}}
	setCustomerContext(c, "user-1")

	handler.GetBooking(c)

	assert.Equal(t, http.StatusOK, w.Code)

	var response struct {
		Booking models.Booking       `json:"booking"`
		Seats   []models.BookingSeat `json:"seats"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "BL-2A4F6C", response.Booking.BookingReference)
	assert.Equal(t, models.BookingStatusConfirmed, response.Booking.Status)
	assert.Len(t, response.Seats, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetBooking_NotFound(t *testing.T) {
	db, mock := setupBookingTestDB(t)
	defer db.Close()
	handler := setupBookingTestHandler(db)

	mock.ExpectQuery(`SELECT (.+) FROM bookings WHERE id`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	c, w := newBookingTestContext(t, http.MethodGet, "/api/v1/bookings/missing", nil)
	c.Params = gin.Params{{Key: "id", Value: "missing"}}
	setCustomerContext(c, "user-1")

	handler.GetBooking(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
	response := decodeErrorResponse(t, w)
	assert.Equal(t, "booking_not_found", response.Error)
}

func TestGetBooking_OtherUsersBooking(t *testing.T) {
	db, mock := setupBookingTestDB(t)
	defer db.Close()
	handler := setupBookingTestHandler(db)

	mock.ExpectQuery(`SELECT (.+) FROM bookings WHERE id`).
		WithArgs("booking-1").
		WillReturnRows(bookingRow("booking-1", "someone-else"))

	c, w := newBookingTestContext(t, http.MethodGet, "/api/v1/bookings/booking-1", nil)
	c.Params = gin.Params{{Key: "id", Value: "booking-1"}}
	setCustomerContext(c, "user-1")

	handler.GetBooking(c)

	assert.Equal(t, http.StatusForbidden, w.Code)
	response := decodeErrorResponse(t, w)
	assert.Equal(t, "forbidden", response.Error)
}

func TestListBookings_InvalidStatusFilter(t *testing.T) {
	db, _ := setupBookingTestDB(t)
	defer db.Close()
	handler := setupBookingTestHandler(db)

	c, w := newBookingTestContext(t, http.MethodGet, "/api/v1/bookings?status=nonsense", nil)
	setCustomerContext(c, "user-1")

	handler.ListBookings(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	response := decodeErrorResponse(t, w)
	assert.Equal(t, "validation_error", response.Error)
}

func TestSetPaymentStatus_RefundedRejected(t *testing.T) {
	db, _ := setupBookingTestDB(t)
	defer db.Close()
	handler := setupBookingTestHandler(db)

	// Refunded is a real payment status, but customers cannot set it on
	// their own bookings.
	c, w := newBookingTestContext(t, http.MethodPatch, "/api/v1/bookings/booking-1/payment-status", gin.H{
		"payment_status": "refunded",
	})
	c.Params = gin.Params{{Key: "id", Value: "booking-1"}}
	setCustomerContext(c, "user-1")

	handler.SetPaymentStatus(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	response := decodeErrorResponse(t, w)
	assert.Equal(t, "validation_error", response.Error)
	assert.Contains(t, response.Message, "can only be set to")
}

func TestSetPaymentStatus_UnknownStatus(t *testing.T) {
	db, _ := setupBookingTestDB(t)
	defer db.Close()
	handler := setupBookingTestHandler(db)

	c, w := newBookingTestContext(t, http.MethodPatch, "/api/v1/bookings/booking-1/payment-status", gin.H{
		"payment_status": "banana",
	})
	c.Params = gin.Params{{Key: "id", Value: "booking-1"}}
	setCustomerContext(c, "user-1")

	handler.SetPaymentStatus(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	response := decodeErrorResponse(t, w)
	assert.Equal(t, "validation_error", response.Error)
}
