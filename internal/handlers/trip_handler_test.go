package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/busline/ticketing-backend/internal/database"
	"github.com/busline/ticketing-backend/internal/models"
	"github.com/busline/ticketing-backend/internal/services"
)

func setupTripTestHandler(t *testing.T) (*TripHandler, sqlmock.Sqlmock, func()) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	db := sqlx.NewDb(mockDB, "sqlmock")

	logger := newTestLogger()
	trips := database.NewTripRepository(db)
	seats := database.NewTripSeatRepository(db)
	service := services.NewTripService(trips, seats, nil, logger)

	return NewTripHandler(service, logger), mock, func() { db.Close() }
}

func tripRow(tripID string) *sqlmock.Rows {
	departure := time.Now().Add(48 * time.Hour)
	return sqlmock.NewRows([]string{
		"id", "trip_number", "origin", "destination", "departure_time", "arrival_time",
		"duration_minutes", "base_fare_cents", "total_seats", "available_seats",
		"status", "operator_name", "vehicle_type", "amenities", "created_at", "updated_at",
	}).AddRow(
		tripID, "BL-101", "Colombo", "Kandy", departure, departure.Add(3*time.Hour),
		180, 180000, 40, 38,
		"scheduled", "Busline Express", nil, nil, time.Now(), time.Now(),
	)
}

func TestSearchTrips_MissingTravelDate(t *testing.T) {
	handler, _, cleanup := setupTripTestHandler(t)
	defer cleanup()

	c, w := newBookingTestContext(t, http.MethodGet, "/api/v1/trips/search?origin=Colombo", nil)

	handler.Search(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	response := decodeErrorResponse(t, w)
	assert.Equal(t, "validation_error", response.Error)
	assert.Contains(t, response.Message, "travel_date")
}

func TestSearchTrips_BadTravelDate(t *testing.T) {
	handler, _, cleanup := setupTripTestHandler(t)
	defer cleanup()

	c, w := newBookingTestContext(t, http.MethodGet, "/api/v1/trips/search?travel_date=tomorrow", nil)

	handler.Search(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	response := decodeErrorResponse(t, w)
	assert.Equal(t, "validation_error", response.Error)
}

func TestSearchTrips_BadSeatCount(t *testing.T) {
	handler, _, cleanup := setupTripTestHandler(t)
	defer cleanup()

	c, w := newBookingTestContext(t, http.MethodGet, "/api/v1/trips/search?travel_date=2026-09-01&seats=0", nil)

	handler.Search(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	response := decodeErrorResponse(t, w)
	assert.Contains(t, response.Message, "seats")
}

func TestSearchTrips_Success(t *testing.T) {
	handler, mock, cleanup := setupTripTestHandler(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT (.+) FROM trips`).WillReturnRows(tripRow("trip-1"))

	c, w := newBookingTestContext(t, http.MethodGet, "/api/v1/trips/search?travel_date=2026-09-01&origin=Colombo&destination=Kandy", nil)

	handler.Search(c)

	assert.Equal(t, http.StatusOK, w.Code)

	var response struct {
		Trips []models.Trip `json:"trips"`
		Count int           `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, 1, response.Count)
	require.Len(t, response.Trips, 1)
	assert.Equal(t, "BL-101", response.Trips[0].TripNumber)
}

func TestGetTrip_Success(t *testing.T) {
	handler, mock, cleanup := setupTripTestHandler(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT (.+) FROM trips WHERE id`).
		WithArgs("trip-1").
		WillReturnRows(tripRow("trip-1"))

	c, w := newBookingTestContext(t, http.MethodGet, "/api/v1/trips/trip-1", nil)
	c.Params = gin.Params{{Key: "id", Value: "trip-1"}}

	handler.GetTrip(c)

	assert.Equal(t, http.StatusOK, w.Code)

	var response struct {
		Trip models.Trip `json:"trip"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "Colombo", response.Trip.Origin)
	assert.Equal(t, int64(180000), response.Trip.BaseFareCents)
	assert.Equal(t, models.TripStatusScheduled, response.Trip.Status)
}

func TestGetTrip_NotFound(t *testing.T) {
	handler, mock, cleanup := setupTripTestHandler(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT (.+) FROM trips WHERE id`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	c, w := newBookingTestContext(t, http.MethodGet, "/api/v1/trips/missing", nil)
	c.Params = gin.Params{{Key: "id", Value: "missing"}}

	handler.GetTrip(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
	response := decodeErrorResponse(t, w)
	assert.Equal(t, "trip_not_found", response.Error)
}

func TestGetSeats_InvalidClass(t *testing.T) {
	handler, _, cleanup := setupTripTestHandler(t)
	defer cleanup()

	c, w := newBookingTestContext(t, http.MethodGet, "/api/v1/trips/trip-1/seats?class=economy-plus", nil)
	c.Params = gin.Params{{Key: "id", Value: "trip-1"}}

	handler.GetSeats(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	response := decodeErrorResponse(t, w)
	assert.Equal(t, "validation_error", response.Error)
}

func TestCreateTrip_ArrivalBeforeDeparture(t *testing.T) {
	handler, _, cleanup := setupTripTestHandler(t)
	defer cleanup()

	departure := time.Now().Add(48 * time.Hour)
	c, w := newBookingTestContext(t, http.MethodPost, "/api/v1/admin/trips", gin.H{
		"trip_number":     "BL-900",
		"origin":          "Colombo",
		"destination":     "Galle",
		"departure_time":  departure.Format(time.RFC3339),
		"arrival_time":    departure.Add(-time.Hour).Format(time.RFC3339),
		"base_fare_cents": 120000,
		"total_seats":     40,
		"operator_name":   "Busline Express",
	})

	handler.CreateTrip(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	response := decodeErrorResponse(t, w)
	assert.Equal(t, "validation_error", response.Error)
	assert.Contains(t, response.Message, "arrival time must be after departure time")
}

func TestCreateTrip_BadTimestamp(t *testing.T) {
	handler, _, cleanup := setupTripTestHandler(t)
	defer cleanup()

	c, w := newBookingTestContext(t, http.MethodPost, "/api/v1/admin/trips", gin.H{
		"trip_number":     "BL-900",
		"origin":          "Colombo",
		"destination":     "Galle",
		"departure_time":  "tomorrow at nine",
		"arrival_time":    "noon",
		"base_fare_cents": 120000,
		"total_seats":     40,
		"operator_name":   "Busline Express",
	})

	handler.CreateTrip(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	response := decodeErrorResponse(t, w)
	assert.Equal(t, "validation_error", response.Error)
	assert.Contains(t, response.Message, "RFC3339")
}

func TestUpdateTripStatus_UnknownStatus(t *testing.T) {
	handler, _, cleanup := setupTripTestHandler(t)
	defer cleanup()

	c, w := newBookingTestContext(t, http.MethodPatch, "/api/v1/admin/trips/trip-1/status", gin.H{
		"status": "postponed",
	})
	c.Params = gin.Params{{Key: "id", Value: "trip-1"}}

	handler.UpdateTripStatus(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	response := decodeErrorResponse(t, w)
	assert.Equal(t, "validation_error", response.Error)
}
