package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/busline/ticketing-backend/internal/database"
	"github.com/busline/ticketing-backend/internal/models"
	"github.com/busline/ticketing-backend/internal/services"
)

// TripHandler serves the public trip catalog and the admin trip and seat
// management endpoints.
type TripHandler struct {
	tripService *services.TripService
	logger      *logrus.Logger
}

// NewTripHandler creates a new trip handler.
func NewTripHandler(tripService *services.TripService, logger *logrus.Logger) *TripHandler {
	return &TripHandler{
		tripService: tripService,
		logger:      logger,
	}
}

// Search handles GET /api/v1/trips/search
func (h *TripHandler) Search(c *gin.Context) {
	rawDate := c.Query("travel_date")
	if rawDate == "" {
		respondValidationError(c, "travel_date is required (YYYY-MM-DD)")
		return
	}
	travelDate, err := time.Parse("2006-01-02", rawDate)
	if err != nil {
		respondValidationError(c, "travel_date must be in YYYY-MM-DD format")
		return
	}

	seatsNeeded := 1
	if raw := c.Query("seats"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			respondValidationError(c, "seats must be a positive integer")
			return
		}
		seatsNeeded = v
	}

	params := models.TripSearchParams{
		Origin:      c.Query("origin"),
		Destination: c.Query("destination"),
		TravelDate:  travelDate,
		SeatsNeeded: seatsNeeded,
		SortBy:      c.Query("sort_by"),
		SortOrder:   c.Query("sort_order"),
	}

	trips, err := h.tripService.Search(c.Request.Context(), params)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"trips": trips,
		"count": len(trips),
	})
}

// Cities handles GET /api/v1/trips/cities
func (h *TripHandler) Cities(c *gin.Context) {
	cities, err := h.tripService.Cities(c.Query("search"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"cities": cities})
}

// GetTrip handles GET /api/v1/trips/:id
func (h *TripHandler) GetTrip(c *gin.Context) {
	trip, err := h.tripService.GetTrip(c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"trip": trip})
}

// GetSeats handles GET /api/v1/trips/:id/seats
func (h *TripHandler) GetSeats(c *gin.Context) {
	var class *models.SeatClass
	if raw := c.Query("class"); raw != "" {
		parsed, err := models.ParseSeatClass(raw)
		if err != nil {
			respondValidationError(c, err.Error())
			return
		}
		class = &parsed
	}
	availableOnly := c.Query("available_only") == "true"

	trip, seats, err := h.tripService.GetTripSeats(c.Param("id"), class, availableOnly)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"trip":  trip,
		"seats": seats,
		"count": len(seats),
	})
}

// SeatSummary handles GET /api/v1/trips/:id/seat-summary
func (h *TripHandler) SeatSummary(c *gin.Context) {
	trip, summary, err := h.tripService.SeatSummary(c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"trip":    trip,
		"summary": summary,
	})
}

// ============================================================================
// ADMIN
// ============================================================================

// CreateTrip handles POST /api/v1/admin/trips
func (h *TripHandler) CreateTrip(c *gin.Context) {
	var req models.CreateTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, "Invalid request body")
		return
	}

	trip, err := h.tripService.CreateTrip(c.Request.Context(), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Trip created",
		"trip":    trip,
	})
}

// ListTrips handles GET /api/v1/admin/trips
func (h *TripHandler) ListTrips(c *gin.Context) {
	filter := database.TripListFilter{}
	if raw := c.Query("status"); raw != "" {
		status, err := models.ParseTripStatus(raw)
		if err != nil {
			respondValidationError(c, err.Error())
			return
		}
		filter.Status = &status
	}
	if raw := c.Query("origin"); raw != "" {
		filter.Origin = &raw
	}
	if raw := c.Query("destination"); raw != "" {
		filter.Destination = &raw
	}
	filter.Limit, filter.Offset = parsePagination(c, 50, 200)

	trips, err := h.tripService.ListTrips(filter)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"trips": trips,
		"count": len(trips),
	})
}

// UpdateTrip handles PUT /api/v1/admin/trips/:id
func (h *TripHandler) UpdateTrip(c *gin.Context) {
	var req models.UpdateTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, "Invalid request body")
		return
	}

	trip, err := h.tripService.UpdateTrip(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Trip updated",
		"trip":    trip,
	})
}

// UpdateTripStatusRequest moves a trip along its lifecycle.
type UpdateTripStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdateTripStatus handles PATCH /api/v1/admin/trips/:id/status
func (h *TripHandler) UpdateTripStatus(c *gin.Context) {
	var req UpdateTripStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, "Invalid request body")
		return
	}
	status, err := models.ParseTripStatus(req.Status)
	if err != nil {
		respondValidationError(c, err.Error())
		return
	}

	trip, err := h.tripService.UpdateTripStatus(c.Request.Context(), c.Param("id"), status)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Trip status updated",
		"trip":    trip,
	})
}

// DeleteTrip handles DELETE /api/v1/admin/trips/:id
func (h *TripHandler) DeleteTrip(c *gin.Context) {
	if err := h.tripService.DeleteTrip(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "Trip deleted"})
}

// CreateSeats handles POST /api/v1/admin/trips/:id/seats
func (h *TripHandler) CreateSeats(c *gin.Context) {
	var req models.CreateSeatsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, "Invalid request body")
		return
	}

	seats, err := h.tripService.CreateSeats(c.Param("id"), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Seats created",
		"seats":   seats,
		"count":   len(seats),
	})
}

// UpdateSeat handles PUT /api/v1/admin/trips/:id/seats/:seatId
func (h *TripHandler) UpdateSeat(c *gin.Context) {
	var req models.UpdateSeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, "Invalid request body")
		return
	}

	seat, err := h.tripService.UpdateSeat(c.Param("id"), c.Param("seatId"), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Seat updated",
		"seat":    seat,
	})
}

// DeleteSeat handles DELETE /api/v1/admin/trips/:id/seats/:seatId
func (h *TripHandler) DeleteSeat(c *gin.Context) {
	if err := h.tripService.DeleteSeat(c.Param("id"), c.Param("seatId")); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "Seat deleted"})
}

// BlockSeats handles POST /api/v1/admin/trips/:id/seats/block
func (h *TripHandler) BlockSeats(c *gin.Context) {
	var req models.BlockSeatsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, "Invalid request body")
		return
	}

	blocked, err := h.tripService.BlockSeats(c.Param("id"), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":       "Seats blocked",
		"blocked_count": blocked,
	})
}

// UnblockSeats handles POST /api/v1/admin/trips/:id/seats/unblock
func (h *TripHandler) UnblockSeats(c *gin.Context) {
	var req models.UnblockSeatsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, "Invalid request body")
		return
	}

	unblocked, err := h.tripService.UnblockSeats(c.Param("id"), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":         "Seats unblocked",
		"unblocked_count": unblocked,
	})
}

// VerifySeatCounters handles GET /api/v1/admin/trips/seat-counters
//
// Reports trips whose available_seats counter disagrees with the count
// derived from booked seats. Drift is reported, never silently repaired.
func (h *TripHandler) VerifySeatCounters(c *gin.Context) {
	drifts, err := h.tripService.VerifySeatCounters()
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"drifts":     drifts,
		"count":      len(drifts),
		"consistent": len(drifts) == 0,
	})
}
