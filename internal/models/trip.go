package models

import (
	"strings"
	"time"
)

// TripStatus represents the lifecycle status of a trip
type TripStatus string

const (
	TripStatusScheduled TripStatus = "scheduled"
	TripStatusBoarding  TripStatus = "boarding"
	TripStatusInTransit TripStatus = "in_transit"
	TripStatusCompleted TripStatus = "completed"
	TripStatusCancelled TripStatus = "cancelled"
)

// ParseTripStatus rejects unknown status values at the boundary.
func ParseTripStatus(s string) (TripStatus, error) {
	switch TripStatus(strings.ToLower(s)) {
	case TripStatusScheduled:
		return TripStatusScheduled, nil
	case TripStatusBoarding:
		return TripStatusBoarding, nil
	case TripStatusInTransit:
		return TripStatusInTransit, nil
	case TripStatusCompleted:
		return TripStatusCompleted, nil
	case TripStatusCancelled:
		return TripStatusCancelled, nil
	default:
		return "", NewValidationError("invalid trip status: %q", s)
	}
}

// Trip represents a scheduled departure with fixed seat capacity
type Trip struct {
	ID              string     `json:"id" db:"id"`
	TripNumber      string     `json:"trip_number" db:"trip_number"`
	Origin          string     `json:"origin" db:"origin"`
	Destination     string     `json:"destination" db:"destination"`
	DepartureTime   time.Time  `json:"departure_time" db:"departure_time"`
	ArrivalTime     time.Time  `json:"arrival_time" db:"arrival_time"`
	DurationMinutes int        `json:"duration_minutes" db:"duration_minutes"`
	BaseFareCents   int64      `json:"base_fare_cents" db:"base_fare_cents"`
	TotalSeats      int        `json:"total_seats" db:"total_seats"`
	AvailableSeats  int        `json:"available_seats" db:"available_seats"`
	Status          TripStatus `json:"status" db:"status"`
	OperatorName    string     `json:"operator_name" db:"operator_name"`
	VehicleType     *string    `json:"vehicle_type,omitempty" db:"vehicle_type"`
	Amenities       *string    `json:"amenities,omitempty" db:"amenities"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}

// IsPastDeparture checks if the trip departure time has passed
func (t *Trip) IsPastDeparture() bool {
	return time.Now().After(t.DepartureTime)
}

// CanAcceptBooking checks if the trip can accept a booking for the given
// number of seats
func (t *Trip) CanAcceptBooking(seats int) bool {
	if t.Status != TripStatusScheduled {
		return false
	}
	if t.IsPastDeparture() {
		return false
	}
	return t.AvailableSeats >= seats
}

// CanTransitionTo reports whether a status change is allowed
func (t *Trip) CanTransitionTo(next TripStatus) bool {
	switch t.Status {
	case TripStatusScheduled:
		return next == TripStatusBoarding || next == TripStatusCancelled
	case TripStatusBoarding:
		return next == TripStatusInTransit
	case TripStatusInTransit:
		return next == TripStatusCompleted
	default:
		return false
	}
}

// OccupancyPercentage returns the percentage of booked seats
func (t *Trip) OccupancyPercentage() float64 {
	if t.TotalSeats == 0 {
		return 0
	}
	booked := t.TotalSeats - t.AvailableSeats
	return float64(booked) / float64(t.TotalSeats) * 100
}

// CreateTripRequest represents the request to create a trip
type CreateTripRequest struct {
	TripNumber    string  `json:"trip_number" binding:"required"`
	Origin        string  `json:"origin" binding:"required"`
	Destination   string  `json:"destination" binding:"required"`
	DepartureTime string  `json:"departure_time" binding:"required"`
	ArrivalTime   string  `json:"arrival_time" binding:"required"`
	BaseFareCents int64   `json:"base_fare_cents" binding:"required"`
	TotalSeats    int     `json:"total_seats" binding:"required"`
	OperatorName  string  `json:"operator_name" binding:"required"`
	VehicleType   *string `json:"vehicle_type,omitempty"`
	Amenities     *string `json:"amenities,omitempty"`
}

// Validate validates the create trip request
func (r *CreateTripRequest) Validate() error {
	departure, err := time.Parse(time.RFC3339, r.DepartureTime)
	if err != nil {
		return NewValidationError("departure_time must be in RFC3339 format")
	}
	arrival, err := time.Parse(time.RFC3339, r.ArrivalTime)
	if err != nil {
		return NewValidationError("arrival_time must be in RFC3339 format")
	}
	if !arrival.After(departure) {
		return NewValidationError("arrival time must be after departure time")
	}
	if r.BaseFareCents <= 0 {
		return NewValidationError("base fare must be positive")
	}
	if r.TotalSeats <= 0 || r.TotalSeats > 500 {
		return NewValidationError("total seats must be between 1 and 500")
	}
	return nil
}

// DepartureArrival parses the request timestamps. Call Validate first.
func (r *CreateTripRequest) DepartureArrival() (time.Time, time.Time) {
	departure, _ := time.Parse(time.RFC3339, r.DepartureTime)
	arrival, _ := time.Parse(time.RFC3339, r.ArrivalTime)
	return departure, arrival
}

// UpdateTripRequest represents a partial trip update
type UpdateTripRequest struct {
	Origin        *string `json:"origin,omitempty"`
	Destination   *string `json:"destination,omitempty"`
	DepartureTime *string `json:"departure_time,omitempty"`
	ArrivalTime   *string `json:"arrival_time,omitempty"`
	BaseFareCents *int64  `json:"base_fare_cents,omitempty"`
	OperatorName  *string `json:"operator_name,omitempty"`
	VehicleType   *string `json:"vehicle_type,omitempty"`
	Amenities     *string `json:"amenities,omitempty"`
	Status        *string `json:"status,omitempty"`
}

// TripSearchParams holds the public trip search filters
type TripSearchParams struct {
	Origin      string
	Destination string
	TravelDate  time.Time
	SeatsNeeded int
	SortBy      string
	SortOrder   string
}

// TripSeatSummary aggregates seat counts for one seat class on a trip
type TripSeatSummary struct {
	SeatClass SeatClass `json:"seat_class" db:"seat_class"`
	Total     int       `json:"total" db:"total"`
	Available int       `json:"available" db:"available"`
	Booked    int       `json:"booked" db:"booked"`
	Blocked   int       `json:"blocked" db:"blocked"`
}

// SeatCounterDrift reports a trip whose available_seats counter no
// longer equals total_seats minus its booked seat rows. Any such row is
// a consistency violation: it is logged and surfaced, never patched.
type SeatCounterDrift struct {
	TripID         string `json:"trip_id" db:"trip_id"`
	TripNumber     string `json:"trip_number" db:"trip_number"`
	AvailableSeats int    `json:"available_seats" db:"available_seats"`
	TotalSeats     int    `json:"total_seats" db:"total_seats"`
	BookedSeats    int    `json:"booked_seats" db:"booked_seats"`
}
