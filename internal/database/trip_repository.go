package database

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/busline/ticketing-backend/internal/models"
)

// TripRepository handles trips database operations
type TripRepository struct {
	db *sqlx.DB
}

// NewTripRepository creates a new TripRepository
func NewTripRepository(db *sqlx.DB) *TripRepository {
	return &TripRepository{db: db}
}

const tripColumns = `
	id, trip_number, origin, destination, departure_time, arrival_time,
	duration_minutes, base_fare_cents, total_seats, available_seats,
	status, operator_name, vehicle_type, amenities, created_at, updated_at`

// Create inserts a new trip. The database generates the ID and the
// available_seats counter starts at total_seats.
func (r *TripRepository) Create(trip *models.Trip) error {
	query := `
		INSERT INTO trips (
			trip_number, origin, destination, departure_time, arrival_time,
			duration_minutes, base_fare_cents, total_seats, available_seats,
			status, operator_name, vehicle_type, amenities
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8, $9, $10, $11, $12)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRow(query,
		trip.TripNumber, trip.Origin, trip.Destination,
		trip.DepartureTime, trip.ArrivalTime, trip.DurationMinutes,
		trip.BaseFareCents, trip.TotalSeats,
		trip.Status, trip.OperatorName, trip.VehicleType, trip.Amenities,
	).Scan(&trip.ID, &trip.CreatedAt, &trip.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return models.ErrTripNumberExists
		}
		return fmt.Errorf("failed to create trip: %w", err)
	}

	trip.AvailableSeats = trip.TotalSeats
	return nil
}

// GetByID retrieves a trip by ID. Returns (nil, nil) when not found.
func (r *TripRepository) GetByID(tripID string) (*models.Trip, error) {
	trip := &models.Trip{}
	query := `SELECT` + tripColumns + ` FROM trips WHERE id = $1`

	err := r.db.Get(trip, query, tripID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get trip by ID: %w", err)
	}

	return trip, nil
}

// GetByTripNumber retrieves a trip by its unique trip number. Returns
// (nil, nil) when not found.
func (r *TripRepository) GetByTripNumber(tripNumber string) (*models.Trip, error) {
	trip := &models.Trip{}
	query := `SELECT` + tripColumns + ` FROM trips WHERE trip_number = $1`

	err := r.db.Get(trip, query, tripNumber)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get trip by number: %w", err)
	}

	return trip, nil
}

// TripListFilter holds the admin listing filters
type TripListFilter struct {
	Status      *models.TripStatus
	Origin      *string
	Destination *string
	Limit       int
	Offset      int
}

// List retrieves trips for the admin listing, newest departure first.
func (r *TripRepository) List(filter TripListFilter) ([]models.Trip, error) {
	conditions := []string{}
	args := []interface{}{}

	if filter.Status != nil {
		args = append(args, *filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Origin != nil {
		args = append(args, "%"+*filter.Origin+"%")
		conditions = append(conditions, fmt.Sprintf("origin ILIKE $%d", len(args)))
	}
	if filter.Destination != nil {
		args = append(args, "%"+*filter.Destination+"%")
		conditions = append(conditions, fmt.Sprintf("destination ILIKE $%d", len(args)))
	}

	query := `SELECT` + tripColumns + ` FROM trips`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	args = append(args, filter.Limit)
	query += fmt.Sprintf(" ORDER BY departure_time DESC LIMIT $%d", len(args))
	args = append(args, filter.Offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	var trips []models.Trip
	if err := r.db.Select(&trips, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list trips: %w", err)
	}

	return trips, nil
}

// Search retrieves bookable trips for the public search. Only scheduled
// trips departing on the travel date with enough available seats qualify.
func (r *TripRepository) Search(params models.TripSearchParams) ([]models.Trip, error) {
	dayStart := params.TravelDate
	dayEnd := dayStart.AddDate(0, 0, 1)

	conditions := []string{"status = 'scheduled'"}
	args := []interface{}{}

	args = append(args, dayStart)
	conditions = append(conditions, fmt.Sprintf("departure_time >= $%d", len(args)))
	args = append(args, dayEnd)
	conditions = append(conditions, fmt.Sprintf("departure_time < $%d", len(args)))

	if params.Origin != "" {
		args = append(args, "%"+params.Origin+"%")
		conditions = append(conditions, fmt.Sprintf("origin ILIKE $%d", len(args)))
	}
	if params.Destination != "" {
		args = append(args, "%"+params.Destination+"%")
		conditions = append(conditions, fmt.Sprintf("destination ILIKE $%d", len(args)))
	}

	seatsNeeded := params.SeatsNeeded
	if seatsNeeded < 1 {
		seatsNeeded = 1
	}
	args = append(args, seatsNeeded)
	conditions = append(conditions, fmt.Sprintf("available_seats >= $%d", len(args)))

	orderColumn := "departure_time"
	switch params.SortBy {
	case "price":
		orderColumn = "base_fare_cents"
	case "duration":
		orderColumn = "duration_minutes"
	}
	direction := "ASC"
	if strings.EqualFold(params.SortOrder, "desc") {
		direction = "DESC"
	}

	query := `SELECT` + tripColumns + ` FROM trips WHERE ` +
		strings.Join(conditions, " AND ") +
		fmt.Sprintf(" ORDER BY %s %s", orderColumn, direction)

	var trips []models.Trip
	if err := r.db.Select(&trips, query, args...); err != nil {
		return nil, fmt.Errorf("failed to search trips: %w", err)
	}

	return trips, nil
}

// Cities returns the distinct origins and destinations across all trips,
// optionally filtered by a case-insensitive substring.
func (r *TripRepository) Cities(search string) ([]string, error) {
	query := `
		SELECT city FROM (
			SELECT origin AS city FROM trips
			UNION
			SELECT destination AS city FROM trips
		) cities`

	args := []interface{}{}
	if search != "" {
		query += ` WHERE city ILIKE $1`
		args = append(args, "%"+search+"%")
	}
	query += ` ORDER BY city`

	var cities []string
	if err := r.db.Select(&cities, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list cities: %w", err)
	}

	return cities, nil
}

// Update writes the full trip row back. The seat counters are managed by
// the booking transactions and are not touched here.
func (r *TripRepository) Update(trip *models.Trip) error {
	query := `
		UPDATE trips
		SET origin = $2, destination = $3, departure_time = $4, arrival_time = $5,
			duration_minutes = $6, base_fare_cents = $7, status = $8,
			operator_name = $9, vehicle_type = $10, amenities = $11,
			updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`

	err := r.db.QueryRow(query,
		trip.ID, trip.Origin, trip.Destination, trip.DepartureTime, trip.ArrivalTime,
		trip.DurationMinutes, trip.BaseFareCents, trip.Status,
		trip.OperatorName, trip.VehicleType, trip.Amenities,
	).Scan(&trip.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return models.ErrTripNotFound
		}
		return fmt.Errorf("failed to update trip: %w", err)
	}

	return nil
}

// UpdateStatus updates the status of a trip
func (r *TripRepository) UpdateStatus(tripID string, status models.TripStatus) error {
	query := `UPDATE trips SET status = $2, updated_at = NOW() WHERE id = $1`

	result, err := r.db.Exec(query, tripID, status)
	if err != nil {
		return fmt.Errorf("failed to update trip status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return models.ErrTripNotFound
	}

	return nil
}

// CheckSeatCounters compares every trip's available_seats counter
// against total_seats minus its booked seat rows and returns the trips
// where the two disagree. The booking transactions keep the counter and
// the seat rows in lockstep, so every returned row is a consistency
// violation.
func (r *TripRepository) CheckSeatCounters() ([]models.SeatCounterDrift, error) {
	query := `
		SELECT
			t.id AS trip_id,
			t.trip_number,
			t.available_seats,
			t.total_seats,
			COUNT(s.id) FILTER (WHERE s.status = 'booked') AS booked_seats
		FROM trips t
		LEFT JOIN trip_seats s ON s.trip_id = t.id
		GROUP BY t.id, t.trip_number, t.available_seats, t.total_seats
		HAVING t.available_seats != t.total_seats - COUNT(s.id) FILTER (WHERE s.status = 'booked')`

	var drifts []models.SeatCounterDrift
	if err := r.db.Select(&drifts, query); err != nil {
		return nil, fmt.Errorf("failed to check seat counters: %w", err)
	}

	return drifts, nil
}

// CountActiveBookings counts bookings on a trip that are not cancelled.
func (r *TripRepository) CountActiveBookings(tripID string) (int, error) {
	var count int
	err := r.db.Get(&count, `
		SELECT COUNT(*) FROM bookings
		WHERE trip_id = $1 AND status != 'cancelled'`,
		tripID)
	if err != nil {
		return 0, fmt.Errorf("failed to count trip bookings: %w", err)
	}
	return count, nil
}

// Delete removes a trip together with its seats and cancelled bookings.
// The delete is refused while any non-cancelled booking references the trip.
func (r *TripRepository) Delete(tripID string) error {
	tx, err := r.db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var activeBookings int
	err = tx.Get(&activeBookings, `
		SELECT COUNT(*) FROM bookings
		WHERE trip_id = $1 AND status != 'cancelled'`,
		tripID)
	if err != nil {
		return fmt.Errorf("failed to count trip bookings: %w", err)
	}
	if activeBookings > 0 {
		return models.ErrTripHasBookings
	}

	_, err = tx.Exec(`
		DELETE FROM booking_seats
		WHERE booking_id IN (SELECT id FROM bookings WHERE trip_id = $1)`,
		tripID)
	if err != nil {
		return fmt.Errorf("failed to delete booking seats: %w", err)
	}

	_, err = tx.Exec(`DELETE FROM bookings WHERE trip_id = $1`, tripID)
	if err != nil {
		return fmt.Errorf("failed to delete cancelled bookings: %w", err)
	}

	_, err = tx.Exec(`DELETE FROM trip_seats WHERE trip_id = $1`, tripID)
	if err != nil {
		return fmt.Errorf("failed to delete trip seats: %w", err)
	}

	result, err := tx.Exec(`DELETE FROM trips WHERE id = $1`, tripID)
	if err != nil {
		return fmt.Errorf("failed to delete trip: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return models.ErrTripNotFound
	}

	return tx.Commit()
}
