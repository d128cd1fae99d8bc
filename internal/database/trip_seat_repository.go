package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/busline/ticketing-backend/internal/models"
)

// TripSeatRepository handles trip_seats database operations
type TripSeatRepository struct {
	db *sqlx.DB
}

// NewTripSeatRepository creates a new TripSeatRepository
func NewTripSeatRepository(db *sqlx.DB) *TripSeatRepository {
	return &TripSeatRepository{db: db}
}

const seatColumns = `
	id, trip_id, seat_number, seat_class, price_multiplier, status,
	booking_id, block_reason, created_at, updated_at`

// CreateSeats bulk-creates seats on a trip. The whole batch is rejected
// when any requested seat number already exists on the trip.
func (r *TripSeatRepository) CreateSeats(tripID string, specs []models.SeatSpec) ([]models.Seat, error) {
	if len(specs) == 0 {
		return []models.Seat{}, nil
	}

	tx, err := r.db.Beginx()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	seatNumbers := make([]string, 0, len(specs))
	for _, spec := range specs {
		seatNumbers = append(seatNumbers, spec.SeatNumber)
	}

	query, args, err := sqlx.In(`
		SELECT seat_number FROM trip_seats
		WHERE trip_id = ? AND seat_number IN (?)`,
		tripID, seatNumbers)
	if err != nil {
		return nil, err
	}
	query = tx.Rebind(query)

	var existing []string
	if err := tx.Select(&existing, query, args...); err != nil {
		return nil, fmt.Errorf("failed to check existing seats: %w", err)
	}
	if len(existing) > 0 {
		return nil, fmt.Errorf("%w: %v", models.ErrSeatNumberExists, existing)
	}

	insertQuery := `
		INSERT INTO trip_seats (trip_id, seat_number, seat_class, price_multiplier, status)
		VALUES ($1, $2, $3, $4, 'available')
		RETURNING` + seatColumns

	created := make([]models.Seat, 0, len(specs))
	for _, spec := range specs {
		var seat models.Seat
		err := tx.QueryRowx(insertQuery, tripID, spec.SeatNumber, spec.SeatClass, spec.PriceMultiplier).
			StructScan(&seat)
		if err != nil {
			if isUniqueViolation(err) {
				return nil, fmt.Errorf("%w: %s", models.ErrSeatNumberExists, spec.SeatNumber)
			}
			return nil, fmt.Errorf("failed to create seat %s: %w", spec.SeatNumber, err)
		}
		created = append(created, seat)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return created, nil
}

// GetByID returns a single seat by ID. Returns (nil, nil) when not found.
func (r *TripSeatRepository) GetByID(seatID string) (*models.Seat, error) {
	seat := &models.Seat{}
	query := `SELECT` + seatColumns + ` FROM trip_seats WHERE id = $1`

	err := r.db.Get(seat, query, seatID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get seat by ID: %w", err)
	}

	return seat, nil
}

// GetByIDs returns the seats with the given IDs, in seat number order.
func (r *TripSeatRepository) GetByIDs(seatIDs []string) ([]models.Seat, error) {
	if len(seatIDs) == 0 {
		return []models.Seat{}, nil
	}

	query, args, err := sqlx.In(`
		SELECT`+seatColumns+`
		FROM trip_seats
		WHERE id IN (?)
		ORDER BY seat_number`, seatIDs)
	if err != nil {
		return nil, err
	}
	query = r.db.Rebind(query)

	var seats []models.Seat
	if err := r.db.Select(&seats, query, args...); err != nil {
		return nil, fmt.Errorf("failed to get seats by IDs: %w", err)
	}

	return seats, nil
}

// GetByTripID returns all seats on a trip in seat number order, optionally
// filtered by seat class.
func (r *TripSeatRepository) GetByTripID(tripID string, class *models.SeatClass) ([]models.Seat, error) {
	query := `SELECT` + seatColumns + ` FROM trip_seats WHERE trip_id = $1`
	args := []interface{}{tripID}

	if class != nil {
		query += ` AND seat_class = $2`
		args = append(args, *class)
	}
	query += ` ORDER BY seat_number`

	var seats []models.Seat
	if err := r.db.Select(&seats, query, args...); err != nil {
		return nil, fmt.Errorf("failed to get seats for trip: %w", err)
	}

	return seats, nil
}

// GetAvailableByTripID returns only the available seats on a trip,
// optionally filtered by seat class.
func (r *TripSeatRepository) GetAvailableByTripID(tripID string, class *models.SeatClass) ([]models.Seat, error) {
	query := `SELECT` + seatColumns + ` FROM trip_seats WHERE trip_id = $1 AND status = 'available'`
	args := []interface{}{tripID}

	if class != nil {
		query += ` AND seat_class = $2`
		args = append(args, *class)
	}
	query += ` ORDER BY seat_number`

	var seats []models.Seat
	if err := r.db.Select(&seats, query, args...); err != nil {
		return nil, fmt.Errorf("failed to get available seats: %w", err)
	}

	return seats, nil
}

// GetByBookingID returns the seats currently held by a booking.
func (r *TripSeatRepository) GetByBookingID(bookingID string) ([]models.Seat, error) {
	query := `SELECT` + seatColumns + ` FROM trip_seats WHERE booking_id = $1 ORDER BY seat_number`

	var seats []models.Seat
	if err := r.db.Select(&seats, query, bookingID); err != nil {
		return nil, fmt.Errorf("failed to get seats for booking: %w", err)
	}

	return seats, nil
}

// Summary returns per-class seat counts for a trip.
func (r *TripSeatRepository) Summary(tripID string) ([]models.TripSeatSummary, error) {
	query := `
		SELECT
			seat_class,
			COUNT(*) as total,
			COUNT(*) FILTER (WHERE status = 'available') as available,
			COUNT(*) FILTER (WHERE status = 'booked') as booked,
			COUNT(*) FILTER (WHERE status = 'blocked') as blocked
		FROM trip_seats
		WHERE trip_id = $1
		GROUP BY seat_class
		ORDER BY seat_class`

	var summaries []models.TripSeatSummary
	if err := r.db.Select(&summaries, query, tripID); err != nil {
		return nil, fmt.Errorf("failed to summarize trip seats: %w", err)
	}

	return summaries, nil
}

// BlockSeats blocks the given seats. Only available seats can be blocked;
// the returned count tells the caller how many actually were.
func (r *TripSeatRepository) BlockSeats(seatIDs []string, reason string) (int, error) {
	if len(seatIDs) == 0 {
		return 0, nil
	}

	query, args, err := sqlx.In(`
		UPDATE trip_seats
		SET status = 'blocked',
			block_reason = ?,
			updated_at = ?
		WHERE id IN (?) AND status = 'available'`,
		reason, time.Now(), seatIDs)
	if err != nil {
		return 0, err
	}

	query = r.db.Rebind(query)
	result, err := r.db.Exec(query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to block seats: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	return int(rowsAffected), nil
}

// UnblockSeats returns blocked seats to available.
func (r *TripSeatRepository) UnblockSeats(seatIDs []string) (int, error) {
	if len(seatIDs) == 0 {
		return 0, nil
	}

	query, args, err := sqlx.In(`
		UPDATE trip_seats
		SET status = 'available',
			block_reason = NULL,
			updated_at = ?
		WHERE id IN (?) AND status = 'blocked'`,
		time.Now(), seatIDs)
	if err != nil {
		return 0, err
	}

	query = r.db.Rebind(query)
	result, err := r.db.Exec(query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to unblock seats: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	return int(rowsAffected), nil
}

// Update writes a seat row back. Booked seats are never touched: a seat
// that a live booking holds cannot be renamed, repriced, or released here.
func (r *TripSeatRepository) Update(seat *models.Seat) error {
	query := `
		UPDATE trip_seats
		SET seat_number = $2, seat_class = $3, price_multiplier = $4,
			status = $5, block_reason = $6, updated_at = NOW()
		WHERE id = $1 AND status != 'booked'
		RETURNING updated_at`

	err := r.db.QueryRow(query,
		seat.ID, seat.SeatNumber, seat.SeatClass, seat.PriceMultiplier,
		seat.Status, seat.BlockReason,
	).Scan(&seat.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			existing, getErr := r.GetByID(seat.ID)
			if getErr != nil {
				return getErr
			}
			if existing == nil {
				return models.ErrSeatNotFound
			}
			return models.ErrSeatInUse
		}
		return fmt.Errorf("failed to update seat: %w", err)
	}

	return nil
}

// Delete removes a seat. Booked seats cannot be deleted.
func (r *TripSeatRepository) Delete(seatID string) error {
	result, err := r.db.Exec(`DELETE FROM trip_seats WHERE id = $1 AND status != 'booked'`, seatID)
	if err != nil {
		return fmt.Errorf("failed to delete seat: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		existing, getErr := r.GetByID(seatID)
		if getErr != nil {
			return getErr
		}
		if existing == nil {
			return models.ErrSeatNotFound
		}
		return models.ErrSeatInUse
	}

	return nil
}
