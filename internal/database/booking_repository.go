package database

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/busline/ticketing-backend/internal/models"
)

// BookingRepository handles booking database operations
type BookingRepository struct {
	db *sqlx.DB
}

// NewBookingRepository creates a new BookingRepository
func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

const bookingColumns = `
	id, booking_reference, user_id, trip_id, promo_code_id,
	passenger_name, passenger_email, passenger_phone, num_seats,
	subtotal_cents, discount_cents, total_cents, status, payment_status,
	special_requests, created_at, updated_at`

// GenerateBookingReference generates a unique booking reference
// Format: BK-YYYYMMDD-XXXXXX (6 char alphanumeric)
// Example: BK-20260815-A1B2C3
func (r *BookingRepository) GenerateBookingReference() (string, error) {
	todayStr := time.Now().Format("20060102")

	for attempts := 0; attempts < 10; attempts++ {
		randomBytes := make([]byte, 3)
		if _, err := rand.Read(randomBytes); err != nil {
			return "", fmt.Errorf("failed to generate random bytes: %w", err)
		}
		randomStr := strings.ToUpper(hex.EncodeToString(randomBytes))

		newRef := fmt.Sprintf("BK-%s-%s", todayStr, randomStr)

		var count int
		err := r.db.Get(&count, `SELECT COUNT(*) FROM bookings WHERE booking_reference = $1`, newRef)
		if err != nil {
			return "", fmt.Errorf("failed to check reference uniqueness: %w", err)
		}

		if count == 0 {
			return newRef, nil
		}
	}

	return "", fmt.Errorf("failed to generate unique booking reference after 10 attempts")
}

// CreateBooking creates a booking, claims its seats, adjusts the trip seat
// counter, and consumes promo usage in one transaction. Each write is
// guarded so that a concurrency loser rolls back with the same error a
// plain validation failure would produce.
func (r *BookingRepository) CreateBooking(booking *models.Booking, seats []models.BookingSeat) error {
	tx, err := r.db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// 1. Generate booking reference
	bookingRef, err := r.GenerateBookingReference()
	if err != nil {
		return fmt.Errorf("failed to generate booking reference: %w", err)
	}
	booking.BookingReference = bookingRef

	// 2. Insert booking row
	bookingQuery := `
		INSERT INTO bookings (
			booking_reference, user_id, trip_id, promo_code_id,
			passenger_name, passenger_email, passenger_phone, num_seats,
			subtotal_cents, discount_cents, total_cents,
			status, payment_status, special_requests
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
		) RETURNING id, created_at, updated_at`

	err = tx.QueryRowx(bookingQuery,
		booking.BookingReference, booking.UserID, booking.TripID, booking.PromoCodeID,
		booking.PassengerName, booking.PassengerEmail, booking.PassengerPhone, booking.NumSeats,
		booking.SubtotalCents, booking.DiscountCents, booking.TotalCents,
		booking.Status, booking.PaymentStatus, booking.SpecialRequests,
	).Scan(&booking.ID, &booking.CreatedAt, &booking.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}

	// 3. Claim the seats. Only available seats on this trip flip to booked;
	// a short row count means someone else holds at least one of them.
	seatIDs := make([]string, 0, len(seats))
	for _, seat := range seats {
		seatIDs = append(seatIDs, seat.SeatID)
	}

	if err := claimSeats(tx, booking.TripID, booking.ID, seatIDs); err != nil {
		return err
	}

	// 4. Take the capacity. The guard re-checks bookability so a trip that
	// departed or was cancelled mid-flight fails here.
	if err := takeTripCapacity(tx, booking.TripID, booking.NumSeats); err != nil {
		return err
	}

	// 5. Consume promo usage
	if booking.PromoCodeID != nil {
		if err := consumePromoUsage(tx, *booking.PromoCodeID, booking.UserID); err != nil {
			return err
		}
	}

	// 6. Insert booking seats
	seatQuery := `
		INSERT INTO booking_seats (
			booking_id, seat_id, seat_number, seat_class, seat_price_cents
		) VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	for i := range seats {
		seats[i].BookingID = booking.ID
		err = tx.QueryRowx(seatQuery,
			seats[i].BookingID, seats[i].SeatID, seats[i].SeatNumber,
			seats[i].SeatClass, seats[i].SeatPriceCents,
		).Scan(&seats[i].ID, &seats[i].CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to create booking seat %s: %w", seats[i].SeatNumber, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// claimSeats flips the given seats to booked for a booking. All of them
// must be available on the given trip or the claim fails with the seat
// numbers that were not.
func claimSeats(tx *sqlx.Tx, tripID, bookingID string, seatIDs []string) error {
	query, args, err := sqlx.In(`
		UPDATE trip_seats
		SET status = 'booked',
			booking_id = ?,
			updated_at = NOW()
		WHERE id IN (?) AND trip_id = ? AND status = 'available'`,
		bookingID, seatIDs, tripID)
	if err != nil {
		return err
	}

	query = tx.Rebind(query)
	result, err := tx.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to claim seats: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if int(rowsAffected) == len(seatIDs) {
		return nil
	}

	// Collect the seat numbers that did not flip for the error message.
	query, args, err = sqlx.In(`
		SELECT seat_number FROM trip_seats
		WHERE id IN (?) AND (booking_id IS NULL OR booking_id != ?)`,
		seatIDs, bookingID)
	if err != nil {
		return &models.SeatUnavailableError{}
	}
	query = tx.Rebind(query)

	var taken []string
	if err := tx.Select(&taken, query, args...); err != nil {
		return &models.SeatUnavailableError{}
	}

	return &models.SeatUnavailableError{SeatNumbers: taken}
}

// takeTripCapacity decrements the trip's available seat counter. The
// guard keeps the counter non-negative and re-checks that the trip is
// still bookable, so the zero-rows case is mapped back to the exact
// validation error the caller would have seen.
func takeTripCapacity(tx *sqlx.Tx, tripID string, numSeats int) error {
	result, err := tx.Exec(`
		UPDATE trips
		SET available_seats = available_seats - $2, updated_at = NOW()
		WHERE id = $1
		  AND status = 'scheduled'
		  AND departure_time > NOW()
		  AND available_seats >= $2`,
		tripID, numSeats)
	if err != nil {
		return fmt.Errorf("failed to update trip capacity: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 1 {
		return nil
	}

	trip := &models.Trip{}
	err = tx.Get(trip, `SELECT`+tripColumns+` FROM trips WHERE id = $1`, tripID)
	if err != nil {
		if err == sql.ErrNoRows {
			return models.ErrTripNotFound
		}
		return fmt.Errorf("failed to recheck trip: %w", err)
	}

	switch {
	case trip.Status != models.TripStatusScheduled:
		return models.ErrTripNotBookable
	case trip.IsPastDeparture():
		return models.ErrTripDeparted
	default:
		return models.ErrInsufficientCapacity
	}
}

// releaseTripCapacity returns seats to the trip's available counter. The
// guard keeps the counter from climbing past total_seats; tripping it means
// the counter was already wrong, and the transaction rolls back.
func releaseTripCapacity(tx *sqlx.Tx, tripID string, numSeats int) error {
	result, err := tx.Exec(`
		UPDATE trips
		SET available_seats = available_seats + $2, updated_at = NOW()
		WHERE id = $1
		  AND available_seats + $2 <= total_seats`,
		tripID, numSeats)
	if err != nil {
		return fmt.Errorf("failed to release trip capacity: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected != 1 {
		return fmt.Errorf("trip %s cannot take back %d seats without exceeding capacity", tripID, numSeats)
	}
	return nil
}

// consumePromoUsage increments a promo code's usage inside the booking
// transaction. The guard re-validates the code so an expired, disabled,
// or exhausted promo fails with its validation reason. The per-user cap
// is counted over the user's non-cancelled bookings, this one included.
func consumePromoUsage(tx *sqlx.Tx, promoCodeID, userID string) error {
	result, err := tx.Exec(`
		UPDATE promo_codes
		SET used_count = used_count + 1, updated_at = NOW()
		WHERE id = $1
		  AND is_active = TRUE
		  AND valid_from <= NOW()
		  AND valid_until >= NOW()
		  AND (usage_limit IS NULL OR used_count < usage_limit)`,
		promoCodeID)
	if err != nil {
		return fmt.Errorf("failed to consume promo usage: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected != 1 {
		promo := &models.PromoCode{}
		err = tx.Get(promo, `SELECT`+promoColumns+` FROM promo_codes WHERE id = $1`, promoCodeID)
		if err != nil {
			if err == sql.ErrNoRows {
				return models.ErrPromoNotFound
			}
			return fmt.Errorf("failed to recheck promo code: %w", err)
		}
		return promo.ValidateAt(time.Now())
	}

	var promo models.PromoCode
	err = tx.Get(&promo, `SELECT`+promoColumns+` FROM promo_codes WHERE id = $1`, promoCodeID)
	if err != nil {
		return fmt.Errorf("failed to load promo code: %w", err)
	}

	if promo.UsagePerUser != nil {
		var used int
		err = tx.Get(&used, `
			SELECT COUNT(*) FROM bookings
			WHERE user_id = $1 AND promo_code_id = $2 AND status != 'cancelled'`,
			userID, promoCodeID)
		if err != nil {
			return fmt.Errorf("failed to count promo usage for user: %w", err)
		}
		if used > *promo.UsagePerUser {
			return models.ErrPromoIneligible
		}
	}

	return nil
}

// CancelBooking cancels a booking, releases its seats back to the trip,
// and returns promo usage. A paid booking flips to refunded. The whole
// operation runs in one transaction.
func (r *BookingRepository) CancelBooking(bookingID string) (*models.Booking, error) {
	tx, err := r.db.Beginx()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// 1. Flip the booking. Only pending and confirmed bookings on trips
	// that have not yet departed can cancel; zero rows means the booking
	// is in a terminal state or the trip already left.
	booking := &models.Booking{}
	err = tx.QueryRowx(`
		UPDATE bookings
		SET status = 'cancelled',
			payment_status = CASE WHEN payment_status = 'paid' THEN 'refunded' ELSE payment_status END,
			updated_at = NOW()
		WHERE id = $1
		  AND status IN ('pending', 'confirmed')
		  AND (SELECT departure_time FROM trips WHERE id = bookings.trip_id) > NOW()
		RETURNING`+bookingColumns,
		bookingID).StructScan(booking)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, r.cancelConflict(bookingID)
		}
		return nil, fmt.Errorf("failed to cancel booking: %w", err)
	}

	// 2. Release the seats. A live booking must hold exactly num_seats
	// booked seats; anything else means the inventory was touched behind
	// the booking's back, and the cancel rolls back instead of papering
	// over it.
	result, err := tx.Exec(`
		UPDATE trip_seats
		SET status = 'available',
			booking_id = NULL,
			updated_at = NOW()
		WHERE booking_id = $1 AND status = 'booked'`,
		bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to release seats: %w", err)
	}

	released, _ := result.RowsAffected()
	if int(released) != booking.NumSeats {
		return nil, fmt.Errorf("booking %s holds %d seats but %d were released", bookingID, booking.NumSeats, released)
	}
	if err := releaseTripCapacity(tx, booking.TripID, booking.NumSeats); err != nil {
		return nil, err
	}

	// 3. Return promo usage, floored at zero
	if booking.PromoCodeID != nil {
		_, err = tx.Exec(`
			UPDATE promo_codes
			SET used_count = GREATEST(used_count - 1, 0), updated_at = NOW()
			WHERE id = $1`,
			*booking.PromoCodeID)
		if err != nil {
			return nil, fmt.Errorf("failed to return promo usage: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return booking, nil
}

// cancelConflict explains why the cancel update matched no rows.
func (r *BookingRepository) cancelConflict(bookingID string) error {
	booking, err := r.GetByID(bookingID)
	if err != nil {
		return err
	}
	if booking == nil {
		return models.ErrBookingNotFound
	}
	switch booking.Status {
	case models.BookingStatusCancelled:
		return models.ErrAlreadyCancelled
	case models.BookingStatusCompleted:
		return models.ErrAlreadyCompleted
	}

	// Still pending or confirmed, so the guard failed on the trip.
	var departure time.Time
	err = r.db.Get(&departure, `SELECT departure_time FROM trips WHERE id = $1`, booking.TripID)
	if err != nil {
		return fmt.Errorf("failed to recheck trip departure: %w", err)
	}
	if !departure.After(time.Now()) {
		return models.ErrTripDeparted
	}
	return fmt.Errorf("booking %s cannot be cancelled in status %s", bookingID, booking.Status)
}

// ReactivateBooking restores a cancelled booking to the target status
// (pending or confirmed). The original seats are re-claimed, capacity
// re-taken, and the promo code re-validated, exactly as if the booking
// were being created again.
func (r *BookingRepository) ReactivateBooking(bookingID string, target models.BookingStatus) (*models.Booking, error) {
	tx, err := r.db.Beginx()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// 1. Claim the transition
	booking := &models.Booking{}
	err = tx.QueryRowx(`
		UPDATE bookings
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'cancelled'
		RETURNING`+bookingColumns,
		bookingID, target).StructScan(booking)
	if err != nil {
		if err == sql.ErrNoRows {
			existing, getErr := r.GetByID(bookingID)
			if getErr != nil {
				return nil, getErr
			}
			if existing == nil {
				return nil, models.ErrBookingNotFound
			}
			return nil, fmt.Errorf("only cancelled bookings can be reactivated, booking is %s", existing.Status)
		}
		return nil, fmt.Errorf("failed to reactivate booking: %w", err)
	}

	// 2. Re-claim the original seats
	result, err := tx.Exec(`
		UPDATE trip_seats
		SET status = 'booked',
			booking_id = $1,
			updated_at = NOW()
		WHERE id IN (SELECT seat_id FROM booking_seats WHERE booking_id = $1)
		  AND status = 'available'`,
		bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to re-claim seats: %w", err)
	}

	reclaimed, _ := result.RowsAffected()
	if int(reclaimed) != booking.NumSeats {
		return nil, models.ErrSeatsNoLongerAvailable
	}

	// 3. Re-take the capacity
	if err := takeTripCapacity(tx, booking.TripID, booking.NumSeats); err != nil {
		return nil, err
	}

	// 4. Re-consume the promo
	if booking.PromoCodeID != nil {
		if err := consumePromoUsage(tx, *booking.PromoCodeID, booking.UserID); err != nil {
			return nil, err
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return booking, nil
}

// GetByID retrieves a booking by ID. Returns (nil, nil) when not found.
func (r *BookingRepository) GetByID(bookingID string) (*models.Booking, error) {
	booking := &models.Booking{}
	query := `SELECT` + bookingColumns + ` FROM bookings WHERE id = $1`

	err := r.db.Get(booking, query, bookingID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get booking by ID: %w", err)
	}

	return booking, nil
}

// GetByReference retrieves a booking by its reference. Returns (nil, nil)
// when not found.
func (r *BookingRepository) GetByReference(reference string) (*models.Booking, error) {
	booking := &models.Booking{}
	query := `SELECT` + bookingColumns + ` FROM bookings WHERE booking_reference = $1`

	err := r.db.Get(booking, query, reference)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get booking by reference: %w", err)
	}

	return booking, nil
}

// GetSeats retrieves the seat lines of a booking in seat number order.
func (r *BookingRepository) GetSeats(bookingID string) ([]models.BookingSeat, error) {
	query := `
		SELECT id, booking_id, seat_id, seat_number, seat_class, seat_price_cents, created_at
		FROM booking_seats
		WHERE booking_id = $1
		ORDER BY seat_number`

	var seats []models.BookingSeat
	if err := r.db.Select(&seats, query, bookingID); err != nil {
		return nil, fmt.Errorf("failed to get booking seats: %w", err)
	}

	return seats, nil
}

// List retrieves bookings matching the filter, newest first.
func (r *BookingRepository) List(filter models.BookingFilter) ([]models.Booking, error) {
	conditions := []string{}
	args := []interface{}{}

	if filter.Status != nil {
		args = append(args, *filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.PaymentStatus != nil {
		args = append(args, *filter.PaymentStatus)
		conditions = append(conditions, fmt.Sprintf("payment_status = $%d", len(args)))
	}
	if filter.UserID != nil {
		args = append(args, *filter.UserID)
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.TripID != nil {
		args = append(args, *filter.TripID)
		conditions = append(conditions, fmt.Sprintf("trip_id = $%d", len(args)))
	}

	query := `SELECT` + bookingColumns + ` FROM bookings`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	args = append(args, filter.Limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))
	args = append(args, filter.Offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	var bookings []models.Booking
	if err := r.db.Select(&bookings, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}

	return bookings, nil
}

// CountByUserAndPromo counts a user's non-cancelled bookings that used a
// promo code.
func (r *BookingRepository) CountByUserAndPromo(userID, promoCodeID string) (int, error) {
	var count int
	err := r.db.Get(&count, `
		SELECT COUNT(*) FROM bookings
		WHERE user_id = $1 AND promo_code_id = $2 AND status != 'cancelled'`,
		userID, promoCodeID)
	if err != nil {
		return 0, fmt.Errorf("failed to count promo usage for user: %w", err)
	}
	return count, nil
}

// UpdateStatusFrom moves a booking from one status to another. The
// expected current status makes the update a compare-and-set; zero rows
// means something else got there first.
func (r *BookingRepository) UpdateStatusFrom(bookingID string, from, to models.BookingStatus) error {
	result, err := r.db.Exec(`
		UPDATE bookings
		SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2`,
		bookingID, from, to)
	if err != nil {
		return fmt.Errorf("failed to update booking status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		existing, getErr := r.GetByID(bookingID)
		if getErr != nil {
			return getErr
		}
		if existing == nil {
			return models.ErrBookingNotFound
		}
		return fmt.Errorf("booking status changed to %s, expected %s", existing.Status, from)
	}

	return nil
}

// MarkPaid flips the booking's payment status to paid. Cancelled bookings
// are refused; a booking that is already paid is left alone so repeated
// gateway confirmations stay idempotent.
func (r *BookingRepository) MarkPaid(bookingID string) error {
	result, err := r.db.Exec(`
		UPDATE bookings
		SET payment_status = 'paid', updated_at = NOW()
		WHERE id = $1 AND status != 'cancelled' AND payment_status IN ('unpaid', 'failed')`,
		bookingID)
	if err != nil {
		return fmt.Errorf("failed to mark booking paid: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		existing, getErr := r.GetByID(bookingID)
		if getErr != nil {
			return getErr
		}
		if existing == nil {
			return models.ErrBookingNotFound
		}
		if existing.Status == models.BookingStatusCancelled {
			return models.ErrBookingCancelled
		}
		// Already paid or refunded, nothing to do.
	}

	return nil
}

// MarkRefunded flips the booking's payment status to refunded. Refunds
// and cancellation are independent, so a cancelled booking is updated
// like any other.
func (r *BookingRepository) MarkRefunded(bookingID string) error {
	result, err := r.db.Exec(`
		UPDATE bookings
		SET payment_status = 'refunded', updated_at = NOW()
		WHERE id = $1`,
		bookingID)
	if err != nil {
		return fmt.Errorf("failed to mark booking refunded: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return models.ErrBookingNotFound
	}

	return nil
}

// SetPaymentStatus writes the booking's payment status directly. Callers
// validate the transition; cancelled bookings are still refused here.
func (r *BookingRepository) SetPaymentStatus(bookingID string, status models.PaymentStatus) error {
	result, err := r.db.Exec(`
		UPDATE bookings
		SET payment_status = $2, updated_at = NOW()
		WHERE id = $1 AND status != 'cancelled'`,
		bookingID, status)
	if err != nil {
		return fmt.Errorf("failed to set payment status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		existing, getErr := r.GetByID(bookingID)
		if getErr != nil {
			return getErr
		}
		if existing == nil {
			return models.ErrBookingNotFound
		}
		return models.ErrBookingCancelled
	}

	return nil
}
