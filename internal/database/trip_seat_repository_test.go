package database

import (
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/busline/ticketing-backend/internal/models"
)

var seatTestColumns = []string{
	"id", "trip_id", "seat_number", "seat_class", "price_multiplier", "status",
	"booking_id", "block_reason", "created_at", "updated_at",
}

func seatTestRow(id, number, status string, bookingID interface{}) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(seatTestColumns).AddRow(
		id, "trip-1", number, "economy", 1.0, status, bookingID, nil, now, now,
	)
}

func TestCreateSeats(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		db, mock := newSqlxMock(t)
		repo := NewTripSeatRepository(db)

		specs := []models.SeatSpec{
			{SeatNumber: "1A", SeatClass: "economy", PriceMultiplier: 1.0},
			{SeatNumber: "1B", SeatClass: "business", PriceMultiplier: 1.5},
		}
		now := time.Now()

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT seat_number FROM trip_seats`).
			WillReturnRows(sqlmock.NewRows([]string{"seat_number"}))
		mock.ExpectQuery(`INSERT INTO trip_seats`).
			WithArgs("trip-1", "1A", "economy", 1.0).
			WillReturnRows(sqlmock.NewRows(seatTestColumns).AddRow(
				"seat-1", "trip-1", "1A", "economy", 1.0, "available", nil, nil, now, now))
		mock.ExpectQuery(`INSERT INTO trip_seats`).
			WithArgs("trip-1", "1B", "business", 1.5).
			WillReturnRows(sqlmock.NewRows(seatTestColumns).AddRow(
				"seat-2", "trip-1", "1B", "business", 1.5, "available", nil, nil, now, now))
		mock.ExpectCommit()

		seats, err := repo.CreateSeats("trip-1", specs)
		require.NoError(t, err)
		require.Len(t, seats, 2)
		assert.Equal(t, "seat-1", seats[0].ID)
		assert.Equal(t, models.SeatStatusAvailable, seats[0].Status)
		assert.Equal(t, models.SeatClassBusiness, seats[1].SeatClass)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Duplicate Seat Numbers", func(t *testing.T) {
		db, mock := newSqlxMock(t)
		repo := NewTripSeatRepository(db)

		specs := []models.SeatSpec{
			{SeatNumber: "1A", SeatClass: "economy", PriceMultiplier: 1.0},
		}

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT seat_number FROM trip_seats`).
			WillReturnRows(sqlmock.NewRows([]string{"seat_number"}).AddRow("1A"))
		mock.ExpectRollback()

		seats, err := repo.CreateSeats("trip-1", specs)
		assert.ErrorIs(t, err, models.ErrSeatNumberExists)
		assert.Nil(t, seats)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Empty Input", func(t *testing.T) {
		db, mock := newSqlxMock(t)
		repo := NewTripSeatRepository(db)

		seats, err := repo.CreateSeats("trip-1", nil)
		require.NoError(t, err)
		assert.Len(t, seats, 0)

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSeatGetByID(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		db, mock := newSqlxMock(t)
		repo := NewTripSeatRepository(db)

		mock.ExpectQuery(`SELECT (.+) FROM trip_seats WHERE id`).
			WithArgs("seat-1").
			WillReturnRows(seatTestRow("seat-1", "1A", "booked", "booking-1"))

		seat, err := repo.GetByID("seat-1")
		require.NoError(t, err)
		require.NotNil(t, seat)
		assert.Equal(t, models.SeatStatusBooked, seat.Status)
		require.NotNil(t, seat.BookingID)
		assert.Equal(t, "booking-1", *seat.BookingID)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Not Found", func(t *testing.T) {
		db, mock := newSqlxMock(t)
		repo := NewTripSeatRepository(db)

		mock.ExpectQuery(`SELECT (.+) FROM trip_seats WHERE id`).
			WithArgs("missing").
			WillReturnError(sql.ErrNoRows)

		seat, err := repo.GetByID("missing")
		require.NoError(t, err)
		assert.Nil(t, seat)

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGetAvailableByTripID(t *testing.T) {
	t.Run("Filtered By Class", func(t *testing.T) {
		db, mock := newSqlxMock(t)
		repo := NewTripSeatRepository(db)

		class := models.SeatClassBusiness
		now := time.Now()

		mock.ExpectQuery(`SELECT (.+) FROM trip_seats WHERE trip_id`).
			WithArgs("trip-1", class).
			WillReturnRows(sqlmock.NewRows(seatTestColumns).AddRow(
				"seat-2", "trip-1", "1B", "business", 1.5, "available", nil, nil, now, now))

		seats, err := repo.GetAvailableByTripID("trip-1", &class)
		require.NoError(t, err)
		require.Len(t, seats, 1)
		assert.Equal(t, models.SeatClassBusiness, seats[0].SeatClass)

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestBlockSeats(t *testing.T) {
	t.Run("All Blocked", func(t *testing.T) {
		db, mock := newSqlxMock(t)
		repo := NewTripSeatRepository(db)

		mock.ExpectExec(`UPDATE trip_seats`).
			WillReturnResult(sqlmock.NewResult(0, 2))

		blocked, err := repo.BlockSeats([]string{"seat-1", "seat-2"}, "maintenance")
		require.NoError(t, err)
		assert.Equal(t, 2, blocked)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Partial Block", func(t *testing.T) {
		db, mock := newSqlxMock(t)
		repo := NewTripSeatRepository(db)

		// One of the seats is already booked, only the other flips.
		mock.ExpectExec(`UPDATE trip_seats`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		blocked, err := repo.BlockSeats([]string{"seat-1", "seat-2"}, "maintenance")
		require.NoError(t, err)
		assert.Equal(t, 1, blocked)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Empty Input", func(t *testing.T) {
		db, mock := newSqlxMock(t)
		repo := NewTripSeatRepository(db)

		blocked, err := repo.BlockSeats(nil, "maintenance")
		require.NoError(t, err)
		assert.Equal(t, 0, blocked)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Database Error", func(t *testing.T) {
		db, mock := newSqlxMock(t)
		repo := NewTripSeatRepository(db)

		mock.ExpectExec(`UPDATE trip_seats`).
			WillReturnError(fmt.Errorf("database error"))

		_, err := repo.BlockSeats([]string{"seat-1"}, "maintenance")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to block seats")

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUnblockSeats(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		db, mock := newSqlxMock(t)
		repo := NewTripSeatRepository(db)

		mock.ExpectExec(`UPDATE trip_seats`).
			WillReturnResult(sqlmock.NewResult(0, 2))

		unblocked, err := repo.UnblockSeats([]string{"seat-1", "seat-2"})
		require.NoError(t, err)
		assert.Equal(t, 2, unblocked)

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSeatSummary(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		db, mock := newSqlxMock(t)
		repo := NewTripSeatRepository(db)

		mock.ExpectQuery(`SELECT(.+)FROM trip_seats`).
			WithArgs("trip-1").
			WillReturnRows(sqlmock.NewRows([]string{"seat_class", "total", "available", "booked", "blocked"}).
				AddRow("business", 8, 5, 2, 1).
				AddRow("economy", 32, 20, 12, 0))

		summaries, err := repo.Summary("trip-1")
		require.NoError(t, err)
		require.Len(t, summaries, 2)
		assert.Equal(t, models.SeatClassBusiness, summaries[0].SeatClass)
		assert.Equal(t, 8, summaries[0].Total)
		assert.Equal(t, 2, summaries[0].Booked)
		assert.Equal(t, 1, summaries[0].Blocked)

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSeatUpdate(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		db, mock := newSqlxMock(t)
		repo := NewTripSeatRepository(db)

		seat := &models.Seat{
			ID:              "seat-1",
			SeatNumber:      "1A",
			SeatClass:       models.SeatClassBusiness,
			PriceMultiplier: 1.5,
			Status:          models.SeatStatusAvailable,
		}

		mock.ExpectQuery(`UPDATE trip_seats`).
			WithArgs("seat-1", "1A", models.SeatClassBusiness, 1.5, models.SeatStatusAvailable, nil).
			WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(time.Now()))

		err := repo.Update(seat)
		require.NoError(t, err)
		assert.False(t, seat.UpdatedAt.IsZero())

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Booked Seat Refused", func(t *testing.T) {
		db, mock := newSqlxMock(t)
		repo := NewTripSeatRepository(db)

		seat := &models.Seat{
			ID:              "seat-1",
			SeatNumber:      "1A",
			SeatClass:       models.SeatClassEconomy,
			PriceMultiplier: 1.0,
			Status:          models.SeatStatusAvailable,
		}

		mock.ExpectQuery(`UPDATE trip_seats`).
			WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery(`SELECT (.+) FROM trip_seats WHERE id`).
			WithArgs("seat-1").
			WillReturnRows(seatTestRow("seat-1", "1A", "booked", "booking-1"))

		err := repo.Update(seat)
		assert.ErrorIs(t, err, models.ErrSeatInUse)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Not Found", func(t *testing.T) {
		db, mock := newSqlxMock(t)
		repo := NewTripSeatRepository(db)

		seat := &models.Seat{ID: "missing", SeatNumber: "1A", SeatClass: models.SeatClassEconomy, PriceMultiplier: 1.0, Status: models.SeatStatusAvailable}

		mock.ExpectQuery(`UPDATE trip_seats`).
			WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery(`SELECT (.+) FROM trip_seats WHERE id`).
			WithArgs("missing").
			WillReturnError(sql.ErrNoRows)

		err := repo.Update(seat)
		assert.ErrorIs(t, err, models.ErrSeatNotFound)

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSeatDelete(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		db, mock := newSqlxMock(t)
		repo := NewTripSeatRepository(db)

		mock.ExpectExec(`DELETE FROM trip_seats`).
			WithArgs("seat-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Delete("seat-1")
		require.NoError(t, err)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Booked Seat Refused", func(t *testing.T) {
		db, mock := newSqlxMock(t)
		repo := NewTripSeatRepository(db)

		mock.ExpectExec(`DELETE FROM trip_seats`).
			WithArgs("seat-1").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT (.+) FROM trip_seats WHERE id`).
			WithArgs("seat-1").
			WillReturnRows(seatTestRow("seat-1", "1A", "booked", "booking-1"))

		err := repo.Delete("seat-1")
		assert.ErrorIs(t, err, models.ErrSeatInUse)

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
