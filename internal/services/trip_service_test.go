package services

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/busline/ticketing-backend/internal/database"
	"github.com/busline/ticketing-backend/internal/models"
)

func setupTripTest(t *testing.T) (*TripService, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	sqlxDB := sqlx.NewDb(db, "sqlmock")
	service := NewTripService(
		database.NewTripRepository(sqlxDB),
		database.NewTripSeatRepository(sqlxDB),
		nil, // no Redis in unit tests
		testLogger(),
	)

	cleanup := func() {
		db.Close()
	}

	return service, mock, cleanup
}

func smallTripRow(totalSeats, available int) *sqlmock.Rows {
	now := time.Now()
	departure := now.Add(24 * time.Hour)
	return sqlmock.NewRows(svcTripColumns).AddRow(
		"trip-1", "TRIP-001", "Springfield", "Shelbyville",
		departure, departure.Add(2*time.Hour), 120, int64(5000), totalSeats, available,
		models.TripStatusScheduled, "Capital Lines", nil, nil, now, now,
	)
}

func TestTripSearch_HitsDatabase(t *testing.T) {
	service, mock, cleanup := setupTripTest(t)
	defer cleanup()

	travelDate := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	params := models.TripSearchParams{
		Origin:      "Springfield",
		TravelDate:  travelDate,
		SeatsNeeded: 2,
	}

	mock.ExpectQuery("FROM trips WHERE status = 'scheduled'").
		WithArgs(travelDate, travelDate.AddDate(0, 0, 1), "%Springfield%", 2).
		WillReturnRows(svcTripRow(models.TripStatusScheduled, time.Now().Add(24*time.Hour), 10))

	trips, err := service.Search(context.Background(), params)
	require.NoError(t, err)
	require.Len(t, trips, 1)
	assert.Equal(t, "TRIP-001", trips[0].TripNumber)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTripCities_Filtered(t *testing.T) {
	service, mock, cleanup := setupTripTest(t)
	defer cleanup()

	mock.ExpectQuery("SELECT city FROM").
		WithArgs("%spring%").
		WillReturnRows(sqlmock.NewRows([]string{"city"}).AddRow("Springfield"))

	cities, err := service.Cities("spring")
	require.NoError(t, err)
	assert.Equal(t, []string{"Springfield"}, cities)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTripCreate_Success(t *testing.T) {
	service, mock, cleanup := setupTripTest(t)
	defer cleanup()

	departure := time.Now().Add(48 * time.Hour).Truncate(time.Second)
	arrival := departure.Add(150 * time.Minute)
	now := time.Now()

	req := &models.CreateTripRequest{
		TripNumber:    "TRIP-042",
		Origin:        "Springfield",
		Destination:   "Shelbyville",
		DepartureTime: departure.Format(time.RFC3339),
		ArrivalTime:   arrival.Format(time.RFC3339),
		BaseFareCents: 5000,
		TotalSeats:    40,
		OperatorName:  "Capital Lines",
	}

	mock.ExpectQuery("FROM trips WHERE trip_number").
		WithArgs("TRIP-042").
		WillReturnRows(sqlmock.NewRows(svcTripColumns))
	mock.ExpectQuery("INSERT INTO trips").
		WithArgs("TRIP-042", "Springfield", "Shelbyville",
			sqlmock.AnyArg(), sqlmock.AnyArg(), 150, int64(5000), 40,
			models.TripStatusScheduled, "Capital Lines", nil, nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow("trip-42", now, now))

	trip, err := service.CreateTrip(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "trip-42", trip.ID)
	assert.Equal(t, 150, trip.DurationMinutes)
	assert.Equal(t, 40, trip.AvailableSeats, "fresh trip starts with every seat available")
	assert.Equal(t, models.TripStatusScheduled, trip.Status)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTripCreate_DuplicateNumber(t *testing.T) {
	service, mock, cleanup := setupTripTest(t)
	defer cleanup()

	departure := time.Now().Add(48 * time.Hour)
	req := &models.CreateTripRequest{
		TripNumber:    "TRIP-001",
		Origin:        "Springfield",
		Destination:   "Shelbyville",
		DepartureTime: departure.Format(time.RFC3339),
		ArrivalTime:   departure.Add(2 * time.Hour).Format(time.RFC3339),
		BaseFareCents: 5000,
		TotalSeats:    40,
		OperatorName:  "Capital Lines",
	}

	mock.ExpectQuery("FROM trips WHERE trip_number").
		WithArgs("TRIP-001").
		WillReturnRows(svcTripRow(models.TripStatusScheduled, departure, 40))

	_, err := service.CreateTrip(context.Background(), req)
	assert.ErrorIs(t, err, models.ErrTripNumberExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTripCreate_ArrivalBeforeDeparture(t *testing.T) {
	service, mock, cleanup := setupTripTest(t)
	defer cleanup()

	departure := time.Now().Add(48 * time.Hour)
	req := &models.CreateTripRequest{
		TripNumber:    "TRIP-042",
		Origin:        "Springfield",
		Destination:   "Shelbyville",
		DepartureTime: departure.Format(time.RFC3339),
		ArrivalTime:   departure.Add(-time.Hour).Format(time.RFC3339),
		BaseFareCents: 5000,
		TotalSeats:    40,
		OperatorName:  "Capital Lines",
	}

	_, err := service.CreateTrip(context.Background(), req)
	assert.ErrorContains(t, err, "arrival time must be after departure time")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTripUpdate_RecomputesDuration(t *testing.T) {
	service, mock, cleanup := setupTripTest(t)
	defer cleanup()

	departure := time.Now().Add(24 * time.Hour).Truncate(time.Second)
	newArrival := departure.Add(3 * time.Hour)
	arrivalStr := newArrival.Format(time.RFC3339)

	mock.ExpectQuery("FROM trips WHERE id").
		WithArgs("trip-1").
		WillReturnRows(svcTripRow(models.TripStatusScheduled, departure, 40))
	mock.ExpectQuery("UPDATE trips").
		WithArgs("trip-1", "Springfield", "Shelbyville", sqlmock.AnyArg(), sqlmock.AnyArg(),
			180, int64(5000), models.TripStatusScheduled, "Capital Lines", nil, nil).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(time.Now()))

	trip, err := service.UpdateTrip(context.Background(), "trip-1", &models.UpdateTripRequest{
		ArrivalTime: &arrivalStr,
	})
	require.NoError(t, err)
	assert.Equal(t, 180, trip.DurationMinutes)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTripUpdateStatus_Valid(t *testing.T) {
	service, mock, cleanup := setupTripTest(t)
	defer cleanup()

	mock.ExpectQuery("FROM trips WHERE id").
		WithArgs("trip-1").
		WillReturnRows(svcTripRow(models.TripStatusScheduled, time.Now().Add(time.Hour), 40))
	mock.ExpectExec("UPDATE trips SET status").
		WithArgs("trip-1", models.TripStatusBoarding).
		WillReturnResult(sqlmock.NewResult(0, 1))

	trip, err := service.UpdateTripStatus(context.Background(), "trip-1", models.TripStatusBoarding)
	require.NoError(t, err)
	assert.Equal(t, models.TripStatusBoarding, trip.Status)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTripUpdateStatus_SkippingStagesRefused(t *testing.T) {
	service, mock, cleanup := setupTripTest(t)
	defer cleanup()

	mock.ExpectQuery("FROM trips WHERE id").
		WithArgs("trip-1").
		WillReturnRows(svcTripRow(models.TripStatusScheduled, time.Now().Add(time.Hour), 40))

	_, err := service.UpdateTripStatus(context.Background(), "trip-1", models.TripStatusCompleted)
	assert.ErrorContains(t, err, "cannot change trip status")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTripDelete_Success(t *testing.T) {
	service, mock, cleanup := setupTripTest(t)
	defer cleanup()

	mock.ExpectQuery("FROM trips WHERE id").
		WithArgs("trip-1").
		WillReturnRows(svcTripRow(models.TripStatusScheduled, time.Now().Add(time.Hour), 40))

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM bookings`).
		WithArgs("trip-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec("DELETE FROM booking_seats").
		WithArgs("trip-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM bookings").
		WithArgs("trip-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM trip_seats").
		WithArgs("trip-1").
		WillReturnResult(sqlmock.NewResult(0, 40))
	mock.ExpectExec("DELETE FROM trips").
		WithArgs("trip-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := service.DeleteTrip(context.Background(), "trip-1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTripDelete_WithActiveBookings(t *testing.T) {
	service, mock, cleanup := setupTripTest(t)
	defer cleanup()

	mock.ExpectQuery("FROM trips WHERE id").
		WithArgs("trip-1").
		WillReturnRows(svcTripRow(models.TripStatusScheduled, time.Now().Add(time.Hour), 40))

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM bookings`).
		WithArgs("trip-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectRollback()

	err := service.DeleteTrip(context.Background(), "trip-1")
	assert.ErrorIs(t, err, models.ErrTripHasBookings)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTripSeatsCreate_ExceedsCapacity(t *testing.T) {
	service, mock, cleanup := setupTripTest(t)
	defer cleanup()

	now := time.Now()
	existing := sqlmock.NewRows(svcSeatColumns).
		AddRow("seat-1", "trip-1", "01A", models.SeatClassEconomy, 1.0, models.SeatStatusAvailable, nil, nil, now, now)

	mock.ExpectQuery("FROM trips WHERE id").
		WithArgs("trip-1").
		WillReturnRows(smallTripRow(2, 2))
	mock.ExpectQuery("FROM trip_seats WHERE trip_id").
		WithArgs("trip-1").
		WillReturnRows(existing)

	req := &models.CreateSeatsRequest{Seats: []models.SeatSpec{
		{SeatNumber: "01B", SeatClass: "economy"},
		{SeatNumber: "01C", SeatClass: "economy"},
	}}

	_, err := service.CreateSeats("trip-1", req)
	assert.ErrorContains(t, err, "holds 2 seats and already has 1 defined")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTripSeatsCreate_Success(t *testing.T) {
	service, mock, cleanup := setupTripTest(t)
	defer cleanup()

	now := time.Now()

	mock.ExpectQuery("FROM trips WHERE id").
		WithArgs("trip-1").
		WillReturnRows(smallTripRow(40, 40))
	mock.ExpectQuery("FROM trip_seats WHERE trip_id").
		WithArgs("trip-1").
		WillReturnRows(sqlmock.NewRows(svcSeatColumns))

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT seat_number FROM trip_seats").
		WithArgs("trip-1", "01A", "01B").
		WillReturnRows(sqlmock.NewRows([]string{"seat_number"}))
	mock.ExpectQuery("INSERT INTO trip_seats").
		WithArgs("trip-1", "01A", models.SeatClassEconomy, 1.0).
		WillReturnRows(sqlmock.NewRows(svcSeatColumns).
			AddRow("seat-1", "trip-1", "01A", models.SeatClassEconomy, 1.0, models.SeatStatusAvailable, nil, nil, now, now))
	mock.ExpectQuery("INSERT INTO trip_seats").
		WithArgs("trip-1", "01B", models.SeatClassBusiness, 1.5).
		WillReturnRows(sqlmock.NewRows(svcSeatColumns).
			AddRow("seat-2", "trip-1", "01B", models.SeatClassBusiness, 1.5, models.SeatStatusAvailable, nil, nil, now, now))
	mock.ExpectCommit()

	req := &models.CreateSeatsRequest{Seats: []models.SeatSpec{
		{SeatNumber: "01A", SeatClass: "economy"},
		{SeatNumber: "01B", SeatClass: "business", PriceMultiplier: 1.5},
	}}

	created, err := service.CreateSeats("trip-1", req)
	require.NoError(t, err)
	require.Len(t, created, 2)
	assert.Equal(t, models.SeatClassBusiness, created[1].SeatClass)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTripBlockSeats_Success(t *testing.T) {
	service, mock, cleanup := setupTripTest(t)
	defer cleanup()

	mock.ExpectQuery("FROM trips WHERE id").
		WithArgs("trip-1").
		WillReturnRows(svcTripRow(models.TripStatusScheduled, time.Now().Add(time.Hour), 40))
	mock.ExpectQuery("FROM trip_seats WHERE id IN").
		WithArgs("seat-1", "seat-2").
		WillReturnRows(svcSeatRows(models.SeatStatusAvailable, models.SeatStatusAvailable))
	mock.ExpectExec("UPDATE trip_seats").
		WithArgs("Maintenance hold", sqlmock.AnyArg(), "seat-1", "seat-2").
		WillReturnResult(sqlmock.NewResult(0, 2))

	reason := "Maintenance hold"
	blocked, err := service.BlockSeats("trip-1", &models.BlockSeatsRequest{
		SeatIDs: []string{"seat-1", "seat-2"},
		Reason:  &reason,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, blocked)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTripBlockSeats_BookedSeatRefused(t *testing.T) {
	service, mock, cleanup := setupTripTest(t)
	defer cleanup()

	mock.ExpectQuery("FROM trips WHERE id").
		WithArgs("trip-1").
		WillReturnRows(svcTripRow(models.TripStatusScheduled, time.Now().Add(time.Hour), 40))
	mock.ExpectQuery("FROM trip_seats WHERE id IN").
		WithArgs("seat-1", "seat-2").
		WillReturnRows(svcSeatRows(models.SeatStatusAvailable, models.SeatStatusBooked))

	_, err := service.BlockSeats("trip-1", &models.BlockSeatsRequest{
		SeatIDs: []string{"seat-1", "seat-2"},
	})
	assert.ErrorIs(t, err, models.ErrSeatInUse)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTripUnblockSeats_Success(t *testing.T) {
	service, mock, cleanup := setupTripTest(t)
	defer cleanup()

	mock.ExpectQuery("FROM trips WHERE id").
		WithArgs("trip-1").
		WillReturnRows(svcTripRow(models.TripStatusScheduled, time.Now().Add(time.Hour), 40))
	mock.ExpectQuery("FROM trip_seats WHERE id IN").
		WithArgs("seat-1", "seat-2").
		WillReturnRows(svcSeatRows(models.SeatStatusBlocked, models.SeatStatusBlocked))
	mock.ExpectExec("UPDATE trip_seats").
		WithArgs(sqlmock.AnyArg(), "seat-1", "seat-2").
		WillReturnResult(sqlmock.NewResult(0, 2))

	unblocked, err := service.UnblockSeats("trip-1", &models.UnblockSeatsRequest{
		SeatIDs: []string{"seat-1", "seat-2"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, unblocked)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTripGetSeats_AvailableOnly(t *testing.T) {
	service, mock, cleanup := setupTripTest(t)
	defer cleanup()

	mock.ExpectQuery("FROM trips WHERE id").
		WithArgs("trip-1").
		WillReturnRows(svcTripRow(models.TripStatusScheduled, time.Now().Add(time.Hour), 40))
	mock.ExpectQuery("FROM trip_seats WHERE trip_id").
		WithArgs("trip-1").
		WillReturnRows(svcSeatRows(models.SeatStatusAvailable, models.SeatStatusAvailable))

	trip, seats, err := service.GetTripSeats("trip-1", nil, true)
	require.NoError(t, err)
	assert.Equal(t, "TRIP-001", trip.TripNumber)
	assert.Len(t, seats, 2)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTripSeatSummary(t *testing.T) {
	service, mock, cleanup := setupTripTest(t)
	defer cleanup()

	summaryRows := sqlmock.NewRows([]string{"seat_class", "total", "available", "booked", "blocked"}).
		AddRow(models.SeatClassEconomy, 36, 30, 4, 2).
		AddRow(models.SeatClassBusiness, 4, 4, 0, 0)

	mock.ExpectQuery("FROM trips WHERE id").
		WithArgs("trip-1").
		WillReturnRows(svcTripRow(models.TripStatusScheduled, time.Now().Add(time.Hour), 40))
	mock.ExpectQuery("FROM trip_seats WHERE trip_id").
		WithArgs("trip-1").
		WillReturnRows(summaryRows)

	_, summary, err := service.SeatSummary("trip-1")
	require.NoError(t, err)
	require.Len(t, summary, 2)
	assert.Equal(t, 4, summary[0].Booked)
	assert.Equal(t, 2, summary[0].Blocked)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTripVerifySeatCounters_ReportsDrift(t *testing.T) {
	service, mock, cleanup := setupTripTest(t)
	defer cleanup()

	driftRows := sqlmock.NewRows([]string{"trip_id", "trip_number", "available_seats", "total_seats", "booked_seats"}).
		AddRow("trip-1", "TRIP-001", 38, 40, 3)

	mock.ExpectQuery("LEFT JOIN trip_seats").
		WillReturnRows(driftRows)

	drifts, err := service.VerifySeatCounters()
	require.NoError(t, err)
	require.Len(t, drifts, 1)
	assert.Equal(t, "TRIP-001", drifts[0].TripNumber)
	assert.Equal(t, 38, drifts[0].AvailableSeats)
	assert.Equal(t, 3, drifts[0].BookedSeats)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTripUpdateSeat_BookedRefused(t *testing.T) {
	service, mock, cleanup := setupTripTest(t)
	defer cleanup()

	now := time.Now()
	mock.ExpectQuery("FROM trip_seats WHERE id =").
		WithArgs("seat-1").
		WillReturnRows(sqlmock.NewRows(svcSeatColumns).
			AddRow("seat-1", "trip-1", "12A", models.SeatClassEconomy, 1.0, models.SeatStatusBooked, "booking-1", nil, now, now))

	multiplier := 2.0
	_, err := service.UpdateSeat("trip-1", "seat-1", &models.UpdateSeatRequest{PriceMultiplier: &multiplier})
	assert.ErrorIs(t, err, models.ErrSeatInUse)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTripDeleteSeat_WrongTrip(t *testing.T) {
	service, mock, cleanup := setupTripTest(t)
	defer cleanup()

	now := time.Now()
	mock.ExpectQuery("FROM trip_seats WHERE id =").
		WithArgs("seat-1").
		WillReturnRows(sqlmock.NewRows(svcSeatColumns).
			AddRow("seat-1", "trip-9", "12A", models.SeatClassEconomy, 1.0, models.SeatStatusAvailable, nil, nil, now, now))

	err := service.DeleteSeat("trip-1", "seat-1")
	assert.ErrorIs(t, err, models.ErrSeatNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
