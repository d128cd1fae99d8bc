package services

import (
	"bytes"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/busline/ticketing-backend/internal/database"
	"github.com/busline/ticketing-backend/internal/models"
)

func setupTicketTest(t *testing.T) (*TicketService, sqlmock.Sqlmock, func()) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	sqlxDB := sqlx.NewDb(db, "sqlmock")

	service := NewTicketService(
		database.NewBookingRepository(sqlxDB),
		database.NewTripRepository(sqlxDB),
		"USD",
		testLogger(),
	)

	cleanup := func() {
		db.Close()
	}

	return service, mock, cleanup
}

// expectTicketData queues the booking, trip and seat reads behind a
// rendered ticket.
func expectTicketData(mock sqlmock.Sqlmock, pay models.PaymentStatus) {
	mock.ExpectQuery("FROM bookings WHERE id =").
		WithArgs("booking-1").
		WillReturnRows(svcBookingRow("user-1", nil, models.BookingStatusConfirmed, pay))

	mock.ExpectQuery("FROM trips WHERE id =").
		WithArgs("trip-1").
		WillReturnRows(svcTripRow(models.TripStatusScheduled, time.Now().Add(48*time.Hour), 38))

	mock.ExpectQuery("FROM booking_seats WHERE booking_id =").
		WithArgs("booking-1").
		WillReturnRows(svcBookingSeatRows())
}

func TestTicketQRCode_GeneratesPNG(t *testing.T) {
	service, mock, cleanup := setupTicketTest(t)
	defer cleanup()

	expectTicketData(mock, models.PaymentStatusPaid)

	png, filename, err := service.QRCode("user-1", "booking-1")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))
	assert.Equal(t, "ticket-BK-20260815-A1B2C3.png", filename)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTicketQRCode_NotOwner(t *testing.T) {
	service, mock, cleanup := setupTicketTest(t)
	defer cleanup()

	mock.ExpectQuery("FROM bookings WHERE id =").
		WithArgs("booking-1").
		WillReturnRows(svcBookingRow("user-2", nil, models.BookingStatusConfirmed, models.PaymentStatusPaid))

	png, _, err := service.QRCode("user-1", "booking-1")
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Nil(t, png)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTicketQRCode_PendingBooking(t *testing.T) {
	service, mock, cleanup := setupTicketTest(t)
	defer cleanup()

	mock.ExpectQuery("FROM bookings WHERE id =").
		WithArgs("booking-1").
		WillReturnRows(svcBookingRow("user-1", nil, models.BookingStatusPending, models.PaymentStatusUnpaid))

	png, _, err := service.QRCode("user-1", "booking-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only available for confirmed bookings")
	assert.Contains(t, err.Error(), "pending")
	assert.Nil(t, png)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTicketQRCode_CancelledBooking(t *testing.T) {
	service, mock, cleanup := setupTicketTest(t)
	defer cleanup()

	mock.ExpectQuery("FROM bookings WHERE id =").
		WithArgs("booking-1").
		WillReturnRows(svcBookingRow("user-1", nil, models.BookingStatusCancelled, models.PaymentStatusRefunded))

	png, _, err := service.QRCode("user-1", "booking-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cancelled")
	assert.Nil(t, png)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTicketQRCode_UnknownBooking(t *testing.T) {
	service, mock, cleanup := setupTicketTest(t)
	defer cleanup()

	mock.ExpectQuery("FROM bookings WHERE id =").
		WithArgs("booking-9").
		WillReturnRows(sqlmock.NewRows(svcBookingColumns))

	png, _, err := service.QRCode("user-1", "booking-9")
	assert.ErrorIs(t, err, models.ErrBookingNotFound)
	assert.Nil(t, png)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTicketBoardingPass_GeneratesPDF(t *testing.T) {
	service, mock, cleanup := setupTicketTest(t)
	defer cleanup()

	// An unpaid confirmed booking still gets a boarding pass; only the
	// booking status gates ticket issuance
	expectTicketData(mock, models.PaymentStatusUnpaid)

	pdf, filename, err := service.BoardingPass("user-1", "booking-1")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF")))
	assert.Greater(t, len(pdf), 500)
	assert.Equal(t, "boarding-pass-BK-20260815-A1B2C3.pdf", filename)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTicketAmountFormatting(t *testing.T) {
	service, _, cleanup := setupTicketTest(t)
	defer cleanup()

	assert.Equal(t, "USD 42.50", service.formatAmount(4250))
	assert.Equal(t, "USD 0.00", service.formatAmount(0))
	assert.Equal(t, "USD 0.09", service.formatAmount(9))
	assert.Equal(t, "USD -0.50", service.formatAmount(-50))
	assert.Equal(t, "USD 1000.00", service.formatAmount(100000))
}
