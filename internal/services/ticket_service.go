package services

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/phpdave11/gofpdf"
	"github.com/sirupsen/logrus"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/busline/ticketing-backend/internal/database"
	"github.com/busline/ticketing-backend/internal/models"
)

const qrCodeSize = 256

// TicketService renders e-tickets for confirmed bookings: a QR code PNG
// for gate scanning and a boarding pass PDF. Both are generated on demand
// from the live booking, nothing is stored.
type TicketService struct {
	bookings *database.BookingRepository
	trips    *database.TripRepository
	currency string
	logger   *logrus.Logger
}

// NewTicketService creates a new TicketService
func NewTicketService(
	bookings *database.BookingRepository,
	trips *database.TripRepository,
	currency string,
	logger *logrus.Logger,
) *TicketService {
	return &TicketService{
		bookings: bookings,
		trips:    trips,
		currency: currency,
		logger:   logger,
	}
}

// ticketData is everything a rendered ticket needs
type ticketData struct {
	booking *models.Booking
	trip    *models.Trip
	seats   []models.BookingSeat
}

// loadTicketData loads the booking with its trip and seats, enforcing
// ownership and the confirmed-only rule
func (s *TicketService) loadTicketData(userID, bookingID string) (*ticketData, error) {
	booking, err := s.bookings.GetByID(bookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, models.ErrBookingNotFound
	}
	if booking.UserID != userID {
		return nil, ErrForbidden
	}
	if booking.Status != models.BookingStatusConfirmed {
		return nil, models.NewValidationError("tickets are only available for confirmed bookings, this booking is %s", booking.Status)
	}

	trip, err := s.trips.GetByID(booking.TripID)
	if err != nil {
		return nil, err
	}
	if trip == nil {
		return nil, models.ErrTripNotFound
	}

	seats, err := s.bookings.GetSeats(bookingID)
	if err != nil {
		return nil, err
	}

	return &ticketData{booking: booking, trip: trip, seats: seats}, nil
}

// QRCode renders the booking's gate QR code as a PNG. The payload carries
// the booking reference and trip number so a scanner can verify both.
func (s *TicketService) QRCode(userID, bookingID string) ([]byte, string, error) {
	data, err := s.loadTicketData(userID, bookingID)
	if err != nil {
		return nil, "", err
	}

	payload := fmt.Sprintf("BUSLINE|%s|%s", data.booking.BookingReference, data.trip.TripNumber)
	png, err := qrcode.Encode(payload, qrcode.Medium, qrCodeSize)
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate QR code: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"booking_reference": data.booking.BookingReference,
	}).Info("Ticket QR code generated")

	filename := fmt.Sprintf("ticket-%s.png", data.booking.BookingReference)
	return png, filename, nil
}

// BoardingPass renders the booking as a boarding pass PDF
func (s *TicketService) BoardingPass(userID, bookingID string) ([]byte, string, error) {
	data, err := s.loadTicketData(userID, bookingID)
	if err != nil {
		return nil, "", err
	}

	pdf, err := s.buildBoardingPassPDF(data)
	if err != nil {
		return nil, "", err
	}

	s.logger.WithFields(logrus.Fields{
		"booking_reference": data.booking.BookingReference,
	}).Info("Boarding pass generated")

	filename := fmt.Sprintf("boarding-pass-%s.pdf", data.booking.BookingReference)
	return pdf, filename, nil
}

func (s *TicketService) buildBoardingPassPDF(data *ticketData) ([]byte, error) {
	booking := data.booking
	trip := data.trip

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Boarding Pass "+booking.BookingReference, false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, "BOARDING PASS")
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 6, trip.OperatorName)
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "B", 13)
	pdf.Cell(0, 7, fmt.Sprintf("%s  ->  %s", trip.Origin, trip.Destination))
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "", 11)
	lines := []string{
		fmt.Sprintf("Booking reference : %s", booking.BookingReference),
		fmt.Sprintf("Trip number       : %s", trip.TripNumber),
		fmt.Sprintf("Departure         : %s", trip.DepartureTime.Format("Mon, 02 Jan 2006 15:04")),
		fmt.Sprintf("Arrival           : %s", trip.ArrivalTime.Format("Mon, 02 Jan 2006 15:04")),
	}
	if trip.VehicleType != nil && *trip.VehicleType != "" {
		lines = append(lines, fmt.Sprintf("Vehicle           : %s", *trip.VehicleType))
	}
	lines = append(lines,
		"",
		fmt.Sprintf("Passenger         : %s", booking.PassengerName),
		fmt.Sprintf("Email             : %s", booking.PassengerEmail),
		fmt.Sprintf("Phone             : %s", booking.PassengerPhone),
	)
	for _, line := range lines {
		pdf.Cell(0, 6, line)
		pdf.Ln(6)
	}
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 11)
	pdf.Cell(0, 7, fmt.Sprintf("Seats (%d)", booking.NumSeats))
	pdf.Ln(7)

	pdf.SetFont("Helvetica", "", 11)
	for _, seat := range data.seats {
		pdf.Cell(0, 6, fmt.Sprintf("  %-8s %-12s %s", seat.SeatNumber, seat.SeatClass, s.formatAmount(seat.SeatPriceCents)))
		pdf.Ln(6)
	}
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 6, fmt.Sprintf("Subtotal          : %s", s.formatAmount(booking.SubtotalCents)))
	pdf.Ln(6)
	if booking.DiscountCents > 0 {
		pdf.Cell(0, 6, fmt.Sprintf("Discount          : -%s", s.formatAmount(booking.DiscountCents)))
		pdf.Ln(6)
	}
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 7, fmt.Sprintf("Total             : %s", s.formatAmount(booking.TotalCents)))
	pdf.Ln(7)

	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 6, fmt.Sprintf("Payment status    : %s", strings.ToUpper(string(booking.PaymentStatus))))
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "I", 9)
	pdf.MultiCell(0, 5, "Please present this boarding pass and a valid ID at departure. Arrive at least 15 minutes before the scheduled departure time.", "", "", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render boarding pass: %w", err)
	}

	return buf.Bytes(), nil
}

// formatAmount renders an integer cent amount for display, e.g. "USD 42.50"
func (s *TicketService) formatAmount(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s %s%d.%02d", s.currency, sign, cents/100, cents%100)
}
