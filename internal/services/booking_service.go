package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/busline/ticketing-backend/internal/cache"
	"github.com/busline/ticketing-backend/internal/database"
	"github.com/busline/ticketing-backend/internal/events"
	"github.com/busline/ticketing-backend/internal/models"
)

// BookingService owns the booking lifecycle: creation with seat claims
// and promo pricing, cancellation with seat release, re-activation, and
// the read paths. Seat and counter mutations are serialized per trip by
// the repository's guarded updates; this layer does the validation that
// produces precise errors before any write is attempted.
type BookingService struct {
	bookings  *database.BookingRepository
	trips     *database.TripRepository
	seats     *database.TripSeatRepository
	promos    *database.PromoRepository
	users     *database.UserRepository
	cache     *cache.RedisCache
	rateLimit *RateLimitService
	producer  *events.Producer
	logger    *logrus.Logger
}

// NewBookingService creates a new BookingService. The cache may be nil
// when Redis is not configured; seat holds are then skipped.
func NewBookingService(
	bookings *database.BookingRepository,
	trips *database.TripRepository,
	seats *database.TripSeatRepository,
	promos *database.PromoRepository,
	users *database.UserRepository,
	redisCache *cache.RedisCache,
	rateLimit *RateLimitService,
	producer *events.Producer,
	logger *logrus.Logger,
) *BookingService {
	return &BookingService{
		bookings:  bookings,
		trips:     trips,
		seats:     seats,
		promos:    promos,
		users:     users,
		cache:     redisCache,
		rateLimit: rateLimit,
		producer:  producer,
		logger:    logger,
	}
}

// ============================================================================
// CREATE
// ============================================================================

// CreateBooking reserves the requested seats on a trip for the caller.
// The booking is created confirmed and unpaid in a single transaction
// that claims the seats, decrements the trip counter, and consumes promo
// usage; a failure at any step leaves nothing behind. Two requests
// racing for the same seat never both succeed.
func (s *BookingService) CreateBooking(ctx context.Context, userID string, req *models.CreateBookingRequest) (*models.Booking, []models.BookingSeat, error) {
	if err := req.Validate(); err != nil {
		return nil, nil, err
	}

	if err := s.rateLimit.CheckBookingRateLimit(userID); err != nil {
		return nil, nil, err
	}
	if err := s.rateLimit.RecordBookingAttempt(userID); err != nil {
		s.logger.WithError(err).Warn("Failed to record booking attempt")
	}

	if err := s.checkAccountActive(userID); err != nil {
		return nil, nil, err
	}

	// 1. Load the trip and check it can take this booking
	trip, err := s.trips.GetByID(req.TripID)
	if err != nil {
		return nil, nil, err
	}
	if trip == nil {
		return nil, nil, models.ErrTripNotFound
	}
	if err := checkTripBookable(trip, len(req.SeatIDs)); err != nil {
		return nil, nil, err
	}

	// 2. Load the seats and check each one is sellable on this trip
	seats, err := s.loadRequestedSeats(trip, req.SeatIDs)
	if err != nil {
		return nil, nil, err
	}

	// 3. Price the seats
	lines := make([]models.BookingSeat, 0, len(seats))
	var subtotal int64
	for _, seat := range seats {
		price := seat.PriceCents(trip.BaseFareCents)
		subtotal += price
		lines = append(lines, models.BookingSeat{
			SeatID:         seat.ID,
			SeatNumber:     seat.SeatNumber,
			SeatClass:      seat.SeatClass,
			SeatPriceCents: price,
		})
	}

	// 4. Apply the promo code
	var promoCodeID *string
	var discount int64
	if req.PromoCode != nil {
		promo, err := s.checkPromoForUser(userID, *req.PromoCode, subtotal)
		if err != nil {
			return nil, nil, err
		}
		promoCodeID = &promo.ID
		discount = promo.DiscountCents(subtotal)
	}

	// 5. Hold the seats in Redis to thin out contention on popular trips.
	// The transaction below is what actually decides; a hold conflict just
	// fails fast with the seats somebody else is mid-purchase on.
	if s.cache != nil {
		conflicts, holdErr := s.cache.HoldSeats(ctx, trip.ID, req.SeatIDs, userID)
		if holdErr != nil {
			s.logger.WithError(holdErr).Warn("Seat hold unavailable, continuing without it")
		} else if len(conflicts) > 0 {
			return nil, nil, &models.SeatUnavailableError{SeatNumbers: seatNumbersFor(seats, conflicts)}
		} else {
			defer s.cache.ReleaseSeats(ctx, trip.ID, req.SeatIDs)
		}
	}

	// 6. Create the booking transactionally
	booking := &models.Booking{
		UserID:          userID,
		TripID:          trip.ID,
		PromoCodeID:     promoCodeID,
		PassengerName:   req.PassengerName,
		PassengerEmail:  req.PassengerEmail,
		PassengerPhone:  req.PassengerPhone,
		NumSeats:        len(lines),
		SubtotalCents:   subtotal,
		DiscountCents:   discount,
		TotalCents:      subtotal - discount,
		Status:          models.BookingStatusConfirmed,
		PaymentStatus:   models.PaymentStatusUnpaid,
		SpecialRequests: req.SpecialRequests,
	}

	if err := s.bookings.CreateBooking(booking, lines); err != nil {
		return nil, nil, err
	}

	s.publishBookingEvent(ctx, events.TypeBookingConfirmed, booking, lines)

	s.logger.WithFields(logrus.Fields{
		"booking_reference": booking.BookingReference,
		"trip_number":       trip.TripNumber,
		"num_seats":         booking.NumSeats,
		"total_cents":       booking.TotalCents,
	}).Info("Booking created")

	return booking, lines, nil
}

// checkAccountActive refuses seat-taking operations from disabled
// accounts. A token issued before the account was disabled stays valid
// until it expires; re-checking here closes that window for bookings.
func (s *BookingService) checkAccountActive(userID string) error {
	user, err := s.users.GetUserByID(userID)
	if err != nil {
		return err
	}
	if user == nil {
		return models.ErrUserNotFound
	}
	if !user.IsActive {
		return models.ErrAccountDisabled
	}
	return nil
}

// checkTripBookable mirrors Trip.CanAcceptBooking but reports which
// condition failed.
func checkTripBookable(trip *models.Trip, seats int) error {
	if trip.Status != models.TripStatusScheduled {
		return models.ErrTripNotBookable
	}
	if trip.IsPastDeparture() {
		return models.ErrTripDeparted
	}
	if trip.AvailableSeats < seats {
		return models.ErrInsufficientCapacity
	}
	return nil
}

// loadRequestedSeats resolves seat IDs and rejects seats that are
// missing, belong to another trip, or are not currently available. The
// transactional claim re-checks availability; this pass exists to tell
// the caller precisely what is wrong.
func (s *BookingService) loadRequestedSeats(trip *models.Trip, seatIDs []string) ([]models.Seat, error) {
	seats, err := s.seats.GetByIDs(seatIDs)
	if err != nil {
		return nil, err
	}
	if len(seats) != len(seatIDs) {
		return nil, models.ErrSeatNotFound
	}

	var unavailable []string
	for _, seat := range seats {
		if seat.TripID != trip.ID {
			return nil, models.NewValidationError("seat %s does not belong to this trip", seat.SeatNumber)
		}
		if seat.Status != models.SeatStatusAvailable {
			unavailable = append(unavailable, seat.SeatNumber)
		}
	}
	if len(unavailable) > 0 {
		return nil, &models.SeatUnavailableError{SeatNumbers: unavailable}
	}

	return seats, nil
}

// checkPromoForUser resolves a promo code and runs every validation
// short of consuming it: active window, global limit, per-user limit,
// and the minimum purchase threshold against the subtotal.
func (s *BookingService) checkPromoForUser(userID, code string, subtotalCents int64) (*models.PromoCode, error) {
	promo, err := s.promos.GetByCode(code)
	if err != nil {
		return nil, err
	}
	if promo == nil {
		return nil, models.ErrPromoNotFound
	}
	if err := promo.ValidateAt(time.Now()); err != nil {
		return nil, err
	}

	// Anonymous fare quotes carry no user, so the per-user cap cannot be
	// checked; it is still enforced when the booking is created.
	if promo.UsagePerUser != nil && userID != "" {
		used, err := s.bookings.CountByUserAndPromo(userID, promo.ID)
		if err != nil {
			return nil, err
		}
		if used >= *promo.UsagePerUser {
			return nil, models.ErrPromoIneligible
		}
	}

	if !promo.MeetsMinimum(subtotalCents) {
		return nil, models.ErrPromoMinimumNotMet
	}

	return promo, nil
}

// seatNumbersFor maps conflicting seat IDs back to their seat numbers.
func seatNumbersFor(seats []models.Seat, seatIDs []string) []string {
	byID := make(map[string]string, len(seats))
	for _, seat := range seats {
		byID[seat.ID] = seat.SeatNumber
	}
	numbers := make([]string, 0, len(seatIDs))
	for _, id := range seatIDs {
		if number, ok := byID[id]; ok {
			numbers = append(numbers, number)
		}
	}
	return numbers
}

// ============================================================================
// CANCEL / REACTIVATE
// ============================================================================

// CancelBooking cancels the caller's booking, releasing its seats and
// returning promo usage. A paid booking flips to refunded.
func (s *BookingService) CancelBooking(ctx context.Context, userID, bookingID string) (*models.Booking, error) {
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

	return s.cancel(ctx, bookingID)
}

// cancel runs the transactional cancellation for a booking whose access
// has already been checked.
func (s *BookingService) cancel(ctx context.Context, bookingID string) (*models.Booking, error) {
	cancelled, err := s.bookings.CancelBooking(bookingID)
	if err != nil {
		return nil, err
	}

	seats, err := s.bookings.GetSeats(bookingID)
	if err != nil {
		s.logger.WithError(err).Warn("Cancelled booking but could not load its seats for the event")
		seats = nil
	}
	s.publishBookingEvent(ctx, events.TypeBookingCancelled, cancelled, seats)

	s.logger.WithFields(logrus.Fields{
		"booking_reference": cancelled.BookingReference,
		"num_seats":         cancelled.NumSeats,
		"payment_status":    cancelled.PaymentStatus,
	}).Info("Booking cancelled")

	return cancelled, nil
}

// ReactivateBooking restores the caller's cancelled booking to
// confirmed. The original seats, trip capacity, and promo code are all
// re-validated; any of them having moved on fails the operation.
func (s *BookingService) ReactivateBooking(ctx context.Context, userID, bookingID string) (*models.Booking, error) {
	if err := s.checkAccountActive(userID); err != nil {
		return nil, err
	}

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

	return s.reactivate(ctx, bookingID, models.BookingStatusConfirmed)
}

// reactivate runs the transactional re-activation for a booking whose
// access has already been checked.
func (s *BookingService) reactivate(ctx context.Context, bookingID string, target models.BookingStatus) (*models.Booking, error) {
	restored, err := s.bookings.ReactivateBooking(bookingID, target)
	if err != nil {
		return nil, err
	}

	seats, err := s.bookings.GetSeats(bookingID)
	if err != nil {
		seats = nil
	}
	s.publishBookingEvent(ctx, events.TypeBookingReactivated, restored, seats)

	s.logger.WithFields(logrus.Fields{
		"booking_reference": restored.BookingReference,
		"status":            restored.Status,
	}).Info("Booking reactivated")

	return restored, nil
}

// ============================================================================
// READS
// ============================================================================

// GetBooking retrieves one booking owned by the caller, with its seats.
func (s *BookingService) GetBooking(userID, bookingID string) (*models.Booking, []models.BookingSeat, error) {
	booking, err := s.bookings.GetByID(bookingID)
	if err != nil {
		return nil, nil, err
	}
	if booking == nil {
		return nil, nil, models.ErrBookingNotFound
	}
	if booking.UserID != userID {
		return nil, nil, ErrForbidden
	}

	seats, err := s.bookings.GetSeats(bookingID)
	if err != nil {
		return nil, nil, err
	}
	return booking, seats, nil
}

// GetByReference retrieves one booking by its reference, owned by the
// caller.
func (s *BookingService) GetByReference(userID, reference string) (*models.Booking, []models.BookingSeat, error) {
	booking, err := s.bookings.GetByReference(reference)
	if err != nil {
		return nil, nil, err
	}
	if booking == nil {
		return nil, nil, models.ErrBookingNotFound
	}
	if booking.UserID != userID {
		return nil, nil, ErrForbidden
	}

	seats, err := s.bookings.GetSeats(booking.ID)
	if err != nil {
		return nil, nil, err
	}
	return booking, seats, nil
}

// ListUserBookings retrieves the caller's bookings, newest first.
func (s *BookingService) ListUserBookings(userID string, status *models.BookingStatus, limit, offset int) ([]models.Booking, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	return s.bookings.List(models.BookingFilter{
		UserID: &userID,
		Status: status,
		Limit:  limit,
		Offset: offset,
	})
}

// ============================================================================
// FARE QUOTES
// ============================================================================

// QuoteFare prices a prospective booking without reserving anything:
// per-seat fares from the trip's base fare and multipliers, plus the
// promo discount the caller would get. Purely read-only.
func (s *BookingService) QuoteFare(userID string, req *models.FareQuoteRequest) (*models.FareQuote, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	trip, err := s.trips.GetByID(req.TripID)
	if err != nil {
		return nil, err
	}
	if trip == nil {
		return nil, models.ErrTripNotFound
	}

	seats, err := s.loadRequestedSeats(trip, req.SeatIDs)
	if err != nil {
		return nil, err
	}

	quote := &models.FareQuote{
		Trip:     trip,
		NumSeats: len(seats),
		Seats:    make([]models.SeatQuoteLine, 0, len(seats)),
	}
	for _, seat := range seats {
		price := seat.PriceCents(trip.BaseFareCents)
		quote.SubtotalCents += price
		quote.Seats = append(quote.Seats, models.SeatQuoteLine{
			SeatID:     seat.ID,
			SeatNumber: seat.SeatNumber,
			SeatClass:  seat.SeatClass,
			PriceCents: price,
		})
	}

	if req.PromoCode != nil {
		promo, err := s.checkPromoForUser(userID, *req.PromoCode, quote.SubtotalCents)
		if err != nil {
			return nil, err
		}
		quote.PromoCode = promo
		quote.DiscountCents = promo.DiscountCents(quote.SubtotalCents)
	}

	quote.TotalCents = quote.SubtotalCents - quote.DiscountCents
	return quote, nil
}

// SetOwnPaymentStatus lets a customer mark their booking paid or failed
// outside the gateway flow. Only those two values are accepted here;
// refunds always go through the payment service. Cancelled bookings are
// refused by the guarded update.
func (s *BookingService) SetOwnPaymentStatus(userID, bookingID string, status models.PaymentStatus) (*models.Booking, error) {
	if status != models.PaymentStatusPaid && status != models.PaymentStatusFailed {
		return nil, models.NewValidationError("payment status can only be set to %s or %s", models.PaymentStatusPaid, models.PaymentStatusFailed)
	}

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

	if err := s.bookings.SetPaymentStatus(bookingID, status); err != nil {
		return nil, err
	}

	updated, err := s.bookings.GetByID(bookingID)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"booking_reference": booking.BookingReference,
		"payment_status":    status,
	}).Info("Booking payment status updated")

	return updated, nil
}

// ============================================================================
// ADMINISTRATION
// ============================================================================

// AdminListBookings retrieves bookings matching the filter. Role checks
// live in the middleware.
func (s *BookingService) AdminListBookings(filter models.BookingFilter) ([]models.Booking, error) {
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.bookings.List(filter)
}

// AdminGetBooking retrieves any booking with its seats.
func (s *BookingService) AdminGetBooking(bookingID string) (*models.Booking, []models.BookingSeat, error) {
	booking, err := s.bookings.GetByID(bookingID)
	if err != nil {
		return nil, nil, err
	}
	if booking == nil {
		return nil, nil, models.ErrBookingNotFound
	}

	seats, err := s.bookings.GetSeats(bookingID)
	if err != nil {
		return nil, nil, err
	}
	return booking, seats, nil
}

// AdminUpdateStatus moves a booking along its lifecycle. Entering
// cancelled releases seats like a customer cancellation; leaving
// cancelled re-claims them like a fresh booking. Completed is terminal.
func (s *BookingService) AdminUpdateStatus(ctx context.Context, bookingID string, next models.BookingStatus) (*models.Booking, error) {
	booking, err := s.bookings.GetByID(bookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, models.ErrBookingNotFound
	}

	if !booking.CanTransitionTo(next) {
		return nil, models.NewValidationError("cannot change booking status from %s to %s", booking.Status, next)
	}

	switch {
	case next == models.BookingStatusCancelled:
		return s.cancel(ctx, bookingID)
	case booking.Status == models.BookingStatusCancelled:
		return s.reactivate(ctx, bookingID, next)
	default:
		if err := s.bookings.UpdateStatusFrom(bookingID, booking.Status, next); err != nil {
			return nil, err
		}
		updated, err := s.bookings.GetByID(bookingID)
		if err != nil {
			return nil, err
		}
		s.logger.WithFields(logrus.Fields{
			"booking_reference": booking.BookingReference,
			"from":              booking.Status,
			"to":                next,
		}).Info("Booking status updated")
		return updated, nil
	}
}

// AdminSetPaymentStatus writes a booking's payment status directly, for
// operator corrections. Cancelled bookings are refused.
func (s *BookingService) AdminSetPaymentStatus(bookingID string, status models.PaymentStatus) (*models.Booking, error) {
	if err := s.bookings.SetPaymentStatus(bookingID, status); err != nil {
		return nil, err
	}
	return s.bookings.GetByID(bookingID)
}

// ============================================================================
// EVENTS
// ============================================================================

// publishBookingEvent emits a booking lifecycle event. Delivery is best
// effort: a broker problem is logged and never fails the operation.
func (s *BookingService) publishBookingEvent(ctx context.Context, eventType string, booking *models.Booking, seats []models.BookingSeat) {
	seatNumbers := make([]string, 0, len(seats))
	for _, seat := range seats {
		seatNumbers = append(seatNumbers, seat.SeatNumber)
	}

	event := events.BookingEvent{
		Type:             eventType,
		BookingID:        booking.ID,
		BookingReference: booking.BookingReference,
		UserID:           booking.UserID,
		TripID:           booking.TripID,
		PassengerName:    booking.PassengerName,
		PassengerPhone:   booking.PassengerPhone,
		PassengerEmail:   booking.PassengerEmail,
		SeatNumbers:      seatNumbers,
		TotalCents:       booking.TotalCents,
	}
	if err := s.producer.Publish(ctx, event); err != nil {
		s.logger.WithError(err).WithField("event_type", eventType).Warn("Failed to publish booking event")
	}
}
