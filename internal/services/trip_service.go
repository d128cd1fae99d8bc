package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/busline/ticketing-backend/internal/cache"
	"github.com/busline/ticketing-backend/internal/database"
	"github.com/busline/ticketing-backend/internal/models"
)

// TripService owns the trip catalog: public search with caching, seat
// maps, and the administrative lifecycle of trips and their seats.
type TripService struct {
	trips  *database.TripRepository
	seats  *database.TripSeatRepository
	cache  *cache.RedisCache
	logger *logrus.Logger
}

// NewTripService creates a new TripService. The cache may be nil when
// Redis is not configured; searches then always hit the database.
func NewTripService(
	trips *database.TripRepository,
	seats *database.TripSeatRepository,
	redisCache *cache.RedisCache,
	logger *logrus.Logger,
) *TripService {
	return &TripService{
		trips:  trips,
		seats:  seats,
		cache:  redisCache,
		logger: logger,
	}
}

// ============================================================================
// PUBLIC CATALOG
// ============================================================================

// Search finds bookable trips for the given route and date. Results are
// cached briefly; trip mutations invalidate the cache, and booking-level
// seat movement is absorbed by the short TTL.
func (s *TripService) Search(ctx context.Context, params models.TripSearchParams) ([]models.Trip, error) {
	if s.cache != nil {
		cached, err := s.cache.GetSearchResults(ctx, params)
		if err != nil {
			s.logger.WithError(err).Warn("Search cache read failed, falling back to database")
		} else if cached != nil {
			return cached, nil
		}
	}

	trips, err := s.trips.Search(params)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetSearchResults(ctx, params, trips); err != nil {
			s.logger.WithError(err).Warn("Search cache write failed")
		}
	}

	return trips, nil
}

// Cities lists the distinct origins and destinations, optionally
// filtered by a substring for autocomplete.
func (s *TripService) Cities(search string) ([]string, error) {
	return s.trips.Cities(search)
}

// GetTrip retrieves one trip.
func (s *TripService) GetTrip(tripID string) (*models.Trip, error) {
	trip, err := s.trips.GetByID(tripID)
	if err != nil {
		return nil, err
	}
	if trip == nil {
		return nil, models.ErrTripNotFound
	}
	return trip, nil
}

// GetTripSeats returns a trip's seat map, optionally narrowed to one
// class or to available seats only.
func (s *TripService) GetTripSeats(tripID string, class *models.SeatClass, availableOnly bool) (*models.Trip, []models.Seat, error) {
	trip, err := s.GetTrip(tripID)
	if err != nil {
		return nil, nil, err
	}

	var seats []models.Seat
	if availableOnly {
		seats, err = s.seats.GetAvailableByTripID(tripID, class)
	} else {
		seats, err = s.seats.GetByTripID(tripID, class)
	}
	if err != nil {
		return nil, nil, err
	}

	return trip, seats, nil
}

// SeatSummary returns per-class seat counts for a trip.
func (s *TripService) SeatSummary(tripID string) (*models.Trip, []models.TripSeatSummary, error) {
	trip, err := s.GetTrip(tripID)
	if err != nil {
		return nil, nil, err
	}

	summary, err := s.seats.Summary(tripID)
	if err != nil {
		return nil, nil, err
	}
	return trip, summary, nil
}

// ============================================================================
// ADMINISTRATION
// ============================================================================

// CreateTrip creates a scheduled trip with its full capacity available.
// Trip numbers are unique across the catalog.
func (s *TripService) CreateTrip(ctx context.Context, req *models.CreateTripRequest) (*models.Trip, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	existing, err := s.trips.GetByTripNumber(req.TripNumber)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, models.ErrTripNumberExists
	}

	departure, arrival := req.DepartureArrival()
	trip := &models.Trip{
		TripNumber:      req.TripNumber,
		Origin:          req.Origin,
		Destination:     req.Destination,
		DepartureTime:   departure,
		ArrivalTime:     arrival,
		DurationMinutes: int(arrival.Sub(departure).Minutes()),
		BaseFareCents:   req.BaseFareCents,
		TotalSeats:      req.TotalSeats,
		Status:          models.TripStatusScheduled,
		OperatorName:    req.OperatorName,
		VehicleType:     req.VehicleType,
		Amenities:       req.Amenities,
	}

	if err := s.trips.Create(trip); err != nil {
		return nil, err
	}

	s.invalidateSearch(ctx)
	s.logger.WithFields(logrus.Fields{
		"trip_number": trip.TripNumber,
		"origin":      trip.Origin,
		"destination": trip.Destination,
		"total_seats": trip.TotalSeats,
	}).Info("Trip created")

	return trip, nil
}

// ListTrips retrieves trips for the admin listing.
func (s *TripService) ListTrips(filter database.TripListFilter) ([]models.Trip, error) {
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.trips.List(filter)
}

// UpdateTrip applies a partial update. Changing either timestamp
// recomputes the duration; a status change must follow the lifecycle.
func (s *TripService) UpdateTrip(ctx context.Context, tripID string, req *models.UpdateTripRequest) (*models.Trip, error) {
	trip, err := s.GetTrip(tripID)
	if err != nil {
		return nil, err
	}

	if req.Origin != nil {
		trip.Origin = *req.Origin
	}
	if req.Destination != nil {
		trip.Destination = *req.Destination
	}
	if req.DepartureTime != nil {
		departure, err := time.Parse(time.RFC3339, *req.DepartureTime)
		if err != nil {
			return nil, models.NewValidationError("departure_time must be in RFC3339 format")
		}
		trip.DepartureTime = departure
	}
	if req.ArrivalTime != nil {
		arrival, err := time.Parse(time.RFC3339, *req.ArrivalTime)
		if err != nil {
			return nil, models.NewValidationError("arrival_time must be in RFC3339 format")
		}
		trip.ArrivalTime = arrival
	}
	if !trip.ArrivalTime.After(trip.DepartureTime) {
		return nil, models.NewValidationError("arrival time must be after departure time")
	}
	trip.DurationMinutes = int(trip.ArrivalTime.Sub(trip.DepartureTime).Minutes())

	if req.BaseFareCents != nil {
		if *req.BaseFareCents <= 0 {
			return nil, models.NewValidationError("base fare must be positive")
		}
		trip.BaseFareCents = *req.BaseFareCents
	}
	if req.OperatorName != nil {
		trip.OperatorName = *req.OperatorName
	}
	if req.VehicleType != nil {
		trip.VehicleType = req.VehicleType
	}
	if req.Amenities != nil {
		trip.Amenities = req.Amenities
	}
	if req.Status != nil {
		next, err := models.ParseTripStatus(*req.Status)
		if err != nil {
			return nil, err
		}
		if next != trip.Status {
			if !trip.CanTransitionTo(next) {
				return nil, models.NewValidationError("cannot change trip status from %s to %s", trip.Status, next)
			}
			trip.Status = next
		}
	}

	if err := s.trips.Update(trip); err != nil {
		return nil, err
	}

	s.invalidateSearch(ctx)
	s.logger.WithField("trip_number", trip.TripNumber).Info("Trip updated")

	return trip, nil
}

// UpdateTripStatus moves a trip along its lifecycle.
func (s *TripService) UpdateTripStatus(ctx context.Context, tripID string, next models.TripStatus) (*models.Trip, error) {
	trip, err := s.GetTrip(tripID)
	if err != nil {
		return nil, err
	}

	if !trip.CanTransitionTo(next) {
		return nil, models.NewValidationError("cannot change trip status from %s to %s", trip.Status, next)
	}

	if err := s.trips.UpdateStatus(tripID, next); err != nil {
		return nil, err
	}
	trip.Status = next

	s.invalidateSearch(ctx)
	s.logger.WithFields(logrus.Fields{
		"trip_number": trip.TripNumber,
		"status":      next,
	}).Info("Trip status updated")

	return trip, nil
}

// DeleteTrip removes a trip, its seats, and its cancelled bookings. A
// trip with any non-cancelled booking is refused.
func (s *TripService) DeleteTrip(ctx context.Context, tripID string) error {
	trip, err := s.GetTrip(tripID)
	if err != nil {
		return err
	}

	if err := s.trips.Delete(tripID); err != nil {
		return err
	}

	s.invalidateSearch(ctx)
	s.logger.WithField("trip_number", trip.TripNumber).Info("Trip deleted")

	return nil
}

// ============================================================================
// SEAT ADMINISTRATION
// ============================================================================

// CreateSeats bulk-creates seats on a trip. The seat map can never
// outgrow the trip's declared capacity.
func (s *TripService) CreateSeats(tripID string, req *models.CreateSeatsRequest) ([]models.Seat, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	trip, err := s.GetTrip(tripID)
	if err != nil {
		return nil, err
	}

	existing, err := s.seats.GetByTripID(tripID, nil)
	if err != nil {
		return nil, err
	}
	if len(existing)+len(req.Seats) > trip.TotalSeats {
		return nil, models.NewValidationError("trip holds %d seats and already has %d defined, cannot add %d more",
			trip.TotalSeats, len(existing), len(req.Seats))
	}

	created, err := s.seats.CreateSeats(tripID, req.Seats)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"trip_number": trip.TripNumber,
		"seats_added": len(created),
	}).Info("Trip seats created")

	return created, nil
}

// BlockSeats withholds seats from sale. A booked seat cannot be blocked;
// an already blocked one is left as is. Blocking does not touch the
// trip's available counter, which only tracks booked seats.
func (s *TripService) BlockSeats(tripID string, req *models.BlockSeatsRequest) (int, error) {
	seats, err := s.seatsOnTrip(tripID, req.SeatIDs)
	if err != nil {
		return 0, err
	}
	for _, seat := range seats {
		if seat.Status == models.SeatStatusBooked {
			return 0, fmt.Errorf("%w: %s", models.ErrSeatInUse, seat.SeatNumber)
		}
	}

	reason := "Blocked by operator"
	if req.Reason != nil && *req.Reason != "" {
		reason = *req.Reason
	}

	blocked, err := s.seats.BlockSeats(req.SeatIDs, reason)
	if err != nil {
		return 0, err
	}

	s.logger.WithFields(logrus.Fields{
		"trip_id": tripID,
		"blocked": blocked,
		"reason":  reason,
	}).Info("Seats blocked")

	return blocked, nil
}

// UnblockSeats returns blocked seats to sale. Seats in any other state
// are left as is.
func (s *TripService) UnblockSeats(tripID string, req *models.UnblockSeatsRequest) (int, error) {
	if _, err := s.seatsOnTrip(tripID, req.SeatIDs); err != nil {
		return 0, err
	}

	unblocked, err := s.seats.UnblockSeats(req.SeatIDs)
	if err != nil {
		return 0, err
	}

	s.logger.WithFields(logrus.Fields{
		"trip_id":   tripID,
		"unblocked": unblocked,
	}).Info("Seats unblocked")

	return unblocked, nil
}

// UpdateSeat applies a partial update to one seat. Seats held by a live
// booking are refused.
func (s *TripService) UpdateSeat(tripID, seatID string, req *models.UpdateSeatRequest) (*models.Seat, error) {
	seat, err := s.seats.GetByID(seatID)
	if err != nil {
		return nil, err
	}
	if seat == nil || seat.TripID != tripID {
		return nil, models.ErrSeatNotFound
	}
	if seat.Status == models.SeatStatusBooked {
		return nil, models.ErrSeatInUse
	}

	if req.SeatClass != nil {
		class, err := models.ParseSeatClass(*req.SeatClass)
		if err != nil {
			return nil, err
		}
		seat.SeatClass = class
	}
	if req.PriceMultiplier != nil {
		if *req.PriceMultiplier <= 0 || *req.PriceMultiplier > 10 {
			return nil, models.NewValidationError("price multiplier must be between 0 and 10")
		}
		seat.PriceMultiplier = *req.PriceMultiplier
	}
	if req.Status != nil {
		status, err := models.ParseSeatStatus(*req.Status)
		if err != nil {
			return nil, err
		}
		if status == models.SeatStatusBooked {
			return nil, models.NewValidationError("seats become booked through bookings, not updates")
		}
		seat.Status = status
		if status != models.SeatStatusBlocked {
			seat.BlockReason = nil
		}
	}

	if err := s.seats.Update(seat); err != nil {
		return nil, err
	}

	return seat, nil
}

// DeleteSeat removes one seat from a trip's map. Booked seats are
// refused.
func (s *TripService) DeleteSeat(tripID, seatID string) error {
	seat, err := s.seats.GetByID(seatID)
	if err != nil {
		return err
	}
	if seat == nil || seat.TripID != tripID {
		return models.ErrSeatNotFound
	}
	return s.seats.Delete(seatID)
}

// seatsOnTrip loads seats by ID and checks that every one exists and
// belongs to the given trip.
func (s *TripService) seatsOnTrip(tripID string, seatIDs []string) ([]models.Seat, error) {
	if _, err := s.GetTrip(tripID); err != nil {
		return nil, err
	}

	seats, err := s.seats.GetByIDs(seatIDs)
	if err != nil {
		return nil, err
	}
	if len(seats) != len(seatIDs) {
		return nil, models.ErrSeatNotFound
	}
	for _, seat := range seats {
		if seat.TripID != tripID {
			return nil, models.ErrSeatNotFound
		}
	}
	return seats, nil
}

// ============================================================================
// CONSISTENCY
// ============================================================================

// VerifySeatCounters sweeps for trips whose availability counter
// disagrees with their booked seat rows. Drift means an invariant was
// broken somewhere; it is reported loudly and never auto-corrected.
func (s *TripService) VerifySeatCounters() ([]models.SeatCounterDrift, error) {
	drifts, err := s.trips.CheckSeatCounters()
	if err != nil {
		return nil, err
	}

	for _, drift := range drifts {
		s.logger.WithFields(logrus.Fields{
			"trip_number":     drift.TripNumber,
			"available_seats": drift.AvailableSeats,
			"total_seats":     drift.TotalSeats,
			"booked_seats":    drift.BookedSeats,
		}).Error("Seat counter drift detected")
	}

	return drifts, nil
}

// invalidateSearch drops cached search results after a trip mutation.
func (s *TripService) invalidateSearch(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateSearch(ctx); err != nil {
		s.logger.WithError(err).Warn("Failed to invalidate search cache")
	}
}
