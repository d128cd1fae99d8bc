package models

import (
	"strings"
	"time"
)

// SeatStatus represents the state of a seat
type SeatStatus string

const (
	SeatStatusAvailable SeatStatus = "available"
	SeatStatusBooked    SeatStatus = "booked"
	SeatStatusBlocked   SeatStatus = "blocked"
)

// ParseSeatStatus rejects unknown seat states at the boundary.
func ParseSeatStatus(s string) (SeatStatus, error) {
	switch SeatStatus(strings.ToLower(s)) {
	case SeatStatusAvailable:
		return SeatStatusAvailable, nil
	case SeatStatusBooked:
		return SeatStatusBooked, nil
	case SeatStatusBlocked:
		return SeatStatusBlocked, nil
	default:
		return "", NewValidationError("invalid seat status: %q", s)
	}
}

// SeatClass represents the fare class of a seat
type SeatClass string

const (
	SeatClassEconomy    SeatClass = "economy"
	SeatClassBusiness   SeatClass = "business"
	SeatClassFirstClass SeatClass = "first_class"
)

// ParseSeatClass rejects unknown seat classes at the boundary.
func ParseSeatClass(s string) (SeatClass, error) {
	switch SeatClass(strings.ToLower(s)) {
	case SeatClassEconomy:
		return SeatClassEconomy, nil
	case SeatClassBusiness:
		return SeatClassBusiness, nil
	case SeatClassFirstClass:
		return SeatClassFirstClass, nil
	default:
		return "", NewValidationError("invalid seat class: %q", s)
	}
}

// Seat represents one bookable unit of a trip. BookingID is set exactly
// while the seat is booked; a blocked seat is withheld from sale but not
// tied to any booking.
type Seat struct {
	ID              string     `json:"id" db:"id"`
	TripID          string     `json:"trip_id" db:"trip_id"`
	SeatNumber      string     `json:"seat_number" db:"seat_number"`
	SeatClass       SeatClass  `json:"seat_class" db:"seat_class"`
	PriceMultiplier float64    `json:"price_multiplier" db:"price_multiplier"`
	Status          SeatStatus `json:"status" db:"status"`
	BookingID       *string    `json:"booking_id,omitempty" db:"booking_id"`
	BlockReason     *string    `json:"block_reason,omitempty" db:"block_reason"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}

// PriceCents returns this seat's fare for the given trip base fare.
func (s *Seat) PriceCents(baseFareCents int64) int64 {
	return MultiplyCents(baseFareCents, s.PriceMultiplier)
}

// SeatSpec describes one seat to create on a trip
type SeatSpec struct {
	SeatNumber      string  `json:"seat_number" binding:"required"`
	SeatClass       string  `json:"seat_class" binding:"required"`
	PriceMultiplier float64 `json:"price_multiplier"`
}

// CreateSeatsRequest represents a bulk seat creation request
type CreateSeatsRequest struct {
	Seats []SeatSpec `json:"seats" binding:"required,min=1,dive"`
}

// Validate checks seat specs against each other and the class/multiplier
// rules. Multiplier defaults to 1.0 when omitted.
func (r *CreateSeatsRequest) Validate() error {
	seen := make(map[string]bool, len(r.Seats))
	for i := range r.Seats {
		spec := &r.Seats[i]
		number := strings.TrimSpace(spec.SeatNumber)
		if number == "" {
			return NewValidationError("seat number is required for all seats")
		}
		if seen[number] {
			return NewValidationError("duplicate seat number: %s", number)
		}
		seen[number] = true
		spec.SeatNumber = number

		if _, err := ParseSeatClass(spec.SeatClass); err != nil {
			return err
		}
		if spec.PriceMultiplier == 0 {
			spec.PriceMultiplier = 1.0
		}
		if spec.PriceMultiplier <= 0 || spec.PriceMultiplier > 10 {
			return NewValidationError("price multiplier must be between 0 and 10")
		}
	}
	return nil
}

// UpdateSeatRequest represents a partial seat update
type UpdateSeatRequest struct {
	SeatClass       *string  `json:"seat_class,omitempty"`
	PriceMultiplier *float64 `json:"price_multiplier,omitempty"`
	Status          *string  `json:"status,omitempty"`
}

// BlockSeatsRequest represents an administrative request to withhold seats
type BlockSeatsRequest struct {
	SeatIDs []string `json:"seat_ids" binding:"required,min=1"`
	Reason  *string  `json:"reason,omitempty"`
}

// UnblockSeatsRequest represents an administrative request to return
// blocked seats to sale
type UnblockSeatsRequest struct {
	SeatIDs []string `json:"seat_ids" binding:"required,min=1"`
}
