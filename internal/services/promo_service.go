package services

import (
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/busline/ticketing-backend/internal/database"
	"github.com/busline/ticketing-backend/internal/models"
)

// PromoService owns the promo code catalog and the public validation
// query. The usage counter itself belongs to the booking transactions;
// this layer never increments or decrements it.
type PromoService struct {
	promos   *database.PromoRepository
	bookings *database.BookingRepository
	logger   *logrus.Logger
}

// NewPromoService creates a new PromoService
func NewPromoService(
	promos *database.PromoRepository,
	bookings *database.BookingRepository,
	logger *logrus.Logger,
) *PromoService {
	return &PromoService{
		promos:   promos,
		bookings: bookings,
		logger:   logger,
	}
}

// CreatePromo creates a promo code. Codes are unique and stored
// uppercase.
func (s *PromoService) CreatePromo(req *models.CreatePromoCodeRequest) (*models.PromoCode, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	existing, err := s.promos.GetByCode(req.Code)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, models.ErrPromoCodeExists
	}

	from, until := req.Window()
	promo := &models.PromoCode{
		Code:               req.Code,
		Description:        req.Description,
		DiscountPercentage: req.DiscountPercentage,
		MaxDiscountCents:   req.MaxDiscountCents,
		MinPurchaseCents:   req.MinPurchaseCents,
		UsageLimit:         req.UsageLimit,
		UsagePerUser:       req.UsagePerUser,
		ValidFrom:          from,
		ValidUntil:         until,
		IsActive:           true,
	}

	if err := s.promos.Create(promo); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"code":                promo.Code,
		"discount_percentage": promo.DiscountPercentage,
		"valid_until":         promo.ValidUntil,
	}).Info("Promo code created")

	return promo, nil
}

// ListPromos retrieves promo codes for the admin listing.
func (s *PromoService) ListPromos(activeOnly bool, limit, offset int) ([]models.PromoCode, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.promos.List(activeOnly, limit, offset)
}

// ListActivePromos retrieves the promo codes usable right now, for the
// public listing.
func (s *PromoService) ListActivePromos() ([]models.PromoCode, error) {
	return s.promos.ListCurrentlyValid()
}

// GetPromo retrieves one promo code.
func (s *PromoService) GetPromo(promoID string) (*models.PromoCode, error) {
	promo, err := s.promos.GetByID(promoID)
	if err != nil {
		return nil, err
	}
	if promo == nil {
		return nil, models.ErrPromoNotFound
	}
	return promo, nil
}

// UpdatePromo applies a partial update. The usage limit can never drop
// below what has already been used.
func (s *PromoService) UpdatePromo(promoID string, req *models.UpdatePromoCodeRequest) (*models.PromoCode, error) {
	promo, err := s.GetPromo(promoID)
	if err != nil {
		return nil, err
	}

	if req.Description != nil {
		promo.Description = req.Description
	}
	if req.DiscountPercentage != nil {
		if *req.DiscountPercentage <= 0 || *req.DiscountPercentage > 100 {
			return nil, models.NewValidationError("discount percentage must be between 0 and 100")
		}
		promo.DiscountPercentage = *req.DiscountPercentage
	}
	if req.MaxDiscountCents != nil {
		if *req.MaxDiscountCents <= 0 {
			return nil, models.NewValidationError("max discount amount must be positive")
		}
		promo.MaxDiscountCents = req.MaxDiscountCents
	}
	if req.MinPurchaseCents != nil {
		if *req.MinPurchaseCents < 0 {
			return nil, models.NewValidationError("min purchase amount cannot be negative")
		}
		promo.MinPurchaseCents = req.MinPurchaseCents
	}
	if req.UsageLimit != nil {
		if *req.UsageLimit <= 0 {
			return nil, models.NewValidationError("usage limit must be positive")
		}
		if *req.UsageLimit < promo.UsedCount {
			return nil, models.NewValidationError("usage limit cannot be below the current used count of %d", promo.UsedCount)
		}
		promo.UsageLimit = req.UsageLimit
	}
	if req.UsagePerUser != nil {
		if *req.UsagePerUser <= 0 {
			return nil, models.NewValidationError("usage per user must be positive")
		}
		promo.UsagePerUser = req.UsagePerUser
	}
	if req.ValidFrom != nil {
		from, err := time.Parse(time.RFC3339, *req.ValidFrom)
		if err != nil {
			return nil, models.NewValidationError("valid_from must be in RFC3339 format")
		}
		promo.ValidFrom = from
	}
	if req.ValidUntil != nil {
		until, err := time.Parse(time.RFC3339, *req.ValidUntil)
		if err != nil {
			return nil, models.NewValidationError("valid_until must be in RFC3339 format")
		}
		promo.ValidUntil = until
	}
	if !promo.ValidUntil.After(promo.ValidFrom) {
		return nil, models.NewValidationError("valid_until must be after valid_from")
	}

	if err := s.promos.Update(promo); err != nil {
		return nil, err
	}

	s.logger.WithField("code", promo.Code).Info("Promo code updated")
	return promo, nil
}

// TogglePromo flips a promo code between active and inactive and returns
// the updated code.
func (s *PromoService) TogglePromo(promoID string) (*models.PromoCode, error) {
	isActive, err := s.promos.Toggle(promoID)
	if err != nil {
		return nil, err
	}

	promo, err := s.GetPromo(promoID)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"code":      promo.Code,
		"is_active": isActive,
	}).Info("Promo code toggled")

	return promo, nil
}

// DeletePromo removes an unused promo code. Codes that have been
// consumed, or that any booking still references, are refused.
func (s *PromoService) DeletePromo(promoID string) error {
	if err := s.promos.Delete(promoID); err != nil {
		return err
	}
	s.logger.WithField("promo_id", promoID).Info("Promo code deleted")
	return nil
}

// Validate answers whether a code is currently usable by the caller.
// An unusable code comes back with Valid false and the reason rather
// than an error: validity is the question, not a failure. When an
// amount is supplied the answer includes the discount preview.
func (s *PromoService) Validate(userID *string, req *models.ValidatePromoRequest) (*models.PromoValidation, error) {
	code := strings.ToUpper(strings.TrimSpace(req.Code))

	promo, err := s.promos.GetByCode(code)
	if err != nil {
		return nil, err
	}
	if promo == nil {
		return nil, models.ErrPromoNotFound
	}

	if err := promo.ValidateAt(time.Now()); err != nil {
		return invalidPromo(err.Error()), nil
	}

	if userID != nil && promo.UsagePerUser != nil {
		used, err := s.bookings.CountByUserAndPromo(*userID, promo.ID)
		if err != nil {
			return nil, err
		}
		if used >= *promo.UsagePerUser {
			return invalidPromo(models.ErrPromoIneligible.Error()), nil
		}
	}

	result := &models.PromoValidation{Valid: true, PromoCode: promo}
	if req.AmountCents != nil {
		if !promo.MeetsMinimum(*req.AmountCents) {
			return invalidPromo(models.ErrPromoMinimumNotMet.Error()), nil
		}
		discount := promo.DiscountCents(*req.AmountCents)
		final := *req.AmountCents - discount
		result.DiscountCents = &discount
		result.FinalCents = &final
	}

	return result, nil
}

func invalidPromo(reason string) *models.PromoValidation {
	return &models.PromoValidation{Valid: false, Reason: &reason}
}
