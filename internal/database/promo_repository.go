package database

import (
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/busline/ticketing-backend/internal/models"
)

// PromoRepository handles promo_codes database operations
type PromoRepository struct {
	db *sqlx.DB
}

// NewPromoRepository creates a new PromoRepository
func NewPromoRepository(db *sqlx.DB) *PromoRepository {
	return &PromoRepository{db: db}
}

const promoColumns = `
	id, code, description, discount_percentage, max_discount_cents,
	min_purchase_cents, usage_limit, used_count, usage_per_user,
	valid_from, valid_until, is_active, created_at, updated_at`

// Create inserts a new promo code
func (r *PromoRepository) Create(promo *models.PromoCode) error {
	query := `
		INSERT INTO promo_codes (
			code, description, discount_percentage, max_discount_cents,
			min_purchase_cents, usage_limit, usage_per_user,
			valid_from, valid_until, is_active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, used_count, created_at, updated_at`

	err := r.db.QueryRow(query,
		promo.Code, promo.Description, promo.DiscountPercentage, promo.MaxDiscountCents,
		promo.MinPurchaseCents, promo.UsageLimit, promo.UsagePerUser,
		promo.ValidFrom, promo.ValidUntil, promo.IsActive,
	).Scan(&promo.ID, &promo.UsedCount, &promo.CreatedAt, &promo.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return models.ErrPromoCodeExists
		}
		return fmt.Errorf("failed to create promo code: %w", err)
	}

	return nil
}

// GetByID retrieves a promo code by ID. Returns (nil, nil) when not found.
func (r *PromoRepository) GetByID(promoID string) (*models.PromoCode, error) {
	promo := &models.PromoCode{}
	query := `SELECT` + promoColumns + ` FROM promo_codes WHERE id = $1`

	err := r.db.Get(promo, query, promoID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get promo code by ID: %w", err)
	}

	return promo, nil
}

// GetByCode retrieves a promo code by its code. Returns (nil, nil) when
// not found.
func (r *PromoRepository) GetByCode(code string) (*models.PromoCode, error) {
	promo := &models.PromoCode{}
	query := `SELECT` + promoColumns + ` FROM promo_codes WHERE code = $1`

	err := r.db.Get(promo, query, code)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get promo code by code: %w", err)
	}

	return promo, nil
}

// List retrieves promo codes for the admin listing, newest first.
func (r *PromoRepository) List(activeOnly bool, limit, offset int) ([]models.PromoCode, error) {
	query := `SELECT` + promoColumns + ` FROM promo_codes`
	if activeOnly {
		query += ` WHERE is_active = TRUE`
	}
	query += ` ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	var promos []models.PromoCode
	if err := r.db.Select(&promos, query, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list promo codes: %w", err)
	}

	return promos, nil
}

// ListCurrentlyValid retrieves the promo codes usable right now, for the
// public active-promos listing.
func (r *PromoRepository) ListCurrentlyValid() ([]models.PromoCode, error) {
	query := `SELECT` + promoColumns + `
		FROM promo_codes
		WHERE is_active = TRUE
		  AND valid_from <= NOW()
		  AND valid_until >= NOW()
		  AND (usage_limit IS NULL OR used_count < usage_limit)
		ORDER BY valid_until ASC`

	var promos []models.PromoCode
	if err := r.db.Select(&promos, query); err != nil {
		return nil, fmt.Errorf("failed to list valid promo codes: %w", err)
	}

	return promos, nil
}

// Update writes the full promo code row back. The usage counter is owned
// by the booking transactions and is not touched here.
func (r *PromoRepository) Update(promo *models.PromoCode) error {
	query := `
		UPDATE promo_codes
		SET description = $2, discount_percentage = $3, max_discount_cents = $4,
			min_purchase_cents = $5, usage_limit = $6, usage_per_user = $7,
			valid_from = $8, valid_until = $9, is_active = $10,
			updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`

	err := r.db.QueryRow(query,
		promo.ID, promo.Description, promo.DiscountPercentage, promo.MaxDiscountCents,
		promo.MinPurchaseCents, promo.UsageLimit, promo.UsagePerUser,
		promo.ValidFrom, promo.ValidUntil, promo.IsActive,
	).Scan(&promo.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return models.ErrPromoNotFound
		}
		return fmt.Errorf("failed to update promo code: %w", err)
	}

	return nil
}

// Toggle flips a promo code's active flag and returns the new value.
func (r *PromoRepository) Toggle(promoID string) (bool, error) {
	var isActive bool
	err := r.db.QueryRow(`
		UPDATE promo_codes
		SET is_active = NOT is_active, updated_at = NOW()
		WHERE id = $1
		RETURNING is_active`,
		promoID).Scan(&isActive)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, models.ErrPromoNotFound
		}
		return false, fmt.Errorf("failed to toggle promo code: %w", err)
	}

	return isActive, nil
}

// Delete removes a promo code. Codes that have been used, or that any
// booking still references, are refused.
func (r *PromoRepository) Delete(promoID string) error {
	result, err := r.db.Exec(`
		DELETE FROM promo_codes
		WHERE id = $1
		  AND used_count = 0
		  AND NOT EXISTS (SELECT 1 FROM bookings WHERE promo_code_id = $1)`,
		promoID)
	if err != nil {
		return fmt.Errorf("failed to delete promo code: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		existing, getErr := r.GetByID(promoID)
		if getErr != nil {
			return getErr
		}
		if existing == nil {
			return models.ErrPromoNotFound
		}
		return models.ErrPromoInUse
	}

	return nil
}
