package models

import (
	"strings"
	"time"
)

// PromoCode represents a discount rule with a validity window and usage caps
type PromoCode struct {
	ID                 string    `json:"id" db:"id"`
	Code               string    `json:"code" db:"code"`
	Description        *string   `json:"description,omitempty" db:"description"`
	DiscountPercentage float64   `json:"discount_percentage" db:"discount_percentage"`
	MaxDiscountCents   *int64    `json:"max_discount_cents,omitempty" db:"max_discount_cents"`
	MinPurchaseCents   *int64    `json:"min_purchase_cents,omitempty" db:"min_purchase_cents"`
	UsageLimit         *int      `json:"usage_limit,omitempty" db:"usage_limit"`
	UsedCount          int       `json:"used_count" db:"used_count"`
	UsagePerUser       *int      `json:"usage_per_user,omitempty" db:"usage_per_user"`
	ValidFrom          time.Time `json:"valid_from" db:"valid_from"`
	ValidUntil         time.Time `json:"valid_until" db:"valid_until"`
	IsActive           bool      `json:"is_active" db:"is_active"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time `json:"updated_at" db:"updated_at"`
}

// ValidateAt checks the active flag, validity window and global usage limit.
// Returns a *PromoInvalidError carrying the failure reason, or nil.
func (p *PromoCode) ValidateAt(now time.Time) error {
	if !p.IsActive {
		return &PromoInvalidError{Reason: PromoReasonInactive}
	}
	if now.Before(p.ValidFrom) {
		return &PromoInvalidError{Reason: PromoReasonNotYetValid}
	}
	if now.After(p.ValidUntil) {
		return &PromoInvalidError{Reason: PromoReasonExpired}
	}
	if p.UsageLimit != nil && p.UsedCount >= *p.UsageLimit {
		return &PromoInvalidError{Reason: PromoReasonUsageLimitReached}
	}
	return nil
}

// MeetsMinimum reports whether an amount satisfies the minimum purchase
// threshold, if one is set.
func (p *PromoCode) MeetsMinimum(amountCents int64) bool {
	return p.MinPurchaseCents == nil || amountCents >= *p.MinPurchaseCents
}

// DiscountCents computes the discount for an amount: zero below the
// minimum purchase threshold, otherwise the percentage of the amount
// capped at MaxDiscountCents.
func (p *PromoCode) DiscountCents(amountCents int64) int64 {
	if !p.MeetsMinimum(amountCents) {
		return 0
	}
	discount := PercentCents(amountCents, p.DiscountPercentage)
	if p.MaxDiscountCents != nil && discount > *p.MaxDiscountCents {
		discount = *p.MaxDiscountCents
	}
	return discount
}

// CreatePromoCodeRequest represents the request to create a promo code
type CreatePromoCodeRequest struct {
	Code               string  `json:"code" binding:"required"`
	Description        *string `json:"description,omitempty"`
	DiscountPercentage float64 `json:"discount_percentage" binding:"required"`
	MaxDiscountCents   *int64  `json:"max_discount_cents,omitempty"`
	MinPurchaseCents   *int64  `json:"min_purchase_cents,omitempty"`
	UsageLimit         *int    `json:"usage_limit,omitempty"`
	UsagePerUser       *int    `json:"usage_per_user,omitempty"`
	ValidFrom          string  `json:"valid_from" binding:"required"`
	ValidUntil         string  `json:"valid_until" binding:"required"`
}

// Validate validates the create promo code request
func (r *CreatePromoCodeRequest) Validate() error {
	r.Code = strings.ToUpper(strings.TrimSpace(r.Code))
	if r.Code == "" {
		return NewValidationError("code is required")
	}
	if r.DiscountPercentage <= 0 || r.DiscountPercentage > 100 {
		return NewValidationError("discount percentage must be between 0 and 100")
	}
	from, err := time.Parse(time.RFC3339, r.ValidFrom)
	if err != nil {
		return NewValidationError("valid_from must be in RFC3339 format")
	}
	until, err := time.Parse(time.RFC3339, r.ValidUntil)
	if err != nil {
		return NewValidationError("valid_until must be in RFC3339 format")
	}
	if !until.After(from) {
		return NewValidationError("valid_until must be after valid_from")
	}
	if r.MaxDiscountCents != nil && *r.MaxDiscountCents <= 0 {
		return NewValidationError("max discount amount must be positive")
	}
	if r.MinPurchaseCents != nil && *r.MinPurchaseCents < 0 {
		return NewValidationError("min purchase amount cannot be negative")
	}
	if r.UsageLimit != nil && *r.UsageLimit <= 0 {
		return NewValidationError("usage limit must be positive")
	}
	if r.UsagePerUser != nil && *r.UsagePerUser <= 0 {
		return NewValidationError("usage per user must be positive")
	}
	return nil
}

// Window parses the validity window. Call Validate first.
func (r *CreatePromoCodeRequest) Window() (time.Time, time.Time) {
	from, _ := time.Parse(time.RFC3339, r.ValidFrom)
	until, _ := time.Parse(time.RFC3339, r.ValidUntil)
	return from, until
}

// UpdatePromoCodeRequest represents a partial promo code update
type UpdatePromoCodeRequest struct {
	Description        *string  `json:"description,omitempty"`
	DiscountPercentage *float64 `json:"discount_percentage,omitempty"`
	MaxDiscountCents   *int64   `json:"max_discount_cents,omitempty"`
	MinPurchaseCents   *int64   `json:"min_purchase_cents,omitempty"`
	UsageLimit         *int     `json:"usage_limit,omitempty"`
	UsagePerUser       *int     `json:"usage_per_user,omitempty"`
	ValidFrom          *string  `json:"valid_from,omitempty"`
	ValidUntil         *string  `json:"valid_until,omitempty"`
}

// ValidatePromoRequest asks whether a code is usable by the caller for an
// optional amount
type ValidatePromoRequest struct {
	Code        string `json:"code" binding:"required"`
	AmountCents *int64 `json:"amount_cents,omitempty"`
}

// PromoValidation is the answer to a promo validation query. An invalid
// code carries the reason; a valid one carries the code and, when an
// amount was supplied, the discount preview.
type PromoValidation struct {
	Valid         bool       `json:"valid"`
	Reason        *string    `json:"reason,omitempty"`
	PromoCode     *PromoCode `json:"promo_code,omitempty"`
	DiscountCents *int64     `json:"discount_cents,omitempty"`
	FinalCents    *int64     `json:"final_cents,omitempty"`
}
