package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/busline/ticketing-backend/internal/middleware"
	"github.com/busline/ticketing-backend/internal/models"
	"github.com/busline/ticketing-backend/internal/services"
)

// PromoHandler exposes promo code browsing and validation to customers
// and the full promo lifecycle to admins.
type PromoHandler struct {
	promoService *services.PromoService
	logger       *logrus.Logger
}

func NewPromoHandler(promoService *services.PromoService, logger *logrus.Logger) *PromoHandler {
	return &PromoHandler{promoService: promoService, logger: logger}
}

// ListActive returns the promo codes currently open for use.
// GET /api/v1/promos/active
func (h *PromoHandler) ListActive(c *gin.Context) {
	promos, err := h.promoService.ListActivePromos()
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"promos": promos,
		"count":  len(promos),
	})
}

// Validate checks a promo code against an order amount and reports the
// discount it would grant. When the caller is authenticated the per-user
// usage allowance is checked as well.
// POST /api/v1/promos/validate
func (h *PromoHandler) Validate(c *gin.Context) {
	var req models.ValidatePromoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, "Invalid request body")
		return
	}

	var userID *string
	if userCtx, ok := middleware.GetUserContext(c); ok {
		userID = &userCtx.UserID
	}

	validation, err := h.promoService.Validate(userID, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"validation": validation})
}

// ============================================================================
// ADMIN
// ============================================================================

// CreatePromo creates a new promo code.
// POST /api/v1/admin/promos
func (h *PromoHandler) CreatePromo(c *gin.Context) {
	var req models.CreatePromoCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, "Invalid request body")
		return
	}

	promo, err := h.promoService.CreatePromo(&req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Promo code created",
		"promo":   promo,
	})
}

// ListPromos lists promo codes, optionally restricted to currently
// active ones.
// GET /api/v1/admin/promos
func (h *PromoHandler) ListPromos(c *gin.Context) {
	activeOnly := c.Query("active_only") == "true"
	limit, offset := parsePagination(c, 50, 200)

	promos, err := h.promoService.ListPromos(activeOnly, limit, offset)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"promos": promos,
		"count":  len(promos),
	})
}

// GetPromo returns a single promo code.
// GET /api/v1/admin/promos/:id
func (h *PromoHandler) GetPromo(c *gin.Context) {
	promo, err := h.promoService.GetPromo(c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"promo": promo})
}

// UpdatePromo updates a promo code's limits and validity window.
// PUT /api/v1/admin/promos/:id
func (h *PromoHandler) UpdatePromo(c *gin.Context) {
	var req models.UpdatePromoCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, "Invalid request body")
		return
	}

	promo, err := h.promoService.UpdatePromo(c.Param("id"), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Promo code updated",
		"promo":   promo,
	})
}

// TogglePromo flips a promo code between active and inactive.
// PATCH /api/v1/admin/promos/:id/toggle
func (h *PromoHandler) TogglePromo(c *gin.Context) {
	promo, err := h.promoService.TogglePromo(c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	message := "Promo code deactivated"
	if promo.IsActive {
		message = "Promo code activated"
	}

	c.JSON(http.StatusOK, gin.H{
		"message": message,
		"promo":   promo,
	})
}

// DeletePromo removes a promo code that has never been used.
// DELETE /api/v1/admin/promos/:id
func (h *PromoHandler) DeletePromo(c *gin.Context) {
	if err := h.promoService.DeletePromo(c.Param("id")); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "Promo code deleted"})
}
