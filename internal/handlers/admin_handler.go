package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/busline/ticketing-backend/internal/middleware"
	"github.com/busline/ticketing-backend/internal/services"
)

// AdminHandler covers the back-office surface that does not belong to a
// single domain: user administration, maintenance jobs, and audit
// history.
type AdminHandler struct {
	authService  *services.AuthService
	auditService *services.AuditService
	cronService  *services.CronService
	logger       *logrus.Logger
}

func NewAdminHandler(authService *services.AuthService, auditService *services.AuditService, cronService *services.CronService, logger *logrus.Logger) *AdminHandler {
	return &AdminHandler{
		authService:  authService,
		auditService: auditService,
		cronService:  cronService,
		logger:       logger,
	}
}

// ListUsers pages through registered accounts.
// GET /api/v1/admin/users
func (h *AdminHandler) ListUsers(c *gin.Context) {
	limit, offset := parsePagination(c, 50, 200)

	users, total, err := h.authService.AdminListUsers(limit, offset)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"users": users,
		"total": total,
		"count": len(users),
	})
}

// SetUserActiveRequest toggles an account between enabled and disabled.
type SetUserActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// SetUserActive enables or disables an account. A disabled account
// cannot log in; its existing bookings are untouched.
// PATCH /api/v1/admin/users/:id/active
func (h *AdminHandler) SetUserActive(c *gin.Context) {
	var req SetUserActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, "Invalid request body: active is required")
		return
	}

	user, err := h.authService.AdminSetUserActive(c.Param("id"), *req.Active)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	message := "Account disabled"
	if user.IsActive {
		message = "Account enabled"
	}

	c.JSON(http.StatusOK, gin.H{
		"message": message,
		"user":    user,
	})
}

// UserAuditTrail returns the most recent audit events recorded for an
// account.
// GET /api/v1/admin/users/:id/audit
func (h *AdminHandler) UserAuditTrail(c *gin.Context) {
	limit, _ := parsePagination(c, 50, 200)

	events, err := h.auditService.GetRecentEvents(c.Param("id"), limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"count":  len(events),
	})
}

// MaintenanceStatus reports the scheduled maintenance jobs and their
// next run times.
// GET /api/v1/admin/maintenance/status
func (h *AdminHandler) MaintenanceStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.cronService.GetJobStatus())
}

// RunMaintenance kicks off the maintenance jobs outside their schedule.
// POST /api/v1/admin/maintenance/run
func (h *AdminHandler) RunMaintenance(c *gin.Context) {
	userCtx, _ := middleware.GetUserContext(c)
	h.logger.WithField("admin_id", userCtx.UserID).Info("Maintenance run triggered manually")

	h.cronService.RunMaintenanceNow()

	c.JSON(http.StatusOK, MessageResponse{Message: "Maintenance jobs completed"})
}
