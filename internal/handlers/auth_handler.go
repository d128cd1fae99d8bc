package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/busline/ticketing-backend/internal/middleware"
	"github.com/busline/ticketing-backend/internal/models"
	"github.com/busline/ticketing-backend/internal/services"
	"github.com/busline/ticketing-backend/internal/utils"
)

// AuthHandler handles registration, login and session management.
type AuthHandler struct {
	authService *services.AuthService
	logger      *logrus.Logger
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(authService *services.AuthService, logger *logrus.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		logger:      logger,
	}
}

// AuthResponse carries the account and its freshly issued token pair.
type AuthResponse struct {
	Message string            `json:"message"`
	User    *models.User      `json:"user"`
	Tokens  *models.TokenPair `json:"tokens"`
}

// Register handles POST /api/v1/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, "Invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		respondValidationError(c, err.Error())
		return
	}

	user, tokens, err := h.authService.Register(&req, utils.GetRealIP(c), utils.GetUserAgent(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, AuthResponse{
		Message: "Account created successfully",
		User:    user,
		Tokens:  tokens,
	})
}

// Login handles POST /api/v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, "Invalid request body")
		return
	}

	user, tokens, err := h.authService.Login(&req, utils.GetRealIP(c), utils.GetUserAgent(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, AuthResponse{
		Message: "Login successful",
		User:    user,
		Tokens:  tokens,
	})
}

// RefreshResponse carries the rotated token pair.
type RefreshResponse struct {
	Message string            `json:"message"`
	Tokens  *models.TokenPair `json:"tokens"`
}

// Refresh handles POST /api/v1/auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req models.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, "Invalid request body")
		return
	}

	tokens, err := h.authService.Refresh(req.RefreshToken, utils.GetRealIP(c), utils.GetUserAgent(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, RefreshResponse{
		Message: "Token refreshed",
		Tokens:  tokens,
	})
}

// Logout handles POST /api/v1/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	userCtx, ok := middleware.GetUserContext(c)
	if !ok {
		respondUnauthorized(c)
		return
	}

	// An empty body logs out the current device only.
	var req models.LogoutRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, "Invalid request body")
			return
		}
	}

	if err := h.authService.Logout(userCtx.UserID, &req, utils.GetRealIP(c), utils.GetUserAgent(c)); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "Logged out successfully"})
}

// GetProfile handles GET /api/v1/user/profile
func (h *AuthHandler) GetProfile(c *gin.Context) {
	userCtx, ok := middleware.GetUserContext(c)
	if !ok {
		respondUnauthorized(c)
		return
	}

	user, err := h.authService.GetCurrentUser(userCtx.UserID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user})
}

// UpdateProfile handles PUT /api/v1/user/profile
func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	userCtx, ok := middleware.GetUserContext(c)
	if !ok {
		respondUnauthorized(c)
		return
	}

	var req models.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, "Invalid request body")
		return
	}
	if req.FullName != nil {
		trimmed := strings.TrimSpace(*req.FullName)
		if len(trimmed) < 2 || len(trimmed) > 200 {
			respondValidationError(c, "full name must be between 2 and 200 characters")
			return
		}
	}

	user, err := h.authService.UpdateProfile(userCtx.UserID, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Profile updated",
		"user":    user,
	})
}

// ChangePassword handles POST /api/v1/auth/change-password
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	userCtx, ok := middleware.GetUserContext(c)
	if !ok {
		respondUnauthorized(c)
		return
	}

	var req models.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, "Invalid request body")
		return
	}
	if err := models.ValidatePassword(req.NewPassword); err != nil {
		respondValidationError(c, err.Error())
		return
	}

	err := h.authService.ChangePassword(userCtx.UserID, &req, utils.GetRealIP(c), utils.GetUserAgent(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "Password changed. Please log in again on your other devices."})
}

// ListSessions handles GET /api/v1/auth/sessions
func (h *AuthHandler) ListSessions(c *gin.Context) {
	userCtx, ok := middleware.GetUserContext(c)
	if !ok {
		respondUnauthorized(c)
		return
	}

	sessions, err := h.authService.ListSessions(userCtx.UserID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sessions": sessions,
		"count":    len(sessions),
	})
}
