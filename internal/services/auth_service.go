package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/busline/ticketing-backend/internal/config"
	"github.com/busline/ticketing-backend/internal/database"
	"github.com/busline/ticketing-backend/internal/models"
	"github.com/busline/ticketing-backend/internal/utils"
	"github.com/busline/ticketing-backend/pkg/jwt"
	"github.com/busline/ticketing-backend/pkg/validator"
)

// AuthService owns accounts and sessions: registration, login, token
// rotation, logout, and profile management. Refresh tokens are persisted
// per device so individual sessions can be listed and revoked.
type AuthService struct {
	users     *database.UserRepository
	tokens    *database.RefreshTokenRepository
	jwt       *jwt.Service
	rateLimit *RateLimitService
	audit     *AuditService
	phones    *validator.PhoneValidator
	config    *config.SecurityConfig
	logger    *logrus.Logger
}

// NewAuthService creates a new AuthService
func NewAuthService(
	users *database.UserRepository,
	tokens *database.RefreshTokenRepository,
	jwtService *jwt.Service,
	rateLimit *RateLimitService,
	audit *AuditService,
	cfg *config.SecurityConfig,
	logger *logrus.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		jwt:       jwtService,
		rateLimit: rateLimit,
		audit:     audit,
		phones:    validator.NewPhoneValidator(),
		config:    cfg,
		logger:    logger,
	}
}

// ============================================================================
// REGISTRATION / LOGIN
// ============================================================================

// Register creates a customer account and signs the new user in. Public
// registration always yields the customer role; admin accounts are
// provisioned separately.
func (s *AuthService) Register(req *models.RegisterRequest, ipAddress, userAgent string) (*models.User, *models.TokenPair, error) {
	// 1. Validate the request (normalizes email and name)
	if err := req.Validate(); err != nil {
		return nil, nil, err
	}

	var phone *string
	if req.Phone != nil && strings.TrimSpace(*req.Phone) != "" {
		sanitized, err := s.phones.Validate(*req.Phone)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid phone number: %w", err)
		}
		phone = &sanitized
	}

	// 2. Reject duplicate emails
	existing, err := s.users.GetUserByEmail(req.Email)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to check existing user: %w", err)
	}
	if existing != nil {
		return nil, nil, models.ErrEmailExists
	}

	// 3. Hash the password
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.config.BcryptCost)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to hash password: %w", err)
	}

	// 4. Create the account
	user, err := s.users.CreateUser(req.Email, string(hash), req.FullName, phone, models.UserRoleCustomer)
	if err != nil {
		return nil, nil, err
	}

	// 5. Issue the first session
	pair, err := s.issueTokens(user, ipAddress, userAgent)
	if err != nil {
		return nil, nil, err
	}

	if err := s.audit.LogRegistration(user.ID, user.Email, ipAddress, userAgent); err != nil {
		s.logger.WithError(err).Warn("Failed to write registration audit entry")
	}

	s.logger.WithFields(logrus.Fields{
		"user_id": user.ID,
		"email":   user.Email,
	}).Info("User registered")

	return user, pair, nil
}

// Login authenticates a user by email and password. Failed attempts are
// rate limited per email and per IP; the counter resets on success.
func (s *AuthService) Login(req *models.LoginRequest, ipAddress, userAgent string) (*models.User, *models.TokenPair, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))

	// 1. Rate limit before touching credentials
	if err := s.rateLimit.CheckLoginRateLimit(email, ipAddress); err != nil {
		var rlErr *RateLimitError
		if errors.As(err, &rlErr) {
			if auditErr := s.audit.LogRateLimitViolation(email, ipAddress, userAgent, rlErr.Type, rlErr.RetryAfter); auditErr != nil {
				s.logger.WithError(auditErr).Warn("Failed to write rate limit audit entry")
			}
		}
		return nil, nil, err
	}

	// 2. Verify credentials. Unknown email and wrong password take the
	// same path so the response does not reveal which accounts exist.
	user, err := s.users.GetUserByEmail(email)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil {
		s.recordLoginFailure(nil, email, ipAddress, userAgent, "unknown email")
		return nil, nil, models.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		s.recordLoginFailure(&user.ID, email, ipAddress, userAgent, "wrong password")
		return nil, nil, models.ErrInvalidCredentials
	}

	// 3. The account must be active
	if !user.IsActive {
		s.recordLoginFailure(&user.ID, email, ipAddress, userAgent, "account disabled")
		return nil, nil, models.ErrAccountDisabled
	}

	// 4. Success: clear the failure window and stamp the login
	if err := s.rateLimit.ClearLoginFailures(email); err != nil {
		s.logger.WithError(err).Warn("Failed to clear login failures")
	}
	if err := s.users.UpdateLastLogin(user.ID); err != nil {
		s.logger.WithError(err).Warn("Failed to stamp last login")
	}

	// 5. Issue a new session
	pair, err := s.issueTokens(user, ipAddress, userAgent)
	if err != nil {
		return nil, nil, err
	}

	if err := s.audit.LogLogin(user.ID, user.Email, ipAddress, userAgent); err != nil {
		s.logger.WithError(err).Warn("Failed to write login audit entry")
	}

	s.logger.WithFields(logrus.Fields{
		"user_id": user.ID,
		"email":   user.Email,
	}).Info("User logged in")

	return user, pair, nil
}

// recordLoginFailure counts the attempt toward the rate limit and audits it
func (s *AuthService) recordLoginFailure(userID *string, email, ipAddress, userAgent, reason string) {
	if err := s.rateLimit.RecordFailedLogin(email, ipAddress); err != nil {
		s.logger.WithError(err).Warn("Failed to record login failure")
	}
	if err := s.audit.LogFailedLogin(userID, email, ipAddress, userAgent, reason); err != nil {
		s.logger.WithError(err).Warn("Failed to write failed login audit entry")
	}
}

// issueTokens mints an access/refresh pair and persists the refresh side
// as a session with a device description parsed from the user agent
func (s *AuthService) issueTokens(user *models.User, ipAddress, userAgent string) (*models.TokenPair, error) {
	accessToken, err := s.jwt.GenerateAccessToken(user.ID, user.Email, string(user.Role))
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	refreshToken, err := s.jwt.GenerateRefreshToken(user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	deviceName := utils.ParseUserAgent(userAgent).Label()
	expiresAt := time.Now().Add(s.jwt.RefreshTokenExpiry())

	if err := s.tokens.StoreRefreshToken(user.ID, refreshToken, deviceName, ipAddress, userAgent, expiresAt); err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	return &models.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.jwt.AccessTokenExpiry().Seconds()),
		TokenType:    "Bearer",
	}, nil
}

// ============================================================================
// TOKEN ROTATION / LOGOUT
// ============================================================================

// Refresh rotates a refresh token: the presented token is revoked and a
// fresh pair is issued. Each refresh token is single use, so a replayed
// token fails here even before it expires.
func (s *AuthService) Refresh(refreshToken, ipAddress, userAgent string) (*models.TokenPair, error) {
	claims, err := s.jwt.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, models.ErrInvalidRefreshToken
	}

	stored, err := s.tokens.GetRefreshToken(refreshToken)
	if err != nil {
		return nil, fmt.Errorf("failed to look up refresh token: %w", err)
	}
	if stored == nil || !stored.IsUsable() {
		if auditErr := s.audit.LogTokenRefresh(claims.UserID, ipAddress, userAgent, false); auditErr != nil {
			s.logger.WithError(auditErr).Warn("Failed to write token refresh audit entry")
		}
		return nil, models.ErrInvalidRefreshToken
	}

	user, err := s.users.GetUserByID(claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil {
		return nil, models.ErrInvalidRefreshToken
	}
	if !user.IsActive {
		return nil, models.ErrAccountDisabled
	}

	if err := s.tokens.UpdateLastUsed(refreshToken); err != nil {
		s.logger.WithError(err).Warn("Failed to stamp refresh token use")
	}
	if err := s.tokens.RevokeToken(refreshToken); err != nil {
		// A concurrent rotation already consumed this token
		return nil, models.ErrInvalidRefreshToken
	}

	pair, err := s.issueTokens(user, ipAddress, userAgent)
	if err != nil {
		return nil, err
	}

	if err := s.audit.LogTokenRefresh(user.ID, ipAddress, userAgent, true); err != nil {
		s.logger.WithError(err).Warn("Failed to write token refresh audit entry")
	}

	return pair, nil
}

// Logout ends the caller's session. With a refresh token it revokes that
// session; with AllDevices it revokes every session; with neither it
// revokes the most recent session. Logout never fails on an already
// ended session.
func (s *AuthService) Logout(userID string, req *models.LogoutRequest, ipAddress, userAgent string) error {
	switch {
	case req != nil && req.AllDevices:
		if err := s.tokens.RevokeAllUserTokens(userID); err != nil {
			return err
		}

	case req != nil && req.RefreshToken != "":
		stored, err := s.tokens.GetRefreshToken(req.RefreshToken)
		if err != nil {
			return fmt.Errorf("failed to look up refresh token: %w", err)
		}
		if stored == nil || stored.UserID != userID {
			return models.ErrInvalidRefreshToken
		}
		if !stored.Revoked {
			if err := s.tokens.RevokeToken(req.RefreshToken); err != nil {
				return err
			}
		}

	default:
		if err := s.tokens.RevokeMostRecentToken(userID); err != nil {
			s.logger.WithFields(logrus.Fields{
				"user_id": userID,
			}).WithError(err).Warn("Logout without an active session")
		}
	}

	logoutAll := req != nil && req.AllDevices
	if err := s.audit.LogLogout(userID, ipAddress, userAgent, logoutAll); err != nil {
		s.logger.WithError(err).Warn("Failed to write logout audit entry")
	}

	s.logger.WithFields(logrus.Fields{
		"user_id":     userID,
		"all_devices": logoutAll,
	}).Info("User logged out")

	return nil
}

// ListSessions returns the caller's active sessions
func (s *AuthService) ListSessions(userID string) ([]*models.RefreshToken, error) {
	return s.tokens.GetUserTokens(userID)
}

// ============================================================================
// PROFILE
// ============================================================================

// GetCurrentUser returns the authenticated user's account
func (s *AuthService) GetCurrentUser(userID string) (*models.User, error) {
	user, err := s.users.GetUserByID(userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, models.ErrUserNotFound
	}
	return user, nil
}

// UpdateProfile applies a partial update to the caller's profile. An
// empty phone value clears the stored number.
func (s *AuthService) UpdateProfile(userID string, req *models.UpdateProfileRequest) (*models.User, error) {
	user, err := s.GetCurrentUser(userID)
	if err != nil {
		return nil, err
	}

	fullName := user.FullName
	if req.FullName != nil {
		fullName = strings.TrimSpace(*req.FullName)
		if len(fullName) < 2 || len(fullName) > 200 {
			return nil, models.NewValidationError("full name must be between 2 and 200 characters")
		}
	}

	var phone *string
	if user.Phone.Valid {
		current := user.Phone.String
		phone = &current
	}
	if req.Phone != nil {
		trimmed := strings.TrimSpace(*req.Phone)
		if trimmed == "" {
			phone = nil
		} else {
			sanitized, err := s.phones.Validate(trimmed)
			if err != nil {
				return nil, fmt.Errorf("invalid phone number: %w", err)
			}
			phone = &sanitized
		}
	}

	if err := s.users.UpdateProfile(userID, fullName, phone); err != nil {
		return nil, err
	}

	return s.GetCurrentUser(userID)
}

// ChangePassword verifies the current password, applies the new one, and
// revokes every session so stolen refresh tokens stop working.
func (s *AuthService) ChangePassword(userID string, req *models.ChangePasswordRequest, ipAddress, userAgent string) error {
	user, err := s.GetCurrentUser(userID)
	if err != nil {
		return err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)); err != nil {
		return models.ErrPasswordMismatch
	}

	if req.NewPassword == req.CurrentPassword {
		return models.ErrSamePassword
	}

	if err := models.ValidatePassword(req.NewPassword); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), s.config.BcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.users.UpdatePassword(userID, string(hash)); err != nil {
		return err
	}

	if err := s.tokens.RevokeAllUserTokens(userID); err != nil {
		s.logger.WithError(err).Warn("Failed to revoke sessions after password change")
	}

	if err := s.audit.LogSuspiciousActivity(&userID, "password_changed", ipAddress, userAgent, nil); err != nil {
		s.logger.WithError(err).Warn("Failed to write password change audit entry")
	}

	s.logger.WithFields(logrus.Fields{
		"user_id": userID,
	}).Info("Password changed")

	return nil
}

// ============================================================================
// ADMIN
// ============================================================================

// AdminListUsers returns a page of accounts with the total count
func (s *AuthService) AdminListUsers(limit, offset int) ([]*models.User, int, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	users, err := s.users.ListUsers(limit, offset)
	if err != nil {
		return nil, 0, err
	}

	total, err := s.users.CountUsers()
	if err != nil {
		return nil, 0, err
	}

	return users, total, nil
}

// AdminSetUserActive enables or disables an account. Disabling also
// revokes all the user's sessions.
func (s *AuthService) AdminSetUserActive(userID string, active bool) (*models.User, error) {
	if err := s.users.SetActive(userID, active); err != nil {
		return nil, err
	}

	if !active {
		if err := s.tokens.RevokeAllUserTokens(userID); err != nil {
			s.logger.WithError(err).Warn("Failed to revoke sessions for disabled account")
		}
	}

	user, err := s.GetCurrentUser(userID)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"user_id":   userID,
		"is_active": active,
	}).Info("User active flag updated")

	return user, nil
}
