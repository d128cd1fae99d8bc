package services

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/busline/ticketing-backend/internal/config"
	"github.com/busline/ticketing-backend/internal/database"
)

// Identifier types recorded in the rate_limits table
const (
	rateLimitLoginEmail  = "login_email"
	rateLimitLoginIP     = "login_ip"
	rateLimitBookingUser = "booking_user"
)

// RateLimitService throttles login and booking attempts
type RateLimitService struct {
	db  database.DB
	cfg config.RateLimitConfig
}

// NewRateLimitService creates a new rate limit service
func NewRateLimitService(db database.DB, cfg config.RateLimitConfig) *RateLimitService {
	return &RateLimitService{
		db:  db,
		cfg: cfg,
	}
}

// RateLimitError represents a rate limit exceeded error
type RateLimitError struct {
	Message    string
	RetryAfter time.Time
	Type       string // "email", "ip" or "user"
}

func (e *RateLimitError) Error() string {
	return e.Message
}

func (s *RateLimitService) loginWindow() time.Duration {
	return time.Duration(s.cfg.LoginWindowMinutes) * time.Minute
}

func (s *RateLimitService) bookingWindow() time.Duration {
	return time.Duration(s.cfg.BookingWindowMinutes) * time.Minute
}

// CheckLoginRateLimit checks if an email or IP has exceeded the failed login limit
func (s *RateLimitService) CheckLoginRateLimit(email, ip string) error {
	window := s.loginWindow()

	// Check email-based rate limit
	if email != "" {
		emailCount, lastAttempt, err := s.getRequestCount(email, rateLimitLoginEmail, window)
		if err != nil {
			return fmt.Errorf("failed to check email rate limit: %w", err)
		}

		if emailCount >= s.cfg.LoginAttempts {
			retryAfter := lastAttempt.Add(window)
			return &RateLimitError{
				Message:    fmt.Sprintf("Too many failed login attempts for this account. Please try again after %s", retryAfter.Format("15:04:05")),
				RetryAfter: retryAfter,
				Type:       "email",
			}
		}
	}

	// Check IP-based rate limit
	if ip != "" {
		ipCount, lastAttempt, err := s.getRequestCount(ip, rateLimitLoginIP, window)
		if err != nil {
			return fmt.Errorf("failed to check IP rate limit: %w", err)
		}

		if ipCount >= s.cfg.LoginAttempts {
			retryAfter := lastAttempt.Add(window)
			return &RateLimitError{
				Message:    fmt.Sprintf("Too many failed login attempts from this IP address. Please try again after %s", retryAfter.Format("15:04:05")),
				RetryAfter: retryAfter,
				Type:       "ip",
			}
		}
	}

	return nil
}

// RecordFailedLogin records a failed login attempt for rate limiting
func (s *RateLimitService) RecordFailedLogin(email, ip string) error {
	if email != "" {
		if err := s.recordRequest(email, rateLimitLoginEmail); err != nil {
			return fmt.Errorf("failed to record email attempt: %w", err)
		}
	}

	if ip != "" {
		if err := s.recordRequest(ip, rateLimitLoginIP); err != nil {
			return fmt.Errorf("failed to record IP attempt: %w", err)
		}
	}

	return nil
}

// ClearLoginFailures removes failed login records for an email after a
// successful login, so old failures do not lock the account later
func (s *RateLimitService) ClearLoginFailures(email string) error {
	query := `
		DELETE FROM rate_limits
		WHERE identifier = $1 AND identifier_type = $2
	`

	_, err := s.db.Exec(query, email, rateLimitLoginEmail)
	if err != nil {
		return fmt.Errorf("failed to clear login failures: %w", err)
	}

	return nil
}

// CheckBookingRateLimit checks if a user has exceeded the booking attempt limit
func (s *RateLimitService) CheckBookingRateLimit(userID string) error {
	count, lastAttempt, err := s.getRequestCount(userID, rateLimitBookingUser, s.bookingWindow())
	if err != nil {
		return fmt.Errorf("failed to check booking rate limit: %w", err)
	}

	if count >= s.cfg.BookingAttempts {
		retryAfter := lastAttempt.Add(s.bookingWindow())
		return &RateLimitError{
			Message:    fmt.Sprintf("Too many booking attempts. Please try again after %s", retryAfter.Format("15:04:05")),
			RetryAfter: retryAfter,
			Type:       "user",
		}
	}

	return nil
}

// RecordBookingAttempt records a booking attempt for rate limiting
func (s *RateLimitService) RecordBookingAttempt(userID string) error {
	if err := s.recordRequest(userID, rateLimitBookingUser); err != nil {
		return fmt.Errorf("failed to record booking attempt: %w", err)
	}

	return nil
}

// getRequestCount gets the number of requests within the time window
func (s *RateLimitService) getRequestCount(identifier, identifierType string, window time.Duration) (int, time.Time, error) {
	windowStart := time.Now().Add(-window)

	query := `
		SELECT COUNT(*), COALESCE(MAX(created_at), NOW())
		FROM rate_limits
		WHERE identifier = $1
		  AND identifier_type = $2
		  AND created_at > $3
	`

	var count int
	var lastRequest time.Time

	err := s.db.QueryRow(query, identifier, identifierType, windowStart).Scan(&count, &lastRequest)
	if err != nil && err != sql.ErrNoRows {
		return 0, time.Time{}, err
	}

	return count, lastRequest, nil
}

// recordRequest inserts a rate limit record
func (s *RateLimitService) recordRequest(identifier, identifierType string) error {
	query := `
		INSERT INTO rate_limits (identifier, identifier_type, created_at)
		VALUES ($1, $2, NOW())
	`

	_, err := s.db.Exec(query, identifier, identifierType)
	return err
}

// CleanupExpiredRateLimits removes rate limit records older than the longest window
func (s *RateLimitService) CleanupExpiredRateLimits() (int64, error) {
	maxWindow := s.loginWindow()
	if s.bookingWindow() > maxWindow {
		maxWindow = s.bookingWindow()
	}

	cutoffTime := time.Now().Add(-maxWindow)

	query := `
		DELETE FROM rate_limits
		WHERE created_at < $1
	`

	result, err := s.db.Exec(query, cutoffTime)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup rate limits: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}

// IsRateLimited checks if an identifier is currently rate limited
func (s *RateLimitService) IsRateLimited(identifier, identifierType string) (bool, time.Time, error) {
	window := s.loginWindow()
	maxRequests := s.cfg.LoginAttempts
	if identifierType == rateLimitBookingUser {
		window = s.bookingWindow()
		maxRequests = s.cfg.BookingAttempts
	}

	count, lastRequest, err := s.getRequestCount(identifier, identifierType, window)
	if err != nil {
		return false, time.Time{}, err
	}

	if count >= maxRequests {
		retryAfter := lastRequest.Add(window)
		return true, retryAfter, nil
	}

	return false, time.Time{}, nil
}
