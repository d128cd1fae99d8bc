package services

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/busline/ticketing-backend/internal/database"
	"github.com/busline/ticketing-backend/internal/utils"
)

// AuditService writes security events to the audit_logs table. Rows are
// observational only, so callers log write failures instead of aborting the
// operation that triggered them.
type AuditService struct {
	db database.DB
}

// NewAuditService creates a new audit service
func NewAuditService(db database.DB) *AuditService {
	return &AuditService{db: db}
}

// record writes one audit row. userID and entityID may be nil for events
// that happen before authentication. The parsed device info joins the
// details under device_info.
func (s *AuditService) record(userID *string, action, entityType string, entityID *string, ipAddress, userAgent string, details map[string]interface{}) error {
	if details == nil {
		details = make(map[string]interface{})
	}
	details["device_info"] = utils.ParseUserAgent(userAgent)

	payload, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("failed to marshal audit details: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO audit_logs (user_id, action, entity_type, entity_id, ip_address, user_agent, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())`,
		userID, action, entityType, entityID, ipAddress, userAgent, payload,
	)
	if err != nil {
		return fmt.Errorf("failed to log audit event: %w", err)
	}
	return nil
}

// LogRegistration logs a successful account registration
func (s *AuditService) LogRegistration(userID, email, ipAddress, userAgent string) error {
	return s.record(&userID, "register", "user", &userID, ipAddress, userAgent,
		map[string]interface{}{"email": email})
}

// LogLogin logs a successful login
func (s *AuditService) LogLogin(userID, email, ipAddress, userAgent string) error {
	return s.record(&userID, "login", "user", &userID, ipAddress, userAgent,
		map[string]interface{}{"email": email})
}

// LogFailedLogin logs a failed login attempt. userID is nil when the email
// does not belong to any account.
func (s *AuditService) LogFailedLogin(userID *string, email, ipAddress, userAgent, reason string) error {
	return s.record(userID, "login_failed", "user", userID, ipAddress, userAgent,
		map[string]interface{}{"email": email, "reason": reason})
}

// LogLogout logs a logout, logoutAll marks the everywhere variant
func (s *AuditService) LogLogout(userID, ipAddress, userAgent string, logoutAll bool) error {
	return s.record(&userID, "logout", "user", &userID, ipAddress, userAgent,
		map[string]interface{}{"logout_all": logoutAll})
}

// LogTokenRefresh logs a refresh token exchange, successful or not
func (s *AuditService) LogTokenRefresh(userID, ipAddress, userAgent string, success bool) error {
	action := "token_refresh_success"
	if !success {
		action = "token_refresh_failed"
	}
	return s.record(&userID, action, "token", nil, ipAddress, userAgent,
		map[string]interface{}{"success": success})
}

// LogRateLimitViolation logs a tripped rate limit. limitType says which
// counter tripped: email, ip or user.
func (s *AuditService) LogRateLimitViolation(identifier, ipAddress, userAgent, limitType string, retryAfter time.Time) error {
	return s.record(nil, "rate_limit_violation", "rate_limit", nil, ipAddress, userAgent,
		map[string]interface{}{
			"identifier":  identifier,
			"limit_type":  limitType,
			"retry_after": retryAfter,
		})
}

// LogSuspiciousActivity logs security events that deserve a second look,
// merging any caller-provided context into the row.
func (s *AuditService) LogSuspiciousActivity(userID *string, activity, ipAddress, userAgent string, details map[string]interface{}) error {
	if details == nil {
		details = make(map[string]interface{})
	}
	details["activity"] = activity
	return s.record(userID, "suspicious_activity", "security", nil, ipAddress, userAgent, details)
}

// GetRecentEvents retrieves the latest audit events for a user, newest first
func (s *AuditService) GetRecentEvents(userID string, limit int) ([]map[string]interface{}, error) {
	rows, err := s.db.Query(`
		SELECT action, entity_type, ip_address, user_agent, details, created_at
		FROM audit_logs
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent events: %w", err)
	}
	defer rows.Close()

	events := []map[string]interface{}{}
	for rows.Next() {
		var action, entityType, ipAddress, userAgent string
		var detailsJSON []byte
		var createdAt time.Time

		if err := rows.Scan(&action, &entityType, &ipAddress, &userAgent, &detailsJSON, &createdAt); err != nil {
			continue
		}

		var details map[string]interface{}
		if len(detailsJSON) > 0 {
			_ = json.Unmarshal(detailsJSON, &details)
		}

		events = append(events, map[string]interface{}{
			"action":      action,
			"entity_type": entityType,
			"ip_address":  ipAddress,
			"user_agent":  userAgent,
			"details":     details,
			"created_at":  createdAt,
		})
	}

	return events, nil
}

// CleanupOldAuditLogs deletes audit rows older than the retention window
func (s *AuditService) CleanupOldAuditLogs(olderThan time.Duration) (int64, error) {
	result, err := s.db.Exec(`DELETE FROM audit_logs WHERE created_at < $1`, time.Now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old audit logs: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	return rowsAffected, nil
}
