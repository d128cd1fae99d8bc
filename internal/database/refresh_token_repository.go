package database

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/busline/ticketing-backend/internal/models"
)

// RefreshTokenRepository handles refresh token database operations. Only the
// SHA-256 hash of a token ever touches the table, so a leaked backup cannot
// be replayed as a session.
type RefreshTokenRepository struct {
	db DB
}

// NewRefreshTokenRepository creates a new RefreshTokenRepository
func NewRefreshTokenRepository(db DB) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

const refreshTokenColumns = `
	id, user_id, token_hash, device_name, ip_address, user_agent,
	created_at, expires_at, last_used_at, revoked, revoked_at`

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// StoreRefreshToken persists the hash of a freshly issued token along with
// the device metadata shown on the sessions screen.
func (r *RefreshTokenRepository) StoreRefreshToken(
	userID string,
	token string,
	deviceName, ipAddress, userAgent string,
	expiresAt time.Time,
) error {
	_, err := r.db.Exec(`
		INSERT INTO refresh_tokens (user_id, token_hash, device_name, ip_address, user_agent, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		userID, hashToken(token), nullable(deviceName), nullable(ipAddress), nullable(userAgent), expiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store refresh token: %w", err)
	}
	return nil
}

// GetRefreshToken looks a token up by its hash. Returns nil when the token
// was never issued.
func (r *RefreshTokenRepository) GetRefreshToken(token string) (*models.RefreshToken, error) {
	var rt models.RefreshToken
	query := `SELECT` + refreshTokenColumns + `
		FROM refresh_tokens WHERE token_hash = $1`

	err := r.db.Get(&rt, query, hashToken(token))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}
	return &rt, nil
}

// RevokeToken marks one token revoked. Errors when the token is unknown or
// already revoked, which the caller treats as a replay signal.
func (r *RefreshTokenRepository) RevokeToken(token string) error {
	result, err := r.db.Exec(`
		UPDATE refresh_tokens
		SET revoked = TRUE, revoked_at = $1
		WHERE token_hash = $2 AND revoked = FALSE`,
		time.Now(), hashToken(token),
	)
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("token not found or already revoked")
	}
	return nil
}

// RevokeAllUserTokens ends every session a user has open
func (r *RefreshTokenRepository) RevokeAllUserTokens(userID string) error {
	_, err := r.db.Exec(`
		UPDATE refresh_tokens
		SET revoked = TRUE, revoked_at = $1
		WHERE user_id = $2 AND revoked = FALSE`,
		time.Now(), userID,
	)
	if err != nil {
		return fmt.Errorf("failed to revoke all user tokens: %w", err)
	}
	return nil
}

// UpdateLastUsed stamps the token on every successful refresh
func (r *RefreshTokenRepository) UpdateLastUsed(token string) error {
	_, err := r.db.Exec(
		`UPDATE refresh_tokens SET last_used_at = $1 WHERE token_hash = $2`,
		time.Now(), hashToken(token),
	)
	if err != nil {
		return fmt.Errorf("failed to update last used timestamp: %w", err)
	}
	return nil
}

// CleanupExpiredTokens deletes tokens past their expiry and reports how many
// went away
func (r *RefreshTokenRepository) CleanupExpiredTokens() (int64, error) {
	result, err := r.db.Exec(`DELETE FROM refresh_tokens WHERE expires_at < $1`, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired tokens: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	return rowsAffected, nil
}

// CleanupRevokedTokens deletes tokens revoked longer ago than olderThan
func (r *RefreshTokenRepository) CleanupRevokedTokens(olderThan time.Duration) (int64, error) {
	result, err := r.db.Exec(
		`DELETE FROM refresh_tokens WHERE revoked = TRUE AND revoked_at < $1`,
		time.Now().Add(-olderThan),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup revoked tokens: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	return rowsAffected, nil
}

// GetUserTokens lists a user's live sessions, newest first
func (r *RefreshTokenRepository) GetUserTokens(userID string) ([]*models.RefreshToken, error) {
	var tokens []*models.RefreshToken
	query := `SELECT` + refreshTokenColumns + `
		FROM refresh_tokens
		WHERE user_id = $1 AND revoked = FALSE AND expires_at > $2
		ORDER BY created_at DESC`

	if err := r.db.Select(&tokens, query, userID, time.Now()); err != nil {
		return nil, fmt.Errorf("failed to get user tokens: %w", err)
	}
	return tokens, nil
}

// RevokeMostRecentToken revokes the newest active token for a user. Used when
// logout arrives without a refresh token in the body.
func (r *RefreshTokenRepository) RevokeMostRecentToken(userID string) error {
	now := time.Now()
	result, err := r.db.Exec(`
		UPDATE refresh_tokens
		SET revoked = TRUE, revoked_at = $1
		WHERE id = (
			SELECT id FROM refresh_tokens
			WHERE user_id = $2 AND revoked = FALSE AND expires_at > $3
			ORDER BY created_at DESC
			LIMIT 1
		)`,
		now, userID, now,
	)
	if err != nil {
		return fmt.Errorf("failed to revoke most recent token: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("no active tokens found to revoke")
	}
	return nil
}
