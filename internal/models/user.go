package models

import (
	"database/sql"
	"encoding/json"
	"strings"
	"time"
)

// NullString wraps sql.NullString to provide proper JSON marshaling
type NullString struct {
	sql.NullString
}

// MarshalJSON implements json.Marshaler
func (ns NullString) MarshalJSON() ([]byte, error) {
	if ns.Valid {
		return json.Marshal(ns.String)
	}
	return json.Marshal(nil)
}

// UnmarshalJSON implements json.Unmarshaler
func (ns *NullString) UnmarshalJSON(data []byte) error {
	var s *string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s != nil {
		ns.Valid = true
		ns.String = *s
	} else {
		ns.Valid = false
	}
	return nil
}

// NullTime wraps sql.NullTime to provide proper JSON marshaling
type NullTime struct {
	sql.NullTime
}

// MarshalJSON implements json.Marshaler
func (nt NullTime) MarshalJSON() ([]byte, error) {
	if nt.Valid {
		return json.Marshal(nt.Time)
	}
	return json.Marshal(nil)
}

// UnmarshalJSON implements json.Unmarshaler
func (nt *NullTime) UnmarshalJSON(data []byte) error {
	var t *time.Time
	if err := json.Unmarshal(data, &t); err != nil {
		return err
	}
	if t != nil {
		nt.Valid = true
		nt.Time = *t
	} else {
		nt.Valid = false
	}
	return nil
}

// UserRole represents the authorization role of a user
type UserRole string

const (
	UserRoleCustomer UserRole = "customer"
	UserRoleAdmin    UserRole = "admin"
)

// ParseUserRole rejects unknown roles at the boundary.
func ParseUserRole(s string) (UserRole, error) {
	switch UserRole(strings.ToLower(s)) {
	case UserRoleCustomer:
		return UserRoleCustomer, nil
	case UserRoleAdmin:
		return UserRoleAdmin, nil
	default:
		return "", NewValidationError("invalid user role: %q", s)
	}
}

// User represents an account in the system
type User struct {
	ID           string     `json:"id" db:"id"`
	Email        string     `json:"email" db:"email"`
	PasswordHash string     `json:"-" db:"password_hash"`
	FullName     string     `json:"full_name" db:"full_name"`
	Phone        NullString `json:"phone,omitempty" db:"phone"`
	Role         UserRole   `json:"role" db:"role"`
	IsActive     bool       `json:"is_active" db:"is_active"`
	LastLoginAt  NullTime   `json:"last_login_at,omitempty" db:"last_login_at"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}

// IsAdmin reports whether the user holds the admin role
func (u *User) IsAdmin() bool {
	return u.Role == UserRoleAdmin
}

// RefreshToken represents a persisted refresh token session
type RefreshToken struct {
	ID          string     `json:"id" db:"id"`
	UserID      string     `json:"user_id" db:"user_id"`
	TokenHash   string     `json:"-" db:"token_hash"`
	DeviceName  NullString `json:"device_name,omitempty" db:"device_name"`
	IPAddress   NullString `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent   NullString `json:"user_agent,omitempty" db:"user_agent"`
	ExpiresAt   time.Time  `json:"expires_at" db:"expires_at"`
	LastUsedAt  NullTime   `json:"last_used_at,omitempty" db:"last_used_at"`
	Revoked     bool       `json:"revoked" db:"revoked"`
	RevokedAt   NullTime   `json:"revoked_at,omitempty" db:"revoked_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}

// IsExpired checks whether the refresh token has passed its expiry
func (t *RefreshToken) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}

// IsUsable reports whether the token may still mint access tokens
func (t *RefreshToken) IsUsable() bool {
	return !t.Revoked && !t.IsExpired()
}

// RegisterRequest represents the request to create an account
type RegisterRequest struct {
	Email    string  `json:"email" binding:"required"`
	Password string  `json:"password" binding:"required"`
	FullName string  `json:"full_name" binding:"required"`
	Phone    *string `json:"phone,omitempty"`
}

// Validate validates the registration request
func (r *RegisterRequest) Validate() error {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.FullName = strings.TrimSpace(r.FullName)
	if len(r.FullName) < 2 || len(r.FullName) > 200 {
		return NewValidationError("full name must be between 2 and 200 characters")
	}
	return ValidatePassword(r.Password)
}

// ValidatePassword enforces the password strength rules shared by
// registration, password change and admin resets.
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return NewValidationError("password must be at least 8 characters long")
	}
	var hasUpper, hasLower, hasDigit bool
	for _, c := range password {
		switch {
		case c >= 'A' && c <= 'Z':
			hasUpper = true
		case c >= 'a' && c <= 'z':
			hasLower = true
		case c >= '0' && c <= '9':
			hasDigit = true
		}
	}
	if !hasUpper || !hasLower || !hasDigit {
		return NewValidationError("password must contain an uppercase letter, a lowercase letter, and a digit")
	}
	return nil
}

// LoginRequest represents the request to authenticate
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RefreshRequest represents the request to rotate an access token
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// LogoutRequest represents the request to end one or all sessions
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
	AllDevices   bool   `json:"all_devices,omitempty"`
}

// UpdateProfileRequest represents a partial profile update.
// Email is not updatable: it is the login identity and is embedded in
// issued tokens.
type UpdateProfileRequest struct {
	FullName *string `json:"full_name,omitempty"`
	Phone    *string `json:"phone,omitempty"`
}

// ChangePasswordRequest represents a password change for the current user
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
}

// TokenPair is the issued access/refresh token set
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
}
