package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Issuer is stamped into every token and enforced during validation.
const Issuer = "busline-ticketing"

// TokenType distinguishes access tokens from refresh tokens so one can never
// be replayed as the other.
type TokenType string

const (
	AccessToken  TokenType = "access"
	RefreshToken TokenType = "refresh"
)

var (
	// ErrInvalidToken is returned for tokens that fail signature, issuer,
	// expiry, or structural checks
	ErrInvalidToken = errors.New("invalid token")

	// ErrWrongTokenType is returned when a structurally valid token carries
	// the wrong token_type claim
	ErrWrongTokenType = errors.New("wrong token type")
)

// Claims is the payload carried by both token kinds. Refresh tokens carry no
// Role; authorization always comes from a fresh access token.
type Claims struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Role      string    `json:"role,omitempty"`
	TokenType TokenType `json:"token_type"`
	jwt.RegisteredClaims
}

// Service signs and validates the two token kinds with separate secrets.
type Service struct {
	accessSecret       []byte
	refreshSecret      []byte
	accessTokenExpiry  time.Duration
	refreshTokenExpiry time.Duration
}

// NewService creates a new JWT service
func NewService(accessSecret, refreshSecret string, accessExpiry, refreshExpiry time.Duration) *Service {
	return &Service{
		accessSecret:       []byte(accessSecret),
		refreshSecret:      []byte(refreshSecret),
		accessTokenExpiry:  accessExpiry,
		refreshTokenExpiry: refreshExpiry,
	}
}

// GenerateAccessToken signs a short-lived token carrying the user's identity
// and role.
func (s *Service) GenerateAccessToken(userID, email, role string) (string, error) {
	return s.sign(Claims{
		UserID:    userID,
		Email:     email,
		Role:      role,
		TokenType: AccessToken,
	}, s.accessSecret, s.accessTokenExpiry)
}

// GenerateRefreshToken signs a long-lived token used only to mint new access
// tokens.
func (s *Service) GenerateRefreshToken(userID, email string) (string, error) {
	return s.sign(Claims{
		UserID:    userID,
		Email:     email,
		TokenType: RefreshToken,
	}, s.refreshSecret, s.refreshTokenExpiry)
}

func (s *Service) sign(claims Claims, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		// The jti makes every token unique even when two are minted for the
		// same user within the same second. Refresh tokens are stored by
		// hash, so identical tokens would collide in the session table.
		ID:        uuid.NewString(),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		Issuer:    Issuer,
		Subject:   claims.UserID,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", claims.TokenType, err)
	}
	return signed, nil
}

// ValidateAccessToken validates and parses an access token
func (s *Service) ValidateAccessToken(tokenString string) (*Claims, error) {
	return s.parse(tokenString, s.accessSecret, AccessToken)
}

// ValidateRefreshToken validates and parses a refresh token
func (s *Service) ValidateRefreshToken(tokenString string) (*Claims, error) {
	return s.parse(tokenString, s.refreshSecret, RefreshToken)
}

func (s *Service) parse(tokenString string, secret []byte, want TokenType) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&Claims{},
		func(*jwt.Token) (interface{}, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		// Keep the library's error in the chain so callers can still pick
		// out jwt.ErrTokenExpired
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != want {
		return nil, fmt.Errorf("%w: expected %s, got %s", ErrWrongTokenType, want, claims.TokenType)
	}
	return claims, nil
}

// AccessTokenExpiry returns the configured access token lifetime.
func (s *Service) AccessTokenExpiry() time.Duration {
	return s.accessTokenExpiry
}

// RefreshTokenExpiry returns the configured refresh token lifetime.
func (s *Service) RefreshTokenExpiry() time.Duration {
	return s.refreshTokenExpiry
}
