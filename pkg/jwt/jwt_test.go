package jwt

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAccessSecret  = "test-access-secret-key-for-testing-purposes"
	testRefreshSecret = "test-refresh-secret-key-for-testing-purposes"
)

func newTestService() *Service {
	return NewService(testAccessSecret, testRefreshSecret, time.Hour, 24*time.Hour)
}

func TestAccessTokenRoundTrip(t *testing.T) {
	service := newTestService()
	userID := uuid.New().String()

	token, err := service.GenerateAccessToken(userID, "rider@example.com", "customer")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := service.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, "rider@example.com", claims.Email)
	assert.Equal(t, "customer", claims.Role)
	assert.Equal(t, AccessToken, claims.TokenType)
}

func TestRefreshTokenRoundTrip(t *testing.T) {
	service := newTestService()
	userID := uuid.New().String()

	token, err := service.GenerateRefreshToken(userID, "rider@example.com")
	require.NoError(t, err)

	claims, err := service.ValidateRefreshToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, RefreshToken, claims.TokenType)
	assert.Empty(t, claims.Role)
}

func TestTokenTypeMismatch(t *testing.T) {
	service := newTestService()
	userID := uuid.New().String()

	accessToken, err := service.GenerateAccessToken(userID, "rider@example.com", "customer")
	require.NoError(t, err)
	refreshToken, err := service.GenerateRefreshToken(userID, "rider@example.com")
	require.NoError(t, err)

	// An access token must not pass as a refresh token, or the other way
	// around, even though both are structurally valid
	_, err = service.ValidateRefreshToken(accessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = service.ValidateAccessToken(refreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// With a shared secret the signature holds, so the type check itself has
	// to reject the token
	shared := NewService(testAccessSecret, testAccessSecret, time.Hour, 24*time.Hour)
	accessToken, err = shared.GenerateAccessToken(userID, "rider@example.com", "customer")
	require.NoError(t, err)

	_, err = shared.ValidateRefreshToken(accessToken)
	assert.ErrorIs(t, err, ErrWrongTokenType)
}

func TestRejectsWrongSecret(t *testing.T) {
	service := newTestService()
	other := NewService("some-other-secret", "another-secret", time.Hour, 24*time.Hour)

	token, err := service.GenerateAccessToken(uuid.New().String(), "rider@example.com", "customer")
	require.NoError(t, err)

	_, err = other.ValidateAccessToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRejectsGarbage(t *testing.T) {
	service := newTestService()

	for _, bad := range []string{"", "not-a-token", "a.b.c", "eyJhbGciOiJIUzI1NiJ9.e30."} {
		_, err := service.ValidateAccessToken(bad)
		assert.Error(t, err, bad)
	}
}

func TestRejectsTampering(t *testing.T) {
	service := newTestService()

	token, err := service.GenerateAccessToken(uuid.New().String(), "rider@example.com", "customer")
	require.NoError(t, err)

	// Flip a character in the payload segment
	tampered := []byte(token)
	mid := len(tampered) / 2
	if tampered[mid] == 'A' {
		tampered[mid] = 'B'
	} else {
		tampered[mid] = 'A'
	}

	_, err = service.ValidateAccessToken(string(tampered))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRejectsExpiredToken(t *testing.T) {
	expired := NewService(testAccessSecret, testRefreshSecret, -time.Minute, -time.Minute)

	token, err := expired.GenerateAccessToken(uuid.New().String(), "rider@example.com", "customer")
	require.NoError(t, err)

	service := newTestService()
	_, err = service.ValidateAccessToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRejectsForeignIssuer(t *testing.T) {
	service := newTestService()

	// Same secret, same claim shape, different issuer
	now := time.Now()
	foreign := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID:    uuid.New().String(),
		Email:     "rider@example.com",
		TokenType: AccessToken,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "some-other-service",
		},
	})
	signed, err := foreign.SignedString([]byte(testAccessSecret))
	require.NoError(t, err)

	_, err = service.ValidateAccessToken(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRejectsUnexpectedAlgorithm(t *testing.T) {
	service := newTestService()

	// HS512 signed with the right secret still fails the method allow-list
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{
		UserID:    uuid.New().String(),
		TokenType: AccessToken,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    Issuer,
		},
	})
	signed, err := token.SignedString([]byte(testAccessSecret))
	require.NoError(t, err)

	_, err = service.ValidateAccessToken(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRegisteredClaims(t *testing.T) {
	service := newTestService()
	userID := uuid.New().String()

	token, err := service.GenerateAccessToken(userID, "rider@example.com", "customer")
	require.NoError(t, err)

	claims, err := service.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, Issuer, claims.Issuer)
	assert.Equal(t, userID, claims.Subject)
	assert.NotEmpty(t, claims.ID)
	require.NotNil(t, claims.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, 5*time.Second)
}

func TestTokensAreUnique(t *testing.T) {
	// Refresh tokens are stored by hash, so two logins in the same second
	// must still produce distinct tokens.
	service := newTestService()
	userID := uuid.New().String()

	first, err := service.GenerateRefreshToken(userID, "rider@example.com")
	require.NoError(t, err)
	second, err := service.GenerateRefreshToken(userID, "rider@example.com")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestConfiguredExpiries(t *testing.T) {
	service := newTestService()

	assert.Equal(t, time.Hour, service.AccessTokenExpiry())
	assert.Equal(t, 24*time.Hour, service.RefreshTokenExpiry())
}
