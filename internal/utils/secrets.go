package utils

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// GenerateSecret returns n random bytes encoded as unpadded URL-safe base64,
// suitable for signing keys and other opaque credentials.
func GenerateSecret(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// GenerateJWTSecrets returns a pair of independent 256-bit signing secrets,
// one for access tokens and one for refresh tokens.
func GenerateJWTSecrets() (accessSecret, refreshSecret string, err error) {
	if accessSecret, err = GenerateSecret(32); err != nil {
		return "", "", fmt.Errorf("failed to generate access secret: %w", err)
	}
	if refreshSecret, err = GenerateSecret(32); err != nil {
		return "", "", fmt.Errorf("failed to generate refresh secret: %w", err)
	}
	return accessSecret, refreshSecret, nil
}
