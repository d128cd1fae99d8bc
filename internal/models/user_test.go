package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterRequestValidate(t *testing.T) {
	valid := func() *RegisterRequest {
		return &RegisterRequest{
			Email:    "  John.Silva@Example.COM ",
			Password: "Str0ngPass",
			FullName: " John Silva ",
		}
	}

	t.Run("Normalizes Email And Name", func(t *testing.T) {
		req := valid()
		require.NoError(t, req.Validate())
		assert.Equal(t, "john.silva@example.com", req.Email)
		assert.Equal(t, "John Silva", req.FullName)
	})

	t.Run("Name Too Short", func(t *testing.T) {
		req := valid()
		req.FullName = " J "
		assert.Error(t, req.Validate())
	})

	t.Run("Password Too Short", func(t *testing.T) {
		req := valid()
		req.Password = "Sh0rt"
		assert.Error(t, req.Validate())
	})

	t.Run("Password Missing Character Classes", func(t *testing.T) {
		for _, password := range []string{"alllowercase1", "ALLUPPERCASE1", "NoDigitsHere"} {
			req := valid()
			req.Password = password
			assert.Error(t, req.Validate(), "password %q should be rejected", password)
		}
	})
}

func TestParseUserRole(t *testing.T) {
	role, err := ParseUserRole("ADMIN")
	require.NoError(t, err)
	assert.Equal(t, UserRoleAdmin, role)

	_, err = ParseUserRole("superuser")
	assert.Error(t, err)
}

func TestUserIsAdmin(t *testing.T) {
	assert.True(t, (&User{Role: UserRoleAdmin}).IsAdmin())
	assert.False(t, (&User{Role: UserRoleCustomer}).IsAdmin())
}

func TestRefreshTokenUsability(t *testing.T) {
	t.Run("Live Token", func(t *testing.T) {
		token := &RefreshToken{ExpiresAt: time.Now().Add(time.Hour)}
		assert.False(t, token.IsExpired())
		assert.True(t, token.IsUsable())
	})

	t.Run("Expired Token", func(t *testing.T) {
		token := &RefreshToken{ExpiresAt: time.Now().Add(-time.Minute)}
		assert.True(t, token.IsExpired())
		assert.False(t, token.IsUsable())
	})

	t.Run("Revoked Token", func(t *testing.T) {
		token := &RefreshToken{ExpiresAt: time.Now().Add(time.Hour), Revoked: true}
		assert.False(t, token.IsExpired())
		assert.False(t, token.IsUsable())
	})
}

func TestNullStringJSON(t *testing.T) {
	t.Run("Marshal", func(t *testing.T) {
		ns := NullString{}
		ns.Valid = true
		ns.String = "0771234567"

		data, err := json.Marshal(ns)
		require.NoError(t, err)
		assert.JSONEq(t, `"0771234567"`, string(data))

		data, err = json.Marshal(NullString{})
		require.NoError(t, err)
		assert.Equal(t, "null", string(data))
	})

	t.Run("Unmarshal", func(t *testing.T) {
		var ns NullString
		require.NoError(t, json.Unmarshal([]byte(`"hello"`), &ns))
		assert.True(t, ns.Valid)
		assert.Equal(t, "hello", ns.String)

		require.NoError(t, json.Unmarshal([]byte(`null`), &ns))
		assert.False(t, ns.Valid)
	})
}

func TestNullTimeJSON(t *testing.T) {
	var nt NullTime
	require.NoError(t, json.Unmarshal([]byte(`"2026-08-01T10:00:00Z"`), &nt))
	assert.True(t, nt.Valid)
	assert.Equal(t, 2026, nt.Time.Year())

	data, err := json.Marshal(NullTime{})
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))
}
