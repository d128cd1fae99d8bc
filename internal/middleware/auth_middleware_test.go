package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/busline/ticketing-backend/pkg/jwt"
)

func setupTestJWTService() *jwt.Service {
	return jwt.NewService(
		"test-access-secret-key-123456789",
		"test-refresh-secret-key-123456789",
		time.Hour,
		24*time.Hour,
	)
}

// protectedRouter wires a single guarded route that echoes the user context
// it was given.
func protectedRouter(jwtService *jwt.Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/protected", AuthMiddleware(jwtService), func(c *gin.Context) {
		userCtx := MustGetUserContext(c)
		c.JSON(http.StatusOK, gin.H{
			"user_id": userCtx.UserID,
			"email":   userCtx.Email,
			"role":    userCtx.Role,
		})
	})
	return router
}

// serve sends a GET with the given Authorization header and returns the
// recorded response.
func serve(t *testing.T, router *gin.Engine, path, authHeader string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware_Success(t *testing.T) {
	jwtService := setupTestJWTService()
	router := protectedRouter(jwtService)

	token, err := jwtService.GenerateAccessToken("user-1", "jane@example.com", "customer")
	require.NoError(t, err)

	w := serve(t, router, "/protected", "Bearer "+token)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "user-1")
	assert.Contains(t, w.Body.String(), "jane@example.com")
	assert.Contains(t, w.Body.String(), "customer")
}

func TestAuthMiddleware_MissingAuthHeader(t *testing.T) {
	router := protectedRouter(setupTestJWTService())

	w := serve(t, router, "/protected", "")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Authorization header is required")
	assert.Contains(t, w.Body.String(), "MISSING_AUTH_HEADER")
}

func TestAuthMiddleware_InvalidAuthFormat(t *testing.T) {
	router := protectedRouter(setupTestJWTService())

	headers := map[string]string{
		"Missing Bearer": "some-token",
		"Wrong prefix":   "Basic some-token",
		"Empty Bearer":   "Bearer ",
		"No token":       "Bearer",
	}
	for name, header := range headers {
		t.Run(name, func(t *testing.T) {
			w := serve(t, router, "/protected", header)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Contains(t, w.Body.String(), "INVALID_AUTH_FORMAT")
		})
	}
}

func TestAuthMiddleware_InvalidToken(t *testing.T) {
	router := protectedRouter(setupTestJWTService())

	for _, token := range []string{"invalid.token.here", "randomstringnotavalidtoken"} {
		w := serve(t, router, "/protected", "Bearer "+token)
		assert.Equal(t, http.StatusUnauthorized, w.Code, token)
		assert.Contains(t, w.Body.String(), "INVALID_TOKEN", token)
	}
}

func TestAuthMiddleware_ExpiredToken(t *testing.T) {
	// Mint with a service whose access tokens are already expired
	expired := jwt.NewService(
		"test-access-secret-key-123456789",
		"test-refresh-secret-key-123456789",
		-time.Minute,
		24*time.Hour,
	)
	token, err := expired.GenerateAccessToken("user-1", "jane@example.com", "customer")
	require.NoError(t, err)

	router := protectedRouter(setupTestJWTService())
	w := serve(t, router, "/protected", "Bearer "+token)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "TOKEN_EXPIRED")
}

func TestAuthMiddleware_WrongSecret(t *testing.T) {
	forged := jwt.NewService("wrong-secret-key", "wrong-refresh-secret", time.Hour, 24*time.Hour)
	token, err := forged.GenerateAccessToken("user-1", "jane@example.com", "customer")
	require.NoError(t, err)

	router := protectedRouter(setupTestJWTService())
	w := serve(t, router, "/protected", "Bearer "+token)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_TOKEN")
}

func TestAuthMiddleware_RefreshTokenRejected(t *testing.T) {
	jwtService := setupTestJWTService()
	router := protectedRouter(jwtService)

	// A refresh token is signed with a different secret and carries a
	// different token type, so it must never pass access-token auth.
	token, err := jwtService.GenerateRefreshToken("user-1", "jane@example.com")
	require.NoError(t, err)

	w := serve(t, router, "/protected", "Bearer "+token)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_TOKEN")
}

func TestOptionalAuthMiddleware(t *testing.T) {
	jwtService := setupTestJWTService()

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/open", OptionalAuthMiddleware(jwtService), func(c *gin.Context) {
		userID := ""
		if userCtx, ok := GetUserContext(c); ok {
			userID = userCtx.UserID
		}
		c.JSON(http.StatusOK, gin.H{"user_id": userID})
	})

	t.Run("No Header Passes Through Anonymous", func(t *testing.T) {
		w := serve(t, router, "/open", "")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"user_id":""`)
	})

	t.Run("Valid Token Sets Context", func(t *testing.T) {
		token, err := jwtService.GenerateAccessToken("user-1", "jane@example.com", "customer")
		require.NoError(t, err)

		w := serve(t, router, "/open", "Bearer "+token)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "user-1")
	})

	t.Run("Invalid Token Still Rejected", func(t *testing.T) {
		w := serve(t, router, "/open", "Bearer not-a-token")

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "INVALID_TOKEN")
	})
}

func TestGetUserContext(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("Context exists", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		expectedCtx := UserContext{
			UserID: "user-1",
			Email:  "jane@example.com",
			Role:   "customer",
		}
		c.Set(UserContextKey, expectedCtx)

		userCtx, exists := GetUserContext(c)
		assert.True(t, exists)
		assert.Equal(t, expectedCtx, userCtx)
	})

	t.Run("Context not found", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		userCtx, exists := GetUserContext(c)
		assert.False(t, exists)
		assert.Equal(t, UserContext{}, userCtx)
	})

	t.Run("Context wrong type", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Set(UserContextKey, "wrong type")
		userCtx, exists := GetUserContext(c)
		assert.False(t, exists)
		assert.Equal(t, UserContext{}, userCtx)
	})
}

func TestMustGetUserContext(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("Context exists - no panic", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Set(UserContextKey, UserContext{UserID: "user-1", Email: "jane@example.com"})

		assert.NotPanics(t, func() {
			userCtx := MustGetUserContext(c)
			assert.Equal(t, "user-1", userCtx.UserID)
		})
	})

	t.Run("Context not found - panic", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		assert.Panics(t, func() {
			MustGetUserContext(c)
		})
	})
}

func TestRequireRole(t *testing.T) {
	jwtService := setupTestJWTService()

	newRouter := func(roles ...string) *gin.Engine {
		gin.SetMode(gin.TestMode)
		router := gin.New()
		router.GET("/guarded", AuthMiddleware(jwtService), RequireRole(roles...), func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"message": "made it through"})
		})
		return router
	}

	adminToken, err := jwtService.GenerateAccessToken("admin-1", "admin@example.com", "admin")
	require.NoError(t, err)
	customerToken, err := jwtService.GenerateAccessToken("user-1", "jane@example.com", "customer")
	require.NoError(t, err)

	t.Run("User has required role", func(t *testing.T) {
		w := serve(t, newRouter("admin"), "/guarded", "Bearer "+adminToken)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "made it through")
	})

	t.Run("User lacks required role", func(t *testing.T) {
		w := serve(t, newRouter("admin"), "/guarded", "Bearer "+customerToken)
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Contains(t, w.Body.String(), "INSUFFICIENT_PERMISSIONS")
	})

	t.Run("Any listed role passes", func(t *testing.T) {
		w := serve(t, newRouter("admin", "customer"), "/guarded", "Bearer "+customerToken)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("No user context", func(t *testing.T) {
		gin.SetMode(gin.TestMode)
		router := gin.New()
		// RequireRole without AuthMiddleware in front of it
		router.GET("/no-auth", RequireRole("admin"), func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"message": "should not reach here"})
		})

		w := serve(t, router, "/no-auth", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "MISSING_USER_CONTEXT")
	})
}

func TestAuthMiddleware_RouteProtection(t *testing.T) {
	jwtService := setupTestJWTService()
	gin.SetMode(gin.TestMode)
	router := gin.New()

	router.GET("/profile", AuthMiddleware(jwtService), func(c *gin.Context) {
		userCtx := MustGetUserContext(c)
		c.JSON(http.StatusOK, gin.H{"email": userCtx.Email})
	})
	router.GET("/my-bookings",
		AuthMiddleware(jwtService),
		RequireRole("customer", "admin"),
		func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"message": "bookings list"})
		})
	router.GET("/admin-panel",
		AuthMiddleware(jwtService),
		RequireRole("admin"),
		func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"message": "admin panel"})
		})

	token, err := jwtService.GenerateAccessToken("user-1", "jane@example.com", "customer")
	require.NoError(t, err)

	cases := []struct {
		name       string
		path       string
		wantStatus int
		wantBody   string
	}{
		{"customer reads own profile", "/profile", http.StatusOK, "jane@example.com"},
		{"customer lists bookings", "/my-bookings", http.StatusOK, "bookings list"},
		{"customer blocked from admin panel", "/admin-panel", http.StatusForbidden, "INSUFFICIENT_PERMISSIONS"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := serve(t, router, tc.path, "Bearer "+token)
			assert.Equal(t, tc.wantStatus, w.Code)
			assert.Contains(t, w.Body.String(), tc.wantBody)
		})
	}
}
