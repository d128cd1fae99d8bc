package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/busline/ticketing-backend/pkg/jwt"
)

// UserContextKey is the gin context key under which AuthMiddleware stores
// the authenticated caller's identity.
const UserContextKey = "user_context"

// UserContext carries the authenticated caller's identity through the
// request, populated from the validated access token claims.
type UserContext struct {
	UserID string
	Email  string
	Role   string
}

// AuthMiddleware validates the Bearer access token on incoming requests and
// stores the caller's identity in the gin context. Requests without a valid
// token are rejected with 401 before reaching the handler.
func AuthMiddleware(jwtService *jwt.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization header is required",
				"code":  "MISSING_AUTH_HEADER",
			})
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization header must be in the format: Bearer <token>",
				"code":  "INVALID_AUTH_FORMAT",
			})
			return
		}

		claims, err := jwtService.ValidateAccessToken(parts[1])
		if err != nil {
			if errors.Is(err, jwtlib.ErrTokenExpired) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": "Access token has expired",
					"code":  "TOKEN_EXPIRED",
				})
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid access token",
				"code":  "INVALID_TOKEN",
			})
			return
		}

		c.Set(UserContextKey, UserContext{
			UserID: claims.UserID,
			Email:  claims.Email,
			Role:   claims.Role,
		})

		c.Next()
	}
}

// OptionalAuthMiddleware populates the caller's identity when a Bearer token
// is present but lets anonymous requests through. A token that is present and
// invalid is still rejected: a caller who sends credentials expects them
// honored, and silently downgrading to anonymous would mask expiry.
func OptionalAuthMiddleware(jwtService *jwt.Service) gin.HandlerFunc {
	authenticate := AuthMiddleware(jwtService)
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			c.Next()
			return
		}
		authenticate(c)
	}
}

// GetUserContext returns the authenticated caller's identity, if present.
func GetUserContext(c *gin.Context) (UserContext, bool) {
	value, exists := c.Get(UserContextKey)
	if !exists {
		return UserContext{}, false
	}

	userCtx, ok := value.(UserContext)
	if !ok {
		return UserContext{}, false
	}

	return userCtx, true
}

// MustGetUserContext returns the authenticated caller's identity and panics
// if it is missing. Only call from handlers behind AuthMiddleware.
func MustGetUserContext(c *gin.Context) UserContext {
	userCtx, ok := GetUserContext(c)
	if !ok {
		panic("user context not found: handler is missing AuthMiddleware")
	}
	return userCtx
}

// RequireRole restricts a route to callers holding one of the given roles.
// Must run after AuthMiddleware.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userCtx, ok := GetUserContext(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authentication required",
				"code":  "MISSING_USER_CONTEXT",
			})
			return
		}

		for _, role := range roles {
			if userCtx.Role == role {
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error": "You do not have permission to access this resource",
			"code":  "INSUFFICIENT_PERMISSIONS",
		})
	}
}
