package middleware

import (
	"crypto/subtle"
	"errors"
	"strconv"
	"strings"

	"go_agentos/internal/auth"
	"go_agentos/internal/httpx"
	"go_agentos/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Context keys set by AuthRequired
const (
	KeyUID      = "uid"
	KeyUsername = "username"
	KeyRole     = "role"
	KeyTenantID = "tenant_id"
)

// AuthRequired is a middleware that validates the bearer token against tokens
func AuthRequired(tokens *auth.Tokens) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			httpx.FailErr(c, httpx.ErrUnauthorized("missing authorization header"))
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			httpx.FailErr(c, httpx.ErrUnauthorized("invalid authorization header format"))
			c.Abort()
			return
		}

		claims, err := tokens.Parse(parts[1])
		if err != nil {
			switch {
			case errors.Is(err, jwt.ErrTokenExpired):
				httpx.FailErr(c, httpx.ErrTokenExpired("token expired"))
			case errors.Is(err, auth.ErrNoTenant):
				httpx.FailErr(c, httpx.ErrInvalidToken("token carries no tenant"))
			default:
				httpx.FailErr(c, httpx.ErrInvalidToken("invalid token"))
			}
			c.Abort()
			return
		}

		c.Set(KeyUID, claims.UID)
		c.Set(KeyUsername, claims.Username)
		c.Set(KeyRole, claims.Role)
		c.Set(KeyTenantID, claims.TenantID)

		c.Next()
	}
}

// AdminRequired rejects callers whose role is not admin. It must run after AuthRequired.
func AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !IsAdmin(c) {
			httpx.FailErr(c, httpx.ErrForbidden("admin role required"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// APIKeyRequired guards machine-to-machine routes with a shared key in X-API-Key.
// An empty key disables the routes entirely.
func APIKeyRequired(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" {
			httpx.FailErr(c, httpx.ErrForbidden("internal API disabled"))
			c.Abort()
			return
		}
		given := c.GetHeader("X-API-Key")
		if given == "" {
			httpx.FailErr(c, httpx.ErrUnauthorized("missing X-API-Key header"))
			c.Abort()
			return
		}
		if subtle.ConstantTimeCompare([]byte(given), []byte(key)) != 1 {
			httpx.FailErr(c, httpx.ErrInvalidToken("invalid API key"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// UserID returns the caller's user id as the string key used by votes
func UserID(c *gin.Context) string {
	uid := c.GetInt(KeyUID)
	if uid == 0 {
		return ""
	}
	return strconv.Itoa(uid)
}

// TenantID returns the caller's tenant
func TenantID(c *gin.Context) string {
	return c.GetString(KeyTenantID)
}

// IsAdmin reports whether the caller has the admin role
func IsAdmin(c *gin.Context) bool {
	return c.GetString(KeyRole) == model.UserRoleAdmin
}
