package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"ingest-service/common/auth"
	apperrors "ingest-service/common/errors"
)

const (
	UserContextKey = "userID"
	tokenCookie    = "token"
)

// AuthMiddleware accepts an access token from the Authorization header or
// the token cookie and stores its subject under UserContextKey.
// EventSource clients cannot set headers, which is why the cookie is read.
func AuthMiddleware(validator *auth.TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c.GetHeader("Authorization"))
		if raw == "" {
			if v, err := c.Cookie(tokenCookie); err == nil {
				raw = v
			}
		}
		if raw == "" {
			apperrors.Respond(c, apperrors.Unauthorized("Authorization required"))
			return
		}

		claims, err := validator.ParseAndValidateToken(raw, "access")
		if err != nil {
			apperrors.Respond(c, apperrors.Unauthorized("Invalid or expired token"))
			return
		}
		sub, err := auth.Subject(claims)
		if err != nil {
			apperrors.Respond(c, apperrors.Unauthorized("Invalid or expired token"))
			return
		}

		c.Set(UserContextKey, sub)
		c.Next()
	}
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

// GetUserID returns the authenticated owner id.
func GetUserID(c *gin.Context) (string, error) {
	if id := c.GetString(UserContextKey); id != "" {
		return id, nil
	}
	return "", errors.New("user ID not found in context")
}
