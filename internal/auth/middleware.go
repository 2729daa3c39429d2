package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const userIDKey = "userID"

// ExtractTokenFromRequest extracts JWT from request (query param or header)
func ExtractTokenFromRequest(r *http.Request) string {
	token := r.URL.Query().Get("token")
	if token != "" {
		return token
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}

	return ""
}

// Middleware rejects requests without a valid token and stores the token's
// subject for handlers.
func Middleware(v *Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ExtractTokenFromRequest(c.Request)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token required"})
			return
		}

		claims, err := v.ValidateToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(userIDKey, claims.Subject)
		c.Next()
	}
}

// UserID returns the authenticated user set by Middleware.
func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}
