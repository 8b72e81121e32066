package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"sadtalker/internal/security"
)

// Auth requires a bearer token signed with secret.
func Auth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Not authenticated"})
			return
		}

		claims, err := security.ParseAccessToken(strings.TrimPrefix(authHeader, "Bearer "), secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Invalid token"})
			return
		}

		c.Set("access_claims", *claims)
		c.Next()
	}
}
