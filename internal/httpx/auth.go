package httpx

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/MikeMC777/storefront/internal/auth"
)

const (
	ctxUserID = "uid"
	ctxRole   = "role"
)

// TokenParser is satisfied by *auth.Issuer.
type TokenParser interface {
	Parse(token string) (*auth.Claims, error)
}

// Auth requires a valid bearer token and stores the caller in the context.
func Auth(p TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		tok, ok := strings.CutPrefix(h, "Bearer ")
		if !ok || strings.TrimSpace(tok) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token required"})
			return
		}
		claims, err := p.Parse(strings.TrimSpace(tok))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set(ctxUserID, claims.UserID)
		c.Set(ctxRole, claims.Role)
		c.Next()
	}
}

func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !IsAdmin(c) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin only"})
			return
		}
		c.Next()
	}
}

func UserID(c *gin.Context) string { return c.GetString(ctxUserID) }

func IsAdmin(c *gin.Context) bool { return c.GetString(ctxRole) == auth.RoleAdmin }
