package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ezequielvera391/rimovies-api-v2/internal/service"
	"github.com/ezequielvera391/rimovies-api-v2/internal/token"
)

const (
	claimsKey      = "accessClaims"
	bearerTokenKey = "bearerToken"
)

// Auth is the authorization gate: every protected route passes through the
// revocation check before its handler sees any decoded claim.
type Auth struct {
	Sessions *service.SessionService
}

// RequireAccessToken rejects requests whose bearer token fails decode, is
// unknown to the store, or has been revoked. The token is parsed once; the
// claims handed to handlers are the ones the revocation check ran against.
func (m *Auth) RequireAccessToken(c *gin.Context) {
	bearer, ok := BearerToken(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Bearer token required."})
		return
	}

	claims, ok := m.Sessions.AuthorizeAccess(c.Request.Context(), bearer)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Invalid or revoked access token."})
		return
	}

	c.Set(claimsKey, claims)
	c.Set(bearerTokenKey, bearer)
	c.Next()
}

// GetClaims exposes the gated token claims to handlers.
func GetClaims(c *gin.Context) (token.Claims, bool) {
	value, ok := c.Get(claimsKey)
	if !ok {
		return token.Claims{}, false
	}
	claims, ok := value.(token.Claims)
	return claims, ok
}

// BearerToken extracts the bearer value from the Authorization header.
func BearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}
