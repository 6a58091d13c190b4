package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ezequielvera391/rimovies-api-v2/internal/config"
)

// CORS applies the configured cross-origin policy.
func CORS(cfg config.Config) gin.HandlerFunc {
	allowedOrigins := cfg.CORSAllowedOrigins
	allowAll := len(allowedOrigins) == 1 && allowedOrigins[0] == "*"
	methods := strings.Join(cfg.CORSAllowedMethods, ", ")
	headers := strings.Join(cfg.CORSAllowedHeaders, ", ")

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" {
			allowed := allowAll
			if !allowed {
				for _, candidate := range allowedOrigins {
					if strings.EqualFold(candidate, origin) {
						allowed = true
						break
					}
				}
			}
			if allowed {
				value := origin
				if allowAll && !cfg.CORSAllowCredentials {
					value = "*"
				}
				c.Header("Access-Control-Allow-Origin", value)
				c.Header("Access-Control-Allow-Methods", methods)
				c.Header("Access-Control-Allow-Headers", headers)
				if cfg.CORSAllowCredentials {
					c.Header("Access-Control-Allow-Credentials", "true")
				}
				c.Header("Vary", "Origin")
			}
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
