package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/ezequielvera391/rimovies-api-v2/internal/config"
	"github.com/ezequielvera391/rimovies-api-v2/internal/http/handler"
	httpmiddleware "github.com/ezequielvera391/rimovies-api-v2/internal/http/middleware"
	"github.com/ezequielvera391/rimovies-api-v2/internal/middleware"
)

// NewRouter wires Gin routes and middleware.
func NewRouter(cfg config.Config, authHandler *handler.AuthHandler, authMiddleware *httpmiddleware.Auth, rateLimiter *middleware.RateLimiter) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(nil))
	r.Use(middleware.CORS(cfg))
	r.Use(otelgin.Middleware(cfg.ServiceName))

	// Only the session endpoints are throttled; /healthz stays open for
	// probes.
	authGroup := r.Group("/auth")
	if rateLimiter != nil {
		authGroup.Use(rateLimiter.Handler())
	}
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/refresh", authHandler.Refresh)

		// Logout stays ungated so garbage tokens remain a clean no-op.
		authGroup.POST("/logout", authHandler.Logout)

		authGroup.POST("/logout-all", authMiddleware.RequireAccessToken, authHandler.LogoutAll)
		authGroup.GET("/me", authMiddleware.RequireAccessToken, authHandler.Me)
	}

	r.GET("/healthz", handler.Healthz)

	return r
}
