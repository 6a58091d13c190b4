package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/ezequielvera391/rimovies-api-v2/internal/config"
)

// HTTPServer serves the session API. Connection timeouts and the shutdown
// window come from configuration; slow-client protection matters on an
// endpoint that accepts credentials.
type HTTPServer struct {
	engine *gin.Engine
	cfg    config.Config
}

// NewHTTPServer wraps the router for lifecycle management.
func NewHTTPServer(router *gin.Engine, cfg config.Config) *HTTPServer {
	router.HandleMethodNotAllowed = true
	router.ForwardedByClientIP = true
	return &HTTPServer{engine: router, cfg: cfg}
}

// Run serves on addr until ctx is done, then drains in-flight requests for at
// most the configured shutdown timeout.
func (s *HTTPServer) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.engine,
		ReadTimeout:  s.cfg.HTTPReadTimeout,
		WriteTimeout: s.cfg.HTTPWriteTimeout,
		IdleTimeout:  s.cfg.HTTPIdleTimeout,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}
