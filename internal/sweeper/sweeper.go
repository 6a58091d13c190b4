// Package sweeper runs the periodic expired-token sweep alongside live
// traffic.
package sweeper

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ezequielvera391/rimovies-api-v2/internal/service"
)

// Sweeper invokes the cleanup on a fixed interval. The sweep is idempotent,
// so overlapping or skipped runs are harmless.
type Sweeper struct {
	sessions *service.SessionService
	interval time.Duration
	logger   *zap.Logger
}

// New constructs a sweeper; intervals below a minute are clamped.
func New(sessions *service.SessionService, interval time.Duration, logger *zap.Logger) *Sweeper {
	if interval < time.Minute {
		interval = time.Minute
	}
	return &Sweeper{sessions: sessions, interval: interval, logger: logger}
}

// Run blocks until ctx is done, sweeping once per interval.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	removed, err := s.sessions.CleanupExpiredTokens(ctx)
	if err != nil {
		s.logger.Error("token sweep failed", zap.Error(err))
		return
	}
	if removed > 0 {
		s.logger.Info("token sweep removed expired records", zap.Int64("removed", removed))
	}
}
