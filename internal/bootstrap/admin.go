package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/ezequielvera391/rimovies-api-v2/internal/config"
	"github.com/ezequielvera391/rimovies-api-v2/internal/domain"
	"github.com/ezequielvera391/rimovies-api-v2/internal/service"
)

// EnsureAdmin creates an admin user at startup when ADMIN_EMAIL and
// ADMIN_PASSWORD are configured. Without them the hook does nothing.
func EnsureAdmin(lc fx.Lifecycle, cfg config.Config, directory service.UserDirectory, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return ensureAdmin(ctx, cfg, directory, logger)
		},
	})
}

func ensureAdmin(ctx context.Context, cfg config.Config, directory service.UserDirectory, logger *zap.Logger) error {
	email := strings.ToLower(strings.TrimSpace(cfg.AdminEmail))
	if email == "" || cfg.AdminPassword == "" {
		return nil
	}

	username := email
	if at := strings.IndexByte(email, '@'); at > 0 {
		username = email[:at]
	}

	created, err := directory.Create(ctx, email, username, cfg.AdminPassword, "admin")
	if err != nil {
		if errors.Is(err, domain.ErrUserExists) {
			return nil
		}
		return fmt.Errorf("bootstrap admin: %w", err)
	}

	if logger != nil {
		logger.Info("bootstrap admin user created",
			zap.String("email", email),
			zap.Int64("user_id", created.ID),
		)
	}
	return nil
}
