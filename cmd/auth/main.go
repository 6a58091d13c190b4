package main

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/ezequielvera391/rimovies-api-v2/internal/adapter/cache"
	"github.com/ezequielvera391/rimovies-api-v2/internal/bootstrap"
	"github.com/ezequielvera391/rimovies-api-v2/internal/config"
	httptransport "github.com/ezequielvera391/rimovies-api-v2/internal/http"
	"github.com/ezequielvera391/rimovies-api-v2/internal/http/handler"
	httpmiddleware "github.com/ezequielvera391/rimovies-api-v2/internal/http/middleware"
	apimiddleware "github.com/ezequielvera391/rimovies-api-v2/internal/middleware"
	"github.com/ezequielvera391/rimovies-api-v2/internal/repository"
	"github.com/ezequielvera391/rimovies-api-v2/internal/server"
	"github.com/ezequielvera391/rimovies-api-v2/internal/service"
	"github.com/ezequielvera391/rimovies-api-v2/internal/sweeper"
	"github.com/ezequielvera391/rimovies-api-v2/internal/telemetry"
	"github.com/ezequielvera391/rimovies-api-v2/internal/token"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newSnowflake,
			newPGXPool,
			newTokenStore,
			newUserRepository,
			newRedisClient,
			newRevocationCache,
			newTokenCodec,
			newUserDirectory,
			service.NewSessionService,
			newRateLimiter,
			handler.NewAuthHandler,
			newAuthMiddleware,
			httptransport.NewRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(useTelemetry, bootstrap.EnsureAdmin, startSweeper, startHTTPServer),
	)

	app.Run()
}

func newConfig() (config.Config, error) {
	return config.Load()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Environment == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func newTelemetry(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*telemetry.Provider, error) {
	provider, err := telemetry.New(context.Background(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return provider.Shutdown(stopCtx)
		},
	})

	return provider, nil
}

func newSnowflake() (*snowflake.Node, error) {
	node, err := snowflake.NewNode(1)
	return node, err
}

func newPGXPool(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := repository.RunMigrations(ctx, cfg.DatabaseURL); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})

	return pool, nil
}

func newTokenStore(pool *pgxpool.Pool) repository.TokenStore {
	return repository.NewPostgresTokenStore(pool)
}

func newUserRepository(pool *pgxpool.Pool) repository.UserRepository {
	return repository.NewPostgresUserRepo(pool)
}

func newRedisClient(lc fx.Lifecycle, cfg config.Config) (redis.UniversalClient, error) {
	if cfg.RedisAddr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}

func newRevocationCache(client redis.UniversalClient) service.RevocationCache {
	if client == nil {
		return nil
	}
	return cache.NewRevocationCache(client)
}

func newTokenCodec(cfg config.Config) *token.Codec {
	return token.NewCodec(cfg.AccessTokenSecret, cfg.RefreshTokenSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
}

func newUserDirectory(users repository.UserRepository, node *snowflake.Node) service.UserDirectory {
	return service.NewDirectory(users, node)
}

func newRateLimiter(cfg config.Config) *apimiddleware.RateLimiter {
	return apimiddleware.NewRateLimiter(cfg)
}

func newAuthMiddleware(sessions *service.SessionService) *httpmiddleware.Auth {
	return &httpmiddleware.Auth{Sessions: sessions}
}

func startSweeper(lc fx.Lifecycle, sessions *service.SessionService, cfg config.Config, logger *zap.Logger) {
	sw := sweeper.New(sessions, cfg.SweepInterval, logger)

	var (
		cancel context.CancelFunc
		done   chan struct{}
	)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})
			go func() {
				sw.Run(runCtx)
				close(done)
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func startHTTPServer(lc fx.Lifecycle, srv *server.HTTPServer, cfg config.Config, logger *zap.Logger) {
	addr := ":" + cfg.HTTPPort
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				if err := srv.Run(runCtx, addr); err != nil {
					logger.Error("http server stopped", zap.Error(err))
				}
				close(done)
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func useTelemetry(*telemetry.Provider) {}
