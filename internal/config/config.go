package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains runtime configuration values.
type Config struct {
	Environment          string
	HTTPPort             string
	HTTPReadTimeout      time.Duration
	HTTPWriteTimeout     time.Duration
	HTTPIdleTimeout      time.Duration
	ShutdownTimeout      time.Duration
	DatabaseURL          string
	AccessTokenSecret    string
	RefreshTokenSecret   string
	AccessTokenTTL       time.Duration
	RefreshTokenTTL      time.Duration
	SweepInterval        time.Duration
	AdminEmail           string
	AdminPassword        string
	RedisAddr            string
	RedisPassword        string
	RedisDB              int
	ServiceName          string
	RateLimitRPM         int
	TelemetryEndpoint    string
	TelemetryInsecure    bool
	TelemetrySampleRatio float64
	CORSAllowedOrigins   []string
	CORSAllowedMethods   []string
	CORSAllowedHeaders   []string
	CORSAllowCredentials bool
}

// Load reads configuration from environment variables with sane defaults.
// The two signing secrets are required and must differ so that a leaked
// access secret cannot forge refresh tokens and vice versa.
func Load() (Config, error) {
	_ = godotenv.Load()

	accessSecret := strings.TrimSpace(os.Getenv("ACCESS_TOKEN_SECRET"))
	if accessSecret == "" {
		return Config{}, fmt.Errorf("ACCESS_TOKEN_SECRET is required")
	}
	refreshSecret := strings.TrimSpace(os.Getenv("REFRESH_TOKEN_SECRET"))
	if refreshSecret == "" {
		return Config{}, fmt.Errorf("REFRESH_TOKEN_SECRET is required")
	}
	if accessSecret == refreshSecret {
		return Config{}, fmt.Errorf("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET must differ")
	}

	cfg := Config{
		Environment:          getEnv("APP_ENV", "development"),
		HTTPPort:             getEnv("HTTP_PORT", "8080"),
		HTTPReadTimeout:      getDuration("HTTP_READ_TIMEOUT", 10*time.Second),
		HTTPWriteTimeout:     getDuration("HTTP_WRITE_TIMEOUT", 15*time.Second),
		HTTPIdleTimeout:      getDuration("HTTP_IDLE_TIMEOUT", time.Minute),
		ShutdownTimeout:      getDuration("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		AccessTokenSecret:    accessSecret,
		RefreshTokenSecret:   refreshSecret,
		AccessTokenTTL:       getDuration("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL:      getDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour),
		SweepInterval:        getDuration("TOKEN_SWEEP_INTERVAL", time.Hour),
		AdminEmail:           strings.TrimSpace(os.Getenv("ADMIN_EMAIL")),
		AdminPassword:        os.Getenv("ADMIN_PASSWORD"),
		RedisAddr:            os.Getenv("REDIS_ADDR"),
		RedisPassword:        os.Getenv("REDIS_PASSWORD"),
		RedisDB:              getInt("REDIS_DB", 0),
		ServiceName:          getEnv("SERVICE_NAME", "rimovies-auth"),
		RateLimitRPM:         getInt("RATE_LIMIT_RPM", 600),
		TelemetryEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TelemetryInsecure:    getBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		TelemetrySampleRatio: getFloat("OTEL_TRACES_SAMPLE_RATIO", 1.0),
		CORSAllowedOrigins:   getList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		CORSAllowedMethods:   getList("CORS_ALLOWED_METHODS", []string{"GET", "POST", "OPTIONS"}),
		CORSAllowedHeaders:   getList("CORS_ALLOWED_HEADERS", []string{"Authorization", "Content-Type"}),
		CORSAllowCredentials: getBool("CORS_ALLOW_CREDENTIALS", false),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(v) {
		case "1", "true", "t", "yes", "y", "on":
			return true
		case "0", "false", "f", "no", "n", "off":
			return false
		}
	}
	return def
}

func getList(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok {
		parts := strings.Split(v, ",")
		var cleaned []string
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				cleaned = append(cleaned, trimmed)
			}
		}
		if len(cleaned) > 0 {
			return cleaned
		}
	}
	return def
}
