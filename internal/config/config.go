// Package config loads runtime settings for the GoNotify service from the
// environment, applying defaults and validation.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

const (
	defaultPort           = ":8080"
	defaultMaxMessageSize = 512
	defaultSessionTTL     = 24 * time.Hour
	defaultLoginRate      = 5.0
	defaultLoginBurst     = 10
	defaultShutdown       = 10 * time.Second

	// DevelopmentSecret is only accepted when APP_ENV is development.
	DevelopmentSecret = "super-secret-key"
)

// RateLimitConfig defines the parameters for per-client request rate limiting
// on the credential endpoints.
type RateLimitConfig struct {
	PerSecond float64 `env:"LOGIN_RATE_LIMIT" default:"5"`
	Burst     int     `env:"LOGIN_RATE_BURST" default:"10"`
}

// Config holds the server configuration settings including security controls.
type Config struct {
	AppEnv          string        `env:"APP_ENV" default:"development"`
	Port            string        `env:"SERVER_PORT" default:":8080"`
	SecretKey       string        `env:"SECRET_KEY"`
	SessionTTL      time.Duration `env:"SESSION_TTL" default:"24h"`
	CookieSecure    bool          `env:"COOKIE_SECURE" default:"true"`
	DatabaseURL     string        `env:"DATABASE_URL"`
	RedisURL        string        `env:"REDIS_URL"`
	AllowedOrigins  []string      `env:"ALLOWED_ORIGINS" default:"http://localhost:8080"`
	MaxMessageSize  int64         `env:"MAX_MESSAGE_SIZE" default:"512"`
	LogLevel        string        `env:"LOG_LEVEL" default:"info"`
	LogFormat       string        `env:"LOG_FORMAT" default:"text"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" default:"10s"`

	LoginRateLimit RateLimitConfig
}

// Load reads the env file matching APP_ENV (".env.docker" in docker,
// ".env.local" otherwise), then the process environment.
func Load() (*Config, error) {
	envFile := ".env.local"
	if os.Getenv("APP_ENV") == "docker" {
		envFile = ".env.docker"
	}
	if err := godotenv.Load(envFile); err != nil {
		slog.Info("No env file found, using environment variables", "file", envFile)
	}

	var cfg Config
	if err := env.Load(&cfg, &env.Options{SliceSep: ","}); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	sanitized := sanitizeConfig(cfg)
	if err := validate(&sanitized); err != nil {
		return nil, err
	}

	return &sanitized, nil
}

// NewConfig creates a Config instance populated with default values for all
// settings. It is intended for tests and local tooling.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// IsDevelopment reports whether the service runs with development defaults.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "" || c.AppEnv == "development"
}

func defaultConfig() Config {
	return Config{
		AppEnv:         "development",
		Port:           defaultPort,
		SecretKey:      DevelopmentSecret,
		SessionTTL:     defaultSessionTTL,
		CookieSecure:   true,
		AllowedOrigins: []string{"http://localhost:8080"},
		MaxMessageSize: defaultMaxMessageSize,
		LoginRateLimit: RateLimitConfig{
			PerSecond: defaultLoginRate,
			Burst:     defaultLoginBurst,
		},
		LogLevel:        "info",
		LogFormat:       "text",
		ShutdownTimeout: defaultShutdown,
	}
}

func sanitizeConfig(cfg Config) Config {
	if cfg.Port == "" {
		cfg.Port = defaultPort
	}
	if !strings.HasPrefix(cfg.Port, ":") && !strings.Contains(cfg.Port, ":") {
		cfg.Port = ":" + cfg.Port
	}

	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}

	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = defaultSessionTTL
	}

	if cfg.LoginRateLimit.PerSecond <= 0 {
		cfg.LoginRateLimit.PerSecond = defaultLoginRate
	}
	if cfg.LoginRateLimit.Burst <= 0 {
		cfg.LoginRateLimit.Burst = defaultLoginBurst
	}

	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdown
	}

	if cfg.SecretKey == "" && cfg.IsDevelopment() {
		cfg.SecretKey = DevelopmentSecret
	}

	cfg.AllowedOrigins = trimOrigins(cfg.AllowedOrigins)
	return cfg
}

func trimOrigins(origins []string) []string {
	trimmed := make([]string, 0, len(origins))
	for _, origin := range origins {
		if o := strings.TrimSpace(origin); o != "" {
			trimmed = append(trimmed, o)
		}
	}
	return trimmed
}

func validate(cfg *Config) error {
	if cfg.SecretKey == "" {
		return errors.New("SECRET_KEY is required")
	}
	if !cfg.IsDevelopment() && cfg.SecretKey == DevelopmentSecret {
		return fmt.Errorf("SECRET_KEY must not use the development default when APP_ENV=%s", cfg.AppEnv)
	}
	if len(cfg.SecretKey) < 16 {
		return errors.New("SECRET_KEY must be at least 16 characters")
	}
	return nil
}
