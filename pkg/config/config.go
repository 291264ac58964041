package config

import (
	"fmt"
	"time"

	"github.com/Proton-105/gifpick-bot/pkg/redis"
)

// Config holds runtime configuration for the gif picker bot.
type Config struct {
	AppEnv      string            `mapstructure:"app_env"`
	Bot         BotConfig         `mapstructure:"bot" validate:"required"`
	Database    DatabaseConfig    `mapstructure:"database" validate:"required"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Tenor       TenorConfig       `mapstructure:"tenor" validate:"required"`
	Logger      LoggerConfig      `mapstructure:"logger"`
	Sentry      SentryConfig      `mapstructure:"sentry"`
	Server      ServerConfig      `mapstructure:"server"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Idempotency IdempotencyConfig `mapstructure:"idempotency"`
	Jobs        JobsConfig        `mapstructure:"jobs"`
}

// BotConfig configures the Telegram transport.
type BotConfig struct {
	Token         string        `mapstructure:"token" validate:"required"`
	Mode          string        `mapstructure:"mode" validate:"oneof=polling webhook"`
	Timeout       time.Duration `mapstructure:"timeout"`
	WebhookListen string        `mapstructure:"webhook_listen" validate:"required_if=Mode webhook"`
	WebhookURL    string        `mapstructure:"webhook_url" validate:"required_if=Mode webhook"`
	Command       string        `mapstructure:"command" validate:"required,startswith=/"`
}

// DatabaseConfig describes the PostgreSQL connection.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host" validate:"required"`
	Port            int           `mapstructure:"port" validate:"required,min=1,max=65535"`
	User            string        `mapstructure:"user" validate:"required"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name" validate:"required"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Name,
		sslMode,
	)
}

// RedisConfig enables the optional Redis-backed components.
type RedisConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	redis.Config `mapstructure:",squash"`
}

// TenorConfig configures the upstream GIF search API.
type TenorConfig struct {
	APIKey           string        `mapstructure:"api_key" validate:"required"`
	SearchURL        string        `mapstructure:"search_url" validate:"required,url"`
	RegisterShareURL string        `mapstructure:"register_share_url" validate:"required,url"`
	Locale           string        `mapstructure:"locale"`
	Limit            int           `mapstructure:"limit" validate:"min=1,max=50"`
	MediaFilter      string        `mapstructure:"media_filter"`
	AspectRatio      string        `mapstructure:"ar_range"`
	Timeout          time.Duration `mapstructure:"timeout"`
}

// LoggerConfig controls log level, encoding and optional file output.
type LoggerConfig struct {
	Level  string           `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string           `mapstructure:"format" validate:"omitempty,oneof=json text"`
	File   LoggerFileConfig `mapstructure:"file"`
}

// LoggerFileConfig configures lumberjack rotation.
type LoggerFileConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Path       string `mapstructure:"path" validate:"required_if=Enabled true"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// SentryConfig configures error reporting.
type SentryConfig struct {
	Enabled          bool    `mapstructure:"enabled"`
	DSN              string  `mapstructure:"dsn" validate:"required_if=Enabled true"`
	Environment      string  `mapstructure:"environment"`
	TracesSampleRate float64 `mapstructure:"traces_sample_rate" validate:"min=0,max=1"`
}

// ServerConfig configures the operational HTTP server (metrics and probes).
type ServerConfig struct {
	Port            string        `mapstructure:"port" validate:"required"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// RateLimitRule is a limit over a window, e.g. 20 per "1m".
type RateLimitRule struct {
	Limit  int    `mapstructure:"limit"`
	Window string `mapstructure:"window"`
}

// RateLimitConfig configures per-user limits on searches.
type RateLimitConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	PerUser   RateLimitRule `mapstructure:"per_user"`
	Searches  RateLimitRule `mapstructure:"searches"`
	Whitelist []int64       `mapstructure:"whitelist"`
}

// IdempotencyConfig configures duplicate-update suppression.
type IdempotencyConfig struct {
	TTL     time.Duration `mapstructure:"ttl"`
	LockTTL time.Duration `mapstructure:"lock_ttl"`
}

// JobsConfig configures the asynq worker used for share registration and
// the periodic expiry of abandoned selectors.
type JobsConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Concurrency    int           `mapstructure:"concurrency" validate:"min=1"`
	ExpireAfter    time.Duration `mapstructure:"expire_after"`
	ExpireSchedule string        `mapstructure:"expire_schedule"`
}
