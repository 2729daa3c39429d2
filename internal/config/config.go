package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port      string `yaml:"port"`
	GinMode   string `yaml:"gin_mode"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	DatabaseURL string `yaml:"database_url"`

	// RedisURL enables the Redis event ingress and presence mirror when set.
	RedisURL           string `yaml:"redis_url"`
	RedisEventsChannel string `yaml:"redis_events_channel"`

	AuthIssuerURL   string        `yaml:"auth_issuer_url"`
	AuthSecret      string        `yaml:"auth_secret"`
	JWKSRefreshRate time.Duration `yaml:"jwks_refresh"`

	PresenceDebounce time.Duration `yaml:"presence_debounce"`
	SendBufferSize   int           `yaml:"send_buffer_size"`
	EventBufferSize  int           `yaml:"event_buffer_size"`
	StatusQueueSize  int           `yaml:"status_queue_size"`
	StatusTimeout    time.Duration `yaml:"status_timeout"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout"`
}

func defaults() *Config {
	return &Config{
		Port:               "8080",
		GinMode:            "release",
		LogLevel:           "info",
		LogFormat:          "json",
		DatabaseURL:        "chat-realtime.db",
		RedisEventsChannel: "realtime:events",
		JWKSRefreshRate:    24 * time.Hour,
		PresenceDebounce:   60 * time.Second,
		SendBufferSize:     256,
		EventBufferSize:    1024,
		StatusQueueSize:    1024,
		StatusTimeout:      5 * time.Second,
		ShutdownTimeout:    15 * time.Second,
	}
}

// Load applies defaults, then the YAML file at path (if any), then the
// environment.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.GinMode = getEnv("GIN_MODE", cfg.GinMode)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("LOG_FORMAT", cfg.LogFormat)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.RedisURL = getEnv("REDIS_URL", cfg.RedisURL)
	cfg.RedisEventsChannel = getEnv("REDIS_EVENTS_CHANNEL", cfg.RedisEventsChannel)
	cfg.AuthIssuerURL = getEnv("AUTH_ISSUER_URL", cfg.AuthIssuerURL)
	cfg.AuthSecret = getEnv("AUTH_SECRET", cfg.AuthSecret)
	cfg.JWKSRefreshRate = getEnvDuration("JWKS_REFRESH", cfg.JWKSRefreshRate)
	cfg.PresenceDebounce = getEnvDuration("PRESENCE_DEBOUNCE", cfg.PresenceDebounce)
	cfg.SendBufferSize = getEnvInt("SEND_BUFFER_SIZE", cfg.SendBufferSize)
	cfg.EventBufferSize = getEnvInt("EVENT_BUFFER_SIZE", cfg.EventBufferSize)
	cfg.StatusQueueSize = getEnvInt("STATUS_QUEUE_SIZE", cfg.StatusQueueSize)
	cfg.StatusTimeout = getEnvDuration("STATUS_TIMEOUT", cfg.StatusTimeout)
	cfg.ShutdownTimeout = getEnvDuration("SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.AuthIssuerURL == "" && c.AuthSecret == "" {
		errs = append(errs, errors.New("one of AUTH_ISSUER_URL or AUTH_SECRET is required"))
	}
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	for name, d := range map[string]time.Duration{
		"presence_debounce": c.PresenceDebounce,
		"jwks_refresh":      c.JWKSRefreshRate,
		"status_timeout":    c.StatusTimeout,
		"shutdown_timeout":  c.ShutdownTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	for name, n := range map[string]int{
		"send_buffer_size":  c.SendBufferSize,
		"event_buffer_size": c.EventBufferSize,
		"status_queue_size": c.StatusQueueSize,
	} {
		if n <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}

	return errors.Join(errs...)
}

// SlogLevel maps LogLevel onto slog; unknown values mean info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
