package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv   string `env:"APP_ENV" default:"development"`
	Port     string `env:"PORT" default:"8080"`
	AppURL   string `env:"APP_URL"`
	RedisURL string `env:"REDIS_URL"`

	// Channels is the comma-separated list of upstream pub/sub channels
	// the relay subscribes to.
	Channels string `env:"RELAY_CHANNELS"`

	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	MaxConnections      int64   `env:"MAX_CONNECTIONS" default:"10000"`
	MaxConnectionsPerIP int     `env:"MAX_CONNECTIONS_PER_IP" default:"20"`
	ConnectionRate      float64 `env:"CONNECTION_RATE" default:"10"`
	ConnectionBurst     int     `env:"CONNECTION_BURST" default:"20"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" default:"10s"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ChannelList returns the parsed upstream channel names, trimmed and with
// empty entries dropped.
func (c *Config) ChannelList() []string {
	parts := strings.Split(c.Channels, ",")
	channels := make([]string, 0, len(parts))
	for _, p := range parts {
		if name := strings.TrimSpace(p); name != "" {
			channels = append(channels, name)
		}
	}
	return channels
}

// IsDevelopment reports whether the app runs in a development environment.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv != "production"
}

func validate(cfg *Config) error {
	required := map[string]string{
		"REDIS_URL":      cfg.RedisURL,
		"RELAY_CHANNELS": cfg.Channels,
	}
	for name, value := range required {
		if value == "" {
			return fmt.Errorf("%s is required", name)
		}
	}

	if len(cfg.ChannelList()) == 0 {
		return fmt.Errorf("RELAY_CHANNELS must contain at least one channel name")
	}

	if cfg.MaxConnections <= 0 {
		return fmt.Errorf("MAX_CONNECTIONS must be positive, got %d", cfg.MaxConnections)
	}
	if cfg.MaxConnectionsPerIP <= 0 {
		return fmt.Errorf("MAX_CONNECTIONS_PER_IP must be positive, got %d", cfg.MaxConnectionsPerIP)
	}
	if cfg.ConnectionRate <= 0 {
		return fmt.Errorf("CONNECTION_RATE must be positive, got %f", cfg.ConnectionRate)
	}

	return nil
}
