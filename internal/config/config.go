package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	BotToken string `envconfig:"BOT_TOKEN" required:"true" validate:"required"`

	DBDriver          string `envconfig:"DB_DRIVER" default:"sqlite" validate:"oneof=sqlite postgres"`
	DBPath            string `envconfig:"DB_PATH" default:"./data/logzito.db" validate:"required_if=DBDriver sqlite"`
	DatabaseURL       string `envconfig:"DATABASE_URL" validate:"required_if=DBDriver postgres"`
	DBConnectAttempts int    `envconfig:"DB_CONNECT_ATTEMPTS" default:"5" validate:"min=1"`

	DefaultTZ           string `envconfig:"DEFAULT_TZ" default:"America/Sao_Paulo" validate:"required,timezone"`
	DefaultReminderTime string `envconfig:"DEFAULT_REMINDER_TIME" default:"20:00" validate:"required,datetime=15:04"`

	ReminderTick              time.Duration `envconfig:"REMINDER_TICK" default:"1m" validate:"min=1m"`
	ReminderPassTimeout       time.Duration `envconfig:"REMINDER_PASS_TIMEOUT" default:"50s" validate:"min=1s"`
	ReminderPermanentFailures string        `envconfig:"REMINDER_PERMANENT_FAILURES"` // code:substring;... (empty = Telegram defaults)

	SendRate   float64       `envconfig:"SEND_RATE" default:"25" validate:"gt=0"`        // messages/sec to Telegram
	PendingTTL time.Duration `envconfig:"PENDING_TTL" default:"10m" validate:"min=1s"` // multi-step input lifetime

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`  // debug|info|warn|error
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"` // healthz + metrics
}

// Load reads environment variables into Config and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, err
	}
	if err := validator.New().Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
