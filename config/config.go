package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port           int      `envconfig:"PORT" default:"8080" validate:"min=1,max=65535"`
	LogLevel       string   `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS"`
	SendBuffer     int      `envconfig:"SEND_BUFFER" default:"256" validate:"min=1"`
	MaxMessageSize int64    `envconfig:"MAX_MESSAGE_SIZE" default:"65536" validate:"min=512"`

	ExecURL          string        `envconfig:"EXEC_URL" default:"https://api.jdoodle.com/v1/execute" validate:"required,url"`
	ExecClientID     string        `envconfig:"CLIENTID"`
	ExecClientSecret string        `envconfig:"CLIENTSECRET"`
	ExecLanguage     string        `envconfig:"EXEC_LANGUAGE" default:"nodejs" validate:"required"`
	ExecVersionIndex string        `envconfig:"EXEC_VERSION_INDEX" default:"3" validate:"required"`
	ExecTimeout      time.Duration `envconfig:"EXEC_TIMEOUT" default:"30s"`
	ExecMaxInFlight  int64         `envconfig:"EXEC_MAX_INFLIGHT" default:"16" validate:"min=1"`
}

// Load reads an optional .env file, then the environment.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil {
		slog.Warn("no .env file found, using environment variables")
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
