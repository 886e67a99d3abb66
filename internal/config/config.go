package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	ServerPort string `envconfig:"SERVER_PORT" default:"8080"`

	StoreDriver string `envconfig:"STORE_DRIVER" default:"postgres"`
	DBHost      string `envconfig:"DB_HOST" default:"localhost"`
	DBPort      string `envconfig:"DB_PORT" default:"5432"`
	DBUser      string `envconfig:"DB_USER" default:"tradepost"`
	DBPassword  string `envconfig:"DB_PASSWORD" default:"tradepost_dev_password"`
	DBName      string `envconfig:"DB_NAME" default:"tradepost"`

	JWTSecret string `envconfig:"JWT_SECRET" default:"dev-secret-change-me"`

	// TypingTTL bounds how long a typing indicator survives without renewal.
	TypingTTL time.Duration `envconfig:"TYPING_TTL" default:"1500ms"`
	// OpTimeout caps every store round trip issued by the services.
	OpTimeout time.Duration `envconfig:"OP_TIMEOUT" default:"5s"`

	RetryAttempts int           `envconfig:"RETRY_ATTEMPTS" default:"3"`
	RetryBackoff  time.Duration `envconfig:"RETRY_BACKOFF" default:"100ms"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return &cfg, nil
}
