package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// ServerEnv configures "speakdrill serve". It is read from the environment,
// after an optional .env file.
type ServerEnv struct {
	Addr            string        `env:"SPEAKDRILL_ADDR"             envDefault:":8080"`
	Origin          string        `env:"SPEAKDRILL_ORIGIN"`
	Root            string        `env:"SPEAKDRILL_ROOT"`
	ShutdownTimeout time.Duration `env:"SPEAKDRILL_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	Metrics         bool          `env:"SPEAKDRILL_METRICS"          envDefault:"true"`
	LogRequests     bool          `env:"SPEAKDRILL_LOG_REQUESTS"     envDefault:"true"`
}

// LoadServerEnv loads the given .env files (".env" when none are named) and
// parses the environment. A missing .env file is not an error.
func LoadServerEnv(paths ...string) (ServerEnv, error) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return ServerEnv{}, fmt.Errorf("load %s: %w", p, err)
		}
	}

	cfg, err := env.ParseAs[ServerEnv]()
	if err != nil {
		return ServerEnv{}, fmt.Errorf("parse server env: %w", err)
	}
	if cfg.ShutdownTimeout <= 0 {
		return ServerEnv{}, fmt.Errorf("%w: shutdown timeout must be positive", ErrInvalidConfig)
	}
	return cfg, nil
}
