package config

import (
	"strings"

	"github.com/caarlos0/env/v11"
)

// TestConfig selects the optional backends that store tests run against.
// SQLite is always used.
type TestConfig struct {
	PostgresDSN string `env:"TEST_POSTGRES_DSN"`
}

func LoadTest() (TestConfig, error) {
	var cfg TestConfig
	err := env.Parse(&cfg)
	cfg.PostgresDSN = strings.TrimSpace(cfg.PostgresDSN)
	return cfg, err
}

func (c TestConfig) Postgres() bool {
	return c.PostgresDSN != ""
}
