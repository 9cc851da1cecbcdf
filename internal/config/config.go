// Package config содержит чтение конфигурации кассового сервиса.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	defaultRunAddress = "localhost:8080"
	defaultAPIAddress = "localhost:8000"
	defaultIdleTTL    = 2 * time.Hour
)

// Config содержит параметры кассового сервиса.
type Config struct {
	RunAddress    string        `env:"RUN_ADDRESS"`
	DatabaseURI   string        `env:"DATABASE_URI"`
	APIAddress    string        `env:"STOCKPILOT_API_ADDRESS"`
	APIToken      string        `env:"STOCKPILOT_API_TOKEN"`
	SessionSecret string        `env:"SESSION_SECRET"`
	CartIdleTTL   time.Duration `env:"CART_IDLE_TTL"`
}

// Parse считывает конфигурацию из флагов и переменных окружения. Окружение имеет приоритет.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	fromEnv := *cfg

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI, in-memory sessions when empty")
	flag.StringVar(&cfg.APIAddress, "r", defaultAPIAddress, "StockPilot REST API address")
	flag.StringVar(&cfg.APIToken, "k", "", "StockPilot REST API bearer token")
	flag.StringVar(&cfg.SessionSecret, "s", "", "session cookie signing key")
	flag.DurationVar(&cfg.CartIdleTTL, "t", defaultIdleTTL, "idle POS sessions are evicted after this period")

	flag.Parse()

	if fromEnv.RunAddress != "" {
		cfg.RunAddress = fromEnv.RunAddress
	}
	if fromEnv.DatabaseURI != "" {
		cfg.DatabaseURI = fromEnv.DatabaseURI
	}
	if fromEnv.APIAddress != "" {
		cfg.APIAddress = fromEnv.APIAddress
	}
	if fromEnv.APIToken != "" {
		cfg.APIToken = fromEnv.APIToken
	}
	if fromEnv.SessionSecret != "" {
		cfg.SessionSecret = fromEnv.SessionSecret
	}
	if fromEnv.CartIdleTTL != 0 {
		cfg.CartIdleTTL = fromEnv.CartIdleTTL
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}
	if cfg.CartIdleTTL < 0 {
		return nil, fmt.Errorf("cart idle ttl must not be negative: %s", cfg.CartIdleTTL)
	}

	return cfg, nil
}
