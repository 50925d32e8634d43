// Package config loads storefront runtime settings from the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Cart store backends.
const (
	CartBackendBolt   = "bolt"
	CartBackendSQLite = "sqlite"
	CartBackendMemory = "memory"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server  ServerConfig
	Catalog CatalogConfig
	Cart    CartConfig
	Session SessionConfig
	Locale  LocaleConfig
	// LogLevel is parsed by observability.NewLogger; invalid values fall back to info.
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Addr            string        `env:"STOREFRONT_ADDR" envDefault:":8080"`
	Environment     string        `env:"STOREFRONT_ENV" envDefault:"dev"`
	TemplatesDir    string        `env:"STOREFRONT_TEMPLATES_DIR"`
	ReadTimeout     time.Duration `env:"STOREFRONT_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout    time.Duration `env:"STOREFRONT_WRITE_TIMEOUT" envDefault:"15s"`
	IdleTimeout     time.Duration `env:"STOREFRONT_IDLE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"STOREFRONT_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// CatalogConfig selects where the catalog resource comes from.
type CatalogConfig struct {
	// Source is a file path or http(s) URL; empty uses the bundled stock.
	Source  string        `env:"STOREFRONT_CATALOG"`
	Timeout time.Duration `env:"STOREFRONT_CATALOG_TIMEOUT" envDefault:"10s"`
}

// CartConfig selects the durable store for cart slots.
type CartConfig struct {
	Backend       string        `env:"STOREFRONT_CART_BACKEND" envDefault:"bolt"`
	Path          string        `env:"STOREFRONT_CART_PATH" envDefault:"data/cart.db"`
	ToastDuration time.Duration `env:"STOREFRONT_TOAST_DURATION" envDefault:"1500ms"`
}

// SessionConfig controls visitor and page sessions.
type SessionConfig struct {
	SigningKey    string        `env:"STOREFRONT_SESSION_SIGNING_KEY"`
	PageTTL       time.Duration `env:"STOREFRONT_PAGE_TTL" envDefault:"2h"`
	SweepInterval time.Duration `env:"STOREFRONT_PAGE_SWEEP_INTERVAL" envDefault:"1m"`
}

// LocaleConfig lists supported languages.
type LocaleConfig struct {
	Fallback  string   `env:"STOREFRONT_LOCALE" envDefault:"es"`
	Supported []string `env:"STOREFRONT_LOCALES" envDefault:"es,en" envSeparator:","`
}

// Load parses the environment into a Config and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Production reports whether the server runs with production settings.
func (c Config) Production() bool {
	return strings.EqualFold(strings.TrimSpace(c.Server.Environment), "prod")
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	var errs []error
	switch strings.ToLower(strings.TrimSpace(c.Cart.Backend)) {
	case CartBackendBolt, CartBackendSQLite:
		if strings.TrimSpace(c.Cart.Path) == "" {
			errs = append(errs, errors.New("STOREFRONT_CART_PATH is required for durable cart backends"))
		}
	case CartBackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unsupported cart backend %q", c.Cart.Backend))
	}
	if c.Catalog.Timeout <= 0 {
		errs = append(errs, errors.New("STOREFRONT_CATALOG_TIMEOUT must be positive"))
	}
	if c.Cart.ToastDuration <= 0 {
		errs = append(errs, errors.New("STOREFRONT_TOAST_DURATION must be positive"))
	}
	if c.Session.PageTTL <= 0 {
		errs = append(errs, errors.New("STOREFRONT_PAGE_TTL must be positive"))
	}
	if c.Production() && strings.TrimSpace(c.Session.SigningKey) == "" {
		errs = append(errs, errors.New("STOREFRONT_SESSION_SIGNING_KEY is required in prod"))
	}
	if !contains(c.Locale.Supported, c.Locale.Fallback) {
		errs = append(errs, fmt.Errorf("fallback locale %q is not in STOREFRONT_LOCALES", c.Locale.Fallback))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if strings.EqualFold(strings.TrimSpace(v), want) {
			return true
		}
	}
	return false
}
