/*
Package config loads server settings.

SOURCES (later wins):
  1. Defaults
  2. Optional YAML file (-config)
  3. STOCK_* environment variables
  4. Command-line flags, applied by cmd/server

EXAMPLE FILE:
  http:
    port: 8080
    cors_origins: ["http://localhost:5173"]
  store:
    kind: postgres
    postgres_dsn: "host=localhost user=postgres dbname=stock sslmode=disable"
    redis_addr: "localhost:6379"
  alerts:
    expiry_window_days: 3
    sweep_interval: 1h
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

type Config struct {
	HTTP   HTTPConfig   `yaml:"http"`
	Store  StoreConfig  `yaml:"store"`
	Auth   AuthConfig   `yaml:"auth"`
	Alerts AlertsConfig `yaml:"alerts"`
	Log    LogConfig    `yaml:"log"`
}

type HTTPConfig struct {
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type StoreConfig struct {
	Kind        string `yaml:"kind"`
	Path        string `yaml:"path"`
	PostgresDSN string `yaml:"postgres_dsn"`

	// RedisAddr moves alerts to Redis when set.
	RedisAddr string `yaml:"redis_addr"`
}

type AuthConfig struct {
	// JWTSecret enables bearer-token actors. Empty means X-Actor only.
	JWTSecret string `yaml:"jwt_secret"`
}

type AlertsConfig struct {
	ExpiryWindowDays int `yaml:"expiry_window_days"`

	// SweepInterval of zero disables the background sweep.
	SweepInterval    time.Duration `yaml:"sweep_interval"`
	SweepParallelism int           `yaml:"sweep_parallelism"`
}

type LogConfig struct {
	Development bool   `yaml:"development"`
	Level       string `yaml:"level"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Port:        8080,
			CORSOrigins: []string{"*"},
		},
		Store: StoreConfig{
			Kind: StoreSQLite,
			Path: "stock.db",
		},
		Alerts: AlertsConfig{
			ExpiryWindowDays: 3,
			SweepInterval:    time.Hour,
			SweepParallelism: 4,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads path (if non-empty) over the defaults, then applies the
// environment. The result is validated.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v, ok := lookup("STOCK_HTTP_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("STOCK_HTTP_PORT: %w", err)
		}
		c.HTTP.Port = port
	}
	if v, ok := lookup("STOCK_CORS_ORIGINS"); ok {
		c.HTTP.CORSOrigins = strings.Split(v, ",")
	}
	if v, ok := lookup("STOCK_STORE"); ok {
		c.Store.Kind = v
	}
	if v, ok := lookup("STOCK_DB_PATH"); ok {
		c.Store.Path = v
	}
	if v, ok := lookup("STOCK_POSTGRES_DSN"); ok {
		c.Store.PostgresDSN = v
	}
	if v, ok := lookup("STOCK_REDIS_ADDR"); ok {
		c.Store.RedisAddr = v
	}
	if v, ok := lookup("STOCK_JWT_SECRET"); ok {
		c.Auth.JWTSecret = v
	}
	if v, ok := lookup("STOCK_EXPIRY_WINDOW_DAYS"); ok {
		days, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("STOCK_EXPIRY_WINDOW_DAYS: %w", err)
		}
		c.Alerts.ExpiryWindowDays = days
	}
	if v, ok := lookup("STOCK_SWEEP_INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("STOCK_SWEEP_INTERVAL: %w", err)
		}
		c.Alerts.SweepInterval = d
	}
	if v, ok := lookup("STOCK_LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	return nil
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("http.port %d out of range", c.HTTP.Port))
	}
	switch c.Store.Kind {
	case StoreMemory:
	case StoreSQLite:
		if c.Store.Path == "" {
			errs = append(errs, errors.New("store.path is required for sqlite"))
		}
	case StorePostgres:
		if c.Store.PostgresDSN == "" {
			errs = append(errs, errors.New("store.postgres_dsn is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store kind %q", c.Store.Kind))
	}
	if c.Alerts.ExpiryWindowDays < 0 {
		errs = append(errs, fmt.Errorf("alerts.expiry_window_days must not be negative, got %d", c.Alerts.ExpiryWindowDays))
	}
	if c.Alerts.SweepInterval < 0 {
		errs = append(errs, fmt.Errorf("alerts.sweep_interval must not be negative, got %s", c.Alerts.SweepInterval))
	}
	if c.Alerts.SweepParallelism < 1 {
		errs = append(errs, fmt.Errorf("alerts.sweep_parallelism must be at least 1, got %d", c.Alerts.SweepParallelism))
	}
	return errors.Join(errs...)
}
