package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Postgres struct {
	Host     string
	User     string
	Password string
	Database string
	Port     string
}

// DSN builds the connection string for the postgres driver
func (p Postgres) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		p.Host,
		p.User,
		p.Password,
		p.Database,
		p.Port,
	)
}

type API struct {
	Addr string // listen address, e.g.: ":80"
	Host string // public base URL advertised in the OpenAPI document
}

type Harvest struct {
	Workers           int           // parallel package chains per instance is 3 times this
	Interval          time.Duration // delay between two scheduled harvests
	RequestsPerSecond float64       // 0 means unlimited
}

type Config struct {
	Postgres     Postgres
	API          API
	Harvest      Harvest
	LogLevel     slog.Level
	LogFormat    string
	JWTSecret    string
	OTLPEndpoint string
}

// Load reads the configuration from the environment, after loading a .env
// file when one exists
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.LookupEnv)
}

// FromEnv builds the configuration from a lookup function such as
// os.LookupEnv
func FromEnv(lookup func(string) (string, bool)) (*Config, error) {
	get := func(key, def string) string {
		if v, ok := lookup(key); ok && v != "" {
			return v
		}
		return def
	}

	cfg := &Config{
		Postgres: Postgres{
			Host:     get("POSTGRES_HOST", "localhost"),
			User:     get("POSTGRES_USER", "postgres"),
			Password: get("POSTGRES_PASSWORD", ""),
			Database: get("POSTGRES_DATABASE", "postgres"),
			Port:     get("POSTGRES_PORT", "5432"),
		},
		API: API{
			Addr: ":" + get("API_PORT", "80"),
		},
		LogLevel:     ParseLogLevel(get("LOG_LEVEL", "")),
		LogFormat:    strings.ToLower(get("LOG_FORMAT", "text")),
		JWTSecret:    get("CSW_JWT_SECRET", ""),
		OTLPEndpoint: get("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}
	cfg.API.Host = get("API_HOST", "http://localhost"+cfg.API.Addr)

	var err error
	if cfg.Harvest.Workers, err = strconv.Atoi(get("HARVEST_WORKERS", "1")); err != nil || cfg.Harvest.Workers < 1 {
		return nil, fmt.Errorf("invalid HARVEST_WORKERS %q: must be a positive integer", get("HARVEST_WORKERS", ""))
	}
	if cfg.Harvest.Interval, err = time.ParseDuration(get("HARVEST_INTERVAL", "24h")); err != nil || cfg.Harvest.Interval <= 0 {
		return nil, fmt.Errorf("invalid HARVEST_INTERVAL %q: must be a positive duration", get("HARVEST_INTERVAL", ""))
	}
	if cfg.Harvest.RequestsPerSecond, err = strconv.ParseFloat(get("HARVEST_REQUESTS_PER_SECOND", "0"), 64); err != nil || cfg.Harvest.RequestsPerSecond < 0 {
		return nil, fmt.Errorf("invalid HARVEST_REQUESTS_PER_SECOND %q", get("HARVEST_REQUESTS_PER_SECOND", ""))
	}

	return cfg, nil
}

// ParseLogLevel maps debug, warn and error to their slog level, anything
// else to info
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger builds the process logger, JSON when LOG_FORMAT is "json"
func (c *Config) Logger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.LogLevel}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
