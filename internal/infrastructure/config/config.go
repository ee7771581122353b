package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/complyco/entity-screening-backend/internal/infrastructure/queue"
	"github.com/complyco/entity-screening-backend/internal/service/providers"
	"github.com/complyco/entity-screening-backend/internal/service/scoring"
)

type Config struct {
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"`
	LogLevel    string `koanf:"log_level"`

	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Redis    RedisConfig    `koanf:"redis"`

	Screening ScreeningConfig                   `koanf:"screening"`
	Scoring   scoring.Config                    `koanf:"scoring"`
	Breaker   providers.BreakerConfig           `koanf:"breaker"`
	Queue     queue.Config                      `koanf:"queue"`
	Bureaus   map[string]providers.BureauConfig `koanf:"bureaus"`
}

type ServerConfig struct {
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MinIdleConns    int           `koanf:"min_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
}

type RedisConfig struct {
	URL          string        `koanf:"url"`
	Password     string        `koanf:"password"`
	DB           int           `koanf:"db"`
	PoolSize     int           `koanf:"pool_size"`
	MinIdleConns int           `koanf:"min_idle_conns"`
	MaxRetries   int           `koanf:"max_retries"`
	DialTimeout  time.Duration `koanf:"dial_timeout"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

// ScreeningConfig tunes the orchestrator and its workers
type ScreeningConfig struct {
	MatchThreshold int           `koanf:"match_threshold"` // minimum 0-100 similarity to keep a candidate
	Workers        int           `koanf:"workers"`
	JobTimeout     time.Duration `koanf:"job_timeout"`
	DedupeWindow   time.Duration `koanf:"dedupe_window"`
	WatchlistTTL   time.Duration `koanf:"watchlist_ttl"` // active watchlist cache lifetime
}

// Load reads configuration in precedence order: struct defaults, then
// configs/config.yaml if present, then SCREEN_* environment variables.
func Load() (*Config, error) {
	k := koanf.New(".")

	defaults := &Config{
		Version:     "dev",
		Environment: "development",
		LogLevel:    "info",
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			URL:             "postgres://localhost:5432/screening?sslmode=disable",
			MaxOpenConns:    25,
			MinIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			URL:          "localhost:6379",
			DB:           0,
			PoolSize:     10,
			MinIdleConns: 2,
			MaxRetries:   3,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Screening: ScreeningConfig{
			MatchThreshold: 75,
			Workers:        4,
			JobTimeout:     60 * time.Second,
			DedupeWindow:   time.Hour,
			WatchlistTTL:   5 * time.Minute,
		},
		Scoring: scoring.DefaultConfig(),
		Breaker: providers.DefaultBreakerConfig(),
		Queue:   queue.DefaultConfig(),
	}

	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	// Config file is optional
	_ = k.Load(file.Provider("configs/config.yaml"), yaml.Parser())

	if err := k.Load(env.Provider("SCREEN_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "SCREEN_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}
