package config

import (
	"errors"
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every environment variable, e.g. TRACEVIEW_COLLECTOR_PORT.
const Prefix = "TRACEVIEW"

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Collector CollectorConfig
	Query     QueryConfig
	Logging   LogConfig `envconfig:"LOG"`
	Cache     CacheConfig
	// LoadFiles are JSON-lines span files loaded into the store at startup.
	LoadFiles []string `envconfig:"LOAD_FILES"`
}

// CollectorConfig holds the OTLP ingestion endpoint configuration.
type CollectorConfig struct {
	Host string `envconfig:"HOST" default:"localhost"`
	Port string `envconfig:"PORT" default:"3000"`
	// GRPCPort enables OTLP/gRPC when set.
	GRPCPort        string `envconfig:"GRPC_PORT"`
	MaxRequestBytes int64  `envconfig:"MAX_REQUEST_BYTES" default:"16777216"`
}

type QueryConfig struct {
	Addr string `envconfig:"ADDR" default:":8081"`
}

type LogConfig struct {
	Level       string `envconfig:"LEVEL" default:"info"`
	Development bool   `envconfig:"DEV" default:"false"`
}

type CacheConfig struct {
	MaxCost int64 `envconfig:"MAX_COST" default:"1048576"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func Default() *Config {
	return &Config{
		Collector: CollectorConfig{
			Host:            "localhost",
			Port:            "3000",
			MaxRequestBytes: 16 << 20,
		},
		Query: QueryConfig{
			Addr: ":8081",
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		Cache: CacheConfig{
			MaxCost: 1 << 20,
		},
	}
}

func (c *Config) Validate() error {
	if c.Collector.MaxRequestBytes <= 0 {
		return fmt.Errorf("%w: collector max request bytes must be positive, got %d", ErrInvalidConfig, c.Collector.MaxRequestBytes)
	}
	if c.Cache.MaxCost <= 0 {
		return fmt.Errorf("%w: cache max cost must be positive, got %d", ErrInvalidConfig, c.Cache.MaxCost)
	}
	return nil
}
