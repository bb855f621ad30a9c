// Package config provides configuration loading for the entityql server.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete server configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	GraphQL GraphQLConfig `yaml:"graphql"`
	Limits  LimitsConfig  `yaml:"limits"`
	Feed    FeedConfig    `yaml:"feed"`
	Store   StoreConfig   `yaml:"store"`
	Log     LogConfig     `yaml:"log"`
	OTel    OTelConfig    `yaml:"otel"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// ServerConfig configures the HTTP endpoint.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	Timeout      time.Duration `yaml:"timeout"`
	Pretty       bool          `yaml:"pretty"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
	// CORSOrigins lists allowed origins; empty disables CORS.
	CORSOrigins []string `yaml:"cors_origins"`
}

// GraphQLConfig configures schema loading and query compilation.
type GraphQLConfig struct {
	// Schema is the path of the SDL file to serve.
	Schema        string `yaml:"schema"`
	Introspection bool   `yaml:"introspection"`
	MaxFirst      uint32 `yaml:"max_first"`
	MaxSkip       uint32 `yaml:"max_skip"`
	// Block pins every query to one block. 0 follows the latest block.
	Block int32 `yaml:"block"`
}

// LimitsConfig bounds the work the server takes on.
type LimitsConfig struct {
	MaxConcurrentQueries int64 `yaml:"max_concurrent_queries"`
	// ResultCacheSize is the number of cached results; 0 disables the cache.
	ResultCacheSize int `yaml:"result_cache_size"`
}

// FeedConfig configures the entity change feed.
type FeedConfig struct {
	// NATSURL selects the NATS feed; empty uses the in-process feed.
	NATSURL       string `yaml:"nats_url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// StoreConfig configures the entity store.
type StoreConfig struct {
	// Fixtures is a YAML file of blocks loaded into the in-memory store.
	Fixtures string `yaml:"fixtures"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

type OTelConfig struct {
	// Endpoint of the OTLP gRPC collector; empty disables tracing.
	Endpoint string `yaml:"endpoint"`
	Service  string `yaml:"service"`
}

type MetricsConfig struct {
	// Addr serves /metrics on its own listener; empty serves it next to /graphql.
	Addr string `yaml:"addr"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         ":8000",
			Timeout:      10 * time.Second,
			MaxBodyBytes: 1 << 20,
		},
		GraphQL: GraphQLConfig{
			Introspection: true,
			MaxFirst:      1000,
			MaxSkip:       5000,
		},
		Limits: LimitsConfig{
			MaxConcurrentQueries: 16,
			ResultCacheSize:      1024,
		},
		Feed: FeedConfig{
			SubjectPrefix: "entityql.changes",
		},
		Log: LogConfig{
			Level: "info",
		},
		OTel: OTelConfig{
			Service: "entityql",
		},
	}
}

// Load reads a YAML file over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Server.Timeout < 0 {
		errs = append(errs, errors.New("server.timeout must not be negative"))
	}
	if c.Server.MaxBodyBytes < 0 {
		errs = append(errs, errors.New("server.max_body_bytes must not be negative"))
	}
	if c.GraphQL.Schema == "" {
		errs = append(errs, errors.New("graphql.schema is required"))
	}
	if c.GraphQL.MaxFirst == 0 {
		errs = append(errs, errors.New("graphql.max_first must be positive"))
	}
	if c.GraphQL.Block < 0 {
		errs = append(errs, errors.New("graphql.block must not be negative"))
	}
	if c.Limits.MaxConcurrentQueries < 1 {
		errs = append(errs, errors.New("limits.max_concurrent_queries must be at least 1"))
	}
	if c.Limits.ResultCacheSize < 0 {
		errs = append(errs, errors.New("limits.result_cache_size must not be negative"))
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "trace", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	if c.Metrics.Addr != "" && c.Metrics.Addr == c.Server.Addr {
		errs = append(errs, errors.New("metrics.addr must differ from server.addr"))
	}
	return errors.Join(errs...)
}
