// Package config loads the fedtrust daemon configuration from a YAML file and environment
// variables.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/oidf-tools/fedtrust/entity"
)

// Config represents the daemon configuration
type Config struct {
	// TrustAnchor is the entity identifier of the trust anchor all chains must terminate at.
	TrustAnchor string `yaml:"trust_anchor" envconfig:"TRUST_ANCHOR"`

	Server   ServerConfig   `yaml:"server" envconfig:"SERVER"`
	Cache    CacheConfig    `yaml:"cache" envconfig:"CACHE"`
	Resolver ResolverConfig `yaml:"resolver" envconfig:"RESOLVER"`
	Logging  LoggingConfig  `yaml:"logging" envconfig:"LOGGING"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host string `yaml:"host" envconfig:"HOST"`
	Port int    `yaml:"port" envconfig:"PORT"`
}

// Address returns the server address in host:port format
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// CacheConfig contains validation cache configuration
type CacheConfig struct {
	// TTL is how long validation results are cached
	TTL time.Duration `yaml:"ttl" envconfig:"TTL"`
	// SweepInterval is how often expired entries are evicted in the background
	SweepInterval time.Duration `yaml:"sweep_interval" envconfig:"SWEEP_INTERVAL"`
}

// ResolverConfig contains trust chain resolution configuration
type ResolverConfig struct {
	// RequestTimeout bounds each federation HTTP request
	RequestTimeout time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT"`
	// MaxDepth bounds the authority_hints walk
	MaxDepth int `yaml:"max_depth" envconfig:"MAX_DEPTH"`
	// InsecureSkipTLSVerify disables TLS certificate verification; for test federations only
	InsecureSkipTLSVerify bool `yaml:"insecure_skip_tls_verify" envconfig:"INSECURE_SKIP_TLS_VERIFY"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LEVEL"`   // debug, info, warn, error
	Format string `yaml:"format" envconfig:"FORMAT"` // json, text
}

// Load loads configuration from file and environment variables. Environment variables, prefixed
// with FEDTRUST_, override the file; the file overrides defaults.
func Load(configFile string) (*Config, error) {
	cfg := defaultConfig()

	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			// File doesn't exist, that's ok - we'll use defaults and env vars
		} else {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	if err := envconfig.Process("FEDTRUST", cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible default values
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Cache: CacheConfig{
			TTL:           time.Hour,
			SweepInterval: 10 * time.Minute,
		},
		Resolver: ResolverConfig{
			RequestTimeout: 10 * time.Second,
			MaxDepth:       10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.TrustAnchor == "" {
		return fmt.Errorf("trust_anchor is required")
	}

	if _, err := entity.NewIdentifier(c.TrustAnchor); err != nil {
		return fmt.Errorf("trust_anchor is not a valid entity identifier: %w", err)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache ttl must be positive: %s", c.Cache.TTL)
	}

	if c.Cache.SweepInterval <= 0 {
		return fmt.Errorf("cache sweep_interval must be positive: %s", c.Cache.SweepInterval)
	}

	if c.Resolver.RequestTimeout <= 0 {
		return fmt.Errorf("resolver request_timeout must be positive: %s", c.Resolver.RequestTimeout)
	}

	if c.Resolver.MaxDepth < 1 {
		return fmt.Errorf("resolver max_depth must be at least 1: %d", c.Resolver.MaxDepth)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid logging format: %s", c.Logging.Format)
	}

	return nil
}
