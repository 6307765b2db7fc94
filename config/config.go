// Package config loads the rpcd daemon configuration from YAML.
package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"rpccore/server"
)

// Config is the complete daemon configuration.
type Config struct {
	Network       string `yaml:"network"`
	Listen        string `yaml:"listen"`
	AdvertiseAddr string `yaml:"advertise_addr"`

	Etcd EtcdConfig `yaml:"etcd"`

	RateLimit       RateLimitConfig `yaml:"rate_limit"`
	RequestTimeout  time.Duration   `yaml:"request_timeout"`
	MaxAliasHops    int             `yaml:"max_alias_hops"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout"`

	LogLevel string `yaml:"log_level"` // debug, info, warn or error
	Metrics  string `yaml:"metrics"`   // address of the /metrics endpoint, empty disables it
}

// EtcdConfig enables discovery when Endpoints is non-empty.
type EtcdConfig struct {
	Endpoints   []string      `yaml:"endpoints"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
	LeaseTTL    time.Duration `yaml:"lease_ttl"`
}

// RateLimitConfig is a token bucket; a zero rate disables limiting.
type RateLimitConfig struct {
	Rate  float64 `yaml:"rate"`
	Burst int     `yaml:"burst"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Network: "tcp",
		Listen:  "127.0.0.1:9090",
		Etcd: EtcdConfig{
			DialTimeout: 5 * time.Second,
			LeaseTTL:    10 * time.Second,
		},
		RequestTimeout:  5 * time.Second,
		MaxAliasHops:    server.DefaultMaxAliasHops,
		ShutdownTimeout: 10 * time.Second,
		LogLevel:        "info",
	}
}

// Validate checks the configuration for values the daemon cannot run with.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return errors.New("listen address is required")
	}
	if c.MaxAliasHops <= 0 {
		return errors.Errorf("max_alias_hops must be positive, got %d", c.MaxAliasHops)
	}
	if c.RequestTimeout < 0 || c.ShutdownTimeout < 0 {
		return errors.New("timeouts must not be negative")
	}
	if c.RateLimit.Rate < 0 {
		return errors.Errorf("rate_limit.rate must not be negative, got %v", c.RateLimit.Rate)
	}
	if c.RateLimit.Rate > 0 && c.RateLimit.Burst <= 0 {
		return errors.New("rate_limit.burst must be positive when a rate is set")
	}
	if len(c.Etcd.Endpoints) > 0 && c.Etcd.LeaseTTL < time.Second {
		return errors.Errorf("etcd.lease_ttl must be at least 1s, got %s", c.Etcd.LeaseTTL)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return errors.Errorf("unknown log_level %q", c.LogLevel)
	}
	return nil
}

// Decode parses YAML on top of the defaults and validates the result.
func Decode(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

// Load reads and decodes the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Decode(data)
}
