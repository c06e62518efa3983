package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete dispatchd configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Pool    PoolConfig    `yaml:"pool"`
	Logging LogConfig     `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Admin   AdminConfig   `yaml:"admin"`
}

// ServerConfig configures the HTTP front end (spec §6's http_listen).
type ServerConfig struct {
	Address string `yaml:"address"`
}

// PoolConfig configures the static worker pool (spec §4.6). Socket is
// the Unix-domain path workers dial back to; Interpreter and Script
// are spawned as `interpreter script socket` for each of Size workers.
type PoolConfig struct {
	Socket         string   `yaml:"socket"`
	Interpreter    string   `yaml:"interpreter"`
	Script         string   `yaml:"script"`
	Size           int      `yaml:"size"`
	RequestTimeout Duration `yaml:"request_timeout"`
}

// LogConfig configures the slog backend.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// MetricsConfig configures the /metrics surface.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// AdminConfig configures the admin stats WebSocket stream.
type AdminConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Path         string   `yaml:"path"`
	PushInterval Duration `yaml:"push_interval"`
}

// Duration is a time.Duration that supports YAML string unmarshaling.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads config from a YAML file, applying it over Default().
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server.address is required")
	}
	if c.Pool.Socket == "" {
		return fmt.Errorf("pool.socket is required")
	}
	if c.Pool.Interpreter == "" {
		return fmt.Errorf("pool.interpreter is required")
	}
	if c.Pool.Size < 1 {
		return fmt.Errorf("pool.size must be >= 1, got %d", c.Pool.Size)
	}
	if c.Admin.Enabled && c.Admin.Path == "" {
		return fmt.Errorf("admin.path is required when admin is enabled")
	}
	return nil
}
