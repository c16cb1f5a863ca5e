// Package config defines the sprocket application configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level sprocket configuration.
type Config struct {
	Server    ServerConfig `json:"server" yaml:"server"`
	Auth      AuthConfig   `json:"auth" yaml:"auth"`
	Worker    WorkerConfig `json:"worker" yaml:"worker"`
	DataDir   string       `json:"data_dir" yaml:"data_dir"`       // database + oplog location
	UnitsDir  string       `json:"units_dir" yaml:"units_dir"`     // unit-of-work directories root
	Contracts string       `json:"contracts,omitempty" yaml:"contracts"` // contract YAML path; empty = built-in pipeline
	LogLevel  string       `json:"log_level" yaml:"log_level"`
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr"` // listen address, e.g., ":9290"
}

// AuthConfig controls API authentication.
type AuthConfig struct {
	JWTSecret string `json:"jwt_secret" yaml:"jwt_secret"`
	AdminUser string `json:"admin_user" yaml:"admin_user"`
	AdminPass string `json:"admin_pass" yaml:"admin_pass"` // bcrypt hash
}

// WorkerConfig describes the external worker process invoked per phase.
type WorkerConfig struct {
	Command string        `json:"command" yaml:"command"`
	Args    []string      `json:"args,omitempty" yaml:"args"`
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout"` // zero blocks indefinitely
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: ":9290",
		},
		Auth: AuthConfig{
			AdminUser: "admin",
		},
		DataDir:  "./data",
		UnitsDir: ".",
		LogLevel: "info",
	}
}

// Load reads a YAML config file and returns the parsed configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
