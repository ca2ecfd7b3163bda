package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Sweep    SweepConfig    `yaml:"sweep"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
}

// SweepConfig controls the background sweep that fails stale pending
// requests past their expiry.
type SweepConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

// Default returns the configuration used when no config file is present.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Port: "8080"},
		Database: DatabaseConfig{Path: "liquidation.db"},
		Auth: AuthConfig{
			JWTSecret: "liquidation-secret-key",
			APIKey:    "local-api-key",
			APISecret: "local-api-secret",
		},
		Sweep:    SweepConfig{Enabled: true, Interval: 5 * time.Minute},
	}
}

// Load reads the YAML config at path, applies environment overrides and
// validates the result. A missing file falls back to defaults so local
// runs work without any setup.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = strings.TrimSpace(v)
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		cfg.Database.Path = strings.TrimSpace(v)
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = strings.TrimSpace(v)
	}
	if v := os.Getenv("API_KEY"); v != "" {
		cfg.Auth.APIKey = strings.TrimSpace(v)
	}
	if v := os.Getenv("API_SECRET"); v != "" {
		cfg.Auth.APISecret = strings.TrimSpace(v)
	}
}

func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}
	if cfg.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if cfg.Auth.APIKey == "" || cfg.Auth.APISecret == "" {
		return fmt.Errorf("auth.api_key and auth.api_secret are required")
	}
	if cfg.Sweep.Enabled && cfg.Sweep.Interval <= 0 {
		return fmt.Errorf("sweep.interval must be positive when the sweep is enabled")
	}
	return nil
}
