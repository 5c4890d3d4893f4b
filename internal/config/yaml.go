package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// YAMLConfig represents the top-level stepd configuration file.
type YAMLConfig struct {
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	MCP       MCPConfig       `yaml:"mcp"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig controls the HTTP server behavior.
type ServerConfig struct {
	Host            string     `yaml:"host"`
	Port            int        `yaml:"port"`
	BaseURL         string     `yaml:"base_url"`
	DataDir         string     `yaml:"data_dir"`
	ShutdownTimeout string     `yaml:"shutdown_timeout"`
	CORS            CORSConfig `yaml:"cors"`
}

// CORSConfig controls cross-origin resource sharing settings.
type CORSConfig struct {
	Origins []string `yaml:"origins"`
	Methods []string `yaml:"methods"`
}

// AuthConfig controls the magic-link and session lifecycle.
type AuthConfig struct {
	LoginTokenTTL string `yaml:"login_token_ttl"`
	SessionTTL    string `yaml:"session_ttl"`
	MCPTokenTTL   string `yaml:"mcp_token_ttl"`
}

// RateLimitConfig controls the per-identity budgets on the auth endpoints.
// Enabled=false is for tests and local development only.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	IssuancePerWindow int  `yaml:"issuance_per_window"`
	ConsumePerWindow  int  `yaml:"consume_per_window"`
	AdminPerWindow    int  `yaml:"admin_per_window"`
	GlobalPerIPMinute int  `yaml:"global_per_ip_minute"`
}

// MCPConfig controls the MCP (Model Context Protocol) surface.
type MCPConfig struct {
	Enabled bool `yaml:"enabled"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadYAMLConfig reads and parses a YAML configuration file. Environment
// variables referenced as ${VAR_NAME} in the file are expanded before parsing.
func LoadYAMLConfig(path string) (*YAMLConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	content := os.ExpandEnv(string(data))

	var cfg YAMLConfig
	if err := yaml.Unmarshal([]byte(content), &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return &cfg, nil
}

// DefaultYAMLConfig returns a YAMLConfig pre-filled with sensible defaults.
func DefaultYAMLConfig() *YAMLConfig {
	return &YAMLConfig{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			BaseURL:         "http://localhost:8080",
			ShutdownTimeout: "30s",
			CORS: CORSConfig{
				Origins: []string{"*"},
				Methods: []string{"GET", "POST", "PUT", "DELETE"},
			},
		},
		Auth: AuthConfig{
			LoginTokenTTL: "30m",
			SessionTTL:    "168h",
			MCPTokenTTL:   "720h",
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			IssuancePerWindow: 3,
			ConsumePerWindow:  10,
			AdminPerWindow:    30,
			GlobalPerIPMinute: 120,
		},
		MCP: MCPConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// WriteDefaultConfig writes the default configuration to a YAML file.
func WriteDefaultConfig(path string) error {
	cfg := DefaultYAMLConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ParseDuration parses a duration string, returning fallback on empty or
// invalid input.
func ParseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
