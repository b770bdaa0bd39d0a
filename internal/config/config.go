// Package config loads and validates the login configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultIssuer is the production identity provider.
	DefaultIssuer = "https://auth.openai.com"

	// DefaultClientID is the public OAuth client registered for the CLI.
	DefaultClientID = "app_EMoamEEZ73f0CkXaXp7hrann"

	// DefaultPort is the loopback port registered in the client's redirect URIs.
	DefaultPort = 1455

	maxCallbackTimeout = time.Hour
)

// Config represents the complete application configuration
type Config struct {
	Issuer   string      `yaml:"issuer" env:"CODEX_LOGIN_ISSUER"`
	ClientID string      `yaml:"client_id" env:"CODEX_LOGIN_CLIENT_ID"`
	Home     string      `yaml:"home" env:"CODEX_HOME"`
	Login    LoginConfig `yaml:"login"`
	Log      LogConfig   `yaml:"log"`
}

// LoginConfig controls the interactive login flow
type LoginConfig struct {
	Port            int           `yaml:"port" env:"CODEX_LOGIN_PORT"`                 // 0 = OS-assigned
	OpenBrowser     bool          `yaml:"open_browser" env:"CODEX_LOGIN_OPEN_BROWSER"` // launch the system browser
	CallbackTimeout time.Duration `yaml:"callback_timeout" env:"CODEX_LOGIN_CALLBACK_TIMEOUT"`
	ExchangeTimeout time.Duration `yaml:"exchange_timeout" env:"CODEX_LOGIN_EXCHANGE_TIMEOUT"`
}

// LogConfig defines logging settings
type LogConfig struct {
	Level  string `yaml:"level" env:"CODEX_LOGIN_LOG_LEVEL"`   // debug, info, warn, error
	Format string `yaml:"format" env:"CODEX_LOGIN_LOG_FORMAT"` // json, text
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	// Read file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return parse(data)
}

// LoadOrDefault behaves like Load but falls back to the defaults (still
// subject to environment overrides) when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Debug("config file not found, using defaults", "path", path)
		return parse(nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return parse(data)
}

func parse(data []byte) (*Config, error) {
	// Parse YAML
	cfg := DefaultConfig()
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Apply environment variable overrides
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	cfg.Home = expandHome(cfg.Home)

	// Validate
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Issuer:   DefaultIssuer,
		ClientID: DefaultClientID,
		Home:     defaultHome(),
		Login: LoginConfig{
			Port:            DefaultPort,
			OpenBrowser:     true,
			CallbackTimeout: 10 * time.Minute,
			ExchangeTimeout: 30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefaultPath returns the config file location inside the default home.
func DefaultPath() string {
	return filepath.Join(defaultHome(), "login.yaml")
}

// applyEnvOverrides applies environment variable overrides. Unset variables
// leave the file/default values untouched.
func (c *Config) applyEnvOverrides() error {
	if err := env.Parse(c); err != nil {
		return fmt.Errorf("failed to parse environment overrides: %w", err)
	}
	return nil
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Issuer == "" {
		return fmt.Errorf("issuer is required")
	}
	if !strings.HasPrefix(c.Issuer, "http://") && !strings.HasPrefix(c.Issuer, "https://") {
		return fmt.Errorf("issuer must be a valid HTTP(S) URL")
	}

	if c.ClientID == "" {
		return fmt.Errorf("client_id is required")
	}

	if c.Home == "" {
		return fmt.Errorf("home is required")
	}

	if c.Login.Port < 0 || c.Login.Port > 65535 {
		return fmt.Errorf("login.port must be between 0 and 65535")
	}
	if c.Login.CallbackTimeout <= 0 {
		return fmt.Errorf("login.callback_timeout must be positive")
	}
	if c.Login.CallbackTimeout > maxCallbackTimeout {
		return fmt.Errorf("login.callback_timeout should not exceed %s", maxCallbackTimeout)
	}
	if c.Login.ExchangeTimeout <= 0 {
		return fmt.Errorf("login.exchange_timeout must be positive")
	}

	// Validate log config
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("log.level must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("log.format must be one of: json, text")
	}

	return nil
}

// SetupLogging configures the global slog logger based on the LogConfig.
func SetupLogging(cfg *LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}

func defaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".codex"
	}
	return filepath.Join(home, ".codex")
}

// expandHome resolves a leading "~/" against the user's home directory.
func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
