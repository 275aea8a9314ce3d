package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for spotifetch
type Config struct {
	Spotify SpotifyConfig `yaml:"spotify" json:"spotify"`
	HTTP    HTTPConfig    `yaml:"http" json:"http"`
	Retry   RetryConfig   `yaml:"retry" json:"retry"`
	Fetch   FetchConfig   `yaml:"fetch" json:"fetch"`
	Output  OutputConfig  `yaml:"output" json:"output"`
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// SpotifyConfig holds API endpoints and client credentials
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id" json:"client_id"`
	ClientSecret string `yaml:"client_secret" json:"client_secret"`
	AuthURL      string `yaml:"auth_url" json:"auth_url"`
	APIBaseURL   string `yaml:"api_base_url" json:"api_base_url"`
	Market       string `yaml:"market" json:"market"`
}

// HTTPConfig holds transport settings
type HTTPConfig struct {
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// RetryConfig holds the retry budget and jitter bounds. Jitter bounds are
// whole seconds; every wait is at least one.
type RetryConfig struct {
	MaxRetries int `yaml:"max_retries" json:"max_retries"`
	JitterMin  int `yaml:"jitter_min" json:"jitter_min"`
	JitterMax  int `yaml:"jitter_max" json:"jitter_max"`
}

// FetchConfig controls how track details are fetched
type FetchConfig struct {
	Concurrency int `yaml:"concurrency" json:"concurrency"`
}

// OutputConfig holds export settings
type OutputConfig struct {
	Format string `yaml:"format" json:"format"`
	Path   string `yaml:"path" json:"path"`
}

// MetricsConfig holds the Prometheus listener address; empty disables it
type MetricsConfig struct {
	Addr string `yaml:"addr" json:"addr"`
}

// LoggingConfig holds logging configuration. RetryLevel, when set, overrides
// Level for the retry diagnostics channel.
type LoggingConfig struct {
	Level      string `yaml:"level" json:"level"`
	File       string `yaml:"file" json:"file"`
	RetryLevel string `yaml:"retry_level" json:"retry_level"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Spotify: SpotifyConfig{
			AuthURL:    "https://accounts.spotify.com/api/token",
			APIBaseURL: "https://api.spotify.com/v1",
		},
		HTTP: HTTPConfig{
			Timeout: 30 * time.Second,
		},
		Retry: RetryConfig{
			MaxRetries: 10,
			JitterMin:  1,
			JitterMax:  3,
		},
		Fetch: FetchConfig{
			Concurrency: 1,
		},
		Output: OutputConfig{
			Format: "json",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	// Variable names shared with other Spotify tooling
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Spotify.ClientSecret = v
	}

	if v := os.Getenv("SPOTIFETCH_CLIENT_ID"); v != "" {
		c.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFETCH_CLIENT_SECRET"); v != "" {
		c.Spotify.ClientSecret = v
	}
	if v := os.Getenv("SPOTIFETCH_MARKET"); v != "" {
		c.Spotify.Market = v
	}

	var errs []error
	if v := os.Getenv("SPOTIFETCH_MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("SPOTIFETCH_MAX_RETRIES: %w", err))
		} else {
			c.Retry.MaxRetries = n
		}
	}
	if v := os.Getenv("SPOTIFETCH_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("SPOTIFETCH_CONCURRENCY: %w", err))
		} else {
			c.Fetch.Concurrency = n
		}
	}
	if v := os.Getenv("SPOTIFETCH_HTTP_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("SPOTIFETCH_HTTP_TIMEOUT: %w", err))
		} else {
			c.HTTP.Timeout = d
		}
	}

	if v := os.Getenv("SPOTIFETCH_OUTPUT_FORMAT"); v != "" {
		c.Output.Format = v
	}
	if v := os.Getenv("SPOTIFETCH_OUTPUT_PATH"); v != "" {
		c.Output.Path = v
	}
	if v := os.Getenv("SPOTIFETCH_METRICS_ADDR"); v != "" {
		c.Metrics.Addr = v
	}
	if v := os.Getenv("SPOTIFETCH_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("SPOTIFETCH_RETRY_LOG_LEVEL"); v != "" {
		c.Logging.RetryLevel = v
	}

	return errors.Join(errs...)
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = FindConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// FindConfigFile searches for a config file in standard locations
func FindConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".spotifetch.yaml",
		".spotifetch.yml",
		filepath.Join(home, ".config", "spotifetch", "config.yaml"),
		filepath.Join(home, ".config", "spotifetch", "config.yml"),
		filepath.Join(home, ".spotifetch.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// DefaultConfigPath is where `config init` writes a new file
func DefaultConfigPath() string {
	return filepath.Join(os.Getenv("HOME"), ".config", "spotifetch", "config.yaml")
}

// Validate checks if the configuration is valid. Credentials are not
// checked here because they may come from the credential store.
func (c *Config) Validate() error {
	var errs []error

	if c.Spotify.AuthURL == "" {
		errs = append(errs, errors.New("spotify auth url is required"))
	}
	if c.Spotify.APIBaseURL == "" {
		errs = append(errs, errors.New("spotify api base url is required"))
	}

	if c.HTTP.Timeout <= 0 {
		errs = append(errs, errors.New("http timeout must be positive"))
	}

	if c.Retry.MaxRetries <= 0 {
		errs = append(errs, errors.New("max retries must be positive"))
	}
	if c.Retry.JitterMin < 1 {
		errs = append(errs, errors.New("jitter min must be at least 1"))
	}
	if c.Retry.JitterMax < c.Retry.JitterMin {
		errs = append(errs, errors.New("jitter max must not be below jitter min"))
	}

	if c.Fetch.Concurrency <= 0 {
		errs = append(errs, errors.New("fetch concurrency must be positive"))
	}
	if c.Fetch.Concurrency > 16 {
		errs = append(errs, errors.New("fetch concurrency should not exceed 16"))
	}

	validFormats := map[string]bool{"json": true, "yaml": true, "sqlite": true}
	if !validFormats[strings.ToLower(c.Output.Format)] {
		errs = append(errs, fmt.Errorf("invalid output format %q", c.Output.Format))
	}
	if strings.EqualFold(c.Output.Format, "sqlite") && c.Output.Path == "" {
		errs = append(errs, errors.New("sqlite output requires an output path"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}
	if c.Logging.RetryLevel != "" && !validLogLevels[strings.ToLower(c.Logging.RetryLevel)] {
		errs = append(errs, errors.New("invalid retry log level"))
	}

	return errors.Join(errs...)
}

// HasCredentials reports whether both client id and secret are set
func (c *Config) HasCredentials() bool {
	return c.Spotify.ClientID != "" && c.Spotify.ClientSecret != ""
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration.
// Only flags the user actually set should be present in the map.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["client-id"].(string); ok && v != "" {
		c.Spotify.ClientID = v
	}
	if v, ok := flags["client-secret"].(string); ok && v != "" {
		c.Spotify.ClientSecret = v
	}
	if v, ok := flags["market"].(string); ok && v != "" {
		c.Spotify.Market = v
	}
	if v, ok := flags["max-retries"].(int); ok && v > 0 {
		c.Retry.MaxRetries = v
	}
	if v, ok := flags["concurrency"].(int); ok && v > 0 {
		c.Fetch.Concurrency = v
	}
	if v, ok := flags["timeout"].(time.Duration); ok && v > 0 {
		c.HTTP.Timeout = v
	}
	if v, ok := flags["format"].(string); ok && v != "" {
		c.Output.Format = v
	}
	if v, ok := flags["output"].(string); ok && v != "" {
		c.Output.Path = v
	}
	if v, ok := flags["metrics-addr"].(string); ok && v != "" {
		c.Metrics.Addr = v
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
	if v, ok := flags["retry-log-level"].(string); ok && v != "" {
		c.Logging.RetryLevel = v
	}
}

// Load loads configuration from all sources with proper precedence.
// Precedence order: command line flags > environment variables > .env file > config file > defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".spotifetch.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
