// Package config provides configuration loading and validation for the
// ranking API server. It uses koanf to merge environment variables with
// optional file overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all configuration values for the API server.
type Config struct {
	// Server settings
	Port int    `koanf:"port"`
	Env  string `koanf:"env"`

	// Database
	DatabaseURL string `koanf:"database_url"`

	// Redis, used for the preview cache. Optional: empty falls back to the
	// in-process cache.
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`

	// Analysis collaborator
	AnalyzerEndpoint       string `koanf:"analyzer_endpoint"`
	AnalyzerAPIKey         string `koanf:"analyzer_api_key"`
	AnalyzerModel          string `koanf:"analyzer_model"`
	AnalyzerTimeoutSeconds int    `koanf:"analyzer_timeout_seconds"`

	// CalibrationPath points at an optional JSON weight calibration file.
	CalibrationPath string `koanf:"calibration_path"`

	// PreviewTTLHours bounds how long cached previews stay applicable.
	PreviewTTLHours int `koanf:"preview_ttl_hours"`
}

// Configuration validation errors.
var (
	ErrMissingDatabaseURL    = errors.New("DATABASE_URL is required")
	ErrMissingAnalyzerAPIKey = errors.New("ANALYZER_API_KEY is required")
	ErrInvalidPort           = errors.New("PORT must be a valid integer")
	ErrInvalidTimeout        = errors.New("ANALYZER_TIMEOUT_SECONDS must be a valid integer")
)

// Default values for non-secret configuration.
const (
	DefaultPort                   = 8080
	DefaultEnv                    = "development"
	DefaultAnalyzerEndpoint       = "https://openrouter.ai/api/v1/chat/completions"
	DefaultAnalyzerModel          = "anthropic/claude-3.5-sonnet"
	DefaultAnalyzerTimeoutSeconds = 45
	DefaultPreviewTTLHours        = 24
)

// Load reads configuration from environment variables and an optional
// config file. Environment variables take precedence over file values.
// Returns the loaded config and a slice of validation errors (empty if
// valid). If a config file path is provided and the file cannot be
// loaded, an error is returned.
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")
	var loadErrs []error

	// Load from YAML file first if provided (lower precedence)
	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	port, portErr := getEnvIntOrDefault("PORT", k.Int("port"), DefaultPort, ErrInvalidPort)
	if portErr != nil {
		loadErrs = append(loadErrs, portErr)
	}
	timeout, timeoutErr := getEnvIntOrDefault("ANALYZER_TIMEOUT_SECONDS", k.Int("analyzer_timeout_seconds"), DefaultAnalyzerTimeoutSeconds, ErrInvalidTimeout)
	if timeoutErr != nil {
		loadErrs = append(loadErrs, timeoutErr)
	}
	previewTTL, ttlErr := getEnvIntOrDefault("PREVIEW_TTL_HOURS", k.Int("preview_ttl_hours"), DefaultPreviewTTLHours, ErrInvalidTimeout)
	if ttlErr != nil {
		loadErrs = append(loadErrs, ttlErr)
	}

	cfg := &Config{
		Port:                   port,
		Env:                    getEnvOrDefault("ENV", k.String("env"), DefaultEnv),
		DatabaseURL:            getEnvOrKoanf("DATABASE_URL", k, "database_url"),
		RedisAddr:              getEnvOrKoanf("REDIS_ADDR", k, "redis_addr"),
		RedisPassword:          getEnvOrKoanf("REDIS_PASSWORD", k, "redis_password"),
		AnalyzerEndpoint:       getEnvOrDefault("ANALYZER_ENDPOINT", k.String("analyzer_endpoint"), DefaultAnalyzerEndpoint),
		AnalyzerAPIKey:         getEnvOrKoanf("ANALYZER_API_KEY", k, "analyzer_api_key"),
		AnalyzerModel:          getEnvOrDefault("ANALYZER_MODEL", k.String("analyzer_model"), DefaultAnalyzerModel),
		AnalyzerTimeoutSeconds: timeout,
		CalibrationPath:        getEnvOrKoanf("CALIBRATION_PATH", k, "calibration_path"),
		PreviewTTLHours:        previewTTL,
	}

	errs := cfg.Validate()
	errs = append(loadErrs, errs...)

	return cfg, errs
}

// AnalyzerTimeout returns the analyzer timeout as a duration.
func (c *Config) AnalyzerTimeout() time.Duration {
	return time.Duration(c.AnalyzerTimeoutSeconds) * time.Second
}

// PreviewTTL returns the preview cache TTL as a duration.
func (c *Config) PreviewTTL() time.Duration {
	return time.Duration(c.PreviewTTLHours) * time.Hour
}

// getEnvOrKoanf returns the environment variable value if set, otherwise
// the koanf value.
func getEnvOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	return k.String(koanfKey)
}

// getEnvOrDefault returns the environment variable value if set,
// otherwise the koanf value, or default.
func getEnvOrDefault(envKey string, koanfVal string, defaultVal string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvIntOrDefault returns the environment variable as int if set,
// otherwise the koanf value, or default. Returns an error if the
// environment variable is set but cannot be parsed as an integer.
func getEnvIntOrDefault(envKey string, koanfVal int, defaultVal int, parseErr error) (int, error) {
	if val := os.Getenv(envKey); val != "" {
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", envKey, parseErr)
		}
		return i, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// Validate checks that all required configuration values are present.
// Returns a slice of validation errors (empty if valid).
func (c *Config) Validate() []error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, ErrMissingDatabaseURL)
	}
	if c.AnalyzerAPIKey == "" {
		errs = append(errs, ErrMissingAnalyzerAPIKey)
	}

	return errs
}

// LogSummary returns a summary of the configuration suitable for logging.
// All secrets are masked to prevent accidental exposure.
func (c *Config) LogSummary() map[string]string {
	return map[string]string{
		"port":              fmt.Sprintf("%d", c.Port),
		"env":               c.Env,
		"database_url":      maskDatabaseURL(c.DatabaseURL),
		"redis_addr":        c.RedisAddr,
		"redis_password":    maskSecret(c.RedisPassword),
		"analyzer_endpoint": c.AnalyzerEndpoint,
		"analyzer_api_key":  maskSecret(c.AnalyzerAPIKey),
		"analyzer_model":    c.AnalyzerModel,
		"analyzer_timeout":  fmt.Sprintf("%ds", c.AnalyzerTimeoutSeconds),
		"calibration_path":  c.CalibrationPath,
		"preview_ttl":       fmt.Sprintf("%dh", c.PreviewTTLHours),
	}
}

// maskSecret masks a secret value, showing only the first 4 characters
// followed by ****. If the secret is shorter than 8 characters, it's
// fully masked.
func maskSecret(s string) string {
	if s == "" {
		return "<not set>"
	}
	if len(s) < 8 {
		return "****"
	}
	return s[:4] + "****"
}

// maskDatabaseURL masks the password in a database URL. Supports both
// postgres:// and postgresql:// schemes.
func maskDatabaseURL(s string) string {
	if s == "" {
		return "<not set>"
	}

	schemeEnd := strings.Index(s, "://")
	if schemeEnd == -1 {
		return maskSecret(s)
	}

	rest := s[schemeEnd+3:]
	atIndex := strings.Index(rest, "@")
	if atIndex == -1 {
		return s // No credentials in URL
	}

	colonIndex := strings.Index(rest[:atIndex], ":")
	if colonIndex == -1 {
		return s // No password (only username)
	}

	scheme := s[:schemeEnd+3]
	user := rest[:colonIndex]
	hostAndPath := rest[atIndex:]

	return scheme + user + ":****" + hostAndPath
}
