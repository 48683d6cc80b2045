package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/hannes/yaak-anonymizer/pii"
	detectors "github.com/hannes/yaak-anonymizer/pii/detectors"
)

// LoggingConfig holds logging configuration options
type LoggingConfig struct {
	LogRequests   bool `json:"log_requests"`    // Log request metadata
	LogPIIChanges bool `json:"log_pii_changes"` // Log per-request entity counts
	LogVerbose    bool `json:"log_verbose"`     // Log original and anonymized payloads
	DebugMode     bool `json:"debug_mode"`      // Enable debug logging for database operations
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Enabled      bool   `json:"enabled"`        // Whether to use database storage
	Host         string `json:"host"`           // Database host
	Port         int    `json:"port"`           // Database port
	Database     string `json:"database"`       // Database name
	Username     string `json:"username"`       // Database username
	Password     string `json:"password"`       // Database password
	SSLMode      string `json:"ssl_mode"`       // SSL mode (disable, require, etc.)
	MaxOpenConns int    `json:"max_open_conns"` // Maximum open connections
	MaxIdleConns int    `json:"max_idle_conns"` // Maximum idle connections
	MaxLifetime  int    `json:"max_lifetime"`   // Connection max lifetime in seconds
	CleanupHours int    `json:"cleanup_hours"`  // Hours after which to cleanup old audit records
}

// AnalyzerConfig selects the detector and the default analysis options
type AnalyzerConfig struct {
	DetectorName   string   `json:"detector_name"`
	ModelBaseURL   string   `json:"model_base_url"`
	Language       string   `json:"language"`
	Languages      []string `json:"languages"`
	ScoreThreshold float64  `json:"score_threshold"`
	Entities       []string `json:"entities"`
}

// AnonymizerConfig holds the default substitution options
type AnonymizerConfig struct {
	Operators  map[string]pii.OperatorConfig `json:"operators"`
	KeysToSkip []string                      `json:"keys_to_skip"`
}

// RateLimitConfig bounds request throughput per server
type RateLimitConfig struct {
	Enabled           bool    `json:"enabled"`
	RequestsPerSecond float64 `json:"requests_per_second"`
	Burst             int     `json:"burst"`
}

// SentryConfig configures error reporting
type SentryConfig struct {
	DSN         string `json:"dsn"`
	Environment string `json:"environment"`
}

// Config holds all configuration for the anonymizer service
type Config struct {
	ServerPort   string           `json:"server_port"`
	MaxBodyBytes int64            `json:"max_body_bytes"`
	Analyzer     AnalyzerConfig   `json:"analyzer"`
	Anonymizer   AnonymizerConfig `json:"anonymizer"`
	Database     DatabaseConfig   `json:"database"`
	Logging      LoggingConfig    `json:"logging"`
	RateLimit    RateLimitConfig  `json:"rate_limit"`
	Sentry       SentryConfig     `json:"sentry"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		ServerPort:   ":8080",
		MaxBodyBytes: 10 << 20,
		Analyzer: AnalyzerConfig{
			DetectorName: detectors.DetectorNameRegex,
			ModelBaseURL: "http://localhost:8000",
			Language:     detectors.DefaultLanguage,
		},
		Anonymizer: AnonymizerConfig{
			Operators: map[string]pii.OperatorConfig{},
		},
		Database: DatabaseConfig{
			Enabled:      false,
			Host:         "localhost",
			Port:         5432,
			Database:     "yaak",
			Username:     "postgres",
			Password:     "",
			SSLMode:      "disable",
			MaxOpenConns: 25,
			MaxIdleConns: 25,
			MaxLifetime:  300,
			CleanupHours: 24 * 30,
		},
		Logging: LoggingConfig{
			LogRequests:   true,
			LogPIIChanges: true,
			LogVerbose:    false, // logs original PII, opt in explicitly
		},
		RateLimit: RateLimitConfig{
			Enabled:           false,
			RequestsPerSecond: 50,
			Burst:             100,
		},
		Sentry: SentryConfig{
			Environment: "development",
		},
	}
}

// DetectorSettings builds the factory settings for the configured detector
func (c *Config) DetectorSettings() map[string]interface{} {
	settings := map[string]interface{}{}
	switch c.Analyzer.DetectorName {
	case detectors.DetectorNameModel:
		settings["base_url"] = c.Analyzer.ModelBaseURL
	case detectors.DetectorNameRegex:
		if len(c.Analyzer.Languages) > 0 {
			settings["languages"] = c.Analyzer.Languages
		}
	}
	return settings
}

// DefaultOptions returns the options applied when a request does not override them
func (c *Config) DefaultOptions() pii.Options {
	return pii.Options{
		Language:       c.Analyzer.Language,
		KeysToSkip:     c.Anonymizer.KeysToSkip,
		Entities:       c.Analyzer.Entities,
		ScoreThreshold: c.Analyzer.ScoreThreshold,
		Operators:      c.Anonymizer.Operators,
	}
}

// AuditDatabaseConfig converts the database section for the audit store
func (c *Config) AuditDatabaseConfig() pii.DatabaseConfig {
	return pii.DatabaseConfig{
		Host:         c.Database.Host,
		Port:         c.Database.Port,
		Database:     c.Database.Database,
		Username:     c.Database.Username,
		Password:     c.Database.Password,
		SSLMode:      c.Database.SSLMode,
		MaxOpenConns: c.Database.MaxOpenConns,
		MaxIdleConns: c.Database.MaxIdleConns,
		MaxLifetime:  time.Duration(c.Database.MaxLifetime) * time.Second,
	}
}

// Validate checks the configuration for values the server cannot run with
func (c *Config) Validate() error {
	if err := validatePort(c.ServerPort, "ServerPort"); err != nil {
		return err
	}

	if !lo.Contains(detectors.RegisteredDetectors(), c.Analyzer.DetectorName) {
		return fmt.Errorf("Analyzer.DetectorName: unknown detector %q (available: %s)",
			c.Analyzer.DetectorName, strings.Join(detectors.RegisteredDetectors(), ", "))
	}

	if c.Analyzer.DetectorName == detectors.DetectorNameModel {
		if err := validateBaseURL(c.Analyzer.ModelBaseURL, "Analyzer.ModelBaseURL"); err != nil {
			return err
		}
	}

	if c.Analyzer.ScoreThreshold < 0 || c.Analyzer.ScoreThreshold > 1 {
		return fmt.Errorf("Analyzer.ScoreThreshold: must be between 0 and 1 (current value: %v)", c.Analyzer.ScoreThreshold)
	}

	for label, op := range c.Anonymizer.Operators {
		if !lo.Contains([]string{"", pii.OperatorReplace, pii.OperatorKeep}, op.Type) {
			return fmt.Errorf("Anonymizer.Operators: unknown operator %q for %s", op.Type, label)
		}
	}

	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("MaxBodyBytes: must be positive (current value: %d)", c.MaxBodyBytes)
	}

	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0) {
		return fmt.Errorf("RateLimit: requests_per_second and burst must be positive when enabled")
	}

	if c.Database.Enabled && c.Database.CleanupHours < 0 {
		return fmt.Errorf("Database.CleanupHours: cannot be negative (current value: %d)", c.Database.CleanupHours)
	}

	return nil
}

func validatePort(port, fieldName string) error {
	if port == "" {
		return fmt.Errorf("%s: port cannot be empty", fieldName)
	}

	if !strings.HasPrefix(port, ":") {
		return fmt.Errorf("%s: port must be in format ':PORT' where PORT is numeric (current value: %s)", fieldName, port)
	}

	n, err := strconv.Atoi(port[1:])
	if err != nil {
		return fmt.Errorf("%s: port must be in format ':PORT' where PORT is numeric (current value: %s)", fieldName, port)
	}

	if n < 1 || n > 65535 {
		return fmt.Errorf("%s: port must be between 1 and 65535 (current value: %d)", fieldName, n)
	}

	return nil
}

func validateBaseURL(raw, fieldName string) error {
	if raw == "" {
		return fmt.Errorf("%s: URL cannot be empty", fieldName)
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%s: must be an http(s) URL (current value: %s)", fieldName, raw)
	}
	return nil
}
