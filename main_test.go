package main

import (
	"testing"

	"github.com/hannes/yaak-anonymizer/config"
)

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", ":9999")
	t.Setenv("DB_ENABLED", "true")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("DB_CLEANUP_HOURS", "not-a-number")
	t.Setenv("DETECTOR_NAME", "model_detector")
	t.Setenv("PII_SCORE_THRESHOLD", "0.4")
	t.Setenv("PII_KEYS_TO_SKIP", "id, meta.trace ,")
	t.Setenv("RATE_LIMIT_ENABLED", "true")
	t.Setenv("LOG_VERBOSE", "false")

	cfg := config.DefaultConfig()
	cleanupHours := cfg.Database.CleanupHours
	loadConfigFromEnv(cfg)

	if cfg.ServerPort != ":9999" {
		t.Errorf("expected :9999, got %s", cfg.ServerPort)
	}
	if !cfg.Database.Enabled || cfg.Database.Port != 6543 {
		t.Errorf("unexpected database config: %+v", cfg.Database)
	}
	if cfg.Database.CleanupHours != cleanupHours {
		t.Errorf("expected invalid DB_CLEANUP_HOURS to be ignored, got %d", cfg.Database.CleanupHours)
	}
	if cfg.Analyzer.DetectorName != "model_detector" || cfg.Analyzer.ScoreThreshold != 0.4 {
		t.Errorf("unexpected analyzer config: %+v", cfg.Analyzer)
	}
	if len(cfg.Anonymizer.KeysToSkip) != 2 || cfg.Anonymizer.KeysToSkip[1] != "meta.trace" {
		t.Errorf("unexpected keys to skip: %q", cfg.Anonymizer.KeysToSkip)
	}
	if !cfg.RateLimit.Enabled || cfg.Logging.LogVerbose {
		t.Errorf("unexpected flags: rate limit %v, verbose %v", cfg.RateLimit.Enabled, cfg.Logging.LogVerbose)
	}
}
