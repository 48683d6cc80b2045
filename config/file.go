package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadFromFile overlays the JSON document at configPath onto cfg.
// Fields absent from the file keep their current values.
func LoadFromFile(configPath string, cfg *Config) error {
	if configPath == "" {
		return fmt.Errorf("config path is not configured")
	}

	// Check if file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return fmt.Errorf("config file does not exist: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}
