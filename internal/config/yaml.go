// SPDX-License-Identifier: MIT
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// DefaultPath returns the per-user config file location, or "config.yaml"
// in the working directory when the user config dir cannot be determined.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(dir, "audioviz", "config.yaml")
}

// LoadConfig loads configuration from the YAML file at path. If path is
// empty it searches "config.yaml" and the per-user location; a missing
// file is not an error and yields defaults. Environment overrides are
// applied after the file, and the result is always clamped.
func LoadConfig(path string) (*Config, error) {
	cfg := NewConfig()

	if path == "" {
		for _, candidate := range []string{"config.yaml", DefaultPath()} {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	cfg.Clamp()
	return cfg, nil
}

// SaveConfig clamps and writes cfg to path, creating parent directories
// as needed. An empty path writes to the per-user location.
func SaveConfig(path string, cfg *Config) error {
	if path == "" {
		path = DefaultPath()
	}
	cfg.Clamp()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// applyEnvOverrides layers AUDIOVIZ_* environment variables on top of
// whatever the file provided.
func (c *Config) applyEnvOverrides() {
	if val, ok := os.LookupEnv("AUDIOVIZ_PORT"); ok {
		if iVal, err := strconv.Atoi(val); err == nil {
			c.HTTPPort = iVal
		}
	}
	if val, ok := os.LookupEnv("AUDIOVIZ_DEBUG"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			c.Debug = bVal
		}
	}
	if val, ok := os.LookupEnv("AUDIOVIZ_LOG_LEVEL"); ok {
		c.LogLevel = val
	}
	if val, ok := os.LookupEnv("AUDIOVIZ_DEVICE_ID"); ok {
		if iVal, err := strconv.Atoi(val); err == nil {
			c.Audio.DeviceID = iVal
		}
	}
}
