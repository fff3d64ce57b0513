package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds server and session lifecycle settings. Values come from an
// optional YAML file with environment variable overrides on top.
type Config struct {
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
	Session struct {
		TTLHours             int `yaml:"ttl_hours"`
		SweepIntervalMinutes int `yaml:"sweep_interval_minutes"`
	} `yaml:"session"`
}

// Default returns the built-in configuration
func Default() *Config {
	cfg := &Config{}
	cfg.Server.Port = 8080
	cfg.Session.TTLHours = 24
	cfg.Session.SweepIntervalMinutes = 60
	return cfg
}

// Load reads configuration from the YAML file named by CONFIG_FILE (skipped
// when unset) and applies environment overrides.
func Load() (*Config, error) {
	cfg := Default()

	if path := getEnv("CONFIG_FILE", ""); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.Server.Port = getEnvAsInt("PORT", cfg.Server.Port)
	cfg.Session.TTLHours = getEnvAsInt("SESSION_TTL_HOURS", cfg.Session.TTLHours)
	cfg.Session.SweepIntervalMinutes = getEnvAsInt("SESSION_SWEEP_INTERVAL_MINUTES", cfg.Session.SweepIntervalMinutes)

	return cfg, nil
}

// SessionTTL returns the session time-to-live as a duration
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Session.TTLHours) * time.Hour
}

// SweepInterval returns the background eviction interval as a duration
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Session.SweepIntervalMinutes) * time.Minute
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
