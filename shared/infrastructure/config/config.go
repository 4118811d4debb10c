package config

import (
	"fmt"
	"sync"
)

// Singleton instance management
var (
	instance *Config
	loaded   bool
	mu       sync.Mutex
)

// Load loads configuration from environment variables and .env files
// This should be called once at application startup
func Load() (*Config, error) {
	mu.Lock()
	defer mu.Unlock()

	if loaded {
		return instance, nil
	}

	// Load .env files in order of precedence
	if err := loadEnvFiles(); err != nil {
		return nil, fmt.Errorf("failed to load env files: %w", err)
	}

	cfg, err := FromEnv()
	if err != nil {
		return nil, err
	}

	instance = cfg
	loaded = true
	return cfg, nil
}

// FromEnv builds a validated configuration from the current environment
// without touching .env files or the cached instance.
func FromEnv() (*Config, error) {
	// Parse configuration from environment
	cfg, err := parse()
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Apply defaults based on environment
	applyDefaults(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// IsLoaded returns whether configuration has been loaded
func IsLoaded() bool {
	mu.Lock()
	defer mu.Unlock()
	return loaded
}
