package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all planwave CLI configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	MaxWorkers  int    `json:"max_workers"`
	LogLevel    string `json:"log_level"`
	LogFormat   string `json:"log_format"` // "text" or "json"
	CachePath   string `json:"cache_path"` // "" = in-memory cache
	CacheTTL    string `json:"cache_ttl"`  // Go duration, "" = no expiry
	HTTPTimeout string `json:"http_timeout"`
}

func defaultConfig() Config {
	return Config{
		MaxWorkers: 4,
		LogLevel:   "info",
		LogFormat:  "text",
	}
}

func planwaveDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".planwave"
	}
	return filepath.Join(home, ".planwave")
}

func settingsPath() string {
	return filepath.Join(planwaveDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("PLANWAVE_MAX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxWorkers = n
		}
	}
	if v := os.Getenv("PLANWAVE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("PLANWAVE_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("PLANWAVE_CACHE_PATH"); v != "" {
		cfg.CachePath = v
	}
	if v := os.Getenv("PLANWAVE_CACHE_TTL"); v != "" {
		cfg.CacheTTL = v
	}
	if v := os.Getenv("PLANWAVE_HTTP_TIMEOUT"); v != "" {
		cfg.HTTPTimeout = v
	}

	return cfg
}

func (c Config) cacheTTL() time.Duration {
	if c.CacheTTL == "" {
		return 0
	}
	d, err := time.ParseDuration(c.CacheTTL)
	if err != nil {
		return 0
	}
	return d
}

func (c Config) httpTimeout() time.Duration {
	if c.HTTPTimeout == "" {
		return 0
	}
	d, err := time.ParseDuration(c.HTTPTimeout)
	if err != nil {
		return 0
	}
	return d
}
