// Package config loads application configuration from environment variables.
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	ListenAddr         string
	DBPath             string
	BaseURL            string
	AuthURL            string
	SeedBlob           string // initial credential blob from TTRPROXY_JWT
	SecretKey          []byte // optional 32-byte AES key; nil disables encryption at rest
	CheckInterval      time.Duration
	ForceRefreshWindow time.Duration
	WarnWindow         time.Duration
	UpstreamTimeout    time.Duration
	EnrichConcurrency  int
}

// Load reads configuration from environment variables and returns a validated
// Config. The credential blob (TTRPROXY_JWT) is optional; without it the proxy
// starts with public endpoints only until a blob is stored via refresh.
// Optional variables with defaults: TTRPROXY_LISTEN_ADDR (127.0.0.1:3001),
// TTRPROXY_DB_PATH (ttrproxy.db), TTRPROXY_BASE_URL / TTRPROXY_AUTH_URL
// (https://www.mytischtennis.de), TTRPROXY_CHECK_INTERVAL (5m),
// TTRPROXY_FORCE_REFRESH_WINDOW (1h), TTRPROXY_WARN_WINDOW (6h),
// TTRPROXY_UPSTREAM_TIMEOUT (10s), TTRPROXY_ENRICH_CONCURRENCY (5).
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:         "127.0.0.1:3001",
		DBPath:             "ttrproxy.db",
		BaseURL:            "https://www.mytischtennis.de",
		AuthURL:            "https://www.mytischtennis.de",
		SeedBlob:           os.Getenv("TTRPROXY_JWT"),
		CheckInterval:      5 * time.Minute,
		ForceRefreshWindow: time.Hour,
		WarnWindow:         6 * time.Hour,
		UpstreamTimeout:    10 * time.Second,
		EnrichConcurrency:  5,
	}

	if v, ok := os.LookupEnv("TTRPROXY_LISTEN_ADDR"); ok {
		cfg.ListenAddr = v
	}
	if v, ok := os.LookupEnv("TTRPROXY_DB_PATH"); ok {
		cfg.DBPath = v
	}
	if v, ok := os.LookupEnv("TTRPROXY_BASE_URL"); ok {
		cfg.BaseURL = v
		cfg.AuthURL = v
	}
	if v, ok := os.LookupEnv("TTRPROXY_AUTH_URL"); ok {
		cfg.AuthURL = v
	}

	if v, ok := os.LookupEnv("TTRPROXY_SECRET_KEY"); ok && v != "" {
		key, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return nil, fmt.Errorf("TTRPROXY_SECRET_KEY is not valid base64: %w", err)
		}
		if len(key) != 32 {
			return nil, fmt.Errorf("TTRPROXY_SECRET_KEY must decode to 32 bytes, got %d", len(key))
		}
		cfg.SecretKey = key
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"TTRPROXY_CHECK_INTERVAL", &cfg.CheckInterval},
		{"TTRPROXY_FORCE_REFRESH_WINDOW", &cfg.ForceRefreshWindow},
		{"TTRPROXY_WARN_WINDOW", &cfg.WarnWindow},
		{"TTRPROXY_UPSTREAM_TIMEOUT", &cfg.UpstreamTimeout},
	}
	for _, d := range durations {
		if v, ok := os.LookupEnv(d.key); ok {
			parsed, err := time.ParseDuration(v)
			if err != nil {
				return nil, fmt.Errorf("%s has invalid duration %q: %w", d.key, v, err)
			}
			*d.dst = parsed
		}
	}

	if v, ok := os.LookupEnv("TTRPROXY_ENRICH_CONCURRENCY"); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("TTRPROXY_ENRICH_CONCURRENCY must be a positive integer, got %q", v)
		}
		cfg.EnrichConcurrency = n
	}

	if cfg.WarnWindow < cfg.ForceRefreshWindow {
		return nil, fmt.Errorf("TTRPROXY_WARN_WINDOW (%s) must not be smaller than TTRPROXY_FORCE_REFRESH_WINDOW (%s)",
			cfg.WarnWindow, cfg.ForceRefreshWindow)
	}

	return cfg, nil
}
