// Package config loads scroll-proxy configuration.
//
// Sources, highest precedence first:
//  1. Command-line flags (applied by the caller)
//  2. Environment variables (SCROLL_*)
//  3. YAML configuration file
//  4. Built-in defaults
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// DefaultPaths are searched when no config path is given.
var DefaultPaths = []string{
	"scroll-proxy.yaml",
	"scroll-proxy.yml",
}

// LoadConfig loads defaults, then the YAML file at configPath (or the first
// existing DefaultPaths entry), then environment overrides. A missing
// default file is not an error; a missing explicit file is.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		if err := loadConfigFile(configPath, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else {
		for _, path := range DefaultPaths {
			if _, err := os.Stat(path); err == nil {
				if err := loadConfigFile(path, cfg); err != nil {
					return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
				}
				break
			}
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies SCROLL_* variables. Malformed numbers and
// durations are reported rather than ignored.
func applyEnvOverrides(cfg *Config) error {
	str := map[string]*string{
		"SCROLL_LISTEN":          &cfg.Server.Listen,
		"SCROLL_UPSTREAM_URL":    &cfg.Upstream.BaseURL,
		"SCROLL_ENDPOINT":        &cfg.Upstream.Endpoint,
		"SCROLL_MODE":            &cfg.Upstream.Mode,
		"SCROLL_USER_AGENT":      &cfg.Upstream.UserAgent,
		"SCROLL_REDIS_ADDR":      &cfg.Redis.Addr,
		"SCROLL_REDIS_NAMESPACE": &cfg.Redis.Namespace,
		"SCROLL_LOG_LEVEL":       &cfg.Logging.Level,
	}
	for name, field := range str {
		if v := os.Getenv(name); v != "" {
			*field = v
		}
	}

	ints := map[string]*int{
		"SCROLL_PAGE_SIZE":   &cfg.Scroll.PageSize,
		"SCROLL_THRESHOLD":   &cfg.Scroll.Threshold,
		"SCROLL_MAX_RETRIES": &cfg.Upstream.MaxRetries,
		"SCROLL_FIRST_PAGE":  &cfg.Upstream.FirstPage,
	}
	for name, field := range ints {
		if v := os.Getenv(name); v != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			*field = n
		}
	}

	durations := map[string]*time.Duration{
		"SCROLL_SNAPSHOT_TTL":     &cfg.Redis.SnapshotTTL,
		"SCROLL_UPSTREAM_TIMEOUT": &cfg.Upstream.Timeout,
	}
	for name, field := range durations {
		if v := os.Getenv(name); v != "" {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			*field = d
		}
	}

	if v := os.Getenv("SCROLL_AUTO_LOAD"); v != "" {
		cfg.Scroll.AutoLoad = parseBool(v)
	}
	if v := os.Getenv("SCROLL_LOG_PRETTY"); v != "" {
		cfg.Logging.Pretty = parseBool(v)
	}
	return nil
}

// parseBool parses various boolean representations
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "yes" || s == "1" || s == "on"
}

// Validate checks the configuration for values the proxy cannot run with.
func (c *Config) Validate() error {
	switch c.Upstream.Mode {
	case "page", "cursor":
	default:
		return fmt.Errorf("%w: mode must be page or cursor, got %q", ErrInvalidConfig, c.Upstream.Mode)
	}
	if strings.TrimSpace(c.Upstream.BaseURL) == "" {
		return fmt.Errorf("%w: upstream base_url cannot be empty", ErrInvalidConfig)
	}
	if strings.TrimSpace(c.Upstream.Endpoint) == "" {
		return fmt.Errorf("%w: upstream endpoint cannot be empty", ErrInvalidConfig)
	}
	if c.Upstream.UserAgent == "" {
		return fmt.Errorf("%w: user_agent cannot be empty", ErrInvalidConfig)
	}
	if c.Scroll.PageSize <= 0 {
		return fmt.Errorf("%w: page_size must be positive, got %d", ErrInvalidConfig, c.Scroll.PageSize)
	}
	if c.Upstream.MaxRetries < 0 {
		return fmt.Errorf("%w: max_retries cannot be negative, got %d", ErrInvalidConfig, c.Upstream.MaxRetries)
	}
	if c.Redis.SnapshotTTL < 0 {
		return fmt.Errorf("%w: snapshot_ttl cannot be negative", ErrInvalidConfig)
	}
	if c.Server.Listen == "" {
		return fmt.Errorf("%w: listen address cannot be empty", ErrInvalidConfig)
	}
	if ns := strings.TrimSpace(c.Redis.Namespace); ns == "" || strings.ContainsAny(ns, `:*?[]\`) {
		return fmt.Errorf("%w: redis namespace %q must be non-empty without ':' or glob characters", ErrInvalidConfig, c.Redis.Namespace)
	}
	return nil
}
