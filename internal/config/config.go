// Package config provides configuration loading and validation for the
// service.
package config

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config represents the service configuration. It can be loaded from a JSON
// file; environment variables override file values.
type Config struct {
	// Connections
	DatabaseURL string `json:"database_url,omitempty"` // PostgreSQL connection URL
	ListenAddr  string `json:"listen_addr,omitempty"`  // HTTP listen address

	// Secrets
	SealKeyHex string `json:"seal_key_hex,omitempty"` // hex-encoded 32-byte credential sealing key
	JWTSecret  string `json:"jwt_secret,omitempty"`   // HMAC secret for API tokens

	// Pipeline behavior
	Workers      int  `json:"workers,omitempty"`       // worker pool size
	QueueSize    int  `json:"queue_size,omitempty"`    // work queue capacity
	MaxRetries   int  `json:"max_retries,omitempty"`   // manual retries per item
	MaxRevisions int  `json:"max_revisions,omitempty"` // revision forks per script
	DailyQuota   int  `json:"daily_quota,omitempty"`   // pipeline triggers per owner per day, 0 disables
	UseBrowser   bool `json:"use_browser,omitempty"`   // headless browser fallback for SPA articles

	// LLMTimeoutSecs bounds each individual model call.
	LLMTimeoutSecs int `json:"llm_timeout_secs,omitempty"`

	// ResetTimezone is the IANA zone the daily usage reset fires in.
	ResetTimezone string `json:"reset_timezone,omitempty"`
}

// DefaultConfig returns the defaults applied under missing values.
func DefaultConfig() Config {
	return Config{
		ListenAddr:     ":8080",
		Workers:        4,
		QueueSize:      64,
		MaxRetries:     3,
		MaxRevisions:   3,
		DailyQuota:     20,
		LLMTimeoutSecs: 90,
		ResetTimezone:  "UTC",
	}
}

// LoadConfig loads configuration from a JSON file.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

// ApplyEnv overrides config fields from environment variables.
func (c *Config) ApplyEnv() {
	setString(&c.DatabaseURL, "DATABASE_URL")
	setString(&c.ListenAddr, "LISTEN_ADDR")
	setString(&c.SealKeyHex, "SEAL_KEY")
	setString(&c.JWTSecret, "JWT_SECRET")
	setString(&c.ResetTimezone, "RESET_TIMEZONE")
	setInt(&c.Workers, "WORKERS")
	setInt(&c.QueueSize, "QUEUE_SIZE")
	setInt(&c.MaxRetries, "MAX_RETRIES")
	setInt(&c.MaxRevisions, "MAX_REVISIONS")
	setInt(&c.DailyQuota, "DAILY_QUOTA")
	setInt(&c.LLMTimeoutSecs, "LLM_TIMEOUT_SECS")
	setBool(&c.UseBrowser, "USE_BROWSER")
}

func setString(target *string, key string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

func setInt(target *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}

func setBool(target *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*target = b
		}
	}
}

// MergeWithDefaults returns a new Config with zero-valued fields filled from
// defaults.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	if result.DatabaseURL == "" {
		result.DatabaseURL = defaults.DatabaseURL
	}
	if result.ListenAddr == "" {
		result.ListenAddr = defaults.ListenAddr
	}
	if result.SealKeyHex == "" {
		result.SealKeyHex = defaults.SealKeyHex
	}
	if result.JWTSecret == "" {
		result.JWTSecret = defaults.JWTSecret
	}
	if result.ResetTimezone == "" {
		result.ResetTimezone = defaults.ResetTimezone
	}
	if result.Workers == 0 {
		result.Workers = defaults.Workers
	}
	if result.QueueSize == 0 {
		result.QueueSize = defaults.QueueSize
	}
	if result.MaxRetries == 0 {
		result.MaxRetries = defaults.MaxRetries
	}
	if result.MaxRevisions == 0 {
		result.MaxRevisions = defaults.MaxRevisions
	}
	if result.DailyQuota == 0 {
		result.DailyQuota = defaults.DailyQuota
	}
	if result.LLMTimeoutSecs == 0 {
		result.LLMTimeoutSecs = defaults.LLMTimeoutSecs
	}
	if !result.UseBrowser {
		result.UseBrowser = defaults.UseBrowser
	}

	return result
}

// Validate checks that the configuration has valid values.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("config error: 'database_url' is required")
	}
	if c.Workers < 1 {
		return fmt.Errorf("config error: 'workers' must be positive")
	}
	if c.QueueSize < 1 {
		return fmt.Errorf("config error: 'queue_size' must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("config error: 'max_retries' must be non-negative")
	}
	if c.MaxRevisions < 0 {
		return fmt.Errorf("config error: 'max_revisions' must be non-negative")
	}
	if c.DailyQuota < 0 {
		return fmt.Errorf("config error: 'daily_quota' must be non-negative")
	}
	if c.LLMTimeoutSecs < 1 {
		return fmt.Errorf("config error: 'llm_timeout_secs' must be positive")
	}
	if _, err := c.SealKey(); err != nil {
		return err
	}
	if _, err := c.ResetLocation(); err != nil {
		return err
	}
	return nil
}

// SealKey decodes the credential sealing key.
func (c *Config) SealKey() ([]byte, error) {
	if c.SealKeyHex == "" {
		return nil, fmt.Errorf("config error: 'seal_key_hex' is required")
	}
	key, err := hex.DecodeString(c.SealKeyHex)
	if err != nil {
		return nil, fmt.Errorf("config error: 'seal_key_hex' is not valid hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("config error: 'seal_key_hex' must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

// ResetLocation resolves the timezone the daily usage reset fires in.
func (c *Config) ResetLocation() (*time.Location, error) {
	zone := c.ResetTimezone
	if zone == "" {
		zone = "UTC"
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("config error: unknown 'reset_timezone' %q: %w", zone, err)
	}
	return loc, nil
}

// LLMTimeout returns the per-call model timeout as a duration.
func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLMTimeoutSecs) * time.Second
}
