package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables that override the API credentials from the file.
const (
	EnvAPIToken = "TODOCAL_API_TOKEN"
	EnvDeviceID = "TODOCAL_DEVICE_ID"
)

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	// Driver is "file" (default), "sqlite" or "memory".
	Driver string `yaml:"driver" json:"driver"`
	// Path is the data directory for "file" or the database file for "sqlite".
	Path string `yaml:"path" json:"path"`
}

// APIConfig holds the account API endpoint and credentials.
type APIConfig struct {
	BaseURL        string `yaml:"base_url" json:"base_url"`
	Token          string `yaml:"token" json:"-"`
	DeviceID       string `yaml:"device_id" json:"device_id"`
	TimeoutSeconds int    `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// Timeout returns TimeoutSeconds as a duration.
func (a APIConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// SyncConfig controls periodic import in serve mode.
type SyncConfig struct {
	// Cron is a 5-field schedule (e.g. "*/30 * * * *"). Empty disables
	// scheduled imports.
	Cron string `yaml:"cron" json:"cron"`
	// ImportOnStart runs one import before the schedule starts.
	ImportOnStart bool `yaml:"import_on_start" json:"import_on_start"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the JSON API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"-"`
}

// Config is the top-level application configuration.
type Config struct {
	// Timezone is the IANA zone occurrences are expanded and listed in.
	Timezone string `yaml:"timezone" json:"timezone"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	Store StoreConfig `yaml:"store" json:"store"`
	API   APIConfig   `yaml:"api" json:"api"`
	Sync  SyncConfig  `yaml:"sync" json:"sync"`

	// Listen is the HTTP listen address for `todocal serve`.
	Listen string `yaml:"listen" json:"listen"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

const (
	defaultTimezone = "UTC"
	defaultLogLevel = "info"
	defaultDriver   = "file"
	defaultDataDir  = "./var/todocal"
	defaultListen   = "127.0.0.1:8080"
	defaultTimeout  = 30
)

// DefaultPath returns the config location used when none is given:
// $XDG_CONFIG_HOME/todocal/config.yaml or its home-directory equivalent.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "todocal.yaml"
	}
	return filepath.Join(dir, "todocal", "config.yaml")
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Timezone: defaultTimezone,
		LogLevel: defaultLogLevel,
		Store: StoreConfig{
			Driver: defaultDriver,
			Path:   defaultDataDir,
		},
		API: APIConfig{
			TimeoutSeconds: defaultTimeout,
		},
		Sync: SyncConfig{
			Cron: "",
		},
		Listen: defaultListen,
	}
}

// Normalize fills in missing/zero values so that partially-filled configs
// still behave correctly.
func (c *Config) Normalize() {
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		c.LogLevel = defaultLogLevel
	}

	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	if c.Store.Driver == "" {
		c.Store.Driver = defaultDriver
	}
	if c.Store.Path == "" && c.Store.Driver != "memory" {
		c.Store.Path = defaultDataDir
	}
	if c.Store.Driver == "sqlite" && filepath.Ext(c.Store.Path) == "" {
		c.Store.Path = filepath.Join(c.Store.Path, "todocal.db")
	}

	c.API.BaseURL = strings.TrimRight(strings.TrimSpace(c.API.BaseURL), "/")
	if c.API.TimeoutSeconds <= 0 {
		c.API.TimeoutSeconds = defaultTimeout
	}
	c.Sync.Cron = strings.TrimSpace(c.Sync.Cron)

	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.BasicAuth != nil && c.BasicAuth.Username == "" && c.BasicAuth.Password == "" {
		c.BasicAuth = nil
	}
}

// ApplyEnv overlays credentials from the environment. They are not
// written back by Save.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvAPIToken); v != "" {
		c.API.Token = v
	}
	if v := os.Getenv(EnvDeviceID); v != "" {
		c.API.DeviceID = v
	}
}

// Location resolves Timezone. An unknown zone is an error so that a typo
// does not silently shift every occurrence to UTC.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms (creating the parent directory) and returned.
//   - Otherwise the YAML is decoded and normalized.
//
// Environment overrides are applied to the returned config in both cases.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				cfg.ApplyEnv()
				return cfg, err
			}
			cfg.ApplyEnv()
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()
	cfg.ApplyEnv()

	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600
// permissions, creating the parent directory (0700) if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".todocal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
