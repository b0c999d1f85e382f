package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	TargetDir  string `toml:"target_dir"`
	StateDir   string `toml:"state_dir"`
	StagingDir string `toml:"staging_dir"`
	LogDir     string `toml:"log_dir"`
}

// Catalog contains configuration for the remote catalog API.
type Catalog struct {
	BaseURL        string `toml:"base_url"`
	RequestTimeout int    `toml:"request_timeout"`
	PageLimit      int    `toml:"page_limit"`
	UserAgent      string `toml:"user_agent"`
}

// Sync contains configuration for the pass orchestrator.
type Sync struct {
	Concurrency         int `toml:"concurrency"`
	DownloadTimeout     int `toml:"download_timeout"`
	DownloadAttempts    int `toml:"download_attempts"`
	RetryBackoff        int `toml:"retry_backoff"`
	StoreCommitAttempts int `toml:"store_commit_attempts"`
	MinFreeMiB          int `toml:"min_free_mib"`
	StagingMaxAge       int `toml:"staging_max_age"`
}

// Extract contains configuration for archive extraction and name decoding.
type Extract struct {
	Encodings      []string `toml:"encodings"`
	MinConfidence  float64  `toml:"min_confidence"`
	HighConfidence float64  `toml:"high_confidence"`
	Flatten        bool     `toml:"flatten"`
	MaxEntryBytes  int64    `toml:"max_entry_bytes"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format     string `toml:"format"`
	Level      string `toml:"level"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Config encapsulates all configuration values for packsync.
//
// Configuration sections by subsystem:
//   - Paths: extraction target, state database, staging and log directories
//   - Catalog: remote listing endpoint and HTTP behaviour
//   - Sync: worker pool size, timeouts, retry budget, preflight thresholds
//   - Extract: candidate encodings and decoding thresholds, layout options
//   - Logging: log format, level, and file rotation
//   - Notifications: ntfy push notification settings
type Config struct {
	Paths         Paths         `toml:"paths"`
	Catalog       Catalog       `toml:"catalog"`
	Sync          Sync          `toml:"sync"`
	Extract       Extract       `toml:"extract"`
	Logging       Logging       `toml:"logging"`
	Notifications Notifications `toml:"notifications"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs(projectConfigName)
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories a sync pass writes into.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.TargetDir, c.Paths.StateDir, c.Paths.StagingDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// StatePath returns the SQLite state database location.
func (c *Config) StatePath() string {
	return filepath.Join(c.Paths.StateDir, stateFileName)
}

// LockPath returns the file used to keep two passes from running at once.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, lockFileName)
}

// CatalogTimeout returns the per-request catalog timeout.
func (c *Config) CatalogTimeout() time.Duration {
	return time.Duration(c.Catalog.RequestTimeout) * time.Second
}

// DownloadTimeout returns the per-download timeout.
func (c *Config) DownloadTimeout() time.Duration {
	return time.Duration(c.Sync.DownloadTimeout) * time.Second
}

// RetryBackoff returns the base delay between download attempts.
func (c *Config) RetryBackoff() time.Duration {
	return time.Duration(c.Sync.RetryBackoff) * time.Millisecond
}

// StagingMaxAge returns the age after which leftover staging files are removed.
func (c *Config) StagingMaxAge() time.Duration {
	return time.Duration(c.Sync.StagingMaxAge) * time.Hour
}

// NotificationTimeout returns the ntfy request timeout.
func (c *Config) NotificationTimeout() time.Duration {
	return time.Duration(c.Notifications.RequestTimeout) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

func defaultStateDir() string {
	if base, ok := os.LookupEnv("XDG_DATA_HOME"); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, "packsync")
	}
	return defaultStateDirFallback
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders the effective configuration as TOML.
func (c *Config) Encode() ([]byte, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}
