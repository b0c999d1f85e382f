package config

import (
	"errors"
	"fmt"
	"net/url"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/ianaindex"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateCatalog(); err != nil {
		return err
	}
	if err := c.validateSync(); err != nil {
		return err
	}
	if err := c.validateExtract(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return c.validateNotifications()
}

func (c *Config) validateCatalog() error {
	parsed, err := url.Parse(c.Catalog.BaseURL)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return fmt.Errorf("catalog.base_url must be an absolute http(s) URL, got %q", c.Catalog.BaseURL)
	}
	if c.Catalog.RequestTimeout <= 0 {
		return errors.New("catalog.request_timeout must be positive")
	}
	if c.Catalog.PageLimit < 0 {
		return errors.New("catalog.page_limit must be zero (all pages) or positive")
	}
	return nil
}

func (c *Config) validateSync() error {
	if c.Sync.Concurrency < 1 || c.Sync.Concurrency > maxConcurrency {
		return fmt.Errorf("sync.concurrency must be between 1 and %d", maxConcurrency)
	}
	if c.Sync.DownloadTimeout <= 0 {
		return errors.New("sync.download_timeout must be positive")
	}
	if c.Sync.DownloadAttempts < 1 {
		return errors.New("sync.download_attempts must be at least 1")
	}
	if c.Sync.RetryBackoff < 0 {
		return errors.New("sync.retry_backoff must not be negative")
	}
	if c.Sync.StoreCommitAttempts < 1 {
		return errors.New("sync.store_commit_attempts must be at least 1")
	}
	if c.Sync.MinFreeMiB < 0 {
		return errors.New("sync.min_free_mib must not be negative")
	}
	if c.Sync.StagingMaxAge <= 0 {
		return errors.New("sync.staging_max_age must be positive")
	}
	return nil
}

func (c *Config) validateExtract() error {
	for _, label := range c.Extract.Encodings {
		if !KnownEncoding(label) {
			return fmt.Errorf("extract.encodings: unsupported encoding %q", label)
		}
	}
	if c.Extract.MinConfidence < 0 || c.Extract.MinConfidence > 1 {
		return errors.New("extract.min_confidence must be between 0 and 1")
	}
	if c.Extract.HighConfidence < 0 || c.Extract.HighConfidence > 1 {
		return errors.New("extract.high_confidence must be between 0 and 1")
	}
	if c.Extract.HighConfidence < c.Extract.MinConfidence {
		return errors.New("extract.high_confidence must not be below extract.min_confidence")
	}
	if c.Extract.MaxEntryBytes < 0 {
		return errors.New("extract.max_entry_bytes must not be negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	if c.Logging.MaxSizeMB < 0 || c.Logging.MaxBackups < 0 || c.Logging.MaxAgeDays < 0 {
		return errors.New("logging rotation values must not be negative")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.NtfyTopic == "" {
		return nil
	}
	parsed, err := url.Parse(c.Notifications.NtfyTopic)
	if err != nil || parsed.Host == "" {
		return fmt.Errorf("notifications.ntfy_topic must be a full URL, got %q", c.Notifications.NtfyTopic)
	}
	return nil
}

// KnownEncoding reports whether label names an encoding the decoder can use,
// by WHATWG label first and IANA name second.
func KnownEncoding(label string) bool {
	if enc, err := htmlindex.Get(label); err == nil && enc != nil {
		return true
	}
	enc, err := ianaindex.IANA.Encoding(label)
	return err == nil && enc != nil
}
