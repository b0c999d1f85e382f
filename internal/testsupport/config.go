package testsupport

import (
	"path/filepath"
	"testing"

	"packsync/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Retry backoff is shortened so retry tests stay fast.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.TargetDir = filepath.Join(base, "target")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.StagingDir = filepath.Join(base, "staging")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Catalog.BaseURL = "http://127.0.0.1:1"
	cfgVal.Catalog.UserAgent = "packsync-test"
	cfgVal.Sync.RetryBackoff = 1
	cfgVal.Sync.MinFreeMiB = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithCatalogURL points the config at a test catalog server.
func WithCatalogURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Catalog.BaseURL = url
	}
}

// WithConcurrency sets the worker pool size.
func WithConcurrency(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Sync.Concurrency = n
	}
}

// WithDownloadAttempts sets the per-item download retry budget.
func WithDownloadAttempts(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Sync.DownloadAttempts = n
	}
}

// WithFlatten toggles flattening of archive directories.
func WithFlatten(flatten bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Extract.Flatten = flatten
	}
}

// WithMaxEntryBytes caps the decompressed size of a single entry.
func WithMaxEntryBytes(n int64) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Extract.MaxEntryBytes = n
	}
}

// WithEncodings replaces the candidate filename encodings.
func WithEncodings(labels ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Extract.Encodings = append([]string(nil), labels...)
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
