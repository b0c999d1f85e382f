package config

const (
	defaultConfigPath          = "~/.config/packsync/config.toml"
	projectConfigName          = "packsync.toml"
	defaultTargetDir           = "./nautica"
	defaultStateDirFallback    = "~/.local/share/packsync"
	stateFileName              = "state.db"
	lockFileName               = "packsync.lock"
	defaultCatalogBaseURL      = "https://ksm.dev"
	catalogURLEnv              = "PACKSYNC_CATALOG_URL"
	defaultCatalogTimeout      = 30
	defaultUserAgent           = "packsync/dev"
	defaultConcurrency         = 4
	maxConcurrency             = 32
	defaultDownloadTimeout     = 300
	defaultDownloadAttempts    = 3
	defaultRetryBackoffMillis  = 500
	defaultStoreCommitAttempts = 2
	defaultMinFreeMiB          = 256
	defaultStagingMaxAgeHours  = 24
	defaultMinConfidence       = 0.35
	defaultHighConfidence      = 0.75
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultLogMaxSizeMB        = 20
	defaultLogMaxBackups       = 5
	defaultLogMaxAgeDays       = 30
	defaultNotifyTimeout       = 10
)

// DefaultEncodings lists the legacy filename encodings tried, in tie-break order.
var DefaultEncodings = []string{"shift_jis", "euc-kr", "big5"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			TargetDir: defaultTargetDir,
			StateDir:  defaultStateDir(),
		},
		Catalog: Catalog{
			BaseURL:        defaultCatalogBaseURL,
			RequestTimeout: defaultCatalogTimeout,
			UserAgent:      defaultUserAgent,
		},
		Sync: Sync{
			Concurrency:         defaultConcurrency,
			DownloadTimeout:     defaultDownloadTimeout,
			DownloadAttempts:    defaultDownloadAttempts,
			RetryBackoff:        defaultRetryBackoffMillis,
			StoreCommitAttempts: defaultStoreCommitAttempts,
			MinFreeMiB:          defaultMinFreeMiB,
			StagingMaxAge:       defaultStagingMaxAgeHours,
		},
		Extract: Extract{
			Encodings:      append([]string(nil), DefaultEncodings...),
			MinConfidence:  defaultMinConfidence,
			HighConfidence: defaultHighConfidence,
		},
		Logging: Logging{
			Format:     defaultLogFormat,
			Level:      defaultLogLevel,
			MaxSizeMB:  defaultLogMaxSizeMB,
			MaxBackups: defaultLogMaxBackups,
			MaxAgeDays: defaultLogMaxAgeDays,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
		},
	}
}
