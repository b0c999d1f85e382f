package staging

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"packsync/internal/fileutil"
	"packsync/internal/logging"
)

// CleanStaleResult contains the outcome of a cleanup operation.
type CleanStaleResult struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// CleanStale removes staged archives and directories older than maxAge.
// Downloads normally remove their own staged file; anything this old was left
// behind by a killed pass.
func CleanStale(ctx context.Context, stagingDir string, maxAge time.Duration, logger *slog.Logger) CleanStaleResult {
	result := CleanStaleResult{}

	stagingDir = strings.TrimSpace(stagingDir)
	if stagingDir == "" {
		return result
	}

	entries, err := os.ReadDir(stagingDir)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, CleanupError{Path: stagingDir, Error: err})
		}
		return result
	}

	cutoff := time.Now().Add(-maxAge)

	for _, entry := range entries {
		if ctx.Err() != nil {
			return result
		}
		entryPath := filepath.Join(stagingDir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: entryPath, Error: err})
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		remove(&result, entryPath, info.ModTime(), logger)
	}

	return result
}

// CleanPartialWrites removes temp files left in root by interrupted atomic
// writes. Only files carrying the atomic-write prefix and older than maxAge
// are touched.
func CleanPartialWrites(ctx context.Context, root string, maxAge time.Duration, logger *slog.Logger) CleanStaleResult {
	result := CleanStaleResult{}

	root = strings.TrimSpace(root)
	if root == "" {
		return result
	}

	cutoff := time.Now().Add(-maxAge)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
			return nil
		}
		if ctx.Err() != nil {
			return fs.SkipAll
		}
		if d.IsDir() || !strings.HasPrefix(d.Name(), fileutil.TempPrefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
			return nil
		}
		if info.ModTime().Before(cutoff) {
			remove(&result, path, info.ModTime(), logger)
		}
		return nil
	})
	if err != nil {
		result.Errors = append(result.Errors, CleanupError{Path: root, Error: err})
	}
	return result
}

func remove(result *CleanStaleResult, path string, modTime time.Time, logger *slog.Logger) {
	if err := os.RemoveAll(path); err != nil {
		result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
		logging.WarnWithContext(logger, "failed to remove stale file", "staging_cleanup_failed",
			logging.String("path", path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check staging_dir and target_dir permissions"),
			logging.String(logging.FieldImpact, "disk space not reclaimed"),
		)
		return
	}
	result.Removed = append(result.Removed, path)
	if logger != nil {
		logger.Info("removed stale file",
			logging.String("path", path),
			logging.Duration("age", time.Since(modTime)),
			logging.String(logging.FieldEventType, "staging_cleanup"),
		)
	}
}
