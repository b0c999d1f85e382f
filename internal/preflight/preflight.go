package preflight

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"packsync/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes the filesystem checks a sync pass depends on. Directories
// are expected to exist already (config.EnsureDirectories).
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Target directory", cfg.Paths.TargetDir),
		CheckDirectoryAccess("Staging directory", cfg.Paths.StagingDir),
	}
	results = append(results, CheckFreeSpace("Target free space", cfg.Paths.TargetDir, cfg.Sync.MinFreeMiB))
	if cfg.Paths.StagingDir != cfg.Paths.TargetDir {
		results = append(results, CheckFreeSpace("Staging free space", cfg.Paths.StagingDir, cfg.Sync.MinFreeMiB))
	}
	return results
}

// Failed joins the failing results into one error, or returns nil.
func Failed(results []Result) error {
	var failures []string
	for _, r := range results {
		if !r.Passed {
			failures = append(failures, fmt.Sprintf("%s: %s", r.Name, r.Detail))
		}
	}
	if len(failures) == 0 {
		return nil
	}
	return errors.New(strings.Join(failures, "; "))
}
