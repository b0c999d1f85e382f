package workflow

import (
	"context"
	"fmt"
	"log/slog"

	"packsync/internal/logging"
	"packsync/internal/preflight"
	"packsync/internal/staging"
)

// prepare clears leftovers of killed passes and validates the directories a
// pass writes to.
func (m *Manager) prepare(ctx context.Context, logger *slog.Logger) error {
	maxAge := m.cfg.StagingMaxAge()
	cleaned := staging.CleanStale(ctx, m.cfg.Paths.StagingDir, maxAge, logger)
	partial := staging.CleanPartialWrites(ctx, m.cfg.Paths.TargetDir, maxAge, logger)
	if removed := len(cleaned.Removed) + len(partial.Removed); removed > 0 {
		logger.Info("stale files removed", logging.Int("count", removed))
	}

	results := preflight.RunAll(ctx, m.cfg)
	for _, r := range results {
		if r.Passed {
			logger.Debug("preflight check passed",
				logging.String("check", r.Name),
				logging.String("detail", r.Detail),
				logging.String(logging.FieldEventType, "preflight_passed"),
			)
			continue
		}
		logging.ErrorWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
			logging.String(logging.FieldErrorHint, "fix the reported issue and run the sync again"),
		)
	}
	if err := preflight.Failed(results); err != nil {
		return fmt.Errorf("%w: %v", ErrPreflightFailed, err)
	}
	return nil
}
