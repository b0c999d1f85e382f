package workflow

import (
	"context"
	"log/slog"

	"packsync/internal/catalog"
	"packsync/internal/extract"
	"packsync/internal/logging"
	"packsync/internal/services"
	"packsync/internal/state"
)

type itemOutcome struct {
	report   extract.Report
	err      error
	attempts int
	skipped  string
}

// runItem processes one item with its own attempt counter. Only download
// errors are retried; every other failure ends the item for this pass.
func (m *Manager) runItem(ctx context.Context, item catalog.Item) itemOutcome {
	ctx = services.WithItemID(ctx, item.ID)
	maxAttempts := max(1, m.cfg.Sync.DownloadAttempts)

	var outcome itemOutcome
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		outcome.attempts = attempt
		attemptCtx := services.WithAttempt(ctx, attempt)
		logger := logging.WithContext(attemptCtx, m.logger)

		rec, report, err := m.processor.Process(attemptCtx, item)
		outcome.report = report
		if err == nil {
			if err := m.commit(services.WithStage(attemptCtx, "commit"), logger, rec); err != nil {
				outcome.err = err
				m.logItemFailure(logger, item, outcome)
				return outcome
			}
			outcome.err = nil
			logger.Info("item synced",
				logging.String("item", item.Label()),
				logging.String("fingerprint", rec.Fingerprint),
				logging.Int("files", report.FilesWritten),
			)
			return outcome
		}

		outcome.err = err
		if services.KindOf(err) == services.KindCancelled {
			outcome.skipped = SkipCancelled
			logger.Info("item interrupted by cancellation; it will be retried next pass")
			return outcome
		}
		if !services.Retryable(err) || attempt == maxAttempts {
			break
		}

		delay := m.nextDelay(attempt)
		logging.WarnWithContext(logger, "download failed; retrying", "download_retry",
			logging.Error(err),
			logging.Duration("backoff", delay),
			logging.Int("max_attempts", maxAttempts),
			logging.String(logging.FieldErrorKind, string(services.KindOf(err))),
			logging.String(logging.FieldImpact, "item is retried"),
			logging.String(logging.FieldErrorHint, "transient network or server error"),
		)
		if err := m.sleep(ctx, delay); err != nil {
			outcome.skipped = SkipCancelled
			return outcome
		}
	}

	m.logItemFailure(logging.WithContext(services.WithAttempt(ctx, outcome.attempts), m.logger), item, outcome)
	return outcome
}

// commit writes rec under the single-writer lock. The write is detached from
// cancellation so an extracted item is not left without its record because
// the pass was interrupted at the last moment.
func (m *Manager) commit(ctx context.Context, logger *slog.Logger, rec state.Record) error {
	m.commitMu.Lock()
	defer m.commitMu.Unlock()

	commitCtx := context.WithoutCancel(ctx)
	attempts := max(1, m.cfg.Sync.StoreCommitAttempts)
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = m.store.Put(commitCtx, rec); err == nil {
			return nil
		}
		if attempt < attempts {
			logging.WarnWithContext(logger, "state commit failed; retrying", "state_commit_retry",
				logging.Error(err),
				logging.Int("commit_attempt", attempt),
				logging.String(logging.FieldImpact, "commit is retried"),
				logging.String(logging.FieldErrorHint, "another process may hold the state database"),
			)
		}
	}
	return services.Wrap(services.ErrStore, "commit", "put record", rec.ItemID, err)
}

func (m *Manager) logItemFailure(logger *slog.Logger, item catalog.Item, outcome itemOutcome) {
	kind := services.KindOf(outcome.err)
	hint := "the item is retried on the next pass"
	switch kind {
	case services.KindCorruptArchive:
		hint = "the archive could not be read; it is retried next pass in case the upload changes"
	case services.KindWrite:
		hint = "check target_dir permissions and free space"
	case services.KindStore:
		hint = "check the state database; files are in place and will be overwritten next pass"
	}
	logging.ErrorWithContext(logger, "item failed", "item_failed",
		logging.String("item", item.Label()),
		logging.Error(outcome.err),
		logging.Int("attempts", outcome.attempts),
		logging.String(logging.FieldErrorKind, string(kind)),
		logging.String(logging.FieldErrorHint, hint),
	)
}
