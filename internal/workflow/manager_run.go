package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"packsync/internal/catalog"
	"packsync/internal/logging"
	"packsync/internal/planner"
	"packsync/internal/services"
)

// RunPass executes one pass from planning to done. Item failures are
// reported in the summary; the error is non-nil only when the pass could not
// start (lock held, preflight failed, catalog unavailable) or planning was
// cancelled.
func (m *Manager) RunPass(ctx context.Context, opts Options) (Summary, error) {
	start := time.Now()
	passID := m.newPassID()
	ctx = services.WithPassID(ctx, passID)
	logger := logging.WithContext(ctx, m.logger)

	summary := Summary{PassID: passID, DryRun: opts.DryRun}
	finish := func(err error) (Summary, error) {
		summary.Duration = time.Since(start)
		return summary, err
	}

	if !opts.DryRun {
		unlock, err := m.acquireLock()
		if err != nil {
			return finish(err)
		}
		defer unlock(logger)

		if err := m.prepare(ctx, logger); err != nil {
			m.notifyAborted(ctx, logger, "preflight failed", err)
			return finish(err)
		}
	}

	items, err := m.listCatalog(services.WithStage(ctx, "catalog"))
	if err != nil {
		if services.KindOf(err) != services.KindCancelled {
			logging.ErrorWithContext(logger, "catalog unavailable; pass aborted", "catalog_unavailable",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check catalog.base_url and network connectivity"),
			)
			m.notifyAborted(ctx, logger, "catalog unavailable", err)
		}
		return finish(err)
	}

	plan, err := planner.Plan(services.WithStage(ctx, "planning"), items, m.store)
	if err != nil {
		return finish(err)
	}
	summary.Plan = plan
	m.recordPlanExceptions(logger, &summary)
	logger.Info("sync plan ready",
		logging.Int("catalog_items", len(items)),
		logging.Int("new", len(plan.New)),
		logging.Int("updated", len(plan.Updated)),
		logging.Int("unchanged", plan.UnchangedCount),
		logging.Int("invalid", len(plan.Invalid)),
		logging.Int("unreadable", len(plan.Unreadable)),
		logging.Bool("dry_run", opts.DryRun),
	)

	queue := plan.Queue()
	if opts.DryRun {
		for _, item := range queue {
			logger.Info(fmt.Sprintf("[dry-run] would extract %s", item.Label()),
				logging.String(logging.FieldItemID, item.ID),
				logging.String("updated_at", item.UpdatedAt.UTC().Format(time.RFC3339)),
			)
		}
		return finish(nil)
	}

	outcomes := m.processQueue(ctx, queue)
	for i, outcome := range outcomes {
		m.applyOutcome(&summary, queue[i], outcome)
	}

	summary.Duration = time.Since(start)
	logger.Info("sync pass completed",
		logging.Int("succeeded", len(summary.Succeeded)),
		logging.Int("failed", len(summary.Failed)),
		logging.Int("skipped", len(summary.Skipped)),
		logging.Int("unchanged", plan.UnchangedCount),
		logging.Int("files_written", summary.FilesWritten),
		logging.Duration("duration", summary.Duration),
		logging.String(logging.FieldEventType, "pass_completed"),
	)
	if len(queue) > 0 || summary.HasFailures() {
		m.notifyCompleted(ctx, logger, summary)
	}
	return summary, nil
}

func (m *Manager) acquireLock() (func(*slog.Logger), error) {
	if err := m.cfg.EnsureDirectories(); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "workflow", "prepare", "create directories", err)
	}
	lock := flock.New(m.cfg.LockPath())
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire pass lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w (lock file %s)", ErrPassLocked, m.cfg.LockPath())
	}
	return func(logger *slog.Logger) {
		if err := lock.Unlock(); err != nil {
			logger.Warn("failed to release pass lock",
				logging.Error(err),
				logging.String(logging.FieldEventType, "pass_lock_release_failed"),
				logging.String(logging.FieldErrorHint, "remove the lock file if no pass is running"),
			)
		}
	}, nil
}

func (m *Manager) listCatalog(ctx context.Context) ([]catalog.Item, error) {
	items, err := m.catalog.ListItems(ctx)
	if err == nil {
		return items, nil
	}
	switch {
	case errors.Is(err, services.ErrCatalogUnavailable), errors.Is(err, services.ErrCancelled):
		return nil, err
	case errors.Is(err, context.Canceled):
		return nil, services.Wrap(services.ErrCancelled, "catalog", "list", "listing cancelled", err)
	default:
		return nil, services.Wrap(services.ErrCatalogUnavailable, "catalog", "list", "list catalog", err)
	}
}

func (m *Manager) recordPlanExceptions(logger *slog.Logger, summary *Summary) {
	for _, item := range summary.Plan.Invalid {
		summary.Skipped = append(summary.Skipped, Skip{ItemID: item.ID, Reason: SkipInvalidID})
		logging.WarnWithContext(logger, "catalog item skipped", "item_invalid_id",
			logging.String(logging.FieldItemID, item.ID),
			logging.String(logging.FieldImpact, "item is never extracted"),
			logging.String(logging.FieldErrorHint, "the catalog returned an id that is not a plain directory name"),
		)
	}
	for _, unreadable := range summary.Plan.Unreadable {
		summary.Failed = append(summary.Failed, Failure{
			ItemID: unreadable.Item.ID,
			Kind:   services.KindOf(unreadable.Err),
			Err:    unreadable.Err,
		})
		logging.ErrorWithContext(logger, "state record unreadable", "state_read_failed",
			logging.String(logging.FieldItemID, unreadable.Item.ID),
			logging.Error(unreadable.Err),
			logging.String(logging.FieldErrorKind, string(services.KindStore)),
			logging.String(logging.FieldErrorHint, "check the state database; the item is retried next pass"),
		)
	}
}

// processQueue runs items on a pool of sync.concurrency workers. Outcomes are
// returned in queue order. Once ctx is cancelled no further items start.
func (m *Manager) processQueue(ctx context.Context, queue []catalog.Item) []itemOutcome {
	outcomes := make([]itemOutcome, len(queue))
	var group errgroup.Group
	group.SetLimit(max(1, m.cfg.Sync.Concurrency))
	for i, item := range queue {
		if ctx.Err() != nil {
			outcomes[i] = itemOutcome{skipped: SkipCancelled}
			continue
		}
		group.Go(func() error {
			if ctx.Err() != nil {
				outcomes[i] = itemOutcome{skipped: SkipCancelled}
				return nil
			}
			outcomes[i] = m.runItem(ctx, item)
			return nil
		})
	}
	_ = group.Wait()
	return outcomes
}

func (m *Manager) applyOutcome(summary *Summary, item catalog.Item, outcome itemOutcome) {
	switch {
	case outcome.skipped != "":
		summary.Skipped = append(summary.Skipped, Skip{ItemID: item.ID, Reason: outcome.skipped})
	case outcome.err != nil:
		summary.Failed = append(summary.Failed, Failure{
			ItemID:   item.ID,
			Kind:     services.KindOf(outcome.err),
			Err:      outcome.err,
			Attempts: outcome.attempts,
		})
	default:
		summary.Succeeded = append(summary.Succeeded, item.ID)
	}
	summary.FilesWritten += outcome.report.FilesWritten
	summary.EntriesRejected += len(outcome.report.Rejected)
	summary.DoubtfulNames += len(outcome.report.Doubtful)
}
