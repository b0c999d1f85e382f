package workflow

import (
	"context"
	"errors"
	"log/slog"

	"packsync/internal/logging"
	"packsync/internal/notifications"
)

func (m *Manager) notifyCompleted(ctx context.Context, logger *slog.Logger, summary Summary) {
	if m.notifier == nil {
		return
	}
	err := m.notifier.NotifyPassCompleted(context.WithoutCancel(ctx), notifications.PassResult{
		PassID:    summary.PassID,
		Succeeded: len(summary.Succeeded),
		Failed:    summary.FailedIDs(),
		Skipped:   len(summary.Skipped),
		Duration:  summary.Duration,
	})
	m.logNotifyError(logger, err)
}

func (m *Manager) notifyAborted(ctx context.Context, logger *slog.Logger, reason string, cause error) {
	if m.notifier == nil {
		return
	}
	m.logNotifyError(logger, m.notifier.NotifyPassAborted(context.WithoutCancel(ctx), reason, cause))
}

func (m *Manager) logNotifyError(logger *slog.Logger, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, context.Canceled) {
		logger.Debug("notification skipped during shutdown")
		return
	}
	logging.WarnWithContext(logger, "notification failed", "notification_failed",
		logging.Error(err),
		logging.String(logging.FieldImpact, "pass result not pushed"),
		logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
	)
}
