package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"packsync/internal/catalog"
	"packsync/internal/config"
	"packsync/internal/extract"
	"packsync/internal/logging"
	"packsync/internal/notifications"
	"packsync/internal/services"
	"packsync/internal/state"
)

// Processor extracts one catalog item and returns the record to commit.
type Processor interface {
	Process(ctx context.Context, item catalog.Item) (state.Record, extract.Report, error)
}

// Manager runs sync passes: plan against the store, extract the change set
// with a bounded worker pool, and commit records one at a time.
type Manager struct {
	cfg       *config.Config
	catalog   catalog.Lister
	store     state.Store
	processor Processor
	notifier  notifications.Service
	logger    *slog.Logger

	sleep     func(ctx context.Context, d time.Duration) error
	newPassID func() string

	// commitMu keeps the store single-writer across workers.
	commitMu sync.Mutex
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithNotifier replaces the notifier derived from configuration.
func WithNotifier(notifier notifications.Service) ManagerOption {
	return func(m *Manager) {
		if notifier != nil {
			m.notifier = notifier
		}
	}
}

// WithSleep replaces the wait between download attempts.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) ManagerOption {
	return func(m *Manager) {
		if sleep != nil {
			m.sleep = sleep
		}
	}
}

// WithPassIDGenerator replaces the pass id source.
func WithPassIDGenerator(gen func() string) ManagerOption {
	return func(m *Manager) {
		if gen != nil {
			m.newPassID = gen
		}
	}
}

// NewManager constructs a workflow manager.
func NewManager(cfg *config.Config, lister catalog.Lister, store state.Store, processor Processor, logger *slog.Logger, opts ...ManagerOption) (*Manager, error) {
	if cfg == nil || lister == nil || store == nil || processor == nil {
		return nil, services.Wrap(services.ErrConfiguration, "workflow", "configure",
			"manager requires config, catalog, store, and processor", nil)
	}
	m := &Manager{
		cfg:       cfg,
		catalog:   lister,
		store:     store,
		processor: processor,
		notifier:  notifications.NewService(cfg),
		logger:    logging.NewComponentLogger(logger, "workflow"),
		sleep:     sleepContext,
		newPassID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// nextDelay returns the wait after a failed download attempt: the configured
// backoff doubled per attempt, capped at eight times the base.
func (m *Manager) nextDelay(attempt int) time.Duration {
	base := m.cfg.RetryBackoff()
	if base <= 0 || attempt < 1 {
		return 0
	}
	delay := base
	for i := 1; i < attempt && delay < maxBackoffFactor*base; i++ {
		delay *= 2
	}
	return min(delay, maxBackoffFactor*base)
}

const maxBackoffFactor = 8

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
