package workflow_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"packsync/internal/config"
	"packsync/internal/extract"
	"packsync/internal/logging"
	"packsync/internal/notifications"
	"packsync/internal/services/nautica"
	"packsync/internal/state"
	"packsync/internal/testsupport"
	"packsync/internal/workflow"
)

var uploaded = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

type stubNotifier struct {
	mu        sync.Mutex
	completed []notifications.PassResult
	aborted   []string
}

func (s *stubNotifier) NotifyPassCompleted(_ context.Context, result notifications.PassResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed = append(s.completed, result)
	return nil
}

func (s *stubNotifier) NotifyPassAborted(_ context.Context, reason string, _ error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aborted = append(s.aborted, reason)
	return nil
}

func (s *stubNotifier) TestNotification(context.Context) error { return nil }

type harness struct {
	cfg      *config.Config
	srv      *testsupport.ArchiveServer
	notifier *stubNotifier

	mu     sync.Mutex
	sleeps []time.Duration
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	srv := testsupport.NewArchiveServer(t)
	opts = append([]testsupport.ConfigOption{testsupport.WithCatalogURL(srv.URL)}, opts...)
	return &harness{
		cfg:      testsupport.NewConfig(t, opts...),
		srv:      srv,
		notifier: &stubNotifier{},
	}
}

func (h *harness) addSong(t *testing.T, id string, uploadedAt time.Time, entries ...testsupport.ZipEntry) []byte {
	t.Helper()
	archive := testsupport.BuildZip(t, entries...)
	h.addRaw(id, uploadedAt, archive)
	return archive
}

func (h *harness) addRaw(id string, uploadedAt time.Time, archive []byte) {
	h.srv.AddSong(testsupport.Song{ID: id, Title: "Title " + id, Artist: "Artist", UploadedAt: uploadedAt, Archive: archive})
}

func (h *harness) sleep(ctx context.Context, d time.Duration) error {
	h.mu.Lock()
	h.sleeps = append(h.sleeps, d)
	h.mu.Unlock()
	return ctx.Err()
}

func (h *harness) recordedSleeps() []time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]time.Duration(nil), h.sleeps...)
}

func (h *harness) manager(t *testing.T, store state.Store) *workflow.Manager {
	t.Helper()
	lister, err := nautica.New(h.cfg.Catalog.BaseURL, h.cfg.Catalog.UserAgent, 0, nil, logging.NewNop())
	if err != nil {
		t.Fatalf("nautica.New: %v", err)
	}
	pipeline, err := extract.NewFromConfig(h.cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("extract.NewFromConfig: %v", err)
	}
	m, err := workflow.NewManager(h.cfg, lister, store, pipeline, logging.NewNop(),
		workflow.WithNotifier(h.notifier),
		workflow.WithSleep(h.sleep),
	)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func (h *harness) run(t *testing.T, store state.Store, opts workflow.Options) workflow.Summary {
	t.Helper()
	summary, err := h.manager(t, store).RunPass(context.Background(), opts)
	if err != nil {
		t.Fatalf("RunPass: %v", err)
	}
	return summary
}

// serialStore flags overlapping Put calls.
type serialStore struct {
	state.Store
	inFlight   atomic.Int32
	overlapped atomic.Bool
	puts       atomic.Int32
}

func (s *serialStore) Put(ctx context.Context, rec state.Record) error {
	if s.inFlight.Add(1) > 1 {
		s.overlapped.Store(true)
	}
	defer s.inFlight.Add(-1)
	time.Sleep(time.Millisecond)
	s.puts.Add(1)
	return s.Store.Put(ctx, rec)
}

// brokenStore reads normally and fails every write.
type brokenStore struct {
	state.Store
	puts atomic.Int32
}

func (b *brokenStore) Put(context.Context, state.Record) error {
	b.puts.Add(1)
	return errors.New("database is locked")
}
