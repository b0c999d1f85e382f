package workflow_test

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/zeebo/blake3"

	"packsync/internal/config"
	"packsync/internal/services"
	"packsync/internal/state"
	"packsync/internal/testsupport"
	"packsync/internal/workflow"
)

func TestRunPassEndToEndIsIdempotent(t *testing.T) {
	h := newHarness(t)
	archive := h.addSong(t, "pack-1", uploaded,
		testsupport.ZipEntry{Name: "pack-1-contents/chart.ksh", Body: []byte("chart")},
		testsupport.ZipEntry{Name: "pack-1-contents/music.ogg", Body: []byte("music")},
	)
	store := testsupport.MustOpenStore(t, h.cfg)

	before := time.Now()
	first := h.run(t, store, workflow.Options{})
	if len(first.Plan.New) != 1 || strings.Join(first.Succeeded, ",") != "pack-1" || first.HasFailures() {
		t.Fatalf("unexpected first summary: %+v", first)
	}
	if first.PassID == "" || first.FilesWritten != 2 {
		t.Fatalf("unexpected pass details: %+v", first)
	}

	rec, ok, err := store.Get(context.Background(), "pack-1")
	if err != nil || !ok {
		t.Fatalf("expected record, ok=%v err=%v", ok, err)
	}
	sum := blake3.Sum256(archive)
	if rec.Fingerprint != "blake3:"+hex.EncodeToString(sum[:]) {
		t.Fatalf("unexpected fingerprint %s", rec.Fingerprint)
	}
	if rec.LastSyncedAt.Before(before.Add(-time.Second)) || rec.DisplayName != "Artist - Title pack-1" {
		t.Fatalf("unexpected record: %+v", rec)
	}

	tree := testsupport.ReadTree(t, h.cfg.Paths.TargetDir)
	if tree["pack-1/pack-1-contents/chart.ksh"] != "chart" || len(tree) != 2 {
		t.Fatalf("unexpected tree: %v", tree)
	}

	second := h.run(t, store, workflow.Options{})
	if !second.Plan.Empty() || second.Plan.UnchangedCount != 1 || len(second.Succeeded) != 0 {
		t.Fatalf("second pass should have nothing to do: %+v", second.Plan)
	}
	if h.srv.Downloads("pack-1") != 1 {
		t.Fatalf("expected a single download, got %d", h.srv.Downloads("pack-1"))
	}
	if fmt.Sprint(testsupport.ReadTree(t, h.cfg.Paths.TargetDir)) != fmt.Sprint(tree) {
		t.Fatal("second pass changed the target tree")
	}
	if len(h.notifier.completed) != 1 {
		t.Fatalf("expected one completion notification, got %d", len(h.notifier.completed))
	}
}

func TestRunPassReextractsUpdatedItems(t *testing.T) {
	h := newHarness(t)
	h.addSong(t, "pack-1", uploaded, testsupport.ZipEntry{Name: "chart.ksh", Body: []byte("v1")})
	store := state.NewMemoryStore()
	h.run(t, store, workflow.Options{})

	future := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	h.addSong(t, "pack-1", future, testsupport.ZipEntry{Name: "chart.ksh", Body: []byte("v2")})

	summary := h.run(t, store, workflow.Options{})
	if len(summary.Plan.Updated) != 1 || len(summary.Succeeded) != 1 {
		t.Fatalf("expected one updated item, got %+v", summary.Plan)
	}
	if got := testsupport.ReadTree(t, h.cfg.Paths.TargetDir)["pack-1/chart.ksh"]; got != "v2" {
		t.Fatalf("expected new content, got %q", got)
	}
	rec, _, _ := store.Get(context.Background(), "pack-1")
	if !rec.LastSyncedAt.Equal(future) {
		t.Fatalf("last_synced_at should follow a future catalog timestamp, got %v", rec.LastSyncedAt)
	}

	third := h.run(t, store, workflow.Options{})
	if !third.Plan.Empty() {
		t.Fatalf("expected no work after update, got %+v", third.Plan)
	}
}

func TestRunPassDryRun(t *testing.T) {
	h := newHarness(t)
	h.addSong(t, "a", uploaded, testsupport.ZipEntry{Name: "x", Body: []byte("x")})
	h.addSong(t, "b", uploaded.Add(time.Minute), testsupport.ZipEntry{Name: "y", Body: []byte("y")})
	store := state.NewMemoryStore()

	summary := h.run(t, store, workflow.Options{DryRun: true})
	if !summary.DryRun || len(summary.Plan.New) != 2 {
		t.Fatalf("unexpected dry-run summary: %+v", summary)
	}
	if len(summary.Succeeded) != 0 || h.srv.TotalDownloads() != 0 || store.Len() != 0 {
		t.Fatal("dry run must not download or commit")
	}
	if len(testsupport.ReadTree(t, h.cfg.Paths.TargetDir)) != 0 {
		t.Fatal("dry run must not write files")
	}
	if len(h.notifier.completed) != 0 {
		t.Fatal("dry run must not notify")
	}
}

func TestRunPassRetriesDownloadErrors(t *testing.T) {
	h := newHarness(t, testsupport.WithDownloadAttempts(3))
	h.addSong(t, "flaky", uploaded, testsupport.ZipEntry{Name: "x", Body: []byte("x")})
	h.srv.FailDownloads("flaky", 2, http.StatusServiceUnavailable)

	summary := h.run(t, state.NewMemoryStore(), workflow.Options{})
	if strings.Join(summary.Succeeded, ",") != "flaky" {
		t.Fatalf("expected success after retries, got %+v", summary)
	}
	if h.srv.Downloads("flaky") != 3 {
		t.Fatalf("expected 3 downloads, got %d", h.srv.Downloads("flaky"))
	}
	if got := fmt.Sprint(h.recordedSleeps()); got != "[1ms 2ms]" {
		t.Fatalf("unexpected backoff sequence %s", got)
	}
}

func TestRunPassRetryBudget(t *testing.T) {
	h := newHarness(t, testsupport.WithDownloadAttempts(6))
	h.addSong(t, "down", uploaded, testsupport.ZipEntry{Name: "x", Body: []byte("x")})
	h.srv.FailDownloads("down", 100, http.StatusBadGateway)
	store := state.NewMemoryStore()

	summary := h.run(t, store, workflow.Options{})
	if len(summary.Failed) != 1 {
		t.Fatalf("expected one failure, got %+v", summary)
	}
	failure := summary.Failed[0]
	if failure.ItemID != "down" || failure.Kind != services.KindDownload || failure.Attempts != 6 {
		t.Fatalf("unexpected failure: %+v", failure)
	}
	if h.srv.Downloads("down") != 6 {
		t.Fatalf("expected 6 downloads, got %d", h.srv.Downloads("down"))
	}
	if got := fmt.Sprint(h.recordedSleeps()); got != "[1ms 2ms 4ms 8ms 8ms]" {
		t.Fatalf("backoff should double and cap at 8x, got %s", got)
	}
	if store.Len() != 0 {
		t.Fatal("failed item must not be committed")
	}
}

func TestRunPassDoesNotRetryCorruptArchives(t *testing.T) {
	h := newHarness(t, testsupport.WithDownloadAttempts(3))
	h.addRaw("broken", uploaded, []byte("this is not a zip file"))
	h.addSong(t, "good", uploaded.Add(time.Minute), testsupport.ZipEntry{Name: "x", Body: []byte("x")})

	summary := h.run(t, state.NewMemoryStore(), workflow.Options{})
	if len(summary.Failed) != 1 || summary.Failed[0].Kind != services.KindCorruptArchive || summary.Failed[0].Attempts != 1 {
		t.Fatalf("unexpected failures: %+v", summary.Failed)
	}
	if h.srv.Downloads("broken") != 1 {
		t.Fatalf("corrupt archive was downloaded %d times", h.srv.Downloads("broken"))
	}
	if strings.Join(summary.Succeeded, ",") != "good" {
		t.Fatalf("other items must still sync, got %v", summary.Succeeded)
	}
	if len(h.recordedSleeps()) != 0 {
		t.Fatal("no backoff expected")
	}
	notified := h.notifier.completed[0]
	if strings.Join(notified.Failed, ",") != "broken" || notified.Succeeded != 1 {
		t.Fatalf("unexpected notification: %+v", notified)
	}
}

func TestRunPassCommitFailureLeavesNoRecord(t *testing.T) {
	h := newHarness(t)
	h.addSong(t, "pack-1", uploaded,
		testsupport.ZipEntry{Name: "a.ksh", Body: []byte("a")},
		testsupport.ZipEntry{Name: "b.ksh", Body: []byte("b")},
	)
	memory := state.NewMemoryStore()
	broken := &brokenStore{Store: memory}

	summary := h.run(t, broken, workflow.Options{})
	if len(summary.Failed) != 1 || summary.Failed[0].Kind != services.KindStore {
		t.Fatalf("expected a store failure, got %+v", summary)
	}
	if broken.puts.Load() != int32(h.cfg.Sync.StoreCommitAttempts) {
		t.Fatalf("expected %d commit attempts, got %d", h.cfg.Sync.StoreCommitAttempts, broken.puts.Load())
	}
	if memory.Len() != 0 {
		t.Fatal("no record may exist after a failed commit")
	}
	firstTree := testsupport.ReadTree(t, h.cfg.Paths.TargetDir)
	if len(firstTree) != 2 {
		t.Fatalf("files should be in place before the commit, got %v", firstTree)
	}

	summary = h.run(t, memory, workflow.Options{})
	if len(summary.Plan.New) != 1 || strings.Join(summary.Succeeded, ",") != "pack-1" {
		t.Fatalf("item should be processed again, got %+v", summary)
	}
	if fmt.Sprint(testsupport.ReadTree(t, h.cfg.Paths.TargetDir)) != fmt.Sprint(firstTree) {
		t.Fatal("re-processing must produce identical files")
	}
}

func TestRunPassSerializesCommits(t *testing.T) {
	h := newHarness(t, testsupport.WithConcurrency(4))
	for i := range 12 {
		id := fmt.Sprintf("item-%02d", i)
		h.addSong(t, id, uploaded.Add(time.Duration(i)*time.Minute), testsupport.ZipEntry{Name: id + ".ksh", Body: []byte(id)})
	}
	store := &serialStore{Store: state.NewMemoryStore()}

	summary := h.run(t, store, workflow.Options{})
	if len(summary.Succeeded) != 12 {
		t.Fatalf("expected 12 successes, got %+v", summary)
	}
	if summary.Succeeded[0] != "item-00" || summary.Succeeded[11] != "item-11" {
		t.Fatalf("summary should follow plan order, got %v", summary.Succeeded)
	}
	if store.overlapped.Load() {
		t.Fatal("commits overlapped")
	}
	if store.puts.Load() != 12 {
		t.Fatalf("expected 12 commits, got %d", store.puts.Load())
	}
}

func TestRunPassCancellation(t *testing.T) {
	h := newHarness(t, testsupport.WithConcurrency(1))
	for i := range 3 {
		id := fmt.Sprintf("item-%d", i)
		h.addSong(t, id, uploaded.Add(time.Duration(i)*time.Minute), testsupport.ZipEntry{Name: "x", Body: []byte("x")})
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.srv.OnDownload(func(string) { cancel() })
	store := state.NewMemoryStore()

	summary, err := h.manager(t, store).RunPass(ctx, workflow.Options{})
	if err != nil {
		t.Fatalf("RunPass: %v", err)
	}
	if len(summary.Skipped) != 3 || len(summary.Failed) != 0 || len(summary.Succeeded) != 0 {
		t.Fatalf("expected all items skipped, got %+v", summary)
	}
	for _, skip := range summary.Skipped {
		if skip.Reason != workflow.SkipCancelled {
			t.Fatalf("unexpected skip reason %q", skip.Reason)
		}
	}
	if store.Len() != 0 {
		t.Fatal("cancelled items must not be committed")
	}
	if h.srv.TotalDownloads() != 1 {
		t.Fatalf("no new items should start after cancellation, got %d downloads", h.srv.TotalDownloads())
	}
}

func TestRunPassSkipsInvalidIDs(t *testing.T) {
	h := newHarness(t)
	h.addSong(t, "bad:id", uploaded, testsupport.ZipEntry{Name: "x", Body: []byte("x")})
	h.addSong(t, "ok", uploaded, testsupport.ZipEntry{Name: "x", Body: []byte("x")})

	summary := h.run(t, state.NewMemoryStore(), workflow.Options{})
	if len(summary.Skipped) != 1 || summary.Skipped[0].ItemID != "bad:id" || summary.Skipped[0].Reason != workflow.SkipInvalidID {
		t.Fatalf("unexpected skips: %+v", summary.Skipped)
	}
	if strings.Join(summary.Succeeded, ",") != "ok" {
		t.Fatalf("unexpected successes: %v", summary.Succeeded)
	}
}

func TestRunPassCatalogUnavailable(t *testing.T) {
	h := newHarness(t)
	h.srv.FailListing(http.StatusInternalServerError)
	store := state.NewMemoryStore()

	_, err := h.manager(t, store).RunPass(context.Background(), workflow.Options{})
	if !errors.Is(err, services.ErrCatalogUnavailable) {
		t.Fatalf("expected ErrCatalogUnavailable, got %v", err)
	}
	if len(h.notifier.aborted) != 1 || h.notifier.aborted[0] != "catalog unavailable" {
		t.Fatalf("expected abort notification, got %v", h.notifier.aborted)
	}
	if store.Len() != 0 {
		t.Fatal("store must not change")
	}
}

func TestRunPassLockHeld(t *testing.T) {
	h := newHarness(t)
	if err := h.cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}
	lock := flock.New(h.cfg.LockPath())
	ok, err := lock.TryLock()
	if err != nil || !ok {
		t.Fatalf("TryLock: ok=%v err=%v", ok, err)
	}
	defer lock.Unlock()

	_, err = h.manager(t, state.NewMemoryStore()).RunPass(context.Background(), workflow.Options{})
	if !errors.Is(err, workflow.ErrPassLocked) {
		t.Fatalf("expected ErrPassLocked, got %v", err)
	}
}

func TestRunPassPreflightFailure(t *testing.T) {
	h := newHarness(t)
	h.cfg.Sync.MinFreeMiB = 1 << 40
	h.addSong(t, "a", uploaded, testsupport.ZipEntry{Name: "x", Body: []byte("x")})

	_, err := h.manager(t, state.NewMemoryStore()).RunPass(context.Background(), workflow.Options{})
	if !errors.Is(err, workflow.ErrPreflightFailed) {
		t.Fatalf("expected ErrPreflightFailed, got %v", err)
	}
	if h.srv.TotalDownloads() != 0 {
		t.Fatal("nothing may be downloaded after a failed preflight")
	}
}

func TestRunPassRemovesStaleStagingFiles(t *testing.T) {
	h := newHarness(t)
	stale := h.cfg.Paths.StagingDir + "/old-123.zip"
	testsupport.WriteFile(t, stale, "leftover", 2*h.cfg.StagingMaxAge())

	h.run(t, state.NewMemoryStore(), workflow.Options{})
	if len(testsupport.ReadTree(t, h.cfg.Paths.StagingDir)) != 0 {
		t.Fatal("stale staging file should be removed at pass start")
	}
}

func TestNewManagerRequiresCollaborators(t *testing.T) {
	cfg := config.Default()
	if _, err := workflow.NewManager(&cfg, nil, nil, nil, nil); services.KindOf(err) != services.KindConfiguration {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
