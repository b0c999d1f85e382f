package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"packsync/internal/config"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckFreeSpace(t *testing.T) {
	dir := t.TempDir()
	if r := CheckFreeSpace("free", dir, 0); !r.Passed {
		t.Fatalf("disabled check should pass: %s", r.Detail)
	}
	if r := CheckFreeSpace("free", dir, 1); !r.Passed {
		t.Fatalf("expected at least 1 MiB free in temp dir: %s", r.Detail)
	}
	if r := CheckFreeSpace("free", dir, 1<<40); r.Passed {
		t.Fatalf("expected failure for an exabyte requirement: %s", r.Detail)
	}
	if r := CheckFreeSpace("free", filepath.Join(dir, "missing"), 1); r.Passed {
		t.Fatal("expected failure for missing path")
	}
}

func TestCheckCatalog_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/app/songs" || r.Header.Get("User-Agent") != "packsync-test" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	result := CheckCatalog(context.Background(), srv.URL+"/", "packsync-test", time.Second)
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
}

func TestCheckCatalog_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	result := CheckCatalog(context.Background(), srv.URL, "", time.Second)
	if result.Passed {
		t.Fatal("expected failure")
	}
	if !strings.Contains(result.Detail, "503") {
		t.Fatalf("expected status in detail, got %q", result.Detail)
	}
}

func TestCheckCatalog_MissingURL(t *testing.T) {
	if result := CheckCatalog(context.Background(), "  ", "", time.Second); result.Passed {
		t.Fatal("expected failure for empty url")
	}
}

func TestRunAllAndFailed(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.TargetDir = filepath.Join(base, "target")
	cfg.Paths.StagingDir = filepath.Join(base, "staging")
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Sync.MinFreeMiB = 0

	results := RunAll(context.Background(), &cfg)
	if err := Failed(results); err == nil || !strings.Contains(err.Error(), "Target directory") {
		t.Fatalf("expected missing target to fail, got %v", err)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}
	results = RunAll(context.Background(), &cfg)
	if err := Failed(results); err != nil {
		t.Fatalf("expected all checks to pass: %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
}

func TestRunAllNilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil); results != nil {
		t.Fatalf("expected nil, got %v", results)
	}
}
