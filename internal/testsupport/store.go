package testsupport

import (
	"testing"

	"packsync/internal/config"
	"packsync/internal/state"
)

// MustOpenStore opens the SQLite state store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *state.SQLiteStore {
	t.Helper()

	store, err := state.OpenFromConfig(cfg)
	if err != nil {
		t.Fatalf("state.OpenFromConfig: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}
