package planner_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"time"

	"packsync/internal/catalog"
	"packsync/internal/planner"
	"packsync/internal/services"
	"packsync/internal/state"
)

var base = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func at(hours int) time.Time { return base.Add(time.Duration(hours) * time.Hour) }

func ids(items []catalog.Item) string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.ID
	}
	return strings.Join(out, ",")
}

func TestPlanClassifiesItems(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemoryStore()
	for _, rec := range []state.Record{
		{ItemID: "same", LastSyncedAt: at(5), Fingerprint: "f"},
		{ItemID: "equal", LastSyncedAt: at(3), Fingerprint: "f"},
		{ItemID: "newer", LastSyncedAt: at(1), Fingerprint: "f"},
	} {
		if err := store.Put(ctx, rec); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	items := []catalog.Item{
		{ID: "fresh-b", UpdatedAt: at(2)},
		{ID: "same", UpdatedAt: at(4)},
		{ID: "equal", UpdatedAt: at(3)},
		{ID: "newer", UpdatedAt: at(2)},
		{ID: "fresh-a", UpdatedAt: at(2)},
		{ID: "fresh-c", UpdatedAt: at(1)},
		{ID: "../bad", UpdatedAt: at(1)},
	}
	cs, err := planner.Plan(ctx, items, store)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if got := ids(cs.New); got != "fresh-c,fresh-a,fresh-b" {
		t.Fatalf("unexpected new order: %s", got)
	}
	if got := ids(cs.Updated); got != "newer" {
		t.Fatalf("unexpected updated: %s", got)
	}
	if cs.UnchangedCount != 2 {
		t.Fatalf("expected 2 unchanged, got %d", cs.UnchangedCount)
	}
	if got := ids(cs.Invalid); got != "../bad" {
		t.Fatalf("unexpected invalid: %s", got)
	}
	if got := ids(cs.Queue()); got != "fresh-c,fresh-a,fresh-b,newer" {
		t.Fatalf("unexpected queue: %s", got)
	}
	if cs.Empty() {
		t.Fatal("expected non-empty change set")
	}
}

func TestPlanDedupesKeepingLatest(t *testing.T) {
	items := []catalog.Item{
		{ID: "dup", UpdatedAt: at(1), DisplayName: "old"},
		{ID: "dup", UpdatedAt: at(3), DisplayName: "new"},
		{ID: "dup", UpdatedAt: at(2), DisplayName: "middle"},
	}
	cs, err := planner.Plan(context.Background(), items, state.NewMemoryStore())
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(cs.New) != 1 || cs.New[0].DisplayName != "new" {
		t.Fatalf("expected latest duplicate, got %+v", cs.New)
	}
}

type failingStore struct {
	*state.MemoryStore
	failID string
}

func (f failingStore) Get(ctx context.Context, id string) (state.Record, bool, error) {
	if id == f.failID {
		return state.Record{}, false, errors.New("disk I/O error")
	}
	return f.MemoryStore.Get(ctx, id)
}

func TestPlanIsolatesUnreadableRecords(t *testing.T) {
	store := failingStore{MemoryStore: state.NewMemoryStore(), failID: "broken"}
	items := []catalog.Item{{ID: "broken", UpdatedAt: at(1)}, {ID: "ok", UpdatedAt: at(1)}}
	cs, err := planner.Plan(context.Background(), items, store)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if ids(cs.New) != "ok" {
		t.Fatalf("unexpected new: %s", ids(cs.New))
	}
	if len(cs.Unreadable) != 1 || cs.Unreadable[0].Item.ID != "broken" {
		t.Fatalf("unexpected unreadable: %+v", cs.Unreadable)
	}
	if services.KindOf(cs.Unreadable[0].Err) != services.KindStore {
		t.Fatalf("unexpected kind: %s", services.KindOf(cs.Unreadable[0].Err))
	}
}

func TestPlanHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := planner.Plan(ctx, []catalog.Item{{ID: "a"}}, state.NewMemoryStore())
	if !errors.Is(err, services.ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
}

// Randomized check that new and updated are exactly the ids the store lacks
// or holds with an older last_synced_at, independent of input order.
func TestPlanPartitionProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 50; round++ {
		ctx := context.Background()
		store := state.NewMemoryStore()
		var items []catalog.Item
		wantNew := map[string]bool{}
		wantUpdated := map[string]bool{}
		for i := 0; i < 20; i++ {
			id := fmt.Sprintf("item-%02d", i)
			item := catalog.Item{ID: id, UpdatedAt: at(rng.Intn(10))}
			items = append(items, item)
			switch rng.Intn(3) {
			case 0:
				wantNew[id] = true
			default:
				synced := at(rng.Intn(10))
				_ = store.Put(ctx, state.Record{ItemID: id, LastSyncedAt: synced, Fingerprint: "f"})
				if synced.Before(item.UpdatedAt) {
					wantUpdated[id] = true
				}
			}
		}
		rng.Shuffle(len(items), func(i, j int) { items[i], items[j] = items[j], items[i] })

		first, err := planner.Plan(ctx, items, store)
		if err != nil {
			t.Fatalf("Plan: %v", err)
		}
		if len(first.New) != len(wantNew) || len(first.Updated) != len(wantUpdated) {
			t.Fatalf("round %d: got %d new %d updated, want %d and %d",
				round, len(first.New), len(first.Updated), len(wantNew), len(wantUpdated))
		}
		for _, item := range first.New {
			if !wantNew[item.ID] {
				t.Fatalf("round %d: %s unexpectedly new", round, item.ID)
			}
		}
		for _, item := range first.Updated {
			if !wantUpdated[item.ID] {
				t.Fatalf("round %d: %s unexpectedly updated", round, item.ID)
			}
		}
		if first.UnchangedCount != len(items)-len(wantNew)-len(wantUpdated) {
			t.Fatalf("round %d: unexpected unchanged count %d", round, first.UnchangedCount)
		}

		rng.Shuffle(len(items), func(i, j int) { items[i], items[j] = items[j], items[i] })
		second, _ := planner.Plan(ctx, items, store)
		if ids(first.Queue()) != ids(second.Queue()) {
			t.Fatalf("round %d: plan depends on input order", round)
		}
	}
}
