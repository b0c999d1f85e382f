package planner

import (
	"context"
	"sort"

	"packsync/internal/catalog"
	"packsync/internal/services"
	"packsync/internal/state"
)

// ItemError pairs a catalog item with the error that kept it out of the plan.
type ItemError struct {
	Item catalog.Item
	Err  error
}

// ChangeSet is the work a pass has to do.
type ChangeSet struct {
	New            []catalog.Item
	Updated        []catalog.Item
	UnchangedCount int
	// Invalid holds items whose id cannot name a directory.
	Invalid []catalog.Item
	// Unreadable holds items whose stored record could not be read.
	Unreadable []ItemError
}

// Empty reports whether there is nothing to extract.
func (c ChangeSet) Empty() bool {
	return len(c.New) == 0 && len(c.Updated) == 0
}

// Queue returns new and updated items merged into processing order.
func (c ChangeSet) Queue() []catalog.Item {
	queue := make([]catalog.Item, 0, len(c.New)+len(c.Updated))
	queue = append(queue, c.New...)
	queue = append(queue, c.Updated...)
	sortItems(queue)
	return queue
}

// Plan compares the catalog snapshot against the store. An item is new when
// no record exists and updated when the stored last_synced_at is strictly
// before the item's updated_at. Duplicate ids keep the most recent entry.
func Plan(ctx context.Context, items []catalog.Item, store state.Store) (ChangeSet, error) {
	var cs ChangeSet
	for _, item := range dedupe(items) {
		if err := ctx.Err(); err != nil {
			return ChangeSet{}, services.Wrap(services.ErrCancelled, "planning", "plan", "planning interrupted", err)
		}
		if !catalog.ValidID(item.ID) {
			cs.Invalid = append(cs.Invalid, item)
			continue
		}
		rec, ok, err := store.Get(ctx, item.ID)
		switch {
		case err != nil:
			cs.Unreadable = append(cs.Unreadable, ItemError{
				Item: item,
				Err:  services.Wrap(services.ErrStore, "planning", "read record", item.ID, err),
			})
		case !ok:
			cs.New = append(cs.New, item)
		case rec.LastSyncedAt.Before(item.UpdatedAt):
			cs.Updated = append(cs.Updated, item)
		default:
			cs.UnchangedCount++
		}
	}
	sortItems(cs.New)
	sortItems(cs.Updated)
	sortItems(cs.Invalid)
	sort.SliceStable(cs.Unreadable, func(i, j int) bool {
		return less(cs.Unreadable[i].Item, cs.Unreadable[j].Item)
	})
	return cs, nil
}

func dedupe(items []catalog.Item) []catalog.Item {
	index := make(map[string]int, len(items))
	out := make([]catalog.Item, 0, len(items))
	for _, item := range items {
		if i, ok := index[item.ID]; ok {
			if item.UpdatedAt.After(out[i].UpdatedAt) {
				out[i] = item
			}
			continue
		}
		index[item.ID] = len(out)
		out = append(out, item)
	}
	return out
}

func sortItems(items []catalog.Item) {
	sort.SliceStable(items, func(i, j int) bool { return less(items[i], items[j]) })
}

func less(a, b catalog.Item) bool {
	if !a.UpdatedAt.Equal(b.UpdatedAt) {
		return a.UpdatedAt.Before(b.UpdatedAt)
	}
	return a.ID < b.ID
}
