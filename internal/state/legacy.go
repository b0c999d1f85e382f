package state

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
)

// ImportResult summarizes a legacy metadata import.
type ImportResult struct {
	Imported int
	Skipped  []string
}

// ImportLegacy reads the original downloader's meta.json and records every
// listed item as synced at the stored time. The file maps item ids to
// JSON-encoded timestamps, e.g. {"abc": "\"2023-09-07T05:56:46Z\""}. Items
// that already have a record keep it.
func ImportLegacy(ctx context.Context, r io.Reader, store Store) (ImportResult, error) {
	var result ImportResult
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return result, fmt.Errorf("decode legacy metadata: %w", err)
	}

	ids := make([]string, 0, len(raw))
	for id := range raw {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		syncedAt, err := parseLegacyTimestamp(raw[id])
		if err != nil || strings.TrimSpace(id) == "" {
			result.Skipped = append(result.Skipped, id)
			continue
		}
		if _, exists, err := store.Get(ctx, id); err != nil {
			return result, err
		} else if exists {
			result.Skipped = append(result.Skipped, id)
			continue
		}
		if err := store.Put(ctx, Record{ItemID: id, LastSyncedAt: syncedAt, Fingerprint: LegacyFingerprint}); err != nil {
			return result, err
		}
		result.Imported++
	}
	return result, nil
}

// parseLegacyTimestamp accepts both the double-encoded form the original
// database wrote and a plain JSON string.
func parseLegacyTimestamp(value json.RawMessage) (time.Time, error) {
	var outer string
	if err := json.Unmarshal(value, &outer); err != nil {
		return time.Time{}, err
	}
	var inner string
	if err := json.Unmarshal([]byte(outer), &inner); err == nil {
		outer = inner
	}
	ts, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(outer))
	if err != nil {
		return time.Time{}, err
	}
	return ts.UTC(), nil
}
