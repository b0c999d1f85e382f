package state

import (
	"context"
	"errors"
	"time"
)

// Record is the persisted evidence that an item was fully extracted.
type Record struct {
	ItemID          string
	LastSyncedAt    time.Time
	Fingerprint     string
	DisplayName     string
	SourceUpdatedAt time.Time
}

// Store persists SyncRecords keyed by item id. Put must be durable when it
// returns nil.
type Store interface {
	Get(ctx context.Context, itemID string) (Record, bool, error)
	Put(ctx context.Context, rec Record) error
	Iterate(ctx context.Context, fn func(Record) error) error
	Close() error
}

// LegacyFingerprint marks records imported from the original downloader's
// metadata file, which never recorded archive contents.
const LegacyFingerprint = "legacy"

var errMissingItemID = errors.New("state: record has no item id")

func validate(rec Record) error {
	if rec.ItemID == "" {
		return errMissingItemID
	}
	return nil
}
