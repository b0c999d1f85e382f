// Package state persists SyncRecords, the evidence that a catalog item was
// fully extracted.
//
// SQLiteStore is the durable implementation: WAL journaling with
// synchronous=FULL, busy retries with backoff, and an embedded, versioned
// schema. MemoryStore satisfies the same Store interface for tests. A record
// is written only after every file of the item is in place, so a missing
// record always means "extract again".
//
// ImportLegacy seeds the store from the original downloader's meta.json so an
// existing download directory is not fetched again.
package state
