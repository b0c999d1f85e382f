// Package workflow runs sync passes.
//
// A pass takes the pass lock, clears stale staging files, runs preflight,
// lists the catalog, and plans against the state store. The resulting queue
// is processed by a bounded worker pool; each item gets its own attempt
// counter, with only download errors retried. Successful items are committed
// to the store one at a time, after their files are in place, so a crash at
// any point leaves at worst an item that is extracted again next pass.
//
// A single item's failure never ends the pass. RunPass returns an error only
// when the pass cannot start: the lock is held, preflight fails, or the
// catalog is unavailable.
package workflow
