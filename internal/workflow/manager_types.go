package workflow

import (
	"errors"
	"time"

	"packsync/internal/planner"
	"packsync/internal/services"
)

// ErrPassLocked is returned when another pass holds the state lock.
var ErrPassLocked = errors.New("another sync pass is running")

// ErrPreflightFailed is returned when the target or staging directory is not
// usable.
var ErrPreflightFailed = errors.New("preflight checks failed")

// Options controls a single pass.
type Options struct {
	// DryRun plans and reports without downloading or writing anything.
	DryRun bool
}

// Failure is an item that did not sync in this pass.
type Failure struct {
	ItemID   string
	Kind     services.Kind
	Err      error
	Attempts int
}

// Skip is an item the pass deliberately did not process.
type Skip struct {
	ItemID string
	Reason string
}

// Skip reasons.
const (
	SkipInvalidID = "item id cannot name a directory"
	SkipCancelled = "pass cancelled"
)

// Summary is the outcome of one pass.
type Summary struct {
	PassID    string
	DryRun    bool
	Plan      planner.ChangeSet
	Succeeded []string
	Failed    []Failure
	Skipped   []Skip
	Duration  time.Duration

	// Totals over the items that were extracted.
	FilesWritten    int
	EntriesRejected int
	DoubtfulNames   int
}

// HasFailures reports whether any item failed.
func (s Summary) HasFailures() bool {
	return len(s.Failed) > 0
}

// FailedIDs lists failed item ids in processing order.
func (s Summary) FailedIDs() []string {
	ids := make([]string, len(s.Failed))
	for i, f := range s.Failed {
		ids[i] = f.ItemID
	}
	return ids
}
