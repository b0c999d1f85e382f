package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrDownload           = errors.New("download error")
	ErrCorruptArchive     = errors.New("corrupt archive")
	ErrEntryRejected      = errors.New("entry rejected")
	ErrWrite              = errors.New("write error")
	ErrStore              = errors.New("store error")
	ErrCatalogUnavailable = errors.New("catalog unavailable")
	ErrCancelled          = errors.New("cancelled")
	ErrConfiguration      = errors.New("configuration error")
)

// Kind names the failure class of an error for summaries and logs.
type Kind string

const (
	KindNone               Kind = ""
	KindDownload           Kind = "DownloadError"
	KindCorruptArchive     Kind = "CorruptArchive"
	KindEntryRejected      Kind = "EntryRejected"
	KindWrite              Kind = "WriteError"
	KindStore              Kind = "StoreError"
	KindCatalogUnavailable Kind = "CatalogUnavailable"
	KindCancelled          Kind = "Cancelled"
	KindConfiguration      Kind = "ConfigurationError"
	KindUnknown            Kind = "Unknown"
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrWrite
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// KindOf reports the failure class carried by err.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, ErrDownload):
		return KindDownload
	case errors.Is(err, ErrCorruptArchive):
		return KindCorruptArchive
	case errors.Is(err, ErrEntryRejected):
		return KindEntryRejected
	case errors.Is(err, ErrWrite):
		return KindWrite
	case errors.Is(err, ErrStore):
		return KindStore
	case errors.Is(err, ErrCatalogUnavailable):
		return KindCatalogUnavailable
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	default:
		return KindUnknown
	}
}

// Retryable reports whether re-running the same work within a pass can help.
// Only download failures qualify; a corrupt archive is deterministic for the
// bytes already fetched and write failures usually need operator attention.
func Retryable(err error) bool {
	return KindOf(err) == KindDownload
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "sync failure"
	}
	return strings.Join(parts, ": ")
}
