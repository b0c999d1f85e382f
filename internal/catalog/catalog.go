package catalog

import (
	"context"
	"strings"
	"time"
)

// Item is one downloadable entry advertised by the remote catalog.
type Item struct {
	ID          string
	UpdatedAt   time.Time
	DownloadURL string
	DisplayName string
}

// Lister returns the current catalog snapshot.
type Lister interface {
	ListItems(ctx context.Context) ([]Item, error)
}

// ListerFunc adapts a plain function to Lister.
type ListerFunc func(ctx context.Context) ([]Item, error)

func (f ListerFunc) ListItems(ctx context.Context) ([]Item, error) { return f(ctx) }

// ValidID reports whether id can be used as a single directory name under the
// target directory.
func ValidID(id string) bool {
	if id == "" || id == "." || id == ".." || len(id) > 255 {
		return false
	}
	if strings.TrimSpace(id) != id {
		return false
	}
	for _, r := range id {
		switch {
		case r == '/' || r == '\\' || r == ':':
			return false
		case r < 0x20 || r == 0x7f:
			return false
		}
	}
	return true
}

// Label returns the display name when present, otherwise the id.
func (i Item) Label() string {
	if name := strings.TrimSpace(i.DisplayName); name != "" {
		return name
	}
	return i.ID
}
