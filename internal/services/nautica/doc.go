// Package nautica implements the catalog Lister for Nautica chart servers.
//
// The client walks the paginated /app/songs listing, converts each song's
// upload time into the item's update timestamp, and derives the per-song
// archive download URL. Transport and decode failures surface as
// services.ErrCatalogUnavailable so the orchestrator can abort the pass
// before any work is planned.
package nautica
