// Package archive reads zip archives and yields their entries with decoded,
// traversal-safe names.
//
// Entry names are resolved per entry as the sequence advances: a matching
// Info-ZIP Unicode Path field first, then the UTF-8 flag when the bytes agree
// with it, then charset detection. Every decoded name is validated by
// CleanName before it is handed out, so callers can join it under a target
// directory without further checks.
package archive
