// Package extract implements the per-item extraction pipeline.
//
// Process downloads the item's archive into the staging directory while
// hashing it with BLAKE3, opens it through the archive reader, and writes each
// accepted entry into <target_dir>/<item id>/ with an atomic temp-and-rename.
// Unsafe entry names are skipped and reported; any read or write failure
// aborts the item. The staged archive is removed on every path. The returned
// record is not persisted here: committing it is the orchestrator's job, so a
// crash before the commit simply leaves the item to be extracted again.
package extract
