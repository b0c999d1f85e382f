package fileutil

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ErrTooLarge is returned by WriteAtomic when the source exceeds the limit.
var ErrTooLarge = errors.New("content exceeds size limit")

// TempPrefix starts the names of in-progress temp files.
const TempPrefix = ".packsync-"

// WriteAtomic streams r into path through a temp file in the same directory.
// The temp file is synced, renamed over path, and the directory is synced, so
// path holds either its previous content or all of r. A positive limit caps
// the accepted bytes; exceeding it returns ErrTooLarge and leaves path
// untouched. Parent directories are created as needed.
func WriteAtomic(path string, r io.Reader, perm os.FileMode, limit int64) (int64, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, err
	}

	// The temp name stays short so a final name at the length limit still
	// has room for its temp file.
	tmp, err := os.CreateTemp(dir, TempPrefix+"*")
	if err != nil {
		return 0, err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	src := r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}
	written, err := io.Copy(tmp, src)
	if err != nil {
		return written, err
	}
	if limit > 0 && written > limit {
		return written, fmt.Errorf("%s: %w (%d bytes)", filepath.Base(path), ErrTooLarge, limit)
	}
	if err := tmp.Chmod(perm); err != nil {
		return written, err
	}
	if err := tmp.Sync(); err != nil {
		return written, err
	}
	if err := tmp.Close(); err != nil {
		return written, err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return written, err
	}
	committed = true
	return written, SyncDir(dir)
}

// MkdirAllDurable creates dir and syncs it and its parent.
func MkdirAllDurable(dir string, perm os.FileMode) error {
	if err := os.MkdirAll(dir, perm); err != nil {
		return err
	}
	if err := SyncDir(dir); err != nil {
		return err
	}
	if parent := filepath.Dir(dir); parent != dir {
		return SyncDir(parent)
	}
	return nil
}

// SyncDir flushes directory entries to stable storage.
func SyncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", dir, err)
	}
	return nil
}
