package archive

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"sync/atomic"

	"github.com/klauspost/compress/zip"

	"packsync/internal/charset"
	"packsync/internal/services"
)

// ErrConsumed is returned when Entries is ranged over a second time.
var ErrConsumed = errors.New("archive: entries already consumed")

// Entry is one member of an archive with its decoded, validated name.
type Entry struct {
	RawName    []byte
	Name       string
	Size       uint64
	IsDir      bool
	Mode       fs.FileMode
	Encoding   string
	Confidence charset.Confidence

	file *zip.File
}

// Open streams the entry's decompressed content.
func (e Entry) Open() (io.ReadCloser, error) {
	if e.file == nil {
		return nil, services.Wrap(services.ErrCorruptArchive, "archive", "open entry", "entry has no content", nil)
	}
	rc, err := e.file.Open()
	if err != nil {
		return nil, services.Wrap(services.ErrCorruptArchive, "archive", "open entry", e.Name, err)
	}
	return rc, nil
}

// Reader exposes the entries of a zip archive as a single forward pass.
type Reader struct {
	zr       *zip.Reader
	closer   io.Closer
	detector *charset.Detector
	consumed atomic.Bool
}

// Open opens the archive at path. Failures to read the container are
// reported as services.ErrCorruptArchive.
func Open(path string, detector *charset.Detector) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, services.Wrap(services.ErrWrite, "archive", "open", "open staged archive", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, services.Wrap(services.ErrWrite, "archive", "open", "stat staged archive", err)
	}
	r, err := NewReader(file, info.Size(), detector)
	if err != nil {
		file.Close()
		return nil, err
	}
	r.closer = file
	return r, nil
}

// NewReader reads a zip archive of the given size from r.
func NewReader(r io.ReaderAt, size int64, detector *charset.Detector) (*Reader, error) {
	if detector == nil {
		return nil, fmt.Errorf("archive: detector is required")
	}
	zr, err := zip.NewReader(r, size)
	if zr == nil {
		return nil, services.Wrap(services.ErrCorruptArchive, "archive", "open", "read zip directory", err)
	}
	// A reader returned together with an error only flags insecure names;
	// CleanName rejects those per entry.
	return &Reader{zr: zr, detector: detector}, nil
}

// Len returns the number of entries in the central directory.
func (r *Reader) Len() int {
	return len(r.zr.File)
}

// Close releases the underlying file, if any.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// Entries yields every entry in directory order. Names are decoded lazily as
// the sequence advances. Entries whose names are unsafe are yielded with an
// error marked services.ErrEntryRejected; the Entry still carries the raw and
// decoded names for logging. The sequence can be consumed once.
func (r *Reader) Entries() iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		if !r.consumed.CompareAndSwap(false, true) {
			yield(Entry{}, ErrConsumed)
			return
		}
		for _, f := range r.zr.File {
			entry, err := r.entry(f)
			if !yield(entry, err) {
				return
			}
		}
	}
}

func (r *Reader) entry(f *zip.File) (Entry, error) {
	raw := []byte(f.Name)
	decoded := decodeName(r.detector, raw, f.Flags, f.Extra)
	mode := f.Mode()
	entry := Entry{
		RawName:    raw,
		Name:       decoded.Text,
		Size:       f.UncompressedSize64,
		Mode:       mode,
		IsDir:      mode.IsDir() || hasTrailingSeparator(decoded.Text),
		Encoding:   decoded.Encoding,
		Confidence: decoded.Confidence,
		file:       f,
	}
	if mode&fs.ModeSymlink != 0 {
		return entry, services.Wrap(services.ErrEntryRejected, "archive", "validate", fmt.Sprintf("symlink entry %q is not extracted", decoded.Text), nil)
	}
	name, err := CleanName(decoded.Text)
	if err != nil {
		return entry, err
	}
	entry.Name = name
	return entry, nil
}
