package testsupport

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
)

// ZipEntry describes one member of a generated archive.
type ZipEntry struct {
	// Name is the stored name when RawName is empty. It is written with the
	// UTF-8 flag set when it contains non-ASCII characters.
	Name string
	// RawName is written byte-for-byte without the UTF-8 flag.
	RawName []byte
	Body    []byte
	Mode    fs.FileMode
	// ForceUTF8Flag sets the UTF-8 flag even when the name is not UTF-8.
	ForceUTF8Flag bool
	Extra         []byte
}

// BuildZip returns a deflated zip archive holding entries in order.
func BuildZip(t testing.TB, entries ...ZipEntry) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, entry := range entries {
		header := &zip.FileHeader{
			Name:   entry.Name,
			Method: zip.Deflate,
			Extra:  entry.Extra,
		}
		if len(entry.RawName) > 0 {
			header.Name = string(entry.RawName)
			header.NonUTF8 = !entry.ForceUTF8Flag
		}
		if entry.ForceUTF8Flag {
			header.Flags |= 0x800
		}
		if entry.Mode != 0 {
			header.SetMode(entry.Mode)
		}
		w, err := zw.CreateHeader(header)
		if err != nil {
			t.Fatalf("create zip entry %q: %v", header.Name, err)
		}
		if len(entry.Body) > 0 {
			if _, err := w.Write(entry.Body); err != nil {
				t.Fatalf("write zip entry %q: %v", header.Name, err)
			}
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

// WriteZip writes a generated archive under dir and returns its path.
func WriteZip(t testing.TB, dir, name string, entries ...ZipEntry) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, BuildZip(t, entries...), 0o644); err != nil {
		t.Fatalf("write zip %s: %v", path, err)
	}
	return path
}

// UnicodePathExtra builds an Info-ZIP Unicode Path extra field (0x7075)
// carrying name for an entry stored as raw.
func UnicodePathExtra(raw []byte, name string) []byte {
	data := make([]byte, 0, 5+len(name))
	data = append(data, 1)
	data = binary.LittleEndian.AppendUint32(data, crc32.ChecksumIEEE(raw))
	data = append(data, name...)

	field := make([]byte, 0, 4+len(data))
	field = binary.LittleEndian.AppendUint16(field, 0x7075)
	field = binary.LittleEndian.AppendUint16(field, uint16(len(data)))
	return append(field, data...)
}
