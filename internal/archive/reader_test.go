package archive_test

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"testing"

	"golang.org/x/text/encoding/japanese"

	"packsync/internal/archive"
	"packsync/internal/charset"
	"packsync/internal/services"
	"packsync/internal/testsupport"
)

func newDetector(t *testing.T) *charset.Detector {
	t.Helper()
	det, err := charset.New(charset.Options{})
	if err != nil {
		t.Fatalf("charset.New: %v", err)
	}
	return det
}

func sjis(t *testing.T, s string) []byte {
	t.Helper()
	out, err := japanese.ShiftJIS.NewEncoder().Bytes([]byte(s))
	if err != nil {
		t.Fatalf("encode %q: %v", s, err)
	}
	return out
}

type result struct {
	entry archive.Entry
	err   error
}

func readAll(t *testing.T, data []byte) []result {
	t.Helper()
	r, err := archive.NewReader(bytes.NewReader(data), int64(len(data)), newDetector(t))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	var out []result
	for entry, err := range r.Entries() {
		out = append(out, result{entry: entry, err: err})
	}
	return out
}

func TestEntriesDecodeNames(t *testing.T) {
	kana := "チューリングラブ feat.Sou.ksh"
	raw := sjis(t, kana)

	data := testsupport.BuildZip(t,
		testsupport.ZipEntry{Name: "曲/譜面.ksh", Body: []byte("utf8")},
		testsupport.ZipEntry{RawName: raw, Body: []byte("legacy")},
		testsupport.ZipEntry{RawName: raw, ForceUTF8Flag: true, Body: []byte("lying")},
		testsupport.ZipEntry{RawName: raw, Extra: testsupport.UnicodePathExtra(raw, "別名.ksh")},
		testsupport.ZipEntry{RawName: raw, Extra: testsupport.UnicodePathExtra([]byte("other"), "別名.ksh")},
	)
	results := readAll(t, data)
	if len(results) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(results))
	}
	for i, res := range results {
		if res.err != nil {
			t.Fatalf("entry %d: unexpected error: %v", i, res.err)
		}
	}

	cases := []struct {
		name     string
		encoding string
	}{
		{"曲/譜面.ksh", charset.EncodingUTF8},
		{kana, "shift_jis"},
		{kana, "shift_jis"},
		{"別名.ksh", charset.EncodingUTF8},
		{kana, "shift_jis"},
	}
	for i, tc := range cases {
		got := results[i].entry
		if got.Name != tc.name || got.Encoding != tc.encoding {
			t.Fatalf("entry %d: got %q (%s), want %q (%s)", i, got.Name, got.Encoding, tc.name, tc.encoding)
		}
		if got.Confidence != charset.High {
			t.Fatalf("entry %d: expected high confidence, got %s", i, got.Confidence)
		}
	}
	if !bytes.Equal(results[1].entry.RawName, raw) {
		t.Fatalf("raw name not preserved: %x", results[1].entry.RawName)
	}
}

func TestEntriesRejectUnsafeNames(t *testing.T) {
	data := testsupport.BuildZip(t,
		testsupport.ZipEntry{Name: "../../etc/passwd", Body: []byte("x")},
		testsupport.ZipEntry{Name: "/abs/file", Body: []byte("x")},
		testsupport.ZipEntry{Name: "C:/windows/file", Body: []byte("x")},
		testsupport.ZipEntry{Name: `dir\..\..\escape`, Body: []byte("x")},
		testsupport.ZipEntry{Name: "link", Mode: fs.ModeSymlink | 0o777, Body: []byte("/etc/passwd")},
		testsupport.ZipEntry{Name: "ok/chart.ksh", Body: []byte("fine")},
	)
	results := readAll(t, data)
	if len(results) != 6 {
		t.Fatalf("expected 6 entries, got %d", len(results))
	}
	for i, res := range results[:5] {
		if !errors.Is(res.err, services.ErrEntryRejected) {
			t.Fatalf("entry %d (%q): expected rejection, got %v", i, res.entry.Name, res.err)
		}
	}
	if results[5].err != nil || results[5].entry.Name != "ok/chart.ksh" {
		t.Fatalf("expected safe entry to survive, got %+v %v", results[5].entry.Name, results[5].err)
	}
}

func TestEntriesNormalizeSeparatorsAndDirectories(t *testing.T) {
	data := testsupport.BuildZip(t,
		testsupport.ZipEntry{Name: "songs/"},
		testsupport.ZipEntry{Name: `songs\chart.ksh`, Body: []byte("body")},
	)
	results := readAll(t, data)
	if results[0].err != nil || !results[0].entry.IsDir || results[0].entry.Name != "songs" {
		t.Fatalf("unexpected directory entry: %+v %v", results[0].entry, results[0].err)
	}
	entry := results[1].entry
	if results[1].err != nil || entry.IsDir || entry.Name != "songs/chart.ksh" {
		t.Fatalf("unexpected file entry: %+v %v", entry, results[1].err)
	}
	rc, err := entry.Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()
	body, err := io.ReadAll(rc)
	if err != nil || string(body) != "body" {
		t.Fatalf("unexpected body %q: %v", body, err)
	}
	if entry.Size != 4 {
		t.Fatalf("unexpected size %d", entry.Size)
	}
}

func TestEntriesSinglePass(t *testing.T) {
	data := testsupport.BuildZip(t, testsupport.ZipEntry{Name: "a.ksh", Body: []byte("a")})
	r, err := archive.NewReader(bytes.NewReader(data), int64(len(data)), newDetector(t))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	if r.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", r.Len())
	}
	count := 0
	for _, err := range r.Entries() {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		count++
	}
	if count != 1 {
		t.Fatalf("expected 1 entry, got %d", count)
	}
	for _, err := range r.Entries() {
		if !errors.Is(err, archive.ErrConsumed) {
			t.Fatalf("expected ErrConsumed, got %v", err)
		}
	}
}

func TestOpenReportsCorruptArchive(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/broken.zip"
	testsupport.WriteFile(t, path, "definitely not a zip archive", 0)

	_, err := archive.Open(path, newDetector(t))
	if !errors.Is(err, services.ErrCorruptArchive) {
		t.Fatalf("expected ErrCorruptArchive, got %v", err)
	}
	if services.KindOf(err) != services.KindCorruptArchive {
		t.Fatalf("unexpected kind %q", services.KindOf(err))
	}
}

func TestOpenReadsArchiveFromDisk(t *testing.T) {
	path := testsupport.WriteZip(t, t.TempDir(), "song.zip",
		testsupport.ZipEntry{Name: "chart.ksh", Body: []byte("data")},
	)
	r, err := archive.Open(path, newDetector(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()
	for entry, err := range r.Entries() {
		if err != nil || entry.Name != "chart.ksh" {
			t.Fatalf("unexpected entry %q: %v", entry.Name, err)
		}
	}
}
