package extract

import "packsync/internal/charset"

// Report describes what one extraction did.
type Report struct {
	Entries      int
	FilesWritten int
	Directories  int
	BytesWritten int64
	// Pruned counts files and empty directories removed because the archive
	// no longer contains them.
	Pruned       int
	Rejected     []Rejection
	Doubtful     []DoubtfulName
}

// Rejection is an entry skipped because its name was unsafe.
type Rejection struct {
	RawName []byte
	Name    string
	Err     error
}

// DoubtfulName is an extracted entry whose name was not decoded with High
// confidence.
type DoubtfulName struct {
	Name       string
	Encoding   string
	Confidence charset.Confidence
}
