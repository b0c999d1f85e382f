package archive

import (
	"encoding/binary"
	"hash/crc32"
	"unicode/utf8"

	"packsync/internal/charset"
)

const (
	flagUTF8             = 0x800
	extraUnicodePathID   = 0x7075
	unicodePathVersion   = 1
	unicodePathHeaderLen = 5
)

// decodeName resolves an entry name. An Info-ZIP Unicode Path field whose
// CRC matches the stored name wins; the general purpose UTF-8 flag is trusted
// only when the stored bytes are valid UTF-8; everything else goes through
// the detector.
func decodeName(det *charset.Detector, raw []byte, flags uint16, extra []byte) charset.Result {
	if name, ok := unicodePath(extra, raw); ok {
		return charset.Result{Text: name, Encoding: charset.EncodingUTF8, Confidence: charset.High}
	}
	if flags&flagUTF8 != 0 && utf8.Valid(raw) {
		return charset.Result{Text: string(raw), Encoding: charset.EncodingUTF8, Confidence: charset.High}
	}
	return det.Detect(raw)
}

// unicodePath extracts the UTF-8 name from an Info-ZIP Unicode Path extra
// field (0x7075). The field is ignored when its CRC-32 does not match raw,
// which means the name was changed by a tool that did not update the field.
func unicodePath(extra, raw []byte) (string, bool) {
	for len(extra) >= 4 {
		tag := binary.LittleEndian.Uint16(extra[0:2])
		size := int(binary.LittleEndian.Uint16(extra[2:4]))
		extra = extra[4:]
		if size > len(extra) {
			return "", false
		}
		data := extra[:size]
		extra = extra[size:]
		if tag != extraUnicodePathID || len(data) < unicodePathHeaderLen {
			continue
		}
		if data[0] != unicodePathVersion {
			continue
		}
		if binary.LittleEndian.Uint32(data[1:5]) != crc32.ChecksumIEEE(raw) {
			continue
		}
		name := data[unicodePathHeaderLen:]
		if len(name) == 0 || !utf8.Valid(name) {
			continue
		}
		return string(name), true
	}
	return "", false
}
