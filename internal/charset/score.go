package charset

import (
	"unicode"
	"unicode/utf8"
)

// regionFunc weighs the encoded form of one character by how common its code
// point region is in the encoding's native text.
type regionFunc func(seq []byte) float64

func regionFor(name string) regionFunc {
	switch name {
	case "shift_jis":
		return shiftJISRegion
	case "euc-jp":
		return eucJPRegion
	case "euc-kr":
		return eucKRRegion
	case "big5":
		return big5Region
	case "gbk", "gb18030":
		return gbkRegion
	default:
		return flatRegion
	}
}

// scoreText averages the plausibility of every non-ASCII character in text
// when encoded with c. ASCII carries no signal and is ignored.
func scoreText(c *candidate, text string) float64 {
	encoder := c.enc.NewEncoder()
	var (
		total float64
		count int
		buf   [utf8.UTFMax]byte
	)
	for _, r := range text {
		if r < utf8.RuneSelf {
			continue
		}
		count++
		weight := runeWeight(r)
		if weight == 0 {
			continue
		}
		n := utf8.EncodeRune(buf[:], r)
		seq, err := encoder.Bytes(buf[:n])
		if err != nil {
			total += weight * 0.5
			continue
		}
		total += weight * c.region(seq)
	}
	if count == 0 {
		return 0
	}
	return total / float64(count)
}

// runeWeight rates how likely a character is to appear in a chart or asset
// file name.
func runeWeight(r rune) float64 {
	switch {
	case r >= 0x3041 && r <= 0x3096, r >= 0x30A1 && r <= 0x30FA, r == 0x30FC, r >= 0xFF61 && r <= 0xFF9F:
		return 1.0 // kana, halfwidth included
	case r >= 0xAC00 && r <= 0xD7A3:
		return 1.0 // hangul syllables
	case r >= 0x4E00 && r <= 0x9FFF:
		return 1.0 // CJK unified ideographs
	case r >= 0x3000 && r <= 0x303F, r >= 0xFF01 && r <= 0xFF5E, r >= 0x3099 && r <= 0x309F, r == 0x30FB:
		return 0.7
	case r >= 0x2010 && r <= 0x206F, r >= 0x2100 && r <= 0x21FF, r >= 0x2460 && r <= 0x24FF,
		r >= 0x25A0 && r <= 0x26FF:
		return 0.4 // punctuation, arrows, circled numbers, shapes, stars and notes
	case r >= 0x00C0 && r <= 0x024F && unicode.IsLetter(r):
		return 0.5
	case r >= 0x0370 && r <= 0x04FF:
		return 0.4
	case r >= 0x3400 && r <= 0x4DBF, r >= 0xF900 && r <= 0xFAFF:
		return 0.3
	case r >= 0x00A0 && r <= 0x00BF, r >= 0x3130 && r <= 0x318F:
		return 0.2
	case r >= 0x2500 && r <= 0x259F:
		return 0.1 // box drawing
	default:
		return 0.05
	}
}

func flatRegion([]byte) float64 { return 1.0 }

func shiftJISRegion(seq []byte) float64 {
	if len(seq) != 2 {
		return 1.0
	}
	switch lead := seq[0]; {
	case lead >= 0x81 && lead <= 0x84, lead >= 0x88 && lead <= 0x98:
		return 1.0 // symbols, kana, JIS level 1 kanji
	case lead == 0x87:
		return 0.6 // NEC row 13: circled numbers, units
	case lead >= 0x99 && lead <= 0x9F, lead >= 0xE0 && lead <= 0xEA:
		return 0.5 // JIS level 2 kanji
	default:
		return 0.2
	}
}

func eucJPRegion(seq []byte) float64 {
	switch {
	case len(seq) == 2 && seq[0] == 0x8E:
		return 1.0 // halfwidth katakana, weighted by runeWeight
	case len(seq) != 2:
		return 0.2
	}
	switch lead := seq[0]; {
	case lead >= 0xA1 && lead <= 0xA8, lead >= 0xB0 && lead <= 0xCF:
		return 1.0
	case lead == 0xAD:
		return 0.6
	case lead >= 0xD0 && lead <= 0xF4:
		return 0.5
	default:
		return 0.2
	}
}

func eucKRRegion(seq []byte) float64 {
	if len(seq) != 2 {
		return 1.0
	}
	lead, trail := seq[0], seq[1]
	if trail < 0xA1 {
		return 0.3 // UHC extension syllables
	}
	switch {
	case lead >= 0xB0 && lead <= 0xC8:
		return 1.0 // KS X 1001 hangul
	case lead >= 0xA1 && lead <= 0xAC:
		return 1.0
	case lead >= 0xCA && lead <= 0xFD:
		return 0.5 // hanja
	default:
		return 0.3
	}
}

func big5Region(seq []byte) float64 {
	if len(seq) != 2 {
		return 1.0
	}
	switch lead := seq[0]; {
	case lead >= 0xA1 && lead <= 0xC6:
		return 1.0 // symbols and frequently used hanzi
	case lead >= 0xC9 && lead <= 0xF9:
		return 0.5
	default:
		return 0.2
	}
}

func gbkRegion(seq []byte) float64 {
	if len(seq) != 2 {
		return 0.2
	}
	lead, trail := seq[0], seq[1]
	if trail < 0xA1 {
		return 0.2 // GBK extension
	}
	switch {
	case lead >= 0xA1 && lead <= 0xA9, lead >= 0xB0 && lead <= 0xD7:
		return 1.0 // GB2312 symbols and level 1 hanzi
	case lead >= 0xD8 && lead <= 0xF7:
		return 0.5
	default:
		return 0.2
	}
}
