package charset

import (
	"bytes"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/unicode/norm"

	"packsync/internal/config"
)

// Confidence grades how sure the detector is about a decoded name.
type Confidence int

const (
	Fallback Confidence = iota
	Low
	High
)

func (c Confidence) String() string {
	switch c {
	case High:
		return "high"
	case Low:
		return "low"
	default:
		return "fallback"
	}
}

// Encoding names reported for inputs that need no legacy decoding.
const (
	EncodingASCII = "ascii"
	EncodingUTF8  = "utf-8"
)

// highMargin is the lead a winning candidate needs over the runner-up to be
// reported with High confidence.
const highMargin = 0.1

// Result is a decoded entry name.
type Result struct {
	Text       string
	Encoding   string
	Confidence Confidence
}

// Options configures a Detector.
type Options struct {
	// Encodings lists candidate legacy encodings by WHATWG label or IANA
	// name. Earlier entries win ties.
	Encodings      []string
	MinConfidence  float64
	HighConfidence float64
}

type candidate struct {
	name   string
	enc    encoding.Encoding
	region regionFunc
}

// Detector turns raw archive entry names into text. It is safe for concurrent
// use; every call builds its own decoders.
type Detector struct {
	candidates     []candidate
	minConfidence  float64
	highConfidence float64
}

// New builds a detector from explicit options.
func New(opts Options) (*Detector, error) {
	labels := opts.Encodings
	if len(labels) == 0 {
		labels = config.DefaultEncodings
	}
	d := &Detector{
		minConfidence:  opts.MinConfidence,
		highConfidence: opts.HighConfidence,
	}
	seen := make(map[string]struct{}, len(labels))
	for _, label := range labels {
		enc, name, err := lookup(label)
		if err != nil {
			return nil, err
		}
		if name == EncodingUTF8 {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		d.candidates = append(d.candidates, candidate{name: name, enc: enc, region: regionFor(name)})
	}
	if len(d.candidates) == 0 {
		return nil, fmt.Errorf("charset: no usable legacy encodings in %v", labels)
	}
	if d.highConfidence <= 0 {
		d.highConfidence = 0.75
	}
	if d.minConfidence <= 0 || d.minConfidence > d.highConfidence {
		d.minConfidence = 0.35
	}
	return d, nil
}

// NewFromConfig builds a detector from the [extract] section.
func NewFromConfig(cfg *config.Config) (*Detector, error) {
	if cfg == nil {
		return New(Options{})
	}
	return New(Options{
		Encodings:      cfg.Extract.Encodings,
		MinConfidence:  cfg.Extract.MinConfidence,
		HighConfidence: cfg.Extract.HighConfidence,
	})
}

// Candidates returns the canonical names of the configured legacy encodings
// in tie-break order.
func (d *Detector) Candidates() []string {
	names := make([]string, len(d.candidates))
	for i, c := range d.candidates {
		names[i] = c.name
	}
	return names
}

func lookup(label string) (encoding.Encoding, string, error) {
	label = strings.TrimSpace(label)
	if enc, err := htmlindex.Get(label); err == nil && enc != nil {
		name, nameErr := htmlindex.Name(enc)
		if nameErr != nil {
			name = strings.ToLower(label)
		}
		return enc, name, nil
	}
	enc, err := ianaindex.IANA.Encoding(label)
	if err != nil || enc == nil {
		return nil, "", fmt.Errorf("charset: unsupported encoding %q", label)
	}
	name, nameErr := ianaindex.IANA.Name(enc)
	if nameErr != nil {
		name = label
	}
	return enc, strings.ToLower(name), nil
}

type scored struct {
	cand  *candidate
	text  string
	score float64
}

// Detect decodes raw. Pure ASCII and well-formed multi-byte UTF-8 are taken
// as-is; anything else is decoded with every candidate encoding and the
// most plausible result wins.
//
// High means the winner cleared the high threshold with a clear margin, its
// text encodes back to exactly raw, and NFC leaves it unchanged. Low means a
// candidate cleared the minimum threshold. Fallback text is a lossy decode and
// is never empty for non-empty input.
func (d *Detector) Detect(raw []byte) Result {
	if isASCII(raw) {
		return Result{Text: string(raw), Encoding: EncodingASCII, Confidence: High}
	}
	if utf8.Valid(raw) && !hasC1Control(string(raw)) {
		return Result{Text: string(raw), Encoding: EncodingUTF8, Confidence: High}
	}

	var valid []scored
	for i := range d.candidates {
		c := &d.candidates[i]
		text, ok := decodeStrict(c.enc, raw)
		if !ok {
			continue
		}
		valid = append(valid, scored{cand: c, text: text, score: scoreText(c, text)})
	}

	best, runnerUp := pickBest(valid)
	if best == nil || best.score < d.minConfidence {
		return d.fallback(raw, best)
	}

	confidence := Low
	if best.score >= d.highConfidence &&
		best.score-runnerUp >= highMargin &&
		roundTrips(best.cand.enc, best.text, raw) &&
		norm.NFC.IsNormalString(best.text) {
		confidence = High
	}
	return Result{Text: best.text, Encoding: best.cand.name, Confidence: confidence}
}

// pickBest returns the highest scoring candidate (earliest on ties) and the
// best score among candidates whose text differs from the winner's.
func pickBest(valid []scored) (*scored, float64) {
	var best *scored
	for i := range valid {
		if best == nil || valid[i].score > best.score {
			best = &valid[i]
		}
	}
	if best == nil {
		return nil, 0
	}
	runnerUp := 0.0
	for i := range valid {
		if &valid[i] == best || valid[i].text == best.text {
			continue
		}
		if valid[i].score > runnerUp {
			runnerUp = valid[i].score
		}
	}
	return best, runnerUp
}

func (d *Detector) fallback(raw []byte, best *scored) Result {
	if best != nil {
		return Result{Text: best.text, Encoding: best.cand.name, Confidence: Fallback}
	}
	var text, name string
	minFFFD := -1
	for i := range d.candidates {
		c := &d.candidates[i]
		decoded := decodeLossy(c.enc, raw)
		bad := strings.Count(decoded, string(utf8.RuneError))
		if minFFFD < 0 || bad < minFFFD {
			text, name, minFFFD = decoded, c.name, bad
		}
	}
	if text == "" && len(raw) > 0 {
		text = strings.ToValidUTF8(string(raw), string(utf8.RuneError))
		name = EncodingUTF8
	}
	return Result{Text: text, Encoding: name, Confidence: Fallback}
}

func decodeStrict(enc encoding.Encoding, raw []byte) (string, bool) {
	out, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return "", false
	}
	text := string(out)
	for _, r := range text {
		switch {
		case r == utf8.RuneError:
			return "", false
		case r >= 0x80 && unicode.IsControl(r):
			return "", false
		case unicode.Is(unicode.Co, r):
			return "", false
		}
	}
	return text, true
}

// decodeLossy decodes raw and replaces anything that is not a printable
// character with U+FFFD so the name is still usable.
func decodeLossy(enc encoding.Encoding, raw []byte) string {
	out, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		out = []byte(strings.ToValidUTF8(string(raw), string(utf8.RuneError)))
	}
	return strings.Map(func(r rune) rune {
		if r >= 0x80 && (unicode.IsControl(r) || unicode.Is(unicode.Co, r)) {
			return utf8.RuneError
		}
		return r
	}, string(out))
}

func roundTrips(enc encoding.Encoding, text string, raw []byte) bool {
	encoded, err := enc.NewEncoder().Bytes([]byte(text))
	return err == nil && bytes.Equal(encoded, raw)
}

func isASCII(raw []byte) bool {
	for _, b := range raw {
		if b >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

func hasC1Control(s string) bool {
	for _, r := range s {
		if r >= 0x80 && r <= 0x9f {
			return true
		}
	}
	return false
}
