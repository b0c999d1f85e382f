// Package charset decodes archive entry names whose byte encoding is not
// declared.
//
// Names that are pure ASCII or well-formed UTF-8 are used as stored. Anything
// else is decoded with each configured legacy encoding (Shift_JIS, EUC-KR and
// Big5 by default). A decoding is discarded when it produces replacement
// characters, C1 controls, or private-use code points. The survivors are
// scored by how plausible their characters are for file names, weighted by
// how common each character's code region is in that encoding. The result
// carries a confidence grade so callers can log doubtful names without
// failing the extraction.
package charset
