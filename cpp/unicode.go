package cpp

import (
	"unicode"
	"unicode/utf8"
)

// decodeUTF8 decodes one code point at p, returning the rune and the
// offset just past it. Invalid sequences decode as a single replacement
// byte so the lexer keeps making progress.
func decodeUTF8(buf []byte, p int) (rune, int) {
	r, size := utf8.DecodeRune(buf[p:])
	if r == utf8.RuneError && size <= 1 {
		return rune(buf[p]), p + 1
	}
	return r, p + size
}

// encodeUTF8 appends the UTF-8 encoding of c to buf at off and returns
// the number of bytes written. buf must have room for 4 bytes.
func encodeUTF8(buf []byte, off int, c uint32) int {
	return utf8.EncodeRune(buf[off:], rune(c))
}

// isIdentStart reports whether c may begin an identifier. C11 Annex D
// allows a wide set of non-ASCII characters; letters and a handful of
// symbol ranges cover real-world headers.
func isIdentStart(c rune) bool {
	if c == '_' || c == '$' {
		return true
	}
	if c < 0x80 {
		return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
	}
	return unicode.IsLetter(c) || unicode.In(c, unicode.Nl, unicode.Other_ID_Start)
}

// isIdentCont reports whether c may continue an identifier.
func isIdentCont(c rune) bool {
	if isIdentStart(c) {
		return true
	}
	if c < 0x80 {
		return '0' <= c && c <= '9'
	}
	return unicode.IsDigit(c) || unicode.In(c, unicode.Mn, unicode.Mc, unicode.Nd, unicode.Pc, unicode.Other_ID_Continue)
}

// charWidth returns the number of terminal columns a code point
// occupies: 0 for combining marks, 2 for East Asian wide characters.
func charWidth(c rune) int {
	if c == 0 {
		return 0
	}
	if unicode.In(c, unicode.Mn, unicode.Me, unicode.Cf) {
		return 0
	}
	if unicode.In(c, unicode.Han, unicode.Hangul, unicode.Hiragana, unicode.Katakana) {
		return 2
	}
	// Fullwidth and wide forms.
	switch {
	case 0x1100 <= c && c <= 0x115F,
		0x2E80 <= c && c <= 0xA4CF,
		0xAC00 <= c && c <= 0xD7A3,
		0xF900 <= c && c <= 0xFAFF,
		0xFE30 <= c && c <= 0xFE4F,
		0xFF00 <= c && c <= 0xFF60,
		0xFFE0 <= c && c <= 0xFFE6,
		0x20000 <= c && c <= 0x3FFFD:
		return 2
	}
	return 1
}

// displayWidth returns the number of terminal columns buf occupies.
func displayWidth(buf []byte) int {
	w := 0
	for p := 0; p < len(buf); {
		c, next := decodeUTF8(buf, p)
		w += charWidth(c)
		p = next
	}
	return w
}
