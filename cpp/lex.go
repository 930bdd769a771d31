package cpp

import (
	"strconv"
	"strings"
)

// Keyword spellings, consulted only after preprocessing when
// ConvertPPTokens promotes identifiers. Tokenizing keywords as plain
// identifiers first lets macros shadow them.
var keywords = map[string]struct{}{
	"return": {}, "if": {}, "else": {}, "for": {}, "while": {}, "do": {},
	"int": {}, "char": {}, "short": {}, "long": {}, "void": {}, "float": {},
	"double": {}, "signed": {}, "unsigned": {}, "_Bool": {},
	"struct": {}, "union": {}, "enum": {}, "typedef": {}, "static": {},
	"extern": {}, "auto": {}, "register": {}, "inline": {}, "__inline": {},
	"goto": {}, "break": {}, "continue": {}, "switch": {}, "case": {},
	"default": {}, "sizeof": {}, "const": {}, "volatile": {},
	"restrict": {}, "__restrict": {}, "__restrict__": {},
	"_Alignas": {}, "_Alignof": {}, "_Atomic": {}, "_Noreturn": {},
	"_Thread_local": {}, "__thread": {}, "_Static_assert": {},
	"constexpr": {}, "typeof": {}, "__typeof__": {}, "asm": {},
	"__asm": {}, "__asm__": {}, "__attribute__": {},
}

// IsKeywordName reports whether name spells a keyword.
func IsKeywordName(name string) bool {
	_, ok := keywords[name]
	return ok
}

func (t *Token) isKeyword() bool {
	return IsKeywordName(t.Text())
}

// Punctuators ordered longest first so the scan is longest-match.
// Digraphs are recognized here and normalized via a spelling override.
var punctuators = []string{
	"%:%:", "<<=", ">>=", "...", "==", "!=", "<=", ">=", "->", "+=",
	"-=", "*=", "/=", "++", "--", "%=", "&=", "|=", "^=", "&&",
	"||", "<<", ">>", "##", "::",
	"<:", ":>", "<%", "%>", "%:",
	"<", ">", "=", "-", "!", "&", "|", "%", "(", ")", "[", "]",
	"{", "}", ";", ":", "#", ",", ".", "+", "*", "/", "?", "~",
	"^", "`", "@",
}

var digraphs = map[string]string{
	"<:": "[", ":>": "]", "<%": "{", "%>": "}", "%:": "#", "%:%:": "##",
}

// readPunct returns the length of the punctuator at p, or 0.
func readPunct(src []byte, p int) int {
	for _, punct := range punctuators {
		if p+len(punct) <= len(src) && string(src[p:p+len(punct)]) == punct {
			return len(punct)
		}
	}
	return 0
}

// readIdent returns the byte length of the identifier at p, or 0.
func readIdent(src []byte, p int) int {
	start := p
	c, next := decodeUTF8(src, p)
	if !isIdentStart(c) {
		return 0
	}
	p = next
	for {
		c, next = decodeUTF8(src, p)
		if !isIdentCont(c) {
			return p - start
		}
		p = next
	}
}

func isDigit(c byte) bool { return '0' <= c && c <= '9' }

func isHexDigit(c byte) bool {
	return isDigit(c) || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

func isBinDigit(c byte) bool   { return c == '0' || c == '1' }
func isOctalDigit(c byte) bool { return '0' <= c && c <= '7' }

func isAlnum(c byte) bool {
	return isDigit(c) || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

func fromHex(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	}
	return c - 'A' + 10
}

// readEscapedChar decodes the escape sequence at p (just past the
// backslash) and returns the value and the next offset.
func (pp *Preprocessor) readEscapedChar(file *File, p int) (int, int) {
	buf := file.Contents
	if isOctalDigit(buf[p]) {
		c := int(buf[p] - '0')
		p++
		for i := 0; i < 2 && isOctalDigit(buf[p]); i++ {
			c = c<<3 + int(buf[p]-'0')
			p++
		}
		return c, p
	}
	if buf[p] == 'x' {
		p++
		if !isHexDigit(buf[p]) {
			pp.ds.ErrorAt(file, p, "invalid hex escape sequence")
			return 0, p
		}
		c := 0
		for ; isHexDigit(buf[p]); p++ {
			c = c<<4 + int(fromHex(buf[p]))
		}
		return c, p
	}
	switch buf[p] {
	case 'a':
		return '\a', p + 1
	case 'b':
		return '\b', p + 1
	case 't':
		return '\t', p + 1
	case 'n':
		return '\n', p + 1
	case 'v':
		return '\v', p + 1
	case 'f':
		return '\f', p + 1
	case 'r':
		return '\r', p + 1
	case 'e':
		// [GNU] \e is the ASCII escape character.
		return 27, p + 1
	default:
		return int(buf[p]), p + 1
	}
}

// stringLiteralEnd finds the closing quote, or -1 when the literal runs
// into a newline or EOF.
func stringLiteralEnd(src []byte, p int) int {
	for ; src[p] != '"'; p++ {
		if src[p] == '\n' || src[p] == 0 {
			return -1
		}
		if src[p] == '\\' {
			p++
		}
	}
	return p
}

type lexState struct {
	pp    *Preprocessor
	file  *File
	atBOL bool
	space bool
}

func (lx *lexState) newToken(kind TokenKind, start, end int) *Token {
	tok := &Token{
		Kind:     kind,
		Loc:      start,
		Len:      end - start,
		File:     lx.file,
		Filename: lx.file.DisplayName,
		AtBOL:    lx.atBOL,
		HasSpace: lx.space,
	}
	lx.atBOL = false
	lx.space = false
	return tok
}

// literalEnd recovers the bounds of an unterminated literal: everything
// to the end of the line.
func (lx *lexState) literalEnd(p int) int {
	src := lx.file.Contents
	for src[p] != '\n' && src[p] != 0 {
		p++
	}
	return p
}

// readStringLiteral reads a narrow (or u8) string literal starting at
// start whose opening quote is at quote.
func (lx *lexState) readStringLiteral(start, quote int) *Token {
	file := lx.file
	src := file.Contents
	end := stringLiteralEnd(src, quote+1)
	if end < 0 {
		lx.pp.ds.ErrorAt(file, start, "unclosed string literal")
		end = lx.literalEnd(quote + 1)
		tok := lx.newToken(STR, start, end)
		tok.Str = []byte{0}
		tok.ArrayLen = 1
		return tok
	}
	buf := lx.pp.arena.Alloc(end-quote, 1)
	n := 0
	for p := quote + 1; p < end; {
		if src[p] == '\\' {
			c, next := lx.pp.readEscapedChar(file, p+1)
			buf[n] = byte(c)
			n++
			p = next
		} else {
			buf[n] = src[p]
			n++
			p++
		}
	}
	tok := lx.newToken(STR, start, end+1)
	tok.Str = buf[:n+1] // trailing NUL is already zero
	tok.StrKind = StrChar
	tok.ArrayLen = n + 1
	return tok
}

// readUTF16StringLiteral transcodes a u"..." literal to UTF-16 stored
// little-endian.
func (lx *lexState) readUTF16StringLiteral(start, quote int) *Token {
	file := lx.file
	src := file.Contents
	end := stringLiteralEnd(src, quote+1)
	if end < 0 {
		lx.pp.ds.ErrorAt(file, start, "unclosed string literal")
		end = lx.literalEnd(quote + 1)
		tok := lx.newToken(STR, start, end)
		tok.Str = []byte{0, 0}
		tok.StrKind = StrUTF16
		tok.ArrayLen = 1
		return tok
	}
	units := make([]uint16, 0, end-quote)
	for p := quote + 1; p < end; {
		if src[p] == '\\' {
			c, next := lx.pp.readEscapedChar(file, p+1)
			units = append(units, uint16(c))
			p = next
			continue
		}
		c, next := decodeUTF8(src, p)
		p = next
		if c < 0x10000 {
			units = append(units, uint16(c))
		} else {
			c -= 0x10000
			units = append(units, uint16(0xD800+((c>>10)&0x3FF)), uint16(0xDC00+(c&0x3FF)))
		}
	}
	buf := lx.pp.arena.Alloc(2*(len(units)+1), 2)
	for i, u := range units {
		buf[2*i] = byte(u)
		buf[2*i+1] = byte(u >> 8)
	}
	tok := lx.newToken(STR, start, end+1)
	tok.Str = buf
	tok.StrKind = StrUTF16
	tok.ArrayLen = len(units) + 1
	return tok
}

// readUTF32StringLiteral transcodes a U"..." or L"..." literal to
// UTF-32 stored little-endian.
func (lx *lexState) readUTF32StringLiteral(start, quote int, kind StrKind) *Token {
	file := lx.file
	src := file.Contents
	end := stringLiteralEnd(src, quote+1)
	if end < 0 {
		lx.pp.ds.ErrorAt(file, start, "unclosed string literal")
		end = lx.literalEnd(quote + 1)
		tok := lx.newToken(STR, start, end)
		tok.Str = []byte{0, 0, 0, 0}
		tok.StrKind = kind
		tok.ArrayLen = 1
		return tok
	}
	units := make([]uint32, 0, end-quote)
	for p := quote + 1; p < end; {
		if src[p] == '\\' {
			c, next := lx.pp.readEscapedChar(file, p+1)
			units = append(units, uint32(c))
			p = next
		} else {
			c, next := decodeUTF8(src, p)
			units = append(units, uint32(c))
			p = next
		}
	}
	buf := lx.pp.arena.Alloc(4*(len(units)+1), 4)
	for i, u := range units {
		buf[4*i] = byte(u)
		buf[4*i+1] = byte(u >> 8)
		buf[4*i+2] = byte(u >> 16)
		buf[4*i+3] = byte(u >> 24)
	}
	tok := lx.newToken(STR, start, end+1)
	tok.Str = buf
	tok.StrKind = kind
	tok.ArrayLen = len(units) + 1
	return tok
}

// readCharLiteral reads the literal whose quote is at quote; start
// covers any encoding prefix.
func (lx *lexState) readCharLiteral(start, quote int, num NumKind) *Token {
	file := lx.file
	src := file.Contents
	p := quote + 1
	if src[p] == 0 || src[p] == '\n' {
		lx.pp.ds.ErrorAt(file, start, "unclosed char literal")
		tok := lx.newToken(NUM, start, p)
		tok.Num = num
		return tok
	}
	var c int
	if src[p] == '\\' {
		c, p = lx.pp.readEscapedChar(file, p+1)
	} else {
		var r rune
		r, p = decodeUTF8(src, p)
		c = int(r)
	}
	end := p
	for src[end] != '\'' {
		if src[end] == '\n' || src[end] == 0 {
			lx.pp.ds.ErrorAt(file, start, "unclosed char literal")
			tok := lx.newToken(NUM, start, end)
			tok.Num = num
			tok.Val = int64(c)
			return tok
		}
		end++
	}
	tok := lx.newToken(NUM, start, end+1)
	tok.Val = int64(c)
	tok.Num = num
	return tok
}

// Tokenize scans file into a token list ending in EOF. Numbers are left
// as pp-numbers and keywords as identifiers; ConvertPPTokens finishes
// the job after preprocessing.
func (pp *Preprocessor) Tokenize(file *File) *Token {
	lx := &lexState{pp: pp, file: file, atBOL: true}
	src := file.Contents

	var head Token
	cur := &head
	p := 0

	for src[p] != 0 {
		// Line comment
		if src[p] == '/' && src[p+1] == '/' {
			p += 2
			for src[p] != '\n' && src[p] != 0 {
				p++
			}
			lx.space = true
			continue
		}

		// Block comment, non-nesting
		if src[p] == '/' && src[p+1] == '*' {
			q := p + 2
			for src[q] != 0 && !(src[q] == '*' && src[q+1] == '/') {
				q++
			}
			if src[q] == 0 {
				pp.ds.ErrorAt(file, p, "unclosed block comment")
				p = q
			} else {
				p = q + 2
			}
			lx.space = true
			continue
		}

		if src[p] == '\n' {
			p++
			lx.atBOL = true
			lx.space = false
			continue
		}

		if src[p] == ' ' || src[p] == '\t' || src[p] == '\v' || src[p] == '\f' || src[p] == '\r' {
			p++
			lx.space = true
			continue
		}

		// Preprocessing number
		if isDigit(src[p]) || (src[p] == '.' && isDigit(src[p+1])) {
			q := p
			p++
			for {
				if (src[p] == 'e' || src[p] == 'E' || src[p] == 'p' || src[p] == 'P') &&
					(src[p+1] == '+' || src[p+1] == '-') {
					p += 2
				} else if isAlnum(src[p]) || src[p] == '.' ||
					(src[p] == '\'' && isAlnum(src[p+1])) {
					p++
				} else {
					break
				}
			}
			cur.Next = lx.newToken(PPNUM, q, p)
			cur = cur.Next
			continue
		}

		// String literals
		if src[p] == '"' {
			cur.Next = lx.readStringLiteral(p, p)
			cur = cur.Next
			p = cur.Loc + cur.Len
			continue
		}
		if src[p] == 'u' && src[p+1] == '8' && src[p+2] == '"' {
			cur.Next = lx.readStringLiteral(p, p+2)
			cur = cur.Next
			p = cur.Loc + cur.Len
			continue
		}
		if src[p] == 'u' && src[p+1] == '"' {
			cur.Next = lx.readUTF16StringLiteral(p, p+1)
			cur = cur.Next
			p = cur.Loc + cur.Len
			continue
		}
		if src[p] == 'U' && src[p+1] == '"' {
			cur.Next = lx.readUTF32StringLiteral(p, p+1, StrUTF32)
			cur = cur.Next
			p = cur.Loc + cur.Len
			continue
		}
		if src[p] == 'L' && src[p+1] == '"' {
			cur.Next = lx.readUTF32StringLiteral(p, p+1, StrWide)
			cur = cur.Next
			p = cur.Loc + cur.Len
			continue
		}

		// Character literals
		if src[p] == '\'' {
			cur.Next = lx.readCharLiteral(p, p, NumInt)
			cur = cur.Next
			cur.Val = int64(int8(cur.Val))
			p = cur.Loc + cur.Len
			continue
		}
		if src[p] == 'u' && src[p+1] == '\'' {
			cur.Next = lx.readCharLiteral(p, p+1, NumUInt)
			cur = cur.Next
			cur.Val &= 0xFFFF
			p = cur.Loc + cur.Len
			continue
		}
		if src[p] == 'U' && src[p+1] == '\'' {
			cur.Next = lx.readCharLiteral(p, p+1, NumUInt)
			cur = cur.Next
			p = cur.Loc + cur.Len
			continue
		}
		if src[p] == 'L' && src[p+1] == '\'' {
			cur.Next = lx.readCharLiteral(p, p+1, NumInt)
			cur = cur.Next
			p = cur.Loc + cur.Len
			continue
		}

		// Identifier
		if n := readIdent(src, p); n != 0 {
			cur.Next = lx.newToken(IDENT, p, p+n)
			cur = cur.Next
			p += n
			continue
		}

		// Punctuator
		if n := readPunct(src, p); n != 0 {
			cur.Next = lx.newToken(PUNCT, p, p+n)
			cur = cur.Next
			if norm, ok := digraphs[cur.Text()]; ok {
				cur.text = []byte(norm)
			}
			p += n
			continue
		}

		pp.ds.ErrorAt(file, p, "invalid token")
		p++
	}

	cur.Next = lx.newToken(EOF, p, p)
	addLineNumbers(file, head.Next)
	return head.Next
}

// addLineNumbers assigns 1-based line and display-column numbers to
// every token. Tokens are in source order at this point.
func addLineNumbers(file *File, tok *Token) {
	src := file.Contents
	line := 1
	lineStart := 0
	p := 0
	for tok != nil {
		for p < tok.Loc && src[p] != 0 {
			if src[p] == '\n' {
				line++
				lineStart = p + 1
			}
			p++
		}
		tok.LineNo = line
		tok.ColNo = displayWidth(src[lineStart:tok.Loc]) + 1
		tok = tok.Next
	}
}

// stripSeparators removes C23 digit separators from a literal spelling.
func stripSeparators(s string) string {
	if !strings.ContainsRune(s, '\'') {
		return s
	}
	return strings.ReplaceAll(s, "'", "")
}

// convertPPInt re-parses text as an integer constant. Reports false if
// the spelling is not a valid integer literal.
func convertPPInt(tok *Token, text string) bool {
	base := 10
	digits := text
	switch {
	case len(text) > 2 && (strings.HasPrefix(text, "0x") || strings.HasPrefix(text, "0X")) && isHexDigit(text[2]):
		base = 16
		digits = text[2:]
	case len(text) > 2 && (strings.HasPrefix(text, "0b") || strings.HasPrefix(text, "0B")) && isBinDigit(text[2]):
		base = 2
		digits = text[2:]
	case len(text) > 1 && text[0] == '0':
		base = 8
		digits = text[1:]
	}

	n := 0
	for n < len(digits) {
		c := digits[n]
		ok := false
		switch base {
		case 16:
			ok = isHexDigit(c)
		case 10:
			ok = isDigit(c)
		case 8:
			ok = isOctalDigit(c)
		case 2:
			ok = isBinDigit(c)
		}
		if !ok {
			break
		}
		n++
	}
	if n == 0 && base != 8 {
		return false
	}
	val, err := strconv.ParseUint(digits[:n], base, 64)
	if err != nil {
		return false
	}

	// U, L and LL suffixes in any order and case.
	suffix := digits[n:]
	var u, l bool
	for len(suffix) > 0 {
		switch {
		case suffix[0] == 'u' || suffix[0] == 'U':
			if u {
				return false
			}
			u = true
			suffix = suffix[1:]
		case strings.HasPrefix(suffix, "ll") || strings.HasPrefix(suffix, "LL"):
			if l {
				return false
			}
			l = true
			suffix = suffix[2:]
		case suffix[0] == 'l' || suffix[0] == 'L':
			if l {
				return false
			}
			l = true
			suffix = suffix[1:]
		default:
			return false
		}
	}

	var num NumKind
	if base == 10 {
		switch {
		case l && u:
			num = NumULong
		case l:
			num = NumLong
		case u:
			if val>>32 != 0 {
				num = NumULong
			} else {
				num = NumUInt
			}
		default:
			if val>>31 != 0 {
				num = NumLong
			} else {
				num = NumInt
			}
		}
	} else {
		switch {
		case l && u:
			num = NumULong
		case l:
			if val>>63 != 0 {
				num = NumULong
			} else {
				num = NumLong
			}
		case u:
			if val>>32 != 0 {
				num = NumULong
			} else {
				num = NumUInt
			}
		case val>>63 != 0:
			num = NumULong
		case val>>32 != 0:
			num = NumLong
		case val>>31 != 0:
			num = NumUInt
		default:
			num = NumInt
		}
	}

	tok.Kind = NUM
	tok.Val = int64(val)
	tok.Num = num
	return true
}

// ConvertPPNumber converts one pp-number token into a regular numeric
// token. The pp-number grammar is deliberately looser than the real
// literal grammar, so this can fail.
func (pp *Preprocessor) ConvertPPNumber(tok *Token) {
	text := stripSeparators(tok.Text())
	if convertPPInt(tok, text) {
		return
	}

	// Must be a floating constant.
	num := NumDouble
	switch {
	case strings.HasSuffix(text, "f") || strings.HasSuffix(text, "F"):
		num = NumFloat
		text = text[:len(text)-1]
	case strings.HasSuffix(text, "l") || strings.HasSuffix(text, "L"):
		num = NumLDouble
		text = text[:len(text)-1]
	}
	val, err := strconv.ParseFloat(text, 64)
	if err != nil {
		pp.ds.ErrorTok(tok, "invalid numeric constant")
		tok.Kind = NUM
		tok.Num = NumInt
		return
	}
	tok.Kind = NUM
	tok.FVal = val
	tok.Num = num
}

// ConvertPPTokens promotes keywords and converts pp-numbers across a
// whole token list. Runs once preprocessing is complete.
func (pp *Preprocessor) ConvertPPTokens(tok *Token) {
	for t := tok; t != nil && t.Kind != EOF; t = t.Next {
		if t.Kind == IDENT && t.isKeyword() {
			t.Kind = KEYWORD
		} else if t.Kind == PPNUM {
			pp.ConvertPPNumber(t)
		}
	}
}
