// Package cpp implements the C tokenizer and the macro-expanding
// preprocessor. The preprocessor consumes a raw token list and produces
// an expanded list with directives removed, macros expanded, keywords
// promoted and pp-numbers converted, ending in EOF.
package cpp

import (
	"path/filepath"
	"time"

	"github.com/takeiteasy/cast/internal/arena"
	"github.com/takeiteasy/cast/internal/hashmap"
)

// `#if` can be nested, so conditional inclusion state is a stack.
type condCtx int

const (
	inThen condCtx = iota
	inElif
	inElse
)

type condIncl struct {
	next     *condIncl
	ctx      condCtx
	tok      *Token
	included bool
}

// Preprocessor holds every piece of per-session preprocessing state:
// the macro table, the conditional stack, include caches and the file
// registry. It is not safe for concurrent use.
type Preprocessor struct {
	ds    *Diagnostics
	arena *arena.Arena

	macros        hashmap.Map
	pragmaOnce    hashmap.Map
	includeGuards hashmap.Map
	includeCache  hashmap.Map

	includePaths    []string
	sysIncludePaths []string
	includeNextIdx  int

	// #embed limits; see SetEmbedLimit on the session.
	EmbedLimit     int64
	EmbedHardError bool

	// Resolve well-known angle includes from the embedded header set.
	UseStdInc bool

	condIncl *condIncl

	inputFiles []*File
	fileNo     int

	counter   int
	startTime time.Time
	baseFile  string

	packAlign int
	packStack []int
}

func New(ds *Diagnostics, a *arena.Arena) *Preprocessor {
	pp := &Preprocessor{
		ds:         ds,
		arena:      a,
		EmbedLimit: DefaultEmbedLimit,
		UseStdInc:  true,
		startTime:  time.Now(),
	}
	return pp
}

func (pp *Preprocessor) Diagnostics() *Diagnostics { return pp.ds }

// AddIncludePath appends a quote include search path (-I).
func (pp *Preprocessor) AddIncludePath(path string) {
	pp.includePaths = append(pp.includePaths, path)
}

// AddSystemIncludePath appends a system include search path (--isystem).
func (pp *Preprocessor) AddSystemIncludePath(path string) {
	pp.sysIncludePaths = append(pp.sysIncludePaths, path)
}

func (pp *Preprocessor) skipPunct(tok *Token, s string) *Token {
	if !tok.Equal(s) {
		pp.ds.ErrorTok(tok, "expected '%s'", s)
		return tok
	}
	return tok.Next
}

func (pp *Preprocessor) skipToBOL(tok *Token) *Token {
	for !tok.AtBOL && tok.Kind != EOF {
		tok = tok.Next
	}
	return tok
}

// skipCondIncl2 skips to past the matching #endif.
func skipCondIncl2(tok *Token) *Token {
	for tok.Kind != EOF {
		if tok.IsHash() && (tok.Next.Equal("if") || tok.Next.Equal("ifdef") || tok.Next.Equal("ifndef")) {
			tok = skipCondIncl2(tok.Next.Next)
			continue
		}
		if tok.IsHash() && tok.Next.Equal("endif") {
			return tok.Next.Next
		}
		tok = tok.Next
	}
	return tok
}

// skipCondIncl skips to the next #else, #elif or #endif at this level.
// Nested conditionals are skipped whole.
func skipCondIncl(tok *Token) *Token {
	for tok.Kind != EOF {
		if tok.IsHash() && (tok.Next.Equal("if") || tok.Next.Equal("ifdef") || tok.Next.Equal("ifndef")) {
			tok = skipCondIncl2(tok.Next.Next)
			continue
		}
		if tok.IsHash() && (tok.Next.Equal("elif") || tok.Next.Equal("else") || tok.Next.Equal("endif")) {
			break
		}
		tok = tok.Next
	}
	return tok
}

func (pp *Preprocessor) pushCondIncl(tok *Token, included bool) {
	pp.condIncl = &condIncl{next: pp.condIncl, ctx: inThen, tok: tok, included: included}
}

// detectIncludeGuard recognizes the
//
//	#ifndef FOO_H
//	#define FOO_H
//	...
//	#endif
//
// pattern spanning a whole file, so guarded headers can be skipped
// without re-tokenizing on later inclusion.
func detectIncludeGuard(tok *Token) (string, bool) {
	if !tok.IsHash() || !tok.Next.Equal("ifndef") {
		return "", false
	}
	tok = tok.Next.Next
	if tok.Kind != IDENT {
		return "", false
	}
	macro := tok.Text()
	tok = tok.Next
	if !tok.IsHash() || !tok.Next.Equal("define") || !tok.Next.Next.Equal(macro) {
		return "", false
	}
	for tok.Kind != EOF {
		if !tok.IsHash() {
			tok = tok.Next
			continue
		}
		if tok.Next.Equal("endif") && tok.Next.Next.Kind == EOF {
			return macro, true
		}
		if tok.Next.Equal("if") || tok.Next.Equal("ifdef") || tok.Next.Equal("ifndef") {
			tok = skipCondIncl2(tok.Next.Next)
		} else {
			tok = tok.Next
		}
	}
	return "", false
}

// includeFile splices the tokens of path before tok, honoring #pragma
// once and detected include guards.
func (pp *Preprocessor) includeFile(tok *Token, path string, filenameTok *Token) *Token {
	if _, once := pp.pragmaOnce.Lookup(path); once {
		return tok
	}
	if guard, ok := pp.includeGuards.Lookup(path); ok {
		if pp.IsDefined(guard.(string)) {
			return tok
		}
	}

	var tok2 *Token
	if text, ok := pp.embeddedHeader(path); ok {
		file := pp.NewFile(path, text)
		tok2 = pp.Tokenize(file)
	} else {
		var err error
		tok2, err = pp.TokenizeFile(path)
		if err != nil {
			pp.ds.ErrorTok(filenameTok, "%s: cannot open file: %s", path, err)
			return tok
		}
	}

	if guard, ok := detectIncludeGuard(tok2); ok {
		pp.includeGuards.Put(path, guard)
	}
	return Append(tok2, tok)
}

// readIncludeFilename reads the operand of #include: a quoted string,
// an angle-bracketed name, or a macro expanding to either.
func (pp *Preprocessor) readIncludeFilename(tok *Token) (rest *Token, filename string, isQuote bool) {
	// Pattern 1: #include "foo.h". Escape sequences in the operand are
	// not interpreted, so the raw spelling is used, not the decoded
	// string.
	if tok.Kind == STR {
		text := tok.Text()
		rest = pp.skipLine(tok.Next)
		return rest, text[1 : len(text)-1], true
	}

	// Pattern 2: #include <foo.h>.
	if tok.Equal("<") {
		start := tok
		for !tok.Equal(">") {
			if tok.AtBOL || tok.Kind == EOF {
				pp.ds.ErrorTok(tok, "expected '>'")
				return pp.skipToBOL(tok), "", false
			}
			tok = tok.Next
		}
		filename = spelling(start.Next, tok)
		rest = pp.skipLine(tok.Next)
		return rest, filename, false
	}

	// Pattern 3: #include FOO, where FOO expands to one of the above.
	if tok.Kind == IDENT {
		rest, line := copyLine(tok)
		line = pp.preprocess2(line)
		_, filename, isQuote = pp.readIncludeFilename(line)
		return rest, filename, isQuote
	}

	pp.ds.ErrorTok(tok, "expected a filename")
	return pp.skipToBOL(tok), "", false
}

// readLineMarker reads the operands of #line (or a GNU "# N file"
// marker) and applies the display overrides to the file.
func (pp *Preprocessor) readLineMarker(tok *Token) *Token {
	start := tok
	rest, line := copyLine(tok)
	line = pp.preprocess2(line)
	pp.ConvertPPTokens(line)

	if line.Kind != NUM || (line.Num != NumInt && line.Num != NumLong) {
		pp.ds.ErrorTok(line, "invalid line marker")
		return rest
	}
	start.File.LineDelta = int(line.Val) - start.LineNo - 1

	line = line.Next
	if line.Kind == EOF {
		return rest
	}
	if line.Kind != STR {
		pp.ds.ErrorTok(line, "filename expected")
		return rest
	}
	name := string(line.Str[:len(line.Str)-1])
	start.File.DisplayName = name
	return rest
}

// readPragmaPack handles #pragma pack(...) forms. The resulting pack
// alignment is stamped on every token the preprocessor emits, where the
// parser picks it up for struct layout.
func (pp *Preprocessor) readPragmaPack(tok *Token) *Token {
	rest, line := copyLine(tok)
	line = pp.skipPunct(line, "(")
	pp.ConvertPPTokens(line)

	switch {
	case line.Equal(")"):
		pp.packAlign = 0
	case line.Equal("push"):
		pp.packStack = append(pp.packStack, pp.packAlign)
		if line.Next.Equal(",") {
			line = line.Next.Next
			if line.Kind != NUM {
				pp.ds.ErrorTok(line, "expected an alignment value")
				return rest
			}
			pp.packAlign = int(line.Val)
		}
	case line.Equal("pop"):
		if len(pp.packStack) == 0 {
			pp.ds.WarnTok(line, "#pragma pack(pop) without matching push")
		} else {
			pp.packAlign = pp.packStack[len(pp.packStack)-1]
			pp.packStack = pp.packStack[:len(pp.packStack)-1]
		}
	case line.Kind == NUM:
		pp.packAlign = int(line.Val)
	default:
		pp.ds.WarnTok(line, "unrecognized #pragma pack")
	}
	return rest
}

// preprocess2 walks the token list expanding macros and evaluating
// directives.
func (pp *Preprocessor) preprocess2(tok *Token) *Token {
	var head Token
	cur := &head

	for tok.Kind != EOF {
		// If it is a macro, expand it.
		if t, ok := pp.expandMacro(tok); ok {
			tok = t
			continue
		}

		// Pass through anything that is not a directive.
		if !tok.IsHash() {
			tok.LineDelta = tok.File.LineDelta
			tok.Filename = tok.File.DisplayName
			tok.PackAlign = pp.packAlign
			cur.Next = tok
			cur = cur.Next
			tok = tok.Next
			continue
		}

		start := tok
		tok = tok.Next

		switch {
		case tok.Equal("include"):
			var filename string
			var isQuote bool
			tok, filename, isQuote = pp.readIncludeFilename(tok.Next)
			if filename == "" {
				continue
			}
			if isQuote && !filepath.IsAbs(filename) {
				// Quoted form searches the including file's directory
				// first.
				path := filepath.Join(filepath.Dir(start.File.Name), filename)
				if fileExists(path) {
					tok = pp.includeFile(tok, path, start.Next.Next)
					continue
				}
			}
			path, ok := pp.searchIncludePaths(filename, !isQuote)
			if !ok {
				path = filename
			}
			tok = pp.includeFile(tok, path, start.Next.Next)

		case tok.Equal("include_next"):
			var filename string
			tok, filename, _ = pp.readIncludeFilename(tok.Next)
			if filename == "" {
				continue
			}
			path, ok := pp.searchIncludeNext(filename)
			if !ok {
				path = filename
			}
			tok = pp.includeFile(tok, path, start.Next.Next)

		case tok.Equal("define"):
			tok = pp.readMacroDefinition(tok.Next)

		case tok.Equal("undef"):
			tok = tok.Next
			if tok.Kind != IDENT {
				pp.ds.ErrorTok(tok, "macro name must be an identifier")
				tok = pp.skipToBOL(tok)
				continue
			}
			pp.Undef(tok.Text())
			tok = pp.skipLine(tok.Next)

		case tok.Equal("if"):
			var val int64
			tok, val = pp.evalConstExpr(tok)
			pp.pushCondIncl(start, val != 0)
			if val == 0 {
				tok = skipCondIncl(tok)
			}

		case tok.Equal("ifdef"):
			name := tok.Next
			if name.Kind == EOF {
				pp.ds.ErrorTok(name, "macro name missing")
				tok = name
				continue
			}
			defined := pp.findMacro(name) != nil
			pp.pushCondIncl(start, defined)
			tok = pp.skipLine(name.Next)
			if !defined {
				tok = skipCondIncl(tok)
			}

		case tok.Equal("ifndef"):
			name := tok.Next
			if name.Kind == EOF {
				pp.ds.ErrorTok(name, "macro name missing")
				tok = name
				continue
			}
			defined := pp.findMacro(name) != nil
			pp.pushCondIncl(start, !defined)
			tok = pp.skipLine(name.Next)
			if defined {
				tok = skipCondIncl(tok)
			}

		case tok.Equal("elif"):
			if pp.condIncl == nil || pp.condIncl.ctx == inElse {
				pp.ds.ErrorTok(start, "stray #elif")
				tok = pp.skipToBOL(tok)
				continue
			}
			pp.condIncl.ctx = inElif
			if !pp.condIncl.included {
				var val int64
				tok, val = pp.evalConstExpr(tok)
				if val != 0 {
					pp.condIncl.included = true
					continue
				}
			} else {
				tok = pp.skipToBOL(tok.Next)
			}
			tok = skipCondIncl(tok)

		case tok.Equal("else"):
			if pp.condIncl == nil || pp.condIncl.ctx == inElse {
				pp.ds.ErrorTok(start, "stray #else")
				tok = pp.skipToBOL(tok)
				continue
			}
			pp.condIncl.ctx = inElse
			tok = pp.skipLine(tok.Next)
			if pp.condIncl.included {
				tok = skipCondIncl(tok)
			}

		case tok.Equal("endif"):
			if pp.condIncl == nil {
				pp.ds.ErrorTok(start, "stray #endif")
				tok = pp.skipToBOL(tok)
				continue
			}
			pp.condIncl = pp.condIncl.next
			tok = pp.skipLine(tok.Next)

		case tok.Equal("line"):
			tok = pp.readLineMarker(tok.Next)

		case tok.Kind == PPNUM:
			// GNU line marker: # N "file"
			tok = pp.readLineMarker(tok)

		case tok.Equal("pragma") && tok.Next.Equal("once"):
			pp.pragmaOnce.Put(tok.File.Name, true)
			tok = pp.skipLine(tok.Next.Next)

		case tok.Equal("pragma") && tok.Next.Equal("pack"):
			tok = pp.readPragmaPack(tok.Next.Next)

		case tok.Equal("pragma"):
			// Unknown pragmas are ignored.
			tok = pp.skipToBOL(tok.Next)

		case tok.Equal("error"):
			rest, line := copyLine(tok.Next)
			pp.ds.ErrorTok(start, "#error %s", spelling(line, nil))
			tok = rest

		case tok.Equal("warning"):
			rest, line := copyLine(tok.Next)
			pp.ds.WarnTok(start, "#warning %s", spelling(line, nil))
			tok = rest

		case tok.Equal("embed"):
			var out *Token
			tok, out = pp.readEmbed(tok.Next)
			if out != nil {
				tok = Append(out, tok)
			}

		case tok.AtBOL:
			// `#` on a line of its own is the null directive.

		default:
			pp.ds.ErrorTok(tok, "invalid preprocessor directive")
			tok = pp.skipToBOL(tok)
		}
	}

	cur.Next = tok
	return head.Next
}

// Preprocess runs the whole preprocessing stage over a raw token list:
// directive evaluation and macro expansion, then keyword promotion,
// pp-number conversion and adjacent string literal concatenation.
func (pp *Preprocessor) Preprocess(tok *Token) *Token {
	tok = pp.preprocess2(tok)
	if pp.condIncl != nil {
		pp.ds.ErrorTok(pp.condIncl.tok, "unterminated conditional directive")
		pp.condIncl = nil
	}
	pp.ConvertPPTokens(tok)
	pp.joinAdjacentStringLiterals(tok)
	return tok
}

// PreprocessFile tokenizes and preprocesses path.
func (pp *Preprocessor) PreprocessFile(path string) (*Token, error) {
	if pp.baseFile == "" {
		pp.baseFile = path
	}
	tok, err := pp.TokenizeFile(path)
	if err != nil {
		return nil, err
	}
	return pp.Preprocess(tok), nil
}

// convertStrTo re-encodes a narrow string literal token with wider
// elements for mixed-width concatenation.
func (pp *Preprocessor) convertStrTo(tok *Token, kind StrKind) {
	src := tok.Str[:len(tok.Str)-1] // drop NUL
	var units []uint32
	for p := 0; p < len(src); {
		c, next := decodeUTF8(src, p)
		units = append(units, uint32(c))
		p = next
	}
	size := kind.ElemSize()
	buf := pp.arena.Alloc(size*(len(units)+1), size)
	for i, u := range units {
		switch size {
		case 2:
			buf[2*i] = byte(u)
			buf[2*i+1] = byte(u >> 8)
		case 4:
			buf[4*i] = byte(u)
			buf[4*i+1] = byte(u >> 8)
			buf[4*i+2] = byte(u >> 16)
			buf[4*i+3] = byte(u >> 24)
		}
	}
	tok.Str = buf
	tok.StrKind = kind
	tok.ArrayLen = len(units) + 1
}

// joinAdjacentStringLiterals concatenates runs of adjacent string
// literals. When widths mix, narrow literals widen to the widest
// element type in the run; two distinct wide prefixes are an error.
func (pp *Preprocessor) joinAdjacentStringLiterals(tok *Token) {
	// First pass: unify element types within each run.
	for t1 := tok; t1 != nil && t1.Kind != EOF; {
		if t1.Kind != STR || t1.Next == nil || t1.Next.Kind != STR {
			t1 = t1.Next
			continue
		}

		kind := t1.StrKind
		for t := t1.Next; t != nil && t.Kind == STR; t = t.Next {
			if kind == StrChar {
				kind = t.StrKind
			} else if t.StrKind != StrChar && t.StrKind != kind {
				pp.ds.ErrorTok(t, "unsupported non-standard concatenation of string literals")
				kind = t.StrKind
			}
		}
		if kind != StrChar {
			for t := t1; t != nil && t.Kind == STR; t = t.Next {
				if t.StrKind == StrChar {
					pp.convertStrTo(t, kind)
				}
			}
		}
		for t1 != nil && t1.Kind == STR {
			t1 = t1.Next
		}
	}

	// Second pass: concatenate.
	for t1 := tok; t1 != nil && t1.Kind != EOF; {
		if t1.Kind != STR || t1.Next == nil || t1.Next.Kind != STR {
			t1 = t1.Next
			continue
		}
		end := t1.Next
		for end != nil && end.Kind == STR {
			end = end.Next
		}

		n := t1.ArrayLen
		for t := t1.Next; t != end; t = t.Next {
			n += t.ArrayLen - 1
		}
		size := t1.StrKind.ElemSize()
		buf := pp.arena.Alloc(size*n, size)
		off := 0
		for t := t1; t != end; t = t.Next {
			copy(buf[off:], t.Str[:size*(t.ArrayLen-1)])
			off += size * (t.ArrayLen - 1)
		}

		joined := t1.Copy()
		joined.Str = buf
		joined.ArrayLen = n
		joined.Next = end
		*t1 = *joined
		t1 = end
	}
}
