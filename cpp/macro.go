package cpp

import (
	"fmt"
	"strings"
	"time"
)

// The macro expansion algorithm follows Dave Prosser's hide-set
// description that the standard's wording is based on. Informally: a
// macro is applied at most once per token, so if a macro token M
// appears in a result of direct or indirect expansion of M, it is not
// expanded further.

type macroHandler func(pp *Preprocessor, tok *Token) *Token

type Macro struct {
	Name       string
	IsObjlike  bool
	Params     []string
	VaArgsName string // non-empty for variadic macros
	Body       *Token
	handler    macroHandler
}

type macroArg struct {
	name     string
	isVaArgs bool
	tok      *Token
}

func (pp *Preprocessor) findMacro(tok *Token) *Macro {
	if tok.Kind != IDENT {
		return nil
	}
	m, _ := pp.macros.Get(tok.Text()).(*Macro)
	return m
}

func (pp *Preprocessor) addMacro(name string, isObjlike bool, body *Token) *Macro {
	m := &Macro{Name: name, IsObjlike: isObjlike, Body: body}
	pp.macros.Put(name, m)
	return m
}

func (pp *Preprocessor) addBuiltin(name string, fn macroHandler) *Macro {
	m := pp.addMacro(name, true, nil)
	m.handler = fn
	return m
}

// Define registers an object-like macro from a name and a body string,
// the way -D name=body does.
func (pp *Preprocessor) Define(name, body string) {
	tok := pp.tokenizeSynth("<built-in>", body)
	pp.addMacro(name, true, tok)
}

// Undef removes a macro.
func (pp *Preprocessor) Undef(name string) {
	pp.macros.Delete(name)
}

// IsDefined reports whether name is a defined macro.
func (pp *Preprocessor) IsDefined(name string) bool {
	_, ok := pp.macros.Lookup(name)
	return ok
}

// tokenizeSynth tokenizes text as a synthetic one-line file. Used for
// macro bodies from the API, stringization, pasting and builtins.
func (pp *Preprocessor) tokenizeSynth(name, text string) *Token {
	buf := make([]byte, len(text)+2)
	copy(buf, text)
	buf[len(text)] = '\n'
	file := &File{Name: name, FileNo: 0, Contents: buf, DisplayName: name}
	return pp.Tokenize(file)
}

// spelling reproduces the text of the tokens from tok up to (not
// including) end, with a single space wherever the source had any.
func spelling(tok, end *Token) string {
	var b strings.Builder
	for t := tok; t != end && t.Kind != EOF; t = t.Next {
		if t != tok && t.HasSpace {
			b.WriteByte(' ')
		}
		b.WriteString(t.Text())
	}
	return b.String()
}

// quoteString double-quotes str, escaping backslashes and quotes.
func quoteString(str string) string {
	var b strings.Builder
	b.WriteByte('"')
	for i := 0; i < len(str); i++ {
		if str[i] == '\\' || str[i] == '"' {
			b.WriteByte('\\')
		}
		b.WriteByte(str[i])
	}
	b.WriteByte('"')
	return b.String()
}

func (pp *Preprocessor) newStrToken(str string, tmpl *Token) *Token {
	tok := pp.tokenizeSynth(tmpl.File.Name, quoteString(str))
	return tok
}

func (pp *Preprocessor) newNumToken(val int, tmpl *Token) *Token {
	return pp.tokenizeSynth(tmpl.File.Name, fmt.Sprintf("%d", val))
}

// copyLine copies tokens up to the next beginning-of-line, terminated
// with EOF. Directive arguments are parsed from such lines.
func copyLine(tok *Token) (rest, line *Token) {
	var head Token
	cur := &head
	for ; !tok.AtBOL; tok = tok.Next {
		cur.Next = tok.Copy()
		cur = cur.Next
	}
	cur.Next = NewEOF(tok)
	return tok, head.Next
}

// skipLine checks that a directive has no extraneous tokens before the
// next newline and skips any that are there.
func (pp *Preprocessor) skipLine(tok *Token) *Token {
	if tok.AtBOL {
		return tok
	}
	pp.ds.WarnTok(tok, "extra token")
	for !tok.AtBOL {
		tok = tok.Next
	}
	return tok
}

func (pp *Preprocessor) readMacroParams(tok *Token) (rest *Token, params []string, vaArgsName string) {
	for !tok.Equal(")") {
		if len(params) > 0 {
			tok = pp.skipPunct(tok, ",")
		}
		if tok.Equal("...") {
			vaArgsName = "__VA_ARGS__"
			rest = pp.skipPunct(tok.Next, ")")
			return rest, params, vaArgsName
		}
		if tok.Kind != IDENT {
			pp.ds.ErrorTok(tok, "expected an identifier")
			rest = pp.skipToBOL(tok)
			return rest, params, vaArgsName
		}
		if tok.Next.Equal("...") {
			vaArgsName = tok.Text()
			rest = pp.skipPunct(tok.Next.Next, ")")
			return rest, params, vaArgsName
		}
		params = append(params, tok.Text())
		tok = tok.Next
	}
	return tok.Next, params, vaArgsName
}

func (pp *Preprocessor) readMacroDefinition(tok *Token) *Token {
	if tok.Kind != IDENT {
		pp.ds.ErrorTok(tok, "macro name must be an identifier")
		return pp.skipToBOL(tok)
	}
	name := tok.Text()
	nameTok := tok
	tok = tok.Next

	var m *Macro
	var rest *Token
	if !tok.HasSpace && tok.Equal("(") {
		// Function-like macro: '(' immediately follows the name.
		var params []string
		var vaArgsName string
		tok, params, vaArgsName = pp.readMacroParams(tok.Next)
		rest, tok = copyLine(tok)
		m = &Macro{Name: name, Body: tok, Params: params, VaArgsName: vaArgsName}
	} else {
		rest, tok = copyLine(tok)
		m = &Macro{Name: name, IsObjlike: true, Body: tok}
	}

	if old := pp.macros.Get(name); old != nil {
		o := old.(*Macro)
		if o.handler != nil || spelling(o.Body, nil) != spelling(m.Body, nil) ||
			o.IsObjlike != m.IsObjlike {
			pp.ds.ErrorTok(nameTok, "macro %s redefined with a different body", name)
		}
	}
	pp.macros.Put(name, m)
	return rest
}

// readMacroArgOne collects the tokens of one macro argument. readRest
// collects through top-level commas, for __VA_ARGS__.
func (pp *Preprocessor) readMacroArgOne(tok *Token, readRest bool) (rest *Token, arg *macroArg) {
	var head Token
	cur := &head
	level := 0
	for {
		if level == 0 && tok.Equal(")") {
			break
		}
		if level == 0 && !readRest && tok.Equal(",") {
			break
		}
		if tok.Kind == EOF {
			pp.ds.ErrorTok(tok, "premature end of input")
			break
		}
		if tok.Equal("(") {
			level++
		} else if tok.Equal(")") {
			level--
		}
		cur.Next = tok.Copy()
		cur = cur.Next
		tok = tok.Next
	}
	cur.Next = NewEOF(tok)
	return tok, &macroArg{tok: head.Next}
}

// readMacroArgs reads the parenthesized argument list of a macro
// invocation; tok points at the macro name.
func (pp *Preprocessor) readMacroArgs(tok *Token, m *Macro) (rest *Token, args []*macroArg) {
	start := tok
	tok = tok.Next.Next // skip name and '('

	for _, param := range m.Params {
		if len(args) > 0 {
			tok = pp.skipPunct(tok, ",")
		}
		var arg *macroArg
		tok, arg = pp.readMacroArgOne(tok, false)
		arg.name = param
		args = append(args, arg)
	}

	if m.VaArgsName != "" {
		var arg *macroArg
		if tok.Equal(")") {
			arg = &macroArg{tok: NewEOF(tok)}
		} else {
			if len(m.Params) > 0 {
				tok = pp.skipPunct(tok, ",")
			}
			tok, arg = pp.readMacroArgOne(tok, true)
		}
		arg.name = m.VaArgsName
		arg.isVaArgs = true
		args = append(args, arg)
	} else if len(m.Params) == 0 && tok.Equal(",") {
		pp.ds.ErrorTok(start, "too many arguments")
	}

	if !tok.Equal(")") {
		pp.ds.ErrorTok(tok, "too many arguments")
		for !tok.Equal(")") && tok.Kind != EOF {
			tok = tok.Next
		}
	}
	return tok, args
}

func findArg(args []*macroArg, tok *Token) *macroArg {
	if tok == nil || tok.Kind != IDENT {
		return nil
	}
	text := tok.Text()
	for _, a := range args {
		if a.name == text {
			return a
		}
	}
	return nil
}

// stringize produces the string literal for #param: the spelling of the
// unexpanded argument, quoted.
func (pp *Preprocessor) stringize(hash *Token, arg *Token) *Token {
	tok := pp.newStrToken(spelling(arg, nil), hash)
	return tok
}

// paste glues two tokens into one, re-tokenizing the result.
func (pp *Preprocessor) paste(lhs, rhs *Token) *Token {
	tok := pp.tokenizeSynth(lhs.File.Name, lhs.Text()+rhs.Text())
	if tok.Next.Kind != EOF {
		pp.ds.ErrorTok(lhs, "pasting forms '%s%s', an invalid token", lhs.Text(), rhs.Text())
	}
	return tok
}

func hasVarargs(args []*macroArg) bool {
	for _, a := range args {
		if a.isVaArgs {
			return a.tok.Kind != EOF
		}
	}
	return false
}

// subst replaces macro parameters in a function-like macro body with
// the given arguments, handling #, ## and __VA_OPT__.
func (pp *Preprocessor) subst(tok *Token, args []*macroArg) *Token {
	var head Token
	cur := &head

	for tok.Kind != EOF {
		// "#" followed by a parameter stringizes the unexpanded actual.
		if tok.Equal("#") {
			arg := findArg(args, tok.Next)
			if arg == nil {
				pp.ds.ErrorTok(tok.Next, "'#' is not followed by a macro parameter")
				tok = tok.Next
				continue
			}
			cur.Next = pp.stringize(tok, arg.tok)
			cur = cur.Next
			tok = tok.Next.Next
			continue
		}

		// [GNU] `,##__VA_ARGS__` drops the comma when __VA_ARGS__ is empty.
		if tok.Equal(",") && tok.Next.Equal("##") {
			if arg := findArg(args, tok.Next.Next); arg != nil && arg.isVaArgs {
				if arg.tok.Kind == EOF {
					tok = tok.Next.Next.Next
				} else {
					cur.Next = tok.Copy()
					cur = cur.Next
					tok = tok.Next.Next
				}
				continue
			}
		}

		if tok.Equal("##") {
			if cur == &head {
				pp.ds.ErrorTok(tok, "'##' cannot appear at start of macro expansion")
				tok = tok.Next
				continue
			}
			if tok.Next.Kind == EOF {
				pp.ds.ErrorTok(tok, "'##' cannot appear at end of macro expansion")
				break
			}
			if arg := findArg(args, tok.Next); arg != nil {
				if arg.tok.Kind != EOF {
					*cur = *pp.paste(cur, arg.tok)
					for t := arg.tok.Next; t.Kind != EOF; t = t.Next {
						cur.Next = t.Copy()
						cur = cur.Next
					}
				}
				tok = tok.Next.Next
				continue
			}
			*cur = *pp.paste(cur, tok.Next)
			tok = tok.Next.Next
			continue
		}

		arg := findArg(args, tok)

		// A parameter adjacent to ## is substituted unexpanded.
		if arg != nil && tok.Next.Equal("##") {
			rhs := tok.Next.Next
			if arg.tok.Kind == EOF {
				if arg2 := findArg(args, rhs); arg2 != nil {
					for t := arg2.tok; t.Kind != EOF; t = t.Next {
						cur.Next = t.Copy()
						cur = cur.Next
					}
				} else {
					cur.Next = rhs.Copy()
					cur = cur.Next
				}
				tok = rhs.Next
				continue
			}
			for t := arg.tok; t.Kind != EOF; t = t.Next {
				cur.Next = t.Copy()
				cur = cur.Next
			}
			tok = tok.Next
			continue
		}

		// __VA_OPT__(x) expands to x iff __VA_ARGS__ is non-empty.
		if tok.Equal("__VA_OPT__") && tok.Next.Equal("(") {
			var opt *macroArg
			tok, opt = pp.readMacroArgOne(tok.Next.Next, true)
			if hasVarargs(args) {
				for t := pp.subst(opt.tok, args); t.Kind != EOF; t = t.Next {
					cur.Next = t.Copy()
					cur = cur.Next
				}
			}
			tok = pp.skipPunct(tok, ")")
			continue
		}

		// A plain parameter is macro-expanded before substitution.
		if arg != nil {
			t := pp.preprocess2(arg.tok)
			if t.Kind != EOF {
				t.AtBOL = tok.AtBOL
				t.HasSpace = tok.HasSpace
			}
			for ; t.Kind != EOF; t = t.Next {
				cur.Next = t.Copy()
				cur = cur.Next
			}
			tok = tok.Next
			continue
		}

		cur.Next = tok.Copy()
		cur = cur.Next
		tok = tok.Next
	}

	cur.Next = tok
	return head.Next
}

// expandMacro expands tok if it is a macro whose hide-set permits it,
// returning the new stream position and whether an expansion happened.
func (pp *Preprocessor) expandMacro(tok *Token) (*Token, bool) {
	if tok.hs.contains(tok.Text()) {
		return tok, false
	}
	m := pp.findMacro(tok)
	if m == nil {
		return tok, false
	}

	// Built-in dynamic macros such as __LINE__.
	if m.handler != nil {
		t := m.handler(pp, tok)
		t.Next = tok.Next
		t.AtBOL = tok.AtBOL
		t.HasSpace = tok.HasSpace
		return t, true
	}

	// Object-like macro.
	if m.IsObjlike {
		hs := tok.hs.add(m.Name)
		body := addHideset(m.Body, hs)
		for t := body; t.Kind != EOF; t = t.Next {
			t.Origin = tok
		}
		rest := Append(body, tok.Next)
		if rest.Kind != EOF {
			rest.AtBOL = tok.AtBOL
			rest.HasSpace = tok.HasSpace
		}
		return rest, true
	}

	// A function-like macro without an argument list is an ordinary
	// identifier.
	if !tok.Next.Equal("(") {
		return tok, false
	}

	macroTok := tok
	rest, args := pp.readMacroArgs(tok, m)
	rparen := rest

	// The tokens of an invocation may carry different hide-sets; the
	// result takes the intersection of the name's and the closing
	// paren's, plus the macro itself.
	hs := macroTok.hs.intersection(rparen.hs).add(m.Name)
	body := pp.subst(m.Body, args)
	body = addHideset(body, hs)
	for t := body; t.Kind != EOF; t = t.Next {
		t.Origin = macroTok
	}
	out := Append(body, rest.Next)
	if out.Kind != EOF {
		out.AtBOL = macroTok.AtBOL
		out.HasSpace = macroTok.HasSpace
	}
	return out, true
}

func fileMacro(pp *Preprocessor, tok *Token) *Token {
	for tok.Origin != nil {
		tok = tok.Origin
	}
	return pp.newStrToken(tok.File.DisplayName, tok)
}

func lineMacro(pp *Preprocessor, tok *Token) *Token {
	for tok.Origin != nil {
		tok = tok.Origin
	}
	return pp.newNumToken(tok.LineNo+tok.File.LineDelta, tok)
}

// __COUNTER__ expands to serial values starting from 0.
func counterMacro(pp *Preprocessor, tok *Token) *Token {
	t := pp.newNumToken(pp.counter, tok)
	pp.counter++
	return t
}

// __TIMESTAMP__ uses the session start time; the last-modified time of
// the file is not tracked.
func timestampMacro(pp *Preprocessor, tok *Token) *Token {
	return pp.newStrToken(pp.startTime.Format("Mon Jan 02 15:04:05 2006"), tok)
}

func baseFileMacro(pp *Preprocessor, tok *Token) *Token {
	return pp.newStrToken(pp.baseFile, tok)
}

// __DATE__ renders like "May 17 2020".
func formatDate(tm time.Time) string {
	return fmt.Sprintf("\"%s %2d %d\"", tm.Month().String()[:3], tm.Day(), tm.Year())
}

// __TIME__ renders like "13:34:03".
func formatTime(tm time.Time) string {
	return fmt.Sprintf("\"%02d:%02d:%02d\"", tm.Hour(), tm.Minute(), tm.Second())
}

// InitMacros installs the predefined and builtin macros. Called by the
// session once per Preprocessor.
func (pp *Preprocessor) InitMacros() {
	pp.Define("_LP64", "1")
	pp.Define("__C99_MACRO_WITH_VA_ARGS", "1")
	pp.Define("__LP64__", "1")
	pp.Define("__SIZEOF_DOUBLE__", "8")
	pp.Define("__SIZEOF_FLOAT__", "4")
	pp.Define("__SIZEOF_INT__", "4")
	pp.Define("__SIZEOF_LONG_DOUBLE__", "16")
	pp.Define("__SIZEOF_LONG_LONG__", "8")
	pp.Define("__SIZEOF_LONG__", "8")
	pp.Define("__SIZEOF_POINTER__", "8")
	pp.Define("__SIZEOF_PTRDIFF_T__", "8")
	pp.Define("__SIZEOF_SHORT__", "2")
	pp.Define("__SIZEOF_SIZE_T__", "8")
	pp.Define("__SIZE_TYPE__", "unsigned long")
	pp.Define("__STDC_HOSTED__", "1")
	pp.Define("__STDC_NO_COMPLEX__", "1")
	pp.Define("__STDC_UTF_16__", "1")
	pp.Define("__STDC_UTF_32__", "1")
	pp.Define("__STDC_VERSION__", "201112L")
	pp.Define("__STDC__", "1")
	pp.Define("__USER_LABEL_PREFIX__", "")
	pp.Define("__alignof__", "_Alignof")
	pp.Define("__const__", "const")
	pp.Define("__signed__", "signed")
	pp.Define("__volatile__", "volatile")

	pp.addBuiltin("__FILE__", fileMacro)
	pp.addBuiltin("__LINE__", lineMacro)
	pp.addBuiltin("__COUNTER__", counterMacro)
	pp.addBuiltin("__TIMESTAMP__", timestampMacro)
	pp.addBuiltin("__BASE_FILE__", baseFileMacro)

	pp.Define("__DATE__", formatDate(pp.startTime))
	pp.Define("__TIME__", formatTime(pp.startTime))
}
