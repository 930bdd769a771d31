// Package cast is a standalone front end for the C language: it
// preprocesses and parses C sources into a typed AST so that tooling
// (FFI wrapper generators, static analyzers, documentation extractors)
// can consume structured declarations without linking a full compiler.
//
// A Session owns all state: the preprocessor, the parser context, the
// arena that backs byte payloads and the diagnostics sink. Sessions
// are not safe for concurrent use; callers that need parallelism
// create independent sessions.
package cast

import (
	"io"

	"github.com/takeiteasy/cast/cpp"
	"github.com/takeiteasy/cast/internal/arena"
	"github.com/takeiteasy/cast/parse"
)

type Session struct {
	arena *arena.Arena
	ds    *cpp.Diagnostics
	pp    *cpp.Preprocessor
	pctx  *parse.Context
}

// New creates a session with the predefined macros installed and error
// collection enabled.
func New() *Session {
	a := arena.New(0)
	ds := cpp.NewDiagnostics()
	ds.Collect = true
	pp := cpp.New(ds, a)
	pp.InitMacros()
	return &Session{
		arena: a,
		ds:    ds,
		pp:    pp,
		pctx:  parse.NewContext(ds),
	}
}

// Close releases all memory owned by the session. The session must not
// be used afterwards.
func (s *Session) Close() {
	s.arena.Destroy()
}

// Preprocessor exposes the underlying preprocessor for advanced use.
func (s *Session) Preprocessor() *cpp.Preprocessor { return s.pp }

func (s *Session) AddIncludePath(path string)       { s.pp.AddIncludePath(path) }
func (s *Session) AddSystemIncludePath(path string) { s.pp.AddSystemIncludePath(path) }

// Define registers an object-like macro, as -D name=body does. The
// body defaults to "1".
func (s *Session) Define(name, body string) {
	if body == "" {
		body = "1"
	}
	s.pp.Define(name, body)
}

func (s *Session) Undef(name string) { s.pp.Undef(name) }

// SetEmbedLimit sets the soft byte cap for #embed.
func (s *Session) SetEmbedLimit(n int64) { s.pp.EmbedLimit = n }

// SetEmbedHardError makes exceeding the embed limit an error instead
// of a warning.
func (s *Session) SetEmbedHardError(on bool) { s.pp.EmbedHardError = on }

// UseStdHeaders controls whether angle includes of well-known headers
// resolve from the embedded header set (default true).
func (s *Session) UseStdHeaders(on bool) { s.pp.UseStdInc = on }

// capture converts the non-local escape into an error at the API
// boundary. The arena stays intact; the session remains usable.
func capture(err *error) {
	if e := recover(); e != nil {
		b, ok := e.(*cpp.Breakout)
		if !ok {
			panic(e)
		}
		*err = b.Diag
	}
}

// Preprocess tokenizes and preprocesses path ("-" reads stdin),
// returning the expanded token stream.
func (s *Session) Preprocess(path string) (tok *cpp.Token, err error) {
	defer capture(&err)
	return s.pp.PreprocessFile(path)
}

// Tokenize lexes path without preprocessing (the -X mode); keywords
// are still promoted and pp-numbers converted so the stream is
// parseable.
func (s *Session) Tokenize(path string) (tok *cpp.Token, err error) {
	defer capture(&err)
	tok, err = s.pp.TokenizeFile(path)
	if err != nil {
		return nil, err
	}
	s.pp.ConvertPPTokens(tok)
	return tok, nil
}

// ParseTokens parses a preprocessed token stream into top-level
// declarations.
func (s *Session) ParseTokens(tok *cpp.Token) ([]*parse.Obj, error) {
	return s.pctx.Parse(tok)
}

// ParseFile preprocesses and parses path in one step.
func (s *Session) ParseFile(path string) ([]*parse.Obj, error) {
	tok, err := s.Preprocess(path)
	if err != nil {
		return nil, err
	}
	return s.ParseTokens(tok)
}

// Link merges the declaration lists of multiple translation units.
func (s *Session) Link(progs ...[]*parse.Obj) ([]*parse.Obj, error) {
	return parse.Link(s.ds, progs...)
}

// Error-mode controls.

func (s *Session) CollectErrors(on bool)    { s.ds.Collect = on }
func (s *Session) SetMaxErrors(n int)       { s.ds.MaxErrors = n }
func (s *Session) WarningsAsErrors(on bool) { s.ds.WarningsAsErrors = on }

func (s *Session) HasErrors() bool   { return s.ds.HasErrors() }
func (s *Session) ErrorCount() int   { return s.ds.ErrorCount() }
func (s *Session) WarningCount() int { return s.ds.WarningCount() }
func (s *Session) ClearErrors()      { s.ds.Clear() }

// Diagnostics returns the collected diagnostics sorted by file then
// line.
func (s *Session) Diagnostics() []cpp.Diagnostic { return s.ds.All() }

// PrintAllErrors writes every collected diagnostic, sorted by file
// then line, one per line.
func (s *Session) PrintAllErrors(w io.Writer) {
	for _, d := range s.ds.All() {
		io.WriteString(w, d.Error())
		io.WriteString(w, "\n")
	}
}
