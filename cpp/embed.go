package cpp

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"modernc.org/mathutil"
)

// #embed (C23): inline the bytes of a file as a comma-separated list of
// integer constants. Supported parameters: limit(N), prefix(...),
// suffix(...), if_empty(...).

// DefaultEmbedLimit is the soft size cap; exceeding it warns, or errors
// when the hard-error mode is on.
const DefaultEmbedLimit = 10 << 20

type embedParams struct {
	limit    int64
	hasLimit bool
	prefix   *Token
	suffix   *Token
	ifEmpty  *Token
}

// readBalanced collects the tokens of one parenthesized parameter
// value, starting just past '('.
func (pp *Preprocessor) readBalanced(tok *Token) (rest, out *Token) {
	var head Token
	cur := &head
	level := 0
	for {
		if tok.Kind == EOF || tok.AtBOL {
			pp.ds.ErrorTok(tok, "unterminated #embed parameter")
			break
		}
		if level == 0 && tok.Equal(")") {
			tok = tok.Next
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
	return tok, head.Next
}

func (pp *Preprocessor) readEmbedParams(tok *Token) (*Token, *embedParams) {
	params := &embedParams{}
	for !tok.AtBOL && tok.Kind != EOF {
		if tok.Kind != IDENT {
			pp.ds.ErrorTok(tok, "expected an #embed parameter")
			return pp.skipToBOL(tok), params
		}
		name := tok.Text()
		tok = pp.skipPunct(tok.Next, "(")
		switch name {
		case "limit":
			rest, expr := pp.readBalanced(tok)
			expr = pp.preprocess2(expr)
			pp.ConvertPPTokens(expr)
			if expr.Kind != NUM {
				pp.ds.ErrorTok(expr, "expected an integer limit")
			} else {
				params.limit = expr.Val
				params.hasLimit = true
			}
			tok = rest
		case "prefix":
			tok, params.prefix = pp.readBalanced(tok)
		case "suffix":
			tok, params.suffix = pp.readBalanced(tok)
		case "if_empty":
			tok, params.ifEmpty = pp.readBalanced(tok)
		default:
			pp.ds.ErrorTok(tok, "unknown #embed parameter '%s'", name)
			tok, _ = pp.readBalanced(tok)
		}
	}
	return tok, params
}

// resolveEmbedPath mirrors include resolution: quoted names search the
// including file's directory first.
func (pp *Preprocessor) resolveEmbedPath(from *File, filename string, isQuote bool) (string, bool) {
	if isQuote && !filepath.IsAbs(filename) {
		path := filepath.Join(filepath.Dir(from.Name), filename)
		if fileExists(path) {
			return path, true
		}
	}
	return pp.searchIncludePaths(filename, !isQuote)
}

// readEmbed handles the directive body after the `embed` keyword and
// returns the replacement tokens.
func (pp *Preprocessor) readEmbed(tok *Token) (rest, out *Token) {
	start := tok
	var filename string
	var isQuote bool

	switch {
	case tok.Kind == STR:
		text := tok.Text()
		filename = text[1 : len(text)-1]
		isQuote = true
		tok = tok.Next
	case tok.Equal("<"):
		lt := tok
		tok = tok.Next
		for !tok.Equal(">") {
			if tok.AtBOL || tok.Kind == EOF {
				pp.ds.ErrorTok(tok, "expected '>'")
				return pp.skipToBOL(tok), nil
			}
			tok = tok.Next
		}
		filename = spelling(lt.Next, tok)
		tok = tok.Next
	default:
		pp.ds.ErrorTok(tok, "expected a filename")
		return pp.skipToBOL(tok), nil
	}

	var params *embedParams
	tok, params = pp.readEmbedParams(tok)

	path, ok := pp.resolveEmbedPath(start.File, filename, isQuote)
	if !ok {
		pp.ds.ErrorTok(start, "%s: cannot find embed file", filename)
		return tok, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		pp.ds.ErrorTok(start, "%s: cannot read embed file: %s", path, err)
		return tok, nil
	}

	if params.hasLimit {
		n := mathutil.Min(int(params.limit), len(data))
		if n < 0 {
			n = 0
		}
		data = data[:n]
	}

	if limit := pp.EmbedLimit; limit > 0 && int64(len(data)) > limit {
		if pp.EmbedHardError {
			pp.ds.ErrorTok(start, "#embed of %s (%d bytes) exceeds the limit of %d bytes", filename, len(data), limit)
			return tok, nil
		}
		pp.ds.WarnTok(start, "#embed of %s (%d bytes) exceeds the limit of %d bytes", filename, len(data), limit)
	}

	if len(data) == 0 {
		if params.ifEmpty != nil {
			return tok, params.ifEmpty
		}
		return tok, nil
	}

	var b strings.Builder
	for i, c := range data {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(int(c)))
	}
	bytesTok := pp.tokenizeSynth(path, b.String())

	out = bytesTok
	if params.suffix != nil {
		out = Append(out, params.suffix)
	}
	if params.prefix != nil {
		out = Append(params.prefix, out)
	}
	return tok, out
}
