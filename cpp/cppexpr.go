package cpp

import (
	"github.com/takeiteasy/cast/internal/constarith"
)

// #if expression evaluation.
//
// The controlled expression is macro-expanded, `defined` is resolved
// before expansion, remaining identifiers become 0 per the standard,
// and the result is computed in 64 bits with the shared constarith
// operator semantics. Zero means false.

// readConstExpr copies the rest of the directive line, resolving
// "defined(foo)" and "defined foo" to 1 or 0 before macro expansion
// can touch them.
func (pp *Preprocessor) readConstExpr(tok *Token) (rest, out *Token) {
	rest, tok = copyLine(tok)

	var head Token
	cur := &head
	for tok.Kind != EOF {
		if tok.Equal("defined") {
			start := tok
			tok = tok.Next
			hasParen := false
			if tok.Equal("(") {
				hasParen = true
				tok = tok.Next
			}
			if tok.Kind != IDENT {
				pp.ds.ErrorTok(start, "macro name must be an identifier")
				break
			}
			val := 0
			if pp.findMacro(tok) != nil {
				val = 1
			}
			tok = tok.Next
			if hasParen {
				tok = pp.skipPunct(tok, ")")
			}
			cur.Next = pp.newNumToken(val, start)
			cur = cur.Next
			continue
		}
		cur.Next = tok
		cur = cur.Next
		tok = tok.Next
	}
	cur.Next = tok
	return rest, head.Next
}

// evalConstExpr reads and evaluates the expression of #if or #elif;
// tok points at the directive name.
func (pp *Preprocessor) evalConstExpr(tok *Token) (rest *Token, val int64) {
	start := tok
	rest, expr := pp.readConstExpr(tok.Next)
	expr = pp.preprocess2(expr)

	if expr.Kind == EOF {
		pp.ds.ErrorTok(start, "no expression")
		return rest, 0
	}

	// The standard requires remaining non-macro identifiers to read as
	// 0, so `#if foo` is `#if 0` when foo is undefined.
	for t := expr; t.Kind != EOF; t = t.Next {
		if t.Kind == IDENT {
			next := t.Next
			*t = *pp.newNumToken(0, t)
			t.Next = next
		}
	}
	pp.ConvertPPTokens(expr)

	ctx := &cppExprCtx{pp: pp, tok: expr}
	val = ctx.comma()
	if ctx.tok.Kind != EOF {
		pp.ds.ErrorTok(ctx.tok, "extra token")
	}
	return rest, val
}

type cppExprCtx struct {
	pp  *Preprocessor
	tok *Token
	// Unsigned literals switch the whole expression to unsigned
	// arithmetic, matching uintmax_t semantics.
	unsigned bool
}

func (ctx *cppExprCtx) errorf(format string, args ...any) {
	ctx.pp.ds.ErrorTok(ctx.tok, format, args...)
	// Resynchronize at end of expression.
	for ctx.tok.Kind != EOF {
		ctx.tok = ctx.tok.Next
	}
}

func (ctx *cppExprCtx) atom() int64 {
	tok := ctx.tok
	switch {
	case tok.Equal("!"):
		ctx.tok = tok.Next
		v, _ := constarith.Unary("!", ctx.atom())
		return v
	case tok.Equal("~"):
		ctx.tok = tok.Next
		v, _ := constarith.Unary("~", ctx.atom())
		return v
	case tok.Equal("-"):
		ctx.tok = tok.Next
		v, _ := constarith.Unary("-", ctx.atom())
		return v
	case tok.Equal("+"):
		ctx.tok = tok.Next
		return ctx.atom()
	case tok.Equal("("):
		ctx.tok = tok.Next
		v := ctx.comma()
		if !ctx.tok.Equal(")") {
			ctx.errorf("unclosed parenthesis")
			return v
		}
		ctx.tok = ctx.tok.Next
		return v
	case tok.Kind == NUM:
		if tok.Num == NumFloat || tok.Num == NumDouble || tok.Num == NumLDouble {
			ctx.errorf("floating constant in preprocessor expression")
			return 0
		}
		if tok.Num == NumUInt || tok.Num == NumULong {
			ctx.unsigned = true
		}
		ctx.tok = tok.Next
		return tok.Val
	}
	ctx.errorf("expected a constant expression")
	return 0
}

var cppPrec = map[string]int{
	"*": 10, "/": 10, "%": 10,
	"+": 9, "-": 9,
	"<<": 8, ">>": 8,
	"<": 7, ">": 7, "<=": 7, ">=": 7,
	"==": 6, "!=": 6,
	"&":  5,
	"^":  4,
	"|":  3,
	"&&": 2,
	"||": 1,
}

// binop is the precedence climbing algorithm; every operator here is
// left associative.
func (ctx *cppExprCtx) binop(prec int) int64 {
	l := ctx.atom()
	for {
		tok := ctx.tok
		if tok.Kind == EOF {
			break
		}
		op := tok.Text()
		p, ok := cppPrec[op]
		if !ok || p < prec {
			break
		}
		ctx.tok = tok.Next
		r := ctx.binop(p + 1)
		v, err := constarith.Binary(op, l, r, ctx.unsigned)
		if err != nil {
			ctx.pp.ds.ErrorTok(tok, "%s in preprocessor expression", err)
			v = 0
		}
		l = v
	}
	return l
}

func (ctx *cppExprCtx) ternary() int64 {
	cond := ctx.binop(0)
	if !ctx.tok.Equal("?") {
		return cond
	}
	ctx.tok = ctx.tok.Next
	a := ctx.comma()
	if !ctx.tok.Equal(":") {
		ctx.errorf("ternary without ':'")
		return 0
	}
	ctx.tok = ctx.tok.Next
	b := ctx.ternary()
	if cond != 0 {
		return a
	}
	return b
}

func (ctx *cppExprCtx) comma() int64 {
	v := ctx.ternary()
	for ctx.tok.Equal(",") {
		ctx.tok = ctx.tok.Next
		v = ctx.ternary()
	}
	return v
}
