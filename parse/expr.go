package parse

import "github.com/takeiteasy/cast/cpp"

// expr parses a full expression including the comma operator.
func (p *parser) expr(tok *cpp.Token) (*Node, *cpp.Token) {
	node, tok := p.assign(tok)
	if tok.Equal(",") {
		var rhs *Node
		rhs, tok = p.expr(tok.Next)
		return NewBinary(NdComma, node, rhs, tok), tok
	}
	return node, tok
}

// toAssign rewrites `A op= B` as `A = A op B`. The double mention of A
// is a representation choice for this front end; consumers that need
// single-evaluation semantics rewrite it themselves.
func (p *parser) toAssign(binary *Node) *Node {
	p.addType(binary.Lhs)
	p.addType(binary.Rhs)
	return NewBinary(NdAssign, binary.Lhs, binary, binary.Tok)
}

// assign parses assignment expressions including the compound
// operators.
func (p *parser) assign(tok *cpp.Token) (*Node, *cpp.Token) {
	node, tok := p.conditional(tok)

	switch tok.Text() {
	case "=":
		rhs, tok2 := p.assign(tok.Next)
		return NewBinary(NdAssign, node, rhs, tok), tok2
	case "+=":
		rhs, tok2 := p.assign(tok.Next)
		return p.toAssign(p.newAdd(node, rhs, tok)), tok2
	case "-=":
		rhs, tok2 := p.assign(tok.Next)
		return p.toAssign(p.newSub(node, rhs, tok)), tok2
	case "*=":
		rhs, tok2 := p.assign(tok.Next)
		return p.toAssign(NewBinary(NdMul, node, rhs, tok)), tok2
	case "/=":
		rhs, tok2 := p.assign(tok.Next)
		return p.toAssign(NewBinary(NdDiv, node, rhs, tok)), tok2
	case "%=":
		rhs, tok2 := p.assign(tok.Next)
		return p.toAssign(NewBinary(NdMod, node, rhs, tok)), tok2
	case "&=":
		rhs, tok2 := p.assign(tok.Next)
		return p.toAssign(NewBinary(NdBitAnd, node, rhs, tok)), tok2
	case "|=":
		rhs, tok2 := p.assign(tok.Next)
		return p.toAssign(NewBinary(NdBitOr, node, rhs, tok)), tok2
	case "^=":
		rhs, tok2 := p.assign(tok.Next)
		return p.toAssign(NewBinary(NdBitXor, node, rhs, tok)), tok2
	case "<<=":
		rhs, tok2 := p.assign(tok.Next)
		return p.toAssign(NewBinary(NdShl, node, rhs, tok)), tok2
	case ">>=":
		rhs, tok2 := p.assign(tok.Next)
		return p.toAssign(NewBinary(NdShr, node, rhs, tok)), tok2
	}
	return node, tok
}

// conditional parses the ternary operator.
func (p *parser) conditional(tok *cpp.Token) (*Node, *cpp.Token) {
	cond, tok := p.logor(tok)
	if !tok.Equal("?") {
		return cond, tok
	}

	node := NewNode(NdCond, tok)
	node.Cond = cond
	if tok.Next.Equal(":") {
		// [GNU] `a ?: b` reuses the condition as the then-value.
		node.Then = cond
		node.Els, tok = p.conditional(tok.Next.Next)
		return node, tok
	}
	node.Then, tok = p.expr(tok.Next)
	tok = p.skip(tok, ":")
	node.Els, tok = p.conditional(tok)
	return node, tok
}

func (p *parser) logor(tok *cpp.Token) (*Node, *cpp.Token) {
	node, tok := p.logand(tok)
	for tok.Equal("||") {
		start := tok
		var rhs *Node
		rhs, tok = p.logand(tok.Next)
		node = NewBinary(NdLogOr, node, rhs, start)
	}
	return node, tok
}

func (p *parser) logand(tok *cpp.Token) (*Node, *cpp.Token) {
	node, tok := p.bitor(tok)
	for tok.Equal("&&") {
		start := tok
		var rhs *Node
		rhs, tok = p.bitor(tok.Next)
		node = NewBinary(NdLogAnd, node, rhs, start)
	}
	return node, tok
}

func (p *parser) bitor(tok *cpp.Token) (*Node, *cpp.Token) {
	node, tok := p.bitxor(tok)
	for tok.Equal("|") {
		start := tok
		var rhs *Node
		rhs, tok = p.bitxor(tok.Next)
		node = NewBinary(NdBitOr, node, rhs, start)
	}
	return node, tok
}

func (p *parser) bitxor(tok *cpp.Token) (*Node, *cpp.Token) {
	node, tok := p.bitand(tok)
	for tok.Equal("^") {
		start := tok
		var rhs *Node
		rhs, tok = p.bitand(tok.Next)
		node = NewBinary(NdBitXor, node, rhs, start)
	}
	return node, tok
}

func (p *parser) bitand(tok *cpp.Token) (*Node, *cpp.Token) {
	node, tok := p.equality(tok)
	for tok.Equal("&") {
		start := tok
		var rhs *Node
		rhs, tok = p.equality(tok.Next)
		node = NewBinary(NdBitAnd, node, rhs, start)
	}
	return node, tok
}

func (p *parser) equality(tok *cpp.Token) (*Node, *cpp.Token) {
	node, tok := p.relational(tok)
	for {
		start := tok
		switch {
		case tok.Equal("=="):
			var rhs *Node
			rhs, tok = p.relational(tok.Next)
			node = NewBinary(NdEq, node, rhs, start)
		case tok.Equal("!="):
			var rhs *Node
			rhs, tok = p.relational(tok.Next)
			node = NewBinary(NdNe, node, rhs, start)
		default:
			return node, tok
		}
	}
}

func (p *parser) relational(tok *cpp.Token) (*Node, *cpp.Token) {
	node, tok := p.shift(tok)
	for {
		start := tok
		switch {
		case tok.Equal("<"):
			var rhs *Node
			rhs, tok = p.shift(tok.Next)
			node = NewBinary(NdLt, node, rhs, start)
		case tok.Equal("<="):
			var rhs *Node
			rhs, tok = p.shift(tok.Next)
			node = NewBinary(NdLe, node, rhs, start)
		case tok.Equal(">"):
			var rhs *Node
			rhs, tok = p.shift(tok.Next)
			node = NewBinary(NdLt, rhs, node, start)
		case tok.Equal(">="):
			var rhs *Node
			rhs, tok = p.shift(tok.Next)
			node = NewBinary(NdLe, rhs, node, start)
		default:
			return node, tok
		}
	}
}

func (p *parser) shift(tok *cpp.Token) (*Node, *cpp.Token) {
	node, tok := p.add(tok)
	for {
		start := tok
		switch {
		case tok.Equal("<<"):
			var rhs *Node
			rhs, tok = p.add(tok.Next)
			node = NewBinary(NdShl, node, rhs, start)
		case tok.Equal(">>"):
			var rhs *Node
			rhs, tok = p.add(tok.Next)
			node = NewBinary(NdShr, node, rhs, start)
		default:
			return node, tok
		}
	}
}

// newAdd builds +, scaling pointer arithmetic by the element size.
func (p *parser) newAdd(lhs, rhs *Node, tok *cpp.Token) *Node {
	p.addType(lhs)
	p.addType(rhs)

	if lhs.Ty.IsError() || rhs.Ty.IsError() {
		return p.errorNode(tok)
	}

	// num + num
	if lhs.Ty.IsNumeric() && rhs.Ty.IsNumeric() {
		return NewBinary(NdAdd, lhs, rhs, tok)
	}
	if lhs.Ty.HasBase() && rhs.Ty.HasBase() {
		p.ds.ErrorTok(tok, "invalid operands")
		return p.errorNode(tok)
	}
	// Canonicalize num + ptr to ptr + num.
	if !lhs.Ty.HasBase() && rhs.Ty.HasBase() {
		lhs, rhs = rhs, lhs
	}

	// VLA element counts scale by the runtime size.
	if lhs.Ty.Base.Kind == TyVLA {
		rhs = NewBinary(NdMul, rhs, NewVarNode(lhs.Ty.Base.VLASize, tok), tok)
		return NewBinary(NdAdd, lhs, rhs, tok)
	}

	rhs = NewBinary(NdMul, rhs, NewLong(lhs.Ty.Base.Size, tok), tok)
	return NewBinary(NdAdd, lhs, rhs, tok)
}

// newSub builds -, with pointer difference yielding the element count.
func (p *parser) newSub(lhs, rhs *Node, tok *cpp.Token) *Node {
	p.addType(lhs)
	p.addType(rhs)

	if lhs.Ty.IsError() || rhs.Ty.IsError() {
		return p.errorNode(tok)
	}

	if lhs.Ty.IsNumeric() && rhs.Ty.IsNumeric() {
		return NewBinary(NdSub, lhs, rhs, tok)
	}

	// ptr - num
	if lhs.Ty.HasBase() && rhs.Ty.IsInteger() {
		rhs = NewBinary(NdMul, rhs, NewLong(lhs.Ty.Base.Size, tok), tok)
		p.addType(rhs)
		node := NewBinary(NdSub, lhs, rhs, tok)
		node.Ty = lhs.Ty
		return node
	}

	// ptr - ptr yields the element distance as a long.
	if lhs.Ty.HasBase() && rhs.Ty.HasBase() {
		node := NewBinary(NdSub, lhs, rhs, tok)
		node.Ty = TyLongType
		return NewBinary(NdDiv, node, NewNum(lhs.Ty.Base.Size, tok), tok)
	}

	p.ds.ErrorTok(tok, "invalid operands")
	return p.errorNode(tok)
}

func (p *parser) add(tok *cpp.Token) (*Node, *cpp.Token) {
	node, tok := p.mul(tok)
	for {
		start := tok
		switch {
		case tok.Equal("+"):
			var rhs *Node
			rhs, tok = p.mul(tok.Next)
			node = p.newAdd(node, rhs, start)
		case tok.Equal("-"):
			var rhs *Node
			rhs, tok = p.mul(tok.Next)
			node = p.newSub(node, rhs, start)
		default:
			return node, tok
		}
	}
}

func (p *parser) mul(tok *cpp.Token) (*Node, *cpp.Token) {
	node, tok := p.castExpr(tok)
	for {
		start := tok
		switch {
		case tok.Equal("*"):
			var rhs *Node
			rhs, tok = p.castExpr(tok.Next)
			node = NewBinary(NdMul, node, rhs, start)
		case tok.Equal("/"):
			var rhs *Node
			rhs, tok = p.castExpr(tok.Next)
			node = NewBinary(NdDiv, node, rhs, start)
		case tok.Equal("%"):
			var rhs *Node
			rhs, tok = p.castExpr(tok.Next)
			node = NewBinary(NdMod, node, rhs, start)
		default:
			return node, tok
		}
	}
}

// castExpr parses ( type-name ) cast-expression and compound literals.
func (p *parser) castExpr(tok *cpp.Token) (*Node, *cpp.Token) {
	if tok.Equal("(") && p.isTypename(tok.Next) {
		start := tok
		ty, rest := p.typename(tok.Next)
		if rest.Equal(")") {
			rest = rest.Next
			// Compound literal: (T){...}
			if rest.Equal("{") {
				return p.compoundLiteral(rest, ty, start)
			}
			var exp *Node
			exp, rest = p.castExpr(rest)
			p.addType(exp)
			node := NewCast(exp, ty)
			node.Tok = start
			return node, rest
		}
	}
	return p.unary(tok)
}

// compoundLiteral parses (T){...}: an anonymous object initialized in
// place. At file scope it becomes an anonymous global.
func (p *parser) compoundLiteral(tok *cpp.Token, ty *Type, start *cpp.Token) (*Node, *cpp.Token) {
	if p.currentFn == nil {
		v := p.newAnonGlobalVar(ty)
		v.Tok = start
		tok = p.globalVarInitializer(tok, v)
		return NewVarNode(v, start), tok
	}

	v := p.newLocalVar("", ty, start)
	var lhs *Node
	lhs, tok = p.localVarInitializer(tok, v)
	if lhs == nil {
		return NewVarNode(v, start), tok
	}
	rhs := NewVarNode(v, start)
	return NewBinary(NdComma, lhs, rhs, start), tok
}

// newIncDec builds the value of A++/A-- as (typeof A)((A = A + d) - d).
func (p *parser) newIncDec(node *Node, tok *cpp.Token, delta int64) *Node {
	p.addType(node)
	added := p.toAssign(p.newAdd(node, NewNum(delta, tok), tok))
	sub := p.newAdd(added, NewNum(-delta, tok), tok)
	p.addType(sub)
	return NewCast(sub, node.Ty)
}

// unary parses unary operators.
func (p *parser) unary(tok *cpp.Token) (*Node, *cpp.Token) {
	switch {
	case tok.Equal("+"):
		return p.castExpr(tok.Next)

	case tok.Equal("-"):
		node, rest := p.castExpr(tok.Next)
		return NewUnary(NdNeg, node, tok), rest

	case tok.Equal("&"):
		node, rest := p.castExpr(tok.Next)
		p.addType(node)
		if node.isBitfield() {
			p.ds.ErrorTok(tok, "cannot take address of bitfield")
		}
		return NewUnary(NdAddr, node, tok), rest

	case tok.Equal("*"):
		node, rest := p.castExpr(tok.Next)
		p.addType(node)
		// [C18 6.5.3.2p4] dereferencing a function pointer yields the
		// function designator itself.
		if node.Ty.Kind == TyFunc || node.Ty.Kind == TyBlock {
			return node, rest
		}
		return NewUnary(NdDeref, node, tok), rest

	case tok.Equal("!"):
		node, rest := p.castExpr(tok.Next)
		return NewUnary(NdNot, node, tok), rest

	case tok.Equal("~"):
		node, rest := p.castExpr(tok.Next)
		return NewUnary(NdBitNot, node, tok), rest

	case tok.Equal("++"):
		node, rest := p.unary(tok.Next)
		return p.toAssign(p.newAdd(node, NewNum(1, tok), tok)), rest

	case tok.Equal("--"):
		node, rest := p.unary(tok.Next)
		return p.toAssign(p.newSub(node, NewNum(1, tok), tok)), rest

	case tok.Equal("&&"):
		// [GNU] labels-as-values
		node := NewNode(NdLabelVal, tok)
		if tok.Next.Kind != cpp.IDENT {
			p.ds.ErrorTok(tok.Next, "expected a label name")
			return p.errorNode(tok), tok.Next
		}
		node.Label = tok.Next.Text()
		p.gotos = append(p.gotos, node)
		return node, tok.Next.Next

	case tok.Equal("^"):
		return p.blockLiteral(tok)
	}
	return p.postfix(tok)
}

// blockLiteral parses an Apple block ^ret(args){body}, lowering it to
// a synthetic function plus a capture list.
func (p *parser) blockLiteral(tok *cpp.Token) (*Node, *cpp.Token) {
	start := tok
	tok = tok.Next

	retTy := TyVoidType
	if p.isTypename(tok) && !tok.Equal("(") {
		retTy, tok = p.declspec(tok, nil)
		retTy, tok = p.pointers(tok, retTy)
	}

	fnTy := FuncType(retTy)
	if tok.Equal("(") {
		fnTy, tok = p.funcParams(tok.Next, retTy)
	}

	fn := &Obj{
		Name:         p.newUniqueName(),
		Ty:           fnTy,
		Tok:          start,
		IsFunction:   true,
		IsStatic:     true,
		IsDefinition: true,
		IsBlock:      true,
		Align:        1,
	}
	p.globals = append(p.globals, fn)

	// The block body parses as its own function so locals and captures
	// separate cleanly.
	outerFn := p.currentFn
	outerLocals := p.locals
	outerGotos, outerLabels := p.gotos, p.labels
	p.currentFn = fn
	p.locals = nil
	p.gotos, p.labels = nil, nil

	p.enterScope()
	for _, pty := range fnTy.Params {
		pname := ""
		if pty.Name != nil {
			pname = pty.Name.Text()
		}
		fn.Params = append(fn.Params, p.newLocalVar(pname, pty, pty.Name))
	}

	tok = p.skip(tok, "{")
	var body *Node
	body, tok = p.compoundStmt(tok, start)
	fn.Body = body
	fn.Locals = p.locals
	p.leaveScope()
	p.resolveGotoLabels()

	p.currentFn = outerFn
	p.locals = outerLocals
	p.gotos, p.labels = outerGotos, outerLabels

	if outerFn != nil {
		outerFn.Refs = append(outerFn.Refs, fn.Name)
	}

	node := NewVarNode(fn, start)
	node.Ty = BlockType(fnTy)
	return node, tok
}

// noteCapture records v as captured when the current function is a
// block literal and v belongs to an enclosing function.
func (p *parser) noteCapture(v *Obj) {
	fn := p.currentFn
	if fn == nil || !fn.IsBlock || !v.IsLocal {
		return
	}
	for _, l := range p.locals {
		if l == v {
			return
		}
	}
	for _, c := range fn.Captures {
		if c == v {
			return
		}
	}
	fn.Captures = append(fn.Captures, v)
}

// postfix parses postfix operators: indexing, member access, calls and
// increment/decrement.
func (p *parser) postfix(tok *cpp.Token) (*Node, *cpp.Token) {
	node, tok := p.primary(tok)

	for {
		switch {
		case tok.Equal("("):
			node, tok = p.funcall(tok.Next, node)

		case tok.Equal("["):
			// x[y] is *(x+y)
			start := tok
			var idx *Node
			idx, tok = p.expr(tok.Next)
			tok = p.skip(tok, "]")
			node = NewUnary(NdDeref, p.newAdd(node, idx, start), start)

		case tok.Equal("."):
			node = p.structRef(node, tok.Next)
			tok = tok.Next.Next

		case tok.Equal("->"):
			// x->y is (*x).y
			node = NewUnary(NdDeref, node, tok)
			node = p.structRef(node, tok.Next)
			tok = tok.Next.Next

		case tok.Equal("++"):
			node = p.newIncDec(node, tok, 1)
			tok = tok.Next

		case tok.Equal("--"):
			node = p.newIncDec(node, tok, -1)
			tok = tok.Next

		default:
			return node, tok
		}
	}
}

// funcall parses the argument list of a call; tok points just past the
// '('. Arguments are cast to parameter types; variadic arguments get
// the default promotions.
func (p *parser) funcall(tok *cpp.Token, fn *Node) (*Node, *cpp.Token) {
	p.addType(fn)

	fnTy := fn.Ty
	if fnTy.Kind == TyPtr || fnTy.Kind == TyBlock {
		fnTy = fnTy.Base
	}
	if fnTy == nil || fnTy.Kind != TyFunc {
		if !fn.Ty.IsError() {
			p.ds.ErrorTok(fn.Tok, "not a function")
		}
		fnTy = nil
	}

	node := NewNode(NdFuncall, fn.Tok)
	node.Lhs = fn

	var args []*Node
	argIdx := 0
	first := true
	for !tok.Equal(")") && tok.Kind != cpp.EOF {
		if !first {
			tok = p.skip(tok, ",")
		}
		first = false

		var arg *Node
		arg, tok = p.assign(tok)
		p.addType(arg)

		if fnTy != nil && argIdx < len(fnTy.Params) {
			paramTy := fnTy.Params[argIdx]
			if paramTy.Kind != TyStruct && paramTy.Kind != TyUnion &&
				!paramTy.IsError() && !arg.Ty.IsError() {
				arg = NewCast(arg, paramTy)
			}
		} else if fnTy != nil && !fnTy.IsVariadic && len(fnTy.Params) > 0 {
			p.ds.ErrorTok(arg.Tok, "too many arguments")
		} else if arg.Ty.Kind == TyFloat {
			// Floats are promoted to double in a variadic context.
			arg = NewCast(arg, TyDoubleType)
		} else if arg.Ty.IsInteger() && arg.Ty.Size < 4 {
			arg = NewCast(arg, TyIntType)
		}
		args = append(args, arg)
		argIdx++
	}
	tok = p.skip(tok, ")")

	if fnTy != nil && argIdx < len(fnTy.Params) {
		p.ds.ErrorTok(node.Tok, "too few arguments")
	}

	node.Args = args
	if fnTy != nil {
		node.Ty = fnTy.ReturnTy.Copy()
	} else {
		node.Ty = TyErrorType
	}
	return node, tok
}

// stmtExpr parses a [GNU] statement expression ({ ... }); tok points
// just past the '{'.
func (p *parser) stmtExpr(tok *cpp.Token, start *cpp.Token) (*Node, *cpp.Token) {
	var block *Node
	block, tok = p.compoundStmt(tok, start)
	node := NewNode(NdStmtExpr, start)
	node.Body = block.Body
	tok = p.skip(tok, ")")

	if len(node.Body) > 0 {
		last := node.Body[len(node.Body)-1]
		if last.Kind == NdExprStmt {
			return node, tok
		}
	}
	p.ds.ErrorTok(start, "statement expression returning void is not supported")
	return p.errorNode(start), tok
}

// primary parses primary expressions.
func (p *parser) primary(tok *cpp.Token) (*Node, *cpp.Token) {
	start := tok

	switch {
	case tok.Equal("(") && tok.Next.Equal("{"):
		return p.stmtExpr(tok.Next.Next, tok)

	case tok.Equal("("):
		node, rest := p.expr(tok.Next)
		return node, p.skip(rest, ")")

	case tok.Equal("sizeof") && tok.Next.Equal("(") && p.isTypename(tok.Next.Next):
		ty, rest := p.typename(tok.Next.Next)
		rest = p.skip(rest, ")")
		if ty.Kind == TyVLA {
			if ty.VLASize != nil {
				return NewVarNode(ty.VLASize, tok), rest
			}
			size := p.computeVLASize(ty, tok)
			node := NewBinary(NdComma, size, NewVarNode(ty.VLASize, tok), tok)
			node.Ty = TyULongType
			return node, rest
		}
		if ty.Size < 0 {
			p.ds.ErrorTok(tok.Next.Next, "sizeof applied to an incomplete type")
			return p.errorNode(tok), rest
		}
		return NewULong(ty.Size, start), rest

	case tok.Equal("sizeof"):
		node, rest := p.unary(tok.Next)
		p.addType(node)
		if node.Ty.Kind == TyVLA {
			return NewVarNode(node.Ty.VLASize, tok), rest
		}
		if node.Ty.IsError() {
			return p.errorNode(tok), rest
		}
		return NewULong(node.Ty.Size, tok), rest

	case tok.Equal("_Alignof") && tok.Next.Equal("(") && p.isTypename(tok.Next.Next):
		ty, rest := p.typename(tok.Next.Next)
		rest = p.skip(rest, ")")
		return NewULong(ty.Align, tok), rest

	case tok.Equal("_Alignof"):
		node, rest := p.unary(tok.Next)
		p.addType(node)
		return NewULong(node.Ty.Align, tok), rest

	case tok.Equal("__builtin_compare_and_swap"):
		node := NewNode(NdCas, tok)
		tok = p.skip(tok.Next, "(")
		node.CasAddr, tok = p.assign(tok)
		tok = p.skip(tok, ",")
		node.CasOld, tok = p.assign(tok)
		tok = p.skip(tok, ",")
		node.CasNew, tok = p.assign(tok)
		tok = p.skip(tok, ")")
		return node, tok

	case tok.Equal("__builtin_atomic_exchange"):
		node := NewNode(NdExch, tok)
		tok = p.skip(tok.Next, "(")
		node.Lhs, tok = p.assign(tok)
		tok = p.skip(tok, ",")
		node.Rhs, tok = p.assign(tok)
		tok = p.skip(tok, ")")
		return node, tok

	case tok.Kind == cpp.IDENT:
		vs := p.scope.findVar(tok.Text())
		rest := tok.Next

		if vs != nil && vs.Var != nil {
			v := vs.Var
			if v.IsFunction && p.currentFn != nil {
				p.currentFn.Refs = append(p.currentFn.Refs, v.Name)
			}
			p.noteCapture(v)
			return NewVarNode(v, tok), rest
		}
		if vs != nil && vs.EnumTy != nil {
			node := NewNum(vs.EnumVal, tok)
			node.Ty = vs.EnumTy
			return node, rest
		}
		if rest.Equal("(") {
			p.ds.ErrorTok(tok, "implicit declaration of function '%s'", tok.Text())
		} else {
			p.ds.ErrorTok(tok, "undefined variable '%s'", tok.Text())
		}
		return p.errorNode(tok), rest

	case tok.Kind == cpp.STR:
		v := p.newStringLiteral(tok)
		p.noteCapture(v)
		return NewVarNode(v, tok), tok.Next

	case tok.Kind == cpp.NUM:
		var node *Node
		ty := numKindType(tok.Num)
		if ty.IsFlonum() {
			node = NewNode(NdNum, tok)
			node.FVal = tok.FVal
		} else {
			node = NewNum(tok.Val, tok)
		}
		node.Ty = ty
		return node, tok.Next
	}

	p.ds.ErrorTok(tok, "expected an expression")
	return p.errorNode(tok), tok.Next
}
