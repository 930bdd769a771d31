package parse

import "github.com/takeiteasy/cast/cpp"

// compoundStmt parses { ... } with a fresh scope. tok points just past
// the '{'.
func (p *parser) compoundStmt(tok *cpp.Token, brace *cpp.Token) (*Node, *cpp.Token) {
	node := NewNode(NdBlock, brace)
	p.enterScope()

	var body []*Node
	for !tok.Equal("}") {
		if tok.Kind == cpp.EOF {
			p.ds.ErrorTok(brace, "unterminated block")
			break
		}
		start := tok

		switch {
		case tok.Equal("_Static_assert"):
			tok = p.staticAssertion(tok)

		case p.isTypename(tok) && !tok.Next.Equal(":"):
			attr := &VarAttr{}
			var basety *Type
			basety, tok = p.declspec(tok, attr)
			if attr.IsTypedef {
				tok = p.parseTypedef(tok, basety)
				continue
			}
			var n *Node
			n, tok = p.declaration(tok, basety, attr)
			p.addType(n)
			body = append(body, n)

		default:
			var n *Node
			n, tok = p.stmt(tok)
			p.addType(n)
			body = append(body, n)
		}

		if tok == start {
			p.ds.ErrorTok(tok, "unexpected token '%s'", tok.Text())
			tok = tok.Next
		}
	}

	p.leaveScope()
	node.Body = body
	p.addType(node)
	return node, tok.Next
}

// computeVLASize emits the expression statements that compute a VLA's
// runtime size into a hidden local.
func (p *parser) computeVLASize(ty *Type, tok *cpp.Token) *Node {
	node := NewNode(NdNullExpr, tok)
	node.Ty = TyVoidType
	if ty.Base != nil {
		base := p.computeVLASize(ty.Base, tok)
		node = NewBinary(NdComma, node, base, tok)
	}
	if ty.Kind != TyVLA {
		return node
	}

	var baseSz *Node
	if ty.Base.Kind == TyVLA {
		baseSz = NewVarNode(ty.Base.VLASize, tok)
	} else {
		baseSz = NewNum(ty.Base.Size, tok)
	}

	ty.VLASize = p.newLocalVar("", TyULongType, tok)
	expr := NewBinary(NdAssign, NewVarNode(ty.VLASize, tok),
		NewBinary(NdMul, ty.VLALen, baseSz, tok), tok)
	stmt := NewUnary(NdExprStmt, expr, tok)
	return NewBinary(NdComma, node, stmt, tok)
}

// declaration parses one local declaration line into a block of
// initialization statements.
func (p *parser) declaration(tok *cpp.Token, basety *Type, attr *VarAttr) (*Node, *cpp.Token) {
	head := tok
	var body []*Node
	first := true

	for !tok.Equal(";") && tok.Kind != cpp.EOF {
		if !first {
			tok = p.skip(tok, ",")
		}
		first = false

		var ty *Type
		ty, tok = p.declarator(tok, basety)
		if ty.Kind == TyVoid {
			p.ds.ErrorTok(ty.NamePos, "variable declared void")
			tok = p.skipToSync(tok)
			return NewNode(NdBlock, head), tok
		}
		if ty.Name == nil {
			p.ds.ErrorTok(ty.NamePos, "variable name omitted")
			tok = p.skipToSync(tok)
			return NewNode(NdBlock, head), tok
		}
		name := ty.Name.Text()

		if prev := p.scope.findVarInCurrent(name); prev != nil && prev.Var != nil {
			p.ds.ErrorTok(ty.Name, "redeclaration of %s", name)
		}

		if attr.IsStatic {
			// Static local: hoisted to a global under a unique label;
			// the local name references it.
			v := p.newAnonGlobalVar(ty)
			v.Tok = ty.Name
			vs := p.pushScope(ty.Name, name)
			vs.Var = v
			if tok.Equal("=") {
				tok = p.globalVarInitializer(tok.Next, v)
			}
			continue
		}

		// VLA sizes are computed where the declaration executes.
		if ty.Kind == TyVLA {
			if tok.Equal("=") {
				p.ds.ErrorTok(tok, "variable-sized object may not be initialized")
				tok = p.skipToSync(tok)
				return NewNode(NdBlock, head), tok
			}
			body = append(body, NewUnary(NdExprStmt, p.computeVLASize(ty, ty.Name), ty.Name))
			v := p.newLocalVar(name, ty, ty.Name)
			if attr.Align != 0 {
				v.Align = attr.Align
			}
			continue
		}

		v := p.newLocalVar(name, ty, ty.Name)
		if attr.Align != 0 {
			v.Align = attr.Align
		}

		if tok.Equal("=") {
			var expr *Node
			expr, tok = p.localVarInitializer(tok.Next, v)
			if expr != nil {
				body = append(body, NewUnary(NdExprStmt, expr, ty.Name))
			}
		}

		if v.Ty.Size < 0 {
			p.ds.ErrorTok(ty.Name, "variable has incomplete type")
		}
	}

	node := NewNode(NdBlock, head)
	node.Body = body
	return node, p.skip(tok, ";")
}

// asmStmt captures an asm statement as an opaque string.
func (p *parser) asmStmt(tok *cpp.Token) (*Node, *cpp.Token) {
	node := NewNode(NdAsm, tok)
	node.Ty = TyVoidType
	tok = tok.Next
	for tok.Equal("volatile") || tok.Equal("inline") {
		tok = tok.Next
	}
	tok = p.skip(tok, "(")
	if tok.Kind != cpp.STR || tok.StrKind != cpp.StrChar {
		p.ds.ErrorTok(tok, "expected string literal")
	} else {
		node.AsmStr = string(tok.Str[:len(tok.Str)-1])
		tok = tok.Next
	}
	// Extended asm operands are skipped.
	depth := 1
	for depth > 0 && tok.Kind != cpp.EOF {
		if tok.Equal("(") {
			depth++
		} else if tok.Equal(")") {
			depth--
		}
		tok = tok.Next
	}
	tok, _ = consume(tok, ";")
	return node, tok
}

// stmt parses one statement.
func (p *parser) stmt(tok *cpp.Token) (*Node, *cpp.Token) {
	switch {
	case tok.Equal("return"):
		node := NewNode(NdReturn, tok)
		tok2, ok := consume(tok.Next, ";")
		if ok {
			return node, tok2
		}
		var exp *Node
		exp, tok = p.expr(tok.Next)
		tok = p.skip(tok, ";")
		p.addType(exp)
		if p.currentFn != nil {
			retTy := p.currentFn.Ty.ReturnTy
			if retTy.Kind != TyStruct && retTy.Kind != TyUnion && !retTy.IsError() && !exp.Ty.IsError() {
				exp = NewCast(exp, retTy)
			}
		}
		node.Lhs = exp
		return node, tok

	case tok.Equal("if"):
		node := NewNode(NdIf, tok)
		tok = p.skip(tok.Next, "(")
		node.Cond, tok = p.expr(tok)
		tok = p.skip(tok, ")")
		node.Then, tok = p.stmt(tok)
		if tok.Equal("else") {
			node.Els, tok = p.stmt(tok.Next)
		}
		return node, tok

	case tok.Equal("switch"):
		node := NewNode(NdSwitch, tok)
		tok = p.skip(tok.Next, "(")
		node.Cond, tok = p.expr(tok)
		tok = p.skip(tok, ")")

		sw := p.currentSwitch
		p.currentSwitch = node
		brk := p.brkLabel
		node.BrkLabel = p.newUniqueName()
		p.brkLabel = node.BrkLabel

		node.Then, tok = p.stmt(tok)

		p.currentSwitch = sw
		p.brkLabel = brk
		return node, tok

	case tok.Equal("case"):
		if p.currentSwitch == nil {
			p.ds.ErrorTok(tok, "stray case")
		}
		node := NewNode(NdCase, tok)
		var begin, end int64
		begin, tok = p.constExpr(tok.Next)
		if tok.Equal("...") {
			// [GNU] case ranges
			end, tok = p.constExpr(tok.Next)
			if end < begin {
				p.ds.ErrorTok(tok, "empty case range specified")
			}
		} else {
			end = begin
		}
		tok = p.skip(tok, ":")
		node.Label = p.newUniqueName()
		node.Lhs, tok = p.stmt(tok)
		node.CaseBegin = begin
		node.CaseEnd = end
		if p.currentSwitch != nil {
			for _, c := range p.currentSwitch.Cases {
				if begin <= c.CaseEnd && c.CaseBegin <= end {
					p.ds.ErrorTok(node.Tok, "duplicate case value")
					break
				}
			}
			p.currentSwitch.Cases = append(p.currentSwitch.Cases, node)
		}
		return node, tok

	case tok.Equal("default"):
		if p.currentSwitch == nil {
			p.ds.ErrorTok(tok, "stray default")
		}
		node := NewNode(NdCase, tok)
		tok = p.skip(tok.Next, ":")
		node.Label = p.newUniqueName()
		node.Lhs, tok = p.stmt(tok)
		if p.currentSwitch != nil {
			if p.currentSwitch.DefaultCase != nil {
				p.ds.ErrorTok(node.Tok, "duplicate default label")
			}
			p.currentSwitch.DefaultCase = node
		}
		return node, tok

	case tok.Equal("for"):
		node := NewNode(NdFor, tok)
		tok = p.skip(tok.Next, "(")

		p.enterScope()
		brk, cont := p.brkLabel, p.contLabel
		node.BrkLabel = p.newUniqueName()
		node.ContLabel = p.newUniqueName()
		p.brkLabel = node.BrkLabel
		p.contLabel = node.ContLabel

		if p.isTypename(tok) {
			var basety *Type
			basety, tok = p.declspec(tok, nil)
			node.Init, tok = p.declaration(tok, basety, &VarAttr{})
		} else if !tok.Equal(";") {
			var exp *Node
			exp, tok = p.expr(tok)
			node.Init = NewUnary(NdExprStmt, exp, tok)
			tok = p.skip(tok, ";")
		} else {
			tok = tok.Next
		}

		if !tok.Equal(";") {
			node.Cond, tok = p.expr(tok)
		}
		tok = p.skip(tok, ";")
		if !tok.Equal(")") {
			node.Inc, tok = p.expr(tok)
		}
		tok = p.skip(tok, ")")

		node.Then, tok = p.stmt(tok)

		p.leaveScope()
		p.brkLabel, p.contLabel = brk, cont
		return node, tok

	case tok.Equal("while"):
		node := NewNode(NdFor, tok)
		tok = p.skip(tok.Next, "(")
		node.Cond, tok = p.expr(tok)
		tok = p.skip(tok, ")")

		brk, cont := p.brkLabel, p.contLabel
		node.BrkLabel = p.newUniqueName()
		node.ContLabel = p.newUniqueName()
		p.brkLabel = node.BrkLabel
		p.contLabel = node.ContLabel

		node.Then, tok = p.stmt(tok)

		p.brkLabel, p.contLabel = brk, cont
		return node, tok

	case tok.Equal("do"):
		node := NewNode(NdDo, tok)

		brk, cont := p.brkLabel, p.contLabel
		node.BrkLabel = p.newUniqueName()
		node.ContLabel = p.newUniqueName()
		p.brkLabel = node.BrkLabel
		p.contLabel = node.ContLabel

		node.Then, tok = p.stmt(tok.Next)

		p.brkLabel, p.contLabel = brk, cont

		tok = p.skip(tok, "while")
		tok = p.skip(tok, "(")
		node.Cond, tok = p.expr(tok)
		tok = p.skip(tok, ")")
		tok = p.skip(tok, ";")
		return node, tok

	case tok.Equal("asm") || tok.Equal("__asm") || tok.Equal("__asm__"):
		return p.asmStmt(tok)

	case tok.Equal("goto"):
		if tok.Next.Equal("*") {
			// [GNU] computed goto: goto *expr;
			node := NewNode(NdGotoExpr, tok)
			node.Lhs, tok = p.expr(tok.Next.Next)
			tok = p.skip(tok, ";")
			return node, tok
		}
		node := NewNode(NdGoto, tok)
		if tok.Next.Kind != cpp.IDENT {
			p.ds.ErrorTok(tok.Next, "expected a label name")
			return node, p.skipToSync(tok.Next)
		}
		node.Label = tok.Next.Text()
		p.gotos = append(p.gotos, node)
		tok = p.skip(tok.Next.Next, ";")
		return node, tok

	case tok.Equal("break"):
		if p.brkLabel == "" {
			p.ds.ErrorTok(tok, "stray break")
		}
		node := NewNode(NdGoto, tok)
		node.UniqueLabel = p.brkLabel
		tok = p.skip(tok.Next, ";")
		return node, tok

	case tok.Equal("continue"):
		if p.contLabel == "" {
			p.ds.ErrorTok(tok, "stray continue")
		}
		node := NewNode(NdGoto, tok)
		node.UniqueLabel = p.contLabel
		tok = p.skip(tok.Next, ";")
		return node, tok

	case tok.Kind == cpp.IDENT && tok.Next.Equal(":"):
		// Labeled statement
		node := NewNode(NdLabel, tok)
		node.Label = tok.Text()
		node.UniqueLabel = p.newUniqueName()
		node.Lhs, tok = p.stmt(tok.Next.Next)
		p.labels = append(p.labels, node)
		return node, tok

	case tok.Equal("{"):
		return p.compoundStmt(tok.Next, tok)

	default:
		return p.exprStmt(tok)
	}
}

// exprStmt parses an expression statement, including the empty one.
func (p *parser) exprStmt(tok *cpp.Token) (*Node, *cpp.Token) {
	if tok.Equal(";") {
		node := NewNode(NdBlock, tok)
		return node, tok.Next
	}
	node := NewNode(NdExprStmt, tok)
	node.Lhs, tok = p.expr(tok)
	tok = p.skip(tok, ";")
	return node, tok
}

// resolveGotoLabels binds each goto in the finished function to its
// label by name; unresolved gotos are errors.
func (p *parser) resolveGotoLabels() {
	for _, g := range p.gotos {
		if g.UniqueLabel != "" {
			continue // break/continue already bound
		}
		found := false
		for _, l := range p.labels {
			if l.Label == g.Label {
				g.UniqueLabel = l.UniqueLabel
				found = true
				break
			}
		}
		if !found {
			p.ds.ErrorTok(g.Tok, "use of undeclared label '%s'", g.Label)
		}
	}
	p.gotos = nil
	p.labels = nil
}
