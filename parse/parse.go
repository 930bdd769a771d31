package parse

import (
	"fmt"

	"github.com/takeiteasy/cast/cpp"
)

// Context carries parser state that must survive across translation
// units within one session, such as the unique-label counter that keeps
// hoisted statics and string literals from colliding at link time.
type Context struct {
	ds       *cpp.Diagnostics
	uniqueID int
}

func NewContext(ds *cpp.Diagnostics) *Context {
	return &Context{ds: ds}
}

// parser holds all state for parsing one translation unit. Entering a
// block pushes a fresh Scope, leaving pops it. Function parameters live
// in a scope of their own that encloses the body's block scope; they do
// not share the body's scope. Tags and ordinary identifiers occupy
// disjoint namespaces.
type parser struct {
	ds  *cpp.Diagnostics
	ctx *Context

	scope   *Scope
	globals []*Obj
	locals  []*Obj

	currentFn     *Obj
	gotos         []*Node
	labels        []*Node
	brkLabel      string
	contLabel     string
	currentSwitch *Node
}

// Parse translates a preprocessed token stream into a list of
// top-level declarations with a fresh Context.
func Parse(ds *cpp.Diagnostics, tok *cpp.Token) ([]*Obj, error) {
	return NewContext(ds).Parse(tok)
}

// Parse translates a preprocessed token stream into a list of
// top-level declarations. The Breakout escape from the shared
// diagnostics sink is converted to an error here.
func (c *Context) Parse(tok *cpp.Token) (objs []*Obj, err error) {
	defer func() {
		if e := recover(); e != nil {
			b, ok := e.(*cpp.Breakout)
			if !ok {
				panic(e)
			}
			err = b.Diag
		}
	}()

	p := &parser{ds: c.ds, ctx: c}
	p.scope = newScope(nil)

	for tok.Kind != cpp.EOF {
		start := tok

		if tok.Equal("_Static_assert") {
			tok = p.staticAssertion(tok)
			continue
		}

		attr := &VarAttr{}
		var basety *Type
		basety, tok = p.declspec(tok, attr)

		// Typedef
		if attr.IsTypedef {
			tok = p.parseTypedef(tok, basety)
			continue
		}

		// Function
		if p.isFunction(tok) {
			tok = p.function(tok, basety, attr)
			continue
		}

		// Global variable
		tok = p.globalVariable(tok, basety, attr)

		if tok == start {
			// Could not make progress; drop one token and resume.
			p.ds.ErrorTok(tok, "unexpected token '%s'", tok.Text())
			tok = tok.Next
		}
	}

	p.markFunctionRoots()
	return p.globals, nil
}

func (p *parser) newUniqueName() string {
	name := fmt.Sprintf(".L..%d", p.ctx.uniqueID)
	p.ctx.uniqueID++
	return name
}

// skip expects the spelling s and consumes it. On mismatch it reports
// and leaves the token so callers keep their own recovery points.
func (p *parser) skip(tok *cpp.Token, s string) *cpp.Token {
	if tok.Equal(s) {
		return tok.Next
	}
	p.ds.ErrorTok(tok, "expected '%s'", s)
	return tok
}

func consume(tok *cpp.Token, s string) (*cpp.Token, bool) {
	if tok.Equal(s) {
		return tok.Next, true
	}
	return tok, false
}

func (p *parser) getIdent(tok *cpp.Token) string {
	if tok.Kind != cpp.IDENT {
		p.ds.ErrorTok(tok, "expected an identifier")
		return ""
	}
	return tok.Text()
}

func (p *parser) errorNode(tok *cpp.Token) *Node {
	n := NewNode(NdNullExpr, tok)
	n.Ty = TyErrorType
	return n
}

func (p *parser) newVar(name string, ty *Type, tok *cpp.Token) *Obj {
	v := &Obj{Name: name, Ty: ty, Tok: tok, Align: ty.Align}
	if name != "" {
		vs := p.pushScope(tok, name)
		vs.Var = v
	}
	return v
}

func (p *parser) newLocalVar(name string, ty *Type, tok *cpp.Token) *Obj {
	v := p.newVar(name, ty, tok)
	v.IsLocal = true
	p.locals = append(p.locals, v)
	return v
}

func (p *parser) newGlobalVar(name string, ty *Type, tok *cpp.Token) *Obj {
	v := p.newVar(name, ty, tok)
	v.IsStatic = true
	v.IsDefinition = true
	p.globals = append(p.globals, v)
	return v
}

func (p *parser) newAnonGlobalVar(ty *Type) *Obj {
	v := &Obj{Name: p.newUniqueName(), Ty: ty, Align: ty.Align, IsStatic: true, IsDefinition: true}
	p.globals = append(p.globals, v)
	return v
}

// newStringLiteral hoists a string literal to a global under a unique
// label; the expression becomes a reference to it.
func (p *parser) newStringLiteral(tok *cpp.Token) *Obj {
	elemTy := strKindType(tok.StrKind)
	ty := ArrayOf(elemTy, int64(tok.ArrayLen))
	v := p.newAnonGlobalVar(ty)
	v.InitData = tok.Str
	v.Tok = tok
	return v
}

// isTypename reports whether tok begins a type specifier.
func (p *parser) isTypename(tok *cpp.Token) bool {
	switch tok.Text() {
	case "void", "_Bool", "char", "short", "int", "long", "float", "double",
		"struct", "union", "enum", "typedef", "static", "extern", "inline",
		"__inline", "signed", "unsigned", "const", "volatile", "auto",
		"register", "restrict", "__restrict", "__restrict__", "_Noreturn",
		"typeof", "__typeof__", "_Alignas", "_Thread_local", "__thread",
		"_Atomic", "constexpr", "__attribute__":
		return true
	}
	return p.findTypeDef(tok) != nil
}

// Counters for the multi-keyword type specifier grammar: each keyword
// may appear a limited number of times in any order ("long static long
// int" is valid C).
const (
	cntVoid = 1 << (2 * iota)
	cntBool
	cntChar
	cntShort
	cntInt
	cntLong
	cntFloat
	cntDouble
	cntOther
	cntSigned   = 1 << 18
	cntUnsigned = 1 << 20
)

// declspec parses declaration specifiers: type specifiers, storage
// classes, qualifiers and alignment.
func (p *parser) declspec(tok *cpp.Token, attr *VarAttr) (*Type, *cpp.Token) {
	ty := TyIntType
	counter := 0
	isAtomic := false
	isConst := false
	isVolatile := false

	for p.isTypename(tok) {
		// Storage class specifiers
		if tok.Equal("typedef") || tok.Equal("static") || tok.Equal("extern") ||
			tok.Equal("inline") || tok.Equal("__inline") || tok.Equal("_Thread_local") ||
			tok.Equal("__thread") || tok.Equal("constexpr") {
			if attr == nil {
				p.ds.ErrorTok(tok, "storage class specifier is not allowed in this context")
				tok = tok.Next
				continue
			}
			switch tok.Text() {
			case "typedef":
				attr.IsTypedef = true
			case "static":
				attr.IsStatic = true
			case "extern":
				attr.IsExtern = true
			case "inline", "__inline":
				attr.IsInline = true
			case "constexpr":
				attr.IsConstexpr = true
				isConst = true
			default:
				attr.IsTLS = true
			}
			if attr.IsTypedef && (attr.IsStatic || attr.IsExtern || attr.IsInline || attr.IsTLS) {
				p.ds.ErrorTok(tok, "typedef may not be used together with static, extern, inline, __thread or _Thread_local")
			}
			tok = tok.Next
			continue
		}

		// Qualifiers and such are accepted and recorded.
		if tok.Equal("const") {
			isConst = true
			tok = tok.Next
			continue
		}
		if tok.Equal("volatile") {
			isVolatile = true
			tok = tok.Next
			continue
		}
		if tok.Equal("auto") || tok.Equal("register") || tok.Equal("restrict") ||
			tok.Equal("__restrict") || tok.Equal("__restrict__") || tok.Equal("_Noreturn") {
			tok = tok.Next
			continue
		}
		if tok.Equal("__attribute__") {
			var dummy Type
			tok = p.attributeList(tok.Next, &dummy)
			continue
		}

		if tok.Equal("_Atomic") {
			tok = tok.Next
			if tok.Equal("(") {
				// _Atomic(T)
				var t *Type
				t, tok = p.typename(tok.Next)
				tok = p.skip(tok, ")")
				ty = t
				counter |= cntOther
			}
			isAtomic = true
			continue
		}

		if tok.Equal("_Alignas") {
			if attr == nil {
				p.ds.ErrorTok(tok, "_Alignas is not allowed in this context")
				tok = tok.Next
				continue
			}
			tok = p.skip(tok.Next, "(")
			if p.isTypename(tok) {
				var t *Type
				t, tok = p.typename(tok)
				attr.Align = t.Align
			} else {
				var val int64
				val, tok = p.constExpr(tok)
				attr.Align = val
			}
			tok = p.skip(tok, ")")
			continue
		}

		// typedef names and typeof
		if tok.Equal("typeof") || tok.Equal("__typeof__") {
			var t *Type
			t, tok = p.typeofSpecifier(tok.Next)
			ty = t
			counter |= cntOther
			continue
		}
		if td := p.findTypeDef(tok); td != nil {
			if counter != 0 {
				break
			}
			ty = td
			tok = tok.Next
			counter |= cntOther
			continue
		}

		// struct, union and enum specifiers
		if tok.Equal("struct") || tok.Equal("union") || tok.Equal("enum") {
			if counter != 0 {
				break
			}
			switch tok.Text() {
			case "struct":
				ty, tok = p.structDecl(tok.Next)
			case "union":
				ty, tok = p.unionDecl(tok.Next)
			default:
				ty, tok = p.enumSpecifier(tok.Next)
			}
			counter |= cntOther
			continue
		}

		// Builtin types
		switch tok.Text() {
		case "void":
			counter += cntVoid
		case "_Bool":
			counter += cntBool
		case "char":
			counter += cntChar
		case "short":
			counter += cntShort
		case "int":
			counter += cntInt
		case "long":
			counter += cntLong
		case "float":
			counter += cntFloat
		case "double":
			counter += cntDouble
		case "signed":
			counter |= cntSigned
		case "unsigned":
			counter |= cntUnsigned
		default:
			p.ds.ErrorTok(tok, "invalid type specifier")
			tok = tok.Next
			continue
		}

		switch counter {
		case cntVoid:
			ty = TyVoidType
		case cntBool:
			ty = TyBoolType
		case cntChar, cntSigned + cntChar:
			ty = TyCharType
		case cntUnsigned + cntChar:
			ty = TyUCharType
		case cntShort, cntShort + cntInt, cntSigned + cntShort, cntSigned + cntShort + cntInt:
			ty = TyShortType
		case cntUnsigned + cntShort, cntUnsigned + cntShort + cntInt:
			ty = TyUShortType
		case cntInt, cntSigned, cntSigned + cntInt:
			ty = TyIntType
		case cntUnsigned, cntUnsigned + cntInt:
			ty = TyUIntType
		case cntLong, cntLong + cntInt, cntLong + cntLong, cntLong + cntLong + cntInt,
			cntSigned + cntLong, cntSigned + cntLong + cntInt,
			cntSigned + cntLong + cntLong, cntSigned + cntLong + cntLong + cntInt:
			ty = TyLongType
		case cntUnsigned + cntLong, cntUnsigned + cntLong + cntInt,
			cntUnsigned + cntLong + cntLong, cntUnsigned + cntLong + cntLong + cntInt:
			ty = TyULongType
		case cntFloat:
			ty = TyFloatType
		case cntDouble:
			ty = TyDoubleType
		case cntLong + cntDouble:
			ty = TyLDoubleType
		default:
			if counter&cntOther == 0 {
				p.ds.ErrorTok(tok, "invalid type specifier")
			}
		}
		tok = tok.Next
	}

	if isAtomic || isConst || isVolatile {
		ty = ty.Copy()
		ty.IsAtomic = isAtomic
		ty.IsConst = ty.IsConst || isConst
		ty.IsVolatile = ty.IsVolatile || isVolatile
	}
	return ty, tok
}

// typeofSpecifier parses typeof(expr) or typeof(type).
func (p *parser) typeofSpecifier(tok *cpp.Token) (*Type, *cpp.Token) {
	tok = p.skip(tok, "(")
	var ty *Type
	if p.isTypename(tok) {
		ty, tok = p.typename(tok)
	} else {
		var node *Node
		node, tok = p.expr(tok)
		p.addType(node)
		ty = node.Ty
	}
	tok = p.skip(tok, ")")
	return ty, tok
}

// attributeList parses a __attribute__((...)) list, honoring packed
// and aligned(n).
func (p *parser) attributeList(tok *cpp.Token, ty *Type) *cpp.Token {
	for {
		tok2, ok := consume(tok, "__attribute__")
		if !ok {
			return tok
		}
		tok = tok2
		tok = p.skip(tok, "(")
		tok = p.skip(tok, "(")

		first := true
		for !tok.Equal(")") {
			if !first {
				tok = p.skip(tok, ",")
			}
			first = false

			switch {
			case tok.Equal("packed") || tok.Equal("__packed__"):
				ty.IsPacked = true
				tok = tok.Next
			case tok.Equal("aligned") || tok.Equal("__aligned__"):
				tok = tok.Next
				if tok.Equal("(") {
					var val int64
					val, tok = p.constExpr(tok.Next)
					ty.Align = val
					tok = p.skip(tok, ")")
				}
			default:
				// Unknown attributes are skipped with their arguments.
				tok = tok.Next
				if tok.Equal("(") {
					depth := 0
					for {
						if tok.Equal("(") {
							depth++
						} else if tok.Equal(")") {
							depth--
							if depth == 0 {
								tok = tok.Next
								break
							}
						} else if tok.Kind == cpp.EOF {
							break
						}
						tok = tok.Next
					}
				}
			}
		}
		tok = p.skip(tok, ")")
		tok = p.skip(tok, ")")
	}
}

// enumSpecifier parses enum-specifier. Enumerators fold at parse time
// and are recorded on the type for the declaration dump.
func (p *parser) enumSpecifier(tok *cpp.Token) (*Type, *cpp.Token) {
	ty := EnumType()

	// Read a tag.
	var tag *cpp.Token
	if tok.Kind == cpp.IDENT {
		tag = tok
		tok = tok.Next
	}

	if tag != nil && !tok.Equal("{") {
		found := p.scope.findTag(tag.Text())
		if found == nil {
			p.ds.ErrorTok(tag, "unknown enum type")
			return ty, tok
		}
		if found.Kind != TyEnum {
			p.ds.ErrorTok(tag, "not an enum tag")
			return ty, tok
		}
		return found, tok
	}

	tok = p.skip(tok, "{")

	val := int64(0)
	first := true
	for !p.isListEnd(tok) {
		if !first {
			tok = p.skip(tok, ",")
		}
		first = false
		if p.isListEnd(tok) {
			break
		}

		name := p.getIdent(tok)
		nameTok := tok
		tok = tok.Next

		if tok.Equal("=") {
			val, tok = p.constExpr(tok.Next)
		}

		vs := p.pushScope(nameTok, name)
		vs.EnumTy = ty
		vs.EnumVal = val
		ty.EnumConsts = append(ty.EnumConsts, &EnumConst{Name: name, Val: val})
		val++
	}
	tok = p.skipListEnd(tok)

	if tag != nil {
		p.pushTagScope(tag, ty)
		ty.Name = tag
	}
	return ty, tok
}

// isListEnd recognizes "}" or ",}" ends of initializer-style lists.
func (p *parser) isListEnd(tok *cpp.Token) bool {
	return tok.Equal("}") || (tok.Equal(",") && tok.Next.Equal("}"))
}

func (p *parser) skipListEnd(tok *cpp.Token) *cpp.Token {
	if tok.Equal("}") {
		return tok.Next
	}
	if tok.Equal(",") && tok.Next.Equal("}") {
		return tok.Next.Next
	}
	p.ds.ErrorTok(tok, "expected '}'")
	return tok
}

// pointers parses the * (and block ^) prefix of a declarator with its
// qualifiers.
func (p *parser) pointers(tok *cpp.Token, ty *Type) (*Type, *cpp.Token) {
	for {
		isBlock := false
		tok2, ok := consume(tok, "*")
		if !ok {
			tok2, ok = consume(tok, "^")
			isBlock = ok
		}
		if !ok {
			break
		}
		tok = tok2
		if isBlock {
			ty = BlockType(ty)
		} else {
			ty = PointerTo(ty)
		}
		for tok.Equal("const") || tok.Equal("volatile") || tok.Equal("restrict") ||
			tok.Equal("__restrict") || tok.Equal("__restrict__") || tok.Equal("_Atomic") {
			switch tok.Text() {
			case "const":
				ty = ty.Copy()
				ty.IsConst = true
			case "volatile":
				ty = ty.Copy()
				ty.IsVolatile = true
			case "_Atomic":
				ty = ty.Copy()
				ty.IsAtomic = true
			}
			tok = tok.Next
		}
	}
	return ty, tok
}

// declarator parses a declarator and returns its type; the declared
// name is stored in Type.Name (nil for an abstract declarator).
func (p *parser) declarator(tok *cpp.Token, ty *Type) (*Type, *cpp.Token) {
	ty, tok = p.pointers(tok, ty)

	if tok.Equal("(") {
		// Parenthesized declarator: parse the suffix first, then
		// re-parse the inner declarator against the suffixed type.
		start := tok
		var ignore Type
		_, tok = p.declarator(tok.Next, &ignore)
		tok = p.skip(tok, ")")
		ty, tok = p.typeSuffix(tok, ty)
		var inner *Type
		inner, _ = p.declarator(start.Next, ty)
		return inner, tok
	}

	var name *cpp.Token
	namePos := tok
	if tok.Kind == cpp.IDENT {
		name = tok
		tok = tok.Next
	}

	ty, tok = p.typeSuffix(tok, ty)
	ty = shallowName(ty, name, namePos)
	return ty, tok
}

// shallowName attaches the declared name without disturbing shared
// singleton types.
func shallowName(ty *Type, name, namePos *cpp.Token) *Type {
	c := *ty
	c.Name = name
	c.NamePos = namePos
	if ty.Origin == nil {
		c.Origin = ty
	}
	return &c
}

// abstractDeclarator parses a declarator without a name, as in casts
// and sizeof.
func (p *parser) abstractDeclarator(tok *cpp.Token, ty *Type) (*Type, *cpp.Token) {
	ty, tok = p.pointers(tok, ty)

	if tok.Equal("(") && (tok.Next.Equal("(") || tok.Next.Equal("*") || tok.Next.Equal("[")) {
		start := tok
		var ignore Type
		_, tok = p.abstractDeclarator(tok.Next, &ignore)
		tok = p.skip(tok, ")")
		ty, tok = p.typeSuffix(tok, ty)
		inner, _ := p.abstractDeclarator(start.Next, ty)
		return inner, tok
	}
	return p.typeSuffix(tok, ty)
}

// typeSuffix parses the function parameter list or the array
// dimensions that follow a direct declarator.
func (p *parser) typeSuffix(tok *cpp.Token, ty *Type) (*Type, *cpp.Token) {
	if tok.Equal("(") {
		return p.funcParams(tok.Next, ty)
	}
	if tok.Equal("[") {
		return p.arrayDimensions(tok.Next, ty)
	}
	return ty, tok
}

// funcParams parses a parameter list. "(void)" means no parameters;
// "..." after at least one parameter makes the function variadic; an
// empty list is an unprototyped declaration.
func (p *parser) funcParams(tok *cpp.Token, ty *Type) (*Type, *cpp.Token) {
	fn := FuncType(ty)
	if ty.Kind == TyFunc {
		p.ds.ErrorTok(tok, "function return type cannot be a function")
		fn = FuncType(TyErrorType)
	}
	if ty.Kind == TyArray {
		p.ds.ErrorTok(tok, "function return type cannot be an array")
		fn = FuncType(TyErrorType)
	}

	if tok.Equal("void") && tok.Next.Equal(")") {
		return fn, tok.Next.Next
	}
	if tok.Equal(")") {
		// Unprototyped: compatible with anything, old-style varargs.
		fn.IsVariadic = true
		return fn, tok.Next
	}

	first := true
	for !tok.Equal(")") {
		start := tok
		if !first {
			tok = p.skip(tok, ",")
		}
		first = false

		if tok.Equal("...") {
			fn.IsVariadic = true
			tok = tok.Next
			break
		}

		var basety *Type
		basety, tok = p.declspec(tok, nil)
		var pty *Type
		pty, tok = p.declarator(tok, basety)
		if tok == start {
			p.ds.ErrorTok(tok, "expected a parameter declaration")
			tok = tok.Next
			continue
		}

		name := pty.Name
		switch pty.Kind {
		case TyArray, TyVLA:
			// Array of T decays to pointer to T in a parameter list.
			pty = PointerTo(pty.Base)
			pty = shallowName(pty, name, pty.NamePos)
		case TyFunc:
			pty = PointerTo(pty)
			pty = shallowName(pty, name, pty.NamePos)
		}
		fn.Params = append(fn.Params, pty)

		if tok.Kind == cpp.EOF {
			break
		}
	}
	tok = p.skip(tok, ")")
	return fn, tok
}

// arrayDimensions parses one [...] suffix; a non-constant length makes
// a VLA.
func (p *parser) arrayDimensions(tok *cpp.Token, ty *Type) (*Type, *cpp.Token) {
	// "static" and qualifiers inside [] are accepted and ignored.
	for tok.Equal("static") || tok.Equal("restrict") || tok.Equal("const") || tok.Equal("volatile") {
		tok = tok.Next
	}

	if tok.Equal("]") {
		var base *Type
		base, tok = p.typeSuffix(tok.Next, ty)
		return ArrayOf(base, -1), tok
	}

	var expr *Node
	expr, tok = p.conditional(tok)
	tok = p.skip(tok, "]")
	var base *Type
	base, tok = p.typeSuffix(tok, ty)

	if base.Kind == TyFunc {
		p.ds.ErrorTok(tok, "array of functions is not allowed")
		return ArrayOf(TyErrorType, -1), tok
	}

	p.addType(expr)
	if val, ok := p.isConstExpr(expr); ok {
		return ArrayOf(base, val), tok
	}
	if p.currentFn == nil {
		p.ds.ErrorTok(tok, "variably-modified type at file scope")
		return ArrayOf(base, -1), tok
	}
	return VLAOf(base, expr), tok
}

// typename parses a type-name: specifiers plus an abstract declarator.
func (p *parser) typename(tok *cpp.Token) (*Type, *cpp.Token) {
	ty, tok := p.declspec(tok, nil)
	return p.abstractDeclarator(tok, ty)
}

// structMembers parses the member declarations of a struct or union
// body into ty.Members.
func (p *parser) structMembers(tok *cpp.Token, ty *Type) *cpp.Token {
	idx := 0
	for !tok.Equal("}") && tok.Kind != cpp.EOF {
		lineStart := tok
		if tok.Equal("_Static_assert") {
			tok = p.staticAssertion(tok)
			continue
		}

		attr := &VarAttr{}
		var basety *Type
		basety, tok = p.declspec(tok, attr)
		first := true

		// Anonymous struct or union member.
		if (basety.Kind == TyStruct || basety.Kind == TyUnion) && tok.Equal(";") {
			mem := &Member{Ty: basety, Tok: tok, Idx: idx, Align: basety.Align}
			idx++
			ty.Members = append(ty.Members, mem)
			tok = tok.Next
			continue
		}

		for !tok.Equal(";") && tok.Kind != cpp.EOF {
			declStart := tok
			if !first {
				tok = p.skip(tok, ",")
			}
			first = false

			var mty *Type
			mty, tok = p.declarator(tok, basety)
			mem := &Member{
				Ty:    mty,
				Tok:   mty.NamePos,
				Name:  mty.Name,
				Idx:   idx,
				Align: mty.Align,
			}
			idx++
			if attr.Align != 0 {
				mem.Align = attr.Align
			}

			if tok.Equal(":") {
				var width int64
				width, tok = p.constExpr(tok.Next)
				if width < 0 || width > mty.Size*8 {
					p.ds.ErrorTok(mem.Tok, "bit-field width out of range")
					width = mty.Size * 8
				}
				mem.IsBitfield = true
				mem.BitWidth = width
			}
			ty.Members = append(ty.Members, mem)

			if tok == declStart {
				break
			}
		}
		tok = p.skip(tok, ";")
		if tok == lineStart {
			p.ds.ErrorTok(tok, "unexpected token '%s'", tok.Text())
			tok = tok.Next
		}
	}

	// A flexible array member is allowed only as the last member.
	for i, mem := range ty.Members {
		if mem.Ty.Kind == TyArray && mem.Ty.ArrayLen < 0 {
			if i != len(ty.Members)-1 {
				p.ds.ErrorTok(mem.Tok, "flexible array member must be the last member")
			} else {
				mem.Ty = ArrayOf(mem.Ty.Base, 0)
				ty.IsFlexible = true
			}
		}
	}
	return p.skip(tok, "}")
}

// structUnionDecl parses the common head of struct and union
// declarations: tag, attributes and the member body.
func (p *parser) structUnionDecl(tok *cpp.Token) (*Type, *cpp.Token, bool) {
	ty := StructType()
	tok = p.attributeList(tok, ty)

	// The preprocessor stamps tokens with the #pragma pack alignment in
	// force at their position.
	if tok.PackAlign > 0 {
		ty.PackAlign = int64(tok.PackAlign)
	}

	var tag *cpp.Token
	if tok.Kind == cpp.IDENT {
		tag = tok
		tok = tok.Next
	}

	if tag != nil && !tok.Equal("{") {
		// Reference or forward declaration.
		if found := p.scope.findTag(tag.Text()); found != nil {
			return found, tok, true
		}
		ty.Size = -1
		ty.Name = tag
		p.pushTagScope(tag, ty)
		return ty, tok, true
	}

	tok = p.skip(tok, "{")
	tok = p.structMembers(tok, ty)
	tok = p.attributeList(tok, ty)
	ty.Name = tag

	if tag != nil {
		// Redefinition of an incomplete tag in the same scope
		// completes it in place.
		if existing := p.scope.findTagInCurrent(tag.Text()); existing != nil {
			*existing = *ty
			return existing, tok, false
		}
		p.pushTagScope(tag, ty)
	}
	return ty, tok, false
}

// structDecl parses a struct specifier and lays out its members.
func (p *parser) structDecl(tok *cpp.Token) (*Type, *cpp.Token) {
	ty, tok, ref := p.structUnionDecl(tok)
	ty.Kind = TyStruct
	if ref {
		return ty, tok
	}

	// Assign offsets; bitfields share storage units.
	bits := int64(0)
	for _, mem := range ty.Members {
		if mem.Ty.Kind == TyError {
			continue
		}
		if mem.IsBitfield && mem.BitWidth == 0 {
			// Zero-width bitfields force alignment to the next unit.
			bits = alignTo(bits, mem.Ty.Size*8)
			continue
		}
		if mem.IsBitfield {
			sz := mem.Ty.Size
			if bits/(sz*8) != (bits+mem.BitWidth-1)/(sz*8) {
				bits = alignTo(bits, sz*8)
			}
			mem.Offset = alignDown(bits/8, sz)
			mem.BitOffset = bits % (sz * 8)
			bits += mem.BitWidth
			continue
		}
		align := mem.Align
		if ty.IsPacked {
			align = 1
		} else if ty.PackAlign > 0 && align > ty.PackAlign {
			align = ty.PackAlign
		}
		mem.Align = align
		bits = alignTo(bits, align*8)
		mem.Offset = bits / 8
		bits += mem.Ty.Size * 8
	}

	if !ty.IsPacked {
		for _, mem := range ty.Members {
			if ty.Align < mem.Align {
				ty.Align = mem.Align
			}
		}
	}
	ty.Size = alignTo(bits, ty.Align*8) / 8
	return ty, tok
}

// unionDecl parses a union specifier; members all start at offset 0.
func (p *parser) unionDecl(tok *cpp.Token) (*Type, *cpp.Token) {
	ty, tok, ref := p.structUnionDecl(tok)
	ty.Kind = TyUnion
	if ref {
		return ty, tok
	}

	for _, mem := range ty.Members {
		if !ty.IsPacked && ty.Align < mem.Align {
			ty.Align = mem.Align
		}
		if ty.Size < mem.Ty.Size {
			ty.Size = mem.Ty.Size
		}
		mem.Offset = 0
	}
	ty.Size = alignTo(ty.Size, ty.Align)
	return ty, tok
}

// getStructMember resolves a member access, descending into anonymous
// members.
func (p *parser) getStructMember(ty *Type, tok *cpp.Token) *Member {
	name := tok.Text()
	for _, mem := range ty.Members {
		// Anonymous struct or union member: search inside.
		if (mem.Ty.Kind == TyStruct || mem.Ty.Kind == TyUnion) && mem.Name == nil {
			if p.getStructMember(mem.Ty, tok) != nil {
				return mem
			}
			continue
		}
		if mem.Name != nil && mem.Name.Equal(name) {
			return mem
		}
	}
	return nil
}

// structRef builds the member access node for expr.name, promoting
// anonymous members transparently.
func (p *parser) structRef(node *Node, tok *cpp.Token) *Node {
	p.addType(node)
	if node.Ty.Kind != TyStruct && node.Ty.Kind != TyUnion {
		if !node.Ty.IsError() {
			p.ds.ErrorTok(node.Tok, "not a struct nor a union")
		}
		return p.errorNode(tok)
	}

	ty := node.Ty
	for {
		mem := p.getStructMember(ty, tok)
		if mem == nil {
			p.ds.ErrorTok(tok, "no such member")
			return p.errorNode(tok)
		}
		node = NewUnary(NdMember, node, tok)
		node.Member = mem
		if mem.Name != nil {
			break
		}
		// Descend through the anonymous member.
		ty = mem.Ty
	}
	return node
}

// parseTypedef registers each declarator as a typedef in the current
// scope.
func (p *parser) parseTypedef(tok *cpp.Token, basety *Type) *cpp.Token {
	first := true
	for !tok.Equal(";") && tok.Kind != cpp.EOF {
		if !first {
			tok = p.skip(tok, ",")
		}
		first = false

		var ty *Type
		ty, tok = p.declarator(tok, basety)
		if ty.Name == nil {
			p.ds.ErrorTok(ty.NamePos, "typedef name omitted")
			continue
		}
		vs := p.pushScope(ty.Name, ty.Name.Text())
		vs.TypeDef = ty
	}
	return p.skip(tok, ";")
}

// isFunction looks ahead to decide whether a declarator declares a
// function.
func (p *parser) isFunction(tok *cpp.Token) bool {
	if tok.Equal(";") {
		return false
	}
	var dummy Type
	ty, _ := p.lookaheadDeclarator(tok, &dummy)
	return ty != nil && ty.Kind == TyFunc
}

// lookaheadDeclarator is declarator without diagnostics or side
// effects, used only for the function lookahead.
func (p *parser) lookaheadDeclarator(tok *cpp.Token, ty *Type) (*Type, *cpp.Token) {
	for tok.Equal("*") || tok.Equal("const") || tok.Equal("volatile") ||
		tok.Equal("restrict") || tok.Equal("__restrict") || tok.Equal("__restrict__") {
		if tok.Equal("*") {
			ty = PointerTo(ty)
		}
		tok = tok.Next
	}

	if tok.Equal("(") {
		inner := tok.Next
		var ignore Type
		_, tok = p.lookaheadDeclarator(inner, &ignore)
		if !tok.Equal(")") {
			return ty, tok
		}
		tok = tok.Next
		ty, tok = p.lookaheadSuffix(tok, ty)
		inner2, _ := p.lookaheadDeclarator(inner, ty)
		return inner2, tok
	}

	if tok.Kind == cpp.IDENT {
		tok = tok.Next
	}
	return p.lookaheadSuffix(tok, ty)
}

func (p *parser) lookaheadSuffix(tok *cpp.Token, ty *Type) (*Type, *cpp.Token) {
	if tok.Equal("(") {
		depth := 0
		for tok.Kind != cpp.EOF {
			if tok.Equal("(") {
				depth++
			} else if tok.Equal(")") {
				depth--
				if depth == 0 {
					tok = tok.Next
					break
				}
			}
			tok = tok.Next
		}
		return FuncType(ty), tok
	}
	if tok.Equal("[") {
		depth := 0
		for tok.Kind != cpp.EOF {
			if tok.Equal("[") {
				depth++
			} else if tok.Equal("]") {
				depth--
				if depth == 0 {
					tok = tok.Next
					break
				}
			}
			tok = tok.Next
		}
		return p.lookaheadSuffix(tok, ArrayOf(ty, -1))
	}
	return ty, tok
}

// function parses a function declaration or definition.
func (p *parser) function(tok *cpp.Token, basety *Type, attr *VarAttr) *cpp.Token {
	var ty *Type
	ty, tok = p.declarator(tok, basety)
	if ty.Name == nil {
		p.ds.ErrorTok(ty.NamePos, "function name omitted")
		return p.skipToSync(tok)
	}
	name := ty.Name.Text()

	fn := p.findFuncByName(name)
	if fn != nil {
		// Redeclaration.
		if !IsCompatible(fn.Ty, ty) {
			p.ds.ErrorTok(ty.Name, "conflicting types for '%s'", name)
		}
	} else {
		fn = &Obj{
			Name:       name,
			Ty:         ty,
			Tok:        ty.Name,
			IsFunction: true,
			IsStatic:   attr.IsStatic || (attr.IsInline && !attr.IsExtern),
			IsInline:   attr.IsInline,
			Align:      1,
		}
		p.globals = append(p.globals, fn)
		vs := p.pushScope(ty.Name, name)
		vs.Var = fn
	}
	fn.IsRoot = !(fn.IsStatic && fn.IsInline)

	if tok.Equal(";") {
		// Declaration only.
		return tok.Next
	}
	if tok.Equal(",") {
		// Remaining declarators on this line.
		return p.globalVariable(tok.Next, basety, attr)
	}

	if fn.IsDefinition {
		p.ds.ErrorTok(ty.Name, "redefinition of %s", name)
	}
	fn.IsDefinition = true
	// The definition's type is canonical; earlier declarations may
	// have been unprototyped.
	fn.Ty = ty
	fn.Tok = ty.Name

	p.currentFn = fn
	p.locals = nil
	p.gotos = nil
	p.labels = nil
	p.enterScope()

	for _, pty := range ty.Params {
		pname := ""
		if pty.Name != nil {
			pname = pty.Name.Text()
		}
		param := p.newLocalVar(pname, pty, pty.Name)
		fn.Params = append(fn.Params, param)
	}

	if ty.IsVariadic {
		fn.VaArea = p.newLocalVar("__va_area__", ArrayOf(TyCharType, 136), nil)
	}

	tok = p.skip(tok, "{")

	// [GNU] __func__ and __FUNCTION__ are defined as local static
	// arrays holding the function name.
	fnameTok := ty.Name
	fname := p.newStringLiteralText(name, fnameTok)
	vs := p.pushScope(nil, "__func__")
	vs.Var = fname
	vs2 := p.pushScope(nil, "__FUNCTION__")
	vs2.Var = fname

	var body *Node
	body, tok = p.compoundStmt(tok, ty.Name)
	fn.Body = body
	fn.Locals = p.locals
	p.leaveScope()
	p.resolveGotoLabels()
	p.currentFn = nil
	return tok
}

// newStringLiteralText hoists a literal string value (not a token) to
// an anonymous global.
func (p *parser) newStringLiteralText(s string, tok *cpp.Token) *Obj {
	data := append([]byte(s), 0)
	v := p.newAnonGlobalVar(ArrayOf(TyCharType, int64(len(data))))
	v.InitData = data
	v.Tok = tok
	return v
}

func (p *parser) findFuncByName(name string) *Obj {
	sc := p.scope
	for sc.Parent != nil {
		sc = sc.Parent
	}
	if vs, ok := sc.vars.Lookup(name); ok {
		v := vs.(*VarScope)
		if v.Var != nil && v.Var.IsFunction {
			return v.Var
		}
	}
	return nil
}

// globalVariable parses one global declaration line.
func (p *parser) globalVariable(tok *cpp.Token, basety *Type, attr *VarAttr) *cpp.Token {
	first := true
	for !tok.Equal(";") && tok.Kind != cpp.EOF {
		if !first {
			tok = p.skip(tok, ",")
		}
		first = false

		var ty *Type
		ty, tok = p.declarator(tok, basety)
		if ty.Name == nil {
			p.ds.ErrorTok(ty.NamePos, "variable name omitted")
			return p.skipToSync(tok)
		}

		if ty.Kind == TyFunc {
			// A function declarator on a multi-declarator line.
			fn := p.newVar(ty.Name.Text(), ty, ty.Name)
			fn.IsFunction = true
			fn.IsStatic = attr.IsStatic
			fn.IsInline = attr.IsInline
			fn.IsRoot = !(fn.IsStatic && fn.IsInline)
			p.globals = append(p.globals, fn)
			continue
		}

		v := p.newVar(ty.Name.Text(), ty, ty.Name)
		v.IsDefinition = !attr.IsExtern
		v.IsStatic = attr.IsStatic
		v.IsTLS = attr.IsTLS
		v.IsConstexpr = attr.IsConstexpr
		if attr.Align != 0 {
			v.Align = attr.Align
		}
		p.globals = append(p.globals, v)

		if tok.Equal("=") {
			tok = p.globalVarInitializer(tok.Next, v)
		} else if !attr.IsExtern && !attr.IsTLS {
			v.IsTentative = true
		}
	}
	return p.skip(tok, ";")
}

// skipToSync advances to the next ';' or '}' so one bad declaration
// does not cascade.
func (p *parser) skipToSync(tok *cpp.Token) *cpp.Token {
	for tok.Kind != cpp.EOF && !tok.Equal(";") && !tok.Equal("}") {
		tok = tok.Next
	}
	if tok.Kind != cpp.EOF {
		tok = tok.Next
	}
	return tok
}

// staticAssertion handles _Static_assert(expr, "message").
func (p *parser) staticAssertion(tok *cpp.Token) *cpp.Token {
	start := tok
	tok = p.skip(tok.Next, "(")
	var val int64
	val, tok = p.constExpr(tok)

	msg := ""
	if tok.Equal(",") {
		tok = tok.Next
		if tok.Kind != cpp.STR {
			p.ds.ErrorTok(tok, "expected string literal")
		} else {
			msg = string(tok.Str[:len(tok.Str)-1])
			tok = tok.Next
		}
	}
	tok = p.skip(tok, ")")
	tok = p.skip(tok, ";")

	if val == 0 {
		if msg != "" {
			p.ds.ErrorTok(start, "static assertion failed: %s", msg)
		} else {
			p.ds.ErrorTok(start, "static assertion failed")
		}
	}
	return tok
}

// markFunctionRoots runs the static inline liveness pass: a static
// inline function is live iff reachable from an externally visible
// root. Order is first-seen, so the result is deterministic.
func (p *parser) markFunctionRoots() {
	fns := map[string]*Obj{}
	for _, v := range p.globals {
		if v.IsFunction {
			fns[v.Name] = v
		}
	}
	var mark func(name string)
	mark = func(name string) {
		fn := fns[name]
		if fn == nil || fn.IsLive {
			return
		}
		fn.IsLive = true
		for _, ref := range fn.Refs {
			mark(ref)
		}
	}
	for _, v := range p.globals {
		if v.IsFunction && v.IsRoot {
			mark(v.Name)
		}
		for _, rel := range v.Rel {
			mark(rel.Label)
		}
	}
}
