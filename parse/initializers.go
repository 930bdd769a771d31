package parse

import (
	"encoding/binary"
	"math"

	"github.com/takeiteasy/cast/cpp"
)

// Initializers parse into a designator-indexed tree, then flatten into
// either init_data plus relocations (globals) or element-wise
// assignments wrapped in a memzero (locals).

type Initializer struct {
	Ty  *Type
	Tok *cpp.Token

	// An incomplete array grows to fit its initializer.
	IsFlexible bool

	// Leaf expression.
	Expr *Node

	// Aggregate children, one per element or member.
	Children []*Initializer

	// For a union: the member being initialized (default: the first).
	Mem *Member
}

// InitDesg is one step of the designator chain used when flattening a
// local initializer into assignments.
type InitDesg struct {
	next   *InitDesg
	idx    int64
	member *Member
	v      *Obj
}

func (p *parser) newInitializer(ty *Type, isFlexible bool) *Initializer {
	init := &Initializer{Ty: ty}

	switch ty.Kind {
	case TyArray:
		if isFlexible && ty.Size < 0 {
			init.IsFlexible = true
			return init
		}
		n := ty.ArrayLen
		if n < 0 {
			n = 0
		}
		init.Children = make([]*Initializer, n)
		for i := range init.Children {
			init.Children[i] = p.newInitializer(ty.Base, false)
		}
	case TyStruct, TyUnion:
		init.Children = make([]*Initializer, len(ty.Members))
		for i, mem := range ty.Members {
			if isFlexible && ty.IsFlexible && i == len(ty.Members)-1 {
				child := &Initializer{Ty: mem.Ty, IsFlexible: true}
				init.Children[i] = child
			} else {
				init.Children[i] = p.newInitializer(mem.Ty, false)
			}
		}
	}
	return init
}

// skipExcessElement consumes one excess initializer element.
func (p *parser) skipExcessElement(tok *cpp.Token) *cpp.Token {
	if tok.Equal("{") {
		tok = p.skipExcessElement(tok.Next)
		return p.skip(tok, "}")
	}
	_, tok = p.assign(tok)
	return tok
}

// stringInitializer initializes an array from a string literal,
// element by element.
func (p *parser) stringInitializer(tok *cpp.Token, init *Initializer) *cpp.Token {
	if init.IsFlexible {
		*init = *p.newInitializer(ArrayOf(init.Ty.Base, int64(tok.ArrayLen)), false)
	}

	n := int64(tok.ArrayLen)
	if init.Ty.ArrayLen < n {
		n = init.Ty.ArrayLen
	}
	size := tok.StrKind.ElemSize()
	for i := int64(0); i < n; i++ {
		var val int64
		off := int(i) * size
		switch size {
		case 1:
			val = int64(tok.Str[off])
		case 2:
			val = int64(binary.LittleEndian.Uint16(tok.Str[off:]))
		case 4:
			val = int64(binary.LittleEndian.Uint32(tok.Str[off:]))
		}
		init.Children[i].Expr = NewNum(val, tok)
	}
	return tok.Next
}

// arrayDesignator reads [expr] or the GNU range [a ... b].
func (p *parser) arrayDesignator(tok *cpp.Token, ty *Type) (rest *cpp.Token, begin, end int64) {
	begin, tok = p.constExpr(tok.Next)
	if ty.ArrayLen >= 0 && begin >= ty.ArrayLen {
		p.ds.ErrorTok(tok, "array designator index exceeds array bounds")
		begin = 0
	}

	if tok.Equal("...") {
		end, tok = p.constExpr(tok.Next)
		if ty.ArrayLen >= 0 && end >= ty.ArrayLen {
			p.ds.ErrorTok(tok, "array designator index exceeds array bounds")
			end = begin
		}
		if end < begin {
			p.ds.ErrorTok(tok, "array designator range [%d, %d] is empty", begin, end)
			end = begin
		}
	} else {
		end = begin
	}

	rest = p.skip(tok, "]")
	return rest, begin, end
}

// structDesignator reads .field and returns the designated member.
func (p *parser) structDesignator(tok *cpp.Token, ty *Type) (*cpp.Token, *Member) {
	start := tok
	tok = tok.Next // skip '.'
	if tok.Kind != cpp.IDENT {
		p.ds.ErrorTok(tok, "expected a field designator")
		return tok, nil
	}

	for _, mem := range ty.Members {
		// Anonymous members are searched transparently.
		if (mem.Ty.Kind == TyStruct || mem.Ty.Kind == TyUnion) && mem.Name == nil {
			if p.getStructMember(mem.Ty, tok) != nil {
				return start, mem
			}
			continue
		}
		if mem.Name != nil && mem.Name.Equal(tok.Text()) {
			return tok.Next, mem
		}
	}
	p.ds.ErrorTok(tok, "struct has no such member")
	return tok.Next, nil
}

// designation applies a designator prefix and its initializer.
func (p *parser) designation(tok *cpp.Token, init *Initializer) *cpp.Token {
	if tok.Equal("[") {
		if init.Ty.Kind != TyArray {
			p.ds.ErrorTok(tok, "array index in non-array initializer")
			return p.skipToSync(tok)
		}
		rest, begin, end := p.arrayDesignator(tok, init.Ty)
		after := rest
		for i := begin; i <= end && i < int64(len(init.Children)); i++ {
			after = p.designation(rest, init.Children[i])
		}
		return p.arrayInitializer2(after, init, end+1)
	}

	if tok.Equal(".") && init.Ty.Kind == TyStruct {
		// For an anonymous member structDesignator returns the '.'
		// itself so the designator re-runs inside the member.
		rest, mem := p.structDesignator(tok, init.Ty)
		if mem == nil {
			return p.skipToSync(rest)
		}
		tok = p.designation(rest, init.Children[mem.Idx])
		return p.structInitializer2(tok, init, mem.Idx+1, true)
	}

	if tok.Equal(".") && init.Ty.Kind == TyUnion {
		rest, mem := p.structDesignator(tok, init.Ty)
		if mem == nil {
			return p.skipToSync(rest)
		}
		init.Mem = mem
		return p.designation(rest, init.Children[mem.Idx])
	}

	if tok.Equal(".") {
		p.ds.ErrorTok(tok, "field name not in struct or union initializer")
		return p.skipToSync(tok)
	}

	tok, _ = consume(tok, "=")
	return p.initializer2(tok, init)
}

// countArrayInitElements pre-scans a braced list to size an incomplete
// array. The scan parses into a dummy so it can share designation.
func (p *parser) countArrayInitElements(tok *cpp.Token, ty *Type) int64 {
	first := true
	dummy := p.newInitializer(ty.Base, true)

	i, max := int64(0), int64(0)
	for !p.isListEnd(tok) && tok.Kind != cpp.EOF {
		if !first {
			tok = p.skip(tok, ",")
		}
		first = false
		if p.isListEnd(tok) {
			break
		}

		if tok.Equal("[") {
			var end int64
			tok, i, end = p.arrayDesignator(tok, ty)
			i = end
			tok = p.designation(tok, dummy)
		} else {
			tok = p.initializer2(tok, dummy)
		}
		i++
		if i > max {
			max = i
		}
	}
	return max
}

// arrayInitializer1 parses a braced array initializer.
func (p *parser) arrayInitializer1(tok *cpp.Token, init *Initializer) *cpp.Token {
	tok = p.skip(tok, "{")

	if init.IsFlexible {
		n := p.countArrayInitElements(tok, init.Ty)
		*init = *p.newInitializer(ArrayOf(init.Ty.Base, n), false)
	}

	first := true
	var i int64
	for !p.isListEnd(tok) && tok.Kind != cpp.EOF {
		if !first {
			tok = p.skip(tok, ",")
		}
		first = false
		if p.isListEnd(tok) {
			break
		}

		if tok.Equal("[") {
			var begin, end int64
			tok, begin, end = p.arrayDesignator(tok, init.Ty)
			after := tok
			for j := begin; j <= end && j < int64(len(init.Children)); j++ {
				after = p.designation(tok, init.Children[j])
			}
			tok = after
			i = end + 1
			continue
		}

		if i < int64(len(init.Children)) {
			tok = p.initializer2(tok, init.Children[i])
		} else {
			tok = p.skipExcessElement(tok)
		}
		i++
	}
	return p.skipListEnd(tok)
}

// arrayInitializer2 parses an unbraced array initializer starting at
// element i.
func (p *parser) arrayInitializer2(tok *cpp.Token, init *Initializer, i int64) *cpp.Token {
	if init.IsFlexible {
		n := p.countArrayInitElements(tok, init.Ty)
		*init = *p.newInitializer(ArrayOf(init.Ty.Base, n), false)
	}

	for ; i < int64(len(init.Children)) && !p.isListEnd(tok) && tok.Kind != cpp.EOF; i++ {
		start := tok
		if i > 0 {
			tok = p.skip(tok, ",")
		}
		if tok.Equal("[") || tok.Equal(".") {
			return start
		}
		tok = p.initializer2(tok, init.Children[i])
	}
	return tok
}

// structInitializer1 parses a braced struct initializer.
func (p *parser) structInitializer1(tok *cpp.Token, init *Initializer) *cpp.Token {
	tok = p.skip(tok, "{")

	memIdx := 0
	first := true
	for !p.isListEnd(tok) && tok.Kind != cpp.EOF {
		if !first {
			tok = p.skip(tok, ",")
		}
		first = false
		if p.isListEnd(tok) {
			break
		}

		if tok.Equal("[") {
			p.ds.ErrorTok(tok, "array index in non-array initializer")
			tok = p.skipToSync(tok)
			break
		}
		if tok.Equal(".") {
			var mem *Member
			tok, mem = p.structDesignator(tok, init.Ty)
			if mem == nil {
				break
			}
			tok, _ = consume(tok, "=")
			tok = p.initializer2(tok, init.Children[mem.Idx])
			memIdx = mem.Idx + 1
			continue
		}

		if memIdx < len(init.Children) {
			tok = p.initializer2(tok, init.Children[memIdx])
		} else {
			tok = p.skipExcessElement(tok)
		}
		memIdx++
	}
	return p.skipListEnd(tok)
}

// structInitializer2 parses an unbraced struct initializer starting at
// member i.
func (p *parser) structInitializer2(tok *cpp.Token, init *Initializer, i int, postDesig bool) *cpp.Token {
	first := !postDesig
	for ; i < len(init.Children) && !p.isListEnd(tok) && tok.Kind != cpp.EOF; i++ {
		start := tok
		if !first {
			tok = p.skip(tok, ",")
		}
		first = false
		if tok.Equal("[") || tok.Equal(".") {
			return start
		}
		tok = p.initializer2(tok, init.Children[i])
	}
	return tok
}

// unionInitializer parses a union initializer; only one member is
// initialized.
func (p *parser) unionInitializer(tok *cpp.Token, init *Initializer) *cpp.Token {
	if len(init.Children) == 0 {
		if tok.Equal("{") {
			tok = p.skipListEnd(tok.Next)
		}
		return tok
	}

	if tok.Equal("{") && tok.Next.Equal(".") {
		tok2, mem := p.structDesignator(tok.Next, init.Ty)
		if mem == nil {
			return p.skipToSync(tok)
		}
		init.Mem = mem
		tok2, _ = consume(tok2, "=")
		tok2 = p.initializer2(tok2, init.Children[mem.Idx])
		return p.skipListEnd(tok2)
	}

	init.Mem = init.Ty.Members[0]
	if tok.Equal("{") {
		tok = p.initializer2(tok.Next, init.Children[0])
		tok, _ = consume(tok, ",")
		return p.skipListEnd(tok)
	}
	return p.initializer2(tok, init.Children[0])
}

// initializer2 dispatches on the initialized type.
func (p *parser) initializer2(tok *cpp.Token, init *Initializer) *cpp.Token {
	if init.Ty.Kind == TyArray && tok.Kind == cpp.STR {
		return p.stringInitializer(tok, init)
	}
	if init.Ty.Kind == TyArray && tok.Equal("{") && tok.Next.Kind == cpp.STR && tok.Next.Next.Equal("}") {
		tok = p.stringInitializer(tok.Next, init)
		return p.skip(tok, "}")
	}

	if init.Ty.Kind == TyArray {
		if tok.Equal("{") {
			return p.arrayInitializer1(tok, init)
		}
		return p.arrayInitializer2(tok, init, 0)
	}

	if init.Ty.Kind == TyStruct {
		if tok.Equal("{") {
			return p.structInitializer1(tok, init)
		}
		// A struct can be initialized from another struct value.
		expr, rest := p.assign(tok)
		p.addType(expr)
		if expr.Ty.Kind == TyStruct {
			init.Expr = expr
			return rest
		}
		return p.structInitializer2(tok, init, 0, false)
	}

	if init.Ty.Kind == TyUnion {
		return p.unionInitializer(tok, init)
	}

	if tok.Equal("{") {
		// A scalar surrounded by braces.
		tok = p.initializer2(tok.Next, init)
		return p.skip(tok, "}")
	}

	expr, rest := p.assign(tok)
	p.addType(expr)
	init.Expr = expr
	return rest
}

// initializer parses an initializer for ty, returning the possibly
// resized type (incomplete arrays and flexible members grow to fit).
func (p *parser) initializer(tok *cpp.Token, ty *Type) (*Initializer, *Type, *cpp.Token) {
	init := p.newInitializer(ty, true)
	tok = p.initializer2(tok, init)

	if (ty.Kind == TyStruct || ty.Kind == TyUnion) && ty.IsFlexible {
		resized := ty.Copy()
		n := len(resized.Members)
		last := *resized.Members[n-1]
		last.Ty = init.Children[n-1].Ty
		resized.Members[n-1] = &last
		resized.Size += last.Ty.Size
		return init, resized, tok
	}

	return init, init.Ty, tok
}

func (p *parser) initDesgExpr(desg *InitDesg, tok *cpp.Token) *Node {
	if desg.v != nil {
		return NewVarNode(desg.v, tok)
	}
	if desg.member != nil {
		node := NewUnary(NdMember, p.initDesgExpr(desg.next, tok), tok)
		node.Member = desg.member
		return node
	}
	lhs := p.initDesgExpr(desg.next, tok)
	rhs := NewNum(desg.idx, tok)
	return NewUnary(NdDeref, p.newAdd(lhs, rhs, tok), tok)
}

// createLocalVarInit flattens the initializer tree into element-wise
// assignments.
func (p *parser) createLocalVarInit(init *Initializer, ty *Type, desg *InitDesg, tok *cpp.Token) *Node {
	switch ty.Kind {
	case TyArray:
		node := NewNode(NdNullExpr, tok)
		for i := int64(0); i < int64(len(init.Children)); i++ {
			d := &InitDesg{next: desg, idx: i}
			rhs := p.createLocalVarInit(init.Children[i], ty.Base, d, tok)
			node = NewBinary(NdComma, node, rhs, tok)
		}
		return node
	case TyStruct:
		if init.Expr == nil {
			node := NewNode(NdNullExpr, tok)
			for i, mem := range ty.Members {
				if i >= len(init.Children) {
					break
				}
				d := &InitDesg{next: desg, member: mem}
				rhs := p.createLocalVarInit(init.Children[i], mem.Ty, d, tok)
				node = NewBinary(NdComma, node, rhs, tok)
			}
			return node
		}
	case TyUnion:
		mem := init.Mem
		if mem == nil {
			if len(ty.Members) == 0 {
				return NewNode(NdNullExpr, tok)
			}
			mem = ty.Members[0]
		}
		d := &InitDesg{next: desg, member: mem}
		return p.createLocalVarInit(init.Children[mem.Idx], mem.Ty, d, tok)
	}

	if init.Expr == nil {
		return NewNode(NdNullExpr, tok)
	}
	lhs := p.initDesgExpr(desg, tok)
	return NewBinary(NdAssign, lhs, init.Expr, tok)
}

// localVarInitializer builds the initialization statement for a local:
// the uncovered bytes are zeroed first, then each initialized element
// is assigned in order.
func (p *parser) localVarInitializer(tok *cpp.Token, v *Obj) (*Node, *cpp.Token) {
	init, ty, rest := p.initializer(tok, v.Ty)
	v.Ty = ty

	desg := &InitDesg{v: v}
	lhs := NewNode(NdMemZero, tok)
	lhs.Var = v
	lhs.Ty = TyVoidType

	rhs := p.createLocalVarInit(init, v.Ty, desg, tok)
	node := NewBinary(NdComma, lhs, rhs, tok)
	return node, rest
}

func readBuf(buf []byte, offset, size int64) uint64 {
	switch size {
	case 1:
		return uint64(buf[offset])
	case 2:
		return uint64(binary.LittleEndian.Uint16(buf[offset:]))
	case 4:
		return uint64(binary.LittleEndian.Uint32(buf[offset:]))
	}
	return binary.LittleEndian.Uint64(buf[offset:])
}

func writeBuf(buf []byte, offset int64, val uint64, size int64) {
	switch size {
	case 1:
		buf[offset] = byte(val)
	case 2:
		binary.LittleEndian.PutUint16(buf[offset:], uint16(val))
	case 4:
		binary.LittleEndian.PutUint32(buf[offset:], uint32(val))
	default:
		binary.LittleEndian.PutUint64(buf[offset:], val)
	}
}

// writeGlobalVarData serializes the initializer tree into the byte
// image of a global, emitting relocations for pointer slots that name
// other globals.
func (p *parser) writeGlobalVarData(init *Initializer, ty *Type, buf []byte, offset int64, rels []*Relocation) []*Relocation {
	switch ty.Kind {
	case TyArray:
		sz := ty.Base.Size
		for i := int64(0); i < int64(len(init.Children)); i++ {
			rels = p.writeGlobalVarData(init.Children[i], ty.Base, buf, offset+sz*i, rels)
		}
		return rels
	case TyStruct:
		for i, mem := range ty.Members {
			if i >= len(init.Children) {
				break
			}
			child := init.Children[i]
			if mem.IsBitfield {
				if child.Expr == nil {
					continue
				}
				loc := offset + mem.Offset
				oldVal := readBuf(buf, loc, mem.Ty.Size)
				newVal := uint64(p.eval(child.Expr))
				mask := (uint64(1) << mem.BitWidth) - 1
				combined := oldVal | ((newVal & mask) << mem.BitOffset)
				writeBuf(buf, loc, combined, mem.Ty.Size)
				continue
			}
			rels = p.writeGlobalVarData(child, mem.Ty, buf, offset+mem.Offset, rels)
		}
		return rels
	case TyUnion:
		mem := init.Mem
		if mem == nil {
			if len(ty.Members) == 0 {
				return rels
			}
			mem = ty.Members[0]
		}
		return p.writeGlobalVarData(init.Children[mem.Idx], mem.Ty, buf, offset, rels)
	}

	if init.Expr == nil {
		return rels
	}

	switch ty.Kind {
	case TyFloat:
		writeBuf(buf, offset, uint64(math.Float32bits(float32(p.evalDouble(init.Expr)))), 4)
		return rels
	case TyDouble, TyLDouble:
		writeBuf(buf, offset, math.Float64bits(p.evalDouble(init.Expr)), 8)
		return rels
	}

	var label *string
	val := p.eval2(init.Expr, &label)
	if label == nil {
		writeBuf(buf, offset, uint64(val), ty.Size)
		return rels
	}
	return append(rels, &Relocation{Offset: offset, Label: *label, Addend: val})
}

// globalVarInitializer parses and serializes a global initializer.
func (p *parser) globalVarInitializer(tok *cpp.Token, v *Obj) *cpp.Token {
	init, ty, rest := p.initializer(tok, v.Ty)
	v.Ty = ty
	v.IsTentative = false

	size := ty.Size
	if size < 0 {
		p.ds.ErrorTok(v.Tok, "variable has incomplete type")
		return rest
	}
	buf := make([]byte, size)
	v.Rel = p.writeGlobalVarData(init, ty, buf, 0, nil)
	v.InitData = buf
	return rest
}
