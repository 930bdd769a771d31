package parse

import (
	"github.com/takeiteasy/cast/cpp"
	"github.com/takeiteasy/cast/internal/constarith"
)

// Parse-time constant evaluation, used for array sizes, enum values,
// _Static_assert, bitfield widths, case labels and global
// initializers. Arithmetic delegates to the constarith core shared
// with the preprocessor's #if evaluator; unsigned arithmetic wraps and
// signed overflow in a constant expression is an error.

// constExpr parses a conditional expression and folds it to an
// integer.
func (p *parser) constExpr(tok *cpp.Token) (int64, *cpp.Token) {
	node, rest := p.conditional(tok)
	p.addType(node)
	return p.eval(node), rest
}

func (p *parser) eval(node *Node) int64 {
	return p.eval2(node, nil)
}

func (p *parser) evalError(tok *cpp.Token, format string, args ...any) int64 {
	p.ds.ErrorTok(tok, format, args...)
	return 0
}

func addOverflows(a, b int64) bool {
	s := a + b
	return (a > 0 && b > 0 && s < 0) || (a < 0 && b < 0 && s >= 0)
}

func mulOverflows(a, b int64) bool {
	if a == 0 || b == 0 {
		return false
	}
	s := a * b
	return s/b != a
}

// eval2 evaluates node as a constant expression. A constant expression
// is either a number or a pointer to a global plus an addend; the
// latter form is usable only in global initializers, which pass a
// label out-parameter.
func (p *parser) eval2(node *Node, label **string) int64 {
	if node.Ty == nil {
		p.addType(node)
	}
	if node.Ty.IsError() {
		return 0
	}
	if node.Ty.IsFlonum() {
		return int64(p.evalDouble(node))
	}

	binary := func(op string) int64 {
		l := p.eval2(node.Lhs, label)
		r := p.eval(node.Rhs)
		// Comparisons have int type; the operands carry the
		// signedness that matters.
		uns := node.Lhs.Ty.IsUnsigned
		if !uns {
			switch op {
			case "+":
				if addOverflows(l, r) {
					return p.evalError(node.Tok, "signed integer overflow in constant expression")
				}
			case "-":
				if addOverflows(l, -r) && r != -r {
					return p.evalError(node.Tok, "signed integer overflow in constant expression")
				}
			case "*":
				if mulOverflows(l, r) {
					return p.evalError(node.Tok, "signed integer overflow in constant expression")
				}
			}
		}
		v, err := constarith.Binary(op, l, r, uns)
		if err != nil {
			return p.evalError(node.Tok, "%s in constant expression", err)
		}
		return v
	}

	switch node.Kind {
	case NdAdd:
		return binary("+")
	case NdSub:
		return binary("-")
	case NdMul:
		return binary("*")
	case NdDiv:
		return binary("/")
	case NdMod:
		return binary("%")
	case NdBitAnd:
		return binary("&")
	case NdBitOr:
		return binary("|")
	case NdBitXor:
		return binary("^")
	case NdShl:
		return binary("<<")
	case NdShr:
		return binary(">>")
	case NdEq:
		return binary("==")
	case NdNe:
		return binary("!=")
	case NdLt:
		return binary("<")
	case NdLe:
		return binary("<=")
	case NdLogAnd:
		if p.eval(node.Lhs) == 0 {
			return 0
		}
		return boolToInt(p.eval(node.Rhs) != 0)
	case NdLogOr:
		if p.eval(node.Lhs) != 0 {
			return 1
		}
		return boolToInt(p.eval(node.Rhs) != 0)
	case NdNeg:
		v, _ := constarith.Unary("-", p.eval(node.Lhs))
		return v
	case NdNot:
		v, _ := constarith.Unary("!", p.eval(node.Lhs))
		return v
	case NdBitNot:
		v, _ := constarith.Unary("~", p.eval(node.Lhs))
		return v
	case NdCond:
		if p.eval(node.Cond) != 0 {
			return p.eval2(node.Then, label)
		}
		return p.eval2(node.Els, label)
	case NdComma:
		return p.eval2(node.Rhs, label)
	case NdCast:
		val := p.eval2(node.Lhs, label)
		if !node.Ty.IsInteger() || node.Ty.Size == 8 {
			return val
		}
		switch node.Ty.Size {
		case 1:
			if node.Ty.IsUnsigned {
				return int64(uint8(val))
			}
			return int64(int8(val))
		case 2:
			if node.Ty.IsUnsigned {
				return int64(uint16(val))
			}
			return int64(int16(val))
		case 4:
			if node.Ty.IsUnsigned {
				return int64(uint32(val))
			}
			return int64(int32(val))
		}
		return val
	case NdAddr:
		return p.evalRVal(node.Lhs, label)
	case NdLabelVal:
		if label == nil {
			return p.evalError(node.Tok, "not a compile-time constant")
		}
		*label = &node.UniqueLabel
		return 0
	case NdMember:
		if label == nil {
			return p.evalError(node.Tok, "not a compile-time constant")
		}
		if node.Ty.Kind != TyArray && node.Ty.Kind != TyFunc {
			return p.evalError(node.Tok, "invalid initializer")
		}
		return p.evalRVal(node.Lhs, label) + node.Member.Offset
	case NdVar:
		if label == nil {
			return p.evalError(node.Tok, "not a compile-time constant")
		}
		if node.Var.Ty.Kind != TyArray && node.Var.Ty.Kind != TyFunc {
			return p.evalError(node.Tok, "invalid initializer")
		}
		*label = &node.Var.Name
		return 0
	case NdNum:
		return node.Val
	}

	return p.evalError(node.Tok, "not a compile-time constant")
}

// evalRVal resolves the address of a global-object lvalue to a label
// plus offset.
func (p *parser) evalRVal(node *Node, label **string) int64 {
	switch node.Kind {
	case NdVar:
		if node.Var.IsLocal {
			return p.evalError(node.Tok, "not a compile-time constant")
		}
		if label == nil {
			return p.evalError(node.Tok, "not a compile-time constant")
		}
		*label = &node.Var.Name
		return 0
	case NdDeref:
		return p.eval2(node.Lhs, label)
	case NdMember:
		return p.evalRVal(node.Lhs, label) + node.Member.Offset
	}
	return p.evalError(node.Tok, "invalid initializer")
}

// evalDouble evaluates a floating constant expression in float64
// (double) precision; long double operands are folded at that same
// precision.
func (p *parser) evalDouble(node *Node) float64 {
	if node.Ty == nil {
		p.addType(node)
	}
	if node.Ty.IsInteger() {
		if node.Ty.IsUnsigned {
			return float64(uint64(p.eval(node)))
		}
		return float64(p.eval(node))
	}

	switch node.Kind {
	case NdAdd:
		return p.evalDouble(node.Lhs) + p.evalDouble(node.Rhs)
	case NdSub:
		return p.evalDouble(node.Lhs) - p.evalDouble(node.Rhs)
	case NdMul:
		return p.evalDouble(node.Lhs) * p.evalDouble(node.Rhs)
	case NdDiv:
		r := p.evalDouble(node.Rhs)
		return p.evalDouble(node.Lhs) / r
	case NdNeg:
		return -p.evalDouble(node.Lhs)
	case NdCond:
		if p.evalDouble(node.Cond) != 0 {
			return p.evalDouble(node.Then)
		}
		return p.evalDouble(node.Els)
	case NdComma:
		return p.evalDouble(node.Rhs)
	case NdCast:
		if node.Lhs.Ty.IsFlonum() {
			return p.evalDouble(node.Lhs)
		}
		return float64(p.eval(node.Lhs))
	case NdNum:
		return node.FVal
	}

	p.ds.ErrorTok(node.Tok, "not a compile-time constant")
	return 0
}

// isConstExpr reports whether node folds to an integer constant
// without diagnostics, returning the value when it does.
func (p *parser) isConstExpr(node *Node) (int64, bool) {
	if node.Ty == nil {
		p.addType(node)
	}
	switch node.Kind {
	case NdAdd, NdSub, NdMul, NdDiv, NdMod, NdBitAnd, NdBitOr, NdBitXor,
		NdShl, NdShr, NdEq, NdNe, NdLt, NdLe, NdLogAnd, NdLogOr, NdComma:
		l, ok1 := p.isConstExpr(node.Lhs)
		r, ok2 := p.isConstExpr(node.Rhs)
		if !ok1 || !ok2 {
			return 0, false
		}
		op := map[NodeKind]string{
			NdAdd: "+", NdSub: "-", NdMul: "*", NdDiv: "/", NdMod: "%",
			NdBitAnd: "&", NdBitOr: "|", NdBitXor: "^", NdShl: "<<", NdShr: ">>",
			NdEq: "==", NdNe: "!=", NdLt: "<", NdLe: "<=", NdLogAnd: "&&",
			NdLogOr: "||", NdComma: ",",
		}[node.Kind]
		v, err := constarith.Binary(op, l, r, node.Ty.IsUnsigned)
		if err != nil {
			return 0, false
		}
		return v, true
	case NdCond:
		c, ok := p.isConstExpr(node.Cond)
		if !ok {
			return 0, false
		}
		if c != 0 {
			return p.isConstExpr(node.Then)
		}
		return p.isConstExpr(node.Els)
	case NdNeg, NdNot, NdBitNot:
		v, ok := p.isConstExpr(node.Lhs)
		if !ok {
			return 0, false
		}
		op := map[NodeKind]string{NdNeg: "-", NdNot: "!", NdBitNot: "~"}[node.Kind]
		r, err := constarith.Unary(op, v)
		if err != nil {
			return 0, false
		}
		return r, true
	case NdCast:
		if !node.Ty.IsInteger() {
			return 0, false
		}
		v, ok := p.isConstExpr(node.Lhs)
		if !ok {
			return 0, false
		}
		return v, true
	case NdNum:
		if node.Ty != nil && node.Ty.IsFlonum() {
			return 0, false
		}
		return node.Val, true
	}
	return 0, false
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
