package cast

import (
	"fmt"
	"io"
	"strings"

	"github.com/takeiteasy/cast/cpp"
	"github.com/takeiteasy/cast/parse"
)

// PrintTokens writes one line per token: kind, spelling and position.
func PrintTokens(w io.Writer, tok *cpp.Token) {
	for t := tok; t != nil; t = t.Next {
		fmt.Fprintf(w, "%s:%s:%d:%d\n", t.Kind, t.Text(), t.LineNo+t.LineDelta, t.ColNo)
		if t.Kind == cpp.EOF {
			break
		}
	}
}

// OutputPreprocessed re-emits tokens as source with whitespace
// minimally restored: a newline when the next token began a line, one
// space when it followed whitespace, else concatenated.
func OutputPreprocessed(w io.Writer, tok *cpp.Token) {
	first := true
	for t := tok; t != nil && t.Kind != cpp.EOF; t = t.Next {
		if t.AtBOL && !first {
			io.WriteString(w, "\n")
		} else if t.HasSpace && !first {
			io.WriteString(w, " ")
		}
		io.WriteString(w, t.Text())
		first = false
	}
	io.WriteString(w, "\n")
}

// typeString renders a type in a compact C-like notation.
func typeString(ty *parse.Type) string {
	if ty == nil {
		return "?"
	}
	qual := ""
	if ty.IsConst {
		qual += "const "
	}
	if ty.IsVolatile {
		qual += "volatile "
	}
	if ty.IsAtomic {
		qual += "_Atomic "
	}

	switch ty.Kind {
	case parse.TyPtr:
		return qual + "*" + typeString(ty.Base)
	case parse.TyArray:
		if ty.ArrayLen < 0 {
			return qual + fmt.Sprintf("[]%s", typeString(ty.Base))
		}
		return qual + fmt.Sprintf("[%d]%s", ty.ArrayLen, typeString(ty.Base))
	case parse.TyVLA:
		return qual + "[*]" + typeString(ty.Base)
	case parse.TyFunc:
		var params []string
		for _, p := range ty.Params {
			params = append(params, typeString(p))
		}
		if ty.IsVariadic {
			params = append(params, "...")
		}
		return qual + fmt.Sprintf("func(%s) %s", strings.Join(params, ", "), typeString(ty.ReturnTy))
	case parse.TyStruct, parse.TyUnion, parse.TyEnum:
		// Declarator copies carry the declared name; the tag is on the
		// type they were copied from.
		tagTy := ty
		for tagTy.Origin != nil {
			tagTy = tagTy.Origin
		}
		name := "<anonymous>"
		if tagTy.Name != nil {
			name = tagTy.Name.Text()
		}
		return qual + ty.Kind.String() + " " + name
	case parse.TyBlock:
		return qual + "^" + typeString(ty.Base)
	}
	base := ty.Kind.String()
	if ty.IsUnsigned && ty.IsInteger() && ty.Kind != parse.TyBool {
		base = "unsigned " + base
	}
	return qual + base
}

var nodeKindNames = map[parse.NodeKind]string{
	parse.NdNullExpr: "nop",
	parse.NdAdd:      "+",
	parse.NdSub:      "-",
	parse.NdMul:      "*",
	parse.NdDiv:      "/",
	parse.NdMod:      "%",
	parse.NdNeg:      "neg",
	parse.NdBitAnd:   "&",
	parse.NdBitOr:    "|",
	parse.NdBitXor:   "^",
	parse.NdShl:      "<<",
	parse.NdShr:      ">>",
	parse.NdEq:       "==",
	parse.NdNe:       "!=",
	parse.NdLt:       "<",
	parse.NdLe:       "<=",
	parse.NdAssign:   "=",
	parse.NdCond:     "?:",
	parse.NdComma:    ",",
	parse.NdMember:   "member",
	parse.NdAddr:     "addr",
	parse.NdDeref:    "deref",
	parse.NdNot:      "!",
	parse.NdBitNot:   "~",
	parse.NdLogAnd:   "&&",
	parse.NdLogOr:    "||",
	parse.NdReturn:   "return",
	parse.NdIf:       "if",
	parse.NdFor:      "for",
	parse.NdDo:       "do",
	parse.NdSwitch:   "switch",
	parse.NdCase:     "case",
	parse.NdBlock:    "block",
	parse.NdGoto:     "goto",
	parse.NdGotoExpr: "goto*",
	parse.NdLabel:    "label",
	parse.NdLabelVal: "&&label",
	parse.NdFuncall:  "call",
	parse.NdStmtExpr: "stmt-expr",
	parse.NdVar:      "var",
	parse.NdVLAPtr:   "vla-ptr",
	parse.NdNum:      "num",
	parse.NdCast:     "cast",
	parse.NdMemZero:  "memzero",
	parse.NdAsm:      "asm",
	parse.NdCas:      "cas",
	parse.NdExch:     "exch",
	parse.NdExprStmt: "expr-stmt",
}

func printNode(w io.Writer, node *parse.Node, indent int) {
	if node == nil {
		return
	}
	pad := strings.Repeat("  ", indent)
	name := nodeKindNames[node.Kind]

	switch node.Kind {
	case parse.NdNum:
		if node.Ty != nil && node.Ty.IsFlonum() {
			fmt.Fprintf(w, "%s(num %g :type %s)\n", pad, node.FVal, typeString(node.Ty))
		} else {
			fmt.Fprintf(w, "%s(num %d :type %s)\n", pad, node.Val, typeString(node.Ty))
		}
		return
	case parse.NdVar:
		fmt.Fprintf(w, "%s(var %s :type %s)\n", pad, node.Var.Name, typeString(node.Ty))
		return
	case parse.NdMember:
		memName := "<anonymous>"
		if node.Member != nil && node.Member.Name != nil {
			memName = node.Member.Name.Text()
		}
		fmt.Fprintf(w, "%s(member %s :type %s\n", pad, memName, typeString(node.Ty))
		printNode(w, node.Lhs, indent+1)
		fmt.Fprintf(w, "%s)\n", pad)
		return
	case parse.NdGoto:
		fmt.Fprintf(w, "%s(goto %s)\n", pad, node.Label)
		return
	case parse.NdLabel:
		fmt.Fprintf(w, "%s(label %s\n", pad, node.Label)
		printNode(w, node.Lhs, indent+1)
		fmt.Fprintf(w, "%s)\n", pad)
		return
	case parse.NdAsm:
		fmt.Fprintf(w, "%s(asm %q)\n", pad, node.AsmStr)
		return
	}

	fmt.Fprintf(w, "%s(%s :type %s\n", pad, name, typeString(node.Ty))
	printNode(w, node.Lhs, indent+1)
	printNode(w, node.Rhs, indent+1)
	printNode(w, node.Cond, indent+1)
	printNode(w, node.Then, indent+1)
	printNode(w, node.Els, indent+1)
	printNode(w, node.Init, indent+1)
	printNode(w, node.Inc, indent+1)
	for _, n := range node.Body {
		printNode(w, n, indent+1)
	}
	for _, n := range node.Args {
		printNode(w, n, indent+1)
	}
	fmt.Fprintf(w, "%s)\n", pad)
}

// PrintAST writes the program as S-expressions, one top-level form per
// declaration.
func PrintAST(w io.Writer, prog []*parse.Obj) {
	for _, v := range prog {
		if v.IsFunction {
			fmt.Fprintf(w, "(function %s :type %s", v.Name, typeString(v.Ty))
			if v.IsStatic {
				fmt.Fprintf(w, " :static")
			}
			if v.IsInline {
				fmt.Fprintf(w, " :inline")
			}
			if !v.IsDefinition {
				fmt.Fprintf(w, " :declaration")
			}
			fmt.Fprintf(w, "\n")
			for _, param := range v.Params {
				fmt.Fprintf(w, "  (param %s :type %s)\n", param.Name, typeString(param.Ty))
			}
			printNode(w, v.Body, 1)
			fmt.Fprintf(w, ")\n")
			continue
		}

		fmt.Fprintf(w, "(variable %s :type %s", v.Name, typeString(v.Ty))
		if v.IsStatic {
			fmt.Fprintf(w, " :static")
		}
		if v.IsTLS {
			fmt.Fprintf(w, " :tls")
		}
		if len(v.InitData) > 0 {
			fmt.Fprintf(w, " :init %d-bytes", len(v.InitData))
		}
		for _, rel := range v.Rel {
			fmt.Fprintf(w, " (reloc :offset %d :label %s :addend %d)", rel.Offset, rel.Label, rel.Addend)
		}
		fmt.Fprintf(w, ")\n")
	}
}
