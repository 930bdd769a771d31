package cast

import (
	"encoding/json"
	"io"

	"github.com/takeiteasy/cast/parse"
)

// JSON declaration dump. The primary consumer is FFI binding
// generation, so every function and variable entry records its name,
// fully serialized type (qualifiers, array lengths, parameter lists),
// storage class and source position. Struct, union and enum entries
// record only the tag name and type (plus enumerators for enums); they
// carry no storage class and no source position.

type jsonType struct {
	Kind     string      `json:"kind"`
	Size     int64       `json:"size"`
	Align    int64       `json:"align"`
	Unsigned bool        `json:"unsigned,omitempty"`
	Const    bool        `json:"const,omitempty"`
	Volatile bool        `json:"volatile,omitempty"`
	Atomic   bool        `json:"atomic,omitempty"`
	Tag      string      `json:"tag,omitempty"`
	Base     *jsonType   `json:"base,omitempty"`
	ArrayLen *int64      `json:"array_len,omitempty"`
	Return   *jsonType   `json:"return,omitempty"`
	Params   []*jsonType `json:"params,omitempty"`
	Variadic bool        `json:"variadic,omitempty"`
	Members  []jsonMem   `json:"members,omitempty"`
}

type jsonMem struct {
	Name     string    `json:"name"`
	Type     *jsonType `json:"type"`
	Offset   int64     `json:"offset"`
	BitWidth *int64    `json:"bit_width,omitempty"`
}

type jsonDecl struct {
	Name    string     `json:"name"`
	Type    *jsonType  `json:"type"`
	Storage string     `json:"storage,omitempty"`
	File    string     `json:"file,omitempty"`
	Line    int        `json:"line,omitempty"`
	Enums   []jsonEnum `json:"enumerators,omitempty"`
}

type jsonEnum struct {
	Name  string `json:"name"`
	Value int64  `json:"value"`
}

type jsonDump struct {
	Functions []jsonDecl `json:"functions"`
	Variables []jsonDecl `json:"variables"`
	Structs   []jsonDecl `json:"structs"`
	Unions    []jsonDecl `json:"unions"`
	Enums     []jsonDecl `json:"enums"`
}

// serializeType converts a parse.Type recursively. seen breaks cycles
// through self-referential aggregates.
func serializeType(ty *parse.Type, seen map[*parse.Type]bool, deep bool) *jsonType {
	if ty == nil {
		return nil
	}
	out := &jsonType{
		Kind:     ty.Kind.String(),
		Size:     ty.Size,
		Align:    ty.Align,
		Unsigned: ty.IsUnsigned,
		Const:    ty.IsConst,
		Volatile: ty.IsVolatile,
		Atomic:   ty.IsAtomic,
	}
	if ty.Name != nil {
		out.Tag = ty.Name.Text()
	}

	switch ty.Kind {
	case parse.TyPtr, parse.TyVLA, parse.TyBlock:
		out.Base = serializeType(ty.Base, seen, false)
	case parse.TyArray:
		out.Base = serializeType(ty.Base, seen, false)
		n := ty.ArrayLen
		out.ArrayLen = &n
	case parse.TyFunc:
		out.Return = serializeType(ty.ReturnTy, seen, false)
		for _, p := range ty.Params {
			out.Params = append(out.Params, serializeType(p, seen, false))
		}
		out.Variadic = ty.IsVariadic
	case parse.TyStruct, parse.TyUnion:
		if seen[ty] || !deep {
			return out
		}
		seen[ty] = true
		for _, mem := range ty.Members {
			name := ""
			if mem.Name != nil {
				name = mem.Name.Text()
			}
			jm := jsonMem{
				Name:   name,
				Type:   serializeType(mem.Ty, seen, false),
				Offset: mem.Offset,
			}
			if mem.IsBitfield {
				w := mem.BitWidth
				jm.BitWidth = &w
			}
			out.Members = append(out.Members, jm)
		}
	}
	return out
}

func storageClass(v *parse.Obj) string {
	switch {
	case v.IsTLS:
		return "thread_local"
	case v.IsConstexpr:
		return "constexpr"
	case v.IsStatic && v.IsInline:
		return "static inline"
	case v.IsStatic:
		return "static"
	case v.IsInline:
		return "inline"
	case !v.IsDefinition:
		return "extern"
	}
	return ""
}

// collectTags gathers every named struct, union and enum type
// reachable from the program's declarations, deduplicated, in
// first-seen order.
func collectTags(prog []*parse.Obj) (structs, unions, enums []*parse.Type) {
	seen := map[*parse.Type]bool{}
	byName := map[string]bool{}

	var walk func(ty *parse.Type)
	walk = func(ty *parse.Type) {
		if ty == nil || seen[ty] {
			return
		}
		seen[ty] = true
		switch ty.Kind {
		case parse.TyPtr, parse.TyArray, parse.TyVLA, parse.TyBlock:
			walk(ty.Base)
		case parse.TyFunc:
			walk(ty.ReturnTy)
			for _, p := range ty.Params {
				walk(p)
			}
		case parse.TyStruct, parse.TyUnion, parse.TyEnum:
			// Declarator copies carry the declared name; the tag is on
			// the type they were copied from.
			tagTy := ty
			for tagTy.Origin != nil {
				tagTy = tagTy.Origin
			}
			if tagTy.Name != nil {
				key := ty.Kind.String() + " " + tagTy.Name.Text()
				if !byName[key] {
					byName[key] = true
					switch ty.Kind {
					case parse.TyStruct:
						structs = append(structs, tagTy)
					case parse.TyUnion:
						unions = append(unions, tagTy)
					default:
						enums = append(enums, tagTy)
					}
				}
			}
			for _, mem := range ty.Members {
				walk(mem.Ty)
			}
		}
	}

	for _, v := range prog {
		walk(v.Ty)
	}
	return structs, unions, enums
}

func declPos(v *parse.Obj) (string, int) {
	if v.Tok == nil {
		return "", 0
	}
	return v.Tok.Filename, v.Tok.LineNo + v.Tok.LineDelta
}

// OutputJSON writes the declaration summary of a parsed program.
func OutputJSON(w io.Writer, prog []*parse.Obj) error {
	dump := jsonDump{
		Functions: []jsonDecl{},
		Variables: []jsonDecl{},
		Structs:   []jsonDecl{},
		Unions:    []jsonDecl{},
		Enums:     []jsonDecl{},
	}

	for _, v := range prog {
		// Compiler-generated objects (hoisted literals, blocks) are
		// not part of the declaration surface.
		if len(v.Name) > 2 && v.Name[:2] == ".L" {
			continue
		}
		file, line := declPos(v)
		decl := jsonDecl{
			Name:    v.Name,
			Type:    serializeType(v.Ty, map[*parse.Type]bool{}, true),
			Storage: storageClass(v),
			File:    file,
			Line:    line,
		}
		if v.IsFunction {
			dump.Functions = append(dump.Functions, decl)
		} else {
			dump.Variables = append(dump.Variables, decl)
		}
	}

	structs, unions, enums := collectTags(prog)
	for _, ty := range structs {
		dump.Structs = append(dump.Structs, jsonDecl{
			Name: ty.Name.Text(),
			Type: serializeType(ty, map[*parse.Type]bool{}, true),
		})
	}
	for _, ty := range unions {
		dump.Unions = append(dump.Unions, jsonDecl{
			Name: ty.Name.Text(),
			Type: serializeType(ty, map[*parse.Type]bool{}, true),
		})
	}
	for _, ty := range enums {
		decl := jsonDecl{
			Name: ty.Name.Text(),
			Type: serializeType(ty, map[*parse.Type]bool{}, true),
		}
		for _, ec := range ty.EnumConsts {
			decl.Enums = append(decl.Enums, jsonEnum{Name: ec.Name, Value: ec.Val})
		}
		dump.Enums = append(dump.Enums, decl)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(dump)
}
