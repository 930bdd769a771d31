package parse

import (
	"github.com/takeiteasy/cast/cpp"
	"github.com/takeiteasy/cast/internal/hashmap"
)

// VarScope is one entry in the ordinary identifier namespace: a
// variable, a typedef or an enum constant.
type VarScope struct {
	Var     *Obj
	TypeDef *Type
	EnumTy  *Type
	EnumVal int64
}

// Scope is one block scope. Ordinary identifiers and tags live in
// disjoint namespaces; lookups walk outward through Parent.
type Scope struct {
	Parent *Scope

	vars hashmap.Map // string -> *VarScope
	tags hashmap.Map // string -> *Type
}

func newScope(parent *Scope) *Scope {
	return &Scope{Parent: parent}
}

func (s *Scope) findVar(name string) *VarScope {
	for sc := s; sc != nil; sc = sc.Parent {
		if v, ok := sc.vars.Lookup(name); ok {
			return v.(*VarScope)
		}
	}
	return nil
}

func (s *Scope) findVarInCurrent(name string) *VarScope {
	if v, ok := s.vars.Lookup(name); ok {
		return v.(*VarScope)
	}
	return nil
}

func (s *Scope) putVar(name string, vs *VarScope) {
	s.vars.Put(name, vs)
}

func (s *Scope) findTag(name string) *Type {
	for sc := s; sc != nil; sc = sc.Parent {
		if t, ok := sc.tags.Lookup(name); ok {
			return t.(*Type)
		}
	}
	return nil
}

func (s *Scope) findTagInCurrent(name string) *Type {
	if t, ok := s.tags.Lookup(name); ok {
		return t.(*Type)
	}
	return nil
}

func (s *Scope) putTag(name string, ty *Type) {
	s.tags.Put(name, ty)
}

func (p *parser) enterScope() {
	p.scope = newScope(p.scope)
}

func (p *parser) leaveScope() {
	p.scope = p.scope.Parent
}

// pushScope binds name in the current scope. A rebinding replaces the
// old entry so no two entries share a name within one scope;
// redeclaration errors are diagnosed by the callers that forbid them.
func (p *parser) pushScope(tok *cpp.Token, name string) *VarScope {
	vs := &VarScope{}
	p.scope.putVar(name, vs)
	return vs
}

func (p *parser) pushTagScope(tok *cpp.Token, ty *Type) {
	p.scope.putTag(tok.Text(), ty)
}

// findTypeDef resolves the classical typedef-name ambiguity: an
// identifier acts as a type specifier iff the current scope chain binds
// it as a typedef.
func (p *parser) findTypeDef(tok *cpp.Token) *Type {
	if tok.Kind != cpp.IDENT {
		return nil
	}
	if vs := p.scope.findVar(tok.Text()); vs != nil {
		return vs.TypeDef
	}
	return nil
}
