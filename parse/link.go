package parse

import (
	"github.com/takeiteasy/cast/cpp"
	"github.com/takeiteasy/cast/internal/hashmap"
)

// Link merges the top-level declaration lists of multiple translation
// units into one. For each name a definition beats a declaration, two
// definitions are an error, the canonical type propagates to every
// reference, and first-seen order is preserved with no duplicate names
// in the output.
func Link(ds *cpp.Diagnostics, progs ...[]*Obj) (out []*Obj, err error) {
	defer func() {
		if e := recover(); e != nil {
			b, ok := e.(*cpp.Breakout)
			if !ok {
				panic(e)
			}
			err = b.Diag
		}
	}()

	var canonical hashmap.Map
	var merged []*Obj

	isStrongDef := func(v *Obj) bool {
		return v.IsDefinition && !v.IsTentative
	}

	for _, prog := range progs {
		for _, v := range prog {
			prev, ok := canonical.Lookup(v.Name)
			if !ok {
				canonical.Put(v.Name, v)
				merged = append(merged, v)
				continue
			}
			existing := prev.(*Obj)

			if v.IsFunction != existing.IsFunction || !IsCompatible(existing.Ty, v.Ty) {
				tok := v.Tok
				if tok == nil {
					tok = existing.Tok
				}
				if tok != nil {
					ds.ErrorTok(tok, "conflicting types for '%s'", v.Name)
				}
				continue
			}

			if isStrongDef(v) && isStrongDef(existing) {
				if v.Tok != nil {
					ds.ErrorTok(v.Tok, "redefinition of '%s'", v.Name)
				}
				continue
			}

			// The definition wins; it takes the first-seen slot so
			// order is stable, and its type becomes canonical for
			// every reference.
			if isStrongDef(v) || (v.IsDefinition && !existing.IsDefinition) {
				*existing = *v
			} else {
				existing.Ty = canonicalType(existing.Ty, v.Ty)
			}
		}
	}

	markLive(merged)
	return merged, nil
}

// canonicalType prefers the more complete of two compatible types.
func canonicalType(a, b *Type) *Type {
	if a.Kind == TyArray && a.ArrayLen < 0 && b.Kind == TyArray && b.ArrayLen >= 0 {
		return b
	}
	if a.Kind == TyFunc && len(a.Params) == 0 && len(b.Params) > 0 {
		return b
	}
	if a.Size < 0 && b.Size >= 0 {
		return b
	}
	return a
}

// markLive re-runs static inline liveness over the merged program: a
// static inline function is live iff reachable from an externally
// visible root. Unreachable ones stay in the symbol table but may be
// pruned from emission.
func markLive(prog []*Obj) {
	fns := map[string]*Obj{}
	for _, v := range prog {
		if v.IsFunction {
			v.IsLive = false
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

	for _, v := range prog {
		if v.IsFunction && v.IsRoot {
			mark(v.Name)
		}
		for _, rel := range v.Rel {
			mark(rel.Label)
		}
	}
}
