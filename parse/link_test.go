package parse

import (
	"testing"

	"github.com/takeiteasy/cast/cpp"
	"github.com/takeiteasy/cast/internal/arena"
)

// parseUnit parses one translation unit against a shared diagnostics
// sink and parser context, the way a session does.
func parseUnit(t *testing.T, ds *cpp.Diagnostics, ctx *Context, src string) []*Obj {
	t.Helper()
	pp := cpp.New(ds, arena.New(0))
	pp.InitMacros()
	buf := append([]byte(src), '\n', 0)
	file := pp.NewFile("unit.c", buf)
	tok := pp.Preprocess(pp.Tokenize(file))

	prog, err := ctx.Parse(tok)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	return prog
}

func linkFixture(t *testing.T) (*cpp.Diagnostics, *Context) {
	ds := cpp.NewDiagnostics()
	ds.Collect = true
	return ds, NewContext(ds)
}

func names(prog []*Obj) []string {
	var out []string
	for _, v := range named(prog) {
		out = append(out, v.Name)
	}
	return out
}

// Linking a single unit with itself as the only input returns the same
// declarations in the same order.
func TestLinkSingleUnitIdempotent(t *testing.T) {
	ds, ctx := linkFixture(t)
	prog := parseUnit(t, ds, ctx, "int x; int f(void) { return x; }")

	merged, err := Link(ds, prog)
	if err != nil {
		t.Fatal(err)
	}
	if len(merged) != len(prog) {
		t.Fatalf("got %d objs, want %d", len(merged), len(prog))
	}
	for i := range prog {
		if merged[i] != prog[i] {
			t.Fatalf("obj %d changed identity", i)
		}
	}
}

func TestLinkDefinitionBeatsDeclaration(t *testing.T) {
	ds, ctx := linkFixture(t)
	unit1 := parseUnit(t, ds, ctx, "int f(void);")
	unit2 := parseUnit(t, ds, ctx, "int f(void) { return 1; }")

	merged, err := Link(ds, unit1, unit2)
	if err != nil {
		t.Fatal(err)
	}
	f := merged[0]
	if f.Name != "f" || !f.IsDefinition {
		t.Fatalf("merged f is not the definition: %+v", f)
	}
}

func TestLinkDuplicateDefinitionErrors(t *testing.T) {
	ds, ctx := linkFixture(t)
	unit1 := parseUnit(t, ds, ctx, "int f(void) { return 1; }")
	unit2 := parseUnit(t, ds, ctx, "int f(void) { return 2; }")

	_, err := Link(ds, unit1, unit2)
	if err == nil && !ds.HasErrors() {
		t.Fatal("duplicate definition not diagnosed")
	}
}

func TestLinkPreservesFirstSeenOrder(t *testing.T) {
	ds, ctx := linkFixture(t)
	unit1 := parseUnit(t, ds, ctx, "int a; int b(void);")
	unit2 := parseUnit(t, ds, ctx, "int c; int b(void) { return 0; }")

	merged, err := Link(ds, unit1, unit2)
	if err != nil {
		t.Fatal(err)
	}

	got := names(merged)
	want := []string{"a", "b", "c"}
	if len(got) != 3 {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order %v, want %v", got, want)
		}
	}
}

func TestLinkNoDuplicateNames(t *testing.T) {
	ds, ctx := linkFixture(t)
	unit1 := parseUnit(t, ds, ctx, "int x; int y;")
	unit2 := parseUnit(t, ds, ctx, "extern int x; extern int y;")

	merged, err := Link(ds, unit1, unit2)
	if err != nil {
		t.Fatal(err)
	}
	seen := map[string]bool{}
	for _, v := range merged {
		if seen[v.Name] {
			t.Fatalf("duplicate name %s in linked output", v.Name)
		}
		seen[v.Name] = true
	}
}

func TestLinkCanonicalTypePropagation(t *testing.T) {
	ds, ctx := linkFixture(t)
	unit1 := parseUnit(t, ds, ctx, "extern int arr[];")
	unit2 := parseUnit(t, ds, ctx, "int arr[8];")

	merged, err := Link(ds, unit1, unit2)
	if err != nil {
		t.Fatal(err)
	}
	arr := merged[0]
	if arr.Ty.ArrayLen != 8 {
		t.Fatalf("canonical type lost: len %d, want 8", arr.Ty.ArrayLen)
	}
}

func TestLinkTentativeDefinitions(t *testing.T) {
	ds, ctx := linkFixture(t)
	unit1 := parseUnit(t, ds, ctx, "int x;")
	unit2 := parseUnit(t, ds, ctx, "int x = 5;")

	merged, err := Link(ds, unit1, unit2)
	if err != nil {
		t.Fatal(err)
	}
	if ds.HasErrors() {
		t.Fatalf("tentative + definition errored: %v", ds.All())
	}
	x := merged[0]
	if len(x.InitData) != 4 || x.InitData[0] != 5 {
		t.Fatalf("definition did not win: %+v", x)
	}
}

func TestLinkLivenessAcrossUnits(t *testing.T) {
	ds, ctx := linkFixture(t)
	unit1 := parseUnit(t, ds, ctx, "static inline int helper(void) { return 1; }\nint use(void) { return helper(); }")
	unit2 := parseUnit(t, ds, ctx, "static inline int dead(void) { return 2; }")

	merged, err := Link(ds, unit1, unit2)
	if err != nil {
		t.Fatal(err)
	}
	var helper, dead *Obj
	for _, v := range merged {
		switch v.Name {
		case "helper":
			helper = v
		case "dead":
			dead = v
		}
	}
	if helper == nil || !helper.IsLive {
		t.Fatal("reachable helper not live after linking")
	}
	if dead == nil {
		t.Fatal("dead function pruned from the symbol table")
	}
	if dead.IsLive {
		t.Fatal("unreachable static inline live after linking")
	}
}
