package parse

import (
	"strings"
	"testing"

	"github.com/takeiteasy/cast/cpp"
	"github.com/takeiteasy/cast/internal/arena"
)

// parseString preprocesses and parses src in a fresh session worth of
// state, returning the declarations and the shared diagnostics.
func parseString(t *testing.T, src string) ([]*Obj, *cpp.Diagnostics) {
	t.Helper()
	ds := cpp.NewDiagnostics()
	ds.Collect = true
	pp := cpp.New(ds, arena.New(0))
	pp.InitMacros()

	buf := append([]byte(src), '\n', 0)
	file := pp.NewFile("test.c", buf)
	tok := pp.Tokenize(file)
	tok = pp.Preprocess(tok)

	prog, err := Parse(ds, tok)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	return prog, ds
}

// named returns the declarations that are part of the source's
// declaration surface, skipping compiler-generated hoisted objects.
func named(prog []*Obj) []*Obj {
	var out []*Obj
	for _, v := range prog {
		if !strings.HasPrefix(v.Name, ".L") && v.Name != "" {
			out = append(out, v)
		}
	}
	return out
}

func findObj(prog []*Obj, name string) *Obj {
	for _, v := range prog {
		if v.Name == name {
			return v
		}
	}
	return nil
}

func TestHelloWorld(t *testing.T) {
	prog, ds := parseString(t, "int main(void) { return 0; }")
	if ds.HasErrors() {
		t.Fatalf("errors: %v", ds.All())
	}

	decls := named(prog)
	if len(decls) != 1 {
		t.Fatalf("got %d declarations, want 1", len(decls))
	}
	main := decls[0]
	if main.Name != "main" || !main.IsFunction || !main.IsDefinition {
		t.Fatalf("unexpected main: %+v", main)
	}
	if main.Ty.ReturnTy.Kind != TyInt {
		t.Fatalf("return type %v, want int", main.Ty.ReturnTy.Kind)
	}
	if main.Body == nil || main.Body.Kind != NdBlock || len(main.Body.Body) != 1 {
		t.Fatal("body is not a single-statement block")
	}
	ret := main.Body.Body[0]
	if ret.Kind != NdReturn {
		t.Fatalf("statement kind %v, want return", ret.Kind)
	}
}

// Every node carries a resolved type after parsing.
func TestEveryNodeHasType(t *testing.T) {
	prog, _ := parseString(t, `
int g = 3;
int add(int a, int b) { return a + b; }
int main(void) {
    int x = add(1, 2) * g;
    if (x > 2) x = -x;
    for (int i = 0; i < 10; i++) x += i;
    while (x) x--;
    return x;
}`)

	var check func(n *Node)
	check = func(n *Node) {
		if n == nil {
			return
		}
		if n.Ty == nil {
			t.Fatalf("node kind %v at %s has nil type", n.Kind, n.Tok.Pos())
		}
		check(n.Lhs)
		check(n.Rhs)
		check(n.Cond)
		check(n.Then)
		check(n.Els)
		check(n.Init)
		check(n.Inc)
		for _, c := range n.Body {
			check(c)
		}
		for _, c := range n.Args {
			check(c)
		}
	}
	for _, v := range prog {
		check(v.Body)
	}
}

func TestTypedefDisambiguation(t *testing.T) {
	// `T (T);` redeclares T: the parenthesized declarator binds the
	// inner T as the declared name, a variable of type int.
	prog, ds := parseString(t, "typedef int T; T (T);")
	if ds.HasErrors() {
		t.Fatalf("errors: %v", ds.All())
	}
	v := findObj(prog, "T")
	if v == nil {
		t.Fatal("T not declared")
	}
	if v.IsFunction {
		t.Fatal("T parsed as a function")
	}
	if v.Ty.Kind != TyInt {
		t.Fatalf("T has type %v, want int", v.Ty.Kind)
	}
}

func TestTypedefAsVariableInInnerScope(t *testing.T) {
	_, ds := parseString(t, `
typedef int T;
int main(void) {
    int T = 3;
    return T + 1;
}`)
	if ds.HasErrors() {
		t.Fatalf("errors: %v", ds.All())
	}
}

func TestStructLayout(t *testing.T) {
	prog, ds := parseString(t, "struct S { char c; int i; short s; } v;")
	if ds.HasErrors() {
		t.Fatalf("errors: %v", ds.All())
	}
	v := findObj(prog, "v")
	ty := v.Ty
	if ty.Size != 12 || ty.Align != 4 {
		t.Fatalf("size %d align %d, want 12/4", ty.Size, ty.Align)
	}
	offsets := []int64{0, 4, 8}
	for i, mem := range ty.Members {
		if mem.Offset != offsets[i] {
			t.Fatalf("member %d offset %d, want %d", i, mem.Offset, offsets[i])
		}
	}
}

func TestPackedStruct(t *testing.T) {
	prog, ds := parseString(t, "struct __attribute__((packed)) P { char c; int i; } v;")
	if ds.HasErrors() {
		t.Fatalf("errors: %v", ds.All())
	}
	ty := findObj(prog, "v").Ty
	if ty.Size != 5 {
		t.Fatalf("packed size %d, want 5", ty.Size)
	}
	if ty.Members[1].Offset != 1 {
		t.Fatalf("packed member offset %d, want 1", ty.Members[1].Offset)
	}
}

func TestBitfields(t *testing.T) {
	prog, ds := parseString(t, "struct B { int a : 3; int b : 5; int c : 30; } v;")
	if ds.HasErrors() {
		t.Fatalf("errors: %v", ds.All())
	}
	ty := findObj(prog, "v").Ty
	a, b, c := ty.Members[0], ty.Members[1], ty.Members[2]
	if a.BitOffset != 0 || a.BitWidth != 3 {
		t.Fatalf("a at %d:%d", a.BitOffset, a.BitWidth)
	}
	if b.BitOffset != 3 || b.Offset != 0 {
		t.Fatalf("b at offset %d bit %d", b.Offset, b.BitOffset)
	}
	// c does not fit the first unit.
	if c.Offset != 4 {
		t.Fatalf("c at offset %d, want 4", c.Offset)
	}
}

func TestBitfieldTooWide(t *testing.T) {
	_, ds := parseString(t, "struct B { int a : 99; };")
	if !ds.HasErrors() {
		t.Fatal("expected bit-field width error")
	}
}

func TestUnionLayout(t *testing.T) {
	prog, ds := parseString(t, "union U { char c; int i; long l; } v;")
	if ds.HasErrors() {
		t.Fatalf("errors: %v", ds.All())
	}
	ty := findObj(prog, "v").Ty
	if ty.Size != 8 || ty.Align != 8 {
		t.Fatalf("union size %d align %d, want 8/8", ty.Size, ty.Align)
	}
	for _, mem := range ty.Members {
		if mem.Offset != 0 {
			t.Fatal("union member not at offset 0")
		}
	}
}

func TestAnonymousStructMember(t *testing.T) {
	_, ds := parseString(t, `
struct Outer {
    int a;
    struct { int b; int c; };
} v;
int main(void) { return v.b + v.c; }`)
	if ds.HasErrors() {
		t.Fatalf("anonymous member access failed: %v", ds.All())
	}
}

func TestFlexibleArrayMember(t *testing.T) {
	prog, ds := parseString(t, "struct F { int n; char data[]; } ;struct F *p;")
	if ds.HasErrors() {
		t.Fatalf("errors: %v", ds.All())
	}
	ty := findObj(prog, "p").Ty.Base
	if !ty.IsFlexible {
		t.Fatal("flexible array not recognized")
	}
}

func TestFlexibleArrayNotLast(t *testing.T) {
	_, ds := parseString(t, "struct F { char data[]; int n; };")
	if !ds.HasErrors() {
		t.Fatal("expected flexible-array-not-last error")
	}
}

func TestEnum(t *testing.T) {
	prog, ds := parseString(t, `
enum Color { RED, GREEN = 10, BLUE };
enum Color c = BLUE;
int arr[BLUE];`)
	if ds.HasErrors() {
		t.Fatalf("errors: %v", ds.All())
	}

	c := findObj(prog, "c")
	if len(c.Ty.EnumConsts) != 3 {
		t.Fatalf("got %d enumerators", len(c.Ty.EnumConsts))
	}
	wants := map[string]int64{"RED": 0, "GREEN": 10, "BLUE": 11}
	for _, ec := range c.Ty.EnumConsts {
		if wants[ec.Name] != ec.Val {
			t.Fatalf("%s = %d, want %d", ec.Name, ec.Val, wants[ec.Name])
		}
	}
	// Enum constants fold in constant expressions.
	if arr := findObj(prog, "arr"); arr.Ty.ArrayLen != 11 {
		t.Fatalf("arr len %d, want 11", arr.Ty.ArrayLen)
	}
}

func TestConstantFolding(t *testing.T) {
	prog, ds := parseString(t, `
int a[3 + 4];
int b[1 << 4];
int c[sizeof(long)];
int d['b' - 'a' + 1];`)
	if ds.HasErrors() {
		t.Fatalf("errors: %v", ds.All())
	}
	wants := map[string]int64{"a": 7, "b": 16, "c": 8, "d": 2}
	for name, want := range wants {
		if got := findObj(prog, name).Ty.ArrayLen; got != want {
			t.Fatalf("%s len %d, want %d", name, got, want)
		}
	}
}

func TestDivisionByZeroInConstant(t *testing.T) {
	_, ds := parseString(t, "int a[1/0];")
	if !ds.HasErrors() {
		t.Fatal("expected division by zero error")
	}
}

func TestStaticAssert(t *testing.T) {
	_, ds := parseString(t, "_Static_assert(sizeof(int) == 4, \"int is 4 bytes\");")
	if ds.HasErrors() {
		t.Fatalf("true assertion failed: %v", ds.All())
	}

	_, ds = parseString(t, "_Static_assert(1 == 2, \"nope\");")
	if !ds.HasErrors() {
		t.Fatal("false assertion passed")
	}
}

func TestGlobalInitializer(t *testing.T) {
	prog, ds := parseString(t, "int x[4] = {1, 2, 3, 4};")
	if ds.HasErrors() {
		t.Fatalf("errors: %v", ds.All())
	}
	x := findObj(prog, "x")
	if len(x.InitData) != 16 {
		t.Fatalf("init data %d bytes, want 16", len(x.InitData))
	}
	for i, want := range []byte{1, 2, 3, 4} {
		if x.InitData[i*4] != want {
			t.Fatalf("element %d = %d, want %d", i, x.InitData[i*4], want)
		}
	}
}

func TestDesignatedInitializers(t *testing.T) {
	prog, ds := parseString(t, `
struct P { int x; int y; };
struct P p = { .y = 2, .x = 1 };
int arr[8] = { [2] = 5, [4 ... 6] = 9 };`)
	if ds.HasErrors() {
		t.Fatalf("errors: %v", ds.All())
	}

	p := findObj(prog, "p")
	if p.InitData[0] != 1 || p.InitData[4] != 2 {
		t.Fatalf("designated struct init wrong: %v", p.InitData)
	}

	arr := findObj(prog, "arr")
	want := []byte{0, 0, 5, 0, 9, 9, 9, 0}
	for i, w := range want {
		if arr.InitData[i*4] != w {
			t.Fatalf("arr[%d] = %d, want %d", i, arr.InitData[i*4], w)
		}
	}
}

func TestIncompleteArraySizedByInitializer(t *testing.T) {
	prog, ds := parseString(t, `int a[] = {1, 2, 3};
char s[] = "hello";`)
	if ds.HasErrors() {
		t.Fatalf("errors: %v", ds.All())
	}
	if got := findObj(prog, "a").Ty.ArrayLen; got != 3 {
		t.Fatalf("a len %d, want 3", got)
	}
	if got := findObj(prog, "s").Ty.ArrayLen; got != 6 {
		t.Fatalf("s len %d, want 6", got)
	}
}

func TestGlobalRelocation(t *testing.T) {
	prog, ds := parseString(t, "int x; int *p = &x; char *s = \"hi\";")
	if ds.HasErrors() {
		t.Fatalf("errors: %v", ds.All())
	}
	p := findObj(prog, "p")
	if len(p.Rel) != 1 || p.Rel[0].Label != "x" || p.Rel[0].Offset != 0 {
		t.Fatalf("relocation %+v", p.Rel)
	}
	s := findObj(prog, "s")
	if len(s.Rel) != 1 || !strings.HasPrefix(s.Rel[0].Label, ".L") {
		t.Fatalf("string relocation %+v", s.Rel)
	}
}

func TestStaticLocalHoisted(t *testing.T) {
	prog, ds := parseString(t, `
int counter(void) {
    static int n = 5;
    return n++;
}`)
	if ds.HasErrors() {
		t.Fatalf("errors: %v", ds.All())
	}
	found := false
	for _, v := range prog {
		if strings.HasPrefix(v.Name, ".L") && !v.IsFunction && len(v.InitData) == 4 && v.InitData[0] == 5 {
			found = true
		}
	}
	if !found {
		t.Fatal("static local was not hoisted to a unique global")
	}
}

func TestGotoResolution(t *testing.T) {
	_, ds := parseString(t, `
int f(void) {
    goto done;
    done:
    return 1;
}`)
	if ds.HasErrors() {
		t.Fatalf("errors: %v", ds.All())
	}

	_, ds = parseString(t, "int f(void) { goto nowhere; return 0; }")
	if !ds.HasErrors() {
		t.Fatal("unbound goto did not error")
	}
}

func TestDuplicateCase(t *testing.T) {
	_, ds := parseString(t, `
int f(int x) {
    switch (x) {
    case 1: return 1;
    case 1: return 2;
    }
    return 0;
}`)
	if !ds.HasErrors() {
		t.Fatal("duplicate case label did not error")
	}
}

func TestStatementExpression(t *testing.T) {
	_, ds := parseString(t, "int main(void) { int x = ({ int y = 3; y + 1; }); return x; }")
	if ds.HasErrors() {
		t.Fatalf("errors: %v", ds.All())
	}
}

func TestCompoundLiteral(t *testing.T) {
	_, ds := parseString(t, `
struct P { int x; int y; };
int main(void) {
    struct P p = (struct P){1, 2};
    return p.x;
}`)
	if ds.HasErrors() {
		t.Fatalf("errors: %v", ds.All())
	}
}

func TestVLA(t *testing.T) {
	_, ds := parseString(t, `
int sum(int n) {
    int a[n];
    return sizeof(a);
}`)
	if ds.HasErrors() {
		t.Fatalf("errors: %v", ds.All())
	}

	_, ds = parseString(t, "int n; int a[n];")
	if !ds.HasErrors() {
		t.Fatal("VLA at file scope did not error")
	}
}

func TestFunctionPointerDeclarator(t *testing.T) {
	prog, ds := parseString(t, "int (*handler)(int, char *);")
	if ds.HasErrors() {
		t.Fatalf("errors: %v", ds.All())
	}
	h := findObj(prog, "handler")
	if h.Ty.Kind != TyPtr || h.Ty.Base.Kind != TyFunc {
		t.Fatalf("handler type %v", h.Ty.Kind)
	}
	fn := h.Ty.Base
	if len(fn.Params) != 2 || fn.Params[0].Kind != TyInt || fn.Params[1].Kind != TyPtr {
		t.Fatalf("handler params wrong")
	}
}

func TestArrayOfFunctionsForbidden(t *testing.T) {
	_, ds := parseString(t, "int f[3](void);")
	if !ds.HasErrors() {
		t.Fatal("array of functions did not error")
	}
}

func TestUndefinedVariableRecovers(t *testing.T) {
	prog, ds := parseString(t, `
int main(void) {
    return no_such_thing;
}
int after(void) { return 1; }`)
	if !ds.HasErrors() {
		t.Fatal("undefined variable did not error")
	}
	// Recovery keeps parsing: the next function is still there.
	if findObj(prog, "after") == nil {
		t.Fatal("parser did not recover after the error")
	}
}

func TestAtomicAndQualifiers(t *testing.T) {
	prog, ds := parseString(t, "const volatile int a; _Atomic int b; _Atomic(long) c;")
	if ds.HasErrors() {
		t.Fatalf("errors: %v", ds.All())
	}
	a := findObj(prog, "a")
	if !a.Ty.IsConst || !a.Ty.IsVolatile {
		t.Fatal("qualifiers lost")
	}
	if !findObj(prog, "b").Ty.IsAtomic {
		t.Fatal("_Atomic qualifier lost")
	}
	c := findObj(prog, "c")
	if c.Ty.Kind != TyLong || !c.Ty.IsAtomic {
		t.Fatal("_Atomic(T) form wrong")
	}
}

func TestAlignas(t *testing.T) {
	prog, ds := parseString(t, "_Alignas(16) int x;")
	if ds.HasErrors() {
		t.Fatalf("errors: %v", ds.All())
	}
	if findObj(prog, "x").Align != 16 {
		t.Fatal("_Alignas ignored")
	}
}

func TestAsmStatement(t *testing.T) {
	prog, ds := parseString(t, `int f(void) { asm("nop"); return 0; }`)
	if ds.HasErrors() {
		t.Fatalf("errors: %v", ds.All())
	}
	f := findObj(prog, "f")
	found := false
	for _, n := range f.Body.Body {
		if n.Kind == NdAsm && n.AsmStr == "nop" {
			found = true
		}
	}
	if !found {
		t.Fatal("asm statement not captured")
	}
}

func TestLabelsAsValues(t *testing.T) {
	_, ds := parseString(t, `
int f(void) {
    void *p = &&out;
    goto *p;
    out:
    return 1;
}`)
	if ds.HasErrors() {
		t.Fatalf("errors: %v", ds.All())
	}
}

func TestBlockLiteral(t *testing.T) {
	prog, ds := parseString(t, `
int main(void) {
    int captured = 7;
    int (^blk)(int) = ^int(int x) { return x + captured; };
    return blk(1);
}`)
	if ds.HasErrors() {
		t.Fatalf("errors: %v", ds.All())
	}

	var blockFn *Obj
	for _, v := range prog {
		if v.IsBlock {
			blockFn = v
		}
	}
	if blockFn == nil {
		t.Fatal("block literal not lowered to a function")
	}
	if len(blockFn.Captures) != 1 || blockFn.Captures[0].Name != "captured" {
		t.Fatalf("captures = %v", blockFn.Captures)
	}
}

func TestStaticInlineLiveness(t *testing.T) {
	prog, ds := parseString(t, `
static inline int used(void) { return 1; }
static inline int unused(void) { return 2; }
int main(void) { return used(); }`)
	if ds.HasErrors() {
		t.Fatalf("errors: %v", ds.All())
	}
	if !findObj(prog, "used").IsLive {
		t.Fatal("reachable static inline not live")
	}
	if findObj(prog, "unused").IsLive {
		t.Fatal("unreachable static inline marked live")
	}
	if findObj(prog, "unused") == nil {
		t.Fatal("unused function missing from symbol table")
	}
}

func TestTypeCompatibility(t *testing.T) {
	if !IsCompatible(TyIntType, TyIntType) {
		t.Fatal("int incompatible with itself")
	}
	if IsCompatible(TyIntType, TyUIntType) {
		t.Fatal("int compatible with unsigned int")
	}
	if !IsCompatible(ArrayOf(TyIntType, -1), ArrayOf(TyIntType, 5)) {
		t.Fatal("incomplete array incompatible with sized")
	}
	if IsCompatible(ArrayOf(TyIntType, 4), ArrayOf(TyIntType, 5)) {
		t.Fatal("different array lengths compatible")
	}
	cp := TyIntType.Copy()
	if !IsCompatible(cp, TyIntType) {
		t.Fatal("qualifier copy incompatible with origin")
	}
}
