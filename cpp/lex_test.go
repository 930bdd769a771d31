package cpp

import (
	"testing"

	"github.com/takeiteasy/cast/internal/arena"
)

// newTestPP builds a preprocessor with error collection enabled.
func newTestPP() *Preprocessor {
	ds := NewDiagnostics()
	ds.Collect = true
	return New(ds, arena.New(0))
}

// tokenizeString runs the full pre-tokenization phases plus the
// tokenizer over src.
func tokenizeString(pp *Preprocessor, src string) *Token {
	buf := append([]byte(src), '\n', 0)
	buf = prepareSource(buf)
	file := pp.NewFile("test.c", buf)
	return pp.Tokenize(file)
}

func tokenTexts(tok *Token) []string {
	var out []string
	for t := tok; t != nil && t.Kind != EOF; t = t.Next {
		out = append(out, t.Text())
	}
	return out
}

func TestTokenizeBasic(t *testing.T) {
	pp := newTestPP()
	tok := tokenizeString(pp, "int main(void) { return 0; }")

	want := []string{"int", "main", "(", "void", ")", "{", "return", "0", ";", "}"}
	got := tokenTexts(tok)
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("token %d = %q, want %q", i, got[i], want[i])
		}
	}
	if pp.Diagnostics().HasErrors() {
		t.Fatalf("unexpected errors: %v", pp.Diagnostics().All())
	}
}

func TestTokenizePositions(t *testing.T) {
	pp := newTestPP()
	tok := tokenizeString(pp, "int x;\n  int y;")

	for t2 := tok; t2 != nil; t2 = t2.Next {
		if t2.LineNo < 1 || t2.ColNo < 1 || t2.File == nil {
			t.Fatalf("token %q has invalid position %d:%d", t2.Text(), t2.LineNo, t2.ColNo)
		}
	}

	// "y" is on line 2.
	t2 := tok
	for ; t2.Kind != EOF; t2 = t2.Next {
		if t2.Equal("y") {
			break
		}
	}
	if t2.LineNo != 2 {
		t.Fatalf("y on line %d, want 2", t2.LineNo)
	}
	if t2.ColNo != 7 {
		t.Fatalf("y at col %d, want 7", t2.ColNo)
	}
}

func TestTokenizeBOLAndSpace(t *testing.T) {
	pp := newTestPP()
	tok := tokenizeString(pp, "a b\nc")

	if !tok.AtBOL {
		t.Fatal("first token should be at beginning of line")
	}
	if tok.Next.AtBOL || !tok.Next.HasSpace {
		t.Fatal("b should have leading space, not BOL")
	}
	if !tok.Next.Next.AtBOL {
		t.Fatal("c should be at beginning of line")
	}
}

func TestLongestMatchPunctuators(t *testing.T) {
	pp := newTestPP()
	tok := tokenizeString(pp, "a <<= b >>= c ... d ## e -> f && g")

	want := []string{"a", "<<=", "b", ">>=", "c", "...", "d", "##", "e", "->", "f", "&&", "g"}
	got := tokenTexts(tok)
	for i := range want {
		if i >= len(got) || got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestDigraphs(t *testing.T) {
	pp := newTestPP()
	tok := tokenizeString(pp, "<: :> <% %>")

	want := []string{"[", "]", "{", "}"}
	got := tokenTexts(tok)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("digraph %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestComments(t *testing.T) {
	pp := newTestPP()
	tok := tokenizeString(pp, "a // comment\nb /* multi\nline */ c")

	want := []string{"a", "b", "c"}
	got := tokenTexts(tok)
	if len(got) != 3 {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestLineSplicing(t *testing.T) {
	pp := newTestPP()
	tok := tokenizeString(pp, "ab\\\ncd\nx")

	if tok.Text() != "abcd" {
		t.Fatalf("spliced identifier = %q, want abcd", tok.Text())
	}
	// Physical line count is preserved: x stays on line 3.
	t2 := tok
	for ; t2.Kind != EOF; t2 = t2.Next {
		if t2.Equal("x") {
			break
		}
	}
	if t2.LineNo != 3 {
		t.Fatalf("x on line %d, want 3", t2.LineNo)
	}
}

func TestStringLiteral(t *testing.T) {
	pp := newTestPP()
	tok := tokenizeString(pp, `"hi\n" "a\x41z" "\101"`)

	if tok.Kind != STR || string(tok.Str) != "hi\n\x00" {
		t.Fatalf("decoded %q", tok.Str)
	}
	if string(tok.Next.Str) != "aAz\x00" {
		t.Fatalf("hex escape decoded %q", tok.Next.Str)
	}
	if string(tok.Next.Next.Str) != "A\x00" {
		t.Fatalf("octal escape decoded %q", tok.Next.Next.Str)
	}
}

func TestWideStringLiterals(t *testing.T) {
	pp := newTestPP()
	tok := tokenizeString(pp, `u"ab" U"a" L"a"`)

	if tok.StrKind != StrUTF16 || tok.ArrayLen != 3 {
		t.Fatalf("u\"ab\": kind %v len %d", tok.StrKind, tok.ArrayLen)
	}
	if tok.Next.StrKind != StrUTF32 {
		t.Fatalf("U\"a\": kind %v", tok.Next.StrKind)
	}
	if tok.Next.Next.StrKind != StrWide {
		t.Fatalf("L\"a\": kind %v", tok.Next.Next.StrKind)
	}
}

func TestCharLiterals(t *testing.T) {
	pp := newTestPP()
	tok := tokenizeString(pp, `'a' '\n' '\\'`)

	vals := []int64{'a', '\n', '\\'}
	t2 := tok
	for i, want := range vals {
		if t2.Kind != NUM || t2.Val != want {
			t.Fatalf("char %d = %d, want %d", i, t2.Val, want)
		}
		t2 = t2.Next
	}
}

func TestUnterminatedLiteralRecovers(t *testing.T) {
	pp := newTestPP()
	tok := tokenizeString(pp, "\"abc\nint x;")

	if !pp.Diagnostics().HasErrors() {
		t.Fatal("expected an error for the unterminated literal")
	}
	// The rest of the file still tokenizes.
	found := false
	for t2 := tok; t2 != nil && t2.Kind != EOF; t2 = t2.Next {
		if t2.Equal("x") {
			found = true
		}
	}
	if !found {
		t.Fatal("tokenization did not continue past the bad literal")
	}
}

func TestPPNumberConversion(t *testing.T) {
	cases := []struct {
		src  string
		val  int64
		num  NumKind
		fval float64
	}{
		{"0", 0, NumInt, 0},
		{"42", 42, NumInt, 0},
		{"0x10", 16, NumInt, 0},
		{"0b101", 5, NumInt, 0},
		{"017", 15, NumInt, 0},
		{"42u", 42, NumUInt, 0},
		{"42L", 42, NumLong, 0},
		{"42UL", 42, NumULong, 0},
		{"42ull", 42, NumULong, 0},
		{"2147483648", 2147483648, NumLong, 0},
		{"0xFFFFFFFFFFFFFFFF", -1, NumULong, 0},
		{"1'000'000", 1000000, NumInt, 0},
		{"1.5", 0, NumDouble, 1.5},
		{"1.5f", 0, NumFloat, 1.5},
		{"1.5L", 0, NumLDouble, 1.5},
		{"1e3", 0, NumDouble, 1000},
		{"0x1p3", 0, NumDouble, 8},
	}

	for _, tc := range cases {
		pp := newTestPP()
		tok := tokenizeString(pp, tc.src)
		pp.ConvertPPTokens(tok)

		if tok.Kind != NUM {
			t.Errorf("%s: kind %v, want NUM", tc.src, tok.Kind)
			continue
		}
		if tok.Num != tc.num {
			t.Errorf("%s: numkind %v, want %v", tc.src, tok.Num, tc.num)
		}
		if tc.num == NumFloat || tc.num == NumDouble || tc.num == NumLDouble {
			if tok.FVal != tc.fval {
				t.Errorf("%s: fval %g, want %g", tc.src, tok.FVal, tc.fval)
			}
		} else if tok.Val != tc.val {
			t.Errorf("%s: val %d, want %d", tc.src, tok.Val, tc.val)
		}
	}
}

func TestKeywordPromotion(t *testing.T) {
	pp := newTestPP()
	tok := tokenizeString(pp, "int foo return")

	// Keywords stay identifiers until ConvertPPTokens.
	if tok.Kind != IDENT {
		t.Fatalf("raw 'int' kind %v, want IDENT", tok.Kind)
	}
	pp.ConvertPPTokens(tok)
	if tok.Kind != KEYWORD {
		t.Fatalf("'int' not promoted to keyword")
	}
	if tok.Next.Kind != IDENT {
		t.Fatalf("'foo' wrongly promoted")
	}
	if tok.Next.Next.Kind != KEYWORD {
		t.Fatalf("'return' not promoted")
	}
}

func TestUniversalCharNames(t *testing.T) {
	pp := newTestPP()
	tok := tokenizeString(pp, "int \\u00e9tude;")

	found := false
	for t2 := tok; t2 != nil && t2.Kind != EOF; t2 = t2.Next {
		if t2.Kind == IDENT && t2.Text() == "étude" {
			found = true
		}
	}
	if !found {
		t.Fatalf("universal character name not decoded: %v", tokenTexts(tok))
	}
}
