package cpp

import (
	"fmt"
	"testing"
)

var exprTestCases = []struct {
	expr      string
	expected  int64
	expectErr bool
}{
	{"1", 1, false},
	{"2", 2, false},
	{"0x1", 0x1, false},
	{"0x1234", 0x1234, false},
	{"-1", -1, false},
	{"-2", -2, false},
	{"(2)", 2, false},
	{"(-2)", -2, false},
	{"foo", 1, false},
	{"bang", 0, false},
	{"defined foo", 1, false},
	{"defined bang", 0, false},
	{"defined(foo)", 1, false},
	{"defined(bang)", 0, false},
	{"defined", 0, true},
	{"defined(bang", 0, true},
	{"0 || 0", 0, false},
	{"1 || 0", 1, false},
	{"0 || 1", 1, false},
	{"1 && 0", 0, false},
	{"1 && 1", 1, false},
	{"0xf0 | 1", 0xf1, false},
	{"0xf0 & 1", 0, false},
	{"0xf0 & 0x1f", 0x10, false},
	{"1 ^ 1", 0, false},
	{"1 == 1", 1, false},
	{"1 == 0", 0, false},
	{"1 != 1", 0, false},
	{"0 != 1", 1, false},
	{"0 > 1", 0, false},
	{"0 < 1", 1, false},
	{"0 > -1", 1, false},
	{"0 < -1", 0, false},
	{"0 >= 1", 0, false},
	{"0 <= 1", 1, false},
	{"0 >= -1", 1, false},
	{"0 <= -1", 0, false},
	{"1 << 1", 2, false},
	{"2 >> 1", 1, false},
	{"2 + 1", 3, false},
	{"2 - 3", -1, false},
	{"2 * 3", 6, false},
	{"6 / 3", 2, false},
	{"7 % 3", 1, false},
	{"6 / 0", 0, true},
	{"7 % 0", 0, true},
	{"0,1", 1, false},
	{"1,0", 0, false},
	{"2+2*3+2", 10, false},
	{"(2+2)*(3+2)", 20, false},
	{"2 + 2 + 2 + 2 == 2 + 2 * 3", 1, false},
	{"0 ? 1 : 2", 2, false},
	{"1 ? 1 : 2", 1, false},
	{"(1 ? 1 ? 1337 : 1234 : 2) == 1337", 1, false},
	{"(1 ? 0 ? 1337 : 1234 : 2) == 1234", 1, false},
	{"(0 ? 1 ? 1337 : 1234 : 2) == 2", 1, false},
	{"~0", -1, false},
	{"!0", 1, false},
	{"!3", 0, false},
	{"'A'", 65, false},
	{"'A' == 65", 1, false},
	{"FOO == 42", 1, false},
	{"undefined_name == 0", 1, false},
	{"1 ? 2 : 1/0 ? 3 : 4", 2, true}, // both arms evaluate; / by zero reported
}

func TestExprEval(t *testing.T) {
	for _, tc := range exprTestCases {
		pp := newTestPP()
		pp.Define("foo", "1")
		pp.Define("bar", "1")
		pp.Define("baz", "1")
		pp.Define("FOO", "42")

		src := fmt.Sprintf("#if %s\nyes\n#else\nno\n#endif", tc.expr)
		tok := tokenizeString(pp, src)
		out := pp.Preprocess(tok)

		if tc.expectErr {
			if !pp.Diagnostics().HasErrors() {
				t.Errorf("%s: expected an error", tc.expr)
			}
			continue
		}
		if pp.Diagnostics().HasErrors() {
			t.Errorf("%s: unexpected error %v", tc.expr, pp.Diagnostics().All())
			continue
		}

		want := "no"
		if tc.expected != 0 {
			want = "yes"
		}
		if got := expandedText(out); got != want {
			t.Errorf("%s: included %q, want %q", tc.expr, got, want)
		}
	}
}
