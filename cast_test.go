package cast

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeSource(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.c")
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSessionHelloWorld(t *testing.T) {
	s := New()
	defer s.Close()

	prog, err := s.ParseFile(writeSource(t, "int main(void) { return 0; }"))
	if err != nil {
		t.Fatal(err)
	}
	if s.HasErrors() {
		var buf bytes.Buffer
		s.PrintAllErrors(&buf)
		t.Fatalf("errors:\n%s", buf.String())
	}

	var buf bytes.Buffer
	if err := OutputJSON(&buf, prog); err != nil {
		t.Fatal(err)
	}

	var dump struct {
		Functions []struct {
			Name string `json:"name"`
			Type struct {
				Kind   string `json:"kind"`
				Return struct {
					Kind string `json:"kind"`
				} `json:"return"`
			} `json:"type"`
		} `json:"functions"`
		Variables []any `json:"variables"`
	}
	if err := json.Unmarshal(buf.Bytes(), &dump); err != nil {
		t.Fatal(err)
	}
	if len(dump.Functions) != 1 || dump.Functions[0].Name != "main" {
		t.Fatalf("functions = %+v", dump.Functions)
	}
	if dump.Functions[0].Type.Return.Kind != "int" {
		t.Fatalf("main returns %q", dump.Functions[0].Type.Return.Kind)
	}
	if len(dump.Variables) != 0 {
		t.Fatalf("unexpected variables: %v", dump.Variables)
	}
}

func TestJSONEnumerators(t *testing.T) {
	s := New()
	defer s.Close()

	prog, err := s.ParseFile(writeSource(t, "enum E { A = 1, B = 2 }; enum E e;"))
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := OutputJSON(&buf, prog); err != nil {
		t.Fatal(err)
	}
	var dump struct {
		Enums []struct {
			Name        string `json:"name"`
			Enumerators []struct {
				Name  string `json:"name"`
				Value int64  `json:"value"`
			} `json:"enumerators"`
		} `json:"enums"`
	}
	if err := json.Unmarshal(buf.Bytes(), &dump); err != nil {
		t.Fatal(err)
	}
	if len(dump.Enums) != 1 || dump.Enums[0].Name != "E" {
		t.Fatalf("enums = %+v", dump.Enums)
	}
	if len(dump.Enums[0].Enumerators) != 2 || dump.Enums[0].Enumerators[1].Value != 2 {
		t.Fatalf("enumerators = %+v", dump.Enums[0].Enumerators)
	}
}

// Round trip: preprocessed output re-parsed under the same options
// yields a structurally equal AST, compared through the JSON dump.
func TestPreprocessedRoundTrip(t *testing.T) {
	src := `
#define SIZE 4
struct point { int x; int y; };
int table[SIZE] = {1, 2, 3, 4};
int sum(struct point *p) { return p->x + p->y; }
`
	s := New()
	defer s.Close()

	path := writeSource(t, src)
	tok, err := s.Preprocess(path)
	if err != nil {
		t.Fatal(err)
	}

	var pretty bytes.Buffer
	OutputPreprocessed(&pretty, tok)

	prog1, err := s.ParseTokens(tok)
	if err != nil {
		t.Fatal(err)
	}

	s2 := New()
	defer s2.Close()
	prog2, err := s2.ParseFile(writeSource(t, pretty.String()))
	if err != nil {
		t.Fatal(err)
	}

	var j1, j2 bytes.Buffer
	if err := OutputJSON(&j1, prog1); err != nil {
		t.Fatal(err)
	}
	if err := OutputJSON(&j2, prog2); err != nil {
		t.Fatal(err)
	}

	// Positions differ between the two sources; strip them before
	// comparing.
	strip := func(b []byte) string {
		var lines []string
		for _, line := range strings.Split(string(b), "\n") {
			if strings.Contains(line, "\"file\"") || strings.Contains(line, "\"line\"") {
				continue
			}
			lines = append(lines, line)
		}
		return strings.Join(lines, "\n")
	}
	if strip(j1.Bytes()) != strip(j2.Bytes()) {
		t.Fatalf("round trip mismatch:\n%s\n----\n%s", j1.String(), j2.String())
	}
}

func TestPrintTokens(t *testing.T) {
	s := New()
	defer s.Close()

	tok, err := s.Preprocess(writeSource(t, "int x;"))
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	PrintTokens(&buf, tok)

	out := buf.String()
	if !strings.Contains(out, "keyword:int") || !strings.Contains(out, "ident:x") {
		t.Fatalf("token dump:\n%s", out)
	}
}

func TestPrintAST(t *testing.T) {
	s := New()
	defer s.Close()

	prog, err := s.ParseFile(writeSource(t, "int g = 2; int main(void) { return g; }"))
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	PrintAST(&buf, prog)

	out := buf.String()
	if !strings.Contains(out, "(function main") {
		t.Fatalf("AST dump missing function:\n%s", out)
	}
	if !strings.Contains(out, "(variable g") {
		t.Fatalf("AST dump missing variable:\n%s", out)
	}
	if !strings.Contains(out, "(return") {
		t.Fatalf("AST dump missing return:\n%s", out)
	}
}

func TestErrorIntrospection(t *testing.T) {
	s := New()
	defer s.Close()

	_, err := s.ParseFile(writeSource(t, "int main(void) { return undefined_thing; }"))
	if err != nil {
		t.Fatal(err)
	}
	if !s.HasErrors() || s.ErrorCount() != 1 {
		t.Fatalf("errors = %d, want 1", s.ErrorCount())
	}

	var buf bytes.Buffer
	s.PrintAllErrors(&buf)
	line := strings.TrimSpace(buf.String())
	// file:line:col: severity: message
	parts := strings.SplitN(line, ":", 5)
	if len(parts) != 5 {
		t.Fatalf("diagnostic shape wrong: %q", line)
	}
	if strings.TrimSpace(parts[3]) != "error" {
		t.Fatalf("severity field = %q", parts[3])
	}

	s.ClearErrors()
	if s.HasErrors() || s.ErrorCount() != 0 {
		t.Fatal("ClearErrors did not clear")
	}
}

func TestWarningsAsErrors(t *testing.T) {
	s := New()
	defer s.Close()
	s.WarningsAsErrors(true)

	_, err := s.Preprocess(writeSource(t, "#warning watch out\nint x;"))
	if err != nil {
		t.Fatal(err)
	}
	if !s.HasErrors() {
		t.Fatal("warning not promoted to error")
	}
}

func TestDefineFromAPI(t *testing.T) {
	s := New()
	defer s.Close()
	s.Define("VALUE", "42")
	s.Define("FLAG", "") // defaults to 1

	prog, err := s.ParseFile(writeSource(t, `
#if FLAG
int x[VALUE];
#endif`))
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := OutputJSON(&buf, prog); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "\"array_len\": 42") {
		t.Fatalf("define not applied:\n%s", buf.String())
	}
}

func TestSessionLinkTwoUnits(t *testing.T) {
	s := New()
	defer s.Close()

	prog1, err := s.ParseFile(writeSource(t, "extern int shared; int get(void);"))
	if err != nil {
		t.Fatal(err)
	}
	prog2, err := s.ParseFile(writeSource(t, "int shared = 3; int get(void) { return shared; }"))
	if err != nil {
		t.Fatal(err)
	}

	merged, err := s.Link(prog1, prog2)
	if err != nil {
		t.Fatal(err)
	}
	if s.HasErrors() {
		var buf bytes.Buffer
		s.PrintAllErrors(&buf)
		t.Fatalf("link errors:\n%s", buf.String())
	}

	var sharedDef bool
	for _, v := range merged {
		if v.Name == "shared" && v.IsDefinition && len(v.InitData) == 4 {
			sharedDef = true
		}
	}
	if !sharedDef {
		t.Fatal("linked output lost the definition of shared")
	}
}

func TestStdHeaderParse(t *testing.T) {
	s := New()
	defer s.Close()

	src := `
#include <stdint.h>
#include <stddef.h>
uint32_t checksum(const uint8_t *data, size_t len);
`
	prog, err := s.ParseFile(writeSource(t, src))
	if err != nil {
		t.Fatal(err)
	}
	if s.HasErrors() {
		var buf bytes.Buffer
		s.PrintAllErrors(&buf)
		t.Fatalf("errors:\n%s", buf.String())
	}

	var buf bytes.Buffer
	if err := OutputJSON(&buf, prog); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "\"checksum\"") {
		t.Fatal("declaration from std headers missing")
	}
}
