package cpp

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeEmbedFixture(t *testing.T, data []byte) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "main.c"), []byte("#embed \"data.bin\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestEmbedExpandsToIntegerList(t *testing.T) {
	dir := writeEmbedFixture(t, []byte{1, 2, 3})

	pp := newTestPP()
	pp.InitMacros()
	tok := preprocessFile(t, pp, filepath.Join(dir, "main.c"))
	if got := expandedText(tok); got != "1 , 2 , 3" {
		t.Fatalf("got %q", got)
	}
}

func TestEmbedParameters(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "data.bin"), []byte{10, 20, 30, 40}, 0o644); err != nil {
		t.Fatal(err)
	}
	src := "#embed \"data.bin\" limit(2) prefix(7,) suffix(, 9)\n"
	if err := os.WriteFile(filepath.Join(dir, "main.c"), []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}

	pp := newTestPP()
	pp.InitMacros()
	tok := preprocessFile(t, pp, filepath.Join(dir, "main.c"))
	if got := expandedText(tok); got != "7 , 10 , 20 , 9" {
		t.Fatalf("got %q", got)
	}
}

func TestEmbedIfEmpty(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "data.bin"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	src := "#embed \"data.bin\" if_empty(0)\n"
	if err := os.WriteFile(filepath.Join(dir, "main.c"), []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}

	pp := newTestPP()
	pp.InitMacros()
	tok := preprocessFile(t, pp, filepath.Join(dir, "main.c"))
	if got := expandedText(tok); got != "0" {
		t.Fatalf("got %q", got)
	}
}

// A file over the soft limit embeds fully with one warning; with the
// hard-error mode it errors and embeds nothing.
func TestEmbedSoftAndHardLimit(t *testing.T) {
	data := bytes.Repeat([]byte{7}, 100)
	dir := writeEmbedFixture(t, data)

	pp := newTestPP()
	pp.InitMacros()
	pp.EmbedLimit = 50
	tok := preprocessFile(t, pp, filepath.Join(dir, "main.c"))

	if pp.Diagnostics().WarningCount() != 1 {
		t.Fatalf("warnings = %d, want 1", pp.Diagnostics().WarningCount())
	}
	if pp.Diagnostics().HasErrors() {
		t.Fatal("soft limit must not error")
	}
	if got := len(strings.Split(expandedText(tok), ",")); got != 100 {
		t.Fatalf("embedded %d integers, want 100", got)
	}

	pp2 := newTestPP()
	pp2.InitMacros()
	pp2.EmbedLimit = 50
	pp2.EmbedHardError = true
	tok2 := preprocessFile(t, pp2, filepath.Join(dir, "main.c"))

	if !pp2.Diagnostics().HasErrors() {
		t.Fatal("hard limit did not error")
	}
	if got := expandedText(tok2); got != "" {
		t.Fatalf("hard limit still embedded %q", got)
	}
}
