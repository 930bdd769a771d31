package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFromFile(t *testing.T) {
	raw := `
include-paths:
  - ./include
  - /usr/local/include
system-include-paths:
  - /usr/include
defines:
  DEBUG: "1"
  VERSION: "3"
undefines:
  - NDEBUG
max-errors: 50
werror: true
embed-limit: 10M
embed-hard-limit: true
`
	path := filepath.Join(t.TempDir(), "cast.yaml")
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := FromFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.IncludePaths) != 2 || cfg.IncludePaths[0] != "./include" {
		t.Fatalf("include paths %v", cfg.IncludePaths)
	}
	if cfg.Defines["DEBUG"] != "1" || cfg.Defines["VERSION"] != "3" {
		t.Fatalf("defines %v", cfg.Defines)
	}
	if cfg.MaxErrors != 50 || !cfg.WarningsAsErrors || cfg.EmbedLimit != "10M" || !cfg.EmbedHardLimit {
		t.Fatalf("options %+v", cfg)
	}
}

func TestFromFileRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("no-such-option: true\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := FromFile(path); err == nil {
		t.Fatal("unknown key accepted")
	}
}
