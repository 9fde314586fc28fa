package env

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "vars.env")
	content := "# comment\nAPI_KEY = secret\n\nDB_HOST=localhost\nmalformed line\n"
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	vars, err := LoadFile(p)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(vars) != 2 {
		t.Fatalf("got %d vars, want 2: %v", len(vars), vars)
	}
	if vars["API_KEY"] != "secret" {
		t.Errorf("API_KEY = %q, want trimmed value", vars["API_KEY"])
	}
	if vars["DB_HOST"] != "localhost" {
		t.Errorf("DB_HOST = %q", vars["DB_HOST"])
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.env")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestComposePrecedence(t *testing.T) {
	p := filepath.Join(t.TempDir(), "base.env")
	if err := os.WriteFile(p, []byte("SHARED=file\nFILE_ONLY=f\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	out, err := Compose(false, []string{p}, []string{"SHARED=literal", "EXTRA=e"})
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	m := make(map[string]string, len(out))
	for _, kv := range out {
		k, v, _ := strings.Cut(kv, "=")
		m[k] = v
	}
	if m["SHARED"] != "literal" {
		t.Fatalf("literal entries must win over files: %q", m["SHARED"])
	}
	if m["FILE_ONLY"] != "f" || m["EXTRA"] != "e" {
		t.Fatalf("composition lost entries: %v", m)
	}
}

func TestComposeBadFileFails(t *testing.T) {
	if _, err := Compose(false, []string{"/nonexistent/x.env"}, nil); err == nil {
		t.Fatal("expected error for unreadable env file")
	}
}

func TestMergePrecedence(t *testing.T) {
	e := New()
	e.env = Var{"BASE": "os", "SHARED": "os"}
	e.Set("SHARED", "global")
	e.Set("GLOBAL", "g")
	out := e.Merge([]string{"SHARED=stage", "STAGE_ONLY=${GLOBAL}-x"})
	m := make(map[string]string, len(out))
	for _, kv := range out {
		i := strings.IndexByte(kv, '=')
		m[kv[:i]] = kv[i+1:]
	}
	if m["BASE"] != "os" {
		t.Fatalf("base lost: %q", m["BASE"])
	}
	if m["SHARED"] != "stage" {
		t.Fatalf("per-stage must win: %q", m["SHARED"])
	}
	if m["STAGE_ONLY"] != "g-x" {
		t.Fatalf("expansion failed: %q", m["STAGE_ONLY"])
	}
}
