package utils

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAtomicWriteJSON_ReplacesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "registry.json")
	if err := os.WriteFile(path, []byte(`{"old":true}`), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := AtomicWriteJSON(path, map[string]int{"nodes": 3}); err != nil {
		t.Fatalf("AtomicWriteJSON: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]int
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["nodes"] != 3 {
		t.Errorf("unexpected content: %s", data)
	}

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestAtomicWriteJSON_MissingDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "registry.json")
	if err := AtomicWriteJSON(path, struct{}{}); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestEnsureDirs(t *testing.T) {
	base := t.TempDir()
	a := filepath.Join(base, "a", "b")
	if err := EnsureDirs(a, ""); err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}
	if fi, err := os.Stat(a); err != nil || !fi.IsDir() {
		t.Fatalf("expected dir %s", a)
	}
}

func TestFileDigest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bin")
	if err := os.WriteFile(path, []byte("hello"), 0o600); err != nil {
		t.Fatal(err)
	}
	d, err := FileDigest(path)
	if err != nil {
		t.Fatalf("FileDigest: %v", err)
	}
	const want = "sha256:2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	if d.String() != want {
		t.Errorf("digest = %s, want %s", d, want)
	}
	if _, err := FileDigest(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestDirSize(t *testing.T) {
	dir := t.TempDir()
	_ = os.WriteFile(filepath.Join(dir, "a"), make([]byte, 100), 0o600)
	_ = os.MkdirAll(filepath.Join(dir, "sub"), 0o750)
	_ = os.WriteFile(filepath.Join(dir, "sub", "b"), make([]byte, 50), 0o600)
	if got := DirSize(dir); got != 150 {
		t.Errorf("DirSize = %d, want 150", got)
	}
	if got := DirSize(filepath.Join(dir, "nope")); got != 0 {
		t.Errorf("DirSize(missing) = %d, want 0", got)
	}
}
