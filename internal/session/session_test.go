package session

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDetectSignaturePython(t *testing.T) {
	root := t.TempDir()
	os.WriteFile(filepath.Join(root, "pyproject.toml"), []byte("[project]"), 0644)
	os.WriteFile(filepath.Join(root, "main.py"), []byte("print()"), 0644)
	os.WriteFile(filepath.Join(root, "util.py"), []byte("pass"), 0644)

	sig := DetectSignature(root)
	if !strings.Contains(sig, "pyproject.toml") {
		t.Errorf("signature missing manifest: %s", sig)
	}
	if !strings.Contains(sig, "ext.py") {
		t.Errorf("signature missing dominant extension: %s", sig)
	}
}

func TestDetectSignatureEmptyDir(t *testing.T) {
	if sig := DetectSignature(t.TempDir()); sig != "unknown" {
		t.Errorf("empty dir should be unknown, got %s", sig)
	}
}

func TestDetectSignatureStable(t *testing.T) {
	root := t.TempDir()
	os.WriteFile(filepath.Join(root, "go.mod"), []byte("module x"), 0644)
	os.WriteFile(filepath.Join(root, "a.go"), []byte("package x"), 0644)

	if DetectSignature(root) != DetectSignature(root) {
		t.Error("signature must be deterministic for the same tree")
	}
}

func TestStoreRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir())

	sess := New("abc-123")
	sess.ProjectSignature = "go.mod+ext.go"
	sess.ActivePatterns = []string{"go-project"}
	sess.Metrics.Stages = 3

	if err := store.Save(sess); err != nil {
		t.Fatal(err)
	}

	loaded := store.Load("abc-123")
	if loaded.ProjectSignature != sess.ProjectSignature {
		t.Errorf("lost signature: %s", loaded.ProjectSignature)
	}
	if loaded.Metrics.Stages != 3 {
		t.Errorf("lost metrics: %+v", loaded.Metrics)
	}
}

func TestLoadMissingIsFresh(t *testing.T) {
	store := NewStore(t.TempDir())

	sess := store.Load("never-saved")
	if sess.ID != "never-saved" {
		t.Errorf("fresh session should keep the requested id, got %s", sess.ID)
	}
	if sess.Metrics.Stages != 0 {
		t.Error("fresh session must start zeroed")
	}
}

func TestLoadCorruptIsFresh(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	os.WriteFile(filepath.Join(dir, "bad-id.json"), []byte("{{{"), 0644)

	sess := store.Load("bad-id")
	if sess.ID != "bad-id" || sess.Metrics.Stages != 0 {
		t.Errorf("corrupt file must yield a fresh session, got %+v", sess)
	}
}

func TestNewGeneratesID(t *testing.T) {
	if New("").ID == "" {
		t.Error("expected a generated id")
	}
}

func TestDelete(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	sess := New("gone")
	if err := store.Save(sess); err != nil {
		t.Fatal(err)
	}
	store.Delete("gone")

	if _, err := os.Stat(filepath.Join(dir, "gone.json")); !os.IsNotExist(err) {
		t.Error("session file should be removed")
	}
}

func TestSanitizeID(t *testing.T) {
	store := NewStore(t.TempDir())
	sess := New("../../etc/passwd")
	if err := store.Save(sess); err != nil {
		t.Fatal(err)
	}
	// The write must land inside the store directory.
	entries, _ := os.ReadDir(store.dir)
	if len(entries) != 1 {
		t.Fatalf("expected exactly one file in the store dir, got %d", len(entries))
	}
}
