package fileutil

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestListPDFs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.pdf", "a.PDF", "notes.txt", "c.pdf"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "nested.pdf"), 0o755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}

	got, err := ListPDFs(dir)
	if err != nil {
		t.Fatalf("ListPDFs returned error: %v", err)
	}
	want := []string{"a.PDF", "b.pdf", "c.pdf"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}

	if _, err := ListPDFs(filepath.Join(dir, "missing")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Expected not-exist error, got %v", err)
	}
}

func TestCopyFileReplaces(t *testing.T) {
	src := filepath.Join(t.TempDir(), "a.pdf")
	dst := filepath.Join(t.TempDir(), "out")
	if err := os.WriteFile(src, []byte("first"), 0o644); err != nil {
		t.Fatalf("failed to write source: %v", err)
	}

	target, err := CopyFile(src, dst)
	if err != nil {
		t.Fatalf("CopyFile returned error: %v", err)
	}
	if target != filepath.Join(dst, "a.pdf") {
		t.Fatalf("Unexpected target: %s", target)
	}

	os.WriteFile(src, []byte("second"), 0o644)
	if _, err := CopyFile(src, dst); err != nil {
		t.Fatalf("second CopyFile returned error: %v", err)
	}
	content, _ := os.ReadFile(target)
	if string(content) != "second" {
		t.Fatalf("Expected the copy to be replaced, got %q", content)
	}

	entries, _ := os.ReadDir(dst)
	if len(entries) != 1 {
		t.Fatalf("Expected no temporary files left, got %d entries", len(entries))
	}
}

func TestSafeJoin(t *testing.T) {
	root := t.TempDir()

	tests := map[string]string{
		"batch1":         filepath.Join(root, "batch1"),
		"batch1/sub":     filepath.Join(root, "batch1", "sub"),
		"../../etc":      filepath.Join(root, "etc"),
		"/abs/elsewhere": filepath.Join(root, "abs", "elsewhere"),
		"":               root,
	}
	for rel, want := range tests {
		got, err := SafeJoin(root, rel)
		if err != nil {
			t.Fatalf("SafeJoin(%q) returned error: %v", rel, err)
		}
		if got != want {
			t.Fatalf("SafeJoin(%q): expected %s, got %s", rel, want, got)
		}
	}
}

func TestTrimExt(t *testing.T) {
	if got := TrimExt("booklet.final.pdf"); got != "booklet.final" {
		t.Fatalf("Expected booklet.final, got %s", got)
	}
}
