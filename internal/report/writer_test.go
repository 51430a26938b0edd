// ABOUTME: Unit tests for the report file writer: sequencing, dir creation, client id validation.
package report

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteSequencesPerClient(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root)

	p0, err := w.Write("alpha", []byte("<r>0</r>"))
	if err != nil {
		t.Fatalf("write 0: %v", err)
	}
	p1, err := w.Write("alpha", []byte("<r>1</r>"))
	if err != nil {
		t.Fatalf("write 1: %v", err)
	}

	if want := filepath.Join(root, "alpha", "report-0.xml"); p0 != want {
		t.Errorf("first path = %q, want %q", p0, want)
	}
	if want := filepath.Join(root, "alpha", "report-1.xml"); p1 != want {
		t.Errorf("second path = %q, want %q", p1, want)
	}

	data, err := os.ReadFile(p1)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "<r>1</r>" {
		t.Errorf("content = %q", data)
	}
}

func TestWriteSkipsExistingFiles(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root)

	dir := filepath.Join(root, "beta")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		t.Fatal(err)
	}
	// A leftover report-0.xml from an earlier daemon lifetime.
	if err := os.WriteFile(filepath.Join(dir, "report-0.xml"), []byte("old"), 0o640); err != nil {
		t.Fatal(err)
	}

	p, err := w.Write("beta", []byte("new"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if want := filepath.Join(dir, "report-1.xml"); p != want {
		t.Errorf("path = %q, want %q", p, want)
	}
	old, _ := os.ReadFile(filepath.Join(dir, "report-0.xml"))
	if string(old) != "old" {
		t.Error("existing report overwritten")
	}
}

func TestWriteRejectsPathologicalClientIDs(t *testing.T) {
	w := NewWriter(t.TempDir())
	for _, id := range []string{"", "..", "a/b", `a\b`, "."} {
		if _, err := w.Write(id, []byte("x")); err == nil {
			t.Errorf("client id %q accepted", id)
		}
	}
}

func TestClientsGetSeparateDirectories(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root)

	pa, err := w.Write("alpha", []byte("a"))
	if err != nil {
		t.Fatal(err)
	}
	pb, err := w.Write("beta", []byte("b"))
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Dir(pa) == filepath.Dir(pb) {
		t.Errorf("clients share directory %q", filepath.Dir(pa))
	}
}
