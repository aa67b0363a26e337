package diagnose

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/taji/gm-kit/internal/state"
)

func TestWriteBundle(t *testing.T) {
	dir := t.TempDir()
	st := state.New(filepath.Join(dir, "book.pdf"), dir, state.Config{})
	st.SetError(state.ErrorRecord{Phase: 4, Code: "PDF_ERROR", Message: "ERROR: Text extraction failed"})
	pr := st.Result(4, "text extraction with markers")
	pr.OutputFile = "book-phase4.md"
	if err := st.Save(); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"metadata.json", "book-phase4.md"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	path, err := writeBundle(dir, st, "0123456789abcdef")
	if err != nil {
		t.Fatal(err)
	}
	zr, err := zip.OpenReader(path)
	if err != nil {
		t.Fatal(err)
	}
	defer zr.Close()

	names := make(map[string]bool)
	for _, f := range zr.File {
		names[f.Name] = true
	}
	for _, want := range []string{"bundle-id.txt", state.FileName, "metadata.json", "book-phase4.md"} {
		if !names[want] {
			t.Fatalf("bundle missing %s (have %v)", want, names)
		}
	}
}
