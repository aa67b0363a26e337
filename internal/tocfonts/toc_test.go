package tocfonts

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/taji/gm-kit/internal/pdfread"
)

func TestWriteAndParseTOC(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "toc-extracted.txt")
	entries := []pdfread.OutlineEntry{
		{Level: 1, Title: "Introduction", Page: 3},
		{Level: 2, Title: "The | Lighthouse", Page: 7},
	}
	if err := WriteTOC(path, entries); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "1|Introduction|3\n") {
		t.Fatalf("content:\n%s", data)
	}

	parsed, err := ParseTOC(string(data))
	if err != nil {
		t.Fatal(err)
	}
	if len(parsed) != 2 {
		t.Fatalf("entries %d", len(parsed))
	}
	if parsed[1].Level != 2 || parsed[1].Page != 7 {
		t.Fatalf("entry: %+v", parsed[1])
	}
	if strings.Contains(parsed[1].Title, "|") {
		t.Fatalf("pipe survived in title: %q", parsed[1].Title)
	}
}

func TestParseTOCRejectsMalformed(t *testing.T) {
	for _, bad := range []string{
		"no pipes here",
		"x|Title|3",
		"1|Title|page",
		"1||3",
	} {
		if _, err := ParseTOC(bad); err == nil {
			t.Fatalf("accepted %q", bad)
		}
	}
	if entries, err := ParseTOC("\n\n1|Ok|2\n\n"); err != nil || len(entries) != 1 {
		t.Fatalf("blank lines not ignored: %v %v", entries, err)
	}
}

func TestMergeRuns(t *testing.T) {
	spans := []pdfread.Span{
		{Page: 1, Text: "The", Family: "Helvetica", Size: 18, Weight: 700, Style: "normal"},
		{Page: 1, Text: "Haunted", Family: "Helvetica", Size: 18, Weight: 700, Style: "normal"},
		{Page: 1, Text: "body text", Family: "Times", Size: 10, Weight: 400, Style: "normal"},
		{Page: 1, Text: "bold bit", Family: "Times", Size: 10, Weight: 700, Style: "normal"},
	}
	runs := MergeRuns(spans)
	if len(runs) != 3 {
		t.Fatalf("runs %d, want 3", len(runs))
	}
	if runs[0].Text != "The Haunted" {
		t.Fatalf("merged text %q", runs[0].Text)
	}
	// Weight difference keeps runs apart even at equal family and size.
	if runs[1].Text != "body text" || runs[2].Text != "bold bit" {
		t.Fatalf("weight variants merged: %+v", runs[1:])
	}
}
