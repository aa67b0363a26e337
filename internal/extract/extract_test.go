package extract

import (
	"strings"
	"testing"

	"github.com/taji/gm-kit/internal/marker"
	"github.com/taji/gm-kit/internal/sig"
	"github.com/taji/gm-kit/internal/tocfonts"
)

func TestPageBreakFormat(t *testing.T) {
	if got := PageBreak(7); got != "<!-- page 7 -->" {
		t.Fatalf("got %q", got)
	}
}

func TestWritePageCoalescesAndBreaks(t *testing.T) {
	reg := sig.NewRegistry()
	runs := []tocfonts.Run{
		{Text: "THE LIGHTHOUSE", Family: "Helvetica", Size: 18, Weight: 700, Style: "normal", Page: 1, Y: 700},
		{Text: "The keeper", Family: "Times", Size: 10, Weight: 400, Style: "normal", Page: 1, Y: 660},
		{Text: "vanished.", Family: "Times", Size: 10, Weight: 400, Style: "normal", Page: 1, Y: 660},
		{Text: "New paragraph.", Family: "Times", Size: 10, Weight: 400, Style: "normal", Page: 1, Y: 600},
	}
	for _, run := range runs {
		reg.Intern(run.Family, run.Size, run.Weight, run.Style, run.Page)
	}

	var b strings.Builder
	writePage(&b, reg, runs)
	got := b.String()

	lines := strings.Split(strings.TrimRight(got, "\n"), "\n")
	if !strings.HasPrefix(lines[0], "«sig001:THE LIGHTHOUSE»") {
		t.Fatalf("heading line: %q", lines[0])
	}
	// Same-signature same-line runs coalesce into one marker.
	if !strings.Contains(got, "«sig002:The keeper vanished.»") {
		t.Fatalf("coalescing failed:\n%s", got)
	}
	// The big vertical gap becomes a paragraph break.
	if !strings.Contains(got, "\n\n«sig002:New paragraph.»") {
		t.Fatalf("paragraph break missing:\n%s", got)
	}
	if err := marker.Validate(got); err != nil {
		t.Fatalf("invalid marker syntax: %v", err)
	}
}

func TestWritePageEscapesGuillemets(t *testing.T) {
	reg := sig.NewRegistry()
	runs := []tocfonts.Run{
		{Text: "say «hello» twice", Family: "Times", Size: 10, Weight: 400, Style: "normal", Page: 1, Y: 700},
	}
	reg.Intern("Times", 10, 400, "normal", 1)

	var b strings.Builder
	writePage(&b, reg, runs)
	got := b.String()
	if !strings.Contains(got, `\«hello\»`) {
		t.Fatalf("guillemets not escaped:\n%s", got)
	}
	m := marker.Re.FindAllStringSubmatch(got, -1)
	if len(m) != 1 {
		t.Fatalf("marker count %d:\n%s", len(m), got)
	}
	if marker.Unescape(m[0][2]) != "say «hello» twice" {
		t.Fatalf("text %q", m[0][2])
	}
}

func TestColumnSuspect(t *testing.T) {
	single := []tocfonts.Run{
		{Y: 700, Size: 10}, {Y: 680, Size: 10}, {Y: 660, Size: 10}, {Y: 640, Size: 10},
	}
	if columnSuspect(single) {
		t.Fatal("single column flagged")
	}
	twoCol := []tocfonts.Run{
		{Y: 700, Size: 10}, {Y: 400, Size: 10}, {Y: 100, Size: 10},
		{Y: 700, Size: 10}, {Y: 400, Size: 10}, {Y: 100, Size: 10},
		{Y: 700, Size: 10}, {Y: 400, Size: 10}, {Y: 100, Size: 10},
		{Y: 700, Size: 10},
	}
	if !columnSuspect(twoCol) {
		t.Fatal("two-column page not flagged")
	}
}
