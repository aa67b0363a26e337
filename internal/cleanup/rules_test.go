package cleanup

import (
	"strings"
	"testing"

	"github.com/taji/gm-kit/internal/marker"
)

func TestGutterWhitespace(t *testing.T) {
	in := "«sig001:col one     col two»   \n"
	got := GutterWhitespace(in)
	if !strings.Contains(got, "«sig001:col one col two»") {
		t.Fatalf("got %q", got)
	}
	if strings.HasSuffix(strings.Split(got, "\n")[0], " ") {
		t.Fatal("trailing spaces survived")
	}
}

func TestDehyphenateJoinsSplitWord(t *testing.T) {
	in := "«sig002:the investi-»\n«sig002:gator arrived»"
	got := Dehyphenate(in)
	if got != "«sig002:the investigator arrived»" {
		t.Fatalf("got %q", got)
	}
}

func TestDehyphenateKeepsCompounds(t *testing.T) {
	in := "«sig002:the well-»\n«sig002:Known problem»"
	got := Dehyphenate(in)
	if !strings.Contains(got, "well-") {
		t.Fatalf("compound hyphen lost: %q", got)
	}
}

func TestDehyphenateAcrossSignatures(t *testing.T) {
	// Different signatures stay distinct markers; the hyphen still goes.
	in := "«sig001:investi-»\n«sig002:gator»"
	got := Dehyphenate(in)
	if !strings.Contains(got, "«sig001:investi»") || !strings.Contains(got, "«sig002:gator»") {
		t.Fatalf("got %q", got)
	}
	if strings.Contains(got, "\n") {
		t.Fatalf("lines not joined: %q", got)
	}
}

func TestFlowLineBreaksJoinsMidSentence(t *testing.T) {
	in := "«sig001:The lighthouse keeper had been»\n«sig001:missing for three days»"
	got := FlowLineBreaks(in)
	if strings.Contains(got, "\n") {
		t.Fatalf("mid-sentence break survived: %q", got)
	}
	if !strings.Contains(got, "been missing") {
		t.Fatalf("join lost space: %q", got)
	}
}

func TestFlowLineBreaksKeepsStructure(t *testing.T) {
	in := "«sig001:The end.»\n«sig001:new paragraph»"
	if got := FlowLineBreaks(in); !strings.Contains(got, "\n") {
		t.Fatalf("sentence boundary joined: %q", got)
	}
	list := "«sig001:items follow»\n«sig001:- first item»"
	if got := FlowLineBreaks(list); !strings.Contains(got, "\n") {
		t.Fatalf("list item joined: %q", got)
	}
}

func TestRepairUnicode(t *testing.T) {
	in := "«sig001:donâ€™t ﬁght»"
	got := RepairUnicode(in)
	if got != "«sig001:don't fight»" {
		t.Fatalf("got %q", got)
	}
}

func TestRepairUnicodeInvalidBytes(t *testing.T) {
	in := "«sig001:bad \xff byte»"
	got := RepairUnicode(in)
	if !strings.Contains(got, "�") {
		t.Fatalf("invalid byte not replaced: %q", got)
	}
}

func TestNormalizePunctuation(t *testing.T) {
	in := "«sig001:“It’s here” — now…»"
	got := NormalizePunctuation(in)
	want := "«sig001:\"It's here\" -- now...»"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestCollapseBlankLines(t *testing.T) {
	in := "a\n\n\n\n\nb"
	if got := CollapseBlankLines(in); got != "a\n\n\nb" {
		t.Fatalf("got %q", got)
	}
}

func TestNormalizeBullets(t *testing.T) {
	in := "«sig001:• first point»"
	got := NormalizeBullets(in)
	if got != "«sig001:- first point»" {
		t.Fatalf("got %q", got)
	}
}

func TestRestoreSpaces(t *testing.T) {
	in := "«sig001:the keeperVanished without»"
	got := RestoreSpaces(in)
	if !strings.Contains(got, "keeper Vanished") {
		t.Fatalf("got %q", got)
	}
	// Short capitalized joints like names survive.
	name := "«sig001:Angus McGuffin spoke»"
	if got := RestoreSpaces(name); got != name {
		t.Fatalf("name split: %q", got)
	}
}

func TestSplitMergedListItems(t *testing.T) {
	in := "«sig001:1. First clue 2.Second clue 3.Third clue»"
	got, n := SplitMergedListItems(in)
	if n != 2 {
		t.Fatalf("splits = %d, want 2", n)
	}
	lines := strings.Split(got, "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %d: %q", len(lines), got)
	}
	for _, line := range lines {
		if !strings.HasPrefix(line, "«sig001:") {
			t.Fatalf("split line lost its marker: %q", line)
		}
	}
}

func TestSplitMergedListItemsConservative(t *testing.T) {
	// Out-of-sequence numbers are prose, not a merged list.
	in := "«sig001:1. First clue, see page 9.Continue reading»"
	got, n := SplitMergedListItems(in)
	if n != 0 || got != in {
		t.Fatalf("false positive split: %q (n=%d)", got, n)
	}
	// Lines that do not start with a numbered item are untouched.
	in2 := "«sig001:meet at 4.Sharp knives»"
	if got, n := SplitMergedListItems(in2); n != 0 || got != in2 {
		t.Fatalf("non-list line split: %q", got)
	}
}

// Markers must survive both cleanup phases: same ids in order, text
// equal modulo the documented whitespace normalization.
func TestMarkerPreservationAcrossCleanup(t *testing.T) {
	in := strings.Join([]string{
		"«sig001:THE HAUNTED LIGHTHOUSE»",
		"",
		"«sig002:The keeper had been investi-»",
		"«sig002:gating the “strange”   lights»",
		"«sig002:for three days…»",
		"",
		"«sig003:• a clue»",
	}, "\n")

	out := in
	for _, rule := range []func(string) string{
		GutterWhitespace, Dehyphenate, FlowLineBreaks,
		RepairUnicode, NormalizePunctuation, CollapseBlankLines,
		NormalizeBullets, RestoreSpaces, CollapseTokenSpace,
	} {
		out = rule(out)
		if err := marker.Validate(out); err != nil {
			t.Fatalf("marker syntax broken: %v\n%s", err, out)
		}
	}

	wantIDs := []string{"sig001", "sig002", "sig003"}
	var gotIDs []string
	for _, m := range marker.Re.FindAllStringSubmatch(out, -1) {
		if len(gotIDs) == 0 || gotIDs[len(gotIDs)-1] != m[1] {
			gotIDs = append(gotIDs, m[1])
		}
	}
	if len(gotIDs) != len(wantIDs) {
		t.Fatalf("id sequence %v, want %v\n%s", gotIDs, wantIDs, out)
	}
	for i := range wantIDs {
		if gotIDs[i] != wantIDs[i] {
			t.Fatalf("id sequence %v, want %v", gotIDs, wantIDs)
		}
	}
	if !strings.Contains(out, "investigating") {
		t.Fatalf("hyphen join failed: %s", out)
	}
}
