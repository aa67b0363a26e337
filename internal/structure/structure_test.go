package structure

import (
	"strings"
	"testing"

	"github.com/taji/gm-kit/internal/callout"
	"github.com/taji/gm-kit/internal/sig"
)

func testRegistry() *sig.Registry {
	r := sig.NewRegistry()
	r.Intern("Helvetica", 18, 700, "normal", 1).Label = sig.LabelH2 // sig001
	r.Intern("Times", 10, 400, "normal", 1).Label = sig.LabelBody   // sig002
	r.Intern("Times", 10, 400, "italic", 2)                        // sig003, unlabeled
	return r
}

func TestDetectCalloutsRange(t *testing.T) {
	reg := testRegistry()
	cfg := callout.Config{{StartText: "Keeper's Note:", EndText: "End of Note", Label: "callout_gm"}}
	text := strings.Join([]string{
		"«sig002:ordinary prose»",
		"«sig003:Keeper's Note: beware the fog»",
		"«sig003:it hides the reef»",
		"«sig003:End of Note»",
		"«sig002:more prose»",
	}, "\n")

	n := DetectCallouts(text, reg, cfg, callout.Keywords(nil))
	if n == 0 {
		t.Fatal("nothing labeled")
	}
	if got := reg.Get("sig003").Label; got != sig.LabelCalloutGM {
		t.Fatalf("sig003 labeled %q", got)
	}
}

func TestDetectCalloutsKeyword(t *testing.T) {
	reg := testRegistry()
	text := "«sig003:Read Aloud: the door creaks open»"
	DetectCallouts(text, reg, nil, callout.Keywords(nil))
	if got := reg.Get("sig003").Label; got != sig.LabelCalloutRead {
		t.Fatalf("sig003 labeled %q", got)
	}
}

func TestDetectCalloutsUserKeyword(t *testing.T) {
	reg := testRegistry()
	text := "«sig003:Referee Only: secret stuff»"
	DetectCallouts(text, reg, nil, callout.Keywords([]string{"Referee Only:"}))
	if got := reg.Get("sig003").Label; got != sig.LabelCalloutGM {
		t.Fatalf("sig003 labeled %q", got)
	}
}

func TestDetectCalloutsNeverRelabelsHeadings(t *testing.T) {
	reg := testRegistry()
	text := "«sig001:GM Note: a heading that quotes a note»"
	DetectCallouts(text, reg, nil, callout.Keywords(nil))
	if got := reg.Get("sig001").Label; got != sig.LabelH2 {
		t.Fatalf("heading relabeled to %q", got)
	}
}

func TestValidateHeadingMapGap(t *testing.T) {
	reg := sig.NewRegistry()
	reg.Intern("A", 18, 700, "normal", 1).Label = sig.LabelH3
	warnings := ValidateHeadingMap(reg)
	if len(warnings) == 0 {
		t.Fatal("H3-without-H2 gap not flagged")
	}
	if !strings.Contains(warnings[0], "WARNING:") {
		t.Fatalf("warning format: %q", warnings[0])
	}
}

func TestValidateHeadingMapDuplicateH1(t *testing.T) {
	reg := sig.NewRegistry()
	reg.Intern("A", 24, 700, "normal", 1).Label = sig.LabelH1
	reg.Intern("B", 22, 700, "normal", 1).Label = sig.LabelH1
	warnings := ValidateHeadingMap(reg)
	if len(warnings) == 0 {
		t.Fatal("duplicate H1 not flagged")
	}
}

func TestMarkEmbeddedHeadings(t *testing.T) {
	reg := testRegistry()
	text := strings.Join([]string{
		"«sig002:prose before »«sig001:The Cellar»",
		"«sig001:A Normal Heading Line»",
	}, "\n")
	n := MarkEmbeddedHeadings(text, reg)
	if n != 1 {
		t.Fatalf("marked %d, want 1", n)
	}
	if !reg.Get("sig001").EmbeddedHeading {
		t.Fatal("flag not set")
	}
}

func TestMarkEmbeddedHeadingsIgnoresLeadingHeading(t *testing.T) {
	reg := testRegistry()
	text := "«sig001:Plain Heading»«sig002: trailing body»"
	if n := MarkEmbeddedHeadings(text, reg); n != 0 {
		t.Fatalf("leading heading flagged as embedded (n=%d)", n)
	}
}
