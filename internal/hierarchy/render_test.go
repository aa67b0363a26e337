package hierarchy

import (
	"strings"
	"testing"
	"time"

	"github.com/taji/gm-kit/internal/callout"
	"github.com/taji/gm-kit/internal/docmeta"
	"github.com/taji/gm-kit/internal/images"
	"github.com/taji/gm-kit/internal/sig"
)

func testRegistry(t *testing.T) *sig.Registry {
	t.Helper()
	r := sig.NewRegistry()
	r.Intern("Helvetica", 24, 700, "normal", 1).Label = sig.LabelH1   // sig001
	r.Intern("Helvetica", 18, 700, "normal", 1).Label = sig.LabelH2   // sig002
	r.Intern("Helvetica", 14, 700, "normal", 2).Label = sig.LabelH3   // sig003
	r.Intern("Times", 10, 400, "normal", 1).Label = sig.LabelBody     // sig004
	r.Intern("Times", 10, 400, "italic", 3).Label = sig.LabelCalloutGM // sig005
	r.Intern("Courier", 9, 400, "normal", 4).Label = sig.LabelCode    // sig006
	r.Intern("Times", 7, 400, "normal", 1).Label = sig.LabelSkip      // sig007
	return r
}

func render(t *testing.T, reg *sig.Registry, cfg callout.Config, text string) string {
	t.Helper()
	r := &renderer{reg: reg, cfg: cfg, keywords: callout.Keywords(nil)}
	return r.Render(text)
}

func TestRenderHeadingsAndBody(t *testing.T) {
	reg := testRegistry(t)
	in := strings.Join([]string{
		"«sig001:The Haunted Lighthouse»",
		"",
		"«sig002:Chapter One»",
		"«sig004:The keeper vanished.»«sig007:17»",
	}, "\n")
	got := render(t, reg, nil, in)
	if !strings.Contains(got, "# The Haunted Lighthouse") {
		t.Fatalf("missing H1:\n%s", got)
	}
	if !strings.Contains(got, "## Chapter One") {
		t.Fatalf("missing H2:\n%s", got)
	}
	if !strings.Contains(got, "The keeper vanished.") {
		t.Fatalf("missing body:\n%s", got)
	}
	if strings.Contains(got, "17") {
		t.Fatalf("skip label leaked page chrome:\n%s", got)
	}
	if strings.Contains(got, "«") {
		t.Fatalf("markers leaked:\n%s", got)
	}
}

func TestRenderCalloutFromSignature(t *testing.T) {
	reg := testRegistry(t)
	in := strings.Join([]string{
		"«sig005:Keeper's Note: the tide tables lie.»",
		"«sig005:Do not trust them.»",
		"«sig004:Back to normal prose.»",
	}, "\n")
	got := render(t, reg, nil, in)
	lines := strings.Split(got, "\n")
	if lines[0] != "> **Keeper's Note:** the tide tables lie." {
		t.Fatalf("keyword line: %q", lines[0])
	}
	if lines[1] != "> Do not trust them." {
		t.Fatalf("continuation: %q", lines[1])
	}
	if strings.HasPrefix(lines[2], ">") {
		t.Fatalf("signature callout did not end at body marker: %q", lines[2])
	}
}

func TestRenderCalloutRange(t *testing.T) {
	reg := testRegistry(t)
	cfg := callout.Config{{StartText: "Keeper's Note:", EndText: "End of Note", Label: "callout_gm"}}
	in := strings.Join([]string{
		"«sig004:Keeper's Note: the light goes out at midnight.»",
		"«sig004:Every body line until the end text stays quoted.»",
		"«sig004:End of Note»",
		"«sig004:Plain paragraph again.»",
	}, "\n")
	got := render(t, reg, cfg, in)
	lines := strings.Split(got, "\n")
	for i := 0; i < 3; i++ {
		if !strings.HasPrefix(lines[i], ">") {
			t.Fatalf("line %d not quoted: %q", i, lines[i])
		}
	}
	if strings.HasPrefix(lines[3], ">") {
		t.Fatalf("range callout did not close: %q", lines[3])
	}
}

func TestRenderCalloutEndsAtHeading(t *testing.T) {
	reg := testRegistry(t)
	cfg := callout.Config{{StartText: "Keeper's Note:", EndText: "never-matched"}}
	in := strings.Join([]string{
		"«sig004:Keeper's Note: unfinished box»",
		"«sig003:Next Section»",
		"«sig004:prose»",
	}, "\n")
	got := render(t, reg, cfg, in)
	if !strings.Contains(got, "### Next Section") {
		t.Fatalf("heading lost:\n%s", got)
	}
	for _, line := range strings.Split(got, "\n") {
		if strings.Contains(line, "prose") && strings.HasPrefix(line, ">") {
			t.Fatalf("callout survived a heading: %q", line)
		}
	}
}

func TestRenderCodeBlocks(t *testing.T) {
	reg := testRegistry(t)
	in := "«sig006:roll 1d6»"
	got := render(t, reg, nil, in)
	if !strings.Contains(got, "`roll 1d6`") {
		t.Fatalf("inline code:\n%s", got)
	}
	in = "«sig006:roll 1d6»\n«sig006:on a 6, flee»"
	got = render(t, reg, nil, in)
	if !strings.Contains(got, "```\nroll 1d6\non a 6, flee\n```") {
		t.Fatalf("fenced block:\n%s", got)
	}
}

func TestSplitEmbeddedHeadings(t *testing.T) {
	reg := testRegistry(t)
	reg.Get("sig003").EmbeddedHeading = true
	in := "«sig004:The corridor ends here. »«sig003:The Cellar»"
	got := SplitEmbeddedHeadings(in, reg)
	lines := strings.Split(got, "\n")
	if len(lines) != 2 {
		t.Fatalf("want 2 lines, got %d: %q", len(lines), got)
	}
	if !strings.Contains(lines[1], "sig003") {
		t.Fatalf("heading not on its own line: %q", lines[1])
	}
}

func TestEnforceSingleH1Demotes(t *testing.T) {
	in := strings.Join([]string{
		"# Title",
		"## Part One",
		"# Another Top",
		"## Its Child",
		"### Deeper",
	}, "\n")
	got := EnforceSingleH1(in, "fallback")
	lines := strings.Split(got, "\n")
	if lines[0] != "# Title" {
		t.Fatalf("first H1 changed: %q", lines[0])
	}
	if lines[2] != "## Another Top" {
		t.Fatalf("second H1 not demoted: %q", lines[2])
	}
	if lines[3] != "### Its Child" {
		t.Fatalf("child not cascaded: %q", lines[3])
	}
	if lines[4] != "#### Deeper" {
		t.Fatalf("grandchild not cascaded: %q", lines[4])
	}
	if n := strings.Count("\n"+got+"\n", "\n# "); n != 1 {
		t.Fatalf("H1 count %d", n)
	}
}

func TestEnforceSingleH1NoSkips(t *testing.T) {
	in := "# Title\n#### Way Too Deep"
	got := EnforceSingleH1(in, "fallback")
	if !strings.Contains(got, "## Way Too Deep") {
		t.Fatalf("level skip survived:\n%s", got)
	}
}

func TestEnforceSingleH1SynthesizesTitle(t *testing.T) {
	got := EnforceSingleH1("## Only Section\nbody", "The Book")
	if !strings.HasPrefix(got, "# The Book\n") {
		t.Fatalf("no synthesized H1:\n%s", got)
	}
	if n := strings.Count("\n"+got+"\n", "\n# "); n != 1 {
		t.Fatalf("H1 count %d", n)
	}
}

func TestEnforceSingleH1IgnoresFences(t *testing.T) {
	in := "# Title\n```\n# not a heading\n```\nbody"
	got := EnforceSingleH1(in, "x")
	if !strings.Contains(got, "# not a heading") {
		t.Fatalf("fence content rewritten:\n%s", got)
	}
}

func TestInsertImageRefs(t *testing.T) {
	manifest := []images.ManifestEntry{
		{Page: 2, Filename: "page002_img01.png", Extension: "png"},
		{Page: 1, Filename: "page001_img01.jpg", Extension: "jpg"},
	}
	in := "<!-- page 1 -->\ntext one\n<!-- page 2 -->\ntext two"
	got, placed := InsertImageRefs(in, manifest)
	if placed != 2 {
		t.Fatalf("placed %d", placed)
	}
	if strings.Contains(got, "<!-- page") {
		t.Fatalf("page comments survived:\n%s", got)
	}
	lines := strings.Split(got, "\n")
	if lines[0] != "<!-- ![description](images/page001_img01.jpg) -->" {
		t.Fatalf("page 1 image: %q", lines[0])
	}
	if !strings.Contains(got, "images/page002_img01.png") {
		t.Fatalf("page 2 image missing:\n%s", got)
	}
}

func TestGuardSensitiveText(t *testing.T) {
	in := "body with <div> tag\n# Real Heading\n#fake heading line"
	got := GuardSensitiveText(in)
	if !strings.Contains(got, "`<div>`") {
		t.Fatalf("html tag unguarded:\n%s", got)
	}
	if !strings.Contains(got, "# Real Heading") {
		t.Fatalf("real heading damaged:\n%s", got)
	}
	if !strings.Contains(got, "\\#fake") {
		t.Fatalf("heading-like body line unescaped:\n%s", got)
	}
}

func TestCopyrightBlockFallbacks(t *testing.T) {
	meta := &docmeta.Metadata{}
	got := CopyrightBlock(meta, "book.pdf", time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	for _, want := range []string{
		"Title: Unknown",
		"Author/Publisher: Unknown",
		"Copyright: See original publication",
		"Source: book.pdf",
		"Converted: 2026-08-01T12:00:00Z",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("missing %q:\n%s", want, got)
		}
	}
	if !strings.HasPrefix(got, "<!--\n") {
		t.Fatalf("not an HTML comment:\n%s", got)
	}
}

func TestGuillemetRoundTrip(t *testing.T) {
	reg := testRegistry(t)
	src := `he said \«bonjour\» warmly`
	in := "«sig004:" + src + "»"
	rendered := render(t, reg, nil, in)
	// Phase 8 restores the escapes after all marker processing.
	final := strings.ReplaceAll(strings.ReplaceAll(rendered, `\«`, "«"), `\»`, "»")
	if !strings.Contains(final, "he said «bonjour» warmly") {
		t.Fatalf("guillemets lost: %q", final)
	}
}
