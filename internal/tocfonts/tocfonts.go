// Package tocfonts implements phase 3: extract the table of contents,
// build the font signature registry from every text span, and pre-fill
// structural labels for the review in phase 7.
package tocfonts

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/taji/gm-kit/internal/docmeta"
	"github.com/taji/gm-kit/internal/pdfread"
	"github.com/taji/gm-kit/internal/phase"
	"github.com/taji/gm-kit/internal/sig"
)

// TOCFileName is the extracted outline artifact.
const TOCFileName = "toc-extracted.txt"

type Phase struct{}

func New() *Phase { return &Phase{} }

func (*Phase) Num() int     { return 3 }
func (*Phase) Name() string { return "TOC and font extraction" }

func (*Phase) OutputFile(env *phase.Env) string { return sig.MappingFileName }

func (*Phase) Steps(env *phase.Env) []phase.Step {
	return []phase.Step{
		{ID: "3.1", Description: "extract embedded outline", Run: stepOutline},
		{ID: "3.2", Description: "agent TOC reconstruction", Run: stepAgentTOC},
		{ID: "3.3", Description: "build font signature registry", Run: stepSignatures},
		{ID: "3.4", Description: "infer structural labels", Run: stepInfer},
	}
}

func openPreprocessed(env *phase.Env) (*pdfread.Reader, error) {
	r, err := pdfread.Open(env.PreprocessedPDF())
	if err != nil {
		return nil, phase.Errf(phase.ExitPDFError, err, "ERROR: Cannot open text-only PDF", "re-run phase 2")
	}
	return r, nil
}

func stepOutline(ctx context.Context, env *phase.Env) (*phase.StepOutput, error) {
	r, err := pdfread.Open(env.PDFPath)
	if err != nil {
		return nil, phase.Errf(phase.ExitPDFError, err, phase.MsgCannotOpenPDF, "check the source file")
	}
	defer r.Close()

	entries, err := r.Outline()
	if err != nil {
		return nil, phase.Errf(phase.ExitPDFError, err, "ERROR: Outline extraction failed", "re-run phase 3")
	}
	if len(entries) == 0 {
		// Defer to the agent step; it may reconstruct the TOC from a
		// printed contents page.
		return phase.Warn(phase.MsgNoTOCWarning), nil
	}
	if err := WriteTOC(env.Artifact(TOCFileName), entries); err != nil {
		return nil, err
	}
	return &phase.StepOutput{OutputFile: TOCFileName, Message: fmt.Sprintf("%d entries", len(entries))}, nil
}

func stepAgentTOC(ctx context.Context, env *phase.Env) (*phase.StepOutput, error) {
	if _, err := os.Stat(env.Artifact(TOCFileName)); err == nil {
		return phase.Skipped("outline already extracted"), nil
	}
	resp, ok, err := phase.AgentStep(ctx, env.Agent, "3.2",
		"Reconstruct the table of contents as level|title|page lines.",
		func(s string) error {
			_, err := ParseTOC(s)
			return err
		},
		phase.LowCriticality)
	if err != nil {
		return nil, err
	}
	if !ok {
		return phase.Skipped("no agent collaborator; continuing without TOC"), nil
	}
	if err := os.WriteFile(env.Artifact(TOCFileName), []byte(resp), 0644); err != nil {
		return nil, err
	}
	return &phase.StepOutput{OutputFile: TOCFileName}, nil
}

func stepSignatures(ctx context.Context, env *phase.Env) (*phase.StepOutput, error) {
	r, err := openPreprocessed(env)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	reg := sig.NewRegistry()
	for pg := 1; pg <= r.PageCount(); pg++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		spans, err := r.Spans(pg)
		if err != nil {
			env.Log.Debug("span read failed", "page", pg, "err", err)
			continue
		}
		for _, run := range MergeRuns(spans) {
			s := reg.Intern(run.Family, run.Size, run.Weight, run.Style, pg)
			// Intern counts one use per merged run.
			reg.RecordSample(s.ID, run.Text)
		}
	}
	if reg.Len() == 0 {
		return nil, phase.Errf(phase.ExitPDFError, nil, "ERROR: Text extraction empty - no spans found", "the PDF may be malformed")
	}
	if err := reg.Save(env.OutputDir); err != nil {
		return nil, err
	}
	return &phase.StepOutput{
		OutputFile: sig.MappingFileName,
		Message:    fmt.Sprintf("%d signatures", reg.Len()),
	}, nil
}

func stepInfer(ctx context.Context, env *phase.Env) (*phase.StepOutput, error) {
	reg, err := sig.Load(env.OutputDir)
	if err != nil {
		return nil, err
	}
	meta, err := docmeta.Load(env.OutputDir)
	if err != nil {
		return nil, err
	}
	r, err := openPreprocessed(env)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var toc []Entry
	if data, err := os.ReadFile(env.Artifact(TOCFileName)); err == nil {
		toc, err = ParseTOC(string(data))
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", TOCFileName, err)
		}
	}

	titleSig := findTitleSignature(r, reg, meta.Title)
	tocLevels := matchTOCEntries(r, reg, toc)
	reg.InferLabels(titleSig, tocLevels)
	if err := reg.Save(env.OutputDir); err != nil {
		return nil, err
	}
	return &phase.StepOutput{OutputFile: sig.MappingFileName}, nil
}

// Run is a maximal run of adjacent spans sharing one signature tuple.
// Merging happens before TOC matching so multi-span titles still match.
type Run struct {
	Text   string
	Family string
	Size   float64
	Weight int
	Style  string
	Page   int
	X, Y   float64
}

func sameTuple(a, b pdfread.Span) bool {
	return a.Family == b.Family && a.Size == b.Size && a.Weight == b.Weight && a.Style == b.Style
}

// MergeRuns coalesces adjacent same-tuple spans on a page.
func MergeRuns(spans []pdfread.Span) []Run {
	var runs []Run
	for i, s := range spans {
		if i > 0 && sameTuple(spans[i-1], s) && len(runs) > 0 {
			last := &runs[len(runs)-1]
			if needsSpace(last.Text, s.Text) {
				last.Text += " "
			}
			last.Text += s.Text
			continue
		}
		runs = append(runs, Run{
			Text: s.Text, Family: s.Family, Size: s.Size,
			Weight: s.Weight, Style: s.Style, Page: s.Page, X: s.X, Y: s.Y,
		})
	}
	return runs
}

func needsSpace(prev, next string) bool {
	if prev == "" || next == "" {
		return false
	}
	return !strings.HasSuffix(prev, " ") && !strings.HasPrefix(next, " ")
}

// findTitleSignature picks the document H1: a span run matching the
// metadata title, else the largest run on the cover page. Returns "" if
// neither exists; the hierarchy phase then falls back to the file name.
func findTitleSignature(r *pdfread.Reader, reg *sig.Registry, title string) string {
	if t := normalizeMatch(title); t != "" {
		pages := r.PageCount()
		if pages > 10 {
			pages = 10
		}
		for pg := 1; pg <= pages; pg++ {
			spans, err := r.Spans(pg)
			if err != nil {
				continue
			}
			for _, run := range MergeRuns(spans) {
				if strings.Contains(normalizeMatch(run.Text), t) {
					if s := reg.Find(run.Family, run.Size, run.Weight, run.Style); s != nil {
						return s.ID
					}
				}
			}
		}
	}

	spans, err := r.Spans(1)
	if err != nil || len(spans) == 0 {
		return ""
	}
	var best *Run
	runs := MergeRuns(spans)
	for i := range runs {
		if best == nil || runs[i].Size > best.Size {
			best = &runs[i]
		}
	}
	if best == nil {
		return ""
	}
	if s := reg.Find(best.Family, best.Size, best.Weight, best.Style); s != nil {
		return s.ID
	}
	return ""
}

// matchTOCEntries locates each TOC title in the document and maps the
// containing run's signature to the entry's level. When one signature
// matches entries at several levels the shallowest wins.
func matchTOCEntries(r *pdfread.Reader, reg *sig.Registry, toc []Entry) map[string]int {
	levels := make(map[string]int)
	if len(toc) == 0 {
		return levels
	}
	type pageRuns struct {
		runs []Run
	}
	cache := make(map[int]pageRuns)
	runsFor := func(pg int) []Run {
		if pr, ok := cache[pg]; ok {
			return pr.runs
		}
		spans, err := r.Spans(pg)
		var runs []Run
		if err == nil {
			runs = MergeRuns(spans)
		}
		cache[pg] = pageRuns{runs: runs}
		return runs
	}

	for _, e := range toc {
		want := normalizeMatch(e.Title)
		if want == "" {
			continue
		}
		// The destination page is authoritative when present; drift of a
		// page either way is common in hand-built outlines.
		candidates := []int{e.Page, e.Page + 1, e.Page - 1}
		if e.Page <= 0 {
			candidates = nil
			for pg := 1; pg <= r.PageCount(); pg++ {
				candidates = append(candidates, pg)
			}
		}
		for _, pg := range candidates {
			if pg < 1 || pg > r.PageCount() {
				continue
			}
			found := false
			for _, run := range runsFor(pg) {
				if strings.Contains(normalizeMatch(run.Text), want) {
					s := reg.Find(run.Family, run.Size, run.Weight, run.Style)
					if s == nil {
						continue
					}
					if prev, ok := levels[s.ID]; !ok || e.Level < prev {
						levels[s.ID] = e.Level
					}
					found = true
					break
				}
			}
			if found {
				break
			}
		}
	}
	return levels
}

var spaceCollapser = strings.NewReplacer(" ", " ", "\t", " ")

func normalizeMatch(s string) string {
	s = spaceCollapser.Replace(strings.TrimSpace(strings.ToLower(s)))
	return strings.Join(strings.Fields(s), " ")
}
