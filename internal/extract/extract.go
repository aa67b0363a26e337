// Package extract implements phase 4: walk the text-only PDF and emit
// markdown-shaped text where every run is wrapped in a font signature
// marker. Everything downstream of here works on text files.
package extract

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/taji/gm-kit/internal/marker"
	"github.com/taji/gm-kit/internal/pdfread"
	"github.com/taji/gm-kit/internal/phase"
	"github.com/taji/gm-kit/internal/sig"
	"github.com/taji/gm-kit/internal/tocfonts"
)

const (
	chunkPageThreshold = 30
	chunkSizeThreshold = 15 << 20
	chunkSize          = 25

	// columnSuspectRatio is the share of suspect pages above which a
	// reading-order warning is recorded for the lint review.
	columnSuspectRatio = 0.15
)

// PageBreak is the invisible page boundary comment carried through the
// cleanup phases so phase 8 can place image references.
func PageBreak(page int) string {
	return fmt.Sprintf("<!-- page %d -->", page)
}

type Phase struct{}

func New() *Phase { return &Phase{} }

func (*Phase) Num() int     { return 4 }
func (*Phase) Name() string { return "text extraction with markers" }

func (*Phase) OutputFile(env *phase.Env) string {
	return env.DocName + "-phase4.md"
}

func (*Phase) Steps(env *phase.Env) []phase.Step {
	return []phase.Step{
		{ID: "4.1", Description: "extract marker text", Run: stepExtract},
		{ID: "4.2", Description: "re-join chunk boundaries", Run: stepBoundaries},
		{ID: "4.3", Description: "detect column-order anomalies", Run: stepColumns},
	}
}

func stepExtract(ctx context.Context, env *phase.Env) (*phase.StepOutput, error) {
	r, err := pdfread.Open(env.PreprocessedPDF())
	if err != nil {
		return nil, phase.Errf(phase.ExitPDFError, err, "ERROR: Cannot open text-only PDF", "re-run phase 2")
	}
	defer r.Close()

	reg, err := sig.Load(env.OutputDir)
	if err != nil {
		return nil, err
	}

	chunked := false
	if fi, err := os.Stat(env.PreprocessedPDF()); err == nil {
		chunked = r.PageCount() > chunkPageThreshold || fi.Size() > chunkSizeThreshold
	}

	var parts []string
	total := r.PageCount()
	for start := 1; start <= total; start += chunkSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := start + chunkSize - 1
		if !chunked {
			end = total
		}
		if end > total {
			end = total
		}
		part, err := extractRange(r, reg, start, end)
		if err != nil {
			return nil, phase.Errf(phase.ExitPDFError, err, "ERROR: Text extraction failed", "re-run phase 4")
		}
		parts = append(parts, part)
		if !chunked {
			break
		}
	}

	text := strings.Join(parts, "\n")
	if strings.TrimSpace(marker.Strip(text)) == "" {
		return nil, phase.Errf(phase.ExitPDFError, nil, "ERROR: Text extraction empty - no spans found", "the PDF may be malformed")
	}
	// Tuples first seen here were interned lazily; persist them so the
	// mapping covers every id the markers reference.
	if err := reg.Save(env.OutputDir); err != nil {
		return nil, err
	}
	if err := os.WriteFile(env.PhaseOutput(4), []byte(text), 0644); err != nil {
		return nil, err
	}
	out := &phase.StepOutput{OutputFile: env.DocName + "-phase4.md"}
	if chunked {
		out.Message = fmt.Sprintf("chunked extraction, %d page ranges", len(parts))
	}
	return out, nil
}

// extractRange emits the marker text for an inclusive page range.
func extractRange(r *pdfread.Reader, reg *sig.Registry, from, to int) (string, error) {
	var b strings.Builder
	for pg := from; pg <= to; pg++ {
		spans, err := r.Spans(pg)
		if err != nil {
			// An unreadable page becomes an empty page, not a lost run.
			spans = nil
		}
		b.WriteString(PageBreak(pg))
		b.WriteString("\n\n")
		writePage(&b, reg, tocfonts.MergeRuns(spans))
		b.WriteString("\n")
	}
	return b.String(), nil
}

// writePage groups runs into visual lines and paragraphs by their
// y-coordinates, emitting one marker per signature run. Consecutive
// same-signature runs on a line coalesce into a single marker.
func writePage(b *strings.Builder, reg *sig.Registry, runs []tocfonts.Run) {
	var lastY, lastSize float64
	var line []marker.Segment

	flush := func() {
		if len(line) == 0 {
			return
		}
		b.WriteString(marker.Join(marker.Coalesce(line, " ")))
		b.WriteString("\n")
		line = nil
	}

	for _, run := range runs {
		s := reg.Find(run.Family, run.Size, run.Weight, run.Style)
		if s == nil {
			// A tuple not seen in phase 3 means the document changed
			// between phases; intern lazily to avoid dropping text.
			s = reg.Intern(run.Family, run.Size, run.Weight, run.Style, run.Page)
		}
		if lastY != 0 && math.Abs(run.Y-lastY) > lineTolerance(lastSize) {
			flush()
			if lastY-run.Y > paragraphGap(lastSize) {
				b.WriteString("\n")
			}
		}
		line = append(line, marker.Segment{SigID: s.ID, Text: marker.Escape(run.Text)})
		lastY, lastSize = run.Y, run.Size
	}
	flush()
}

func lineTolerance(size float64) float64 {
	if size <= 0 {
		return 2
	}
	return size * 0.5
}

func paragraphGap(size float64) float64 {
	if size <= 0 {
		return 18
	}
	return size * 1.8
}

func stepBoundaries(ctx context.Context, env *phase.Env) (*phase.StepOutput, error) {
	data, err := os.ReadFile(env.PhaseOutput(4))
	if err != nil {
		return nil, err
	}
	// The agent collaborator may re-join sentences split across chunk
	// boundaries; the code path guarantees only that nothing is dropped.
	_, ok, err := phase.AgentStep(ctx, env.Agent, "4.2",
		"Re-join sentences split across chunk boundaries without dropping content.",
		func(resp string) error {
			if len(marker.Strip(resp)) < len(marker.Strip(string(data)))*9/10 {
				return fmt.Errorf("response dropped content")
			}
			return nil
		},
		phase.LowCriticality)
	if err != nil {
		return nil, err
	}
	if !ok {
		return phase.Skipped("no agent collaborator; boundaries left as extracted"), nil
	}
	return phase.OK(), nil
}

func stepColumns(ctx context.Context, env *phase.Env) (*phase.StepOutput, error) {
	r, err := pdfread.Open(env.PreprocessedPDF())
	if err != nil {
		return nil, phase.Errf(phase.ExitPDFError, err, "ERROR: Cannot open text-only PDF", "re-run phase 2")
	}
	defer r.Close()

	suspect := 0
	total := r.PageCount()
	for pg := 1; pg <= total; pg++ {
		spans, err := r.Spans(pg)
		if err != nil {
			continue
		}
		if columnSuspect(tocfonts.MergeRuns(spans)) {
			suspect++
		}
	}
	env.Log.Debug("column detection", "suspect", suspect, "pages", total)
	if total > 0 && float64(suspect)/float64(total) > columnSuspectRatio {
		return phase.Warn(phase.MsgColumnWarning), nil
	}
	return phase.OK(), nil
}

// columnSuspect reports a page whose runs jump back up the page more
// than twice — the signature of a second column starting after the
// first was painted top to bottom.
func columnSuspect(runs []tocfonts.Run) bool {
	jumps := 0
	for i := 1; i < len(runs); i++ {
		if runs[i].Y > runs[i-1].Y+runs[i-1].Size*4 {
			jumps++
		}
	}
	return jumps > 2
}
