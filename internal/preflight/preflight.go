// Package preflight implements phase 0: inspect the PDF and decide
// whether conversion is worth committing to, before any artifact heavier
// than metadata.json is produced.
package preflight

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/taji/gm-kit/internal/callout"
	"github.com/taji/gm-kit/internal/docmeta"
	"github.com/taji/gm-kit/internal/pdfread"
	"github.com/taji/gm-kit/internal/phase"
	"github.com/taji/gm-kit/internal/ux"
)

// minExtractableChars separates text PDFs from scans.
const minExtractableChars = 100

// Chunking thresholds for the extraction phase, reported here so the
// user sees them in the pre-flight summary.
const (
	chunkPageThreshold = 30
	chunkSizeThreshold = 15 << 20
)

type Phase struct{}

func New() *Phase { return &Phase{} }

func (*Phase) Num() int     { return 0 }
func (*Phase) Name() string { return "pre-flight analysis" }

func (*Phase) OutputFile(env *phase.Env) string { return docmeta.FileName }

func (p *Phase) Steps(env *phase.Env) []phase.Step {
	return []phase.Step{
		{ID: "0.1", Description: "extract document metadata", Run: stepMetadata},
		{ID: "0.2", Description: "count embedded images", Run: stepImages},
		{ID: "0.3", Description: "inspect embedded outline", Run: stepOutline},
		{ID: "0.4", Description: "measure text extractability", Run: stepExtractability},
		{ID: "0.5", Description: "estimate conversion complexity", Run: stepComplexity},
		{ID: "0.6", Description: "present report and confirm", Run: stepConfirm},
	}
}

func openSource(env *phase.Env) (*pdfread.Reader, error) {
	r, err := pdfread.Open(env.PDFPath)
	if err != nil {
		if errors.Is(err, pdfread.ErrEncrypted) {
			return nil, phase.Errf(phase.ExitPDFError, err, phase.MsgEncryptedPDF, "remove the password with another tool first")
		}
		return nil, phase.Errf(phase.ExitPDFError, err, phase.MsgCannotOpenPDF, "check the path and that the file is a valid PDF")
	}
	return r, nil
}

func stepMetadata(ctx context.Context, env *phase.Env) (*phase.StepOutput, error) {
	r, err := openSource(env)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	size, err := r.FileSize()
	if err != nil {
		return nil, phase.Errf(phase.ExitFileError, err, phase.MsgCannotOpenPDF, "check file permissions")
	}
	info := r.Metadata()
	m := &docmeta.Metadata{
		FileSizeBytes: size,
		PageCount:     r.PageCount(),
		FontCount:     len(r.FontFamilies()),
		ExtractedAt:   time.Now().UTC(),
		Title:         info.Title,
		Author:        info.Author,
		Creator:       info.Creator,
		Producer:      info.Producer,
		Copyright:     findCopyright(r),
		CreationDate:  info.CreationDate,
		ModDate:       info.ModDate,
	}
	if err := m.Save(env.OutputDir); err != nil {
		return nil, err
	}
	return &phase.StepOutput{OutputFile: docmeta.FileName}, nil
}

// findCopyright scans the first pages for a copyright line; the PDF info
// dictionary has no standard field for it.
func findCopyright(r *pdfread.Reader) string {
	pages := r.PageCount()
	if pages > 5 {
		pages = 5
	}
	for pg := 1; pg <= pages; pg++ {
		spans, err := r.Spans(pg)
		if err != nil {
			continue
		}
		for _, s := range spans {
			t := strings.TrimSpace(s.Text)
			if strings.HasPrefix(t, "©") || strings.HasPrefix(strings.ToLower(t), "copyright") {
				return t
			}
		}
	}
	return ""
}

func stepImages(ctx context.Context, env *phase.Env) (*phase.StepOutput, error) {
	r, err := openSource(env)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	n, err := r.ImageCount()
	if err != nil {
		return nil, phase.Errf(phase.ExitPDFError, err, "ERROR: Failed to enumerate images", "re-run with --diagnostics for detail")
	}
	return updateMeta(env, func(m *docmeta.Metadata) { m.ImageCount = n })
}

func stepOutline(ctx context.Context, env *phase.Env) (*phase.StepOutput, error) {
	r, err := openSource(env)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	entries, err := r.Outline()
	if err != nil {
		env.Log.Debug("outline read failed", "err", err)
		entries = nil
	}
	out, uerr := updateMeta(env, func(m *docmeta.Metadata) {
		m.HasTOC = len(entries) > 0
		m.TOCEntries = len(entries)
		m.TOCMaxDepth = pdfread.MaxDepth(entries)
	})
	if uerr != nil {
		return nil, uerr
	}
	if len(entries) == 0 {
		out.Warnings = append(out.Warnings, phase.MsgNoTOCWarning)
	}
	return out, nil
}

func stepExtractability(ctx context.Context, env *phase.Env) (*phase.StepOutput, error) {
	r, err := openSource(env)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	chars := r.ExtractableChars()
	env.Log.Debug("extractability", "chars", chars)
	if chars < minExtractableChars {
		// A scan is a dead end; leave nothing behind but the state file.
		os.Remove(env.Artifact(docmeta.FileName))
		return nil, phase.Errf(phase.ExitPDFError, nil, phase.MsgScannedPDF,
			"run OCR first (for example ocrmypdf), then convert the OCR output")
	}
	return phase.OK(), nil
}

func stepComplexity(ctx context.Context, env *phase.Env) (*phase.StepOutput, error) {
	m, err := docmeta.Load(env.OutputDir)
	if err != nil {
		return nil, err
	}
	r, err := openSource(env)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	c := Classify(m.FontCount, m.ImageCount, multiColumnSuspected(r), mathSuspected(r))
	return &phase.StepOutput{Message: fmt.Sprintf("complexity: %s", c)}, nil
}

func stepConfirm(ctx context.Context, env *phase.Env) (*phase.StepOutput, error) {
	m, err := docmeta.Load(env.OutputDir)
	if err != nil {
		return nil, err
	}

	// Materialize the callout config so the user can edit it before
	// continuing: copy a supplied one, default to an empty list.
	dst := env.Artifact(callout.FileName)
	if _, statErr := os.Stat(dst); os.IsNotExist(statErr) {
		if src := env.State.Config.CalloutConfigPath; src != "" {
			data, rerr := os.ReadFile(src)
			if rerr != nil {
				return nil, phase.Errf(phase.ExitFileError, rerr, "ERROR: Cannot read callout config file", "check the --gm-callout-config-file path")
			}
			if _, perr := callout.Load(src); perr != nil {
				return nil, phase.Errf(phase.ExitFileError, perr, "ERROR: Invalid callout config file", "fix the JSON and retry")
			}
			if werr := os.WriteFile(dst, data, 0644); werr != nil {
				return nil, werr
			}
		} else if err := callout.WriteDefault(dst); err != nil {
			return nil, err
		}
	}

	renderReport(env, m)
	ok, err := env.Confirm.Confirm("Proceed with conversion?")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, phase.Abort()
	}
	return phase.OK(), nil
}

func renderReport(env *phase.Env, m *docmeta.Metadata) {
	ux.Info(fmt.Sprintf("Pages: %d  Images: %d  Font families: %d", m.PageCount, m.ImageCount, m.FontCount))
	if m.HasTOC {
		ux.Info(fmt.Sprintf("TOC: %d entries, depth %d", m.TOCEntries, m.TOCMaxDepth))
	} else {
		ux.Info("TOC: none embedded")
	}
	if m.PageCount > chunkPageThreshold || m.FileSizeBytes > chunkSizeThreshold {
		ux.Info("Large document: text extraction will run in page-range chunks")
	}
	ux.Info("User involvement: step 0.6 (this confirmation), step 7.10 (font label review)")
}

// Classify buckets the document into the three complexity classes that
// drive expectations in the pre-flight report. Font families are counted
// by base name only — coarser than signature identity.
func Classify(fontFamilies, imageCount int, multiColumn, math bool) string {
	switch {
	case fontFamilies > 8 || imageCount > 50 || multiColumn || math:
		return "high"
	case fontFamilies >= 4 || imageCount >= 11:
		return "moderate"
	default:
		return "low"
	}
}

// multiColumnSuspected samples pages for spans that start in the right
// half at left-margin-like density.
func multiColumnSuspected(r *pdfread.Reader) bool {
	pages := r.PageCount()
	suspect := 0
	for pg := 1; pg <= pages; pg++ {
		spans, err := r.Spans(pg)
		if err != nil || len(spans) < 10 {
			continue
		}
		right := 0
		for _, s := range spans {
			if s.X > 300 {
				right++
			}
		}
		if right*2 > len(spans) {
			suspect++
		}
	}
	return suspect*5 > pages
}

var mathRunes = []rune{'∑', '∫', '√', '≤', '≥', '±', '≈', '∞', 'π'}

func mathSuspected(r *pdfread.Reader) bool {
	hits := 0
	for pg := 1; pg <= r.PageCount(); pg++ {
		spans, err := r.Spans(pg)
		if err != nil {
			continue
		}
		for _, s := range spans {
			for _, mr := range mathRunes {
				if strings.ContainsRune(s.Text, mr) {
					hits++
				}
			}
		}
	}
	return hits >= 5
}

func updateMeta(env *phase.Env, fn func(*docmeta.Metadata)) (*phase.StepOutput, error) {
	m, err := docmeta.Load(env.OutputDir)
	if err != nil {
		return nil, err
	}
	fn(m)
	if err := m.Save(env.OutputDir); err != nil {
		return nil, err
	}
	return phase.OK(), nil
}
