// Package images implements phases 1 and 2: pull every embedded image
// out to disk with a manifest, then produce the text-only PDF the
// extraction phase reads.
package images

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/taji/gm-kit/internal/pdfread"
	"github.com/taji/gm-kit/internal/phase"
)

// ManifestFileName is the manifest artifact inside images/.
const ManifestFileName = "image-manifest.json"

// ManifestEntry records one extracted image. X/Y are the placement
// coordinates when the reader can recover them, zero otherwise; phase 8
// places by page either way.
type ManifestEntry struct {
	Page      int     `json:"page"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Width     float64 `json:"width"`
	Height    float64 `json:"height"`
	Filename  string  `json:"filename"`
	Extension string  `json:"extension"`
}

// FileName builds the deterministic image file name pageNNN_imgMM.ext.
func FileName(page, seq int, ext string) string {
	return fmt.Sprintf("page%03d_img%02d.%s", page, seq, ext)
}

// WriteManifest persists entries to images/image-manifest.json.
func WriteManifest(imagesDir string, entries []ManifestEntry) error {
	if entries == nil {
		entries = []ManifestEntry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(imagesDir, ManifestFileName), append(data, '\n'), 0644)
}

// LoadManifest reads the manifest back for phase 8.
func LoadManifest(imagesDir string) ([]ManifestEntry, error) {
	data, err := os.ReadFile(filepath.Join(imagesDir, ManifestFileName))
	if err != nil {
		return nil, err
	}
	var entries []ManifestEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", ManifestFileName, err)
	}
	return entries, nil
}

// ExtractPhase is phase 1.
type ExtractPhase struct{}

func NewExtract() *ExtractPhase { return &ExtractPhase{} }

func (*ExtractPhase) Num() int     { return 1 }
func (*ExtractPhase) Name() string { return "image extraction" }

func (*ExtractPhase) OutputFile(env *phase.Env) string {
	return filepath.Join("images", ManifestFileName)
}

func (*ExtractPhase) Steps(env *phase.Env) []phase.Step {
	return []phase.Step{
		{ID: "1.1", Description: "extract images to disk", Run: stepExtract},
	}
}

func stepExtract(ctx context.Context, env *phase.Env) (*phase.StepOutput, error) {
	if err := os.MkdirAll(env.ImagesDir(), 0755); err != nil {
		return nil, err
	}
	r, err := pdfread.Open(env.PDFPath)
	if err != nil {
		return nil, phase.Errf(phase.ExitPDFError, err, phase.MsgCannotOpenPDF, "check the source file")
	}
	defer r.Close()

	var entries []ManifestEntry
	err = r.Images(func(img pdfread.ExtractedImage) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		name := FileName(img.Page, img.Seq, img.Ext)
		f, err := os.Create(filepath.Join(env.ImagesDir(), name))
		if err != nil {
			return err
		}
		if _, err := io.Copy(f, img.Data); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		entries = append(entries, ManifestEntry{
			Page:      img.Page,
			Width:     float64(img.Width),
			Height:    float64(img.Height),
			Filename:  name,
			Extension: img.Ext,
		})
		return nil
	})
	if err != nil {
		return nil, phase.Errf(phase.ExitPDFError, err, "ERROR: Image extraction failed", "re-run phase 1")
	}
	if err := WriteManifest(env.ImagesDir(), entries); err != nil {
		return nil, err
	}
	return &phase.StepOutput{
		Message:    fmt.Sprintf("%d images", len(entries)),
		OutputFile: filepath.Join("images", ManifestFileName),
	}, nil
}

// RemovePhase is phase 2.
type RemovePhase struct{}

func NewRemove() *RemovePhase { return &RemovePhase{} }

func (*RemovePhase) Num() int     { return 2 }
func (*RemovePhase) Name() string { return "image removal" }

func (*RemovePhase) OutputFile(env *phase.Env) string {
	return filepath.Join("preprocessed", env.DocName+"-no-images.pdf")
}

func (*RemovePhase) Steps(env *phase.Env) []phase.Step {
	return []phase.Step{
		{ID: "2.1", Description: "write text-only PDF", Run: stepRemove},
	}
}

func stepRemove(ctx context.Context, env *phase.Env) (*phase.StepOutput, error) {
	if err := os.MkdirAll(filepath.Dir(env.PreprocessedPDF()), 0755); err != nil {
		return nil, err
	}
	r, err := pdfread.Open(env.PDFPath)
	if err != nil {
		return nil, phase.Errf(phase.ExitPDFError, err, phase.MsgCannotOpenPDF, "check the source file")
	}
	defer r.Close()

	if err := r.StripImages(env.PreprocessedPDF()); err != nil {
		return nil, phase.Errf(phase.ExitPDFError, err, "ERROR: Image removal failed", "re-run phase 2")
	}

	srcSize, _ := r.FileSize()
	if fi, err := os.Stat(env.PreprocessedPDF()); err == nil && srcSize > 0 {
		return &phase.StepOutput{
			Message: fmt.Sprintf("%.0f%% of original size", float64(fi.Size())*100/float64(srcSize)),
		}, nil
	}
	return phase.OK(), nil
}
