package phase

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/taji/gm-kit/internal/agent"
	"github.com/taji/gm-kit/internal/state"
)

// Confirmer is the external user-interaction collaborator. The pipeline
// blocks on it at exactly two points: the pre-flight report (step 0.6)
// and the mapping review (step 7.10). Non-interactive runs auto-accept.
type Confirmer interface {
	// Confirm presents a prompt and returns the user's yes/no answer.
	Confirm(prompt string) (bool, error)
	// ReviewMapping gives the user a chance to edit the mapping file
	// before the pipeline reads it back.
	ReviewMapping(path string) error
}

// AutoConfirmer accepts everything; used for --yes and non-interactive
// runs.
type AutoConfirmer struct{}

func (AutoConfirmer) Confirm(string) (bool, error)   { return true, nil }
func (AutoConfirmer) ReviewMapping(string) error     { return nil }

// Env is the execution context shared by all phases of one conversion.
// Everything that crosses a phase boundary lives in the output
// directory, not here.
type Env struct {
	PDFPath   string
	OutputDir string
	DocName   string
	State     *state.Conversion
	Confirm   Confirmer
	Agent     agent.Runner
	Log       *log.Logger
}

// Artifact returns the absolute path of a named artifact in the output
// directory.
func (e *Env) Artifact(name string) string {
	return filepath.Join(e.OutputDir, name)
}

// PhaseOutput returns the conventional markdown artifact path for a
// phase, e.g. <name>-phase4.md.
func (e *Env) PhaseOutput(n int) string {
	return e.Artifact(fmt.Sprintf("%s-phase%d.md", e.DocName, n))
}

// PreprocessedPDF returns the text-only PDF path written by phase 2.
func (e *Env) PreprocessedPDF() string {
	return e.Artifact(filepath.Join("preprocessed", e.DocName+"-no-images.pdf"))
}

// ImagesDir returns the image artifact directory.
func (e *Env) ImagesDir() string {
	return e.Artifact("images")
}

// windowsIllegal are the filename characters replaced during
// sanitization so artifacts stay portable.
const windowsIllegal = `<>:"/\|?*`

// SanitizeName derives the artifact base name from a PDF path, replacing
// characters that are illegal on Windows with underscores.
func SanitizeName(pdfPath string) string {
	name := strings.TrimSuffix(filepath.Base(pdfPath), filepath.Ext(pdfPath))
	var b strings.Builder
	for _, r := range name {
		if r < 0x20 || strings.ContainsRune(windowsIllegal, r) {
			b.WriteByte('_')
			continue
		}
		b.WriteRune(r)
	}
	if b.Len() == 0 {
		return "document"
	}
	return b.String()
}
