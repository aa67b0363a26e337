// Package hierarchy implements phase 8: consume the labeled marker
// stream and emit the final headed Markdown — headings, callout
// blockquotes, commented image references, the copyright block, and the
// single-H1 guarantee.
package hierarchy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/taji/gm-kit/internal/callout"
	"github.com/taji/gm-kit/internal/docmeta"
	"github.com/taji/gm-kit/internal/images"
	"github.com/taji/gm-kit/internal/marker"
	"github.com/taji/gm-kit/internal/phase"
	"github.com/taji/gm-kit/internal/sig"
)

type Phase struct{}

func New() *Phase { return &Phase{} }

func (*Phase) Num() int     { return 8 }
func (*Phase) Name() string { return "hierarchy application" }

func (*Phase) OutputFile(env *phase.Env) string {
	return env.DocName + "-phase8.md"
}

func (*Phase) Steps(env *phase.Env) []phase.Step {
	return []phase.Step{
		{ID: "8.1", Description: "split embedded headings", Run: stepSplit},
		{ID: "8.2", Description: "rewrite markers to markdown", Run: stepRewrite},
		{ID: "8.3", Description: "insert image references", Run: stepImages},
		{ID: "8.4", Description: "restore escaped guillemets", Run: stepGuillemets},
		{ID: "8.5", Description: "enforce single H1", Run: stepSingleH1},
		{ID: "8.6", Description: "guard markdown-sensitive body text", Run: stepSensitive},
		{ID: "8.7", Description: "prepend copyright block", Run: stepCopyright},
	}
}

// readWorking returns the in-progress phase 8 text. Step 8.1 never
// calls this: it always re-seeds from the phase 6 artifact, so a phase
// re-run regenerates the output instead of transforming it twice.
func readWorking(env *phase.Env) (string, error) {
	data, err := os.ReadFile(env.PhaseOutput(8))
	if err != nil {
		return "", phase.Errf(phase.ExitStateError, err, phase.MsgMissingOutput+" 8", "re-run phase 8 from step 8.1")
	}
	return string(data), nil
}

func readPhase6(env *phase.Env) (string, error) {
	data, err := os.ReadFile(env.PhaseOutput(6))
	if err != nil {
		return "", phase.Errf(phase.ExitStateError, err, phase.MsgMissingOutput+" 6", "re-run phase 6")
	}
	return string(data), nil
}

func writeWorking(env *phase.Env, text string) error {
	return os.WriteFile(env.PhaseOutput(8), []byte(text), 0644)
}

func loadRegistry(env *phase.Env) (*sig.Registry, error) {
	reg, err := sig.Load(env.OutputDir)
	if err != nil {
		return nil, phase.Errf(phase.ExitStateError, err, phase.MsgMissingOutput+" 7", "re-run phase 7")
	}
	return reg, nil
}

func stepSplit(ctx context.Context, env *phase.Env) (*phase.StepOutput, error) {
	reg, err := loadRegistry(env)
	if err != nil {
		return nil, err
	}
	text, err := readPhase6(env)
	if err != nil {
		return nil, err
	}
	return phase.OK(), writeWorking(env, SplitEmbeddedHeadings(text, reg))
}

func stepRewrite(ctx context.Context, env *phase.Env) (*phase.StepOutput, error) {
	reg, err := loadRegistry(env)
	if err != nil {
		return nil, err
	}
	text, err := readWorking(env)
	if err != nil {
		return nil, err
	}
	cfg, err := callout.Load(env.Artifact(callout.FileName))
	if err != nil && !os.IsNotExist(err) {
		return nil, phase.Errf(phase.ExitFileError, err, "ERROR: Invalid callout config file", "fix the JSON and retry")
	}
	r := &renderer{
		reg:      reg,
		cfg:      cfg,
		keywords: callout.Keywords(env.State.Config.GMKeywords),
	}
	return phase.OK(), writeWorking(env, r.Render(text))
}

func stepImages(ctx context.Context, env *phase.Env) (*phase.StepOutput, error) {
	text, err := readWorking(env)
	if err != nil {
		return nil, err
	}
	manifest, err := images.LoadManifest(env.ImagesDir())
	if err != nil {
		if os.IsNotExist(err) {
			return phase.Skipped("no image manifest"), nil
		}
		return nil, err
	}
	out, placed := InsertImageRefs(text, manifest)
	if err := writeWorking(env, out); err != nil {
		return nil, err
	}
	return &phase.StepOutput{Message: fmt.Sprintf("%d image references", placed)}, nil
}

func stepGuillemets(ctx context.Context, env *phase.Env) (*phase.StepOutput, error) {
	text, err := readWorking(env)
	if err != nil {
		return nil, err
	}
	return phase.OK(), writeWorking(env, marker.Unescape(text))
}

func stepSingleH1(ctx context.Context, env *phase.Env) (*phase.StepOutput, error) {
	text, err := readWorking(env)
	if err != nil {
		return nil, err
	}
	meta, err := docmeta.Load(env.OutputDir)
	if err != nil {
		return nil, err
	}
	title := meta.Title
	if title == "" {
		title = env.DocName
	}
	return phase.OK(), writeWorking(env, EnforceSingleH1(text, title))
}

func stepSensitive(ctx context.Context, env *phase.Env) (*phase.StepOutput, error) {
	text, err := readWorking(env)
	if err != nil {
		return nil, err
	}
	return phase.OK(), writeWorking(env, GuardSensitiveText(text))
}

func stepCopyright(ctx context.Context, env *phase.Env) (*phase.StepOutput, error) {
	text, err := readWorking(env)
	if err != nil {
		return nil, err
	}
	meta, err := docmeta.Load(env.OutputDir)
	if err != nil {
		return nil, err
	}
	block := CopyrightBlock(meta, filepath.Base(env.PDFPath), time.Now().UTC())
	return phase.OK(), writeWorking(env, block+"\n"+text)
}

// CopyrightBlock renders the attribution comment that tops the final
// document. Missing fields degrade to the contractual literals.
func CopyrightBlock(meta *docmeta.Metadata, sourceFile string, convertedAt time.Time) string {
	title := meta.Title
	if title == "" {
		title = "Unknown"
	}
	author := meta.Author
	if author == "" {
		author = "Unknown"
	}
	copyright := meta.Copyright
	if copyright == "" {
		copyright = "See original publication"
	}
	return fmt.Sprintf(`<!--
Title: %s
Author/Publisher: %s
Copyright: %s
Source: %s
Converted: %s
Converted by: pdf-convert (gm-kit)
-->
`, title, author, copyright, sourceFile, convertedAt.Format(time.RFC3339))
}
