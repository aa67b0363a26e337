// Package structure implements phase 7: validate the inferred heading
// map, run the secondary text-shape signals, detect callout regions by
// keyword and configured boundaries, and hand the mapping to the user
// for review.
package structure

import (
	"context"
	"fmt"
	"os"
	"strings"
	"unicode"

	"github.com/taji/gm-kit/internal/callout"
	"github.com/taji/gm-kit/internal/marker"
	"github.com/taji/gm-kit/internal/phase"
	"github.com/taji/gm-kit/internal/sig"
)

type Phase struct{}

func New() *Phase { return &Phase{} }

func (*Phase) Num() int     { return 7 }
func (*Phase) Name() string { return "structural detection" }

func (*Phase) OutputFile(env *phase.Env) string { return sig.MappingFileName }

func (*Phase) Steps(env *phase.Env) []phase.Step {
	return []phase.Step{
		{ID: "7.1", Description: "validate heading map", Run: stepValidateMap},
		{ID: "7.2", Description: "detect caps and title-case headings", Run: stepTextSignals},
		{ID: "7.3", Description: "detect callout regions", Run: stepCallouts},
		{ID: "7.4", Description: "detect embedded headings", Run: stepEmbedded},
		{ID: "7.10", Description: "user review of font labels", Run: stepReview},
	}
}

func stepValidateMap(ctx context.Context, env *phase.Env) (*phase.StepOutput, error) {
	reg, err := sig.Load(env.OutputDir)
	if err != nil {
		return nil, err
	}
	warnings := ValidateHeadingMap(reg)
	if len(warnings) > 0 {
		// Review material, not a halt: the user sees these at 7.10 and
		// the lint phase re-checks the final output.
		return phase.Warn(warnings...), nil
	}
	return phase.OK(), nil
}

// ValidateHeadingMap flags gaps and pile-ups in the heading ladder.
func ValidateHeadingMap(reg *sig.Registry) []string {
	byLevel := make(map[int][]string)
	for _, s := range reg.All() {
		if lvl, ok := s.Label.IsHeading(); ok {
			byLevel[lvl] = append(byLevel[lvl], s.ID)
		}
	}
	var warnings []string
	if len(byLevel[1]) > 1 {
		warnings = append(warnings, fmt.Sprintf(
			"WARNING: %d signatures labeled H1 (%s) - phase 8 will demote extras",
			len(byLevel[1]), strings.Join(byLevel[1], ", ")))
	}
	for lvl := 3; lvl <= 4; lvl++ {
		if len(byLevel[lvl]) > 0 && len(byLevel[lvl-1]) == 0 {
			warnings = append(warnings, fmt.Sprintf(
				"WARNING: H%d assigned with no H%d - heading levels have a gap", lvl, lvl-1))
		}
	}
	return warnings
}

func stepTextSignals(ctx context.Context, env *phase.Env) (*phase.StepOutput, error) {
	reg, err := sig.Load(env.OutputDir)
	if err != nil {
		return nil, err
	}
	body := reg.MostFrequent()
	var warnings []string
	for _, s := range reg.All() {
		if s.Label != sig.LabelBody || s == body {
			continue
		}
		if allCaps(s.SampleTexts) || titleCase(s.SampleTexts) {
			if body != nil && s.Size >= body.Size {
				warnings = append(warnings, fmt.Sprintf(
					"WARNING: %s is body-labeled but its samples read as headings - review at step 7.10", s.ID))
			}
		}
	}
	if err := reg.Save(env.OutputDir); err != nil {
		return nil, err
	}
	if len(warnings) > 0 {
		return phase.Warn(warnings...), nil
	}
	return phase.OK(), nil
}

func allCaps(samples []string) bool {
	seen := false
	for _, t := range samples {
		for _, r := range t {
			if unicode.IsLower(r) {
				return false
			}
			if unicode.IsUpper(r) {
				seen = true
			}
		}
	}
	return seen
}

// titleCase reports samples where most words are capitalized.
func titleCase(samples []string) bool {
	words, capped := 0, 0
	for _, t := range samples {
		for _, w := range strings.Fields(t) {
			r := []rune(w)[0]
			if !unicode.IsLetter(r) {
				continue
			}
			words++
			if unicode.IsUpper(r) {
				capped++
			}
		}
	}
	return words >= 2 && capped*4 >= words*3
}

func stepCallouts(ctx context.Context, env *phase.Env) (*phase.StepOutput, error) {
	reg, err := sig.Load(env.OutputDir)
	if err != nil {
		return nil, err
	}
	text, err := os.ReadFile(env.PhaseOutput(6))
	if err != nil {
		return nil, phase.Errf(phase.ExitStateError, err, phase.MsgMissingOutput+" 6", "re-run phase 6")
	}
	cfg, err := callout.Load(env.Artifact(callout.FileName))
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, phase.Errf(phase.ExitFileError, err, "ERROR: Invalid callout config file", "fix the JSON and retry")
		}
		cfg = nil
	}

	labeled := DetectCallouts(string(text), reg, cfg, callout.Keywords(env.State.Config.GMKeywords))
	if err := reg.Save(env.OutputDir); err != nil {
		return nil, err
	}
	return &phase.StepOutput{Message: fmt.Sprintf("%d signatures labeled as callouts", labeled)}, nil
}

// DetectCallouts labels signatures from keyword lines and configured
// start/end ranges. Heading labels are never overwritten — a heading
// terminates a callout rather than joining it.
func DetectCallouts(text string, reg *sig.Registry, cfg callout.Config, kws []callout.Keyword) int {
	labeled := make(map[string]string)

	var active *callout.Entry
	for _, line := range strings.Split(text, "\n") {
		plain := marker.Strip(line)

		if active == nil {
			for i := range cfg {
				if strings.Contains(plain, cfg[i].StartText) {
					active = &cfg[i]
					break
				}
			}
		}
		if active != nil {
			for _, sg := range marker.Split(line) {
				if sg.SigID != "" {
					labeled[sg.SigID] = active.EffectiveLabel()
				}
			}
			if strings.Contains(plain, active.EndText) {
				active = nil
			}
			continue
		}

		if kw, ok := callout.MatchKeyword(plain, kws); ok {
			for _, sg := range marker.Split(line) {
				if sg.SigID != "" {
					labeled[sg.SigID] = kw.Label
				}
			}
		}
	}

	n := 0
	for id, label := range labeled {
		s := reg.Get(id)
		if s == nil {
			continue
		}
		if _, isHeading := s.Label.IsHeading(); isHeading {
			continue
		}
		s.Label = sig.Label(label)
		n++
	}
	return n
}

func stepEmbedded(ctx context.Context, env *phase.Env) (*phase.StepOutput, error) {
	reg, err := sig.Load(env.OutputDir)
	if err != nil {
		return nil, err
	}
	text, err := os.ReadFile(env.PhaseOutput(6))
	if err != nil {
		return nil, phase.Errf(phase.ExitStateError, err, phase.MsgMissingOutput+" 6", "re-run phase 6")
	}
	n := MarkEmbeddedHeadings(string(text), reg)
	if err := reg.Save(env.OutputDir); err != nil {
		return nil, err
	}
	if n > 0 {
		return &phase.StepOutput{Message: fmt.Sprintf("%d embedded heading signatures", n)}, nil
	}
	return phase.OK(), nil
}

// MarkEmbeddedHeadings finds heading-labeled signatures that appear
// after other content on a line and marks them for the phase 8 splitter.
func MarkEmbeddedHeadings(text string, reg *sig.Registry) int {
	found := make(map[string]bool)
	for _, line := range strings.Split(text, "\n") {
		segs := marker.Split(line)
		for i, sg := range segs {
			if sg.SigID == "" || i == 0 {
				continue
			}
			s := reg.Get(sg.SigID)
			if s == nil {
				continue
			}
			if _, ok := s.Label.IsHeading(); ok && hasContentBefore(segs[:i]) {
				found[sg.SigID] = true
			}
		}
	}
	for id := range found {
		if s := reg.Get(id); s != nil {
			s.EmbeddedHeading = true
		}
	}
	return len(found)
}

func hasContentBefore(segs []marker.Segment) bool {
	for _, sg := range segs {
		if strings.TrimSpace(sg.Text) != "" {
			return true
		}
	}
	return false
}

func stepReview(ctx context.Context, env *phase.Env) (*phase.StepOutput, error) {
	path := env.Artifact(sig.MappingFileName)
	if err := env.Confirm.ReviewMapping(path); err != nil {
		return nil, err
	}
	// Reload to validate whatever the user saved.
	if _, err := sig.Load(env.OutputDir); err != nil {
		return nil, phase.Errf(phase.ExitFileError, err, "ERROR: Edited font mapping is invalid", "fix the JSON and re-run from step 7.10")
	}
	return phase.OK(), nil
}
