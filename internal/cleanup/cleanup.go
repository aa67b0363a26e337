// Package cleanup implements phases 5 and 6: character-level and
// word-level text repair over the marker stream. Every rule goes through
// the marker codec so no transformation can split a marker, alter its
// signature id, or introduce stray guillemets.
package cleanup

import (
	"context"
	"fmt"
	"os"

	"github.com/taji/gm-kit/internal/phase"
)

// CharPhase is phase 5.
type CharPhase struct{}

func NewChar() *CharPhase { return &CharPhase{} }

func (*CharPhase) Num() int     { return 5 }
func (*CharPhase) Name() string { return "character-level cleanup" }

func (*CharPhase) OutputFile(env *phase.Env) string {
	return env.DocName + "-phase5.md"
}

// Steps for phase 5. Hyphenation repair (5.2) must run before line-break
// normalization (5.3): joining lines first would hide the word-\n
// pattern.
func (*CharPhase) Steps(env *phase.Env) []phase.Step {
	return []phase.Step{
		{ID: "5.1", Description: "collapse gutter whitespace", Run: charStep(5, GutterWhitespace)},
		{ID: "5.2", Description: "rejoin hyphenated words", Run: charStep(5, Dehyphenate)},
		{ID: "5.3", Description: "normalize line breaks", Run: charStep(5, FlowLineBreaks)},
		{ID: "5.4", Description: "repair garbled characters", Run: charStep(5, RepairUnicode)},
		{ID: "5.5", Description: "normalize quotes and dashes", Run: charStep(5, NormalizePunctuation)},
		{ID: "5.6", Description: "collapse blank runs", Run: charStep(5, CollapseBlankLines)},
		{ID: "5.7", Description: "clean TOC region", Run: stepTOCRegion},
	}
}

// WordPhase is phase 6.
type WordPhase struct{}

func NewWord() *WordPhase { return &WordPhase{} }

func (*WordPhase) Num() int     { return 6 }
func (*WordPhase) Name() string { return "word-level cleanup" }

func (*WordPhase) OutputFile(env *phase.Env) string {
	return env.DocName + "-phase6.md"
}

func (*WordPhase) Steps(env *phase.Env) []phase.Step {
	return []phase.Step{
		{ID: "6.1", Description: "normalize bullet glyphs", Run: charStep(6, NormalizeBullets)},
		{ID: "6.2", Description: "restore missing spaces", Run: charStep(6, RestoreSpaces)},
		{ID: "6.3", Description: "collapse doubled whitespace", Run: charStep(6, CollapseTokenSpace)},
		{ID: "6.4", Description: "split merged list items", Run: stepListSplit},
	}
}

// charStep wraps a pure text rule into a step that reads the phase's
// working file and writes it back. The first step of each phase seeds
// the working file from the previous phase's output, so every step is
// durable and idempotent under re-execution.
func charStep(phaseNum int, rule func(string) string) func(context.Context, *phase.Env) (*phase.StepOutput, error) {
	return func(ctx context.Context, env *phase.Env) (*phase.StepOutput, error) {
		text, err := readWorking(env, phaseNum)
		if err != nil {
			return nil, err
		}
		out := rule(text)
		if err := writeWorking(env, phaseNum, out); err != nil {
			return nil, err
		}
		return phase.OK(), nil
	}
}

// readWorking returns the phase's in-progress output, seeding it from
// the prior phase's artifact on first touch.
func readWorking(env *phase.Env, phaseNum int) (string, error) {
	path := env.PhaseOutput(phaseNum)
	if data, err := os.ReadFile(path); err == nil {
		return string(data), nil
	}
	prev := phaseNum - 1
	data, err := os.ReadFile(env.PhaseOutput(prev))
	if err != nil {
		return "", phase.Errf(phase.ExitStateError, err,
			fmt.Sprintf("%s %d", phase.MsgMissingOutput, prev),
			fmt.Sprintf("re-run phase %d", prev))
	}
	return string(data), nil
}

func writeWorking(env *phase.Env, phaseNum int, text string) error {
	return os.WriteFile(env.PhaseOutput(phaseNum), []byte(text), 0644)
}
