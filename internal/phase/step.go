package phase

import (
	"context"
)

// StepOutput is the pure result a step hands back to the engine. Steps
// never touch the state file themselves.
type StepOutput struct {
	Status     string // state.OutcomeSuccess, OutcomeWarning or OutcomeSkipped
	Message    string
	OutputFile string
	Warnings   []string
}

// OK is the plain success output.
func OK() *StepOutput { return &StepOutput{} }

// Warn is a success-with-warnings output.
func Warn(warnings ...string) *StepOutput {
	return &StepOutput{Warnings: warnings}
}

// Skipped marks a step that decided it had nothing to do.
func Skipped(msg string) *StepOutput {
	return &StepOutput{Status: "SKIPPED", Message: msg}
}

// Step is the engine's unit of execution and the resume granularity.
type Step struct {
	ID          string
	Description string
	Run         func(ctx context.Context, env *Env) (*StepOutput, error)
}

// Phase is an opaque pipeline stage. The engine sequences phases by
// number; a phase reads prior artifacts from the output directory and
// writes its own.
type Phase interface {
	Num() int
	Name() string
	// OutputFile is the phase's declared primary artifact, relative to
	// the output directory, or "" when the phase only mutates state.
	OutputFile(env *Env) string
	Steps(env *Env) []Step
}
