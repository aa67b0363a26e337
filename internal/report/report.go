// Package report carries the built-in fallbacks for phases 9 and 10.
// The full markdown linter and report generator are external
// collaborators; these implementations keep the pipeline complete when
// they are absent: a structural self-check and a state-derived summary.
package report

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/taji/gm-kit/internal/marker"
	"github.com/taji/gm-kit/internal/phase"
	"github.com/taji/gm-kit/internal/state"
)

// LintPhase is phase 9.
type LintPhase struct{}

func NewLint() *LintPhase { return &LintPhase{} }

func (*LintPhase) Num() int     { return 9 }
func (*LintPhase) Name() string { return "markdown lint" }

func (*LintPhase) OutputFile(env *phase.Env) string { return "" }

func (*LintPhase) Steps(env *phase.Env) []phase.Step {
	return []phase.Step{
		{ID: "9.1", Description: "structural self-check", Run: stepLint},
	}
}

func stepLint(ctx context.Context, env *phase.Env) (*phase.StepOutput, error) {
	data, err := os.ReadFile(env.PhaseOutput(8))
	if err != nil {
		return nil, phase.Errf(phase.ExitStateError, err, phase.MsgMissingOutput+" 8", "re-run phase 8")
	}
	warnings := Lint(string(data))
	if len(warnings) > 0 {
		return phase.Warn(warnings...), nil
	}
	return phase.OK(), nil
}

// Lint re-checks the invariants phase 8 must have established.
func Lint(text string) []string {
	var warnings []string
	if locs := marker.Re.FindAllString(text, -1); len(locs) > 0 {
		warnings = append(warnings, fmt.Sprintf(
			"WARNING: %d unconsumed font markers remain (first: %s)", len(locs), locs[0]))
	}
	if strings.Contains(text, `\`+"«") || strings.Contains(text, `\`+"»") {
		warnings = append(warnings, "WARNING: escaped guillemets were not restored")
	}

	h1 := 0
	prev := 0
	inFence := false
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
			continue
		}
		if inFence || !strings.HasPrefix(line, "#") {
			continue
		}
		level := 0
		for level < len(line) && line[level] == '#' {
			level++
		}
		if level >= len(line) || line[level] != ' ' {
			continue
		}
		if level == 1 {
			h1++
		}
		if prev > 0 && level > prev+1 {
			warnings = append(warnings, fmt.Sprintf(
				"WARNING: heading level skip at %q", strings.TrimSpace(line)))
		}
		prev = level
	}
	if h1 != 1 {
		warnings = append(warnings, fmt.Sprintf("WARNING: document has %d top-level headings, want exactly 1", h1))
	}
	return warnings
}

// ReportPhase is phase 10.
type ReportPhase struct{}

func NewReport() *ReportPhase { return &ReportPhase{} }

func (*ReportPhase) Num() int     { return 10 }
func (*ReportPhase) Name() string { return "conversion report" }

func (*ReportPhase) OutputFile(env *phase.Env) string { return "conversion-report.md" }

func (*ReportPhase) Steps(env *phase.Env) []phase.Step {
	return []phase.Step{
		{ID: "10.1", Description: "write conversion report", Run: stepReport},
	}
}

func stepReport(ctx context.Context, env *phase.Env) (*phase.StepOutput, error) {
	text := Render(env.State, time.Now().UTC())
	if err := os.WriteFile(env.Artifact("conversion-report.md"), []byte(text), 0644); err != nil {
		return nil, err
	}
	return &phase.StepOutput{OutputFile: "conversion-report.md"}, nil
}

// Render builds the report markdown from the state record.
func Render(st *state.Conversion, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Conversion report\n\n")
	fmt.Fprintf(&b, "- Source: %s\n", st.PDFPath)
	fmt.Fprintf(&b, "- Output: %s\n", st.OutputDir)
	fmt.Fprintf(&b, "- Started: %s\n", st.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "- Finished: %s\n\n", now.Format(time.RFC3339))

	fmt.Fprintf(&b, "## Phases\n\n")
	fmt.Fprintf(&b, "| Phase | Name | Status | Steps |\n")
	fmt.Fprintf(&b, "|------:|------|--------|------:|\n")
	nums := make([]int, 0, len(st.PhaseResults))
	for k := range st.PhaseResults {
		if n, err := strconv.Atoi(k); err == nil {
			nums = append(nums, n)
		}
	}
	sort.Ints(nums)
	var allWarnings []string
	for _, n := range nums {
		pr := st.PhaseResults[strconv.Itoa(n)]
		fmt.Fprintf(&b, "| %d | %s | %s | %d |\n", n, pr.Name, pr.Status, len(pr.Steps))
		allWarnings = append(allWarnings, pr.Warnings...)
	}

	if len(allWarnings) > 0 {
		fmt.Fprintf(&b, "\n## Warnings\n\n")
		for _, w := range allWarnings {
			fmt.Fprintf(&b, "- %s\n", w)
		}
	}
	return b.String()
}
