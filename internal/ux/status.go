package ux

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/taji/gm-kit/internal/state"
)

// RenderStatus prints the phase status table for a conversion. Pure
// read; no state mutation.
func RenderStatus(st *state.Conversion) {
	fmt.Printf("%sSource:%s  %s\n", Bold, Reset, st.PDFPath)
	fmt.Printf("%sOutput:%s  %s\n", Bold, Reset, st.OutputDir)
	fmt.Printf("%sStatus:%s  %s\n", Bold, Reset, colorStatus(st.Status))
	if st.Status == state.StatusInProgress {
		fmt.Printf("%sAt:%s      phase %d, step %s\n", Bold, Reset, st.CurrentPhase, st.CurrentStep)
	}
	if st.Error != nil {
		fmt.Printf("%sError:%s   [%s] %s\n", Bold, Reset, st.Error.Code, st.Error.Message)
		if st.Error.Suggestion != "" {
			fmt.Printf("         %s%s%s\n", Dim, st.Error.Suggestion, Reset)
		}
	}

	nums := make([]int, 0, len(st.PhaseResults))
	for k := range st.PhaseResults {
		if n, err := strconv.Atoi(k); err == nil {
			nums = append(nums, n)
		}
	}
	sort.Ints(nums)
	if len(nums) == 0 {
		return
	}

	fmt.Printf("\n%sPhases:%s\n", Bold, Reset)
	for _, n := range nums {
		pr := st.PhaseResults[strconv.Itoa(n)]
		dur := ""
		if pr.CompletedAt != nil {
			dur = fmt.Sprintf("(%s)", pr.CompletedAt.Sub(pr.StartedAt).Round(1e7))
		}
		fmt.Printf("  %s%2d%s  %-28s %s  %s%s%s\n",
			Dim, n, Reset, pr.Name, outcomeBadge(pr.Status), Dim, dur, Reset)
		if pr.OutputFile != "" {
			fmt.Printf("      %s→ %s%s\n", Dim, pr.OutputFile, Reset)
		}
		for _, w := range pr.Warnings {
			fmt.Printf("      %s⚠ %s%s\n", Yellow, w, Reset)
		}
	}
	fmt.Println()
}

func colorStatus(s string) string {
	switch s {
	case state.StatusCompleted:
		return Green + s + Reset
	case state.StatusFailed:
		return Red + s + Reset
	case state.StatusCancelled:
		return Yellow + s + Reset
	}
	return s
}

func outcomeBadge(s string) string {
	switch s {
	case state.OutcomeSuccess:
		return Green + "done" + Reset
	case state.OutcomeWarning:
		return Yellow + "warn" + Reset
	case state.OutcomeError:
		return Red + "fail" + Reset
	case state.OutcomeSkipped:
		return Dim + "skip" + Reset
	}
	return s
}
