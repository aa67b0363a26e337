package state

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var stepRe = regexp.MustCompile(`^\d+\.\d+$`)

var validStatuses = map[string]bool{
	StatusInProgress: true,
	StatusCompleted:  true,
	StatusFailed:     true,
	StatusCancelled:  true,
}

var validOutcomes = map[string]bool{
	OutcomeSuccess: true,
	OutcomeWarning: true,
	OutcomeError:   true,
	OutcomeSkipped: true,
}

// migrate upgrades older recognized schema versions in place and refuses
// newer ones.
func migrate(c *Conversion) error {
	switch c.Version {
	case SchemaVersion:
		return nil
	case "":
		return fmt.Errorf("state: 'version' is required")
	}
	if newerVersion(c.Version, SchemaVersion) {
		return fmt.Errorf("state: version %s is newer than supported %s — upgrade pdf-convert", c.Version, SchemaVersion)
	}
	// No older schema has shipped; recognizing one lands here.
	return fmt.Errorf("state: unrecognized version %q", c.Version)
}

func newerVersion(a, b string) bool {
	pa, pb := splitVersion(a), splitVersion(b)
	for i := 0; i < 2; i++ {
		if pa[i] != pb[i] {
			return pa[i] > pb[i]
		}
	}
	return false
}

func splitVersion(v string) [2]int {
	var out [2]int
	for i, p := range strings.SplitN(v, ".", 2) {
		n, err := strconv.Atoi(p)
		if err != nil {
			return out
		}
		out[i] = n
	}
	return out
}

// Validate checks the structural invariants of a loaded state record.
func Validate(c *Conversion) error {
	if c.PDFPath == "" {
		return fmt.Errorf("state: 'pdf_path' is required")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("state: 'output_dir' is required")
	}
	if !validStatuses[c.Status] {
		return fmt.Errorf("state: invalid status %q", c.Status)
	}
	if c.CurrentPhase < 0 || c.CurrentPhase > 10 {
		return fmt.Errorf("state: current_phase %d out of range 0-10", c.CurrentPhase)
	}
	if c.CurrentStep != "" && !stepRe.MatchString(c.CurrentStep) {
		return fmt.Errorf("state: current_step %q does not match N.M", c.CurrentStep)
	}
	prev := -1
	for _, p := range c.CompletedPhases {
		if p <= prev {
			return fmt.Errorf("state: completed_phases not strictly ascending at %d", p)
		}
		if c.Status == StatusInProgress && p >= c.CurrentPhase {
			return fmt.Errorf("state: completed phase %d is not less than current_phase %d", p, c.CurrentPhase)
		}
		prev = p
	}
	for k, pr := range c.PhaseResults {
		if pr == nil {
			return fmt.Errorf("state: phase_results[%s] is null", k)
		}
		if !validOutcomes[pr.Status] {
			return fmt.Errorf("state: phase %s: invalid status %q", k, pr.Status)
		}
		for _, st := range pr.Steps {
			if !stepRe.MatchString(st.StepID) {
				return fmt.Errorf("state: phase %s: step id %q does not match N.M", k, st.StepID)
			}
			if !validOutcomes[st.Status] {
				return fmt.Errorf("state: step %s: invalid status %q", st.StepID, st.Status)
			}
		}
	}
	return nil
}

// CheckOutputs verifies that every completed phase's declared output file
// exists on disk, returning the missing phase numbers.
func (c *Conversion) CheckOutputs() []int {
	var missing []int
	for _, p := range c.CompletedPhases {
		pr, ok := c.PhaseResults[fmt.Sprintf("%d", p)]
		if !ok || pr.OutputFile == "" {
			continue
		}
		path := pr.OutputFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(c.OutputDir, path)
		}
		if _, err := os.Stat(filepath.FromSlash(path)); err != nil {
			missing = append(missing, p)
		}
	}
	return missing
}
