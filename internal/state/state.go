// Package state persists the conversion record that makes the pipeline
// resumable. The orchestrator is the only writer; phases never touch it.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// SchemaVersion is written into every state file. Newer files are
// refused; older recognized versions are migrated on load.
const SchemaVersion = "1.0"

// FileName is the state file name inside the output directory.
const FileName = ".state.json"

const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"
)

// Step and phase outcome statuses.
const (
	OutcomeSuccess = "SUCCESS"
	OutcomeWarning = "WARNING"
	OutcomeError   = "ERROR"
	OutcomeSkipped = "SKIPPED"
)

// StepResult records one step execution.
type StepResult struct {
	StepID      string `json:"step_id"`
	Description string `json:"description"`
	Status      string `json:"status"`
	DurationMS  int64  `json:"duration_ms"`
	OutputFile  string `json:"output_file,omitempty"`
	Message     string `json:"message,omitempty"`
}

// PhaseResult records one phase execution.
type PhaseResult struct {
	PhaseNum    int          `json:"phase_num"`
	Name        string       `json:"name"`
	Status      string       `json:"status"`
	StartedAt   time.Time    `json:"started_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
	Steps       []StepResult `json:"steps"`
	OutputFile  string       `json:"output_file,omitempty"`
	Warnings    []string     `json:"warnings,omitempty"`
	Errors      []string     `json:"errors,omitempty"`
}

// ErrorRecord captures the failure that halted a run.
type ErrorRecord struct {
	Phase       int    `json:"phase"`
	Step        string `json:"step,omitempty"`
	Code        string `json:"code"`
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
	Suggestion  string `json:"suggestion,omitempty"`
}

// Config carries the run options that survive a resume.
type Config struct {
	Diagnostics       bool     `json:"diagnostics"`
	NonInteractive    bool     `json:"non_interactive"`
	CalloutConfigPath string   `json:"callout_config_path,omitempty"`
	GMKeywords        []string `json:"gm_keywords,omitempty"`
}

// Conversion is the persisted pipeline state.
type Conversion struct {
	Version         string                  `json:"version"`
	PDFPath         string                  `json:"pdf_path"`
	OutputDir       string                  `json:"output_dir"`
	StartedAt       time.Time               `json:"started_at"`
	UpdatedAt       time.Time               `json:"updated_at"`
	CurrentPhase    int                     `json:"current_phase"`
	CurrentStep     string                  `json:"current_step"`
	CompletedPhases []int                   `json:"completed_phases"`
	PhaseResults    map[string]*PhaseResult `json:"phase_results"`
	Status          string                  `json:"status"`
	Error           *ErrorRecord            `json:"error,omitempty"`
	Config          Config                  `json:"config"`
	LockPID         int                     `json:"lock_pid,omitempty"`
}

// New creates the initial state for a fresh conversion. Paths are stored
// absolute and forward-slash normalized.
func New(pdfPath, outputDir string, cfg Config) *Conversion {
	now := time.Now().UTC()
	return &Conversion{
		Version:      SchemaVersion,
		PDFPath:      filepath.ToSlash(pdfPath),
		OutputDir:    filepath.ToSlash(outputDir),
		StartedAt:    now,
		UpdatedAt:    now,
		CurrentPhase: 0,
		CurrentStep:  "0.1",
		Status:       StatusInProgress,
		PhaseResults: make(map[string]*PhaseResult),
		Config:       cfg,
	}
}

func Path(outputDir string) string {
	return filepath.Join(outputDir, FileName)
}

// Exists reports whether a state file is present in outputDir.
func Exists(outputDir string) bool {
	_, err := os.Stat(Path(outputDir))
	return err == nil
}

// Load reads and validates the state file in outputDir.
func Load(outputDir string) (*Conversion, error) {
	data, err := os.ReadFile(Path(outputDir))
	if err != nil {
		return nil, err
	}
	var c Conversion
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("state file corrupt: %w", err)
	}
	if err := migrate(&c); err != nil {
		return nil, err
	}
	if err := Validate(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

// Save writes the state atomically, stamping updated_at.
func (c *Conversion) Save() error {
	c.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(Path(c.OutputDir), append(data, '\n'), 0644)
}

// Result returns the record for phase n, creating it if absent.
func (c *Conversion) Result(n int, name string) *PhaseResult {
	k := fmt.Sprintf("%d", n)
	if pr, ok := c.PhaseResults[k]; ok {
		return pr
	}
	pr := &PhaseResult{PhaseNum: n, Name: name, Status: OutcomeSuccess, StartedAt: time.Now().UTC()}
	c.PhaseResults[k] = pr
	return pr
}

// SetStep records a step result, replacing any earlier record for the
// same step id so re-executions do not accumulate.
func (pr *PhaseResult) SetStep(sr StepResult) {
	for i := range pr.Steps {
		if pr.Steps[i].StepID == sr.StepID {
			pr.Steps[i] = sr
			return
		}
	}
	pr.Steps = append(pr.Steps, sr)
}

// ResetPhase discards the record for phase n and removes it from the
// completed list, for selective re-execution.
func (c *Conversion) ResetPhase(n int) {
	delete(c.PhaseResults, fmt.Sprintf("%d", n))
	var kept []int
	for _, p := range c.CompletedPhases {
		if p != n {
			kept = append(kept, p)
		}
	}
	c.CompletedPhases = kept
}

// ResetFromStep drops the recorded results of phase n from step id on,
// keeping earlier steps' records so their outputs stay trusted. The
// phase leaves the completed list.
func (c *Conversion) ResetFromStep(n int, stepID string) {
	pr, ok := c.PhaseResults[fmt.Sprintf("%d", n)]
	if ok {
		var kept []StepResult
		for _, sr := range pr.Steps {
			if stepOrd(sr.StepID) < stepOrd(stepID) {
				kept = append(kept, sr)
			}
		}
		pr.Steps = kept
		pr.Status = OutcomeSuccess
		pr.CompletedAt = nil
		pr.Errors = nil
		pr.Warnings = nil
	}
	var keptPhases []int
	for _, p := range c.CompletedPhases {
		if p != n {
			keptPhases = append(keptPhases, p)
		}
	}
	c.CompletedPhases = keptPhases
	c.Error = nil
}

// stepOrd maps "N.M" to a sortable integer; malformed ids sort first.
func stepOrd(id string) int {
	var n, m int
	if _, err := fmt.Sscanf(id, "%d.%d", &n, &m); err != nil {
		return -1
	}
	return n*1000 + m
}

// MarkCompleted adds n to the completed list, keeping it sorted.
func (c *Conversion) MarkCompleted(n int) {
	for _, p := range c.CompletedPhases {
		if p == n {
			return
		}
	}
	c.CompletedPhases = append(c.CompletedPhases, n)
	sort.Ints(c.CompletedPhases)
}

// PhaseCompleted reports whether phase n has completed.
func (c *Conversion) PhaseCompleted(n int) bool {
	for _, p := range c.CompletedPhases {
		if p == n {
			return true
		}
	}
	return false
}

// SetError records the failure that halts the run.
func (c *Conversion) SetError(rec ErrorRecord) {
	c.Status = StatusFailed
	c.Error = &rec
}
