package phase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/taji/gm-kit/internal/state"
	"github.com/taji/gm-kit/internal/ux"
)

// Engine drives the registered phases against one conversion state. It
// is the only component that mutates the state file.
type Engine struct {
	Phases []Phase
	Env    *Env
}

// Find returns the registered phase with the given number.
func (e *Engine) Find(n int) Phase {
	for _, p := range e.Phases {
		if p.Num() == n {
			return p
		}
	}
	return nil
}

// Run executes all phases from the current state position. Phases whose
// number is already in completed_phases are skipped.
func (e *Engine) Run(ctx context.Context) error {
	for _, p := range e.Phases {
		if e.Env.State.PhaseCompleted(p.Num()) {
			ux.PhaseSkip(p.Num(), p.Name())
			continue
		}
		if err := e.runPhase(ctx, p, ""); err != nil {
			return e.fail(p, err)
		}
	}
	st := e.Env.State
	st.Status = state.StatusCompleted
	st.Error = nil
	if err := e.save(); err != nil {
		return err
	}
	ux.Success(len(e.Phases))
	return nil
}

// RunSingle re-executes exactly one phase. Its status and step tracking
// are reset; other phase records are untouched.
func (e *Engine) RunSingle(ctx context.Context, n int) error {
	p := e.Find(n)
	if p == nil {
		return Errf(ExitFileError, nil, fmt.Sprintf("ERROR: Unknown phase %d", n), "valid phases are 0-10")
	}
	if err := e.checkPrerequisites(n); err != nil {
		return err
	}
	// Status is left as-is while the phase re-runs: phases completed
	// after n stay recorded, which in_progress would declare invalid.
	e.Env.State.ResetPhase(n)
	if err := e.runPhase(ctx, p, ""); err != nil {
		return e.fail(p, err)
	}
	e.finishSelective()
	return e.save()
}

// finishSelective settles status after a selective re-execution.
func (e *Engine) finishSelective() {
	st := e.Env.State
	st.Error = nil
	if len(st.CompletedPhases) == len(e.Phases) {
		st.Status = state.StatusCompleted
	}
}

// RunFrom re-executes phase N from step N.M onward, trusting the outputs
// of earlier steps, then continues through the remaining phases.
func (e *Engine) RunFrom(ctx context.Context, stepID string) error {
	n, _, err := ParseStepID(stepID)
	if err != nil {
		return err
	}
	p := e.Find(n)
	if p == nil {
		return Errf(ExitFileError, nil, fmt.Sprintf("ERROR: Unknown phase %d", n), "valid phases are 0-10")
	}
	if err := e.checkPrerequisites(n); err != nil {
		return err
	}
	st := e.Env.State
	st.ResetFromStep(n, stepID)
	if err := e.runPhase(ctx, p, stepID); err != nil {
		return e.fail(p, err)
	}
	for _, next := range e.Phases {
		if next.Num() <= n || st.PhaseCompleted(next.Num()) {
			continue
		}
		if err := e.runPhase(ctx, next, ""); err != nil {
			return e.fail(next, err)
		}
	}
	e.finishSelective()
	return e.save()
}

// checkPrerequisites verifies every earlier completed phase still has its
// declared output on disk.
func (e *Engine) checkPrerequisites(n int) error {
	for _, missing := range e.Env.State.CheckOutputs() {
		if missing < n {
			return Errf(ExitStateError, nil,
				fmt.Sprintf("%s %d", MsgMissingOutput, missing),
				fmt.Sprintf("re-run phase %d", missing))
		}
	}
	return nil
}

func (e *Engine) runPhase(ctx context.Context, p Phase, fromStep string) error {
	st := e.Env.State
	pr := st.Result(p.Num(), p.Name())
	steps := p.Steps(e.Env)
	ux.PhaseHeader(p.Num(), len(e.Phases), p.Name())

	done := make(map[string]bool)
	for _, sr := range pr.Steps {
		if sr.Status != state.OutcomeError {
			done[sr.StepID] = true
		}
	}

	for _, stp := range steps {
		if fromStep != "" && stepLess(stp.ID, fromStep) {
			continue // trusted prior output
		}
		if done[stp.ID] {
			continue // resume: already durable
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		st.CurrentPhase = p.Num()
		st.CurrentStep = stp.ID
		if err := e.save(); err != nil {
			return err
		}

		start := time.Now()
		out, err := stp.Run(ctx, e.Env)
		dur := time.Since(start).Milliseconds()
		if err != nil {
			pr.SetStep(state.StepResult{
				StepID:      stp.ID,
				Description: stp.Description,
				Status:      state.OutcomeError,
				DurationMS:  dur,
				Message:     err.Error(),
			})
			pr.Status = state.OutcomeError
			pr.Errors = append(pr.Errors, fmt.Sprintf("%s: %v", stp.ID, err))
			if saveErr := e.save(); saveErr != nil {
				return saveErr
			}
			return err
		}
		if out == nil {
			out = OK()
		}
		status := out.Status
		if status == "" {
			status = state.OutcomeSuccess
		}
		if len(out.Warnings) > 0 {
			status = state.OutcomeWarning
			pr.Warnings = append(pr.Warnings, out.Warnings...)
			if pr.Status == state.OutcomeSuccess {
				pr.Status = state.OutcomeWarning
			}
			for _, w := range out.Warnings {
				ux.Warning(w)
			}
		}
		pr.SetStep(state.StepResult{
			StepID:      stp.ID,
			Description: stp.Description,
			Status:      status,
			DurationMS:  dur,
			OutputFile:  out.OutputFile,
			Message:     out.Message,
		})
		if err := e.save(); err != nil {
			return err
		}
		ux.StepComplete(stp.ID, stp.Description, time.Since(start))
	}

	now := time.Now().UTC()
	pr.CompletedAt = &now
	pr.Status = state.OutcomeSuccess
	if len(pr.Warnings) > 0 {
		pr.Status = state.OutcomeWarning
	}
	if out := p.OutputFile(e.Env); out != "" {
		pr.OutputFile = filepath.ToSlash(out)
		if _, err := os.Stat(e.Env.Artifact(out)); err != nil {
			pr.Status = state.OutcomeError
			return Errf(ExitPDFError, err,
				fmt.Sprintf("ERROR: Phase %d completed without its output %s", p.Num(), out), "re-run the phase")
		}
	}
	st.MarkCompleted(p.Num())
	if p.Num() < 10 {
		st.CurrentPhase = p.Num() + 1
		st.CurrentStep = fmt.Sprintf("%d.1", p.Num()+1)
	} else {
		// The final phase is done; in_progress would leave the
		// completed list colliding with current_phase.
		st.Status = state.StatusCompleted
	}
	if err := e.save(); err != nil {
		return err
	}
	ux.PhaseComplete(p.Num(), p.Name())
	return nil
}

// save persists state, mapping write failures to the disk-full error per
// the failure contract.
func (e *Engine) save() error {
	if err := e.Env.State.Save(); err != nil {
		return Errf(ExitPDFError, err, MsgDiskFull, "free disk space and resume")
	}
	return nil
}

// fail records the terminal error in state before propagating it.
func (e *Engine) fail(p Phase, err error) error {
	st := e.Env.State
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		// Interrupted: leave status in_progress so resume picks up from
		// the last durable step.
		_ = st.Save()
		ux.ResumeHint(e.Env.OutputDir)
		return err
	}

	var perr *Error
	if !errors.As(err, &perr) {
		perr = Errf(ExitPDFError, err, "ERROR: PDF processing failed", "")
	}
	if perr.Code == ExitUserAbort {
		st.Status = state.StatusCancelled
	} else {
		st.SetError(state.ErrorRecord{
			Phase:       p.Num(),
			Step:        st.CurrentStep,
			Code:        codeName(perr.Code),
			Message:     perr.Message,
			Recoverable: perr.Recoverable,
			Suggestion:  perr.Suggestion,
		})
	}
	if saveErr := st.Save(); saveErr != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to save state: %v\n", saveErr)
	}
	if perr.Code != ExitUserAbort {
		ux.ResumeHint(e.Env.OutputDir)
	}
	return perr
}

func codeName(code int) string {
	switch code {
	case ExitUserAbort:
		return "USER_ABORT"
	case ExitFileError:
		return "FILE_ERROR"
	case ExitPDFError:
		return "PDF_ERROR"
	case ExitStateError:
		return "STATE_ERROR"
	case ExitDepError:
		return "DEPENDENCY_ERROR"
	}
	return "UNKNOWN"
}

// ParseStepID splits "N.M" into phase and step numbers.
func ParseStepID(id string) (phaseNum, stepNum int, err error) {
	parts := strings.SplitN(id, ".", 2)
	if len(parts) != 2 {
		return 0, 0, Errf(ExitFileError, nil, fmt.Sprintf("ERROR: Invalid step id %q", id), "use the N.M form, e.g. 5.3")
	}
	phaseNum, err1 := strconv.Atoi(parts[0])
	stepNum, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || phaseNum < 0 || phaseNum > 10 || stepNum < 1 {
		return 0, 0, Errf(ExitFileError, nil, fmt.Sprintf("ERROR: Invalid step id %q", id), "use the N.M form, e.g. 5.3")
	}
	return phaseNum, stepNum, nil
}

// stepLess orders step ids numerically within a phase.
func stepLess(a, b string) bool {
	pa, sa, errA := ParseStepID(a)
	pb, sb, errB := ParseStepID(b)
	if errA != nil || errB != nil {
		return a < b
	}
	if pa != pb {
		return pa < pb
	}
	return sa < sb
}
