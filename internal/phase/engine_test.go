package phase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/taji/gm-kit/internal/agent"
	"github.com/taji/gm-kit/internal/state"
)

// fakePhase writes its declared output and counts step executions.
type fakePhase struct {
	num     int
	name    string
	output  string
	stepIDs []string
	runs    map[string]int
	failOn  string
}

func newFakePhase(num int, stepIDs ...string) *fakePhase {
	return &fakePhase{
		num:     num,
		name:    fmt.Sprintf("fake phase %d", num),
		output:  fmt.Sprintf("phase%d.out", num),
		stepIDs: stepIDs,
		runs:    make(map[string]int),
	}
}

func (p *fakePhase) Num() int                  { return p.num }
func (p *fakePhase) Name() string              { return p.name }
func (p *fakePhase) OutputFile(env *Env) string { return p.output }

func (p *fakePhase) Steps(env *Env) []Step {
	var steps []Step
	for _, id := range p.stepIDs {
		id := id
		steps = append(steps, Step{
			ID:          id,
			Description: "fake step " + id,
			Run: func(ctx context.Context, env *Env) (*StepOutput, error) {
				p.runs[id]++
				if id == p.failOn {
					return nil, Errf(ExitPDFError, nil, "ERROR: fake failure", "try again")
				}
				if err := os.WriteFile(env.Artifact(p.output), []byte(id), 0644); err != nil {
					return nil, err
				}
				return OK(), nil
			},
		})
	}
	return steps
}

func newTestEngine(t *testing.T, phases ...Phase) *Engine {
	t.Helper()
	dir := t.TempDir()
	st := state.New(filepath.Join(dir, "book.pdf"), dir, state.Config{NonInteractive: true})
	logger := log.New(io.Discard)
	return &Engine{
		Phases: phases,
		Env: &Env{
			PDFPath:   st.PDFPath,
			OutputDir: dir,
			DocName:   "book",
			State:     st,
			Confirm:   AutoConfirmer{},
			Agent:     agent.Stub{},
			Log:       logger,
		},
	}
}

func TestEngineRunCompletesAllPhases(t *testing.T) {
	p0 := newFakePhase(0, "0.1", "0.2")
	p1 := newFakePhase(1, "1.1")
	e := newTestEngine(t, p0, p1)

	if err := e.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	st := e.Env.State
	if st.Status != state.StatusCompleted {
		t.Fatalf("status %q", st.Status)
	}
	if !st.PhaseCompleted(0) || !st.PhaseCompleted(1) {
		t.Fatalf("completed = %v", st.CompletedPhases)
	}
	// State-filesystem consistency: every completed phase's output exists.
	if missing := st.CheckOutputs(); len(missing) != 0 {
		t.Fatalf("missing outputs %v", missing)
	}
	// State was persisted.
	loaded, err := state.Load(e.Env.OutputDir)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Status != state.StatusCompleted {
		t.Fatalf("persisted status %q", loaded.Status)
	}
}

func TestEngineSkipsCompletedPhases(t *testing.T) {
	p0 := newFakePhase(0, "0.1")
	p1 := newFakePhase(1, "1.1")
	e := newTestEngine(t, p0, p1)

	// Pretend phase 0 already ran.
	st := e.Env.State
	pr := st.Result(0, p0.Name())
	pr.SetStep(state.StepResult{StepID: "0.1", Status: state.OutcomeSuccess})
	pr.OutputFile = p0.output
	if err := os.WriteFile(e.Env.Artifact(p0.output), []byte("prior"), 0644); err != nil {
		t.Fatal(err)
	}
	st.MarkCompleted(0)
	st.CurrentPhase = 1

	if err := e.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if p0.runs["0.1"] != 0 {
		t.Fatalf("completed phase re-ran %d times", p0.runs["0.1"])
	}
	if p1.runs["1.1"] != 1 {
		t.Fatalf("pending phase ran %d times", p1.runs["1.1"])
	}
	data, _ := os.ReadFile(e.Env.Artifact(p0.output))
	if string(data) != "prior" {
		t.Fatalf("prior artifact rewritten: %q", data)
	}
}

func TestEngineResumeSkipsDurableSteps(t *testing.T) {
	p0 := newFakePhase(0, "0.1", "0.2", "0.3")
	e := newTestEngine(t, p0)

	pr := e.Env.State.Result(0, p0.Name())
	pr.SetStep(state.StepResult{StepID: "0.1", Status: state.OutcomeSuccess})
	pr.SetStep(state.StepResult{StepID: "0.2", Status: state.OutcomeSuccess})

	if err := e.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if p0.runs["0.1"] != 0 || p0.runs["0.2"] != 0 {
		t.Fatalf("durable steps re-ran: %v", p0.runs)
	}
	if p0.runs["0.3"] != 1 {
		t.Fatalf("remaining step runs = %d", p0.runs["0.3"])
	}
}

func TestEngineFailureRecordsError(t *testing.T) {
	p0 := newFakePhase(0, "0.1", "0.2")
	p0.failOn = "0.2"
	e := newTestEngine(t, p0)

	err := e.Run(context.Background())
	if err == nil {
		t.Fatal("failure not propagated")
	}
	var perr *Error
	if !errors.As(err, &perr) || perr.Code != ExitPDFError {
		t.Fatalf("error %v", err)
	}
	st := e.Env.State
	if st.Status != state.StatusFailed {
		t.Fatalf("status %q", st.Status)
	}
	if st.Error == nil || st.Error.Phase != 0 || st.Error.Step != "0.2" {
		t.Fatalf("error record %+v", st.Error)
	}
	if st.Error.Code != "PDF_ERROR" {
		t.Fatalf("error code %q", st.Error.Code)
	}
}

func TestEngineRetryAfterFailure(t *testing.T) {
	p0 := newFakePhase(0, "0.1", "0.2")
	p0.failOn = "0.2"
	e := newTestEngine(t, p0)
	if err := e.Run(context.Background()); err == nil {
		t.Fatal("expected failure")
	}

	p0.failOn = ""
	e.Env.State.Status = state.StatusInProgress
	e.Env.State.Error = nil
	if err := e.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if p0.runs["0.1"] != 1 {
		t.Fatalf("succeeded step re-ran: %v", p0.runs)
	}
	if p0.runs["0.2"] != 2 {
		t.Fatalf("failed step runs = %d, want 2", p0.runs["0.2"])
	}
}

func TestRunSingleResetsOnlyThatPhase(t *testing.T) {
	p0 := newFakePhase(0, "0.1")
	p1 := newFakePhase(1, "1.1")
	e := newTestEngine(t, p0, p1)
	if err := e.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := e.RunSingle(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	if p0.runs["0.1"] != 1 {
		t.Fatalf("phase 0 re-ran: %v", p0.runs)
	}
	if p1.runs["1.1"] != 2 {
		t.Fatalf("phase 1 runs = %d, want 2", p1.runs["1.1"])
	}
	if got := e.Env.State.PhaseResults["0"]; got == nil || len(got.Steps) != 1 {
		t.Fatalf("phase 0 record disturbed: %+v", got)
	}
}

func TestRunFromStepSkipsEarlierSteps(t *testing.T) {
	p5 := newFakePhase(5, "5.1", "5.2", "5.3")
	e := newTestEngine(t, p5)
	if err := e.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := e.RunFrom(context.Background(), "5.2"); err != nil {
		t.Fatal(err)
	}
	if p5.runs["5.1"] != 1 {
		t.Fatalf("earlier step re-ran: %v", p5.runs)
	}
	if p5.runs["5.2"] != 2 || p5.runs["5.3"] != 2 {
		t.Fatalf("later steps: %v", p5.runs)
	}
}

func TestRunSingleRequiresPrerequisites(t *testing.T) {
	p0 := newFakePhase(0, "0.1")
	p1 := newFakePhase(1, "1.1")
	e := newTestEngine(t, p0, p1)
	if err := e.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	// Delete phase 0's output; re-running phase 1 must refuse.
	os.Remove(e.Env.Artifact(p0.output))
	err := e.RunSingle(context.Background(), 1)
	var perr *Error
	if !errors.As(err, &perr) || perr.Code != ExitStateError {
		t.Fatalf("error %v", err)
	}
}

func TestParseStepID(t *testing.T) {
	n, m, err := ParseStepID("5.3")
	if err != nil || n != 5 || m != 3 {
		t.Fatalf("got %d.%d err=%v", n, m, err)
	}
	for _, bad := range []string{"5", "a.b", "11.1", "5.0", ""} {
		if _, _, err := ParseStepID(bad); err == nil {
			t.Fatalf("accepted %q", bad)
		}
	}
}

func TestAgentStepRetriesThenSkips(t *testing.T) {
	attempts := 0
	r := agent.Func(func(ctx context.Context, stepID, input string) (string, error) {
		attempts++
		return "", fmt.Errorf("flaky")
	})
	resp, ok, err := AgentStep(context.Background(), r, "3.2", "in", func(string) error { return nil }, LowCriticality)
	if err != nil || ok || resp != "" {
		t.Fatalf("resp=%q ok=%v err=%v", resp, ok, err)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
}

func TestAgentStepHaltsOnHighCriticality(t *testing.T) {
	r := agent.Func(func(ctx context.Context, stepID, input string) (string, error) {
		return "garbage", nil
	})
	validate := func(string) error { return fmt.Errorf("invalid") }
	_, ok, err := AgentStep(context.Background(), r, "3.2", "in", validate, HighCriticality)
	if ok || err == nil {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	var perr *Error
	if !errors.As(err, &perr) {
		t.Fatalf("error type %T", err)
	}
}

func TestAgentStepUnavailableDoesNotRetry(t *testing.T) {
	attempts := 0
	r := agent.Func(func(ctx context.Context, stepID, input string) (string, error) {
		attempts++
		return "", agent.ErrUnavailable
	})
	_, ok, err := AgentStep(context.Background(), r, "3.2", "in", func(string) error { return nil }, LowCriticality)
	if err != nil || ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1", attempts)
	}
}

func TestAgentStepSucceedsAfterRetry(t *testing.T) {
	attempts := 0
	r := agent.Func(func(ctx context.Context, stepID, input string) (string, error) {
		attempts++
		if attempts < 2 {
			return "bad", nil
		}
		return "good", nil
	})
	validate := func(s string) error {
		if s != "good" {
			return fmt.Errorf("not good")
		}
		return nil
	}
	resp, ok, err := AgentStep(context.Background(), r, "4.2", "in", validate, HighCriticality)
	if err != nil || !ok || resp != "good" {
		t.Fatalf("resp=%q ok=%v err=%v", resp, ok, err)
	}
}

func TestSanitizeName(t *testing.T) {
	if got := SanitizeName("/tmp/My: Book?.pdf"); got != "My_ Book_" {
		t.Fatalf("got %q", got)
	}
	if got := SanitizeName("/tmp/clean-name.pdf"); got != "clean-name" {
		t.Fatalf("got %q", got)
	}
}
