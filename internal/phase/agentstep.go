package phase

import (
	"context"
	"errors"
	"fmt"

	"github.com/taji/gm-kit/internal/agent"
)

const maxAgentAttempts = 3

// Criticality decides what happens when an agent step exhausts its
// retries: low-criticality steps are skipped, high-criticality steps
// halt the pipeline.
type Criticality int

const (
	LowCriticality Criticality = iota
	HighCriticality
)

// AgentStep runs one agent-collaborator step with the core-owned retry
// counter. Each response is re-validated; after three failed attempts
// (or the first one, when the runner reports ErrUnavailable) the step is
// skipped or escalated per its criticality. The returned bool reports
// whether a validated response was obtained.
func AgentStep(ctx context.Context, r agent.Runner, stepID, input string, validate func(string) error, crit Criticality) (string, bool, error) {
	var lastErr error
	made := 0
	for attempt := 1; attempt <= maxAgentAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", false, err
		}
		made = attempt
		resp, err := r.Attempt(ctx, stepID, input)
		if err != nil {
			if errors.Is(err, agent.ErrUnavailable) {
				// No agent behind the runner: no point retrying.
				lastErr = err
				break
			}
			lastErr = err
			continue
		}
		if err := validate(resp); err != nil {
			lastErr = fmt.Errorf("validation: %w", err)
			continue
		}
		return resp, true, nil
	}
	if crit == HighCriticality {
		return "", false, Errf(ExitPDFError, lastErr,
			fmt.Sprintf("ERROR: Agent step %s failed after %d attempts", stepID, made),
			"re-run with an agent collaborator configured")
	}
	return "", false, nil
}
