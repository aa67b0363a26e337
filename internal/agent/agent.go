// Package agent defines the contract for AI-agent collaborator steps.
// The core owns retries and criticality-based escalation; the agent
// implementation owns the response.
package agent

import (
	"context"
	"errors"
)

// ErrUnavailable is returned by a runner that has no agent behind it.
// The engine turns it into a skip or a halt depending on criticality.
var ErrUnavailable = errors.New("agent runner unavailable")

// Runner executes one agent step attempt. The engine re-validates every
// response and decides whether to retry, skip or halt.
type Runner interface {
	Attempt(ctx context.Context, stepID, input string) (string, error)
}

// Stub is the in-tree runner: it has no agent and always reports
// unavailability, which exercises the engine's skip/halt paths.
type Stub struct{}

func (Stub) Attempt(context.Context, string, string) (string, error) {
	return "", ErrUnavailable
}

// Func adapts a function to the Runner interface, for tests.
type Func func(ctx context.Context, stepID, input string) (string, error)

func (f Func) Attempt(ctx context.Context, stepID, input string) (string, error) {
	return f(ctx, stepID, input)
}
