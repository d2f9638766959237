// Package agent defines the Agent contract: a worker that maps a
// serialized input string and an execution context to an output string,
// optionally invoking tools through the Tool Manager.
package agent

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrAgentNotFound is returned when a referenced agent id has no
	// registration.
	ErrAgentNotFound = errors.New("agent not found")

	// ErrAgentStopped is returned for operations against an agent whose
	// State is StateStopped or StateFailed.
	ErrAgentStopped = errors.New("agent is stopped")
)

// State is the lifecycle state of a registered agent.
type State string

const (
	StateCreated State = "created"
	StateRunning State = "running"
	StatePaused  State = "paused"
	StateStopped State = "stopped"
	StateFailed  State = "failed"
)

// RunOptions carries the per-invocation context every handler receives:
// the owning task id and optional variables. The cancellation signal
// arrives separately as the Handler's ctx; handlers must propagate ctx to
// any I/O they start.
type RunOptions struct {
	TaskID string
	Vars   map[string]interface{}
}

// Handler maps a serialized input string to a serialized output string.
// It must return promptly once ctx is done.
type Handler func(ctx context.Context, input string, opts RunOptions) (string, error)

// Agent is one registered worker.
type Agent struct {
	ID   string
	Name string
	Type string

	// SuitabilityTags describe the kinds of task this agent is suited
	// for; the Scheduler ranks agents against a task's classifier output
	// using these tags (spec §4.7).
	SuitabilityTags []string

	// Metadata is surfaced verbatim by GET /api/agents.
	Metadata map[string]string

	State     State
	CreatedAt time.Time
	UpdatedAt time.Time

	Handler Handler
}

// New constructs an Agent in StateCreated.
func New(id, name, agentType string, handler Handler) *Agent {
	now := time.Now()
	return &Agent{
		ID:        id,
		Name:      name,
		Type:      agentType,
		Metadata:  make(map[string]string),
		State:     StateCreated,
		CreatedAt: now,
		UpdatedAt: now,
		Handler:   handler,
	}
}

// WithTags sets the suitability tags used by agent selection.
func (a *Agent) WithTags(tags ...string) *Agent {
	a.SuitabilityTags = tags
	return a
}

// Start transitions the agent to StateRunning.
func (a *Agent) Start() {
	a.State = StateRunning
	a.UpdatedAt = time.Now()
}

// Stop transitions the agent to StateStopped.
func (a *Agent) Stop() {
	a.State = StateStopped
	a.UpdatedAt = time.Now()
}

// Run invokes the agent's handler under ctx, after checking the agent is
// not stopped.
func (a *Agent) Run(ctx context.Context, input string, opts RunOptions) (string, error) {
	if a.State == StateStopped || a.State == StateFailed {
		return "", ErrAgentStopped
	}
	if a.Handler == nil {
		return "", errors.New("agent has no handler: " + a.ID)
	}
	return a.Handler(ctx, input, opts)
}
