package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/taskmesh/orchestrator/internal/agent"
)

// ErrAgentNotFound is returned when a lookup misses.
var ErrAgentNotFound = fmt.Errorf("agent not found")

// ErrAlreadyRegistered is returned when Register sees an id/version pair
// it has already accepted — registration must be idempotent under
// hot-reload (spec §4.10), so callers should treat this as a no-op, not a
// fatal error.
var ErrAlreadyRegistered = fmt.Errorf("agent already registered at this version")

// AgentRegistry is the Agent Registry (spec §4.10): an in-memory,
// concurrency-safe map from agent id to the currently loaded Agent,
// de-duplicating repeat registrations of the same plugin version so a
// hot-reloading plugin loader can call Register freely.
type AgentRegistry struct {
	mu       sync.RWMutex
	agents   map[string]*agent.Agent
	versions map[string]string
}

// NewAgentRegistry returns an empty registry.
func NewAgentRegistry() *AgentRegistry {
	return &AgentRegistry{
		agents:   make(map[string]*agent.Agent),
		versions: make(map[string]string),
	}
}

// Register adds or replaces a.ID's registration. If version matches the
// currently stored version for a.ID, Register is a no-op returning
// ErrAlreadyRegistered (not fatal — the hot-reload watcher calls Register
// unconditionally on every filesystem event).
func (r *AgentRegistry) Register(a *agent.Agent, version string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existingVersion, ok := r.versions[a.ID]; ok && existingVersion == version {
		return ErrAlreadyRegistered
	}

	a.Start()
	r.agents[a.ID] = a
	r.versions[a.ID] = version
	return nil
}

// Unregister stops and removes id's registration.
func (r *AgentRegistry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.agents[id]; ok {
		a.Stop()
	}
	delete(r.agents, id)
	delete(r.versions, id)
}

// Get implements executor.AgentSource.
func (r *AgentRegistry) Get(id string) (*agent.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, id)
	}
	return a, nil
}

// Running implements scheduler.AgentSource: every registered agent
// currently in StateRunning, sorted by id for deterministic selection
// among equal-load candidates.
func (r *AgentRegistry) Running() []*agent.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*agent.Agent, 0, len(r.agents))
	for _, a := range r.agents {
		if a.State == agent.StateRunning {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// List returns every registered agent regardless of state, for
// GET /api/agents.
func (r *AgentRegistry) List() []*agent.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*agent.Agent, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
