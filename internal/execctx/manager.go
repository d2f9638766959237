// Package execctx implements the Context Manager (spec §4.5): per-task
// variable bag, step history, deadline, and parent-inheritance rules.
package execctx

import (
	"sync"
	"time"
)

// Step is one recorded action within a task's execution.
type Step struct {
	Timestamp time.Time
	Agent     string
	Action    string
	Input     interface{}
	Output    interface{}
	Error     string
	Duration  time.Duration
}

// Context is the per-task execution state consumed by the executor and
// agents.
type Context struct {
	TaskID    string
	AgentID   string
	ParentID  string
	Depth     int
	StartTime time.Time
	Deadline  *time.Time

	mu        sync.Mutex
	variables map[string]interface{}
	history   []Step
	lastEnd   time.Time
}

// Variables returns a snapshot copy of the variable map.
func (c *Context) Variables() map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]interface{}, len(c.variables))
	for k, v := range c.variables {
		out[k] = v
	}
	return out
}

// Set stores a variable.
func (c *Context) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.variables == nil {
		c.variables = make(map[string]interface{})
	}
	c.variables[key] = value
}

// Get retrieves a variable.
func (c *Context) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.variables[key]
	return v, ok
}

// History returns a copy of the recorded steps, in append order.
func (c *Context) History() []Step {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Step, len(c.history))
	copy(out, c.history)
	return out
}

// Manager owns one Context per active task id.
type Manager struct {
	mu       sync.Mutex
	contexts map[string]*Context
}

// New creates an empty Manager.
func New() *Manager {
	return &Manager{contexts: make(map[string]*Context)}
}

// Create starts a new context for taskID, optionally with an absolute
// deadline.
func (m *Manager) Create(taskID, agentID, parentID string, depth int, deadline *time.Time) *Context {
	ctx := &Context{
		TaskID:    taskID,
		AgentID:   agentID,
		ParentID:  parentID,
		Depth:     depth,
		StartTime: time.Now(),
		Deadline:  deadline,
		variables: make(map[string]interface{}),
	}
	ctx.lastEnd = ctx.StartTime

	m.mu.Lock()
	m.contexts[taskID] = ctx
	m.mu.Unlock()
	return ctx
}

// Get returns the context for taskID, if still live.
func (m *Manager) Get(taskID string) (*Context, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ctx, ok := m.contexts[taskID]
	return ctx, ok
}

// InheritFromParent copies the parent's variables at call time (snapshot
// semantics — later parent mutations do not retroactively affect the
// child) into a freshly created child context.
func (m *Manager) InheritFromParent(parentID, childID, agentID string, deadline *time.Time) *Context {
	m.mu.Lock()
	parent, ok := m.contexts[parentID]
	m.mu.Unlock()

	depth := 0
	var snapshot map[string]interface{}
	if ok {
		depth = parent.Depth + 1
		snapshot = parent.Variables()
	}

	child := m.Create(childID, agentID, parentID, depth, deadline)
	for k, v := range snapshot {
		child.Set(k, v)
	}
	return child
}

// RecordStep appends one history entry to taskID's context, computing the
// duration from the previous step's end (or the context's start time).
func (m *Manager) RecordStep(taskID, action string, input, output interface{}, stepErr error) {
	m.mu.Lock()
	ctx, ok := m.contexts[taskID]
	m.mu.Unlock()
	if !ok {
		return
	}

	ctx.mu.Lock()
	defer ctx.mu.Unlock()

	now := time.Now()
	errMsg := ""
	if stepErr != nil {
		errMsg = stepErr.Error()
	}
	ctx.history = append(ctx.history, Step{
		Timestamp: now,
		Agent:     ctx.AgentID,
		Action:    action,
		Input:     input,
		Output:    output,
		Error:     errMsg,
		Duration:  now.Sub(ctx.lastEnd),
	})
	ctx.lastEnd = now
}

// IsWithinDeadline is a pure read: false once the context's deadline, if
// any, has passed.
func (m *Manager) IsWithinDeadline(taskID string) bool {
	m.mu.Lock()
	ctx, ok := m.contexts[taskID]
	m.mu.Unlock()
	if !ok || ctx.Deadline == nil {
		return true
	}
	return time.Now().Before(*ctx.Deadline)
}

// CleanupContext removes the per-task state. The executor calls this in a
// guaranteed-on-exit pattern (defer), regardless of success or failure.
func (m *Manager) CleanupContext(taskID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.contexts, taskID)
}
