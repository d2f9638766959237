package toolmanager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/xeipuuv/gojsonschema"

	"github.com/taskmesh/orchestrator/internal/audit"
	"github.com/taskmesh/orchestrator/internal/events"
	"github.com/taskmesh/orchestrator/internal/replay"
)

// Manager registers tools, tracks per-agent permissions, enforces rate
// limits and timeouts, and records every call to the audit log, replay
// store, and event bus.
type Manager struct {
	log *logrus.Logger
	bus *events.Bus
	aud *audit.Log
	rep *replay.Store

	mu          sync.Mutex
	tools       map[string]Tool
	permissions map[string]map[string]bool // agentID -> toolName -> allowed
	windows     map[string]*rateWindow     // toolName -> window
}

type rateWindow struct {
	start time.Time
	count int
}

// New constructs a Manager over shared collaborators.
func New(log *logrus.Logger, bus *events.Bus, aud *audit.Log, rep *replay.Store) *Manager {
	return &Manager{
		log:         log,
		bus:         bus,
		aud:         aud,
		rep:         rep,
		tools:       make(map[string]Tool),
		permissions: make(map[string]map[string]bool),
		windows:     make(map[string]*rateWindow),
	}
}

// RegisterTool registers t under its own name, replacing any prior
// registration with the same name.
func (m *Manager) RegisterTool(t Tool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tools[t.Name()] = t
}

// GrantPermission allows agentID to invoke toolName.
func (m *Manager) GrantPermission(agentID, toolName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.permissions[agentID] == nil {
		m.permissions[agentID] = make(map[string]bool)
	}
	m.permissions[agentID][toolName] = true
}

// RevokePermission disallows agentID from invoking toolName.
func (m *Manager) RevokePermission(agentID, toolName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.permissions[agentID], toolName)
}

// SetPermissions replaces agentID's entire permission set.
func (m *Manager) SetPermissions(agentID string, toolNames []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := make(map[string]bool, len(toolNames))
	for _, n := range toolNames {
		set[n] = true
	}
	m.permissions[agentID] = set
}

// CanUseTool reports whether agentID may invoke toolName.
func (m *Manager) CanUseTool(agentID, toolName string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.permissions[agentID][toolName]
}

// CallTool executes the named tool on behalf of agentID, following the
// permission -> rate-limit -> validate -> execute -> record pipeline of
// spec §4.4.
func (m *Manager) CallTool(ctx context.Context, agentID string, req CallRequest) CallResult {
	m.mu.Lock()
	tool, ok := m.tools[req.ToolName]
	m.mu.Unlock()
	if !ok {
		return CallResult{Success: false, Error: fmt.Sprintf("tool not found: %s", req.ToolName), ErrorKind: KindValidation}
	}

	if !m.CanUseTool(agentID, req.ToolName) {
		m.aud.Record(audit.Event{
			Type: audit.EventPermissionDenied, AgentID: agentID, TaskID: req.TaskID, ToolName: req.ToolName,
		})
		return CallResult{Success: false, Error: "permission denied for tool " + req.ToolName, ErrorKind: KindPermission}
	}

	if limit := tool.RateLimitPerMinute(); limit > 0 && m.exceedsRate(req.ToolName, limit) {
		m.aud.Record(audit.Event{
			Type: audit.EventRateLimitExceeded, AgentID: agentID, TaskID: req.TaskID, ToolName: req.ToolName,
		})
		return CallResult{Success: false, Error: "rate limit exceeded for tool " + req.ToolName, ErrorKind: KindRateLimit}
	}

	if err := tool.Validate(req.Args); err != nil {
		return CallResult{Success: false, Error: err.Error(), ErrorKind: KindValidation}
	}

	m.bus.Publish(events.Event{Type: events.TypeToolCalled, TaskID: req.TaskID, AgentID: agentID, Timestamp: time.Now(), Data: map[string]interface{}{"tool": req.ToolName}})

	start := time.Now()
	timeout := time.Duration(tool.Timeout()) * time.Millisecond
	callCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	output, err := tool.Execute(callCtx, req.Args)
	duration := time.Since(start)

	result := CallResult{Duration: duration.Milliseconds()}
	switch {
	case err != nil && callCtx.Err() == context.DeadlineExceeded:
		m.aud.Record(audit.Event{Type: audit.EventToolTimeout, AgentID: agentID, TaskID: req.TaskID, ToolName: req.ToolName})
		result.Success = false
		result.Error = "tool timed out: " + req.ToolName
		result.ErrorKind = KindTimeout
	case err != nil:
		m.aud.Record(audit.Event{Type: audit.EventExecutionError, AgentID: agentID, TaskID: req.TaskID, ToolName: req.ToolName, Details: map[string]interface{}{"error": err.Error()}})
		result.Success = false
		result.Error = err.Error()
		result.ErrorKind = KindExecution
	default:
		m.aud.Record(audit.Event{Type: audit.EventToolCall, AgentID: agentID, TaskID: req.TaskID, ToolName: req.ToolName, Details: map[string]interface{}{"success": true}})
		result.Success = true
		result.Output = output
	}

	m.rep.Append(replay.Event{
		TaskID: req.TaskID, AgentID: agentID, Kind: replay.KindTool, Step: req.ToolName,
		Input: req.Args, Output: result.Output, Error: result.Error,
		StartedAt: start, CompletedAt: time.Now(), DurationMs: result.Duration,
	})

	m.bus.Publish(events.Event{Type: events.TypeToolCompleted, TaskID: req.TaskID, AgentID: agentID, Timestamp: time.Now(), Data: map[string]interface{}{"tool": req.ToolName, "success": result.Success}})

	return result
}

func (m *Manager) exceedsRate(toolName string, limit int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	w, ok := m.windows[toolName]
	if !ok || now.Sub(w.start) >= 60*time.Second {
		m.windows[toolName] = &rateWindow{start: now, count: 1}
		return false
	}
	if w.count >= limit {
		return true
	}
	w.count++
	return false
}

// ValidateAgainstSchema validates args against a JSON Schema document,
// used by tools whose Validate implementation defers to a declared schema
// rather than ad-hoc field checks.
func ValidateAgainstSchema(schemaJSON string, args map[string]interface{}) error {
	schemaLoader := gojsonschema.NewStringLoader(schemaJSON)
	docLoader := gojsonschema.NewGoLoader(args)

	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	if !result.Valid() {
		return fmt.Errorf("invalid arguments: %v", result.Errors())
	}
	return nil
}
