// Package events implements the in-process event bus: typed, task-keyed
// publish/subscribe with a bounded per-task replay buffer for late
// subscribers.
package events

import "time"

// Type is a dotted event label, e.g. "task.started", "tool.called".
type Type string

const (
	TypeTaskStarted       Type = "task.started"
	TypeTaskProgress      Type = "task.progress"
	TypeTaskCompleted     Type = "task.completed"
	TypeTaskFailed        Type = "task.failed"
	TypeTaskCancelled     Type = "task.cancelled"
	TypeAgentSelected     Type = "agent.selected"
	TypeToolCalled        Type = "tool.called"
	TypeToolCompleted     Type = "tool.completed"
	TypeWorkflowStarted   Type = "workflow.started"
	TypeWorkflowCompleted Type = "workflow.completed"
	TypeGraphNode         Type = "graph.node"
)

// Event is one published occurrence.
type Event struct {
	Type      Type        `json:"type"`
	TaskID    string      `json:"taskId"`
	AgentID   string      `json:"agentId,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// Handler receives delivered events. A handler that panics must not
// interrupt delivery to other handlers or crash the publisher — panics
// are isolated and logged.
type Handler func(Event)
