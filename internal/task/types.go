// Package task implements the Task record and Task Store (spec §3, §4.9):
// the single source of truth for every submitted task's external
// identity, independent of the in-flight composition tree the executor
// evaluates.
package task

import "time"

// Status is the externally visible task state. It transitions
// monotonically toward a terminal state; no terminal status reverts.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// IsTerminal reports whether s is one of the terminal states.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// GenerationMode selects how the agent should sample its response.
type GenerationMode string

const (
	ModeCreative      GenerationMode = "creative"
	ModeDeterministic GenerationMode = "deterministic"
)

// Generation carries the model sampling configuration for one task.
type Generation struct {
	Mode        GenerationMode `json:"mode"`
	Temperature *float64       `json:"temperature,omitempty"`
	Seed        *int64         `json:"seed,omitempty"`
	MaxTokens   *int           `json:"maxTokens,omitempty"`
}

// Normalize enforces the generation-mode invariant (spec §6): a
// deterministic run forces temperature to zero.
func (g *Generation) Normalize() {
	if g.Mode == ModeDeterministic {
		zero := 0.0
		g.Temperature = &zero
	}
}

// Record is the canonical Task record (spec §3).
type Record struct {
	ID      string `json:"id"`
	Input   string `json:"input"`
	Status  Status `json:"status"`
	AgentID string `json:"agentId,omitempty"`

	Generation Generation `json:"generation"`

	Progress int      `json:"progress"`
	Messages []string `json:"messages"`

	Output      string `json:"output,omitempty"`
	Error       string `json:"error,omitempty"`
	ErrorCode   string `json:"errorCode,omitempty"`
	FailedLayer string `json:"failedLayer,omitempty"`
	StackTrace  string `json:"stackTrace,omitempty"`

	StartedAt  *time.Time `json:"startedAt,omitempty"`
	DurationMs int64      `json:"durationMs"`

	ConversationID string `json:"conversationId,omitempty"`

	OriginalTaskID string `json:"originalTaskId,omitempty"`
	RetryCount     int    `json:"retryCount"`
	IsRetry        bool   `json:"isRetry"`

	InvolvedAgents       []string `json:"involvedAgents,omitempty"`
	ManuallySelected     bool     `json:"manuallySelected"`
	AgentSelectionReason string   `json:"agentSelectionReason,omitempty"`
	AvailableAgents      []string `json:"availableAgents,omitempty"`
	MultiAgentEnabled    bool     `json:"multiAgentEnabled"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// AppendMessage adds an entry to the append-only message log.
func (r *Record) AppendMessage(msg string) {
	r.Messages = append(r.Messages, msg)
}

// Filters narrows a List/history query.
type Filters struct {
	Status   []Status
	AgentID  string
	Limit    int
	SortBy   string
	SortDesc bool
}

// AgentStats is the per-agent window statistics served by
// GET /api/history/agent/:agentId/stats and GET /api/metrics/agents.
type AgentStats struct {
	AgentID            string   `json:"agentId"`
	WindowHours        int      `json:"windowHours"`
	TotalTasks         int64    `json:"totalTasks"`
	SuccessCount       int64    `json:"successCount"`
	FailCount          int64    `json:"failCount"`
	CancelledCount     int64    `json:"cancelledCount"`
	SuccessRatePercent float64  `json:"successRatePercent"`
	AvgExecutionTimeMs float64  `json:"avgExecutionTimeMs"`
	TopFailureReasons  []string `json:"topFailureReasons,omitempty"`
	EstimatedCost      float64  `json:"estimatedCost"`
}
