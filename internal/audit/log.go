// Package audit implements the append-only, bounded-capacity security
// audit log (spec §4.3): tool calls, permission denials, rate-limit
// breaches, timeouts, and execution errors.
package audit

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates the audit categories the Tool Manager records.
type EventType string

const (
	EventToolCall          EventType = "tool-call"
	EventToolTimeout       EventType = "tool-timeout"
	EventPermissionDenied  EventType = "permission-denied"
	EventRateLimitExceeded EventType = "rate-limit-exceeded"
	EventExecutionError    EventType = "execution-error"
)

// Event is one structured audit record.
type Event struct {
	ID        string                 `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	Type      EventType              `json:"type"`
	AgentID   string                 `json:"agentId"`
	TaskID    string                 `json:"taskId,omitempty"`
	ToolName  string                 `json:"toolName,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// Sink receives a durable copy of every recorded event, mirroring
// internal/task.Store's Sink hook. The JSONL-backed implementation lives
// in internal/store.
type Sink interface {
	AppendAudit(Event) error
}

// noopSink discards writes; the default until SetSink is called.
type noopSink struct{}

func (noopSink) AppendAudit(Event) error { return nil }

// Log is an in-memory ring buffer of audit events. Oldest entries drop
// FIFO once capacity is reached; it is write-only from the components
// that record to it, read-only from the query API.
type Log struct {
	mu       sync.RWMutex
	capacity int
	entries  []Event
	next     int // write cursor once full
	full     bool
	sink     Sink
}

// New creates a Log bounded to capacity entries.
func New(capacity int) *Log {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Log{capacity: capacity, entries: make([]Event, 0, capacity), sink: noopSink{}}
}

// SetSink attaches a durable sink. Called once during app wiring; nil
// restores the no-op default.
func (l *Log) SetSink(sink Sink) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if sink == nil {
		sink = noopSink{}
	}
	l.sink = sink
}

// Record appends an event, assigning it an id and timestamp if unset.
func (l *Log) Record(e Event) Event {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	l.mu.Lock()
	if len(l.entries) < l.capacity {
		l.entries = append(l.entries, e)
	} else {
		l.entries[l.next] = e
		l.next = (l.next + 1) % l.capacity
		l.full = true
	}
	sink := l.sink
	l.mu.Unlock()

	_ = sink.AppendAudit(e)
	return e
}

// Query returns up to limit matching events, newest first. An empty
// taskID means "any task".
func (l *Log) Query(taskID string, limit int) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ordered := l.orderedLocked()
	out := make([]Event, 0, len(ordered))
	for i := len(ordered) - 1; i >= 0; i-- {
		e := ordered[i]
		if taskID != "" && e.TaskID != taskID {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

func (l *Log) orderedLocked() []Event {
	if !l.full {
		return l.entries
	}
	ordered := make([]Event, 0, len(l.entries))
	ordered = append(ordered, l.entries[l.next:]...)
	ordered = append(ordered, l.entries[:l.next]...)
	return ordered
}
