// Package replay implements the per-task append-only invocation log used
// both for the /api/replay query surface and for deterministic replay
// (spec §4.3, §9).
package replay

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind distinguishes a model invocation from a tool invocation.
type Kind string

const (
	KindModel Kind = "model"
	KindTool  Kind = "tool"
)

// Event is one recorded model or tool invocation, detailed enough to
// re-execute an agent deterministically when combined with the same model
// adapter and seed.
type Event struct {
	ID          string                 `json:"id"`
	TaskID      string                 `json:"taskId"`
	AgentID     string                 `json:"agentId"`
	Kind        Kind                   `json:"kind"`
	Step        string                 `json:"step"`
	Input       interface{}            `json:"input,omitempty"`
	Output      interface{}            `json:"output,omitempty"`
	Error       string                 `json:"error,omitempty"`
	StartedAt   time.Time              `json:"startedAt"`
	CompletedAt time.Time              `json:"completedAt"`
	DurationMs  int64                  `json:"durationMs"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// Sink receives a durable copy of every appended event, mirroring
// internal/task.Store's Sink hook. The JSONL-backed implementation lives
// in internal/store.
type Sink interface {
	AppendReplay(Event) error
}

// noopSink discards writes; the default until SetSink is called.
type noopSink struct{}

func (noopSink) AppendReplay(Event) error { return nil }

// Store is a per-task append-only ring buffer of replay events.
type Store struct {
	mu       sync.RWMutex
	capacity int
	byTask   map[string][]Event
	sink     Sink
}

// New creates a Store whose per-task logs are each bounded to capacity
// entries.
func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = 500
	}
	return &Store{capacity: capacity, byTask: make(map[string][]Event), sink: noopSink{}}
}

// SetSink attaches a durable sink. Called once during app wiring; nil
// restores the no-op default.
func (s *Store) SetSink(sink Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sink == nil {
		sink = noopSink{}
	}
	s.sink = sink
}

// Append records e, assigning an id if unset.
func (s *Store) Append(e Event) Event {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}

	s.mu.Lock()
	log := append(s.byTask[e.TaskID], e)
	if len(log) > s.capacity {
		log = log[len(log)-s.capacity:]
	}
	s.byTask[e.TaskID] = log
	sink := s.sink
	s.mu.Unlock()

	_ = sink.AppendReplay(e)
	return e
}

// Query returns up to limit of the most recent events for taskID, oldest
// first. limit <= 0 returns the whole buffered log.
func (s *Store) Query(taskID string, limit int) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := s.byTask[taskID]
	if limit > 0 && len(log) > limit {
		log = log[len(log)-limit:]
	}
	out := make([]Event, len(log))
	copy(out, log)
	return out
}

// Clear removes the replay log for taskID, called when a task and its
// conversation are deleted.
func (s *Store) Clear(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byTask, taskID)
}
