package task

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/taskmesh/orchestrator/internal/events"
)

var (
	// ErrNotFound is returned when a task id has no record.
	ErrNotFound = errors.New("task not found")

	// ErrTaskRunning is returned when a retry collides with an active run
	// (spec §4.11, HTTP 409 TASK_RUNNING).
	ErrTaskRunning = errors.New("task is already running")
)

// Sink receives a durable copy of every record mutation. The in-memory
// Store calls it synchronously after each create, retry and update;
// Delete and DeleteAll are not sent to the sink. The JSONL-backed
// implementation lives in internal/store.
type Sink interface {
	AppendTask(Record) error
}

// noopSink discards writes; used when no persistence directory is
// configured.
type noopSink struct{}

func (noopSink) AppendTask(Record) error { return nil }

// Store is the in-process, concurrency-safe Task Store (spec §4.9). It is
// the single source of truth for external task identity.
type Store struct {
	bus  *events.Bus
	sink Sink

	mu    sync.RWMutex
	tasks map[string]*Record
	// conversations maps a conversation id to every task id sharing it.
	conversations map[string][]string
}

// New constructs a Store publishing projections onto bus. sink may be nil,
// in which case mutations are not persisted.
func New(bus *events.Bus, sink Sink) *Store {
	if sink == nil {
		sink = noopSink{}
	}
	return &Store{
		bus:           bus,
		sink:          sink,
		tasks:         make(map[string]*Record),
		conversations: make(map[string][]string),
	}
}

// SetSink attaches a durable sink after construction (app wiring calls it
// once startup rehydration is done). nil restores the no-op default.
func (s *Store) SetSink(sink Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sink == nil {
		sink = noopSink{}
	}
	s.sink = sink
}

// Create registers a new task record with status queued, or reuses an
// existing terminal record's id for a retry: that record is reset to
// queued in place, keeps its conversation, and its RetryCount grows by
// one. id, if empty, is generated.
func (s *Store) Create(id, input string, gen Generation, conversationID string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == "" {
		id = uuid.NewString()
	} else if existing, ok := s.tasks[id]; ok {
		if !existing.Status.IsTerminal() {
			return nil, ErrTaskRunning
		}
		// retry reusing a terminal task id: same record, fresh run.
		existing.Input = input
		existing.Status = StatusQueued
		existing.Generation = gen
		existing.Generation.Normalize()
		existing.Output, existing.Error, existing.ErrorCode, existing.FailedLayer = "", "", "", ""
		existing.DurationMs = 0
		existing.RetryCount++
		existing.IsRetry = true
		existing.UpdatedAt = time.Now()
		s.persistAndPublish(*existing)
		cp := *existing
		return &cp, nil
	}

	now := time.Now()
	rec := &Record{
		ID:             id,
		Input:          input,
		Status:         StatusQueued,
		Generation:     gen,
		ConversationID: conversationID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	rec.Generation.Normalize()

	s.tasks[id] = rec
	convID := conversationID
	if convID == "" {
		convID = id
		rec.ConversationID = id
	}
	s.conversations[convID] = append(s.conversations[convID], id)

	s.persistAndPublish(*rec)
	return rec, nil
}

// Retry creates a new linked retry task (fresh id, same conversation,
// OriginalTaskID set to originalID) only if the prior run reached a
// terminal state (spec §4.11).
func (s *Store) Retry(originalID string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.tasks[originalID]
	if !ok {
		return nil, ErrNotFound
	}
	if !original.Status.IsTerminal() {
		return nil, ErrTaskRunning
	}

	now := time.Now()
	retry := &Record{
		ID:             uuid.NewString(),
		Input:          original.Input,
		Status:         StatusQueued,
		Generation:     original.Generation,
		ConversationID: original.ConversationID,
		OriginalTaskID: originalID,
		RetryCount:     original.RetryCount + 1,
		IsRetry:        true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.tasks[retry.ID] = retry
	s.conversations[retry.ConversationID] = append(s.conversations[retry.ConversationID], retry.ID)

	original.RetryCount++
	original.UpdatedAt = now

	s.persistAndPublish(*retry)
	s.persistAndPublish(*original)
	return retry, nil
}

// Get returns a copy of the record for id.
func (s *Store) Get(id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

// Update applies mutate to the stored record for id under the store's
// lock, bumps UpdatedAt, and pushes a projection onto the event bus. It
// refuses, with an error and without applying mutate, to move a terminal
// task to any other status.
func (s *Store) Update(id string, mutate func(*Record)) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}

	next := *rec
	mutate(&next)
	if rec.Status.IsTerminal() && next.Status != rec.Status {
		// a terminal status never reverts or swaps to another terminal.
		return nil, fmt.Errorf("task %s is already %s", id, rec.Status)
	}
	*rec = next
	rec.UpdatedAt = time.Now()

	s.persistAndPublish(*rec)
	cp := *rec
	return &cp, nil
}

func (s *Store) persistAndPublish(rec Record) {
	_ = s.sink.AppendTask(rec)
	if s.bus != nil {
		s.bus.Publish(events.Event{
			Type:      statusEventType(rec.Status),
			TaskID:    rec.ID,
			AgentID:   rec.AgentID,
			Timestamp: rec.UpdatedAt,
			Data:      rec,
		})
	}
}

// statusEventType maps a task status onto the event type projected onto
// the bus for it (spec §4.2).
func statusEventType(s Status) events.Type {
	switch s {
	case StatusCompleted:
		return events.TypeTaskCompleted
	case StatusFailed:
		return events.TypeTaskFailed
	case StatusCancelled:
		return events.TypeTaskCancelled
	case StatusInProgress, StatusPending:
		return events.TypeTaskProgress
	default:
		return events.TypeTaskStarted
	}
}

// Delete removes id and every task sharing its conversation (spec §3, §6).
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.tasks[id]
	if !ok {
		return ErrNotFound
	}

	members := s.conversations[rec.ConversationID]
	for _, memberID := range members {
		delete(s.tasks, memberID)
	}
	delete(s.conversations, rec.ConversationID)
	return nil
}

// DeleteAll clears every task (DELETE /api/history).
func (s *Store) DeleteAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = make(map[string]*Record)
	s.conversations = make(map[string][]string)
}

// Restore installs rec directly, bypassing the sink and event bus. It is
// used only at startup to rehydrate a Store from its durable log (spec
// §6, "Persisted state layout"); replaying already-persisted records
// through persistAndPublish would re-append them and re-broadcast events
// to a bus with no subscribers yet.
func (s *Store) Restore(rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := rec
	s.tasks[rec.ID] = &cp
	if rec.ConversationID == "" {
		return
	}
	for _, id := range s.conversations[rec.ConversationID] {
		if id == rec.ID {
			return
		}
	}
	s.conversations[rec.ConversationID] = append(s.conversations[rec.ConversationID], rec.ID)
}

// Conversation returns every record sharing id's conversation, in
// insertion order.
func (s *Store) Conversation(conversationID string) []*Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.conversations[conversationID]
	out := make([]*Record, 0, len(ids))
	for _, id := range ids {
		if rec, ok := s.tasks[id]; ok {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out
}

// List returns records matching filters, sorted by StartedAt (falling
// back to CreatedAt): newest first when filters.SortDesc is true, oldest
// first otherwise. filters.SortBy is not consulted.
func (s *Store) List(f Filters) []*Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	statusSet := make(map[Status]bool, len(f.Status))
	for _, st := range f.Status {
		statusSet[st] = true
	}

	out := make([]*Record, 0, len(s.tasks))
	for _, rec := range s.tasks {
		if len(statusSet) > 0 && !statusSet[rec.Status] {
			continue
		}
		if f.AgentID != "" && rec.AgentID != f.AgentID {
			continue
		}
		cp := *rec
		out = append(out, &cp)
	}

	sort.Slice(out, func(i, j int) bool {
		ti := sortTime(out[i])
		tj := sortTime(out[j])
		if f.SortDesc {
			return ti.After(tj)
		}
		return ti.Before(tj)
	})

	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

func sortTime(r *Record) time.Time {
	if r.StartedAt != nil {
		return *r.StartedAt
	}
	return r.CreatedAt
}

// Active returns every task not in a terminal state (GET /api/tasks).
func (s *Store) Active() []*Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Record, 0)
	for _, rec := range s.tasks {
		if !rec.Status.IsTerminal() {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out
}

// Stats computes AgentStats over all stored records for agentID; windowHours
// is reported but not yet used to bound the query (the store does not
// retain enough history depth to window-filter beyond its own lifetime).
func (s *Store) Stats(agentID string, windowHours int) AgentStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := AgentStats{AgentID: agentID, WindowHours: windowHours}
	var totalDuration int64
	failureReasons := make(map[string]int)

	for _, rec := range s.tasks {
		if rec.AgentID != agentID {
			continue
		}
		stats.TotalTasks++
		switch rec.Status {
		case StatusCompleted:
			stats.SuccessCount++
		case StatusFailed:
			stats.FailCount++
			if rec.Error != "" {
				failureReasons[rec.Error]++
			}
		case StatusCancelled:
			stats.CancelledCount++
		}
		totalDuration += rec.DurationMs
	}

	if stats.TotalTasks > 0 {
		stats.SuccessRatePercent = float64(stats.SuccessCount) / float64(stats.TotalTasks) * 100
		stats.AvgExecutionTimeMs = float64(totalDuration) / float64(stats.TotalTasks)
	}
	stats.TopFailureReasons = topReasons(failureReasons, 3)
	return stats
}

func topReasons(counts map[string]int, limit int) []string {
	type kv struct {
		reason string
		count  int
	}
	kvs := make([]kv, 0, len(counts))
	for r, c := range counts {
		kvs = append(kvs, kv{r, c})
	}
	sort.Slice(kvs, func(i, j int) bool { return kvs[i].count > kvs[j].count })
	out := make([]string, 0, limit)
	for i := 0; i < len(kvs) && i < limit; i++ {
		out = append(out, kvs[i].reason)
	}
	return out
}
