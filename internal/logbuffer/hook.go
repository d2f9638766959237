// Package logbuffer implements a bounded in-memory logrus hook backing
// GET /api/logs (spec §6): the last N structured log lines, independent
// of wherever logrus's own output is being written.
package logbuffer

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Line is one captured log line.
type Line struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Hook is a logrus.Hook that retains the last capacity lines in a ring
// buffer, independent from whatever formatter/output logrus is
// otherwise configured with.
type Hook struct {
	mu       sync.RWMutex
	capacity int
	lines    []Line
	next     int
	full     bool
}

// NewHook returns a Hook bounded to capacity lines, fired on every level.
func NewHook(capacity int) *Hook {
	if capacity <= 0 {
		capacity = 500
	}
	return &Hook{capacity: capacity, lines: make([]Line, capacity)}
}

// Levels implements logrus.Hook: fire for every level.
func (h *Hook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire implements logrus.Hook.
func (h *Hook) Fire(e *logrus.Entry) error {
	fields := make(map[string]interface{}, len(e.Data))
	for k, v := range e.Data {
		fields[k] = v
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.lines[h.next] = Line{Timestamp: e.Time, Level: e.Level.String(), Message: e.Message, Fields: fields}
	h.next = (h.next + 1) % h.capacity
	if h.next == 0 {
		h.full = true
	}
	return nil
}

// Recent returns up to limit of the most recently captured lines, newest
// first. limit <= 0 returns the whole buffer.
func (h *Hook) Recent(limit int) []Line {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var ordered []Line
	if h.full {
		ordered = append(ordered, h.lines[h.next:]...)
		ordered = append(ordered, h.lines[:h.next]...)
	} else {
		ordered = append(ordered, h.lines[:h.next]...)
	}

	out := make([]Line, 0, len(ordered))
	for i := len(ordered) - 1; i >= 0; i-- {
		out = append(out, ordered[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}
