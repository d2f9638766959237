// Package behavior implements the Behavior Engine: a guarded finite-state
// machine over a task's externally visible status, grounded on the
// teacher's enum-based TaskStatus/WorkflowStatus status constants
// (internal/task/types.go, internal/orchestration/types.go) — generalized
// here into an actual guarded transition table with enter/exit hooks
// rather than a plain field assignment.
package behavior

import (
	"fmt"

	"github.com/taskmesh/orchestrator/internal/task"
)

// ErrIllegalTransition is returned when a requested move isn't listed in
// transitions for the machine's current status.
var ErrIllegalTransition = fmt.Errorf("illegal task status transition")

// transitions enumerates every legal Status -> Status edge, mirroring
// task.Status's own contract (spec §3: "transitions monotonically toward
// a terminal state; no terminal status reverts").
var transitions = map[task.Status][]task.Status{
	task.StatusQueued:     {task.StatusPending, task.StatusInProgress, task.StatusCancelled},
	task.StatusPending:    {task.StatusInProgress, task.StatusCancelled},
	task.StatusInProgress: {task.StatusCompleted, task.StatusFailed, task.StatusCancelled},
	task.StatusCompleted:  {},
	task.StatusFailed:     {},
	task.StatusCancelled:  {},
}

// Hook runs when a Machine enters or exits a status.
type Hook func(taskID string, status task.Status)

// Machine drives one task's status lifecycle through guarded transitions,
// firing registered enter/exit hooks around each accepted move.
type Machine struct {
	taskID  string
	current task.Status

	onEnter map[task.Status][]Hook
	onExit  map[task.Status][]Hook
}

// New constructs a Machine for taskID, starting in status start.
func New(taskID string, start task.Status) *Machine {
	return &Machine{
		taskID:  taskID,
		current: start,
		onEnter: make(map[task.Status][]Hook),
		onExit:  make(map[task.Status][]Hook),
	}
}

// OnEnter registers fn to run every time the machine transitions into status.
func (m *Machine) OnEnter(status task.Status, fn Hook) {
	m.onEnter[status] = append(m.onEnter[status], fn)
}

// OnExit registers fn to run every time the machine transitions out of status.
func (m *Machine) OnExit(status task.Status, fn Hook) {
	m.onExit[status] = append(m.onExit[status], fn)
}

// Current reports the machine's current status.
func (m *Machine) Current() task.Status {
	return m.current
}

// CanTransition reports whether to is a legal move from the machine's
// current status.
func (m *Machine) CanTransition(to task.Status) bool {
	for _, allowed := range transitions[m.current] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Transition moves the machine to to, firing onExit(current) hooks then
// onEnter(to) hooks. If the edge isn't legal, it returns
// ErrIllegalTransition without moving the machine or firing any hook.
func (m *Machine) Transition(to task.Status) error {
	if !m.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, m.current, to)
	}
	from := m.current
	for _, fn := range m.onExit[from] {
		fn(m.taskID, from)
	}
	m.current = to
	for _, fn := range m.onEnter[to] {
		fn(m.taskID, to)
	}
	return nil
}
