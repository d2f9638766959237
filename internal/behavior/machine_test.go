package behavior

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskmesh/orchestrator/internal/task"
)

func TestMachine_LegalTransitionsSucceedAndUpdateCurrent(t *testing.T) {
	m := New("t1", task.StatusQueued)
	require.NoError(t, m.Transition(task.StatusInProgress))
	assert.Equal(t, task.StatusInProgress, m.Current())
	require.NoError(t, m.Transition(task.StatusCompleted))
	assert.Equal(t, task.StatusCompleted, m.Current())
}

func TestMachine_IllegalTransitionIsRejectedAndLeavesCurrentUnchanged(t *testing.T) {
	m := New("t1", task.StatusQueued)
	err := m.Transition(task.StatusCompleted)
	assert.ErrorIs(t, err, ErrIllegalTransition)
	assert.Equal(t, task.StatusQueued, m.Current())
}

func TestMachine_TerminalStatusHasNoOutgoingTransitions(t *testing.T) {
	m := New("t1", task.StatusCompleted)
	assert.False(t, m.CanTransition(task.StatusFailed))
	assert.False(t, m.CanTransition(task.StatusInProgress))
}

func TestMachine_HooksFireInEnterExitOrder(t *testing.T) {
	m := New("t1", task.StatusQueued)
	var events []string
	m.OnExit(task.StatusQueued, func(id string, s task.Status) {
		events = append(events, "exit:"+string(s))
	})
	m.OnEnter(task.StatusInProgress, func(id string, s task.Status) {
		events = append(events, "enter:"+string(s))
	})

	require.NoError(t, m.Transition(task.StatusInProgress))
	assert.Equal(t, []string{"exit:queued", "enter:in_progress"}, events)
}

func TestMachine_HooksDoNotFireOnRejectedTransition(t *testing.T) {
	m := New("t1", task.StatusQueued)
	fired := false
	m.OnEnter(task.StatusCompleted, func(string, task.Status) { fired = true })

	err := m.Transition(task.StatusCompleted)
	assert.Error(t, err)
	assert.False(t, fired)
}
