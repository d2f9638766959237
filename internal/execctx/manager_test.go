package execctx

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_InheritFromParentSnapshotsVariables(t *testing.T) {
	m := New()
	parent := m.Create("parent", "agent-a", "", 0, nil)
	parent.Set("x", 1)

	child := m.InheritFromParent("parent", "child", "agent-b", nil)
	require.NotNil(t, child)
	v, ok := child.Get("x")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	parent.Set("x", 2)
	v, _ = child.Get("x")
	assert.Equal(t, 1, v, "child must not see later parent mutations")
}

func TestManager_RecordStepAppendsInOrder(t *testing.T) {
	m := New()
	m.Create("t1", "agent-a", "", 0, nil)

	m.RecordStep("t1", "first", "in", "out", nil)
	m.RecordStep("t1", "second", "in2", "out2", errors.New("boom"))

	ctx, ok := m.Get("t1")
	require.True(t, ok)
	history := ctx.History()
	require.Len(t, history, 2)
	assert.Equal(t, "first", history[0].Action)
	assert.Equal(t, "second", history[1].Action)
	assert.Equal(t, "boom", history[1].Error)
}

func TestManager_IsWithinDeadline(t *testing.T) {
	m := New()
	past := time.Now().Add(-time.Second)
	m.Create("t1", "agent-a", "", 0, &past)
	assert.False(t, m.IsWithinDeadline("t1"))

	future := time.Now().Add(time.Hour)
	m.Create("t2", "agent-a", "", 0, &future)
	assert.True(t, m.IsWithinDeadline("t2"))
}

func TestManager_CleanupContextRemovesState(t *testing.T) {
	m := New()
	m.Create("t1", "agent-a", "", 0, nil)
	m.CleanupContext("t1")
	_, ok := m.Get("t1")
	assert.False(t, ok)
}
