package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskmesh/orchestrator/internal/events"
)

func newTestStore() (*Store, *events.Bus) {
	bus := events.New(testLogger())
	return New(bus, nil), bus
}

func TestStore_CreateAssignsQueuedStatus(t *testing.T) {
	s, _ := newTestStore()

	rec, err := s.Create("", "do the thing", Generation{Mode: ModeCreative}, "")
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, rec.Status)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, rec.ID, rec.ConversationID)
}

func TestStore_DeterministicGenerationForcesZeroTemperature(t *testing.T) {
	s, _ := newTestStore()

	rec, err := s.Create("", "do the thing", Generation{Mode: ModeDeterministic}, "")
	require.NoError(t, err)
	require.NotNil(t, rec.Generation.Temperature)
	assert.Equal(t, 0.0, *rec.Generation.Temperature)
}

func TestStore_UpdatePublishesTerminalEvent(t *testing.T) {
	s, bus := newTestStore()
	rec, err := s.Create("", "input", Generation{}, "")
	require.NoError(t, err)

	received := make(chan events.Event, 4)
	unsub := bus.Subscribe(rec.ID, []events.Type{events.TypeTaskCompleted}, func(e events.Event) {
		received <- e
	})
	defer unsub()

	_, err = s.Update(rec.ID, func(r *Record) {
		r.Status = StatusCompleted
		r.Output = "done"
	})
	require.NoError(t, err)

	select {
	case e := <-received:
		assert.Equal(t, events.TypeTaskCompleted, e.Type)
	default:
		t.Fatal("expected task.completed event")
	}
}

func TestStore_RetryRequiresTerminalOriginal(t *testing.T) {
	s, _ := newTestStore()
	rec, err := s.Create("", "input", Generation{}, "")
	require.NoError(t, err)

	_, err = s.Retry(rec.ID)
	assert.ErrorIs(t, err, ErrTaskRunning)

	_, err = s.Update(rec.ID, func(r *Record) { r.Status = StatusFailed })
	require.NoError(t, err)

	retry, err := s.Retry(rec.ID)
	require.NoError(t, err)
	assert.True(t, retry.IsRetry)
	assert.Equal(t, rec.ID, retry.OriginalTaskID)
	assert.Equal(t, 1, retry.RetryCount)
}

func TestStore_DeleteCascadesConversation(t *testing.T) {
	s, _ := newTestStore()
	first, err := s.Create("", "input", Generation{}, "conv-1")
	require.NoError(t, err)
	second, err := s.Create("", "input-2", Generation{}, "conv-1")
	require.NoError(t, err)

	require.NoError(t, s.Delete(first.ID))

	_, err = s.Get(first.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(second.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ListFiltersByStatusAndLimit(t *testing.T) {
	s, _ := newTestStore()
	for i := 0; i < 3; i++ {
		rec, err := s.Create("", "input", Generation{}, "")
		require.NoError(t, err)
		if i < 2 {
			_, err = s.Update(rec.ID, func(r *Record) { r.Status = StatusCompleted })
			require.NoError(t, err)
		}
	}

	completed := s.List(Filters{Status: []Status{StatusCompleted}, Limit: 1})
	assert.Len(t, completed, 1)
}

func TestStore_StatsComputesSuccessRate(t *testing.T) {
	s, _ := newTestStore()
	ok, err := s.Create("", "input", Generation{}, "")
	require.NoError(t, err)
	_, err = s.Update(ok.ID, func(r *Record) { r.AgentID = "agent-a"; r.Status = StatusCompleted })
	require.NoError(t, err)

	bad, err := s.Create("", "input", Generation{}, "")
	require.NoError(t, err)
	_, err = s.Update(bad.ID, func(r *Record) {
		r.AgentID = "agent-a"
		r.Status = StatusFailed
		r.Error = "boom"
	})
	require.NoError(t, err)

	stats := s.Stats("agent-a", 24)
	assert.Equal(t, int64(2), stats.TotalTasks)
	assert.Equal(t, 50.0, stats.SuccessRatePercent)
	assert.Contains(t, stats.TopFailureReasons, "boom")
}
