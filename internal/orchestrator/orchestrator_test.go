package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskmesh/orchestrator/internal/agent"
	"github.com/taskmesh/orchestrator/internal/behavior"
	"github.com/taskmesh/orchestrator/internal/cancel"
	"github.com/taskmesh/orchestrator/internal/events"
	"github.com/taskmesh/orchestrator/internal/execctx"
	"github.com/taskmesh/orchestrator/internal/executor"
	"github.com/taskmesh/orchestrator/internal/registry"
	"github.com/taskmesh/orchestrator/internal/scheduler"
	"github.com/taskmesh/orchestrator/internal/task"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.FatalLevel)
	return log
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *task.Store, *registry.AgentRegistry) {
	orch, store, reg, _ := newTestOrchestratorWithCancels(t)
	return orch, store, reg
}

func newTestOrchestratorWithCancels(t *testing.T) (*Orchestrator, *task.Store, *registry.AgentRegistry, *cancel.Registry) {
	t.Helper()
	log := testLogger()
	bus := events.New(log)
	store := task.New(bus, nil)
	reg := registry.NewAgentRegistry()
	sched := scheduler.New(reg, 4)
	cancels := cancel.New()
	eval := executor.New(reg, cancels, execctx.New(), bus, log)
	return New(store, sched, eval, reg, log), store, reg, cancels
}

func TestOrchestrator_ExecuteCompletesAndUpdatesStore(t *testing.T) {
	orch, store, reg := newTestOrchestrator(t)
	a := agent.New("echo", "Echo", "builtin", agent.EchoHandler)
	require.NoError(t, reg.Register(a, "1.0.0"))

	rec, err := store.Create("", "hello", task.Generation{Mode: task.ModeCreative}, "")
	require.NoError(t, err)

	root := &executor.Task{ID: "root", Type: executor.TypeAtomic, AgentID: "echo", Input: "hello"}
	err = orch.Execute(context.Background(), rec, root)
	require.NoError(t, err)

	updated, err := store.Get(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusCompleted, updated.Status)
	assert.Equal(t, "hello", updated.Output)
}

func TestOrchestrator_ExecuteFailureRecordsFailedStatus(t *testing.T) {
	orch, store, reg := newTestOrchestrator(t)
	failing := agent.New("fail", "Fail", "builtin", agent.ErrorHandler("boom"))
	require.NoError(t, reg.Register(failing, "1.0.0"))

	rec, err := store.Create("", "x", task.Generation{}, "")
	require.NoError(t, err)

	root := &executor.Task{ID: "root", Type: executor.TypeAtomic, AgentID: "fail", Input: "x"}
	err = orch.Execute(context.Background(), rec, root)
	assert.Error(t, err)

	updated, getErr := store.Get(rec.ID)
	require.NoError(t, getErr)
	assert.Equal(t, task.StatusFailed, updated.Status)
	assert.Equal(t, "EXECUTION_ERROR", updated.ErrorCode)
	assert.Equal(t, "Agent Runtime", updated.FailedLayer)
}

func TestOrchestrator_ExecuteCancelledRecordsExactReasonNotWrappedPrefix(t *testing.T) {
	orch, store, reg, cancels := newTestOrchestratorWithCancels(t)
	slow := agent.New("slow", "Slow", "builtin", agent.DelayHandler(200*time.Millisecond))
	require.NoError(t, reg.Register(slow, "1.0.0"))

	rec, err := store.Create("", "x", task.Generation{}, "")
	require.NoError(t, err)

	root := &executor.Task{ID: "root", Type: executor.TypeAtomic, AgentID: "slow", Input: "x"}

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancels.Abort(rec.ID, "Task was cancelled by user")
	}()

	err = orch.Execute(context.Background(), rec, root)
	require.Error(t, err)

	updated, getErr := store.Get(rec.ID)
	require.NoError(t, getErr)
	assert.Equal(t, task.StatusCancelled, updated.Status)
	assert.Equal(t, "ABORTED", updated.ErrorCode)
	assert.Equal(t, "Task was cancelled by user", updated.Error)
}

func TestOrchestrator_ExecuteTimeoutRecordsTimeoutNotCancelled(t *testing.T) {
	orch, store, reg := newTestOrchestrator(t)
	slow := agent.New("slow", "Slow", "builtin", agent.DelayHandler(200*time.Millisecond))
	require.NoError(t, reg.Register(slow, "1.0.0"))

	rec, err := store.Create("", "x", task.Generation{}, "")
	require.NoError(t, err)

	root := &executor.Task{ID: "root", Type: executor.TypeAtomic, AgentID: "slow", Input: "x", Timeout: 20 * time.Millisecond}
	err = orch.Execute(context.Background(), rec, root)
	require.Error(t, err)
	assert.ErrorIs(t, err, executor.ErrTimeout)

	updated, getErr := store.Get(rec.ID)
	require.NoError(t, getErr)
	assert.Equal(t, task.StatusFailed, updated.Status)
	assert.Equal(t, "TIMEOUT", updated.ErrorCode)
	assert.Equal(t, "Agent Runtime", updated.FailedLayer)
}

func TestOrchestrator_ExecuteRejectsRecordAlreadyInTerminalStatus(t *testing.T) {
	orch, store, reg := newTestOrchestrator(t)
	a := agent.New("echo", "Echo", "builtin", agent.EchoHandler)
	require.NoError(t, reg.Register(a, "1.0.0"))

	rec, err := store.Create("", "hi", task.Generation{}, "")
	require.NoError(t, err)
	rec.Status = task.StatusCompleted // simulate a stale/already-terminal record

	root := &executor.Task{ID: "root", Type: executor.TypeAtomic, AgentID: "echo", Input: "hi"}
	err = orch.Execute(context.Background(), rec, root)
	assert.ErrorIs(t, err, behavior.ErrIllegalTransition)
}

func TestOrchestrator_SubscribeReceivesOutcomeAndToleratesPanic(t *testing.T) {
	orch, store, reg := newTestOrchestrator(t)
	a := agent.New("echo", "Echo", "builtin", agent.EchoHandler)
	require.NoError(t, reg.Register(a, "1.0.0"))

	var wg sync.WaitGroup
	wg.Add(2)
	unsubPanic := orch.Subscribe("panicky", func(Outcome) {
		defer wg.Done()
		panic("boom")
	})
	defer unsubPanic()

	received := make(chan Outcome, 1)
	unsub := orch.Subscribe("normal", func(o Outcome) {
		defer wg.Done()
		received <- o
	})
	defer unsub()

	rec, err := store.Create("", "hi", task.Generation{}, "")
	require.NoError(t, err)
	root := &executor.Task{ID: "root", Type: executor.TypeAtomic, AgentID: "echo", Input: "hi"}
	require.NoError(t, orch.Execute(context.Background(), rec, root))

	wg.Wait()
	select {
	case o := <-received:
		assert.Equal(t, task.StatusCompleted, o.Status)
	default:
		t.Fatal("expected outcome delivery")
	}
}

func TestOrchestrator_MetricsTrackTotals(t *testing.T) {
	orch, store, reg := newTestOrchestrator(t)
	a := agent.New("echo", "Echo", "builtin", agent.EchoHandler)
	require.NoError(t, reg.Register(a, "1.0.0"))

	rec, err := store.Create("", "hi", task.Generation{}, "")
	require.NoError(t, err)
	root := &executor.Task{ID: "root", Type: executor.TypeAtomic, AgentID: "echo", Input: "hi"}
	require.NoError(t, orch.Execute(context.Background(), rec, root))

	m := orch.Metrics()
	assert.Equal(t, int64(1), m.TotalTasks)
	assert.Equal(t, int64(1), m.CompletedTasks)
	assert.Equal(t, 0, m.ActiveCount)
}
