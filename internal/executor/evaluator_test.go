package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskmesh/orchestrator/internal/agent"
	"github.com/taskmesh/orchestrator/internal/cancel"
	"github.com/taskmesh/orchestrator/internal/events"
	"github.com/taskmesh/orchestrator/internal/execctx"
)

type fakeAgents struct {
	byID map[string]*agent.Agent
}

func (f fakeAgents) Get(id string) (*agent.Agent, error) {
	a, ok := f.byID[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return a, nil
}

func newEvaluator(agents map[string]*agent.Agent) *Evaluator {
	log := logrus.New()
	log.SetLevel(logrus.FatalLevel)
	bus := events.New(log)
	return New(fakeAgents{byID: agents}, cancel.New(), execctx.New(), bus, log)
}

func echoAgent(id string) *agent.Agent {
	a := agent.New(id, id, "builtin", agent.EchoHandler)
	a.Start()
	return a
}

func TestEvaluator_Atomic_Success(t *testing.T) {
	e := newEvaluator(map[string]*agent.Agent{"a": echoAgent("a")})
	res, err := e.Run(context.Background(), "t1", &Task{ID: "root", Type: TypeAtomic, AgentID: "a", Input: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "hello", res.Output)
}

func TestEvaluator_Atomic_UnknownAgentIsValidationError(t *testing.T) {
	e := newEvaluator(map[string]*agent.Agent{})
	_, err := e.Run(context.Background(), "t1", &Task{ID: "root", Type: TypeAtomic, AgentID: "missing", Input: "x"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestEvaluator_Atomic_RetriesThenSucceeds(t *testing.T) {
	attempts := 0
	handler := func(ctx context.Context, input string, _ agent.RunOptions) (string, error) {
		attempts++
		if attempts < 3 {
			return "", errors.New("transient")
		}
		return "ok", nil
	}
	ag := agent.New("flaky", "flaky", "builtin", handler)
	ag.Start()

	e := newEvaluator(map[string]*agent.Agent{"flaky": ag})
	res, err := e.Run(context.Background(), "t1", &Task{ID: "root", Type: TypeAtomic, AgentID: "flaky", Input: "x", Retries: 3})
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Output)
	assert.Equal(t, 3, attempts)
}

func TestEvaluator_Sequential_AllowFailureContinues(t *testing.T) {
	failing := agent.New("fail", "fail", "builtin", agent.ErrorHandler("boom"))
	failing.Start()

	e := newEvaluator(map[string]*agent.Agent{"a": echoAgent("a"), "fail": failing})
	root := &Task{
		ID:   "root",
		Type: TypeSequential,
		Subtasks: []*Task{
			{ID: "s1", Type: TypeAtomic, AgentID: "fail", Input: "x", AllowFailure: true},
			{ID: "s2", Type: TypeAtomic, AgentID: "a", Input: "hello"},
		},
	}
	res, err := e.Run(context.Background(), "t1", root)
	require.NoError(t, err)
	assert.Equal(t, "hello", res.Output)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "s1", res.Failures[0].ChildID)
}

func TestEvaluator_Sequential_HardFailureBubbles(t *testing.T) {
	failing := agent.New("fail", "fail", "builtin", agent.ErrorHandler("boom"))
	failing.Start()

	e := newEvaluator(map[string]*agent.Agent{"fail": failing})
	root := &Task{
		ID:   "root",
		Type: TypeSequential,
		Subtasks: []*Task{
			{ID: "s1", Type: TypeAtomic, AgentID: "fail", Input: "x"},
		},
	}
	_, err := e.Run(context.Background(), "t1", root)
	assert.Error(t, err)
}

func TestEvaluator_Parallel_HardFailureFailsParent(t *testing.T) {
	failing := agent.New("fail", "fail", "builtin", agent.ErrorHandler("boom"))
	failing.Start()
	slow := agent.New("slow", "slow", "builtin", agent.DelayHandler(2*time.Second))
	slow.Start()

	e := newEvaluator(map[string]*agent.Agent{"fail": failing, "slow": slow})
	root := &Task{
		ID:   "root",
		Type: TypeParallel,
		Subtasks: []*Task{
			{ID: "p1", Type: TypeAtomic, AgentID: "fail", Input: "x"},
			{ID: "p2", Type: TypeAtomic, AgentID: "slow", Input: "y"},
		},
	}
	_, err := e.Run(context.Background(), "t1", root)
	assert.Error(t, err)
}

func TestEvaluator_Graph_PartialFailure(t *testing.T) {
	a := echoAgent("agent-a")
	c := echoAgent("agent-c")
	fail := agent.New("agent-fail", "agent-fail", "builtin", agent.ErrorHandler("boom"))
	fail.Start()

	e := newEvaluator(map[string]*agent.Agent{"agent-a": a, "agent-c": c, "agent-fail": fail})
	root := &Task{
		ID:   "root",
		Type: TypeGraph,
		Graph: []GraphNode{
			{ID: "a", Task: &Task{ID: "a", Type: TypeAtomic, AgentID: "agent-a", Input: "a-in"}},
			{ID: "fail", Task: &Task{ID: "fail", Type: TypeAtomic, AgentID: "agent-fail", Input: "x"}, AllowFailure: true},
			{ID: "c", Task: &Task{ID: "c", Type: TypeAtomic, AgentID: "agent-c", Input: "c-in"}, DependsOn: []string{"a", "fail"}},
		},
	}
	res, err := e.Run(context.Background(), "t1", root)
	require.NoError(t, err)
	assert.Equal(t, "a-in", res.NodeOutputs["a"])
	assert.Equal(t, "c-in", res.NodeOutputs["c"])
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "fail", res.Failures[0].ChildID)
}

func TestEvaluator_Graph_CycleIsRejected(t *testing.T) {
	e := newEvaluator(map[string]*agent.Agent{})
	root := &Task{
		ID:   "root",
		Type: TypeGraph,
		Graph: []GraphNode{
			{ID: "a", Task: &Task{ID: "a", Type: TypeAtomic, AgentID: "x"}, DependsOn: []string{"b"}},
			{ID: "b", Task: &Task{ID: "b", Type: TypeAtomic, AgentID: "x"}, DependsOn: []string{"a"}},
		},
	}
	_, err := e.Run(context.Background(), "t1", root)
	assert.ErrorIs(t, err, ErrValidation)
	assert.ErrorContains(t, err, "unresolved dependencies or cycle")
}

func TestEvaluator_Conditional_SelectsTrueBranch(t *testing.T) {
	e := newEvaluator(map[string]*agent.Agent{"a": echoAgent("a"), "b": echoAgent("b")})
	root := &Task{
		ID:        "root",
		Type:      TypeConditional,
		Condition: func(map[string]interface{}) bool { return true },
		Subtasks: []*Task{
			{ID: "true-branch", Type: TypeAtomic, AgentID: "a", Input: "yes"},
			{ID: "false-branch", Type: TypeAtomic, AgentID: "b", Input: "no"},
		},
	}
	res, err := e.Run(context.Background(), "t1", root)
	require.NoError(t, err)
	assert.Equal(t, "yes", res.Output)
}

func TestEvaluator_Loop_SafetyBoundStopsAtMaxIterations(t *testing.T) {
	e := newEvaluator(map[string]*agent.Agent{"a": echoAgent("a")})
	root := &Task{
		ID:            "root",
		Type:          TypeLoop,
		LoopCondition: func(map[string]interface{}) bool { return true },
		Subtasks: []*Task{
			{ID: "body", Type: TypeAtomic, AgentID: "a", Input: "x"},
		},
	}
	res, err := e.Run(context.Background(), "t1", root)
	assert.Error(t, err)
	assert.ErrorContains(t, err, "max iterations")
	assert.Len(t, res.LoopOutputs, maxLoopIterations)
}

func TestEvaluator_Atomic_DeadlineExceededIsTimeout(t *testing.T) {
	slow := agent.New("slow", "slow", "builtin", agent.DelayHandler(200*time.Millisecond))
	slow.Start()

	e := newEvaluator(map[string]*agent.Agent{"slow": slow})
	root := &Task{ID: "root", Type: TypeAtomic, AgentID: "slow", Input: "x", Timeout: 20 * time.Millisecond}
	_, err := e.Run(context.Background(), "t1", root)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.NotErrorIs(t, err, cancel.ErrAborted)
}
