package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskmesh/orchestrator/internal/agent"
)

type fakeSource struct{ agents []*agent.Agent }

func (f fakeSource) Running() []*agent.Agent { return f.agents }

func newAgent(id string, tags ...string) *agent.Agent {
	a := agent.New(id, id, "builtin", agent.EchoHandler).WithTags(tags...)
	a.Start()
	return a
}

func TestScheduler_AdmitRespectsConcurrencyCeiling(t *testing.T) {
	s := New(fakeSource{}, 1)

	release1, err := s.Admit(context.Background(), "t1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = s.Admit(ctx, "t2")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	release1()
	release2, err := s.Admit(context.Background(), "t2")
	require.NoError(t, err)
	release2()
}

func TestScheduler_SelectRequiresAllTags(t *testing.T) {
	s := New(fakeSource{agents: []*agent.Agent{
		newAgent("a1", "research"),
		newAgent("a2", "research", "build"),
	}}, 4)

	chosen, err := s.Select([]string{"research", "build"})
	require.NoError(t, err)
	assert.Equal(t, "a2", chosen.ID)
}

func TestScheduler_SelectPrefersLowerLoad(t *testing.T) {
	s := New(fakeSource{agents: []*agent.Agent{
		newAgent("a1", "build"),
		newAgent("a2", "build"),
	}}, 4)

	s.RecordStart("a1")
	s.RecordStart("a1")

	chosen, err := s.Select([]string{"build"})
	require.NoError(t, err)
	assert.Equal(t, "a2", chosen.ID)
}

func TestScheduler_SelectReturnsErrNoSuitableAgent(t *testing.T) {
	s := New(fakeSource{}, 1)
	_, err := s.Select([]string{"research"})
	assert.ErrorIs(t, err, ErrNoSuitableAgent)
}

func TestBindAgents_ResolvesEveryRole(t *testing.T) {
	s := New(fakeSource{agents: []*agent.Agent{
		newAgent("researcher", "research"),
		newAgent("builder", "build"),
		newAgent("reviewer", "review"),
	}}, 4)

	bound, err := BindAgents(PlanMultiAgentWorkflow(), s)
	require.NoError(t, err)
	assert.Equal(t, "researcher", bound["research"])
	assert.Equal(t, "builder", bound["build"])
	assert.Equal(t, "reviewer", bound["review"])
	assert.Equal(t, "builder", bound["final"])
}
