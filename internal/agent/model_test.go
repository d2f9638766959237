package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskmesh/orchestrator/internal/ai"
	"github.com/taskmesh/orchestrator/internal/replay"
)

type stubClient struct {
	content string
	err     error
}

func (s *stubClient) Chat(ctx context.Context, req *ai.ChatRequest) (*ai.ChatResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &ai.ChatResponse{Content: s.content}, nil
}

func (s *stubClient) ChatStream(ctx context.Context, req *ai.ChatRequest, cb ai.StreamCallback) error {
	return errors.New("not implemented")
}

func (s *stubClient) GetProvider() ai.Provider { return ai.ProviderCustom }
func (s *stubClient) GetModel() string         { return "stub" }

type stubModels struct {
	chain   []string
	clients map[string]ai.LLMClient
}

func (m *stubModels) Get(name string) (ai.LLMClient, bool) {
	c, ok := m.clients[name]
	return c, ok
}

func (m *stubModels) Chain() []string { return m.chain }

func TestModelHandler_UsesFirstAvailableClient(t *testing.T) {
	models := &stubModels{
		chain: []string{"claude", "replay"},
		clients: map[string]ai.LLMClient{
			"claude": &stubClient{content: "hello from claude"},
		},
	}
	rep := replay.New(10)

	h := ModelHandler(models, rep, "")
	out, err := h(context.Background(), "hi", RunOptions{TaskID: "t1"})
	require.NoError(t, err)
	assert.Equal(t, "hello from claude", out)

	events := rep.Query("t1", 0)
	require.Len(t, events, 1)
	assert.Equal(t, replay.KindModel, events[0].Kind)
	assert.Equal(t, "claude", events[0].Step)
}

func TestModelHandler_FallsBackOnError(t *testing.T) {
	models := &stubModels{
		chain: []string{"claude", "replay"},
		clients: map[string]ai.LLMClient{
			"claude": &stubClient{err: errors.New("rate limited")},
			"replay": &stubClient{content: "deterministic output"},
		},
	}
	rep := replay.New(10)

	h := ModelHandler(models, rep, "system prompt")
	out, err := h(context.Background(), "hi", RunOptions{TaskID: "t2"})
	require.NoError(t, err)
	assert.Equal(t, "deterministic output", out)

	events := rep.Query("t2", 0)
	require.Len(t, events, 2)
	assert.Equal(t, "claude", events[0].Step)
	assert.NotEmpty(t, events[0].Error)
	assert.Equal(t, "replay", events[1].Step)
}

func TestModelHandler_ReturnsErrNoModelAvailableWhenChainExhausted(t *testing.T) {
	models := &stubModels{
		chain: []string{"claude"},
		clients: map[string]ai.LLMClient{
			"claude": &stubClient{err: errors.New("down")},
		},
	}
	rep := replay.New(10)

	h := ModelHandler(models, rep, "")
	_, err := h(context.Background(), "hi", RunOptions{TaskID: "t3"})
	assert.ErrorIs(t, err, ErrNoModelAvailable)
	assert.EqualError(t, err, "no model provider available: down")
}

func TestModelHandler_ReturnsErrNoModelAvailableWhenChainEmpty(t *testing.T) {
	models := &stubModels{chain: nil, clients: map[string]ai.LLMClient{}}
	rep := replay.New(10)

	h := ModelHandler(models, rep, "")
	_, err := h(context.Background(), "hi", RunOptions{TaskID: "t4"})
	assert.ErrorIs(t, err, ErrNoModelAvailable)
}
