package ai

import (
	"context"
	"fmt"

	"github.com/taskmesh/orchestrator/internal/replay"
)

// replayClient is a deterministic LLMClient: instead of calling a live
// model, it reconstructs a prior model response from the Replay Store
// (spec §9, "substitute the model adapter with a deterministic one that
// reads from the store"). It is tried in its place in the Registry's
// fallback chain like any other client; nothing selects it by generation
// mode.
type replayClient struct {
	store *replay.Store
	model string
}

// NewReplayClient builds an LLMClient backed by store. The caller supplies
// the originating task id via req.Metadata["taskId"].
func NewReplayClient(store *replay.Store) LLMClient {
	return &replayClient{store: store, model: "replay"}
}

func (c *replayClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	taskID, _ := req.Metadata["taskId"].(string)
	if taskID == "" {
		return nil, fmt.Errorf("replay client requires metadata[\"taskId\"]")
	}

	result := c.store.Run(taskID)
	content, ok := result.Output.(string)
	if !ok {
		if result.Output == nil {
			return nil, fmt.Errorf("no recorded model output for task %s", taskID)
		}
		content = fmt.Sprintf("%v", result.Output)
	}

	return &ChatResponse{
		Content:      content,
		FinishReason: "stop",
		Model:        c.model,
	}, nil
}

func (c *replayClient) ChatStream(ctx context.Context, req *ChatRequest, callback StreamCallback) error {
	resp, err := c.Chat(ctx, req)
	if err != nil {
		return err
	}
	return callback(resp.Content)
}

func (c *replayClient) GetProvider() Provider {
	return ProviderLocal
}

func (c *replayClient) GetModel() string {
	return c.model
}
