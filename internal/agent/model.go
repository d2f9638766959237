package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/taskmesh/orchestrator/internal/ai"
	"github.com/taskmesh/orchestrator/internal/replay"
)

// ErrNoModelAvailable is returned when every client in the fallback
// chain failed (wrapping the last client's error) or none was registered.
var ErrNoModelAvailable = errors.New("no model provider available")

// Model is the narrow surface ModelHandler needs from internal/ai's
// Registry: an ordered fallback chain of named clients.
type Model interface {
	Get(name string) (ai.LLMClient, bool)
	Chain() []string
}

// ModelHandler builds a Handler that sends input as a single user message
// to the first available client in models' fallback chain, recording the
// outcome to rep as a replay.KindModel event regardless of which
// provider answered (spec §4.7, "fallback chain"; §9, replay log).
func ModelHandler(models Model, rep *replay.Store, systemPrompt string) Handler {
	return func(ctx context.Context, input string, opts RunOptions) (string, error) {
		messages := []ai.Message{}
		if systemPrompt != "" {
			messages = append(messages, ai.Message{Role: "system", Content: systemPrompt})
		}
		messages = append(messages, ai.Message{Role: "user", Content: input})

		req := &ai.ChatRequest{
			Messages: messages,
			Metadata: map[string]interface{}{"taskId": opts.TaskID},
		}

		var lastErr error
		for _, name := range models.Chain() {
			client, ok := models.Get(name)
			if !ok {
				continue
			}

			started := time.Now()
			resp, err := client.Chat(ctx, req)
			completed := time.Now()

			if err != nil {
				lastErr = err
				if rep != nil {
					rep.Append(replay.Event{
						TaskID: opts.TaskID, Kind: replay.KindModel, Step: name,
						Input: req, Error: err.Error(),
						StartedAt: started, CompletedAt: completed,
						DurationMs: completed.Sub(started).Milliseconds(),
					})
				}
				continue
			}

			if rep != nil {
				rep.Append(replay.Event{
					TaskID: opts.TaskID, Kind: replay.KindModel, Step: name,
					Input: req, Output: resp.Content,
					StartedAt: started, CompletedAt: completed,
					DurationMs: completed.Sub(started).Milliseconds(),
				})
			}
			return resp.Content, nil
		}

		if lastErr == nil {
			return "", ErrNoModelAvailable
		}
		return "", fmt.Errorf("%w: %w", ErrNoModelAvailable, lastErr)
	}
}
