package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// EchoHandler returns the input unchanged. Used by the core's own tests
// and as the agent in the spec's "atomic success" scenario (§8).
func EchoHandler(ctx context.Context, input string, _ RunOptions) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	return input, nil
}

// DelayHandler returns a Handler that sleeps for duration before echoing
// the input, cooperatively honoring ctx cancellation. Used by the spec's
// "cancel mid-run" scenario (§8, agent "slow").
func DelayHandler(duration time.Duration) Handler {
	return func(ctx context.Context, input string, _ RunOptions) (string, error) {
		timer := time.NewTimer(duration)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
			return input, nil
		}
	}
}

// ErrorHandler returns a Handler that always fails with message, used to
// exercise allowFailure and retry paths in tests.
func ErrorHandler(message string) Handler {
	if message == "" {
		message = "simulated error"
	}
	return func(ctx context.Context, input string, _ RunOptions) (string, error) {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}
		return "", errors.New(message)
	}
}

// HTTPRequestHandler builds a Handler that issues one HTTP request per
// invocation. input is treated as a JSON object with "url", "method",
// optional "headers" and "body" — the same shape the teacher's
// task.HTTPRequestHandler payload used.
func HTTPRequestHandler(client *http.Client) Handler {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return func(ctx context.Context, input string, _ RunOptions) (string, error) {
		var req struct {
			URL     string            `json:"url"`
			Method  string            `json:"method"`
			Headers map[string]string `json:"headers"`
			Body    string            `json:"body"`
		}
		if err := json.Unmarshal([]byte(input), &req); err != nil {
			return "", fmt.Errorf("invalid http-request input: %w", err)
		}
		if req.URL == "" || req.Method == "" {
			return "", errors.New("http-request requires url and method")
		}

		var bodyReader io.Reader
		if req.Body != "" {
			bodyReader = strings.NewReader(req.Body)
		}

		httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bodyReader)
		if err != nil {
			return "", fmt.Errorf("failed to create request: %w", err)
		}
		for k, v := range req.Headers {
			httpReq.Header.Set(k, v)
		}

		resp, err := client.Do(httpReq)
		if err != nil {
			return "", fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", fmt.Errorf("failed to read response: %w", err)
		}

		out, _ := json.Marshal(map[string]interface{}{
			"status_code": resp.StatusCode,
			"body":        string(respBody),
		})
		return string(out), nil
	}
}
