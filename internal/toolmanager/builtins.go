package toolmanager

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// httpTool issues one HTTP GET per invocation. It is the Tool Manager's
// analogue of internal/agent's HTTPRequestHandler, routed through the
// permission/rate-limit/audit pipeline instead of being called directly.
type httpTool struct {
	client *http.Client
}

// NewHTTPTool returns a Tool that performs an HTTP GET against args["url"].
func NewHTTPTool() Tool {
	return &httpTool{client: &http.Client{Timeout: 15 * time.Second}}
}

func (t *httpTool) Name() string                          { return "http_get" }
func (t *httpTool) Type() string                          { return "network" }
func (t *httpTool) Timeout() int64                        { return 15000 }
func (t *httpTool) RateLimitPerMinute() int               { return 30 }
func (t *httpTool) RequiredPermissions() []string         { return []string{"network"} }
func (t *httpTool) HealthCheck(ctx context.Context) error { return nil }

func (t *httpTool) Validate(args map[string]interface{}) error {
	url, ok := args["url"].(string)
	if !ok || url == "" {
		return fmt.Errorf("http_get requires a non-empty \"url\" argument")
	}
	return nil
}

func (t *httpTool) Execute(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	url := args["url"].(string)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return map[string]interface{}{"statusCode": resp.StatusCode}, nil
}

// clockTool reports the current time, used for deterministic tests of the
// permission/rate-limit pipeline without any network dependency.
type clockTool struct{}

// NewClockTool returns a Tool reporting the current UTC time.
func NewClockTool() Tool { return clockTool{} }

func (clockTool) Name() string                           { return "clock" }
func (clockTool) Type() string                           { return "utility" }
func (clockTool) Timeout() int64                         { return 1000 }
func (clockTool) RateLimitPerMinute() int                { return 0 }
func (clockTool) RequiredPermissions() []string          { return nil }
func (clockTool) Validate(map[string]interface{}) error  { return nil }
func (clockTool) HealthCheck(context.Context) error      { return nil }

func (clockTool) Execute(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	return map[string]interface{}{"now": time.Now().UTC().Format(time.RFC3339)}, nil
}
