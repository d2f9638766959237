package toolmanager

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPTool_ExecuteReturnsStatusCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer srv.Close()

	tool := NewHTTPTool()
	out, err := tool.Execute(context.Background(), map[string]interface{}{"url": srv.URL})
	require.NoError(t, err)
	assert.Equal(t, http.StatusTeapot, out["statusCode"])
}

func TestHTTPTool_ValidateRejectsMissingURL(t *testing.T) {
	tool := NewHTTPTool()
	err := tool.Validate(map[string]interface{}{})
	assert.Error(t, err)
}

func TestHTTPTool_ThroughManagerEnforcesPermissions(t *testing.T) {
	m := newTestManager()
	m.RegisterTool(NewHTTPTool())

	result := m.CallTool(context.Background(), "researcher", CallRequest{ToolName: "http_get", Args: map[string]interface{}{"url": "http://example.com"}})
	assert.False(t, result.Success)
	assert.Equal(t, KindPermission, result.ErrorKind)

	m.GrantPermission("researcher", "http_get")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	result = m.CallTool(context.Background(), "researcher", CallRequest{ToolName: "http_get", Args: map[string]interface{}{"url": srv.URL}})
	assert.True(t, result.Success)
}

func TestClockTool_ExecuteReturnsRFC3339Timestamp(t *testing.T) {
	tool := NewClockTool()
	out, err := tool.Execute(context.Background(), nil)
	require.NoError(t, err)
	assert.Contains(t, out, "now")
}

func TestClockTool_RequiresNoPermission(t *testing.T) {
	tool := NewClockTool()
	assert.Empty(t, tool.RequiredPermissions())
	assert.NoError(t, tool.Validate(nil))
}
