package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgent_RunInvokesHandler(t *testing.T) {
	a := New("echo", "Echo", "builtin", EchoHandler)
	a.Start()

	out, err := a.Run(context.Background(), "hello", RunOptions{TaskID: "t1"})
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestAgent_RunFailsWhenStopped(t *testing.T) {
	a := New("echo", "Echo", "builtin", EchoHandler)
	a.Stop()

	_, err := a.Run(context.Background(), "hello", RunOptions{})
	assert.ErrorIs(t, err, ErrAgentStopped)
}

func TestDelayHandler_HonorsCancellation(t *testing.T) {
	h := DelayHandler(10 * time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := h(ctx, "hello", RunOptions{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestErrorHandler_AlwaysFails(t *testing.T) {
	h := ErrorHandler("boom")
	_, err := h(context.Background(), "x", RunOptions{})
	assert.EqualError(t, err, "boom")
}
