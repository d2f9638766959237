package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskmesh/orchestrator/internal/audit"
	"github.com/taskmesh/orchestrator/internal/events"
	"github.com/taskmesh/orchestrator/internal/replay"
	"github.com/taskmesh/orchestrator/internal/task"
)

func TestOpen_CreatesMissingDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	w, err := Open(dir)
	require.NoError(t, err)
	require.NotNil(t, w)

	assert.NoError(t, w.AppendTask(task.Record{ID: "t1", Status: task.StatusQueued}))
}

func TestWriter_AppendAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir)
	require.NoError(t, err)

	require.NoError(t, w.AppendTask(task.Record{ID: "t1", Input: "do the thing", Status: task.StatusCompleted}))
	require.NoError(t, w.AppendAudit(audit.Event{ID: "a1", Type: audit.EventToolCall, AgentID: "writer", TaskID: "t1"}))
	require.NoError(t, w.AppendReplay(replay.Event{ID: "r1", TaskID: "t1", AgentID: "writer", Kind: replay.KindModel, Output: "hello"}))

	bus := events.New(logrus.New())
	taskStore := task.New(bus, nil)
	auditLog := audit.New(10)
	replayStore := replay.New(10)

	require.NoError(t, Load(context.Background(), dir, taskStore, auditLog, replayStore, nil))

	rec, err := taskStore.Get("t1")
	require.NoError(t, err)
	assert.Equal(t, "do the thing", rec.Input)
	assert.Equal(t, task.StatusCompleted, rec.Status)

	entries := auditLog.Query("t1", 0)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.EventToolCall, entries[0].Type)

	replayed := replayStore.Query("t1", 0)
	require.Len(t, replayed, 1)
	assert.Equal(t, "hello", replayed[0].Output)
}

func TestLoad_MissingFilesIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	bus := events.New(logrus.New())
	taskStore := task.New(bus, nil)
	auditLog := audit.New(10)
	replayStore := replay.New(10)

	err := Load(context.Background(), dir, taskStore, auditLog, replayStore, nil)
	assert.NoError(t, err)
	assert.Empty(t, taskStore.Active())
}

func TestWriter_SatisfiesSinkInterfaces(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir)
	require.NoError(t, err)

	var _ task.Sink = w
	var _ audit.Sink = w
	var _ replay.Sink = w
}
