package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/taskmesh/orchestrator/internal/events"
	"github.com/taskmesh/orchestrator/internal/task"
)

// taskSnapshot is the JSON payload for every SSE update: the task record
// plus a task_id alias (spec §6, "Event-stream format").
type taskSnapshot struct {
	*task.Record
	TaskID string `json:"task_id"`
}

func snapshotOf(rec *task.Record) taskSnapshot {
	return taskSnapshot{Record: rec, TaskID: rec.ID}
}

// taskStatus handles GET /api/task/:id/status.
func (s *Server) taskStatus(c *gin.Context) {
	rec, err := s.services.Tasks.Get(c.Param("id"))
	if err != nil {
		notFound(c, err.Error())
		return
	}
	c.JSON(http.StatusOK, rec)
}

// taskDetails handles GET /api/task/:id/details: status, current step,
// recent logs, and a graph snapshot overlaying live node status from the
// Event Bus's replay buffer onto the static plan recorded at submission.
func (s *Server) taskDetails(c *gin.Context) {
	taskID := c.Param("id")
	rec, err := s.services.Tasks.Get(taskID)
	if err != nil {
		notFound(c, err.Error())
		return
	}

	nodes, ok := s.graphs.get(taskID)
	if !ok {
		nodes = []nodeInfo{{ID: rec.ID, AgentID: rec.AgentID}}
	}
	statuses := nodeStatuses(s.services.Bus.Replay(taskID, 0))

	out := make([]nodeInfo, len(nodes))
	copy(out, nodes)
	withStatus := make([]struct {
		nodeInfo
		Status string `json:"status"`
	}, len(out))
	for i, n := range out {
		st, ok := statuses[n.ID]
		if !ok {
			st = string(rec.Status)
		}
		withStatus[i].nodeInfo = n
		withStatus[i].Status = st
	}

	var currentStep string
	if len(rec.Messages) > 0 {
		currentStep = rec.Messages[len(rec.Messages)-1]
	}
	logs := rec.Messages
	if len(logs) > 10 {
		logs = logs[len(logs)-10:]
	}

	c.JSON(http.StatusOK, gin.H{
		"id":          rec.ID,
		"status":      rec.Status,
		"currentStep": currentStep,
		"recentLogs":  logs,
		"nodes":       withStatus,
	})
}

// nodeStatuses folds a task's buffered graph.node events into a
// nodeId -> latest-status map.
func nodeStatuses(buffered []events.Event) map[string]string {
	out := make(map[string]string)
	for _, e := range buffered {
		if e.Type != events.TypeGraphNode {
			continue
		}
		data, ok := e.Data.(map[string]string)
		if !ok {
			continue
		}
		if id, ok := data["nodeId"]; ok {
			out[id] = data["status"]
		}
	}
	return out
}

// taskStream handles GET /api/task/:id/stream: one `event: task` line per
// update until the task reaches a terminal status, grounded on the
// pack's raw-Flusher SSE pattern (no gin c.Stream wrapper, since this
// loop needs to both poll the store and react to bus events).
func (s *Server) taskStream(c *gin.Context) {
	taskID := c.Param("id")
	if _, err := s.services.Tasks.Get(taskID); err != nil {
		notFound(c, err.Error())
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		internalErr(c, "streaming not supported")
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	flusher.Flush()

	changed := make(chan struct{}, 1)
	unsubscribe := s.services.Bus.Subscribe(taskID, nil, func(events.Event) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	emit := func() (terminal bool) {
		rec, err := s.services.Tasks.Get(taskID)
		if err != nil {
			return true
		}
		data, err := json.Marshal(snapshotOf(rec))
		if err != nil {
			return rec.Status.IsTerminal()
		}
		fmt.Fprintf(c.Writer, "event: task\ndata: %s\n\n", data)
		flusher.Flush()
		return rec.Status.IsTerminal()
	}

	if emit() {
		return
	}
	for {
		select {
		case <-changed:
			if emit() {
				return
			}
		case <-c.Request.Context().Done():
			// client disconnect must not cancel the task (spec §6).
			return
		}
	}
}

// cancelTask handles POST /api/task/:id/cancel: idempotent abort via the
// Cancellation Registry.
func (s *Server) cancelTask(c *gin.Context) {
	taskID := c.Param("id")
	if _, err := s.services.Tasks.Get(taskID); err != nil {
		notFound(c, err.Error())
		return
	}
	s.services.Cancels.Abort(taskID, "Task was cancelled by user")
	c.JSON(http.StatusOK, gin.H{"taskId": taskID, "status": "cancel requested"})
}

// deleteTask handles DELETE /api/task/:id: removes the task and every
// sibling sharing its conversation (spec §3).
func (s *Server) deleteTask(c *gin.Context) {
	taskID := c.Param("id")
	if err := s.services.Tasks.Delete(taskID); err != nil {
		notFound(c, err.Error())
		return
	}
	s.services.Replay.Clear(taskID)
	s.services.Cancels.Cleanup(taskID)
	c.Status(http.StatusNoContent)
}
