package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/taskmesh/orchestrator/internal/task"
)

// listHistory handles GET /api/history?limit&agentId&sortBy&sortOrder.
func (s *Server) listHistory(c *gin.Context) {
	f := task.Filters{
		AgentID:  c.Query("agentId"),
		SortBy:   c.DefaultQuery("sortBy", "startedAt"),
		SortDesc: c.DefaultQuery("sortOrder", "desc") != "asc",
	}
	if limit, err := strconv.Atoi(c.Query("limit")); err == nil {
		f.Limit = limit
	}
	c.JSON(http.StatusOK, s.services.Tasks.List(f))
}

// getHistory handles GET /api/history/:id.
func (s *Server) getHistory(c *gin.Context) {
	rec, err := s.services.Tasks.Get(c.Param("id"))
	if err != nil {
		notFound(c, err.Error())
		return
	}
	c.JSON(http.StatusOK, rec)
}

// retryHistory handles POST /api/history/:id/retry: creates a linked
// retry task and launches it under the original task's agent selection
// (spec §4.11) — Retry itself only copies the input and generation mode,
// so the agent/plan choice is re-derived here, not persisted by Retry.
func (s *Server) retryHistory(c *gin.Context) {
	originalID := c.Param("id")
	original, err := s.services.Tasks.Get(originalID)
	if err != nil {
		notFound(c, err.Error())
		return
	}

	retry, err := s.services.Tasks.Retry(originalID)
	if err != nil {
		if err == task.ErrTaskRunning {
			taskRunning(c, err.Error())
			return
		}
		badRequest(c, err.Error())
		return
	}

	s.startExecution(retry, original.AgentID, original.MultiAgentEnabled)
	c.JSON(http.StatusOK, gin.H{
		"retryTaskId":    retry.ID,
		"originalTaskId": originalID,
	})
}

// clearHistory handles DELETE /api/history.
func (s *Server) clearHistory(c *gin.Context) {
	s.services.Tasks.DeleteAll()
	c.Status(http.StatusNoContent)
}

// agentStats handles GET /api/history/agent/:agentId/stats?windowHours.
func (s *Server) agentStats(c *gin.Context) {
	windowHours := 24
	if v, err := strconv.Atoi(c.Query("windowHours")); err == nil && v > 0 {
		windowHours = v
	}
	c.JSON(http.StatusOK, s.services.Tasks.Stats(c.Param("agentId"), windowHours))
}

// activeTasks handles GET /api/tasks.
func (s *Server) activeTasks(c *gin.Context) {
	c.JSON(http.StatusOK, s.services.Tasks.Active())
}
