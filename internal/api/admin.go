package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// statusProbe handles GET /api/status: liveness.
func (s *Server) statusProbe(c *gin.Context) {
	c.JSON(http.StatusOK, HealthStatus{Status: "healthy", Timestamp: time.Now()})
}

// recentLogs handles GET /api/logs?limit.
func (s *Server) recentLogs(c *gin.Context) {
	limit := 100
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 {
		limit = v
	}
	c.JSON(http.StatusOK, s.services.Logs.Recent(limit))
}

// auditQuery handles GET /api/audit?taskId&limit.
func (s *Server) auditQuery(c *gin.Context) {
	limit := 100
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 {
		limit = v
	}
	c.JSON(http.StatusOK, s.services.Audit.Query(c.Query("taskId"), limit))
}

// replayQuery handles GET /api/replay/:taskId?limit.
func (s *Server) replayQuery(c *gin.Context) {
	limit := 0
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 {
		limit = v
	}
	c.JSON(http.StatusOK, s.services.Replay.Query(c.Param("taskId"), limit))
}

// replayRun handles POST /api/replay/:taskId/run: deterministic
// reconstruction of a task's prior outcome from its recorded steps,
// without re-invoking any model or tool (spec §9).
func (s *Server) replayRun(c *gin.Context) {
	c.JSON(http.StatusOK, s.services.Replay.Run(c.Param("taskId")))
}
