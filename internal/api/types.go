package api

import (
	"time"

	"github.com/gin-gonic/gin"
)

// errorBody is the JSON shape returned for every non-2xx response: a
// UI-visible kind code (spec §7) plus a human-readable message.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeError(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorBody{Error: code, Message: message})
}

func badRequest(c *gin.Context, message string)   { writeError(c, 400, "VALIDATION", message) }
func notFound(c *gin.Context, message string)     { writeError(c, 404, "NOT_FOUND", message) }
func taskRunning(c *gin.Context, message string)  { writeError(c, 409, "TASK_RUNNING", message) }
func internalErr(c *gin.Context, message string)  { writeError(c, 500, "INTERNAL", message) }
func serviceBusy(c *gin.Context, message string)  { writeError(c, 503, "SERVICE_UNAVAILABLE", message) }

// HealthStatus is served by GET /api/status as a liveness probe body.
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// SystemInfo is reserved for future /api/status enrichment; kept minimal
// to match spec.md §6's "liveness probe" framing rather than the
// teacher's feature-flag inventory.
type SystemInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}
