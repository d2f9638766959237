package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// agentView is the wire shape of one GET /api/agents entry.
type agentView struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	Type            string            `json:"type"`
	State           string            `json:"state"`
	SuitabilityTags []string          `json:"suitabilityTags,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// listAgents handles GET /api/agents.
func (s *Server) listAgents(c *gin.Context) {
	agents := s.services.Agents.List()
	out := make([]agentView, 0, len(agents))
	for _, a := range agents {
		out = append(out, agentView{
			ID:              a.ID,
			Name:            a.Name,
			Type:            a.Type,
			State:           string(a.State),
			SuitabilityTags: a.SuitabilityTags,
			Metadata:        a.Metadata,
		})
	}
	c.JSON(http.StatusOK, out)
}

// agentMetrics handles GET /api/metrics/agents: the per-agent stats the
// Task Store already aggregates, reported against every currently
// registered agent (spec §3, "Agent metrics").
func (s *Server) agentMetrics(c *gin.Context) {
	agents := s.services.Agents.List()
	out := make([]interface{}, 0, len(agents))
	for _, a := range agents {
		out = append(out, s.services.Tasks.Stats(a.ID, 24))
	}
	c.JSON(http.StatusOK, out)
}

// schedulerView is one entry of GET /api/scheduler/status' agents array.
type schedulerView struct {
	AgentID   string  `json:"agentId"`
	LoadScore float64 `json:"loadScore"`
}

// schedulerStatus handles GET /api/scheduler/status.
func (s *Server) schedulerStatus(c *gin.Context) {
	agents := s.services.Agents.Running()
	views := make([]schedulerView, 0, len(agents))
	var total float64
	for _, a := range agents {
		score := s.services.Scheduler.LoadScore(a.ID)
		views = append(views, schedulerView{AgentID: a.ID, LoadScore: score})
		total += score
	}
	avg := 0.0
	if len(views) > 0 {
		avg = total / float64(len(views))
	}

	c.JSON(http.StatusOK, gin.H{
		"queuedTasks": s.services.Scheduler.QueueDepth(),
		"activeTasks": s.services.Scheduler.ActiveCount(),
		"capacity":    s.services.Scheduler.Capacity(),
		"averageLoad": avg,
		"agents":      views,
	})
}

// listModels handles GET /api/models.
func (s *Server) listModels(c *gin.Context) {
	c.JSON(http.StatusOK, s.services.Models.Snapshot())
}
