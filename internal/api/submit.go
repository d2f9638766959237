package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/taskmesh/orchestrator/internal/executor"
	"github.com/taskmesh/orchestrator/internal/scheduler"
	"github.com/taskmesh/orchestrator/internal/task"
)

// submitRequest is POST /task's body (spec §6).
type submitRequest struct {
	Input          string          `json:"input" binding:"required"`
	Agent          string          `json:"agent"`
	TaskID         string          `json:"taskId"`
	ConversationID string          `json:"conversationId"`
	Generation     task.Generation `json:"generation"`
	MultiAgent     bool            `json:"multiAgent"`
}

// submitTask handles POST /task: creates the task record, resolves (or
// plans) its execution tree, and launches it in the background — the run
// is deliberately not tied to this request's context (spec §6: a client
// disconnect must not cancel the task; cancellation flows only through
// POST /api/task/:id/cancel).
func (s *Server) submitTask(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	rec, err := s.services.Tasks.Create(req.TaskID, req.Input, req.Generation, req.ConversationID)
	if err != nil {
		if err == task.ErrTaskRunning {
			taskRunning(c, err.Error())
			return
		}
		badRequest(c, err.Error())
		return
	}

	s.startExecution(rec, req.Agent, req.MultiAgent)
	c.JSON(http.StatusOK, gin.H{"taskId": rec.ID})
}

// startExecution resolves rec's agent (or multi-agent plan), persists the
// selection onto the record, and runs the tree through the Orchestrator
// in a detached goroutine.
func (s *Server) startExecution(rec *task.Record, explicitAgentID string, multiAgent bool) {
	if multiAgent {
		s.startMultiAgentExecution(rec)
		return
	}
	s.startSingleAgentExecution(rec, explicitAgentID)
}

func (s *Server) startSingleAgentExecution(rec *task.Record, explicitAgentID string) {
	agentID := explicitAgentID
	manual := agentID != ""
	reason := "manually selected by submission"

	if agentID == "" {
		a, err := s.services.Scheduler.Select(nil)
		if err != nil {
			s.failBeforeStart(rec, err)
			return
		}
		agentID = a.ID
		reason = "selected by scheduler load ranking"
	}

	if _, err := s.services.Agents.Get(agentID); err != nil {
		s.failBeforeStart(rec, err)
		return
	}

	if _, err := s.services.Tasks.Update(rec.ID, func(r *task.Record) {
		r.AgentID = agentID
		r.ManuallySelected = manual
		r.AgentSelectionReason = reason
	}); err != nil {
		s.log.WithError(err).WithField("task_id", rec.ID).Error("failed to record agent selection")
	}

	root := &executor.Task{ID: rec.ID, Type: executor.TypeAtomic, AgentID: agentID, Input: rec.Input}
	s.run(rec, root)
}

// startMultiAgentExecution plans the fixed research/build/review/final
// role graph and binds one agent per role (spec §4.7).
func (s *Server) startMultiAgentExecution(rec *task.Record) {
	plan := scheduler.PlanMultiAgentWorkflow()
	bound, err := scheduler.BindAgents(plan, s.services.Scheduler)
	if err != nil {
		s.failBeforeStart(rec, err)
		return
	}

	nodes := make([]executor.GraphNode, 0, len(plan.Steps))
	snapshot := make([]nodeInfo, 0, len(plan.Steps))
	involved := make([]string, 0, len(plan.Steps))
	for _, step := range plan.Steps {
		agentID := bound[step.Role]
		involved = append(involved, agentID)
		nodes = append(nodes, executor.GraphNode{
			ID:        step.Role,
			Task:      &executor.Task{ID: step.Role, Type: executor.TypeAtomic, AgentID: agentID, Input: rec.Input},
			DependsOn: step.Dependencies,
		})
		snapshot = append(snapshot, nodeInfo{
			ID:        step.Role,
			AgentID:   agentID,
			DependsOn: step.Dependencies,
			Role:      step.Role,
		})
	}
	s.graphs.set(rec.ID, snapshot)

	if _, err := s.services.Tasks.Update(rec.ID, func(r *task.Record) {
		r.InvolvedAgents = involved
		r.MultiAgentEnabled = true
		r.AgentSelectionReason = "rule-based multi-agent planner"
	}); err != nil {
		s.log.WithError(err).WithField("task_id", rec.ID).Error("failed to record multi-agent plan")
	}

	root := &executor.Task{ID: rec.ID, Type: executor.TypeGraph, Graph: nodes}
	s.run(rec, root)
}

// failBeforeStart records a submission that could not even begin
// executing (no suitable agent, unknown agent id) as a failed task
// without ever reaching the Orchestrator.
func (s *Server) failBeforeStart(rec *task.Record, cause error) {
	if _, err := s.services.Tasks.Update(rec.ID, func(r *task.Record) {
		r.Status = task.StatusFailed
		r.Error = cause.Error()
		r.ErrorCode = "VALIDATION"
		r.FailedLayer = "Scheduler"
	}); err != nil {
		s.log.WithError(err).WithField("task_id", rec.ID).Error("failed to record pre-start failure")
	}
}

func (s *Server) run(rec *task.Record, root *executor.Task) {
	go func() {
		if err := s.services.Orchestrator.Execute(context.Background(), rec, root); err != nil {
			s.log.WithError(err).WithField("task_id", rec.ID).Warn("task finished with error")
		}
		s.services.Cancels.Cleanup(rec.ID)
	}()
}
