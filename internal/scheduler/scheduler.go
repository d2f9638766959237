// Package scheduler implements task admission and agent selection (spec
// §4.7): a FIFO queue gating how many tasks run concurrently, an
// EWMA-smoothed load score per agent, and suitability-tag ranking for
// picking which registered agent should run a task.
package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/taskmesh/orchestrator/internal/agent"
)

// ErrNoSuitableAgent is returned when no registered, running agent
// matches the requested suitability tags.
var ErrNoSuitableAgent = errors.New("no suitable agent available")

// ewmaAlpha weights the most recent sample against the running average.
// 0.3 favors responsiveness to recent load over long-run smoothing; a
// sample is folded in on every RecordStart and RecordFinish.
const ewmaAlpha = 0.3

// AgentSource resolves the currently registered, running agents. The
// Registry (internal/registry) implements it.
type AgentSource interface {
	Running() []*agent.Agent
}

// load tracks one agent's EWMA-smoothed active-task count.
type load struct {
	score       float64
	activeTasks int
}

// Scheduler admits tasks against a concurrency ceiling and ranks agents
// for a task's suitability tags.
type Scheduler struct {
	agents AgentSource

	maxConcurrent int
	sem           chan struct{}

	mu    sync.Mutex
	loads map[string]*load
	// queue is the FIFO admission order, used only to report queue depth
	// and position — admission itself is governed by sem.
	queue []string
}

// New constructs a Scheduler that admits at most maxConcurrent
// simultaneous task runs.
func New(agents AgentSource, maxConcurrent int) *Scheduler {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Scheduler{
		agents:        agents,
		maxConcurrent: maxConcurrent,
		sem:           make(chan struct{}, maxConcurrent),
		loads:         make(map[string]*load),
	}
}

// Admit blocks, in FIFO arrival order, until a concurrency slot is free
// or ctx is done. The returned release func must be called exactly once
// to free the slot.
func (s *Scheduler) Admit(ctx context.Context, taskID string) (release func(), err error) {
	s.mu.Lock()
	s.queue = append(s.queue, taskID)
	s.mu.Unlock()

	select {
	case s.sem <- struct{}{}:
		s.dequeue(taskID)
		return func() { <-s.sem }, nil
	case <-ctx.Done():
		s.dequeue(taskID)
		return nil, ctx.Err()
	}
}

func (s *Scheduler) dequeue(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, id := range s.queue {
		if id == taskID {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return
		}
	}
}

// QueueDepth reports how many tasks are waiting for admission.
func (s *Scheduler) QueueDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// ActiveCount reports how many tasks currently hold a concurrency slot.
func (s *Scheduler) ActiveCount() int {
	return len(s.sem)
}

// Capacity returns the configured concurrency ceiling.
func (s *Scheduler) Capacity() int {
	return s.maxConcurrent
}

// RecordStart marks one more active task against agentID and folds it
// into that agent's EWMA load score.
func (s *Scheduler) RecordStart(agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.loadLocked(agentID)
	l.activeTasks++
	l.score = ewmaAlpha*float64(l.activeTasks) + (1-ewmaAlpha)*l.score
}

// RecordFinish marks one fewer active task against agentID.
func (s *Scheduler) RecordFinish(agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.loadLocked(agentID)
	if l.activeTasks > 0 {
		l.activeTasks--
	}
	l.score = ewmaAlpha*float64(l.activeTasks) + (1-ewmaAlpha)*l.score
}

func (s *Scheduler) loadLocked(agentID string) *load {
	l, ok := s.loads[agentID]
	if !ok {
		l = &load{}
		s.loads[agentID] = l
	}
	return l
}

// LoadScore returns agentID's current EWMA load score, 0 if unseen.
func (s *Scheduler) LoadScore(agentID string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.loads[agentID]; ok {
		return l.score
	}
	return 0
}

// Select ranks running agents carrying every tag in requiredTags by
// ascending EWMA load score and returns the best match. Ties break on
// agent ID for determinism.
func (s *Scheduler) Select(requiredTags []string) (*agent.Agent, error) {
	candidates := s.candidates(requiredTags)
	if len(candidates) == 0 {
		return nil, ErrNoSuitableAgent
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sort.Slice(candidates, func(i, j int) bool {
		li, lj := s.scoreLocked(candidates[i].ID), s.scoreLocked(candidates[j].ID)
		if li != lj {
			return li < lj
		}
		return candidates[i].ID < candidates[j].ID
	})
	return candidates[0], nil
}

func (s *Scheduler) scoreLocked(agentID string) float64 {
	if l, ok := s.loads[agentID]; ok {
		return l.score
	}
	return 0
}

func (s *Scheduler) candidates(requiredTags []string) []*agent.Agent {
	var out []*agent.Agent
	for _, a := range s.agents.Running() {
		if hasAllTags(a.SuitabilityTags, requiredTags) {
			out = append(out, a)
		}
	}
	return out
}

func hasAllTags(have, want []string) bool {
	if len(want) == 0 {
		return true
	}
	set := make(map[string]bool, len(have))
	for _, t := range have {
		set[t] = true
	}
	for _, t := range want {
		if !set[t] {
			return false
		}
	}
	return true
}
