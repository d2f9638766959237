// Package orchestrator implements the Orchestrator (spec §4.8): the
// top-level coordinator that turns an admitted task into a Task tree,
// evaluates it through the Executor, and tracks aggregate run metrics.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/taskmesh/orchestrator/internal/behavior"
	"github.com/taskmesh/orchestrator/internal/executor"
	"github.com/taskmesh/orchestrator/internal/registry"
	"github.com/taskmesh/orchestrator/internal/scheduler"
	"github.com/taskmesh/orchestrator/internal/task"
)

// Listener receives a copy of every execution outcome. A listener that
// panics must not interrupt delivery to other listeners — the
// Orchestrator isolates each call, matching the teacher's
// monitor.go emitEvent fan-out.
type Listener func(Outcome)

// Outcome is what a workflow run reports to listeners on completion.
type Outcome struct {
	TaskID   string
	Status   task.Status
	Output   string
	Error    string
	Duration time.Duration
}

// Metrics is the aggregate run snapshot returned by Orchestrator.Metrics.
// No HTTP endpoint serves it.
type Metrics struct {
	TotalTasks     int64
	CompletedTasks int64
	FailedTasks    int64
	CancelledTasks int64
	ActiveCount    int
	AvgDurationMs  float64
}

// Orchestrator wires the Task Store, Scheduler, and Executor into one
// entry point: Execute admits a task, evaluates its tree, persists the
// outcome, and fans it out to subscribed listeners.
type Orchestrator struct {
	store     *task.Store
	scheduler *scheduler.Scheduler
	evaluator *executor.Evaluator
	agents    *registry.AgentRegistry
	log       *logrus.Logger

	mu        sync.RWMutex
	listeners map[string]Listener

	metricsMu sync.Mutex
	metrics   Metrics
	totalMs   int64
	finishedN int64
}

// New constructs an Orchestrator.
func New(store *task.Store, sched *scheduler.Scheduler, eval *executor.Evaluator, agents *registry.AgentRegistry, log *logrus.Logger) *Orchestrator {
	return &Orchestrator{
		store:     store,
		scheduler: sched,
		evaluator: eval,
		agents:    agents,
		log:       log,
		listeners: make(map[string]Listener),
	}
}

// Subscribe registers fn to receive every future Outcome. The returned
// func unsubscribes.
func (o *Orchestrator) Subscribe(id string, fn Listener) func() {
	o.mu.Lock()
	o.listeners[id] = fn
	o.mu.Unlock()
	return func() {
		o.mu.Lock()
		delete(o.listeners, id)
		o.mu.Unlock()
	}
}

// Execute admits taskID against the Scheduler's concurrency ceiling,
// evaluates root, updates the Task Store, and notifies listeners. It
// blocks until the run (including admission wait) completes or ctx is
// done.
func (o *Orchestrator) Execute(ctx context.Context, rec *task.Record, root *executor.Task) error {
	release, err := o.scheduler.Admit(ctx, rec.ID)
	if err != nil {
		return fmt.Errorf("admission failed: %w", err)
	}
	defer release()

	if root.AgentID != "" {
		o.scheduler.RecordStart(root.AgentID)
		defer o.scheduler.RecordFinish(root.AgentID)
	}

	o.bumpStarted()

	machine := behavior.New(rec.ID, rec.Status)
	machine.OnEnter(task.StatusInProgress, func(id string, _ task.Status) {
		o.log.WithField("task_id", id).Debug("behavior engine: entered in_progress")
	})
	machine.OnExit(task.StatusInProgress, func(id string, _ task.Status) {
		o.log.WithField("task_id", id).Debug("behavior engine: exited in_progress")
	})
	for _, terminal := range []task.Status{task.StatusCompleted, task.StatusFailed, task.StatusCancelled} {
		terminal := terminal
		machine.OnEnter(terminal, func(id string, s task.Status) {
			o.log.WithFields(logrus.Fields{"task_id": id, "status": s}).Debug("behavior engine: entered terminal status")
		})
	}

	started := time.Now()
	if err := machine.Transition(task.StatusInProgress); err != nil {
		return fmt.Errorf("behavior engine: %w", err)
	}
	if _, err := o.store.Update(rec.ID, func(r *task.Record) {
		r.Status = task.StatusInProgress
		now := time.Now()
		r.StartedAt = &now
	}); err != nil {
		return err
	}

	res, runErr := o.evaluator.Run(ctx, rec.ID, root)
	duration := time.Since(started)

	outcome := Outcome{TaskID: rec.ID, Duration: duration}
	finalStatus := task.StatusCompleted
	var errorCode, failedLayer, errorMsg string
	if runErr != nil {
		finalStatus, errorCode, failedLayer = classifyError(runErr)
		errorMsg = normalizeRunError(runErr)
		outcome.Error = errorMsg
	}
	if err := machine.Transition(finalStatus); err != nil {
		o.log.WithError(err).WithField("task_id", rec.ID).Warn("behavior engine rejected terminal transition")
	}
	outcome.Status = finalStatus
	outcome.Output = res.Output

	if _, err := o.store.Update(rec.ID, func(r *task.Record) {
		r.Status = finalStatus
		r.Output = res.Output
		r.DurationMs = duration.Milliseconds()
		if runErr != nil {
			r.Error = errorMsg
			r.ErrorCode = errorCode
			r.FailedLayer = failedLayer
		}
	}); err != nil {
		o.log.WithError(err).WithField("task_id", rec.ID).Error("failed to persist task outcome")
	}

	o.bumpFinished(finalStatus, duration)
	o.notify(outcome)

	return runErr
}

// notify delivers outcome to every listener, isolating panics per
// listener (grounded on orchestration/monitor.go's emitEvent).
func (o *Orchestrator) notify(outcome Outcome) {
	o.mu.RLock()
	fns := make([]Listener, 0, len(o.listeners))
	for _, fn := range o.listeners {
		fns = append(fns, fn)
	}
	o.mu.RUnlock()

	for _, fn := range fns {
		go func(fn Listener) {
			defer func() {
				if r := recover(); r != nil {
					o.log.WithField("panic", r).Warn("orchestrator listener panicked")
				}
			}()
			fn(outcome)
		}(fn)
	}
}

func (o *Orchestrator) bumpStarted() {
	o.metricsMu.Lock()
	defer o.metricsMu.Unlock()
	o.metrics.TotalTasks++
	o.metrics.ActiveCount++
}

func (o *Orchestrator) bumpFinished(status task.Status, duration time.Duration) {
	o.metricsMu.Lock()
	defer o.metricsMu.Unlock()
	o.metrics.ActiveCount--
	switch status {
	case task.StatusCompleted:
		o.metrics.CompletedTasks++
	case task.StatusFailed:
		o.metrics.FailedTasks++
	case task.StatusCancelled:
		o.metrics.CancelledTasks++
	}
	o.finishedN++
	o.totalMs += duration.Milliseconds()
	o.metrics.AvgDurationMs = float64(o.totalMs) / float64(o.finishedN)
}

// Metrics returns a snapshot of the aggregate run metrics.
func (o *Orchestrator) Metrics() Metrics {
	o.metricsMu.Lock()
	defer o.metricsMu.Unlock()
	return o.metrics
}

