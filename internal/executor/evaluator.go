package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/taskmesh/orchestrator/internal/agent"
	"github.com/taskmesh/orchestrator/internal/cancel"
	"github.com/taskmesh/orchestrator/internal/events"
	"github.com/taskmesh/orchestrator/internal/execctx"
)

// ErrValidation marks a deterministic structural error in a Task tree —
// reported, never retried (spec §4.6).
var ErrValidation = errors.New("validation error")

// ErrAgentNotFound is a deterministic validation error for a missing
// agentId reference.
var ErrAgentNotFound = fmt.Errorf("%w: agent not found", ErrValidation)

// ErrTimeout marks a node whose own t.Timeout elapsed, distinct from
// cancel.ErrAborted (a cancellation token firing) even though both
// surface through the same context.Done() plumbing (spec §7, §8).
var ErrTimeout = errors.New("timeout")

// AgentSource resolves an agent by id.
type AgentSource interface {
	Get(id string) (*agent.Agent, error)
}

// Evaluator walks a Task tree, invoking agents through AgentSource and
// threading cancellation/deadline/context state through execctx and
// cancel.
type Evaluator struct {
	agents  AgentSource
	cancels *cancel.Registry
	ctxMgr  *execctx.Manager
	bus     *events.Bus
	log     *logrus.Logger
}

// New constructs an Evaluator.
func New(agents AgentSource, cancels *cancel.Registry, ctxMgr *execctx.Manager, bus *events.Bus, log *logrus.Logger) *Evaluator {
	return &Evaluator{agents: agents, cancels: cancels, ctxMgr: ctxMgr, bus: bus, log: log}
}

// Run validates and evaluates root under taskID, publishing workflow
// lifecycle events and cleaning up the execution context on exit.
func (e *Evaluator) Run(ctx context.Context, taskID string, root *Task) (Result, error) {
	if err := Validate(root); err != nil {
		return Result{}, err
	}

	tok := e.cancels.GetOrCreate(taskID)
	e.ctxMgr.Create(taskID, root.AgentID, "", 0, deadlineFrom(root))
	defer e.ctxMgr.CleanupContext(taskID)

	e.publish(events.TypeWorkflowStarted, taskID, root.AgentID, nil)
	res, err := e.eval(ctx, taskID, root, tok)
	if err != nil {
		e.publish(events.TypeTaskFailed, taskID, root.AgentID, map[string]string{"error": err.Error()})
		return res, err
	}
	e.publish(events.TypeWorkflowCompleted, taskID, root.AgentID, nil)
	return res, nil
}

func deadlineFrom(t *Task) *time.Time {
	if t.Timeout <= 0 {
		return nil
	}
	d := time.Now().Add(t.Timeout)
	return &d
}

func (e *Evaluator) publish(typ events.Type, taskID, agentID string, data interface{}) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(events.Event{Type: typ, TaskID: taskID, AgentID: agentID, Timestamp: time.Now(), Data: data})
}

// eval dispatches t to its type-specific evaluator, applying t.Timeout as
// a linked child cancellation if set. If t's own timeout (not an ancestor
// or caller cancellation) elapses, the shared token is fired with reason
// "Task timeout exceeded" and the returned error is reclassified as
// ErrTimeout rather than the generic cancel.ErrAborted, so the
// orchestrator can record a TIMEOUT failure instead of a cancellation.
func (e *Evaluator) eval(ctx context.Context, taskID string, t *Task, tok *cancel.Token) (Result, error) {
	if err := cancel.ThrowIfAborted(tok); err != nil {
		return Result{}, err
	}

	runCtx := ctx
	hasTimeout := t.Timeout > 0
	var cancelTimeout context.CancelFunc
	if hasTimeout {
		runCtx, cancelTimeout = context.WithTimeout(ctx, t.Timeout)
		defer cancelTimeout()
	}

	var res Result
	var err error
	switch t.Type {
	case TypeAtomic:
		res, err = e.evalAtomic(runCtx, taskID, t, tok)
	case TypeSequential:
		res, err = e.evalSequential(runCtx, taskID, t, tok)
	case TypeParallel:
		res, err = e.evalParallel(runCtx, taskID, t, tok)
	case TypeGraph:
		res, err = e.evalGraph(runCtx, taskID, t, tok)
	case TypeConditional:
		res, err = e.evalConditional(runCtx, taskID, t, tok)
	case TypeLoop:
		res, err = e.evalLoop(runCtx, taskID, t, tok)
	default:
		return Result{}, fmt.Errorf("%w: unknown task type %q", ErrValidation, t.Type)
	}

	if hasTimeout && err != nil && ctx.Err() == nil && runCtx.Err() == context.DeadlineExceeded {
		e.cancels.Abort(taskID, "Task timeout exceeded")
		err = fmt.Errorf("%w: Task timeout exceeded", ErrTimeout)
	}
	return res, err
}

func (e *Evaluator) evalAtomic(ctx context.Context, taskID string, t *Task, tok *cancel.Token) (Result, error) {
	ag, err := e.agents.Get(t.AgentID)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %s", ErrAgentNotFound, t.AgentID)
	}

	maxAttempts := t.Retries + 1
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := cancel.ThrowIfAborted(tok); err != nil {
			return Result{}, err
		}

		out, err := cancel.RaceWithAbort(ctx, tok, func(raceCtx context.Context) (string, error) {
			return ag.Run(raceCtx, t.Input, agent.RunOptions{TaskID: taskID})
		})
		e.ctxMgr.RecordStep(taskID, "atomic:"+t.ID, t.Input, out, err)

		if err == nil {
			return Result{Output: out}, nil
		}
		lastErr = err

		if attempt < maxAttempts-1 {
			select {
			case <-time.After(retryDelay(attempt)):
			case <-ctx.Done():
				return Result{}, ctx.Err()
			case <-tok.Done():
				return Result{}, cancel.ErrAborted
			}
		}
	}
	return Result{}, fmt.Errorf("atomic task %s failed after %d attempts: %w", t.ID, maxAttempts, lastErr)
}

func (e *Evaluator) evalSequential(ctx context.Context, taskID string, t *Task, tok *cancel.Token) (Result, error) {
	execCtx, _ := e.ctxMgr.Get(taskID)
	var failures []FailureEntry
	var last Result

	for _, child := range t.Subtasks {
		res, err := e.eval(ctx, taskID, child, tok)
		if err != nil {
			if child.AllowFailure {
				failures = append(failures, FailureEntry{ChildID: child.ID, Error: err.Error()})
				continue
			}
			return Result{Failures: failures}, err
		}
		last = res
		if execCtx != nil {
			execCtx.Set(child.ID+"_output", res.Output)
		}
	}
	last.Failures = failures
	return last, nil
}

func (e *Evaluator) evalParallel(ctx context.Context, taskID string, t *Task, tok *cancel.Token) (Result, error) {
	type outcome struct {
		childID string
		res     Result
		err     error
	}

	results := make([]outcome, len(t.Subtasks))
	var wg sync.WaitGroup
	for i, child := range t.Subtasks {
		wg.Add(1)
		go func(i int, child *Task) {
			defer wg.Done()
			res, err := e.eval(ctx, taskID, child, tok)
			results[i] = outcome{childID: child.ID, res: res, err: err}
		}(i, child)
	}
	wg.Wait()

	var failures []FailureEntry
	var hardErr error
	for i, o := range results {
		if o.err != nil {
			if t.Subtasks[i].AllowFailure {
				failures = append(failures, FailureEntry{ChildID: o.childID, Error: o.err.Error()})
				continue
			}
			if hardErr == nil {
				hardErr = o.err
			}
		}
	}
	if hardErr != nil {
		e.cancels.Abort(taskID, "sibling failure")
		return Result{Failures: failures}, hardErr
	}
	return Result{Failures: failures}, nil
}

func (e *Evaluator) evalConditional(ctx context.Context, taskID string, t *Task, tok *cancel.Token) (Result, error) {
	if len(t.Subtasks) != 2 || t.Condition == nil {
		return Result{}, fmt.Errorf("%w: conditional task requires exactly two subtasks and a predicate", ErrValidation)
	}
	execCtx, _ := e.ctxMgr.Get(taskID)
	var vars map[string]interface{}
	if execCtx != nil {
		vars = execCtx.Variables()
	}

	branch := t.Subtasks[1]
	if t.Condition(vars) {
		branch = t.Subtasks[0]
	}
	return e.eval(ctx, taskID, branch, tok)
}

func (e *Evaluator) evalLoop(ctx context.Context, taskID string, t *Task, tok *cancel.Token) (Result, error) {
	if len(t.Subtasks) != 1 || t.LoopCondition == nil {
		return Result{}, fmt.Errorf("%w: loop task requires exactly one subtask and a loop predicate", ErrValidation)
	}
	body := t.Subtasks[0]
	execCtx, _ := e.ctxMgr.Get(taskID)

	var outputs []string
	for i := 0; i < maxLoopIterations; i++ {
		var vars map[string]interface{}
		if execCtx != nil {
			vars = execCtx.Variables()
		}
		if !t.LoopCondition(vars) {
			return Result{LoopOutputs: outputs, Output: lastOrEmpty(outputs)}, nil
		}

		res, err := e.eval(ctx, taskID, body, tok)
		if err != nil {
			return Result{LoopOutputs: outputs}, err
		}
		outputs = append(outputs, res.Output)
		if execCtx != nil {
			execCtx.Set(body.ID+"_output", res.Output)
		}
	}
	return Result{LoopOutputs: outputs}, fmt.Errorf("loop task %s exceeded max iterations (%d)", t.ID, maxLoopIterations)
}

func lastOrEmpty(outputs []string) string {
	if len(outputs) == 0 {
		return ""
	}
	return outputs[len(outputs)-1]
}
