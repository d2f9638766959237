package orchestrator

import (
	"errors"
	"strings"

	"github.com/taskmesh/orchestrator/internal/agent"
	"github.com/taskmesh/orchestrator/internal/cancel"
	"github.com/taskmesh/orchestrator/internal/executor"
	"github.com/taskmesh/orchestrator/internal/task"
	"github.com/taskmesh/orchestrator/internal/toolmanager"
)

// isAborted reports whether err (or a wrapped cause) originated from a
// cancellation token firing, so an aborted run is recorded as cancelled
// rather than failed (spec §9: "cancellation is not a failure") — unless
// the abort was itself caused by a timeout, which classifyError checks
// first.
func isAborted(err error) bool {
	return errors.Is(err, cancel.ErrAborted)
}

// classifyError maps a run's terminal error onto the spec's error
// taxonomy (§7): a task Status, an errorCode, and a failedLayer label.
// Order matters — a timed-out node fires the shared cancellation token
// (see executor.Evaluator.eval), so ErrTimeout must be checked before the
// generic cancel.ErrAborted or every timeout would misclassify as a
// user cancellation.
func classifyError(err error) (status task.Status, errorCode, failedLayer string) {
	switch {
	case errors.Is(err, executor.ErrTimeout):
		return task.StatusFailed, "TIMEOUT", "Agent Runtime"
	case errors.Is(err, agent.ErrNoModelAvailable):
		return task.StatusFailed, "MODEL_ERROR", "Model Adapter"
	case errors.Is(err, toolmanager.ErrPermissionDenied):
		return task.StatusFailed, "PERMISSION_DENIED", "Tool Manager"
	case isAborted(err):
		return task.StatusCancelled, "ABORTED", "Cancellation"
	default:
		return task.StatusFailed, "EXECUTION_ERROR", "Agent Runtime"
	}
}

// normalizeRunError strips the internal sentinel prefix RaceWithAbort and
// eval's reclassification wrap onto the error message ("aborted: ...",
// "timeout: ..."), together with any wrapping context in front of it
// (e.g. an atomic task's "failed after N attempts: "), so the recorded
// error matches the literal reason text (e.g. "Task was cancelled by
// user", spec §7) rather than exposing cancellation plumbing.
func normalizeRunError(err error) string {
	msg := err.Error()
	var prefix string
	switch {
	case errors.Is(err, executor.ErrTimeout):
		prefix = executor.ErrTimeout.Error() + ": "
	case errors.Is(err, cancel.ErrAborted):
		prefix = cancel.ErrAborted.Error() + ": "
	default:
		return msg
	}
	if i := strings.Index(msg, prefix); i >= 0 {
		return msg[i+len(prefix):]
	}
	return msg
}
