// Package executor evaluates a Task tree (spec §4.6): atomic, sequential,
// parallel, graph, conditional, and loop composites, against a registry
// of agents, honoring timeouts, retries, allowFailure, and cancellation.
package executor

import "time"

// Type identifies a Task tree node's evaluation strategy.
type Type string

const (
	TypeAtomic      Type = "atomic"
	TypeSequential  Type = "sequential"
	TypeParallel    Type = "parallel"
	TypeGraph       Type = "graph"
	TypeConditional Type = "conditional"
	TypeLoop        Type = "loop"
)

// Predicate evaluates the current execution context and reports whether
// a conditional/loop branch should proceed.
type Predicate func(vars map[string]interface{}) bool

// GraphNode is one node of a `graph` task: an inner task plus the edges
// it depends on.
type GraphNode struct {
	ID           string
	Task         *Task
	DependsOn    []string
	AllowFailure bool
}

// Task is one node of the composition tree the Executor evaluates.
type Task struct {
	ID   string
	Type Type

	// AgentID is required for TypeAtomic.
	AgentID string
	// Input is the serialized payload passed to an atomic agent. Composite
	// types do not read it.
	Input string

	// Subtasks holds children for sequential/parallel, and exactly the
	// [true, false] branches for conditional, and exactly one entry for
	// loop.
	Subtasks []*Task

	// Graph holds nodes for TypeGraph.
	Graph []GraphNode

	Condition     Predicate
	LoopCondition Predicate

	Timeout      time.Duration
	Retries      int
	AllowFailure bool
}

// retryDelays is the fixed atomic backoff table (spec §4.6); the i-th
// retry (0-indexed) sleeps retryDelays[min(i, len-1)].
var retryDelays = []time.Duration{
	100 * time.Millisecond,
	200 * time.Millisecond,
	500 * time.Millisecond,
	1000 * time.Millisecond,
	2000 * time.Millisecond,
}

func retryDelay(attempt int) time.Duration {
	if attempt >= len(retryDelays) {
		return retryDelays[len(retryDelays)-1]
	}
	return retryDelays[attempt]
}

// maxLoopIterations is the loop safety bound (spec §4.6, §8 edge case).
const maxLoopIterations = 1000

// Result is the outcome of evaluating one Task node.
type Result struct {
	Output   string
	Failures []FailureEntry
	// NodeOutputs holds the per-node output map for a TypeGraph result.
	NodeOutputs map[string]string
	// LoopOutputs holds the ordered per-iteration outputs for a TypeLoop
	// result.
	LoopOutputs []string
}

// FailureEntry records one allowFailure-absorbed soft failure.
type FailureEntry struct {
	ChildID string `json:"childId"`
	Error   string `json:"error"`
}
