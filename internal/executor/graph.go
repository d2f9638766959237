package executor

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/taskmesh/orchestrator/internal/cancel"
	"github.com/taskmesh/orchestrator/internal/events"
)

// evalGraph topologically schedules t.Graph's nodes: repeatedly runs every
// node whose dependencies are complete, in parallel, until every node is
// done (spec §4.6). Validate has already rejected duplicate ids, edges to
// missing nodes, and cycles.
func (e *Evaluator) evalGraph(ctx context.Context, taskID string, t *Task, tok *cancel.Token) (Result, error) {
	batches, err := topologicalBatches(t.Graph)
	if err != nil {
		return Result{}, err
	}

	byID := make(map[string]GraphNode, len(t.Graph))
	for _, n := range t.Graph {
		byID[n.ID] = n
	}

	outputs := make(map[string]string, len(t.Graph))
	var outputsMu sync.Mutex
	var failures []FailureEntry

	for _, batch := range batches {
		var wg sync.WaitGroup
		errs := make(chan error, len(batch))

		for _, nodeID := range batch {
			node := byID[nodeID]
			wg.Add(1)
			go func(node GraphNode) {
				defer wg.Done()
				e.publish(events.TypeGraphNode, taskID, node.Task.AgentID, map[string]string{"nodeId": node.ID, "status": "running"})

				res, err := e.eval(ctx, taskID, node.Task, tok)
				if err != nil {
					if node.AllowFailure {
						outputsMu.Lock()
						failures = append(failures, FailureEntry{ChildID: node.ID, Error: err.Error()})
						outputsMu.Unlock()
						e.publish(events.TypeGraphNode, taskID, node.Task.AgentID, map[string]string{"nodeId": node.ID, "status": "failed"})
						return
					}
					e.publish(events.TypeGraphNode, taskID, node.Task.AgentID, map[string]string{"nodeId": node.ID, "status": "failed"})
					errs <- fmt.Errorf("node %s: %w", node.ID, err)
					return
				}

				outputsMu.Lock()
				outputs[node.ID] = res.Output
				outputsMu.Unlock()
				e.publish(events.TypeGraphNode, taskID, node.Task.AgentID, map[string]string{"nodeId": node.ID, "status": "succeeded"})
			}(node)
		}

		wg.Wait()
		close(errs)
		for err := range errs {
			e.cancels.Abort(taskID, "graph node failure")
			return Result{NodeOutputs: outputs, Failures: failures}, err
		}

		select {
		case <-ctx.Done():
			return Result{NodeOutputs: outputs, Failures: failures}, ctx.Err()
		case <-tok.Done():
			return Result{NodeOutputs: outputs, Failures: failures}, cancel.ErrAborted
		default:
		}
	}

	return Result{NodeOutputs: outputs, Failures: failures}, nil
}

// topologicalBatches groups nodes (spec §4.6's "topologically schedules
// ... in parallel") by Kahn's algorithm: each batch holds every
// currently-ready node, sorted for determinism. An unresolved remainder
// after no batch can be formed indicates a cycle.
func topologicalBatches(nodes []GraphNode) ([][]string, error) {
	inDegree := make(map[string]int, len(nodes))
	dependents := make(map[string][]string, len(nodes))
	for _, n := range nodes {
		if _, ok := inDegree[n.ID]; !ok {
			inDegree[n.ID] = 0
		}
		inDegree[n.ID] += len(n.DependsOn)
		for _, dep := range n.DependsOn {
			dependents[dep] = append(dependents[dep], n.ID)
		}
	}

	remaining := len(nodes)
	var batches [][]string
	for remaining > 0 {
		var batch []string
		for id, deg := range inDegree {
			if deg == 0 {
				batch = append(batch, id)
			}
		}
		if len(batch) == 0 {
			return nil, fmt.Errorf("%w: unresolved dependencies or cycle", ErrValidation)
		}
		sort.Strings(batch)
		batches = append(batches, batch)

		for _, id := range batch {
			delete(inDegree, id)
			remaining--
			for _, dep := range dependents[id] {
				inDegree[dep]--
			}
		}
	}
	return batches, nil
}
