package executor

import "fmt"

// Validate checks the structural invariants of a Task tree before any
// evaluation begins (spec §4.6): a graph's dependsOn edges must reference
// existing nodes, node ids must be unique, and the graph must be acyclic.
// These are deterministic errors, reported rather than retried.
func Validate(t *Task) error {
	return validateNode(t)
}

func validateNode(t *Task) error {
	if t == nil {
		return fmt.Errorf("%w: nil task", ErrValidation)
	}

	switch t.Type {
	case TypeAtomic:
		if t.AgentID == "" {
			return fmt.Errorf("%w: atomic task %s requires agentId", ErrValidation, t.ID)
		}
	case TypeSequential, TypeParallel:
		if len(t.Subtasks) == 0 {
			return fmt.Errorf("%w: %s task %s requires at least one subtask", ErrValidation, t.Type, t.ID)
		}
		for _, c := range t.Subtasks {
			if err := validateNode(c); err != nil {
				return err
			}
		}
	case TypeConditional:
		if len(t.Subtasks) != 2 {
			return fmt.Errorf("%w: conditional task %s requires exactly two subtasks", ErrValidation, t.ID)
		}
		if t.Condition == nil {
			return fmt.Errorf("%w: conditional task %s requires a predicate", ErrValidation, t.ID)
		}
		for _, c := range t.Subtasks {
			if err := validateNode(c); err != nil {
				return err
			}
		}
	case TypeLoop:
		if len(t.Subtasks) != 1 {
			return fmt.Errorf("%w: loop task %s requires exactly one subtask", ErrValidation, t.ID)
		}
		if t.LoopCondition == nil {
			return fmt.Errorf("%w: loop task %s requires a loop predicate", ErrValidation, t.ID)
		}
		if err := validateNode(t.Subtasks[0]); err != nil {
			return err
		}
	case TypeGraph:
		if err := validateGraph(t.Graph); err != nil {
			return err
		}
		for _, n := range t.Graph {
			if err := validateNode(n.Task); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("%w: unknown task type %q", ErrValidation, t.Type)
	}
	return nil
}

func validateGraph(nodes []GraphNode) error {
	if len(nodes) == 0 {
		return fmt.Errorf("%w: graph task requires at least one node", ErrValidation)
	}

	seen := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		if n.ID == "" {
			return fmt.Errorf("%w: graph node requires an id", ErrValidation)
		}
		if seen[n.ID] {
			return fmt.Errorf("%w: duplicate graph node id %q", ErrValidation, n.ID)
		}
		seen[n.ID] = true
	}

	for _, n := range nodes {
		for _, dep := range n.DependsOn {
			if !seen[dep] {
				return fmt.Errorf("%w: graph node %q depends on unknown node %q", ErrValidation, n.ID, dep)
			}
		}
	}

	if _, err := topologicalBatches(nodes); err != nil {
		return err
	}
	return nil
}
