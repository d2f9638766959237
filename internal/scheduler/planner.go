package scheduler

// PlanStep is one labelled role in a rule-based multi-agent plan: a node
// the executor will turn into a graph task once agents are bound to it.
type PlanStep struct {
	Role         string   `json:"role"`
	Description  string   `json:"description"`
	Dependencies []string `json:"dependencies,omitempty"`
	RequiredTags []string `json:"requiredTags"`
}

// Plan is an ordered set of role steps describing how a task should be
// decomposed across multiple agents (spec §4.8).
type Plan struct {
	Steps []PlanStep `json:"steps"`
}

// PlanMultiAgentWorkflow builds the fixed research/build/review/final role
// graph the spec's rule-based planner produces when a task is flagged
// multiAgentEnabled without an explicit agent list. Each role only begins
// once its dependencies finish, and "final" always waits on "review".
func PlanMultiAgentWorkflow() Plan {
	return Plan{
		Steps: []PlanStep{
			{
				Role:         "research",
				Description:  "gather context and constraints relevant to the task",
				RequiredTags: []string{"research"},
			},
			{
				Role:         "build",
				Description:  "produce a candidate solution from the research findings",
				Dependencies: []string{"research"},
				RequiredTags: []string{"build"},
			},
			{
				Role:         "review",
				Description:  "critique the candidate solution for correctness and completeness",
				Dependencies: []string{"build"},
				RequiredTags: []string{"review"},
			},
			{
				Role:         "final",
				Description:  "incorporate review feedback into the final output",
				Dependencies: []string{"review"},
				RequiredTags: []string{"build"},
			},
		},
	}
}

// BindAgents resolves one agent per plan step via sel, returning a role ->
// agentID map. It fails fast on the first role with no suitable agent.
func BindAgents(plan Plan, sel *Scheduler) (map[string]string, error) {
	bound := make(map[string]string, len(plan.Steps))
	for _, step := range plan.Steps {
		a, err := sel.Select(step.RequiredTags)
		if err != nil {
			return nil, err
		}
		bound[step.Role] = a.ID
	}
	return bound, nil
}
