package ai

import "sort"

// ProviderStatus is one entry of GET /api/models' providers map.
type ProviderStatus struct {
	Available bool   `json:"available"`
	Model     string `json:"model,omitempty"`
}

// ModelsSnapshot is the body served by GET /api/models (spec §6, §9
// "Deterministic replay" — the replay adapter is registered under the
// same contract as every live provider so the UI has one place to see
// which model will actually answer a submission).
type ModelsSnapshot struct {
	OK        bool                      `json:"ok"`
	Mode      string                    `json:"mode"`
	Chain     []string                  `json:"chain"`
	Providers map[string]ProviderStatus `json:"providers"`
}

// Registry holds the configured LLMClient chain: an ordered fallback
// list of providers that agent.ModelHandler tries in registration order.
// The chain is the same for every task; the generation mode is only
// reported, not used to pick a provider.
type Registry struct {
	mode    string
	chain   []string
	clients map[string]LLMClient
}

// NewRegistry constructs an empty Registry reporting mode (e.g.
// "creative" or "deterministic") as its default generation mode.
func NewRegistry(mode string) *Registry {
	return &Registry{mode: mode, clients: make(map[string]LLMClient)}
}

// Register adds name to the fallback chain, in call order, backed by
// client.
func (r *Registry) Register(name string, client LLMClient) {
	if _, exists := r.clients[name]; !exists {
		r.chain = append(r.chain, name)
	}
	r.clients[name] = client
}

// Get returns the named client, if registered.
func (r *Registry) Get(name string) (LLMClient, bool) {
	c, ok := r.clients[name]
	return c, ok
}

// Chain returns the fallback order agent.ModelHandler walks.
func (r *Registry) Chain() []string {
	chain := make([]string, len(r.chain))
	copy(chain, r.chain)
	return chain
}

// Snapshot reports the registry's current state for GET /api/models.
func (r *Registry) Snapshot() ModelsSnapshot {
	providers := make(map[string]ProviderStatus, len(r.clients))
	for name, c := range r.clients {
		providers[name] = ProviderStatus{Available: true, Model: c.GetModel()}
	}

	chain := make([]string, len(r.chain))
	copy(chain, r.chain)
	sort.Strings(chain)

	return ModelsSnapshot{
		OK:        len(r.clients) > 0,
		Mode:      r.mode,
		Chain:     chain,
		Providers: providers,
	}
}
