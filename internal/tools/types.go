// Package tools selects the external tool endpoints handed to the remote agent.
package tools

// Endpoint is a named external tool the agent may call during a task.
type Endpoint struct {
	Name       string   `koanf:"name" yaml:"name" json:"name" validate:"required"`
	URL        string   `koanf:"url" yaml:"url" json:"url" validate:"required,url"`
	Categories []string `koanf:"categories" yaml:"categories" json:"categories,omitempty"`
	Priority   int      `koanf:"priority" yaml:"priority" json:"priority"`
	Enabled    bool     `koanf:"enabled" yaml:"enabled" json:"enabled"`
}

// RoutingResult contains the result of a routing decision.
type RoutingResult struct {
	Selected     []Endpoint `json:"selected"`
	MatchedRules []string   `json:"matched_rules"`
	// Dropped counts endpoints that matched but fell outside the budget.
	Dropped int `json:"dropped"`
}

// Map returns the selection in the name → URL shape tasks carry.
func (r *RoutingResult) Map() map[string]string {
	if len(r.Selected) == 0 {
		return nil
	}
	m := make(map[string]string, len(r.Selected))
	for _, e := range r.Selected {
		m[e.Name] = e.URL
	}
	return m
}
