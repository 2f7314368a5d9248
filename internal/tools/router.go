package tools

import (
	"context"
	"regexp"
	"strings"
)

// defaultPriorityFloor is the priority at which an endpoint is offered to
// tasks that match no rule.
const defaultPriorityFloor = 80

// KeywordRouter picks endpoints by matching rule keywords in the task prompt.
type KeywordRouter struct {
	config    *Config
	registry  *Registry
	overrides []string
}

// NewRouter creates a keyword router. A nil cfg uses DefaultConfig; a nil
// registry is built from cfg.Endpoints.
func NewRouter(cfg *Config, reg *Registry) (*KeywordRouter, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if reg == nil {
		var err error
		if reg, err = cfg.NewRegistry(); err != nil {
			return nil, err
		}
	}
	return &KeywordRouter{config: cfg, registry: reg}, nil
}

// Route determines which endpoints to offer for a task prompt.
func (r *KeywordRouter) Route(ctx context.Context, text string) (*RoutingResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !r.config.Enabled {
		// Router disabled, offer every enabled endpoint
		return r.applyBudget(r.registry.GetEnabled(), nil), nil
	}

	if len(r.overrides) > 0 {
		matched := make(map[string]bool)
		for _, name := range r.config.expandAll(r.overrides) {
			if !r.config.IsAlwaysOff(name) {
				matched[name] = true
			}
		}
		return r.applyBudget(r.buildList(matched), []string{"override"}), nil
	}

	text = strings.ToLower(text)
	matched := make(map[string]bool)
	var matchedRules []string

	for _, name := range r.config.expandAll(r.config.AlwaysOn) {
		matched[name] = true
	}

	for _, rule := range r.config.Rules {
		if !matchesRule(text, rule) {
			continue
		}
		matchedRules = append(matchedRules, strings.Join(rule.Keywords, ","))
		for _, enable := range rule.Enable {
			for _, name := range r.config.ExpandGroup(enable) {
				if !r.config.IsAlwaysOff(name) {
					matched[name] = true
				}
			}
		}
	}

	// No rule matched: fall back to high-priority endpoints.
	if len(matchedRules) == 0 {
		for _, e := range r.registry.GetEnabled() {
			if e.Priority >= defaultPriorityFloor && !r.config.IsAlwaysOff(e.Name) {
				matched[e.Name] = true
			}
		}
	}

	return r.applyBudget(r.buildList(matched), matchedRules), nil
}

// Endpoints returns the routed selection as name → URL, or nil when nothing
// applies.
func (r *KeywordRouter) Endpoints(ctx context.Context, text string) map[string]string {
	res, err := r.Route(ctx, text)
	if err != nil {
		return nil
	}
	return res.Map()
}

// Override returns a router that offers exactly the named endpoints. Group
// names expand to their members.
func (r *KeywordRouter) Override(names []string) *KeywordRouter {
	return &KeywordRouter{
		config:    r.config,
		registry:  r.registry,
		overrides: names,
	}
}

// Registry returns the router's registry.
func (r *KeywordRouter) Registry() *Registry {
	return r.registry
}

func matchesRule(text string, rule RoutingRule) bool {
	if rule.Pattern != "" {
		if matched, err := regexp.MatchString(rule.Pattern, text); err == nil && matched {
			return true
		}
	}
	for _, keyword := range rule.Keywords {
		if containsWord(text, strings.ToLower(keyword)) {
			return true
		}
	}
	return false
}

// containsWord checks if text contains keyword as a whole word.
func containsWord(text, keyword string) bool {
	// Multi-word keywords like "api docs" use plain substring matching
	if strings.Contains(keyword, " ") {
		return strings.Contains(text, keyword)
	}

	for _, word := range strings.Fields(text) {
		if strings.Trim(word, ".,;:!?\"'()[]{}") == keyword {
			return true
		}
	}
	return false
}

// buildList resolves matched names to enabled endpoints, highest priority first.
func (r *KeywordRouter) buildList(matched map[string]bool) []Endpoint {
	out := make([]Endpoint, 0, len(matched))
	for name := range matched {
		if e, ok := r.registry.Get(name); ok && e.Enabled {
			out = append(out, *e)
		}
	}
	sortByPriority(out)
	return out
}

// applyBudget keeps the highest priority endpoints within MaxEndpoints.
// Always-on endpoints are kept even over budget.
func (r *KeywordRouter) applyBudget(es []Endpoint, rules []string) *RoutingResult {
	res := &RoutingResult{MatchedRules: rules}
	for _, e := range es {
		if len(res.Selected) < r.config.MaxEndpoints || r.config.IsAlwaysOn(e.Name) {
			res.Selected = append(res.Selected, e)
			continue
		}
		res.Dropped++
	}
	return res
}
