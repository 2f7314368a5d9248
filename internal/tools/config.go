package tools

import (
	"fmt"
	"slices"
)

// Config holds tool router configuration.
type Config struct {
	// Enabled toggles routing. When off, every enabled endpoint is offered.
	Enabled bool `koanf:"enabled" yaml:"enabled"`
	// MaxEndpoints caps how many endpoints a single task receives.
	MaxEndpoints int `koanf:"max_endpoints" yaml:"max_endpoints" validate:"gte=1"`
	// Groups define named collections of endpoints.
	Groups map[string][]string `koanf:"groups" yaml:"groups"`
	// AlwaysOn endpoints are offered to every task, even over budget.
	AlwaysOn []string `koanf:"always_on" yaml:"always_on"`
	// AlwaysOff endpoints are never offered.
	AlwaysOff []string `koanf:"always_off" yaml:"always_off"`
	// Rules define keyword-based routing rules.
	Rules []RoutingRule `koanf:"rules" yaml:"rules" validate:"dive"`
	// Endpoints seeds the registry.
	Endpoints []Endpoint `koanf:"endpoints" yaml:"endpoints" validate:"dive"`
}

// RoutingRule defines a keyword-based routing rule.
type RoutingRule struct {
	// Keywords trigger this rule when found in the task prompt.
	Keywords []string `koanf:"keywords" yaml:"keywords"`
	// Enable specifies which endpoints or groups to offer.
	Enable []string `koanf:"enable" yaml:"enable" validate:"min=1"`
	// Pattern is an optional regex pattern for matching.
	Pattern string `koanf:"pattern" yaml:"pattern,omitempty"`
}

// DefaultConfig returns rules for common documentation work. No endpoints
// are registered by default; they come from configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled:      true,
		MaxEndpoints: 4,
		Groups: map[string][]string{
			"research": {"search", "citations"},
			"code":     {"repository", "api_docs"},
			"data":     {"database", "charts"},
		},
		Rules: []RoutingRule{
			{
				Keywords: []string{"research", "reference", "citation", "paper", "source"},
				Enable:   []string{"research"},
			},
			{
				Keywords: []string{"api", "code", "repository", "endpoint", "sdk"},
				Enable:   []string{"code"},
			},
			{
				Keywords: []string{"data", "table", "metrics", "query", "chart"},
				Enable:   []string{"data"},
			},
			{
				Keywords: []string{"diagram", "architecture", "flowchart"},
				Enable:   []string{"diagrams"},
			},
		},
	}
}

// Validate checks invariants the struct tags cannot express.
func (c *Config) Validate() error {
	if c.MaxEndpoints < 1 {
		return fmt.Errorf("max_endpoints must be at least 1")
	}
	for _, name := range c.expandAll(c.AlwaysOn) {
		if c.IsAlwaysOff(name) {
			return fmt.Errorf("endpoint %q is both always_on and always_off", name)
		}
	}
	return nil
}

// NewRegistry builds a registry from the configured endpoints.
func (c *Config) NewRegistry() (*Registry, error) {
	reg := NewRegistry()
	for _, e := range c.Endpoints {
		if err := reg.Register(e); err != nil {
			return nil, fmt.Errorf("register endpoint: %w", err)
		}
	}
	return reg, nil
}

// IsAlwaysOn checks if an endpoint is in the always-on list, directly or
// through a group.
func (c *Config) IsAlwaysOn(name string) bool {
	return slices.Contains(c.expandAll(c.AlwaysOn), name)
}

// IsAlwaysOff checks if an endpoint is in the always-off list, directly or
// through a group.
func (c *Config) IsAlwaysOff(name string) bool {
	return slices.Contains(c.expandAll(c.AlwaysOff), name)
}

// expandAll expands every group in names.
func (c *Config) expandAll(names []string) []string {
	var out []string
	for _, n := range names {
		out = append(out, c.ExpandGroup(n)...)
	}
	return out
}

// ExpandGroup expands a group name to its member endpoints.
func (c *Config) ExpandGroup(name string) []string {
	if members, ok := c.Groups[name]; ok {
		return members
	}
	// Not a group, return as-is
	return []string{name}
}
