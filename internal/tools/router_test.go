package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.Endpoints = []Endpoint{
		{Name: "search", URL: "http://tools/search", Priority: 70, Enabled: true},
		{Name: "citations", URL: "http://tools/cite", Priority: 60, Enabled: true},
		{Name: "repository", URL: "http://tools/repo", Priority: 85, Enabled: true},
		{Name: "api_docs", URL: "http://tools/api", Priority: 50, Enabled: true},
		{Name: "database", URL: "http://tools/db", Priority: 65, Enabled: true},
		{Name: "charts", URL: "http://tools/charts", Priority: 40, Enabled: false},
		{Name: "glossary", URL: "http://tools/glossary", Priority: 90, Enabled: true},
	}
	return cfg
}

func newTestRouter(t *testing.T, cfg *Config) *KeywordRouter {
	t.Helper()
	r, err := NewRouter(cfg, nil)
	require.NoError(t, err)
	return r
}

func names(res *RoutingResult) []string {
	out := make([]string, len(res.Selected))
	for i, e := range res.Selected {
		out[i] = e.Name
	}
	return out
}

func TestKeywordRouter_BasicRouting(t *testing.T) {
	router := newTestRouter(t, testConfig())

	tests := []struct {
		name   string
		prompt string
		expect []string
	}{
		{
			name:   "research task",
			prompt: "Add a citation for the consensus paper",
			expect: []string{"search", "citations"},
		},
		{
			name:   "code task",
			prompt: "Document the API for the billing service",
			expect: []string{"repository", "api_docs"},
		},
		{
			name:   "data task skips disabled endpoint",
			prompt: "Summarize the latency table.",
			expect: []string{"database"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := router.Route(context.Background(), tt.prompt)
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.expect, names(res))
			assert.NotEmpty(t, res.MatchedRules)
		})
	}
}

func TestKeywordRouter_WholeWordsOnly(t *testing.T) {
	router := newTestRouter(t, testConfig())

	// "rapid" contains "api" but is not the word "api".
	res, err := router.Route(context.Background(), "rapid prototyping notes")
	require.NoError(t, err)
	assert.Empty(t, res.MatchedRules)
	assert.Equal(t, []string{"glossary", "repository"}, names(res), "unmatched prompts get high-priority endpoints")
}

func TestKeywordRouter_Budget(t *testing.T) {
	cfg := testConfig()
	cfg.MaxEndpoints = 2
	router := newTestRouter(t, cfg)

	res, err := router.Route(context.Background(), "api research data")
	require.NoError(t, err)
	assert.Equal(t, []string{"repository", "search"}, names(res))
	assert.Equal(t, 3, res.Dropped)
}

func TestKeywordRouter_AlwaysOnAndOff(t *testing.T) {
	cfg := testConfig()
	cfg.MaxEndpoints = 1
	cfg.AlwaysOn = []string{"glossary", "api_docs"}
	cfg.AlwaysOff = []string{"search"}
	router := newTestRouter(t, cfg)

	res, err := router.Route(context.Background(), "find a reference")
	require.NoError(t, err)
	got := names(res)
	assert.Contains(t, got, "glossary")
	assert.Contains(t, got, "api_docs", "always-on survives the budget")
	assert.NotContains(t, got, "search")
}

func TestKeywordRouter_Override(t *testing.T) {
	router := newTestRouter(t, testConfig()).Override([]string{"database", "charts"})

	res, err := router.Route(context.Background(), "research paper")
	require.NoError(t, err)
	assert.Equal(t, []string{"database"}, names(res))
	assert.Equal(t, []string{"override"}, res.MatchedRules)

	grouped := newTestRouter(t, testConfig()).Override([]string{"code", "glossary"})
	res, err = grouped.Route(context.Background(), "research paper")
	require.NoError(t, err)
	assert.Equal(t, []string{"glossary", "repository", "api_docs"}, names(res), "group expands to its members")
}

func TestKeywordRouter_AlwaysOnGroup(t *testing.T) {
	cfg := testConfig()
	cfg.MaxEndpoints = 1
	cfg.AlwaysOn = []string{"code"}
	router := newTestRouter(t, cfg)

	res, err := router.Route(context.Background(), "find a reference")
	require.NoError(t, err)
	got := names(res)
	assert.Contains(t, got, "repository")
	assert.Contains(t, got, "api_docs", "group members survive the budget")
	assert.NotContains(t, got, "code")

	cfg = testConfig()
	cfg.AlwaysOn = []string{"code"}
	cfg.AlwaysOff = []string{"api_docs"}
	assert.Error(t, cfg.Validate())
}

func TestKeywordRouter_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false
	cfg.MaxEndpoints = 10
	router := newTestRouter(t, cfg)

	res, err := router.Route(context.Background(), "anything")
	require.NoError(t, err)
	assert.Len(t, res.Selected, 6)
}

func TestKeywordRouter_Endpoints(t *testing.T) {
	router := newTestRouter(t, testConfig())

	m := router.Endpoints(context.Background(), "Cite the source")
	assert.Equal(t, map[string]string{
		"search":    "http://tools/search",
		"citations": "http://tools/cite",
	}, m)

	empty, err := NewRouter(DefaultConfig(), nil)
	require.NoError(t, err)
	assert.Nil(t, empty.Endpoints(context.Background(), "Cite the source"))
}

func TestKeywordRouter_Pattern(t *testing.T) {
	cfg := testConfig()
	cfg.Rules = []RoutingRule{{Pattern: `rfc\s*\d+`, Enable: []string{"citations"}}}
	router := newTestRouter(t, cfg)

	res, err := router.Route(context.Background(), "Summarize RFC 9110")
	require.NoError(t, err)
	assert.Equal(t, []string{"citations"}, names(res))
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	assert.Error(t, reg.Register(Endpoint{URL: "http://x"}))
	assert.Error(t, reg.Register(Endpoint{Name: "x"}))

	require.NoError(t, reg.Register(Endpoint{Name: "b", URL: "http://b", Priority: 1, Categories: []string{"c"}}))
	require.NoError(t, reg.Register(Endpoint{Name: "a", URL: "http://a", Priority: 1, Enabled: true}))
	assert.Equal(t, 2, reg.Count())

	list := reg.List()
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].Name, "ties break by name")
	assert.Len(t, reg.GetEnabled(), 1)

	require.NoError(t, reg.Enable("b"))
	assert.Len(t, reg.GetEnabled(), 2)
	require.NoError(t, reg.Disable("a"))
	assert.Error(t, reg.Enable("missing"))

	got, ok := reg.Get("b")
	require.True(t, ok)
	got.Categories[0] = "mutated"
	again, _ := reg.Get("b")
	assert.Equal(t, "c", again.Categories[0])
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.MaxEndpoints = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.AlwaysOn = []string{"x"}
	cfg.AlwaysOff = []string{"x"}
	assert.Error(t, cfg.Validate())
}
