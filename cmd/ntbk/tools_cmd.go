package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fentz26/ntbk/internal/tools"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Inspect external tool endpoints and routing",
	Long:  `Inspect the external tool endpoints configured for tasks and preview how prompts are routed to them.`,
}

var toolsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured tool endpoints",
	RunE:  runToolsList,
}

var toolsRouteCmd = &cobra.Command{
	Use:   "route <prompt>",
	Short: "Preview which endpoints a prompt would receive",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runToolsRoute,
}

var toolsOverride string

func init() {
	toolsCmd.AddCommand(toolsListCmd, toolsRouteCmd)
	toolsRouteCmd.Flags().StringVar(&toolsOverride, "only", "", "Override selection (comma-separated endpoint or group names)")
}

func configuredRouter() (*tools.KeywordRouter, *tools.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	router, err := newToolRouter(&cfg.Tools)
	if err != nil {
		return nil, nil, err
	}
	return router, &cfg.Tools, nil
}

func runToolsList(cmd *cobra.Command, args []string) error {
	router, cfg, err := configuredRouter()
	if err != nil {
		return err
	}

	endpoints := router.Registry().List()
	out := cmd.OutOrStdout()
	if len(endpoints) == 0 {
		fmt.Fprintln(out, "No tool endpoints configured")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tPRIORITY\tENABLED\tURL\tCATEGORIES")
	for _, e := range endpoints {
		enabled := "✓"
		if !e.Enabled {
			enabled = "✗"
		}
		if cfg.IsAlwaysOn(e.Name) {
			enabled += " (always)"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n", e.Name, e.Priority, enabled, e.URL, strings.Join(e.Categories, ", "))
	}
	return w.Flush()
}

func runToolsRoute(cmd *cobra.Command, args []string) error {
	router, _, err := configuredRouter()
	if err != nil {
		return err
	}
	if toolsOverride != "" {
		router = router.Override(strings.Split(toolsOverride, ","))
	}

	res, err := router.Route(cmd.Context(), strings.Join(args, " "))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(res.MatchedRules) > 0 {
		fmt.Fprintf(out, "Matched rules: %s\n", strings.Join(res.MatchedRules, ", "))
	}
	if len(res.Selected) == 0 {
		fmt.Fprintln(out, "No endpoints selected")
	} else {
		fmt.Fprintln(out, "Selected:")
		for _, e := range res.Selected {
			fmt.Fprintf(out, "  %s  %s\n", e.Name, e.URL)
		}
	}
	if res.Dropped > 0 {
		fmt.Fprintf(out, "Dropped over budget: %d\n", res.Dropped)
	}
	return nil
}
