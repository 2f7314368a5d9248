package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fentz26/ntbk/internal/controlplane"
)

var rootCmd = &cobra.Command{
	Use:   "ntbk",
	Short: "ntbk - AI task client with template fallback",
	Long: `ntbk submits AI writing tasks to a remote agent service, tracks them to
completion, and falls back to local templates when the service is unavailable.`,
	SilenceUsage: true,
	// No RunE - defaults to showing help when no subcommand is provided
}

var (
	apiAddr    string
	configPath string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&apiAddr, "api", "http://127.0.0.1:7466", "API server address")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default ~/.ntbk/config.yaml)")

	// Add subcommands
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(templateCmd)
	rootCmd.AddCommand(toolsCmd)
	rootCmd.AddCommand(tuiCmd)
}

func apiClient() *controlplane.Client {
	return controlplane.NewClient(apiAddr)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
