package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/spf13/cobra"

	"github.com/fentz26/ntbk/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch the task dashboard",
	RunE:  runTUI,
}

var tuiNoStart bool

func init() {
	tuiCmd.Flags().BoolVar(&tuiNoStart, "no-start", false, "Do not start a daemon when none is running")
}

func runTUI(cmd *cobra.Command, args []string) error {
	if !isDaemonRunning() {
		if tuiNoStart {
			return fmt.Errorf("daemon not reachable at %s", apiAddr)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "ntbk daemon not running. Starting background service...")
		if err := startDaemon(cmd); err != nil {
			return fmt.Errorf("failed to start daemon: %w", err)
		}
	}

	app := tui.New(apiClient(), 2*time.Second)
	if err := app.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

func isDaemonRunning() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	// Any health payload, even a 503, means the daemon is up.
	h, _ := apiClient().Health(ctx)
	return h != nil
}

func startDaemon(cmd *cobra.Command) error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}

	daemonArgs := []string{"serve"}
	if configPath != "" {
		daemonArgs = append(daemonArgs, "--config", configPath)
	}
	proc := exec.Command(exe, daemonArgs...)
	// Detach process so it survives TUI exit
	configureDaemonProc(proc)
	proc.Stdin = nil
	proc.Stdout = nil
	proc.Stderr = nil

	if err := proc.Start(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprint(out, "   Waiting for daemon...")
	for i := 0; i < 20; i++ {
		if isDaemonRunning() {
			fmt.Fprintln(out, " Done.")
			return nil
		}
		time.Sleep(250 * time.Millisecond)
		fmt.Fprint(out, ".")
	}
	fmt.Fprintln(out, " Timeout!")
	return fmt.Errorf("daemon started but API not reachable at %s", apiAddr)
}
