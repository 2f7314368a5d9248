package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/fentz26/ntbk/internal/models"
	"github.com/fentz26/ntbk/internal/taskclient"
	"github.com/fentz26/ntbk/internal/tui"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage tasks on a running daemon",
}

var taskSubmitCmd = &cobra.Command{
	Use:   "submit <prompt>",
	Short: "Submit a new task",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runTaskSubmit,
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active and finished tasks",
	RunE:  runTaskList,
}

var taskShowCmd = &cobra.Command{
	Use:   "show <task-id>",
	Short: "Show task details",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskShow,
}

var taskCancelCmd = &cobra.Command{
	Use:   "cancel <task-id>",
	Short: "Cancel a pending or running task",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskCancel,
}

var taskWatchCmd = &cobra.Command{
	Use:   "watch <task-id>",
	Short: "Follow a task until it finishes",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskWatch,
}

var taskAuditCmd = &cobra.Command{
	Use:   "audit <task-id>",
	Short: "Show the audit trail of a task",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskAudit,
}

var (
	submitID          string
	submitIntent      string
	submitTopic       string
	submitModel       string
	submitTemperature float64
	submitMaxTokens   int
	submitTimeout     int
	submitWatch       bool
	watchInterval     time.Duration
)

func init() {
	taskCmd.AddCommand(taskSubmitCmd, taskListCmd, taskShowCmd, taskCancelCmd, taskWatchCmd, taskAuditCmd)

	f := taskSubmitCmd.Flags()
	f.StringVar(&submitID, "id", "", "Task ID (generated when empty)")
	f.StringVar(&submitIntent, "intent", "", "questions, draft or rewrite (inferred when empty)")
	f.StringVar(&submitTopic, "topic", "", "Topic used for draft headings")
	f.StringVar(&submitModel, "model", "", "Model name (daemon default when empty)")
	f.Float64Var(&submitTemperature, "temperature", 0.7, "Sampling temperature (0-2)")
	f.IntVar(&submitMaxTokens, "max-tokens", 1024, "Maximum tokens to generate")
	f.IntVar(&submitTimeout, "timeout", models.DefaultTimeoutSeconds, "Remote timeout in seconds")
	f.BoolVarP(&submitWatch, "watch", "w", false, "Watch the task after submitting")

	taskWatchCmd.Flags().DurationVar(&watchInterval, "interval", time.Second, "Polling interval")
	taskSubmitCmd.Flags().DurationVar(&watchInterval, "interval", time.Second, "Polling interval with --watch")
}

func submitRequest(args []string) taskclient.SubmitRequest {
	req := taskclient.SubmitRequest{
		TaskID:        submitID,
		Intent:        models.Intent(submitIntent),
		Topic:         submitTopic,
		PromptContext: strings.Join(args, " "),
	}
	// A zero agent config picks up the daemon's defaults.
	if submitModel != "" {
		req.AgentConfig = models.AgentConfig{
			Model:          submitModel,
			Temperature:    submitTemperature,
			MaxTokens:      submitMaxTokens,
			TimeoutSeconds: submitTimeout,
		}
	}
	return req
}

func runTaskSubmit(cmd *cobra.Command, args []string) error {
	id, err := apiClient().Submit(cmd.Context(), submitRequest(args))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Submitted task: %s\n", id)

	if submitWatch {
		return watchTask(id)
	}
	return nil
}

func runTaskList(cmd *cobra.Command, args []string) error {
	active, history, err := apiClient().ListTasks(cmd.Context())
	if err != nil {
		return err
	}
	printTaskTable(cmd.OutOrStdout(), active, history)
	return nil
}

func printTaskTable(out io.Writer, active, history []models.Task) {
	if len(active) == 0 && len(history) == 0 {
		fmt.Fprintln(out, "No tasks found")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tINTENT\tSTATUS\tSOURCE\tTOPIC")
	for _, group := range [][]models.Task{active, history} {
		for _, t := range group {
			source := string(t.Source)
			if source == "" {
				source = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				truncateID(t.ID), t.Intent, t.Status, source, truncate(t.Topic, 40))
		}
	}
	w.Flush()
}

func runTaskShow(cmd *cobra.Command, args []string) error {
	task, err := apiClient().GetTask(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	printTask(cmd.OutOrStdout(), task)
	return nil
}

func printTask(out io.Writer, t *models.Task) {
	fmt.Fprintf(out, "ID:        %s\n", t.ID)
	fmt.Fprintf(out, "Intent:    %s\n", t.Intent)
	if t.Topic != "" {
		fmt.Fprintf(out, "Topic:     %s\n", t.Topic)
	}
	fmt.Fprintf(out, "Status:    %s\n", t.Status)
	if t.Source != models.SourceUnset {
		fmt.Fprintf(out, "Source:    %s\n", t.Source)
	}
	fmt.Fprintf(out, "Model:     %s\n", t.AgentConfig.Model)
	fmt.Fprintf(out, "Attempts:  %d\n", t.Attempts)
	fmt.Fprintf(out, "Created:   %s\n", t.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(out, "Updated:   %s\n", t.UpdatedAt.Format(time.RFC3339))

	if t.Source == models.SourceFallback {
		fmt.Fprintf(out, "\n[%s]\n", tui.DegradedNotice)
	}
	if t.Result == nil {
		return
	}
	if t.Result.AgentReply != "" {
		fmt.Fprintln(out, "\n--- REPLY ---")
		fmt.Fprintln(out, strings.TrimRight(t.Result.AgentReply, "\n"))
	}
	if t.Result.Error != "" {
		fmt.Fprintln(out, "\n--- DETAIL ---")
		fmt.Fprintln(out, t.Result.Error)
	}
}

func runTaskCancel(cmd *cobra.Command, args []string) error {
	cancelled, err := apiClient().Cancel(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if cancelled {
		fmt.Fprintf(cmd.OutOrStdout(), "Cancelled task %s\n", args[0])
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "Task %s already finished\n", args[0])
	}
	return nil
}

func runTaskWatch(cmd *cobra.Command, args []string) error {
	return watchTask(args[0])
}

func watchTask(id string) error {
	task, err := tui.NewWatch(apiClient(), id, watchInterval).Run()
	if err != nil {
		return err
	}
	if task != nil && task.Status == models.TaskStatusFailed {
		return fmt.Errorf("task %s failed", id)
	}
	return nil
}

func runTaskAudit(cmd *cobra.Command, args []string) error {
	entries, err := apiClient().Audit(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tACTION\tOUTCOME\tDETAILS")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			e.Timestamp.Format(time.RFC3339), e.Action, e.Outcome, truncate(e.Details, 60))
	}
	w.Flush()
	return nil
}

// --- Helpers ---

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func truncateID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
