package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fentz26/ntbk/internal/fallback"
	"github.com/fentz26/ntbk/internal/models"
)

var templateCmd = &cobra.Command{
	Use:   "template",
	Short: "Render fallback templates locally, without a daemon",
}

var templateQuestionsCmd = &cobra.Command{
	Use:   "questions [gap description]",
	Short: "Generate clarifying questions for missing information",
	RunE:  templateRunner(models.IntentQuestions),
}

var templateDraftCmd = &cobra.Command{
	Use:   "draft [context]",
	Short: "Generate a skeleton draft for a topic",
	RunE:  templateRunner(models.IntentDraft),
}

var templateRewriteCmd = &cobra.Command{
	Use:   "rewrite [text]",
	Short: "Wrap text with rewrite suggestions",
	RunE:  templateRunner(models.IntentRewrite),
}

var templateTopic string

func init() {
	templateCmd.AddCommand(templateQuestionsCmd, templateDraftCmd, templateRewriteCmd)
	templateDraftCmd.Flags().StringVar(&templateTopic, "topic", "", "Draft heading (derived from the context when empty)")
}

// templateRunner reads its input from the arguments, or stdin when none are given.
func templateRunner(intent models.Intent) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		input := strings.Join(args, " ")
		if len(args) == 0 {
			in := cmd.InOrStdin()
			if in == os.Stdin && !stdinIsPipe() {
				return fmt.Errorf("no input: pass text as arguments or pipe it on stdin")
			}
			data, err := io.ReadAll(in)
			if err != nil {
				return fmt.Errorf("read stdin: %w", err)
			}
			input = string(data)
		}

		text, err := fallback.Generate(intent, templateTopic, input)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), text)
		if !strings.HasSuffix(text, "\n") {
			fmt.Fprintln(cmd.OutOrStdout())
		}
		return nil
	}
}

// stdinIsPipe reports whether stdin carries piped input.
func stdinIsPipe() bool {
	fi, err := os.Stdin.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice == 0
}
