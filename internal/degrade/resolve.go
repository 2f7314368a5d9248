package degrade

import (
	"fmt"

	"github.com/fentz26/ntbk/internal/fallback"
	"github.com/fentz26/ntbk/internal/models"
)

// Resolution is the terminal state a failed remote exchange turns into.
type Resolution struct {
	Status models.TaskStatus
	Source models.Source
	Result *models.Result
}

// Resolve prefers availability: any supported intent completes from a
// template; only an intent without a template ends the task as failed.
// remoteErr is kept for diagnostics and never shown as the reply.
func Resolve(task *models.Task, remoteErr error, logs string) Resolution {
	diag := "remote agent unavailable"
	if remoteErr != nil {
		diag = remoteErr.Error()
	}

	text, err := fallback.Generate(task.Intent, task.Topic, task.PromptContext)
	if err != nil {
		return Resolution{
			Status: models.TaskStatusFailed,
			Source: models.SourceFallback,
			Result: &models.Result{
				Logs:  logs,
				Error: fmt.Sprintf("%v; %s", err, diag),
			},
		}
	}

	return Resolution{
		Status: models.TaskStatusCompleted,
		Source: models.SourceFallback,
		Result: &models.Result{
			AgentReply: text,
			Logs:       logs,
			Error:      diag,
		},
	}
}
