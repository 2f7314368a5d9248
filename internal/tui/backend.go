package tui

import (
	"context"
	"time"

	"github.com/fentz26/ntbk/internal/controlplane"
	"github.com/fentz26/ntbk/internal/models"
)

// requestTimeout bounds each call a view makes to the daemon.
const requestTimeout = 5 * time.Second

// Backend is the daemon surface the views read from.
type Backend interface {
	GetTask(ctx context.Context, id string) (*models.Task, error)
	ListTasks(ctx context.Context) (active, history []models.Task, err error)
	Cancel(ctx context.Context, id string) (bool, error)
	Health(ctx context.Context) (*controlplane.HealthResponse, error)
}

type taskMsg struct{ task *models.Task }

type tasksLoadedMsg struct {
	active  []models.Task
	history []models.Task
}

type healthMsg struct {
	health *controlplane.HealthResponse
	err    error
}

type cancelResultMsg struct {
	id        string
	cancelled bool
}

type tickMsg time.Time

type errMsg struct{ err error }

func (e errMsg) Error() string { return e.err.Error() }
