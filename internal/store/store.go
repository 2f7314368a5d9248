// Package store provides the keyed task table behind the task client.
package store

import (
	"context"
	"errors"

	"github.com/fentz26/ntbk/internal/models"
)

var (
	// ErrNotFound indicates no task exists with the given ID.
	ErrNotFound = errors.New("task not found")
	// ErrDuplicate indicates a task with the given ID already exists.
	ErrDuplicate = errors.New("task already exists")
)

// Store persists tasks and audit entries. Implementations must be safe for
// concurrent use and return copies, never shared references.
type Store interface {
	CreateTask(ctx context.Context, task *models.Task) error
	GetTask(ctx context.Context, id string) (*models.Task, error)
	UpdateTask(ctx context.Context, task *models.Task) error
	// ListTasks returns tasks in insertion order, oldest first.
	ListTasks(ctx context.Context) ([]models.Task, error)

	WriteAudit(ctx context.Context, entry *models.AuditEntry) error
	// ListAudit returns audit entries for a task, oldest first; empty taskID lists all.
	ListAudit(ctx context.Context, taskID string) ([]models.AuditEntry, error)

	Ping(ctx context.Context) error
	Close() error
}
