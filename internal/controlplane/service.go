// Package controlplane exposes the task client over HTTP.
package controlplane

import (
	"context"
	"fmt"

	"github.com/fentz26/ntbk/internal/models"
	"github.com/fentz26/ntbk/internal/store"
	"github.com/fentz26/ntbk/internal/taskclient"
)

// Tasks is the task client surface the control plane serves.
type Tasks interface {
	Submit(ctx context.Context, req taskclient.SubmitRequest) (string, error)
	GetStatus(ctx context.Context, id string) (*models.Task, error)
	Cancel(ctx context.Context, id string) (bool, error)
	List(ctx context.Context) (active, history []models.Task, err error)
	Stats() taskclient.Stats
}

// Service combines the task client with the store it runs on.
type Service struct {
	tasks Tasks
	store store.Store
}

// NewService creates a new control plane service.
func NewService(tasks Tasks, st store.Store) *Service {
	return &Service{
		tasks: tasks,
		store: st,
	}
}

// Submit creates a task and returns its ID.
func (s *Service) Submit(ctx context.Context, req taskclient.SubmitRequest) (string, error) {
	return s.tasks.Submit(ctx, req)
}

// GetTask retrieves a task by ID.
func (s *Service) GetTask(ctx context.Context, id string) (*models.Task, error) {
	return s.tasks.GetStatus(ctx, id)
}

// Cancel cancels a task, reporting whether anything changed.
func (s *Service) Cancel(ctx context.Context, id string) (bool, error) {
	return s.tasks.Cancel(ctx, id)
}

// ListTasks returns active and finished tasks.
func (s *Service) ListTasks(ctx context.Context) (active, history []models.Task, err error) {
	return s.tasks.List(ctx)
}

// GetTaskAudit returns the audit trail of a known task.
func (s *Service) GetTaskAudit(ctx context.Context, id string) ([]models.AuditEntry, error) {
	if _, err := s.tasks.GetStatus(ctx, id); err != nil {
		return nil, err
	}
	entries, err := s.store.ListAudit(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	return entries, nil
}

// Health checks the store and reports dispatch activity.
func (s *Service) Health(ctx context.Context) (taskclient.Stats, error) {
	return s.tasks.Stats(), s.store.Ping(ctx)
}
