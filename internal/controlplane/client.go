package controlplane

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/fentz26/ntbk/internal/models"
	"github.com/fentz26/ntbk/internal/taskclient"
)

// DefaultClientTimeout is the default timeout for API requests.
const DefaultClientTimeout = 10 * time.Second

// APIError is a non-2xx answer from the daemon.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// Client calls a running daemon.
type Client struct {
	http *resty.Client
}

// NewClient creates a daemon API client rooted at baseURL.
func NewClient(baseURL string) *Client {
	rc := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(DefaultClientTimeout).
		SetHeader("Accept", "application/json")
	return &Client{http: rc}
}

// Submit creates a task and returns its ID.
func (c *Client) Submit(ctx context.Context, req taskclient.SubmitRequest) (string, error) {
	var out SubmitResponse
	resp, err := c.http.R().SetContext(ctx).SetBody(req).SetResult(&out).Post("/tasks")
	if err := check(resp, err); err != nil {
		return "", err
	}
	return out.TaskID, nil
}

// GetTask fetches one task.
func (c *Client) GetTask(ctx context.Context, id string) (*models.Task, error) {
	var out models.Task
	resp, err := c.http.R().SetContext(ctx).SetPathParam("id", id).SetResult(&out).Get("/tasks/{id}")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListTasks returns active and finished tasks.
func (c *Client) ListTasks(ctx context.Context) (active, history []models.Task, err error) {
	var out ListResponse
	resp, err := c.http.R().SetContext(ctx).SetResult(&out).Get("/tasks")
	if err := check(resp, err); err != nil {
		return nil, nil, err
	}
	return out.Active, out.History, nil
}

// Cancel cancels a task, reporting whether anything changed.
func (c *Client) Cancel(ctx context.Context, id string) (bool, error) {
	var out CancelResponse
	resp, err := c.http.R().SetContext(ctx).SetPathParam("id", id).SetResult(&out).Post("/tasks/{id}/cancel")
	if err := check(resp, err); err != nil {
		return false, err
	}
	return out.Cancelled, nil
}

// Audit returns the audit trail of a task.
func (c *Client) Audit(ctx context.Context, id string) ([]models.AuditEntry, error) {
	var out []models.AuditEntry
	resp, err := c.http.R().SetContext(ctx).SetPathParam("id", id).SetResult(&out).Get("/tasks/{id}/audit")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return out, nil
}

// Health returns the parsed health payload even on a 503, alongside the error.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	resp, err := c.http.R().SetContext(ctx).SetResult(&out).SetError(&out).Get("/health")
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	if resp.IsError() {
		return &out, &APIError{StatusCode: resp.StatusCode(), Body: out.DB}
	}
	return &out, nil
}

func check(resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("API request failed: %w", err)
	}
	if resp.IsError() {
		return &APIError{StatusCode: resp.StatusCode(), Body: string(resp.Body())}
	}
	return nil
}
