// Package agent implements the HTTP protocol spoken with the remote
// text-generation agent.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/fentz26/ntbk/internal/models"
)

const (
	SubmitPath = "/agentic-task"
	TaskPath   = "/agentic-task/{id}"
	HealthPath = "/health"

	// APIKeyHeader carries the optional credential on every request.
	APIKeyHeader = "X-API-Key"
)

// Agent is the remote surface the task client depends on.
type Agent interface {
	Submit(ctx context.Context, req *SubmitRequest) (*Reply, error)
	Status(ctx context.Context, taskID string) (*Reply, error)
	Cancel(ctx context.Context, taskID string) error
	Health(ctx context.Context) error
}

// SubmitRequest is the JSON body of a task submission.
type SubmitRequest struct {
	TaskID        string             `json:"task_id"`
	PromptContext string             `json:"prompt_context"`
	AgentConfig   models.AgentConfig `json:"agent_config"`
	ToolEndpoints map[string]string  `json:"external_tool_endpoints"`
}

// Reply is a validated remote response.
type Reply struct {
	TaskID     string
	Status     models.TaskStatus
	AgentReply string
	NextStep   map[string]any
	Logs       string
	Error      string
}

// wireReply mirrors the response body; pointers tell missing from empty.
type wireReply struct {
	TaskID     *string        `json:"task_id"`
	Status     *string        `json:"status"`
	AgentReply *string        `json:"agent_reply"`
	NextStep   map[string]any `json:"next_step"`
	Logs       *string        `json:"logs"`
	Error      *string        `json:"error"`
}

// Options configures a Client.
type Options struct {
	BaseURL string
	APIKey  string
	// HTTPClient overrides the underlying transport, mainly for tests.
	HTTPClient *http.Client
}

// Client talks to the remote agent over HTTP JSON.
type Client struct {
	http *resty.Client
	now  func() time.Time
}

// New creates a remote agent client.
func New(opts Options) (*Client, error) {
	base := strings.TrimRight(opts.BaseURL, "/")
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid agent base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("agent base URL scheme must be http or https, got: %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("agent base URL must have a host, got: %q", base)
	}

	var rc *resty.Client
	if opts.HTTPClient != nil {
		rc = resty.NewWithClient(opts.HTTPClient)
	} else {
		rc = resty.New()
	}
	rc.SetBaseURL(base).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if opts.APIKey != "" {
		rc.SetHeader(APIKeyHeader, opts.APIKey)
	}

	return &Client{http: rc, now: time.Now}, nil
}

// Submit posts a new task. The caller bounds the attempt with ctx.
func (c *Client) Submit(ctx context.Context, req *SubmitRequest) (*Reply, error) {
	body := *req
	if body.ToolEndpoints == nil {
		body.ToolEndpoints = map[string]string{}
	}
	resp, err := c.http.R().SetContext(ctx).SetBody(body).Post(SubmitPath)
	if err != nil {
		return nil, unavailable(err)
	}
	return c.parse(resp, req.TaskID)
}

// Status fetches the current remote state of a task.
func (c *Client) Status(ctx context.Context, taskID string) (*Reply, error) {
	resp, err := c.http.R().SetContext(ctx).SetPathParam("id", taskID).Get(TaskPath)
	if err != nil {
		return nil, unavailable(err)
	}
	return c.parse(resp, taskID)
}

// Cancel asks the remote to stop a task.
func (c *Client) Cancel(ctx context.Context, taskID string) error {
	resp, err := c.http.R().SetContext(ctx).SetPathParam("id", taskID).Delete(TaskPath)
	if err != nil {
		return unavailable(err)
	}
	if resp.IsError() {
		return classifyStatus(resp.StatusCode(), resp.Header(), resp.Body(), c.now())
	}
	return nil
}

// Health returns nil when GET /health answers 200.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).Get(HealthPath)
	if err != nil {
		return unavailable(err)
	}
	if resp.StatusCode() != http.StatusOK {
		return classifyStatus(resp.StatusCode(), resp.Header(), resp.Body(), c.now())
	}
	return nil
}

func (c *Client) parse(resp *resty.Response, taskID string) (*Reply, error) {
	code := resp.StatusCode()
	if code < 200 || code > 299 {
		return nil, classifyStatus(code, resp.Header(), resp.Body(), c.now())
	}
	return ParseReply(resp.Body(), taskID)
}

// ParseReply strictly decodes a response body. Any shape problem is a
// rejection, never a panic further down the pipeline.
func ParseReply(body []byte, taskID string) (*Reply, error) {
	var w wireReply
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, rejected("malformed response body: %v", err)
	}
	if w.Status == nil || *w.Status == "" {
		return nil, rejected("response missing status")
	}

	status := models.TaskStatus(strings.ToLower(*w.Status))
	if !status.Valid() {
		return nil, rejected("unknown status %q", *w.Status)
	}
	if w.TaskID != nil && *w.TaskID != "" && taskID != "" && *w.TaskID != taskID {
		return nil, rejected("response for task %q, expected %q", *w.TaskID, taskID)
	}
	if status == models.TaskStatusCompleted && w.AgentReply == nil {
		return nil, rejected("completed response missing agent_reply")
	}

	r := &Reply{
		TaskID:     taskID,
		Status:     status,
		AgentReply: deref(w.AgentReply),
		NextStep:   w.NextStep,
		Logs:       deref(w.Logs),
		Error:      deref(w.Error),
	}
	return r, nil
}

// RemoteFailure converts a terminal non-success reply into a rejection.
func RemoteFailure(r *Reply) error {
	msg := r.Error
	if msg == "" {
		msg = "no error detail"
	}
	return &RemoteError{Kind: KindRejected, Err: fmt.Errorf("remote task %s: %w", r.Status, errors.New(msg))}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
