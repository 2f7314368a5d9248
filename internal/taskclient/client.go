// Package taskclient submits AI tasks, tracks their lifecycle and degrades
// to fallback content when the remote agent cannot deliver.
package taskclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/fentz26/ntbk/internal/agent"
	"github.com/fentz26/ntbk/internal/audit"
	"github.com/fentz26/ntbk/internal/degrade"
	"github.com/fentz26/ntbk/internal/fallback"
	"github.com/fentz26/ntbk/internal/logger"
	"github.com/fentz26/ntbk/internal/metrics"
	"github.com/fentz26/ntbk/internal/models"
	"github.com/fentz26/ntbk/internal/store"
)

const (
	DefaultMaxConcurrent = 4
	DefaultPollInterval  = 2 * time.Second

	// remoteCancelTimeout bounds the best-effort DELETE sent on cancel.
	remoteCancelTimeout = 10 * time.Second
)

// ToolRouter picks external tool endpoints for a prompt.
type ToolRouter interface {
	Endpoints(ctx context.Context, text string) map[string]string
}

// SubmitRequest describes a task to create.
type SubmitRequest struct {
	// TaskID is optional; a UUID is generated when empty.
	TaskID string `json:"task_id,omitempty"`
	// Intent is inferred from the prompt when empty.
	Intent        models.Intent      `json:"intent,omitempty"`
	Topic         string             `json:"topic,omitempty"`
	PromptContext string             `json:"prompt_context"`
	AgentConfig   models.AgentConfig `json:"agent_config"`
	// ToolEndpoints is routed from the prompt when nil and a router is set.
	ToolEndpoints map[string]string `json:"external_tool_endpoints,omitempty"`
}

// Options configures a Client. A nil Store is in-memory; a nil Agent
// resolves every task from fallback templates.
type Options struct {
	Store   store.Store
	Agent   agent.Agent
	Policy  *degrade.Policy
	Logger  logger.Logger
	Metrics *metrics.Recorder
	Tools   ToolRouter

	// DefaultAgentConfig fills requests that carry a zero AgentConfig.
	DefaultAgentConfig *models.AgentConfig

	MaxConcurrent int
	PollInterval  time.Duration
}

// Stats is a point-in-time view of dispatch activity.
type Stats struct {
	Dispatching   int  `json:"dispatching"`
	Queued        int  `json:"queued"`
	MaxConcurrent int  `json:"max_concurrent"`
	RemoteDown    bool `json:"remote_down"`
	Offline       bool `json:"offline"`
}

// Client owns the task table and the background dispatches that drive it.
type Client struct {
	store    store.Store
	agent    agent.Agent
	policy   *degrade.Policy
	log      logger.Logger
	audit    *audit.Writer
	metrics  *metrics.Recorder
	tools    ToolRouter
	defaults *models.AgentConfig

	maxConcurrent int
	pollInterval  time.Duration
	sem           *semaphore.Weighted
	locks         keyedMutex

	// dispatching counts tasks holding a slot; queued counts those waiting.
	dispatching atomic.Int32
	queued      atomic.Int32

	mu     sync.Mutex
	waits  map[string]context.CancelFunc
	closed bool

	// ctx lives as long as the client and carries in-flight remote calls.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	now func() time.Time
}

// New creates a client. Close must be called to stop background dispatches.
func New(opts Options) *Client {
	if opts.Store == nil {
		opts.Store = store.NewMemory()
	}
	if opts.Policy == nil {
		opts.Policy = degrade.DefaultPolicy()
	}
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		store:         opts.Store,
		agent:         opts.Agent,
		policy:        opts.Policy,
		log:           opts.Logger.With("component", "taskclient"),
		audit:         audit.NewWriter(opts.Store),
		metrics:       opts.Metrics,
		tools:         opts.Tools,
		defaults:      opts.DefaultAgentConfig,
		maxConcurrent: opts.MaxConcurrent,
		pollInterval:  opts.PollInterval,
		sem:           semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		waits:         make(map[string]context.CancelFunc),
		ctx:           ctx,
		cancel:        cancel,
		now:           time.Now,
	}
}

// Submit validates req, records a pending task and starts dispatching it in
// the background. It returns as soon as the task exists.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	prompt := req.PromptContext
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("%w: prompt_context is empty", ErrInvalidRequest)
	}

	cfg := req.AgentConfig
	if c.defaults != nil && isZeroConfig(cfg) {
		cfg = *c.defaults
	}
	if err := cfg.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	intent := req.Intent
	if intent == "" {
		intent = fallback.InferIntent(prompt)
	}

	endpoints := req.ToolEndpoints
	if endpoints == nil && c.tools != nil {
		endpoints = c.tools.Endpoints(ctx, req.Topic+"\n"+prompt)
	}

	id := req.TaskID
	if id == "" {
		id = uuid.NewString()
	}

	now := c.now().UTC()
	task := &models.Task{
		ID:            id,
		Intent:        intent,
		Topic:         req.Topic,
		PromptContext: prompt,
		AgentConfig:   cfg.Clone(),
		ToolEndpoints: cloneMap(endpoints),
		Status:        models.TaskStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	// Register the wait context before the task is visible so a racing
	// Cancel always finds something to interrupt.
	waitCtx, err := c.register(id)
	if err != nil {
		return "", err
	}

	if err := c.store.CreateTask(ctx, task); err != nil {
		c.release(id)
		if errors.Is(err, store.ErrDuplicate) {
			return "", fmt.Errorf("%w: task %q already exists", ErrInvalidRequest, id)
		}
		return "", fmt.Errorf("create task: %w", err)
	}

	c.record(audit.ActionSubmit, req, string(models.TaskStatusPending), id, string(intent))
	c.metrics.Submitted()
	c.log.Info("task submitted", "task_id", id, "intent", intent)

	if !c.spawn(func() { c.dispatch(waitCtx, id) }) {
		c.release(id)
	}
	return id, nil
}

// GetStatus returns a snapshot of the task. A failed task is not an error.
func (c *Client) GetStatus(ctx context.Context, id string) (*models.Task, error) {
	task, err := c.store.GetTask(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// Cancel moves a pending or running task to cancelled and reports true.
// Terminal tasks are left alone and report false.
func (c *Client) Cancel(ctx context.Context, id string) (bool, error) {
	var wasRunning bool
	task, changed, err := c.update(ctx, id, func(t *models.Task) bool {
		if t.Status.IsTerminal() {
			return false
		}
		wasRunning = t.Status == models.TaskStatusRunning
		t.Status = models.TaskStatusCancelled
		return true
	})
	if errors.Is(err, store.ErrNotFound) {
		return false, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return false, fmt.Errorf("cancel task: %w", err)
	}
	if !changed {
		return false, nil
	}

	c.interrupt(id)
	c.record(audit.ActionCancel, id, string(models.TaskStatusCancelled), id, "")
	c.metrics.Cancelled()
	c.metrics.Outcome(string(task.Status), string(task.Source), task.Attempts, task.UpdatedAt.Sub(task.CreatedAt))
	c.log.Info("task cancelled", "task_id", id, "was_running", wasRunning)

	if wasRunning && c.agent != nil {
		c.spawn(func() { c.cancelRemote(id) })
	}
	return true, nil
}

// List returns non-terminal tasks and terminal tasks, each oldest first.
func (c *Client) List(ctx context.Context) (active, history []models.Task, err error) {
	tasks, err := c.store.ListTasks(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list tasks: %w", err)
	}
	active = []models.Task{}
	history = []models.Task{}
	for _, t := range tasks {
		if t.Status.IsTerminal() {
			history = append(history, t)
		} else {
			active = append(active, t)
		}
	}
	return active, history, nil
}

// Recover re-dispatches tasks left pending or running by a previous
// process. Running tasks restart from pending. Tasks this client is
// already dispatching are skipped.
func (c *Client) Recover(ctx context.Context) (int, error) {
	tasks, err := c.store.ListTasks(ctx)
	if err != nil {
		return 0, fmt.Errorf("list tasks: %w", err)
	}

	var n int
	for _, t := range tasks {
		if t.Status.IsTerminal() {
			continue
		}
		id := t.ID
		if c.tracked(id) {
			continue
		}
		_, _, err := c.update(ctx, id, func(t *models.Task) bool {
			if t.Status != models.TaskStatusRunning {
				return false
			}
			t.Status = models.TaskStatusPending
			return true
		})
		if err != nil {
			return n, fmt.Errorf("reset task %s: %w", id, err)
		}
		waitCtx, err := c.register(id)
		if errors.Is(err, ErrInvalidRequest) {
			// Submitted concurrently.
			continue
		}
		if err != nil {
			return n, err
		}
		if !c.spawn(func() { c.dispatch(waitCtx, id) }) {
			c.release(id)
			return n, ErrClosed
		}
		n++
	}
	if n > 0 {
		c.log.Info("recovered unfinished tasks", "count", n)
	}
	return n, nil
}

// Stats reports current dispatch activity.
func (c *Client) Stats() Stats {
	s := Stats{
		Dispatching:   int(c.dispatching.Load()),
		Queued:        int(c.queued.Load()),
		MaxConcurrent: c.maxConcurrent,
		Offline:       c.agent == nil,
	}
	if c.policy.Health != nil {
		s.RemoteDown = c.policy.Health.Down()
	}
	return s
}

// Close stops all background work and waits for it to exit. Tasks still
// pending or running stay that way in the store for Recover.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
	return nil
}

// register creates the per-task wait context Cancel interrupts.
func (c *Client) register(id string) (context.Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	if _, ok := c.waits[id]; ok {
		return nil, fmt.Errorf("%w: task %q already exists", ErrInvalidRequest, id)
	}
	ctx, cancel := context.WithCancel(c.ctx)
	c.waits[id] = cancel
	return ctx, nil
}

func (c *Client) tracked(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.waits[id]
	return ok
}

func (c *Client) release(id string) {
	c.mu.Lock()
	cancel, ok := c.waits[id]
	delete(c.waits, id)
	c.mu.Unlock()
	if ok {
		cancel()
	}
}

// interrupt wakes any wait the task is blocked in.
func (c *Client) interrupt(id string) {
	c.mu.Lock()
	cancel, ok := c.waits[id]
	c.mu.Unlock()
	if ok {
		cancel()
	}
}

// spawn runs f on a tracked goroutine unless the client is closed.
func (c *Client) spawn(f func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		f()
	}()
	return true
}

// update applies fn to the stored task under its lock and persists the
// result when fn reports a change.
func (c *Client) update(ctx context.Context, id string, fn func(*models.Task) bool) (*models.Task, bool, error) {
	unlock := c.locks.Lock(id)
	defer unlock()

	task, err := c.store.GetTask(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if !fn(task) {
		return task, false, nil
	}
	task.UpdatedAt = c.now().UTC()
	if err := c.store.UpdateTask(ctx, task); err != nil {
		return nil, false, err
	}
	return task, true, nil
}

func (c *Client) cancelRemote(id string) {
	ctx, cancel := context.WithTimeout(c.ctx, remoteCancelTimeout)
	defer cancel()
	if err := c.agent.Cancel(ctx, id); err != nil {
		c.log.Warn("remote cancel failed", "task_id", id, "error", err)
	}
}

// record writes an audit entry; audit failures never fail the operation.
func (c *Client) record(action string, inputs any, outcome, taskID, details string) {
	if _, err := c.audit.Record(context.Background(), action, inputs, outcome, taskID, details); err != nil {
		c.log.Warn("audit write failed", "action", action, "task_id", taskID, "error", err)
	}
}

func isZeroConfig(cfg models.AgentConfig) bool {
	return cfg.Model == "" && cfg.Temperature == 0 && cfg.MaxTokens == 0 &&
		cfg.TimeoutSeconds == 0 && len(cfg.StopSequences) == 0
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
