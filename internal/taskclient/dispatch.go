package taskclient

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fentz26/ntbk/internal/agent"
	"github.com/fentz26/ntbk/internal/audit"
	"github.com/fentz26/ntbk/internal/degrade"
	"github.com/fentz26/ntbk/internal/models"
)

// exchange accumulates what a dispatch learned from the remote.
type exchange struct {
	reply    *agent.Reply
	err      error
	attempts int
	log      strings.Builder
}

func (x *exchange) add(out *degrade.Outcome) {
	x.attempts += len(out.Attempts)
	x.log.WriteString(out.Log())
	x.err = out.Err
}

// dispatch drives one task from pending to a terminal state. waitCtx is
// cancelled by Cancel and by Close; it bounds every wait but never an
// in-flight request.
func (c *Client) dispatch(waitCtx context.Context, id string) {
	defer c.release(id)

	c.queued.Add(1)
	err := c.sem.Acquire(waitCtx, 1)
	c.queued.Add(-1)
	if err != nil {
		// Cancelled while queued, or closing.
		return
	}
	defer c.sem.Release(1)

	c.dispatching.Add(1)
	c.metrics.DispatchStarted()
	defer func() {
		c.dispatching.Add(-1)
		c.metrics.DispatchDone()
	}()

	task, started, err := c.update(context.Background(), id, func(t *models.Task) bool {
		if t.Status != models.TaskStatusPending {
			return false
		}
		t.Status = models.TaskStatusRunning
		return true
	})
	if err != nil {
		c.log.Error("start dispatch", "task_id", id, "error", err)
		return
	}
	if !started {
		return
	}
	c.record(audit.ActionDispatch, id, string(models.TaskStatusRunning), id, "")

	if c.agent == nil {
		c.resolveFallback(task, errOffline, "", 0)
		return
	}

	x := c.exchange(waitCtx, task)
	if waitCtx.Err() != nil {
		// Cancelled mid-flight, or shutting down: Cancel already owns the
		// terminal state, Recover owns the rest.
		c.log.Debug("dispatch interrupted", "task_id", id, "attempts", x.attempts)
		return
	}

	if x.err != nil {
		c.resolveFallback(task, x.err, x.log.String(), x.attempts)
		return
	}

	switch x.reply.Status {
	case models.TaskStatusCompleted:
		c.finish(id, models.TaskStatusCompleted, models.SourceRemote, &models.Result{
			AgentReply: x.reply.AgentReply,
			NextStep:   x.reply.NextStep,
			Logs:       x.reply.Logs,
			Error:      x.reply.Error,
		}, x.attempts, audit.ActionComplete)
	default:
		// Remote reported failed or cancelled.
		c.resolveFallback(task, agent.RemoteFailure(x.reply), x.log.String(), x.attempts)
	}
}

// exchange submits the task and, when the remote answers pending or
// running, polls it until it reaches a terminal status.
func (c *Client) exchange(waitCtx context.Context, task *models.Task) *exchange {
	x := &exchange{}
	timeout := task.AgentConfig.Timeout()

	req := &agent.SubmitRequest{
		TaskID:        task.ID,
		PromptContext: task.PromptContext,
		AgentConfig:   task.AgentConfig,
		ToolEndpoints: task.ToolEndpoints,
	}
	reply, out := degrade.Execute(waitCtx, c.policy, func() (*agent.Reply, error) {
		ctx, cancel := context.WithTimeout(c.ctx, timeout)
		defer cancel()
		return c.agent.Submit(ctx, req)
	})
	x.add(out)
	if x.err != nil {
		return x
	}

	deadline := c.now().Add(timeout)
	for !reply.Status.IsTerminal() {
		select {
		case <-waitCtx.Done():
			x.err = waitCtx.Err()
			return x
		case <-time.After(c.pollInterval):
		}
		if c.now().After(deadline) {
			x.err = &agent.RemoteError{
				Kind: agent.KindUnavailable,
				Err:  fmt.Errorf("task still %s after %s", reply.Status, timeout),
			}
			fmt.Fprintf(&x.log, "poll: %v\n", x.err)
			return x
		}

		reply, out = degrade.Execute(waitCtx, c.policy, func() (*agent.Reply, error) {
			ctx, cancel := context.WithTimeout(c.ctx, timeout)
			defer cancel()
			return c.agent.Status(ctx, task.ID)
		})
		x.add(out)
		if x.err != nil {
			return x
		}
	}
	x.reply = reply
	return x
}

// resolveFallback resolves a task the remote could not deliver.
func (c *Client) resolveFallback(task *models.Task, remoteErr error, logs string, attempts int) {
	res := degrade.Resolve(task, remoteErr, logs)
	action := audit.ActionFallback
	if res.Status == models.TaskStatusFailed {
		action = audit.ActionFail
	}
	if c.finish(task.ID, res.Status, res.Source, res.Result, attempts, action) {
		c.metrics.Fallback(string(task.Intent))
		c.log.Warn("remote agent unavailable, served fallback",
			"task_id", task.ID, "intent", task.Intent, "status", res.Status, "error", remoteErr)
	}
}

// finish moves a running task to its terminal state. A task cancelled in
// the meantime keeps its state and the result is discarded.
func (c *Client) finish(id string, status models.TaskStatus, source models.Source, result *models.Result, attempts int, action string) bool {
	task, changed, err := c.update(context.Background(), id, func(t *models.Task) bool {
		if t.Status != models.TaskStatusRunning {
			return false
		}
		t.Status = status
		t.Source = source
		t.Result = result
		t.Attempts = attempts
		return true
	})
	if err != nil {
		c.log.Error("finish task", "task_id", id, "error", err)
		return false
	}
	if !changed {
		c.log.Debug("discarding late result", "task_id", id, "status", task.Status)
		return false
	}

	details := ""
	if result != nil {
		details = result.Error
	}
	c.record(action, id, string(status), id, details)
	c.metrics.Outcome(string(status), string(source), attempts, task.UpdatedAt.Sub(task.CreatedAt))
	c.log.Info("task finished", "task_id", id, "status", status, "source", source, "attempts", attempts)
	return true
}
