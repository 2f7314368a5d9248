// Package models defines the core domain types for ntbk.
package models

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// IsTerminal reports whether no further transitions are allowed.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed || s == TaskStatusCancelled
}

// Valid reports whether s is a known status.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusRunning, TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	}
	return false
}

// Source tags where a terminal result came from.
type Source string

const (
	SourceUnset    Source = ""
	SourceRemote   Source = "remote"
	SourceFallback Source = "fallback"
)

// Intent is the kind of authoring help a task asks for.
type Intent string

const (
	IntentQuestions Intent = "questions"
	IntentDraft     Intent = "draft"
	IntentRewrite   Intent = "rewrite"
)

// DefaultTimeoutSeconds is the per-attempt deadline used when a config leaves it unset.
const DefaultTimeoutSeconds = 300

// AgentConfig carries the model options sent to the remote agent.
// Treat it as a value: use Clone before sharing it between tasks.
type AgentConfig struct {
	Model          string   `json:"model" validate:"required"`
	Temperature    float64  `json:"temperature" validate:"gte=0,lte=2"`
	MaxTokens      int      `json:"max_tokens" validate:"gt=0"`
	TimeoutSeconds int      `json:"timeout" validate:"gte=0"`
	StopSequences  []string `json:"stop_sequences,omitempty"`
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func configValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

// NewAgentConfig returns a validated copy of the given options.
func NewAgentConfig(model string, temperature float64, maxTokens, timeoutSeconds int, stop ...string) (AgentConfig, error) {
	cfg := AgentConfig{
		Model:          model,
		Temperature:    temperature,
		MaxTokens:      maxTokens,
		TimeoutSeconds: timeoutSeconds,
		StopSequences:  append([]string(nil), stop...),
	}
	if err := cfg.Validate(); err != nil {
		return AgentConfig{}, err
	}
	return cfg, nil
}

// Validate checks the config invariants.
func (c AgentConfig) Validate() error {
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("agent config: model is required")
	}
	// NaN slips through numeric tags, reject it explicitly.
	if c.Temperature != c.Temperature {
		return fmt.Errorf("agent config: temperature is not a number")
	}
	if err := configValidator().Struct(c); err != nil {
		return fmt.Errorf("agent config: %w", err)
	}
	return nil
}

// Timeout returns the per-attempt deadline.
func (c AgentConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return DefaultTimeoutSeconds * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Clone returns a copy that shares no memory with c.
func (c AgentConfig) Clone() AgentConfig {
	out := c
	if c.StopSequences != nil {
		out.StopSequences = append([]string(nil), c.StopSequences...)
	}
	return out
}

// Result holds the payload of a terminal task.
type Result struct {
	AgentReply string         `json:"agent_reply"`
	NextStep   map[string]any `json:"next_step,omitempty"`
	Logs       string         `json:"logs,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// Task represents one request to the remote agent.
type Task struct {
	ID            string            `json:"task_id"`
	Intent        Intent            `json:"intent"`
	Topic         string            `json:"topic,omitempty"`
	PromptContext string            `json:"prompt_context"`
	AgentConfig   AgentConfig       `json:"agent_config"`
	ToolEndpoints map[string]string `json:"external_tool_endpoints,omitempty"`
	Status        TaskStatus        `json:"status"`
	Source        Source            `json:"source,omitempty"`
	Result        *Result           `json:"result,omitempty"`
	Attempts      int               `json:"attempts"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	out := *t
	out.AgentConfig = t.AgentConfig.Clone()
	if t.ToolEndpoints != nil {
		out.ToolEndpoints = make(map[string]string, len(t.ToolEndpoints))
		for k, v := range t.ToolEndpoints {
			out.ToolEndpoints[k] = v
		}
	}
	if t.Result != nil {
		r := *t.Result
		if t.Result.NextStep != nil {
			r.NextStep = make(map[string]any, len(t.Result.NextStep))
			for k, v := range t.Result.NextStep {
				r.NextStep[k] = v
			}
		}
		out.Result = &r
	}
	return &out
}

// AuditEntry records a state-mutating decision for later review.
type AuditEntry struct {
	ID         string    `json:"id"`
	Action     string    `json:"action"`
	InputsHash string    `json:"inputs_hash"`
	Outcome    string    `json:"outcome"`
	TaskID     string    `json:"task_id,omitempty"`
	Details    string    `json:"details,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
