package models

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAgentConfig(t *testing.T) {
	tests := []struct {
		name        string
		model       string
		temperature float64
		maxTokens   int
		timeout     int
		wantErr     bool
	}{
		{name: "valid", model: "m1", temperature: 0.7, maxTokens: 500, timeout: 5},
		{name: "bounds inclusive", model: "m1", temperature: 2, maxTokens: 1},
		{name: "zero temperature", model: "m1", temperature: 0, maxTokens: 1},
		{name: "empty model", model: "", temperature: 0.7, maxTokens: 500, wantErr: true},
		{name: "blank model", model: "   ", temperature: 0.7, maxTokens: 500, wantErr: true},
		{name: "temperature too high", model: "m1", temperature: 2.01, maxTokens: 500, wantErr: true},
		{name: "negative temperature", model: "m1", temperature: -0.1, maxTokens: 500, wantErr: true},
		{name: "nan temperature", model: "m1", temperature: math.NaN(), maxTokens: 500, wantErr: true},
		{name: "zero max tokens", model: "m1", temperature: 0.7, maxTokens: 0, wantErr: true},
		{name: "negative max tokens", model: "m1", temperature: 0.7, maxTokens: -3, wantErr: true},
		{name: "negative timeout", model: "m1", temperature: 0.7, maxTokens: 10, timeout: -1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := NewAgentConfig(tt.model, tt.temperature, tt.maxTokens, tt.timeout)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.model, cfg.Model)
		})
	}
}

func TestAgentConfig_Timeout(t *testing.T) {
	cfg := AgentConfig{Model: "m1", MaxTokens: 1}
	assert.Equal(t, 300*time.Second, cfg.Timeout())

	cfg.TimeoutSeconds = 5
	assert.Equal(t, 5*time.Second, cfg.Timeout())
}

func TestAgentConfig_CloneDoesNotAlias(t *testing.T) {
	stops := []string{"###"}
	cfg, err := NewAgentConfig("m1", 0.5, 10, 0, stops...)
	require.NoError(t, err)

	stops[0] = "changed"
	assert.Equal(t, "###", cfg.StopSequences[0])

	clone := cfg.Clone()
	clone.StopSequences[0] = "other"
	assert.Equal(t, "###", cfg.StopSequences[0])
}

func TestTaskStatus(t *testing.T) {
	assert.False(t, TaskStatusPending.IsTerminal())
	assert.False(t, TaskStatusRunning.IsTerminal())
	assert.True(t, TaskStatusCompleted.IsTerminal())
	assert.True(t, TaskStatusFailed.IsTerminal())
	assert.True(t, TaskStatusCancelled.IsTerminal())
	assert.False(t, TaskStatus("unknown").Valid())
}

func TestTask_Clone(t *testing.T) {
	task := &Task{
		ID:            "t1",
		ToolEndpoints: map[string]string{"images": "http://x"},
		Result:        &Result{AgentReply: "hi", NextStep: map[string]any{"a": 1}},
	}
	c := task.Clone()
	c.ToolEndpoints["images"] = "http://y"
	c.Result.AgentReply = "changed"
	c.Result.NextStep["a"] = 2

	assert.Equal(t, "http://x", task.ToolEndpoints["images"])
	assert.Equal(t, "hi", task.Result.AgentReply)
	assert.Equal(t, 1, task.Result.NextStep["a"])
}
