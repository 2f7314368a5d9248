package controlplane

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fentz26/ntbk/internal/models"
	"github.com/fentz26/ntbk/internal/taskclient"
)

func TestClient_RoundTrip(t *testing.T) {
	s, _ := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	c := NewClient(ts.URL + "/")
	ctx := context.Background()

	id, err := c.Submit(ctx, taskclient.SubmitRequest{
		Intent:        models.IntentRewrite,
		PromptContext: "The the system is slow.",
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		task, err := c.GetTask(ctx, id)
		return err == nil && task.Status == models.TaskStatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	task, err := c.GetTask(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.SourceFallback, task.Source)

	active, history, err := c.ListTasks(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
	assert.Len(t, history, 1)

	cancelled, err := c.Cancel(ctx, id)
	require.NoError(t, err)
	assert.False(t, cancelled)

	entries, err := c.Audit(ctx, id)
	require.NoError(t, err)
	assert.NotEmpty(t, entries)

	health, err := c.Health(ctx)
	require.NoError(t, err)
	assert.True(t, health.OK)
}

func TestClient_Errors(t *testing.T) {
	s, st := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	c := NewClient(ts.URL)
	ctx := context.Background()

	_, err := c.GetTask(ctx, "missing")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)

	_, err = c.Submit(ctx, taskclient.SubmitRequest{PromptContext: " "})
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)

	st.down = true
	health, err := c.Health(ctx)
	require.Error(t, err)
	require.NotNil(t, health)
	assert.False(t, health.OK)
}

func TestClient_Unreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	_, err := NewClient(url).Health(context.Background())
	assert.ErrorContains(t, err, "API request failed")
}
