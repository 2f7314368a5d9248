package tui

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fentz26/ntbk/internal/controlplane"
	"github.com/fentz26/ntbk/internal/models"
	"github.com/fentz26/ntbk/internal/taskclient"
)

type fakeBackend struct {
	mu        sync.Mutex
	tasks     map[string]*models.Task
	active    []models.Task
	history   []models.Task
	health    *controlplane.HealthResponse
	cancelled []string
}

func (f *fakeBackend) GetTask(_ context.Context, id string) (*models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok {
		return nil, &controlplane.APIError{StatusCode: http.StatusNotFound, Body: "task not found"}
	}
	return t.Clone(), nil
}

func (f *fakeBackend) ListTasks(context.Context) ([]models.Task, []models.Task, error) {
	return f.active, f.history, nil
}

func (f *fakeBackend) Cancel(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, id)
	return true, nil
}

func (f *fakeBackend) Health(context.Context) (*controlplane.HealthResponse, error) {
	return f.health, nil
}

func key(s string) tea.KeyMsg {
	switch s {
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func fallbackTask(id string) *models.Task {
	return &models.Task{
		ID:     id,
		Intent: models.IntentDraft,
		Topic:  "Caching",
		Status: models.TaskStatusCompleted,
		Source: models.SourceFallback,
		Result: &models.Result{
			AgentReply: "# Caching\n\n## Overview",
			Error:      "remote unavailable (status 503)",
		},
		Attempts: 3,
	}
}

func isQuit(t *testing.T, cmd tea.Cmd) bool {
	t.Helper()
	if cmd == nil {
		return false
	}
	_, ok := cmd().(tea.QuitMsg)
	return ok
}

func TestWatch_TemplateReplyShowsDegradedNotice(t *testing.T) {
	b := &fakeBackend{tasks: map[string]*models.Task{"t1": fallbackTask("t1")}}
	w := NewWatch(b, "t1", time.Millisecond)

	msg := w.fetch()()
	require.IsType(t, taskMsg{}, msg)

	_, cmd := w.Update(msg)
	assert.True(t, isQuit(t, cmd), "terminal task ends the watch")

	view := w.View()
	assert.Contains(t, view, DegradedNotice)
	assert.Contains(t, view, "# Caching")
	assert.Contains(t, view, "attempts: 3")
	assert.Equal(t, models.TaskStatusCompleted, w.Task().Status)
}

func TestWatch_RemoteReplyHasNoNotice(t *testing.T) {
	task := fallbackTask("t2")
	task.Source = models.SourceRemote
	task.Result.Error = ""
	b := &fakeBackend{tasks: map[string]*models.Task{"t2": task}}
	w := NewWatch(b, "t2", time.Millisecond)

	w.Update(w.fetch()())
	assert.NotContains(t, w.View(), DegradedNotice)
}

func TestWatch_RunningKeepsPollingAndCancels(t *testing.T) {
	b := &fakeBackend{tasks: map[string]*models.Task{
		"t3": {ID: "t3", Intent: models.IntentRewrite, Status: models.TaskStatusRunning},
	}}
	w := NewWatch(b, "t3", time.Millisecond)

	_, cmd := w.Update(w.fetch()())
	require.NotNil(t, cmd)
	assert.IsType(t, tickMsg{}, cmd())
	assert.Contains(t, w.View(), "running")
	assert.Contains(t, w.View(), "c: cancel")

	_, cmd = w.Update(key("c"))
	require.NotNil(t, cmd)
	res := cmd()
	assert.Equal(t, cancelResultMsg{id: "t3", cancelled: true}, res)
	assert.Equal(t, []string{"t3"}, b.cancelled)

	w.Update(res)
	assert.Contains(t, w.View(), "cancel requested")
}

func TestWatch_UnknownTaskQuits(t *testing.T) {
	w := NewWatch(&fakeBackend{}, "nope", time.Millisecond)

	_, cmd := w.Update(w.fetch()())
	assert.True(t, isQuit(t, cmd))
	assert.Contains(t, w.View(), "404")
}

func TestApp_ListSelectionAndDetail(t *testing.T) {
	running := models.Task{ID: "aaaaaaaaaaaa", Intent: models.IntentQuestions, Topic: "Gaps", Status: models.TaskStatusRunning}
	done := *fallbackTask("bbbbbbbbbbbb")
	b := &fakeBackend{active: []models.Task{running}, history: []models.Task{done}}
	a := New(b, time.Millisecond)

	a.Update(a.fetchTasks()())
	view := a.View()
	assert.Contains(t, view, "aaaaaaaa")
	assert.Contains(t, view, "(template)")
	assert.Contains(t, view, "no reply yet")
	assert.NotContains(t, view, DegradedNotice)

	a.Update(key("down"))
	view = a.View()
	assert.Contains(t, view, DegradedNotice)
	assert.Contains(t, view, "## Overview")

	// Selection stays in range.
	a.Update(key("down"))
	assert.Equal(t, 1, a.selected)
	a.Update(key("up"))
	a.Update(key("up"))
	assert.Equal(t, 0, a.selected)

	_, cmd := a.Update(key("c"))
	require.NotNil(t, cmd)
	res := cmd()
	assert.Equal(t, cancelResultMsg{id: "aaaaaaaaaaaa", cancelled: true}, res)
	a.Update(res)
	assert.Contains(t, a.View(), "Cancelled aaaaaaaa")
}

func TestApp_EmptyAndHealthHeader(t *testing.T) {
	b := &fakeBackend{health: &controlplane.HealthResponse{
		OK:     true,
		Remote: "degraded",
		Stats:  taskclient.Stats{Dispatching: 1, MaxConcurrent: 4, Queued: 2},
	}}
	a := New(b, time.Millisecond)

	a.Update(a.fetchTasks()())
	a.Update(a.checkHealth()())

	view := a.View()
	assert.Contains(t, view, "No tasks yet")
	assert.Contains(t, view, "AGENT degraded")
	assert.Contains(t, view, "[1/4 dispatching, 2 queued]")
	assert.Contains(t, view, "● DAEMON")
}

func TestApp_ShrinksSelectionWhenListShrinks(t *testing.T) {
	a := New(&fakeBackend{}, time.Millisecond)
	a.Update(tasksLoadedMsg{history: []models.Task{*fallbackTask("a"), *fallbackTask("b")}})
	a.Update(key("down"))
	require.Equal(t, 1, a.selected)

	a.Update(tasksLoadedMsg{history: []models.Task{*fallbackTask("a")}})
	assert.Equal(t, 0, a.selected)
}

func TestApp_QuitKey(t *testing.T) {
	a := New(&fakeBackend{}, time.Millisecond)
	_, cmd := a.Update(key("q"))
	assert.True(t, isQuit(t, cmd))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "hello", truncate("hello", 10))
	assert.Equal(t, "hel…", truncate("hello", 4))
	assert.Equal(t, "h", truncate("hello", 1))
	assert.Equal(t, "hello", truncate("hello", 0))
}
