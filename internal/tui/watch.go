package tui

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/fentz26/ntbk/internal/controlplane"
	"github.com/fentz26/ntbk/internal/models"
)

// Watch follows one task until it reaches a terminal state.
type Watch struct {
	backend  Backend
	id       string
	interval time.Duration
	spinner  spinner.Model
	task     *models.Task
	err      error
	message  string
	done     bool
	width    int
}

// NewWatch creates a watch view that polls every interval.
func NewWatch(backend Backend, id string, interval time.Duration) *Watch {
	if interval <= 0 {
		interval = time.Second
	}
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = statusRunning
	return &Watch{
		backend:  backend,
		id:       id,
		interval: interval,
		spinner:  sp,
		width:    80,
	}
}

// Run blocks until the task finishes or the user quits.
func (w *Watch) Run() (*models.Task, error) {
	if _, err := tea.NewProgram(w).Run(); err != nil {
		return nil, err
	}
	return w.task, w.err
}

// Task returns the last fetched state.
func (w *Watch) Task() *models.Task { return w.task }

// Init implements tea.Model
func (w *Watch) Init() tea.Cmd {
	return tea.Batch(w.spinner.Tick, w.fetch())
}

// Update implements tea.Model
func (w *Watch) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return w, tea.Quit
		case "c":
			if w.task != nil && !w.task.Status.IsTerminal() {
				return w, w.cancel()
			}
		}

	case tea.WindowSizeMsg:
		w.width = msg.Width

	case taskMsg:
		w.task = msg.task
		w.err = nil
		if w.task.Status.IsTerminal() {
			w.done = true
			return w, tea.Quit
		}
		return w, w.tick()

	case tickMsg:
		return w, w.fetch()

	case cancelResultMsg:
		if msg.cancelled {
			w.message = "cancel requested"
		} else {
			w.message = "task already finished"
		}

	case errMsg:
		w.err = msg.err
		var apiErr *controlplane.APIError
		if errors.As(msg.err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			w.done = true
			return w, tea.Quit
		}
		return w, w.tick()

	case spinner.TickMsg:
		if w.done {
			return w, nil
		}
		var cmd tea.Cmd
		w.spinner, cmd = w.spinner.Update(msg)
		return w, cmd
	}
	return w, nil
}

// View implements tea.Model
func (w *Watch) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("ntbk") + mutedStyle.Render(" task "+w.id) + "\n")

	switch {
	case w.task == nil && w.err != nil:
		b.WriteString(errorStyle.Render("Error: "+w.err.Error()) + "\n")
		return b.String()
	case w.task == nil:
		b.WriteString(w.spinner.View() + " loading…\n")
		return b.String()
	}

	t := w.task
	status := formatStatus(t.Status)
	if !t.Status.IsTerminal() {
		status = w.spinner.View() + " " + status
	}
	fmt.Fprintf(&b, "%s  %s", status, mutedStyle.Render(string(t.Intent)))
	if t.Attempts > 0 {
		b.WriteString(mutedStyle.Render(fmt.Sprintf("  attempts: %d", t.Attempts)))
	}
	b.WriteString("\n")

	if banner := degradedBanner(t); banner != "" {
		b.WriteString(banner + "\n")
	}
	if t.Result != nil {
		if reply := strings.TrimRight(t.Result.AgentReply, "\n"); reply != "" {
			b.WriteString(panelStyle.Width(max(20, w.width-4)).Render(reply) + "\n")
		}
		if t.Result.Error != "" {
			b.WriteString(mutedStyle.Render("detail: "+t.Result.Error) + "\n")
		}
	}

	if w.err != nil {
		b.WriteString(errorStyle.Render("Error: "+w.err.Error()) + "\n")
	}
	if w.message != "" {
		b.WriteString(helpStyle.Render(w.message) + "\n")
	}
	if !w.done {
		b.WriteString(helpStyle.Render("c: cancel • q: quit") + "\n")
	}
	return b.String()
}

func (w *Watch) fetch() tea.Cmd {
	id := w.id
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		task, err := w.backend.GetTask(ctx, id)
		if err != nil {
			return errMsg{err}
		}
		return taskMsg{task}
	}
}

func (w *Watch) cancel() tea.Cmd {
	id := w.id
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		ok, err := w.backend.Cancel(ctx, id)
		if err != nil {
			return errMsg{err}
		}
		return cancelResultMsg{id: id, cancelled: ok}
	}
}

func (w *Watch) tick() tea.Cmd {
	return tea.Tick(w.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}
