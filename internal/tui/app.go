package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fentz26/ntbk/internal/controlplane"
	"github.com/fentz26/ntbk/internal/models"
)

// App is the task dashboard: every task, newest activity first, with the
// selected task's reply underneath.
type App struct {
	backend  Backend
	interval time.Duration
	active   []models.Task
	history  []models.Task
	selected int
	health   *controlplane.HealthResponse
	online   bool
	message  string
	width    int
	height   int
}

// New creates the dashboard, refreshing every interval.
func New(backend Backend, interval time.Duration) *App {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &App{
		backend:  backend,
		interval: interval,
		width:    80,
		height:   24,
	}
}

// Run starts the TUI application.
func (a *App) Run() error {
	p := tea.NewProgram(a, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// Init implements tea.Model
func (a *App) Init() tea.Cmd {
	return tea.Batch(a.fetchTasks(), a.checkHealth(), a.tick())
}

// Update implements tea.Model
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return a, tea.Quit
		case "up", "k":
			if a.selected > 0 {
				a.selected--
			}
		case "down", "j":
			if a.selected < len(a.rows())-1 {
				a.selected++
			}
		case "r":
			return a, tea.Batch(a.fetchTasks(), a.checkHealth())
		case "c":
			if t := a.current(); t != nil {
				return a, a.cancelTask(t.ID)
			}
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height

	case tasksLoadedMsg:
		a.active = msg.active
		a.history = msg.history
		if n := len(a.rows()); a.selected >= n {
			a.selected = max(0, n-1)
		}

	case healthMsg:
		a.health = msg.health
		a.online = msg.health != nil
		if msg.err != nil && msg.health == nil {
			a.message = "Error: " + msg.err.Error()
		}

	case tickMsg:
		return a, tea.Batch(a.fetchTasks(), a.checkHealth(), a.tick())

	case cancelResultMsg:
		if msg.cancelled {
			a.message = fmt.Sprintf("✓ Cancelled %s", shortID(msg.id))
		} else {
			a.message = fmt.Sprintf("%s already finished", shortID(msg.id))
		}
		return a, a.fetchTasks()

	case errMsg:
		a.message = "Error: " + msg.err.Error()
	}
	return a, nil
}

// View implements tea.Model
func (a *App) View() string {
	var b strings.Builder

	daemon := onlineStyle.Render("● DAEMON")
	if !a.online {
		daemon = offlineStyle.Render("○ DAEMON")
	}
	header := titleStyle.Render("ntbk tasks") + "  " + daemon
	if a.health != nil {
		header += "  " + a.renderRemote(a.health.Remote)
		header += "  " + mutedStyle.Render(fmt.Sprintf("[%d/%d dispatching, %d queued]",
			a.health.Stats.Dispatching, a.health.Stats.MaxConcurrent, a.health.Stats.Queued))
	}
	b.WriteString(header + "\n")
	b.WriteString(strings.Repeat("─", max(10, a.width)) + "\n")

	listHeight := max(3, a.height/2-2)
	b.WriteString(a.renderList(listHeight))
	b.WriteString("\n")
	b.WriteString(a.renderDetail())

	if a.message != "" {
		style := lipgloss.NewStyle().Foreground(successColor)
		if strings.HasPrefix(a.message, "Error") {
			style = errorStyle
		}
		b.WriteString("\n" + style.Render(a.message))
	}
	b.WriteString("\n")

	status := fmt.Sprintf(" Tasks: %d active, %d done | ↑↓:nav | c:cancel | r:refresh | q:quit",
		len(a.active), len(a.history))
	b.WriteString(statusBarStyle.Width(max(10, a.width)).Render(status))
	return b.String()
}

func (a *App) renderRemote(state string) string {
	switch state {
	case "ok":
		return onlineStyle.Render("● AGENT")
	case "offline":
		return offlineStyle.Render("○ AGENT offline")
	default:
		return degradedStyle.Render("◐ AGENT " + state)
	}
}

func (a *App) renderList(height int) string {
	rows := a.rows()
	if len(rows) == 0 {
		return "\n  No tasks yet. Submit one with: ntbk task submit <prompt>\n"
	}

	lines := make([]string, 0, len(rows))
	for i, t := range rows {
		label := fmt.Sprintf("%s  %-9s %s", shortID(t.ID), t.Intent, truncate(t.Topic, 40))
		if t.Source == models.SourceFallback {
			label += " (template)"
		}
		if i == a.selected {
			lines = append(lines, selectedStyle.Render(fmt.Sprintf("▶ %-10s %s", t.Status, label)))
		} else {
			lines = append(lines, taskItemStyle.Render(fmt.Sprintf("  %s  %s", formatStatus(t.Status), label)))
		}
	}

	// Keep the selection visible.
	start := 0
	if a.selected >= height {
		start = a.selected - height + 1
	}
	end := min(len(lines), start+height)
	return strings.Join(lines[start:end], "\n") + "\n"
}

func (a *App) renderDetail() string {
	t := a.current()
	if t == nil {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", formatStatus(t.Status), mutedStyle.Render(t.ID))
	if banner := degradedBanner(t); banner != "" {
		b.WriteString(banner + "\n")
	}
	if t.Result != nil && t.Result.AgentReply != "" {
		lines := strings.Split(strings.TrimRight(t.Result.AgentReply, "\n"), "\n")
		limit := max(3, a.height/2-6)
		if len(lines) > limit {
			lines = append(lines[:limit], "…")
		}
		b.WriteString(strings.Join(lines, "\n"))
	} else if t.Result != nil && t.Result.Error != "" {
		b.WriteString(errorStyle.Render(t.Result.Error))
	} else {
		b.WriteString(helpStyle.Render("no reply yet"))
	}
	return panelStyle.Width(max(20, a.width-4)).Render(b.String()) + "\n"
}

// rows lists active tasks before finished ones.
func (a *App) rows() []models.Task {
	rows := make([]models.Task, 0, len(a.active)+len(a.history))
	rows = append(rows, a.active...)
	return append(rows, a.history...)
}

func (a *App) current() *models.Task {
	rows := a.rows()
	if a.selected < 0 || a.selected >= len(rows) {
		return nil
	}
	return &rows[a.selected]
}

func (a *App) fetchTasks() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		active, history, err := a.backend.ListTasks(ctx)
		if err != nil {
			return errMsg{err}
		}
		return tasksLoadedMsg{active: active, history: history}
	}
}

func (a *App) checkHealth() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		h, err := a.backend.Health(ctx)
		return healthMsg{health: h, err: err}
	}
}

func (a *App) cancelTask(id string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		ok, err := a.backend.Cancel(ctx, id)
		if err != nil {
			return errMsg{err}
		}
		return cancelResultMsg{id: id, cancelled: ok}
	}
}

func (a *App) tick() tea.Cmd {
	return tea.Tick(a.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}
