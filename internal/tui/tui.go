// Package tui is the interactive dashboard. It only reads and mutates state through
// the application layer.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	appstate "taskdash/internal/app"
	"taskdash/internal/model"
)

type Options struct {
	NoColor bool
}

// Backend is what the dashboard needs from the application state.
type Backend interface {
	Authenticated() bool
	Login(ctx context.Context, email, password string) error
	Dashboard(ctx context.Context) (appstate.Dashboard, error)
	TransitionTaskStatus(ctx context.Context, id string, status model.Status, note string) (model.Task, error)
}

type appBackend struct{ a *appstate.App }

func (b appBackend) Authenticated() bool { return b.a.Session.Snapshot().IsAuthenticated }

func (b appBackend) Login(ctx context.Context, email, password string) error {
	_, err := b.a.Session.Login(ctx, email, password)
	return err
}

func (b appBackend) Dashboard(ctx context.Context) (appstate.Dashboard, error) {
	return b.a.Dashboard(ctx)
}

func (b appBackend) TransitionTaskStatus(ctx context.Context, id string, status model.Status, note string) (model.Task, error) {
	return b.a.TransitionTaskStatus(ctx, id, status, note)
}

func Run(ctx context.Context, a *appstate.App, opts Options) error {
	applyColorProfile(opts.NoColor)
	m := newModel(ctx, appBackend{a: a})
	_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}

type screen int

const (
	screenLogin screen = iota
	screenDashboard
	screenNote
)

type (
	loginDoneMsg     struct{ err error }
	dashboardMsg     struct {
		d   appstate.Dashboard
		err error
	}
	statusChangedMsg struct {
		task model.Task
		err  error
	}
)

type appModel struct {
	ctx     context.Context
	backend Backend

	screen  screen
	loading bool
	err     string
	width   int
	height  int

	email    textinput.Model
	password textinput.Model
	note     textinput.Model
	spin     spinner.Model
	tasks    list.Model

	dash       appstate.Dashboard
	nextStatus model.Status
}

func newModel(ctx context.Context, b Backend) appModel {
	email := textinput.New()
	email.Placeholder = "email"
	email.Prompt = "Email:    "
	email.Focus()

	password := textinput.New()
	password.Placeholder = "password"
	password.Prompt = "Password: "
	password.EchoMode = textinput.EchoPassword
	password.EchoCharacter = '•'

	note := textinput.New()
	note.Placeholder = "why is the status changing?"
	note.Prompt = "Note: "
	note.CharLimit = 500

	l := list.New(nil, newTaskRowDelegate(), 0, 0)
	l.SetShowTitle(false)
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)

	m := appModel{
		ctx:      ctx,
		backend:  b,
		email:    email,
		password: password,
		note:     note,
		spin:     spinner.New(spinner.WithSpinner(spinner.Dot)),
		tasks:    l,
		screen:   screenLogin,
	}
	if b.Authenticated() {
		m.screen = screenDashboard
		m.loading = true
	}
	return m
}

func (m appModel) Init() tea.Cmd {
	if m.screen == screenDashboard {
		return tea.Batch(m.spin.Tick, m.loadDashboard())
	}
	return textinput.Blink
}

func (m appModel) loadDashboard() tea.Cmd {
	return func() tea.Msg {
		d, err := m.backend.Dashboard(m.ctx)
		return dashboardMsg{d: d, err: err}
	}
}

func (m appModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.tasks.SetSize(m.listWidth(), max(msg.Height-8, 3))
		return m, nil

	case spinner.TickMsg:
		if !m.loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case loginDoneMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err.Error()
			return m, nil
		}
		m.err = ""
		m.password.SetValue("")
		m.screen = screenDashboard
		m.loading = true
		return m, tea.Batch(m.spin.Tick, m.loadDashboard())

	case dashboardMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err.Error()
			if !m.backend.Authenticated() {
				m.screen = screenLogin
				m.email.Focus()
			}
			return m, nil
		}
		m.err = ""
		m.dash = msg.d
		m.tasks.SetItems(taskItems(m.rows()))
		return m, nil

	case statusChangedMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err.Error()
			return m, nil
		}
		m.loading = true
		return m, tea.Batch(m.spin.Tick, m.loadDashboard())

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		switch m.screen {
		case screenLogin:
			return m.updateLogin(msg)
		case screenNote:
			return m.updateNote(msg)
		default:
			return m.updateDashboard(msg)
		}
	}
	return m, nil
}

// rows is what the list shows: the upcoming tasks, or recent ones when nothing is due.
func (m appModel) rows() []model.Task {
	if len(m.dash.Upcoming) > 0 {
		return m.dash.Upcoming
	}
	return m.dash.Recent
}

func (m appModel) updateLogin(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "tab", "shift+tab", "up", "down":
		if m.email.Focused() {
			m.email.Blur()
			m.password.Focus()
		} else {
			m.password.Blur()
			m.email.Focus()
		}
		return m, nil
	case "enter":
		if m.loading {
			return m, nil
		}
		email, password := strings.TrimSpace(m.email.Value()), m.password.Value()
		m.loading = true
		m.err = ""
		return m, tea.Batch(m.spin.Tick, func() tea.Msg {
			return loginDoneMsg{err: m.backend.Login(m.ctx, email, password)}
		})
	case "esc":
		return m, tea.Quit
	}
	var cmd tea.Cmd
	if m.email.Focused() {
		m.email, cmd = m.email.Update(msg)
	} else {
		m.password, cmd = m.password.Update(msg)
	}
	return m, cmd
}

func (m appModel) updateDashboard(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc":
		return m, tea.Quit
	case "r":
		if m.loading {
			return m, nil
		}
		m.loading = true
		return m, tea.Batch(m.spin.Tick, m.loadDashboard())
	case "s":
		it, ok := m.tasks.SelectedItem().(taskItem)
		if !ok || m.loading {
			return m, nil
		}
		m.nextStatus = nextStatus(it.task.Status)
		m.note.SetValue("")
		m.note.Focus()
		m.screen = screenNote
		return m, textinput.Blink
	}
	var cmd tea.Cmd
	m.tasks, cmd = m.tasks.Update(msg)
	return m, cmd
}

func (m appModel) updateNote(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.note.Blur()
		m.screen = screenDashboard
		return m, nil
	case "enter":
		it, ok := m.tasks.SelectedItem().(taskItem)
		if !ok {
			m.screen = screenDashboard
			return m, nil
		}
		id, status, note := it.task.ID, m.nextStatus, m.note.Value()
		m.note.Blur()
		m.screen = screenDashboard
		m.loading = true
		m.err = ""
		return m, tea.Batch(m.spin.Tick, func() tea.Msg {
			t, err := m.backend.TransitionTaskStatus(m.ctx, id, status, note)
			return statusChangedMsg{task: t, err: err}
		})
	}
	var cmd tea.Cmd
	m.note, cmd = m.note.Update(msg)
	return m, cmd
}

// nextStatus cycles pending -> in-progress -> completed -> pending.
func nextStatus(s model.Status) model.Status {
	switch s {
	case model.StatusPending:
		return model.StatusInProgress
	case model.StatusInProgress:
		return model.StatusCompleted
	default:
		return model.StatusPending
	}
}

func (m appModel) listWidth() int {
	if m.width <= 0 {
		return 60
	}
	return max(m.width/2, 20)
}

func (m appModel) View() string {
	var b strings.Builder
	switch m.screen {
	case screenLogin:
		b.WriteString(styleTitle().Render("taskdash") + "  sign in\n\n")
		b.WriteString(m.email.View() + "\n")
		b.WriteString(m.password.View() + "\n\n")
		if m.loading {
			b.WriteString(m.spin.View() + " signing in…\n")
		}
		b.WriteString(styleMuted().Render("tab: switch field  enter: sign in  esc: quit"))
	default:
		b.WriteString(m.header() + "\n\n")
		if m.loading && len(m.dash.Recent) == 0 && len(m.dash.Upcoming) == 0 {
			b.WriteString(m.spin.View() + " loading…\n")
			break
		}
		left := m.tasks.View()
		right := m.detail(max(m.width-m.listWidth()-2, 20))
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, left, "  ", right) + "\n")
		if m.screen == screenNote {
			b.WriteString("\n" + fmt.Sprintf("Move to %s. ", m.nextStatus) + m.note.View() + "\n")
		}
		footer := "↑/↓: move  s: change status  r: refresh  q: quit"
		if m.loading {
			footer = m.spin.View() + " " + footer
		}
		b.WriteString("\n" + styleMuted().Render(footer))
	}
	if m.err != "" {
		b.WriteString("\n" + styleError().Render(m.err))
	}
	return b.String()
}

func (m appModel) header() string {
	d := m.dash
	who := d.Principal.DisplayName()
	role := "user"
	if d.Admin {
		role = "admin"
	}
	counts := fmt.Sprintf("%s %d  %s %d  %s %d  total %d",
		statusBadge(model.StatusPending), d.Counts.Pending,
		statusBadge(model.StatusInProgress), d.Counts.InProgress,
		statusBadge(model.StatusCompleted), d.Counts.Completed,
		d.Counts.Total)
	if d.Users != nil {
		counts += fmt.Sprintf("  users %d", *d.Users)
	}
	return styleTitle().Render("taskdash") + " " + who + styleMuted().Render(" ("+role+")") + "\n" + counts
}

func (m appModel) detail(width int) string {
	it, ok := m.tasks.SelectedItem().(taskItem)
	if !ok {
		return styleMuted().Render("No tasks due.")
	}
	t := it.task
	var b strings.Builder
	b.WriteString(lipgloss.NewStyle().Bold(true).Render(t.Title) + "\n")
	meta := []string{string(t.Status), string(t.Priority) + " priority"}
	if !t.DueDate.IsZero() {
		meta = append(meta, "due "+t.DueDate.Format("2006-01-02"))
	}
	if n := len(t.Documents); n > 0 {
		meta = append(meta, fmt.Sprintf("%d document(s)", n))
	}
	b.WriteString(styleMuted().Render(strings.Join(meta, " · ")) + "\n\n")
	if desc := renderMarkdown(t.Description, width); desc != "" {
		b.WriteString(desc + "\n")
	}
	if t.Note != "" {
		b.WriteString("\n" + styleMuted().Render("Note: "+t.Note))
	}
	return b.String()
}
