package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	appstate "taskdash/internal/app"
	"taskdash/internal/model"
	"taskdash/internal/view"
)

type fakeBackend struct {
	authed     bool
	loginErr   error
	dash       appstate.Dashboard
	dashErr    error
	dashCalls  int
	transition []string
}

func (f *fakeBackend) Authenticated() bool { return f.authed }

func (f *fakeBackend) Login(_ context.Context, email, password string) error {
	if f.loginErr != nil {
		return f.loginErr
	}
	if email == "" || password == "" {
		return errors.New("missing credentials")
	}
	f.authed = true
	return nil
}

func (f *fakeBackend) Dashboard(context.Context) (appstate.Dashboard, error) {
	f.dashCalls++
	return f.dash, f.dashErr
}

func (f *fakeBackend) TransitionTaskStatus(_ context.Context, id string, status model.Status, note string) (model.Task, error) {
	f.transition = append(f.transition, id+":"+string(status)+":"+note)
	return model.Task{ID: id, Status: status, Note: note}, nil
}

func keyRunes(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

// drain runs cmd and any batched commands, applying every resulting message except
// spinner and blink ticks.
func drain(t *testing.T, m appModel, cmd tea.Cmd) appModel {
	t.Helper()
	queue := []tea.Cmd{cmd}
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		if c == nil {
			continue
		}
		switch msg := c().(type) {
		case tea.BatchMsg:
			queue = append(queue, msg...)
		case loginDoneMsg, dashboardMsg, statusChangedMsg:
			next, more := m.Update(msg)
			m = next.(appModel)
			queue = append(queue, more)
		}
	}
	return m
}

func sampleDashboard() appstate.Dashboard {
	due := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	return appstate.Dashboard{
		Principal: model.Principal{ID: "u1", Name: "Alice", Role: model.RoleUser},
		Counts:    view.StatusCounts{Pending: 1, InProgress: 1, Total: 2},
		Upcoming: []model.Task{
			{ID: "t1", Title: "Write report", Status: model.StatusPending, Priority: model.PriorityHigh, DueDate: due, Description: "Quarterly **numbers**"},
			{ID: "t2", Title: "Review PR", Status: model.StatusInProgress, Priority: model.PriorityLow, DueDate: due},
		},
	}
}

func TestLoginThenDashboard(t *testing.T) {
	b := &fakeBackend{dash: sampleDashboard()}
	m := newModel(context.Background(), b)
	if m.screen != screenLogin {
		t.Fatalf("expected login screen, got %v", m.screen)
	}

	for _, r := range "alice@example.com" {
		next, _ := m.Update(keyRunes(string(r)))
		m = next.(appModel)
	}
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m = next.(appModel)
	if !m.password.Focused() {
		t.Fatalf("expected password field focused after tab")
	}
	for _, r := range "secret1" {
		next, _ = m.Update(keyRunes(string(r)))
		m = next.(appModel)
	}
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = drain(t, next.(appModel), cmd)

	if m.screen != screenDashboard {
		t.Fatalf("expected dashboard screen, got %v (err=%q)", m.screen, m.err)
	}
	if m.password.Value() != "" {
		t.Fatalf("expected password cleared after sign-in")
	}
	if b.dashCalls != 1 {
		t.Fatalf("expected one dashboard load, got %d", b.dashCalls)
	}
	if got := len(m.tasks.Items()); got != 2 {
		t.Fatalf("expected 2 rows, got %d", got)
	}
}

func TestLoginFailureStaysOnLogin(t *testing.T) {
	b := &fakeBackend{loginErr: errors.New("Invalid credentials")}
	m := newModel(context.Background(), b)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = drain(t, next.(appModel), cmd)
	if m.screen != screenLogin {
		t.Fatalf("expected to stay on login, got %v", m.screen)
	}
	if m.err != "Invalid credentials" || m.loading {
		t.Fatalf("unexpected state: err=%q loading=%v", m.err, m.loading)
	}
	if !strings.Contains(m.View(), "Invalid credentials") {
		t.Fatalf("expected error in view")
	}
}

func TestRestoredSessionStartsOnDashboard(t *testing.T) {
	b := &fakeBackend{authed: true, dash: sampleDashboard()}
	m := newModel(context.Background(), b)
	if m.screen != screenDashboard || !m.loading {
		t.Fatalf("expected loading dashboard, got screen=%v loading=%v", m.screen, m.loading)
	}
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	m = drain(t, next.(appModel), m.Init())
	if m.loading {
		t.Fatalf("expected loading to finish")
	}
	out := m.View()
	for _, want := range []string{"Alice", "Write report", "Review PR"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in view:\n%s", want, out)
		}
	}
}

func TestDashboardAuthErrorReturnsToLogin(t *testing.T) {
	b := &fakeBackend{authed: true, dashErr: errors.New("Not authenticated")}
	m := newModel(context.Background(), b)
	b.authed = false
	m = drain(t, m, m.Init())
	if m.screen != screenLogin {
		t.Fatalf("expected login screen, got %v", m.screen)
	}
	if m.err != "Not authenticated" {
		t.Fatalf("unexpected err %q", m.err)
	}
}

func TestStatusChangeWithNote(t *testing.T) {
	b := &fakeBackend{authed: true, dash: sampleDashboard()}
	m := newModel(context.Background(), b)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	m = drain(t, next.(appModel), m.Init())

	next, _ = m.Update(keyRunes("s"))
	m = next.(appModel)
	if m.screen != screenNote {
		t.Fatalf("expected note screen, got %v", m.screen)
	}
	if m.nextStatus != model.StatusInProgress {
		t.Fatalf("expected next status in-progress, got %q", m.nextStatus)
	}
	for _, r := range "started" {
		next, _ = m.Update(keyRunes(string(r)))
		m = next.(appModel)
	}
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = drain(t, next.(appModel), cmd)

	if len(b.transition) != 1 || b.transition[0] != "t1:in-progress:started" {
		t.Fatalf("unexpected transitions: %v", b.transition)
	}
	if m.screen != screenDashboard || b.dashCalls != 2 {
		t.Fatalf("expected dashboard reload, screen=%v calls=%d", m.screen, b.dashCalls)
	}
}

func TestNoteEscapeCancels(t *testing.T) {
	b := &fakeBackend{authed: true, dash: sampleDashboard()}
	m := newModel(context.Background(), b)
	m = drain(t, m, m.Init())
	next, _ := m.Update(keyRunes("s"))
	next, _ = next.(appModel).Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = next.(appModel)
	if m.screen != screenDashboard || len(b.transition) != 0 {
		t.Fatalf("expected cancel without transition, screen=%v transitions=%v", m.screen, b.transition)
	}
}

func TestNextStatusCycles(t *testing.T) {
	cases := map[model.Status]model.Status{
		model.StatusPending:    model.StatusInProgress,
		model.StatusInProgress: model.StatusCompleted,
		model.StatusCompleted:  model.StatusPending,
	}
	for in, want := range cases {
		if got := nextStatus(in); got != want {
			t.Fatalf("nextStatus(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFitRow(t *testing.T) {
	got := fitRow("hello", "Mar 10", 20)
	if len(got) != 20 || !strings.HasSuffix(got, "Mar 10") {
		t.Fatalf("unexpected row %q", got)
	}
	got = fitRow("a very long task title indeed", "Mar 10", 16)
	if !strings.Contains(got, "…") || !strings.HasSuffix(got, "Mar 10") {
		t.Fatalf("expected truncated row, got %q", got)
	}
}
