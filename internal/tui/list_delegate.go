package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	xansi "github.com/charmbracelet/x/ansi"

	"taskdash/internal/model"
)

type taskItem struct {
	task model.Task
}

func (i taskItem) FilterValue() string { return i.task.Title }
func (i taskItem) Title() string       { return i.task.Title }

func taskItems(tasks []model.Task) []list.Item {
	out := make([]list.Item, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, taskItem{task: t})
	}
	return out
}

// taskRowDelegate renders one line per task: status, title, due date.
type taskRowDelegate struct {
	normal   lipgloss.Style
	selected lipgloss.Style
}

func newTaskRowDelegate() taskRowDelegate {
	return taskRowDelegate{
		normal:   lipgloss.NewStyle(),
		selected: lipgloss.NewStyle().Background(colorSelected).Bold(true),
	}
}

func (d taskRowDelegate) Height() int                             { return 1 }
func (d taskRowDelegate) Spacing() int                            { return 0 }
func (d taskRowDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }

func (d taskRowDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	ti, ok := item.(taskItem)
	if !ok {
		return
	}
	contentW := m.Width()
	if contentW < 4 {
		return
	}
	style := d.normal
	if index == m.Index() {
		style = d.selected
	}

	due := ""
	if !ti.task.DueDate.IsZero() {
		due = ti.task.DueDate.Format("Jan 02")
	}
	left := statusBadge(ti.task.Status) + " " + ti.task.Title
	fmt.Fprint(w, style.Render(fitRow(left, styleMuted().Render(due), contentW)))
}

// fitRow places right at the end of a contentW-wide row, cutting left when both do
// not fit.
func fitRow(left, right string, contentW int) string {
	rightW := xansi.StringWidth(right)
	avail := contentW - rightW - 1
	if avail < 1 {
		return xansi.Cut(left, 0, contentW)
	}
	if xansi.StringWidth(left) > avail {
		left = xansi.Cut(left, 0, avail-1) + "…"
	}
	gap := contentW - xansi.StringWidth(left) - rightW
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + right
}
