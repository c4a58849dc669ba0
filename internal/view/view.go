// Package view holds pure selectors over task snapshots. None of them mutate their
// input, and every sort is stable.
package view

import (
	"sort"
	"strings"
	"time"

	"taskdash/internal/model"
)

// FilterTasksForPrincipal returns the tasks assigned to p.
func FilterTasksForPrincipal(items []model.Task, p *model.Principal) []model.Task {
	out := []model.Task{}
	if p == nil || strings.TrimSpace(p.ID) == "" {
		return out
	}
	for _, t := range items {
		if t.AssignedTo.ID == p.ID {
			out = append(out, t)
		}
	}
	return out
}

// ApplyFilters keeps the tasks matching every set field of f. StartDate counts from
// the start of its day and EndDate through the end of its day, in the dates' location.
func ApplyFilters(items []model.Task, f model.TaskFilter) []model.Task {
	search := strings.ToLower(strings.TrimSpace(f.Search))
	var start, end time.Time
	if !f.StartDate.IsZero() {
		start = startOfDay(f.StartDate)
	}
	if !f.EndDate.IsZero() {
		end = startOfDay(f.EndDate).AddDate(0, 0, 1).Add(-time.Millisecond)
	}
	assignee := strings.TrimSpace(f.AssignedTo)

	out := []model.Task{}
	for _, t := range items {
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		if f.Priority != "" && t.Priority != f.Priority {
			continue
		}
		if assignee != "" && t.AssignedTo.ID != assignee {
			continue
		}
		if !start.IsZero() && t.DueDate.Before(start) {
			continue
		}
		if !end.IsZero() && t.DueDate.After(end) {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(t.Title), search) &&
			!strings.Contains(strings.ToLower(t.Description), search) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

type StatusCounts struct {
	Pending    int `json:"pending"`
	InProgress int `json:"inProgress"`
	Completed  int `json:"completed"`
	Total      int `json:"total"`
}

func ComputeStatusCounts(items []model.Task) StatusCounts {
	var c StatusCounts
	for _, t := range items {
		switch t.Status {
		case model.StatusPending:
			c.Pending++
		case model.StatusInProgress:
			c.InProgress++
		case model.StatusCompleted:
			c.Completed++
		}
	}
	c.Total = len(items)
	return c
}

// SortedUpcoming returns tasks ordered by due date, soonest first, skipping exclude.
// With withinDays > 0 only tasks due between now and now+withinDays are kept; with
// withinDays <= 0 there is no window and overdue tasks are included. limit <= 0 means
// no cap. Tasks without a due date are skipped.
func SortedUpcoming(items []model.Task, now time.Time, withinDays int, exclude model.Status, limit int) []model.Task {
	var from, horizon time.Time
	if withinDays > 0 {
		from = now
		horizon = now.AddDate(0, 0, withinDays)
	}
	out := []model.Task{}
	for _, t := range items {
		if exclude != "" && t.Status == exclude {
			continue
		}
		if t.DueDate.IsZero() {
			continue
		}
		if !horizon.IsZero() && (t.DueDate.Before(from) || t.DueDate.After(horizon)) {
			continue
		}
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Paginate returns one page of items along with the matching pagination block.
func Paginate[T any](items []T, page, limit int) ([]T, model.Pagination) {
	if page < 1 {
		page = model.DefaultPage
	}
	if limit < 1 {
		limit = model.DefaultLimit
	}
	total := len(items)
	pages := (total + limit - 1) / limit
	p := model.Pagination{Page: page, Limit: limit, Total: total, Pages: pages}
	from := (page - 1) * limit
	if from >= total {
		return []T{}, p
	}
	to := min(from+limit, total)
	return append([]T{}, items[from:to]...), p
}

type SortKey string

const (
	SortByDueDate   SortKey = "dueDate"
	SortByCreatedAt SortKey = "createdAt"
	SortByTitle     SortKey = "title"
	SortByPriority  SortKey = "priority"
	SortByStatus    SortKey = "status"
)

var priorityRank = map[model.Priority]int{model.PriorityLow: 0, model.PriorityMedium: 1, model.PriorityHigh: 2}

var statusRank = map[model.Status]int{model.StatusPending: 0, model.StatusInProgress: 1, model.StatusCompleted: 2}

// SortTasks returns a sorted copy. Unknown keys sort by due date.
func SortTasks(items []model.Task, key SortKey, dir model.SortDir) []model.Task {
	out := append([]model.Task{}, items...)
	less := func(a, b model.Task) bool { return a.DueDate.Before(b.DueDate) }
	switch key {
	case SortByCreatedAt:
		less = func(a, b model.Task) bool { return a.CreatedAt.Before(b.CreatedAt) }
	case SortByTitle:
		less = func(a, b model.Task) bool { return strings.ToLower(a.Title) < strings.ToLower(b.Title) }
	case SortByPriority:
		less = func(a, b model.Task) bool { return priorityRank[a.Priority] < priorityRank[b.Priority] }
	case SortByStatus:
		less = func(a, b model.Task) bool { return statusRank[a.Status] < statusRank[b.Status] }
	}
	if dir == model.SortDesc {
		asc := less
		less = func(a, b model.Task) bool { return asc(b, a) }
	}
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}
