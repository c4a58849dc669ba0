package cli

import (
	"strings"
	"time"

	"github.com/spf13/pflag"

	"taskdash/internal/model"
)

// pageFlags are shared by every list command.
type pageFlags struct {
	page    int
	limit   int
	sortBy  string
	sortDir string
}

func (f *pageFlags) flagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("pagination", pflag.ContinueOnError)
	fs.IntVar(&f.page, "page", model.DefaultPage, "Page number (1-based)")
	fs.IntVar(&f.limit, "limit", model.DefaultLimit, "Page size")
	fs.StringVar(&f.sortBy, "sort", "", "Sort field (dueDate|createdAt|title|priority|status)")
	fs.StringVar(&f.sortDir, "dir", "asc", "Sort direction (asc|desc)")
	return fs
}

func (f *pageFlags) dir() (model.SortDir, error) {
	switch strings.ToLower(strings.TrimSpace(f.sortDir)) {
	case "", "asc":
		return model.SortAsc, nil
	case "desc":
		return model.SortDesc, nil
	}
	return "", errUsage("invalid --dir %q (want asc or desc)", f.sortDir)
}

type taskFilterFlags struct {
	status   string
	priority string
	assignee string
	from     string
	to       string
	search   string
}

func (f *taskFilterFlags) flagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("task filters", pflag.ContinueOnError)
	fs.StringVar(&f.status, "status", "", "Filter by status (pending|in-progress|completed)")
	fs.StringVar(&f.priority, "priority", "", "Filter by priority (low|medium|high)")
	fs.StringVar(&f.assignee, "assigned-to", "", "Filter by assignee user id")
	fs.StringVar(&f.from, "from", "", "Due on or after this date")
	fs.StringVar(&f.to, "to", "", "Due on or before this date (inclusive)")
	fs.StringVarP(&f.search, "search", "q", "", "Case-insensitive search in title and description")
	return fs
}

func (f *taskFilterFlags) filter(now time.Time) (model.TaskFilter, error) {
	var out model.TaskFilter
	if strings.TrimSpace(f.status) != "" {
		st, err := model.ParseStatus(f.status)
		if err != nil {
			return out, errUsage("%v", err)
		}
		out.Status = st
	}
	if strings.TrimSpace(f.priority) != "" {
		p, err := model.ParsePriority(f.priority)
		if err != nil {
			return out, errUsage("%v", err)
		}
		out.Priority = p
	}
	if strings.TrimSpace(f.from) != "" {
		t, err := parseDate(f.from, now)
		if err != nil {
			return out, errUsage("--from: %v", err)
		}
		out.StartDate = t
	}
	if strings.TrimSpace(f.to) != "" {
		t, err := parseDate(f.to, now)
		if err != nil {
			return out, errUsage("--to: %v", err)
		}
		out.EndDate = t
	}
	out.AssignedTo = strings.TrimSpace(f.assignee)
	out.Search = strings.TrimSpace(f.search)
	return out, nil
}

type userFilterFlags struct {
	email  string
	role   string
	search string
}

func (f *userFilterFlags) flagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("user filters", pflag.ContinueOnError)
	fs.StringVar(&f.email, "email", "", "Filter by email")
	fs.StringVar(&f.role, "role", "", "Filter by role (user|admin)")
	fs.StringVarP(&f.search, "search", "q", "", "Search in name and email")
	return fs
}

func (f *userFilterFlags) filter() (model.UserFilter, error) {
	out := model.UserFilter{Email: strings.TrimSpace(f.email), Search: strings.TrimSpace(f.search)}
	if strings.TrimSpace(f.role) != "" {
		r, err := model.ParseRole(f.role)
		if err != nil {
			return out, errUsage("%v", err)
		}
		out.Role = r
	}
	return out, nil
}
