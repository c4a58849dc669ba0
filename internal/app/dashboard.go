package app

import (
	"context"

	"golang.org/x/sync/errgroup"

	"taskdash/internal/apperr"
	"taskdash/internal/model"
	"taskdash/internal/view"
)

const (
	dashboardLimit    = 100
	upcomingAdminTop  = 5
	dueSoonDays       = 7
	recentTasksToShow = 5
)

// Dashboard is the landing page data for the signed-in principal.
type Dashboard struct {
	Principal model.Principal   `json:"principal"`
	Admin     bool              `json:"admin"`
	Counts    view.StatusCounts `json:"counts"`
	Upcoming  []model.Task      `json:"upcoming"`
	Recent    []model.Task      `json:"recent"`
	// Users is the total user count; admins only.
	Users *int `json:"users,omitempty"`
}

// Dashboard fetches what the landing page needs concurrently. Admins see every task and
// the five nearest open deadlines; everyone else sees their own tasks due within a week.
func (a *App) Dashboard(ctx context.Context) (Dashboard, error) {
	if err := a.Require("/dashboard"); err != nil {
		return Dashboard{}, err
	}
	st := a.Session.Snapshot()
	admin := st.Role() == model.RoleAdmin

	var (
		users int
		tasks []model.Task
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := a.Tasks.List(gctx, model.TaskQuery{Page: 1, Limit: dashboardLimit})
		if err != nil {
			return err
		}
		tasks = p.Items
		return nil
	})
	if admin {
		g.Go(func() error {
			p, err := a.API.ListUsers(gctx, model.UserQuery{Page: 1, Limit: 1})
			if err != nil {
				return err
			}
			users = p.Pagination.Total
			return nil
		})
	} else {
		g.Go(func() error {
			_, err := a.Session.FetchProfile(gctx)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return Dashboard{}, err
	}

	st = a.Session.Snapshot()
	if st.Principal == nil {
		return Dashboard{}, apperr.New(apperr.KindAuth, "Not authenticated")
	}
	d := Dashboard{Principal: *st.Principal, Admin: admin}
	now := a.now()
	if admin {
		d.Counts = view.ComputeStatusCounts(tasks)
		d.Upcoming = view.SortedUpcoming(tasks, now, 0, model.StatusCompleted, upcomingAdminTop)
		d.Recent = view.SortTasks(tasks, view.SortByCreatedAt, model.SortDesc)
		d.Users = &users
	} else {
		mine := view.FilterTasksForPrincipal(tasks, st.Principal)
		d.Counts = view.ComputeStatusCounts(mine)
		d.Upcoming = view.SortedUpcoming(mine, now, dueSoonDays, model.StatusCompleted, 0)
		d.Recent = mine
	}
	if len(d.Recent) > recentTasksToShow {
		d.Recent = d.Recent[:recentTasksToShow]
	}
	return d, nil
}
