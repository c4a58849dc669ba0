// Package app wires the adapter, the stores, the gate and persistence into one
// explicitly constructed application state.
package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"taskdash/internal/apiclient"
	"taskdash/internal/apperr"
	"taskdash/internal/config"
	"taskdash/internal/model"
	"taskdash/internal/perm"
	"taskdash/internal/persist"
	"taskdash/internal/resource"
	"taskdash/internal/session"
)

type Options struct {
	// HTTPClient overrides the adapter's client (tests point it at httptest servers).
	HTTPClient *http.Client
	// Registerer receives the adapter's request metrics. Nil disables them.
	Registerer prometheus.Registerer
	// Now is the clock used for token expiry and dashboard windows.
	Now func() time.Time
}

type App struct {
	API     *apiclient.Client
	Session *session.Store
	Tasks   *resource.TaskStore
	Users   *resource.UserStore

	db     *persist.DB
	saver  *persist.Saver
	logger *slog.Logger
	now    func() time.Time
}

// New opens the state database under cfg's state dir and builds the stores. The caller
// must Close the app.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (*App, error) {
	if cfg == nil {
		cfg = &config.Config{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	dir, err := cfg.EffectiveStateDir()
	if err != nil {
		return nil, err
	}
	db, err := persist.Open(ctx, dir)
	if err != nil {
		return nil, err
	}

	a := &App{db: db, logger: logger, now: now}
	client, err := apiclient.New(cfg.EffectiveBaseURL(),
		apiclient.WithHTTPClient(opts.HTTPClient),
		apiclient.WithTokenSource(func() string { return a.Session.Token() }),
		apiclient.WithLogger(logger),
		apiclient.WithTimeout(cfg.RequestTimeout()),
		apiclient.WithRateLimit(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		apiclient.WithMetrics(opts.Registerer),
	)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	a.API = client
	a.Session = session.New(client, persist.Tokens{DB: db}, session.WithLogger(logger), session.WithClock(now))
	a.Tasks = resource.NewTaskStore(client, cfg.DocumentPolicy(), logger)
	a.Users = resource.NewUserStore(client, logger)
	a.saver = persist.NewSaver(db, a.Session, a.Tasks, logger)
	return a, nil
}

func (a *App) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	return a.db.Close()
}

// StatePath is the sqlite file holding the token and the rehydration snapshot.
func (a *App) StatePath() string { return a.db.Path() }

// Bootstrap rehydrates the task cache and the session from disk, then starts
// persisting every change. An expired or rejected token leaves the app signed out;
// only a network failure while fetching the profile is returned.
func (a *App) Bootstrap(ctx context.Context) error {
	snap, err := a.db.LoadSnapshot(ctx)
	if err != nil {
		a.logger.Warn("load state snapshot", "path", a.db.Path(), "error", err)
	}
	a.Tasks.Hydrate(snap.Tasks.Items, snap.Tasks.Pagination)

	var persisted *model.Principal
	if snap.Session.IsAuthenticated {
		persisted = snap.Session.Principal
	}
	_, err = a.Session.Restore(ctx, persisted)
	if a.Session.Token() == "" {
		// Whatever was cached belonged to a session that is gone.
		a.Tasks.Clear()
	}
	a.saver.Attach()
	a.saver.Save()
	if err != nil && !errors.Is(err, apperr.ErrAuth) {
		return err
	}
	return nil
}

// Logout ends the session and drops every cached collection.
func (a *App) Logout() {
	a.Session.Logout()
	a.Tasks.Clear()
	a.Users.Clear()
}

// Access evaluates the gate for a dashboard route.
func (a *App) Access(route string) (perm.Decision, perm.Capability, bool) {
	c, known := perm.RouteCapability(route)
	return perm.CanAccess(a.Session.Snapshot(), c), c, known
}

// Require returns an error unless the current session may open route.
func (a *App) Require(route string) error {
	d, _, _ := a.Access(route)
	return decisionErr(d)
}

func decisionErr(d perm.Decision) error {
	switch {
	case d.Allowed():
		return nil
	case d.Outcome == perm.Pending:
		return apperr.New(apperr.KindAuth, "Session is still loading")
	case d.Reason == perm.NotAuthenticated:
		return apperr.New(apperr.KindAuth, "Not authenticated")
	default:
		return apperr.Permission("You do not have permission to view this page")
	}
}

// denied builds the error recorded for a local ownership or role denial.
func (a *App) denied(st session.State, msg string) error {
	if !st.IsAuthenticated {
		return apperr.New(apperr.KindAuth, "Not authenticated")
	}
	return apperr.Permission("%s", msg)
}

// task returns the task for an ownership check, preferring the cache.
func (a *App) task(ctx context.Context, id string) (model.Task, error) {
	id = strings.TrimSpace(id)
	snap := a.Tasks.Snapshot()
	if t, ok := snap.Find(id); ok {
		return t, nil
	}
	if snap.Selected != nil && snap.Selected.ID == id {
		return *snap.Selected, nil
	}
	return a.API.GetTask(ctx, id)
}

func (a *App) CreateTask(ctx context.Context, in model.TaskInput) (model.Task, error) {
	st := a.Session.Snapshot()
	if !perm.CanCreateTask(st) {
		return model.Task{}, a.Tasks.Fail(a.denied(st, "You do not have permission to create tasks"))
	}
	return a.Tasks.Create(ctx, in)
}

// UpdateTask is the full edit (title, dates, assignee, documents).
func (a *App) UpdateTask(ctx context.Context, id string, in model.TaskInput) (model.Task, error) {
	st := a.Session.Snapshot()
	if !perm.CanEditTask(st, model.Task{ID: id}) {
		return model.Task{}, a.Tasks.Fail(a.denied(st, "You do not have permission to edit this task"))
	}
	return a.Tasks.Update(ctx, id, in)
}

func (a *App) TransitionTaskStatus(ctx context.Context, id string, status model.Status, note string) (model.Task, error) {
	st := a.Session.Snapshot()
	if !st.IsAuthenticated {
		return model.Task{}, a.Tasks.Fail(a.denied(st, ""))
	}
	if st.Role() != model.RoleAdmin {
		t, err := a.task(ctx, id)
		if err != nil {
			return model.Task{}, a.Tasks.Fail(err)
		}
		if !perm.CanChangeTaskStatus(st, t) {
			return model.Task{}, a.Tasks.Fail(a.denied(st, "You do not have permission to update this task's status"))
		}
	}
	return a.Tasks.TransitionStatus(ctx, id, status, note)
}

func (a *App) DeleteTask(ctx context.Context, id string) (string, error) {
	st := a.Session.Snapshot()
	if !st.IsAuthenticated {
		return "", a.Tasks.Fail(a.denied(st, ""))
	}
	if st.Role() != model.RoleAdmin {
		t, err := a.task(ctx, id)
		if err != nil {
			return "", a.Tasks.Fail(err)
		}
		if !perm.CanDeleteTask(st, t) {
			return "", a.Tasks.Fail(a.denied(st, "You do not have permission to delete this task"))
		}
	}
	return a.Tasks.Delete(ctx, id)
}

func (a *App) CreateUser(ctx context.Context, in model.UserInput) (model.User, error) {
	st := a.Session.Snapshot()
	if !perm.CanManageUsers(st) {
		return model.User{}, a.Users.Fail(a.denied(st, "You do not have permission to manage users"))
	}
	return a.Users.Create(ctx, in)
}

func (a *App) UpdateUser(ctx context.Context, id string, in model.UserInput) (model.User, error) {
	st := a.Session.Snapshot()
	if !perm.CanUpdateUser(st, id) {
		return model.User{}, a.Users.Fail(a.denied(st, "You do not have permission to update this user"))
	}
	if in.Role != "" && !perm.CanChangeRole(st) {
		return model.User{}, a.Users.Fail(a.denied(st, "You do not have permission to change roles"))
	}
	return a.Users.Update(ctx, id, in)
}

func (a *App) DeleteUser(ctx context.Context, id string) (string, error) {
	st := a.Session.Snapshot()
	if !perm.CanManageUsers(st) {
		return "", a.Users.Fail(a.denied(st, "You do not have permission to manage users"))
	}
	if !perm.CanDeleteUser(st, id) {
		return "", a.Users.Fail(a.denied(st, "You cannot delete your own account"))
	}
	return a.Users.Delete(ctx, id)
}

// ListTasks lists every task; it is the admin task page.
func (a *App) ListTasks(ctx context.Context, q model.TaskQuery) (model.Page[model.Task], error) {
	if err := a.Require("/tasks"); err != nil {
		return model.Page[model.Task]{}, a.Tasks.Fail(err)
	}
	return a.Tasks.List(ctx, q)
}

// MyTasks lists the tasks assigned to the signed-in principal.
func (a *App) MyTasks(ctx context.Context) (model.Page[model.Task], error) {
	if err := a.Require("/my-tasks"); err != nil {
		return model.Page[model.Task]{}, a.Tasks.Fail(err)
	}
	return a.Tasks.ListForUser(ctx, a.Session.Snapshot().PrincipalID())
}

// GetTask loads one task; non-admins may only open tasks they are assigned to or created.
func (a *App) GetTask(ctx context.Context, id string) (model.Task, error) {
	if err := a.Require("/tasks/" + id); err != nil {
		return model.Task{}, a.Tasks.Fail(err)
	}
	t, err := a.Tasks.Get(ctx, id)
	if err != nil {
		return t, err
	}
	st := a.Session.Snapshot()
	if !perm.CanViewTask(st, t) {
		a.Tasks.ClearSelected()
		return model.Task{}, a.Tasks.Fail(a.denied(st, "You do not have permission to view this task"))
	}
	return t, nil
}

func (a *App) ListUsers(ctx context.Context, q model.UserQuery) (model.Page[model.User], error) {
	if err := a.Require("/users"); err != nil {
		return model.Page[model.User]{}, a.Users.Fail(err)
	}
	return a.Users.List(ctx, q)
}

// GetUser loads one user; principals other than admins may only load themselves.
func (a *App) GetUser(ctx context.Context, id string) (model.User, error) {
	st := a.Session.Snapshot()
	if !perm.CanUpdateUser(st, id) {
		return model.User{}, a.Users.Fail(a.denied(st, "You do not have permission to view this user"))
	}
	return a.Users.Get(ctx, id)
}

// UserTasks lists the tasks assigned to another user (admin user detail page).
func (a *App) UserTasks(ctx context.Context, userID string) (model.Page[model.Task], error) {
	if err := a.Require("/users/" + userID); err != nil {
		return model.Page[model.Task]{}, a.Tasks.Fail(err)
	}
	return a.Tasks.ListForUser(ctx, userID)
}
