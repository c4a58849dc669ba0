package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"taskdash/internal/apperr"
	"taskdash/internal/config"
	"taskdash/internal/model"
	"taskdash/internal/perm"
	"taskdash/internal/persist"
)

var testNow = time.Date(2025, 3, 9, 10, 0, 0, 0, time.UTC)

type fakeUser struct {
	ID, Email, Name, Role, Password string
}

type fakeTask struct {
	ID, Title, Status, Assignee, Creator string
	Due                                  time.Time
	Created                              time.Time
}

// fakeAPI is an in-memory task server speaking the REST envelope.
type fakeAPI struct {
	mu    sync.Mutex
	users []fakeUser
	tasks []fakeTask
	calls map[string]int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		users: []fakeUser{
			{ID: "admin1", Email: "admin@x.io", Name: "Ada", Role: "admin", Password: "secret1"},
			{ID: "uA", Email: "a@x.io", Name: "Alice", Role: "user", Password: "secret1"},
			{ID: "uB", Email: "b@x.io", Name: "Bob", Role: "user", Password: "secret1"},
		},
		tasks: []fakeTask{
			{ID: "t1", Title: "Quarterly report", Status: "pending", Assignee: "uA", Creator: "admin1", Due: testNow.AddDate(0, 0, 2), Created: testNow.AddDate(0, 0, -3)},
			{ID: "t2", Title: "Fix login page", Status: "in-progress", Assignee: "uB", Creator: "admin1", Due: testNow.AddDate(0, 0, 20), Created: testNow.AddDate(0, 0, -2)},
			{ID: "t3", Title: "Archive old files", Status: "completed", Assignee: "uA", Creator: "admin1", Due: testNow.AddDate(0, 0, 1), Created: testNow.AddDate(0, 0, -1)},
		},
		calls: map[string]int{},
	}
}

func (f *fakeAPI) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

func (f *fakeAPI) userWire(u fakeUser) map[string]any {
	return map[string]any{"_id": u.ID, "email": u.Email, "name": u.Name, "role": u.Role, "createdAt": "2025-01-01T00:00:00Z"}
}

func (f *fakeAPI) taskWire(t fakeTask) map[string]any {
	return map[string]any{
		"_id":        t.ID,
		"title":      t.Title,
		"status":     t.Status,
		"priority":   "medium",
		"dueDate":    t.Due.Format(time.RFC3339),
		"createdAt":  t.Created.Format(time.RFC3339),
		"assignedTo": map[string]any{"_id": t.Assignee},
		"createdBy":  t.Creator,
		"documents":  []any{},
	}
}

func (f *fakeAPI) principal(r *http.Request) (fakeUser, bool) {
	tok := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	for _, u := range f.users {
		if tok == "tok-"+u.ID {
			return u, true
		}
	}
	return fakeUser{}, false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()
	authed := func(h func(w http.ResponseWriter, r *http.Request, me fakeUser)) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			me, ok := f.principal(r)
			if !ok {
				writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "Not authorized, token failed"})
				return
			}
			h(w, r, me)
		}
	}
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body struct{ Email, Password string }
		_ = json.NewDecoder(r.Body).Decode(&body)
		for _, u := range f.users {
			if u.Email == body.Email && u.Password == body.Password {
				writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": map[string]any{"token": "tok-" + u.ID, "user": f.userWire(u)}})
				return
			}
		}
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "Invalid credentials"})
	})
	mux.HandleFunc("GET /api/auth/me", authed(func(w http.ResponseWriter, r *http.Request, me fakeUser) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": f.userWire(me)})
	}))
	mux.HandleFunc("GET /api/tasks", authed(func(w http.ResponseWriter, r *http.Request, me fakeUser) {
		out := []any{}
		for _, t := range f.tasks {
			out = append(out, f.taskWire(t))
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": out, "pagination": map[string]any{"page": 1, "limit": 100, "total": len(out), "pages": 1}})
	}))
	mux.HandleFunc("GET /api/tasks/{id}", authed(func(w http.ResponseWriter, r *http.Request, me fakeUser) {
		for _, t := range f.tasks {
			if t.ID == r.PathValue("id") {
				writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": f.taskWire(t)})
				return
			}
		}
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "message": "Task not found"})
	}))
	mux.HandleFunc("PATCH /api/tasks/{id}/status", authed(func(w http.ResponseWriter, r *http.Request, me fakeUser) {
		var body struct{ Status, Note string }
		_ = json.NewDecoder(r.Body).Decode(&body)
		for i, t := range f.tasks {
			if t.ID == r.PathValue("id") {
				f.tasks[i].Status = body.Status
				writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": f.taskWire(f.tasks[i])})
				return
			}
		}
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "message": "Task not found"})
	}))
	mux.HandleFunc("DELETE /api/tasks/{id}", authed(func(w http.ResponseWriter, r *http.Request, me fakeUser) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Task deleted"})
	}))
	mux.HandleFunc("GET /api/users/{id}/tasks", authed(func(w http.ResponseWriter, r *http.Request, me fakeUser) {
		out := []any{}
		for _, t := range f.tasks {
			if t.Assignee == r.PathValue("id") {
				out = append(out, f.taskWire(t))
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": out})
	}))
	mux.HandleFunc("GET /api/users", authed(func(w http.ResponseWriter, r *http.Request, me fakeUser) {
		out := []any{}
		for _, u := range f.users {
			out = append(out, f.userWire(u))
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": out[:1], "pagination": map[string]any{"page": 1, "limit": 1, "total": len(out), "pages": len(out)}})
	}))
	mux.HandleFunc("PUT /api/users/{id}", authed(func(w http.ResponseWriter, r *http.Request, me fakeUser) {
		for _, u := range f.users {
			if u.ID == r.PathValue("id") {
				writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": f.userWire(u)})
				return
			}
		}
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "message": "User not found"})
	}))
	mux.HandleFunc("DELETE /api/users/{id}", authed(func(w http.ResponseWriter, r *http.Request, me fakeUser) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "User deleted"})
	}))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.calls[r.Method+" "+r.URL.Path]++
		mux.ServeHTTP(w, r)
	})
}

type harness struct {
	api *fakeAPI
	srv *httptest.Server
	cfg *config.Config
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	api := newFakeAPI()
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)
	return &harness{api: api, srv: srv, cfg: &config.Config{BaseURL: srv.URL + "/api", StateDir: t.TempDir()}}
}

func (h *harness) open(t *testing.T) *App {
	t.Helper()
	a, err := New(context.Background(), h.cfg, nil, Options{HTTPClient: h.srv.Client(), Now: func() time.Time { return testNow }})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	if err := a.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	return a
}

func login(t *testing.T, a *App, email string) {
	t.Helper()
	if _, err := a.Session.Login(context.Background(), email, "secret1"); err != nil {
		t.Fatalf("Login(%s): %v", email, err)
	}
}

func TestRestart_RestoresSessionAndTasksWithoutNetwork(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	a := h.open(t)
	if st := a.Session.Snapshot(); st.IsAuthenticated {
		t.Fatalf("fresh state must be signed out: %+v", st)
	}
	login(t, a, "admin@x.io")
	if _, err := a.ListTasks(ctx, model.TaskQuery{}); err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	_ = a.Close()

	b := h.open(t)
	st := b.Session.Snapshot()
	if !st.IsAuthenticated || st.PrincipalID() != "admin1" {
		t.Fatalf("restored session: %+v", st)
	}
	if got := len(b.Tasks.Snapshot().Items); got != 3 {
		t.Fatalf("restored %d tasks, want 3", got)
	}
	if n := h.api.count("GET /api/auth/me"); n != 0 {
		t.Fatalf("restore fetched the profile %d times", n)
	}
}

func TestRestart_AfterLogoutIsSignedOut(t *testing.T) {
	h := newHarness(t)
	a := h.open(t)
	login(t, a, "a@x.io")
	if _, err := a.MyTasks(context.Background()); err != nil {
		t.Fatalf("MyTasks: %v", err)
	}
	a.Logout()
	if len(a.Tasks.Snapshot().Items) != 0 || a.Session.Token() != "" {
		t.Fatalf("logout left state behind")
	}
	_ = a.Close()

	b := h.open(t)
	if st := b.Session.Snapshot(); st.IsAuthenticated {
		t.Fatalf("session survived logout: %+v", st)
	}
	if len(b.Tasks.Snapshot().Items) != 0 {
		t.Fatalf("tasks survived logout")
	}
}

func TestRestore_ExpiredTokenClearsWithoutNetwork(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	db, err := persist.Open(ctx, h.cfg.StateDir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "uA", "exp": testNow.Add(-time.Hour).Unix()}).SignedString([]byte("k"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	p := model.Principal{ID: "uA", Email: "a@x.io", Role: model.RoleUser}
	if err := (persist.Tokens{DB: db}).SaveToken(expired); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}
	if err := db.SaveSnapshot(ctx, persist.Snapshot{
		Session: persist.SessionSnapshot{Principal: &p, IsAuthenticated: true},
		Tasks:   persist.TasksSnapshot{Items: []model.Task{{ID: "t1", Title: "x", AssignedTo: model.PrincipalRef{ID: "uA"}}}},
	}); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	_ = db.Close()

	a := h.open(t)
	if st := a.Session.Snapshot(); st.IsAuthenticated {
		t.Fatalf("expired token restored a session")
	}
	if len(a.Tasks.Snapshot().Items) != 0 {
		t.Fatalf("cached tasks kept for an expired session")
	}
	if n := h.api.count("GET /api/auth/me"); n != 0 {
		t.Fatalf("expired token reached the network %d times", n)
	}
}

func TestGuard_UserCannotMutateAnotherUsersTask(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.open(t)
	login(t, a, "b@x.io")

	// t1 belongs to Alice; Bob has it cached from an earlier view.
	var taskA model.Task
	if err := json.Unmarshal(mustJSON(t, h.api.taskWire(h.api.tasks[0])), &taskA); err != nil {
		t.Fatalf("decode: %v", err)
	}
	a.Tasks.Hydrate([]model.Task{taskA}, model.DefaultPagination())
	before := a.Tasks.Snapshot().Items

	_, err := a.TransitionTaskStatus(ctx, "t1", model.StatusCompleted, "done")
	if !errors.Is(err, apperr.ErrPermission) {
		t.Fatalf("status change: want permission error, got %v", err)
	}
	snap := a.Tasks.Snapshot()
	if snap.LastError != "You do not have permission to update this task's status" {
		t.Fatalf("LastError = %q", snap.LastError)
	}
	if snap.Items[0].Status != before[0].Status || snap.IsLoading {
		t.Fatalf("items changed on denial: %+v", snap)
	}

	if _, err := a.UpdateTask(ctx, "t1", model.TaskInput{Title: "mine now"}); !errors.Is(err, apperr.ErrPermission) {
		t.Fatalf("edit: want permission error, got %v", err)
	}
	if _, err := a.DeleteTask(ctx, "t1"); !errors.Is(err, apperr.ErrPermission) {
		t.Fatalf("delete: want permission error, got %v", err)
	}
	if _, err := a.ListTasks(ctx, model.TaskQuery{}); !errors.Is(err, apperr.ErrPermission) {
		t.Fatalf("list all: want permission error, got %v", err)
	}
	for _, key := range []string{"PATCH /api/tasks/t1/status", "PUT /api/tasks/t1", "DELETE /api/tasks/t1", "GET /api/tasks"} {
		if n := h.api.count(key); n != 0 {
			t.Fatalf("%s issued %d times despite the denial", key, n)
		}
	}
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func TestGuard_AssigneeCanChangeStatusOfUncachedTask(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.open(t)
	login(t, a, "a@x.io")

	got, err := a.TransitionTaskStatus(ctx, "t1", model.StatusInProgress, "started")
	if err != nil {
		t.Fatalf("TransitionTaskStatus: %v", err)
	}
	if got.Status != model.StatusInProgress {
		t.Fatalf("status = %q", got.Status)
	}
	if h.api.count("GET /api/tasks/t1") != 1 || h.api.count("PATCH /api/tasks/t1/status") != 1 {
		t.Fatalf("calls: %v", h.api.calls)
	}
}

func TestGuard_Users(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.open(t)
	login(t, a, "admin@x.io")

	if _, err := a.DeleteUser(ctx, "admin1"); !errors.Is(err, apperr.ErrPermission) {
		t.Fatalf("self delete: %v", err)
	}
	if got := a.Users.Snapshot().LastError; got != "You cannot delete your own account" {
		t.Fatalf("LastError = %q", got)
	}
	if h.api.count("DELETE /api/users/admin1") != 0 {
		t.Fatalf("self delete reached the server")
	}
	if _, err := a.DeleteUser(ctx, "uB"); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}

	a.Logout()
	login(t, a, "a@x.io")
	if _, err := a.UpdateUser(ctx, "uA", model.UserInput{Role: model.RoleAdmin}); !errors.Is(err, apperr.ErrPermission) {
		t.Fatalf("role change: %v", err)
	}
	if _, err := a.UpdateUser(ctx, "uB", model.UserInput{Name: "Robert"}); !errors.Is(err, apperr.ErrPermission) {
		t.Fatalf("update other user: %v", err)
	}
	if _, err := a.UpdateUser(ctx, "uA", model.UserInput{Name: "Alice B"}); err != nil {
		t.Fatalf("self update: %v", err)
	}
	if _, err := a.CreateUser(ctx, model.UserInput{Email: "c@x.io", Password: "secret1"}); !errors.Is(err, apperr.ErrPermission) {
		t.Fatalf("create user: %v", err)
	}
	if h.api.count("PUT /api/users/uB") != 0 || h.api.count("PUT /api/users/uA") != 1 {
		t.Fatalf("calls: %v", h.api.calls)
	}
}

func TestGuard_SignedOut(t *testing.T) {
	h := newHarness(t)
	a := h.open(t)
	_, err := a.CreateTask(context.Background(), model.TaskInput{Title: "x"})
	if !errors.Is(err, apperr.ErrAuth) {
		t.Fatalf("want auth error, got %v", err)
	}
	d, c, known := a.Access("/users/42/edit")
	if d.Outcome != perm.Deny || d.Reason != perm.NotAuthenticated || c != perm.AdminOnly || !known {
		t.Fatalf("Access = %v %v %v", d, c, known)
	}
	if d, _, _ := a.Access("/login"); !d.Allowed() {
		t.Fatalf("public route denied")
	}
}

func TestDashboard(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.open(t)

	login(t, a, "admin@x.io")
	d, err := a.Dashboard(ctx)
	if err != nil {
		t.Fatalf("admin Dashboard: %v", err)
	}
	if !d.Admin || d.Counts.Total != 3 || d.Counts.Completed != 1 || d.Users == nil || *d.Users != 3 {
		t.Fatalf("admin dashboard: %+v", d)
	}
	if len(d.Upcoming) != 2 || d.Upcoming[0].ID != "t1" || d.Upcoming[1].ID != "t2" {
		t.Fatalf("admin upcoming: %+v", d.Upcoming)
	}
	if d.Recent[0].ID != "t3" {
		t.Fatalf("recent should start with the newest task: %+v", d.Recent)
	}

	a.Logout()
	login(t, a, "a@x.io")
	d, err = a.Dashboard(ctx)
	if err != nil {
		t.Fatalf("user Dashboard: %v", err)
	}
	if d.Admin || d.Users != nil || d.Counts.Total != 2 || d.Counts.Pending != 1 {
		t.Fatalf("user dashboard: %+v", d)
	}
	// t3 is completed and t2 belongs to Bob.
	if len(d.Upcoming) != 1 || d.Upcoming[0].ID != "t1" {
		t.Fatalf("user upcoming: %+v", d.Upcoming)
	}
	if h.api.count("GET /api/auth/me") != 1 {
		t.Fatalf("user dashboard should refresh the profile once")
	}
}
