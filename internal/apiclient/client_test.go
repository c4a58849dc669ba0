package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"taskdash/internal/apperr"
	"taskdash/internal/model"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestClient(t *testing.T, h http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL+"/api", append([]Option{WithHTTPClient(srv.Client())}, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNew_RejectsBadBaseURL(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "   ", "ftp://x", "::nope"} {
		if _, err := New(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestLogin_SendsCredentialsWithoutBearer(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/auth/login" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "" {
			t.Errorf("login must not carry a bearer token, got %q", got)
		}
		if r.Header.Get("X-Request-ID") == "" {
			t.Errorf("missing X-Request-ID")
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["email"] != "a@x.io" || body["password"] != "secret1" {
			t.Errorf("unexpected body: %#v", body)
		}
		writeJSON(w, 200, map[string]any{
			"success": true,
			"data": map[string]any{
				"token": "tok-1",
				"user":  map[string]any{"_id": "u1", "email": "a@x.io", "role": "admin"},
			},
		})
	}, WithTokenSource(func() string { return "stale" }))

	res, err := c.Login(context.Background(), "a@x.io", "secret1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.Token != "tok-1" || res.Principal.ID != "u1" || res.Principal.Role != model.RoleAdmin {
		t.Fatalf("unexpected result: %#v", res)
	}
}

func TestLogin_MergedTokenShape(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]any{"_id": "u2", "email": "b@x.io", "name": "B", "token": "tok-2"})
	})
	res, err := c.Login(context.Background(), "b@x.io", "secret1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.Token != "tok-2" || res.Principal.Email != "b@x.io" {
		t.Fatalf("unexpected result: %#v", res)
	}
}

func TestErrors_StatusMapping(t *testing.T) {
	t.Parallel()
	cases := []struct {
		status int
		body   any
		want   error
		msg    string
	}{
		{400, map[string]any{"message": "Title is required"}, apperr.ErrValidation, "Title is required"},
		{422, map[string]any{"error": "bad date"}, apperr.ErrValidation, "bad date"},
		{401, map[string]any{"message": "Invalid credentials"}, apperr.ErrAuth, "Invalid credentials"},
		{403, map[string]any{"message": "Admins only"}, apperr.ErrPermission, "Admins only"},
		{404, map[string]any{}, apperr.ErrNotFound, "Failed to fetch task"},
		{409, map[string]any{"message": "Email already exists"}, apperr.ErrConflict, "Email already exists"},
		{500, "oops", apperr.ErrFetch, "Failed to fetch task"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			t.Parallel()
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tc.status, tc.body)
			})
			_, err := c.GetTask(context.Background(), "t1")
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if err.Error() != tc.msg {
				t.Fatalf("message: got %q want %q", err.Error(), tc.msg)
			}
			var ae *apperr.Error
			if !errors.As(err, &ae) || ae.Status != tc.status {
				t.Fatalf("expected status %d on %#v", tc.status, err)
			}
		})
	}
}

func TestErrors_NetworkFailure(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	base := srv.URL
	srv.Close()

	c, err := New(base)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = c.ListTasks(context.Background(), model.TaskQuery{})
	if !errors.Is(err, apperr.ErrNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}
	if errors.Is(err, apperr.ErrAuth) {
		t.Fatalf("network error must not look like an auth error")
	}
	if !strings.HasPrefix(err.Error(), "Failed to fetch tasks") {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestErrors_CancelledContext(t *testing.T) {
	t.Parallel()
	block := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	})
	defer close(block)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := c.Me(ctx)
	if !errors.Is(err, apperr.ErrNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}
}

func TestDecode_MalformedPayloadIsFetchError(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		// Task without a title.
		writeJSON(w, 200, map[string]any{"data": map[string]any{"_id": "t1"}})
	})
	_, err := c.GetTask(context.Background(), "t1")
	if !errors.Is(err, apperr.ErrFetch) {
		t.Fatalf("expected fetch error, got %v", err)
	}
	if !errors.Is(err, model.ErrMalformed) {
		t.Fatalf("expected malformed cause, got %v", err)
	}
}

func TestListTasks_QueryAndPagination(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization: %q", got)
		}
		q := r.URL.Query()
		if q.Get("page") != "2" || q.Get("limit") != "10" || q.Get("status") != "in-progress" || q.Get("startDate") != "2025-03-01" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		if q.Has("priority") {
			t.Errorf("unset filters must be omitted")
		}
		writeJSON(w, 200, map[string]any{
			"data": []any{
				map[string]any{"_id": "t1", "title": "One", "status": "in-progress", "assignedTo": "u1"},
				map[string]any{"_id": "t2", "title": "Two", "assignedTo": map[string]any{"_id": "u2", "name": "Bo"}},
			},
			"pagination": map[string]any{"page": 2, "limit": 10, "total": 12, "pages": 2},
		})
	}, WithTokenSource(func() string { return "tok" }))

	page, err := c.ListTasks(context.Background(), model.TaskQuery{
		Page:   2,
		Filter: model.TaskFilter{Status: model.StatusInProgress, StartDate: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)},
	})
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(page.Items) != 2 || page.Pagination.Total != 12 || page.Pagination.Pages != 2 {
		t.Fatalf("unexpected page: %#v", page)
	}
	if page.Items[0].AssignedTo.ID != "u1" || page.Items[1].AssignedTo.Name != "Bo" {
		t.Fatalf("assignee not normalized: %#v", page.Items)
	}
}

func TestListUsers_BareArraySynthesizesPagination(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, []any{map[string]any{"_id": "u1", "email": "a@x.io"}})
	})
	page, err := c.ListUsers(context.Background(), model.UserQuery{})
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	want := model.Pagination{Page: 1, Limit: 10, Total: 1, Pages: 1}
	if page.Pagination != want {
		t.Fatalf("pagination: got %#v want %#v", page.Pagination, want)
	}
}

func TestCreateTask_Multipart(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
			return
		}
		if r.FormValue("title") != "Write report" || r.FormValue("dueDate") != "2025-04-02" || r.FormValue("assignedTo") != "u1" {
			t.Errorf("unexpected fields: %#v", r.MultipartForm.Value)
		}
		if _, ok := r.MultipartForm.Value["removedFiles"]; ok {
			t.Errorf("removedFiles must not be sent on create")
		}
		docs := r.MultipartForm.File["documents"]
		if len(docs) != 2 {
			t.Errorf("expected 2 document parts, got %d", len(docs))
		} else if docs[0].Header.Get("Content-Type") != "application/pdf" {
			t.Errorf("content type: %q", docs[0].Header.Get("Content-Type"))
		}
		writeJSON(w, 201, map[string]any{"data": map[string]any{"_id": "t9", "title": "Write report"}})
	})
	in := model.TaskInput{
		Title:      "Write report",
		DueDate:    time.Date(2025, 4, 2, 0, 0, 0, 0, time.UTC),
		Priority:   model.PriorityHigh,
		Status:     model.StatusPending,
		AssignedTo: "u1",
		Documents: []model.Upload{
			model.UploadFromBytes("a.pdf", "application/pdf", []byte("%PDF-1")),
			model.UploadFromBytes("b.pdf", "application/pdf", []byte("%PDF-2")),
		},
	}
	task, err := c.CreateTask(context.Background(), in)
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if task.ID != "t9" {
		t.Fatalf("unexpected task %#v", task)
	}
}

func TestUpdateTask_RemovedFiles(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/api/tasks/t1" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
			return
		}
		var ids []string
		if err := json.Unmarshal([]byte(r.FormValue("removedFiles")), &ids); err != nil || len(ids) != 2 || ids[1] != "d2" {
			t.Errorf("removedFiles: %q (%v)", r.FormValue("removedFiles"), err)
		}
		writeJSON(w, 200, map[string]any{"data": map[string]any{"_id": "t1", "title": "T"}})
	})
	_, err := c.UpdateTask(context.Background(), "t1", model.TaskInput{Title: "T", RemovedDocumentIDs: []string{"d1", "d2"}})
	if err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}
}

func TestUpdateTaskStatus_Body(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch || r.URL.Path != "/api/tasks/t1/status" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["status"] != "completed" || body["note"] != "shipped" {
			t.Errorf("unexpected body %#v", body)
		}
		writeJSON(w, 200, map[string]any{"data": map[string]any{"_id": "t1", "title": "T", "status": "completed", "note": "shipped"}})
	})
	task, err := c.UpdateTaskStatus(context.Background(), "t1", model.StatusCompleted, "shipped")
	if err != nil {
		t.Fatalf("UpdateTaskStatus: %v", err)
	}
	if task.Status != model.StatusCompleted || task.Note != "shipped" {
		t.Fatalf("unexpected task %#v", task)
	}
}

func TestDeleteTask_IgnoresBody(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	id, err := c.DeleteTask(context.Background(), " t1 ")
	if err != nil || id != "t1" {
		t.Fatalf("DeleteTask: %q %v", id, err)
	}
}

func TestDownloadDocument_Streams(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tasks/t1/documents/d1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = io.WriteString(w, "%PDF-1.7 body")
	})
	var buf bytes.Buffer
	n, err := c.DownloadDocument(context.Background(), "t1", "d1", &buf)
	if err != nil {
		t.Fatalf("DownloadDocument: %v", err)
	}
	if n != int64(buf.Len()) || buf.String() != "%PDF-1.7 body" {
		t.Fatalf("unexpected download %d %q", n, buf.String())
	}
}

func TestMetrics_CountsOutcomes(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	status := http.StatusOK
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, status, map[string]any{"data": map[string]any{"_id": "u1", "email": "a@x.io"}})
	}, WithMetrics(reg))

	if _, err := c.GetUser(context.Background(), "u1"); err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	status = http.StatusNotFound
	_, _ = c.GetUser(context.Background(), "u1")

	if got := testutil.ToFloat64(c.metrics.requests.WithLabelValues("GET", "/users/:id", "ok")); got != 1 {
		t.Fatalf("ok count = %v", got)
	}
	if got := testutil.ToFloat64(c.metrics.requests.WithLabelValues("GET", "/users/:id", "not_found")); got != 1 {
		t.Fatalf("not_found count = %v", got)
	}

	// A second client on the same registry reuses the collectors.
	c2, err := New("http://example.invalid", WithMetrics(reg))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c2.metrics.requests != c.metrics.requests {
		t.Fatalf("expected shared collector")
	}
}

func TestCreateTask_UnreadableDocumentIsLocalError(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeJSON(w, 201, map[string]any{"data": map[string]any{"_id": "t9", "title": "x"}})
	})
	in := model.TaskInput{
		Title:      "Write report",
		DueDate:    time.Date(2025, 4, 2, 0, 0, 0, 0, time.UTC),
		AssignedTo: "u1",
		Documents: []model.Upload{{
			Name:        "gone.pdf",
			ContentType: "application/pdf",
			Open:        func() (io.ReadCloser, error) { return nil, os.ErrNotExist },
		}},
	}
	_, err := c.CreateTask(context.Background(), in)
	if !errors.Is(err, apperr.ErrValidation) || errors.Is(err, apperr.ErrFetch) {
		t.Fatalf("expected a local validation error, got %#v", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected the file error as cause, got %v", err)
	}
	if msg := err.Error(); !strings.Contains(msg, `open document "gone.pdf"`) || strings.Contains(msg, "malformed") {
		t.Fatalf("unexpected message %q", msg)
	}
	if _, err := c.UpdateTask(context.Background(), "t1", in); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("update: expected a local validation error, got %v", err)
	}
	if n := hits.Load(); n != 0 {
		t.Fatalf("nothing should be sent, got %d requests", n)
	}
}

func TestWithTimeout_DoesNotModifyCallerClient(t *testing.T) {
	t.Parallel()
	hc := &http.Client{}
	c, err := New("http://localhost:5000/api", WithHTTPClient(hc), WithTimeout(3*time.Second))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if hc.Timeout != 0 {
		t.Fatalf("caller's client was modified: timeout %v", hc.Timeout)
	}
	if c.httpClient == hc || c.httpClient.Timeout != 3*time.Second {
		t.Fatalf("expected a private copy with the timeout, got %p timeout %v", c.httpClient, c.httpClient.Timeout)
	}
}
