package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"taskdash/internal/model"
)

func taskPath(id string) string { return "/tasks/" + url.PathEscape(strings.TrimSpace(id)) }

func taskQueryValues(q model.TaskQuery) url.Values {
	q = q.Normalized()
	v := url.Values{}
	v.Set("page", strconv.Itoa(q.Page))
	v.Set("limit", strconv.Itoa(q.Limit))
	f := q.Filter
	setIf(v, "status", string(f.Status))
	setIf(v, "priority", string(f.Priority))
	setIf(v, "assignedTo", f.AssignedTo)
	setIf(v, "startDate", formatDate(f.StartDate))
	setIf(v, "endDate", formatDate(f.EndDate))
	setIf(v, "search", f.Search)
	setIf(v, "sortBy", q.SortBy)
	setIf(v, "sortDir", string(q.SortDir))
	return v
}

func setIf(v url.Values, k, val string) {
	if s := strings.TrimSpace(val); s != "" {
		v.Set(k, s)
	}
}

// decodePage decodes a list envelope. A missing pagination block is synthesized from
// the item count so callers always see a consistent shape.
func decodePage[T any](c *Client, cl call, env envelope, q model.Query[struct{}]) (model.Page[T], error) {
	items, err := decodeData[[]T](c, cl, env)
	if err != nil {
		return model.Page[T]{}, err
	}
	if items == nil {
		items = []T{}
	}
	p := model.Pagination{Page: q.Page, Limit: q.Limit, Total: len(items), Pages: 1}
	if len(env.Pagination) > 0 && string(env.Pagination) != "null" {
		if err := json.Unmarshal(env.Pagination, &p); err != nil {
			return model.Page[T]{}, c.malformed(cl, err)
		}
	}
	return model.Page[T]{Items: items, Pagination: p}, nil
}

func pageOf[F any](q model.Query[F]) model.Query[struct{}] {
	q = q.Normalized()
	return model.Query[struct{}]{Page: q.Page, Limit: q.Limit}
}

func (c *Client) ListTasks(ctx context.Context, q model.TaskQuery) (model.Page[model.Task], error) {
	cl := call{
		op:       "tasks.list",
		method:   http.MethodGet,
		route:    "/tasks",
		path:     "/tasks",
		query:    taskQueryValues(q),
		fallback: "Failed to fetch tasks",
	}
	env, err := c.do(ctx, cl)
	if err != nil {
		return model.Page[model.Task]{}, err
	}
	return decodePage[model.Task](c, cl, env, pageOf(q))
}

func (c *Client) GetTask(ctx context.Context, id string) (model.Task, error) {
	cl := call{
		op:       "tasks.get",
		method:   http.MethodGet,
		route:    "/tasks/:id",
		path:     taskPath(id),
		fallback: "Failed to fetch task",
	}
	env, err := c.do(ctx, cl)
	if err != nil {
		return model.Task{}, err
	}
	return decodeData[model.Task](c, cl, env)
}

func (c *Client) CreateTask(ctx context.Context, in model.TaskInput) (model.Task, error) {
	body, ctype, err := encodeTaskForm(in, false)
	cl := call{
		op:       "tasks.create",
		method:   http.MethodPost,
		route:    "/tasks",
		path:     "/tasks",
		fallback: "Failed to create task",
	}
	if err != nil {
		return model.Task{}, c.encodeFailed(cl, err)
	}
	cl.body, cl.ctype = body, ctype
	env, err := c.do(ctx, cl)
	if err != nil {
		return model.Task{}, err
	}
	return decodeData[model.Task](c, cl, env)
}

func (c *Client) UpdateTask(ctx context.Context, id string, in model.TaskInput) (model.Task, error) {
	body, ctype, err := encodeTaskForm(in, true)
	cl := call{
		op:       "tasks.update",
		method:   http.MethodPut,
		route:    "/tasks/:id",
		path:     taskPath(id),
		fallback: "Failed to update task",
	}
	if err != nil {
		return model.Task{}, c.encodeFailed(cl, err)
	}
	cl.body, cl.ctype = body, ctype
	env, err := c.do(ctx, cl)
	if err != nil {
		return model.Task{}, err
	}
	return decodeData[model.Task](c, cl, env)
}

func (c *Client) UpdateTaskStatus(ctx context.Context, id string, status model.Status, note string) (model.Task, error) {
	cl := call{
		op:     "tasks.status",
		method: http.MethodPatch,
		route:  "/tasks/:id/status",
		path:   taskPath(id) + "/status",
		json: struct {
			Status model.Status `json:"status"`
			Note   string       `json:"note"`
		}{status, note},
		fallback: "Failed to update task status",
	}
	env, err := c.do(ctx, cl)
	if err != nil {
		return model.Task{}, err
	}
	return decodeData[model.Task](c, cl, env)
}

// DeleteTask returns the deleted id. The response body is ignored.
func (c *Client) DeleteTask(ctx context.Context, id string) (string, error) {
	cl := call{
		op:       "tasks.delete",
		method:   http.MethodDelete,
		route:    "/tasks/:id",
		path:     taskPath(id),
		fallback: "Failed to delete task",
	}
	if _, err := c.do(ctx, cl); err != nil {
		return "", err
	}
	return strings.TrimSpace(id), nil
}

func (c *Client) ListUserTasks(ctx context.Context, userID string) ([]model.Task, error) {
	cl := call{
		op:       "users.tasks",
		method:   http.MethodGet,
		route:    "/users/:id/tasks",
		path:     userPath(userID) + "/tasks",
		fallback: "Failed to fetch user tasks",
	}
	env, err := c.do(ctx, cl)
	if err != nil {
		return nil, err
	}
	out, err := decodeData[[]model.Task](c, cl, env)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []model.Task{}
	}
	return out, nil
}

// DownloadDocument streams an attachment into w and returns the byte count.
func (c *Client) DownloadDocument(ctx context.Context, taskID, docID string, w io.Writer) (int64, error) {
	if w == nil {
		return 0, errors.New("apiclient: nil writer")
	}
	cl := call{
		op:       "tasks.document",
		method:   http.MethodGet,
		route:    "/tasks/:id/documents/:docId",
		path:     taskPath(taskID) + "/documents/" + url.PathEscape(strings.TrimSpace(docID)),
		fallback: "Failed to download file",
	}
	resp, err := c.send(ctx, cl)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, c.networkError(cl, err)
	}
	return n, nil
}
