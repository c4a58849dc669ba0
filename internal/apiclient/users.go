package apiclient

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"taskdash/internal/model"
)

func userPath(id string) string { return "/users/" + url.PathEscape(strings.TrimSpace(id)) }

func userQueryValues(q model.UserQuery) url.Values {
	q = q.Normalized()
	v := url.Values{}
	v.Set("page", strconv.Itoa(q.Page))
	v.Set("limit", strconv.Itoa(q.Limit))
	setIf(v, "email", q.Filter.Email)
	setIf(v, "role", string(q.Filter.Role))
	setIf(v, "search", q.Filter.Search)
	setIf(v, "sortBy", q.SortBy)
	setIf(v, "sortDir", string(q.SortDir))
	return v
}

func (c *Client) ListUsers(ctx context.Context, q model.UserQuery) (model.Page[model.User], error) {
	cl := call{
		op:       "users.list",
		method:   http.MethodGet,
		route:    "/users",
		path:     "/users",
		query:    userQueryValues(q),
		fallback: "Failed to fetch users",
	}
	env, err := c.do(ctx, cl)
	if err != nil {
		return model.Page[model.User]{}, err
	}
	return decodePage[model.User](c, cl, env, pageOf(q))
}

func (c *Client) GetUser(ctx context.Context, id string) (model.User, error) {
	cl := call{
		op:       "users.get",
		method:   http.MethodGet,
		route:    "/users/:id",
		path:     userPath(id),
		fallback: "Failed to fetch user",
	}
	env, err := c.do(ctx, cl)
	if err != nil {
		return model.User{}, err
	}
	return decodeData[model.User](c, cl, env)
}

func (c *Client) CreateUser(ctx context.Context, in model.UserInput) (model.User, error) {
	cl := call{
		op:       "users.create",
		method:   http.MethodPost,
		route:    "/users",
		path:     "/users",
		json:     in,
		fallback: "Failed to create user",
	}
	env, err := c.do(ctx, cl)
	if err != nil {
		return model.User{}, err
	}
	return decodeData[model.User](c, cl, env)
}

func (c *Client) UpdateUser(ctx context.Context, id string, in model.UserInput) (model.User, error) {
	cl := call{
		op:       "users.update",
		method:   http.MethodPut,
		route:    "/users/:id",
		path:     userPath(id),
		json:     in,
		fallback: "Failed to update user",
	}
	env, err := c.do(ctx, cl)
	if err != nil {
		return model.User{}, err
	}
	return decodeData[model.User](c, cl, env)
}

func (c *Client) DeleteUser(ctx context.Context, id string) (string, error) {
	cl := call{
		op:       "users.delete",
		method:   http.MethodDelete,
		route:    "/users/:id",
		path:     userPath(id),
		fallback: "Failed to delete user",
	}
	if _, err := c.do(ctx, cl); err != nil {
		return "", err
	}
	return strings.TrimSpace(id), nil
}
