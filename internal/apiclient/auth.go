package apiclient

import (
	"context"
	"net/http"

	"taskdash/internal/model"
)

type credentials struct {
	Name     string `json:"name,omitempty"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (c *Client) Register(ctx context.Context, name, email, password string) (model.AuthResult, error) {
	cl := call{
		op:       "auth.register",
		method:   http.MethodPost,
		route:    "/auth/register",
		path:     "/auth/register",
		json:     credentials{Name: name, Email: email, Password: password},
		fallback: "Registration failed",
		noAuth:   true,
	}
	return c.authenticate(ctx, cl)
}

func (c *Client) Login(ctx context.Context, email, password string) (model.AuthResult, error) {
	cl := call{
		op:       "auth.login",
		method:   http.MethodPost,
		route:    "/auth/login",
		path:     "/auth/login",
		json:     credentials{Email: email, Password: password},
		fallback: "Login failed",
		noAuth:   true,
	}
	return c.authenticate(ctx, cl)
}

func (c *Client) authenticate(ctx context.Context, cl call) (model.AuthResult, error) {
	env, err := c.do(ctx, cl)
	if err != nil {
		return model.AuthResult{}, err
	}
	res, err := model.DecodeAuthResult(env.Data)
	if err != nil {
		return model.AuthResult{}, c.malformed(cl, err)
	}
	return res, nil
}

// Me returns the principal the current token belongs to.
func (c *Client) Me(ctx context.Context) (model.Principal, error) {
	cl := call{
		op:       "auth.me",
		method:   http.MethodGet,
		route:    "/auth/me",
		path:     "/auth/me",
		fallback: "Failed to fetch user profile",
	}
	env, err := c.do(ctx, cl)
	if err != nil {
		return model.Principal{}, err
	}
	return decodeData[model.Principal](c, cl, env)
}
