// Package apiclient is the typed HTTP adapter for the task API. It owns URL building,
// bearer-token injection, envelope decoding and the mapping of responses onto the
// apperr taxonomy. It holds no resource state.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"taskdash/internal/apperr"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout = 30 * time.Second
	// Responses are JSON except document downloads, which stream.
	maxResponseBytes = 16 << 20
)

// Client performs requests against one API base URL.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	token      func() string
	logger     *slog.Logger
	limiter    *rate.Limiter
	metrics    *metrics
}

type Option func(*Client)

// WithHTTPClient replaces the default client. Tests use this to point at httptest servers.
// The client is copied, so later options never modify the caller's value.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			cp := *hc
			c.httpClient = &cp
		}
	}
}

// WithTokenSource sets the function consulted for the bearer token on every request.
func WithTokenSource(fn func() string) Option {
	return func(c *Client) { c.token = fn }
}

// WithLogger sets the structured logger. If nil, slog.Default() is used.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRateLimit throttles outbound requests. A limit <= 0 disables throttling.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(c *Client) {
		if limit <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(limit, burst)
	}
}

// WithMetrics registers request collectors on reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *Client) {
		if reg != nil {
			c.metrics = newMetrics(reg)
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("apiclient: base URL is required")
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("apiclient: invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("apiclient: base URL must be http(s): %s", baseURL)
	}
	c := &Client{
		baseURL:    u,
		httpClient: &http.Client{Timeout: defaultTimeout},
		token:      func() string { return "" },
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) BaseURL() string { return c.baseURL.String() }

// envelope is the uniform response shape: {success, message, data, pagination}.
type envelope struct {
	Message    string          `json:"message"`
	Data       json.RawMessage `json:"data"`
	Pagination json.RawMessage `json:"pagination"`
}

// call describes one request. route is the templated path used for metrics and logs.
type call struct {
	op       string
	method   string
	route    string
	path     string
	query    url.Values
	json     any
	body     io.Reader
	ctype    string
	fallback string
	noAuth   bool
}

func (c *Client) url(path string, q url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func (c *Client) newRequest(ctx context.Context, cl call) (*http.Request, string, error) {
	body := cl.body
	ctype := cl.ctype
	if cl.json != nil {
		b, err := json.Marshal(cl.json)
		if err != nil {
			return nil, "", fmt.Errorf("apiclient: encode %s body: %w", cl.op, err)
		}
		body = bytes.NewReader(b)
		ctype = "application/json"
	}
	req, err := http.NewRequestWithContext(ctx, cl.method, c.url(cl.path, cl.query), body)
	if err != nil {
		return nil, "", fmt.Errorf("apiclient: build %s request: %w", cl.op, err)
	}
	reqID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", reqID)
	if ctype != "" {
		req.Header.Set("Content-Type", ctype)
	}
	if !cl.noAuth {
		if tok := strings.TrimSpace(c.token()); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}
	return req, reqID, nil
}

// send performs the request and returns the raw response for 2xx answers. The caller
// closes the body. Non-2xx answers are converted to *apperr.Error here.
func (c *Client) send(ctx context.Context, cl call) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, c.networkError(cl, err)
		}
	}
	req, reqID, err := c.newRequest(ctx, cl)
	if err != nil {
		return nil, &apperr.Error{Kind: apperr.KindFetch, Message: cl.fallback, Op: cl.op, Err: err}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		c.metrics.observe(cl.method, cl.route, "network", elapsed)
		c.logger.Debug("api request failed", "op", cl.op, "method", cl.method, "route", cl.route, "request_id", reqID, "error", err)
		return nil, c.networkError(cl, err)
	}
	c.logger.Debug("api request", "op", cl.op, "method", cl.method, "route", cl.route, "status", resp.StatusCode, "duration", elapsed, "request_id", reqID)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		c.metrics.observe(cl.method, cl.route, "ok", elapsed)
		return resp, nil
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	kind := apperr.KindForStatus(resp.StatusCode)
	c.metrics.observe(cl.method, cl.route, string(kind), elapsed)
	return nil, &apperr.Error{
		Kind:    kind,
		Message: serverMessage(raw, cl.fallback),
		Status:  resp.StatusCode,
		Op:      cl.op,
	}
}

func (c *Client) networkError(cl call, err error) error {
	msg := cl.fallback
	switch {
	case errors.Is(err, context.Canceled):
		msg += ": request cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		msg += ": request timed out"
	default:
		msg += ": " + err.Error()
	}
	return &apperr.Error{Kind: apperr.KindNetwork, Message: msg, Op: cl.op, Err: err}
}

// do performs a JSON call and returns the decoded envelope.
func (c *Client) do(ctx context.Context, cl call) (envelope, error) {
	resp, err := c.send(ctx, cl)
	if err != nil {
		return envelope{}, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return envelope{}, c.networkError(cl, err)
	}
	env, err := decodeEnvelope(raw)
	if err != nil {
		return envelope{}, c.malformed(cl, err)
	}
	return env, nil
}

// encodeFailed reports a request body that could not be built locally, such as a
// document that cannot be read. Nothing was sent.
func (c *Client) encodeFailed(cl call, err error) error {
	return &apperr.Error{
		Kind:    apperr.KindValidation,
		Message: cl.fallback + ": " + err.Error(),
		Op:      cl.op,
		Err:     err,
	}
}

func (c *Client) malformed(cl call, err error) error {
	return &apperr.Error{
		Kind:    apperr.KindFetch,
		Message: cl.fallback + ": malformed response",
		Op:      cl.op,
		Err:     err,
	}
}

// decodeEnvelope tolerates servers that answer with bare data (an array, or an object
// without a data key).
func decodeEnvelope(raw []byte) (envelope, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return envelope{}, nil
	}
	if raw[0] == '[' {
		return envelope{Data: raw}, nil
	}
	if raw[0] != '{' {
		return envelope{}, errors.New("response is not JSON")
	}
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keys); err != nil {
		return envelope{}, err
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return envelope{}, err
	}
	if _, ok := keys["data"]; !ok {
		env.Data = raw
	}
	return env, nil
}

func serverMessage(raw []byte, fallback string) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(raw), &body); err == nil {
		if m := strings.TrimSpace(body.Message); m != "" {
			return m
		}
		if m := strings.TrimSpace(body.Error); m != "" {
			return m
		}
	}
	return fallback
}

// decodeData unmarshals env.Data into T; schema failures become fetch errors.
func decodeData[T any](c *Client, cl call, env envelope) (T, error) {
	var out T
	if len(env.Data) == 0 || bytes.Equal(env.Data, []byte("null")) {
		return out, c.malformed(cl, errors.New("missing data"))
	}
	if err := json.Unmarshal(env.Data, &out); err != nil {
		return out, c.malformed(cl, err)
	}
	return out, nil
}
