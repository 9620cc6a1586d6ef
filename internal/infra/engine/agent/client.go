package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	domain "github.com/bryanwahyu/essay-coach-gateway/internal/domain/grading"
	"github.com/bryanwahyu/essay-coach-gateway/internal/middleware"
)

const (
	runPath    = "/ai-feedback/agent/workflows/run/"
	statusPath = "/ai-feedback/agent/workflows/run/{run_id}/status/"

	defaultTimeout = 60 * time.Second
)

// Options for the agent workflow client
type Options struct {
	BaseURL    string // e.g. http://127.0.0.1:8000/api/v2
	Token      string // service credential, used when the request carries none
	AuthScheme string // "Token" or "Bearer"
	Timeout    time.Duration
	Debug      bool
}

// HTTPError is a non-2xx answer from the backend
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Body)
}

// Client talks to the grading backend that fronts the AI workflow engine.
// It never retries: every Submit and Status is exactly one request.
type Client struct {
	http       *resty.Client
	token      string
	authScheme string
}

func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	scheme := opts.AuthScheme
	if scheme == "" {
		scheme = "Token"
	}
	c := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetRetryCount(0)
	if opts.Debug {
		c.SetDebug(true)
	}
	return &Client{http: c, token: opts.Token, authScheme: scheme}
}

func (c *Client) request(ctx context.Context) *resty.Request {
	r := c.http.R().SetContext(ctx)
	token := middleware.CredentialFromContext(ctx)
	if token == "" {
		token = c.token
	}
	if token != "" {
		r.SetHeader("Authorization", c.authScheme+" "+token)
	}
	return r
}

// Submit implementasi Engine.Submit
func (c *Client) Submit(ctx context.Context, req domain.SubmitRequest) (domain.SubmitResponse, error) {
	var out domain.SubmitResponse
	resp, err := c.request(ctx).
		SetBody(req).
		SetResult(&out).
		Post(runPath)
	if err != nil {
		return domain.SubmitResponse{}, fmt.Errorf("submit workflow run: %w", err)
	}
	if resp.IsError() {
		return domain.SubmitResponse{}, &HTTPError{StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	return out, nil
}

// Status implementasi Engine.Status
func (c *Client) Status(ctx context.Context, id domain.RunID) (domain.StatusResponse, error) {
	var out domain.StatusResponse
	resp, err := c.request(ctx).
		SetPathParam("run_id", string(id)).
		SetResult(&out).
		Get(statusPath)
	if err != nil {
		return domain.StatusResponse{}, fmt.Errorf("get workflow status: %w", err)
	}
	if resp.IsError() {
		return domain.StatusResponse{}, &HTTPError{StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	return out, nil
}

// Check reports whether the backend answers at all. Any HTTP status counts
// as reachable; only transport errors fail.
func (c *Client) Check(ctx context.Context) error {
	if _, err := c.http.R().SetContext(ctx).Get("/"); err != nil {
		return fmt.Errorf("backend unreachable: %w", err)
	}
	return nil
}
