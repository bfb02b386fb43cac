// Package backend is the HTTP client for the interview persistence API.
package backend

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/vango-go/interview-live/pkg/live"
)

// PersistenceError is a classified backend failure.
type PersistenceError struct {
	Op        string
	Status    int
	Message   string
	Retryable bool
	Err       error
}

func (e *PersistenceError) Error() string {
	if e == nil {
		return ""
	}
	if e.Status > 0 {
		return fmt.Sprintf("backend %s: status %d: %s", e.Op, e.Status, e.Message)
	}
	return fmt.Sprintf("backend %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ClientConfig configures the backend client.
type ClientConfig struct {
	// BaseURL is the API root, for example https://api.example.com.
	BaseURL string

	// APIKey is sent as a bearer token.
	APIKey string

	// Timeout bounds each request. Default: 10s.
	Timeout time.Duration

	// RetryCount is how often transient failures are retried by the
	// HTTP layer. Default: 2.
	RetryCount int

	Logger *slog.Logger
}

// Client talks to the interview persistence API. It implements
// live.Gateway.
type Client struct {
	http   *resty.Client
	logger *slog.Logger
}

// NewClient returns a client with the config's defaults filled in.
func NewClient(cfg ClientConfig) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("backend base URL must not be empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RetryCount < 0 {
		cfg.RetryCount = 0
	} else if cfg.RetryCount == 0 {
		cfg.RetryCount = 2
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	http := resty.New().
		SetBaseURL(base).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetHeader("Content-Type", "application/json")
	if strings.TrimSpace(cfg.APIKey) != "" {
		http.SetAuthToken(strings.TrimSpace(cfg.APIKey))
	}

	return &Client{http: http, logger: cfg.Logger}, nil
}

// Bootstrap fetches the interview plan.
func (c *Client) Bootstrap(ctx context.Context, interviewID string) (*live.InterviewPlan, error) {
	var plan live.InterviewPlan
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&plan).
		Get("/v1/interviews/" + interviewID + "/plan")
	if err := c.check("bootstrap", resp, err); err != nil {
		return nil, err
	}
	if plan.TotalQuestions == 0 {
		plan.TotalQuestions = len(plan.Questions)
	}
	return &plan, nil
}

// FlushTurns persists a batch of sealed turns.
func (c *Client) FlushTurns(ctx context.Context, sessionID string, turns []live.Turn) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]any{"turns": turns}).
		Post("/v1/sessions/" + sessionID + "/turns")
	return c.check("flush_turns", resp, err)
}

// SubmitAnswer records an answer to a question.
func (c *Client) SubmitAnswer(ctx context.Context, sessionID, questionID string, answer live.Turn) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]any{"question_id": questionID, "answer": answer}).
		Post("/v1/sessions/" + sessionID + "/answers")
	return c.check("submit_answer", resp, err)
}

// Complete finishes the session with the unflushed remainder.
func (c *Client) Complete(ctx context.Context, sessionID string, remainder []live.Turn) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]any{"remainder": remainder}).
		Post("/v1/sessions/" + sessionID + "/complete")
	return c.check("complete", resp, err)
}

// GenerateReport produces the final evaluation.
func (c *Client) GenerateReport(ctx context.Context, sessionID string) (*live.Report, error) {
	var report live.Report
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&report).
		Post("/v1/sessions/" + sessionID + "/report")
	if err := c.check("generate_report", resp, err); err != nil {
		return nil, err
	}
	return &report, nil
}

func (c *Client) check(op string, resp *resty.Response, err error) error {
	if err != nil {
		return &PersistenceError{Op: op, Retryable: true, Err: err}
	}
	if resp.IsError() {
		status := resp.StatusCode()
		return &PersistenceError{
			Op:        op,
			Status:    status,
			Message:   strings.TrimSpace(string(resp.Body())),
			Retryable: status >= 500,
		}
	}
	return nil
}
