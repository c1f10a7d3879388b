// Package client is the Go client for the reelgen API, including the
// bounded polling loop a preview UI runs while a generation is in flight.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

var (
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("task no longer in draft")
	ErrPollTimeout         = errors.New("generation still pending after poll budget")
)

const (
	defaultPollInterval = 3 * time.Second
	defaultMaxPolls     = 60
)

// Client talks to the reelgen API on behalf of one authenticated user.
type Client struct {
	BaseURL      string
	Token        string
	HTTPClient   *http.Client
	PollInterval time.Duration
	MaxPolls     int
}

func New(baseURL, token string) *Client {
	return &Client{
		BaseURL:      strings.TrimRight(baseURL, "/"),
		Token:        token,
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
		PollInterval: defaultPollInterval,
		MaxPolls:     defaultMaxPolls,
	}
}

// CreateTaskInput mirrors POST /tasks.
type CreateTaskInput struct {
	Prompt          string `json:"prompt"`
	Model           string `json:"model"`
	DurationSeconds int    `json:"duration_seconds"`
	AspectRatio     string `json:"aspect_ratio"`
}

// PublishInput mirrors POST /tasks/{id}/publish.
type PublishInput struct {
	Description string     `json:"description"`
	Hashtags    []string   `json:"hashtags"`
	Music       *MusicMeta `json:"music,omitempty"`
}

type MusicMeta struct {
	Title  string `json:"title,omitempty"`
	Artist string `json:"artist,omitempty"`
	URL    string `json:"url,omitempty"`
}

// Task is the server's task view.
type Task struct {
	ID             string     `json:"id"`
	Status         string     `json:"status"`
	PublishStatus  string     `json:"publish_status,omitempty"`
	DraftAssetURL  string     `json:"draft_asset_url,omitempty"`
	ErrorKind      string     `json:"error_kind,omitempty"`
	ErrorDetail    string     `json:"error_detail,omitempty"`
	CreditsDebited int64      `json:"credits_debited"`
	Refunded       bool       `json:"refunded"`
	CreatedAt      time.Time  `json:"created_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// Terminal reports whether the generation has finished either way.
func (t *Task) Terminal() bool {
	return t.Status == "SUCCEEDED" || t.Status == "FAILED"
}

// Video is the server's published video view.
type Video struct {
	ID           string     `json:"id"`
	OwnerID      string     `json:"owner_id"`
	VideoURL     string     `json:"video_url"`
	Description  string     `json:"description"`
	Hashtags     []string   `json:"hashtags"`
	Music        *MusicMeta `json:"music,omitempty"`
	SourceTaskID string     `json:"source_task_id"`
	CreatedAt    time.Time  `json:"created_at"`
}

// CreateTask submits a generation request.
func (c *Client) CreateTask(ctx context.Context, in CreateTaskInput) (*Task, error) {
	var task Task
	if err := c.do(ctx, http.MethodPost, "/tasks", in, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// GetTask fetches the current task view, triggering a server-side provider
// poll when the task is still pending.
func (c *Client) GetTask(ctx context.Context, taskID string) (*Task, error) {
	var task Task
	if err := c.do(ctx, http.MethodGet, "/tasks/"+taskID, nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// WaitForTask polls GetTask until the task is terminal, the context is
// cancelled, or the poll budget runs out. Running out surfaces
// ErrPollTimeout without cancelling the provider job; a later poll can still
// observe the result.
func (c *Client) WaitForTask(ctx context.Context, taskID string) (*Task, error) {
	interval := c.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	maxPolls := c.MaxPolls
	if maxPolls <= 0 {
		maxPolls = defaultMaxPolls
	}

	var task *Task
	operation := func() error {
		t, err := c.GetTask(ctx, taskID)
		if err != nil {
			// API errors are not worth hammering on the poll interval.
			return backoff.Permanent(err)
		}
		if !t.Terminal() {
			return ErrPollTimeout
		}
		task = t
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(interval), uint64(maxPolls-1)),
		ctx,
	)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	return task, nil
}

// Publish turns a draft into a feed video. Retrying after a dropped response
// is safe; the server returns the already-published video.
func (c *Client) Publish(ctx context.Context, taskID string, in PublishInput) (*Video, error) {
	var video Video
	if err := c.do(ctx, http.MethodPost, "/tasks/"+taskID+"/publish", in, &video); err != nil {
		return nil, err
	}
	return &video, nil
}

// Reject discards a draft.
func (c *Client) Reject(ctx context.Context, taskID string) error {
	return c.do(ctx, http.MethodPost, "/tasks/"+taskID+"/reject", nil, nil)
}

// Credits returns the caller's current balance.
func (c *Client) Credits(ctx context.Context) (int64, error) {
	var out struct {
		Balance int64 `json:"balance"`
	}
	if err := c.do(ctx, http.MethodGet, "/me/credits", nil, &out); err != nil {
		return 0, err
	}
	return out.Balance, nil
}

type apiError struct {
	Code    string `json:"error"`
	Message string `json:"message"`
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || len(payload) == 0 {
			return nil
		}
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}

	var ae apiError
	_ = json.Unmarshal(payload, &ae)
	switch resp.StatusCode {
	case http.StatusPaymentRequired:
		return ErrInsufficientCredits
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	default:
		if ae.Message != "" {
			return fmt.Errorf("%s %s: %s (%s)", method, path, ae.Message, ae.Code)
		}
		return fmt.Errorf("%s %s: http status %d", method, path, resp.StatusCode)
	}
}
