package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"reelgen/internal/infra"
)

// Options controls how the provider client is configured.
type Options struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client talks to the generation provider over HTTP. When no API key is
// configured it falls back to deterministic synthetic results so the rest of
// the pipeline (debit, transition, publish) stays exercisable in local and CI
// environments.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *infra.Logger
}

type submitRequest struct {
	Prompt          string `json:"prompt"`
	Model           string `json:"model"`
	DurationSeconds int    `json:"duration_seconds"`
	AspectRatio     string `json:"aspect_ratio"`
	RequestID       string `json:"request_id,omitempty"`
}

type submitResponse struct {
	ID string `json:"id"`
}

type statusResponse struct {
	Status        string `json:"status"`
	AssetURL      string `json:"asset_url,omitempty"`
	Cost          int64  `json:"cost,omitempty"`
	FailureCode   string `json:"failure_code,omitempty"`
	FailureDetail string `json:"failure_detail,omitempty"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error"`
}

// NewClient constructs a provider client with sane defaults. Callers may pass
// a nil HTTP client; a reusable one with a timeout will be created.
func NewClient(opts Options) *Client {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")

	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}

	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		httpClient: client,
		logger:     logger,
	}
}

const syntheticPrefix = "synthetic-"

// Submit sends the generation spec and returns the provider task handle.
func (c *Client) Submit(ctx context.Context, spec SubmitSpec) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if c.apiKey == "" {
		c.logger.Warn().Str("request_id", spec.RequestID).Msg("provider: api key missing, using synthetic handle")
		return syntheticPrefix + spec.RequestID, nil
	}

	body, err := json.Marshal(submitRequest{
		Prompt:          spec.Prompt,
		Model:           spec.Model,
		DurationSeconds: spec.DurationSeconds,
		AspectRatio:     spec.AspectRatio,
		RequestID:       spec.RequestID,
	})
	if err != nil {
		return "", fmt.Errorf("encode submit request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generations", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("submit generation: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read submit response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusAccepted:
		var out submitResponse
		if err := json.Unmarshal(payload, &out); err != nil {
			return "", fmt.Errorf("decode submit response: %w", err)
		}
		if out.ID == "" {
			return "", fmt.Errorf("submit response missing task id")
		}
		return out.ID, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return "", &SubmitError{Code: failureCodeFromBody(payload), Detail: errorMessage(payload, resp.StatusCode)}
	default:
		return "", fmt.Errorf("submit generation: unexpected status %d", resp.StatusCode)
	}
}

// PollStatus fetches the latest provider state for a handle.
func (c *Client) PollStatus(ctx context.Context, handle string) (Status, error) {
	if err := ctx.Err(); err != nil {
		return Status{}, err
	}
	if strings.HasPrefix(handle, syntheticPrefix) {
		return c.syntheticStatus(handle), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/generations/"+handle, nil)
	if err != nil {
		return Status{}, fmt.Errorf("build poll request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Status{}, fmt.Errorf("poll generation: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Status{}, fmt.Errorf("read poll response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return Status{}, fmt.Errorf("poll generation: unexpected status %d", resp.StatusCode)
	}

	var out statusResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return Status{}, fmt.Errorf("decode poll response: %w", err)
	}

	switch strings.ToLower(out.Status) {
	case "pending", "queued", "running":
		return Status{Kind: StatusPending}, nil
	case "succeeded":
		if out.AssetURL == "" {
			return Status{}, fmt.Errorf("succeeded status missing asset url")
		}
		return Status{Kind: StatusSucceeded, AssetURL: out.AssetURL, Cost: out.Cost}, nil
	case "failed":
		return Status{
			Kind:          StatusFailed,
			Cost:          out.Cost,
			FailureCode:   normalizeFailureCode(out.FailureCode),
			FailureDetail: out.FailureDetail,
		}, nil
	default:
		return Status{}, fmt.Errorf("unknown provider status %q", out.Status)
	}
}

// syntheticStatus mirrors what a healthy provider would eventually report.
func (c *Client) syntheticStatus(handle string) Status {
	id := strings.TrimPrefix(handle, syntheticPrefix)
	return Status{
		Kind:     StatusSucceeded,
		AssetURL: fmt.Sprintf("https://cdn.reelgen.example/drafts/%s.mp4", id),
		Cost:     1,
	}
}

func normalizeFailureCode(code string) FailureCode {
	switch strings.ToLower(strings.TrimSpace(code)) {
	case "content_policy", "safety", "moderation":
		return FailureContentPolicy
	case "transient", "overloaded", "capacity":
		return FailureTransient
	default:
		return FailureUnknown
	}
}

func failureCodeFromBody(payload []byte) FailureCode {
	var out errorResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return FailureUnknown
	}
	return normalizeFailureCode(out.Error.Code)
}

func errorMessage(payload []byte, statusCode int) string {
	var out errorResponse
	if err := json.Unmarshal(payload, &out); err == nil && out.Error.Message != "" {
		return out.Error.Message
	}
	return fmt.Sprintf("http status %d", statusCode)
}

var _ Gateway = (*Client)(nil)
