// Package remote is the HTTP client for the sync backend: bootstrap, push,
// pull, upload signing, and the signed PUT itself.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sethvargo/go-retry"

	fieldsync "github.com/inspectos/fieldsync/internal/sync"
)

// Sentinel errors for the caller to branch on. Transport failures wrap
// ErrUnavailable; credential failures wrap ErrUnauthorized and must stop
// automatic retries.
var (
	ErrUnauthorized = errors.New("remote rejected credentials")
	ErrUnavailable  = errors.New("remote unavailable")
)

// Client talks to the sync backend. All methods take a context and respect
// its deadline; the embedded http.Client timeout is the outer bound per
// attempt.
type Client struct {
	baseURL string
	token   string
	client  *http.Client

	maxRetries uint64
	backoff    time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient substitutes the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithRetry sets the transient-failure retry count and initial backoff.
func WithRetry(maxRetries uint64, backoff time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = maxRetries
		c.backoff = backoff
	}
}

// NewClient creates a Client for the given base URL and bearer token.
func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		token:      token,
		client:     &http.Client{Timeout: 30 * time.Second},
		maxRetries: 3,
		backoff:    500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetToken swaps the bearer token after re-authentication.
func (c *Client) SetToken(token string) {
	c.token = token
}

// Ping checks connectivity with a cheap unauthenticated request.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health check returned %d", ErrUnavailable, resp.StatusCode)
	}
	return nil
}

// Bootstrap fetches the full tenant snapshot.
func (c *Client) Bootstrap(ctx context.Context, tenant string) (*fieldsync.BootstrapData, error) {
	var data fieldsync.BootstrapData
	path := "/sync/bootstrap?tenant=" + url.QueryEscape(tenant)
	if err := c.doJSON(ctx, http.MethodPost, path, nil, &data); err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	return &data, nil
}

// Push submits a batch of outbox items and returns per-item results.
func (c *Client) Push(ctx context.Context, req *fieldsync.PushRequest) (*fieldsync.PushResponse, error) {
	var resp fieldsync.PushResponse
	if err := c.doJSON(ctx, http.MethodPost, "/sync/push", req, &resp); err != nil {
		return nil, fmt.Errorf("push: %w", err)
	}
	return &resp, nil
}

// Pull fetches server-side changes since the given cursor. An empty cursor
// asks for everything the server retains.
func (c *Client) Pull(ctx context.Context, tenant, since string) (*fieldsync.PullResponse, error) {
	q := url.Values{}
	q.Set("tenant", tenant)
	if since != "" {
		q.Set("since", since)
	}

	var resp fieldsync.PullResponse
	if err := c.doJSON(ctx, http.MethodGet, "/sync/pull?"+q.Encode(), nil, &resp); err != nil {
		return nil, fmt.Errorf("pull: %w", err)
	}
	return &resp, nil
}

// SignUploads requests pre-authorized upload targets for a batch of assets.
func (c *Client) SignUploads(ctx context.Context, req *fieldsync.SignRequest) (*fieldsync.SignResponse, error) {
	var resp fieldsync.SignResponse
	if err := c.doJSON(ctx, http.MethodPost, "/uploads/sign", req, &resp); err != nil {
		return nil, fmt.Errorf("sign uploads: %w", err)
	}
	return &resp, nil
}

// UploadFile PUTs raw bytes to a signed URL. The URL embeds its own
// authorization; no bearer header is sent.
func (c *Client) UploadFile(ctx context.Context, uploadURL, mimeType string, body io.Reader, size int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, body)
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", mimeType)
	req.ContentLength = size

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("upload returned %d", resp.StatusCode)
	}
	return nil
}

// doJSON performs an authenticated JSON round trip, retrying transient
// failures with exponential backoff. 4xx responses are returned verbatim;
// only network errors and 5xx are retried.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	backoff := retry.WithMaxRetries(c.maxRetries, retry.NewExponential(c.backoff))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("%w: %v", ErrUnavailable, err))
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return fmt.Errorf("%w: status %d", ErrUnauthorized, resp.StatusCode)
		case resp.StatusCode >= 500:
			return retry.RetryableError(
				fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode))
		case resp.StatusCode >= 400:
			return fmt.Errorf("request failed: %s", readProblem(resp.Body, resp.StatusCode))
		}

		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	})
}

// readProblem extracts a human-readable message from an error body,
// falling back to the status code.
func readProblem(r io.Reader, status int) string {
	var problem struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
		Error  string `json:"error"`
	}
	if err := json.NewDecoder(r).Decode(&problem); err == nil {
		switch {
		case problem.Detail != "":
			return problem.Detail
		case problem.Title != "":
			return problem.Title
		case problem.Error != "":
			return problem.Error
		}
	}
	return fmt.Sprintf("status %d", status)
}
