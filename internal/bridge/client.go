package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kingrea/editorbridge/internal/collect"
	"github.com/kingrea/editorbridge/internal/command"
)

// MaxResponseBytes bounds how much of a response the client reads.
const MaxResponseBytes int64 = 8 << 20

// Client talks to a running bridge.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient targets baseURL (for example http://127.0.0.1:5000). A nil
// httpClient uses a client without a timeout, since orchestrated commands
// answer only when their run finishes.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL != "" && !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	return &Client{baseURL: baseURL, http: httpClient}
}

// BaseURL returns the target URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Health fetches /health.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var health Health
	err := c.get(ctx, "/health", &health)
	return health, err
}

// Runs fetches /runs.
func (c *Client) Runs(ctx context.Context) ([]collect.Snapshot, error) {
	var runs RunsResponse
	if err := c.get(ctx, "/runs", &runs); err != nil {
		return nil, err
	}
	return runs.Runs, nil
}

// Send posts a command and decodes its envelope. Non-2xx answers still
// return the decoded envelope alongside an error.
func (c *Client) Send(ctx context.Context, name string, req command.Request) (command.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return command.Response{}, fmt.Errorf("bridge: encode %s: %w", name, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+strings.Trim(name, "/"), bytes.NewReader(body))
	if err != nil {
		return command.Response{}, fmt.Errorf("bridge: build %s request: %w", name, err)
	}
	httpReq.Header.Set("Content-Type", command.MediaTypeJSON)
	var resp command.Response
	status, err := c.do(httpReq, &resp)
	if err != nil {
		return resp, err
	}
	if status < 200 || status > 299 {
		return resp, fmt.Errorf("bridge: %s returned %d: %s", name, status, resp.Message)
	}
	return resp, nil
}

func (c *Client) get(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("bridge: build request %s: %w", path, err)
	}
	status, err := c.do(req, v)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("bridge: %s returned %d", path, status)
	}
	return nil
}

func (c *Client) do(req *http.Request, v any) (int, error) {
	req.Header.Set("Accept", command.MediaTypeJSON)
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("bridge: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBytes))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("bridge: read %s: %w", req.URL.Path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return resp.StatusCode, fmt.Errorf("bridge: decode %s: %w", req.URL.Path, err)
	}
	return resp.StatusCode, nil
}

// WaitReady polls /health until the bridge reports ready or ctx ends.
func (c *Client) WaitReady(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		health, err := c.Health(ctx)
		if err == nil && health.Status == string(StatusReady) {
			return nil
		}
		select {
		case <-ctx.Done():
			if err != nil {
				return fmt.Errorf("bridge: not ready: %w", err)
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
