package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/viperadnan-git/tubestash/internal/core/job"
)

// Client talks to the worker's Control API. Only Ping carries a timeout.
type Client struct {
	baseURL      string
	http         *http.Client
	probeTimeout time.Duration
}

func NewClient(baseURL string, probeTimeout time.Duration) *Client {
	if probeTimeout <= 0 {
		probeTimeout = 5 * time.Second
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		http:         &http.Client{},
		probeTimeout: probeTimeout,
	}
}

func (c *Client) BaseURL() string { return c.baseURL }

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("worker returned %d", e.Code)
	}
	return fmt.Sprintf("worker returned %d: %s", e.Code, e.Message)
}

type PingResult struct {
	OK  bool `json:"ok"`
	PID int  `json:"pid"`
}

func (c *Client) Ping(ctx context.Context) (PingResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	var out PingResult
	if err := c.do(ctx, http.MethodGet, "/api/ping", nil, &out); err != nil {
		return PingResult{}, err
	}
	return out, nil
}

func (c *Client) Downloads(ctx context.Context) (map[string]job.State, error) {
	out := make(map[string]job.State)
	if err := c.do(ctx, http.MethodGet, "/api/downloads", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Submit(ctx context.Context, id, authContext string) error {
	body := struct {
		ID          string `json:"id"`
		AuthContext string `json:"authContext,omitempty"`
	}{ID: id, AuthContext: authContext}
	return c.do(ctx, http.MethodPost, "/api/download", body, nil)
}

func (c *Client) Cancel(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/cancel", idBody{ID: id}, nil)
}

func (c *Client) Ack(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/ack", idBody{ID: id}, nil)
}

func (c *Client) DeleteFiles(ctx context.Context, filePath, thumbnailPath string) error {
	body := struct {
		FilePath      string `json:"filePath,omitempty"`
		ThumbnailPath string `json:"thumbnailPath,omitempty"`
	}{FilePath: filePath, ThumbnailPath: thumbnailPath}
	return c.do(ctx, http.MethodPost, "/api/delete-files", body, nil)
}

func (c *Client) DiskUsage(ctx context.Context) (int64, error) {
	var out struct {
		TotalBytes int64 `json:"totalBytes"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/disk-usage", nil, &out); err != nil {
		return 0, err
	}
	return out.TotalBytes, nil
}

type idBody struct {
	ID string `json:"id"`
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var reader io.Reader
	if in != nil {
		body, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(respBody, &apiErr)
		return &StatusError{Code: resp.StatusCode, Message: apiErr.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
