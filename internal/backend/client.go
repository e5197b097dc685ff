// Package backend is the HTTP client for the optional assistant service that
// supplies motivation lines and task details.
package backend

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
)

// ErrNotConfigured is returned when no backend URL is set.
var ErrNotConfigured = errors.New("backend not configured")

// Client talks to the assistant service.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a client for baseURL. A zero timeout uses 15 seconds.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		BaseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// ErrorResponse is the error body returned by the service.
type ErrorResponse struct {
	Error string `json:"error"`
}

type motivationResponse struct {
	Motivation string `json:"motivation"`
}

type askRequest struct {
	TaskText string `json:"task_text"`
}

type askResponse struct {
	Details string `json:"details"`
}

// Motivate fetches one motivational line.
func (c *Client) Motivate(ctx context.Context) (string, error) {
	var out motivationResponse
	if err := c.post(ctx, "/motivate-me", nil, &out); err != nil {
		return "", err
	}
	text := strings.TrimSpace(out.Motivation)
	if text == "" {
		return "", errors.New("empty motivation in response")
	}
	return text, nil
}

// AskAI asks the service for details on how to approach a task.
func (c *Client) AskAI(ctx context.Context, taskText string) (string, error) {
	taskText = strings.TrimSpace(taskText)
	if taskText == "" {
		return "", errors.New("task text is required")
	}
	var out askResponse
	if err := c.post(ctx, "/ask-ai", askRequest{TaskText: taskText}, &out); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Details), nil
}

// post performs a JSON POST and decodes a 2xx body into target.
func (c *Client) post(ctx context.Context, path string, body interface{}, target interface{}) error {
	if c == nil || c.BaseURL == "" {
		return ErrNotConfigured
	}
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		var errResp ErrorResponse
		if err := json.Unmarshal(raw, &errResp); err == nil && errResp.Error != "" {
			return fmt.Errorf("%s: %s", path, errResp.Error)
		}
		return fmt.Errorf("%s: request failed with status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
