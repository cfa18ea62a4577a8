// Package goapi is the GoAPI (midjourneyapi.xyz) Midjourney provider.
package goapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"midjourney-adapter/internal/credentials"
	"midjourney-adapter/internal/generation"
)

const DefaultBaseURL = "https://api.midjourneyapi.xyz"

type Client struct {
	baseURL    string
	httpClient *http.Client
}

var _ generation.Provider = (*Client)(nil)

type imagineRequest struct {
	Prompt          string `json:"prompt"`
	ProcessMode     string `json:"process_mode"`
	AspectRatio     string `json:"aspect_ratio,omitempty"`
	SkipPromptCheck bool   `json:"skip_prompt_check"`
}

type blendRequest struct {
	ImageURLs   []string `json:"image_urls"`
	ProcessMode string   `json:"process_mode"`
	Dimension   string   `json:"dimension,omitempty"`
}

type fetchRequest struct {
	TaskID string `json:"task_id"`
}

type submitResponse struct {
	TaskID  string `json:"task_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type FetchResponse struct {
	TaskID     string `json:"task_id"`
	Status     string `json:"status"`
	TaskResult struct {
		ImageURL      string   `json:"image_url"`
		ImageURLs     []string `json:"image_urls"`
		TaskProgress  any      `json:"task_progress"`
		ErrorMessages []string `json:"error_messages"`
	} `json:"task_result"`
	Meta struct {
		TaskFailReason string `json:"task_fail_reason"`
	} `json:"meta"`
	Message string `json:"message"`
}

type errorResponse struct {
	Message string `json:"message"`
	Error   any    `json:"error"`
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
	}
}

func (c *Client) Name() generation.ProviderName {
	return generation.ProviderGoAPI
}

// Submit creates an imagine or blend task and returns its task id.
func (c *Client) Submit(ctx context.Context, cred credentials.Credential, req generation.SubmitRequest) (string, error) {
	var (
		path    string
		payload any
	)
	switch req.Kind {
	case generation.KindBlend:
		path = "/mj/v2/blend"
		payload = blendRequest{
			ImageURLs:   req.Images,
			ProcessMode: req.ProcessMode,
			Dimension:   req.Dimension,
		}
	default:
		path = "/mj/v2/imagine"
		payload = imagineRequest{
			Prompt:          req.Prompt,
			ProcessMode:     req.ProcessMode,
			AspectRatio:     req.AspectRatio,
			SkipPromptCheck: req.SkipPromptCheck,
		}
	}

	var result submitResponse
	if err := c.post(ctx, cred, path, payload, &result); err != nil {
		return "", err
	}
	if result.TaskID == "" {
		if result.Message != "" {
			return "", fmt.Errorf("task_id is empty in response: %s", result.Message)
		}
		return "", fmt.Errorf("task_id is empty in response")
	}
	return result.TaskID, nil
}

func (c *Client) QueryStatus(ctx context.Context, cred credentials.Credential, taskID string) (*generation.StatusResult, error) {
	var result FetchResponse
	if err := c.post(ctx, cred, "/mj/v2/fetch", fetchRequest{TaskID: taskID}, &result); err != nil {
		return nil, err
	}
	if result.Status == "" {
		return nil, fmt.Errorf("status is empty in fetch response for task %s", taskID)
	}

	status := &generation.StatusResult{
		RawStatus: result.Status,
		ImageURL:  result.TaskResult.ImageURL,
		ImageURLs: result.TaskResult.ImageURLs,
		Progress:  progressString(result.TaskResult.TaskProgress),
	}
	switch {
	case result.Meta.TaskFailReason != "":
		status.FailReason = result.Meta.TaskFailReason
	case len(result.TaskResult.ErrorMessages) > 0:
		status.FailReason = strings.Join(result.TaskResult.ErrorMessages, "; ")
	case c.MapStatus(result.Status) == generation.StatusFailed:
		status.FailReason = result.Message
	}
	return status, nil
}

// MapStatus maps GoAPI task statuses. Everything except finished and failed
// (pending, staged, processing, retry) is still running.
func (c *Client) MapStatus(raw string) generation.Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "finished":
		return generation.StatusFinished
	case "failed":
		return generation.StatusFailed
	default:
		return generation.StatusPending
	}
}

func (c *Client) post(ctx context.Context, cred credentials.Credential, path string, payload, out any) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-API-KEY", cred.APIKeyOrAppID)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s: %s", path, apiError(resp.StatusCode, body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w, body: %s", err, truncate(body))
	}
	return nil
}

// apiError prefers the message the API reports over the raw body.
func apiError(status int, body []byte) string {
	var e errorResponse
	if json.Unmarshal(body, &e) == nil {
		if e.Message != "" {
			return e.Message
		}
		switch v := e.Error.(type) {
		case string:
			if v != "" {
				return v
			}
		case map[string]any:
			if msg, ok := v["message"].(string); ok && msg != "" {
				return msg
			}
		}
	}
	return fmt.Sprintf("status %d, body: %s", status, truncate(body))
}

func progressString(v any) string {
	switch p := v.(type) {
	case nil:
		return ""
	case string:
		return p
	case float64:
		return fmt.Sprintf("%.0f%%", p)
	default:
		return fmt.Sprint(p)
	}
}

func truncate(body []byte) string {
	const limit = 512
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
