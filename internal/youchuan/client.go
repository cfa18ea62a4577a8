// Package youchuan is the Youchuan Midjourney provider. Youchuan returns the
// generated images as separate URLs rather than one composite.
package youchuan

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"midjourney-adapter/internal/credentials"
	"midjourney-adapter/internal/generation"
)

const DefaultBaseURL = "https://ali.youchuan.cn"

type Client struct {
	baseURL    string
	httpClient *http.Client
}

var _ generation.Provider = (*Client)(nil)

type diffusionRequest struct {
	Text string `json:"text"`
}

type blendRequest struct {
	ImgURLs    []string `json:"imgUrls"`
	Dimensions string   `json:"dimensions,omitempty"`
}

type jobResponse struct {
	ID       string          `json:"id"`
	Status   json.RawMessage `json:"status"`
	URLs     []string        `json:"urls"`
	Comment  string          `json:"comment"`
	Progress any             `json:"progress"`
}

type errorResponse struct {
	Code    any    `json:"code"`
	Message string `json:"message"`
	Reason  string `json:"reason"`
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
	return generation.ProviderYouchuan
}

func (c *Client) Submit(ctx context.Context, cred credentials.Credential, req generation.SubmitRequest) (string, error) {
	var (
		path    string
		payload any
	)
	switch req.Kind {
	case generation.KindBlend:
		path = "/v1/tob/blend"
		payload = blendRequest{ImgURLs: req.Images, Dimensions: req.Dimension}
	default:
		path = "/v1/tob/diffusion"
		payload = diffusionRequest{Text: withAspectRatio(req.Prompt, req.AspectRatio)}
	}

	var result jobResponse
	if err := c.do(ctx, cred, http.MethodPost, path, payload, &result); err != nil {
		return "", err
	}
	if result.ID == "" {
		return "", fmt.Errorf("id is empty in %s response", path)
	}
	return result.ID, nil
}

func (c *Client) QueryStatus(ctx context.Context, cred credentials.Credential, taskID string) (*generation.StatusResult, error) {
	var result jobResponse
	if err := c.do(ctx, cred, http.MethodGet, "/v1/tob/job/"+url.PathEscape(taskID), nil, &result); err != nil {
		return nil, err
	}

	raw := statusString(result.Status)
	if raw == "" {
		return nil, fmt.Errorf("status is empty in job response for %s", taskID)
	}

	status := &generation.StatusResult{
		RawStatus: raw,
		ImageURLs: result.URLs,
		Progress:  progressString(result.Progress),
	}
	if c.MapStatus(raw) == generation.StatusFailed {
		status.FailReason = result.Comment
	}
	return status, nil
}

// MapStatus is case-insensitive. Unknown statuses are still running.
func (c *Client) MapStatus(raw string) generation.Status {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "SUCCESS", "COMPLETED", "FINISHED":
		return generation.StatusFinished
	case "FAILED", "ERROR", "CANCELED", "CANCELLED":
		return generation.StatusFailed
	default:
		return generation.StatusPending
	}
}

func (c *Client) do(ctx context.Context, cred credentials.Credential, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("x-youchuan-app", cred.APIKeyOrAppID)
	req.Header.Set("x-youchuan-secret", cred.Secret)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s: %s", path, apiError(resp.StatusCode, respBody))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode response: %w, body: %s", err, truncate(respBody))
	}
	return nil
}

// withAspectRatio appends --ar unless the prompt already sets one.
func withAspectRatio(prompt, ratio string) string {
	ratio = strings.TrimSpace(ratio)
	if ratio == "" || strings.Contains(prompt, "--ar ") || strings.Contains(prompt, "--aspect ") {
		return prompt
	}
	return prompt + " --ar " + ratio
}

func statusString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

func apiError(status int, body []byte) string {
	var e errorResponse
	if json.Unmarshal(body, &e) == nil {
		if e.Reason != "" {
			return e.Reason
		}
		if e.Message != "" {
			return e.Message
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
