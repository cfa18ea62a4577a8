package models

import (
	"encoding/json"
	"strings"
)

type GenerateRequest struct {
	Prompt          string `json:"prompt" binding:"required" example:"a red fox in the snow"`
	ProcessMode     string `json:"process_mode,omitempty" example:"relax"`
	AspectRatio     string `json:"aspect_ratio,omitempty" example:"16:9"`
	SkipPromptCheck bool   `json:"skip_prompt_check,omitempty"`
	// Credential overrides the configured provider key. It may be a JSON
	// object or a string holding JSON or base64.
	Credential json.RawMessage `json:"credential,omitempty"`
}

type BlendRequest struct {
	Images      []string        `json:"images" binding:"required"`
	ProcessMode string          `json:"process_mode,omitempty"`
	Dimension   string          `json:"dimension,omitempty" example:"square"`
	Credential  json.RawMessage `json:"credential,omitempty"`
}

// InlineCredential returns the credential blob as the resolver expects it.
// A JSON string is unquoted, an object is passed through as text.
func InlineCredential(raw json.RawMessage) string {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return trimmed
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
