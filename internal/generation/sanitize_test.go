package generation_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"midjourney-adapter/internal/credentials"
	"midjourney-adapter/internal/generation"
	"pgregory.net/rapid"
)

func TestSanitizePrompt(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"a cat", "a cat"},
		{"  a\t\tcat \n on\r\n a mat  ", "a cat on a mat"},
		{"```\na cat\n```", "a cat"},
		{"```prompt\na cat --ar 16:9\n```", "a cat --ar 16:9"},
		{"```a cat```", "a cat"},
		{"```sunset\n```", "sunset"},
		{"```sunset", "sunset"},
		{"```sunset```", "sunset"},
		{"```go\nneon city\n```", "neon city"},
		{"```prompt\n\n  a fox\n```", "a fox"},
		{"intro ```md\nbody``` outro", "intro body outro"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, generation.SanitizePrompt(tt.in), "%q", tt.in)
	}
}

func TestSanitizePrompt_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		in := rapid.StringMatching("[a-z `\t\n]{0,40}").Draw(t, "prompt")
		out := generation.SanitizePrompt(in)

		if strings.Contains(out, "```") {
			t.Fatalf("fence survived in %q", out)
		}
		if strings.ContainsAny(out, "\t\n") || strings.Contains(out, "  ") {
			t.Fatalf("whitespace not collapsed in %q", out)
		}
		if out != strings.TrimSpace(out) {
			t.Fatalf("not trimmed: %q", out)
		}
		if again := generation.SanitizePrompt(out); again != out {
			t.Fatalf("not idempotent: %q -> %q", out, again)
		}
	})
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&generation.Error{Kind: generation.ErrConfiguration}, http.StatusBadRequest},
		{&generation.Error{Kind: generation.ErrCredentialParse}, http.StatusBadRequest},
		{&generation.Error{Kind: generation.ErrInvalidInput}, http.StatusBadRequest},
		{&generation.Error{Kind: generation.ErrGeneration}, http.StatusBadGateway},
		{&generation.Error{Kind: generation.ErrProviderTask}, http.StatusUnprocessableEntity},
		{&generation.Error{Kind: generation.ErrTimeout}, http.StatusGatewayTimeout},
		{&generation.Error{Kind: generation.ErrArtifact}, http.StatusBadGateway},
		{fmt.Errorf("wrapped: %w", &generation.Error{Kind: generation.ErrTimeout}), http.StatusGatewayTimeout},
		{&generation.Error{Kind: generation.ErrGeneration, Cause: context.Canceled}, 499},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, generation.HTTPStatus(tt.err), tt.err.Error())
	}
}

func TestError_UnwrapsCause(t *testing.T) {
	cause := credentials.ErrParse
	err := &generation.Error{Kind: generation.ErrCredentialParse, Provider: generation.ProviderYouchuan, Message: "bad", Cause: cause}
	assert.ErrorIs(t, err, generation.ErrCredentialParse)
	assert.ErrorIs(t, err, credentials.ErrParse)
	assert.Contains(t, err.Error(), "youchuan")
	assert.Equal(t, "credential_parse_error", generation.Code(err))
}
