package generation

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"midjourney-adapter/internal/credentials"
)

// Error kinds. Match them with errors.Is.
var (
	ErrConfiguration   = errors.New("configuration error")
	ErrCredentialParse = errors.New("credential parse error")
	ErrInvalidInput    = errors.New("invalid input")
	ErrGeneration      = errors.New("generation error")
	ErrProviderTask    = errors.New("provider task failed")
	ErrTimeout         = errors.New("task timed out")
	ErrArtifact        = errors.New("artifact error")
)

// Error is a generation failure of a given Kind.
type Error struct {
	Kind     error
	Message  string
	Provider ProviderName
	TaskID   string
	Cause    error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Provider != "" {
		msg = fmt.Sprintf("%s: %s", e.Provider, msg)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

func newError(kind error, provider ProviderName, message string, cause error) *Error {
	return &Error{Kind: kind, Provider: provider, Message: message, Cause: cause}
}

// fromCredentials maps a resolver error onto the generation kinds.
func fromCredentials(provider ProviderName, err error) *Error {
	if errors.Is(err, credentials.ErrParse) {
		return newError(ErrCredentialParse, provider, "inline credential is malformed", err)
	}
	return newError(ErrConfiguration, provider, "no usable credential", err)
}

// Code returns the short machine readable name of the error kind.
func Code(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, ErrConfiguration):
		return "configuration_error"
	case errors.Is(err, ErrCredentialParse):
		return "credential_parse_error"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrGeneration):
		return "generation_error"
	case errors.Is(err, ErrProviderTask):
		return "provider_task_error"
	case errors.Is(err, ErrTimeout):
		return "timeout_error"
	case errors.Is(err, ErrArtifact):
		return "artifact_error"
	default:
		return "internal_error"
	}
}

// HTTPStatus maps err to the response status of the HTTP surface.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, context.Canceled):
		return 499
	case errors.Is(err, ErrConfiguration),
		errors.Is(err, ErrCredentialParse),
		errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrProviderTask):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrGeneration), errors.Is(err, ErrArtifact):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
