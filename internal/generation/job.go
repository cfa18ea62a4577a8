// Package generation drives one Midjourney generation from submission to
// published artifacts: provider submission, status polling and artifact
// post-processing, with progress reported per correlation id.
package generation

import (
	"context"
	"time"

	"midjourney-adapter/internal/credentials"
)

type ProviderName string

const (
	ProviderGoAPI    ProviderName = "goapi"
	ProviderYouchuan ProviderName = "youchuan"
)

// Namespace is the storage key segment of the provider's artifacts.
func (p ProviderName) Namespace() string {
	switch p {
	case ProviderGoAPI:
		return "mj"
	default:
		return string(p)
	}
}

type Status int

const (
	StatusPending Status = iota
	StatusFinished
	StatusFailed
	StatusTimedOut
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusFinished:
		return "finished"
	case StatusFailed:
		return "failed"
	case StatusTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s != StatusPending
}

type Kind string

const (
	KindImagine Kind = "imagine"
	KindBlend   Kind = "blend"
)

// PollPolicy bounds one poll loop.
type PollPolicy struct {
	Timeout  time.Duration
	Interval time.Duration
}

// Job is the state of one poll loop. It is owned by the goroutine running it.
type Job struct {
	CorrelationID  string
	Provider       ProviderName
	ExternalTaskID string
	Status         Status
	StartedAt      time.Time
	Timeout        time.Duration
	PollInterval   time.Duration
	LastError      error
	FailReason     string
}

func NewJob(correlationID string, provider ProviderName, taskID string, policy PollPolicy) *Job {
	return &Job{
		CorrelationID:  correlationID,
		Provider:       provider,
		ExternalTaskID: taskID,
		Status:         StatusPending,
		Timeout:        policy.Timeout,
		PollInterval:   policy.Interval,
	}
}

// SubmitRequest is the provider-neutral creation payload.
type SubmitRequest struct {
	Kind            Kind
	Prompt          string
	ProcessMode     string
	AspectRatio     string
	SkipPromptCheck bool
	Images          []string
	Dimension       string
}

// StatusResult is one status query answer. Finished tasks carry either one
// composite ImageURL or several ImageURLs.
type StatusResult struct {
	RawStatus  string
	ImageURL   string
	ImageURLs  []string
	FailReason string
	Progress   string
}

// Provider is one asynchronous Midjourney backend.
type Provider interface {
	Name() ProviderName
	Submit(ctx context.Context, cred credentials.Credential, req SubmitRequest) (string, error)
	QueryStatus(ctx context.Context, cred credentials.Credential, taskID string) (*StatusResult, error)
	MapStatus(raw string) Status
}
