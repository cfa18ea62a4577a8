package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"midjourney-adapter/internal/credentials"
	"midjourney-adapter/internal/metrics"
	"midjourney-adapter/internal/progress"
)

const (
	instrumentationName = "midjourney-adapter/generation"

	defaultProcessMode = "relax"
	defaultDimension   = "square"
	minBlendImages     = 2
	maxBlendImages     = 5
)

// Backend binds a provider to its credential resolver and poll policy.
type Backend struct {
	Provider    Provider
	Resolver    *credentials.Resolver
	Policy      PollPolicy
	ProcessMode string
}

// GenerateRequest is an imagine call.
type GenerateRequest struct {
	CorrelationID   string
	Prompt          string
	ProcessMode     string
	AspectRatio     string
	SkipPromptCheck bool
	// Credential is the optional inline credential blob.
	Credential string
}

// BlendRequest blends 2 to 5 images.
type BlendRequest struct {
	CorrelationID string
	Images        []string
	ProcessMode   string
	Dimension     string
	Credential    string
}

// Orchestrator runs generation jobs end to end. Every job that got past
// credential resolution ends its progress stream with the sentinel.
type Orchestrator struct {
	backends map[ProviderName]Backend
	poller   *Poller
	finisher *Finisher
	progress *progress.Publisher
	metrics  *metrics.Collector
	logger   *zap.Logger
	tracer   trace.Tracer
}

func NewOrchestrator(
	backends []Backend,
	poller *Poller,
	finisher *Finisher,
	pub *progress.Publisher,
	m *metrics.Collector,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	byName := make(map[ProviderName]Backend, len(backends))
	for _, b := range backends {
		byName[b.Provider.Name()] = b
	}
	return &Orchestrator{
		backends: byName,
		poller:   poller,
		finisher: finisher,
		progress: pub,
		metrics:  m,
		logger:   logger.With(zap.String("component", "orchestrator")),
		tracer:   otel.Tracer(instrumentationName),
	}
}

// Generate submits an imagine task and returns the artifact URLs.
func (o *Orchestrator) Generate(ctx context.Context, provider ProviderName, req GenerateRequest) ([]string, error) {
	prompt := SanitizePrompt(req.Prompt)
	if prompt == "" {
		return nil, newError(ErrInvalidInput, provider, "prompt is required", nil)
	}

	submit := SubmitRequest{
		Kind:            KindImagine,
		Prompt:          prompt,
		ProcessMode:     req.ProcessMode,
		AspectRatio:     req.AspectRatio,
		SkipPromptCheck: req.SkipPromptCheck,
	}
	return o.run(ctx, provider, req.CorrelationID, req.Credential, submit)
}

// Blend submits a blend task and returns the artifact URLs.
func (o *Orchestrator) Blend(ctx context.Context, provider ProviderName, req BlendRequest) ([]string, error) {
	images := make([]string, 0, len(req.Images))
	for _, img := range req.Images {
		if img = strings.TrimSpace(img); img != "" {
			images = append(images, img)
		}
	}
	if len(images) < minBlendImages || len(images) > maxBlendImages {
		return nil, newError(ErrInvalidInput, provider,
			fmt.Sprintf("blend needs %d to %d images, got %d", minBlendImages, maxBlendImages, len(images)), nil)
	}

	dimension := req.Dimension
	if dimension == "" {
		dimension = defaultDimension
	}

	submit := SubmitRequest{
		Kind:        KindBlend,
		ProcessMode: req.ProcessMode,
		Images:      images,
		Dimension:   dimension,
	}
	return o.run(ctx, provider, req.CorrelationID, req.Credential, submit)
}

func (o *Orchestrator) run(ctx context.Context, name ProviderName, correlationID, inline string, req SubmitRequest) (urls []string, err error) {
	backend, ok := o.backends[name]
	if !ok {
		return nil, newError(ErrConfiguration, name, "provider is not enabled", nil)
	}

	cred, credErr := backend.Resolver.Resolve(inline)
	if credErr != nil {
		o.logger.Warn("credential resolution failed",
			zap.String("correlation_id", correlationID),
			zap.String("provider", string(name)),
			zap.Error(credErr),
		)
		return nil, fromCredentials(name, credErr)
	}

	if req.ProcessMode == "" {
		req.ProcessMode = backend.ProcessMode
	}
	if req.ProcessMode == "" {
		req.ProcessMode = defaultProcessMode
	}

	ctx, span := o.tracer.Start(ctx, "midjourney."+string(req.Kind),
		trace.WithAttributes(
			attribute.String("provider", string(name)),
			attribute.String("correlation_id", correlationID),
		),
	)
	record := o.metrics.JobStarted(string(name), string(req.Kind))

	defer func() {
		outcome := "finished"
		if err != nil {
			outcome = Code(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		record(outcome)
		span.End()
		o.progress.Done(ctx, correlationID)
	}()

	taskID, err := backend.Provider.Submit(ctx, cred, req)
	if err != nil {
		o.progress.Error(ctx, correlationID, "Failed to create midjourney %s task: %s", req.Kind, err)
		return nil, newError(ErrGeneration, name, "failed to create task", err)
	}
	if taskID == "" {
		o.progress.Error(ctx, correlationID, "Failed to create midjourney %s task: provider returned no task id", req.Kind)
		return nil, newError(ErrGeneration, name, "provider returned no task id", nil)
	}
	span.SetAttributes(attribute.String("task_id", taskID))

	o.progress.Info(ctx, correlationID, "Created midjourney %s task with prompt %s, task_id=%s", req.Kind, describe(req), taskID)

	job := NewJob(correlationID, name, taskID, backend.Policy)
	result, err := o.poller.Poll(ctx, job, backend.Provider, cred)
	if err != nil {
		return nil, err
	}

	switch {
	case result.ImageURL != "":
		return o.finisher.FinishComposite(ctx, correlationID, name, taskID, result.ImageURL)
	case len(result.ImageURLs) > 0:
		return o.finisher.FinishMany(ctx, correlationID, name, taskID, result.ImageURLs)
	default:
		o.progress.Error(ctx, correlationID, "Midjourney task %s finished without an image", taskID)
		return nil, &Error{Kind: ErrGeneration, Provider: name, TaskID: taskID, Message: "task finished without an image"}
	}
}

// describe is the prompt shown in progress messages. Blends have none.
func describe(req SubmitRequest) string {
	if req.Kind == KindBlend {
		return strings.Join(req.Images, " ")
	}
	return req.Prompt
}

// IsClientError reports whether err was caused by the request itself.
func IsClientError(err error) bool {
	return errors.Is(err, ErrConfiguration) || errors.Is(err, ErrCredentialParse) || errors.Is(err, ErrInvalidInput)
}
