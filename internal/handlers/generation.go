package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"midjourney-adapter/internal/generation"
	"midjourney-adapter/internal/middleware"
	"midjourney-adapter/internal/models"
)

// CredentialHeader carries an inline credential when the body has none.
const CredentialHeader = "X-Monkeys-Credentials"

// Generator runs imagine and blend jobs.
type Generator interface {
	Generate(ctx context.Context, provider generation.ProviderName, req generation.GenerateRequest) ([]string, error)
	Blend(ctx context.Context, provider generation.ProviderName, req generation.BlendRequest) ([]string, error)
}

type GenerationHandler struct {
	generator Generator
	logger    *zap.Logger
}

func NewGenerationHandler(generator Generator, logger *zap.Logger) *GenerationHandler {
	return &GenerationHandler{
		generator: generator,
		logger:    logger.With(zap.String("component", "generation_handler")),
	}
}

// Register mounts the imagine and blend routes of both providers.
func (h *GenerationHandler) Register(r gin.IRoutes) {
	r.POST("/goapi-midjourney", h.Imagine(generation.ProviderGoAPI))
	r.POST("/goapi-midjourney-blend", h.Blend(generation.ProviderGoAPI))
	r.POST("/youchuan-midjourney", h.Imagine(generation.ProviderYouchuan))
	r.POST("/youchuan-midjourney-blend", h.Blend(generation.ProviderYouchuan))
}

// Imagine returns the text-to-image handler for provider. It blocks until
// the job has finished and its artifacts are hosted.
func (h *GenerationHandler) Imagine(provider generation.ProviderName) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.GenerateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error:   "invalid_request",
				Message: err.Error(),
			})
			return
		}

		urls, err := h.generator.Generate(c.Request.Context(), provider, generation.GenerateRequest{
			CorrelationID:   middleware.GetCorrelationID(c),
			Prompt:          req.Prompt,
			ProcessMode:     req.ProcessMode,
			AspectRatio:     req.AspectRatio,
			SkipPromptCheck: req.SkipPromptCheck,
			Credential:      inlineCredential(c, req.Credential),
		})
		h.respond(c, provider, urls, err)
	}
}

// Blend returns the blend handler for provider.
func (h *GenerationHandler) Blend(provider generation.ProviderName) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.BlendRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error:   "invalid_request",
				Message: err.Error(),
			})
			return
		}

		urls, err := h.generator.Blend(c.Request.Context(), provider, generation.BlendRequest{
			CorrelationID: middleware.GetCorrelationID(c),
			Images:        req.Images,
			ProcessMode:   req.ProcessMode,
			Dimension:     req.Dimension,
			Credential:    inlineCredential(c, req.Credential),
		})
		h.respond(c, provider, urls, err)
	}
}

func (h *GenerationHandler) respond(c *gin.Context, provider generation.ProviderName, urls []string, err error) {
	if err != nil {
		status := generation.HTTPStatus(err)
		fields := []zap.Field{
			zap.String("provider", string(provider)),
			zap.String("correlation_id", middleware.GetCorrelationID(c)),
			zap.Error(err),
		}
		if generation.IsClientError(err) {
			h.logger.Warn("generation rejected", fields...)
		} else {
			h.logger.Error("generation failed", fields...)
		}
		_ = c.Error(err)
		c.JSON(status, models.ErrorResponse{
			Error:   generation.Code(err),
			Message: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, models.GenerateResponse{Result: urls})
}

func inlineCredential(c *gin.Context, body []byte) string {
	if cred := models.InlineCredential(body); cred != "" {
		return cred
	}
	return strings.TrimSpace(c.GetHeader(CredentialHeader))
}
