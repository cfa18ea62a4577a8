package progress

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Publisher stamps, logs and publishes progress messages. Publishing errors
// are logged and never returned: progress must not fail a job.
type Publisher struct {
	bus    Bus
	logger *zap.Logger
	now    func() time.Time
}

func NewPublisher(bus Bus, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		bus:    bus,
		logger: logger.With(zap.String("component", "progress")),
		now:    time.Now,
	}
}

func (p *Publisher) Publish(ctx context.Context, correlationID string, level Level, text string) {
	fields := []zap.Field{zap.String("correlation_id", correlationID)}
	switch level {
	case LevelWarn:
		p.logger.Warn(text, fields...)
	case LevelError:
		p.logger.Error(text, fields...)
	default:
		p.logger.Info(text, fields...)
	}

	msg := Message{
		Level:     level,
		Message:   text,
		Timestamp: p.now().Unix(),
	}
	// A cancelled job still owes its observers the closing messages.
	if err := p.bus.Publish(context.WithoutCancel(ctx), correlationID, msg); err != nil {
		p.logger.Warn("failed to publish progress message",
			zap.String("correlation_id", correlationID),
			zap.Error(err),
		)
	}
}

func (p *Publisher) Info(ctx context.Context, correlationID, format string, args ...any) {
	p.Publish(ctx, correlationID, LevelInfo, fmt.Sprintf(format, args...))
}

func (p *Publisher) Warn(ctx context.Context, correlationID, format string, args ...any) {
	p.Publish(ctx, correlationID, LevelWarn, fmt.Sprintf(format, args...))
}

func (p *Publisher) Error(ctx context.Context, correlationID, format string, args ...any) {
	p.Publish(ctx, correlationID, LevelError, fmt.Sprintf(format, args...))
}

// Done publishes the end-of-stream sentinel.
func (p *Publisher) Done(ctx context.Context, correlationID string) {
	p.Publish(ctx, correlationID, LevelInfo, Done)
}
