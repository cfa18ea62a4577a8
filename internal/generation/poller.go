package generation

import (
	"context"
	"time"

	"go.uber.org/zap"

	"midjourney-adapter/internal/credentials"
	"midjourney-adapter/internal/metrics"
	"midjourney-adapter/internal/progress"
)

const unknownFailReason = "unknown reason"

// Poller runs the status loop of one job until it is finished, failed or
// past its deadline. Call errors are retried until the deadline; a failure
// reported by the provider ends the loop at once.
type Poller struct {
	progress *progress.Publisher
	metrics  *metrics.Collector
	logger   *zap.Logger
	now      func() time.Time
}

func NewPoller(pub *progress.Publisher, m *metrics.Collector, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		progress: pub,
		metrics:  m,
		logger:   logger.With(zap.String("component", "poller")),
		now:      time.Now,
	}
}

// Poll returns the finished status. job is updated in place.
func (p *Poller) Poll(ctx context.Context, job *Job, provider Provider, cred credentials.Credential) (*StatusResult, error) {
	name := provider.Name()
	id := job.CorrelationID

	job.StartedAt = p.now()
	deadline := job.StartedAt.Add(job.Timeout)

	for job.Status == StatusPending && p.now().Before(deadline) {
		result, err := provider.QueryStatus(ctx, cred, job.ExternalTaskID)
		switch {
		case err != nil && ctx.Err() != nil:
			return nil, p.cancelled(ctx, job)
		case err != nil:
			job.LastError = err
			p.metrics.RecordPoll(string(name), "error")
			p.progress.Warn(ctx, id, "Polling %s midjourney task failed: %s, retrying...", name, err)
		default:
			status := provider.MapStatus(result.RawStatus)
			p.metrics.RecordPoll(string(name), status.String())

			switch status {
			case StatusFinished:
				job.Status = StatusFinished
				p.progress.Info(ctx, id, "Midjourney task %s finished", job.ExternalTaskID)
				return result, nil
			case StatusFailed:
				job.Status = StatusFailed
				job.FailReason = result.FailReason
				if job.FailReason == "" {
					job.FailReason = unknownFailReason
				}
				p.progress.Error(ctx, id, "Midjourney task failed: %s", job.FailReason)
				return nil, &Error{
					Kind:     ErrProviderTask,
					Provider: name,
					TaskID:   job.ExternalTaskID,
					Message:  job.FailReason,
				}
			default:
				if result.Progress != "" {
					p.progress.Info(ctx, id, "Midjourney task status: %s (%s)", result.RawStatus, result.Progress)
				} else {
					p.progress.Info(ctx, id, "Midjourney task status: %s", result.RawStatus)
				}
			}
		}

		if err := p.wait(ctx, deadline, job.PollInterval); err != nil {
			return nil, p.cancelled(ctx, job)
		}
	}

	job.Status = StatusTimedOut
	p.progress.Error(ctx, id, "Midjourney task %s timed out after %s", job.ExternalTaskID, job.Timeout)
	return nil, &Error{
		Kind:     ErrTimeout,
		Provider: name,
		TaskID:   job.ExternalTaskID,
		Message:  "task did not finish within " + job.Timeout.String(),
		Cause:    job.LastError,
	}
}

// wait sleeps for interval, cut short at deadline.
func (p *Poller) wait(ctx context.Context, deadline time.Time, interval time.Duration) error {
	d := interval
	if remaining := deadline.Sub(p.now()); remaining < d {
		d = remaining
	}
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (p *Poller) cancelled(ctx context.Context, job *Job) error {
	p.progress.Error(ctx, job.CorrelationID, "Midjourney task %s polling cancelled: %s", job.ExternalTaskID, ctx.Err())
	return &Error{
		Kind:     ErrGeneration,
		Provider: job.Provider,
		TaskID:   job.ExternalTaskID,
		Message:  "polling cancelled",
		Cause:    ctx.Err(),
	}
}
