package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/target/transcode-dispatch/internal/core"
	"github.com/target/transcode-dispatch/internal/data"
	"github.com/target/transcode-dispatch/internal/domain/model"
	"github.com/target/transcode-dispatch/internal/domain/schedule"
	apperrors "github.com/target/transcode-dispatch/internal/errors"
	"github.com/target/transcode-dispatch/internal/observability/metrics"
	"github.com/target/transcode-dispatch/internal/observability/notify"
)

// failOutcome reports where one failure attempt routed a job. engineID is the
// engine the job was running on before release, when there was one.
type failOutcome struct {
	job       *model.Job
	engineID  string
	permanent bool
}

// Complete marks a non-terminal job as completed and releases its engine.
func (s *DispatcherService) Complete(ctx context.Context, id string, req *model.CompleteJobRequest) (*model.Job, error) {
	start := time.Now()

	if req == nil {
		return nil, apperrors.Validation("request body is required")
	}
	if err := req.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	s.mu.Lock()
	job, err := s.completeLocked(ctx, id, req.OutputURL)
	s.mu.Unlock()
	if err != nil {
		s.emitJobMetric(metrics.TransitionComplete, metrics.ResultError, start, err)
		return nil, err
	}

	s.persister.Schedule()
	s.emitJobMetric(metrics.TransitionComplete, metrics.ResultSuccess, start, nil)

	if s.logger != nil {
		s.logger.DebugContext(ctx, "job completed", "id", id)
	}

	return job, nil
}

func (s *DispatcherService) completeLocked(ctx context.Context, id, outputURL string) (*model.Job, error) {
	job, err := s.getJobLocked(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status.Terminal() {
		return nil, apperrors.Validationf("job %s is %s and cannot be completed", id, job.Status)
	}

	if job.AssignedEngine != nil {
		if err := s.releaseEngineLocked(ctx, *job.AssignedEngine); err != nil {
			return nil, err
		}
	}

	job.Status = model.JobStatusCompleted
	job.OutputURL = &outputURL
	job.AssignedEngine = nil
	job.RetryAfter = nil
	job.UpdatedAt = s.now()
	if err := s.store.SaveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("save job %s: %w", id, err)
	}
	return job, nil
}

// Fail records a failure attempt on a non-terminal job. The job is requeued
// while it has retry budget left, otherwise it becomes failed_permanently and
// the failure notifier is informed.
func (s *DispatcherService) Fail(ctx context.Context, id string, req *model.FailJobRequest) (*model.Job, error) {
	start := time.Now()

	if req == nil {
		return nil, apperrors.Validation("request body is required")
	}
	if err := req.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	s.mu.Lock()
	outcome, err := s.failByIDLocked(ctx, id, req.ErrorMessage)
	s.mu.Unlock()
	if err != nil {
		s.emitJobMetric(metrics.TransitionFail, metrics.ResultError, start, err)
		return nil, err
	}

	s.persister.Schedule()
	s.emitJobMetric(metrics.TransitionFail, metrics.ResultSuccess, start, nil)

	if s.logger != nil {
		s.logger.DebugContext(ctx, "job failure recorded",
			"id", id,
			"status", outcome.job.Status,
			"retries", outcome.job.Retries,
		)
	}

	if outcome.permanent {
		s.notifyPermanentFailure(ctx, outcome)
	}

	return outcome.job, nil
}

func (s *DispatcherService) failByIDLocked(ctx context.Context, id, errMsg string) (failOutcome, error) {
	job, err := s.getJobLocked(ctx, id)
	if err != nil {
		return failOutcome{}, err
	}
	if job.Status.Terminal() {
		return failOutcome{}, apperrors.Validationf("job %s is %s and cannot be failed", id, job.Status)
	}
	return s.failJobLocked(ctx, job, errMsg)
}

// failJobLocked records one failure attempt and routes the job per its retry
// budget: requeue while retries < max_retries, otherwise failed_permanently.
// With backoff enabled a requeued job is parked in failed_retry until its
// retry_after elapses. Callers hold s.mu.
func (s *DispatcherService) failJobLocked(ctx context.Context, job *model.Job, errMsg string) (failOutcome, error) {
	var engineID string
	if job.AssignedEngine != nil {
		engineID = *job.AssignedEngine
		if err := s.releaseEngineLocked(ctx, engineID); err != nil {
			return failOutcome{}, err
		}
	}

	msg := errMsg
	job.ErrorMessage = &msg
	job.AssignedEngine = nil

	if job.Retries < job.MaxRetries {
		job.Retries++
		job.Status = model.JobStatusPending
		job.RetryAfter = nil
		job.UpdatedAt = s.now()
		if err := s.store.SaveJob(ctx, job); err != nil {
			return failOutcome{}, fmt.Errorf("save job %s: %w", job.ID, err)
		}

		if s.retryBackoffEnabled {
			retryAt := s.now().Add(schedule.RetryDelay(job.Retries))
			if err := s.store.MarkFailedRetry(ctx, job.ID, retryAt); err != nil {
				return failOutcome{}, fmt.Errorf("mark failed_retry for job %s: %w", job.ID, err)
			}
			parked, err := s.getJobLocked(ctx, job.ID)
			if err != nil {
				return failOutcome{}, err
			}
			return failOutcome{job: parked, engineID: engineID}, nil
		}

		return failOutcome{job: job, engineID: engineID}, nil
	}

	job.Status = model.JobStatusFailedPermanently
	job.RetryAfter = nil
	job.UpdatedAt = s.now()
	if err := s.store.SaveJob(ctx, job); err != nil {
		return failOutcome{}, fmt.Errorf("save job %s: %w", job.ID, err)
	}
	return failOutcome{job: job, engineID: engineID, permanent: true}, nil
}

// Progress records percent progress on a non-terminal job and returns the
// refreshed record.
func (s *DispatcherService) Progress(ctx context.Context, id string, req *model.ProgressUpdateRequest) (*model.Job, error) {
	if req == nil {
		return nil, apperrors.Validation("request body is required")
	}
	if err := req.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	s.mu.Lock()
	job, err := s.progressLocked(ctx, id, req)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	s.persister.Schedule()

	if s.logger != nil {
		s.logger.DebugContext(ctx, "job progress updated",
			"id", id,
			"progress", *req.Progress,
		)
	}

	return job, nil
}

func (s *DispatcherService) progressLocked(ctx context.Context, id string, req *model.ProgressUpdateRequest) (*model.Job, error) {
	job, err := s.getJobLocked(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status.Terminal() {
		return nil, apperrors.Validationf("job %s is %s and cannot accept progress", id, job.Status)
	}

	if err := s.store.UpdateProgress(ctx, core.UpdateProgressParams{
		JobID:    id,
		Progress: *req.Progress,
		Message:  req.Message,
	}); err != nil {
		if errors.Is(err, data.ErrJobNotFound) {
			return nil, apperrors.NotFoundf("job %s not found", id)
		}
		return nil, fmt.Errorf("update progress for job %s: %w", id, err)
	}

	return s.getJobLocked(ctx, id)
}

// Retry requeues a failed job with a fresh retry budget. Accepted from
// failed, failed_permanently, and failed_retry.
func (s *DispatcherService) Retry(ctx context.Context, id string) (*model.Job, error) {
	start := time.Now()

	s.mu.Lock()
	job, err := s.retryLocked(ctx, id)
	s.mu.Unlock()
	if err != nil {
		s.emitJobMetric(metrics.TransitionRetry, metrics.ResultError, start, err)
		return nil, err
	}

	s.persister.Schedule()
	s.emitJobMetric(metrics.TransitionRetry, metrics.ResultSuccess, start, nil)

	if s.logger != nil {
		s.logger.InfoContext(ctx, "job requeued by retry", "id", id)
	}

	return job, nil
}

func (s *DispatcherService) retryLocked(ctx context.Context, id string) (*model.Job, error) {
	job, err := s.getJobLocked(ctx, id)
	if err != nil {
		return nil, err
	}

	switch job.Status {
	case model.JobStatusFailed, model.JobStatusFailedPermanently, model.JobStatusFailedRetry:
	default:
		return nil, apperrors.Validationf("job %s is %s and cannot be retried", id, job.Status)
	}

	job.Status = model.JobStatusPending
	job.Retries = 0
	job.AssignedEngine = nil
	job.OutputURL = nil
	job.ErrorMessage = nil
	job.RetryAfter = nil
	job.Progress = nil
	job.ProgressMessage = nil
	job.UpdatedAt = s.now()
	if err := s.store.SaveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("save job %s: %w", id, err)
	}
	return job, nil
}

// Cancel moves a non-terminal job to cancelled and releases its engine.
// Cancellation never counts against the retry budget.
func (s *DispatcherService) Cancel(ctx context.Context, id string) (*model.Job, error) {
	start := time.Now()

	s.mu.Lock()
	job, err := s.cancelLocked(ctx, id)
	s.mu.Unlock()
	if err != nil {
		s.emitJobMetric(metrics.TransitionCancel, metrics.ResultError, start, err)
		return nil, err
	}

	s.persister.Schedule()
	s.emitJobMetric(metrics.TransitionCancel, metrics.ResultSuccess, start, nil)

	if s.logger != nil {
		s.logger.InfoContext(ctx, "job cancelled", "id", id)
	}

	return job, nil
}

func (s *DispatcherService) cancelLocked(ctx context.Context, id string) (*model.Job, error) {
	job, err := s.getJobLocked(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status.Terminal() {
		return nil, apperrors.Validationf("job %s is %s and cannot be cancelled", id, job.Status)
	}

	if job.AssignedEngine != nil {
		if err := s.releaseEngineLocked(ctx, *job.AssignedEngine); err != nil {
			return nil, err
		}
	}

	job.Status = model.JobStatusCancelled
	job.AssignedEngine = nil
	job.RetryAfter = nil
	job.UpdatedAt = s.now()
	if err := s.store.SaveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("save job %s: %w", id, err)
	}
	return job, nil
}

// notifyPermanentFailure fans a permanent failure out to the configured
// notification sinks. Called after the coordination lock is released.
func (s *DispatcherService) notifyPermanentFailure(ctx context.Context, outcome failOutcome) {
	if s.failureNotifier == nil || !s.failureNotifier.Enabled() {
		return
	}
	s.failureNotifier.NotifyJobFailure(ctx, buildJobFailurePayload(outcome, s.now()))
}

func buildJobFailurePayload(outcome failOutcome, occurredAt time.Time) notify.JobFailurePayload {
	job := outcome.job
	payload := notify.JobFailurePayload{
		JobID:       job.ID,
		SourceURL:   job.SourceURL,
		TargetCodec: job.TargetCodec,
		EngineID:    outcome.engineID,
		Severity:    notify.SeverityCritical,
		OccurredAt:  occurredAt,
		Metadata: map[string]string{
			"retries":     strconv.Itoa(job.Retries),
			"max_retries": strconv.Itoa(job.MaxRetries),
		},
	}
	if job.ErrorMessage != nil {
		payload.Error = *job.ErrorMessage
	}
	// Engines report failures as free text, so the coordinator can only
	// classify the failures it caused itself.
	if payload.Error == timeoutReason {
		payload.ErrorClass = timeoutReason
	}
	return payload
}
