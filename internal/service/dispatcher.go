package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/target/transcode-dispatch/internal/core"
	"github.com/target/transcode-dispatch/internal/data"
	"github.com/target/transcode-dispatch/internal/domain/model"
	apperrors "github.com/target/transcode-dispatch/internal/errors"
	"github.com/target/transcode-dispatch/internal/observability/metrics"
	"github.com/target/transcode-dispatch/internal/observability/statsd"
	"github.com/target/transcode-dispatch/internal/service/failurenotifier"
)

// DispatcherServiceOptions groups dependencies for DispatcherService.
type DispatcherServiceOptions struct {
	Store               core.Store               // Required: job and engine persistence
	Persister           core.Persister           // Optional: snapshot scheduler, defaults to a no-op
	Logger              *slog.Logger             // Optional: structured logger
	Metrics             statsd.Sink              // Optional: metrics sink (StatsD-compatible)
	FailureNotifier     *failurenotifier.Service // Optional: permanent-failure notification fan-out
	TimeProvider        data.TimeProvider        // Optional: clock override for tests
	DefaultMaxRetries   int                      // Optional: retry budget when submissions omit max_retries
	RetryBackoffEnabled bool                     // Optional: park failed jobs in failed_retry with exponential delay
}

// DispatcherService owns the job and engine state machines.
//
// This service manages:
// - Job submission, updates, and lifecycle transitions (complete/fail/retry/cancel)
// - Engine registration via heartbeats and benchmark reports
// - Size-aware assignment of pending jobs to idle engines
// - The timeout and expiry sweeps driven by the reaper.
//
// Every mutation runs under a single coordination mutex so coupled
// job+engine updates are atomic. Metrics, notifications, and snapshot
// scheduling happen after the lock is released.
type DispatcherService struct {
	mu                  sync.Mutex
	store               core.Store
	persister           core.Persister
	logger              *slog.Logger
	metrics             statsd.Sink
	failureNotifier     *failurenotifier.Service
	timeProvider        data.TimeProvider
	defaultMaxRetries   int
	retryBackoffEnabled bool
}

// NewDispatcherService constructs a new DispatcherService.
func NewDispatcherService(opts DispatcherServiceOptions) (*DispatcherService, error) {
	if opts.Store == nil {
		return nil, errors.New("Store is required")
	}

	persister := opts.Persister
	if persister == nil {
		persister = NoopPersister{}
	}

	timeProvider := opts.TimeProvider
	if timeProvider == nil {
		timeProvider = &data.RealTimeProvider{}
	}

	defaultMaxRetries := opts.DefaultMaxRetries
	if defaultMaxRetries < 0 {
		defaultMaxRetries = 0
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "dispatcher_service")
		logger.Debug("DispatcherService initialized",
			"default_max_retries", defaultMaxRetries,
			"retry_backoff_enabled", opts.RetryBackoffEnabled,
		)
	}

	return &DispatcherService{
		store:               opts.Store,
		persister:           persister,
		logger:              logger,
		metrics:             opts.Metrics,
		failureNotifier:     opts.FailureNotifier,
		timeProvider:        timeProvider,
		defaultMaxRetries:   defaultMaxRetries,
		retryBackoffEnabled: opts.RetryBackoffEnabled,
	}, nil
}

// MustNewDispatcherService constructs a new DispatcherService and panics on error.
// Use this when you're certain the options are valid (e.g., in main.go).
func MustNewDispatcherService(opts DispatcherServiceOptions) *DispatcherService {
	svc, err := NewDispatcherService(opts)
	if err != nil {
		panic(fmt.Sprintf("failed to create DispatcherService: %v", err))
	}
	return svc
}

// Submit validates and enqueues a new transcoding job.
func (s *DispatcherService) Submit(ctx context.Context, req *model.SubmitJobRequest) (*model.Job, error) {
	start := time.Now()

	if req == nil {
		return nil, apperrors.Validation("request body is required")
	}
	if err := req.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	maxRetries := s.defaultMaxRetries
	if req.MaxRetries != nil {
		maxRetries = *req.MaxRetries
	}

	s.mu.Lock()
	now := s.now()
	job := &model.Job{
		ID:                   uuid.NewString(),
		SourceURL:            req.SourceURL,
		TargetCodec:          req.TargetCodec,
		JobSize:              req.JobSize,
		Priority:             req.Priority,
		Status:               model.JobStatusPending,
		MaxRetries:           maxRetries,
		ResourceRequirements: req.ResourceRequirements,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	err := s.store.SaveJob(ctx, job)
	s.mu.Unlock()

	if err != nil {
		s.emitJobMetric(metrics.TransitionSubmit, metrics.ResultError, start, err)
		return nil, fmt.Errorf("save job %s: %w", job.ID, err)
	}

	s.persister.Schedule()
	s.emitJobMetric(metrics.TransitionSubmit, metrics.ResultSuccess, start, nil)

	if s.logger != nil {
		s.logger.DebugContext(ctx, "job submitted",
			"id", job.ID,
			"target_codec", job.TargetCodec,
			"job_size_mb", job.JobSize,
			"priority", job.Priority,
		)
	}

	return job, nil
}

// GetJob returns a single job by id.
func (s *DispatcherService) GetJob(ctx context.Context, id string) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getJobLocked(ctx, id)
}

// ListJobs returns all jobs ordered by creation time.
func (s *DispatcherService) ListJobs(ctx context.Context) ([]*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs, err := s.store.ListJobs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// UpdateJob applies a whitelisted patch to a non-terminal job.
func (s *DispatcherService) UpdateJob(ctx context.Context, id string, patch *model.UpdateJobRequest) (*model.Job, error) {
	if patch == nil {
		return nil, apperrors.Validation("request body is required")
	}
	if err := patch.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	s.mu.Lock()
	job, err := s.updateJobLocked(ctx, id, patch)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	s.persister.Schedule()

	if s.logger != nil {
		s.logger.DebugContext(ctx, "job updated", "id", id)
	}

	return job, nil
}

func (s *DispatcherService) updateJobLocked(ctx context.Context, id string, patch *model.UpdateJobRequest) (*model.Job, error) {
	current, err := s.getJobLocked(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status.Terminal() {
		return nil, apperrors.Validationf("job %s is %s and cannot be updated", id, current.Status)
	}

	job, err := s.store.UpdateJob(ctx, id, patch)
	if err != nil {
		switch {
		case errors.Is(err, data.ErrJobNotFound):
			return nil, apperrors.NotFoundf("job %s not found", id)
		case errors.Is(err, data.ErrMaxRetriesTooLow):
			return nil, apperrors.Validation(err.Error())
		}
		return nil, fmt.Errorf("update job %s: %w", id, err)
	}
	return job, nil
}

// Stats returns job counts grouped by status.
func (s *DispatcherService) Stats(ctx context.Context) (*model.JobStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	return stats, nil
}

// now returns the dispatcher clock in UTC. Callers hold s.mu when the value
// lands in persisted records.
func (s *DispatcherService) now() time.Time {
	return s.timeProvider.Now().UTC()
}

// getJobLocked loads a job and maps store absence to a not-found AppError.
// Callers hold s.mu.
func (s *DispatcherService) getJobLocked(ctx context.Context, id string) (*model.Job, error) {
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		if errors.Is(err, data.ErrJobNotFound) {
			return nil, apperrors.NotFoundf("job %s not found", id)
		}
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return job, nil
}

// releaseEngineLocked returns an engine to the idle pool. A missing engine is
// not an error; the reaper may have removed it already. Callers hold s.mu.
func (s *DispatcherService) releaseEngineLocked(ctx context.Context, engineID string) error {
	engine, err := s.store.GetEngine(ctx, engineID)
	if err != nil {
		if errors.Is(err, data.ErrEngineNotFound) {
			return nil
		}
		return fmt.Errorf("get engine %s: %w", engineID, err)
	}

	engine.Status = model.EngineStatusIdle
	engine.CurrentJobID = nil
	if err := s.store.SaveEngine(ctx, engine); err != nil {
		return fmt.Errorf("save engine %s: %w", engineID, err)
	}
	return nil
}

func (s *DispatcherService) emitJobMetric(transition, result string, start time.Time, err error) {
	metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
		Transition: transition,
		Result:     result,
		Duration:   time.Since(start),
		Err:        err,
	})
}
