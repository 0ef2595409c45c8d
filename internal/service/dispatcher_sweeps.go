package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/target/transcode-dispatch/internal/data"
	"github.com/target/transcode-dispatch/internal/domain/model"
)

// timeoutReason is recorded on jobs failed by the engine and job sweeps.
const timeoutReason = "timeout"

// ReapStaleEngines removes engines whose last heartbeat is older than maxAge.
// A job assigned to a removed engine takes a timeout failure, which counts
// against its retry budget. Returns the number of engines removed.
func (s *DispatcherService) ReapStaleEngines(ctx context.Context, maxAge time.Duration) (int64, error) {
	s.mu.Lock()
	removed, outcomes, err := s.reapStaleEnginesLocked(ctx, maxAge)
	s.mu.Unlock()

	s.afterSweep(ctx, removed > 0, outcomes)

	if err != nil {
		return removed, err
	}

	if removed > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "removed stale engines",
			"count", removed,
			"max_age", maxAge,
		)
	}

	return removed, nil
}

func (s *DispatcherService) reapStaleEnginesLocked(ctx context.Context, maxAge time.Duration) (int64, []failOutcome, error) {
	cutoff := s.now().Add(-maxAge)
	ids, err := s.store.StaleEngines(ctx, cutoff)
	if err != nil {
		return 0, nil, fmt.Errorf("stale engines: %w", err)
	}

	var removed int64
	var outcomes []failOutcome
	for _, id := range ids {
		// Delete before failing the jobs so the release inside the fail path
		// cannot resurrect the stale record.
		if err := s.store.DeleteEngine(ctx, id); err != nil {
			if errors.Is(err, data.ErrEngineNotFound) {
				continue
			}
			return removed, outcomes, fmt.Errorf("delete engine %s: %w", id, err)
		}
		removed++

		jobs, err := s.store.JobsByEngine(ctx, id)
		if err != nil {
			return removed, outcomes, fmt.Errorf("jobs by engine %s: %w", id, err)
		}
		for _, job := range jobs {
			if job.Status != model.JobStatusAssigned {
				continue
			}
			outcome, err := s.failJobLocked(ctx, job, timeoutReason)
			if err != nil {
				return removed, outcomes, err
			}
			outcome.engineID = id
			outcomes = append(outcomes, outcome)
		}
	}
	return removed, outcomes, nil
}

// TimeoutStuckJobs fails assigned jobs whose updated_at is older than maxAge
// with reason "timeout"; the retry budget then decides requeue versus
// failed_permanently. Returns the number of jobs timed out.
func (s *DispatcherService) TimeoutStuckJobs(ctx context.Context, maxAge time.Duration) (int64, error) {
	s.mu.Lock()
	outcomes, err := s.timeoutStuckJobsLocked(ctx, maxAge)
	s.mu.Unlock()

	count := int64(len(outcomes))
	s.afterSweep(ctx, false, outcomes)

	if err != nil {
		return count, err
	}

	if count > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "timed out stuck jobs",
			"count", count,
			"max_age", maxAge,
		)
	}

	return count, nil
}

func (s *DispatcherService) timeoutStuckJobsLocked(ctx context.Context, maxAge time.Duration) ([]failOutcome, error) {
	cutoff := s.now().Add(-maxAge)
	jobs, err := s.store.ListJobs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	var outcomes []failOutcome
	for _, job := range jobs {
		if job.Status != model.JobStatusAssigned || !job.UpdatedAt.Before(cutoff) {
			continue
		}
		outcome, err := s.failJobLocked(ctx, job, timeoutReason)
		if err != nil {
			return outcomes, err
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

// ExpireStalePending parks pending jobs older than maxAge in the expired
// state. Expired jobs leave the scheduling queue but remain queryable.
// Returns the number of jobs expired.
func (s *DispatcherService) ExpireStalePending(ctx context.Context, maxAge time.Duration) (int64, error) {
	s.mu.Lock()
	expired, err := s.expireStalePendingLocked(ctx, maxAge)
	s.mu.Unlock()

	if expired > 0 {
		s.persister.Schedule()
	}

	if err != nil {
		return expired, err
	}

	if expired > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "expired stale pending jobs",
			"count", expired,
			"max_age", maxAge,
		)
	}

	return expired, nil
}

func (s *DispatcherService) expireStalePendingLocked(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := s.now().Add(-maxAge)
	ids, err := s.store.StalePendingJobs(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("stale pending jobs: %w", err)
	}

	var expired int64
	for _, id := range ids {
		job, err := s.store.GetJob(ctx, id)
		if err != nil {
			if errors.Is(err, data.ErrJobNotFound) {
				continue
			}
			return expired, fmt.Errorf("get job %s: %w", id, err)
		}
		if job.Status != model.JobStatusPending {
			continue
		}

		job.Status = model.JobStatusExpired
		job.UpdatedAt = s.now()
		if err := s.store.SaveJob(ctx, job); err != nil {
			return expired, fmt.Errorf("save job %s: %w", id, err)
		}
		expired++
	}
	return expired, nil
}

// PromoteDueRetries moves failed_retry jobs whose retry_after has elapsed
// back to pending. Only meaningful with retry backoff enabled. Returns the
// number of jobs promoted.
func (s *DispatcherService) PromoteDueRetries(ctx context.Context) (int64, error) {
	s.mu.Lock()
	promoted, err := s.promoteDueRetriesLocked(ctx)
	s.mu.Unlock()

	if promoted > 0 {
		s.persister.Schedule()
	}

	if err != nil {
		return promoted, err
	}

	if promoted > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "promoted jobs out of retry backoff", "count", promoted)
	}

	return promoted, nil
}

func (s *DispatcherService) promoteDueRetriesLocked(ctx context.Context) (int64, error) {
	now := s.now()
	jobs, err := s.store.ListJobs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list jobs: %w", err)
	}

	var promoted int64
	for _, job := range jobs {
		if job.Status != model.JobStatusFailedRetry {
			continue
		}
		// A missing retry_after means the park is already due.
		if job.RetryAfter != nil && job.RetryAfter.After(now) {
			continue
		}

		job.Status = model.JobStatusPending
		job.RetryAfter = nil
		job.UpdatedAt = now
		if err := s.store.SaveJob(ctx, job); err != nil {
			return promoted, fmt.Errorf("save job %s: %w", job.ID, err)
		}
		promoted++
	}
	return promoted, nil
}

// afterSweep runs the post-lock bookkeeping for a sweep: persistence
// scheduling, fleet gauges when engines changed, and permanent-failure
// notifications.
func (s *DispatcherService) afterSweep(ctx context.Context, enginesChanged bool, outcomes []failOutcome) {
	if enginesChanged || len(outcomes) > 0 {
		s.persister.Schedule()
		s.emitFleetGauges(ctx)
	}
	for _, outcome := range outcomes {
		if outcome.permanent {
			s.notifyPermanentFailure(ctx, outcome)
		}
	}
}
