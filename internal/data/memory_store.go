package data

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/target/transcode-dispatch/internal/core"
	"github.com/target/transcode-dispatch/internal/domain/model"
)

// MemoryStoreConfig holds configuration options for the in-memory store.
type MemoryStoreConfig struct {
	TimeProvider TimeProvider
}

// MemoryStore is a thread-safe in-memory implementation of core.Store, used
// for tests and for transient operation without a database file. Records are
// deep-copied on the way in and out, so callers never share memory with the
// store.
type MemoryStore struct {
	mu           sync.RWMutex
	jobs         map[string]*model.Job
	engines      map[string]*model.Engine
	timeProvider TimeProvider
}

// NewMemoryStore creates an empty MemoryStore with the given configuration.
func NewMemoryStore(cfg MemoryStoreConfig) *MemoryStore {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	return &MemoryStore{
		jobs:         make(map[string]*model.Job),
		engines:      make(map[string]*model.Engine),
		timeProvider: tp,
	}
}

// SaveJob upserts the job record as given.
func (s *MemoryStore) SaveJob(_ context.Context, job *model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job.Clone()
	return nil
}

// GetJob returns the job or ErrJobNotFound.
func (s *MemoryStore) GetJob(_ context.Context, id string) (*model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return job.Clone(), nil
}

// ListJobs returns all jobs ordered by creation time, then id, for stable
// output.
func (s *MemoryStore) ListJobs(_ context.Context) ([]*model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	jobs := make([]*model.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, job.Clone())
	}
	sortJobsByAge(jobs)
	return jobs, nil
}

// DeleteJob removes the job or returns ErrJobNotFound.
func (s *MemoryStore) DeleteJob(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return ErrJobNotFound
	}
	delete(s.jobs, id)
	return nil
}

// NextPendingJob returns the pending job with the highest priority, ties
// broken by earliest created_at and then by id.
func (s *MemoryStore) NextPendingJob(_ context.Context) (*model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var next *model.Job
	for _, job := range s.jobs {
		if job.Status != model.JobStatusPending {
			continue
		}
		if next == nil || pendingBefore(job, next) {
			next = job
		}
	}
	if next == nil {
		return nil, model.ErrNoPendingJobs
	}
	return next.Clone(), nil
}

// UpdateJob applies a whitelisted patch and returns the updated record.
func (s *MemoryStore) UpdateJob(_ context.Context, id string, patch *model.UpdateJobRequest) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	if patch.MaxRetries != nil && *patch.MaxRetries < job.Retries {
		return nil, ErrMaxRetriesTooLow
	}
	if patch.Priority != nil {
		job.Priority = *patch.Priority
	}
	if patch.MaxRetries != nil {
		job.MaxRetries = *patch.MaxRetries
	}
	if patch.ResourceRequirements != nil {
		job.ResourceRequirements = slices.Clone(patch.ResourceRequirements)
	}
	job.UpdatedAt = s.timeProvider.Now().UTC()
	return job.Clone(), nil
}

// JobsByEngine returns jobs currently assigned to the engine.
func (s *MemoryStore) JobsByEngine(_ context.Context, engineID string) ([]*model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var jobs []*model.Job
	for _, job := range s.jobs {
		if job.AssignedEngine != nil && *job.AssignedEngine == engineID {
			jobs = append(jobs, job.Clone())
		}
	}
	sortJobsByAge(jobs)
	return jobs, nil
}

// UpdateProgress records percent progress and refreshes updated_at.
func (s *MemoryStore) UpdateProgress(_ context.Context, params core.UpdateProgressParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[params.JobID]
	if !ok {
		return ErrJobNotFound
	}
	progress := params.Progress
	job.Progress = &progress
	if params.Message != nil {
		msg := *params.Message
		job.ProgressMessage = &msg
	}
	job.UpdatedAt = s.timeProvider.Now().UTC()
	return nil
}

// MarkFailedRetry parks the job in failed_retry until retryAfter.
func (s *MemoryStore) MarkFailedRetry(_ context.Context, id string, retryAfter time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	retryAfter = retryAfter.UTC()
	job.Status = model.JobStatusFailedRetry
	job.RetryAfter = &retryAfter
	job.UpdatedAt = s.timeProvider.Now().UTC()
	return nil
}

// StalePendingJobs returns ids of pending jobs created before cutoff,
// oldest first.
func (s *MemoryStore) StalePendingJobs(_ context.Context, cutoff time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var stale []*model.Job
	for _, job := range s.jobs {
		if job.Status == model.JobStatusPending && job.CreatedAt.Before(cutoff) {
			stale = append(stale, job)
		}
	}
	sortJobsByAge(stale)
	ids := make([]string, 0, len(stale))
	for _, job := range stale {
		ids = append(ids, job.ID)
	}
	return ids, nil
}

// Stats counts jobs per status.
func (s *MemoryStore) Stats(_ context.Context) (*model.JobStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := &model.JobStats{}
	for _, job := range s.jobs {
		tallyJob(stats, job.Status, 1)
	}
	return stats, nil
}

// SaveEngine upserts the engine record as given.
func (s *MemoryStore) SaveEngine(_ context.Context, engine *model.Engine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engines[engine.ID] = engine.Clone()
	return nil
}

// GetEngine returns the engine or ErrEngineNotFound.
func (s *MemoryStore) GetEngine(_ context.Context, id string) (*model.Engine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	engine, ok := s.engines[id]
	if !ok {
		return nil, ErrEngineNotFound
	}
	return engine.Clone(), nil
}

// ListEngines returns all engines ordered by id.
func (s *MemoryStore) ListEngines(_ context.Context) ([]*model.Engine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	engines := make([]*model.Engine, 0, len(s.engines))
	for _, engine := range s.engines {
		engines = append(engines, engine.Clone())
	}
	slices.SortFunc(engines, func(a, b *model.Engine) int { return cmp.Compare(a.ID, b.ID) })
	return engines, nil
}

// DeleteEngine removes the engine or returns ErrEngineNotFound.
func (s *MemoryStore) DeleteEngine(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.engines[id]; !ok {
		return ErrEngineNotFound
	}
	delete(s.engines, id)
	return nil
}

// StaleEngines returns ids of engines whose last heartbeat is before cutoff,
// ordered by id.
func (s *MemoryStore) StaleEngines(_ context.Context, cutoff time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id, engine := range s.engines {
		if engine.LastHeartbeat.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

// Snapshot returns a deep copy of all state.
func (s *MemoryStore) Snapshot(_ context.Context) (*model.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := model.NewSnapshot()
	for id, job := range s.jobs {
		snap.Jobs[id] = job.Clone()
	}
	for id, engine := range s.engines {
		snap.Engines[id] = engine.Clone()
	}
	return snap, nil
}

// Restore replaces all state with the snapshot contents.
func (s *MemoryStore) Restore(_ context.Context, snap *model.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = make(map[string]*model.Job)
	s.engines = make(map[string]*model.Engine)
	if snap == nil {
		return nil
	}
	for id, job := range snap.Jobs {
		s.jobs[id] = job.Clone()
	}
	for id, engine := range snap.Engines {
		s.engines[id] = engine.Clone()
	}
	return nil
}

// pendingBefore reports whether a should be assigned before b: higher
// priority first, then older created_at, then smaller id.
func pendingBefore(a, b *model.Job) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func sortJobsByAge(jobs []*model.Job) {
	slices.SortFunc(jobs, func(a, b *model.Job) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

func tallyJob(stats *model.JobStats, status model.JobStatus, n int) {
	stats.Total += n
	switch status {
	case model.JobStatusPending:
		stats.Pending += n
	case model.JobStatusAssigned:
		stats.Assigned += n
	case model.JobStatusCompleted:
		stats.Completed += n
	case model.JobStatusFailed:
		stats.Failed += n
	case model.JobStatusFailedPermanently:
		stats.FailedPermanently += n
	case model.JobStatusCancelled:
		stats.Cancelled += n
	case model.JobStatusFailedRetry:
		stats.FailedRetry += n
	case model.JobStatusExpired:
		stats.Expired += n
	}
}
