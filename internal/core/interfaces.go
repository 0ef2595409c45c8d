// Package core defines the contracts between the dispatch service layer and
// its collaborators (ports in hexagonal architecture). Service
// implementations should depend on these interfaces, not concrete
// implementations.
package core

import (
	"context"
	"time"

	"github.com/target/transcode-dispatch/internal/domain/model"
)

// JobStore defines the interface for job data operations.
type JobStore interface {
	// SaveJob upserts the full job record.
	SaveJob(ctx context.Context, job *model.Job) error
	GetJob(ctx context.Context, id string) (*model.Job, error)
	ListJobs(ctx context.Context) ([]*model.Job, error)
	DeleteJob(ctx context.Context, id string) error

	// NextPendingJob returns the pending job with the highest priority,
	// ties broken by earliest created_at and then by id. Returns
	// model.ErrNoPendingJobs when nothing is queued.
	NextPendingJob(ctx context.Context) (*model.Job, error)

	// UpdateJob applies a whitelisted partial update and returns the
	// updated record.
	UpdateJob(ctx context.Context, id string, patch *model.UpdateJobRequest) (*model.Job, error)

	// JobsByEngine returns jobs whose assigned_engine equals engineID.
	JobsByEngine(ctx context.Context, engineID string) ([]*model.Job, error)

	UpdateProgress(ctx context.Context, params UpdateProgressParams) error

	// MarkFailedRetry parks the job in failed_retry until retryAfter.
	MarkFailedRetry(ctx context.Context, id string, retryAfter time.Time) error

	// StalePendingJobs returns ids of pending jobs created before cutoff.
	StalePendingJobs(ctx context.Context, cutoff time.Time) ([]string, error)

	Stats(ctx context.Context) (*model.JobStats, error)
}

// UpdateProgressParams groups parameters for UpdateProgress to keep param count ≤3.
type UpdateProgressParams struct {
	JobID    string
	Progress int
	Message  *string
}

// EngineStore defines the interface for engine data operations.
type EngineStore interface {
	// SaveEngine upserts the full engine record.
	SaveEngine(ctx context.Context, engine *model.Engine) error
	GetEngine(ctx context.Context, id string) (*model.Engine, error)
	ListEngines(ctx context.Context) ([]*model.Engine, error)
	DeleteEngine(ctx context.Context, id string) error

	// StaleEngines returns ids of engines whose last heartbeat is before
	// cutoff.
	StaleEngines(ctx context.Context, cutoff time.Time) ([]string, error)
}

// Sweeper exposes the dispatcher's periodic cleanup operations to the
// reaper. Each call returns how many records it touched.
type Sweeper interface {
	// ReapStaleEngines removes engines silent for longer than maxAge and
	// fails their assigned jobs with a timeout.
	ReapStaleEngines(ctx context.Context, maxAge time.Duration) (int64, error)
	// TimeoutStuckJobs fails assigned jobs untouched for longer than maxAge.
	TimeoutStuckJobs(ctx context.Context, maxAge time.Duration) (int64, error)
	// ExpireStalePending parks pending jobs older than maxAge as expired.
	ExpireStalePending(ctx context.Context, maxAge time.Duration) (int64, error)
	// PromoteDueRetries returns failed_retry jobs whose backoff has elapsed
	// to the pending queue.
	PromoteDueRetries(ctx context.Context) (int64, error)
}

// SnapshotStore captures and restores the full dispatcher state.
type SnapshotStore interface {
	// Snapshot returns a deep copy of all jobs and engines, safe to
	// serialize without holding store locks.
	Snapshot(ctx context.Context) (*model.Snapshot, error)
	// Restore replaces all state with the snapshot contents.
	Restore(ctx context.Context, snap *model.Snapshot) error
}

// Store aggregates the persistence surface the dispatcher depends on.
type Store interface {
	JobStore
	EngineStore
	SnapshotStore
}
