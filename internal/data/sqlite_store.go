package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/target/transcode-dispatch/internal/core"
	"github.com/target/transcode-dispatch/internal/domain/model"
	apperrors "github.com/target/transcode-dispatch/internal/errors"
)

// SQLiteStoreConfig holds configuration options for the durable store.
type SQLiteStoreConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// SQLiteStore is a durable implementation of core.Store backed by a single
// SQLite database file. Each record is stored as a JSON document alongside
// integer unix-nano mirrors of its timestamps so ordering queries never parse
// JSON dates. An internal lock serializes every operation; SQLite commits
// make each mutation durable on its own, so no separate snapshot file is
// needed in this mode.
type SQLiteStore struct {
	mu           sync.Mutex
	db           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewSQLiteStore wraps an open database handle. The caller runs migrations
// before handing the handle over.
func NewSQLiteStore(db *sql.DB, cfg SQLiteStoreConfig) *SQLiteStore {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLiteStore{
		db:           db,
		timeProvider: tp,
		logger:       logger.With("component", "sqlite_store"),
	}
}

// SaveJob upserts the job record as given.
func (s *SQLiteStore) SaveJob(ctx context.Context, job *model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveJobLocked(ctx, job)
}

func (s *SQLiteStore) saveJobLocked(ctx context.Context, job *model.Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, data, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			data = excluded.data,
			updated_at = excluded.updated_at`,
		job.ID, string(raw), job.CreatedAt.UnixNano(), job.UpdatedAt.UnixNano())
	if err != nil {
		return apperrors.MapDBError(err)
	}
	return nil
}

// GetJob returns the job or ErrJobNotFound.
func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getJobLocked(ctx, id)
}

func (s *SQLiteStore) getJobLocked(ctx context.Context, id string) (*model.Job, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM jobs WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return unmarshalJob(raw)
}

// ListJobs returns all jobs ordered by creation time, then id.
func (s *SQLiteStore) ListJobs(ctx context.Context) ([]*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queryJobs(ctx, `SELECT data FROM jobs ORDER BY created_at ASC, id ASC`)
}

// DeleteJob removes the job or returns ErrJobNotFound.
func (s *SQLiteStore) DeleteJob(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return apperrors.MapDBError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperrors.MapDBError(err)
	}
	if n == 0 {
		return ErrJobNotFound
	}
	return nil
}

// NextPendingJob returns the pending job with the highest priority, ties
// broken by earliest created_at and then by id.
func (s *SQLiteStore) NextPendingJob(ctx context.Context) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var raw string
	err := s.db.QueryRowContext(ctx, `
		SELECT data FROM jobs
		WHERE json_extract(data, '$.status') = ?
		ORDER BY json_extract(data, '$.priority') DESC, created_at ASC, id ASC
		LIMIT 1`,
		string(model.JobStatusPending)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNoPendingJobs
	}
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return unmarshalJob(raw)
}

// UpdateJob applies a whitelisted patch and returns the updated record.
func (s *SQLiteStore) UpdateJob(ctx context.Context, id string, patch *model.UpdateJobRequest) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, err := s.getJobLocked(ctx, id)
	if err != nil {
		return nil, err
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
		job.ResourceRequirements = patch.ResourceRequirements
	}
	job.UpdatedAt = s.timeProvider.Now().UTC()
	if err := s.saveJobLocked(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// JobsByEngine returns jobs currently assigned to the engine, ordered by
// creation time.
func (s *SQLiteStore) JobsByEngine(ctx context.Context, engineID string) ([]*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queryJobs(ctx, `
		SELECT data FROM jobs
		WHERE json_extract(data, '$.assigned_engine') = ?
		ORDER BY created_at ASC, id ASC`,
		engineID)
}

// UpdateProgress records percent progress and refreshes updated_at.
func (s *SQLiteStore) UpdateProgress(ctx context.Context, params core.UpdateProgressParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, err := s.getJobLocked(ctx, params.JobID)
	if err != nil {
		return err
	}
	progress := params.Progress
	job.Progress = &progress
	if params.Message != nil {
		job.ProgressMessage = params.Message
	}
	job.UpdatedAt = s.timeProvider.Now().UTC()
	return s.saveJobLocked(ctx, job)
}

// MarkFailedRetry parks the job in failed_retry until retryAfter.
func (s *SQLiteStore) MarkFailedRetry(ctx context.Context, id string, retryAfter time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, err := s.getJobLocked(ctx, id)
	if err != nil {
		return err
	}
	retryAfter = retryAfter.UTC()
	job.Status = model.JobStatusFailedRetry
	job.RetryAfter = &retryAfter
	job.UpdatedAt = s.timeProvider.Now().UTC()
	return s.saveJobLocked(ctx, job)
}

// StalePendingJobs returns ids of pending jobs created before cutoff,
// ordered by id.
func (s *SQLiteStore) StalePendingJobs(ctx context.Context, cutoff time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM jobs
		WHERE json_extract(data, '$.status') = ? AND created_at < ?
		ORDER BY id ASC`,
		string(model.JobStatusPending), cutoff.UnixNano())
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperrors.MapDBError(err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Stats counts jobs per status.
func (s *SQLiteStore) Stats(ctx context.Context) (*model.JobStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.QueryContext(ctx, `
		SELECT json_extract(data, '$.status'), COUNT(*)
		FROM jobs
		GROUP BY 1`)
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	defer rows.Close()

	stats := &model.JobStats{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, apperrors.MapDBError(err)
		}
		tallyJob(stats, model.JobStatus(status), n)
	}
	return stats, rows.Err()
}

// SaveEngine upserts the engine record as given.
func (s *SQLiteStore) SaveEngine(ctx context.Context, engine *model.Engine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveEngineLocked(ctx, engine)
}

func (s *SQLiteStore) saveEngineLocked(ctx context.Context, engine *model.Engine) error {
	raw, err := json.Marshal(engine)
	if err != nil {
		return fmt.Errorf("marshal engine %s: %w", engine.ID, err)
	}
	hb := engine.LastHeartbeat.UnixNano()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO engines (id, data, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			data = excluded.data,
			updated_at = excluded.updated_at`,
		engine.ID, string(raw), hb, hb)
	if err != nil {
		return apperrors.MapDBError(err)
	}
	return nil
}

// GetEngine returns the engine or ErrEngineNotFound.
func (s *SQLiteStore) GetEngine(ctx context.Context, id string) (*model.Engine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM engines WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEngineNotFound
	}
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return unmarshalEngine(raw)
}

// ListEngines returns all engines ordered by id.
func (s *SQLiteStore) ListEngines(ctx context.Context) ([]*model.Engine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queryEngines(ctx)
}

// DeleteEngine removes the engine or returns ErrEngineNotFound.
func (s *SQLiteStore) DeleteEngine(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `DELETE FROM engines WHERE id = ?`, id)
	if err != nil {
		return apperrors.MapDBError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperrors.MapDBError(err)
	}
	if n == 0 {
		return ErrEngineNotFound
	}
	return nil
}

// StaleEngines returns ids of engines whose last heartbeat is before cutoff,
// ordered by id. The fleet is small, so the timestamp check happens on the
// decoded records rather than in SQL.
func (s *SQLiteStore) StaleEngines(ctx context.Context, cutoff time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	engines, err := s.queryEngines(ctx)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, engine := range engines {
		if engine.LastHeartbeat.Before(cutoff) {
			ids = append(ids, engine.ID)
		}
	}
	return ids, nil
}

// Snapshot returns a copy of all state.
func (s *SQLiteStore) Snapshot(ctx context.Context) (*model.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := model.NewSnapshot()

	jobs, err := s.queryJobs(ctx, `SELECT data FROM jobs`)
	if err != nil {
		return nil, err
	}
	for _, job := range jobs {
		snap.Jobs[job.ID] = job
	}

	engines, err := s.queryEngines(ctx)
	if err != nil {
		return nil, err
	}
	for _, engine := range engines {
		snap.Engines[engine.ID] = engine
	}
	return snap, nil
}

// Restore replaces all state with the snapshot contents in one transaction.
func (s *SQLiteStore) Restore(ctx context.Context, snap *model.Snapshot) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.MapDBError(err)
	}
	defer func() {
		if rerr := tx.Rollback(); rerr != nil && !errors.Is(rerr, sql.ErrTxDone) {
			err = errors.Join(err, fmt.Errorf("rollback: %w", rerr))
		}
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM jobs`); err != nil {
		return apperrors.MapDBError(err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM engines`); err != nil {
		return apperrors.MapDBError(err)
	}
	if snap != nil {
		for _, job := range snap.Jobs {
			raw, err := json.Marshal(job)
			if err != nil {
				return fmt.Errorf("marshal job %s: %w", job.ID, err)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO jobs (id, data, created_at, updated_at) VALUES (?, ?, ?, ?)`,
				job.ID, string(raw), job.CreatedAt.UnixNano(), job.UpdatedAt.UnixNano()); err != nil {
				return apperrors.MapDBError(err)
			}
		}
		for _, engine := range snap.Engines {
			raw, err := json.Marshal(engine)
			if err != nil {
				return fmt.Errorf("marshal engine %s: %w", engine.ID, err)
			}
			hb := engine.LastHeartbeat.UnixNano()
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO engines (id, data, created_at, updated_at) VALUES (?, ?, ?, ?)`,
				engine.ID, string(raw), hb, hb); err != nil {
				return apperrors.MapDBError(err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return apperrors.MapDBError(err)
	}
	if snap != nil {
		s.logger.DebugContext(ctx, "state restored",
			"jobs", len(snap.Jobs),
			"engines", len(snap.Engines))
	}
	return nil
}

func (s *SQLiteStore) queryJobs(ctx context.Context, query string, args ...any) ([]*model.Job, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	defer rows.Close()

	var jobs []*model.Job
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, apperrors.MapDBError(err)
		}
		job, err := unmarshalJob(raw)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (s *SQLiteStore) queryEngines(ctx context.Context) ([]*model.Engine, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM engines ORDER BY id ASC`)
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	defer rows.Close()

	var engines []*model.Engine
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, apperrors.MapDBError(err)
		}
		engine, err := unmarshalEngine(raw)
		if err != nil {
			return nil, err
		}
		engines = append(engines, engine)
	}
	return engines, rows.Err()
}

func unmarshalJob(raw string) (*model.Job, error) {
	var job model.Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, fmt.Errorf("unmarshal job record: %w", err)
	}
	return &job, nil
}

func unmarshalEngine(raw string) (*model.Engine, error) {
	var engine model.Engine
	if err := json.Unmarshal([]byte(raw), &engine); err != nil {
		return nil, fmt.Errorf("unmarshal engine record: %w", err)
	}
	return &engine, nil
}
