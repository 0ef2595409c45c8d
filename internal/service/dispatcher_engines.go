package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/target/transcode-dispatch/internal/data"
	"github.com/target/transcode-dispatch/internal/domain/model"
	"github.com/target/transcode-dispatch/internal/domain/schedule"
	apperrors "github.com/target/transcode-dispatch/internal/errors"
	"github.com/target/transcode-dispatch/internal/observability/metrics"
)

// Heartbeat upserts an engine from its periodic capability report. Reported
// capability fields replace the stored record wholesale; status and current
// job are server owned and survive the upsert on known engines.
func (s *DispatcherService) Heartbeat(ctx context.Context, hb *model.Heartbeat) (*model.Engine, error) {
	if hb == nil {
		return nil, apperrors.Validation("request body is required")
	}
	if err := hb.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	s.mu.Lock()
	engine, err := s.heartbeatLocked(ctx, hb)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	s.persister.Schedule()
	s.emitFleetGauges(ctx)

	if s.logger != nil {
		s.logger.DebugContext(ctx, "engine heartbeat",
			"engine_id", engine.ID,
			"status", engine.Status,
		)
	}

	return engine, nil
}

func (s *DispatcherService) heartbeatLocked(ctx context.Context, hb *model.Heartbeat) (*model.Engine, error) {
	engine := &model.Engine{
		ID:             hb.EngineID,
		Hostname:       hb.Hostname,
		LastHeartbeat:  s.now(),
		BenchmarkTime:  hb.BenchmarkTime,
		Encoders:       hb.Encoders,
		Decoders:       hb.Decoders,
		HWAccels:       hb.HWAccels,
		CPUTemperature: hb.CPUTemperature,
	}
	if hb.StreamingSupport != nil {
		engine.StreamingSupport = *hb.StreamingSupport
	}
	if hb.StorageCapacityGB != nil {
		engine.StorageCapacityGB = *hb.StorageCapacityGB
	}

	existing, err := s.store.GetEngine(ctx, hb.EngineID)
	switch {
	case err == nil:
		// Status and current job never flip on a heartbeat; only the
		// scheduler marks engines busy and only job transitions release them.
		engine.Status = existing.Status
		engine.CurrentJobID = existing.CurrentJobID
	case errors.Is(err, data.ErrEngineNotFound):
		engine.Status = model.EngineStatusIdle
		if hb.Status != nil {
			engine.Status = *hb.Status
		}
	default:
		return nil, fmt.Errorf("get engine %s: %w", hb.EngineID, err)
	}

	if err := s.store.SaveEngine(ctx, engine); err != nil {
		return nil, fmt.Errorf("save engine %s: %w", hb.EngineID, err)
	}
	return engine, nil
}

// RecordBenchmark updates an engine's benchmark time and nothing else.
func (s *DispatcherService) RecordBenchmark(ctx context.Context, req *model.BenchmarkResult) (*model.Engine, error) {
	if req == nil {
		return nil, apperrors.Validation("request body is required")
	}
	if err := req.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	s.mu.Lock()
	engine, err := s.recordBenchmarkLocked(ctx, req)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	s.persister.Schedule()

	if s.logger != nil {
		s.logger.DebugContext(ctx, "benchmark recorded",
			"engine_id", engine.ID,
			"benchmark_time", *req.BenchmarkTime,
		)
	}

	return engine, nil
}

func (s *DispatcherService) recordBenchmarkLocked(ctx context.Context, req *model.BenchmarkResult) (*model.Engine, error) {
	engine, err := s.store.GetEngine(ctx, req.EngineID)
	if err != nil {
		if errors.Is(err, data.ErrEngineNotFound) {
			return nil, apperrors.NotFoundf("engine %s not found", req.EngineID)
		}
		return nil, fmt.Errorf("get engine %s: %w", req.EngineID, err)
	}

	engine.BenchmarkTime = req.BenchmarkTime
	if err := s.store.SaveEngine(ctx, engine); err != nil {
		return nil, fmt.Errorf("save engine %s: %w", req.EngineID, err)
	}
	return engine, nil
}

// ListEngines returns all registered engines.
func (s *DispatcherService) ListEngines(ctx context.Context) ([]*model.Engine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	engines, err := s.store.ListEngines(ctx)
	if err != nil {
		return nil, fmt.Errorf("list engines: %w", err)
	}
	return engines, nil
}

// GetEngine returns a single engine by id.
func (s *DispatcherService) GetEngine(ctx context.Context, id string) (*model.Engine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	engine, err := s.store.GetEngine(ctx, id)
	if err != nil {
		if errors.Is(err, data.ErrEngineNotFound) {
			return nil, apperrors.NotFoundf("engine %s not found", id)
		}
		return nil, fmt.Errorf("get engine %s: %w", id, err)
	}
	return engine, nil
}

// DeregisterEngine removes an engine and silently requeues any job assigned
// to it. The requeue does not count against the jobs' retry budgets.
func (s *DispatcherService) DeregisterEngine(ctx context.Context, id string) error {
	s.mu.Lock()
	requeued, err := s.deregisterEngineLocked(ctx, id)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.persister.Schedule()
	s.emitFleetGauges(ctx)

	if s.logger != nil {
		s.logger.InfoContext(ctx, "engine deregistered",
			"engine_id", id,
			"requeued_jobs", requeued,
		)
	}

	return nil
}

func (s *DispatcherService) deregisterEngineLocked(ctx context.Context, id string) (int, error) {
	if _, err := s.store.GetEngine(ctx, id); err != nil {
		if errors.Is(err, data.ErrEngineNotFound) {
			return 0, apperrors.NotFoundf("engine %s not found", id)
		}
		return 0, fmt.Errorf("get engine %s: %w", id, err)
	}

	if err := s.store.DeleteEngine(ctx, id); err != nil {
		return 0, fmt.Errorf("delete engine %s: %w", id, err)
	}

	return s.requeueOrphanedJobsLocked(ctx, id)
}

// requeueOrphanedJobsLocked reverts jobs assigned to a removed engine back to
// pending without touching their retry counters. Callers hold s.mu.
func (s *DispatcherService) requeueOrphanedJobsLocked(ctx context.Context, engineID string) (int, error) {
	jobs, err := s.store.JobsByEngine(ctx, engineID)
	if err != nil {
		return 0, fmt.Errorf("jobs by engine %s: %w", engineID, err)
	}

	requeued := 0
	for _, job := range jobs {
		if job.Status != model.JobStatusAssigned {
			continue
		}
		job.Status = model.JobStatusPending
		job.AssignedEngine = nil
		job.UpdatedAt = s.now()
		if err := s.store.SaveJob(ctx, job); err != nil {
			return requeued, fmt.Errorf("save job %s: %w", job.ID, err)
		}
		requeued++
	}
	return requeued, nil
}

// AssignJob binds the next pending job to an eligible idle engine. A
// non-empty req.EngineID restricts selection to that engine. Returns
// model.ErrNoPendingJobs when the queue is empty and
// model.ErrNoEligibleEngines when nothing can take the job; handlers map
// both to 204.
func (s *DispatcherService) AssignJob(ctx context.Context, req *model.AssignRequest) (*model.Job, error) {
	start := time.Now()

	restrictTo := ""
	if req != nil {
		restrictTo = strings.TrimSpace(req.EngineID)
	}

	s.mu.Lock()
	job, engine, err := s.assignJobLocked(ctx, restrictTo)
	s.mu.Unlock()
	if err != nil {
		switch {
		case errors.Is(err, model.ErrNoPendingJobs), errors.Is(err, model.ErrNoEligibleEngines):
			s.emitJobMetric(metrics.TransitionAssign, metrics.ResultNoop, start, nil)
		default:
			s.emitJobMetric(metrics.TransitionAssign, metrics.ResultError, start, err)
		}
		return nil, err
	}

	s.persister.Schedule()
	s.emitJobMetric(metrics.TransitionAssign, metrics.ResultSuccess, start, nil)
	s.emitFleetGauges(ctx)

	if s.logger != nil {
		s.logger.InfoContext(ctx, "job assigned",
			"job_id", job.ID,
			"engine_id", engine.ID,
			"job_size_mb", job.JobSize,
		)
	}

	return job, nil
}

func (s *DispatcherService) assignJobLocked(ctx context.Context, restrictTo string) (*model.Job, *model.Engine, error) {
	job, err := s.store.NextPendingJob(ctx)
	if err != nil {
		if errors.Is(err, model.ErrNoPendingJobs) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("next pending job: %w", err)
	}

	engines, err := s.store.ListEngines(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list engines: %w", err)
	}

	var candidates []*model.Engine
	if restrictTo == "" {
		candidates = engines
	} else {
		for _, engine := range engines {
			if engine.ID == restrictTo {
				candidates = append(candidates, engine)
				break
			}
		}
	}

	engine := schedule.SelectEngine(job, candidates)
	if engine == nil {
		return nil, nil, model.ErrNoEligibleEngines
	}

	now := s.now()
	job.Status = model.JobStatusAssigned
	job.AssignedEngine = &engine.ID
	job.UpdatedAt = now

	engine.Status = model.EngineStatusBusy
	engine.CurrentJobID = &job.ID

	if err := s.store.SaveJob(ctx, job); err != nil {
		return nil, nil, fmt.Errorf("save job %s: %w", job.ID, err)
	}
	if err := s.store.SaveEngine(ctx, engine); err != nil {
		return nil, nil, fmt.Errorf("save engine %s: %w", engine.ID, err)
	}
	return job, engine, nil
}

// emitFleetGauges publishes idle/busy engine counts. Best effort; the fleet
// may change under concurrent traffic between the mutation and the read.
func (s *DispatcherService) emitFleetGauges(ctx context.Context) {
	if s.metrics == nil {
		return
	}
	engines, err := s.store.ListEngines(ctx)
	if err != nil {
		return
	}

	idle, busy := 0, 0
	for _, engine := range engines {
		switch engine.Status {
		case model.EngineStatusIdle:
			idle++
		case model.EngineStatusBusy:
			busy++
		}
	}
	metrics.EmitEngineFleet(s.metrics, idle, busy)
}
