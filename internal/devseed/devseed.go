// Package devseed populates a development instance with a demonstration
// engine fleet and job backlog so the API has data to serve immediately.
package devseed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/transcode-dispatch/internal/domain/model"
	"github.com/target/transcode-dispatch/internal/service"
)

// Services bundles the dependencies needed for development seeding.
type Services struct {
	Dispatcher *service.DispatcherService
}

// NewServices constructs the seeding dependencies around the dispatcher.
func NewServices(dispatcher *service.DispatcherService) Services {
	return Services{Dispatcher: dispatcher}
}

// Run executes the development seeding workflow. A store that already holds
// jobs or engines is left untouched, so restarts never duplicate the fleet.
func Run(ctx context.Context, svcs Services, logger *slog.Logger) error {
	if svcs.Dispatcher == nil {
		return errors.New("dispatcher service is required")
	}

	empty, err := storeIsEmpty(ctx, svcs.Dispatcher)
	if err != nil {
		return fmt.Errorf("inspect store before seeding: %w", err)
	}
	if !empty {
		if logger != nil {
			logger.InfoContext(ctx, "state already present, skipping dev seed")
		}
		return nil
	}

	failures := 0
	failures += seedEngines(ctx, svcs.Dispatcher, logger)
	failures += seedJobs(ctx, svcs.Dispatcher, logger)
	if failures > 0 {
		return fmt.Errorf("%d seed errors; check logs", failures)
	}
	return nil
}

func storeIsEmpty(ctx context.Context, svc *service.DispatcherService) (bool, error) {
	jobs, err := svc.ListJobs(ctx)
	if err != nil {
		return false, err
	}
	if len(jobs) > 0 {
		return false, nil
	}

	engines, err := svc.ListEngines(ctx)
	if err != nil {
		return false, err
	}
	return len(engines) == 0, nil
}

func seedEngines(ctx context.Context, svc *service.DispatcherService, logger *slog.Logger) int {
	failures := 0
	for _, hb := range demoFleet() {
		engine, err := svc.Heartbeat(ctx, hb)
		if err != nil {
			if logger != nil {
				logger.ErrorContext(ctx, "failed to seed engine", "engine_id", hb.EngineID, "error", err)
			}
			failures++
			continue
		}
		if logger != nil {
			logger.InfoContext(ctx, "seeded engine",
				"engine_id", engine.ID,
				"benchmark_time", engine.BenchmarkTime,
				"streaming_support", engine.StreamingSupport,
			)
		}
	}
	return failures
}

// demoFleet spans the scheduling policy's dimensions: a fast encoder for
// medium jobs, a slow box that should only see small clips, and a streaming
// engine with the storage headroom large masters require.
func demoFleet() []*model.Heartbeat {
	return []*model.Heartbeat{
		{
			EngineID:          "demo-fast",
			Hostname:          "demo-fast.local",
			BenchmarkTime:     floatPtr(45),
			StorageCapacityGB: floatPtr(2000),
			Encoders:          []string{"h264", "hevc"},
		},
		{
			EngineID:          "demo-slow",
			Hostname:          "demo-slow.local",
			BenchmarkTime:     floatPtr(240),
			StorageCapacityGB: floatPtr(500),
			Encoders:          []string{"h264"},
		},
		{
			EngineID:          "demo-streamer",
			Hostname:          "demo-streamer.local",
			BenchmarkTime:     floatPtr(150),
			StreamingSupport:  boolPtr(true),
			StorageCapacityGB: floatPtr(8000),
			Encoders:          []string{"h264", "hevc", "av1"},
		},
	}
}

func seedJobs(ctx context.Context, svc *service.DispatcherService, logger *slog.Logger) int {
	failures := 0
	for _, req := range demoBacklog() {
		job, err := svc.Submit(ctx, req)
		if err != nil {
			if logger != nil {
				logger.ErrorContext(ctx, "failed to seed job", "source_url", req.SourceURL, "error", err)
			}
			failures++
			continue
		}
		if logger != nil {
			logger.InfoContext(ctx, "seeded job",
				"job_id", job.ID,
				"job_size", job.JobSize,
				"priority", job.Priority,
			)
		}
	}
	return failures
}

// demoBacklog covers each size bucket once so assignment demos show the
// size-aware placement immediately.
func demoBacklog() []*model.SubmitJobRequest {
	return []*model.SubmitJobRequest{
		{
			SourceURL:   "https://media.example.com/demo/clip.mp4",
			TargetCodec: "h264",
			JobSize:     12,
		},
		{
			SourceURL:   "https://media.example.com/demo/episode.mp4",
			TargetCodec: "hevc",
			JobSize:     75,
			Priority:    model.PriorityHigh,
		},
		{
			SourceURL:   "https://media.example.com/demo/feature.mkv",
			TargetCodec: "av1",
			JobSize:     4096,
		},
	}
}

func floatPtr(f float64) *float64 { return &f }

func boolPtr(b bool) *bool { return &b }
