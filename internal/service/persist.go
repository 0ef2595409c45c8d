package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/target/transcode-dispatch/internal/core"
	"github.com/target/transcode-dispatch/internal/data"
	"github.com/target/transcode-dispatch/internal/domain/model"
	obserrors "github.com/target/transcode-dispatch/internal/observability/errors"
	"github.com/target/transcode-dispatch/internal/observability/metrics"
	"github.com/target/transcode-dispatch/internal/observability/statsd"
)

// SnapshotSink writes a state snapshot to durable storage.
type SnapshotSink interface {
	Write(snap *model.Snapshot) error
}

// FileSink writes snapshots to a JSON state file via atomic rename.
type FileSink struct {
	Path string
}

// Write persists the snapshot to the configured state file.
func (f *FileSink) Write(snap *model.Snapshot) error {
	return data.WriteSnapshotFile(f.Path, snap)
}

// CountingSink records snapshots in memory and counts writes. Used by tests
// that assert persistence happened without touching the filesystem.
type CountingSink struct {
	writes atomic.Int64
	last   atomic.Pointer[model.Snapshot]
}

// Write stores the snapshot and increments the write counter.
func (c *CountingSink) Write(snap *model.Snapshot) error {
	c.last.Store(snap)
	c.writes.Add(1)
	return nil
}

// Writes returns how many snapshots have been written.
func (c *CountingSink) Writes() int64 {
	return c.writes.Load()
}

// Last returns the most recently written snapshot, or nil.
func (c *CountingSink) Last() *model.Snapshot {
	return c.last.Load()
}

// NoopPersister satisfies core.Persister for backends that persist every
// mutation themselves (SQLite).
type NoopPersister struct{}

// Schedule does nothing.
func (NoopPersister) Schedule() {}

// SaveNow does nothing.
func (NoopPersister) SaveNow(context.Context) error { return nil }

// PersistServiceOptions groups dependencies for PersistService.
type PersistServiceOptions struct {
	Source  core.SnapshotStore // Required: store the snapshots are taken from
	Sink    SnapshotSink       // Required: destination for snapshot writes
	Logger  *slog.Logger       // Optional: structured logger
	Metrics statsd.Sink        // Optional: metrics sink (StatsD-compatible)
}

// PersistService writes state snapshots for the in-memory backend.
//
// Schedule is safe to call from request handlers while they hold the
// dispatcher lock: it only performs a non-blocking channel send. The run
// loop takes the actual snapshot afterwards, so a burst of mutations
// coalesces into at most one in-flight write plus one queued write, and a
// mutation accepted during an in-flight write is always captured by the
// queued one.
type PersistService struct {
	source  core.SnapshotStore
	sink    SnapshotSink
	logger  *slog.Logger
	metrics statsd.Sink
	kick    chan struct{}
}

// NewPersistService constructs a new PersistService.
func NewPersistService(opts PersistServiceOptions) (*PersistService, error) {
	if opts.Source == nil {
		return nil, errors.New("SnapshotStore is required")
	}
	if opts.Sink == nil {
		return nil, errors.New("SnapshotSink is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "persist_service")
	}

	return &PersistService{
		source:  opts.Source,
		sink:    opts.Sink,
		logger:  logger,
		metrics: opts.Metrics,
		kick:    make(chan struct{}, 1),
	}, nil
}

// MustNewPersistService constructs a new PersistService and panics on error.
// Use this when you're certain the options are valid (e.g., in main.go).
func MustNewPersistService(opts PersistServiceOptions) *PersistService {
	svc, err := NewPersistService(opts)
	if err != nil {
		panic(fmt.Sprintf("failed to create PersistService: %v", err))
	}
	return svc
}

// Schedule requests an asynchronous snapshot write. It never blocks.
func (s *PersistService) Schedule() {
	select {
	case s.kick <- struct{}{}:
	default:
		// A write is already queued; it will capture this mutation too.
	}
}

// SaveNow takes a snapshot and writes it synchronously.
func (s *PersistService) SaveNow(ctx context.Context) error {
	start := time.Now()

	snap, err := s.source.Snapshot(ctx)
	if err != nil {
		s.emitSnapshotMetric(time.Since(start), err)
		return fmt.Errorf("snapshot state: %w", err)
	}

	if err := s.sink.Write(snap); err != nil {
		s.emitSnapshotMetric(time.Since(start), err)
		return fmt.Errorf("write snapshot: %w", err)
	}

	s.emitSnapshotMetric(time.Since(start), nil)

	if s.logger != nil {
		s.logger.DebugContext(ctx, "state snapshot written",
			"jobs", len(snap.Jobs),
			"engines", len(snap.Engines),
			"elapsed", time.Since(start),
		)
	}

	return nil
}

// Run drains scheduled snapshot requests until the context is cancelled.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (s *PersistService) Run(ctx context.Context) error {
	if s.logger != nil {
		s.logger.InfoContext(ctx, "starting persist service")
	}

	for {
		select {
		case <-ctx.Done():
			if s.logger != nil {
				s.logger.InfoContext(ctx, "persist service stopping", "reason", ctx.Err())
			}
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case <-s.kick:
			if err := s.SaveNow(ctx); err != nil {
				if isContextCancellation(err) {
					continue
				}
				// Keep running; the next scheduled write retries the full
				// snapshot anyway.
				if s.logger != nil {
					s.logger.Error("snapshot write failed", "error", err)
				}
			}
		}
	}
}

func (s *PersistService) emitSnapshotMetric(elapsed time.Duration, err error) {
	if s.metrics == nil {
		return
	}

	result := metrics.ResultSuccess
	tags := map[string]string{}
	if err != nil {
		result = metrics.ResultError
		if class := obserrors.Classify(err); class != "" {
			tags["error_class"] = class
		}
	}
	tags["result"] = result

	s.metrics.Count("persist.snapshot", 1, tags)
	if elapsed > 0 {
		s.metrics.Timing("persist.snapshot_duration", elapsed, metrics.CloneTags(tags))
	}
}
