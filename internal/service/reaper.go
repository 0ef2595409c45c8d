package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/transcode-dispatch/config"
	"github.com/target/transcode-dispatch/internal/core"
	obserrors "github.com/target/transcode-dispatch/internal/observability/errors"
	"github.com/target/transcode-dispatch/internal/observability/metrics"
	"github.com/target/transcode-dispatch/internal/observability/statsd"
)

// ReaperServiceOptions groups dependencies for ReaperService.
type ReaperServiceOptions struct {
	Sweeper core.Sweeper        // Required: dispatcher sweep operations
	Config  config.ReaperConfig // Required: reaper configuration
	Logger  *slog.Logger        // Optional: structured logger
	Metrics statsd.Sink         // Optional: metrics sink (StatsD-compatible)
}

// ReaperService enforces heartbeat and execution time bounds in the background.
//
// Each pass runs, in order:
// - Removing engines whose heartbeat went silent, requeueing their jobs.
// - Failing assigned jobs stuck past the job timeout.
// - Parking pending jobs nobody picked up as expired.
// - Promoting parked retries whose backoff window has elapsed.
type ReaperService struct {
	sweeper core.Sweeper
	config  config.ReaperConfig
	logger  *slog.Logger
	metrics statsd.Sink
}

// NewReaperService constructs a new ReaperService.
func NewReaperService(opts ReaperServiceOptions) (*ReaperService, error) {
	if opts.Sweeper == nil {
		return nil, errors.New("Sweeper is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "reaper_service")
		logger.Debug("ReaperService initialized",
			"interval", opts.Config.Interval,
			"engine_timeout", opts.Config.EngineTimeout,
			"job_timeout", opts.Config.JobTimeout,
			"pending_max_age", opts.Config.PendingMaxAge,
		)
	}

	return &ReaperService{
		sweeper: opts.Sweeper,
		config:  opts.Config,
		logger:  logger,
		metrics: opts.Metrics,
	}, nil
}

// MustNewReaperService constructs a new ReaperService and panics on error.
// Use this when you're certain the options are valid (e.g., in main.go).
func MustNewReaperService(opts ReaperServiceOptions) *ReaperService {
	svc, err := NewReaperService(opts)
	if err != nil {
		panic(fmt.Sprintf("failed to create ReaperService: %v", err))
	}
	return svc
}

// Run starts the reaper loop and runs until the context is cancelled.
// It performs a sweep pass at the configured interval.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (s *ReaperService) Run(ctx context.Context) error {
	if s.logger != nil {
		s.logger.InfoContext(ctx, "starting reaper service", "interval", s.config.Interval)
	}

	// Add jitter to prevent thundering herd if multiple instances start together
	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	// Run a sweep immediately after jitter
	if err := s.runSweep(ctx); err != nil {
		s.logSweepError(err, "initial sweep")
	}

	return s.runLoop(ctx, ticker)
}

// waitWithJitter adds a random delay up to 10% of the interval to prevent thundering herd.
func (s *ReaperService) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.config.Interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// If crypto/rand fails, skip jitter rather than failing startup
		if s.logger != nil {
			s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		}
		return
	}

	// Use modulo on uint64 before converting to avoid overflow
	jitterNanos := binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter)
	jitter := time.Duration(int64(jitterNanos)) // #nosec G115 - bounded by maxJitter which is int64

	select {
	case <-time.After(jitter):
	case <-ctx.Done():
		// Graceful shutdown during jitter
	}
}

// runLoop runs the sweep loop until context is cancelled.
func (s *ReaperService) runLoop(ctx context.Context, ticker *time.Ticker) error {
	for {
		select {
		case <-ctx.Done():
			if s.logger != nil {
				s.logger.InfoContext(ctx, "reaper service stopping", "reason", ctx.Err())
			}
			// Return nil on graceful shutdown to avoid treating it as a failure
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case <-ticker.C:
			if err := s.runSweep(ctx); err != nil {
				s.logSweepError(err, "sweep")
				if isContextCancellation(err) {
					continue
				}
				// Continue running despite errors
			}
		}
	}
}

// runSweep performs one full pass. Engines go first so a removed engine's
// jobs are back in the queue before the job timeout looks at them.
func (s *ReaperService) runSweep(ctx context.Context) error {
	start := time.Now()
	var (
		errs               []error
		allContextCanceled = true
		metricsData        = sweepMetrics{}
	)

	steps := []sweepStep{
		{
			fn: func(ctx context.Context) (int64, error) {
				return s.sweeper.ReapStaleEngines(ctx, s.config.EngineTimeout)
			},
			label:     "reap stale engines",
			count:     &metricsData.EnginesCount,
			metricErr: &metricsData.EnginesErr,
		},
		{
			fn: func(ctx context.Context) (int64, error) {
				return s.sweeper.TimeoutStuckJobs(ctx, s.config.JobTimeout)
			},
			label:     "timeout stuck jobs",
			count:     &metricsData.TimeoutsCount,
			metricErr: &metricsData.TimeoutsErr,
		},
		{
			fn: func(ctx context.Context) (int64, error) {
				return s.sweeper.ExpireStalePending(ctx, s.config.PendingMaxAge)
			},
			label:     "expire stale pending jobs",
			count:     &metricsData.ExpiredCount,
			metricErr: &metricsData.ExpiredErr,
		},
		{
			fn:        s.sweeper.PromoteDueRetries,
			label:     "promote due retries",
			count:     &metricsData.PromotedCount,
			metricErr: &metricsData.PromotedErr,
		},
	}

	for _, step := range steps {
		outcome := s.executeSweepStep(ctx, step.fn, step.label)
		*step.count = outcome.count
		*step.metricErr = outcome.metricErr
		if outcome.aggregateErr != nil {
			errs = append(errs, outcome.aggregateErr)
			allContextCanceled = allContextCanceled && outcome.canceled
		}
	}

	metricsData.Elapsed = time.Since(start)
	s.emitSweepMetrics(metricsData)

	if len(errs) > 0 {
		joined := errors.Join(errs...)
		if allContextCanceled && isContextCancellation(joined) {
			return context.Canceled
		}
		return fmt.Errorf("sweep failed: %w", joined)
	}

	return nil
}

type sweepFunc func(context.Context) (int64, error)

type sweepStep struct {
	fn        sweepFunc
	label     string
	count     *int64
	metricErr *error
}

type sweepStepOutcome struct {
	count        int64
	metricErr    error
	aggregateErr error
	canceled     bool
}

func (s *ReaperService) executeSweepStep(
	ctx context.Context,
	fn sweepFunc,
	label string,
) sweepStepOutcome {
	count, err := fn(ctx)
	outcome := sweepStepOutcome{
		count:     count,
		metricErr: suppressContextCancellation(err),
		canceled:  isContextCancellation(err),
	}
	if err != nil {
		outcome.aggregateErr = fmt.Errorf("%s: %w", label, err)
	}
	return outcome
}

type sweepMetrics struct {
	EnginesCount  int64
	EnginesErr    error
	TimeoutsCount int64
	TimeoutsErr   error
	ExpiredCount  int64
	ExpiredErr    error
	PromotedCount int64
	PromotedErr   error
	Elapsed       time.Duration
}

func (s *ReaperService) emitSweepMetrics(m sweepMetrics) {
	if s.metrics == nil {
		return
	}

	totalCount := m.EnginesCount + m.TimeoutsCount + m.ExpiredCount + m.PromotedCount
	firstErr := firstError(m.EnginesErr, m.TimeoutsErr, m.ExpiredErr, m.PromotedErr)

	result := metrics.ResultSuccess
	if firstErr != nil {
		result = metrics.ResultError
	} else if totalCount == 0 {
		result = metrics.ResultNoop
	}

	tags := map[string]string{
		"result": result,
	}

	if firstErr != nil {
		if class := obserrors.Classify(firstErr); class != "" {
			tags["error_class"] = class
		}
	}

	s.metrics.Count("reaper.sweep", 1, tags)

	if m.Elapsed > 0 {
		s.metrics.Timing("reaper.sweep_duration", m.Elapsed, metrics.CloneTags(tags))
	}

	s.emitSweepOperationMetric("reap_engines", m.EnginesCount, m.EnginesErr)
	s.emitSweepOperationMetric("timeout_jobs", m.TimeoutsCount, m.TimeoutsErr)
	s.emitSweepOperationMetric("expire_pending", m.ExpiredCount, m.ExpiredErr)
	s.emitSweepOperationMetric("promote_retries", m.PromotedCount, m.PromotedErr)

	if firstErr == nil {
		s.metrics.Gauge("reaper.last_success_epoch", float64(time.Now().Unix()), nil)
	}
}

func (s *ReaperService) emitSweepOperationMetric(operation string, count int64, err error) {
	if s.metrics == nil {
		return
	}

	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	} else if count == 0 {
		result = metrics.ResultNoop
	}

	tags := map[string]string{
		"operation": operation,
		"result":    result,
	}

	if err != nil {
		if class := obserrors.Classify(err); class != "" {
			tags["error_class"] = class
		}
	}

	s.metrics.Count("reaper.sweep_operation", 1, tags)

	if err == nil && count > 0 {
		s.metrics.Count("reaper.items_processed", count, metrics.CloneTags(tags))
	}
}

func (s *ReaperService) logSweepError(err error, label string) {
	if err == nil || s.logger == nil {
		return
	}

	if isContextCancellation(err) {
		s.logger.Debug(label+" cancelled by context", "error", err)
		return
	}

	s.logger.Error(label+" failed", "error", err)
}

func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func isContextCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func suppressContextCancellation(err error) error {
	if isContextCancellation(err) {
		return nil
	}
	return err
}
