package failurenotifier

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/target/transcode-dispatch/internal/observability/metrics"
	"github.com/target/transcode-dispatch/internal/observability/notify"
	"github.com/target/transcode-dispatch/internal/observability/statsd"
)

// defaultDeliveryTimeout bounds a single sink delivery, including the
// sink's own retries.
const defaultDeliveryTimeout = 30 * time.Second

// SinkRegistration pairs a sink implementation with a name used in logs
// and metric tags.
type SinkRegistration struct {
	Name string
	Sink notify.Sink
}

// Options configures the failure notifier service.
type Options struct {
	Logger *slog.Logger
	Sinks  []SinkRegistration

	// DeliveryTimeout bounds each sink delivery. Zero selects the default.
	DeliveryTimeout time.Duration

	Metrics statsd.Sink
}

// Service dispatches permanent job failure events to all registered sinks.
type Service struct {
	logger  *slog.Logger
	sinks   []SinkRegistration
	timeout time.Duration
	metrics statsd.Sink
}

// NewService constructs a failure notifier. Registrations without a sink
// are dropped; registrations without a name get a placeholder.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default().With("component", "failure_notifier")
	}

	var sinks []SinkRegistration
	for _, entry := range opts.Sinks {
		if entry.Sink == nil {
			continue
		}
		name := entry.Name
		if name == "" {
			name = "sink"
		}
		sinks = append(sinks, SinkRegistration{
			Name: name,
			Sink: entry.Sink,
		})
	}

	timeout := opts.DeliveryTimeout
	if timeout <= 0 {
		timeout = defaultDeliveryTimeout
	}

	return &Service{
		logger:  logger,
		sinks:   sinks,
		timeout: timeout,
		metrics: opts.Metrics,
	}
}

// NotifyJobFailure fans the payload out to every sink concurrently and
// returns once all deliveries have finished or timed out.
func (s *Service) NotifyJobFailure(ctx context.Context, payload notify.JobFailurePayload) {
	if len(s.sinks) == 0 {
		return
	}

	if payload.Severity == "" {
		payload.Severity = notify.SeverityCritical
	}

	var wg sync.WaitGroup
	for _, entry := range s.sinks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.deliver(ctx, entry, payload)
		}()
	}
	wg.Wait()
}

// deliver pushes the payload into one sink under the delivery timeout.
// The failed job is already recorded by the time notification runs, so a
// slow or broken sink costs latency here, never state.
func (s *Service) deliver(ctx context.Context, entry SinkRegistration, payload notify.JobFailurePayload) {
	deliveryCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	err := entry.Sink.SendJobFailure(deliveryCtx, payload)
	elapsed := time.Since(start)

	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
		s.logger.Error("failure notifier delivery error",
			"sink", entry.Name,
			"job_id", payload.JobID,
			"elapsed", elapsed,
			"error", err,
		)
	}

	s.emitDeliveryMetrics(entry.Name, result, elapsed)
}

func (s *Service) emitDeliveryMetrics(sink, result string, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}
	tags := map[string]string{"sink": sink, "result": result}
	s.metrics.Count("notify.delivery", 1, tags)
	s.metrics.Timing("notify.delivery_duration", elapsed, metrics.CloneTags(tags))
}

// Enabled reports whether the notifier has any active sinks.
func (s *Service) Enabled() bool {
	return len(s.sinks) > 0
}
