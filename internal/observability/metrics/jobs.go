package metrics

import (
	"maps"
	"time"

	obserrors "github.com/target/transcode-dispatch/internal/observability/errors"
	"github.com/target/transcode-dispatch/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// Transition names emitted by the dispatcher.
const (
	TransitionSubmit   = "submit"
	TransitionAssign   = "assign"
	TransitionComplete = "complete"
	TransitionFail     = "fail"
	TransitionRetry    = "retry"
	TransitionCancel   = "cancel"
)

// JobMetric captures details about a job lifecycle event for metric emission.
type JobMetric struct {
	Transition string
	Result     string
	Duration   time.Duration
	Err        error
}

// EmitJobLifecycle emits standardised job lifecycle metrics.
func EmitJobLifecycle(sink statsd.Sink, in JobMetric) {
	if sink == nil {
		return
	}

	tags := lifecycleTags(in)
	sink.Count("job.transition", 1, tags)

	if in.Duration > 0 {
		sink.Timing("job.duration", in.Duration, CloneTags(tags))
	}
}

// lifecycleTags builds the tag set for a lifecycle event. The error class
// tag is only attached to failed transitions that carry an error.
func lifecycleTags(in JobMetric) map[string]string {
	tags := map[string]string{
		"transition": in.Transition,
		"result":     in.Result,
	}
	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}
	return tags
}

// EmitEngineFleet publishes gauge metrics describing the registered fleet.
func EmitEngineFleet(sink statsd.Sink, idle, busy int) {
	if sink == nil {
		return
	}
	sink.Gauge("engines.idle", float64(idle), nil)
	sink.Gauge("engines.busy", float64(busy), nil)
}

// CloneTags copies a tag map so concurrent emissions never share one.
// Returns nil for an empty map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	return maps.Clone(src)
}
