package metrics

import (
	"errors"
	"testing"
	"time"

	apperrors "github.com/target/transcode-dispatch/internal/errors"
)

type recordedMetric struct {
	name  string
	value float64
	tags  map[string]string
}

type recordingSink struct {
	counts  []recordedMetric
	gauges  []recordedMetric
	timings []recordedMetric
}

func (r *recordingSink) Count(name string, value int64, tags map[string]string) {
	r.counts = append(r.counts, recordedMetric{name: name, value: float64(value), tags: tags})
}

func (r *recordingSink) Gauge(name string, value float64, tags map[string]string) {
	r.gauges = append(r.gauges, recordedMetric{name: name, value: value, tags: tags})
}

func (r *recordingSink) Timing(name string, value time.Duration, tags map[string]string) {
	r.timings = append(r.timings, recordedMetric{name: name, value: float64(value), tags: tags})
}

func TestEmitJobLifecycle(t *testing.T) {
	sink := &recordingSink{}

	EmitJobLifecycle(sink, JobMetric{
		Transition: TransitionComplete,
		Result:     ResultSuccess,
		Duration:   450 * time.Millisecond,
	})

	if len(sink.counts) != 1 {
		t.Fatalf("expected one counter, got %d", len(sink.counts))
	}
	count := sink.counts[0]
	if count.name != "job.transition" {
		t.Errorf("counter name = %q, want job.transition", count.name)
	}
	if count.tags["transition"] != "complete" || count.tags["result"] != "success" {
		t.Errorf("unexpected tags: %v", count.tags)
	}
	if _, ok := count.tags["error_class"]; ok {
		t.Error("successful transition should not carry an error class")
	}

	if len(sink.timings) != 1 {
		t.Fatalf("expected one timing, got %d", len(sink.timings))
	}
	if sink.timings[0].name != "job.duration" {
		t.Errorf("timing name = %q, want job.duration", sink.timings[0].name)
	}
}

func TestEmitJobLifecycleSkipsZeroDuration(t *testing.T) {
	sink := &recordingSink{}

	EmitJobLifecycle(sink, JobMetric{Transition: TransitionSubmit, Result: ResultSuccess})

	if len(sink.timings) != 0 {
		t.Fatalf("expected no timing without a duration, got %d", len(sink.timings))
	}
}

func TestEmitJobLifecycleClassifiesErrors(t *testing.T) {
	sink := &recordingSink{}

	EmitJobLifecycle(sink, JobMetric{
		Transition: TransitionAssign,
		Result:     ResultError,
		Err:        apperrors.Validationf("source_size_mb must be positive"),
	})

	if len(sink.counts) != 1 {
		t.Fatalf("expected one counter, got %d", len(sink.counts))
	}
	if got := sink.counts[0].tags["error_class"]; got != "validation" {
		t.Errorf("error_class = %q, want validation", got)
	}

	// An error on a non-error result stays untagged.
	sink = &recordingSink{}
	EmitJobLifecycle(sink, JobMetric{
		Transition: TransitionAssign,
		Result:     ResultNoop,
		Err:        errors.New("no pending jobs"),
	})
	if _, ok := sink.counts[0].tags["error_class"]; ok {
		t.Error("noop result should not carry an error class")
	}
}

func TestEmitJobLifecycleNilSink(t *testing.T) {
	EmitJobLifecycle(nil, JobMetric{Transition: TransitionFail, Result: ResultError})
}

func TestEmitEngineFleet(t *testing.T) {
	sink := &recordingSink{}

	EmitEngineFleet(sink, 3, 2)

	if len(sink.gauges) != 2 {
		t.Fatalf("expected two gauges, got %d", len(sink.gauges))
	}
	byName := map[string]float64{}
	for _, g := range sink.gauges {
		byName[g.name] = g.value
	}
	if byName["engines.idle"] != 3 {
		t.Errorf("engines.idle = %v, want 3", byName["engines.idle"])
	}
	if byName["engines.busy"] != 2 {
		t.Errorf("engines.busy = %v, want 2", byName["engines.busy"])
	}

	EmitEngineFleet(nil, 1, 1)
}

func TestCloneTags(t *testing.T) {
	if got := CloneTags(nil); got != nil {
		t.Errorf("CloneTags(nil) = %v, want nil", got)
	}
	if got := CloneTags(map[string]string{}); got != nil {
		t.Errorf("CloneTags(empty) = %v, want nil", got)
	}

	src := map[string]string{"transition": "fail"}
	clone := CloneTags(src)
	clone["transition"] = "mutated"
	if src["transition"] != "fail" {
		t.Error("mutating the clone changed the source map")
	}
}
