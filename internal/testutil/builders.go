// Package testutil provides testing utilities and helpers for the dispatch system.
package testutil

import (
	"encoding/json"

	"github.com/target/transcode-dispatch/internal/domain/model"
)

// JobRequestBuilder provides a fluent interface for building SubmitJobRequest objects for testing.
type JobRequestBuilder struct {
	req *model.SubmitJobRequest
}

// NewJobRequest creates a new JobRequestBuilder with sensible defaults.
func NewJobRequest() *JobRequestBuilder {
	return &JobRequestBuilder{
		req: &model.SubmitJobRequest{
			SourceURL:   "https://media.example.com/input.mp4",
			TargetCodec: "h264",
			JobSize:     75,
			Priority:    model.PriorityNormal,
		},
	}
}

// WithSourceURL sets the source media URL.
func (b *JobRequestBuilder) WithSourceURL(url string) *JobRequestBuilder {
	b.req.SourceURL = url
	return b
}

// WithTargetCodec sets the target codec.
func (b *JobRequestBuilder) WithTargetCodec(codec string) *JobRequestBuilder {
	b.req.TargetCodec = codec
	return b
}

// WithJobSize sets the job size in megabytes.
func (b *JobRequestBuilder) WithJobSize(sizeMB float64) *JobRequestBuilder {
	b.req.JobSize = sizeMB
	return b
}

// WithPriority sets the job priority.
func (b *JobRequestBuilder) WithPriority(priority int) *JobRequestBuilder {
	b.req.Priority = priority
	return b
}

// WithMaxRetries sets the maximum number of retries.
func (b *JobRequestBuilder) WithMaxRetries(maxRetries int) *JobRequestBuilder {
	b.req.MaxRetries = &maxRetries
	return b
}

// WithResourceRequirements sets the resource requirements document.
func (b *JobRequestBuilder) WithResourceRequirements(reqs json.RawMessage) *JobRequestBuilder {
	b.req.ResourceRequirements = reqs
	return b
}

// WithResourceRequirementsString sets the resource requirements from a string.
func (b *JobRequestBuilder) WithResourceRequirementsString(reqs string) *JobRequestBuilder {
	b.req.ResourceRequirements = json.RawMessage(reqs)
	return b
}

// Build returns the constructed SubmitJobRequest.
func (b *JobRequestBuilder) Build() *model.SubmitJobRequest {
	return b.req
}

// HeartbeatBuilder provides a fluent interface for building engine Heartbeat reports for testing.
type HeartbeatBuilder struct {
	hb *model.Heartbeat
}

// NewHeartbeat creates a new HeartbeatBuilder for the given engine with
// sensible defaults: an idle engine with a benchmark on record and enough
// storage for typical test jobs.
func NewHeartbeat(engineID string) *HeartbeatBuilder {
	status := model.EngineStatusIdle
	return &HeartbeatBuilder{
		hb: &model.Heartbeat{
			EngineID:          engineID,
			Hostname:          engineID + ".local",
			Status:            &status,
			BenchmarkTime:     Float64Ptr(120),
			StorageCapacityGB: Float64Ptr(500),
			Encoders:          []string{"h264", "hevc"},
		},
	}
}

// WithHostname sets the reported hostname.
func (b *HeartbeatBuilder) WithHostname(hostname string) *HeartbeatBuilder {
	b.hb.Hostname = hostname
	return b
}

// WithStatus sets the reported status.
func (b *HeartbeatBuilder) WithStatus(status model.EngineStatus) *HeartbeatBuilder {
	b.hb.Status = &status
	return b
}

// WithBenchmarkTime sets the reported benchmark time in seconds.
func (b *HeartbeatBuilder) WithBenchmarkTime(seconds float64) *HeartbeatBuilder {
	b.hb.BenchmarkTime = &seconds
	return b
}

// WithoutBenchmark clears the benchmark report, leaving the engine ineligible
// for assignment until one arrives.
func (b *HeartbeatBuilder) WithoutBenchmark() *HeartbeatBuilder {
	b.hb.BenchmarkTime = nil
	return b
}

// WithStorageCapacity sets the reported storage capacity in gigabytes.
func (b *HeartbeatBuilder) WithStorageCapacity(gb float64) *HeartbeatBuilder {
	b.hb.StorageCapacityGB = &gb
	return b
}

// WithStreamingSupport sets whether the engine supports streaming transcode.
func (b *HeartbeatBuilder) WithStreamingSupport(supported bool) *HeartbeatBuilder {
	b.hb.StreamingSupport = &supported
	return b
}

// WithEncoders sets the reported encoder list.
func (b *HeartbeatBuilder) WithEncoders(encoders ...string) *HeartbeatBuilder {
	b.hb.Encoders = encoders
	return b
}

// Build returns the constructed Heartbeat.
func (b *HeartbeatBuilder) Build() *model.Heartbeat {
	return b.hb
}

// Common test job request presets

// SmallJobRequest creates a job small enough to land in the small size bucket.
func SmallJobRequest() *model.SubmitJobRequest {
	return NewJobRequest().
		WithSourceURL("https://media.example.com/clip.mp4").
		WithJobSize(10).
		Build()
}

// MediumJobRequest creates a job in the medium size bucket.
func MediumJobRequest() *model.SubmitJobRequest {
	return NewJobRequest().
		WithSourceURL("https://media.example.com/episode.mp4").
		WithJobSize(75).
		Build()
}

// LargeJobRequest creates a job in the large size bucket, which prefers a
// streaming-capable engine.
func LargeJobRequest() *model.SubmitJobRequest {
	return NewJobRequest().
		WithSourceURL("https://media.example.com/feature.mkv").
		WithJobSize(4096).
		Build()
}

// UrgentJobRequest creates a job at the highest priority.
func UrgentJobRequest() *model.SubmitJobRequest {
	return NewJobRequest().
		WithSourceURL("https://media.example.com/breaking.mp4").
		WithPriority(model.PriorityUrgent).
		Build()
}

// RetryableJobRequest creates a job request with custom retry settings.
func RetryableJobRequest(maxRetries int) *model.SubmitJobRequest {
	return NewJobRequest().
		WithSourceURL("https://media.example.com/flaky.mp4").
		WithMaxRetries(maxRetries).
		Build()
}
