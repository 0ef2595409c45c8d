// Package workflowtest provides an engine-side client harness for end-to-end
// dispatch testing. The client speaks plain HTTP against whatever base URL it
// is given and never imports the router package, which would cycle through
// that package's own tests.
package workflowtest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/target/transcode-dispatch/internal/domain/model"
	"github.com/target/transcode-dispatch/internal/testutil"
)

// maxErrorBody caps how much of an error response body lands in messages.
const maxErrorBody = 512

// EngineClientOptions configures a simulated transcoding engine.
type EngineClientOptions struct {
	// Required: BaseURL is the dispatch server under test.
	BaseURL string
	// Required: ID identifies the simulated engine.
	ID string
	// Optional: APIKey is sent as X-API-Key on every request when non-empty.
	APIKey string
	// Optional: Hostname reported in heartbeats. Defaults to ID + ".local".
	Hostname string
	// Optional: BenchmarkTime in seconds. Defaults to 120.
	BenchmarkTime float64
	// Optional: StorageCapacityGB reported in heartbeats. Defaults to 500.
	StorageCapacityGB float64
	// Optional: StreamingSupport reported in heartbeats.
	StreamingSupport bool
	// Optional: Encoders reported in heartbeats. Defaults to h264 and hevc.
	Encoders []string
	// Optional: HTTPClient overrides the default client.
	HTTPClient *http.Client
}

// EngineClient simulates a transcoding engine driving the dispatch API: it
// heartbeats, asks for work, reports progress, and finishes jobs the way a
// real worker binary would.
type EngineClient struct {
	t      testutil.TestingTB
	opts   EngineClientOptions
	client *http.Client
}

// NewEngineClient creates a simulated engine. Missing required options fail
// the test immediately.
func NewEngineClient(t testutil.TestingTB, opts EngineClientOptions) *EngineClient {
	t.Helper()

	if opts.BaseURL == "" {
		t.Fatalf("EngineClient requires BaseURL")
	}
	if opts.ID == "" {
		t.Fatalf("EngineClient requires ID")
	}
	if opts.Hostname == "" {
		opts.Hostname = opts.ID + ".local"
	}
	if opts.BenchmarkTime == 0 {
		opts.BenchmarkTime = 120
	}
	if opts.StorageCapacityGB == 0 {
		opts.StorageCapacityGB = 500
	}
	if opts.Encoders == nil {
		opts.Encoders = []string{"h264", "hevc"}
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &EngineClient{t: t, opts: opts, client: client}
}

// ID returns the simulated engine's identifier.
func (c *EngineClient) ID() string {
	return c.opts.ID
}

// Heartbeat sends a capability report. Status is deliberately omitted: the
// server owns assignment state, and a fresh registration defaults to idle.
func (c *EngineClient) Heartbeat(ctx context.Context) (*model.Engine, error) {
	report := &model.Heartbeat{
		EngineID:          c.opts.ID,
		Hostname:          c.opts.Hostname,
		BenchmarkTime:     testutil.Float64Ptr(c.opts.BenchmarkTime),
		StorageCapacityGB: testutil.Float64Ptr(c.opts.StorageCapacityGB),
		StreamingSupport:  testutil.BoolPtr(c.opts.StreamingSupport),
		Encoders:          c.opts.Encoders,
	}
	var engine model.Engine
	if _, err := c.postJSON(ctx, "/engines/heartbeat/", report, &engine); err != nil {
		return nil, err
	}
	return &engine, nil
}

// ReportBenchmark submits a standalone benchmark result.
func (c *EngineClient) ReportBenchmark(ctx context.Context, seconds float64) (*model.Engine, error) {
	result := &model.BenchmarkResult{
		EngineID:      c.opts.ID,
		BenchmarkTime: testutil.Float64Ptr(seconds),
	}
	var engine model.Engine
	if _, err := c.postJSON(ctx, "/engines/benchmark_result/", result, &engine); err != nil {
		return nil, err
	}
	return &engine, nil
}

// RequestAssignment asks the scheduler for work restricted to this engine.
// The second return value is false when nothing was assignable.
func (c *EngineClient) RequestAssignment(ctx context.Context) (*model.Job, bool, error) {
	var job model.Job
	status, err := c.postJSON(ctx, "/assign_job/", &model.AssignRequest{EngineID: c.opts.ID}, &job)
	if err != nil {
		return nil, false, err
	}
	if status == http.StatusNoContent {
		return nil, false, nil
	}
	return &job, true, nil
}

// Complete reports a finished job with its output location.
func (c *EngineClient) Complete(ctx context.Context, jobID, outputURL string) (*model.Job, error) {
	var job model.Job
	_, err := c.postJSON(ctx, "/jobs/"+jobID+"/complete", &model.CompleteJobRequest{OutputURL: outputURL}, &job)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// Fail reports a failed attempt with the given reason.
func (c *EngineClient) Fail(ctx context.Context, jobID, message string) (*model.Job, error) {
	var job model.Job
	_, err := c.postJSON(ctx, "/jobs/"+jobID+"/fail", &model.FailJobRequest{ErrorMessage: message}, &job)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// ReportProgress sends a percent-complete update for an in-flight job. An
// empty message is omitted from the report.
func (c *EngineClient) ReportProgress(ctx context.Context, jobID string, percent int, message string) (*model.Job, error) {
	report := &model.ProgressUpdateRequest{Progress: testutil.IntPtr(percent)}
	if message != "" {
		report.Message = &message
	}
	var job model.Job
	if _, err := c.postJSON(ctx, "/jobs/"+jobID+"/progress", report, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// ProcessNext requests an assignment and runs transcode against it. A nil
// error from transcode completes the job with the returned output URL; a
// non-nil error fails the attempt with the error text. The second return
// value is false when no job was available.
func (c *EngineClient) ProcessNext(
	ctx context.Context,
	transcode func(job *model.Job) (outputURL string, err error),
) (*model.Job, bool, error) {
	job, ok, err := c.RequestAssignment(ctx)
	if err != nil || !ok {
		return nil, false, err
	}

	outputURL, workErr := transcode(job)
	if workErr != nil {
		failed, failErr := c.Fail(ctx, job.ID, workErr.Error())
		if failErr != nil {
			return nil, true, fmt.Errorf("fail job %s: %w", job.ID, failErr)
		}
		return failed, true, nil
	}

	completed, completeErr := c.Complete(ctx, job.ID, outputURL)
	if completeErr != nil {
		return nil, true, fmt.Errorf("complete job %s: %w", job.ID, completeErr)
	}
	return completed, true, nil
}

// postJSON sends payload to path and decodes the response into out when the
// server returns a body. It returns the response status code; any status at
// or above 400 becomes an error carrying a snippet of the response body.
func (c *EngineClient) postJSON(ctx context.Context, path string, payload, out any) (int, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, fmt.Errorf("marshal payload for %s: %w", path, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BaseURL+path, body)
	if err != nil {
		return 0, fmt.Errorf("new request for %s: %w", path, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.opts.APIKey != "" {
		req.Header.Set("X-API-Key", c.opts.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("post %s: %w", path, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.t.Logf("warning: failed to close response body for %s: %v", path, cerr)
		}
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return resp.StatusCode, fmt.Errorf("post %s: status %d: %s",
			path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		if decodeErr := json.NewDecoder(resp.Body).Decode(out); decodeErr != nil {
			return resp.StatusCode, fmt.Errorf("decode response from %s: %w", path, decodeErr)
		}
	}
	return resp.StatusCode, nil
}
