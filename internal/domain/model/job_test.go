package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobStatus_Valid(t *testing.T) {
	assert.True(t, JobStatusPending.Valid())
	assert.True(t, JobStatusAssigned.Valid())
	assert.True(t, JobStatusFailedPermanently.Valid())
	assert.True(t, JobStatusFailedRetry.Valid())
	assert.True(t, JobStatusExpired.Valid())
	assert.False(t, JobStatus("unknown").Valid())
}

func TestJobStatus_Terminal(t *testing.T) {
	tests := []struct {
		status   JobStatus
		terminal bool
	}{
		{JobStatusPending, false},
		{JobStatusAssigned, false},
		{JobStatusFailed, false},
		{JobStatusFailedRetry, false},
		{JobStatusExpired, false},
		{JobStatusCompleted, true},
		{JobStatusFailedPermanently, true},
		{JobStatusCancelled, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.terminal, tt.status.Terminal(), "status %s", tt.status)
	}
}

func TestSubmitJobRequest_Validate(t *testing.T) {
	tests := []struct {
		name        string
		req         SubmitJobRequest
		expectError bool
		errorMsg    string
	}{
		{
			name: "minimal valid request",
			req:  SubmitJobRequest{SourceURL: "http://media/in.mp4", TargetCodec: "h264"},
		},
		{
			name: "all fields valid",
			req: SubmitJobRequest{
				SourceURL:   "http://media/in.mp4",
				TargetCodec: "hevc",
				JobSize:     120.5,
				Priority:    PriorityUrgent,
				MaxRetries:  intPtr(5),
			},
		},
		{
			name:        "missing source url",
			req:         SubmitJobRequest{TargetCodec: "h264"},
			expectError: true,
			errorMsg:    "source_url is required",
		},
		{
			name:        "blank source url",
			req:         SubmitJobRequest{SourceURL: "   ", TargetCodec: "h264"},
			expectError: true,
			errorMsg:    "source_url is required",
		},
		{
			name:        "missing target codec",
			req:         SubmitJobRequest{SourceURL: "http://media/in.mp4"},
			expectError: true,
			errorMsg:    "target_codec is required",
		},
		{
			name:        "negative job size",
			req:         SubmitJobRequest{SourceURL: "http://media/in.mp4", TargetCodec: "h264", JobSize: -1},
			expectError: true,
			errorMsg:    "job_size must be >= 0",
		},
		{
			name:        "priority out of range",
			req:         SubmitJobRequest{SourceURL: "http://media/in.mp4", TargetCodec: "h264", Priority: 3},
			expectError: true,
			errorMsg:    "priority must be between 0 and 2",
		},
		{
			name:        "negative max retries",
			req:         SubmitJobRequest{SourceURL: "http://media/in.mp4", TargetCodec: "h264", MaxRetries: intPtr(-1)},
			expectError: true,
			errorMsg:    "max_retries must be >= 0",
		},
		{
			name: "explicit zero max retries allowed",
			req:  SubmitJobRequest{SourceURL: "http://media/in.mp4", TargetCodec: "h264", MaxRetries: intPtr(0)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.expectError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestUpdateJobRequest_Validate(t *testing.T) {
	t.Run("empty patch rejected", func(t *testing.T) {
		req := UpdateJobRequest{}
		require.Error(t, req.Validate())
	})

	t.Run("valid patch", func(t *testing.T) {
		req := UpdateJobRequest{Priority: intPtr(PriorityHigh), MaxRetries: intPtr(4)}
		assert.NoError(t, req.Validate())
	})

	t.Run("priority out of range", func(t *testing.T) {
		req := UpdateJobRequest{Priority: intPtr(-1)}
		require.Error(t, req.Validate())
	})

	t.Run("resource requirements alone is enough", func(t *testing.T) {
		req := UpdateJobRequest{ResourceRequirements: json.RawMessage(`{"min_memory_gb":8}`)}
		assert.NoError(t, req.Validate())
	})
}

func TestCompleteJobRequest_Validate(t *testing.T) {
	tests := []struct {
		name        string
		outputURL   string
		expectError bool
	}{
		{name: "http url", outputURL: "http://media/out.mp4"},
		{name: "https url", outputURL: "https://media/out.mp4"},
		{name: "empty", outputURL: "", expectError: true},
		{name: "no scheme", outputURL: "media/out.mp4", expectError: true},
		{name: "wrong scheme", outputURL: "ftp://media/out.mp4", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := CompleteJobRequest{OutputURL: tt.outputURL}
			err := req.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFailJobRequest_Validate(t *testing.T) {
	require.Error(t, (&FailJobRequest{}).Validate())
	assert.NoError(t, (&FailJobRequest{ErrorMessage: "encoder crashed"}).Validate())
}

func TestProgressUpdateRequest_Validate(t *testing.T) {
	assert.Error(t, (&ProgressUpdateRequest{}).Validate(), "missing progress")
	assert.Error(t, (&ProgressUpdateRequest{Progress: intPtr(-1)}).Validate())
	assert.Error(t, (&ProgressUpdateRequest{Progress: intPtr(101)}).Validate())
	assert.NoError(t, (&ProgressUpdateRequest{Progress: intPtr(0)}).Validate())
	assert.NoError(t, (&ProgressUpdateRequest{Progress: intPtr(100), Message: stringPtr("muxing")}).Validate())
}

func TestJob_Clone_Independent(t *testing.T) {
	now := time.Now().UTC()
	job := &Job{
		ID:                   "j1",
		SourceURL:            "http://media/in.mp4",
		TargetCodec:          "h264",
		Status:               JobStatusAssigned,
		AssignedEngine:       stringPtr("e1"),
		Progress:             intPtr(40),
		ResourceRequirements: json.RawMessage(`{"min_memory_gb":8}`),
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	clone := job.Clone()
	require.Equal(t, job, clone)

	*clone.AssignedEngine = "e2"
	*clone.Progress = 90
	clone.ResourceRequirements[2] = 'x'

	assert.Equal(t, "e1", *job.AssignedEngine)
	assert.Equal(t, 40, *job.Progress)
	assert.Equal(t, json.RawMessage(`{"min_memory_gb":8}`), job.ResourceRequirements)
}

func stringPtr(s string) *string { return &s }
func intPtr(i int) *int          { return &i }
