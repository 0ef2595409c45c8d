// Package model defines the core data types and structures used throughout the dispatch system.
package model

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// JobStatus represents the current status of a transcoding job.
type JobStatus string

const (
	// JobStatusPending indicates a job is waiting to be assigned to an engine.
	JobStatusPending JobStatus = "pending"
	// JobStatusAssigned indicates a job is currently running on an engine.
	JobStatusAssigned JobStatus = "assigned"
	// JobStatusCompleted indicates a job has finished successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the most recent attempt failed.
	JobStatusFailed JobStatus = "failed"
	// JobStatusFailedPermanently indicates a job has exhausted its retry budget.
	JobStatusFailedPermanently JobStatus = "failed_permanently"
	// JobStatusCancelled indicates a job was cancelled by a client.
	JobStatusCancelled JobStatus = "cancelled"
	// JobStatusFailedRetry indicates a failed job waiting out its backoff window.
	JobStatusFailedRetry JobStatus = "failed_retry"
	// JobStatusExpired indicates a pending job aged out before any engine took it.
	JobStatusExpired JobStatus = "expired"
)

// Job priority levels. Higher values drain first.
const (
	PriorityNormal = 0
	PriorityHigh   = 1
	PriorityUrgent = 2
)

// ErrNoPendingJobs is returned when no pending jobs are available for assignment.
var ErrNoPendingJobs = errors.New("no pending jobs available")

// Valid returns true if the JobStatus is valid.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusAssigned, JobStatusCompleted, JobStatusFailed,
		JobStatusFailedPermanently, JobStatusCancelled, JobStatusFailedRetry, JobStatusExpired:
		return true
	}
	return false
}

// Terminal returns true if no further transitions are accepted from s.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailedPermanently || s == JobStatusCancelled
}

// Job represents a transcoding job with all its metadata and status information.
type Job struct {
	ID                   string          `json:"job_id"`
	SourceURL            string          `json:"source_url"`
	TargetCodec          string          `json:"target_codec"`
	JobSize              float64         `json:"job_size"` // megabytes
	Priority             int             `json:"priority"`
	Status               JobStatus       `json:"status"`
	AssignedEngine       *string         `json:"assigned_engine,omitempty"`
	OutputURL            *string         `json:"output_url,omitempty"`
	ErrorMessage         *string         `json:"error_message,omitempty"`
	Retries              int             `json:"retries"`
	MaxRetries           int             `json:"max_retries"`
	Progress             *int            `json:"progress,omitempty"`
	ProgressMessage      *string         `json:"progress_message,omitempty"`
	ResourceRequirements json.RawMessage `json:"resource_requirements,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
	RetryAfter           *time.Time      `json:"retry_after,omitempty"`
}

// Clone returns a deep copy of the job that is safe to mutate independently.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	out := *j
	out.AssignedEngine = clonePtr(j.AssignedEngine)
	out.OutputURL = clonePtr(j.OutputURL)
	out.ErrorMessage = clonePtr(j.ErrorMessage)
	out.Progress = clonePtr(j.Progress)
	out.ProgressMessage = clonePtr(j.ProgressMessage)
	out.RetryAfter = clonePtr(j.RetryAfter)
	if j.ResourceRequirements != nil {
		out.ResourceRequirements = append(json.RawMessage(nil), j.ResourceRequirements...)
	}
	return &out
}

// SubmitJobRequest represents a request to submit a new transcoding job.
type SubmitJobRequest struct {
	SourceURL            string          `json:"source_url"`
	TargetCodec          string          `json:"target_codec"`
	JobSize              float64         `json:"job_size,omitempty"`
	Priority             int             `json:"priority,omitempty"`
	MaxRetries           *int            `json:"max_retries,omitempty"`
	ResourceRequirements json.RawMessage `json:"resource_requirements,omitempty"`
}

// Validate validates the SubmitJobRequest fields.
func (r *SubmitJobRequest) Validate() error {
	if strings.TrimSpace(r.SourceURL) == "" {
		return errors.New("source_url is required")
	}
	if strings.TrimSpace(r.TargetCodec) == "" {
		return errors.New("target_codec is required")
	}
	if r.JobSize < 0 {
		return errors.New("job_size must be >= 0")
	}
	if r.Priority < PriorityNormal || r.Priority > PriorityUrgent {
		return errors.New("priority must be between 0 and 2")
	}
	if r.MaxRetries != nil && *r.MaxRetries < 0 {
		return errors.New("max_retries must be >= 0")
	}
	return nil
}

// UpdateJobRequest represents a partial update to a job. Only the listed
// fields may be patched; lifecycle fields move through their own endpoints.
type UpdateJobRequest struct {
	Priority             *int            `json:"priority,omitempty"`
	MaxRetries           *int            `json:"max_retries,omitempty"`
	ResourceRequirements json.RawMessage `json:"resource_requirements,omitempty"`
}

// Validate validates the UpdateJobRequest fields.
func (r *UpdateJobRequest) Validate() error {
	if r.Priority == nil && r.MaxRetries == nil && r.ResourceRequirements == nil {
		return errors.New("no updatable fields provided")
	}
	if r.Priority != nil && (*r.Priority < PriorityNormal || *r.Priority > PriorityUrgent) {
		return errors.New("priority must be between 0 and 2")
	}
	if r.MaxRetries != nil && *r.MaxRetries < 0 {
		return errors.New("max_retries must be >= 0")
	}
	return nil
}

// CompleteJobRequest carries the result of a finished job.
type CompleteJobRequest struct {
	OutputURL string `json:"output_url"`
}

// Validate validates the CompleteJobRequest fields.
func (r *CompleteJobRequest) Validate() error {
	if !strings.HasPrefix(r.OutputURL, "http://") && !strings.HasPrefix(r.OutputURL, "https://") {
		return errors.New("output_url must begin with http:// or https://")
	}
	return nil
}

// FailJobRequest carries the reason for a failed attempt.
type FailJobRequest struct {
	ErrorMessage string `json:"error_message"`
}

// Validate validates the FailJobRequest fields.
func (r *FailJobRequest) Validate() error {
	if r.ErrorMessage == "" {
		return errors.New("error_message is required")
	}
	return nil
}

// ProgressUpdateRequest reports percent progress on an in-flight job.
type ProgressUpdateRequest struct {
	Progress *int    `json:"progress"`
	Message  *string `json:"message,omitempty"`
}

// Validate validates the ProgressUpdateRequest fields.
func (r *ProgressUpdateRequest) Validate() error {
	if r.Progress == nil {
		return errors.New("progress is required")
	}
	if *r.Progress < 0 || *r.Progress > 100 {
		return errors.New("progress must be between 0 and 100")
	}
	return nil
}

// JobStats represents counts of jobs in each state.
type JobStats struct {
	Total             int `json:"total"`
	Pending           int `json:"pending"`
	Assigned          int `json:"assigned"`
	Completed         int `json:"completed"`
	Failed            int `json:"failed"`
	FailedPermanently int `json:"failed_permanently"`
	Cancelled         int `json:"cancelled"`
	FailedRetry       int `json:"failed_retry"`
	Expired           int `json:"expired"`
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
