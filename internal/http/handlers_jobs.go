// Package httpx provides the HTTP surface of the transcode dispatch coordinator.
package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/target/transcode-dispatch/internal/domain/model"
	apperrors "github.com/target/transcode-dispatch/internal/errors"
	"github.com/target/transcode-dispatch/internal/service"
)

// JobHandlers provides the legacy job endpoints the transcode engines call.
type JobHandlers struct {
	Svc *service.DispatcherService
}

// Submit handles HTTP requests to submit a new transcoding job.
func (h *JobHandlers) Submit(w http.ResponseWriter, r *http.Request) {
	var req model.SubmitJobRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	job, err := h.Svc.Submit(r.Context(), &req)
	if err != nil {
		WriteLegacyError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, job)
}

// List handles HTTP requests to list every job.
func (h *JobHandlers) List(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.Svc.ListJobs(r.Context())
	if err != nil {
		WriteLegacyError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, jobs)
}

// Get handles HTTP requests to fetch a single job by id.
func (h *JobHandlers) Get(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		WriteLegacyError(w, apperrors.Validation("job id is required"))
		return
	}

	job, err := h.Svc.GetJob(r.Context(), jobID)
	if err != nil {
		WriteLegacyError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, job)
}

// Complete handles HTTP requests to mark a job as completed.
func (h *JobHandlers) Complete(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		WriteLegacyError(w, apperrors.Validation("job id is required"))
		return
	}

	var req model.CompleteJobRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	job, err := h.Svc.Complete(r.Context(), jobID, &req)
	if err != nil {
		WriteLegacyError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, job)
}

// Fail handles HTTP requests to report a failed attempt. The dispatcher
// requeues or parks the job depending on its retry budget.
func (h *JobHandlers) Fail(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		WriteLegacyError(w, apperrors.Validation("job id is required"))
		return
	}

	var req model.FailJobRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	job, err := h.Svc.Fail(r.Context(), jobID, &req)
	if err != nil {
		WriteLegacyError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, job)
}

// Retry handles HTTP requests to requeue a failed job with a fresh budget.
func (h *JobHandlers) Retry(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		WriteLegacyError(w, apperrors.Validation("job id is required"))
		return
	}

	job, err := h.Svc.Retry(r.Context(), jobID)
	if err != nil {
		WriteLegacyError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, job)
}

// Cancel handles DELETE requests on a job, which cancel it rather than
// removing the record.
func (h *JobHandlers) Cancel(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		WriteLegacyError(w, apperrors.Validation("job id is required"))
		return
	}

	job, err := h.Svc.Cancel(r.Context(), jobID)
	if err != nil {
		WriteLegacyError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, job)
}

// Progress handles HTTP requests reporting percent progress on a job.
func (h *JobHandlers) Progress(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		WriteLegacyError(w, apperrors.Validation("job id is required"))
		return
	}

	var req model.ProgressUpdateRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	job, err := h.Svc.Progress(r.Context(), jobID, &req)
	if err != nil {
		WriteLegacyError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, job)
}

// Assign handles HTTP requests from pollers asking for work. The body is
// optional; an empty body means any idle engine may take the job. Returns
// 204 when there is no pending job or no capable engine so pollers can back
// off.
func (h *JobHandlers) Assign(w http.ResponseWriter, r *http.Request) {
	var req model.AssignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		WriteLegacyError(w, apperrors.Validation("invalid JSON body"))
		return
	}

	job, err := h.Svc.AssignJob(r.Context(), &req)
	if err != nil {
		if errors.Is(err, model.ErrNoPendingJobs) || errors.Is(err, model.ErrNoEligibleEngines) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		WriteLegacyError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, job)
}
