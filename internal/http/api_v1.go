package httpx

import (
	"encoding/json"
	"net/http"

	jmespath "github.com/jmespath-community/go-jmespath"
	"github.com/target/transcode-dispatch/internal/domain/model"
	apperrors "github.com/target/transcode-dispatch/internal/errors"
	"github.com/target/transcode-dispatch/internal/service"
)

const (
	defaultListLimit = 50   // Default page size for v1 list endpoints
	maxListLimit     = 1000 // Maximum page size for v1 list endpoints
)

// APIv1Handlers provides the structured /api/v1 endpoints. They share the
// dispatcher with the legacy paths but use strict decoding on mutations and
// JSON error envelopes.
type APIv1Handlers struct {
	Svc *service.DispatcherService
}

// CreateJob handles POST /api/v1/jobs.
func (h *APIv1Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req model.SubmitJobRequest
	if !DecodeJSONStrict(w, r, &req) {
		return
	}

	job, err := h.Svc.Submit(r.Context(), &req)
	if err != nil {
		WriteAPIError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, job)
}

// ListJobs handles GET /api/v1/jobs with optional JMESPath filtering and
// pagination. The filter expression is evaluated against each job's JSON
// form; truthy results keep the job.
func (h *APIv1Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.Svc.ListJobs(r.Context())
	if err != nil {
		WriteAPIError(w, err)
		return
	}

	if expr := r.URL.Query().Get("filter"); expr != "" {
		jobs, err = filterJobsByExpression(jobs, expr)
		if err != nil {
			WriteAPIError(w, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid filter expression"))
			return
		}
	}

	limit, offset := ParseLimitOffset(r, defaultListLimit, maxListLimit)
	total := len(jobs)

	WriteJSON(w, http.StatusOK, map[string]any{
		"jobs":   pageSlice(jobs, limit, offset),
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// Stats handles GET /api/v1/jobs/stats, returning per-status job counts.
func (h *APIv1Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Svc.Stats(r.Context())
	if err != nil {
		WriteAPIError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, stats)
}

// GetJob handles GET /api/v1/jobs/{id}.
func (h *APIv1Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		WriteAPIError(w, apperrors.Validation("job id is required"))
		return
	}

	job, err := h.Svc.GetJob(r.Context(), jobID)
	if err != nil {
		WriteAPIError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, job)
}

// UpdateJob handles PUT /api/v1/jobs/{id}. Only priority, max_retries and
// resource_requirements may change; lifecycle fields move through the
// transition endpoints.
func (h *APIv1Handlers) UpdateJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		WriteAPIError(w, apperrors.Validation("job id is required"))
		return
	}

	var req model.UpdateJobRequest
	if !DecodeJSONStrict(w, r, &req) {
		return
	}

	job, err := h.Svc.UpdateJob(r.Context(), jobID, &req)
	if err != nil {
		WriteAPIError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, job)
}

// CancelJob handles DELETE /api/v1/jobs/{id}, which cancels the job.
func (h *APIv1Handlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		WriteAPIError(w, apperrors.Validation("job id is required"))
		return
	}

	job, err := h.Svc.Cancel(r.Context(), jobID)
	if err != nil {
		WriteAPIError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, job)
}

// ListEngines handles GET /api/v1/engines with pagination.
func (h *APIv1Handlers) ListEngines(w http.ResponseWriter, r *http.Request) {
	engines, err := h.Svc.ListEngines(r.Context())
	if err != nil {
		WriteAPIError(w, err)
		return
	}

	limit, offset := ParseLimitOffset(r, defaultListLimit, maxListLimit)
	total := len(engines)

	WriteJSON(w, http.StatusOK, map[string]any{
		"engines": pageSlice(engines, limit, offset),
		"total":   total,
		"limit":   limit,
		"offset":  offset,
	})
}

// GetEngine handles GET /api/v1/engines/{id}.
func (h *APIv1Handlers) GetEngine(w http.ResponseWriter, r *http.Request) {
	engineID := r.PathValue("id")
	if engineID == "" {
		WriteAPIError(w, apperrors.Validation("engine id is required"))
		return
	}

	engine, err := h.Svc.GetEngine(r.Context(), engineID)
	if err != nil {
		WriteAPIError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, engine)
}

// DeregisterEngine handles DELETE /api/v1/engines/{id}. The engine's
// assigned jobs go back to the queue without burning a retry.
func (h *APIv1Handlers) DeregisterEngine(w http.ResponseWriter, r *http.Request) {
	engineID := r.PathValue("id")
	if engineID == "" {
		WriteAPIError(w, apperrors.Validation("engine id is required"))
		return
	}

	if err := h.Svc.DeregisterEngine(r.Context(), engineID); err != nil {
		WriteAPIError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]bool{"deregistered": true})
}

// filterJobsByExpression keeps the jobs whose JSON form evaluates truthy
// under the given JMESPath expression.
func filterJobsByExpression(jobs []*model.Job, expr string) ([]*model.Job, error) {
	if _, err := jmespath.Compile(expr); err != nil {
		return nil, err
	}

	matched := make([]*model.Job, 0, len(jobs))
	for _, job := range jobs {
		doc, err := toDocument(job)
		if err != nil {
			return nil, err
		}
		res, err := jmespath.Search(expr, doc)
		if err != nil {
			return nil, err
		}
		if jmespathTruthy(res) {
			matched = append(matched, job)
		}
	}
	return matched, nil
}

// toDocument round-trips a value through JSON so filter expressions see the
// same field names the API serves.
func toDocument(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// jmespathTruthy applies JMESPath truthiness: null, false, empty strings and
// empty collections do not match.
func jmespathTruthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}

// pageSlice applies limit/offset windowing to a list response.
func pageSlice[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if len(items) > limit {
		items = items[:limit]
	}
	return items
}
