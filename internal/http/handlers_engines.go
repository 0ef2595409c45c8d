package httpx

import (
	"net/http"

	"github.com/target/transcode-dispatch/internal/domain/model"
	"github.com/target/transcode-dispatch/internal/service"
)

// EngineHandlers provides the legacy engine endpoints.
type EngineHandlers struct {
	Svc *service.DispatcherService
}

// List handles HTTP requests to list the registered engine fleet.
func (h *EngineHandlers) List(w http.ResponseWriter, r *http.Request) {
	engines, err := h.Svc.ListEngines(r.Context())
	if err != nil {
		WriteLegacyError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, engines)
}

// Heartbeat handles engine check-ins. Unknown engines are registered,
// known ones get their capability profile refreshed.
func (h *EngineHandlers) Heartbeat(w http.ResponseWriter, r *http.Request) {
	var hb model.Heartbeat
	if !DecodeJSON(w, r, &hb) {
		return
	}

	engine, err := h.Svc.Heartbeat(r.Context(), &hb)
	if err != nil {
		WriteLegacyError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, engine)
}

// BenchmarkResult handles HTTP requests recording a speed measurement for a
// known engine.
func (h *EngineHandlers) BenchmarkResult(w http.ResponseWriter, r *http.Request) {
	var req model.BenchmarkResult
	if !DecodeJSON(w, r, &req) {
		return
	}

	engine, err := h.Svc.RecordBenchmark(r.Context(), &req)
	if err != nil {
		WriteLegacyError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, engine)
}
