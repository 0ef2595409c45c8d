package httpx

import (
	"net/http"

	"github.com/target/transcode-dispatch/internal/service"
)

// RouterServices holds the services needed by the HTTP router.
type RouterServices struct {
	Dispatcher *service.DispatcherService
	// APIKey guards every route except the health probes when non-empty.
	APIKey string
}

// NewRouter builds the coordinator's HTTP surface: the engine-facing legacy
// routes, the /api/v1 management routes and the health probes.
func NewRouter(services RouterServices) http.Handler {
	mux := http.NewServeMux()

	jobHandlers := &JobHandlers{Svc: services.Dispatcher}
	engineHandlers := &EngineHandlers{Svc: services.Dispatcher}
	v1Handlers := &APIv1Handlers{Svc: services.Dispatcher}

	registerHealthRoutes(mux)
	registerJobRoutes(mux, jobHandlers)
	registerEngineRoutes(mux, engineHandlers)
	registerV1Routes(mux, v1Handlers)

	return RequireAPIKey(services.APIKey)(mux)
}

func registerHealthRoutes(mux *http.ServeMux) {
	mux.Handle("GET /{$}", http.HandlerFunc(rootHealthHandler))
	mux.Handle("HEAD /{$}", http.HandlerFunc(rootHealthHandler))
	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))
}

// registerJobRoutes wires the engine-facing job endpoints. Collection routes
// are registered in both slash forms because engine clients POST to the
// trailing-slash paths and must not bounce through a 301.
func registerJobRoutes(mux *http.ServeMux, h *JobHandlers) {
	mux.HandleFunc("POST /jobs", h.Submit)
	mux.HandleFunc("POST /jobs/{$}", h.Submit)
	mux.HandleFunc("GET /jobs", h.List)
	mux.HandleFunc("GET /jobs/{$}", h.List)
	mux.HandleFunc("GET /jobs/{id}", h.Get)
	mux.HandleFunc("POST /jobs/{id}/complete", h.Complete)
	mux.HandleFunc("POST /jobs/{id}/fail", h.Fail)
	mux.HandleFunc("POST /jobs/{id}/retry", h.Retry)
	mux.HandleFunc("POST /jobs/{id}/progress", h.Progress)
	mux.HandleFunc("DELETE /jobs/{id}", h.Cancel)

	mux.HandleFunc("POST /assign_job", h.Assign)
	mux.HandleFunc("POST /assign_job/{$}", h.Assign)
}

func registerEngineRoutes(mux *http.ServeMux, h *EngineHandlers) {
	mux.HandleFunc("GET /engines", h.List)
	mux.HandleFunc("GET /engines/{$}", h.List)
	mux.HandleFunc("POST /engines/heartbeat", h.Heartbeat)
	mux.HandleFunc("POST /engines/heartbeat/{$}", h.Heartbeat)
	mux.HandleFunc("POST /engines/benchmark_result", h.BenchmarkResult)
	mux.HandleFunc("POST /engines/benchmark_result/{$}", h.BenchmarkResult)
}

func registerV1Routes(mux *http.ServeMux, h *APIv1Handlers) {
	registerCRUD(mux, crudRoutes{
		Base:    "/api/v1/jobs",
		Create:  h.CreateJob,
		List:    h.ListJobs,
		GetByID: h.GetJob,
		Update:  h.UpdateJob,
		Delete:  h.CancelJob,
	})
	mux.HandleFunc("GET /api/v1/jobs/stats", h.Stats)

	mux.HandleFunc("GET /api/v1/engines", h.ListEngines)
	mux.HandleFunc("GET /api/v1/engines/{id}", h.GetEngine)
	mux.HandleFunc("DELETE /api/v1/engines/{id}", h.DeregisterEngine)
}

// crudRoutes names the handlers for a standard resource route set.
type crudRoutes struct {
	Base    string
	Create  http.HandlerFunc
	List    http.HandlerFunc
	GetByID http.HandlerFunc
	Update  http.HandlerFunc
	Delete  http.HandlerFunc
}

func registerCRUD(mux *http.ServeMux, cfg crudRoutes) {
	if cfg.Base == "" {
		panic("registerCRUD: Base must not be empty") //nolint:forbidigo // Fail fast during server setup.
	}
	if cfg.Create == nil ||
		cfg.List == nil ||
		cfg.GetByID == nil ||
		cfg.Update == nil ||
		cfg.Delete == nil {
		panic("registerCRUD: nil handler for base " + cfg.Base) //nolint:forbidigo // Fail fast during server setup.
	}

	mux.HandleFunc("POST "+cfg.Base, cfg.Create)
	mux.HandleFunc("GET "+cfg.Base, cfg.List)
	mux.HandleFunc("GET "+cfg.Base+"/{id}", cfg.GetByID)
	mux.HandleFunc("PUT "+cfg.Base+"/{id}", cfg.Update)
	mux.HandleFunc("DELETE "+cfg.Base+"/{id}", cfg.Delete)
}
