package httpx

import (
	"io"
	"net/http"
)

const (
	rootHealthResponse = "OK"
	healthResponse     = `{"status":"ok"}`
)

// rootHealthHandler answers the legacy health check at / with a bare OK.
func rootHealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.WriteString(w, rootHealthResponse); err != nil {
		return
	}
}

// healthHandler returns a simple 200 OK status for readiness/liveness probes.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.WriteString(w, healthResponse); err != nil {
		// Nothing more to do if the client connection is gone.
		return
	}
}
