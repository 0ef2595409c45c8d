package httpx

import (
	"bytes"
	"compress/gzip"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRequireAPIKey_MissingHeader(t *testing.T) {
	handler := RequireAPIKey("k")(okHandler())

	r := httptest.NewRequest(http.MethodGet, "/jobs/", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, r)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Unauthorized: Missing 'X-API-Key' header.", w.Body.String())
}

func TestRequireAPIKey_WrongKey(t *testing.T) {
	handler := RequireAPIKey("k")(okHandler())

	r := httptest.NewRequest(http.MethodGet, "/jobs/", nil)
	r.Header.Set("X-API-Key", "wrong")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, r)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Unauthorized", w.Body.String())
}

func TestRequireAPIKey_CorrectKey(t *testing.T) {
	handler := RequireAPIKey("k")(okHandler())

	r := httptest.NewRequest(http.MethodGet, "/jobs/", nil)
	r.Header.Set("X-API-Key", "k")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireAPIKey_EmptySecretDisablesCheck(t *testing.T) {
	handler := RequireAPIKey("")(okHandler())

	r := httptest.NewRequest(http.MethodGet, "/jobs/", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireAPIKey_HealthPathsExempt(t *testing.T) {
	handler := RequireAPIKey("k")(okHandler())

	for _, path := range []string{"/", "/healthz"} {
		r := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, r)

		assert.Equal(t, http.StatusOK, w.Code, "path %s should bypass auth", path)
	}
}

func TestRecover_PanicReturns500(t *testing.T) {
	handler := Recover(discardLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	r := httptest.NewRequest(http.MethodGet, "/jobs/", nil)
	w := httptest.NewRecorder()

	require.NotPanics(t, func() { handler.ServeHTTP(w, r) })
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestLogging_PreservesStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	handler := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	r := httptest.NewRequest(http.MethodGet, "/jobs/", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Contains(t, buf.String(), "status=418")
}

func TestCompression_CompressesJSON(t *testing.T) {
	payload := `{"status":"ok"}`
	handler := Compression(CompressionConfig{Level: 5, Logger: discardLogger()})(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(payload))
		}))

	r := httptest.NewRequest(http.MethodGet, "/jobs/", nil)
	r.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
	assert.Contains(t, w.Header().Values("Vary"), "Accept-Encoding")

	gr, err := gzip.NewReader(w.Body)
	require.NoError(t, err)
	body, err := io.ReadAll(gr)
	require.NoError(t, err)
	assert.Equal(t, payload, string(body))
}

func TestCompression_SkippedWithoutAcceptEncoding(t *testing.T) {
	payload := `{"status":"ok"}`
	handler := Compression(CompressionConfig{Level: 5, Logger: discardLogger()})(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(payload))
		}))

	r := httptest.NewRequest(http.MethodGet, "/jobs/", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Content-Encoding"))
	assert.Equal(t, payload, w.Body.String())
}

func TestCompression_SkipsNonCompressibleType(t *testing.T) {
	handler := Compression(CompressionConfig{Level: 5, Logger: discardLogger()})(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte{0x89, 0x50, 0x4e, 0x47})
		}))

	r := httptest.NewRequest(http.MethodGet, "/thumb.png", nil)
	r.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, r)

	assert.Empty(t, w.Header().Get("Content-Encoding"))
}

func TestCompression_SkipsNoContent(t *testing.T) {
	handler := Compression(CompressionConfig{Level: 5, Logger: discardLogger()})(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))

	r := httptest.NewRequest(http.MethodPost, "/assign_job/", nil)
	r.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, r)

	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Header().Get("Content-Encoding"))
}

func TestCompression_RespectsQZero(t *testing.T) {
	payload := `{"status":"ok"}`
	handler := Compression(CompressionConfig{Level: 5, Logger: discardLogger()})(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(payload))
		}))

	r := httptest.NewRequest(http.MethodGet, "/jobs/", nil)
	r.Header.Set("Accept-Encoding", "gzip;q=0")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, r)

	assert.Empty(t, w.Header().Get("Content-Encoding"))
	assert.Equal(t, payload, w.Body.String())
}
