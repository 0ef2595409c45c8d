package httpx

import (
	"bytes"
	"encoding/json"
	"net/http"

	apperrors "github.com/target/transcode-dispatch/internal/errors"
)

// DecodeJSON decodes JSON from the request body into the destination.
// Unknown fields are ignored, matching what the original engine clients send.
// Returns true if successful, false if there was an error (plain-text error
// response already written).
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		WriteLegacyError(w, apperrors.Validation("invalid JSON body"))
		return false
	}
	return true
}

// DecodeJSONStrict decodes JSON rejecting unknown fields. Used by the v1 API
// mutations so that client typos fail loudly instead of silently dropping
// fields. Returns true if successful, false if there was an error (structured
// error response already written).
func DecodeJSONStrict(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		WriteAPIError(w, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid JSON body"))
		return false
	}
	return true
}

// WriteJSON writes a JSON response with the given status code and data.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := buf.WriteTo(w); err != nil {
		// Response writer errors (e.g., client disconnect) can't be recovered from here.
		return
	}
}

// WriteLegacyError writes a plain-text error response for the legacy paths,
// choosing the status from the error's kind.
func WriteLegacyError(w http.ResponseWriter, err error) {
	http.Error(w, messageFor(err), statusFor(err))
}

// WriteAPIError writes a structured JSON error for the v1 paths:
// {"error": {"code": "...", "message": "..."}}.
func WriteAPIError(w http.ResponseWriter, err error) {
	code := apperrors.GetCode(err)
	if code == "" {
		code = apperrors.ErrCodeInternal
	}
	WriteJSON(w, statusFor(err), map[string]any{
		"error": map[string]string{
			"code":    string(code),
			"message": messageFor(err),
		},
	})
}

// statusFor maps an application error kind to an HTTP status code.
func statusFor(err error) int {
	switch apperrors.GetCode(err) {
	case apperrors.ErrCodeValidation:
		return http.StatusBadRequest
	case apperrors.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case apperrors.ErrCodeNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// messageFor returns the client-facing message. Internal failures keep their
// detail out of the response body; the logging middleware has the request and
// the service logged the cause.
func messageFor(err error) string {
	if statusFor(err) == http.StatusInternalServerError {
		return "internal server error"
	}
	return err.Error()
}
