package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func fail(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"error":   message,
	})
}

func badRequest(w http.ResponseWriter, message string) {
	fail(w, http.StatusBadRequest, message)
}

func internalError(w http.ResponseWriter) {
	fail(w, http.StatusInternalServerError, "internal server error")
}

// decodeJSON reads a request body into dst with a size cap so oversized
// payloads fail instead of buffering.
func decodeJSON(r *http.Request, dst any) error {
	return json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20)).Decode(dst)
}

// readBody reads at most max bytes of the raw request body. Webhook handlers
// need the raw bytes for signature verification.
func readBody(r *http.Request, max int64) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(io.LimitReader(r.Body, max))
}
