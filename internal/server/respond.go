package server

import (
	"encoding/json"
	"net/http"

	"github.com/imvu-insight/datasync/internal/logging"
)

// errorResponse is the JSON structure for API error responses.
type errorResponse struct {
	Detail string `json:"detail"`
}

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a JSON error body with the given status.
func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}

// respondError logs the technical error with its request ID and returns
// the user-facing detail to the client.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, status int, detail string) {
	logging.FromContext(r.Context()).Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err,
	)
	writeError(w, status, detail)
}
