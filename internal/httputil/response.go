// Package httputil carries the HTTP plumbing shared by the monitor server
// and the calibration fetcher: uniform JSON response helpers and the Doer
// seam that lets tests swap the network for canned responses.
package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/helios-array/quality.monitor/internal/monitoring"
)

var logf = monitoring.Prefixed("http")

// errorBody is the uniform error payload of the monitor API.
type errorBody struct {
	Error string `json:"error"`
}

// WriteJSONOK encodes data as a 200 JSON response.
func WriteJSONOK(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, data)
}

// BadRequest rejects a malformed request with the given explanation.
func BadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}

// NotFound reports a missing resource.
func NotFound(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusNotFound, errorBody{Error: msg})
}

// MethodNotAllowed rejects a request verb the handler does not serve.
func MethodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method not allowed"})
}

// InternalServerError reports a server-side failure.
func InternalServerError(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logf("encode %d response: %v", status, err)
	}
}
