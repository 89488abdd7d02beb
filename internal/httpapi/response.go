package httpapi

import (
	"encoding/json"
	"net/http"
)

// ErrorEnvelope is the body of every non-2xx response.
type ErrorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details,omitempty"`
	} `json:"error"`
}

// SyncURLResponse is the default response shape.
type SyncURLResponse struct {
	SyncURL string `json:"sync_url"`
}

// URLsResponse lists every published video along with the raw process output.
type URLsResponse struct {
	URLs   []string `json:"urls"`
	Stdout string   `json:"stdout"`
	Stderr string   `json:"stderr"`
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeErr(w http.ResponseWriter, status int, code, msg string, details map[string]any) {
	var env ErrorEnvelope
	env.Error.Code = code
	env.Error.Message = msg
	env.Error.Details = details

	writeJSON(w, status, env)
}
