// Package api provides the HTTP handlers for editing the zone layout.
//
// Every change is written to the store first and then pushed to the running
// engine, so edits show up on the next frame without a restart.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/ayusman/gyre/internal/store"
)

// Engine is the part of the running engine the handlers keep in sync.
type Engine interface {
	ReloadZones() error
	ApplySettings(s store.Settings)
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
