// Package hook runs external programs when zones activate or deactivate.
//
// Each hook lives in its own directory under the hook root with a
// plugin.json manifest. On a subscribed event the executable receives a
// Request as JSON on stdin and answers with a Response on stdout.
package hook

import (
	"encoding/json"
	"slices"
	"time"
)

// Manifest describes a hook's metadata and subscriptions.
type Manifest struct {
	Name        string          `json:"name"`
	Version     string          `json:"version"`
	Description string          `json:"description"`
	Executable  string          `json:"executable"`
	Events      []string        `json:"events"`          // "activate", "deactivate"
	Zones       []string        `json:"zones,omitempty"` // empty means every zone
	Config      json.RawMessage `json:"config,omitempty"`
}

// Request is sent to a hook on stdin.
type Request struct {
	Event  string          `json:"event"`
	ZoneID string          `json:"zone_id"`
	At     time.Time       `json:"at"`
	Config json.RawMessage `json:"config,omitempty"`
}

// Response is read from a hook's stdout.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Plugin is a discovered hook with its manifest and location.
type Plugin struct {
	Manifest   Manifest
	Path       string
	Executable string
}

// Subscribes reports whether p wants events of kind for zoneID.
func (p *Plugin) Subscribes(kind, zoneID string) bool {
	if !slices.Contains(p.Manifest.Events, kind) {
		return false
	}
	return len(p.Manifest.Zones) == 0 || slices.Contains(p.Manifest.Zones, zoneID)
}
