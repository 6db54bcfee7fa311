// Package bridge implements the client side of the remote vision bridge: a
// reconnecting websocket that streams camera frames, hand landmarks and depth
// from a depth-sensing host.
package bridge

import (
	"encoding/json"
	"strings"

	"github.com/ayusman/gyre/internal/detector"
)

// Commands understood by the bridge.
const (
	CommandSetConfig     = "set_config"
	CommandGetStatus     = "get_status"
	CommandPing          = "ping"
	CommandRestartCamera = "restart_camera"
)

// Message types sent by the bridge.
const (
	TypeGesture = "gesture"
	TypeStatus  = "status"
	TypePong    = "pong"
)

// Command is a client-to-bridge message.
type Command struct {
	Command string        `json:"command"`
	Config  *RemoteConfig `json:"config,omitempty"`
}

// RemoteConfig selects what the bridge streams.
type RemoteConfig struct {
	TargetIP     string `json:"target_ip"`
	VisionSource string `json:"vision_source"`
}

// Status describes the bridge's camera.
type Status struct {
	DeviceName string `json:"device_name"`
	ResW       int    `json:"res_w"`
	ResH       int    `json:"res_h"`
	AlignMode  string `json:"align_mode"`
}

// envelope is the union of every bridge-to-client message. Pointer fields
// tell an absent key apart from an empty value.
type envelope struct {
	Type          string           `json:"type"`
	Image         string           `json:"image"`
	Hands         *[]detector.Hand `json:"hands"`
	CenterDepthMM *float64         `json:"center_depth_mm"`
	Payload       json.RawMessage  `json:"payload"`
}

// IsValidCommand reports whether name is a command the bridge accepts.
func IsValidCommand(name string) bool {
	switch name {
	case CommandSetConfig, CommandGetStatus, CommandPing, CommandRestartCamera:
		return true
	}
	return false
}

// NormalizeURL rewrites http(s) URLs to ws(s) and adds ws:// to bare hosts.
func NormalizeURL(raw string) string {
	u := strings.TrimSpace(raw)
	if u == "" {
		return ""
	}
	lower := strings.ToLower(u)
	switch {
	case strings.HasPrefix(lower, "https://"):
		return "wss://" + u[len("https://"):]
	case strings.HasPrefix(lower, "http://"):
		return "ws://" + u[len("http://"):]
	case strings.HasPrefix(lower, "ws://"), strings.HasPrefix(lower, "wss://"):
		return u
	}
	return "ws://" + u
}
