// Package main provides a hook that appends zone events to a JSON lines file.
//
// The target file comes from the manifest config:
//
//	{"path": "~/.gyre/events.jsonl"}
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Request represents the input from the hook executor.
type Request struct {
	Event  string          `json:"event"`
	ZoneID string          `json:"zone_id"`
	At     time.Time       `json:"at"`
	Config json.RawMessage `json:"config"`
}

// Response represents the output to the hook executor.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type config struct {
	Path string `json:"path"`
}

type line struct {
	Event  string    `json:"event"`
	ZoneID string    `json:"zone_id"`
	At     time.Time `json:"at"`
	Logged time.Time `json:"logged"`
}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeErrorResponse(fmt.Sprintf("failed to decode request: %v", err))
		return
	}

	path, err := targetPath(req.Config)
	if err != nil {
		writeErrorResponse(err.Error())
		return
	}

	if err := appendLine(path, line{Event: req.Event, ZoneID: req.ZoneID, At: req.At, Logged: time.Now().UTC()}); err != nil {
		writeErrorResponse(fmt.Sprintf("append %s: %v", path, err))
		return
	}

	writeSuccessResponse(path)
}

func targetPath(raw json.RawMessage) (string, error) {
	cfg := config{Path: "events.jsonl"}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return "", fmt.Errorf("invalid config: %v", err)
		}
	}
	if strings.HasPrefix(cfg.Path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		cfg.Path = filepath.Join(home, cfg.Path[2:])
	}
	return cfg.Path, nil
}

func appendLine(path string, l line) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(l)
}

// writeErrorResponse writes an error response to stdout.
func writeErrorResponse(errMsg string) {
	json.NewEncoder(os.Stdout).Encode(Response{Success: false, Error: errMsg})
}

// writeSuccessResponse writes a success response to stdout.
func writeSuccessResponse(path string) {
	data, _ := json.Marshal(map[string]string{"path": path})
	json.NewEncoder(os.Stdout).Encode(Response{Success: true, Data: data})
}
