// Package server provides the HTTP surface of the Gyre engine: layout
// editing, live previews, the state feed and bridge control.
package server

import (
	"encoding/json"
	"errors"
	"image"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ayusman/gyre/internal/app"
	"github.com/ayusman/gyre/internal/bridge"
	"github.com/ayusman/gyre/internal/hook"
	"github.com/ayusman/gyre/internal/logger"
	"github.com/ayusman/gyre/internal/metrics"
	"github.com/ayusman/gyre/internal/server/api"
	"github.com/ayusman/gyre/internal/store"
)

// Engine is the running engine as seen by the HTTP surface.
type Engine interface {
	api.Engine
	State() app.State
	Frame() *image.RGBA
	Settings() store.Settings
	SetOverlay(o app.Overlay) error
	Overlay() app.Overlay
	SetEnabled(enabled bool)
	Enabled() bool
	Bridge() *bridge.Client
}

// Config holds the server configuration. Routes whose collaborator is nil
// are not mounted.
type Config struct {
	Store     *store.Store
	Engine    Engine
	Hooks     *hook.Manager
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	StaticDir string

	// StreamFPS is the preview and state feed rate (default 15).
	StreamFPS int
	// JPEGQuality is the MJPEG preview quality (default 80).
	JPEGQuality int
}

// Server represents the HTTP server for the Gyre engine.
type Server struct {
	config Config
	log    *slog.Logger
	router *chi.Mux
	state  *StateHandler
	start  time.Time
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.StreamFPS <= 0 {
		config.StreamFPS = 15
	}
	if config.JPEGQuality <= 0 {
		config.JPEGQuality = 80
	}

	s := &Server{
		config: config,
		log:    config.Logger.With("component", "server"),
		router: chi.NewRouter(),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	r := s.router
	r.Use(logger.RequestLogger(s.config.Logger))
	if s.config.Metrics != nil {
		r.Use(metrics.RequestMiddleware(s.config.Metrics))
		r.Method(http.MethodGet, "/metrics", s.config.Metrics.Handler(nil))
	}

	r.Get("/api/health", s.handleHealth)

	if st := s.config.Store; st != nil {
		zones := api.NewZoneHandler(st, s.config.Engine, s.config.Logger)
		layout := api.NewLayoutHandler(st, s.config.Engine, s.config.Logger)

		r.Route("/api/zones", zones.Routes)
		r.Get("/api/layout", layout.Export)
		r.Post("/api/layout", layout.Import)
		r.Get("/api/events", layout.Events)
	}

	if e := s.config.Engine; e != nil {
		interval := time.Second / time.Duration(s.config.StreamFPS)
		s.state = NewStateHandler(e, interval, s.config.Logger)

		r.Method(http.MethodGet, "/api/state", s.state)
		r.Method(http.MethodGet, "/api/stream", NewStreamHandler(e, interval, s.config.JPEGQuality))
		r.Get("/api/snapshot", s.handleSnapshot)
		r.Get("/api/tracking", s.handleGetTracking)
		r.Put("/api/tracking", s.handleSetTracking)
		r.Get("/api/overlay", s.handleGetOverlay)
		r.Put("/api/overlay", s.handleSetOverlay)
		r.Get("/api/bridge", s.handleBridgeStatus)
		r.Post("/api/bridge/{command}", s.handleBridgeCommand)
	}

	if s.config.Hooks != nil {
		r.Get("/api/hooks", s.handleHooks)
	}

	if s.config.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(s.config.StaticDir)))
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close stops the state feed.
func (s *Server) Close() {
	if s.state != nil {
		s.state.Close()
	}
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	}
	if s.config.Engine != nil {
		response["tracking"] = s.config.Engine.Enabled()
	}
	writeJSON(w, http.StatusOK, response)
}

type trackingRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) handleGetTracking(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, trackingRequest{Enabled: s.config.Engine.Enabled()})
}

func (s *Server) handleSetTracking(w http.ResponseWriter, r *http.Request) {
	var req trackingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	s.config.Engine.SetEnabled(req.Enabled)
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) handleGetOverlay(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.config.Engine.Overlay())
}

func (s *Server) handleSetOverlay(w http.ResponseWriter, r *http.Request) {
	var o app.Overlay
	if err := json.NewDecoder(r.Body).Decode(&o); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if err := s.config.Engine.SetOverlay(o); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// handleSnapshot serves the current composited frame as lossless WebP.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "image/webp")
	w.Header().Set("Cache-Control", "no-cache")
	if err := encodeWebP(w, s.config.Engine.Frame()); err != nil {
		s.log.Error("snapshot encode failed", "error", err)
	}
}

func (s *Server) handleBridgeStatus(w http.ResponseWriter, r *http.Request) {
	b := s.config.Engine.Bridge()
	if b == nil {
		writeError(w, http.StatusConflict, "Bridge not in use")
		return
	}
	latest := b.Latest()
	writeJSON(w, http.StatusOK, app.BridgeState{
		URL:           b.URL(),
		Connected:     latest.Connected,
		CenterDepthMM: latest.CenterDepthMM,
		Device:        latest.Status,
	})
}

// handleBridgeCommand forwards one command to the bridge.
func (s *Server) handleBridgeCommand(w http.ResponseWriter, r *http.Request) {
	cmd := chi.URLParam(r, "command")
	if !bridge.IsValidCommand(cmd) {
		writeError(w, http.StatusBadRequest, "Unknown bridge command")
		return
	}

	b := s.config.Engine.Bridge()
	if b == nil {
		writeError(w, http.StatusConflict, "Bridge not in use")
		return
	}

	var err error
	switch cmd {
	case bridge.CommandSetConfig:
		var rc bridge.RemoteConfig
		if decodeErr := json.NewDecoder(r.Body).Decode(&rc); decodeErr != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON")
			return
		}
		err = b.SetConfig(rc.TargetIP, rc.VisionSource)
	case bridge.CommandGetStatus:
		err = b.GetStatus()
	case bridge.CommandPing:
		err = b.Ping()
	case bridge.CommandRestartCamera:
		err = b.RestartCamera()
	}

	switch {
	case errors.Is(err, bridge.ErrNotConnected):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case err != nil:
		s.log.Error("bridge command failed", "command", cmd, "error", err)
		writeError(w, http.StatusInternalServerError, "Bridge command failed")
	default:
		s.log.Info("bridge command sent", "command", cmd)
		writeJSON(w, http.StatusAccepted, map[string]string{"sent": cmd})
	}
}

type hookResponse struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Description string   `json:"description"`
	Events      []string `json:"events"`
	Zones       []string `json:"zones,omitempty"`
}

func (s *Server) handleHooks(w http.ResponseWriter, r *http.Request) {
	plugins := s.config.Hooks.List()
	out := make([]hookResponse, 0, len(plugins))
	for _, p := range plugins {
		out = append(out, hookResponse{
			Name:        p.Manifest.Name,
			Version:     p.Manifest.Version,
			Description: p.Manifest.Description,
			Events:      p.Manifest.Events,
			Zones:       p.Manifest.Zones,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"hooks": out})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Debug("encode response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
