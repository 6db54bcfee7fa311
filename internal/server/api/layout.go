package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ayusman/gyre/internal/store"
)

// maxLayoutBytes bounds an uploaded layout document.
const maxLayoutBytes = 4 << 20

// LayoutHandler serves layout export/import and the activation history.
type LayoutHandler struct {
	store  *store.Store
	engine Engine
	log    *slog.Logger
}

// NewLayoutHandler creates a LayoutHandler. engine may be nil.
func NewLayoutHandler(s *store.Store, engine Engine, log *slog.Logger) *LayoutHandler {
	if log == nil {
		log = slog.Default()
	}
	return &LayoutHandler{store: s, engine: engine, log: log.With("component", "api.layout")}
}

// Export handles GET /api/layout.
func (h *LayoutHandler) Export(w http.ResponseWriter, r *http.Request) {
	l, err := h.store.Export()
	if err != nil {
		h.log.Error("export layout failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to export layout")
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="layout.json"`)
	writeJSON(w, http.StatusOK, l)
}

// Import handles POST /api/layout. The current zones and settings are
// replaced by the uploaded document.
func (h *LayoutHandler) Import(w http.ResponseWriter, r *http.Request) {
	l, err := store.DecodeLayout(http.MaxBytesReader(w, r.Body, maxLayoutBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.store.Import(l); err != nil {
		if errors.Is(err, store.ErrInvalid) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.log.Error("import layout failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to import layout")
		return
	}

	h.log.Info("layout imported", "zones", len(l.Circles))
	if h.engine != nil {
		if err := h.engine.ReloadZones(); err != nil {
			h.log.Error("engine zone sync failed", "error", err)
		}
		h.engine.ApplySettings(l.Settings)
	}
	writeJSON(w, http.StatusOK, l)
}

type eventsResponse struct {
	Events []store.ZoneEvent `json:"events"`
}

// Events handles GET /api/events?limit=N, newest first.
func (h *LayoutHandler) Events(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	events, err := h.store.Events().Recent(limit)
	if err != nil {
		h.log.Error("list events failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list events")
		return
	}
	writeJSON(w, http.StatusOK, eventsResponse{Events: events})
}
