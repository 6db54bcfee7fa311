package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ayusman/gyre/internal/gesture"
	"github.com/ayusman/gyre/internal/store"
)

// ZoneHandler serves zone CRUD.
type ZoneHandler struct {
	store  *store.Store
	engine Engine
	log    *slog.Logger
}

// NewZoneHandler creates a ZoneHandler. engine may be nil.
func NewZoneHandler(s *store.Store, engine Engine, log *slog.Logger) *ZoneHandler {
	if log == nil {
		log = slog.Default()
	}
	return &ZoneHandler{store: s, engine: engine, log: log.With("component", "api.zones")}
}

// Routes mounts the handler under r.
func (h *ZoneHandler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Put("/", h.Update)
		r.Delete("/", h.Delete)
	})
}

type listZonesResponse struct {
	Zones []gesture.ZoneConfig `json:"zones"`
}

// List handles GET /api/zones.
func (h *ZoneHandler) List(w http.ResponseWriter, r *http.Request) {
	zones, err := h.store.Zones().List()
	if err != nil {
		h.log.Error("list zones failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list zones")
		return
	}
	writeJSON(w, http.StatusOK, listZonesResponse{Zones: zones})
}

// Get handles GET /api/zones/{id}.
func (h *ZoneHandler) Get(w http.ResponseWriter, r *http.Request) {
	z, err := h.store.Zones().GetByID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeStoreError(w, err, "Failed to get zone")
		return
	}
	writeJSON(w, http.StatusOK, z)
}

// Create handles POST /api/zones. A missing ID is generated.
func (h *ZoneHandler) Create(w http.ResponseWriter, r *http.Request) {
	var z gesture.ZoneConfig
	if err := json.NewDecoder(r.Body).Decode(&z); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if z.ID != "" {
		if _, err := h.store.Zones().GetByID(z.ID); err == nil {
			writeError(w, http.StatusConflict, "Zone already exists")
			return
		}
	}

	if err := h.store.Zones().Create(&z); err != nil {
		h.writeStoreError(w, err, "Failed to create zone")
		return
	}

	h.log.Info("zone created", "zone", z.ID)
	h.sync()
	writeJSON(w, http.StatusCreated, z)
}

// Update handles PUT /api/zones/{id}. The path ID wins over the body.
func (h *ZoneHandler) Update(w http.ResponseWriter, r *http.Request) {
	var z gesture.ZoneConfig
	if err := json.NewDecoder(r.Body).Decode(&z); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	z.ID = chi.URLParam(r, "id")

	if err := h.store.Zones().Update(&z); err != nil {
		h.writeStoreError(w, err, "Failed to update zone")
		return
	}

	h.log.Info("zone updated", "zone", z.ID)
	h.sync()
	writeJSON(w, http.StatusOK, z)
}

// Delete handles DELETE /api/zones/{id}.
func (h *ZoneHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.store.Zones().Delete(id); err != nil {
		h.writeStoreError(w, err, "Failed to delete zone")
		return
	}

	h.log.Info("zone deleted", "zone", id)
	h.sync()
	w.WriteHeader(http.StatusNoContent)
}

func (h *ZoneHandler) sync() {
	if h.engine == nil {
		return
	}
	if err := h.engine.ReloadZones(); err != nil {
		h.log.Error("engine zone sync failed", "error", err)
	}
}

func (h *ZoneHandler) writeStoreError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "Zone not found")
	case errors.Is(err, store.ErrInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.log.Error(msg, "error", err)
		writeError(w, http.StatusInternalServerError, msg)
	}
}
