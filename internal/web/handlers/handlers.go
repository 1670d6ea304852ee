package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/saltyorg/routedb/internal/dbrouter"
	"github.com/saltyorg/routedb/internal/tutorials"
)

// Pools exposes the health and statistics of the routed pools
type Pools interface {
	Ping(ctx context.Context) map[dbrouter.Target]error
	Stats() map[dbrouter.Target]sql.DBStats
	DefaultTarget() dbrouter.Target
}

// MonitorStatus reports the state of the pool stats sampler
type MonitorStatus interface {
	IsRunning() bool
	NextRun() time.Time
	LastSample() time.Time
}

// VersionInfo holds application version information
type VersionInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

// Handlers contains all HTTP handlers
type Handlers struct {
	tutorials   *tutorials.Service
	pools       Pools
	monitor     MonitorStatus
	versionInfo VersionInfo
	pingTimeout time.Duration
}

// New creates a new Handlers instance
func New(svc *tutorials.Service, pools Pools) *Handlers {
	return &Handlers{
		tutorials: svc,
		pools:     pools,
	}
}

// SetMonitor sets the pool monitor reported by the pools endpoint
func (h *Handlers) SetMonitor(m MonitorStatus) {
	h.monitor = m
}

// SetVersionInfo sets the version reported by the version endpoint
func (h *Handlers) SetVersionInfo(info VersionInfo) {
	h.versionInfo = info
}

// Version returns the application version
func (h *Handlers) Version(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.versionInfo)
}

// writeJSON encodes v as the response body
func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// jsonError writes an error response
func (h *Handlers) jsonError(w http.ResponseWriter, message string, status int) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// jsonSuccess writes a success response
func (h *Handlers) jsonSuccess(w http.ResponseWriter, message string) {
	h.writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": message})
}

// handleError maps service errors to responses. Routing configuration
// errors are deployment bugs and are logged at error level.
func (h *Handlers) handleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, tutorials.ErrValidation):
		h.jsonError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, tutorials.ErrNotFound):
		h.jsonError(w, "Tutorial not found", http.StatusNotFound)
	case errors.Is(err, dbrouter.ErrConfiguration):
		log.Error().Err(err).Str("path", r.URL.Path).Msg("Routing configuration error")
		h.jsonError(w, "Database routing misconfigured", http.StatusInternalServerError)
	default:
		log.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		h.jsonError(w, "Internal server error", http.StatusInternalServerError)
	}
}

// parseID reads the {id} URL parameter
func parseID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
