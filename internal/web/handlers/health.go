package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

const defaultPingTimeout = 5 * time.Second

// SetPingTimeout bounds how long Healthz waits for each round of pings
func (h *Handlers) SetPingTimeout(d time.Duration) {
	h.pingTimeout = d
}

// Healthz pings every pool and reports 503 if any of them fails
func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	timeout := h.pingTimeout
	if timeout <= 0 {
		timeout = defaultPingTimeout
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	status := http.StatusOK
	pools := make(map[string]string)
	for target, err := range h.pools.Ping(ctx) {
		if err != nil {
			log.Warn().Err(err).Str("target", target.String()).Msg("Pool health check failed")
			pools[target.String()] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		pools[target.String()] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	h.writeJSON(w, status, map[string]any{
		"status": overall,
		"pools":  pools,
	})
}

// PoolStats is the JSON form of sql.DBStats
type PoolStats struct {
	MaxOpenConnections int    `json:"max_open_connections"`
	OpenConnections    int    `json:"open_connections"`
	InUse              int    `json:"in_use"`
	Idle               int    `json:"idle"`
	WaitCount          int64  `json:"wait_count"`
	WaitDuration       string `json:"wait_duration"`
	MaxIdleClosed      int64  `json:"max_idle_closed"`
	MaxLifetimeClosed  int64  `json:"max_lifetime_closed"`
}

// MonitorInfo is the JSON form of the pool monitor state
type MonitorInfo struct {
	Running    bool       `json:"running"`
	NextSample *time.Time `json:"next_sample,omitempty"`
	LastSample *time.Time `json:"last_sample,omitempty"`
}

// Pools returns connection statistics per target, plus the pool monitor
// state when one is running.
func (h *Handlers) Pools(w http.ResponseWriter, r *http.Request) {
	pools := make(map[string]PoolStats)
	for target, s := range h.pools.Stats() {
		pools[target.String()] = PoolStats{
			MaxOpenConnections: s.MaxOpenConnections,
			OpenConnections:    s.OpenConnections,
			InUse:              s.InUse,
			Idle:               s.Idle,
			WaitCount:          s.WaitCount,
			WaitDuration:       s.WaitDuration.String(),
			MaxIdleClosed:      s.MaxIdleClosed,
			MaxLifetimeClosed:  s.MaxLifetimeClosed,
		}
	}

	resp := map[string]any{
		"default": h.pools.DefaultTarget().String(),
		"pools":   pools,
	}
	if h.monitor != nil {
		status := MonitorInfo{Running: h.monitor.IsRunning()}
		if next := h.monitor.NextRun(); !next.IsZero() {
			status.NextSample = &next
		}
		if last := h.monitor.LastSample(); !last.IsZero() {
			status.LastSample = &last
		}
		resp["monitor"] = status
	}

	h.writeJSON(w, http.StatusOK, resp)
}
