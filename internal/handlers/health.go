package handlers

import (
	"net/http"
	"time"
)

// HealthHandlers serves liveness and readiness probes.
type HealthHandlers struct {
	version   string
	startedAt time.Time
	ready     func() error
}

// NewHealthHandlers constructs health endpoints. ready may be nil when the
// process has no gated dependencies.
func NewHealthHandlers(version string, startedAt time.Time, ready func() error) *HealthHandlers {
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}
	return &HealthHandlers{version: version, startedAt: startedAt, ready: ready}
}

// Liveness reports that the process is up.
func (h *HealthHandlers) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": h.version,
		"uptime":  time.Since(h.startedAt).Truncate(time.Second).String(),
	})
}

// Readiness reports whether downstream dependencies are reachable.
func (h *HealthHandlers) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		if err := h.ready(); err != nil {
			writeJSONResponse(w, http.StatusServiceUnavailable, map[string]any{
				"status": "unavailable",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"status": "ready"})
}
