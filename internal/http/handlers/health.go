package handlers

import (
	"encoding/json"
	"net/http"
	"time"
)

// HealthHandler reports liveness plus basic build info.
type HealthHandler struct {
	version string
	started time.Time
}

func NewHealthHandler(version string) *HealthHandler {
	if version == "" {
		version = "dev"
	}
	return &HealthHandler{version: version, started: time.Now()}
}

func (h *HealthHandler) Handle(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":         "ok",
		"version":        h.version,
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
	})
}
