package daemon

import (
	"net/http"
	"os"
)

type HealthResponse struct {
	OK              bool   `json:"ok"`
	Version         string `json:"version"`
	PID             int    `json:"pid"`
	WatchdogEnabled *bool  `json:"watchdog_enabled,omitempty"`
}

// Health is unauthenticated; clients probe it before they hold a token.
func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	resp := HealthResponse{OK: true, Version: a.Version, PID: os.Getpid()}
	if a.Watchdog != nil {
		enabled := a.Watchdog.Snapshot().Enabled
		resp.WatchdogEnabled = &enabled
	}
	writeJSON(w, http.StatusOK, resp)
}
