package daemon

import "net/http"

func (a *API) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", a.Health)
	mux.HandleFunc("/v1/watchdog", a.WatchdogStatus)
	mux.HandleFunc("/v1/watchdog/stream", a.WatchdogStream)
	mux.HandleFunc("/v1/nudges", a.Nudges)
}
