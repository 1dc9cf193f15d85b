package daemon

import (
	"net/http"

	"overseer/internal/logging"
	"overseer/internal/store"
	"overseer/internal/types"
)

func (a *API) WatchdogStatus(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	if a.Watchdog == nil {
		writeError(w, unavailable("watchdog not configured", nil))
		return
	}
	writeJSON(w, http.StatusOK, a.Watchdog.Snapshot())
}

func (a *API) WatchdogStream(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	if a.Stream == nil {
		writeError(w, unavailable("stream not configured", nil))
		return
	}
	a.Stream.ServeHTTP(w, r)
}

func (a *API) Nudges(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	if a.Journal == nil {
		writeError(w, unavailable("nudge journal not configured", nil))
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, err)
		return
	}
	records, err := a.Journal.List(r.Context(), store.NudgeFilter{
		SessionID: r.URL.Query().Get("session"),
		Limit:     limit,
	})
	if err != nil {
		if a.Logger != nil {
			a.Logger.Error("nudge_list_failed", logging.F("error", err))
		}
		writeError(w, unavailable("nudge journal unavailable", err))
		return
	}
	if records == nil {
		records = []*types.NudgeRecord{}
	}
	writeJSON(w, http.StatusOK, NudgesResponse{Nudges: records})
}
