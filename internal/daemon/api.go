package daemon

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"overseer/internal/logging"
	"overseer/internal/store"
	"overseer/internal/types"
)

const (
	defaultNudgeListLimit = 50
	maxNudgeListLimit     = 1000
)

type WatchdogReader interface {
	Snapshot() types.WatchdogSnapshot
}

type NudgeLister interface {
	List(ctx context.Context, filter store.NudgeFilter) ([]*types.NudgeRecord, error)
}

type API struct {
	Version  string
	Watchdog WatchdogReader
	Journal  NudgeLister
	Stream   http.Handler
	Logger   logging.Logger
}

type NudgesResponse struct {
	Nudges []*types.NudgeRecord `json:"nudges"`
}

func parseLimit(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return defaultNudgeListLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, badRequest("limit must be a positive integer", err)
	}
	if limit > maxNudgeListLimit {
		limit = maxNudgeListLimit
	}
	return limit, nil
}

func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	return false
}
