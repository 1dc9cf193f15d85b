package client

import "overseer/internal/types"

type HealthResponse struct {
	OK              bool   `json:"ok"`
	Version         string `json:"version"`
	PID             int    `json:"pid"`
	WatchdogEnabled *bool  `json:"watchdog_enabled,omitempty"`
}

type NudgesResponse struct {
	Nudges []*types.NudgeRecord `json:"nudges"`
}
