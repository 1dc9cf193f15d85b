package types

import "time"

type WatchdogSignal string

const (
	WatchdogSignalStart   WatchdogSignal = "start"
	WatchdogSignalRefresh WatchdogSignal = "refresh"
	WatchdogSignalStop    WatchdogSignal = "stop"
	WatchdogSignalIgnore  WatchdogSignal = "ignore"
)

// WatchdogSnapshot is a point-in-time, read-only copy of the supervisor
// state. Deadline is nil unless a countdown is armed. Revision increases
// with every published transition.
type WatchdogSnapshot struct {
	Revision         uint64         `json:"revision" yaml:"revision"`
	Enabled          bool           `json:"enabled" yaml:"enabled"`
	RefreshPolicy    string         `json:"refresh_policy" yaml:"refresh_policy"`
	TimeoutMS        int64          `json:"timeout_ms" yaml:"timeout_ms"`
	TrackedSessionID string         `json:"tracked_session_id,omitempty" yaml:"tracked_session_id,omitempty"`
	Waiting          bool           `json:"waiting" yaml:"waiting"`
	Armed            bool           `json:"armed" yaml:"armed"`
	LastSignal       WatchdogSignal `json:"last_signal,omitempty" yaml:"last_signal,omitempty"`
	LastEventType    string         `json:"last_event_type,omitempty" yaml:"last_event_type,omitempty"`
	LastActivity     *time.Time     `json:"last_activity,omitempty" yaml:"last_activity,omitempty"`
	Deadline         *time.Time     `json:"deadline,omitempty" yaml:"deadline,omitempty"`
	Nudges           int            `json:"nudges" yaml:"nudges"`
	LastNudgeAt      *time.Time     `json:"last_nudge_at,omitempty" yaml:"last_nudge_at,omitempty"`
	LastNudgeError   string         `json:"last_nudge_error,omitempty" yaml:"last_nudge_error,omitempty"`
}

// NudgeRecord is one journaled corrective action.
type NudgeRecord struct {
	ID         string    `json:"id" yaml:"id"`
	SessionID  string    `json:"session_id" yaml:"session_id"`
	Message    string    `json:"message" yaml:"message"`
	SentAt     time.Time `json:"sent_at" yaml:"sent_at"`
	DurationMS int64     `json:"duration_ms" yaml:"duration_ms"`
	Success    bool      `json:"success" yaml:"success"`
	Error      string    `json:"error,omitempty" yaml:"error,omitempty"`
}

type WatchdogStreamKind string

const (
	WatchdogStreamSnapshot WatchdogStreamKind = "snapshot"
	WatchdogStreamNudge    WatchdogStreamKind = "nudge"
)

// WatchdogStreamMessage is the frame pushed to websocket subscribers.
type WatchdogStreamMessage struct {
	Kind     WatchdogStreamKind `json:"kind"`
	Snapshot *WatchdogSnapshot  `json:"snapshot,omitempty"`
	Nudge    *NudgeRecord       `json:"nudge,omitempty"`
}
