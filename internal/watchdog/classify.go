// Package watchdog supervises a single OpenCode session and nudges it when
// it goes quiet for longer than the configured timeout.
package watchdog

import (
	"overseer/internal/events"
	"overseer/internal/types"
)

// Signal is the liveness intent of an event.
type Signal int

const (
	Ignored Signal = iota
	StartsMonitoring
	RefreshesMonitoring
	StopsMonitoring
)

func (s Signal) String() string {
	return string(s.wire())
}

func (s Signal) wire() types.WatchdogSignal {
	switch s {
	case StartsMonitoring:
		return types.WatchdogSignalStart
	case RefreshesMonitoring:
		return types.WatchdogSignalRefresh
	case StopsMonitoring:
		return types.WatchdogSignalStop
	default:
		return types.WatchdogSignalIgnore
	}
}

// Classify maps every event variant onto exactly one Signal. SessionCreated
// is Ignored here; the supervisor handles its session tracking separately.
func Classify(ev events.Event) Signal {
	switch e := ev.(type) {
	case events.SessionStatus:
		switch e.Status {
		case events.StatusRunning, events.StatusPending:
			return StartsMonitoring
		case events.StatusIdle, events.StatusCompleted:
			return StopsMonitoring
		default:
			return Ignored
		}
	case events.MessageUpdated, events.ToolExecute:
		return RefreshesMonitoring
	case events.SessionIdle, events.SessionError:
		return StopsMonitoring
	default:
		return Ignored
	}
}
