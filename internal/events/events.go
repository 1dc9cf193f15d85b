// Package events models the OpenCode event stream as a closed set of typed
// variants. Every decoded payload becomes exactly one Event; payload types
// the watchdog does not care about become Unknown.
package events

import "strings"

const (
	TypeSessionCreated     = "session.created"
	TypeSessionStatus      = "session.status"
	TypeSessionIdle        = "session.idle"
	TypeSessionError       = "session.error"
	TypeMessageUpdated     = "message.updated"
	TypeMessagePartUpdated = "message.part.updated"
	TypeToolExecuteBefore  = "tool.execute.before"
	TypeToolExecuteAfter   = "tool.execute.after"
)

// Event is implemented only by the variants in this package.
type Event interface {
	// Type returns the wire discriminator, e.g. "session.status".
	Type() string
	// Session returns the session the event belongs to, or "" when the
	// payload does not say.
	Session() string
	isEvent()
}

type Status string

const (
	StatusRunning   Status = "running"
	StatusPending   Status = "pending"
	StatusIdle      Status = "idle"
	StatusCompleted Status = "completed"
)

// NormalizeStatus maps OpenCode's status names onto the watchdog's
// vocabulary. "busy" is running, "retry" is pending.
func NormalizeStatus(raw string) Status {
	switch value := strings.ToLower(strings.TrimSpace(raw)); value {
	case "busy", "running":
		return StatusRunning
	case "retry", "pending":
		return StatusPending
	default:
		return Status(value)
	}
}

type SessionCreated struct {
	SessionID string
	Title     string
}

type SessionStatus struct {
	SessionID string
	Status    Status
}

// MessageUpdated covers both whole-message updates and streamed part
// updates; Partial is true for the latter.
type MessageUpdated struct {
	SessionID string
	MessageID string
	Partial   bool
}

type ToolPhase string

const (
	ToolBefore ToolPhase = "before"
	ToolAfter  ToolPhase = "after"
)

type ToolExecute struct {
	SessionID string
	Tool      string
	CallID    string
	Phase     ToolPhase
}

type SessionIdle struct {
	SessionID string
}

type SessionError struct {
	SessionID string
	Name      string
	Message   string
}

type Unknown struct {
	Name      string
	SessionID string
}

func (SessionCreated) Type() string { return TypeSessionCreated }
func (SessionStatus) Type() string  { return TypeSessionStatus }
func (e MessageUpdated) Type() string {
	if e.Partial {
		return TypeMessagePartUpdated
	}
	return TypeMessageUpdated
}
func (e ToolExecute) Type() string {
	if e.Phase == ToolAfter {
		return TypeToolExecuteAfter
	}
	return TypeToolExecuteBefore
}
func (SessionIdle) Type() string  { return TypeSessionIdle }
func (SessionError) Type() string { return TypeSessionError }
func (e Unknown) Type() string    { return e.Name }

func (e SessionCreated) Session() string { return e.SessionID }
func (e SessionStatus) Session() string  { return e.SessionID }
func (e MessageUpdated) Session() string { return e.SessionID }
func (e ToolExecute) Session() string    { return e.SessionID }
func (e SessionIdle) Session() string    { return e.SessionID }
func (e SessionError) Session() string   { return e.SessionID }
func (e Unknown) Session() string        { return e.SessionID }

func (SessionCreated) isEvent() {}
func (SessionStatus) isEvent()  {}
func (MessageUpdated) isEvent() {}
func (ToolExecute) isEvent()    {}
func (SessionIdle) isEvent()    {}
func (SessionError) isEvent()   {}
func (Unknown) isEvent()        {}
