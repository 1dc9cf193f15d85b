package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrEmptyType = errors.New("event type is required")

type envelope struct {
	Type       string          `json:"type"`
	Properties json.RawMessage `json:"properties"`
}

type sessionInfo struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionID"`
	Title     string `json:"title"`
}

type sessionProps struct {
	SessionID string          `json:"sessionID"`
	Info      sessionInfo     `json:"info"`
	Status    json.RawMessage `json:"status"`
	Error     json.RawMessage `json:"error"`
}

type partProps struct {
	Part struct {
		SessionID string `json:"sessionID"`
		MessageID string `json:"messageID"`
	} `json:"part"`
}

type toolProps struct {
	SessionID string `json:"sessionID"`
	Tool      string `json:"tool"`
	CallID    string `json:"callID"`
}

// Decode parses one event payload as delivered in an SSE data frame:
// {"type": "...", "properties": {...}}. Unrecognised types decode to
// Unknown; malformed JSON is an error.
func Decode(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	eventType := strings.ToLower(strings.TrimSpace(env.Type))
	if eventType == "" {
		return nil, ErrEmptyType
	}
	props := env.Properties
	if len(props) == 0 || string(props) == "null" {
		props = json.RawMessage("{}")
	}

	switch eventType {
	case TypeSessionCreated, TypeSessionStatus, TypeSessionIdle, TypeSessionError:
		var p sessionProps
		if err := json.Unmarshal(props, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", eventType, err)
		}
		return decodeSessionEvent(eventType, p), nil
	case TypeMessageUpdated:
		var p sessionProps
		if err := json.Unmarshal(props, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", eventType, err)
		}
		return MessageUpdated{
			SessionID: firstNonEmpty(p.Info.SessionID, p.SessionID),
			MessageID: strings.TrimSpace(p.Info.ID),
		}, nil
	case TypeMessagePartUpdated:
		var p partProps
		if err := json.Unmarshal(props, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", eventType, err)
		}
		return MessageUpdated{
			SessionID: strings.TrimSpace(p.Part.SessionID),
			MessageID: strings.TrimSpace(p.Part.MessageID),
			Partial:   true,
		}, nil
	case TypeToolExecuteBefore, TypeToolExecuteAfter:
		var p toolProps
		if err := json.Unmarshal(props, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", eventType, err)
		}
		phase := ToolBefore
		if eventType == TypeToolExecuteAfter {
			phase = ToolAfter
		}
		return ToolExecute{
			SessionID: strings.TrimSpace(p.SessionID),
			Tool:      strings.TrimSpace(p.Tool),
			CallID:    strings.TrimSpace(p.CallID),
			Phase:     phase,
		}, nil
	default:
		var p sessionProps
		_ = json.Unmarshal(props, &p)
		return Unknown{Name: eventType, SessionID: strings.TrimSpace(p.SessionID)}, nil
	}
}

func decodeSessionEvent(eventType string, p sessionProps) Event {
	switch eventType {
	case TypeSessionCreated:
		return SessionCreated{
			SessionID: firstNonEmpty(p.Info.ID, p.SessionID),
			Title:     strings.TrimSpace(p.Info.Title),
		}
	case TypeSessionStatus:
		return SessionStatus{
			SessionID: strings.TrimSpace(p.SessionID),
			Status:    NormalizeStatus(statusName(p.Status)),
		}
	case TypeSessionIdle:
		return SessionIdle{SessionID: strings.TrimSpace(p.SessionID)}
	default:
		name, message := errorDetails(p.Error)
		return SessionError{
			SessionID: strings.TrimSpace(p.SessionID),
			Name:      name,
			Message:   message,
		}
	}
}

// statusName accepts both the plain string form ("running") and the
// object form ({"type": "busy"}).
func statusName(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		return name
	}
	var obj struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Type
	}
	return ""
}

func errorDetails(raw json.RawMessage) (name, message string) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", ""
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return "", strings.TrimSpace(text)
	}
	var obj struct {
		Name    string `json:"name"`
		Message string `json:"message"`
		Data    struct {
			Message string `json:"message"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", ""
	}
	return strings.TrimSpace(obj.Name), firstNonEmpty(obj.Message, obj.Data.Message)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
