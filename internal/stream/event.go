// Package stream parses the agent's line-oriented JSON event output.
package stream

import "encoding/json"

// Event is one decoded line of agent output. The set of implementations is
// closed: ToolUse, Text, StepFinish, ErrorEvent, and Unstructured for lines
// the structured decoder rejects.
type Event interface {
	// Session returns the session identifier carried by the event, or "".
	Session() string
}

// ToolUse reports a tool invocation in progress or completed.
type ToolUse struct {
	SessionID string
	Tool      string
	Status    string
	Title     string
	Input     map[string]interface{}
}

// Text carries one response fragment.
type Text struct {
	SessionID string
	Body      string
}

// StepFinish marks a step boundary.
type StepFinish struct {
	SessionID string
}

// ErrorEvent reports an agent-side error. Its message is authoritative over
// any text accumulated before it.
type ErrorEvent struct {
	SessionID string
	Message   string
}

// Unstructured wraps a line the structured decoder could not handle, with
// whatever the legacy fallback managed to extract.
type Unstructured struct {
	Raw       string
	FinalText string
	SessionID string
}

func (e ToolUse) Session() string      { return e.SessionID }
func (e Text) Session() string         { return e.SessionID }
func (e StepFinish) Session() string   { return e.SessionID }
func (e ErrorEvent) Session() string   { return e.SessionID }
func (e Unstructured) Session() string { return e.SessionID }

// rawEvent mirrors the wire shape of a structured line.
type rawEvent struct {
	Type      string   `json:"type"`
	SessionID string   `json:"sessionID"`
	Message   string   `json:"message"`
	Error     string   `json:"error"`
	Part      *rawPart `json:"part"`
}

type rawPart struct {
	Tool  string          `json:"tool"`
	Text  string          `json:"text"`
	State *rawToolState   `json:"state"`
}

type rawToolState struct {
	Status string          `json:"status"`
	Title  string          `json:"title"`
	Input  json.RawMessage `json:"input"`
}

// Decode parses one raw output line into an Event. It never fails: lines
// that are not structured events come back as Unstructured with best-effort
// legacy extraction applied.
func Decode(line string) Event {
	var raw rawEvent
	if err := json.Unmarshal([]byte(line), &raw); err != nil || raw.Type == "" {
		return Unstructured{
			Raw:       line,
			FinalText: extractFinalText(line),
			SessionID: extractSessionID(line),
		}
	}

	switch raw.Type {
	case "tool_use":
		ev := ToolUse{SessionID: raw.SessionID}
		if raw.Part != nil {
			ev.Tool = raw.Part.Tool
			if raw.Part.State != nil {
				ev.Status = raw.Part.State.Status
				ev.Title = raw.Part.State.Title
				ev.Input = decodeToolInput(raw.Part.State.Input)
			}
		}
		return ev
	case "text":
		ev := Text{SessionID: raw.SessionID}
		if raw.Part != nil {
			ev.Body = raw.Part.Text
		}
		return ev
	case "step_finish":
		return StepFinish{SessionID: raw.SessionID}
	case "error":
		msg := raw.Message
		if msg == "" {
			msg = raw.Error
		}
		if msg == "" {
			msg = "Unknown error"
		}
		return ErrorEvent{SessionID: raw.SessionID, Message: msg}
	default:
		// Unknown structured type: keep the session id, contribute nothing else.
		return Unstructured{Raw: line, SessionID: raw.SessionID}
	}
}

// decodeToolInput handles the input field, which arrives as either an object
// or a JSON-encoded string.
func decodeToolInput(raw json.RawMessage) map[string]interface{} {
	if len(raw) == 0 {
		return nil
	}
	var obj map[string]interface{}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj
	}
	var nested string
	if err := json.Unmarshal(raw, &nested); err == nil {
		if err := json.Unmarshal([]byte(nested), &obj); err == nil {
			return obj
		}
	}
	return nil
}
