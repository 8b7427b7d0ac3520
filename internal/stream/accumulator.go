package stream

import "strings"

// toolWindow is the number of recent tool summaries kept for progress display.
const toolWindow = 5

// Accumulator folds a sequence of events into the final response text, the
// discovered session id, and a bounded trailing window of tool activity.
// It is not safe for concurrent use; the supervisor owns one per invocation.
type Accumulator struct {
	response  strings.Builder
	sessionID string
	tools     []string
}

// NewAccumulator creates an empty Accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Apply folds one event into the accumulator and reports whether it changed
// the progress display (i.e. added a tool summary).
func (a *Accumulator) Apply(ev Event) (progressed bool) {
	if id := ev.Session(); id != "" && a.sessionID == "" {
		a.sessionID = id
	}

	switch ev := ev.(type) {
	case ToolUse:
		a.tools = append(a.tools, Summarize(ev))
		if len(a.tools) > toolWindow {
			a.tools = a.tools[len(a.tools)-toolWindow:]
		}
		return true
	case Text:
		if ev.Body != "" {
			a.response.WriteString(ev.Body)
		}
	case ErrorEvent:
		// Replaces everything accumulated so far; text arriving after the
		// error still appends to it.
		a.response.Reset()
		a.response.WriteString("Error: " + ev.Message)
	case Unstructured:
		if ev.FinalText != "" {
			a.response.Reset()
			a.response.WriteString(ev.FinalText)
		}
	case StepFinish:
		// Session id capture only, handled above.
	}
	return false
}

// SessionID returns the first session identifier seen, or "".
func (a *Accumulator) SessionID() string {
	return a.sessionID
}

// Response returns the accumulated response text, trimmed. An error event or
// legacy final-text extraction replaces everything accumulated before it.
func (a *Accumulator) Response() string {
	return strings.TrimSpace(a.response.String())
}

// ToolSummaries returns the trailing window of tool activity, oldest first.
func (a *Accumulator) ToolSummaries() []string {
	return a.tools
}
