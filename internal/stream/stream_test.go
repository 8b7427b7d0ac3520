package stream

import (
	"strings"
	"testing"
)

func TestDecodeToolUse(t *testing.T) {
	line := `{"type":"tool_use","sessionID":"ses_abc12345","part":{"tool":"bash","state":{"status":"running","input":{"command":"ls"}}}}`
	ev, ok := Decode(line).(ToolUse)
	if !ok {
		t.Fatalf("expected ToolUse, got %T", Decode(line))
	}
	if ev.SessionID != "ses_abc12345" {
		t.Errorf("session = %q", ev.SessionID)
	}
	if ev.Tool != "bash" || ev.Status != "running" {
		t.Errorf("tool = %q status = %q", ev.Tool, ev.Status)
	}
	if ev.Input["command"] != "ls" {
		t.Errorf("input = %v", ev.Input)
	}
}

func TestDecodeToolInputAsString(t *testing.T) {
	line := `{"type":"tool_use","part":{"tool":"bash","state":{"status":"completed","input":"{\"command\":\"make test\"}"}}}`
	ev, ok := Decode(line).(ToolUse)
	if !ok {
		t.Fatalf("expected ToolUse")
	}
	if ev.Input["command"] != "make test" {
		t.Errorf("nested input not decoded: %v", ev.Input)
	}
}

func TestDecodeErrorPrecedence(t *testing.T) {
	ev, ok := Decode(`{"type":"error","error":"boom"}`).(ErrorEvent)
	if !ok || ev.Message != "boom" {
		t.Fatalf("error field not used: %+v", ev)
	}
	ev, _ = Decode(`{"type":"error","message":"top","error":"nested"}`).(ErrorEvent)
	if ev.Message != "top" {
		t.Errorf("message should win over error: %q", ev.Message)
	}
	ev, _ = Decode(`{"type":"error"}`).(ErrorEvent)
	if ev.Message != "Unknown error" {
		t.Errorf("empty error message = %q", ev.Message)
	}
}

func TestDecodeNonJSON(t *testing.T) {
	ev, ok := Decode("plain text from the agent").(Unstructured)
	if !ok {
		t.Fatalf("expected Unstructured")
	}
	if ev.FinalText != "" || ev.SessionID != "" {
		t.Errorf("nothing should be extracted: %+v", ev)
	}
}

func TestAccumulateTextConcatenation(t *testing.T) {
	acc := NewAccumulator()
	acc.Apply(Decode(`{"type":"text","sessionID":"ses_abc12345","part":{"text":"Hello "}}`))
	acc.Apply(Decode(`{"type":"text","part":{"text":"world"}}`))
	acc.Apply(Decode(`{"type":"step_finish","sessionID":"ses_abc12345"}`))

	if got := acc.Response(); got != "Hello world" {
		t.Errorf("response = %q", got)
	}
	if got := acc.SessionID(); got != "ses_abc12345" {
		t.Errorf("session = %q", got)
	}
}

func TestAccumulateSessionFirstWins(t *testing.T) {
	acc := NewAccumulator()
	acc.Apply(Text{SessionID: "ses_first111", Body: "a"})
	acc.Apply(Text{SessionID: "ses_second22", Body: "b"})
	if got := acc.SessionID(); got != "ses_first111" {
		t.Errorf("session = %q, want first seen", got)
	}
}

func TestAccumulateErrorOverwrites(t *testing.T) {
	acc := NewAccumulator()
	acc.Apply(Text{Body: "partial output"})
	acc.Apply(ErrorEvent{Message: "tool crashed"})
	if got := acc.Response(); got != "Error: tool crashed" {
		t.Errorf("response = %q", got)
	}
}

func TestAccumulateTextAfterErrorAppends(t *testing.T) {
	acc := NewAccumulator()
	acc.Apply(Text{Body: "partial"})
	acc.Apply(ErrorEvent{Message: "tool crashed"})
	acc.Apply(Text{Body: "\nretrying worked"})
	if got := acc.Response(); got != "Error: tool crashed\nretrying worked" {
		t.Errorf("response = %q", got)
	}
}

func TestAccumulateToolWindow(t *testing.T) {
	acc := NewAccumulator()
	tools := []string{"bash", "read", "write", "edit", "glob", "grep", "bash"}
	for _, name := range tools {
		progressed := acc.Apply(ToolUse{Tool: name, Status: "completed"})
		if !progressed {
			t.Errorf("tool event should progress the display")
		}
	}
	window := acc.ToolSummaries()
	if len(window) != 5 {
		t.Fatalf("window size = %d", len(window))
	}
	if !strings.Contains(window[0], "write") || !strings.Contains(window[4], "bash") {
		t.Errorf("window = %v", window)
	}
}

func TestInvocationEventSequence(t *testing.T) {
	lines := []string{
		`{"type":"tool_use","sessionID":"ses_abc12345","part":{"tool":"bash","state":{"status":"running","input":{"command":"ls"}}}}`,
		`{"type":"tool_use","sessionID":"ses_abc12345","part":{"tool":"bash","state":{"status":"completed","input":{"command":"ls"}}}}`,
		`{"type":"text","sessionID":"ses_abc12345","part":{"text":"done"}}`,
		`{"type":"step_finish","sessionID":"ses_abc12345"}`,
	}
	acc := NewAccumulator()
	for _, l := range lines {
		acc.Apply(Decode(l))
	}
	if got := acc.Response(); got != "done" {
		t.Errorf("response = %q", got)
	}
	if got := acc.SessionID(); got != "ses_abc12345" {
		t.Errorf("session = %q", got)
	}
	window := acc.ToolSummaries()
	if len(window) != 2 {
		t.Fatalf("window = %v", window)
	}
	if window[0] != "⏳ bash: ls" || window[1] != "✓ bash: ls" {
		t.Errorf("summaries = %v", window)
	}
}

func TestLegacyFinalTextValidJSON(t *testing.T) {
	line := `{"finalText":"all good","numTurns":3,"session_id":"ses_legacy99"}`
	// Valid JSON without a type still routes through the fallback.
	ev, ok := Decode(line).(Unstructured)
	if !ok {
		t.Fatalf("expected Unstructured")
	}
	if ev.FinalText != "all good" || ev.SessionID != "ses_legacy99" {
		t.Errorf("extraction = %+v", ev)
	}
}

func TestLegacyFinalTextTruncatedLine(t *testing.T) {
	// Truncated mid-object: JSON parse fails, marker scan takes over.
	line := `{"finalText":"line one\nsaid \"hi\"","numTurns":7,"durationMs":123,"trunc`
	got := extractFinalText(line)
	want := "line one\nsaid \"hi\""
	if got != want {
		t.Errorf("finalText = %q, want %q", got, want)
	}
}

func TestLegacyFinalTextEarliestSibling(t *testing.T) {
	line := `{"finalText":"answer","durationMs":5,"numTurns":2,"bro`
	if got := extractFinalText(line); got != "answer" {
		t.Errorf("finalText = %q", got)
	}
}

func TestLegacySessionIDTruncatedLine(t *testing.T) {
	line := `garbage"session_id":"ses_xyz99999","more":tru`
	if got := extractSessionID(line); got != "ses_xyz99999" {
		t.Errorf("session = %q", got)
	}
	if got := extractSessionID(`no markers here`); got != "" {
		t.Errorf("expected empty, got %q", got)
	}
}

func TestSummarizeDetails(t *testing.T) {
	cases := []struct {
		name string
		ev   ToolUse
		want string
	}{
		{"title wins", ToolUse{Tool: "bash", Status: "completed", Title: "List files", Input: map[string]interface{}{"command": "ls"}}, "✓ bash: List files"},
		{"bash command", ToolUse{Tool: "bash", Status: "running", Input: map[string]interface{}{"command": "go test ./..."}}, "⏳ bash: go test ./..."},
		{"grep quoted", ToolUse{Tool: "grep", Input: map[string]interface{}{"pattern": "func main"}}, "grep: 'func main'"},
		{"no detail", ToolUse{Tool: "task", Status: "completed"}, "✓ task"},
		{"unknown tool", ToolUse{}, "unknown"},
	}
	for _, tc := range cases {
		if got := Summarize(tc.ev); got != tc.want {
			t.Errorf("%s: got %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestSummarizePathKeepsTail(t *testing.T) {
	long := "/home/user/projects/deeply/nested/tree/of/directories/with/a/meaningful/filename.go"
	got := Summarize(ToolUse{Tool: "read", Input: map[string]interface{}{"path": long}})
	if !strings.HasSuffix(got, "filename.go") {
		t.Errorf("tail lost: %q", got)
	}
	if !strings.Contains(got, "...") {
		t.Errorf("no truncation marker: %q", got)
	}
}
