package stream

import (
	"encoding/json"
	"strings"
)

// Legacy fallback extraction for the older, non-structured output convention:
// a single completion object carrying "finalText" and "session_id". Lines are
// frequently truncated or over-escaped, so after a failed JSON parse the
// values are recovered by scanning for marker substrings bounded by the
// sibling keys that follow them in that format. Extraction never fails; a
// line that yields nothing simply contributes no update.

const (
	finalTextMarker = `"finalText":"`
	sessionIDMarker = `"session_id":"`
)

// siblingMarkers are the keys that may follow finalText in a completion line.
var siblingMarkers = []string{`","numTurns"`, `","durationMs"`, `","session_id"`}

// extractFinalText pulls the finalText value out of a completion line.
func extractFinalText(line string) string {
	if !strings.Contains(line, `"finalText"`) {
		return ""
	}

	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(line), &obj); err == nil {
		if text, ok := obj["finalText"].(string); ok {
			return text
		}
		return ""
	}

	start := strings.Index(line, finalTextMarker)
	if start < 0 {
		return ""
	}
	rest := line[start+len(finalTextMarker):]

	end := len(rest)
	for _, marker := range siblingMarkers {
		if pos := strings.Index(rest, marker); pos >= 0 && pos < end {
			end = pos
		}
	}
	return unescape(rest[:end])
}

// extractSessionID pulls the session_id value out of a completion line.
func extractSessionID(line string) string {
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(line), &obj); err == nil {
		if id, ok := obj["session_id"].(string); ok {
			return id
		}
		return ""
	}

	start := strings.Index(line, sessionIDMarker)
	if start < 0 {
		return ""
	}
	rest := line[start+len(sessionIDMarker):]
	end := strings.IndexByte(rest, '"')
	if end < 0 {
		return ""
	}
	return rest[:end]
}

// unescape reverses the escaping the legacy format applies to finalText.
func unescape(s string) string {
	s = strings.ReplaceAll(s, `\n`, "\n")
	s = strings.ReplaceAll(s, `\"`, `"`)
	s = strings.ReplaceAll(s, `\\`, `\`)
	return s
}
