package stream

import "fmt"

// Status glyphs for tool summaries.
const (
	glyphCompleted = "✓"
	glyphRunning   = "⏳"
)

// Summarize renders a one-line, display-friendly summary of a tool event:
// status glyph, tool name, and a type-specific detail bounded in length.
func Summarize(ev ToolUse) string {
	tool := ev.Tool
	if tool == "" {
		tool = "unknown"
	}

	detail := ""
	switch {
	case ev.Title != "":
		detail = truncate(ev.Title, 50)
	case tool == "bash":
		detail = truncate(inputString(ev.Input, "command"), 40)
	case tool == "read" || tool == "write" || tool == "edit":
		path := inputString(ev.Input, "path")
		if path == "" {
			path = inputString(ev.Input, "file")
		}
		detail = truncatePath(path, 50)
	case tool == "glob":
		detail = truncate(inputString(ev.Input, "pattern"), 40)
	case tool == "grep":
		if pattern := inputString(ev.Input, "pattern"); pattern != "" {
			detail = fmt.Sprintf("'%s'", truncate(pattern, 25))
		}
	case tool == "web_search":
		if query := inputString(ev.Input, "query"); query != "" {
			detail = fmt.Sprintf("'%s'", truncate(query, 25))
		}
	}

	glyph := ""
	switch ev.Status {
	case "completed":
		glyph = glyphCompleted
	case "running":
		glyph = glyphRunning
	}

	switch {
	case glyph != "" && detail != "":
		return fmt.Sprintf("%s %s: %s", glyph, tool, detail)
	case glyph != "":
		return fmt.Sprintf("%s %s", glyph, tool)
	case detail != "":
		return fmt.Sprintf("%s: %s", tool, detail)
	default:
		return tool
	}
}

func inputString(input map[string]interface{}, key string) string {
	if input == nil {
		return ""
	}
	s, _ := input[key].(string)
	return s
}

// truncate bounds s to max runes plus an ellipsis marker.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

// truncatePath keeps the tail of long paths, which carries the filename.
func truncatePath(path string, max int) string {
	runes := []rune(path)
	if len(runes) <= max {
		return path
	}
	return "..." + string(runes[len(runes)-(max-3):])
}
