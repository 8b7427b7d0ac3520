// Package invoke builds argument vectors for launching the agent CLI.
package invoke

import "strings"

// SessionPrefix is the identifier prefix the agent requires. Identifiers
// without it belong to some other tool and must not be passed back.
const SessionPrefix = "ses_"

// Preamble is prepended to the first message of every session so the agent
// knows about bridge conventions. Continuations omit it to avoid repetition.
const Preamble = "[Bridge Context: You're running behind a chat bridge. The user can use /new <path> to change the working directory for their session (e.g., /new ~/projects/myapp). Don't suggest using cd to change directories - instead tell them to use /new <path>.]\n\n"

// ValidSessionID reports whether id is usable for session continuation.
func ValidSessionID(id string) bool {
	return id != "" && strings.HasPrefix(id, SessionPrefix)
}

// Builder produces agent invocations.
type Builder struct {
	agentPath string
	daemonURL string
}

// NewBuilder creates a Builder for the given agent binary and daemon URL.
func NewBuilder(agentPath, daemonURL string) *Builder {
	return &Builder{agentPath: agentPath, daemonURL: daemonURL}
}

// Build assembles the argument vector: structured output always, daemon
// attachment when the caller opted in and the prober reported it reachable,
// session continuation only for a valid identifier.
func (b *Builder) Build(sessionID string, attach bool) []string {
	argv := []string{b.agentPath, "run"}
	if attach {
		argv = append(argv, "--attach", b.daemonURL)
	}
	argv = append(argv, "--format", "json")
	if ValidSessionID(sessionID) {
		argv = append(argv, "--session", sessionID)
	}
	return argv
}

// WithPrompt appends the user message as the final positional argument,
// prefixing the contextual preamble on the first turn of a session.
func WithPrompt(argv []string, message string, continuation bool) []string {
	if !continuation {
		message = Preamble + message
	}
	return append(argv, message)
}

// Attached reports whether an argument vector includes daemon attachment.
func Attached(argv []string) bool {
	for _, arg := range argv {
		if arg == "--attach" {
			return true
		}
	}
	return false
}
