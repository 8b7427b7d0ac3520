package registry

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vinayprograms/ocbridge/internal/config"
	"github.com/vinayprograms/ocbridge/internal/invoke"
)

// ErrDirNotFound is returned when a user-supplied path does not resolve to
// an existing directory.
var ErrDirNotFound = errors.New("directory not found")

// excerptLen caps the first-message excerpt kept in history entries.
const excerptLen = 50

// Context is the session context an inbound turn continues.
type Context struct {
	SessionID    string // "" until the agent assigns one
	Cwd          string
	HeaderRef    int64 // originating header handle, 0 when none
	Continuation bool  // a valid prior session id was found
}

// Registry resolves inbound turns to session contexts and records the
// outcome of completed turns.
type Registry struct {
	store      *Store
	defaultCwd string
}

// New creates a Registry over the given store.
func New(store *Store, defaultCwd string) *Registry {
	return &Registry{store: store, defaultCwd: defaultCwd}
}

// DefaultCwd returns the process-wide default directory.
func (r *Registry) DefaultCwd() string {
	return r.defaultCwd
}

// Store exposes the underlying state store.
func (r *Registry) Store() *Store {
	return r.store
}

// Resolve maps an inbound turn to a session context. Resolution order:
// explicit reply handle, then the actor's active pointer, then a fresh
// context in the default directory. Session ids that fail the validity
// check are treated as absent, never surfaced as errors.
func (r *Registry) Resolve(actorID, replyRef int64) Context {
	if replyRef != 0 {
		if rec, ok := r.store.Session(replyRef); ok {
			return r.contextFrom(rec.SessionID, rec.Cwd, rec.HeaderRef)
		}
	}
	if active, ok := r.store.Active(actorID); ok {
		return r.contextFrom(active.SessionID, active.Cwd, 0)
	}
	return Context{Cwd: r.defaultCwd}
}

func (r *Registry) contextFrom(sessionID, cwd string, headerRef int64) Context {
	if cwd == "" {
		cwd = r.defaultCwd
	}
	if !invoke.ValidSessionID(sessionID) {
		return Context{Cwd: cwd, HeaderRef: headerRef}
	}
	return Context{SessionID: sessionID, Cwd: cwd, HeaderRef: headerRef, Continuation: true}
}

// Commit records a completed turn: the reply-handle mapping, the actor's
// active pointer, and (first occurrence only) a history entry.
func (r *Registry) Commit(actorID int64, replyRefs []int64, ctx Context, firstMessage string) {
	rec := SessionRecord{SessionID: ctx.SessionID, Cwd: ctx.Cwd, HeaderRef: ctx.HeaderRef}
	var last int64
	for _, ref := range replyRefs {
		if ref == 0 {
			continue
		}
		r.store.PutSession(ref, rec)
		last = ref
	}
	r.store.SetActive(actorID, ActorSession{SessionID: ctx.SessionID, Cwd: ctx.Cwd, LastHandle: last})

	if invoke.ValidSessionID(ctx.SessionID) {
		r.store.AppendHistory(HistoryEntry{
			SessionID:    ctx.SessionID,
			Cwd:          ctx.Cwd,
			Started:      time.Now(),
			FirstMessage: Excerpt(firstMessage),
		})
	}
}

// SwitchTo points the actor's active session at the first history entry
// whose id starts with prefix. It reports whether a match was found.
func (r *Registry) SwitchTo(actorID int64, prefix string) (HistoryEntry, bool) {
	for _, entry := range r.store.History() {
		if strings.HasPrefix(entry.SessionID, prefix) {
			r.store.SetActive(actorID, ActorSession{SessionID: entry.SessionID, Cwd: entry.Cwd})
			return entry, true
		}
	}
	return HistoryEntry{}, false
}

// ResolveDir resolves a user-supplied path argument: absolute paths as-is,
// ~ expanded, anything else relative to the default directory. The result
// must be an existing directory.
func (r *Registry) ResolveDir(arg string) (string, error) {
	if arg == "" {
		return r.defaultCwd, nil
	}

	var resolved string
	switch {
	case filepath.IsAbs(arg):
		resolved = arg
	case strings.HasPrefix(arg, "~"):
		resolved = config.ExpandHome(arg)
	default:
		resolved = filepath.Join(r.defaultCwd, arg)
	}

	info, err := os.Stat(resolved)
	if err != nil || !info.IsDir() {
		return "", ErrDirNotFound
	}
	return resolved, nil
}

// Excerpt bounds a first message for history display.
func Excerpt(message string) string {
	runes := []rune(message)
	if len(runes) <= excerptLen {
		return message
	}
	return string(runes[:excerptLen]) + "..."
}
