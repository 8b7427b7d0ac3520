// Package autonomy tracks per-session autonomy tiers and drives the
// permission escalation handshake.
package autonomy

import (
	"sync"

	"github.com/google/uuid"

	"github.com/vinayprograms/ocbridge/internal/registry"
)

// Level is a per-session autonomy tier. Absent sessions default to Off.
type Level string

const (
	LevelOff    Level = "off"    // read-only, no tool execution
	LevelLow    Level = "low"    // safe tools only
	LevelMedium Level = "medium" // most tools allowed
	LevelHigh   Level = "high"   // all tools, asks for risky ones
	LevelUnsafe Level = "unsafe" // skip all permission checks
)

// Levels lists all valid levels in ascending order of autonomy.
var Levels = []Level{LevelOff, LevelLow, LevelMedium, LevelHigh, LevelUnsafe}

// ParseLevel validates a user-supplied level name.
func ParseLevel(s string) (Level, bool) {
	for _, l := range Levels {
		if string(l) == s {
			return l, true
		}
	}
	return "", false
}

// Glyph returns the display glyph for a level.
func (l Level) Glyph() string {
	switch l {
	case LevelOff:
		return "👁"
	case LevelLow:
		return "🔒"
	case LevelMedium:
		return "🔓"
	case LevelHigh:
		return "⚡"
	case LevelUnsafe:
		return "⚠️"
	default:
		return ""
	}
}

// Request is a pending escalation: created when a permission denial is
// detected, consumed exactly once by the handshake response.
type Request struct {
	ID        string
	Message   string // the original user message, replayed on approval
	SessionID string // possibly "" when denial hit the first turn
	Cwd       string
	ActorID   int64
	ChatRef   int64 // where handshake results are delivered
	OriginRef int64 // the turn that triggered the denial
}

// Coordinator owns the autonomy map (persisted through the injected store)
// and the in-memory pending escalation requests.
type Coordinator struct {
	store      *registry.Store
	classifier *Classifier

	mu      sync.Mutex
	pending map[string]Request
}

// NewCoordinator creates a Coordinator over the given store.
func NewCoordinator(store *registry.Store, classifier *Classifier) *Coordinator {
	if classifier == nil {
		classifier = NewClassifier()
	}
	return &Coordinator{
		store:      store,
		classifier: classifier,
		pending:    make(map[string]Request),
	}
}

// Level returns the session's autonomy tier. Unknown or empty session ids
// are Off.
func (c *Coordinator) Level(sessionID string) Level {
	if sessionID == "" {
		return LevelOff
	}
	if l, ok := ParseLevel(c.store.AutonomyLevel(sessionID)); ok {
		return l
	}
	return LevelOff
}

// SetLevel stores a session's tier. Levels only change through this call:
// an explicit /auto action or a resolved "always" escalation.
func (c *Coordinator) SetLevel(sessionID string, level Level) {
	c.store.SetAutonomyLevel(sessionID, string(level))
}

// Denied reports whether response text matches a permission-denial signature.
func (c *Coordinator) Denied(text string) bool {
	return c.classifier.Denied(text)
}

// Begin registers a pending escalation and returns its single-use id.
func (c *Coordinator) Begin(req Request) string {
	req.ID = uuid.NewString()[:8]
	c.mu.Lock()
	c.pending[req.ID] = req
	c.mu.Unlock()
	return req.ID
}

// Take consumes a pending request. A request id can be taken at most once;
// unknown or already-consumed ids report false ("request expired").
func (c *Coordinator) Take(id string) (Request, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	req, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	return req, ok
}

// Pending reports the number of unresolved escalations.
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
