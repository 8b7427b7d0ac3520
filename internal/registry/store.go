// Package registry maps conversational turns to agent session contexts.
package registry

import (
	"encoding/json"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/vinayprograms/ocbridge/internal/logging"
)

// historyCap bounds the persisted session history.
const historyCap = 100

// SessionRecord is the context stored against a reply handle.
type SessionRecord struct {
	SessionID string `json:"session_id"`
	Cwd       string `json:"cwd"`
	HeaderRef int64  `json:"header_handle,omitempty"`
}

// ActorSession is the per-actor fallback pointer, overwritten on every
// completed turn.
type ActorSession struct {
	SessionID  string `json:"session_id"`
	Cwd        string `json:"cwd"`
	LastHandle int64  `json:"last_handle,omitempty"`
}

// HistoryEntry records one distinct session for the /session listing.
type HistoryEntry struct {
	SessionID    string    `json:"session_id"`
	Cwd          string    `json:"cwd"`
	Started      time.Time `json:"started"`
	FirstMessage string    `json:"first_message,omitempty"`
}

// persistedState is the on-disk JSON shape. Handle and actor keys are
// stringified, matching what older deployments already have on disk.
type persistedState struct {
	Sessions map[string]SessionRecord `json:"sessions"`
	Active   map[string]ActorSession  `json:"active_session_per_user"`
	History  []HistoryEntry           `json:"session_history"`
	Autonomy map[string]string        `json:"session_autonomy"`
}

// Store owns all persisted bridge state: reply-handle mappings, per-actor
// active pointers, session history, and per-session autonomy levels. It is
// injectable so independent service instances never share hidden state.
// Persistence failures degrade to in-memory operation for that cycle.
type Store struct {
	path string
	log  *logging.Logger

	mu       sync.Mutex
	sessions map[int64]SessionRecord
	active   map[int64]ActorSession
	history  []HistoryEntry
	autonomy map[string]string
}

// NewStore creates a Store backed by the given file. Pass an empty path for
// a purely in-memory store (tests).
func NewStore(path string, log *logging.Logger) *Store {
	return &Store{
		path:     path,
		log:      log.WithComponent("store"),
		sessions: make(map[int64]SessionRecord),
		active:   make(map[int64]ActorSession),
		autonomy: make(map[string]string),
	}
}

// Load reads persisted state from disk. A missing file is a clean start;
// a corrupt file is logged and ignored.
func (s *Store) Load() {
	if s.path == "" {
		return
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Error("failed to load state", map[string]interface{}{"error": err.Error()})
		}
		return
	}

	var ps persistedState
	if err := json.Unmarshal(data, &ps); err != nil {
		s.log.Error("failed to parse state", map[string]interface{}{"error": err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[int64]SessionRecord, len(ps.Sessions))
	for k, v := range ps.Sessions {
		if id, err := strconv.ParseInt(k, 10, 64); err == nil {
			s.sessions[id] = v
		}
	}
	s.active = make(map[int64]ActorSession, len(ps.Active))
	for k, v := range ps.Active {
		if id, err := strconv.ParseInt(k, 10, 64); err == nil {
			s.active[id] = v
		}
	}
	s.history = ps.History
	s.autonomy = ps.Autonomy
	if s.autonomy == nil {
		s.autonomy = make(map[string]string)
	}
	s.log.Info("state loaded", map[string]interface{}{
		"sessions": len(s.sessions),
		"history":  len(s.history),
		"autonomy": len(s.autonomy),
	})
}

// save persists the current state. Callers must hold s.mu.
func (s *Store) save() {
	if s.path == "" {
		return
	}

	// History is truncated to the most recent entries on every save.
	history := s.history
	if len(history) > historyCap {
		history = history[len(history)-historyCap:]
		s.history = history
	}

	ps := persistedState{
		Sessions: make(map[string]SessionRecord, len(s.sessions)),
		Active:   make(map[string]ActorSession, len(s.active)),
		History:  history,
		Autonomy: s.autonomy,
	}
	for k, v := range s.sessions {
		ps.Sessions[strconv.FormatInt(k, 10)] = v
	}
	for k, v := range s.active {
		ps.Active[strconv.FormatInt(k, 10)] = v
	}

	data, err := json.MarshalIndent(ps, "", "  ")
	if err != nil {
		s.log.Error("failed to marshal state", map[string]interface{}{"error": err.Error()})
		return
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		s.log.Error("failed to save state", map[string]interface{}{"error": err.Error()})
	}
}

// Path returns the backing file path ("" for in-memory stores).
func (s *Store) Path() string {
	return s.path
}

// Session returns the record mapped to a reply handle.
func (s *Store) Session(handle int64) (SessionRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[handle]
	return rec, ok
}

// PutSession maps a reply handle to a record and persists.
func (s *Store) PutSession(handle int64, rec SessionRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[handle] = rec
	s.save()
}

// Active returns an actor's active session pointer.
func (s *Store) Active(actorID int64) (ActorSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.active[actorID]
	return a, ok
}

// SetActive overwrites an actor's active pointer and persists.
func (s *Store) SetActive(actorID int64, a ActorSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[actorID] = a
	s.save()
}

// ActiveSessions returns a copy of all per-actor active pointers.
func (s *Store) ActiveSessions() []ActorSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ActorSession, 0, len(s.active))
	for _, a := range s.active {
		out = append(out, a)
	}
	return out
}

// SessionCount returns the number of reply-handle mappings.
func (s *Store) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// History returns a copy of the session history, oldest first.
func (s *Store) History() []HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]HistoryEntry, len(s.history))
	copy(out, s.history)
	return out
}

// AppendHistory records a session the first time its id is seen. Later
// calls for the same id are no-ops.
func (s *Store) AppendHistory(entry HistoryEntry) {
	if entry.SessionID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.history {
		if e.SessionID == entry.SessionID {
			return
		}
	}
	s.history = append(s.history, entry)
	s.save()
}

// AutonomyLevel returns the stored level for a session, "" when absent.
func (s *Store) AutonomyLevel(sessionID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.autonomy[sessionID]
}

// SetAutonomyLevel stores a session's autonomy level and persists.
func (s *Store) SetAutonomyLevel(sessionID, level string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autonomy[sessionID] = level
	s.save()
}

// AutonomyMap returns a copy of the autonomy map.
func (s *Store) AutonomyMap() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.autonomy))
	for k, v := range s.autonomy {
		out[k] = v
	}
	return out
}
