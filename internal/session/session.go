// Package session holds per-client Session state: message history,
// mixer mirror, observer, and event bus, following spec.md §5's
// per-session isolation rule ("each session owns its own agent loop,
// mixer mirror reference, observer state, event bus, and message
// history"). It is the "ad-hoc singleton holding LLM handle + message
// list + session id + loading flags" from spec.md §9's design notes,
// replaced with a per-session struct passed by reference instead of
// global state.
package session

import (
	"sync"

	"github.com/boristopalov/abby/internal/events"
	"github.com/boristopalov/abby/internal/llm"
	"github.com/boristopalov/abby/internal/mixer"
	"github.com/boristopalov/abby/internal/observer"
)

// Session is one client's attach to a DAW project.
type Session struct {
	ID      string
	Project string

	Mirror   *mixer.Mirror
	Observer *observer.Observer
	Bus      *events.Bus

	mu      sync.Mutex
	history []llm.Message
}

// New builds a Session bound to a fresh mirror, observer, and bus. The
// observer must be constructed by the caller (it needs the shared
// bridge) and handed in already wired to Bus.PublishParameterChange.
func New(id, project string, mirror *mixer.Mirror, obs *observer.Observer, bus *events.Bus) *Session {
	return &Session{ID: id, Project: project, Mirror: mirror, Observer: obs, Bus: bus}
}

// AppendHistory appends messages to the rolling, ephemeral history
// (spec.md §9: "keep per-session history as an append-only sequence
// with explicit clearing on session rebind").
func (s *Session) AppendHistory(msgs ...llm.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, msgs...)
}

// History returns a snapshot of the current rolling history.
func (s *Session) History() []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]llm.Message(nil), s.history...)
}

// ClearHistory discards the rolling history, e.g. on session rebind.
func (s *Session) ClearHistory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
}

// Indexed reports whether this session has completed at least one
// enumerate+subscribe pass, so a later reconnect within the same
// process lifetime can skip reindexing (spec.md §4.8 step 3,
// supplemented per SPEC_FULL.md §4 to track indexing state per session
// ID rather than per client connection: the session's Mirror already
// spans reconnects within a process lifetime, so its readiness is the
// indexed flag).
func (s *Session) Indexed() bool {
	return s.Mirror.Ready()
}
