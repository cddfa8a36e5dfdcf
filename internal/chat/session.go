package chat

import (
	"sync"

	"github.com/ashureev/persona-relay/internal/domain"
)

// Session is the conversation state for one connection: the active
// character and its role-tagged history. The first turn is always the
// system prompt once the session has been reset.
type Session struct {
	mu        sync.Mutex
	character string
	turns     []domain.Turn
	epoch     uint64
	maxTurns  int
}

// NewSession creates an empty session. maxTurns > 0 caps the number of
// non-system turns kept in history.
func NewSession(maxTurns int) *Session {
	return &Session{maxTurns: maxTurns}
}

// Active reports whether the session has been bound to a character.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns) > 0
}

// Character returns the active character id.
func (s *Session) Character() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.character
}

// Reset discards the history and starts over with prompt as the system turn.
// Assistant replies for exchanges begun before the reset are dropped.
func (s *Session) Reset(character, prompt string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.character = character
	s.turns = []domain.Turn{domain.SystemTurn(prompt)}
	s.epoch++
}

// AppendUser records a user turn and returns the history to send to the
// backend together with the epoch it belongs to.
func (s *Session) AppendUser(text string) ([]domain.Turn, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, domain.UserTurn(text))
	s.trim()
	snapshot := make([]domain.Turn, len(s.turns))
	copy(snapshot, s.turns)
	return snapshot, s.epoch
}

// AppendAssistant records a confirmed reply. It returns false, leaving the
// history untouched, when the session was reset after epoch was taken.
func (s *Session) AppendAssistant(epoch uint64, text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch || len(s.turns) == 0 {
		return false
	}
	s.turns = append(s.turns, domain.AssistantTurn(text))
	s.trim()
	return true
}

// History returns a copy of the current turns.
func (s *Session) History() []domain.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// trim keeps the system turn plus the newest maxTurns turns, and never lets
// the retained dialogue start with an assistant turn. Caller holds mu.
func (s *Session) trim() {
	if s.maxTurns <= 0 || len(s.turns)-1 <= s.maxTurns {
		return
	}
	tail := s.turns[len(s.turns)-s.maxTurns:]
	for len(tail) > 0 && tail[0].Role == domain.RoleAssistant {
		tail = tail[1:]
	}
	kept := make([]domain.Turn, 0, len(tail)+1)
	kept = append(kept, s.turns[0])
	kept = append(kept, tail...)
	s.turns = kept
}
