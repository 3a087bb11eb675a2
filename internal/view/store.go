// Package view keeps the message list of the single active conversation in
// sync with history fetches, push events and optimistic sends.
package view

import (
	"sync"

	"go.uber.org/zap"

	"client_go/internal/domain"
)

// Outcome reports what a mutation did to the store.
type Outcome int

const (
	// Applied means the list changed.
	Applied Outcome = iota
	// Stale means the mutation targeted a conversation that is no longer active.
	Stale
	// Absent means the target message was not in the list.
	Absent
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case Stale:
		return "stale"
	case Absent:
		return "absent"
	default:
		return "unknown"
	}
}

// Token identifies one activation of a conversation. Selecting again, even
// the same conversation, produces a newer token.
type Token struct {
	gen uint64
	id  string
}

// ConversationID returns the id the token was issued for.
func (t Token) ConversationID() string { return t.id }

// Snapshot is an immutable copy of the store for renderers.
type Snapshot struct {
	Ref        *domain.ConversationRef
	Loading    bool
	Messages   []domain.Message
	Generation uint64
	Typers     []string
}

// Store holds the ordered message list of the active conversation.
type Store struct {
	mu       sync.RWMutex
	gen      uint64
	ref      *domain.ConversationRef
	loading  bool
	messages []domain.Message
	log      *zap.Logger
}

func NewStore(log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{log: log}
}

// Select makes ref the active conversation, clears the list and marks it
// loading. A nil ref deactivates. Tokens issued earlier become stale.
func (s *Store) Select(ref *domain.ConversationRef) Token {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.gen++
	s.messages = nil
	if ref == nil {
		s.ref = nil
		s.loading = false
		return Token{gen: s.gen}
	}

	r := *ref
	s.ref = &r
	s.loading = true
	return Token{gen: s.gen, id: r.ID}
}

// Route returns the current token when conversationID is the active one.
func (s *Store) Route(conversationID string) (Token, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.ref == nil || s.ref.ID != conversationID {
		return Token{}, false
	}
	return Token{gen: s.gen, id: s.ref.ID}, true
}

// Active returns the active conversation and its token.
func (s *Store) Active() (domain.ConversationRef, Token, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.ref == nil {
		return domain.ConversationRef{}, Token{}, false
	}
	return *s.ref, Token{gen: s.gen, id: s.ref.ID}, true
}

// current must be called with mu held.
func (s *Store) current(tok Token) bool {
	return s.ref != nil && tok.gen == s.gen && tok.id == s.ref.ID
}

// ReplaceAll sets the list verbatim, keeping the server's order.
func (s *Store) ReplaceAll(tok Token, msgs []domain.Message) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.current(tok) {
		return Stale
	}
	s.messages = append([]domain.Message(nil), msgs...)
	s.loading = false
	return Applied
}

// FailLoad leaves the list empty and clears the loading flag.
func (s *Store) FailLoad(tok Token) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.current(tok) {
		return Stale
	}
	s.messages = nil
	s.loading = false
	return Applied
}

// Append adds msg at the end of the list.
func (s *Store) Append(tok Token, msg domain.Message) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.current(tok) {
		return Stale
	}
	s.messages = append(s.messages, msg)
	return Applied
}

// ApplyEdit replaces the body of message id in place.
func (s *Store) ApplyEdit(tok Token, id, body string) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.current(tok) {
		return Stale
	}
	i := s.indexOf(id)
	if i < 0 {
		s.log.Debug("edit_target_absent", zap.String("conversation_id", tok.id), zap.String("message_id", id))
		return Absent
	}
	s.messages[i].Body = body
	return Applied
}

// ApplyDelete removes message id from the list.
func (s *Store) ApplyDelete(tok Token, id string) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.current(tok) {
		return Stale
	}
	i := s.indexOf(id)
	if i < 0 {
		return Absent
	}
	s.messages = append(s.messages[:i:i], s.messages[i+1:]...)
	return Applied
}

func (s *Store) indexOf(id string) int {
	for i := range s.messages {
		if s.messages[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Loading:    s.loading,
		Messages:   append([]domain.Message(nil), s.messages...),
		Generation: s.gen,
	}
	if s.ref != nil {
		r := *s.ref
		snap.Ref = &r
	}
	return snap
}
