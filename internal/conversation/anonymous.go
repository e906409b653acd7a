// Package conversation holds the message lists shown for a conversation:
// a locally mutated list for anonymous users and a feed-replaced list for
// authenticated users.
package conversation

import (
	"sync"

	"github.com/reelrules/regbot-gateway/internal/model"
)

// Anonymous is an in-memory message list mutated by the stream consumer.
type Anonymous struct {
	conversationID string

	mu       sync.RWMutex
	messages []model.Message
}

// NewAnonymous creates an empty store for a conversation.
func NewAnonymous(conversationID string) *Anonymous {
	return &Anonymous{conversationID: conversationID}
}

// ConversationID returns the id of the conversation the store belongs to.
func (s *Anonymous) ConversationID() string {
	return s.conversationID
}

// Append adds messages to the end of the list.
func (s *Anonymous) Append(msgs ...model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msgs...)
}

// Update applies fn to the message with the given id and returns a copy of
// the result. It reports false when no such message exists.
func (s *Anonymous) Update(id string, fn func(*model.Message)) (model.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.messages {
		if s.messages[i].ID == id {
			fn(&s.messages[i])
			return s.messages[i], true
		}
	}
	return model.Message{}, false
}

// Get returns a copy of the message with the given id.
func (s *Anonymous) Get(id string) (model.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.messages {
		if m.ID == id {
			return m, true
		}
	}
	return model.Message{}, false
}

// Messages returns a copy of the list.
func (s *Anonymous) Messages() []model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Reset drops every message.
func (s *Anonymous) Reset() {
	s.mu.Lock()
	s.messages = nil
	s.mu.Unlock()
}
