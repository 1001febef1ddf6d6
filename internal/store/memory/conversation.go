// Package memory provides a process-local conversation store.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/davidbz/livegpt/internal/domain"
)

// ConversationStore keeps conversations in a map. Contents are lost on restart.
type ConversationStore struct {
	mu            sync.RWMutex
	conversations map[string][]domain.Message
}

// NewConversationStore creates an empty store.
func NewConversationStore() *ConversationStore {
	return &ConversationStore{
		conversations: make(map[string][]domain.Message),
	}
}

// Load returns a copy of the stored messages.
func (s *ConversationStore) Load(_ context.Context, conversationID string) ([]domain.Message, error) {
	if conversationID == "" {
		return nil, errors.New("conversation ID cannot be empty")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.conversations[conversationID]
	out := make([]domain.Message, len(stored))
	copy(out, stored)
	return out, nil
}

// Append adds messages to the end of the conversation.
func (s *ConversationStore) Append(_ context.Context, conversationID string, messages ...domain.Message) error {
	if conversationID == "" {
		return errors.New("conversation ID cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.conversations[conversationID] = append(s.conversations[conversationID], messages...)
	return nil
}
