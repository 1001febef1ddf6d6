package domain

import (
	"context"
	"errors"
	"fmt"

	"github.com/davidbz/livegpt/internal/observability"
)

// ConversationService keeps the per-conversation transcript. A nil store
// disables persistence.
type ConversationService struct {
	store ConversationStore
}

// NewConversationService creates a new conversation service (DI constructor).
func NewConversationService(store ConversationStore) *ConversationService {
	return &ConversationService{store: store}
}

// History returns the stored turns followed by the incoming ones. Without a
// conversation ID the incoming turns are returned unchanged.
func (s *ConversationService) History(
	ctx context.Context,
	conversationID string,
	incoming []Message,
) ([]Message, error) {
	if conversationID == "" || s.store == nil {
		return incoming, nil
	}

	stored, err := s.store.Load(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}

	history := make([]Message, 0, len(stored)+len(incoming))
	history = append(history, stored...)
	history = append(history, incoming...)
	return history, nil
}

// Record appends the incoming turns and, when non-empty, the assistant reply.
func (s *ConversationService) Record(
	ctx context.Context,
	conversationID string,
	incoming []Message,
	reply string,
) error {
	if conversationID == "" || s.store == nil {
		return nil
	}

	turns := make([]Message, 0, len(incoming)+1)
	turns = append(turns, incoming...)
	if reply != "" {
		turns = append(turns, Message{Role: RoleAssistant, Content: reply})
	}
	if len(turns) == 0 {
		return errors.New("nothing to record")
	}

	if err := s.store.Append(ctx, conversationID, turns...); err != nil {
		return fmt.Errorf("failed to record conversation: %w", err)
	}

	observability.FromContext(ctx).Debug("conversation recorded",
		observability.String("conversation_id", conversationID),
		observability.Int("turns", len(turns)))

	return nil
}
