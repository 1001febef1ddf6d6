package domain_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/livegpt/internal/domain"
	"github.com/davidbz/livegpt/internal/store/memory"
)

type failingStore struct{}

func (failingStore) Load(context.Context, string) ([]domain.Message, error) {
	return nil, errors.New("store offline")
}

func (failingStore) Append(context.Context, string, ...domain.Message) error {
	return errors.New("store offline")
}

func TestConversationService(t *testing.T) {
	ctx := context.Background()

	t.Run("should prepend stored turns to the incoming ones", func(t *testing.T) {
		service := domain.NewConversationService(memory.NewConversationStore())

		require.NoError(t, service.Record(ctx, "c1", []domain.Message{msg(domain.RoleUser, "Hi")}, "Hello"))

		history, err := service.History(ctx, "c1", []domain.Message{msg(domain.RoleUser, "How are you?")})
		require.NoError(t, err)
		require.Equal(t, []domain.Message{
			msg(domain.RoleUser, "Hi"),
			msg(domain.RoleAssistant, "Hello"),
			msg(domain.RoleUser, "How are you?"),
		}, history)
	})

	t.Run("should pass through without a conversation ID", func(t *testing.T) {
		service := domain.NewConversationService(failingStore{})
		incoming := []domain.Message{msg(domain.RoleUser, "Hi")}

		history, err := service.History(ctx, "", incoming)
		require.NoError(t, err)
		require.Equal(t, incoming, history)
		require.NoError(t, service.Record(ctx, "", incoming, "Hello"))
	})

	t.Run("should tolerate a nil store", func(t *testing.T) {
		service := domain.NewConversationService(nil)

		history, err := service.History(ctx, "c1", nil)
		require.NoError(t, err)
		require.Empty(t, history)
		require.NoError(t, service.Record(ctx, "c1", nil, "Hello"))
	})

	t.Run("should report store failures", func(t *testing.T) {
		service := domain.NewConversationService(failingStore{})

		_, err := service.History(ctx, "c1", nil)
		require.ErrorContains(t, err, "store offline")

		err = service.Record(ctx, "c1", []domain.Message{msg(domain.RoleUser, "Hi")}, "")
		require.ErrorContains(t, err, "store offline")
	})

	t.Run("should refuse to record nothing", func(t *testing.T) {
		service := domain.NewConversationService(memory.NewConversationStore())

		require.Error(t, service.Record(ctx, "c1", nil, ""))
	})
}
