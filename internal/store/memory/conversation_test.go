package memory_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/livegpt/internal/domain"
	"github.com/davidbz/livegpt/internal/store/memory"
)

func TestConversationStore(t *testing.T) {
	ctx := context.Background()

	t.Run("should append in order", func(t *testing.T) {
		store := memory.NewConversationStore()

		require.NoError(t, store.Append(ctx, "c1", domain.Message{Role: domain.RoleUser, Content: "Hi"}))
		require.NoError(t, store.Append(ctx, "c1",
			domain.Message{Role: domain.RoleAssistant, Content: "Hello"},
			domain.Message{Role: domain.RoleUser, Content: "Bye"}))

		messages, err := store.Load(ctx, "c1")
		require.NoError(t, err)
		require.Equal(t, []domain.Message{
			{Role: domain.RoleUser, Content: "Hi"},
			{Role: domain.RoleAssistant, Content: "Hello"},
			{Role: domain.RoleUser, Content: "Bye"},
		}, messages)
	})

	t.Run("should return an empty history for unknown conversations", func(t *testing.T) {
		messages, err := memory.NewConversationStore().Load(ctx, "missing")

		require.NoError(t, err)
		require.Empty(t, messages)
	})

	t.Run("should return a copy", func(t *testing.T) {
		store := memory.NewConversationStore()
		require.NoError(t, store.Append(ctx, "c1", domain.Message{Role: domain.RoleUser, Content: "Hi"}))

		messages, err := store.Load(ctx, "c1")
		require.NoError(t, err)
		messages[0].Content = "changed"

		again, err := store.Load(ctx, "c1")
		require.NoError(t, err)
		require.Equal(t, "Hi", again[0].Content)
	})

	t.Run("should reject an empty conversation ID", func(t *testing.T) {
		store := memory.NewConversationStore()

		_, err := store.Load(ctx, "")
		require.Error(t, err)
		require.Error(t, store.Append(ctx, "", domain.Message{}))
	})

	t.Run("should handle concurrent appends", func(t *testing.T) {
		store := memory.NewConversationStore()

		var wg sync.WaitGroup
		for i := range 20 {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				_ = store.Append(ctx, "c1", domain.Message{Role: domain.RoleUser, Content: fmt.Sprint(idx)})
			}(i)
		}
		wg.Wait()

		messages, err := store.Load(ctx, "c1")
		require.NoError(t, err)
		require.Len(t, messages, 20)
	})
}
