package domain_test

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/livegpt/internal/domain"
)

func fixedClock() time.Time {
	return time.Date(2023, time.March, 7, 15, 4, 5, 0, time.Local)
}

func msg(role, content string) domain.Message {
	return domain.Message{Role: role, Content: content}
}

func TestHistoryCurator_Curate(t *testing.T) {
	curator := domain.NewHistoryCurator(fixedClock)

	t.Run("should prepend the rendered system prompt", func(t *testing.T) {
		curated := curator.Curate([]domain.Message{msg(domain.RoleUser, "Hi")}, "Now: {{ datetime }}")

		require.Equal(t, []domain.Message{
			msg(domain.RoleSystem, "Now: 3/7/2023, 3:04:05 PM"),
			msg(domain.RoleUser, "Hi"),
		}, curated)
	})

	t.Run("should use the default prompt when no template is given", func(t *testing.T) {
		curated := curator.Curate([]domain.Message{msg(domain.RoleUser, "Hi")}, "")

		require.Equal(t, domain.RoleSystem, curated[0].Role)
		require.Contains(t, curated[0].Content, "Knowledge cutoff")
		require.Contains(t, curated[0].Content, "3/7/2023, 3:04:05 PM")
		require.NotContains(t, curated[0].Content, domain.DateTimePlaceholder)
	})

	t.Run("should only replace the first placeholder", func(t *testing.T) {
		curated := curator.Curate(nil, "{{ datetime }} / {{ datetime }}")

		require.Equal(t, "3/7/2023, 3:04:05 PM / {{ datetime }}", curated[0].Content)
	})

	t.Run("should drop app messages", func(t *testing.T) {
		curated := curator.Curate([]domain.Message{
			msg(domain.RoleApp, "joined the meeting"),
			msg(domain.RoleUser, "Hi"),
			msg(domain.RoleApp, "typing"),
			msg(domain.RoleAssistant, "Hello"),
			msg(domain.RoleUser, "How are you?"),
		}, "sys")

		require.Equal(t, []domain.Message{
			msg(domain.RoleSystem, "sys"),
			msg(domain.RoleUser, "Hi"),
			msg(domain.RoleAssistant, "Hello"),
			msg(domain.RoleUser, "How are you?"),
		}, curated)
	})

	t.Run("should drop trailing assistant turns", func(t *testing.T) {
		curated := curator.Curate([]domain.Message{
			msg(domain.RoleUser, "Hi"),
			msg(domain.RoleAssistant, "Hello"),
			msg(domain.RoleUser, "Tell me a joke"),
			msg(domain.RoleAssistant, "Why did"),
			msg(domain.RoleApp, "interrupted"),
			msg(domain.RoleAssistant, "the chicken"),
		}, "sys")

		require.Equal(t, []domain.Message{
			msg(domain.RoleSystem, "sys"),
			msg(domain.RoleUser, "Hi"),
			msg(domain.RoleAssistant, "Hello"),
			msg(domain.RoleUser, "Tell me a joke"),
		}, curated)
	})

	t.Run("should drop every assistant turn when there is no user message", func(t *testing.T) {
		curated := curator.Curate([]domain.Message{
			msg(domain.RoleAssistant, "Welcome"),
			msg(domain.RoleAssistant, "Anyone there?"),
		}, "sys")

		require.Equal(t, []domain.Message{msg(domain.RoleSystem, "sys")}, curated)
	})

	t.Run("should replace caller system messages with the synthesized prompt", func(t *testing.T) {
		curated := curator.Curate([]domain.Message{
			msg(domain.RoleSystem, "old prompt"),
			msg(domain.RoleUser, "Hi"),
		}, "sys")

		require.Equal(t, []domain.Message{
			msg(domain.RoleSystem, "sys"),
			msg(domain.RoleUser, "Hi"),
		}, curated)
	})

	t.Run("should not modify the input", func(t *testing.T) {
		input := []domain.Message{
			msg(domain.RoleApp, "note"),
			msg(domain.RoleUser, "Hi"),
			msg(domain.RoleAssistant, "Hello"),
		}
		snapshot := append([]domain.Message(nil), input...)

		curator.Curate(input, "sys")

		require.Equal(t, snapshot, input)
	})
}

func TestHistoryCurator_Properties(t *testing.T) {
	curator := domain.NewHistoryCurator(fixedClock)
	roles := []string{domain.RoleSystem, domain.RoleUser, domain.RoleAssistant, domain.RoleApp}
	rng := rand.New(rand.NewSource(42))

	for i := range 200 {
		n := rng.Intn(8)
		input := make([]domain.Message, n)
		for j := range input {
			input[j] = msg(roles[rng.Intn(len(roles))], fmt.Sprintf("m%d", j))
		}

		curated := curator.Curate(input, "sys")
		name := fmt.Sprintf("case %d", i)

		require.NotEmpty(t, curated, name)
		require.Equal(t, domain.RoleSystem, curated[0].Role, name)
		for _, m := range curated[1:] {
			require.NotEqual(t, domain.RoleSystem, m.Role, name)
			require.NotEqual(t, domain.RoleApp, m.Role, name)
		}
		if len(curated) > 1 {
			require.Equal(t, domain.RoleUser, curated[len(curated)-1].Role, name)
		}
		require.True(t, isSubsequence(curated[1:], input), name)
	}

	t.Run("trailing assistant pair is removed", func(t *testing.T) {
		curated := curator.Curate([]domain.Message{
			msg(domain.RoleUser, "a"),
			msg(domain.RoleAssistant, "b"),
			msg(domain.RoleUser, "c"),
			msg(domain.RoleAssistant, "d"),
			msg(domain.RoleAssistant, "e"),
		}, "sys")

		require.Equal(t, msg(domain.RoleUser, "c"), curated[len(curated)-1])
		require.Len(t, curated, 4)
	})

	t.Run("ordering is untouched without a trailing assistant run", func(t *testing.T) {
		input := []domain.Message{
			msg(domain.RoleUser, "a"),
			msg(domain.RoleAssistant, "b"),
			msg(domain.RoleUser, "c"),
		}

		curated := curator.Curate(input, "sys")

		require.Equal(t, input, curated[1:])
	})
}

func isSubsequence(sub, seq []domain.Message) bool {
	i := 0
	for _, m := range seq {
		if i < len(sub) && sub[i] == m {
			i++
		}
	}
	return i == len(sub)
}

func TestDefaultSystemPrompt(t *testing.T) {
	require.Equal(t, 1, strings.Count(domain.DefaultSystemPrompt, domain.DateTimePlaceholder))
}
