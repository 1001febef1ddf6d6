package domain

import (
	"strings"
	"time"
)

const (
	// DateTimePlaceholder is replaced with the current local time in system prompts.
	DateTimePlaceholder = "{{ datetime }}"

	// promptTimeLayout renders times the way an en-US locale string does.
	promptTimeLayout = "1/2/2006, 3:04:05 PM"
)

// DefaultSystemPrompt is used when neither the caller nor the configuration supplies one.
const DefaultSystemPrompt = `You are a helpful voice assistant taking part in a live meeting.
Keep your responses concise while still being friendly and personable. Return all results as markdown.
If your response is a question, append a question mark symbol to the end of it.
Knowledge cutoff: 2021-09
Current date and time: {{ datetime }}`

// HistoryCurator shapes a conversation into the sequence sent upstream.
type HistoryCurator struct {
	now func() time.Time
}

// NewHistoryCurator creates a curator. A nil clock uses time.Now.
func NewHistoryCurator(now func() time.Time) *HistoryCurator {
	if now == nil {
		now = time.Now
	}
	return &HistoryCurator{now: now}
}

// Curate drops app messages and any trailing assistant turns after the last
// user message, then prepends the rendered system prompt. Caller-supplied system
// messages are dropped so the result holds exactly one, at index 0. The input is
// not modified.
func (c *HistoryCurator) Curate(messages []Message, systemPromptTemplate string) []Message {
	filtered := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role != RoleApp && m.Role != RoleSystem {
			filtered = append(filtered, m)
		}
	}

	stop := trailingAssistantStart(filtered)

	curated := make([]Message, 0, len(filtered)+1)
	curated = append(curated, Message{
		Role:    RoleSystem,
		Content: c.renderSystemPrompt(systemPromptTemplate),
	})
	curated = append(curated, filtered[:stop]...)

	return curated
}

// trailingAssistantStart returns the index just after the last user message,
// or 0 when there is none.
func trailingAssistantStart(messages []Message) int {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			return i + 1
		}
	}
	return 0
}

func (c *HistoryCurator) renderSystemPrompt(template string) string {
	if template == "" {
		template = DefaultSystemPrompt
	}
	return strings.Replace(template, DateTimePlaceholder, c.now().Local().Format(promptTimeLayout), 1)
}
